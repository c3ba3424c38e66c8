package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/internal/service/friends"
	"github.com/sharetube/watchparty/internal/service/presence"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/internal/session"
	"github.com/sharetube/watchparty/pkg/ctxlogger"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

// connect upgrades the request and opens the websocket's own tree
// connection. The returned cleanup closes both, running the connection's
// on-disconnect rules.
func (c controller) connect(w http.ResponseWriter, r *http.Request) (*wsrouter.Conn, tree.Conn, func(), bool) {
	ws, err := c.upgrader.Upgrade(w, r, nil)
	if err != nil {
		c.logger.WarnContext(r.Context(), "failed to upgrade to websocket", "error", err)
		return nil, nil, nil, false
	}
	conn := wsrouter.NewConn(ws)

	treeConn, err := c.backend.Connect(r.Context())
	if err != nil {
		c.logger.ErrorContext(r.Context(), "failed to connect to store", "error", err)
		c.closeConn(r.Context(), conn, closeStoreFailure, "internal error")
		conn.Close()
		return nil, nil, nil, false
	}

	cleanup := func() {
		if err := treeConn.Close(context.WithoutCancel(r.Context())); err != nil {
			c.logger.WarnContext(r.Context(), "failed to close store connection", "error", err)
		}
		conn.Close()
	}

	return conn, treeConn, cleanup, true
}

func (c controller) joinRoom(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())
	roomID := chi.URLParam(r, "room-id")

	ctx := context.WithValue(r.Context(), roomIDCtxKey, roomID)
	ctx = ctxlogger.AppendCtx(ctx, slog.String("room_id", roomID))
	r = r.WithContext(ctx)

	conn, treeConn, cleanup, ok := c.connect(w, r)
	if !ok {
		return
	}
	defer cleanup()

	svc := c.newServices(treeConn)
	output := sessionOutput{ctx: ctx, c: c, conn: conn, roomID: roomID}
	s := session.New(roomID, session.User{
		ID:     u.ID,
		Name:   u.Name,
		Avatar: u.Avatar,
	}, session.Deps{
		Rooms:    svc.rooms,
		Chat:     svc.chat,
		Presence: svc.presence,
		Catalog:  c.catalog,
	}, output, output, c.cfg.Session, c.logger)

	if err := s.Join(ctx); err != nil {
		_, message := toUserError(err)
		c.closeConn(ctx, conn, closeJoinFailed, message)
		return
	}
	defer func() {
		if err := s.Leave(context.WithoutCancel(ctx)); err != nil {
			c.logger.WarnContext(ctx, "failed to leave room", "error", err)
		}
	}()

	c.writeToConn(ctx, conn, &Output{
		Type: "JOINED_ROOM",
		Payload: map[string]any{
			"room_id": roomID,
			"is_host": s.IsHost(),
		},
	})

	ctx = context.WithValue(ctx, sessionCtxKey, s)
	if err := c.roomRouter.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "failed to serve conn", "error", err)
	}
}

// watchRooms pushes the discovery listing visible to the user.
func (c controller) watchRooms(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	conn, treeConn, cleanup, ok := c.connect(w, r)
	if !ok {
		return
	}
	defer cleanup()

	ctx := r.Context()
	svc := c.newServices(treeConn)

	unsubscribe, err := svc.rooms.SubscribeToRooms(ctx, func(rooms []room.LiveRoom) {
		visible, err := c.visibleRooms(ctx, svc.friends, u.ID, rooms)
		if err != nil {
			c.logger.InfoContext(ctx, "failed to filter rooms", "error", err)
			return
		}

		c.writeToConn(ctx, conn, &Output{
			Type: "ROOMS_UPDATED",
			Payload: map[string]any{
				"rooms": visible,
			},
		})
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to subscribe to rooms", "error", err)
		c.closeConn(ctx, conn, closeStoreFailure, "internal error")
		return
	}
	defer unsubscribe()

	if err := c.feedRouter.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "failed to serve conn", "error", err)
	}
}

// watchFriends marks the user online for as long as the connection lives and
// pushes their friends and pending requests.
func (c controller) watchFriends(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	conn, treeConn, cleanup, ok := c.connect(w, r)
	if !ok {
		return
	}
	defer cleanup()

	ctx := r.Context()
	svc := c.newServices(treeConn)

	if err := svc.presence.SetOfflineOnDisconnect(ctx, u.ID); err != nil {
		c.logger.InfoContext(ctx, "failed to register offline rule", "error", err)
	}
	if err := svc.presence.UpdatePresence(ctx, &presence.UpdatePresenceParams{
		UserID: u.ID,
		Status: presence.StatusOnline,
	}); err != nil {
		c.logger.InfoContext(ctx, "failed to update presence", "error", err)
	}

	unsubscribeFriends, err := svc.friends.SubscribeToFriends(ctx, u.ID, func(friendList []friends.Friend) {
		c.writeToConn(ctx, conn, &Output{
			Type: "FRIENDS_UPDATED",
			Payload: map[string]any{
				"friends": friendList,
			},
		})
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to subscribe to friends", "error", err)
		c.closeConn(ctx, conn, closeStoreFailure, "internal error")
		return
	}
	defer unsubscribeFriends()

	unsubscribeRequests, err := svc.friends.SubscribeToFriendRequests(ctx, u.ID, func(requests []friends.Request) {
		c.writeToConn(ctx, conn, &Output{
			Type: "FRIEND_REQUESTS_UPDATED",
			Payload: map[string]any{
				"requests": requests,
			},
		})
	})
	if err != nil {
		c.logger.ErrorContext(ctx, "failed to subscribe to friend requests", "error", err)
		c.closeConn(ctx, conn, closeStoreFailure, "internal error")
		return
	}
	defer unsubscribeRequests()

	if err := c.feedRouter.ServeConn(ctx, conn); err != nil {
		c.logger.InfoContext(ctx, "failed to serve conn", "error", err)
	}
}

