package controller

import (
	"context"
	"net/http"
	"slices"

	"github.com/go-chi/chi/v5"
	"github.com/sharetube/watchparty/internal/service/friends"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/internal/session"
	"github.com/sharetube/watchparty/pkg/rest"
)

func (c controller) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, message := toUserError(err)
	if status == http.StatusInternalServerError {
		c.logger.ErrorContext(r.Context(), "request failed", "error", err)
	} else {
		c.logger.InfoContext(r.Context(), "request rejected", "error", err)
	}

	rest.WriteJSON(w, status, rest.Envelope{"error": message})
}

// readValid decodes the body into dst and validates it, writing the error
// response itself when it reports false.
func (c controller) readValid(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := rest.ReadJSON(r, dst); err != nil {
		c.logger.InfoContext(r.Context(), "failed to read json", "error", err)
		rest.WriteJSON(w, http.StatusUnprocessableEntity, rest.Envelope{"error": err.Error()})
		return false
	}

	if validationErrors, ok := c.validate.Validate(dst); !ok {
		c.logger.InfoContext(r.Context(), "failed to validate", "errors", validationErrors)
		rest.WriteJSON(w, http.StatusBadRequest, rest.Envelope{"errors": validationErrors})
		return false
	}

	return true
}

type createRoomRequest struct {
	RoomID     string `json:"room_id" validate:"omitempty,max=64"`
	VideoID    string `json:"video_id" validate:"required,max=256"`
	VideoURL   string `json:"video_url" validate:"omitempty,url"`
	Visibility string `json:"visibility" validate:"omitempty,oneof=public friends private"`
	SeriesID   string `json:"series_id"`
	Season     string `json:"season" validate:"required_with=SeriesID"`
	Episode    int    `json:"episode" validate:"required_with=SeriesID"`
	Autoplay   bool   `json:"autoplay"`
}

type createRoomResponse struct {
	RoomID string `json:"room_id"`
}

func (c controller) createRoom(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	var req createRoomRequest
	if !c.readValid(w, r, &req) {
		return
	}

	var series *room.SeriesState
	if req.SeriesID != "" {
		if _, err := c.catalog.GetContent(r.Context(), req.SeriesID); err != nil {
			c.writeError(w, r, err)
			return
		}

		series = &room.SeriesState{
			SeriesID:        req.SeriesID,
			CurrentSeason:   req.Season,
			CurrentEpisode:  req.Episode,
			AutoplayEnabled: req.Autoplay,
		}
	}

	roomID, err := session.CreateRoom(r.Context(), c.server.rooms, &room.CreateRoomParams{
		RoomID:      req.RoomID,
		HostID:      u.ID,
		VideoID:     req.VideoID,
		VideoURL:    req.VideoURL,
		Visibility:  room.Visibility(req.Visibility),
		SeriesState: series,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": createRoomResponse{
		RoomID: roomID,
	}})
}

func (c controller) listRooms(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	rooms, err := c.server.rooms.ListRooms(r.Context())
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rooms, err = c.visibleRooms(r.Context(), c.server.friends, u.ID, rooms)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	if visibility := r.URL.Query().Get("visibility"); visibility != "" {
		rooms = slices.DeleteFunc(rooms, func(lr room.LiveRoom) bool {
			return string(lr.Visibility) != visibility
		})
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": rooms})
}

// visibleRooms drops rooms the user may not discover: private rooms of other
// hosts and friends-only rooms of hosts who are not friends.
func (c controller) visibleRooms(ctx context.Context, friendsService iFriendsService, userID string, rooms []room.LiveRoom) ([]room.LiveRoom, error) {
	friendIDs, err := friendsService.GetFriendIDs(ctx, userID)
	if err != nil {
		return nil, err
	}

	return slices.DeleteFunc(slices.Clone(rooms), func(lr room.LiveRoom) bool {
		if lr.HostID == userID {
			return false
		}

		switch lr.Visibility {
		case room.VisibilityPublic:
			return false
		case room.VisibilityFriends:
			return !slices.Contains(friendIDs, lr.HostID)
		default:
			return true
		}
	}), nil
}

func (c controller) getMessages(w http.ResponseWriter, r *http.Request) {
	roomID := chi.URLParam(r, "room-id")

	if _, err := c.server.rooms.GetRoom(r.Context(), roomID); err != nil {
		c.writeError(w, r, err)
		return
	}

	messages, err := c.server.chat.GetMessages(r.Context(), roomID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": messages})
}

func (c controller) getVideo(w http.ResponseWriter, r *http.Request) {
	if c.videos == nil {
		rest.WriteJSON(w, http.StatusNotFound, rest.Envelope{"error": "video lookup is disabled"})
		return
	}

	videoData, err := c.videos.Get(r.Context(), chi.URLParam(r, "video-id"))
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": videoData})
}

type sendFriendRequestRequest struct {
	ToUserID string `json:"to_user_id" validate:"required,max=128"`
}

func (c controller) sendFriendRequest(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	var req sendFriendRequestRequest
	if !c.readValid(w, r, &req) {
		return
	}

	request, err := c.server.friends.SendFriendRequest(r.Context(), &friends.SendFriendRequestParams{
		FromUserID:     u.ID,
		FromUserName:   u.Name,
		FromUserAvatar: u.Avatar,
		ToUserID:       req.ToUserID,
	})
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusCreated, rest.Envelope{"data": request})
}

func (c controller) acceptFriendRequest(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	if err := c.server.friends.AcceptFriendRequest(r.Context(), &friends.AcceptFriendRequestParams{
		UserID:     u.ID,
		UserName:   u.Name,
		UserAvatar: u.Avatar,
		RequestID:  chi.URLParam(r, "request-id"),
	}); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) rejectFriendRequest(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	if err := c.server.friends.RejectFriendRequest(r.Context(), u.ID, chi.URLParam(r, "request-id")); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) removeFriend(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	if err := c.server.friends.RemoveFriend(r.Context(), u.ID, chi.URLParam(r, "friend-id")); err != nil {
		c.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (c controller) getFriends(w http.ResponseWriter, r *http.Request) {
	u := c.getUserFromCtx(r.Context())

	friendList, err := c.server.friends.GetFriends(r.Context(), u.ID)
	if err != nil {
		c.writeError(w, r, err)
		return
	}

	rest.WriteJSON(w, http.StatusOK, rest.Envelope{"data": friendList})
}

