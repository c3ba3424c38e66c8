package controller

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/service/chat"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/pkg/wsrouter"
)

const (
	closeJoinFailed    = 4004
	closeStoreFailure  = 4500
	closeWriteDeadline = 5 * time.Second
)

type Output struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

func (c controller) writeToConn(ctx context.Context, conn *wsrouter.Conn, output *Output) {
	if err := conn.WriteJSON(output); err != nil {
		c.logger.DebugContext(ctx, "failed to write to conn", "type", output.Type, "error", err)
	}
}

func (c controller) closeConn(ctx context.Context, conn *wsrouter.Conn, code int, text string) {
	msg := websocket.FormatCloseMessage(code, text)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteDeadline)); err != nil {
		c.logger.DebugContext(ctx, "failed to write close message", "error", err)
	}
}

// sessionOutput is the session's player and observer for one websocket: seeks
// and state changes become messages to the browser.
type sessionOutput struct {
	ctx    context.Context
	c      controller
	conn   *wsrouter.Conn
	roomID string
}

func (o sessionOutput) SeekTo(_ context.Context, seconds float64) error {
	return o.conn.WriteJSON(&Output{
		Type: "SEEK",
		Payload: map[string]any{
			"time": seconds,
		},
	})
}

func (o sessionOutput) OnRoom(r *room.Room) {
	if r == nil {
		o.c.writeToConn(o.ctx, o.conn, &Output{
			Type: "ROOM_DELETED",
			Payload: map[string]any{
				"room_id": o.roomID,
			},
		})
		return
	}

	o.c.writeToConn(o.ctx, o.conn, &Output{
		Type: "ROOM_UPDATED",
		Payload: map[string]any{
			"room_id": o.roomID,
			"room":    r,
		},
	})
}

func (o sessionOutput) OnChat(messages []chat.Message) {
	o.c.writeToConn(o.ctx, o.conn, &Output{
		Type: "CHAT_UPDATED",
		Payload: map[string]any{
			"messages": messages,
		},
	})
}

func (o sessionOutput) OnAutoplayCountdown(remaining *int) {
	o.c.writeToConn(o.ctx, o.conn, &Output{
		Type: "AUTOPLAY_COUNTDOWN",
		Payload: map[string]any{
			"remaining": remaining,
		},
	})
}

func (c controller) writeWSError(ctx context.Context, conn *wsrouter.Conn, err error) {
	status, message := toUserError(err)
	if status >= 500 {
		c.logger.ErrorContext(ctx, "websocket message failed", "error", err)
	} else {
		c.logger.InfoContext(ctx, "websocket message rejected", "error", err)
	}

	c.writeToConn(ctx, conn, &Output{
		Type: "ERROR",
		Payload: map[string]any{
			"message_type": wsrouter.GetMessageTypeFromCtx(ctx),
			"message":      message,
		},
	})
}

