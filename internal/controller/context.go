package controller

import (
	"context"

	"github.com/sharetube/watchparty/internal/session"
)

type contextKey int

const (
	userCtxKey contextKey = iota
	roomIDCtxKey
	sessionCtxKey
)

func (c controller) getUserFromCtx(ctx context.Context) user {
	u, ok := ctx.Value(userCtxKey).(user)
	if !ok {
		return user{}
	}

	return u
}

func (c controller) getRoomIDFromCtx(ctx context.Context) string {
	roomID, ok := ctx.Value(roomIDCtxKey).(string)
	if !ok {
		return ""
	}

	return roomID
}

func (c controller) getSessionFromCtx(ctx context.Context) *session.Session {
	s, ok := ctx.Value(sessionCtxKey).(*session.Session)
	if !ok {
		return nil
	}

	return s
}
