package session

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/service/room"
)

type iRoomCreator interface {
	CreateRoom(ctx context.Context, params *room.CreateRoomParams) (room.CreateRoomResponse, error)
}

// CreateRoom creates a room and maps failures to user-visible errors.
func CreateRoom(ctx context.Context, rooms iRoomCreator, params *room.CreateRoomParams) (string, error) {
	resp, err := rooms.CreateRoom(ctx, params)
	switch {
	case errors.Is(err, room.ErrInvalidUser):
		return "", ErrInvalidUser
	case errors.Is(err, room.ErrInvalidVideo):
		return "", ErrInvalidVideo
	case err != nil:
		return "", fmt.Errorf("%w: %w", ErrCreateFailed, err)
	}

	return resp.RoomID, nil
}
