package room

import (
	"context"
	"fmt"

	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/internal/service/chat"
)

type CreateRoomParams struct {
	// RoomID is generated when empty.
	RoomID      string
	HostID      string
	VideoID     string
	VideoURL    string
	Visibility  Visibility
	SeriesState *SeriesState
}

type CreateRoomResponse struct {
	RoomID string
}

func (s service) CreateRoom(ctx context.Context, params *CreateRoomParams) (CreateRoomResponse, error) {
	if params.HostID == "" {
		return CreateRoomResponse{}, ErrInvalidUser
	}
	if params.VideoID == "" && params.VideoURL == "" {
		return CreateRoomResponse{}, ErrInvalidVideo
	}

	visibility := params.Visibility
	if visibility == "" {
		visibility = VisibilityPublic
	}
	if !visibility.Valid() {
		return CreateRoomResponse{}, ErrInvalidVisibility
	}

	roomID, err := s.newRoomID(ctx, params.RoomID)
	if err != nil {
		return CreateRoomResponse{}, err
	}

	now := s.now().UnixMilli()
	room := Room{
		ID:          roomID,
		HostID:      params.HostID,
		VideoID:     params.VideoID,
		VideoURL:    params.VideoURL,
		IsPlaying:   false,
		CurrentTime: 0,
		LastUpdate:  now,
		Visibility:  visibility,
		SeriesState: params.SeriesState,
		Users: map[string]User{
			params.HostID: {UserID: params.HostID, JoinedAt: now},
		},
		CreatedAt: now,
	}

	if err := s.repo.Set(ctx, getRoomPath(room.ID), room); err != nil {
		s.logger.InfoContext(ctx, "failed to set room", "error", err)
		return CreateRoomResponse{}, fmt.Errorf("failed to create room: %w", err)
	}

	if err := s.JoinRoom(ctx, &JoinRoomParams{RoomID: room.ID, UserID: params.HostID}); err != nil {
		return CreateRoomResponse{}, err
	}

	return CreateRoomResponse{RoomID: room.ID}, nil
}

// newRoomID returns the generated id, or roomID when it is a free single
// path segment.
func (s service) newRoomID(ctx context.Context, roomID string) (string, error) {
	if roomID == "" {
		return s.generateRoomID(), nil
	}

	segs, err := tree.Split(roomID)
	if err != nil || len(segs) != 1 || segs[0] != roomID {
		return "", ErrInvalidRoomID
	}

	existing, err := s.repo.Get(ctx, getRoomPath(roomID))
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get room", "error", err)
		return "", fmt.Errorf("failed to check room id: %w", err)
	}
	if existing.Exists() {
		return "", ErrRoomExists
	}

	return roomID, nil
}

type JoinRoomParams struct {
	RoomID string
	UserID string
	// UserName, when set, announces the join in chat.
	UserName string
}

// JoinRoom adds the user to the room. Joining twice leaves a single entry.
func (s service) JoinRoom(ctx context.Context, params *JoinRoomParams) error {
	if params.UserID == "" {
		return ErrInvalidUser
	}

	user := User{UserID: params.UserID, JoinedAt: s.now().UnixMilli()}
	if err := s.repo.Set(ctx, getUserPath(params.RoomID, params.UserID), user); err != nil {
		s.logger.InfoContext(ctx, "failed to add user", "error", err)
		return fmt.Errorf("failed to join room: %w", err)
	}

	if params.UserName != "" {
		if _, err := s.chat.SendSystemMessage(ctx, &chat.SendSystemMessageParams{
			RoomID:   params.RoomID,
			UserID:   params.UserID,
			UserName: params.UserName,
			Type:     chat.TypeJoin,
		}); err != nil {
			s.logger.InfoContext(ctx, "failed to send join message", "error", err)
		}
	}

	return nil
}

type LeaveRoomParams struct {
	RoomID   string
	UserID   string
	UserName string
}

type LeaveRoomResponse struct {
	RoomDeleted bool
}

// LeaveRoom announces the leave, removes the user and deletes the room once
// nobody is left. Concurrent leaves and joins may race with the emptiness
// check.
func (s service) LeaveRoom(ctx context.Context, params *LeaveRoomParams) (LeaveRoomResponse, error) {
	if params.UserID == "" {
		return LeaveRoomResponse{}, ErrInvalidUser
	}

	if params.UserName != "" {
		if _, err := s.chat.SendSystemMessage(ctx, &chat.SendSystemMessageParams{
			RoomID:   params.RoomID,
			UserID:   params.UserID,
			UserName: params.UserName,
			Type:     chat.TypeLeave,
		}); err != nil {
			s.logger.InfoContext(ctx, "failed to send leave message", "error", err)
		}
	}

	if err := s.repo.Remove(ctx, getUserPath(params.RoomID, params.UserID)); err != nil {
		s.logger.InfoContext(ctx, "failed to remove user", "error", err)
		return LeaveRoomResponse{}, fmt.Errorf("failed to leave room: %w", err)
	}

	users, err := s.repo.Get(ctx, getUsersPath(params.RoomID))
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get users", "error", err)
		return LeaveRoomResponse{}, err
	}

	if !users.Exists() {
		if err := s.DeleteRoom(ctx, params.RoomID); err != nil {
			return LeaveRoomResponse{}, err
		}

		return LeaveRoomResponse{RoomDeleted: true}, nil
	}

	return LeaveRoomResponse{}, nil
}

// DeleteRoom removes the room record and its chat.
func (s service) DeleteRoom(ctx context.Context, roomID string) error {
	if err := s.repo.Remove(ctx, getRoomPath(roomID)); err != nil {
		s.logger.InfoContext(ctx, "failed to remove room", "error", err)
		return fmt.Errorf("failed to delete room: %w", err)
	}

	if err := s.chat.RemoveChat(ctx, roomID); err != nil {
		s.logger.InfoContext(ctx, "failed to remove chat", "error", err)
		return fmt.Errorf("failed to delete chat: %w", err)
	}

	return nil
}

func (s service) GetRoom(ctx context.Context, roomID string) (Room, error) {
	snap, err := s.repo.Get(ctx, getRoomPath(roomID))
	if err != nil {
		return Room{}, err
	}

	room, ok, err := decodeRoom(snap)
	if err != nil {
		return Room{}, err
	}
	if !ok {
		return Room{}, ErrRoomNotFound
	}

	return room, nil
}

// SubscribeToRoom calls cb with every room state. A nil room means it was
// deleted or never existed.
func (s service) SubscribeToRoom(ctx context.Context, roomID string, cb func(*Room)) (func(), error) {
	return s.repo.Subscribe(ctx, getRoomPath(roomID), tree.Query{}, func(snap tree.Snapshot) {
		room, ok, err := decodeRoom(snap)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to decode room", "room_id", roomID, "error", err)
			return
		}
		if !ok {
			cb(nil)
			return
		}

		cb(&room)
	})
}

func (s service) UpdateVisibility(ctx context.Context, roomID string, visibility Visibility) error {
	if !visibility.Valid() {
		return ErrInvalidVisibility
	}

	return s.repo.Update(ctx, getRoomPath(roomID), map[string]any{
		"visibility": visibility,
	})
}

func decodeRoom(snap tree.Snapshot) (Room, bool, error) {
	if !snap.Exists() {
		return Room{}, false, nil
	}

	var room Room
	if err := snap.Decode(&room); err != nil {
		return Room{}, false, err
	}
	room.ID = snap.Key()

	return room, true, nil
}
