package presence

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sharetube/watchparty/internal/repository/tree"
)

var (
	ErrInvalidUser   = errors.New("invalid user")
	ErrInvalidStatus = errors.New("invalid status")
)

type Status string

const (
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
	StatusWatching Status = "watching"
)

func (s Status) Valid() bool {
	switch s {
	case StatusOnline, StatusOffline, StatusWatching:
		return true
	}
	return false
}

// Rank orders statuses for friend lists: watching, online, then offline.
func (s Status) Rank() int {
	switch s {
	case StatusWatching:
		return 0
	case StatusOnline:
		return 1
	default:
		return 2
	}
}

type Presence struct {
	Status        Status `json:"status"`
	CurrentRoomID string `json:"currentRoomId,omitempty"`
	LastSeen      int64  `json:"lastSeen"`
}

type iTreeRepo interface {
	Set(ctx context.Context, path string, value any) error
	Get(ctx context.Context, path string) (tree.Snapshot, error)
	Subscribe(ctx context.Context, path string, query tree.Query, cb tree.Listener) (func(), error)
	OnDisconnect(path string) tree.Disconnect
}

type service struct {
	repo   iTreeRepo
	now    func() time.Time
	logger *slog.Logger
}

func NewService(repo iTreeRepo, logger *slog.Logger) *service {
	return &service{
		repo:   repo,
		now:    time.Now,
		logger: logger,
	}
}

const presenceKey = "presence"

func getPresencePath(userID string) string {
	return presenceKey + "/" + userID
}

type UpdatePresenceParams struct {
	UserID        string
	Status        Status
	CurrentRoomID string
}

func (s service) UpdatePresence(ctx context.Context, params *UpdatePresenceParams) error {
	if params.UserID == "" {
		return ErrInvalidUser
	}
	if !params.Status.Valid() {
		return ErrInvalidStatus
	}

	presence := Presence{
		Status:   params.Status,
		LastSeen: s.now().UnixMilli(),
	}
	if params.Status == StatusWatching {
		presence.CurrentRoomID = params.CurrentRoomID
	}

	if err := s.repo.Set(ctx, getPresencePath(params.UserID), presence); err != nil {
		s.logger.InfoContext(ctx, "failed to set presence", "error", err)
		return fmt.Errorf("failed to update presence: %w", err)
	}

	return nil
}

// SetOfflineOnDisconnect makes the store mark the user offline, stamped with
// server time, when this connection goes away.
func (s service) SetOfflineOnDisconnect(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUser
	}

	if err := s.repo.OnDisconnect(getPresencePath(userID)).Set(ctx, map[string]any{
		"status":   StatusOffline,
		"lastSeen": tree.ServerTimestamp,
	}); err != nil {
		s.logger.InfoContext(ctx, "failed to register offline rule", "error", err)
		return fmt.Errorf("failed to register offline rule: %w", err)
	}

	return nil
}

// CancelOfflineOnDisconnect drops the rule registered by SetOfflineOnDisconnect
// on this connection, for a clean exit.
func (s service) CancelOfflineOnDisconnect(ctx context.Context, userID string) error {
	if userID == "" {
		return ErrInvalidUser
	}

	if err := s.repo.OnDisconnect(getPresencePath(userID)).Cancel(ctx); err != nil {
		s.logger.InfoContext(ctx, "failed to cancel offline rule", "error", err)
		return fmt.Errorf("failed to cancel offline rule: %w", err)
	}

	return nil
}

// GetPresence returns the user's presence, offline when never seen.
func (s service) GetPresence(ctx context.Context, userID string) (Presence, error) {
	snap, err := s.repo.Get(ctx, getPresencePath(userID))
	if err != nil {
		return Presence{}, err
	}

	if !snap.Exists() {
		return Presence{Status: StatusOffline}, nil
	}

	var p Presence
	if err := snap.Decode(&p); err != nil {
		return Presence{}, err
	}

	return p, nil
}

func (s service) GetAllPresence(ctx context.Context) (map[string]Presence, error) {
	snap, err := s.repo.Get(ctx, presenceKey)
	if err != nil {
		return nil, err
	}

	return decodeAll(snap)
}

func decodeAll(snap tree.Snapshot) (map[string]Presence, error) {
	all := make(map[string]Presence)
	if !snap.Exists() {
		return all, nil
	}

	if err := snap.Decode(&all); err != nil {
		return nil, err
	}

	return all, nil
}

// SubscribeToPresence delivers the presence of every known user.
func (s service) SubscribeToPresence(ctx context.Context, cb func(map[string]Presence)) (func(), error) {
	return s.repo.Subscribe(ctx, presenceKey, tree.Query{}, func(snap tree.Snapshot) {
		all, err := decodeAll(snap)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to decode presence", "error", err)
			return
		}

		cb(all)
	})
}
