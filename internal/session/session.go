// Package session keeps one client's player in sync with a replicated room.
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/catalog"
	"github.com/sharetube/watchparty/internal/service/chat"
	"github.com/sharetube/watchparty/internal/service/presence"
	"github.com/sharetube/watchparty/internal/service/room"
)

type State int

const (
	StateIdle State = iota
	StateJoining
	StateSynced
	StateLeaving
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateJoining:
		return "joining"
	case StateSynced:
		return "synced"
	case StateLeaving:
		return "leaving"
	case StateClosed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Player is the local media player. SeekTo is the only command the session
// issues; play and pause follow the room state on the client.
type Player interface {
	SeekTo(ctx context.Context, seconds float64) error
}

// Observer receives state the client renders. Calls for one kind of update
// are never concurrent with each other.
type Observer interface {
	OnRoom(r *room.Room)
	OnChat(messages []chat.Message)
	// OnAutoplayCountdown reports the seconds left, or nil when no countdown runs.
	OnAutoplayCountdown(remaining *int)
}

type iRoomService interface {
	GetRoom(ctx context.Context, roomID string) (room.Room, error)
	JoinRoom(ctx context.Context, params *room.JoinRoomParams) error
	LeaveRoom(ctx context.Context, params *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	SubscribeToRoom(ctx context.Context, roomID string, cb func(*room.Room)) (func(), error)
	UpdatePlayback(ctx context.Context, params *room.UpdatePlaybackParams) error
	UpdateAutoplay(ctx context.Context, roomID string, enabled bool) error
	UpdateVisibility(ctx context.Context, roomID string, visibility room.Visibility) error
}

type iChatService interface {
	SendMessage(ctx context.Context, params *chat.SendMessageParams) (chat.Message, error)
	SubscribeToChat(ctx context.Context, roomID string, cb func([]chat.Message)) (func(), error)
}

type iPresenceService interface {
	UpdatePresence(ctx context.Context, params *presence.UpdatePresenceParams) error
	SetOfflineOnDisconnect(ctx context.Context, userID string) error
	CancelOfflineOnDisconnect(ctx context.Context, userID string) error
}

type iCatalog interface {
	GetContent(ctx context.Context, id string) (catalog.Content, error)
}

type Deps struct {
	Rooms    iRoomService
	Chat     iChatService
	Presence iPresenceService
	Catalog  iCatalog
}

type Config struct {
	// DriftThreshold is the tolerated gap, in seconds, between the local
	// position and the room position.
	DriftThreshold float64
	ResyncInterval time.Duration
	// SeekGuard suppresses drift correction and state rebroadcast after an
	// explicit seek.
	SeekGuard time.Duration
	// HostProgressInterval throttles how often a playing host publishes its
	// position. Zero disables publishing.
	HostProgressInterval time.Duration
	AutoplayCountdown    int
	AutoplayTick         time.Duration
}

func DefaultConfig() Config {
	return Config{
		DriftThreshold:       2,
		ResyncInterval:       5 * time.Second,
		SeekGuard:            500 * time.Millisecond,
		HostProgressInterval: time.Second,
		AutoplayCountdown:    10,
		AutoplayTick:         time.Second,
	}
}

type User struct {
	ID     string
	Name   string
	Avatar string
}

type Session struct {
	roomID   string
	user     User
	deps     Deps
	player   Player
	observer Observer
	cfg      Config
	now      func() time.Time
	logger   *slog.Logger

	autoplay *countdown

	mu               sync.Mutex
	state            State
	room             *room.Room
	isHost           bool
	localTime        float64
	localPlaying     bool
	seekingUntil     time.Time
	lastProgressPush time.Time
	// contentGen changes whenever the host switches content; a countdown
	// armed under an older value never fires.
	contentGen       uint64
	ready            chan struct{}
	unsubscribeRoom  func()
	unsubscribeChat  func()
	ctx              context.Context
	cancel           context.CancelFunc
	wg               sync.WaitGroup
}

func New(roomID string, user User, deps Deps, player Player, observer Observer, cfg Config, logger *slog.Logger) *Session {
	s := &Session{
		roomID:   roomID,
		user:     user,
		deps:     deps,
		player:   player,
		observer: observer,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("room_id", roomID, "user_id", user.ID),
		ready:    make(chan struct{}),
		ctx:      context.Background(),
		cancel:   func() {},
	}
	s.autoplay = newCountdown(cfg.AutoplayCountdown, cfg.AutoplayTick, observer.OnAutoplayCountdown)

	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) IsHost() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.isHost
}

// Room returns a copy of the last known room, or nil.
func (s *Session) Room() *room.Room {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.room == nil {
		return nil
	}
	r := *s.room
	return &r
}

func (s *Session) LocalTime() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.localTime
}

// Join enters the room and blocks until the first room snapshot arrives.
// On failure the session is closed.
func (s *Session) Join(ctx context.Context) error {
	if s.user.ID == "" {
		return ErrInvalidUser
	}

	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return ErrAlreadyJoined
	}
	s.state = StateJoining
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))
	s.mu.Unlock()

	if err := s.join(ctx); err != nil {
		s.logger.InfoContext(ctx, "failed to join", "error", err)
		if leaveErr := s.Leave(context.WithoutCancel(ctx)); leaveErr != nil {
			s.logger.InfoContext(ctx, "failed to clean up after join", "error", leaveErr)
		}
		return err
	}

	s.logger.InfoContext(ctx, "joined", "host", s.IsHost())
	return nil
}

func (s *Session) join(ctx context.Context) error {
	if s.roomID == "" {
		return fmt.Errorf("%w: %w", ErrJoinFailed, room.ErrRoomNotFound)
	}

	if _, err := s.deps.Rooms.GetRoom(ctx, s.roomID); err != nil {
		return fmt.Errorf("%w: %w", ErrJoinFailed, err)
	}

	if err := s.deps.Rooms.JoinRoom(ctx, &room.JoinRoomParams{
		RoomID:   s.roomID,
		UserID:   s.user.ID,
		UserName: s.user.Name,
	}); err != nil {
		return fmt.Errorf("%w: %w", ErrJoinFailed, err)
	}

	if err := s.deps.Presence.SetOfflineOnDisconnect(ctx, s.user.ID); err != nil {
		s.logger.InfoContext(ctx, "failed to register offline rule", "error", err)
	}
	if err := s.deps.Presence.UpdatePresence(ctx, &presence.UpdatePresenceParams{
		UserID:        s.user.ID,
		Status:        presence.StatusWatching,
		CurrentRoomID: s.roomID,
	}); err != nil {
		s.logger.InfoContext(ctx, "failed to update presence", "error", err)
	}

	unsubscribeRoom, err := s.deps.Rooms.SubscribeToRoom(s.ctx, s.roomID, s.handleRoom)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJoinFailed, err)
	}
	s.mu.Lock()
	s.unsubscribeRoom = unsubscribeRoom
	s.mu.Unlock()

	unsubscribeChat, err := s.deps.Chat.SubscribeToChat(s.ctx, s.roomID, s.handleChat)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrJoinFailed, err)
	}
	s.mu.Lock()
	s.unsubscribeChat = unsubscribeChat
	s.mu.Unlock()

	select {
	case <-s.ready:
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrJoinFailed, ctx.Err())
	}

	s.mu.Lock()
	missing := s.room == nil
	s.mu.Unlock()
	if missing {
		return fmt.Errorf("%w: %w", ErrJoinFailed, room.ErrRoomNotFound)
	}

	return nil
}

// Leave stops correction and autoplay, unsubscribes and leaves the room.
// It is safe to call more than once.
func (s *Session) Leave(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case StateIdle:
		s.state = StateClosed
		s.mu.Unlock()
		return nil
	case StateLeaving, StateClosed:
		s.mu.Unlock()
		return nil
	}
	s.state = StateLeaving
	cancel := s.cancel
	unsubscribeRoom, unsubscribeChat := s.unsubscribeRoom, s.unsubscribeChat
	s.mu.Unlock()

	cancel()
	s.wg.Wait()
	s.autoplay.Cancel()

	if unsubscribeRoom != nil {
		unsubscribeRoom()
	}
	if unsubscribeChat != nil {
		unsubscribeChat()
	}

	_, err := s.deps.Rooms.LeaveRoom(ctx, &room.LeaveRoomParams{
		RoomID:   s.roomID,
		UserID:   s.user.ID,
		UserName: s.user.Name,
	})

	// Leaving is a clean exit: the offline rule is only for a vanished client.
	if presenceErr := s.deps.Presence.CancelOfflineOnDisconnect(ctx, s.user.ID); presenceErr != nil {
		s.logger.InfoContext(ctx, "failed to cancel offline rule", "error", presenceErr)
	}
	if presenceErr := s.deps.Presence.UpdatePresence(ctx, &presence.UpdatePresenceParams{
		UserID: s.user.ID,
		Status: presence.StatusOnline,
	}); presenceErr != nil {
		s.logger.InfoContext(ctx, "failed to update presence", "error", presenceErr)
	}

	s.mu.Lock()
	s.state = StateClosed
	s.mu.Unlock()

	if err != nil {
		return fmt.Errorf("failed to leave room: %w", err)
	}

	s.logger.InfoContext(ctx, "left")
	return nil
}

func (s *Session) handleRoom(r *room.Room) {
	s.mu.Lock()
	if s.state != StateJoining && s.state != StateSynced {
		s.mu.Unlock()
		return
	}

	wasHost := s.isHost
	s.room = r
	s.isHost = r != nil && r.HostID == s.user.ID

	if s.state == StateJoining {
		close(s.ready)
		if r == nil {
			s.mu.Unlock()
			return
		}
		s.state = StateSynced
		s.wg.Add(1)
		go s.runResync(s.ctx)
	}

	stopAutoplay := (wasHost && !s.isHost) || r == nil || r.SeriesState == nil || !r.SeriesState.AutoplayEnabled
	target, correct := s.eventTargetLocked()
	ctx := s.ctx
	s.mu.Unlock()

	if stopAutoplay {
		s.autoplay.Cancel()
	}

	s.observer.OnRoom(r)

	if correct {
		s.seek(ctx, target, "snapshot")
	}
}

func (s *Session) handleChat(messages []chat.Message) {
	s.mu.Lock()
	active := s.state == StateJoining || s.state == StateSynced
	s.mu.Unlock()

	if active {
		s.observer.OnChat(messages)
	}
}

func (s *Session) SendMessage(ctx context.Context, text string) (chat.Message, error) {
	s.mu.Lock()
	synced := s.state == StateSynced
	s.mu.Unlock()
	if !synced {
		return chat.Message{}, ErrNotSynced
	}

	return s.deps.Chat.SendMessage(ctx, &chat.SendMessageParams{
		RoomID:   s.roomID,
		UserID:   s.user.ID,
		UserName: s.user.Name,
		Text:     text,
	})
}

// hostLocked reports why the session may not write room state, if it may not.
func (s *Session) hostLocked() error {
	if s.state != StateSynced {
		return ErrNotSynced
	}
	if s.room == nil {
		return room.ErrRoomNotFound
	}
	if !s.isHost {
		return ErrNotHost
	}
	return nil
}

func (s *Session) UpdateVisibility(ctx context.Context, visibility room.Visibility) error {
	s.mu.Lock()
	err := s.hostLocked()
	s.mu.Unlock()
	if err != nil {
		return err
	}

	return s.deps.Rooms.UpdateVisibility(ctx, s.roomID, visibility)
}
