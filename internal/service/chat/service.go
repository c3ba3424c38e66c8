package chat

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/pkg/randstr"
)

var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrInvalidUser  = errors.New("invalid user")
	ErrInvalidRoom  = errors.New("invalid room")
)

const DefaultHistoryLimit = 100

type iTreeRepo interface {
	Set(ctx context.Context, path string, value any) error
	Remove(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (tree.Snapshot, error)
	Subscribe(ctx context.Context, path string, query tree.Query, cb tree.Listener) (func(), error)
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

// Locale holds the texts of system messages.
type Locale struct {
	Join  string `json:"join"`
	Leave string `json:"leave"`
}

var DefaultLocale = Locale{
	Join:  "joined the room",
	Leave: "left the room",
}

type Config struct {
	HistoryLimit int
	Locale       Locale
	// Sanitize rewrites user text before it is stored. Nil keeps text as is.
	Sanitize func(string) string
}

type service struct {
	repo      iTreeRepo
	generator iGenerator
	cfg       Config
	now       func() time.Time
	logger    *slog.Logger
}

func NewService(repo iTreeRepo, cfg *Config, logger *slog.Logger) *service {
	s := service{
		repo:      repo,
		generator: randstr.New(randstr.Base36),
		cfg:       *cfg,
		now:       time.Now,
		logger:    logger,
	}

	if s.cfg.HistoryLimit <= 0 {
		s.cfg.HistoryLimit = DefaultHistoryLimit
	}
	if s.cfg.Locale == (Locale{}) {
		s.cfg.Locale = DefaultLocale
	}

	return &s
}

func getMessagesPath(roomID string) string {
	return "chats/" + roomID + "/messages"
}

func getChatPath(roomID string) string {
	return "chats/" + roomID
}

func (s service) generateMessageID() string {
	return strconv.FormatInt(s.now().UnixMilli(), 36) + "-" + s.generator.GenerateRandomString(4)
}

type SendMessageParams struct {
	RoomID   string
	UserID   string
	UserName string
	Text     string
}

func (s service) SendMessage(ctx context.Context, params *SendMessageParams) (Message, error) {
	if params.RoomID == "" {
		return Message{}, ErrInvalidRoom
	}
	if params.UserID == "" {
		return Message{}, ErrInvalidUser
	}

	text := strings.TrimSpace(params.Text)
	if s.cfg.Sanitize != nil {
		text = s.cfg.Sanitize(text)
	}
	if text == "" {
		return Message{}, ErrEmptyMessage
	}

	return s.write(ctx, Message{
		RoomID:   params.RoomID,
		UserID:   params.UserID,
		UserName: params.UserName,
		Text:     text,
		Type:     TypeMessage,
	})
}

type SendSystemMessageParams struct {
	RoomID   string
	UserID   string
	UserName string
	Type     Type
}

// SendSystemMessage posts a join or leave notice using the configured locale.
func (s service) SendSystemMessage(ctx context.Context, params *SendSystemMessageParams) (Message, error) {
	if params.RoomID == "" {
		return Message{}, ErrInvalidRoom
	}

	var text string
	switch params.Type {
	case TypeJoin:
		text = s.cfg.Locale.Join
	case TypeLeave:
		text = s.cfg.Locale.Leave
	default:
		return Message{}, ErrInvalidType
	}

	return s.write(ctx, Message{
		RoomID:   params.RoomID,
		UserID:   params.UserID,
		UserName: params.UserName,
		Text:     text,
		Type:     params.Type,
	})
}

func (s service) write(ctx context.Context, msg Message) (Message, error) {
	msg.ID = s.generateMessageID()
	msg.Timestamp = s.now().UnixMilli()

	if err := s.repo.Set(ctx, getMessagesPath(msg.RoomID)+"/"+msg.ID, msg); err != nil {
		s.logger.InfoContext(ctx, "failed to write message", "error", err)
		return Message{}, err
	}

	return msg, nil
}

// SubscribeToChat delivers the last messages of a room ordered oldest first.
func (s service) SubscribeToChat(ctx context.Context, roomID string, cb func([]Message)) (func(), error) {
	query := tree.Query{OrderByChild: "timestamp", LimitToLast: s.cfg.HistoryLimit}

	return s.repo.Subscribe(ctx, getMessagesPath(roomID), query, func(snap tree.Snapshot) {
		messages, err := decodeMessages(snap)
		if err != nil {
			s.logger.ErrorContext(ctx, "failed to decode messages", "room_id", roomID, "error", err)
			return
		}

		cb(messages)
	})
}

func (s service) GetMessages(ctx context.Context, roomID string) ([]Message, error) {
	snap, err := s.repo.Get(ctx, getMessagesPath(roomID))
	if err != nil {
		return nil, err
	}

	messages, err := decodeMessages(snap)
	if err != nil {
		return nil, err
	}

	if len(messages) > s.cfg.HistoryLimit {
		messages = messages[len(messages)-s.cfg.HistoryLimit:]
	}

	return messages, nil
}

func (s service) RemoveChat(ctx context.Context, roomID string) error {
	return s.repo.Remove(ctx, getChatPath(roomID))
}
