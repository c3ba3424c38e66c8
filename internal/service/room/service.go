package room

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/internal/service/chat"
	"github.com/sharetube/watchparty/pkg/randstr"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrInvalidUser       = errors.New("invalid user")
	ErrInvalidVideo      = errors.New("invalid video")
	ErrInvalidVisibility = errors.New("invalid visibility")
	ErrInvalidRoomID     = errors.New("invalid room id")
	ErrRoomExists        = errors.New("room already exists")
)

const DefaultListingLimit = 20

type iTreeRepo interface {
	Set(ctx context.Context, path string, value any) error
	Update(ctx context.Context, path string, fields map[string]any) error
	Remove(ctx context.Context, path string) error
	Get(ctx context.Context, path string) (tree.Snapshot, error)
	Subscribe(ctx context.Context, path string, query tree.Query, cb tree.Listener) (func(), error)
}

type iChatService interface {
	SendSystemMessage(ctx context.Context, params *chat.SendSystemMessageParams) (chat.Message, error)
	RemoveChat(ctx context.Context, roomID string) error
}

type iGenerator interface {
	GenerateRandomString(length int) string
}

type service struct {
	repo         iTreeRepo
	chat         iChatService
	generator    iGenerator
	listingLimit int
	now          func() time.Time
	logger       *slog.Logger
}

func NewService(repo iTreeRepo, chatService iChatService, listingLimit int, logger *slog.Logger) *service {
	if listingLimit <= 0 {
		listingLimit = DefaultListingLimit
	}

	return &service{
		repo:         repo,
		chat:         chatService,
		generator:    randstr.New(randstr.Base36),
		listingLimit: listingLimit,
		now:          time.Now,
		logger:       logger,
	}
}

const roomsKey = "rooms"

func getRoomPath(roomID string) string {
	return roomsKey + "/" + roomID
}

func getUserPath(roomID, userID string) string {
	return roomsKey + "/" + roomID + "/users/" + userID
}

func getUsersPath(roomID string) string {
	return roomsKey + "/" + roomID + "/users"
}

func (s service) generateRoomID() string {
	return strconv.FormatInt(s.now().UnixMilli(), 36) + "-" + s.generator.GenerateRandomString(6)
}
