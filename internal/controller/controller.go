package controller

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/sharetube/watchparty/internal/catalog"
	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/internal/service/chat"
	"github.com/sharetube/watchparty/internal/service/friends"
	"github.com/sharetube/watchparty/internal/service/presence"
	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/internal/session"
	"github.com/sharetube/watchparty/pkg/randstr"
	"github.com/sharetube/watchparty/pkg/validator"
	"github.com/sharetube/watchparty/pkg/wsrouter"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

type iTreeBackend interface {
	Connect(ctx context.Context) (tree.Conn, error)
}

type iRoomService interface {
	CreateRoom(ctx context.Context, params *room.CreateRoomParams) (room.CreateRoomResponse, error)
	GetRoom(ctx context.Context, roomID string) (room.Room, error)
	JoinRoom(ctx context.Context, params *room.JoinRoomParams) error
	LeaveRoom(ctx context.Context, params *room.LeaveRoomParams) (room.LeaveRoomResponse, error)
	SubscribeToRoom(ctx context.Context, roomID string, cb func(*room.Room)) (func(), error)
	UpdatePlayback(ctx context.Context, params *room.UpdatePlaybackParams) error
	UpdateAutoplay(ctx context.Context, roomID string, enabled bool) error
	UpdateVisibility(ctx context.Context, roomID string, visibility room.Visibility) error
	ListRooms(ctx context.Context) ([]room.LiveRoom, error)
	SubscribeToRooms(ctx context.Context, cb func([]room.LiveRoom)) (func(), error)
}

type iChatService interface {
	SendMessage(ctx context.Context, params *chat.SendMessageParams) (chat.Message, error)
	SubscribeToChat(ctx context.Context, roomID string, cb func([]chat.Message)) (func(), error)
	GetMessages(ctx context.Context, roomID string) ([]chat.Message, error)
}

type iPresenceService interface {
	UpdatePresence(ctx context.Context, params *presence.UpdatePresenceParams) error
	SetOfflineOnDisconnect(ctx context.Context, userID string) error
	CancelOfflineOnDisconnect(ctx context.Context, userID string) error
}

type iFriendsService interface {
	SendFriendRequest(ctx context.Context, params *friends.SendFriendRequestParams) (friends.Request, error)
	AcceptFriendRequest(ctx context.Context, params *friends.AcceptFriendRequestParams) error
	RejectFriendRequest(ctx context.Context, userID, requestID string) error
	RemoveFriend(ctx context.Context, userID, friendID string) error
	GetFriends(ctx context.Context, userID string) ([]friends.Friend, error)
	GetFriendIDs(ctx context.Context, userID string) ([]string, error)
	SubscribeToFriends(ctx context.Context, userID string, cb func([]friends.Friend)) (func(), error)
	SubscribeToFriendRequests(ctx context.Context, userID string, cb func([]friends.Request)) (func(), error)
}

type iCatalog interface {
	GetContent(ctx context.Context, id string) (catalog.Content, error)
}

type iVideoData interface {
	Get(ctx context.Context, videoID string) (*ytvideodata.VideoData, error)
}

// services is the set of domain services bound to one tree connection.
type services struct {
	rooms    iRoomService
	chat     iChatService
	presence iPresenceService
	friends  iFriendsService
}

type Config struct {
	Secret       string
	ListingLimit int
	// VideoLookup checks submitted YouTube ids against videos.
	VideoLookup  bool
	Chat         chat.Config
	Session      session.Config
}

type controller struct {
	backend   iTreeBackend
	server    services
	catalog   iCatalog
	videos    iVideoData
	cfg       Config
	upgrader  websocket.Upgrader
	validate  *validator.Validator
	generator *randstr.Generator
	logger    *slog.Logger

	roomRouter *wsrouter.WSRouter
	feedRouter *wsrouter.WSRouter
}

// NewController serves REST requests through serverConn and gives every
// websocket its own connection from backend.
func NewController(backend iTreeBackend, serverConn tree.Store, catalog iCatalog, videos iVideoData, cfg *Config, logger *slog.Logger) *controller {
	c := &controller{
		backend: backend,
		catalog: catalog,
		cfg:     *cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		validate:  validator.NewValidator(),
		generator: randstr.New(randstr.Base36),
		logger:    logger,
	}
	if cfg.VideoLookup {
		c.videos = videos
	}
	c.server = c.newServices(serverConn)
	c.roomRouter = c.getRoomWSRouter()
	c.feedRouter = c.getFeedWSRouter()

	return c
}

func (c controller) newServices(store tree.Store) services {
	chatService := chat.NewService(store, &c.cfg.Chat, c.logger)
	presenceService := presence.NewService(store, c.logger)

	return services{
		rooms:    room.NewService(store, chatService, c.cfg.ListingLimit, c.logger),
		chat:     chatService,
		presence: presenceService,
		friends:  friends.NewService(store, presenceService, c.logger),
	}
}
