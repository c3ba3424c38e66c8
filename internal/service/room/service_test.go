package room

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/sharetube/watchparty/internal/repository/tree/inmemory"
	"github.com/sharetube/watchparty/internal/service/chat"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	backend tree.Backend
	chat    interface {
		GetMessages(ctx context.Context, roomID string) ([]chat.Message, error)
	}
}

func newTestService(t *testing.T) (*service, fixture) {
	t.Helper()
	slog.SetLogLoggerLevel(slog.LevelDebug)

	backend := inmemory.NewRepo(slog.Default())
	conn, err := backend.Connect(context.Background())
	require.NoError(t, err)

	chatService := chat.NewService(conn, &chat.Config{}, slog.Default())
	return NewService(conn, chatService, 0, slog.Default()), fixture{backend: backend, chat: chatService}
}

func TestCreateRoom(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	resp, err := s.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "dQw4w9WgXcQ"})
	require.NoError(t, err)
	assert.Regexp(t, `^[0-9a-z]+-[0-9a-z]{6}$`, resp.RoomID)

	room, err := s.GetRoom(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.Equal(t, resp.RoomID, room.ID)
	assert.Equal(t, "host", room.HostID)
	assert.Equal(t, "dQw4w9WgXcQ", room.VideoID)
	assert.Equal(t, VisibilityPublic, room.Visibility, "visibility defaults to public")
	assert.False(t, room.IsPlaying)
	assert.Zero(t, room.CurrentTime)
	assert.NotZero(t, room.CreatedAt)
	assert.Equal(t, []string{"host"}, room.UserIDs())

	_, err = s.CreateRoom(ctx, &CreateRoomParams{VideoID: "v"})
	assert.ErrorIs(t, err, ErrInvalidUser)
	_, err = s.CreateRoom(ctx, &CreateRoomParams{HostID: "host"})
	assert.ErrorIs(t, err, ErrInvalidVideo)
	_, err = s.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "v", Visibility: "secret"})
	assert.ErrorIs(t, err, ErrInvalidVisibility)
}

func TestCreateRoomWithSuppliedID(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	resp, err := s.CreateRoom(ctx, &CreateRoomParams{RoomID: "movie-night", HostID: "host", VideoID: "v"})
	require.NoError(t, err)
	assert.Equal(t, "movie-night", resp.RoomID)

	room, err := s.GetRoom(ctx, "movie-night")
	require.NoError(t, err)
	assert.Equal(t, "host", room.HostID)

	_, err = s.CreateRoom(ctx, &CreateRoomParams{RoomID: "movie-night", HostID: "other", VideoID: "v"})
	assert.ErrorIs(t, err, ErrRoomExists)

	for _, id := range []string{"a/b", "/a", "a.b", "a#b", "a$b", "a[b]"} {
		_, err = s.CreateRoom(ctx, &CreateRoomParams{RoomID: id, HostID: "host", VideoID: "v"})
		assert.ErrorIs(t, err, ErrInvalidRoomID, id)
	}
}

func TestJoinRoomIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)

	resp, err := s.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "v"})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.JoinRoom(ctx, &JoinRoomParams{RoomID: resp.RoomID, UserID: "guest", UserName: "Guest"}))
	}

	room, err := s.GetRoom(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.Equal(t, []string{"guest", "host"}, room.UserIDs())

	msgs, err := f.chat.GetMessages(ctx, resp.RoomID)
	require.NoError(t, err)
	require.Len(t, msgs, 3, "one join notice per call, none for the unnamed host")
	assert.Equal(t, chat.TypeJoin, msgs[0].Type)
}

func TestLeaveRoomDeletesEmptyRoom(t *testing.T) {
	ctx := context.Background()
	s, f := newTestService(t)

	resp, err := s.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "v"})
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, &JoinRoomParams{RoomID: resp.RoomID, UserID: "guest", UserName: "Guest"}))

	left, err := s.LeaveRoom(ctx, &LeaveRoomParams{RoomID: resp.RoomID, UserID: "guest", UserName: "Guest"})
	require.NoError(t, err)
	assert.False(t, left.RoomDeleted)

	msgs, err := f.chat.GetMessages(ctx, resp.RoomID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, chat.TypeLeave, msgs[1].Type)

	left, err = s.LeaveRoom(ctx, &LeaveRoomParams{RoomID: resp.RoomID, UserID: "host"})
	require.NoError(t, err)
	assert.True(t, left.RoomDeleted)

	_, err = s.GetRoom(ctx, resp.RoomID)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	msgs, err = f.chat.GetMessages(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.Empty(t, msgs, "chat is deleted with the room")
}

// presenceCheckingChat records whether the leaving user was still in the
// room when their leave message was written.
type presenceCheckingChat struct {
	iChatService
	repo iTreeRepo

	mu           sync.Mutex
	stillPresent []bool
}

func (c *presenceCheckingChat) SendSystemMessage(ctx context.Context, params *chat.SendSystemMessageParams) (chat.Message, error) {
	if params.Type == chat.TypeLeave {
		snap, err := c.repo.Get(ctx, getUserPath(params.RoomID, params.UserID))
		if err != nil {
			return chat.Message{}, err
		}
		c.mu.Lock()
		c.stillPresent = append(c.stillPresent, snap.Exists())
		c.mu.Unlock()
	}
	return c.iChatService.SendSystemMessage(ctx, params)
}

func TestLeaveMessagePrecedesRemoval(t *testing.T) {
	ctx := context.Background()
	backend := inmemory.NewRepo(slog.Default())
	conn, err := backend.Connect(ctx)
	require.NoError(t, err)

	checking := &presenceCheckingChat{
		iChatService: chat.NewService(conn, &chat.Config{}, slog.Default()),
		repo:         conn,
	}
	s := NewService(conn, checking, 0, slog.Default())

	resp, err := s.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "v"})
	require.NoError(t, err)
	require.NoError(t, s.JoinRoom(ctx, &JoinRoomParams{RoomID: resp.RoomID, UserID: "guest"}))

	_, err = s.LeaveRoom(ctx, &LeaveRoomParams{RoomID: resp.RoomID, UserID: "guest", UserName: "Guest"})
	require.NoError(t, err)
	left, err := s.LeaveRoom(ctx, &LeaveRoomParams{RoomID: resp.RoomID, UserID: "host", UserName: "Host"})
	require.NoError(t, err)
	assert.True(t, left.RoomDeleted)

	checking.mu.Lock()
	defer checking.mu.Unlock()
	assert.Equal(t, []bool{true, true}, checking.stillPresent)
}

func TestSubscribeToRoomSeesDeletion(t *testing.T) {
	ctx := context.Background()
	host, f := newTestService(t)

	resp, err := host.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "v"})
	require.NoError(t, err)

	viewerConn, err := f.backend.Connect(ctx)
	require.NoError(t, err)
	viewer := NewService(viewerConn, chat.NewService(viewerConn, &chat.Config{}, slog.Default()), 0, slog.Default())

	var (
		mu    sync.Mutex
		rooms []*Room
	)
	unsubscribe, err := viewer.SubscribeToRoom(ctx, resp.RoomID, func(r *Room) {
		mu.Lock()
		defer mu.Unlock()
		rooms = append(rooms, r)
	})
	require.NoError(t, err)
	defer unsubscribe()

	_, err = host.LeaveRoom(ctx, &LeaveRoomParams{RoomID: resp.RoomID, UserID: "host"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(rooms) > 0 && rooms[len(rooms)-1] == nil
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, rooms[0])
	assert.Equal(t, "host", rooms[0].HostID)
}

func TestUpdatePlayback(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	resp, err := s.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "v", VideoURL: "https://cdn/v.mp4"})
	require.NoError(t, err)

	playing := true
	currentTime := 42.5
	require.NoError(t, s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomID: resp.RoomID, IsPlaying: &playing, CurrentTime: &currentTime}))

	room, err := s.GetRoom(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.True(t, room.IsPlaying)
	assert.Equal(t, 42.5, room.CurrentTime)
	assert.Equal(t, "v", room.VideoID, "unset fields are kept")
	assert.Equal(t, "https://cdn/v.mp4", room.VideoURL)

	videoID, videoURL := "next", ""
	require.NoError(t, s.UpdatePlayback(ctx, &UpdatePlaybackParams{RoomID: resp.RoomID, VideoID: &videoID, VideoURL: &videoURL}))

	room, err = s.GetRoom(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.Equal(t, "next", room.VideoID)
	assert.Empty(t, room.VideoURL, "empty url clears the stored one")
}

func TestSeriesStateAndAutoplay(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)

	resp, err := s.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "v"})
	require.NoError(t, err)

	require.NoError(t, s.UpdateSeriesState(ctx, resp.RoomID, &SeriesState{SeriesID: "s1", CurrentSeason: "1", CurrentEpisode: 2}))
	require.NoError(t, s.UpdateAutoplay(ctx, resp.RoomID, true))
	require.NoError(t, s.UpdateVisibility(ctx, resp.RoomID, VisibilityFriends))

	room, err := s.GetRoom(ctx, resp.RoomID)
	require.NoError(t, err)
	assert.Equal(t, &SeriesState{SeriesID: "s1", CurrentSeason: "1", CurrentEpisode: 2, AutoplayEnabled: true}, room.SeriesState)
	assert.Equal(t, VisibilityFriends, room.Visibility)

	assert.ErrorIs(t, s.UpdateVisibility(ctx, resp.RoomID, "nobody"), ErrInvalidVisibility)
}

func TestListRooms(t *testing.T) {
	ctx := context.Background()
	s, _ := newTestService(t)
	s.listingLimit = 2

	var ids []string
	for i := 1; i <= 3; i++ {
		s.now = func() time.Time { return time.UnixMilli(int64(i) * 1000) }
		resp, err := s.CreateRoom(ctx, &CreateRoomParams{HostID: "host", VideoID: "v"})
		require.NoError(t, err)
		ids = append(ids, resp.RoomID)
	}
	require.NoError(t, s.JoinRoom(ctx, &JoinRoomParams{RoomID: ids[2], UserID: "guest"}))

	rooms, err := s.ListRooms(ctx)
	require.NoError(t, err)
	require.Len(t, rooms, 2)
	assert.Equal(t, ids[2], rooms[0].ID, "newest first")
	assert.Equal(t, 2, rooms[0].ViewerCount)
	assert.Equal(t, ids[1], rooms[1].ID)

	var (
		mu   sync.Mutex
		last []LiveRoom
	)
	unsubscribe, err := s.SubscribeToRooms(ctx, func(rooms []LiveRoom) {
		mu.Lock()
		defer mu.Unlock()
		last = rooms
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(last) == 2 && last[0].ID == ids[2]
	}, time.Second, 5*time.Millisecond)
}
