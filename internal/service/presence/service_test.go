package presence

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sharetube/watchparty/internal/repository/tree/inmemory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatePresence(t *testing.T) {
	ctx := context.Background()
	conn, err := inmemory.NewRepo(slog.Default()).Connect(ctx)
	require.NoError(t, err)
	s := NewService(conn, slog.Default())

	p, err := s.GetPresence(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOffline, p.Status, "unknown users are offline")

	require.NoError(t, s.UpdatePresence(ctx, &UpdatePresenceParams{UserID: "u1", Status: StatusWatching, CurrentRoomID: "r1"}))
	p, err = s.GetPresence(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusWatching, p.Status)
	assert.Equal(t, "r1", p.CurrentRoomID)

	require.NoError(t, s.UpdatePresence(ctx, &UpdatePresenceParams{UserID: "u1", Status: StatusOnline, CurrentRoomID: "r1"}))
	p, err = s.GetPresence(ctx, "u1")
	require.NoError(t, err)
	assert.Empty(t, p.CurrentRoomID, "room is only kept while watching")

	assert.ErrorIs(t, s.UpdatePresence(ctx, &UpdatePresenceParams{Status: StatusOnline}), ErrInvalidUser)
	assert.ErrorIs(t, s.UpdatePresence(ctx, &UpdatePresenceParams{UserID: "u1", Status: "away"}), ErrInvalidStatus)
}

func TestSetOfflineOnDisconnect(t *testing.T) {
	ctx := context.Background()
	backend := inmemory.NewRepo(slog.Default())

	observerConn, err := backend.Connect(ctx)
	require.NoError(t, err)
	observer := NewService(observerConn, slog.Default())

	userConn, err := backend.Connect(ctx)
	require.NoError(t, err)
	user := NewService(userConn, slog.Default())

	var (
		mu   sync.Mutex
		seen []map[string]Presence
	)
	unsubscribe, err := observer.SubscribeToPresence(ctx, func(all map[string]Presence) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, all)
	})
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, user.UpdatePresence(ctx, &UpdatePresenceParams{UserID: "u1", Status: StatusOnline}))
	require.NoError(t, user.SetOfflineOnDisconnect(ctx, "u1"))
	require.NoError(t, userConn.Close(ctx))

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		if len(seen) == 0 {
			return false
		}
		last := seen[len(seen)-1]
		return last["u1"].Status == StatusOffline
	}, time.Second, 5*time.Millisecond)

	p, err := observer.GetPresence(ctx, "u1")
	require.NoError(t, err)
	assert.NotZero(t, p.LastSeen)
}

func TestCancelOfflineOnDisconnect(t *testing.T) {
	ctx := context.Background()
	backend := inmemory.NewRepo(slog.Default())

	observerConn, err := backend.Connect(ctx)
	require.NoError(t, err)
	observer := NewService(observerConn, slog.Default())

	userConn, err := backend.Connect(ctx)
	require.NoError(t, err)
	user := NewService(userConn, slog.Default())

	require.NoError(t, user.SetOfflineOnDisconnect(ctx, "u1"))
	require.NoError(t, user.UpdatePresence(ctx, &UpdatePresenceParams{UserID: "u1", Status: StatusOnline}))
	require.NoError(t, user.CancelOfflineOnDisconnect(ctx, "u1"))
	require.NoError(t, userConn.Close(ctx))

	p, err := observer.GetPresence(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, StatusOnline, p.Status)

	assert.ErrorIs(t, user.CancelOfflineOnDisconnect(ctx, ""), ErrInvalidUser)
}

func TestStatusRank(t *testing.T) {
	assert.Less(t, StatusWatching.Rank(), StatusOnline.Rank())
	assert.Less(t, StatusOnline.Rank(), StatusOffline.Rank())
	assert.Equal(t, StatusOffline.Rank(), Status("").Rank())
}
