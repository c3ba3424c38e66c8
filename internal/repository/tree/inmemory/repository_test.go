package inmemory

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu    sync.Mutex
	snaps []tree.Snapshot
}

func (r *recorder) listen(snap tree.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

func (r *recorder) last() tree.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snaps[len(r.snaps)-1]
}

func connect(t *testing.T, r *repo) tree.Conn {
	t.Helper()
	c, err := r.Connect(context.Background())
	require.NoError(t, err)
	return c
}

func TestSetGetUpdateRemove(t *testing.T) {
	ctx := context.Background()
	c := connect(t, NewRepo(slog.Default()))

	require.NoError(t, c.Set(ctx, "rooms/a", map[string]any{"hostId": "u1", "isPlaying": false}))
	require.NoError(t, c.Update(ctx, "rooms/a", map[string]any{
		"isPlaying":            true,
		"users/u2/userId":      "u2",
		"seriesState/seriesId": "s1",
		"lastUpdate":           tree.ServerTimestamp,
		"nonexistent":          nil,
	}))

	snap, err := c.Get(ctx, "rooms/a")
	require.NoError(t, err)
	require.True(t, snap.Exists())

	var room map[string]any
	require.NoError(t, snap.Decode(&room))
	assert.Equal(t, true, room["isPlaying"])
	assert.Equal(t, "u1", room["hostId"])
	assert.Equal(t, map[string]any{"u2": map[string]any{"userId": "u2"}}, room["users"])
	assert.Greater(t, room["lastUpdate"], float64(0), "server timestamp resolved")

	require.NoError(t, c.Remove(ctx, "rooms/a"))
	snap, err = c.Get(ctx, "rooms/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists())

	snap, err = c.Get(ctx, "rooms")
	require.NoError(t, err)
	assert.False(t, snap.Exists(), "empty parents are pruned")
}

func TestSubscribeDeliversInitialAndChanges(t *testing.T) {
	ctx := context.Background()
	r := NewRepo(slog.Default())
	writer := connect(t, r)
	reader := connect(t, r)

	require.NoError(t, writer.Set(ctx, "rooms/a/currentTime", 1))

	var rec recorder
	unsubscribe, err := reader.Subscribe(ctx, "rooms/a", tree.Query{}, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	for i := 2; i <= 5; i++ {
		require.NoError(t, writer.Set(ctx, "rooms/a/currentTime", i))
	}
	require.NoError(t, writer.Set(ctx, "rooms/b/currentTime", 100))
	require.NoError(t, writer.Remove(ctx, "rooms/a"))

	require.Eventually(t, func() bool { return rec.len() == 6 }, time.Second, 5*time.Millisecond)
	rec.mu.Lock()
	for i, snap := range rec.snaps[:5] {
		var room struct {
			CurrentTime float64 `json:"currentTime"`
		}
		require.NoError(t, snap.Decode(&room))
		assert.Equal(t, float64(i+1), room.CurrentTime, "snapshots arrive in commit order")
	}
	rec.mu.Unlock()
	assert.False(t, rec.last().Exists(), "deletion is delivered as a missing value")
}

func TestSubscribeSkipsUnchangedValues(t *testing.T) {
	ctx := context.Background()
	r := NewRepo(slog.Default())
	c := connect(t, r)

	var rec recorder
	unsubscribe, err := c.Subscribe(ctx, "presence/u1", tree.Query{}, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	require.NoError(t, c.Set(ctx, "presence/u1/status", "online"))
	require.NoError(t, c.Set(ctx, "presence/u1/status", "online"))
	require.NoError(t, c.Set(ctx, "presence/u2/status", "online"))

	require.Eventually(t, func() bool { return rec.len() == 2 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 2, rec.len())
}

func TestSubscribeQuery(t *testing.T) {
	ctx := context.Background()
	c := connect(t, NewRepo(slog.Default()))

	for i, id := range []string{"m1", "m2", "m3", "m4"} {
		require.NoError(t, c.Set(ctx, "chats/a/messages/"+id, map[string]any{"timestamp": 10 - i}))
	}

	var rec recorder
	unsubscribe, err := c.Subscribe(ctx, "chats/a/messages", tree.Query{OrderByChild: "timestamp", LimitToLast: 2}, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"m1", "m2"}, rec.last().Keys())
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	ctx := context.Background()
	c := connect(t, NewRepo(slog.Default()))

	var rec recorder
	unsubscribe, err := c.Subscribe(ctx, "rooms", tree.Query{}, rec.listen)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return rec.len() == 1 }, time.Second, 5*time.Millisecond)

	unsubscribe()
	unsubscribe()
	require.NoError(t, c.Set(ctx, "rooms/a/hostId", "u1"))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, rec.len())
}

func TestOnDisconnect(t *testing.T) {
	ctx := context.Background()
	r := NewRepo(slog.Default())
	observer := connect(t, r)
	c := connect(t, r)

	require.NoError(t, c.Set(ctx, "presence/u1", map[string]any{"status": "watching"}))
	require.NoError(t, c.Set(ctx, "rooms/a/users/u1/userId", "u1"))
	require.NoError(t, c.OnDisconnect("presence/u1").Set(ctx, map[string]any{"status": "offline", "lastSeen": tree.ServerTimestamp}))
	require.NoError(t, c.OnDisconnect("rooms/a/users/u1").Remove(ctx))
	require.NoError(t, c.OnDisconnect("rooms/a/hostId").Remove(ctx))
	require.NoError(t, c.OnDisconnect("rooms/a/hostId").Cancel(ctx))

	require.NoError(t, c.Close(ctx))
	require.NoError(t, c.Close(ctx), "close is idempotent")
	assert.ErrorIs(t, c.Set(ctx, "x", 1), tree.ErrClosed)

	snap, err := observer.Get(ctx, "presence/u1")
	require.NoError(t, err)
	var p struct {
		Status   string `json:"status"`
		LastSeen int64  `json:"lastSeen"`
	}
	require.NoError(t, snap.Decode(&p))
	assert.Equal(t, "offline", p.Status)
	assert.NotZero(t, p.LastSeen)

	snap, err = observer.Get(ctx, "rooms/a")
	require.NoError(t, err)
	assert.False(t, snap.Exists())
}
