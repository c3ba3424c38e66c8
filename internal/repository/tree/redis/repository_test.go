package redis

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository/tree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) (*repo, *redis.Client) {
	t.Helper()
	slog.SetLogLoggerLevel(slog.LevelDebug)

	s := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
	t.Cleanup(func() { rc.Close() })

	r, err := NewRepo(context.Background(), rc, &Config{
		HeartbeatInterval: time.Hour,
		ConnectionTTL:     time.Minute,
	}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { r.Close() })

	return r, rc
}

func connect(t *testing.T, r *repo) tree.Conn {
	t.Helper()
	c, err := r.Connect(context.Background())
	require.NoError(t, err)
	return c
}

type recorder struct {
	mu    sync.Mutex
	snaps []tree.Snapshot
}

func (r *recorder) listen(snap tree.Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.snaps = append(r.snaps, snap)
}

func (r *recorder) last() (tree.Snapshot, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return tree.Snapshot{}, false
	}
	return r.snaps[len(r.snaps)-1], true
}

func TestDocumentLayout(t *testing.T) {
	ctx := context.Background()
	r, rc := newTestRepo(t)
	c := connect(t, r)

	require.NoError(t, c.Set(ctx, "rooms/a", map[string]any{"hostId": "u1", "currentTime": 0}))
	require.NoError(t, c.Update(ctx, "rooms/a", map[string]any{"users/u1/userId": "u1", "isPlaying": true}))
	require.NoError(t, c.Set(ctx, "rooms/b/hostId", "u2"))

	raw, err := rc.Get(ctx, "tree:rooms:a").Result()
	require.NoError(t, err)
	assert.JSONEq(t, `{"hostId":"u1","currentTime":0,"isPlaying":true,"users":{"u1":{"userId":"u1"}}}`, raw)

	members, err := rc.SMembers(ctx, "tree-index:rooms").Result()
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b"}, members)

	snap, err := c.Get(ctx, "rooms")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, snap.Keys())

	snap, err = c.Get(ctx, "rooms/a/users/u1/userId")
	require.NoError(t, err)
	assert.Equal(t, "u1", snap.Value())

	require.NoError(t, c.Remove(ctx, "rooms/a/users/u1"))
	require.NoError(t, c.Remove(ctx, "rooms/a/hostId"))
	require.NoError(t, c.Update(ctx, "rooms/a", map[string]any{"currentTime": nil, "isPlaying": nil}))

	exists, err := rc.Exists(ctx, "tree:rooms:a").Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "empty documents are deleted")

	members, err = rc.SMembers(ctx, "tree-index:rooms").Result()
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, members)
}

func TestInvalidPaths(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	c := connect(t, r)

	assert.ErrorIs(t, c.Set(ctx, "", 1), tree.ErrInvalidPath)
	assert.ErrorIs(t, c.Set(ctx, "a:b/c", 1), tree.ErrInvalidPath)
	assert.ErrorIs(t, c.Set(ctx, "rooms", "scalar"), tree.ErrInvalidValue)
}

func TestSubscribeAcrossInstances(t *testing.T) {
	ctx := context.Background()
	s := miniredis.RunT(t)

	newRepo := func() *repo {
		rc := redis.NewClient(&redis.Options{Addr: s.Addr()})
		t.Cleanup(func() { rc.Close() })
		r, err := NewRepo(ctx, rc, &Config{HeartbeatInterval: time.Hour}, slog.Default())
		require.NoError(t, err)
		t.Cleanup(func() { r.Close() })
		return r
	}

	writer := connect(t, newRepo())
	reader := connect(t, newRepo())

	var rec recorder
	unsubscribe, err := reader.Subscribe(ctx, "rooms/a", tree.Query{}, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	require.Eventually(t, func() bool {
		snap, ok := rec.last()
		return ok && !snap.Exists()
	}, time.Second, 5*time.Millisecond, "initial snapshot of a missing room")

	require.NoError(t, writer.Set(ctx, "rooms/a/currentTime", 42))
	require.Eventually(t, func() bool {
		snap, ok := rec.last()
		return ok && snap.Exists()
	}, time.Second, 5*time.Millisecond)

	snap, _ := rec.last()
	var room struct {
		CurrentTime float64 `json:"currentTime"`
	}
	require.NoError(t, snap.Decode(&room))
	assert.Equal(t, float64(42), room.CurrentTime)

	require.NoError(t, writer.Remove(ctx, "rooms/a"))
	require.Eventually(t, func() bool {
		snap, _ := rec.last()
		return !snap.Exists()
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeCollectionQuery(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	c := connect(t, r)

	var rec recorder
	unsubscribe, err := c.Subscribe(ctx, "rooms", tree.Query{OrderByChild: "createdAt", LimitToLast: 2}, rec.listen)
	require.NoError(t, err)
	defer unsubscribe()

	for i, id := range []string{"a", "b", "c"} {
		require.NoError(t, c.Set(ctx, "rooms/"+id+"/createdAt", i))
	}

	require.Eventually(t, func() bool {
		snap, ok := rec.last()
		return ok && len(snap.Keys()) == 2 && snap.Keys()[0] == "b"
	}, time.Second, 5*time.Millisecond)

	snap, _ := rec.last()
	assert.Equal(t, []string{"b", "c"}, snap.Keys())
}

func TestCloseRunsOnDisconnectRules(t *testing.T) {
	ctx := context.Background()
	r, rc := newTestRepo(t)
	observer := connect(t, r)
	c := connect(t, r)

	require.NoError(t, c.Set(ctx, "presence/u1/status", "watching"))
	require.NoError(t, c.OnDisconnect("presence/u1").Set(ctx, map[string]any{"status": "offline", "lastSeen": tree.ServerTimestamp}))
	require.NoError(t, c.OnDisconnect("rooms/a/users/u1").Remove(ctx))

	require.NoError(t, c.Close(ctx))
	assert.ErrorIs(t, c.Set(ctx, "x/y", 1), tree.ErrClosed)

	snap, err := observer.Get(ctx, "presence/u1")
	require.NoError(t, err)
	var p struct {
		Status   string `json:"status"`
		LastSeen int64  `json:"lastSeen"`
	}
	require.NoError(t, snap.Decode(&p))
	assert.Equal(t, "offline", p.Status)
	assert.NotZero(t, p.LastSeen)

	exists, err := rc.Exists(ctx, getOnDisconnectKey(c.ID())).Result()
	require.NoError(t, err)
	assert.Zero(t, exists)

	_, err = rc.ZScore(ctx, connectionsKey, c.ID()).Result()
	assert.ErrorIs(t, err, redis.Nil)
}

func TestReapExpiredConnection(t *testing.T) {
	ctx := context.Background()
	r, _ := newTestRepo(t)
	observer := connect(t, r)
	crashed := connect(t, r)

	require.NoError(t, crashed.Set(ctx, "rooms/a/users/u1/userId", "u1"))
	require.NoError(t, crashed.OnDisconnect("rooms/a/users/u1").Remove(ctx))

	// stop heartbeating without closing, as if the process died
	r.mu.Lock()
	delete(r.conns, crashed.ID())
	r.mu.Unlock()

	require.NoError(t, r.heartbeat(ctx))
	future := time.Now().Add(2 * time.Minute)
	r.now = func() time.Time { return future }
	require.NoError(t, r.heartbeat(ctx))

	ids, err := r.reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{crashed.ID()}, ids, "only the silent connection is claimed")

	require.Eventually(t, func() bool {
		snap, err := observer.Get(ctx, "rooms/a")
		return err == nil && !snap.Exists()
	}, time.Second, 5*time.Millisecond)

	ids, err = r.reap(ctx)
	require.NoError(t, err)
	assert.Empty(t, ids, "a connection is reaped once")
}

func TestReapAfterScriptFlush(t *testing.T) {
	ctx := context.Background()
	r, rc := newTestRepo(t)
	crashed := connect(t, r)

	r.mu.Lock()
	delete(r.conns, crashed.ID())
	r.mu.Unlock()

	require.NoError(t, rc.ScriptFlush(ctx).Err())

	future := time.Now().Add(2 * time.Minute)
	r.now = func() time.Time { return future }

	ids, err := r.reap(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{crashed.ID()}, ids)
}
