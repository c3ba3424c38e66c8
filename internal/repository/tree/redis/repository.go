package redis

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gammazero/workerpool"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository/tree"
)

const (
	changesChannel     = "tree:changes"
	connectionsKey     = "tree:connections"
	docKeyPrefix       = "tree:"
	indexKeyPrefix     = "tree-index:"
	onDisconnectPrefix = "tree:on-disconnect:"
)

type Config struct {
	// HeartbeatInterval is how often live connections refresh their score.
	HeartbeatInterval time.Duration
	// ConnectionTTL is how long a connection may miss heartbeats before its
	// on-disconnect rules are executed by any instance.
	ConnectionTTL time.Duration
	ReaperWorkers int
	MaxTxRetries  int
}

func (c *Config) withDefaults() Config {
	cfg := *c
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.ConnectionTTL <= 0 {
		cfg.ConnectionTTL = 3 * cfg.HeartbeatInterval
	}
	if cfg.ReaperWorkers <= 0 {
		cfg.ReaperWorkers = 4
	}
	if cfg.MaxTxRetries <= 0 {
		cfg.MaxTxRetries = 16
	}
	return cfg
}

type listener struct {
	id      uint64
	segs    []string
	path    string
	query   tree.Query
	cb      tree.Listener
	queue   *tree.Serial
	mu      sync.Mutex
	pending bool
	sent    bool
	last    any
}

type repo struct {
	rc          *redis.Client
	pubsub      *redis.PubSub
	claimScript *redis.Script
	cfg         Config
	pool        *workerpool.WorkerPool
	now         func() time.Time
	logger      *slog.Logger

	mu        sync.RWMutex
	listeners map[uint64]*listener
	conns     map[string]*conn
	nextID    uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// claimScript removes and returns the connections whose heartbeat is older
// than ARGV[1]. Run falls back to EVAL when the script cache was flushed.
var claimScript = redis.NewScript(`
	local ids = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
	for _, id in ipairs(ids) do
		redis.call('ZREM', KEYS[1], id)
	end
	return ids
`)

// NewRepo subscribes to the change channel and starts the heartbeat and
// reaper loops. Close stops them.
func NewRepo(ctx context.Context, rc *redis.Client, cfg *Config, logger *slog.Logger) (*repo, error) {
	r := &repo{
		rc:          rc,
		claimScript: claimScript,
		cfg:         cfg.withDefaults(),
		now:         time.Now,
		logger:      logger,
		listeners:   make(map[uint64]*listener),
		conns:       make(map[string]*conn),
	}
	r.pool = workerpool.New(r.cfg.ReaperWorkers)

	r.pubsub = rc.Subscribe(ctx, changesChannel)
	if _, err := r.pubsub.Receive(ctx); err != nil {
		r.pubsub.Close()
		r.pool.Stop()
		return nil, fmt.Errorf("failed to subscribe to changes: %w", err)
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	r.cancel = cancel

	r.wg.Add(3)
	go r.serveChanges(loopCtx)
	go r.runHeartbeats(loopCtx)
	go r.runReaper(loopCtx)

	return r, nil
}

func (r *repo) Close() error {
	r.cancel()
	err := r.pubsub.Close()
	r.wg.Wait()
	r.pool.StopWait()
	return err
}

func getDocKey(collection, id string) string {
	return docKeyPrefix + collection + ":" + id
}

func getIndexKey(collection string) string {
	return indexKeyPrefix + collection
}

func getOnDisconnectKey(connID string) string {
	return onDisconnectPrefix + connID
}

func (r *repo) serveChanges(ctx context.Context) {
	defer r.wg.Done()

	for msg := range r.pubsub.Channel() {
		segs, err := tree.Split(msg.Payload)
		if err != nil {
			r.logger.WarnContext(ctx, "skipping malformed change", "payload", msg.Payload, "error", err)
			continue
		}

		r.mu.RLock()
		for _, l := range r.listeners {
			if tree.Related(l.segs, segs) {
				r.schedule(ctx, l)
			}
		}
		r.mu.RUnlock()
	}
}

// schedule queues a refresh for l unless one is already waiting. A refresh
// reads the latest value, so coalescing never loses a change.
func (r *repo) schedule(ctx context.Context, l *listener) {
	l.mu.Lock()
	if l.pending {
		l.mu.Unlock()
		return
	}
	l.pending = true
	l.mu.Unlock()

	l.queue.Push(func() { r.refresh(ctx, l) })
}

func (r *repo) refresh(ctx context.Context, l *listener) {
	l.mu.Lock()
	l.pending = false
	l.mu.Unlock()

	value, err := r.get(ctx, l.segs)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to refresh listener", "path", l.path, "error", err)
		return
	}
	value = l.query.Apply(value)

	l.mu.Lock()
	if l.sent && tree.Equal(value, l.last) {
		l.mu.Unlock()
		return
	}
	l.sent = true
	l.last = value
	l.mu.Unlock()

	l.cb(tree.NewSnapshot(l.path, value))
}

func (r *repo) addListener(l *listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	l.id = r.nextID
	r.listeners[l.id] = l
}

func (r *repo) removeListener(id uint64) {
	r.mu.Lock()
	l, ok := r.listeners[id]
	delete(r.listeners, id)
	r.mu.Unlock()

	if ok {
		l.queue.Close()
	}
}

func (r *repo) publish(ctx context.Context, paths ...string) error {
	for _, path := range paths {
		if err := r.rc.Publish(ctx, changesChannel, path).Err(); err != nil {
			return fmt.Errorf("failed to publish change: %w", err)
		}
	}

	return nil
}
