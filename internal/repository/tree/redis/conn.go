package redis

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository/tree"
)

type conn struct {
	repo *repo
	id   string

	mu        sync.Mutex
	closed    bool
	listeners map[uint64]struct{}
}

// Connect registers a heartbeating connection whose on-disconnect rules run
// on Close or, if the process dies, once its heartbeat expires.
func (r *repo) Connect(ctx context.Context) (tree.Conn, error) {
	c := &conn{
		repo:      r,
		id:        uuid.NewString(),
		listeners: make(map[uint64]struct{}),
	}

	err := r.rc.ZAdd(ctx, connectionsKey, redis.Z{
		Score:  float64(r.now().UnixMilli()),
		Member: c.id,
	}).Err()
	if err != nil {
		return nil, fmt.Errorf("failed to register connection: %w", err)
	}

	r.mu.Lock()
	r.conns[c.id] = c
	r.mu.Unlock()

	r.logger.DebugContext(ctx, "connected", "conn_id", c.id)
	return c, nil
}

func (c *conn) ID() string {
	return c.id
}

func (c *conn) split(path string) ([]string, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, tree.ErrClosed
	}

	return splitPath(path)
}

func splitPath(path string) ([]string, error) {
	segs, err := tree.Split(path)
	if err != nil {
		return nil, err
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("%w: root is not addressable", tree.ErrInvalidPath)
	}
	if strings.Contains(segs[0], ":") {
		return nil, fmt.Errorf("%w: collection %q contains ':'", tree.ErrInvalidPath, segs[0])
	}

	return segs, nil
}

func (c *conn) Set(ctx context.Context, path string, value any) error {
	c.repo.logger.DebugContext(ctx, "called", "path", path)
	segs, err := c.split(path)
	if err != nil {
		return err
	}

	normalized, err := tree.Normalize(value)
	if err != nil {
		return err
	}

	err = c.repo.commit(ctx, []tree.Change{{Segs: segs, Value: normalized}}, c.repo.now().UnixMilli())
	c.repo.logger.DebugContext(ctx, "returned", "error", err)
	return err
}

func (c *conn) Update(ctx context.Context, path string, fields map[string]any) error {
	c.repo.logger.DebugContext(ctx, "called", "path", path, "fields", fields)
	segs, err := c.split(path)
	if err != nil {
		return err
	}

	changes, err := tree.Changes(segs, fields)
	if err != nil {
		return err
	}

	err = c.repo.commit(ctx, changes, c.repo.now().UnixMilli())
	c.repo.logger.DebugContext(ctx, "returned", "error", err)
	return err
}

func (c *conn) Remove(ctx context.Context, path string) error {
	return c.Set(ctx, path, nil)
}

func (c *conn) Get(ctx context.Context, path string) (tree.Snapshot, error) {
	segs, err := c.split(path)
	if err != nil {
		return tree.Snapshot{}, err
	}

	value, err := c.repo.get(ctx, segs)
	if err != nil {
		return tree.Snapshot{}, err
	}

	return tree.NewSnapshot(tree.Join(segs...), value), nil
}

func (c *conn) Subscribe(ctx context.Context, path string, query tree.Query, cb tree.Listener) (func(), error) {
	c.repo.logger.DebugContext(ctx, "called", "path", path)
	segs, err := c.split(path)
	if err != nil {
		return nil, err
	}

	l := &listener{
		segs:  segs,
		path:  tree.Join(segs...),
		query: query,
		cb:    cb,
		queue: &tree.Serial{},
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, tree.ErrClosed
	}
	c.repo.addListener(l)
	c.listeners[l.id] = struct{}{}
	c.mu.Unlock()

	// registered before the first read so no change is missed
	c.repo.schedule(context.WithoutCancel(ctx), l)

	var once sync.Once
	return func() {
		once.Do(func() {
			c.repo.removeListener(l.id)
			c.mu.Lock()
			delete(c.listeners, l.id)
			c.mu.Unlock()
		})
	}, nil
}

func (c *conn) OnDisconnect(path string) tree.Disconnect {
	return &disconnect{conn: c, path: path}
}

// Close executes the connection's on-disconnect rules and unregisters it.
func (c *conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for id := range listeners {
		c.repo.removeListener(id)
	}

	c.repo.mu.Lock()
	delete(c.repo.conns, c.id)
	c.repo.mu.Unlock()

	removed, err := c.repo.rc.ZRem(ctx, connectionsKey, c.id).Result()
	if err != nil {
		return fmt.Errorf("failed to unregister connection: %w", err)
	}

	// the reaper already claimed this connection and runs its rules
	if removed == 0 {
		return nil
	}

	return c.repo.runRules(ctx, c.id)
}
