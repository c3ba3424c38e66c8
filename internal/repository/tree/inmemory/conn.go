package inmemory

import (
	"context"
	"sync"

	"github.com/sharetube/watchparty/internal/repository/tree"
)

// rule is a pending on-disconnect write. A nil value removes the path.
type rule struct {
	segs  []string
	value any
}

type conn struct {
	repo *repo
	id   string

	mu           sync.Mutex
	closed       bool
	onDisconnect map[string]rule
	listeners    map[uint64]struct{}
}

func (c *conn) ID() string {
	return c.id
}

func (c *conn) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return tree.ErrClosed
	}

	return nil
}

func (c *conn) Set(ctx context.Context, path string, value any) error {
	c.repo.logger.DebugContext(ctx, "called", "path", path)
	if err := c.checkOpen(); err != nil {
		return err
	}

	segs, err := tree.Split(path)
	if err != nil {
		return err
	}

	normalized, err := tree.Normalize(value)
	if err != nil {
		return err
	}

	c.repo.commit([]tree.Change{{Segs: segs, Value: normalized}})
	return nil
}

func (c *conn) Update(ctx context.Context, path string, fields map[string]any) error {
	c.repo.logger.DebugContext(ctx, "called", "path", path, "fields", fields)
	if err := c.checkOpen(); err != nil {
		return err
	}

	segs, err := tree.Split(path)
	if err != nil {
		return err
	}

	changes, err := tree.Changes(segs, fields)
	if err != nil {
		return err
	}

	c.repo.commit(changes)
	return nil
}

func (c *conn) Remove(ctx context.Context, path string) error {
	return c.Set(ctx, path, nil)
}

func (c *conn) Get(ctx context.Context, path string) (tree.Snapshot, error) {
	if err := c.checkOpen(); err != nil {
		return tree.Snapshot{}, err
	}

	segs, err := tree.Split(path)
	if err != nil {
		return tree.Snapshot{}, err
	}

	return tree.NewSnapshot(tree.Join(segs...), c.repo.get(segs)), nil
}

func (c *conn) Subscribe(ctx context.Context, path string, query tree.Query, cb tree.Listener) (func(), error) {
	c.repo.logger.DebugContext(ctx, "called", "path", path)
	segs, err := tree.Split(path)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil, tree.ErrClosed
	}

	l := &listener{
		segs:   segs,
		path:   tree.Join(segs...),
		query:  query,
		cb:     cb,
		queue:  &tree.Serial{},
	}
	c.repo.subscribe(l)
	c.listeners[l.id] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			c.repo.unsubscribe(l.id)
			c.mu.Lock()
			delete(c.listeners, l.id)
			c.mu.Unlock()
		})
	}, nil
}

func (c *conn) OnDisconnect(path string) tree.Disconnect {
	return &disconnect{conn: c, path: path}
}

// Close runs the registered on-disconnect rules and drops all listeners.
func (c *conn) Close(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	rules := c.onDisconnect
	c.onDisconnect = nil
	listeners := c.listeners
	c.listeners = nil
	c.mu.Unlock()

	for id := range listeners {
		c.repo.unsubscribe(id)
	}

	changes := make([]tree.Change, 0, len(rules))
	for _, r := range rules {
		changes = append(changes, tree.Change{Segs: r.segs, Value: r.value})
	}
	c.repo.commit(changes)

	c.repo.logger.DebugContext(ctx, "connection closed", "conn_id", c.id, "rules", len(rules))
	return nil
}

type disconnect struct {
	conn *conn
	path string
}

func (d *disconnect) register(value any) error {
	segs, err := tree.Split(d.path)
	if err != nil {
		return err
	}

	normalized, err := tree.Normalize(value)
	if err != nil {
		return err
	}

	d.conn.mu.Lock()
	defer d.conn.mu.Unlock()
	if d.conn.closed {
		return tree.ErrClosed
	}

	d.conn.onDisconnect[tree.Join(segs...)] = rule{segs: segs, value: normalized}
	return nil
}

func (d *disconnect) Set(ctx context.Context, value any) error {
	return d.register(value)
}

func (d *disconnect) Remove(ctx context.Context) error {
	return d.register(nil)
}

func (d *disconnect) Cancel(ctx context.Context) error {
	segs, err := tree.Split(d.path)
	if err != nil {
		return err
	}

	d.conn.mu.Lock()
	defer d.conn.mu.Unlock()
	delete(d.conn.onDisconnect, tree.Join(segs...))
	return nil
}
