package inmemory

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sharetube/watchparty/internal/repository/tree"
)

type listener struct {
	id     uint64
	segs   []string
	path   string
	query  tree.Query
	cb     tree.Listener
	queue  *tree.Serial
	last   any
}

type repo struct {
	mu        sync.Mutex
	root      any
	listeners map[uint64]*listener
	nextID    uint64
	now       func() time.Time
	logger    *slog.Logger
}

// NewRepo returns a single-process tree backend.
func NewRepo(logger *slog.Logger) *repo {
	return &repo{
		listeners: make(map[uint64]*listener),
		now:       time.Now,
		logger:    logger,
	}
}

func (r *repo) Connect(ctx context.Context) (tree.Conn, error) {
	r.logger.DebugContext(ctx, "called")

	return &conn{
		repo:         r,
		id:           uuid.NewString(),
		onDisconnect: make(map[string]rule),
		listeners:    make(map[uint64]struct{}),
	}, nil
}

// commit applies changes atomically and notifies affected listeners.
func (r *repo) commit(changes []tree.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UnixMilli()
	for _, c := range changes {
		r.root = tree.Assign(r.root, c.Segs, tree.Resolve(c.Value, now))
	}

	for _, l := range r.listeners {
		for _, c := range changes {
			if tree.Related(l.segs, c.Segs) {
				r.notifyLocked(l)
				break
			}
		}
	}
}

func (r *repo) notifyLocked(l *listener) {
	value := l.query.Apply(tree.Lookup(r.root, l.segs))
	if tree.Equal(value, l.last) {
		return
	}
	l.last = value

	snap := tree.NewSnapshot(l.path, value)
	l.queue.Push(func() { l.cb(snap) })
}

func (r *repo) get(segs []string) any {
	r.mu.Lock()
	defer r.mu.Unlock()

	return tree.Lookup(r.root, segs)
}

func (r *repo) subscribe(l *listener) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.nextID++
	l.id = r.nextID
	r.listeners[l.id] = l

	value := l.query.Apply(tree.Lookup(r.root, l.segs))
	l.last = value
	snap := tree.NewSnapshot(l.path, value)
	l.queue.Push(func() { l.cb(snap) })
}

func (r *repo) unsubscribe(id uint64) {
	r.mu.Lock()
	l, ok := r.listeners[id]
	delete(r.listeners, id)
	r.mu.Unlock()

	if ok {
		l.queue.Close()
	}
}
