package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository/tree"
)

const (
	opSet    = "set"
	opRemove = "remove"
)

type rule struct {
	Op    string `json:"op"`
	Value any    `json:"value,omitempty"`
}

type disconnect struct {
	conn *conn
	path string
}

func (d *disconnect) register(ctx context.Context, r rule) error {
	segs, err := d.conn.split(d.path)
	if err != nil {
		return err
	}

	b, err := json.Marshal(r)
	if err != nil {
		return err
	}

	if err := d.conn.repo.rc.HSet(ctx, getOnDisconnectKey(d.conn.id), tree.Join(segs...), b).Err(); err != nil {
		return fmt.Errorf("failed to register on-disconnect rule: %w", err)
	}

	return nil
}

func (d *disconnect) Set(ctx context.Context, value any) error {
	normalized, err := tree.Normalize(value)
	if err != nil {
		return err
	}
	if normalized == nil {
		return d.register(ctx, rule{Op: opRemove})
	}

	return d.register(ctx, rule{Op: opSet, Value: normalized})
}

func (d *disconnect) Remove(ctx context.Context) error {
	return d.register(ctx, rule{Op: opRemove})
}

func (d *disconnect) Cancel(ctx context.Context) error {
	segs, err := splitPath(d.path)
	if err != nil {
		return err
	}

	return d.conn.repo.rc.HDel(ctx, getOnDisconnectKey(d.conn.id), tree.Join(segs...)).Err()
}

// runRules takes the connection's rules atomically and applies them.
func (r *repo) runRules(ctx context.Context, connID string) error {
	key := getOnDisconnectKey(connID)

	var hgetall *redis.MapStringStringCmd
	_, err := r.rc.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		hgetall = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to take on-disconnect rules: %w", err)
	}

	now := r.now().UnixMilli()
	changes := make([]tree.Change, 0, len(hgetall.Val()))
	for path, raw := range hgetall.Val() {
		var rl rule
		if err := json.Unmarshal([]byte(raw), &rl); err != nil {
			r.logger.ErrorContext(ctx, "skipping malformed on-disconnect rule", "conn_id", connID, "path", path, "error", err)
			continue
		}

		segs, err := splitPath(path)
		if err != nil {
			r.logger.ErrorContext(ctx, "skipping on-disconnect rule", "conn_id", connID, "path", path, "error", err)
			continue
		}

		change := tree.Change{Segs: segs}
		if rl.Op == opSet {
			change.Value = rl.Value
		}
		changes = append(changes, change)
	}

	if len(changes) == 0 {
		return nil
	}

	r.logger.InfoContext(ctx, "running on-disconnect rules", "conn_id", connID, "count", len(changes))
	return r.commit(ctx, changes, now)
}

func (r *repo) runHeartbeats(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := r.heartbeat(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "failed to send heartbeat", "error", err)
			}
		}
	}
}

func (r *repo) heartbeat(ctx context.Context) error {
	score := float64(r.now().UnixMilli())

	r.mu.RLock()
	members := make([]redis.Z, 0, len(r.conns))
	for id := range r.conns {
		members = append(members, redis.Z{Score: score, Member: id})
	}
	r.mu.RUnlock()

	if len(members) == 0 {
		return nil
	}

	// XX keeps connections that were already reaped from coming back
	return r.rc.ZAddXX(ctx, connectionsKey, members...).Err()
}

func (r *repo) runReaper(ctx context.Context) {
	defer r.wg.Done()

	ticker := time.NewTicker(r.cfg.ConnectionTTL / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := r.reap(ctx); err != nil && ctx.Err() == nil {
				r.logger.ErrorContext(ctx, "failed to reap connections", "error", err)
			}
		}
	}
}

// reap claims connections whose heartbeat expired and runs their rules on
// the worker pool. Claiming is atomic, so each connection is reaped once
// across instances.
func (r *repo) reap(ctx context.Context) ([]string, error) {
	cutoff := r.now().Add(-r.cfg.ConnectionTTL).UnixMilli()

	ids, err := r.claimScript.Run(ctx, r.rc, []string{connectionsKey}, strconv.FormatInt(cutoff, 10)).StringSlice()
	if err != nil {
		return nil, fmt.Errorf("failed to claim expired connections: %w", err)
	}

	for _, id := range ids {
		r.pool.Submit(func() {
			if err := r.runRules(ctx, id); err != nil {
				r.logger.ErrorContext(ctx, "failed to run on-disconnect rules", "conn_id", id, "error", err)
			}
		})
	}

	return ids, nil
}
