package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/redis/go-redis/v9"
	"github.com/sharetube/watchparty/internal/repository/tree"
)

var ErrTooManyRetries = errors.New("too many transaction retries")

// Paths map onto documents: the first two segments name a JSON document
// stored under one key, deeper segments address inside it. A one-segment
// path addresses a whole collection through its index set.

type docRef struct {
	collection string
	id         string
}

func (d docRef) key() string {
	return getDocKey(d.collection, d.id)
}

func (r *repo) get(ctx context.Context, segs []string) (any, error) {
	switch len(segs) {
	case 0:
		return nil, fmt.Errorf("%w: root is not addressable", tree.ErrInvalidPath)
	case 1:
		return r.getCollection(ctx, segs[0])
	}

	doc, err := r.readDoc(ctx, r.rc, docRef{segs[0], segs[1]})
	if err != nil {
		return nil, err
	}

	return tree.Lookup(doc, segs[2:]), nil
}

func (r *repo) getCollection(ctx context.Context, collection string) (any, error) {
	ids, err := r.rc.SMembers(ctx, getIndexKey(collection)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	slices.Sort(ids)

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = getDocKey(collection, id)
	}

	raws, err := r.rc.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read documents: %w", err)
	}

	out := make(map[string]any, len(ids))
	for i, raw := range raws {
		s, ok := raw.(string)
		if !ok {
			continue
		}

		var doc any
		if err := json.Unmarshal([]byte(s), &doc); err != nil {
			return nil, fmt.Errorf("failed to decode document %s: %w", keys[i], err)
		}
		if doc != nil {
			out[ids[i]] = doc
		}
	}

	if len(out) == 0 {
		return nil, nil
	}

	return out, nil
}

func (r *repo) readDoc(ctx context.Context, c redis.Cmdable, ref docRef) (any, error) {
	raw, err := c.Get(ctx, ref.key()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}

	return doc, nil
}

// mutateDoc applies fn to a document under WATCH, retrying on conflicts.
func (r *repo) mutateDoc(ctx context.Context, ref docRef, fn func(doc any) any) error {
	key := ref.key()
	txf := func(tx *redis.Tx) error {
		doc, err := r.readDoc(ctx, tx, ref)
		if err != nil {
			return err
		}

		next := fn(doc)

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if next == nil {
				pipe.Del(ctx, key)
				pipe.SRem(ctx, getIndexKey(ref.collection), ref.id)
				return nil
			}

			b, err := json.Marshal(next)
			if err != nil {
				return err
			}
			pipe.Set(ctx, key, b, 0)
			pipe.SAdd(ctx, getIndexKey(ref.collection), ref.id)
			return nil
		})
		return err
	}

	for i := 0; i < r.cfg.MaxTxRetries; i++ {
		err := r.rc.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}

	return ErrTooManyRetries
}

// commit applies changes grouped per document and publishes one change
// notification per written path. Changes to a single document are atomic.
func (r *repo) commit(ctx context.Context, changes []tree.Change, nowMillis int64) error {
	type docChanges struct {
		ref     docRef
		changes []tree.Change
	}

	var (
		order  []docRef
		groups = make(map[docRef]*docChanges)
		paths  = make([]string, 0, len(changes))
	)

	for _, c := range changes {
		value := tree.Resolve(c.Value, nowMillis)

		switch len(c.Segs) {
		case 0:
			return fmt.Errorf("%w: root is not writable", tree.ErrInvalidPath)
		case 1:
			if err := r.replaceCollection(ctx, c.Segs[0], value); err != nil {
				return err
			}
			paths = append(paths, c.Segs[0])
			continue
		}

		ref := docRef{c.Segs[0], c.Segs[1]}
		g, ok := groups[ref]
		if !ok {
			g = &docChanges{ref: ref}
			groups[ref] = g
			order = append(order, ref)
		}
		g.changes = append(g.changes, tree.Change{Segs: c.Segs[2:], Value: value})
		paths = append(paths, tree.Join(c.Segs...))
	}

	for _, ref := range order {
		g := groups[ref]
		err := r.mutateDoc(ctx, ref, func(doc any) any {
			for _, c := range g.changes {
				doc = tree.Assign(doc, c.Segs, c.Value)
			}
			return doc
		})
		if err != nil {
			return fmt.Errorf("failed to write %s: %w", ref.key(), err)
		}
	}

	return r.publish(ctx, paths...)
}

// replaceCollection overwrites every document of a collection. It is not
// atomic across documents.
func (r *repo) replaceCollection(ctx context.Context, collection string, value any) error {
	ids, err := r.rc.SMembers(ctx, getIndexKey(collection)).Result()
	if err != nil {
		return fmt.Errorf("failed to read index: %w", err)
	}

	children, _ := value.(map[string]any)
	if value != nil && children == nil {
		return fmt.Errorf("%w: collection %s must hold an object", tree.ErrInvalidValue, collection)
	}

	for _, id := range ids {
		if _, keep := children[id]; keep {
			continue
		}
		if err := r.mutateDoc(ctx, docRef{collection, id}, func(any) any { return nil }); err != nil {
			return err
		}
	}

	for id, child := range children {
		if err := r.mutateDoc(ctx, docRef{collection, id}, func(any) any { return child }); err != nil {
			return err
		}
	}

	return nil
}
