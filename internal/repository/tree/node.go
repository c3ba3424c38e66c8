package tree

import (
	"encoding/json"
	"fmt"
	"reflect"
)

const serverValueKey = ".sv"

type serverValue string

func (v serverValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]string{serverValueKey: string(v)})
}

// ServerTimestamp is replaced by the backend clock, in unix milliseconds,
// when the write is applied.
const ServerTimestamp serverValue = "timestamp"

// Normalize converts value into the generic JSON form the backends store:
// maps, slices, float64, string and bool. Nil children and empty maps are
// pruned, so a value that normalizes to nil means removal.
func Normalize(value any) (any, error) {
	if value == nil {
		return nil, nil
	}

	b, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidValue, err)
	}

	return prune(out), nil
}

func prune(v any) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	for k, child := range m {
		child = prune(child)
		if child == nil {
			delete(m, k)
			continue
		}
		m[k] = child
	}

	if len(m) == 0 {
		return nil
	}

	return m
}

// Resolve replaces server value placeholders in a normalized value.
func Resolve(v any, nowMillis int64) any {
	m, ok := v.(map[string]any)
	if !ok {
		return v
	}

	if len(m) == 1 {
		if sv, ok := m[serverValueKey].(string); ok && sv == string(ServerTimestamp) {
			return float64(nowMillis)
		}
	}

	out := make(map[string]any, len(m))
	for k, child := range m {
		out[k] = Resolve(child, nowMillis)
	}

	return out
}

// Lookup returns the value at segs below root or nil.
func Lookup(root any, segs []string) any {
	cur := root
	for _, seg := range segs {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = m[seg]
	}

	return cur
}

// Assign returns a new root with value placed at segs. Maps along the path are
// copied, never mutated, so previously returned values stay valid. Ancestors
// left empty are pruned.
func Assign(root any, segs []string, value any) any {
	if len(segs) == 0 {
		return value
	}

	m, _ := root.(map[string]any)
	next := make(map[string]any, len(m)+1)
	for k, v := range m {
		next[k] = v
	}

	child := Assign(next[segs[0]], segs[1:], value)
	if child == nil {
		delete(next, segs[0])
	} else {
		next[segs[0]] = child
	}

	if len(next) == 0 {
		return nil
	}

	return next
}

// Change is a single normalized write at an absolute path.
type Change struct {
	Segs  []string
	Value any
}

// Changes expands an update at base into absolute writes, one per field.
func Changes(base []string, fields map[string]any) ([]Change, error) {
	changes := make([]Change, 0, len(fields))
	for key, value := range fields {
		rel, err := Split(key)
		if err != nil {
			return nil, err
		}
		if len(rel) == 0 {
			return nil, fmt.Errorf("%w: empty update key", ErrInvalidPath)
		}

		normalized, err := Normalize(value)
		if err != nil {
			return nil, err
		}

		segs := make([]string, 0, len(base)+len(rel))
		segs = append(segs, base...)
		segs = append(segs, rel...)
		changes = append(changes, Change{Segs: segs, Value: normalized})
	}

	for i := range changes {
		for j := i + 1; j < len(changes); j++ {
			if Related(changes[i].Segs, changes[j].Segs) {
				return nil, fmt.Errorf("%w: overlapping update keys %q and %q",
					ErrInvalidPath, Join(changes[i].Segs...), Join(changes[j].Segs...))
			}
		}
	}

	return changes, nil
}

func Equal(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
