package tree

import (
	"encoding/json"
	"slices"
	"strings"

	"golang.org/x/exp/maps"
)

type Snapshot struct {
	path  string
	value any
}

func NewSnapshot(path string, value any) Snapshot {
	return Snapshot{path: path, value: value}
}

func (s Snapshot) Path() string {
	return s.path
}

// Key is the last path segment.
func (s Snapshot) Key() string {
	if i := strings.LastIndexByte(s.path, '/'); i >= 0 {
		return s.path[i+1:]
	}

	return s.path
}

func (s Snapshot) Exists() bool {
	return s.value != nil
}

// Value returns the raw value. Maps must not be modified.
func (s Snapshot) Value() any {
	return s.value
}

func (s Snapshot) Decode(v any) error {
	b, err := json.Marshal(s.value)
	if err != nil {
		return err
	}

	return json.Unmarshal(b, v)
}

// Keys returns the child keys in lexical order.
func (s Snapshot) Keys() []string {
	m, ok := s.value.(map[string]any)
	if !ok {
		return nil
	}

	keys := maps.Keys(m)
	slices.Sort(keys)
	return keys
}

func (s Snapshot) Child(key string) Snapshot {
	var child any
	if m, ok := s.value.(map[string]any); ok {
		child = m[key]
	}

	if s.path == "" {
		return Snapshot{path: key, value: child}
	}

	return Snapshot{path: s.path + "/" + key, value: child}
}
