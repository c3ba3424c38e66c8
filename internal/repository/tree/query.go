package tree

import (
	"cmp"
	"slices"
)

// Query narrows a collection subscription to the last LimitToLast children
// ordered by the OrderByChild field. The zero Query returns the value as is.
type Query struct {
	OrderByChild string
	LimitToLast  int
}

func (q Query) IsZero() bool {
	return q.OrderByChild == "" && q.LimitToLast <= 0
}

// Apply returns the children of value selected by q. Children missing the
// order field sort first, ties break on key.
func (q Query) Apply(value any) any {
	m, ok := value.(map[string]any)
	if !ok || q.LimitToLast <= 0 || len(m) <= q.LimitToLast {
		return value
	}

	keys := q.Order(m)
	keys = keys[len(keys)-q.LimitToLast:]

	out := make(map[string]any, len(keys))
	for _, k := range keys {
		out[k] = m[k]
	}

	return out
}

// Order returns the keys of m in query order.
func (q Query) Order(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	slices.SortFunc(keys, func(a, b string) int {
		if q.OrderByChild != "" {
			if c := compareValues(Lookup(m[a], []string{q.OrderByChild}), Lookup(m[b], []string{q.OrderByChild})); c != 0 {
				return c
			}
		}
		return cmp.Compare(a, b)
	})

	return keys
}

// null < false < true < numbers < strings < objects
func valueRank(v any) int {
	switch v := v.(type) {
	case nil:
		return 0
	case bool:
		if v {
			return 2
		}
		return 1
	case float64:
		return 3
	case string:
		return 4
	default:
		return 5
	}
}

func compareValues(a, b any) int {
	ra, rb := valueRank(a), valueRank(b)
	if ra != rb {
		return cmp.Compare(ra, rb)
	}

	switch a := a.(type) {
	case float64:
		return cmp.Compare(a, b.(float64))
	case string:
		return cmp.Compare(a, b.(string))
	}

	return 0
}
