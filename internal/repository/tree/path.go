package tree

import (
	"fmt"
	"strings"
)

const forbiddenChars = ".#$[]"

// Split validates path and returns its segments. The empty path is the root.
func Split(path string) ([]string, error) {
	path = strings.Trim(path, "/")
	if path == "" {
		return []string{}, nil
	}

	segs := strings.Split(path, "/")
	for _, seg := range segs {
		if seg == "" {
			return nil, fmt.Errorf("%w: empty segment in %q", ErrInvalidPath, path)
		}
		if strings.ContainsAny(seg, forbiddenChars) {
			return nil, fmt.Errorf("%w: %q contains one of %q", ErrInvalidPath, seg, forbiddenChars)
		}
	}

	return segs, nil
}

func Join(segs ...string) string {
	return strings.Join(segs, "/")
}

// Related reports whether one path is an ancestor of, or equal to, the other.
func Related(a, b []string) bool {
	n := min(len(a), len(b))
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			return false
		}
	}

	return true
}
