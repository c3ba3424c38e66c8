package randstr

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGenerateRandomString(t *testing.T) {
	g := New(Base36)

	for _, length := range []int{0, 4, 6, 32} {
		s := g.GenerateRandomString(length)
		assert.Len(t, s, length)
		for _, r := range s {
			assert.True(t, strings.ContainsRune(Base36, r), "unexpected rune %q", r)
		}
	}
}
