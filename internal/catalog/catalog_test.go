package catalog

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testCatalog = `
contents:
  - id: show
    name: The Show
    type: series
    episodes:
      "1":
        - {episode: 1, name: Pilot, url: "https://cdn/show/1/1.mp4", id: s1e1}
        - {episode: 2, name: Second, url: "https://cdn/show/1/2.mp4", id: s1e2}
      "2":
        - {episode: 1, name: Return, url: "https://cdn/show/2/1.mp4", id: s2e1}
  - id: film
    name: A Film
    type: movie
    url: "https://cdn/film.mp4"
`

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte(testCatalog), 0o600))

	c, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2, c.Len())

	show, err := c.GetContent(context.Background(), "show")
	require.NoError(t, err)
	assert.Equal(t, TypeSeries, show.Type)
	require.Len(t, show.Episodes["1"], 2)
	assert.Equal(t, Episode{Episode: 2, Name: "Second", URL: "https://cdn/show/1/2.mp4", ID: "s1e2"}, show.Episodes["1"][1])

	_, err = c.GetContent(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrContentNotFound)
}

func TestLoadFileRejectsEntriesWithoutID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "catalog.yaml")
	require.NoError(t, os.WriteFile(path, []byte("contents:\n  - name: nameless\n"), 0o600))

	_, err := LoadFile(path)
	assert.Error(t, err)
}
