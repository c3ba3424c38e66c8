package omitnilpointers

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOmitNilPointers(t *testing.T) {
	playing := true
	var currentTime *float64
	videoID := "abc"

	got := OmitNilPointers(map[string]any{
		"isPlaying":   &playing,
		"currentTime": currentTime,
		"videoId":     &videoID,
		"lastUpdate":  int64(10),
		"nothing":     nil,
	})

	assert.Equal(t, map[string]any{
		"isPlaying":  true,
		"videoId":    "abc",
		"lastUpdate": int64(10),
	}, got)
}
