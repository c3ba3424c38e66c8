package session

import "errors"

// User-visible failures.
var (
	ErrInvalidUser  = errors.New("invalid user")
	ErrInvalidVideo = errors.New("invalid video")
	ErrJoinFailed   = errors.New("join failed")
	ErrCreateFailed = errors.New("create failed")
)

var (
	ErrNotHost            = errors.New("only the host can do that")
	ErrNotSynced          = errors.New("session is not synced")
	ErrAlreadyJoined      = errors.New("session already joined")
	ErrNoSeries           = errors.New("room is not playing a series")
	ErrEpisodeNotFound    = errors.New("episode not found")
	ErrInvalidPlayerState = errors.New("invalid player state")
)
