package session

import (
	"context"
	"strings"

	"github.com/sharetube/watchparty/internal/service/room"
)

type PlayerState string

const (
	PlayerPlaying   PlayerState = "playing"
	PlayerPaused    PlayerState = "paused"
	PlayerBuffering PlayerState = "buffering"
	PlayerEnded     PlayerState = "ended"
	PlayerUnstarted PlayerState = "unstarted"
)

func (p PlayerState) Valid() bool {
	switch p {
	case PlayerPlaying, PlayerPaused, PlayerBuffering, PlayerEnded, PlayerUnstarted:
		return true
	}
	return false
}

func (s *Session) Play(ctx context.Context) error {
	return s.setPlaying(ctx, true)
}

func (s *Session) Pause(ctx context.Context) error {
	return s.setPlaying(ctx, false)
}

func (s *Session) setPlaying(ctx context.Context, playing bool) error {
	s.mu.Lock()
	if err := s.hostLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	currentTime := s.localTime
	s.mu.Unlock()

	return s.deps.Rooms.UpdatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      s.roomID,
		IsPlaying:   &playing,
		CurrentTime: &currentTime,
	})
}

// SeekTo moves the local player. The host also publishes the new position;
// a guest's seek stays local until drift correction pulls it back.
func (s *Session) SeekTo(ctx context.Context, seconds float64) error {
	seconds = max(seconds, 0)

	s.mu.Lock()
	if s.state != StateSynced {
		s.mu.Unlock()
		return ErrNotSynced
	}
	publish := s.hostLocked() == nil
	s.guardSeekLocked()
	s.localTime = seconds
	s.mu.Unlock()

	if err := s.player.SeekTo(ctx, seconds); err != nil {
		s.logger.InfoContext(ctx, "failed to seek player", "error", err)
	}

	if !publish {
		return nil
	}

	return s.deps.Rooms.UpdatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      s.roomID,
		CurrentTime: &seconds,
	})
}

// SeekBy seeks relative to the local position, never before zero.
func (s *Session) SeekBy(ctx context.Context, delta float64) error {
	s.mu.Lock()
	target := s.localTime + delta
	s.mu.Unlock()

	return s.SeekTo(ctx, target)
}

// SubmitVideo switches the room to another video, paused at the start.
func (s *Session) SubmitVideo(ctx context.Context, videoID, videoURL string) error {
	videoID = strings.TrimSpace(videoID)
	videoURL = strings.TrimSpace(videoURL)
	if videoID == "" && videoURL == "" {
		return ErrInvalidVideo
	}

	s.mu.Lock()
	if err := s.hostLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.guardSeekLocked()
	s.localTime = 0
	s.contentGen++
	s.mu.Unlock()

	s.autoplay.Cancel()

	var (
		playing     = false
		currentTime = 0.0
	)
	if err := s.deps.Rooms.UpdatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      s.roomID,
		IsPlaying:   &playing,
		CurrentTime: &currentTime,
		VideoID:     &videoID,
		VideoURL:    &videoURL,
	}); err != nil {
		return err
	}

	if err := s.player.SeekTo(ctx, 0); err != nil {
		s.logger.InfoContext(ctx, "failed to seek player", "error", err)
	}

	return nil
}

// HandlePlayerState records a state change reported by the local player.
// The host publishes play and pause unless they were caused by its own seek,
// and arms autoplay when the video ends.
func (s *Session) HandlePlayerState(ctx context.Context, state PlayerState) error {
	if !state.Valid() {
		return ErrInvalidPlayerState
	}

	s.mu.Lock()
	s.localPlaying = state == PlayerPlaying
	if s.hostLocked() != nil {
		s.mu.Unlock()
		return nil
	}
	seeking := s.seekingLocked()
	currentTime := s.localTime
	s.mu.Unlock()

	switch state {
	case PlayerPlaying, PlayerPaused:
		if seeking {
			return nil
		}

		playing := state == PlayerPlaying
		return s.deps.Rooms.UpdatePlayback(ctx, &room.UpdatePlaybackParams{
			RoomID:      s.roomID,
			IsPlaying:   &playing,
			CurrentTime: &currentTime,
		})
	case PlayerEnded:
		s.armAutoplay(ctx)
	}

	return nil
}

// HandleProgress records the local position. A playing host republishes it
// at most once per HostProgressInterval so guests have a fresh target.
func (s *Session) HandleProgress(ctx context.Context, seconds float64) error {
	s.mu.Lock()
	s.localTime = seconds

	now := s.now()
	publish := s.cfg.HostProgressInterval > 0 &&
		s.hostLocked() == nil &&
		s.localPlaying &&
		!s.seekingLocked() &&
		now.Sub(s.lastProgressPush) >= s.cfg.HostProgressInterval
	if publish {
		s.lastProgressPush = now
	}
	s.mu.Unlock()

	if !publish {
		return nil
	}

	return s.deps.Rooms.UpdatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      s.roomID,
		CurrentTime: &seconds,
	})
}
