package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sharetube/watchparty/internal/service/room"
)

// countdown is a single-fire timer reporting every tick. Starting it while it
// runs does nothing. Reports are serialized with cancellation, so nothing is
// reported for a countdown after its cancel was reported.
type countdown struct {
	total  int
	tick   time.Duration
	report func(remaining *int)

	mu   sync.Mutex
	stop chan struct{}
}

func newCountdown(total int, tick time.Duration, report func(remaining *int)) *countdown {
	return &countdown{total: total, tick: tick, report: report}
}

func (c *countdown) Armed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stop != nil
}

// Start arms the countdown and calls expire once it runs out. It reports
// whether a new countdown was started.
func (c *countdown) Start(ctx context.Context, expire func()) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop != nil {
		return false
	}

	stop := make(chan struct{})
	c.stop = stop

	remaining := c.total
	c.report(&remaining)

	go c.run(ctx, stop, expire)
	return true
}

// Cancel disarms a running countdown and reports whether one was running.
func (c *countdown) Cancel() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.stop == nil {
		return false
	}

	close(c.stop)
	c.stop = nil
	c.report(nil)
	return true
}

func (c *countdown) run(ctx context.Context, stop chan struct{}, expire func()) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	remaining := c.total
	for {
		select {
		case <-ctx.Done():
			c.Cancel()
			return
		case <-stop:
			return
		case <-ticker.C:
			remaining--

			c.mu.Lock()
			if c.stop != stop {
				c.mu.Unlock()
				return
			}

			if remaining > 0 {
				r := remaining
				c.report(&r)
				c.mu.Unlock()
				continue
			}

			c.stop = nil
			c.report(nil)
			c.mu.Unlock()

			expire()
			return
		}
	}
}

// armAutoplay starts the countdown to the next episode when the host's
// series has autoplay on and a next episode exists.
func (s *Session) armAutoplay(ctx context.Context) {
	s.mu.Lock()
	if s.hostLocked() != nil || s.room.SeriesState == nil || !s.room.SeriesState.AutoplayEnabled {
		s.mu.Unlock()
		return
	}
	series := *s.room.SeriesState
	gen := s.contentGen
	sessionCtx := s.ctx
	s.mu.Unlock()

	if s.autoplay.Armed() {
		return
	}

	content, err := s.deps.Catalog.GetContent(ctx, series.SeriesID)
	if err != nil {
		s.logger.InfoContext(ctx, "failed to get series", "series_id", series.SeriesID, "error", err)
		return
	}

	next, ok := NextEpisode(content.Episodes, series.CurrentSeason, series.CurrentEpisode)
	if !ok {
		s.logger.DebugContext(ctx, "no next episode", "series_id", series.SeriesID)
		return
	}

	// Starting under s.mu orders it against a content switch: either the
	// switch cancels this countdown or the countdown is never started.
	s.mu.Lock()
	started := false
	if s.contentGen == gen {
		started = s.autoplay.Start(sessionCtx, func() {
			if err := s.autoplayEpisode(sessionCtx, series, gen, next); err != nil {
				s.logger.InfoContext(sessionCtx, "failed to autoplay next episode", "error", err)
			}
		})
	}
	s.mu.Unlock()
	if started {
		s.logger.DebugContext(ctx, "autoplay armed", "season", next.Season, "episode", next.Episode.Episode)
	}
}

// autoplayEpisode switches to next only while the room still shows the
// episode the countdown was armed for.
func (s *Session) autoplayEpisode(ctx context.Context, armed room.SeriesState, gen uint64, next EpisodeRef) error {
	s.mu.Lock()
	current := s.room
	stale := s.contentGen != gen || current == nil || current.SeriesState == nil ||
		current.SeriesState.SeriesID != armed.SeriesID ||
		current.SeriesState.CurrentSeason != armed.CurrentSeason ||
		current.SeriesState.CurrentEpisode != armed.CurrentEpisode
	s.mu.Unlock()

	if stale {
		s.logger.DebugContext(ctx, "autoplay skipped, content changed")
		return nil
	}

	return s.changeEpisode(ctx, next)
}

// CancelAutoplay clears a pending countdown.
func (s *Session) CancelAutoplay() {
	s.autoplay.Cancel()
}

// ChangeEpisode clears any countdown and switches the room to the episode.
func (s *Session) ChangeEpisode(ctx context.Context, season string, episode int) error {
	s.mu.Lock()
	if err := s.hostLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.room.SeriesState == nil {
		s.mu.Unlock()
		return ErrNoSeries
	}
	seriesID := s.room.SeriesState.SeriesID
	s.contentGen++
	s.mu.Unlock()

	s.autoplay.Cancel()

	content, err := s.deps.Catalog.GetContent(ctx, seriesID)
	if err != nil {
		return fmt.Errorf("failed to get series: %w", err)
	}

	for _, ep := range content.Episodes[season] {
		if ep.Episode == episode {
			return s.changeEpisode(ctx, EpisodeRef{Season: season, Episode: ep})
		}
	}

	return ErrEpisodeNotFound
}

func (s *Session) changeEpisode(ctx context.Context, ref EpisodeRef) error {
	s.mu.Lock()
	if err := s.hostLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.room.SeriesState == nil {
		s.mu.Unlock()
		return ErrNoSeries
	}
	series := *s.room.SeriesState
	s.guardSeekLocked()
	s.localTime = 0
	s.contentGen++
	s.mu.Unlock()

	series.CurrentSeason = ref.Season
	series.CurrentEpisode = ref.Episode.Episode

	var (
		playing     = true
		currentTime = 0.0
	)
	if err := s.deps.Rooms.UpdatePlayback(ctx, &room.UpdatePlaybackParams{
		RoomID:      s.roomID,
		IsPlaying:   &playing,
		CurrentTime: &currentTime,
		VideoID:     &ref.Episode.ID,
		VideoURL:    &ref.Episode.URL,
		SeriesState: &series,
	}); err != nil {
		return err
	}

	if err := s.player.SeekTo(ctx, 0); err != nil {
		s.logger.InfoContext(ctx, "failed to seek player", "error", err)
	}

	return nil
}

// ToggleAutoplay flips the room's autoplay flag. Turning it off clears a
// pending countdown.
func (s *Session) ToggleAutoplay(ctx context.Context) error {
	s.mu.Lock()
	if err := s.hostLocked(); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.room.SeriesState == nil {
		s.mu.Unlock()
		return ErrNoSeries
	}
	enabled := !s.room.SeriesState.AutoplayEnabled
	s.mu.Unlock()

	if err := s.deps.Rooms.UpdateAutoplay(ctx, s.roomID, enabled); err != nil {
		return err
	}

	if !enabled {
		s.autoplay.Cancel()
	}

	return nil
}
