package session

import (
	"context"
	"math"
	"time"
)

func (s *Session) seekingLocked() bool {
	return s.now().Before(s.seekingUntil)
}

func (s *Session) guardSeekLocked() {
	s.seekingUntil = s.now().Add(s.cfg.SeekGuard)
}

// driftTargetLocked returns the position a guest must jump to when it drifted
// past the threshold. The local position is moved optimistically so one
// drift produces one seek.
func (s *Session) driftTargetLocked() (float64, bool) {
	if s.state != StateSynced || s.room == nil || s.isHost {
		return 0, false
	}

	if math.Abs(s.room.CurrentTime-s.localTime) <= s.cfg.DriftThreshold {
		return 0, false
	}

	s.localTime = s.room.CurrentTime
	return s.room.CurrentTime, true
}

// eventTargetLocked is the snapshot-driven check, skipped while a seek settles.
func (s *Session) eventTargetLocked() (float64, bool) {
	if s.seekingLocked() {
		return 0, false
	}

	return s.driftTargetLocked()
}

func (s *Session) runResync(ctx context.Context) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.ResyncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			target, correct := s.driftTargetLocked()
			s.mu.Unlock()

			if correct {
				s.seek(ctx, target, "resync")
			}
		}
	}
}

func (s *Session) seek(ctx context.Context, target float64, source string) {
	s.logger.DebugContext(ctx, "correcting drift", "target", target, "source", source)
	if err := s.player.SeekTo(ctx, target); err != nil {
		s.logger.InfoContext(ctx, "failed to seek player", "error", err)
	}
}
