package room

import (
	"context"
	"fmt"

	omitnilpointers "github.com/sharetube/watchparty/pkg/omit-nil-pointers"
)

// UpdatePlaybackParams is a partial update: nil fields are left untouched.
// A VideoURL pointing at an empty string clears the stored url.
type UpdatePlaybackParams struct {
	RoomID      string
	IsPlaying   *bool
	CurrentTime *float64
	VideoID     *string
	VideoURL    *string
	SeriesState *SeriesState
}

// UpdatePlayback merges the given fields and stamps lastUpdate in one write.
func (s service) UpdatePlayback(ctx context.Context, params *UpdatePlaybackParams) error {
	fields := omitnilpointers.OmitNilPointers(map[string]any{
		"isPlaying":   params.IsPlaying,
		"currentTime": params.CurrentTime,
		"videoId":     params.VideoID,
		"videoUrl":    params.VideoURL,
		"seriesState": params.SeriesState,
	})
	if params.VideoURL != nil && *params.VideoURL == "" {
		fields["videoUrl"] = nil
	}
	fields["lastUpdate"] = s.now().UnixMilli()

	if err := s.repo.Update(ctx, getRoomPath(params.RoomID), fields); err != nil {
		s.logger.InfoContext(ctx, "failed to update playback", "error", err)
		return fmt.Errorf("failed to update playback: %w", err)
	}

	return nil
}

func (s service) UpdateSeriesState(ctx context.Context, roomID string, state *SeriesState) error {
	if err := s.repo.Update(ctx, getRoomPath(roomID), map[string]any{
		"seriesState": state,
		"lastUpdate":  s.now().UnixMilli(),
	}); err != nil {
		s.logger.InfoContext(ctx, "failed to update series state", "error", err)
		return fmt.Errorf("failed to update series state: %w", err)
	}

	return nil
}

func (s service) UpdateAutoplay(ctx context.Context, roomID string, enabled bool) error {
	if err := s.repo.Set(ctx, getRoomPath(roomID)+"/seriesState/autoplayEnabled", enabled); err != nil {
		s.logger.InfoContext(ctx, "failed to update autoplay", "error", err)
		return fmt.Errorf("failed to update autoplay: %w", err)
	}

	return nil
}
