package controller

import (
	"context"
	"errors"
	"fmt"

	"github.com/sharetube/watchparty/internal/service/room"
	"github.com/sharetube/watchparty/internal/session"
	"github.com/sharetube/watchparty/pkg/wsrouter"
	"github.com/sharetube/watchparty/pkg/ytvideodata"
)

const upcomingEpisodesLimit = 5

type EmptyInput struct{}

func (c controller) validateInput(input any) error {
	if validationErrors, ok := c.validate.Validate(input); !ok {
		return fmt.Errorf("%w: %v", ErrValidationError, validationErrors)
	}

	return nil
}

func (c controller) handleAlive(_ context.Context, _ *wsrouter.Conn, _ EmptyInput) error {
	return nil
}

type PlayerStateInput struct {
	State string `json:"state" validate:"required,oneof=playing paused buffering ended unstarted"`
}

func (c controller) handlePlayerState(ctx context.Context, _ *wsrouter.Conn, input PlayerStateInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	return c.getSessionFromCtx(ctx).HandlePlayerState(ctx, session.PlayerState(input.State))
}

type ProgressInput struct {
	CurrentTime float64 `json:"current_time" validate:"min=0"`
}

func (c controller) handleProgress(ctx context.Context, _ *wsrouter.Conn, input ProgressInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	return c.getSessionFromCtx(ctx).HandleProgress(ctx, input.CurrentTime)
}

func (c controller) handlePlay(ctx context.Context, _ *wsrouter.Conn, _ EmptyInput) error {
	return c.getSessionFromCtx(ctx).Play(ctx)
}

func (c controller) handlePause(ctx context.Context, _ *wsrouter.Conn, _ EmptyInput) error {
	return c.getSessionFromCtx(ctx).Pause(ctx)
}

type SeekToInput struct {
	Time float64 `json:"time"`
}

func (c controller) handleSeekTo(ctx context.Context, _ *wsrouter.Conn, input SeekToInput) error {
	return c.getSessionFromCtx(ctx).SeekTo(ctx, input.Time)
}

type SeekByInput struct {
	Delta float64 `json:"delta"`
}

func (c controller) handleSeekBy(ctx context.Context, _ *wsrouter.Conn, input SeekByInput) error {
	return c.getSessionFromCtx(ctx).SeekBy(ctx, input.Delta)
}

type SubmitVideoInput struct {
	VideoID  string `json:"video_id" validate:"required_without=VideoURL,max=256"`
	VideoURL string `json:"video_url" validate:"omitempty,url"`
}

// handleSubmitVideo rejects YouTube ids that do not resolve when video lookup
// is enabled. Lookup failures other than a missing video let the switch through.
func (c controller) handleSubmitVideo(ctx context.Context, _ *wsrouter.Conn, input SubmitVideoInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	if c.videos != nil && input.VideoURL == "" {
		if _, err := c.videos.Get(ctx, input.VideoID); err != nil {
			if errors.Is(err, ytvideodata.ErrVideoNotFound) {
				return session.ErrInvalidVideo
			}
			c.logger.InfoContext(ctx, "failed to look up video", "video_id", input.VideoID, "error", err)
		}
	}

	return c.getSessionFromCtx(ctx).SubmitVideo(ctx, input.VideoID, input.VideoURL)
}

type ChangeEpisodeInput struct {
	Season  string `json:"season" validate:"required"`
	Episode int    `json:"episode" validate:"required,min=1"`
}

func (c controller) handleChangeEpisode(ctx context.Context, _ *wsrouter.Conn, input ChangeEpisodeInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	return c.getSessionFromCtx(ctx).ChangeEpisode(ctx, input.Season, input.Episode)
}

func (c controller) handleToggleAutoplay(ctx context.Context, _ *wsrouter.Conn, _ EmptyInput) error {
	return c.getSessionFromCtx(ctx).ToggleAutoplay(ctx)
}

func (c controller) handleCancelAutoplay(ctx context.Context, _ *wsrouter.Conn, _ EmptyInput) error {
	c.getSessionFromCtx(ctx).CancelAutoplay()
	return nil
}

func (c controller) handleGetUpcomingEpisodes(ctx context.Context, conn *wsrouter.Conn, _ EmptyInput) error {
	r := c.getSessionFromCtx(ctx).Room()
	if r == nil {
		return room.ErrRoomNotFound
	}
	if r.SeriesState == nil {
		return session.ErrNoSeries
	}

	content, err := c.catalog.GetContent(ctx, r.SeriesState.SeriesID)
	if err != nil {
		return fmt.Errorf("failed to get series: %w", err)
	}

	c.writeToConn(ctx, conn, &Output{
		Type: "UPCOMING_EPISODES",
		Payload: map[string]any{
			"series_id": r.SeriesState.SeriesID,
			"episodes": session.UpcomingEpisodes(content.Episodes,
				r.SeriesState.CurrentSeason, r.SeriesState.CurrentEpisode, upcomingEpisodesLimit),
		},
	})

	return nil
}

type SendMessageInput struct {
	Text string `json:"text" validate:"required,max=500"`
}

func (c controller) handleSendMessage(ctx context.Context, _ *wsrouter.Conn, input SendMessageInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	_, err := c.getSessionFromCtx(ctx).SendMessage(ctx, input.Text)
	return err
}

type UpdateVisibilityInput struct {
	Visibility string `json:"visibility" validate:"required,oneof=public friends private"`
}

func (c controller) handleUpdateVisibility(ctx context.Context, _ *wsrouter.Conn, input UpdateVisibilityInput) error {
	if err := c.validateInput(input); err != nil {
		return err
	}

	return c.getSessionFromCtx(ctx).UpdateVisibility(ctx, room.Visibility(input.Visibility))
}
