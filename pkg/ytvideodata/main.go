// Package ytvideodata looks up public metadata of YouTube videos.
package ytvideodata

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

type VideoData struct {
	Title        string `json:"title"`
	AuthorName   string `json:"author_name"`
	ThumbnailUrl string `json:"thumbnail_url"`
}

type Client struct {
	http      *http.Client
	oembedURL string
	pageURL   string
}

// New returns a client using httpClient, or a client with a 5s timeout when nil.
func New(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 5 * time.Second}
	}

	return &Client{
		http:      httpClient,
		oembedURL: "https://www.youtube.com/oembed",
		pageURL:   "https://youtu.be/",
	}
}

// Get tries the oEmbed endpoint first and falls back to scraping the watch
// page for videos that cannot be embedded.
func (c *Client) Get(ctx context.Context, videoID string) (*VideoData, error) {
	if videoID == "" {
		return nil, ErrVideoNotFound
	}

	videoData, err := c.getWithEmbed(ctx, videoID)
	if err != nil {
		if !errors.Is(err, ErrVideoNotEmbeddable) {
			return nil, fmt.Errorf("failed to get video data with embed: %w", err)
		}

		videoData, err = c.getFromPage(ctx, videoID)
		if err != nil {
			return nil, fmt.Errorf("failed to get video data from page: %w", err)
		}
	}

	return videoData, nil
}
