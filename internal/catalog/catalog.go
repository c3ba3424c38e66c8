// Package catalog serves the read-only movie and series dataset.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

var ErrContentNotFound = errors.New("content not found")

type Type string

const (
	TypeMovie  Type = "movie"
	TypeSeries Type = "series"
)

type Episode struct {
	Episode int    `yaml:"episode" json:"episode"`
	Name    string `yaml:"name" json:"name"`
	URL     string `yaml:"url" json:"url"`
	ID      string `yaml:"id" json:"id"`
	Logo    string `yaml:"logo,omitempty" json:"logo,omitempty"`
}

// Episodes maps a season number, as text, to its episodes.
type Episodes map[string][]Episode

type Content struct {
	ID       string   `yaml:"id" json:"id"`
	Name     string   `yaml:"name" json:"name"`
	Type     Type     `yaml:"type" json:"type"`
	URL      string   `yaml:"url,omitempty" json:"url,omitempty"`
	Episodes Episodes `yaml:"episodes,omitempty" json:"episodes,omitempty"`
}

type file struct {
	Contents []Content `yaml:"contents"`
}

type FileCatalog struct {
	contents map[string]Content
}

func New(contents ...Content) *FileCatalog {
	c := &FileCatalog{contents: make(map[string]Content, len(contents))}
	for _, content := range contents {
		c.contents[content.ID] = content
	}

	return c
}

// LoadFile reads a catalog from a YAML file with a top-level contents list.
func LoadFile(path string) (*FileCatalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog: %w", err)
	}

	var f file
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	for i, content := range f.Contents {
		if content.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
	}

	return New(f.Contents...), nil
}

func (c *FileCatalog) GetContent(ctx context.Context, id string) (Content, error) {
	content, ok := c.contents[id]
	if !ok {
		return Content{}, ErrContentNotFound
	}

	return content, nil
}

func (c *FileCatalog) Len() int {
	return len(c.contents)
}
