package news

import (
	"fmt"
	"time"
)

type SourceType string

const (
	SourceFeed SourceType = "feed"
	SourceAPI  SourceType = "api"
)

// Source is owned by the admin surface. The pipeline only reads it and
// updates LastScraped.
type Source struct {
	ID          string     `yaml:"id" json:"id"`
	Name        string     `yaml:"name" json:"name"`
	FeedURLs    []string   `yaml:"feeds" json:"feedUrls"`
	Type        SourceType `yaml:"type" json:"type"`
	APIURL      string     `yaml:"api_url" json:"apiUrl,omitempty"`
	Categories  []string   `yaml:"categories" json:"categories"`
	Language    string     `yaml:"language" json:"language"`
	Active      bool       `yaml:"active" json:"active"`
	LastScraped *time.Time `yaml:"-" json:"lastScraped,omitempty"`
}

// Validate checks the type-dependent invariants. Zero feed URLs is valid
// for a feed source.
func (s Source) Validate() error {
	if s.ID == "" {
		return fmt.Errorf("source %q: id is required", s.Name)
	}
	switch s.Type {
	case SourceFeed, "":
	case SourceAPI:
		if s.APIURL == "" {
			return fmt.Errorf("source %s: api source requires api_url", s.ID)
		}
	default:
		return fmt.Errorf("source %s: unknown type %q", s.ID, s.Type)
	}
	return nil
}

// IsAPI reports whether items come from the JSON article API instead of feeds.
func (s Source) IsAPI() bool {
	return s.Type == SourceAPI
}
