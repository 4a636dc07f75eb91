package config

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/jessevdk/go-flags"
	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsflow/internal/news"
)

// Version is set at build time via -ldflags
var Version = "dev"

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

const (
	ModeFast = "fast"
	ModeFull = "full"
)

type rawCfg struct {
	// Storage
	DBDriver string `long:"db-driver" env:"DB_DRIVER" default:"sqlite" choice:"postgres" choice:"sqlite" choice:"file" choice:"memory" description:"Article store backend"`
	DBDSN    string `long:"db-dsn" env:"DB_DSN" default:"newsflow.db" description:"Store DSN (connection string or file path)"`

	// Sources and classification
	SourcesFile  string `long:"sources" env:"SOURCES_FILE" default:"configs/sources.yaml" description:"YAML file with news sources, synced into the store at startup (empty to skip)"`
	KeywordsFile string `long:"keywords" env:"KEYWORDS_FILE" description:"Keyword tables overriding the built-in ones"`
	NewsAPIKey   string `long:"news-api-key" env:"NEWS_API_KEY" description:"API key for api-type sources"`

	// Summaries
	GeminiAPIKey string `long:"gemini-api-key" env:"GEMINI_API_KEY" description:"Gemini API key; summaries fall back to snippets when empty"`
	GeminiModel  string `long:"gemini-model" env:"GEMINI_MODEL" default:"gemini-1.5-flash" description:"Gemini model name"`

	// Pipeline
	Mode         string        `long:"mode" env:"MODE" default:"full" choice:"fast" choice:"full" description:"fast skips article page fetches"`
	Interval     time.Duration `long:"interval" env:"INTERVAL" default:"30m" description:"Time between runs (0 runs once and exits)"`
	BatchSize    int           `long:"batch-size" env:"BATCH_SIZE" default:"5" description:"Sources processed concurrently"`
	ItemTimeout  time.Duration `long:"item-timeout" env:"ITEM_TIMEOUT" default:"30s" description:"Deadline for one item's extraction pipeline"`
	RateInterval time.Duration `long:"rate-interval" env:"RATE_INTERVAL" default:"1s" description:"Minimum gap between outbound request dispatches"`

	// Fetching
	FetchTimeout time.Duration `long:"fetch-timeout" env:"FETCH_TIMEOUT" default:"15s" description:"Per-attempt HTTP timeout"`
	FetchRetries int           `long:"fetch-retries" env:"FETCH_RETRIES" default:"3" description:"Attempts per request"`
	MaxRedirects int           `long:"max-redirects" env:"MAX_REDIRECTS" default:"5" description:"Redirects followed per request"`
	FailStatus   int           `long:"fail-status" env:"FAIL_STATUS" default:"400" description:"Lowest HTTP status treated as a failed fetch"`
	RetryBase    time.Duration `long:"retry-base" env:"RETRY_BASE" default:"500ms" description:"Initial retry backoff, doubled per attempt"`
	RetryJitter  time.Duration `long:"retry-jitter" env:"RETRY_JITTER" default:"250ms" description:"Upper bound of the random wait added to each retry (0 picks half the base, negative disables)"`
	UserAgents   []string      `long:"user-agent" env:"USER_AGENTS" env-delim:"," description:"User agents to rotate (default: built-in browser pool)"`
	Proxies      []string      `long:"proxy" env:"PROXIES" env-delim:"," description:"Proxy URLs to rotate"`

	// Monitoring
	Listen string `long:"listen" env:"LISTEN_ADDR" default:":8080" description:"Monitoring server address (empty disables)"`
	Debug  bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

type Config struct {
	DBDriver string
	DBDSN    string

	SourcesFile  string
	KeywordsFile string
	NewsAPIKey   string

	GeminiAPIKey string
	GeminiModel  string

	Mode         string
	Interval     time.Duration
	BatchSize    int
	ItemTimeout  time.Duration
	RateInterval time.Duration

	FetchTimeout time.Duration
	FetchRetries int
	MaxRedirects int
	FailStatus   int
	RetryBase    time.Duration
	RetryJitter  time.Duration
	UserAgents   []string
	Proxies      []string

	Listen  string
	Debug   bool
	Version string
}

// Load parses args and the environment. It returns nil, nil when help was
// requested.
func Load(args []string) (*Config, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)
	if _, err := parser.ParseArgs(args); err != nil {
		var flagsErr *flags.Error
		if errors.As(err, &flagsErr) && flagsErr.Type == flags.ErrHelp {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Config{
		DBDriver:     raw.DBDriver,
		DBDSN:        raw.DBDSN,
		SourcesFile:  raw.SourcesFile,
		KeywordsFile: raw.KeywordsFile,
		NewsAPIKey:   raw.NewsAPIKey,
		GeminiAPIKey: raw.GeminiAPIKey,
		GeminiModel:  raw.GeminiModel,
		Mode:         raw.Mode,
		Interval:     raw.Interval,
		BatchSize:    raw.BatchSize,
		ItemTimeout:  raw.ItemTimeout,
		RateInterval: raw.RateInterval,
		FetchTimeout: raw.FetchTimeout,
		FetchRetries: raw.FetchRetries,
		MaxRedirects: raw.MaxRedirects,
		FailStatus:   raw.FailStatus,
		RetryBase:    raw.RetryBase,
		RetryJitter:  raw.RetryJitter,
		UserAgents:   raw.UserAgents,
		Proxies:      raw.Proxies,
		Listen:       raw.Listen,
		Debug:        raw.Debug,
		Version:      GetVersion(),
	}
	return cfg, cfg.Validate()
}

func (c *Config) Validate() error {
	if c.BatchSize < 1 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	if c.ItemTimeout <= 0 {
		return fmt.Errorf("item timeout must be positive")
	}
	if c.Interval < 0 {
		return fmt.Errorf("interval must not be negative")
	}
	if c.FetchRetries < 1 {
		return fmt.Errorf("fetch retries must be at least 1, got %d", c.FetchRetries)
	}
	if c.FailStatus < 100 || c.FailStatus > 599 {
		return fmt.Errorf("fail status must be an HTTP status code, got %d", c.FailStatus)
	}
	if c.DBDriver != "memory" && c.DBDSN == "" {
		return fmt.Errorf("db dsn is required for driver %s", c.DBDriver)
	}
	return nil
}

type sourceEntry struct {
	ID         string   `yaml:"id"`
	Name       string   `yaml:"name"`
	Feeds      []string `yaml:"feeds"`
	Type       string   `yaml:"type"`
	APIURL     string   `yaml:"api_url"`
	Categories []string `yaml:"categories"`
	Language   string   `yaml:"language"`
	Active     *bool    `yaml:"active"`
}

type sourcesFile struct {
	Sources []sourceEntry `yaml:"sources"`
}

// LoadSources reads source definitions from a YAML file. Sources are active
// unless the file says otherwise.
func LoadSources(path string) ([]news.Source, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var file sourcesFile
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	seen := make(map[string]bool, len(file.Sources))
	out := make([]news.Source, 0, len(file.Sources))
	for _, e := range file.Sources {
		src := news.Source{
			ID:         e.ID,
			Name:       cmp.Or(e.Name, e.ID),
			FeedURLs:   e.Feeds,
			Type:       news.SourceType(cmp.Or(e.Type, string(news.SourceFeed))),
			APIURL:     e.APIURL,
			Categories: e.Categories,
			Language:   e.Language,
			Active:     e.Active == nil || *e.Active,
		}
		if err := src.Validate(); err != nil {
			return nil, err
		}
		if seen[src.ID] {
			return nil, fmt.Errorf("source %s defined twice", src.ID)
		}
		seen[src.ID] = true
		out = append(out, src)
	}
	return out, nil
}
