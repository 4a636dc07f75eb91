package ingest

import (
	"sync"
	"time"
)

type Totals struct {
	ItemsSeen     int `json:"itemsSeen"`
	ItemsScraped  int `json:"itemsScraped"`
	ItemsInserted int `json:"itemsInserted"`
}

type SourceStats struct {
	SourceID      string `json:"sourceId"`
	Name          string `json:"name"`
	FeedsTotal    int    `json:"feedsTotal"`
	FeedsFetched  int    `json:"feedsFetched"`
	FeedsFailed   int    `json:"feedsFailed"`
	ItemsSeen     int    `json:"itemsSeen"`
	ItemsScraped  int    `json:"itemsScraped"`
	ItemsInserted int    `json:"itemsInserted"`
	Duplicates    int    `json:"duplicates"`
	TimedOut      int    `json:"timedOut"`
	Error         string `json:"error,omitempty"`
}

func (s SourceStats) Failed() bool {
	return s.Error != ""
}

// RunStats is returned by every run, including failed ones.
type RunStats struct {
	SourcesTotal     int           `json:"sourcesTotal"`
	SourcesSucceeded int           `json:"sourcesSucceeded"`
	SourcesFailed    int           `json:"sourcesFailed"`
	Totals           Totals        `json:"totals"`
	PerSource        []SourceStats `json:"perSource"`
}

func (r *RunStats) add(s SourceStats) {
	r.PerSource = append(r.PerSource, s)
	if s.Failed() {
		r.SourcesFailed++
	} else {
		r.SourcesSucceeded++
	}
	r.Totals.ItemsSeen += s.ItemsSeen
	r.Totals.ItemsScraped += s.ItemsScraped
	r.Totals.ItemsInserted += s.ItemsInserted
}

// Status is the last-run snapshot.
type Status struct {
	Running          bool       `json:"running"`
	Mode             Mode       `json:"mode,omitempty"`
	StartedAt        *time.Time `json:"startedAt,omitempty"`
	FinishedAt       *time.Time `json:"finishedAt,omitempty"`
	ActiveSources    int        `json:"activeSources"`
	ArticlesInserted int        `json:"articlesInserted"`
	Error            string     `json:"error,omitempty"`
}

// StatusHolder keeps the status of the current or last run. It is reset when
// a run starts, updated as articles are inserted and finalized when the run
// completes. The zero value is ready to use.
type StatusHolder struct {
	mu     sync.RWMutex
	status Status
}

func (h *StatusHolder) Snapshot() Status {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.status
}

func (h *StatusHolder) start(mode Mode, at time.Time) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status = Status{Running: true, Mode: mode, StartedAt: &at}
}

func (h *StatusHolder) setActive(n int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.ActiveSources = n
}

func (h *StatusHolder) inserted() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.ArticlesInserted++
}

func (h *StatusHolder) finish(at time.Time, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.status.Running = false
	h.status.FinishedAt = &at
	if err != nil {
		h.status.Error = err.Error()
	}
}
