package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/deusflow/newsflow/internal/news"
)

type snapshot struct {
	Sources    []news.Source   `json:"sources"`
	Categories []news.Category `json:"categories"`
	Articles   []*news.Article `json:"articles"`
}

// MemoryStore keeps everything in maps. With a file path it also persists a
// JSON snapshot after every write, which is enough for local runs without a
// database.
type MemoryStore struct {
	mu       sync.RWMutex
	filePath string

	sources    map[string]news.Source
	categories map[string]news.Category // key|language
	articles   []*news.Article
	byHash     map[string]*news.Article
	byURL      map[string]*news.Article
	bySlug     map[string]*news.Article
}

func NewMemory() *MemoryStore {
	return &MemoryStore{
		sources:    make(map[string]news.Source),
		categories: make(map[string]news.Category),
		byHash:     make(map[string]*news.Article),
		byURL:      make(map[string]*news.Article),
		bySlug:     make(map[string]*news.Article),
	}
}

// OpenFile loads the snapshot at path, starting empty when it does not exist.
func OpenFile(path string) (*MemoryStore, error) {
	if path == "" {
		return nil, fmt.Errorf("file store requires a path")
	}
	ms := NewMemory()
	ms.filePath = path

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return ms, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return ms, nil
	}

	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal store file: %w", err)
	}
	for _, s := range snap.Sources {
		ms.sources[s.ID] = s
	}
	for _, c := range snap.Categories {
		ms.categories[categoryKey(c.Key, c.Language)] = c
	}
	for _, a := range snap.Articles {
		ms.index(a)
	}
	return ms, nil
}

func categoryKey(key, language string) string {
	return key + "|" + language
}

func (ms *MemoryStore) index(a *news.Article) {
	ms.articles = append(ms.articles, a)
	ms.byHash[a.ContentHash] = a
	ms.byURL[a.CanonicalURL] = a
	ms.bySlug[a.Slug] = a
}

// save must be called with mu held.
func (ms *MemoryStore) save() error {
	if ms.filePath == "" {
		return nil
	}
	snap := snapshot{Articles: ms.articles}
	for _, s := range ms.sources {
		snap.Sources = append(snap.Sources, s)
	}
	for _, c := range ms.categories {
		snap.Categories = append(snap.Categories, c)
	}
	sort.Slice(snap.Sources, func(i, j int) bool { return snap.Sources[i].ID < snap.Sources[j].ID })
	sort.Slice(snap.Categories, func(i, j int) bool {
		return categoryKey(snap.Categories[i].Key, snap.Categories[i].Language) < categoryKey(snap.Categories[j].Key, snap.Categories[j].Language)
	})

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal store: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(ms.filePath), ".newsflow-*")
	if err != nil {
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write store file: %w", err)
	}
	return os.Rename(tmp.Name(), ms.filePath)
}

func (ms *MemoryStore) Close() error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.save()
}

func (ms *MemoryStore) ListActiveSources(ctx context.Context) ([]news.Source, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	var out []news.Source
	for _, s := range ms.sources {
		if s.Active {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (ms *MemoryStore) UpsertSource(ctx context.Context, src news.Source) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if prev, ok := ms.sources[src.ID]; ok && src.LastScraped == nil {
		src.LastScraped = prev.LastScraped
	}
	if src.Type == "" {
		src.Type = news.SourceFeed
	}
	ms.sources[src.ID] = src
	return ms.save()
}

func (ms *MemoryStore) TouchSource(ctx context.Context, id string, at time.Time) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	src, ok := ms.sources[id]
	if !ok {
		return nil
	}
	at = at.UTC()
	src.LastScraped = &at
	ms.sources[id] = src
	return ms.save()
}

func (ms *MemoryStore) HasContentHash(ctx context.Context, hash string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.byHash[hash]
	return ok, nil
}

func (ms *MemoryStore) HasCanonicalURL(ctx context.Context, canonical string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.byURL[canonical]
	return ok, nil
}

func (ms *MemoryStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	_, ok := ms.bySlug[slug]
	return ok, nil
}

func (ms *MemoryStore) InsertArticle(ctx context.Context, a *news.Article) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, ok := ms.byHash[a.ContentHash]; ok {
		return ErrDuplicate
	}
	if _, ok := ms.byURL[a.CanonicalURL]; ok {
		return ErrDuplicate
	}
	if _, ok := ms.bySlug[a.Slug]; ok {
		return ErrDuplicate
	}
	stored := *a
	ms.index(&stored)
	return ms.save()
}

func (ms *MemoryStore) CountArticles(ctx context.Context) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()
	return len(ms.articles), nil
}

func (ms *MemoryStore) CountByDetectedCategory(ctx context.Context, key, language string) (int, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	n := 0
	for _, a := range ms.articles {
		if a.DetectedCategory() == key && a.Language == language {
			n++
		}
	}
	return n, nil
}

func (ms *MemoryStore) FindCategory(ctx context.Context, key, language string) (*news.Category, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	for _, lang := range []string{language, ""} {
		if c, ok := ms.categories[categoryKey(key, lang)]; ok {
			return &c, nil
		}
	}
	return nil, ErrNotFound
}

func (ms *MemoryStore) CreateCategory(ctx context.Context, c *news.Category) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	k := categoryKey(c.Key, c.Language)
	if _, ok := ms.categories[k]; ok {
		return ErrDuplicate
	}
	ms.categories[k] = *c
	return ms.save()
}

// Articles returns a copy of the stored articles in insertion order.
func (ms *MemoryStore) Articles() []news.Article {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	out := make([]news.Article, len(ms.articles))
	for i, a := range ms.articles {
		out[i] = *a
	}
	return out
}
