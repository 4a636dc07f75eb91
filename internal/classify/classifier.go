package classify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/deusflow/newsflow/internal/cache"
	"github.com/deusflow/newsflow/internal/news"
	"github.com/deusflow/newsflow/internal/storage"
)

// PromotionThreshold is the number of articles, the current one included,
// that must carry a detected category before it becomes a persisted one.
const PromotionThreshold = 10

type Store interface {
	FindCategory(ctx context.Context, key, language string) (*news.Category, error)
	CountByDetectedCategory(ctx context.Context, key, language string) (int, error)
	CreateCategory(ctx context.Context, c *news.Category) error
}

type Recorder interface {
	CategoryPromoted()
}

type Input struct {
	Title            string
	Summary          string
	Body             string
	Language         string
	SourceCategories []string
}

type Result struct {
	// Category is the persisted category the article is filed under.
	Category string
	// Detected is the label the text pointed to, persisted or not.
	Detected string
	// Labels lists every matching category, best first.
	Labels   []string
	Score    int
	Promoted bool
}

type Classifier struct {
	tables   *Tables
	store    Store
	known    *cache.Cache[string, bool]
	logger   *slog.Logger
	recorder Recorder
}

func New(tables *Tables, store Store, logger *slog.Logger, rec Recorder) *Classifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Classifier{
		tables:   tables,
		store:    store,
		known:    cache.New[string, bool](10 * time.Minute),
		logger:   logger.With("component", "classify"),
		recorder: rec,
	}
}

// Detect scores the text against the keyword tables without touching the store.
func (c *Classifier) Detect(in Input) Result {
	text := Normalize(strings.Join([]string{in.Title, in.Summary, in.Body}, " "))

	script, ok := scriptFor(in.Language)
	if !ok || !c.tables.hasScript(script) {
		script = ""
	}

	scores := c.score(text, script)

	res := Result{Detected: c.tables.Default}
	for _, key := range c.tables.keys {
		// strict comparison over sorted keys: ties go to the smaller key
		if scores[key] > res.Score {
			res.Detected = key
			res.Score = scores[key]
		}
	}
	res.Labels = rankLabels(scores)

	if res.Score == 0 {
		for _, sc := range in.SourceCategories {
			if key := categoryKey(sc); key != "" {
				res.Detected = key
				res.Labels = []string{key}
				break
			}
		}
	}
	if len(res.Labels) == 0 {
		res.Labels = []string{res.Detected}
	}
	return res
}

func (c *Classifier) score(text, script string) map[string]int {
	tokens := strings.Fields(text)
	padded := " " + text + " "

	scores := make(map[string]int, len(c.tables.keys))
	for _, key := range c.tables.keys {
		total := 0
		for _, kw := range c.tables.forScript(key, script) {
			if matches(kw, padded, tokens) {
				total += kw.runes
			}
		}
		if total > 0 {
			scores[key] = total
		}
	}
	return scores
}

func matches(kw keyword, padded string, tokens []string) bool {
	if strings.Contains(padded, " "+kw.text+" ") {
		return true
	}
	if kw.stem == "" {
		return false
	}
	for _, tok := range tokens {
		if strings.HasPrefix(tok, kw.stem) {
			return true
		}
	}
	return false
}

func rankLabels(scores map[string]int) []string {
	labels := make([]string, 0, len(scores))
	for k := range scores {
		labels = append(labels, k)
	}
	sort.Slice(labels, func(i, j int) bool {
		if scores[labels[i]] != scores[labels[j]] {
			return scores[labels[i]] > scores[labels[j]]
		}
		return labels[i] < labels[j]
	})
	return labels
}

func categoryKey(s string) string {
	return strings.ReplaceAll(Normalize(s), " ", "-")
}

// Classify detects the category and resolves it against the persisted
// categories for the language, promoting it once enough articles carry it.
// The returned Result is usable even when err is non-nil.
func (c *Classifier) Classify(ctx context.Context, in Input) (Result, error) {
	res := c.Detect(in)
	res.Category = c.tables.Default
	if res.Detected == c.tables.Default {
		return res, nil
	}

	lang := BaseLanguage(in.Language)
	persisted, err := c.isPersisted(ctx, res.Detected, lang)
	if err != nil {
		return res, err
	}
	if persisted {
		res.Category = res.Detected
		return res, nil
	}

	existing, err := c.store.CountByDetectedCategory(ctx, res.Detected, lang)
	if err != nil {
		return res, fmt.Errorf("count category %s: %w", res.Detected, err)
	}
	if existing+1 < PromotionThreshold {
		return res, nil
	}

	cat := c.dynamicCategory(res.Detected, lang)
	switch err := c.store.CreateCategory(ctx, cat); {
	case err == nil:
		res.Promoted = true
		c.logger.Info("category promoted", "category", res.Detected, "language", lang, "articles", existing+1)
		if c.recorder != nil {
			c.recorder.CategoryPromoted()
		}
	case errors.Is(err, storage.ErrDuplicate):
		// another run promoted it first
	default:
		return res, fmt.Errorf("promote category %s: %w", res.Detected, err)
	}
	c.known.Set(lang+"|"+res.Detected, true)
	res.Category = res.Detected
	return res, nil
}

func (c *Classifier) isPersisted(ctx context.Context, key, lang string) (bool, error) {
	if _, ok := c.known.Get(lang + "|" + key); ok {
		return true, nil
	}
	_, err := c.store.FindCategory(ctx, key, lang)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("find category %s: %w", key, err)
	}
	// categories are never deleted by the pipeline, so positives can be cached
	c.known.Set(lang+"|"+key, true)
	return true, nil
}

func (c *Classifier) dynamicCategory(key, lang string) *news.Category {
	entry, ok := c.tables.meta[key]
	label := entry.Label
	if !ok || label == "" {
		label = cases.Title(language.English).String(strings.ReplaceAll(key, "-", " "))
	}
	return &news.Category{
		ID:        uuid.NewString(),
		Key:       key,
		Label:     label,
		Icon:      entry.Icon,
		Color:     entry.Color,
		Order:     entry.Order,
		Active:    true,
		Language:  lang,
		IsDynamic: true,
		CreatedAt: time.Now().UTC(),
	}
}
