package classify

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/deusflow/newsflow/internal/news"
	"github.com/deusflow/newsflow/internal/storage"
)

type promotions struct{ n int }

func (p *promotions) CategoryPromoted() { p.n++ }

func newTestClassifier(t *testing.T) (*Classifier, *storage.MemoryStore, *promotions) {
	t.Helper()
	tables, err := BuiltinTables()
	require.NoError(t, err)
	store := storage.NewMemory()
	rec := &promotions{}
	return New(tables, store, nil, rec), store, rec
}

func seedDetected(t *testing.T, store *storage.MemoryStore, key, lang string, n int) {
	t.Helper()
	for i := range n {
		err := store.InsertArticle(context.Background(), &news.Article{
			ID:                 fmt.Sprintf("a-%d", i),
			Title:              fmt.Sprintf("seed %d", i),
			Slug:               fmt.Sprintf("seed-%d", i),
			CanonicalURL:       fmt.Sprintf("https://example.com/seed/%d", i),
			ContentHash:        fmt.Sprintf("hash-%d", i),
			Category:           news.DefaultCategory,
			DetectedCategories: []string{key},
			Language:           lang,
		})
		require.NoError(t, err)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "hello world", Normalize("  Hello,   WORLD!\u200b "))
	assert.Equal(t, "smart phone", Normalize("smart\u200b-phone"))
	assert.Equal(t, "a b", Normalize("a\t\n|b"))
	assert.Equal(t, "", Normalize("!!! ..."))
	// zero-width joiners inside Indic words are removed, not turned into spaces
	assert.Equal(t, "\u0c38\u0c4d\u0c2e\u0c3e", Normalize("\u0c38\u0c4d\u200c\u0c2e\u0c3e"))
}

func TestScriptFor(t *testing.T) {
	tests := map[string]struct {
		script string
		ok     bool
	}{
		"te":    {"telugu", true},
		"te-IN": {"telugu", true},
		"hi":    {"devanagari", true},
		"en":    {"latin", true},
		"ta":    {"tamil", true},
		"":      {"", false},
		"zz-?!": {"", false},
	}
	for lang, want := range tests {
		script, ok := scriptFor(lang)
		assert.Equal(t, want.ok, ok, lang)
		assert.Equal(t, want.script, script, lang)
	}
	assert.Equal(t, "te", BaseLanguage("te-IN"))
	assert.Equal(t, "en", BaseLanguage("en"))
}

func TestLoadTables(t *testing.T) {
	tables, err := BuiltinTables()
	require.NoError(t, err)
	assert.Equal(t, news.DefaultCategory, tables.Default)
	assert.Contains(t, tables.Keys(), "sports")
	assert.IsNonDecreasing(t, tables.Keys())

	_, err = LoadTables([]byte("version: 1\n"))
	assert.Error(t, err)

	_, err = LoadTables([]byte("categories:\n  Sports:\n    keywords:\n      latin: [cricket]\n"))
	assert.Error(t, err)

	custom, err := LoadTables([]byte("categories:\n  farming:\n    keywords:\n      latin: [harvest, tractor]\n"))
	require.NoError(t, err)
	assert.Equal(t, news.DefaultCategory, custom.Default)

	kw, ok := newKeyword("election")
	require.True(t, ok)
	assert.Equal(t, "electi", kw.stem)
	kw, ok = newKeyword("film")
	require.True(t, ok)
	assert.Empty(t, kw.stem)
	kw, ok = newKeyword("box office")
	require.True(t, ok)
	assert.Empty(t, kw.stem)
}

func TestDetect(t *testing.T) {
	c, _, _ := newTestClassifier(t)

	tests := []struct {
		name string
		text string
		lang string
		want string
	}{
		{"telugu sports without english", "భారత్ క్రికెట్ జట్టు ఘన విజయం సాధించింది", "te", "sports"},
		{"telugu keyword with suffix", "క్రికెట్‌లో భారత్ విజయం", "te", "sports"},
		{"telugu technology", "కొత్త స్మార్ట్‌ఫోన్ టెక్నాలజీ విడుదల", "te", "technology"},
		{"hindi sports", "क्रिकेट टीम ने मैच जीता", "hi", "sports"},
		{"english no match", "A quiet afternoon in the village", "en", news.DefaultCategory},
		{"english short keyword is word bounded", "He said nothing", "en", news.DefaultCategory},
		{"english technology", "He said the AI startup raised funds", "en", "technology"},
		{"script filter ignores english words", "క్రికెట్ మ్యాచ్ election government minister", "te", "sports"},
		{"unknown language uses every script", "క్రికెట్ మ్యాచ్ election government minister", "", "politics"},
		{"tie keeps first key", "Film bank", "en", "business"},
		{"stem match", "Electioneering intensifies", "en", "politics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := c.Detect(Input{Title: tt.text, Language: tt.lang})
			assert.Equal(t, tt.want, res.Detected)
			assert.Equal(t, tt.want, res.Labels[0])
		})
	}
}

func TestDetectLabelsRanked(t *testing.T) {
	c, _, _ := newTestClassifier(t)

	res := c.Detect(Input{
		Title:    "Cricket match at the stadium",
		Summary:  "The minister attended",
		Language: "en",
	})
	assert.Equal(t, "sports", res.Detected)
	assert.Equal(t, []string{"sports", "politics"}, res.Labels)
	assert.Positive(t, res.Score)
}

func TestDetectSourceCategoryFallback(t *testing.T) {
	c, _, _ := newTestClassifier(t)

	res := c.Detect(Input{
		Title:            "A quiet afternoon in the village",
		Language:         "en",
		SourceCategories: []string{"", "Local News"},
	})
	assert.Equal(t, "local-news", res.Detected)
	assert.Zero(t, res.Score)

	// evidence in the text wins over the source's categories
	res = c.Detect(Input{
		Title:            "Cricket final tonight",
		Language:         "en",
		SourceCategories: []string{"Local News"},
	})
	assert.Equal(t, "sports", res.Detected)
}

func TestClassifyDefault(t *testing.T) {
	c, _, rec := newTestClassifier(t)

	res, err := c.Classify(context.Background(), Input{Title: "A quiet afternoon", Language: "en"})
	require.NoError(t, err)
	assert.Equal(t, news.DefaultCategory, res.Category)
	assert.Equal(t, []string{news.DefaultCategory}, res.Labels)
	assert.Zero(t, rec.n)
}

func TestClassifyUsesPersistedCategory(t *testing.T) {
	c, store, rec := newTestClassifier(t)
	ctx := context.Background()

	require.NoError(t, store.CreateCategory(ctx, &news.Category{ID: "c1", Key: "sports", Label: "Sports", Active: true, Language: "te"}))

	res, err := c.Classify(ctx, Input{Title: "భారత్ క్రికెట్ జట్టు ఘన విజయం", Language: "te-IN"})
	require.NoError(t, err)
	assert.Equal(t, "sports", res.Category)
	assert.False(t, res.Promoted)
	assert.Zero(t, rec.n)
}

func TestClassifyUnpersistedFallsBackToDefault(t *testing.T) {
	c, _, _ := newTestClassifier(t)

	res, err := c.Classify(context.Background(), Input{Title: "భారత్ క్రికెట్ జట్టు", Language: "te"})
	require.NoError(t, err)
	assert.Equal(t, "sports", res.Detected)
	assert.Equal(t, news.DefaultCategory, res.Category)
	assert.False(t, res.Promoted)
}

func TestPromotionThreshold(t *testing.T) {
	const text = "కొత్త స్మార్ట్‌ఫోన్ టెక్నాలజీ విడుదల"
	ctx := context.Background()

	t.Run("nine existing promotes", func(t *testing.T) {
		c, store, rec := newTestClassifier(t)
		seedDetected(t, store, "technology", "te", 9)

		res, err := c.Classify(ctx, Input{Title: text, Language: "te"})
		require.NoError(t, err)
		assert.True(t, res.Promoted)
		assert.Equal(t, "technology", res.Category)
		assert.Equal(t, 1, rec.n)

		cat, err := store.FindCategory(ctx, "technology", "te")
		require.NoError(t, err)
		assert.True(t, cat.IsDynamic)
		assert.True(t, cat.Active)
		assert.Equal(t, "Technology", cat.Label)
		assert.Equal(t, "#4f46e5", cat.Color)
		assert.NotEmpty(t, cat.ID)

		// later items use the persisted category directly
		res, err = c.Classify(ctx, Input{Title: text, Language: "te"})
		require.NoError(t, err)
		assert.False(t, res.Promoted)
		assert.Equal(t, "technology", res.Category)
		assert.Equal(t, 1, rec.n)
	})

	t.Run("eight existing does not", func(t *testing.T) {
		c, store, rec := newTestClassifier(t)
		seedDetected(t, store, "technology", "te", 8)

		res, err := c.Classify(ctx, Input{Title: text, Language: "te"})
		require.NoError(t, err)
		assert.False(t, res.Promoted)
		assert.Equal(t, news.DefaultCategory, res.Category)
		assert.Zero(t, rec.n)

		_, err = store.FindCategory(ctx, "technology", "te")
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("counts are scoped by language", func(t *testing.T) {
		c, store, _ := newTestClassifier(t)
		seedDetected(t, store, "technology", "hi", 9)

		res, err := c.Classify(ctx, Input{Title: text, Language: "te"})
		require.NoError(t, err)
		assert.False(t, res.Promoted)
	})
}

func TestPromotionDerivesLabel(t *testing.T) {
	c, store, _ := newTestClassifier(t)
	ctx := context.Background()
	seedDetected(t, store, "local-news", "en", 9)

	res, err := c.Classify(ctx, Input{
		Title:            "A quiet afternoon",
		Language:         "en",
		SourceCategories: []string{"Local News"},
	})
	require.NoError(t, err)
	require.True(t, res.Promoted)

	cat, err := store.FindCategory(ctx, "local-news", "en")
	require.NoError(t, err)
	assert.Equal(t, "Local News", cat.Label)
	assert.Equal(t, "en", cat.Language)
}

// staleStore never sees persisted categories, as when another run creates
// one between lookup and create.
type staleStore struct {
	*storage.MemoryStore
}

func (staleStore) FindCategory(context.Context, string, string) (*news.Category, error) {
	return nil, storage.ErrNotFound
}

func TestPromotionAlreadyCreated(t *testing.T) {
	tables, err := BuiltinTables()
	require.NoError(t, err)
	mem := storage.NewMemory()
	rec := &promotions{}
	c := New(tables, staleStore{mem}, nil, rec)
	ctx := context.Background()

	seedDetected(t, mem, "technology", "te", 9)
	require.NoError(t, mem.CreateCategory(ctx, c.dynamicCategory("technology", "te")))

	res, err := c.Classify(ctx, Input{Title: "కొత్త స్మార్ట్‌ఫోన్ టెక్నాలజీ విడుదల", Language: "te"})
	require.NoError(t, err)
	assert.Equal(t, "technology", res.Category)
	assert.False(t, res.Promoted)
	assert.Zero(t, rec.n)
}
