package classify

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/deusflow/newsflow/internal/news"
)

//go:embed keywords.yaml
var builtinTables []byte

type categoryEntry struct {
	Label    string              `yaml:"label"`
	Icon     string              `yaml:"icon"`
	Color    string              `yaml:"color"`
	Order    int                 `yaml:"order"`
	Keywords map[string][]string `yaml:"keywords"` // script -> keywords
}

type tableFile struct {
	Version    int                      `yaml:"version"`
	Default    string                   `yaml:"default"`
	Categories map[string]categoryEntry `yaml:"categories"`
}

type keyword struct {
	text  string
	runes int
	stem  string // empty when only exact matches count
}

// Tables is the keyword dictionary keyed by (category, script). It is loaded
// once and read-only afterwards.
type Tables struct {
	Version  int
	Default  string
	keys     []string
	meta     map[string]categoryEntry
	keywords map[string]map[string][]keyword
}

func BuiltinTables() (*Tables, error) {
	return LoadTables(builtinTables)
}

func LoadTablesFile(path string) (*Tables, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read keyword tables: %w", err)
	}
	return LoadTables(data)
}

func LoadTables(data []byte) (*Tables, error) {
	var f tableFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse keyword tables: %w", err)
	}
	if len(f.Categories) == 0 {
		return nil, fmt.Errorf("keyword tables define no categories")
	}

	t := &Tables{
		Version:  f.Version,
		Default:  f.Default,
		meta:     f.Categories,
		keywords: make(map[string]map[string][]keyword, len(f.Categories)),
	}
	if t.Default == "" {
		t.Default = news.DefaultCategory
	}

	for key, entry := range f.Categories {
		if key != Normalize(key) {
			return nil, fmt.Errorf("category key %q must be lowercase", key)
		}
		t.keys = append(t.keys, key)
		byScript := make(map[string][]keyword, len(entry.Keywords))
		for script, words := range entry.Keywords {
			for _, w := range words {
				if kw, ok := newKeyword(w); ok {
					byScript[script] = append(byScript[script], kw)
				}
			}
		}
		t.keywords[key] = byScript
	}
	// Iteration order is fixed so ties resolve the same way every run.
	sort.Strings(t.keys)
	return t, nil
}

func newKeyword(raw string) (keyword, bool) {
	text := Normalize(raw)
	if text == "" {
		return keyword{}, false
	}
	kw := keyword{text: text, runes: utf8.RuneCountInString(text)}
	if kw.runes > 4 && !strings.ContainsRune(text, ' ') {
		n := max(3, kw.runes-kw.runes/4)
		kw.stem = string([]rune(text)[:n])
	}
	return kw, true
}

// Keys returns the category keys in evaluation order.
func (t *Tables) Keys() []string {
	return append([]string(nil), t.keys...)
}

// forScript returns the keywords of category restricted to script, or all of
// them when script is empty.
func (t *Tables) forScript(category, script string) []keyword {
	byScript := t.keywords[category]
	if script != "" {
		return byScript[script]
	}
	var all []keyword
	for _, s := range sortedScripts(byScript) {
		all = append(all, byScript[s]...)
	}
	return all
}

func (t *Tables) hasScript(script string) bool {
	for _, byScript := range t.keywords {
		if len(byScript[script]) > 0 {
			return true
		}
	}
	return false
}

func sortedScripts(m map[string][]keyword) []string {
	out := make([]string, 0, len(m))
	for s := range m {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
