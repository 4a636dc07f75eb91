package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/deusflow/newsflow/internal/news"
)

var (
	ErrDuplicate = errors.New("duplicate record")
	ErrNotFound  = errors.New("record not found")
)

// Store is the document store shared by the pipeline. Every write touches a
// single record; uniqueness of content hash, canonical URL and slug is
// enforced by the store itself.
type Store interface {
	ListActiveSources(ctx context.Context) ([]news.Source, error)
	UpsertSource(ctx context.Context, src news.Source) error
	TouchSource(ctx context.Context, id string, at time.Time) error

	HasContentHash(ctx context.Context, hash string) (bool, error)
	HasCanonicalURL(ctx context.Context, canonical string) (bool, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	InsertArticle(ctx context.Context, a *news.Article) error
	CountArticles(ctx context.Context) (int, error)
	CountByDetectedCategory(ctx context.Context, key, language string) (int, error)

	// FindCategory returns the category with key scoped to language, or a
	// global one (empty language). ErrNotFound when neither exists.
	FindCategory(ctx context.Context, key, language string) (*news.Category, error)
	CreateCategory(ctx context.Context, c *news.Category) error

	Close() error
}

// Open returns a store for driver: "postgres", "sqlite" or "file".
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
		return OpenSQL(ctx, driver, dsn)
	case "file":
		return OpenFile(dsn)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", driver)
	}
}
