package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/deusflow/newsflow/internal/news"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var articleColumns = []string{
	"id", "title", "slug", "summary", "content", "images", "category", "detected_category",
	"detected_categories", "tags", "author", "language", "source_id", "source_name", "source_url",
	"status", "published_at", "scraped_at", "canonical_url", "thumbnail", "word_count",
	"reading_time", "seo", "content_hash", "created_at",
}

var categoryColumns = []string{
	"id", "category_key", "label", "icon", "color", "parent", "sort_order", "active",
	"language", "is_dynamic", "created_at",
}

// SQLStore persists to PostgreSQL or SQLite through database/sql.
type SQLStore struct {
	db     *sql.DB
	driver string
	sb     sq.StatementBuilderType
}

func OpenSQL(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	var placeholder sq.PlaceholderFormat
	switch driver {
	case DriverPostgres:
		placeholder = sq.Dollar
	case DriverSQLite:
		placeholder = sq.Question
	default:
		return nil, fmt.Errorf("unsupported sql driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if driver == DriverSQLite {
		// one writer at a time; avoids SQLITE_BUSY under concurrent batches
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	version, err := Migrate(db, driver)
	if err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("database ready", "driver", driver, "schema_version", version)

	return &SQLStore{
		db:     db,
		driver: driver,
		sb:     sq.StatementBuilder.PlaceholderFormat(placeholder),
	}, nil
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

func (s *SQLStore) ListActiveSources(ctx context.Context) ([]news.Source, error) {
	query, args, err := s.sb.
		Select("id", "name", "type", "feed_urls", "api_url", "categories", "language", "active", "last_scraped").
		From("sources").
		Where(sq.Eq{"active": true}).
		OrderBy("id").
		ToSql()
	if err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}
	defer rows.Close()

	var sources []news.Source
	for rows.Next() {
		var (
			src        news.Source
			srcType    string
			feeds      string
			categories string
			last       sql.NullTime
		)
		if err := rows.Scan(&src.ID, &src.Name, &srcType, &feeds, &src.APIURL, &categories, &src.Language, &src.Active, &last); err != nil {
			return nil, fmt.Errorf("scan source: %w", err)
		}
		src.Type = news.SourceType(srcType)
		if err := unmarshalJSON(feeds, &src.FeedURLs); err != nil {
			return nil, fmt.Errorf("source %s feed_urls: %w", src.ID, err)
		}
		if err := unmarshalJSON(categories, &src.Categories); err != nil {
			return nil, fmt.Errorf("source %s categories: %w", src.ID, err)
		}
		if last.Valid {
			t := last.Time
			src.LastScraped = &t
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

func (s *SQLStore) UpsertSource(ctx context.Context, src news.Source) error {
	srcType := src.Type
	if srcType == "" {
		srcType = news.SourceFeed
	}
	now := time.Now().UTC()
	query, args, err := s.sb.
		Insert("sources").
		Columns("id", "name", "type", "feed_urls", "api_url", "categories", "language", "active", "created_at", "updated_at").
		Values(src.ID, src.Name, string(srcType), marshalJSON(src.FeedURLs), src.APIURL, marshalJSON(src.Categories), src.Language, src.Active, now, now).
		Suffix(`ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, type = EXCLUDED.type,
			feed_urls = EXCLUDED.feed_urls, api_url = EXCLUDED.api_url, categories = EXCLUDED.categories,
			language = EXCLUDED.language, active = EXCLUDED.active, updated_at = EXCLUDED.updated_at`).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert source %s: %w", src.ID, err)
	}
	return nil
}

func (s *SQLStore) TouchSource(ctx context.Context, id string, at time.Time) error {
	query, args, err := s.sb.Update("sources").
		Set("last_scraped", at.UTC()).
		Where(sq.Eq{"id": id}).
		ToSql()
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("touch source %s: %w", id, err)
	}
	return nil
}

func (s *SQLStore) HasContentHash(ctx context.Context, hash string) (bool, error) {
	return s.exists(ctx, "articles", sq.Eq{"content_hash": hash})
}

func (s *SQLStore) HasCanonicalURL(ctx context.Context, canonical string) (bool, error) {
	return s.exists(ctx, "articles", sq.Eq{"canonical_url": canonical})
}

func (s *SQLStore) SlugExists(ctx context.Context, slug string) (bool, error) {
	return s.exists(ctx, "articles", sq.Eq{"slug": slug})
}

func (s *SQLStore) exists(ctx context.Context, table string, where sq.Sqlizer) (bool, error) {
	n, err := s.count(ctx, table, where)
	return n > 0, err
}

func (s *SQLStore) count(ctx context.Context, table string, where sq.Sqlizer) (int, error) {
	builder := s.sb.Select("COUNT(*)").From(table)
	if where != nil {
		builder = builder.Where(where)
	}
	query, args, err := builder.ToSql()
	if err != nil {
		return 0, err
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

func (s *SQLStore) CountArticles(ctx context.Context) (int, error) {
	return s.count(ctx, "articles", nil)
}

func (s *SQLStore) CountByDetectedCategory(ctx context.Context, key, language string) (int, error) {
	return s.count(ctx, "articles", sq.Eq{"detected_category": key, "language": language})
}

// InsertArticle writes a new article. A clash on content hash, canonical
// URL or slug yields ErrDuplicate.
func (s *SQLStore) InsertArticle(ctx context.Context, a *news.Article) error {
	query, args, err := s.sb.
		Insert("articles").
		Columns(articleColumns...).
		Values(
			a.ID, a.Title, a.Slug, a.Summary, a.Content, marshalJSON(a.Images), a.Category, a.DetectedCategory(),
			marshalJSON(a.DetectedCategories), marshalJSON(a.Tags), a.Author, a.Language, a.Source.ID, a.Source.Name, a.Source.URL,
			string(a.Status), a.PublishedAt.UTC(), a.ScrapedAt.UTC(), a.CanonicalURL, a.Thumbnail, a.WordCount,
			a.ReadingTime, marshalJSON(a.SEO), a.ContentHash, a.CreatedAt.UTC(),
		).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("insert article: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func (s *SQLStore) FindCategory(ctx context.Context, key, language string) (*news.Category, error) {
	query, args, err := s.sb.
		Select(categoryColumns...).
		From("categories").
		Where(sq.Eq{"category_key": key, "language": []string{language, ""}}).
		OrderBy("language DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, err
	}

	var c news.Category
	err = s.db.QueryRowContext(ctx, query, args...).Scan(
		&c.ID, &c.Key, &c.Label, &c.Icon, &c.Color, &c.Parent, &c.Order, &c.Active, &c.Language, &c.IsDynamic, &c.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find category %s/%s: %w", key, language, err)
	}
	return &c, nil
}

func (s *SQLStore) CreateCategory(ctx context.Context, c *news.Category) error {
	query, args, err := s.sb.
		Insert("categories").
		Columns(categoryColumns...).
		Values(c.ID, c.Key, c.Label, c.Icon, c.Color, c.Parent, c.Order, c.Active, c.Language, c.IsDynamic, c.CreatedAt.UTC()).
		Suffix("ON CONFLICT DO NOTHING").
		ToSql()
	if err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("create category %s: %w", c.Key, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrDuplicate
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505"
	}
	var liteErr *sqlite.Error
	if errors.As(err, &liteErr) {
		code := liteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return false
}

func marshalJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil || string(data) == "null" {
		return "[]"
	}
	return string(data)
}

func unmarshalJSON(data string, v any) error {
	if data == "" {
		return nil
	}
	return json.Unmarshal([]byte(data), v)
}
