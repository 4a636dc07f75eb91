package dedup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/deusflow/newsflow/internal/news"
)

const maxSlugAttempts = 20

// Store is the lookup side of the article store.
type Store interface {
	HasContentHash(ctx context.Context, hash string) (bool, error)
	HasCanonicalURL(ctx context.Context, canonical string) (bool, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
}

type Deduplicator struct {
	store   Store
	counter atomic.Uint64
	now     func() time.Time
}

func New(store Store) *Deduplicator {
	return &Deduplicator{store: store, now: time.Now}
}

// ContentHash is the deterministic digest used for the cheap early check.
func ContentHash(title, summary, sourceID string) string {
	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(title)))
	h.Write([]byte{0})
	h.Write([]byte(strings.TrimSpace(summary)))
	h.Write([]byte{0})
	h.Write([]byte(sourceID))
	return hex.EncodeToString(h.Sum(nil))
}

// IsDuplicate reports whether an article with the item's content hash exists.
// It runs before any page is fetched.
func (d *Deduplicator) IsDuplicate(ctx context.Context, item news.CandidateItem, sourceID string) (bool, error) {
	ok, err := d.store.HasContentHash(ctx, ContentHash(item.Title, item.Summary, sourceID))
	if err != nil {
		return false, fmt.Errorf("check content hash: %w", err)
	}
	return ok, nil
}

// SeenURL reports whether the canonical form of link is already stored.
func (d *Deduplicator) SeenURL(ctx context.Context, link string) (bool, error) {
	ok, err := d.store.HasCanonicalURL(ctx, CanonicalURL(link))
	if err != nil {
		return false, fmt.Errorf("check canonical url: %w", err)
	}
	return ok, nil
}

// ResolveSlug slugifies title and, while the slug is taken, appends a
// timestamp and an increasing counter.
func (d *Deduplicator) ResolveSlug(ctx context.Context, title string) (string, error) {
	base := Slugify(title)
	candidate := base
	for i := 0; i < maxSlugAttempts; i++ {
		taken, err := d.store.SlugExists(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("check slug: %w", err)
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d-%d", base, d.now().UnixMilli(), d.counter.Add(1))
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxSlugAttempts)
}

var trackingParams = map[string]bool{
	"fbclid": true, "gclid": true, "yclid": true, "mc_cid": true, "mc_eid": true,
	"ref": true, "ref_src": true, "cmpid": true, "ocid": true, "amp": true,
}

// CanonicalURL normalizes a link into the form used as its identity:
// lower-case scheme and host, no default port, fragment or tracking
// parameters, sorted query and no trailing slash.
func CanonicalURL(raw string) string {
	raw = strings.TrimSpace(raw)
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	host := strings.ToLower(u.Hostname())
	port := u.Port()
	if (u.Scheme == "http" && port == "80") || (u.Scheme == "https" && port == "443") {
		port = ""
	}
	if port != "" {
		host += ":" + port
	}
	u.Host = host
	u.Fragment = ""
	u.RawFragment = ""

	q := u.Query()
	for k := range q {
		if strings.HasPrefix(strings.ToLower(k), "utm_") || trackingParams[strings.ToLower(k)] {
			q.Del(k)
		}
	}
	u.RawQuery = q.Encode()

	if len(u.Path) > 1 {
		u.Path = strings.TrimRight(u.Path, "/")
		u.RawPath = ""
	}
	return u.String()
}
