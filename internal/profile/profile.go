// Package profile resolves display data (name, avatar) for user ids from an
// external profile directory. Enrichment is best effort: callers degrade to
// empty display data when a lookup fails, and lookups are cached in Redis
// because the same authors appear on every list page.
package profile

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"quizdeck/internal/platform/metrics"
	"quizdeck/internal/platform/redis"
	"quizdeck/pkg/domain"
	"quizdeck/pkg/platform/sentinel"
)

// DisplayProfile is the subset of user profile data the API surfaces.
type DisplayProfile struct {
	UserID      domain.UserID `json:"user_id"`
	DisplayName string        `json:"display_name"`
	AvatarURL   string        `json:"avatar_url,omitempty"`
}

// Directory looks up display profiles by user id.
type Directory interface {
	Lookup(ctx context.Context, userID domain.UserID) (*DisplayProfile, error)
}

// HTTPDirectory fetches profiles from the profile service over HTTP.
type HTTPDirectory struct {
	baseURL string
	client  *http.Client
}

// NewHTTPDirectory creates a directory backed by the profile service at
// baseURL. The timeout bounds each lookup; enrichment must never hold up a
// quiz response for long.
func NewHTTPDirectory(baseURL string, timeout time.Duration) *HTTPDirectory {
	return &HTTPDirectory{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

func (d *HTTPDirectory) Lookup(ctx context.Context, userID domain.UserID) (*DisplayProfile, error) {
	url := d.baseURL + "/users/" + userID.String() + "/profile"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build profile request: %w", err)
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("profile request: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		// fallthrough to decode
	case http.StatusNotFound:
		return nil, sentinel.ErrNotFound
	default:
		return nil, fmt.Errorf("profile request: unexpected status %d", resp.StatusCode)
	}

	var p DisplayProfile
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode profile response: %w", err)
	}
	p.UserID = userID
	return &p, nil
}

// CachedDirectory layers a Redis read-through cache over another directory.
// Only successful lookups are cached; failures and not-found pass through so
// a transient outage does not poison the cache.
type CachedDirectory struct {
	inner   Directory
	cache   *redis.Client
	ttl     time.Duration
	metrics *metrics.Metrics
}

// NewCachedDirectory wraps inner with a Redis cache. metrics may be nil.
func NewCachedDirectory(inner Directory, cache *redis.Client, ttl time.Duration, m *metrics.Metrics) *CachedDirectory {
	return &CachedDirectory{inner: inner, cache: cache, ttl: ttl, metrics: m}
}

func (d *CachedDirectory) Lookup(ctx context.Context, userID domain.UserID) (*DisplayProfile, error) {
	key := cacheKey(userID)

	// Any cache trouble (miss, corrupt entry, redis outage) falls through to
	// the directory; the cache only ever saves work.
	if raw, err := d.cache.Get(ctx, key).Result(); err == nil {
		var p DisplayProfile
		if err := json.Unmarshal([]byte(raw), &p); err == nil {
			d.recordHit()
			return &p, nil
		}
	}
	d.recordMiss()

	p, err := d.inner.Lookup(ctx, userID)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(p); err == nil {
		// Best effort: a failed SET only costs a future miss.
		d.cache.Set(ctx, key, payload, d.ttl)
	}
	return p, nil
}

func (d *CachedDirectory) recordHit() {
	if d.metrics != nil {
		d.metrics.ProfileCacheHits.Inc()
	}
}

func (d *CachedDirectory) recordMiss() {
	if d.metrics != nil {
		d.metrics.ProfileCacheMisses.Inc()
	}
}

func cacheKey(userID domain.UserID) string {
	return "quizdeck:profile:" + userID.String()
}

// NoopDirectory is used when no profile service is configured. Every lookup
// reports unavailability and callers fall back to empty display data.
type NoopDirectory struct{}

func (NoopDirectory) Lookup(context.Context, domain.UserID) (*DisplayProfile, error) {
	return nil, sentinel.ErrUnavailable
}
