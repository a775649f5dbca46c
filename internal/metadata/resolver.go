package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/reelkeep/reelkeep/internal/models"
)

// Resolver is a rate-limited, caching decorator around a Client plus the
// reconciliation logic that turns a filename/folder guess into a confident
// TMDB match.
type Resolver struct {
	client  Client
	cache   Cache
	limiter *rate.Limiter
	flight  singleflight.Group
}

// NewResolver builds a resolver with the default 4 requests/sec pacing.
// golang.org/x/time/rate's token bucket refills on a fixed schedule
// independent of how long the previous request took to answer — a permit
// is released after a fixed pacing delay, not immediately after the
// response returns, so Wait() is used directly instead of a hand-rolled
// semaphore.
func NewResolver(client Client, cache Cache) *Resolver {
	return &Resolver{client: client, cache: cache, limiter: rate.NewLimiter(rate.Limit(4), 4)}
}

// WithRateLimit overrides the default requests-per-second pacing.
func (r *Resolver) WithRateLimit(perSecond int) *Resolver {
	r.limiter = rate.NewLimiter(rate.Limit(perSecond), perSecond)
	return r
}

func (r *Resolver) wait(ctx context.Context) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", ErrRateLimited, err)
	}
	return nil
}

// cached runs fetch, consulting the cache first and writing back on a miss.
// Cache errors are swallowed — cache failures must never fail the call —
// but logged so an operator can notice a broken cache backend.
func cached[T any](r *Resolver, key string, ttl time.Duration, fetch func() (T, error)) (T, error) {
	var zero T
	if r.cache != nil {
		if raw, ok, err := r.cache.Get(key); err != nil {
			log.Printf("metadata: cache get %q failed: %v", key, err)
		} else if ok {
			var v T
			if err := json.Unmarshal([]byte(raw), &v); err == nil {
				return v, nil
			}
		}
	}

	// Parallel scan workers hit the same series/season endpoints for every
	// episode of a show; collapse concurrent identical fetches into one
	// upstream call so they all share a single rate-limiter permit.
	out, err, _ := r.flight.Do(key, func() (interface{}, error) {
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			if raw, err := json.Marshal(v); err == nil {
				if err := r.cache.Set(key, string(raw), ttl); err != nil {
					log.Printf("metadata: cache set %q failed: %v", key, err)
				}
			}
		}
		return v, nil
	})
	if err != nil {
		return zero, err
	}
	return out.(T), nil
}

// FetchMovieDetails consults the 24h detail cache before hitting TMDB.
func (r *Resolver) FetchMovieDetails(ctx context.Context, id string) (*models.MetadataMatch, error) {
	key := "tmdb:movie:" + id
	return cached(r, key, detailCacheTTL, func() (*models.MetadataMatch, error) {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		return r.client.FetchMovieDetails(ctx, id)
	})
}

// FetchTVDetails consults the 24h detail cache before hitting TMDB.
func (r *Resolver) FetchTVDetails(ctx context.Context, id string) (*models.MetadataMatch, error) {
	key := "tmdb:tv:" + id
	return cached(r, key, detailCacheTTL, func() (*models.MetadataMatch, error) {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		return r.client.FetchTVDetails(ctx, id)
	})
}

// FetchCollection consults the 7d collection cache before hitting TMDB.
func (r *Resolver) FetchCollection(ctx context.Context, id string) (*models.MetadataMatch, error) {
	key := "tmdb:collection:" + id
	return cached(r, key, collectionCacheTTL, func() (*models.MetadataMatch, error) {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		return r.client.FetchCollection(ctx, id)
	})
}

// FetchEpisode is used by the episode-existence filter and by the scan
// pipeline's per-episode check; it is cached (24h) since both may ask for
// the same season/episode.
func (r *Resolver) FetchEpisode(ctx context.Context, id string, season, episode int) (*models.EpisodeDetails, error) {
	key := fmt.Sprintf("tmdb:episode:%s:%d:%d", id, season, episode)
	return cached(r, key, detailCacheTTL, func() (*models.EpisodeDetails, error) {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		return r.client.FetchEpisode(ctx, id, season, episode)
	})
}

// SearchMovie and SearchTV are not cached: the same query rarely repeats and
// search relevance ordering is part of what's being cross-checked.
func (r *Resolver) SearchMovie(ctx context.Context, title string, year *int) ([]*models.MetadataMatch, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.client.SearchMovie(ctx, title, year)
}

func (r *Resolver) SearchTV(ctx context.Context, title string, year *int) ([]*models.MetadataMatch, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.client.SearchTV(ctx, title, year)
}

// FetchSeason reports the episode count of a season; the scan pipeline
// records it when it upserts a series' season.
func (r *Resolver) FetchSeason(ctx context.Context, id string, season int) (int, error) {
	key := fmt.Sprintf("tmdb:season:%s:%d", id, season)
	return cached(r, key, detailCacheTTL, func() (int, error) {
		if err := r.wait(ctx); err != nil {
			return 0, err
		}
		return r.client.FetchSeason(ctx, id, season)
	})
}

// creditsFetcher is the optional capability TMDBClient provides beyond the
// narrow Client interface the reconciliation strategies consume; the
// /v2/media/:id/credits endpoint is the only caller, so it isn't worth
// widening Client (and every test fake) just for this one extra method.
type creditsFetcher interface {
	FetchCredits(ctx context.Context, kind, id string) (*models.Credits, error)
}

// ErrCreditsUnsupported is returned when the configured Client doesn't
// implement credits fetching (e.g. a test fake).
var ErrCreditsUnsupported = fmt.Errorf("metadata: client does not support credits")

// FetchCredits consults the 24h detail cache before hitting TMDB. kind must
// be "movie" or "tv".
func (r *Resolver) FetchCredits(ctx context.Context, kind, id string) (*models.Credits, error) {
	fetcher, ok := r.client.(creditsFetcher)
	if !ok {
		return nil, ErrCreditsUnsupported
	}
	key := fmt.Sprintf("tmdb:credits:%s:%s", kind, id)
	return cached(r, key, detailCacheTTL, func() (*models.Credits, error) {
		if err := r.wait(ctx); err != nil {
			return nil, err
		}
		return fetcher.FetchCredits(ctx, kind, id)
	})
}

func (r *Resolver) FindByExternalID(ctx context.Context, imdbID string) (*models.MetadataMatch, error) {
	if err := r.wait(ctx); err != nil {
		return nil, err
	}
	return r.client.FindByExternalID(ctx, imdbID)
}
