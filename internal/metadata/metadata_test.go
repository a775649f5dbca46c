package metadata

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/reelkeep/reelkeep/internal/models"
)

// memCache is an in-memory Cache for tests; the real implementation lives in
// the repository layer's cache table.
type memCache struct {
	mu   sync.Mutex
	data map[string]string
}

func newMemCache() *memCache { return &memCache{data: map[string]string{}} }

func (c *memCache) Get(key string) (string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.data[key]
	return v, ok, nil
}

func (c *memCache) Set(key, value string, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = value
	return nil
}

func (c *memCache) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.data, key)
	return nil
}

// fakeClient is a scripted Client used to drive reconciliation and caching
// tests without any network access.
type fakeClient struct {
	mu             sync.Mutex
	searchMovie    func(title string, year *int) ([]*models.MetadataMatch, error)
	searchTV       func(title string, year *int) ([]*models.MetadataMatch, error)
	fetchEpisode   func(id string, season, episode int) (*models.EpisodeDetails, error)
	movieDetailsCalls int
}

func (f *fakeClient) SearchMovie(ctx context.Context, title string, year *int) ([]*models.MetadataMatch, error) {
	if f.searchMovie == nil {
		return nil, nil
	}
	return f.searchMovie(title, year)
}

func (f *fakeClient) SearchTV(ctx context.Context, title string, year *int) ([]*models.MetadataMatch, error) {
	if f.searchTV == nil {
		return nil, nil
	}
	return f.searchTV(title, year)
}

func (f *fakeClient) FetchMovieDetails(ctx context.Context, id string) (*models.MetadataMatch, error) {
	f.mu.Lock()
	f.movieDetailsCalls++
	f.mu.Unlock()
	return &models.MetadataMatch{Source: "tmdb_movie", ExternalID: id, Title: "Wonka"}, nil
}

func (f *fakeClient) FetchTVDetails(ctx context.Context, id string) (*models.MetadataMatch, error) {
	return &models.MetadataMatch{Source: "tmdb_tv", ExternalID: id}, nil
}

func (f *fakeClient) FetchSeason(ctx context.Context, id string, season int) (int, error) {
	return 10, nil
}

func (f *fakeClient) FetchEpisode(ctx context.Context, id string, season, episode int) (*models.EpisodeDetails, error) {
	if f.fetchEpisode == nil {
		return &models.EpisodeDetails{Exists: true}, nil
	}
	return f.fetchEpisode(id, season, episode)
}

func (f *fakeClient) FetchCollection(ctx context.Context, id string) (*models.MetadataMatch, error) {
	return &models.MetadataMatch{Source: "tmdb_collection", ExternalID: id}, nil
}

func (f *fakeClient) FindByExternalID(ctx context.Context, imdbID string) (*models.MetadataMatch, error) {
	return nil, nil
}

func TestTitleSimilarity_ExactAndPrefixAndOverlap(t *testing.T) {
	if got := titleSimilarity("Wonka", "Wonka"); got != 1.0 {
		t.Fatalf("exact match = %f, want 1.0", got)
	}
	if got := titleSimilarity("Cloverfield", "10 Cloverfield Lane"); got >= 0.9 {
		t.Fatalf("partial overlap scored too high: %f", got)
	}
}

func TestTitleVariants_IncludesNumeralSwapAndArticleStrip(t *testing.T) {
	variants := titleVariants("The Matrix")
	found := false
	for _, v := range variants {
		if v == "Matrix" {
			found = true
		}
	}
	if !found {
		t.Fatalf("variants %v missing article-stripped form", variants)
	}

	romanVariants := titleVariants("Rocky III")
	found = false
	for _, v := range romanVariants {
		if v == "Rocky 3" {
			found = true
		}
	}
	if !found {
		t.Fatalf("variants %v missing arabic numeral swap", romanVariants)
	}
}

func TestExtractIMDBID_FindsEmbeddedID(t *testing.T) {
	id, ok := extractIMDBID("release notes mention tt1234567 somewhere")
	if !ok || id != "tt1234567" {
		t.Fatalf("extractIMDBID = %q, %v", id, ok)
	}
	if _, ok := extractIMDBID("no id here"); ok {
		t.Fatal("expected no match")
	}
}

func TestReconcile_FilenameWithYearStrategyScalesConfidence(t *testing.T) {
	year := 2023
	client := &fakeClient{
		searchMovie: func(title string, y *int) ([]*models.MetadataMatch, error) {
			return []*models.MetadataMatch{
				{Source: "tmdb_movie", ExternalID: "1", Title: "Wonka", Year: &year},
			}, nil
		},
	}
	r := NewResolver(client, nil).WithRateLimit(1000)

	result, err := r.Reconcile(context.Background(), ReconcileRequest{
		MediaType: models.MediaTypeMovie,
		Title:     "Wonka",
		Year:      &year,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Strategy != models.StrategyFilenameWithYear {
		t.Fatalf("strategy = %v, want FilenameWithYear", result.Strategy)
	}
	if result.Best == nil || result.Best.Confidence != 0.85 {
		t.Fatalf("best = %+v, want confidence 0.85 (exact title match)", result.Best)
	}
}

func TestReconcile_EpisodeExistenceFilterNarrowsCandidates(t *testing.T) {
	year := 2008
	client := &fakeClient{
		searchTV: func(title string, y *int) ([]*models.MetadataMatch, error) {
			return []*models.MetadataMatch{
				{Source: "tmdb_tv", ExternalID: "100", Title: "Breaking Bad", Year: &year, SeasonCount: 5},
				{Source: "tmdb_tv", ExternalID: "200", Title: "Breaking Bad", Year: &year, SeasonCount: 1},
			}, nil
		},
		fetchEpisode: func(id string, season, episode int) (*models.EpisodeDetails, error) {
			return &models.EpisodeDetails{Exists: id == "100"}, nil
		},
	}
	r := NewResolver(client, nil).WithRateLimit(1000)

	season, episode := 3, 7
	result, err := r.Reconcile(context.Background(), ReconcileRequest{
		MediaType: models.MediaTypeEpisode,
		Title:     "Breaking Bad",
		Year:      &year,
		Season:    &season,
		Episode:   &episode,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Best == nil || result.Best.ExternalID != "100" {
		t.Fatalf("best = %+v, want the candidate whose episode exists (id=100)", result.Best)
	}
	if len(result.Alternatives) != 0 {
		t.Fatalf("alternatives = %+v, want none (other candidate's episode doesn't exist)", result.Alternatives)
	}
}

func TestResolver_CachesMovieDetailFetch(t *testing.T) {
	client := &fakeClient{}
	cache := newMemCache()
	r := NewResolver(client, cache).WithRateLimit(1000)

	first, err := r.FetchMovieDetails(context.Background(), "42")
	if err != nil {
		t.Fatalf("first fetch: %v", err)
	}
	second, err := r.FetchMovieDetails(context.Background(), "42")
	if err != nil {
		t.Fatalf("second fetch: %v", err)
	}
	if first.Title != second.Title {
		t.Fatalf("cached fetch mismatch: %+v vs %+v", first, second)
	}
	if client.movieDetailsCalls != 1 {
		t.Fatalf("underlying client called %d times, want 1 (second call should hit cache)", client.movieDetailsCalls)
	}
}

func TestReconcile_NoCandidatesReturnsEmptyResult(t *testing.T) {
	client := &fakeClient{}
	r := NewResolver(client, nil).WithRateLimit(1000)

	result, err := r.Reconcile(context.Background(), ReconcileRequest{
		MediaType: models.MediaTypeMovie,
		Title:     "Nonexistent Film That Matches Nothing",
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	if result.Best != nil {
		t.Fatalf("best = %+v, want nil", result.Best)
	}
}

func TestReconcile_SimilarCandidatesKeepRankedConfidences(t *testing.T) {
	year := 2023
	client := &fakeClient{
		searchMovie: func(title string, y *int) ([]*models.MetadataMatch, error) {
			return []*models.MetadataMatch{
				{Source: "tmdb_movie", ExternalID: "1", Title: "Wonka", Year: &year},
				{Source: "tmdb_movie", ExternalID: "2", Title: "Wonka", Year: &year},
			}, nil
		},
	}
	r := NewResolver(client, nil).WithRateLimit(1000)

	result, err := r.Reconcile(context.Background(), ReconcileRequest{
		MediaType: models.MediaTypeMovie,
		Title:     "Wonka",
		Year:      &year,
	})
	if err != nil {
		t.Fatalf("reconcile: %v", err)
	}
	// Ambiguity between near-equal candidates is the confidence scorer's
	// signal to penalize; reconcile itself must report the candidates'
	// ranked confidences untouched.
	if result.Best == nil || result.Best.Confidence != 0.85 {
		t.Fatalf("best confidence = %+v, want undeflated 0.85", result.Best)
	}
	if len(result.Alternatives) != 1 || result.Alternatives[0].Confidence != 0.85 {
		t.Fatalf("alternatives = %+v, want one undeflated 0.85 candidate", result.Alternatives)
	}
}
