// Package metadata wraps the TMDB metadata service behind a small capability
// interface: search, detail fetches, external-id lookup, and a
// multi-strategy reconciliation wrapper used by the identification service
// and the scan pipeline.
package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/reelkeep/reelkeep/internal/models"
)

// Client is the capability set consumed by the resolver. A concrete TMDB
// implementation is provided by NewTMDBClient; tests substitute a fake.
type Client interface {
	SearchMovie(ctx context.Context, title string, year *int) ([]*models.MetadataMatch, error)
	SearchTV(ctx context.Context, title string, year *int) ([]*models.MetadataMatch, error)
	FetchMovieDetails(ctx context.Context, id string) (*models.MetadataMatch, error)
	FetchTVDetails(ctx context.Context, id string) (*models.MetadataMatch, error)
	FetchSeason(ctx context.Context, id string, season int) (int, error)
	FetchEpisode(ctx context.Context, id string, season, episode int) (*models.EpisodeDetails, error)
	FetchCollection(ctx context.Context, id string) (*models.MetadataMatch, error)
	FindByExternalID(ctx context.Context, imdbID string) (*models.MetadataMatch, error)
}

const tmdbBaseURL = "https://api.themoviedb.org/3"

// TMDBClient is the concrete Client backed by the real TMDB API.
type TMDBClient struct {
	apiKey string
	http   *http.Client
}

// NewTMDBClient builds a client with a 30s metadata-HTTP timeout.
func NewTMDBClient(apiKey string) *TMDBClient {
	return &TMDBClient{apiKey: apiKey, http: &http.Client{Timeout: 30 * time.Second}}
}

func (c *TMDBClient) get(ctx context.Context, path string, query url.Values) (json.RawMessage, error) {
	if c.apiKey == "" {
		return nil, ErrInvalidAPIKey
	}
	query.Set("api_key", c.apiKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tmdbBaseURL+path+"?"+query.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return nil, ErrInvalidAPIKey
	}
	if resp.StatusCode >= 400 {
		return nil, &APIError{Code: resp.StatusCode}
	}

	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrNetwork, err)
	}
	return raw, nil
}

type tmdbSearchResult struct {
	Results []tmdbResultItem `json:"results"`
}

type tmdbResultItem struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	Name          string  `json:"name"`
	OriginalTitle string  `json:"original_title"`
	OriginalName  string  `json:"original_name"`
	Overview      string  `json:"overview"`
	PosterPath    string  `json:"poster_path"`
	ReleaseDate   string  `json:"release_date"`
	FirstAirDate  string  `json:"first_air_date"`
	VoteAverage   float64 `json:"vote_average"`
	GenreIDs      []int   `json:"genre_ids"`
}

var tmdbGenreMap = map[int]string{
	28: "Action", 12: "Adventure", 16: "Animation", 35: "Comedy", 80: "Crime",
	99: "Documentary", 18: "Drama", 10751: "Family", 14: "Fantasy", 36: "History",
	27: "Horror", 10402: "Music", 9648: "Mystery", 10749: "Romance",
	878: "Science Fiction", 10770: "TV Movie", 53: "Thriller", 10752: "War", 37: "Western",
	10759: "Action & Adventure", 10762: "Kids", 10763: "News", 10764: "Reality",
	10765: "Sci-Fi & Fantasy", 10766: "Soap", 10767: "Talk", 10768: "War & Politics",
}

func (c *TMDBClient) search(ctx context.Context, kind, title string, year *int) ([]*models.MetadataMatch, error) {
	q := url.Values{"query": {title}}
	if year != nil && *year > 0 {
		if kind == "tv" {
			q.Set("first_air_date_year", strconv.Itoa(*year))
		} else {
			q.Set("year", strconv.Itoa(*year))
		}
	}
	raw, err := c.get(ctx, "/search/"+kind, q)
	if err != nil {
		return nil, err
	}
	var parsed tmdbSearchResult
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	matches := make([]*models.MetadataMatch, 0, len(parsed.Results))
	for _, r := range parsed.Results {
		matches = append(matches, itemToMatch(kind, r))
	}
	return matches, nil
}

func itemToMatch(kind string, r tmdbResultItem) *models.MetadataMatch {
	title := r.Title
	if title == "" {
		title = r.Name
	}
	origTitle := r.OriginalTitle
	if origTitle == "" {
		origTitle = r.OriginalName
	}
	dateStr := r.ReleaseDate
	if dateStr == "" {
		dateStr = r.FirstAirDate
	}
	var year *int
	if len(dateStr) >= 4 {
		if y, err := strconv.Atoi(dateStr[:4]); err == nil {
			year = &y
		}
	}
	var poster *string
	if r.PosterPath != "" {
		p := "https://image.tmdb.org/t/p/w500" + r.PosterPath
		poster = &p
	}
	var genres []string
	for _, gid := range r.GenreIDs {
		if name, ok := tmdbGenreMap[gid]; ok {
			genres = append(genres, name)
		}
	}
	rating := r.VoteAverage

	source := "tmdb_movie"
	if kind == "tv" {
		source = "tmdb_tv"
	}
	return &models.MetadataMatch{
		Source:        source,
		ExternalID:    strconv.Itoa(r.ID),
		Title:         title,
		OriginalTitle: origTitle,
		Year:          year,
		Overview:      r.Overview,
		PosterURL:     poster,
		Rating:        &rating,
		Genres:        genres,
	}
}

func (c *TMDBClient) SearchMovie(ctx context.Context, title string, year *int) ([]*models.MetadataMatch, error) {
	return c.search(ctx, "movie", title, year)
}

func (c *TMDBClient) SearchTV(ctx context.Context, title string, year *int) ([]*models.MetadataMatch, error) {
	return c.search(ctx, "tv", title, year)
}

type tmdbDetail struct {
	ID                  int     `json:"id"`
	Title               string  `json:"title"`
	Name                string  `json:"name"`
	OriginalTitle       string  `json:"original_title"`
	OriginalName        string  `json:"original_name"`
	Overview            string  `json:"overview"`
	PosterPath          string  `json:"poster_path"`
	ReleaseDate         string  `json:"release_date"`
	FirstAirDate        string  `json:"first_air_date"`
	VoteAverage         float64 `json:"vote_average"`
	NumberOfSeasons     int     `json:"number_of_seasons"`
	Genres              []struct {
		Name string `json:"name"`
	} `json:"genres"`
	BelongsToCollection *struct {
		ID   int    `json:"id"`
		Name string `json:"name"`
	} `json:"belongs_to_collection"`
	ImdbID string `json:"imdb_id"`
}

func (c *TMDBClient) fetchDetails(ctx context.Context, kind, id string) (*models.MetadataMatch, error) {
	raw, err := c.get(ctx, "/"+kind+"/"+id, url.Values{})
	if err != nil {
		return nil, err
	}
	var d tmdbDetail
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	title := d.Title
	if title == "" {
		title = d.Name
	}
	origTitle := d.OriginalTitle
	if origTitle == "" {
		origTitle = d.OriginalName
	}
	dateStr := d.ReleaseDate
	if dateStr == "" {
		dateStr = d.FirstAirDate
	}
	var year *int
	if len(dateStr) >= 4 {
		if y, err := strconv.Atoi(dateStr[:4]); err == nil {
			year = &y
		}
	}
	var poster *string
	if d.PosterPath != "" {
		p := "https://image.tmdb.org/t/p/w500" + d.PosterPath
		poster = &p
	}
	var genres []string
	for _, g := range d.Genres {
		genres = append(genres, g.Name)
	}
	var collection *models.CollectionRef
	if d.BelongsToCollection != nil {
		collection = &models.CollectionRef{ID: d.BelongsToCollection.ID, Name: d.BelongsToCollection.Name}
	}
	rating := d.VoteAverage

	source := "tmdb_movie"
	if kind == "tv" {
		source = "tmdb_tv"
	}
	return &models.MetadataMatch{
		Source:              source,
		ExternalID:          strconv.Itoa(d.ID),
		IMDBID:              d.ImdbID,
		Title:               title,
		OriginalTitle:       origTitle,
		Year:                year,
		Overview:            d.Overview,
		PosterURL:           poster,
		Rating:              &rating,
		Genres:              genres,
		BelongsToCollection: collection,
		SeasonCount:         d.NumberOfSeasons,
	}, nil
}

func (c *TMDBClient) FetchMovieDetails(ctx context.Context, id string) (*models.MetadataMatch, error) {
	return c.fetchDetails(ctx, "movie", id)
}

func (c *TMDBClient) FetchTVDetails(ctx context.Context, id string) (*models.MetadataMatch, error) {
	return c.fetchDetails(ctx, "tv", id)
}

type tmdbSeason struct {
	Episodes []json.RawMessage `json:"episodes"`
}

func (c *TMDBClient) FetchSeason(ctx context.Context, id string, season int) (int, error) {
	raw, err := c.get(ctx, fmt.Sprintf("/tv/%s/season/%d", id, season), url.Values{})
	if err != nil {
		return 0, err
	}
	var s tmdbSeason
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return len(s.Episodes), nil
}

type tmdbEpisode struct {
	Name string `json:"name"`
}

func (c *TMDBClient) FetchEpisode(ctx context.Context, id string, season, episode int) (*models.EpisodeDetails, error) {
	raw, err := c.get(ctx, fmt.Sprintf("/tv/%s/season/%d/episode/%d", id, season, episode), url.Values{})
	if err != nil {
		var apiErr *APIError
		if asAPIError(err, &apiErr) && apiErr.Code == http.StatusNotFound {
			return &models.EpisodeDetails{Exists: false}, nil
		}
		return nil, err
	}
	var e tmdbEpisode
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return &models.EpisodeDetails{Exists: true, Name: e.Name}, nil
}

func (c *TMDBClient) FetchCollection(ctx context.Context, id string) (*models.MetadataMatch, error) {
	raw, err := c.get(ctx, "/collection/"+id, url.Values{})
	if err != nil {
		return nil, err
	}
	var d struct {
		ID       int    `json:"id"`
		Name     string `json:"name"`
		Overview string `json:"overview"`
		Parts    []json.RawMessage `json:"parts"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	return &models.MetadataMatch{
		Source:      "tmdb_collection",
		ExternalID:  strconv.Itoa(d.ID),
		Title:       d.Name,
		Overview:    d.Overview,
		SeasonCount: len(d.Parts),
	}, nil
}

type tmdbCastMember struct {
	Name        string `json:"name"`
	Character   string `json:"character"`
	ProfilePath string `json:"profile_path"`
	Order       int    `json:"order"`
}

type tmdbCrewMember struct {
	Name        string `json:"name"`
	Job         string `json:"job"`
	Department  string `json:"department"`
	ProfilePath string `json:"profile_path"`
}

type tmdbCredits struct {
	Cast []tmdbCastMember `json:"cast"`
	Crew []tmdbCrewMember `json:"crew"`
}

func profileURL(path string) *string {
	if path == "" {
		return nil
	}
	p := "https://image.tmdb.org/t/p/w185" + path
	return &p
}

// FetchCredits fetches cast/crew for a movie or TV id. kind must be "movie"
// or "tv"; TV credits use TMDB's aggregate_credits endpoint since per-episode
// cast rotates and the per-series aggregate is what the credits endpoint
// actually wants.
func (c *TMDBClient) FetchCredits(ctx context.Context, kind, id string) (*models.Credits, error) {
	path := fmt.Sprintf("/%s/%s/credits", kind, id)
	if kind == "tv" {
		path = fmt.Sprintf("/tv/%s/aggregate_credits", id)
	}
	raw, err := c.get(ctx, path, url.Values{})
	if err != nil {
		return nil, err
	}
	var d tmdbCredits
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	out := &models.Credits{}
	for _, m := range d.Cast {
		out.Cast = append(out.Cast, models.CastMember{
			Name: m.Name, Character: m.Character, ProfileURL: profileURL(m.ProfilePath), Order: m.Order,
		})
	}
	for _, m := range d.Crew {
		out.Crew = append(out.Crew, models.CrewMember{
			Name: m.Name, Job: m.Job, Department: m.Department, ProfileURL: profileURL(m.ProfilePath),
		})
	}
	return out, nil
}

func (c *TMDBClient) FindByExternalID(ctx context.Context, imdbID string) (*models.MetadataMatch, error) {
	q := url.Values{"external_source": {"imdb_id"}}
	raw, err := c.get(ctx, "/find/"+imdbID, q)
	if err != nil {
		return nil, err
	}
	var d struct {
		MovieResults []tmdbResultItem `json:"movie_results"`
		TVResults    []tmdbResultItem `json:"tv_results"`
	}
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	if len(d.MovieResults) > 0 {
		m := itemToMatch("movie", d.MovieResults[0])
		m.IMDBID = imdbID
		return m, nil
	}
	if len(d.TVResults) > 0 {
		m := itemToMatch("tv", d.TVResults[0])
		m.IMDBID = imdbID
		return m, nil
	}
	return nil, nil
}
