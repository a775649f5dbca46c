package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/reelkeep/reelkeep/internal/models"
)

// SeriesRepository persists models.Series. Unlike
// collections (unique on tmdb_collection_id), the series table only indexes
// tmdb_id non-uniquely: two scans can race and insert two rows for the same
// show before either observes the other, so duplicate resolution happens on
// the read side in FindByTMDBID via the "most linked episodes, ties to most
// recent" rule instead of a write-side constraint.
type SeriesRepository struct {
	db        *sql.DB
	mediaRepo *MediaRepository
}

func NewSeriesRepository(db *sql.DB, mediaRepo *MediaRepository) *SeriesRepository {
	return &SeriesRepository{db: db, mediaRepo: mediaRepo}
}

const seriesColumns = `id, tmdb_id, title, original_title, first_air_date, genres, rating, created_at, updated_at`

func scanSeries(row interface{ Scan(...interface{}) error }) (*models.Series, error) {
	var s models.Series
	var firstAirDate sql.NullString
	var genres string
	var rating sql.NullFloat64

	err := row.Scan(&s.ID, &s.TMDBID, &s.Title, &s.OriginalTitle, &firstAirDate, &genres, &rating, &s.CreatedAt, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	s.FirstAirDate = parseNullableTime(firstAirDate)
	s.Genres = unmarshalStrings(genres)
	s.Rating = parseNullableFloat(rating)
	return &s, nil
}

// Create inserts a new series row and assigns s.ID. It does not attempt to
// dedup against an existing row with the same tmdb_id — callers wanting
// find-or-create semantics should call FindByTMDBID first.
func (r *SeriesRepository) Create(s *models.Series) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	_, err := r.db.Exec(`
		INSERT INTO series (`+seriesColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
		s.ID, s.TMDBID, s.Title, s.OriginalTitle, nullableTime(s.FirstAirDate), marshalStrings(s.Genres), s.Rating)
	if err != nil {
		return fmt.Errorf("create series %d: %w", s.TMDBID, err)
	}
	return nil
}

func (r *SeriesRepository) FindByID(id uuid.UUID) (*models.Series, error) {
	row := r.db.QueryRow(`SELECT `+seriesColumns+` FROM series WHERE id = ?`, id)
	s, err := scanSeries(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return s, err
}

// FindByTMDBID returns the canonical row for a tmdb series id when more than
// one exists: the one with the most episodes currently linked in media,
// ties broken by the most recent created_at.
func (r *SeriesRepository) FindByTMDBID(tmdbID int) (*models.Series, error) {
	rows, err := r.db.Query(`SELECT `+seriesColumns+` FROM series WHERE tmdb_id = ?`, tmdbID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []*models.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		candidates = append(candidates, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return nil, ErrNotFound
	}
	return r.bestOf(candidates)
}

// bestOf picks the canonical row among duplicates sharing a tmdb_id: most
// linked episodes wins, ties go to the most recently created row.
func (r *SeriesRepository) bestOf(candidates []*models.Series) (*models.Series, error) {
	if len(candidates) == 1 {
		return candidates[0], nil
	}
	best := candidates[0]
	bestCount, err := r.episodeCount(best.ID)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates[1:] {
		count, err := r.episodeCount(c.ID)
		if err != nil {
			return nil, err
		}
		if count > bestCount || (count == bestCount && c.CreatedAt.After(best.CreatedAt)) {
			best, bestCount = c, count
		}
	}
	return best, nil
}

// collapseByTMDBID reduces a series list to one row per tmdb_id, preserving
// the relative order of the surviving rows.
func (r *SeriesRepository) collapseByTMDBID(all []*models.Series) ([]*models.Series, error) {
	groups := make(map[int][]*models.Series, len(all))
	order := make([]int, 0, len(all))
	for _, s := range all {
		if _, seen := groups[s.TMDBID]; !seen {
			order = append(order, s.TMDBID)
		}
		groups[s.TMDBID] = append(groups[s.TMDBID], s)
	}

	out := make([]*models.Series, 0, len(order))
	for _, tmdbID := range order {
		best, err := r.bestOf(groups[tmdbID])
		if err != nil {
			return nil, err
		}
		out = append(out, best)
	}
	return out, nil
}

// UpsertSeason records the episode count TMDB reports for one season of a
// series, keyed on (series_id, season_number) so a rescan refreshes the
// count in place.
func (r *SeriesRepository) UpsertSeason(seriesID uuid.UUID, seasonNumber, episodeCount int) error {
	_, err := r.db.Exec(`
		INSERT INTO seasons (id, series_id, season_number, episode_count)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(series_id, season_number) DO UPDATE SET
			episode_count = excluded.episode_count,
			updated_at = CURRENT_TIMESTAMP`,
		uuid.New(), seriesID, seasonNumber, episodeCount)
	if err != nil {
		return fmt.Errorf("upsert season %d of %s: %w", seasonNumber, seriesID, err)
	}
	return nil
}

func (r *SeriesRepository) episodeCount(seriesID uuid.UUID) (int, error) {
	var n int
	err := r.db.QueryRow(`SELECT COUNT(*) FROM media WHERE series_id = ?`, seriesID).Scan(&n)
	return n, err
}

// ListAll returns every show once: rows sharing a tmdb_id are collapsed
// to their canonical row (see bestOf).
func (r *SeriesRepository) ListAll() ([]*models.Series, error) {
	rows, err := r.db.Query(`SELECT ` + seriesColumns + ` FROM series ORDER BY title`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.collapseByTMDBID(out)
}

// FindRecentByEpisode returns series ordered by when their most recent
// episode was added to the library, collapsed by tmdb_id.
func (r *SeriesRepository) FindRecentByEpisode(limit int) ([]*models.Series, error) {
	rows, err := r.db.Query(`
		SELECT s.id, s.tmdb_id, s.title, s.original_title, s.first_air_date, s.genres, s.rating, s.created_at, s.updated_at
		FROM series s
		JOIN media m ON m.series_id = s.id
		GROUP BY s.id
		ORDER BY MAX(m.created_at) DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Series
	for rows.Next() {
		s, err := scanSeries(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return r.collapseByTMDBID(out)
}

func (r *SeriesRepository) Update(s *models.Series) error {
	result, err := r.db.Exec(`
		UPDATE series SET title = ?, original_title = ?, first_air_date = ?, genres = ?, rating = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		s.Title, s.OriginalTitle, nullableTime(s.FirstAirDate), marshalStrings(s.Genres), s.Rating, s.ID)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *SeriesRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM series WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
