package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/reelkeep/reelkeep/internal/models"
)

// MediaRepository persists models.Media, keyed for idempotent upsert by
// the file_path unique index: a rescan of a path it has already seen
// updates the row in place instead of inserting a duplicate.
type MediaRepository struct {
	db *sql.DB
}

func NewMediaRepository(db *sql.DB) *MediaRepository {
	return &MediaRepository{db: db}
}

const mediaColumns = `id, file_path, media_type, title, original_title, release_date, genres,
	rating, series_id, season, episode, episode_end, tmdb_id, confidence_score,
	verification_status, identification_strategy, alternative_matches,
	current_position, is_watched, duration_seconds, created_at, updated_at`

func scanMedia(row interface{ Scan(...interface{}) error }) (*models.Media, error) {
	var m models.Media
	var releaseDate sql.NullString
	var genres, altMatches string
	var seriesID sql.NullString
	var isWatched int
	var rating, confidence sql.NullFloat64
	var season, episode, episodeEnd, tmdbID, durationSeconds sql.NullInt64

	err := row.Scan(
		&m.ID, &m.FilePath, &m.MediaType, &m.Title, &m.OriginalTitle, &releaseDate, &genres,
		&rating, &seriesID, &season, &episode, &episodeEnd, &tmdbID, &confidence,
		&m.VerificationStatus, &m.IdentificationStrategy, &altMatches,
		&m.CurrentPosition, &isWatched, &durationSeconds, &m.CreatedAt, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	m.ReleaseDate = parseNullableTime(releaseDate)
	m.Genres = unmarshalStrings(genres)
	m.IsWatched = isWatched != 0
	m.Rating = parseNullableFloat(rating)
	m.ConfidenceScore = confidence.Float64
	m.Season = parseNullableInt(season)
	m.Episode = parseNullableInt(episode)
	m.EpisodeEnd = parseNullableInt(episodeEnd)
	m.TMDBID = parseNullableInt(tmdbID)
	m.DurationSeconds = parseNullableInt(durationSeconds)
	if seriesID.Valid {
		id, perr := uuid.Parse(seriesID.String)
		if perr == nil {
			m.SeriesID = &id
		}
	}
	if altMatches != "" {
		_ = json.Unmarshal([]byte(altMatches), &m.AlternativeMatches)
	}
	return &m, nil
}

// Save upserts by file_path (the natural key): an existing row with the same
// path is updated in place and its id preserved; otherwise a new row is
// inserted and m.ID is assigned.
func (r *MediaRepository) Save(m *models.Media) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	altJSON, _ := json.Marshal(m.AlternativeMatches)

	var seriesID interface{}
	if m.SeriesID != nil {
		seriesID = m.SeriesID.String()
	}
	isWatched := 0
	if m.IsWatched {
		isWatched = 1
	}

	query := `
		INSERT INTO media (` + mediaColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(file_path) DO UPDATE SET
			media_type = excluded.media_type,
			title = excluded.title,
			original_title = excluded.original_title,
			release_date = excluded.release_date,
			genres = excluded.genres,
			rating = excluded.rating,
			series_id = excluded.series_id,
			season = excluded.season,
			episode = excluded.episode,
			episode_end = excluded.episode_end,
			tmdb_id = excluded.tmdb_id,
			confidence_score = excluded.confidence_score,
			verification_status = excluded.verification_status,
			identification_strategy = excluded.identification_strategy,
			alternative_matches = excluded.alternative_matches,
			duration_seconds = COALESCE(excluded.duration_seconds, media.duration_seconds),
			updated_at = CURRENT_TIMESTAMP`

	_, err := r.db.Exec(query,
		m.ID, m.FilePath, m.MediaType, m.Title, m.OriginalTitle, nullableTime(m.ReleaseDate), marshalStrings(m.Genres),
		m.Rating, seriesID, m.Season, m.Episode, m.EpisodeEnd, m.TMDBID, m.ConfidenceScore,
		m.VerificationStatus, m.IdentificationStrategy, string(altJSON),
		m.CurrentPosition, isWatched, m.DurationSeconds,
	)
	if err != nil {
		return fmt.Errorf("save media %s: %w", m.FilePath, err)
	}
	return r.refreshID(m)
}

// refreshID re-reads the id assigned by an upsert that hit the ON CONFLICT
// path (m.ID as supplied is only used for brand-new rows).
func (r *MediaRepository) refreshID(m *models.Media) error {
	row := r.db.QueryRow(`SELECT id FROM media WHERE file_path = ?`, m.FilePath)
	return row.Scan(&m.ID)
}

func (r *MediaRepository) FindByID(id uuid.UUID) (*models.Media, error) {
	row := r.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE id = ?`, id)
	m, err := scanMedia(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *MediaRepository) FindByPath(path string) (*models.Media, error) {
	row := r.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE file_path = ?`, path)
	m, err := scanMedia(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *MediaRepository) FindByTMDBID(tmdbID int) (*models.Media, error) {
	row := r.db.QueryRow(`SELECT `+mediaColumns+` FROM media WHERE tmdb_id = ? LIMIT 1`, tmdbID)
	m, err := scanMedia(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *MediaRepository) queryMedia(query string, args ...interface{}) ([]*models.Media, error) {
	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *MediaRepository) FindAll(limit, offset int) ([]*models.Media, error) {
	return r.queryMedia(`SELECT `+mediaColumns+` FROM media ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
}

func (r *MediaRepository) FindByType(mediaType models.MediaType, limit int) ([]*models.Media, error) {
	return r.queryMedia(`SELECT `+mediaColumns+` FROM media WHERE media_type = ? ORDER BY title LIMIT ?`, mediaType, limit)
}

func (r *MediaRepository) FindBySeries(seriesID uuid.UUID) ([]*models.Media, error) {
	return r.queryMedia(`SELECT `+mediaColumns+` FROM media WHERE series_id = ? ORDER BY season, episode`, seriesID)
}

func (r *MediaRepository) FindBySeason(seriesID uuid.UUID, season int) ([]*models.Media, error) {
	return r.queryMedia(`SELECT `+mediaColumns+` FROM media WHERE series_id = ? AND season = ? ORDER BY episode`, seriesID, season)
}

func (r *MediaRepository) FindRecent(limit int) ([]*models.Media, error) {
	return r.queryMedia(`SELECT `+mediaColumns+` FROM media ORDER BY created_at DESC LIMIT ?`, limit)
}

func (r *MediaRepository) FindInProgress(limit int) ([]*models.Media, error) {
	return r.queryMedia(`SELECT `+mediaColumns+` FROM media WHERE current_position > 0 AND is_watched = 0 ORDER BY updated_at DESC LIMIT ?`, limit)
}

func (r *MediaRepository) Search(query string, mediaType *models.MediaType, limit int) ([]*models.Media, error) {
	like := "%" + query + "%"
	if mediaType != nil {
		return r.queryMedia(`SELECT `+mediaColumns+` FROM media
			WHERE (title LIKE ? OR original_title LIKE ?) AND media_type = ?
			ORDER BY title LIMIT ?`, like, like, *mediaType, limit)
	}
	return r.queryMedia(`SELECT `+mediaColumns+` FROM media
		WHERE title LIKE ? OR original_title LIKE ?
		ORDER BY title LIMIT ?`, like, like, limit)
}

func (r *MediaRepository) UpdateProgress(id uuid.UUID, positionSeconds float64, watched bool) error {
	w := 0
	if watched {
		w = 1
	}
	result, err := r.db.Exec(`UPDATE media SET current_position = ?, is_watched = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		positionSeconds, w, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	// The media row holds the live position; watch_progress keeps the
	// history behind "continue watching" and watched-date queries.
	_, err = r.db.Exec(`INSERT INTO watch_progress (media_id, position_seconds, is_watched) VALUES (?, ?, ?)`,
		id, positionSeconds, w)
	return err
}

// CreditsFor returns the stored cast/crew payload for a media item and when
// it was fetched, or ErrNotFound when credits were never stored.
func (r *MediaRepository) CreditsFor(id uuid.UUID) (*models.Credits, time.Time, error) {
	var payload string
	var fetchedAt time.Time
	err := r.db.QueryRow(`SELECT payload, fetched_at FROM media_credits WHERE media_id = ?`, id).
		Scan(&payload, &fetchedAt)
	if err == sql.ErrNoRows {
		return nil, time.Time{}, ErrNotFound
	}
	if err != nil {
		return nil, time.Time{}, err
	}
	var c models.Credits
	if err := json.Unmarshal([]byte(payload), &c); err != nil {
		return nil, time.Time{}, fmt.Errorf("decode credits for %s: %w", id, err)
	}
	return &c, fetchedAt, nil
}

// SaveCredits stores (or refreshes) the cast/crew payload for a media item.
func (r *MediaRepository) SaveCredits(id uuid.UUID, c *models.Credits) error {
	payload, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("encode credits for %s: %w", id, err)
	}
	_, err = r.db.Exec(`
		INSERT INTO media_credits (media_id, payload, fetched_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(media_id) DO UPDATE SET
			payload = excluded.payload,
			fetched_at = CURRENT_TIMESTAMP`,
		id, string(payload))
	return err
}

func (r *MediaRepository) Update(m *models.Media) error {
	return r.Save(m)
}

func (r *MediaRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM media WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
