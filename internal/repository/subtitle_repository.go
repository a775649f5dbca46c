package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// GeneratedSubtitle is one row of the generated_subtitles table the subtitle
// pipeline writes after a successful job. No other component reads it as a
// domain aggregate, so it lives as a narrow repository-owned type here
// rather than in internal/models.
type GeneratedSubtitle struct {
	ID             uuid.UUID
	MediaID        uuid.UUID
	Language       string
	Path           string
	WasTranslated  bool
	FingerprintHex string
	CreatedAt      time.Time
}

// SubtitleRepository persists GeneratedSubtitle rows.
type SubtitleRepository struct {
	db *sql.DB
}

func NewSubtitleRepository(db *sql.DB) *SubtitleRepository {
	return &SubtitleRepository{db: db}
}

const generatedSubtitleColumns = `id, media_id, language, path, was_translated, fingerprint_hex, created_at`

// Record inserts a new row for a completed subtitle generation job. Unlike
// media/series/collections, a media item can legitimately carry more than
// one generated subtitle (one per language), so this is a plain insert, not
// an upsert.
func (r *SubtitleRepository) Record(s *GeneratedSubtitle) error {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	wasTranslated := 0
	if s.WasTranslated {
		wasTranslated = 1
	}
	_, err := r.db.Exec(`
		INSERT INTO generated_subtitles (`+generatedSubtitleColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`,
		s.ID, s.MediaID, s.Language, s.Path, wasTranslated, s.FingerprintHex)
	if err != nil {
		return fmt.Errorf("record generated subtitle for %s: %w", s.MediaID, err)
	}
	return nil
}

func scanGeneratedSubtitle(row interface{ Scan(...interface{}) error }) (*GeneratedSubtitle, error) {
	var s GeneratedSubtitle
	var wasTranslated int
	err := row.Scan(&s.ID, &s.MediaID, &s.Language, &s.Path, &wasTranslated, &s.FingerprintHex, &s.CreatedAt)
	if err != nil {
		return nil, err
	}
	s.WasTranslated = wasTranslated != 0
	return &s, nil
}

// FindByMedia lists every subtitle generated for a media item, most recent
// first.
func (r *SubtitleRepository) FindByMedia(mediaID uuid.UUID) ([]*GeneratedSubtitle, error) {
	rows, err := r.db.Query(`SELECT `+generatedSubtitleColumns+` FROM generated_subtitles WHERE media_id = ? ORDER BY created_at DESC`, mediaID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*GeneratedSubtitle
	for rows.Next() {
		s, err := scanGeneratedSubtitle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}
