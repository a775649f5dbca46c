package repository

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/reelkeep/reelkeep/internal/models"
)

// CollectionRepository persists models.Collection and models.CollectionItem.
// Unlike series, collections.tmdb_collection_id
// carries a genuine unique index, so Save can rely on a database-level
// ON CONFLICT upsert rather than read-then-decide.
type CollectionRepository struct {
	db *sql.DB
}

func NewCollectionRepository(db *sql.DB) *CollectionRepository {
	return &CollectionRepository{db: db}
}

const collectionColumns = `id, tmdb_collection_id, name, collection_type, total_items, available_items, created_at, updated_at`

func scanCollection(row interface{ Scan(...interface{}) error }) (*models.Collection, error) {
	var c models.Collection
	var tmdbCollectionID sql.NullInt64
	err := row.Scan(&c.ID, &tmdbCollectionID, &c.Name, &c.CollectionType, &c.TotalItems, &c.AvailableItems, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return nil, err
	}
	c.TMDBCollectionID = parseNullableInt(tmdbCollectionID)
	return &c, nil
}

// Save upserts by tmdb_collection_id for TMDB-sourced collections (auto
// type). Manually-curated collections (no tmdb_collection_id) always insert
// a new row, since the unique index only applies to non-null values in
// sqlite.
func (r *CollectionRepository) Save(c *models.Collection) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.TMDBCollectionID == nil {
		_, err := r.db.Exec(`
			INSERT INTO collections (`+collectionColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)`,
			c.ID, c.TMDBCollectionID, c.Name, c.CollectionType, c.TotalItems, c.AvailableItems)
		if err != nil {
			return fmt.Errorf("create collection %s: %w", c.Name, err)
		}
		return nil
	}

	_, err := r.db.Exec(`
		INSERT INTO collections (`+collectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT(tmdb_collection_id) DO UPDATE SET
			name = excluded.name,
			total_items = excluded.total_items,
			available_items = excluded.available_items,
			updated_at = CURRENT_TIMESTAMP`,
		c.ID, c.TMDBCollectionID, c.Name, c.CollectionType, c.TotalItems, c.AvailableItems)
	if err != nil {
		return fmt.Errorf("save collection %s: %w", c.Name, err)
	}
	return r.db.QueryRow(`SELECT id FROM collections WHERE tmdb_collection_id = ?`, c.TMDBCollectionID).Scan(&c.ID)
}

func (r *CollectionRepository) FindByID(id uuid.UUID) (*models.Collection, error) {
	row := r.db.QueryRow(`SELECT `+collectionColumns+` FROM collections WHERE id = ?`, id)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *CollectionRepository) FindByTMDBCollectionID(tmdbCollectionID int) (*models.Collection, error) {
	row := r.db.QueryRow(`SELECT `+collectionColumns+` FROM collections WHERE tmdb_collection_id = ?`, tmdbCollectionID)
	c, err := scanCollection(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	return c, err
}

func (r *CollectionRepository) ListAll() ([]*models.Collection, error) {
	rows, err := r.db.Query(`SELECT ` + collectionColumns + ` FROM collections ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Collection
	for rows.Next() {
		c, err := scanCollection(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *CollectionRepository) UpdateCounts(id uuid.UUID, total, available int) error {
	result, err := r.db.Exec(`UPDATE collections SET total_items = ?, available_items = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		total, available, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *CollectionRepository) Delete(id uuid.UUID) error {
	result, err := r.db.Exec(`DELETE FROM collections WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// AddItem upserts a collection_items row keyed on the unique
// (collection_id, tmdb_id, media_type, timeline_order) index.
func (r *CollectionRepository) AddItem(item *models.CollectionItem) error {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	var mediaID interface{}
	if item.MediaID != nil {
		mediaID = item.MediaID.String()
	}
	_, err := r.db.Exec(`
		INSERT INTO collection_items (id, collection_id, tmdb_id, media_type, timeline_order, media_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(collection_id, tmdb_id, media_type, timeline_order) DO UPDATE SET
			media_id = excluded.media_id`,
		item.ID, item.CollectionID, item.TMDBID, item.MediaType, item.TimelineOrder, mediaID)
	if err != nil {
		return fmt.Errorf("add collection item %d: %w", item.TMDBID, err)
	}
	return nil
}

func (r *CollectionRepository) ListItems(collectionID uuid.UUID) ([]*models.CollectionItem, error) {
	rows, err := r.db.Query(`
		SELECT id, collection_id, tmdb_id, media_type, timeline_order, media_id
		FROM collection_items WHERE collection_id = ? ORDER BY timeline_order`, collectionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.CollectionItem
	for rows.Next() {
		var it models.CollectionItem
		var mediaID sql.NullString
		if err := rows.Scan(&it.ID, &it.CollectionID, &it.TMDBID, &it.MediaType, &it.TimelineOrder, &mediaID); err != nil {
			return nil, err
		}
		if mediaID.Valid {
			id, perr := uuid.Parse(mediaID.String)
			if perr == nil {
				it.MediaID = &id
			}
		}
		out = append(out, &it)
	}
	return out, rows.Err()
}
