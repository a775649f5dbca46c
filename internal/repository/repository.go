// Package repository is the persistence layer: idempotent upserts keyed
// by natural identifiers (file_path for media, tmdb_id for series and
// collections), plus the cache and event stores consumed by the metadata
// resolver and the event bus.
//
// Every repository is a thin struct wrapping *sql.DB, one method per
// operation, sql.ErrNoRows translated to a typed not-found error.
package repository

import (
	"database/sql"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned by lookups that miss. It is shared across
// aggregates; callers wrap it with the aggregate and key they asked for.
var ErrNotFound = errors.New("repository: not found")

const dateLayout = time.RFC3339

func marshalStrings(v []string) string {
	if v == nil {
		v = []string{}
	}
	b, _ := json.Marshal(v)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var v []string
	_ = json.Unmarshal([]byte(s), &v)
	return v
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(dateLayout), Valid: true}
}

func parseNullableTime(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t, err := time.Parse(dateLayout, s.String)
	if err != nil {
		return nil
	}
	return &t
}

func parseNullableInt(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}

func parseNullableFloat(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}
