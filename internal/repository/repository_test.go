package repository

import (
	"database/sql"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/reelkeep/reelkeep/internal/db"
	"github.com/reelkeep/reelkeep/internal/models"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	conn, err := db.Connect(path, db.DefaultOptions())
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestMediaRepository_SaveIsIdempotentByPath(t *testing.T) {
	conn := openTestDB(t)
	repo := NewMediaRepository(conn)

	m := &models.Media{
		FilePath:  "/library/movies/Wonka (2023)/Wonka.mkv",
		MediaType: models.MediaTypeMovie,
		Title:     "Wonka",
	}
	if err := repo.Save(m); err != nil {
		t.Fatalf("save: %v", err)
	}
	firstID := m.ID

	again := &models.Media{
		FilePath:        m.FilePath,
		MediaType:       models.MediaTypeMovie,
		Title:           "Wonka",
		ConfidenceScore: 0.9,
	}
	if err := repo.Save(again); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if again.ID != firstID {
		t.Fatalf("upsert by path assigned a new id: %s vs %s", again.ID, firstID)
	}

	all, err := repo.FindAll(10, 0)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly one row after upsert, got %d", len(all))
	}
	if all[0].ConfidenceScore != 0.9 {
		t.Fatalf("confidence score = %f, want 0.9 (second save should win)", all[0].ConfidenceScore)
	}
}

func TestMediaRepository_FindByPathNotFound(t *testing.T) {
	conn := openTestDB(t)
	repo := NewMediaRepository(conn)

	if _, err := repo.FindByPath("/nope"); err != ErrNotFound {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestMediaRepository_RoundTripsNullableAndJSONFields(t *testing.T) {
	conn := openTestDB(t)
	repo := NewMediaRepository(conn)

	rating := 8.4
	year := 2023
	releaseDate := time.Date(year, time.December, 15, 0, 0, 0, 0, time.UTC)
	m := &models.Media{
		FilePath:    "/library/movies/Wonka (2023)/Wonka.mkv",
		MediaType:   models.MediaTypeMovie,
		Title:       "Wonka",
		ReleaseDate: &releaseDate,
		Genres:      []string{"Family", "Comedy", "Fantasy"},
		Rating:      &rating,
		TMDBID:      intPtr(787699),
	}
	if err := repo.Save(m); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := repo.FindByID(m.ID)
	if err != nil {
		t.Fatalf("find by id: %v", err)
	}
	if got.Rating == nil || *got.Rating != rating {
		t.Fatalf("rating = %v, want %v", got.Rating, rating)
	}
	if got.TMDBID == nil || *got.TMDBID != 787699 {
		t.Fatalf("tmdb id = %v, want 787699", got.TMDBID)
	}
	if len(got.Genres) != 3 || got.Genres[1] != "Comedy" {
		t.Fatalf("genres = %v", got.Genres)
	}
	if got.ReleaseDate == nil || !got.ReleaseDate.Equal(releaseDate) {
		t.Fatalf("release date = %v, want %v", got.ReleaseDate, releaseDate)
	}
}

func TestMediaRepository_UpdateProgress(t *testing.T) {
	conn := openTestDB(t)
	repo := NewMediaRepository(conn)

	m := &models.Media{FilePath: "/library/movies/X/x.mkv", MediaType: models.MediaTypeMovie, Title: "X"}
	if err := repo.Save(m); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := repo.UpdateProgress(m.ID, 120.5, false); err != nil {
		t.Fatalf("update progress: %v", err)
	}
	got, err := repo.FindByID(m.ID)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.CurrentPosition != 120.5 || got.IsWatched {
		t.Fatalf("got = %+v", got)
	}
}

func TestSeriesRepository_FindByTMDBIDPrefersMostLinkedEpisodes(t *testing.T) {
	conn := openTestDB(t)
	mediaRepo := NewMediaRepository(conn)
	seriesRepo := NewSeriesRepository(conn, mediaRepo)

	sparse := &models.Series{TMDBID: 1396, Title: "Breaking Bad"}
	rich := &models.Series{TMDBID: 1396, Title: "Breaking Bad"}
	if err := seriesRepo.Create(sparse); err != nil {
		t.Fatalf("create sparse: %v", err)
	}
	if err := seriesRepo.Create(rich); err != nil {
		t.Fatalf("create rich: %v", err)
	}

	for i := 1; i <= 3; i++ {
		ep := &models.Media{
			FilePath:  fmt.Sprintf("/library/tv/Breaking Bad/S01/e%02d.mkv", i),
			MediaType: models.MediaTypeEpisode,
			Title:     "Breaking Bad",
			SeriesID:  &rich.ID,
			Season:    intPtr(1),
			Episode:   intPtr(i),
		}
		if err := mediaRepo.Save(ep); err != nil {
			t.Fatalf("save episode %d: %v", i, err)
		}
	}

	sparseEp := &models.Media{
		FilePath:  "/library/tv/Breaking Bad/S01/e00.mkv",
		MediaType: models.MediaTypeEpisode,
		Title:     "Breaking Bad",
		SeriesID:  &sparse.ID,
		Season:    intPtr(1),
		Episode:   intPtr(0),
	}
	if err := mediaRepo.Save(sparseEp); err != nil {
		t.Fatalf("save sparse episode: %v", err)
	}

	got, err := seriesRepo.FindByTMDBID(1396)
	if err != nil {
		t.Fatalf("find by tmdb id: %v", err)
	}
	if got.ID != rich.ID {
		t.Fatalf("resolved series %s, want the one with more linked episodes (%s)", got.ID, rich.ID)
	}
}

func intPtr(v int) *int { return &v }

func TestCollectionRepository_SaveUpsertsByTMDBCollectionID(t *testing.T) {
	conn := openTestDB(t)
	repo := NewCollectionRepository(conn)

	tmdbID := 9485
	c := &models.Collection{TMDBCollectionID: &tmdbID, Name: "The Fast Saga", CollectionType: models.CollectionAuto}
	if err := repo.Save(c); err != nil {
		t.Fatalf("save: %v", err)
	}
	firstID := c.ID

	again := &models.Collection{TMDBCollectionID: &tmdbID, Name: "The Fast Saga (Updated)", CollectionType: models.CollectionAuto, TotalItems: 11}
	if err := repo.Save(again); err != nil {
		t.Fatalf("second save: %v", err)
	}
	if again.ID != firstID {
		t.Fatalf("upsert by tmdb_collection_id assigned a new id")
	}

	all, err := repo.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected one collection row, got %d", len(all))
	}
	if all[0].Name != "The Fast Saga (Updated)" || all[0].TotalItems != 11 {
		t.Fatalf("got = %+v", all[0])
	}
}

func TestCollectionRepository_AddItemUpsertsOnUniqueKey(t *testing.T) {
	conn := openTestDB(t)
	repo := NewCollectionRepository(conn)

	tmdbID := 9485
	c := &models.Collection{TMDBCollectionID: &tmdbID, Name: "The Fast Saga", CollectionType: models.CollectionAuto}
	if err := repo.Save(c); err != nil {
		t.Fatalf("save collection: %v", err)
	}

	item := &models.CollectionItem{CollectionID: c.ID, TMDBID: 9487, MediaType: models.MediaTypeMovie, TimelineOrder: 1}
	if err := repo.AddItem(item); err != nil {
		t.Fatalf("add item: %v", err)
	}
	if err := repo.AddItem(item); err != nil {
		t.Fatalf("re-add item: %v", err)
	}

	items, err := repo.ListItems(c.ID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	if len(items) != 1 {
		t.Fatalf("expected one item after duplicate add, got %d", len(items))
	}
}

func TestCacheRepository_GetSetRoundTripAndExpiry(t *testing.T) {
	conn := openTestDB(t)
	repo := NewCacheRepository(conn)

	if err := repo.Set("tmdb:movie:42", `{"title":"Wonka"}`, time.Hour); err != nil {
		t.Fatalf("set: %v", err)
	}
	val, ok, err := repo.Get("tmdb:movie:42")
	if err != nil || !ok {
		t.Fatalf("get: val=%q ok=%v err=%v", val, ok, err)
	}
	if val != `{"title":"Wonka"}` {
		t.Fatalf("val = %q", val)
	}

	if err := repo.Set("tmdb:movie:43", `{}`, -time.Hour); err != nil {
		t.Fatalf("set expired: %v", err)
	}
	_, ok, err = repo.Get("tmdb:movie:43")
	if err != nil {
		t.Fatalf("get expired: %v", err)
	}
	if ok {
		t.Fatal("expected expired entry to report a miss")
	}
}

func TestEventRepository_AppendAssignsIncrementingIDs(t *testing.T) {
	conn := openTestDB(t)
	repo := NewEventRepository(conn)

	e1 := models.MediaIdentifiedEvent{Base: models.NewBase(), MediaID: uuid.New(), Title: "Wonka"}
	e2 := models.MediaIdentifiedEvent{Base: models.NewBase(), MediaID: uuid.New(), Title: "Dune"}

	id1, err := repo.Append(e1)
	if err != nil {
		t.Fatalf("append 1: %v", err)
	}
	id2, err := repo.Append(e2)
	if err != nil {
		t.Fatalf("append 2: %v", err)
	}
	if id2 <= id1 {
		t.Fatalf("ids not increasing: %d, %d", id1, id2)
	}

	events, err := repo.ListByType(models.EventMediaIdentified, 10)
	if err != nil {
		t.Fatalf("list by type: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
}

func TestMediaRepository_UpdateProgressAppendsHistory(t *testing.T) {
	conn := openTestDB(t)
	repo := NewMediaRepository(conn)

	m := &models.Media{FilePath: "/library/movies/Y/y.mkv", MediaType: models.MediaTypeMovie, Title: "Y"}
	if err := repo.Save(m); err != nil {
		t.Fatalf("save: %v", err)
	}

	if err := repo.UpdateProgress(m.ID, 60, false); err != nil {
		t.Fatalf("first update: %v", err)
	}
	if err := repo.UpdateProgress(m.ID, 3200, true); err != nil {
		t.Fatalf("second update: %v", err)
	}

	var n int
	if err := conn.QueryRow(`SELECT COUNT(*) FROM watch_progress WHERE media_id = ?`, m.ID).Scan(&n); err != nil {
		t.Fatalf("count history: %v", err)
	}
	if n != 2 {
		t.Fatalf("history rows = %d, want 2", n)
	}
}

func TestMediaRepository_CreditsRoundTrip(t *testing.T) {
	conn := openTestDB(t)
	repo := NewMediaRepository(conn)

	m := &models.Media{FilePath: "/library/movies/Z/z.mkv", MediaType: models.MediaTypeMovie, Title: "Z"}
	if err := repo.Save(m); err != nil {
		t.Fatalf("save: %v", err)
	}

	if _, _, err := repo.CreditsFor(m.ID); err != ErrNotFound {
		t.Fatalf("credits before save: err = %v, want ErrNotFound", err)
	}

	credits := &models.Credits{
		Cast: []models.CastMember{{Name: "Timothée Chalamet", Character: "Wonka", Order: 0}},
		Crew: []models.CrewMember{{Name: "Paul King", Job: "Director", Department: "Directing"}},
	}
	if err := repo.SaveCredits(m.ID, credits); err != nil {
		t.Fatalf("save credits: %v", err)
	}

	got, fetchedAt, err := repo.CreditsFor(m.ID)
	if err != nil {
		t.Fatalf("credits for: %v", err)
	}
	if fetchedAt.IsZero() {
		t.Fatal("fetched_at not recorded")
	}
	if len(got.Cast) != 1 || got.Cast[0].Name != "Timothée Chalamet" {
		t.Fatalf("cast = %+v", got.Cast)
	}

	// Refreshing replaces the payload in place.
	credits.Crew = nil
	if err := repo.SaveCredits(m.ID, credits); err != nil {
		t.Fatalf("refresh credits: %v", err)
	}
	got, _, err = repo.CreditsFor(m.ID)
	if err != nil {
		t.Fatalf("credits after refresh: %v", err)
	}
	if len(got.Crew) != 0 {
		t.Fatalf("crew after refresh = %+v, want empty", got.Crew)
	}
}

func TestSeriesRepository_UpsertSeasonRefreshesInPlace(t *testing.T) {
	conn := openTestDB(t)
	mediaRepo := NewMediaRepository(conn)
	repo := NewSeriesRepository(conn, mediaRepo)

	s := &models.Series{TMDBID: 4629, Title: "Stargate SG-1"}
	if err := repo.Create(s); err != nil {
		t.Fatalf("create series: %v", err)
	}

	if err := repo.UpsertSeason(s.ID, 1, 21); err != nil {
		t.Fatalf("first upsert: %v", err)
	}
	if err := repo.UpsertSeason(s.ID, 1, 22); err != nil {
		t.Fatalf("second upsert: %v", err)
	}

	var n, count int
	if err := conn.QueryRow(`SELECT COUNT(*), MAX(episode_count) FROM seasons WHERE series_id = ?`, s.ID).Scan(&n, &count); err != nil {
		t.Fatalf("query seasons: %v", err)
	}
	if n != 1 {
		t.Fatalf("season rows = %d, want 1", n)
	}
	if count != 22 {
		t.Fatalf("episode_count = %d, want 22", count)
	}
}

func TestSeriesRepository_ListAllCollapsesDuplicates(t *testing.T) {
	conn := openTestDB(t)
	mediaRepo := NewMediaRepository(conn)
	seriesRepo := NewSeriesRepository(conn, mediaRepo)

	a := &models.Series{TMDBID: 4629, Title: "Stargate SG-1"}
	b := &models.Series{TMDBID: 4629, Title: "Stargate SG-1"}
	other := &models.Series{TMDBID: 2290, Title: "Stargate Atlantis"}
	for _, s := range []*models.Series{a, b, other} {
		if err := seriesRepo.Create(s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	ep := &models.Media{
		FilePath:  "/library/tv/Stargate SG-1/S01/e01.mkv",
		MediaType: models.MediaTypeEpisode,
		Title:     "Stargate SG-1",
		SeriesID:  &b.ID,
		Season:    intPtr(1),
		Episode:   intPtr(1),
	}
	if err := mediaRepo.Save(ep); err != nil {
		t.Fatalf("save episode: %v", err)
	}

	all, err := seriesRepo.ListAll()
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("got %d series, want 2 (duplicates collapsed)", len(all))
	}
	for _, s := range all {
		if s.TMDBID == 4629 && s.ID != b.ID {
			t.Fatalf("kept series %s, want the one with the linked episode (%s)", s.ID, b.ID)
		}
	}
}

func TestSeriesRepository_FindRecentByEpisodeOrdersByNewestEpisode(t *testing.T) {
	conn := openTestDB(t)
	mediaRepo := NewMediaRepository(conn)
	seriesRepo := NewSeriesRepository(conn, mediaRepo)

	older := &models.Series{TMDBID: 1396, Title: "Breaking Bad"}
	newer := &models.Series{TMDBID: 60059, Title: "Better Call Saul"}
	for _, s := range []*models.Series{older, newer} {
		if err := seriesRepo.Create(s); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	// created_at has second granularity, so pin the episode order directly.
	for i, row := range []struct {
		series *models.Series
		path   string
		stamp  string
	}{
		{older, "/library/tv/Breaking Bad/S01/e01.mkv", "2024-01-01 10:00:00"},
		{newer, "/library/tv/Better Call Saul/S01/e01.mkv", "2024-06-01 10:00:00"},
	} {
		ep := &models.Media{
			FilePath:  row.path,
			MediaType: models.MediaTypeEpisode,
			Title:     row.series.Title,
			SeriesID:  &row.series.ID,
			Season:    intPtr(1),
			Episode:   intPtr(i + 1),
		}
		if err := mediaRepo.Save(ep); err != nil {
			t.Fatalf("save episode: %v", err)
		}
		if _, err := conn.Exec(`UPDATE media SET created_at = ? WHERE file_path = ?`, row.stamp, row.path); err != nil {
			t.Fatalf("pin created_at: %v", err)
		}
	}

	recent, err := seriesRepo.FindRecentByEpisode(10)
	if err != nil {
		t.Fatalf("find recent: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("got %d series, want 2", len(recent))
	}
	if recent[0].ID != newer.ID {
		t.Fatalf("first = %s, want the series with the newest episode (%s)", recent[0].Title, newer.Title)
	}
}
