package scanner

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/reelkeep/reelkeep/internal/db"
	"github.com/reelkeep/reelkeep/internal/eventbus"
	"github.com/reelkeep/reelkeep/internal/models"
	"github.com/reelkeep/reelkeep/internal/repository"
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

func writeFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestExecute_IdentifiesAndPersistsWithoutResolver(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "Wonka (2023)", "Wonka.2023.1080p.BluRay.x264.mkv"))
	writeFile(t, filepath.Join(root, "Breaking Bad", "Season 1", "Breaking.Bad.S01E01.720p.mkv"))

	conn := openTestDB(t)
	mediaRepo := repository.NewMediaRepository(conn)
	seriesRepo := repository.NewSeriesRepository(conn, mediaRepo)
	collectionRepo := repository.NewCollectionRepository(conn)
	bus := eventbus.New()

	var completed []models.ScanResult
	bus.Subscribe(models.ScanCompletedEvent{}, func(e models.DomainEvent) error {
		completed = append(completed, e.(models.ScanCompletedEvent).Result)
		return nil
	})

	sc := New(nil, nil, mediaRepo, seriesRepo, collectionRepo, bus, WithConcurrency(2))

	result, err := sc.Execute(context.Background(), Options{RootPath: root}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Processed != 2 {
		t.Fatalf("processed = %d, want 2", result.Processed)
	}
	if result.Identified != 2 {
		t.Fatalf("identified = %d, want 2", result.Identified)
	}
	if len(completed) != 1 {
		t.Fatalf("expected exactly one ScanCompleted event, got %d", len(completed))
	}

	all, err := mediaRepo.FindAll(10, 0)
	if err != nil {
		t.Fatalf("find all: %v", err)
	}
	if len(all) != 2 {
		t.Fatalf("expected 2 persisted rows, got %d", len(all))
	}

	var movie, episode *models.Media
	for _, m := range all {
		switch m.MediaType {
		case models.MediaTypeMovie:
			movie = m
		case models.MediaTypeEpisode:
			episode = m
		}
	}
	if movie == nil || movie.Title == "" {
		t.Fatalf("expected an identified movie, got %+v", movie)
	}
	if episode == nil || episode.Season == nil || *episode.Season != 1 || episode.Episode == nil || *episode.Episode != 1 {
		t.Fatalf("expected S01E01, got %+v", episode)
	}
}

func TestExecute_SkipsAlreadyHighConfidenceFileUnlessForced(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "Wonka (2023)", "Wonka.2023.1080p.BluRay.x264.mkv")
	writeFile(t, path)

	conn := openTestDB(t)
	mediaRepo := repository.NewMediaRepository(conn)
	seriesRepo := repository.NewSeriesRepository(conn, mediaRepo)
	collectionRepo := repository.NewCollectionRepository(conn)

	existing := &models.Media{FilePath: path, MediaType: models.MediaTypeMovie, Title: "Wonka", ConfidenceScore: 0.9}
	if err := mediaRepo.Save(existing); err != nil {
		t.Fatalf("seed save: %v", err)
	}

	sc := New(nil, nil, mediaRepo, seriesRepo, collectionRepo, nil, WithConcurrency(1))

	result, err := sc.Execute(context.Background(), Options{RootPath: root}, nil)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Skipped != 1 || result.Identified != 0 {
		t.Fatalf("expected the pre-scored file to be skipped, got %+v", result)
	}

	result, err = sc.Execute(context.Background(), Options{RootPath: root, ForceRescan: true}, nil)
	if err != nil {
		t.Fatalf("execute forced: %v", err)
	}
	if result.Skipped != 0 {
		t.Fatalf("force_rescan should bypass the confidence skip, got %+v", result)
	}
}

func TestUpsertCollection_SkipsPresetKeywordName(t *testing.T) {
	conn := openTestDB(t)
	collectionRepo := repository.NewCollectionRepository(conn)
	sc := New(nil, nil, nil, nil, collectionRepo, nil)

	sc.upsertCollection(&models.CollectionRef{ID: 1, Name: "Collection"})

	all, err := collectionRepo.ListAll()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(all) != 0 {
		t.Fatalf("expected the preset-keyword name to be skipped, got %d rows", len(all))
	}
}

func TestUpsertCollection_CreatesThenIncrementsAvailableItems(t *testing.T) {
	conn := openTestDB(t)
	collectionRepo := repository.NewCollectionRepository(conn)
	sc := New(nil, nil, nil, nil, collectionRepo, nil)

	ref := &models.CollectionRef{ID: 42, Name: "The Dark Knight Collection"}
	sc.upsertCollection(ref)
	sc.upsertCollection(ref)

	got, err := collectionRepo.FindByTMDBCollectionID(42)
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if got.AvailableItems != 2 {
		t.Fatalf("available items = %d, want 2", got.AvailableItems)
	}
}

func TestToTMDBID(t *testing.T) {
	if id, ok := toTMDBID("12345"); !ok || id != 12345 {
		t.Fatalf("got (%d, %v), want (12345, true)", id, ok)
	}
	if _, ok := toTMDBID(""); ok {
		t.Fatal("empty external id should not parse")
	}
	if _, ok := toTMDBID("tt0111161"); ok {
		t.Fatal("imdb-style id should not parse as a tmdb id")
	}
}

func TestAlternativeResults_CarriesRunnersUpOntoMedia(t *testing.T) {
	year := 2023
	recon := &models.ReconciliationResult{
		Best:     &models.MetadataMatch{ExternalID: "1", Title: "Wonka", Year: &year, Confidence: 0.85},
		Strategy: models.StrategyFilenameWithYear,
		Alternatives: []*models.MetadataMatch{
			{ExternalID: "2", Title: "Wonka", Year: &year, Confidence: 0.85},
			{ExternalID: "not-numeric", Title: "Willy Wonka", Confidence: 0.60},
		},
	}

	alts := alternativeResults(models.MediaTypeMovie, recon)
	if len(alts) != 2 {
		t.Fatalf("alternatives = %+v, want 2", alts)
	}
	if alts[0].TMDBID == nil || *alts[0].TMDBID != 2 {
		t.Fatalf("first alternative tmdb id = %v, want 2", alts[0].TMDBID)
	}
	if alts[0].MediaType != models.MediaTypeMovie || alts[0].Strategy != models.StrategyFilenameWithYear {
		t.Fatalf("first alternative = %+v", alts[0])
	}
	if alts[1].TMDBID != nil {
		t.Fatalf("non-numeric external id should leave TMDBID nil, got %v", *alts[1].TMDBID)
	}
	if alts[1].Title != "Willy Wonka" {
		t.Fatalf("second alternative title = %q", alts[1].Title)
	}
}
