package subtitles

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"github.com/reelkeep/reelkeep/internal/db"
	"github.com/reelkeep/reelkeep/internal/eventbus"
	"github.com/reelkeep/reelkeep/internal/ffmpeg"
	"github.com/reelkeep/reelkeep/internal/fingerprint"
	"github.com/reelkeep/reelkeep/internal/gpu"
	"github.com/reelkeep/reelkeep/internal/jobs"
	"github.com/reelkeep/reelkeep/internal/models"
	"github.com/reelkeep/reelkeep/internal/repository"
	"github.com/reelkeep/reelkeep/internal/stt"
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

func writeStubFile(t *testing.T, path string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("stub"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// fakeTranscriber returns a fixed result, or an error if err is set.
type fakeTranscriber struct {
	result *stt.Result
	err    error
}

type fakeTranslator struct {
	called bool
}

func (f *fakeTranslator) Translate(ctx context.Context, segments []models.TranscriptionSegment, sourceLang, targetLang string) ([]models.TranscriptionSegment, error) {
	f.called = true
	out := make([]models.TranscriptionSegment, len(segments))
	for i, s := range segments {
		out[i] = s
		out[i].Text = "[" + targetLang + "] " + s.Text
	}
	return out, nil
}

type fakeFingerprinter struct{}

func (fakeFingerprinter) Compute(ctx context.Context, filePath string) (*fingerprint.Result, error) {
	return &fingerprint.Result{Hex: "deadbeef", Duration: 120}, nil
}

func newTestPipeline(t *testing.T, trans Transcriber, translate TranslatorService) (*Pipeline, *repository.MediaRepository, *repository.SubtitleRepository, *eventbus.Bus) {
	t.Helper()
	conn := openTestDB(t)
	mediaRepo := repository.NewMediaRepository(conn)
	seriesRepo := repository.NewSeriesRepository(conn, mediaRepo)
	subtitleRepo := repository.NewSubtitleRepository(conn)
	bus := eventbus.New()

	p := New(
		mediaRepo,
		seriesRepo,
		subtitleRepo,
		ffmpeg.NewFFprobe(""),
		gpu.New(),
		fakeFingerprinter{},
		trans,
		translate,
		nil,
		jobs.New(),
		bus,
	)
	return p, mediaRepo, subtitleRepo, bus
}

func TestRun_TranscribesAndWritesSRT(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "Movie (2020)", "Movie.2020.1080p.mkv")
	writeStubFile(t, mediaPath)

	trans := &fakeTranscriber{result: &stt.Result{
		DetectedLanguage: "en",
		Segments: []models.TranscriptionSegment{
			{StartTime: 0, EndTime: 1.5, Text: "hello"},
			{StartTime: 1.5, EndTime: 3, Text: "world"},
		},
	}}
	translate := &fakeTranslator{}

	p, mediaRepo, subtitleRepo, bus := newTestPipeline(t, trans, translate)

	media := &models.Media{ID: uuid.New(), FilePath: mediaPath, MediaType: models.MediaTypeMovie, Title: "Movie"}
	if err := mediaRepo.Save(media); err != nil {
		t.Fatalf("save media: %v", err)
	}

	var completedEvents []models.SubtitleGenerationCompletedEvent
	bus.Subscribe(models.SubtitleGenerationCompletedEvent{}, func(e models.DomainEvent) error {
		completedEvents = append(completedEvents, e.(models.SubtitleGenerationCompletedEvent))
		return nil
	})

	jobID := p.CreateJob()
	result, err := p.Run(context.Background(), jobID, GenerateRequest{MediaID: media.ID, AudioTrackIndex: 0})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if result.Language != "en" {
		t.Fatalf("expected language en, got %s", result.Language)
	}
	if result.WasTranslated {
		t.Fatalf("expected no translation when TargetLang is empty")
	}
	if translate.called {
		t.Fatalf("translator should not have been invoked")
	}
	if _, err := os.Stat(result.SRTPath); err != nil {
		t.Fatalf("expected output srt to exist: %v", err)
	}
	debugPath := filepath.Join(root, "Movie (2020)", "Movie.2020.1080p.en.transcribe.srt")
	if _, err := os.Stat(debugPath); err != nil {
		t.Fatalf("expected debug transcript to exist: %v", err)
	}
	if len(completedEvents) != 1 {
		t.Fatalf("expected one completed event, got %d", len(completedEvents))
	}

	job, ok := jobsStoreJob(t, p, jobID)
	if !ok {
		t.Fatalf("expected job to exist")
	}
	if job.State != models.JobCompleted {
		t.Fatalf("expected job completed, got %s", job.State)
	}

	stored, err := subtitleRepo.FindByMedia(media.ID)
	if err != nil {
		t.Fatalf("find by media: %v", err)
	}
	if len(stored) != 1 || stored[0].Language != "en" {
		t.Fatalf("expected one recorded subtitle in en, got %+v", stored)
	}
}

func jobsStoreJob(t *testing.T, p *Pipeline, id string) (*models.Job, bool) {
	t.Helper()
	return p.jobs.Get(id)
}

func TestRun_TranslatesWhenTargetLangDiffers(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "Show", "Show.S01E01.mkv")
	writeStubFile(t, mediaPath)

	trans := &fakeTranscriber{result: &stt.Result{
		DetectedLanguage: "en",
		Segments: []models.TranscriptionSegment{
			{StartTime: 0, EndTime: 1, Text: "hi"},
		},
	}}
	translate := &fakeTranslator{}

	p, mediaRepo, _, _ := newTestPipeline(t, trans, translate)
	media := &models.Media{ID: uuid.New(), FilePath: mediaPath, MediaType: models.MediaTypeEpisode, Title: "Show"}
	if err := mediaRepo.Save(media); err != nil {
		t.Fatalf("save: %v", err)
	}

	jobID := p.CreateJob()
	result, err := p.Run(context.Background(), jobID, GenerateRequest{MediaID: media.ID, TargetLang: "hu"})
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.WasTranslated {
		t.Fatalf("expected translation to have run")
	}
	if !translate.called {
		t.Fatalf("expected translator to be invoked")
	}
	if result.Language != "hu" {
		t.Fatalf("expected output language hu, got %s", result.Language)
	}
}

func TestRun_FailsJobAndPublishesFailedEvent(t *testing.T) {
	root := t.TempDir()
	mediaPath := filepath.Join(root, "Movie", "Movie.mkv")
	writeStubFile(t, mediaPath)

	trans := &fakeTranscriber{err: context.DeadlineExceeded}
	p, mediaRepo, _, bus := newTestPipeline(t, trans, &fakeTranslator{})
	media := &models.Media{ID: uuid.New(), FilePath: mediaPath, MediaType: models.MediaTypeMovie, Title: "Movie"}
	if err := mediaRepo.Save(media); err != nil {
		t.Fatalf("save: %v", err)
	}

	var failed []models.SubtitleGenerationFailedEvent
	bus.Subscribe(models.SubtitleGenerationFailedEvent{}, func(e models.DomainEvent) error {
		failed = append(failed, e.(models.SubtitleGenerationFailedEvent))
		return nil
	})

	jobID := p.CreateJob()
	if _, err := p.Run(context.Background(), jobID, GenerateRequest{MediaID: media.ID}); err == nil {
		t.Fatalf("expected error")
	}
	if len(failed) != 1 {
		t.Fatalf("expected one failed event, got %d", len(failed))
	}
	job, ok := p.jobs.Get(jobID)
	if !ok || job.State != models.JobFailed {
		t.Fatalf("expected job to be failed")
	}
}

func (f *fakeTranscriber) Transcribe(ctx context.Context, mediaPath string, audioTrackIndex int) (*stt.Result, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}
