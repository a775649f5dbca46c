// Package subtitles implements the subtitle generation pipeline: the
// single-media and batch use cases, wiring together the GPU coordinator,
// the fingerprinter, the STT adapter, the LLM translator, the job store,
// and the media/series/subtitle repositories.
//
// The orchestration style — a struct holding concrete collaborator types
// plus one narrow Publisher interface for the event bus — matches
// internal/scanner/scanner.go, the other multi-phase, job-store-driven
// pipeline in this module.
package subtitles

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/reelkeep/reelkeep/internal/ffmpeg"
	"github.com/reelkeep/reelkeep/internal/fingerprint"
	"github.com/reelkeep/reelkeep/internal/gpu"
	"github.com/reelkeep/reelkeep/internal/jobs"
	"github.com/reelkeep/reelkeep/internal/models"
	"github.com/reelkeep/reelkeep/internal/repository"
	"github.com/reelkeep/reelkeep/internal/stt"
	"github.com/reelkeep/reelkeep/internal/translator"
)

// Publisher is the same narrow event-bus dependency scanner.Scanner takes;
// both *eventbus.Bus and *eventbus.PersistentBus satisfy it.
type Publisher interface {
	Publish(event models.DomainEvent) error
}

// Transcriber is the STT half of the pipeline; *stt.Adapter satisfies it.
type Transcriber interface {
	Transcribe(ctx context.Context, mediaPath string, audioTrackIndex int) (*stt.Result, error)
}

// TranslatorService is the LLM-translation half of the pipeline;
// *translator.Translator satisfies it.
type TranslatorService interface {
	Translate(ctx context.Context, segments []models.TranscriptionSegment, sourceLang, targetLang string) ([]models.TranscriptionSegment, error)
}

// ModelUnloader lets the pipeline ask the translation backend to free the
// GPU before STT runs; *translator.Client satisfies it. It is optional —
// a nil ModelUnloader simply skips the best-effort unload step.
type ModelUnloader interface {
	Unload(ctx context.Context) error
}

// Fingerprinter computes the content fingerprint recorded alongside every
// generated subtitle; *fingerprint.Fingerprinter satisfies it.
type Fingerprinter interface {
	Compute(ctx context.Context, filePath string) (*fingerprint.Result, error)
}

// GPUCoordinator hands out the exclusive STT/translation permit;
// *gpu.Coordinator satisfies it.
type GPUCoordinator interface {
	Acquire(ctx context.Context) (*gpu.Guard, error)
}

var (
	_ Transcriber       = (*stt.Adapter)(nil)
	_ TranslatorService = (*translator.Translator)(nil)
	_ ModelUnloader     = (*translator.Client)(nil)
	_ Fingerprinter     = (*fingerprint.Fingerprinter)(nil)
	_ GPUCoordinator    = (*gpu.Coordinator)(nil)
)

// Pipeline wires the subtitle generation use cases together.
type Pipeline struct {
	mediaRepo    *repository.MediaRepository
	seriesRepo   *repository.SeriesRepository
	subtitleRepo *repository.SubtitleRepository
	ffprobe      *ffmpeg.FFprobe

	gpuCoord      GPUCoordinator
	fingerprinter Fingerprinter
	transcriber   Transcriber
	translator    TranslatorService
	unloader      ModelUnloader

	jobs *jobs.Store
	bus  Publisher
}

// New builds a Pipeline. unloader may be nil: the pipeline then simply
// skips the pre-STT model-unload step.
func New(
	mediaRepo *repository.MediaRepository,
	seriesRepo *repository.SeriesRepository,
	subtitleRepo *repository.SubtitleRepository,
	ffprobe *ffmpeg.FFprobe,
	gpuCoord GPUCoordinator,
	fingerprinter Fingerprinter,
	transcriber Transcriber,
	translatorSvc TranslatorService,
	unloader ModelUnloader,
	jobStore *jobs.Store,
	bus Publisher,
) *Pipeline {
	return &Pipeline{
		mediaRepo:     mediaRepo,
		seriesRepo:    seriesRepo,
		subtitleRepo:  subtitleRepo,
		ffprobe:       ffprobe,
		gpuCoord:      gpuCoord,
		fingerprinter: fingerprinter,
		transcriber:   transcriber,
		translator:    translatorSvc,
		unloader:      unloader,
		jobs:          jobStore,
		bus:           bus,
	}
}

// GenerateRequest describes one subtitle-generation job.
type GenerateRequest struct {
	MediaID         uuid.UUID
	AudioTrackIndex int
	SourceLang      string
	TargetLang      string // empty: no translation, output whisper's own language
}

// GenerateResult is what a successful job produces.
type GenerateResult struct {
	SRTPath        string
	Language       string
	WasTranslated  bool
	FingerprintHex string
}

// CreateJob registers a new single-subtitle job and returns its id. Callers
// run Run in a goroutine and poll the job store (or the job's terminal
// event) for completion.
func (p *Pipeline) CreateJob() string {
	return p.jobs.Create()
}

// Run executes the full single-subtitle sequence for an
// already-created job id, driving the job store and publishing the
// Started/Completed/Failed events along the way.
func (p *Pipeline) Run(ctx context.Context, jobID string, req GenerateRequest) (*GenerateResult, error) {
	if err := p.jobs.Start(jobID); err != nil {
		return nil, err
	}

	result, err := p.generate(ctx, jobID, req, func(pct float64, message string) {
		_ = p.jobs.UpdateProgress(jobID, pct, message)
	})
	if err != nil {
		_ = p.jobs.Fail(jobID, err)
		return nil, err
	}

	if completeErr := p.jobs.Complete(jobID, result); completeErr != nil {
		return result, completeErr
	}
	return result, nil
}

// generate is the shared core of the single and batch use cases: each
// batch episode runs exactly the single use case, so both Run and
// RunBatch call through it. jobID is used only for
// event correlation: for Run it is the job store's id, for RunBatch it is a
// synthetic per-episode label since batch items aren't tracked as
// individual jobs in the store.
func (p *Pipeline) generate(ctx context.Context, jobID string, req GenerateRequest, progress func(pct float64, message string)) (*GenerateResult, error) {
	media, err := p.mediaRepo.FindByID(req.MediaID)
	if err != nil {
		return nil, fmt.Errorf("subtitles: load media %s: %w", req.MediaID, err)
	}

	if err := p.bus.Publish(models.SubtitleGenerationStartedEvent{
		Base:    models.NewBase(),
		MediaID: req.MediaID,
		JobID:   jobID,
	}); err != nil {
		return nil, fmt.Errorf("subtitles: publish started event: %w", err)
	}

	result, genErr := p.runPhases(ctx, media, req, progress)
	if genErr != nil {
		_ = p.bus.Publish(models.SubtitleGenerationFailedEvent{
			Base:    models.NewBase(),
			MediaID: req.MediaID,
			JobID:   jobID,
			Error:   genErr.Error(),
		})
		return nil, genErr
	}

	if err := p.subtitleRepo.Record(&repository.GeneratedSubtitle{
		MediaID:        req.MediaID,
		Language:       result.Language,
		Path:           result.SRTPath,
		WasTranslated:  result.WasTranslated,
		FingerprintHex: result.FingerprintHex,
	}); err != nil {
		return nil, fmt.Errorf("subtitles: record generated subtitle: %w", err)
	}

	if err := p.bus.Publish(models.SubtitleGenerationCompletedEvent{
		Base:          models.NewBase(),
		MediaID:       req.MediaID,
		JobID:         jobID,
		SRTPath:       result.SRTPath,
		Language:      result.Language,
		WasTranslated: result.WasTranslated,
	}); err != nil {
		return nil, fmt.Errorf("subtitles: publish completed event: %w", err)
	}

	return result, nil
}

// runPhases is the GPU-guarded body of a job: fingerprint, unload the
// translation model best-effort, transcribe, write the untranslated debug
// SRT, optionally translate, and write the final SRT.
func (p *Pipeline) runPhases(ctx context.Context, media *models.Media, req GenerateRequest, progress func(pct float64, message string)) (*GenerateResult, error) {
	if _, err := os.Stat(media.FilePath); err != nil {
		return nil, fmt.Errorf("subtitles: media file unavailable: %w", err)
	}

	progress(5, "acquiring GPU")
	guard, err := p.gpuCoord.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("subtitles: acquire gpu: %w", err)
	}
	defer guard.Release()

	progress(10, "fingerprinting")
	fp, err := p.fingerprinter.Compute(ctx, media.FilePath)
	if err != nil {
		return nil, fmt.Errorf("subtitles: fingerprint: %w", err)
	}

	if p.unloader != nil {
		// Best-effort: free the GPU for the STT pass. A failure here
		// (e.g. the translation backend isn't running yet) never fails
		// the job.
		_ = p.unloader.Unload(ctx)
	}

	progress(20, "transcribing")
	sttResult, err := p.transcriber.Transcribe(ctx, media.FilePath, req.AudioTrackIndex)
	if err != nil {
		return nil, fmt.Errorf("subtitles: transcribe: %w", err)
	}
	if len(sttResult.Segments) == 0 || !models.WellFormed(sttResult.Segments) {
		return nil, fmt.Errorf("subtitles: transcription produced no usable segments")
	}

	sourceLang := req.SourceLang
	if sourceLang == "" {
		sourceLang = sttResult.DetectedLanguage
	}

	stem := strings.TrimSuffix(media.FilePath, filepath.Ext(media.FilePath))
	debugPath := fmt.Sprintf("%s.%s.transcribe.srt", stem, sourceLang)
	if err := writeSRTFile(debugPath, sttResult.Segments); err != nil {
		return nil, fmt.Errorf("subtitles: write debug transcript: %w", err)
	}

	outSegments := sttResult.Segments
	outLang := sourceLang
	wasTranslated := false

	if req.TargetLang != "" && !strings.EqualFold(req.TargetLang, sourceLang) {
		progress(60, "translating")
		translated, err := p.translator.Translate(ctx, sttResult.Segments, sourceLang, req.TargetLang)
		if err != nil {
			return nil, fmt.Errorf("subtitles: translate: %w", err)
		}
		outSegments = translated
		outLang = req.TargetLang
		wasTranslated = true
	}

	progress(90, "writing subtitle file")
	outPath := fmt.Sprintf("%s.%s.srt", stem, outLang)
	if err := writeSRTFile(outPath, outSegments); err != nil {
		return nil, fmt.Errorf("subtitles: write output subtitle: %w", err)
	}

	progress(100, "done")
	return &GenerateResult{
		SRTPath:        outPath,
		Language:       outLang,
		WasTranslated:  wasTranslated,
		FingerprintHex: fp.Hex,
	}, nil
}

// BatchTarget selects which episodes a batch job covers.
type BatchTarget struct {
	SeriesID uuid.UUID
	Season   *int // nil: every episode of the series
}

// BatchRequest describes a batch subtitle-generation job.
type BatchRequest struct {
	Target                 BatchTarget
	PreferredAudioLanguage string
	SourceLang             string
	TargetLang             string
}

// CreateBatch registers a new batch job for total episodes and returns its
// id.
func (p *Pipeline) CreateBatch(total int) string {
	return p.jobs.CreateBatch(total)
}

// RunBatch executes the batch use case: fetch the target's episodes in
// (season, episode) order, and for every one of them, select its
// audio track per SelectAudioTrack and run the single-subtitle use case,
// recording successes and failures on the batch job rather than failing
// the whole batch. Cancellation is polled at the top of every iteration;
// a cancelled batch exits without marking itself complete.
func (p *Pipeline) RunBatch(ctx context.Context, batchID string, req BatchRequest) error {
	episodes, err := p.episodesFor(req.Target)
	if err != nil {
		return err
	}

	completed := 0
	for _, media := range episodes {
		if p.jobs.IsBatchCancelled(batchID) {
			return nil
		}

		audioTrackIndex, trackErr := p.selectTrack(ctx, media, req.PreferredAudioLanguage)
		if trackErr != nil {
			_ = p.jobs.AddBatchError(batchID, media.ID.String(), trackErr.Error())
			continue
		}

		itemJobID := fmt.Sprintf("%s-%s", batchID, media.ID)
		_, genErr := p.generate(ctx, itemJobID, GenerateRequest{
			MediaID:         media.ID,
			AudioTrackIndex: audioTrackIndex,
			SourceLang:      req.SourceLang,
			TargetLang:      req.TargetLang,
		}, func(float64, string) {})
		if genErr != nil {
			_ = p.jobs.AddBatchError(batchID, media.ID.String(), genErr.Error())
			continue
		}

		completed++
		_ = p.jobs.UpdateBatchProgress(batchID, completed)
	}

	if p.jobs.IsBatchCancelled(batchID) {
		return nil
	}
	return p.jobs.CompleteBatch(batchID)
}

func (p *Pipeline) episodesFor(target BatchTarget) ([]*models.Media, error) {
	if target.Season != nil {
		return p.mediaRepo.FindBySeason(target.SeriesID, *target.Season)
	}
	return p.mediaRepo.FindBySeries(target.SeriesID)
}

func (p *Pipeline) selectTrack(ctx context.Context, media *models.Media, preferredLanguage string) (int, error) {
	probe, err := p.ffprobe.Inspect(ctx, media.FilePath)
	if err != nil {
		return 0, fmt.Errorf("probe audio tracks: %w", err)
	}
	return SelectAudioTrack(probe.AudioTracks, preferredLanguage), nil
}
