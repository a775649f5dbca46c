// Package scanner implements the bounded-parallel scan pipeline: walk
// -> identify -> enrich -> score -> persist -> publish.
//
// The pool shape is a buffered file channel drained by a fixed number of
// worker goroutines, with atomic progress counters so the hot path never
// takes a lock.
package scanner

import (
	"context"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/reelkeep/reelkeep/internal/eventbus"
	"github.com/reelkeep/reelkeep/internal/ffmpeg"
	"github.com/reelkeep/reelkeep/internal/identify"
	"github.com/reelkeep/reelkeep/internal/metadata"
	"github.com/reelkeep/reelkeep/internal/models"
	"github.com/reelkeep/reelkeep/internal/parser"
	"github.com/reelkeep/reelkeep/internal/repository"
	"github.com/reelkeep/reelkeep/internal/scoring"
)

// presetCollectionNames are the curated collection names the preset loader
// would otherwise own; the scan pipeline just needs to
// know not to auto-create a franchise collection that duplicates one of
// these, so the list is intentionally tiny.
var presetCollectionNames = map[string]bool{
	"Collection": true,
}

// Publisher is the subset of eventbus.Bus the scanner needs, satisfied by
// both eventbus.Bus and eventbus.PersistentBus.
type Publisher interface {
	Publish(event models.DomainEvent) error
}

var _ Publisher = (*eventbus.Bus)(nil)
var _ Publisher = (*eventbus.PersistentBus)(nil)

// Scanner runs the scan pipeline over a directory tree.
type Scanner struct {
	ffprobe        *ffmpeg.FFprobe
	resolver       *metadata.Resolver // nil disables enrichment entirely
	mediaRepo      *repository.MediaRepository
	seriesRepo     *repository.SeriesRepository
	collectionRepo *repository.CollectionRepository
	bus            Publisher

	concurrency     int
	rescanThreshold float64
	nfoReader       NFOReader
}

// Option configures a Scanner at construction time.
type Option func(*Scanner)

// WithConcurrency overrides the default min(cpu_count, 8) worker count.
func WithConcurrency(n int) Option {
	return func(s *Scanner) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithRescanThreshold overrides the default 0.85 skip-policy threshold.
func WithRescanThreshold(t float64) Option {
	return func(s *Scanner) { s.rescanThreshold = t }
}

// WithNFOReader overrides the default NFO sidecar reader, mainly for tests.
func WithNFOReader(r NFOReader) Option {
	return func(s *Scanner) { s.nfoReader = r }
}

// New builds a Scanner. resolver may be nil to disable metadata enrichment
// entirely (files are still identified from the filename and persisted).
func New(ffprobe *ffmpeg.FFprobe, resolver *metadata.Resolver, mediaRepo *repository.MediaRepository,
	seriesRepo *repository.SeriesRepository, collectionRepo *repository.CollectionRepository,
	bus Publisher, opts ...Option) *Scanner {
	s := &Scanner{
		ffprobe:         ffprobe,
		resolver:        resolver,
		mediaRepo:       mediaRepo,
		seriesRepo:      seriesRepo,
		collectionRepo:  collectionRepo,
		bus:             bus,
		concurrency:     min(runtime.NumCPU(), 8),
		rescanThreshold: 0.85,
		nfoReader:       readNFOSidecar,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// Options carries the per-run knobs.
type Options struct {
	RootPath    string
	ForceRescan bool
	ImportNFO   bool
}

// ProgressFunc receives the running counters, in addition to the
// identical event published on the bus — callers that aren't subscribed to
// the bus (e.g. a synchronous CLI invocation) can still observe progress.
type ProgressFunc func(processed, total, identified, failed, skipped int, etaSeconds float64)

type scanCounters struct {
	processed  int64
	identified int64
	failed     int64
	skipped    int64
}

// Execute runs the full scan algorithm over opts.RootPath and returns the
// aggregate result. progressFn is optional.
func (s *Scanner) Execute(ctx context.Context, opts Options, progressFn ProgressFunc) (*models.ScanResult, error) {
	start := time.Now()
	var counters scanCounters

	var total int64
	go func() {
		n := countEligibleFiles(opts.RootPath)
		atomic.StoreInt64(&total, int64(n))
	}()

	fileCh := make(chan string, s.concurrency*4)
	var wg sync.WaitGroup
	for i := 0; i < s.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for path := range fileCh {
				s.processFile(ctx, path, opts, &counters)
				processed := atomic.LoadInt64(&counters.processed)
				if progressFn != nil && processed%5 == 0 {
					s.reportProgress(progressFn, &counters, atomic.LoadInt64(&total), start)
				}
			}
		}()
	}

	err := filepath.WalkDir(opts.RootPath, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			log.Printf("Scan: walk error at %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !parser.IsVideoFile(d.Name()) {
			return nil
		}
		fileCh <- path
		return nil
	})
	close(fileCh)
	wg.Wait()

	if err != nil {
		return nil, fmt.Errorf("scan: walk %s: %w", opts.RootPath, err)
	}

	if progressFn != nil {
		s.reportProgress(progressFn, &counters, atomic.LoadInt64(&total), start)
	}

	duration := time.Since(start)
	result := models.ScanResult{
		Processed:  int(atomic.LoadInt64(&counters.processed)),
		Identified: int(atomic.LoadInt64(&counters.identified)),
		Failed:     int(atomic.LoadInt64(&counters.failed)),
		Skipped:    int(atomic.LoadInt64(&counters.skipped)),
		Duration:   duration,
	}
	if duration.Seconds() > 0 {
		result.FilesPerSec = float64(result.Processed) / duration.Seconds()
	}

	if s.bus != nil {
		event := models.ScanCompletedEvent{Base: models.NewBase(), LibraryPath: opts.RootPath, Result: result}
		if err := s.bus.Publish(event); err != nil {
			log.Printf("Scan: publish ScanCompleted failed: %v", err)
		}
	}

	return &result, nil
}

func countEligibleFiles(root string) int {
	n := 0
	_ = filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil || d == nil || d.IsDir() {
			return nil
		}
		if parser.IsVideoFile(d.Name()) {
			n++
		}
		return nil
	})
	return n
}

func (s *Scanner) reportProgress(fn ProgressFunc, c *scanCounters, total int64, start time.Time) {
	processed := atomic.LoadInt64(&c.processed)
	identified := atomic.LoadInt64(&c.identified)
	failed := atomic.LoadInt64(&c.failed)
	skipped := atomic.LoadInt64(&c.skipped)

	var eta float64
	if processed > 0 && total > processed {
		perFile := time.Since(start).Seconds() / float64(processed)
		eta = perFile * float64(total-processed)
	}

	fn(int(processed), int(total), int(identified), int(failed), int(skipped), eta)

	if s.bus != nil {
		pct := 0.0
		if total > 0 {
			pct = float64(processed) / float64(total) * 100
		}
		event := models.ProgressUpdatedEvent{
			Base: models.NewBase(), Processed: int(processed), Total: int(total),
			Percentage: pct, Identified: int(identified), Failed: int(failed),
			Skipped: int(skipped), ETASeconds: eta,
		}
		if err := s.bus.Publish(event); err != nil {
			log.Printf("Scan: publish ProgressUpdated failed: %v", err)
		}
	}
}

// processFile runs the skip/identify/enrich/score/persist sequence for a
// single file. Any error is isolated:
// it increments failed and is logged, never aborting the walk.
func (s *Scanner) processFile(ctx context.Context, path string, opts Options, c *scanCounters) {
	defer atomic.AddInt64(&c.processed, 1)

	existing, err := s.mediaRepo.FindByPath(path)
	if err == nil && !opts.ForceRescan && existing.ConfidenceScore >= s.rescanThreshold {
		atomic.AddInt64(&c.skipped, 1)
		return
	}

	ident := identify.IdentifyContent(path)

	var imdbHint string
	if opts.ImportNFO {
		if hint, ok := s.nfoReader(path); ok && hint.IMDBID != "" {
			imdbHint = hint.IMDBID
		}
	}

	media := &models.Media{
		FilePath:               path,
		MediaType:              ident.MediaType,
		Title:                  ident.Title,
		Season:                 ident.Season,
		Episode:                ident.Episode,
		IdentificationStrategy: ident.Strategy,
		VerificationStatus:     models.VerificationUnverified,
	}
	if len(ident.MultiEpisode) > 1 {
		last := ident.MultiEpisode[len(ident.MultiEpisode)-1]
		media.EpisodeEnd = &last
	}

	signals := scoring.Signals{Strategy: ident.Strategy, YearKnown: ident.Year != nil}

	if s.resolver != nil {
		req := metadata.ReconcileRequest{
			MediaType: ident.MediaType, Title: ident.Title, FolderTitle: ident.SeriesName,
			Year: ident.Year, IMDBHint: imdbHint, Season: ident.Season, Episode: ident.Episode,
		}
		recon, err := s.resolver.Reconcile(ctx, req)
		if err != nil {
			log.Printf("Scan: reconcile failed for %s: %v", path, err)
		} else if recon.Best != nil {
			s.applyReconciliation(ctx, media, &signals, ident, recon)
		}
	}

	media.ConfidenceScore = scoring.Score(signals)

	if media.MediaType == models.MediaTypeEpisode && media.TMDBID != nil {
		if err := s.upsertSeries(ctx, media, ident); err != nil {
			log.Printf("Scan: series upsert failed for %s: %v", path, err)
		}
	}

	if media.DurationSeconds == nil && s.ffprobe != nil {
		if probe, err := s.ffprobe.Inspect(ctx, path); err == nil {
			d := int(probe.Duration)
			media.DurationSeconds = &d
		}
	}

	if err := s.mediaRepo.Save(media); err != nil {
		log.Printf("Scan: save failed for %s: %v", path, err)
		atomic.AddInt64(&c.failed, 1)
		return
	}

	atomic.AddInt64(&c.identified, 1)

	if s.bus != nil {
		event := models.MediaIdentifiedEvent{Base: models.NewBase(), MediaID: media.ID, Title: media.Title, Strategy: media.IdentificationStrategy}
		if err := s.bus.Publish(event); err != nil {
			log.Printf("Scan: publish MediaIdentified failed: %v", err)
		}
	}
}

// applyReconciliation folds a successful reconcile into media and signals,
// including the collection handling for movies.
func (s *Scanner) applyReconciliation(ctx context.Context, media *models.Media, signals *scoring.Signals, ident models.IdentificationResult, recon *models.ReconciliationResult) {
	best := recon.Best
	signals.Strategy = recon.Strategy
	if recon.Strategy == models.StrategyFuzzySearch {
		signals.FuzzyScore = best.Confidence / 0.75
	}
	if len(recon.Alternatives) > 0 {
		top := best.Confidence
		for _, alt := range recon.Alternatives {
			if top-alt.Confidence <= 0.05 {
				signals.MultipleCandidatesSimilar = true
				break
			}
		}
	}
	media.AlternativeMatches = alternativeResults(media.MediaType, recon)

	if tmdbID, ok := toTMDBID(best.ExternalID); ok {
		media.TMDBID = &tmdbID
	}
	media.Title = best.Title
	media.OriginalTitle = best.OriginalTitle
	media.Genres = best.Genres
	media.Rating = best.Rating

	if ident.Year != nil && best.Year != nil {
		signals.YearKnown = true
		if *ident.Year == *best.Year {
			signals.YearMatchesExact = true
		} else if abs(*ident.Year-*best.Year) <= 1 {
			signals.YearMatchesWithinOne = true
		}
	}

	if media.MediaType == models.MediaTypeEpisode {
		signals.IsSeriesCandidate = true
		signals.SeasonEpisodeKnown = media.Season != nil && media.Episode != nil
		if media.Season != nil && media.Episode != nil {
			details, err := s.resolver.FetchEpisode(ctx, best.ExternalID, *media.Season, *media.Episode)
			if err == nil && details != nil {
				if details.Exists {
					signals.EpisodeConfirmedExists = true
				} else {
					signals.EpisodeConfirmedAbsent = true
				}
			}
		}
		return
	}

	if best.BelongsToCollection != nil {
		s.upsertCollection(best.BelongsToCollection)
	}
}

func (s *Scanner) upsertSeries(ctx context.Context, media *models.Media, ident models.IdentificationResult) error {
	existing, err := s.seriesRepo.FindByTMDBID(*media.TMDBID)
	if err == repository.ErrNotFound {
		series := &models.Series{TMDBID: *media.TMDBID, Title: media.Title, OriginalTitle: media.OriginalTitle, Genres: media.Genres, Rating: media.Rating}
		if err := s.seriesRepo.Create(series); err != nil {
			return err
		}
		media.SeriesID = &series.ID
	} else if err != nil {
		return err
	} else {
		media.SeriesID = &existing.ID
	}

	// Record the season's episode count while the show is in hand; the
	// fetch is cached so every episode of the season shares one call.
	if s.resolver != nil && media.Season != nil {
		count, err := s.resolver.FetchSeason(ctx, strconv.Itoa(*media.TMDBID), *media.Season)
		if err != nil {
			log.Printf("Scan: season fetch failed for tmdb %d S%02d: %v", *media.TMDBID, *media.Season, err)
		} else if err := s.seriesRepo.UpsertSeason(*media.SeriesID, *media.Season, count); err != nil {
			log.Printf("Scan: season upsert failed for tmdb %d S%02d: %v", *media.TMDBID, *media.Season, err)
		}
	}
	return nil
}

func (s *Scanner) upsertCollection(ref *models.CollectionRef) {
	if s.collectionRepo == nil || presetCollectionNames[ref.Name] {
		return
	}
	id := ref.ID
	existing, err := s.collectionRepo.FindByTMDBCollectionID(id)
	if err == repository.ErrNotFound {
		c := &models.Collection{TMDBCollectionID: &id, Name: ref.Name, CollectionType: models.CollectionAuto, AvailableItems: 1}
		if err := s.collectionRepo.Save(c); err != nil {
			log.Printf("Scan: collection create failed for %q: %v", ref.Name, err)
		}
		return
	}
	if err != nil {
		log.Printf("Scan: collection lookup failed for %q: %v", ref.Name, err)
		return
	}
	existing.AvailableItems++
	if err := s.collectionRepo.Save(existing); err != nil {
		log.Printf("Scan: collection update failed for %q: %v", ref.Name, err)
	}
}

// alternativeResults converts the reconciliation runners-up into the form
// persisted on the media row, so a later manual-review pass can offer them
// without re-querying TMDB.
func alternativeResults(mediaType models.MediaType, recon *models.ReconciliationResult) []models.IdentificationResult {
	if len(recon.Alternatives) == 0 {
		return nil
	}
	out := make([]models.IdentificationResult, 0, len(recon.Alternatives))
	for _, alt := range recon.Alternatives {
		r := models.IdentificationResult{
			MediaType: mediaType,
			Title:     alt.Title,
			Year:      alt.Year,
			Strategy:  recon.Strategy,
		}
		if tmdbID, ok := toTMDBID(alt.ExternalID); ok {
			r.TMDBID = &tmdbID
		}
		out = append(out, r)
	}
	return out
}

func toTMDBID(externalID string) (int, bool) {
	n := 0
	if externalID == "" {
		return 0, false
	}
	for _, r := range externalID {
		if r < '0' || r > '9' {
			return 0, false
		}
		n = n*10 + int(r-'0')
	}
	return n, true
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
