// Command reelkeep runs the media library server: it loads configuration,
// opens the sqlite store, wires every component together and serves HTTP.
// Startup order is config, then database, then background workers, then
// the API server last so every dependency the routes need already exists.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/reelkeep/reelkeep/internal/api"
	"github.com/reelkeep/reelkeep/internal/authn"
	"github.com/reelkeep/reelkeep/internal/config"
	"github.com/reelkeep/reelkeep/internal/db"
	"github.com/reelkeep/reelkeep/internal/eventbus"
	"github.com/reelkeep/reelkeep/internal/ffmpeg"
	"github.com/reelkeep/reelkeep/internal/fingerprint"
	"github.com/reelkeep/reelkeep/internal/gpu"
	"github.com/reelkeep/reelkeep/internal/jobs"
	"github.com/reelkeep/reelkeep/internal/metadata"
	"github.com/reelkeep/reelkeep/internal/repository"
	"github.com/reelkeep/reelkeep/internal/scanner"
	"github.com/reelkeep/reelkeep/internal/scheduler"
	"github.com/reelkeep/reelkeep/internal/stt"
	"github.com/reelkeep/reelkeep/internal/subtitles"
	"github.com/reelkeep/reelkeep/internal/translator"
)

func main() {
	cfg := config.Load()

	conn, err := db.Connect(cfg.DatabaseURL, db.Options{
		MaxOpenConns:    cfg.DBMaxConnections,
		MaxIdleConns:    cfg.DBMinConnections,
		ConnMaxIdleTime: cfg.DBIdleTimeout,
		ConnMaxLifetime: cfg.DBMaxLifetime,
	})
	if err != nil {
		log.Fatalf("reelkeep: connect database: %v", err)
	}
	defer conn.Close()

	mediaRepo := repository.NewMediaRepository(conn)
	seriesRepo := repository.NewSeriesRepository(conn, mediaRepo)
	collectionRepo := repository.NewCollectionRepository(conn)
	subtitleRepo := repository.NewSubtitleRepository(conn)
	cacheRepo := repository.NewCacheRepository(conn)
	eventRepo := repository.NewEventRepository(conn)

	bus := eventbus.NewPersistent(eventbus.New(), eventRepo)

	secretHash, err := authn.HashSecret(cfg.SharedSecret)
	if err != nil {
		log.Fatalf("reelkeep: hash shared secret: %v", err)
	}
	auth := authn.New(secretHash, []byte(cfg.SharedSecret))

	tmdbClient := metadata.NewTMDBClient(cfg.TMDBAPIKey)
	resolver := metadata.NewResolver(tmdbClient, cacheRepo)
	if cfg.MetadataRateLimit > 0 {
		resolver = resolver.WithRateLimit(cfg.MetadataRateLimit)
	}

	ffprobe := ffmpeg.NewFFprobe(cfg.FFprobePath)

	sc := scanner.New(ffprobe, resolver, mediaRepo, seriesRepo, collectionRepo, bus,
		scanner.WithConcurrency(cfg.ScanConcurrency),
		scanner.WithRescanThreshold(cfg.RescanThreshold),
	)

	gpuCoord := gpu.New()
	fp := fingerprint.New(cfg.FpcalcPath)
	sttAdapter := stt.New(cfg.WhisperCLIPath, cfg.WhisperModelPath, cfg.FFmpegPath)
	translatorClient := translator.NewClient(cfg.OllamaURL, cfg.OllamaModel)
	translatorSvc := translator.New(translatorClient)
	jobStore := jobs.New()

	subtitlePipeline := subtitles.New(
		mediaRepo, seriesRepo, subtitleRepo, ffprobe,
		gpuCoord, fp, sttAdapter, translatorSvc, translatorClient,
		jobStore, bus,
	)

	queue := jobs.NewQueue(cfg.RedisAddr)
	queue.RegisterScanHandler(func(ctx context.Context, payload jobs.ScanPayload) error {
		_, err := sc.Execute(ctx, scanner.Options{
			RootPath:    payload.RootPath,
			ForceRescan: payload.ForceRescan,
		}, func(processed, total, identified, failed, skipped int, etaSeconds float64) {
			log.Printf("reelkeep: scan progress %d/%d identified=%d failed=%d skipped=%d eta=%.0fs",
				processed, total, identified, failed, skipped, etaSeconds)
		})
		return err
	})

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := queue.Start(ctx); err != nil {
			log.Printf("reelkeep: job queue stopped: %v", err)
		}
	}()

	if cfg.ScanIntervalSecs > 0 {
		sched := scheduler.New(queue, bus, cfg.MediaDir)
		if err := sched.Start(cfg.ScanIntervalSecs); err != nil {
			log.Fatalf("reelkeep: start scheduler: %v", err)
		}
		defer sched.Stop()
	}

	wsHub := api.NewWSHub()
	wsHub.Attach(bus)

	server := api.NewServer(api.Deps{
		Config:         cfg,
		Auth:           auth,
		MediaRepo:      mediaRepo,
		SeriesRepo:     seriesRepo,
		CollectionRepo: collectionRepo,
		SubtitleRepo:   subtitleRepo,
		FFprobe:        ffprobe,
		Resolver:       resolver,
		Scanner:        sc,
		ScanQueue:      queue,
		Subtitles:      subtitlePipeline,
		JobStore:       jobStore,
		Bus:            bus,
		WSHub:          wsHub,
	})

	go func() {
		log.Fatal(server.Start())
	}()

	<-ctx.Done()
	log.Println("reelkeep: shutting down")
	queue.Stop()
}
