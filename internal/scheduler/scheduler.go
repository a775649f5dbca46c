// Package scheduler drives the periodic rescan the scan_interval_secs
// configuration field names: when non-zero, it enqueues a library scan on
// that cadence the same way the /v2/scan HTTP endpoint does, so periodic
// and on-demand scans share one dispatch path. Scheduling itself is
// robfig/cron/v3.
package scheduler

import (
	"fmt"
	"log"

	"github.com/robfig/cron/v3"

	"github.com/reelkeep/reelkeep/internal/jobs"
	"github.com/reelkeep/reelkeep/internal/models"
)

// Publisher is the narrow event-bus dependency the rest of this module's
// pipelines take.
type Publisher interface {
	Publish(event models.DomainEvent) error
}

// ScanEnqueuer is the narrow dispatch dependency; *jobs.Queue satisfies it.
type ScanEnqueuer interface {
	EnqueueScan(payload jobs.ScanPayload) (string, error)
}

var _ ScanEnqueuer = (*jobs.Queue)(nil)

// Scheduler periodically enqueues a full-library rescan.
type Scheduler struct {
	cron        *cron.Cron
	queue       ScanEnqueuer
	bus         Publisher
	libraryPath string
}

// New builds a Scheduler that enqueues a rescan of libraryPath against
// queue, publishing scheduling and dispatch lifecycle events on bus.
func New(queue ScanEnqueuer, bus Publisher, libraryPath string) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		queue:       queue,
		bus:         bus,
		libraryPath: libraryPath,
	}
}

// Start registers the periodic rescan at the given interval and starts the
// cron runner. A non-positive interval is a caller error; callers should
// skip calling Start entirely when scan_interval_secs is 0 ("0 disables
// periodic rescan").
func (s *Scheduler) Start(intervalSecs int) error {
	if intervalSecs <= 0 {
		return fmt.Errorf("scheduler: interval must be positive, got %d", intervalSecs)
	}

	spec := fmt.Sprintf("@every %ds", intervalSecs)
	if _, err := s.cron.AddFunc(spec, s.runScan); err != nil {
		return fmt.Errorf("scheduler: schedule rescan: %w", err)
	}

	if err := s.bus.Publish(models.BackgroundScanScheduledEvent{
		Base:        models.NewBase(),
		LibraryPath: s.libraryPath,
	}); err != nil {
		log.Printf("scheduler: publish scan-scheduled event: %v", err)
	}

	s.cron.Start()
	return nil
}

// Stop halts the cron runner, waiting for any in-flight job to finish.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
}

// runScan is the cron job body: enqueue a rescan exactly the way the
// /v2/scan endpoint would, and publish the pair of events that bracket it.
func (s *Scheduler) runScan() {
	if err := s.bus.Publish(models.BackgroundScanStartedEvent{
		Base:        models.NewBase(),
		LibraryPath: s.libraryPath,
	}); err != nil {
		log.Printf("scheduler: publish scan-started event: %v", err)
	}

	if _, err := s.queue.EnqueueScan(jobs.ScanPayload{RootPath: s.libraryPath}); err != nil {
		log.Printf("scheduler: enqueue periodic rescan: %v", err)
		return
	}

	if err := s.bus.Publish(models.BackgroundTaskCompletedEvent{
		Base:     models.NewBase(),
		TaskName: "periodic_rescan_dispatch",
	}); err != nil {
		log.Printf("scheduler: publish task-completed event: %v", err)
	}
}
