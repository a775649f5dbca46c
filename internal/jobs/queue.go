package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/hibiken/asynq"
)

// TaskScanLibrary is the asynq task type POST /v2/scan enqueues so the HTTP
// handler returns immediately instead of blocking on a full tree walk.
const TaskScanLibrary = "scan:library"

// ScanPayload is the JSON body of a TaskScanLibrary task.
type ScanPayload struct {
	RootPath     string `json:"root_path"`
	ForceRescan  bool   `json:"force_rescan"`
}

// Queue wraps asynq's client/server pair around the one background task
// this module enqueues: scan dispatch. A single default queue is enough
// since there is no other task type competing for worker time.
type Queue struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	inspector *asynq.Inspector
}

// NewQueue dials the asynq client/server pair against redisAddr.
func NewQueue(redisAddr string) *Queue {
	redisOpt := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(redisOpt)
	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: 1,
		Queues: map[string]int{
			"default": 1,
		},
	})
	return &Queue{
		client:    client,
		server:    server,
		mux:       asynq.NewServeMux(),
		inspector: asynq.NewInspector(redisOpt),
	}
}

func isTaskConflict(err error) bool {
	if errors.Is(err, asynq.ErrDuplicateTask) || errors.Is(err, asynq.ErrTaskIDConflict) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "task ID conflicts") || strings.Contains(msg, "duplicate task")
}

// EnqueueScan enqueues a scan with a deterministic task id keyed on the root
// path, so a second scan request for the same path while one is already
// pending or active is silently absorbed instead of queueing twice.
func (q *Queue) EnqueueScan(payload ScanPayload) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal scan payload: %w", err)
	}
	uniqueID := "scan-" + payload.RootPath
	task := asynq.NewTask(TaskScanLibrary, data, asynq.TaskID(uniqueID))

	info, err := q.client.Enqueue(task)
	if err == nil {
		return info.ID, nil
	}
	if !isTaskConflict(err) {
		return "", fmt.Errorf("enqueue scan: %w", err)
	}

	if delErr := q.inspector.DeleteTask("default", uniqueID); delErr == nil {
		log.Printf("Job: cleared stale scan task %s", uniqueID)
		if info, err = q.client.Enqueue(task); err == nil {
			return info.ID, nil
		}
	}

	log.Printf("Job: scan for %s already pending or active, skipping", payload.RootPath)
	return uniqueID, nil
}

// RegisterScanHandler wires handler to every dispatched TaskScanLibrary task.
func (q *Queue) RegisterScanHandler(handler func(ctx context.Context, payload ScanPayload) error) {
	q.mux.HandleFunc(TaskScanLibrary, func(ctx context.Context, t *asynq.Task) error {
		var payload ScanPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("unmarshal scan payload: %w", err)
		}
		return handler(ctx, payload)
	})
}

// Start launches the asynq workers and returns; they run until Stop is
// called. ctx is not consulted.
func (q *Queue) Start(ctx context.Context) error {
	log.Println("Job: scan dispatch worker starting")
	return q.server.Start(q.mux)
}

// Stop shuts the queue's client/server/inspector down.
func (q *Queue) Stop() {
	q.server.Shutdown()
	q.client.Close()
	q.inspector.Close()
}
