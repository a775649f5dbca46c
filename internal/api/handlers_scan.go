package api

import (
	"net/http"

	"github.com/reelkeep/reelkeep/internal/jobs"
)

// handleScan enqueues a scan through the asynq-backed queue so the HTTP
// call returns before the tree walk finishes. No route reports the queued
// scan's progress; it is logged by the scan worker.
func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Path        string `json:"path"`
		ForceRescan bool   `json:"force_rescan"`
	}
	if err := s.decodeJSON(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	root := body.Path
	if root == "" {
		root = s.cfg.MediaDir
	}

	if s.scanQueue == nil {
		s.respondError(w, http.StatusInternalServerError, "scan queue not configured")
		return
	}

	taskID, err := s.scanQueue.EnqueueScan(jobs.ScanPayload{
		RootPath:    root,
		ForceRescan: body.ForceRescan,
	})
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondJSON(w, http.StatusAccepted, Response{Success: true, Data: map[string]string{"task_id": taskID}})
}
