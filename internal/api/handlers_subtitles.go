package api

import (
	"log"
	"net/http"

	"github.com/google/uuid"

	"github.com/reelkeep/reelkeep/internal/subtitles"
)

// handleGenerateSubtitle is the single-item subtitle generation entry
// point: a job is created synchronously so the response carries its id,
// and the pipeline itself runs in the background.
func (s *Server) handleGenerateSubtitle(w http.ResponseWriter, r *http.Request) {
	mediaID, err := pathUUID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	var body struct {
		AudioTrackIndex int    `json:"audio_track_index"`
		SourceLang      string `json:"source_lang"`
		TargetLang      string `json:"target_lang"`
	}
	if err := s.decodeJSON(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.subtitles == nil {
		s.respondError(w, http.StatusInternalServerError, "subtitle pipeline not configured")
		return
	}

	req := subtitles.GenerateRequest{
		MediaID:         mediaID,
		AudioTrackIndex: body.AudioTrackIndex,
		SourceLang:      body.SourceLang,
		TargetLang:      body.TargetLang,
	}
	jobID := s.subtitles.CreateJob()
	go func() {
		if _, err := s.subtitles.Run(backgroundContext(), jobID, req); err != nil {
			log.Printf("api: subtitle job %s failed: %v", jobID, err)
		}
	}()

	s.respondJSON(w, http.StatusAccepted, Response{Success: true, Data: map[string]string{"job_id": jobID}})
}

// handleBatchGenerateSubtitle is the batch subtitle generation entry point,
// scoped to a series (optionally a single season).
func (s *Server) handleBatchGenerateSubtitle(w http.ResponseWriter, r *http.Request) {
	var body struct {
		TargetType             string `json:"target_type"` // "series" or "season"
		TargetID               string `json:"target_id"`
		SeasonNumber           *int   `json:"season_number"`
		PreferredAudioLanguage string `json:"preferred_audio_language"`
		SourceLang             string `json:"source_lang"`
		TargetLang             string `json:"target_lang"`
	}
	if err := s.decodeJSON(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if s.subtitles == nil {
		s.respondError(w, http.StatusInternalServerError, "subtitle pipeline not configured")
		return
	}
	seriesID, err := uuid.Parse(body.TargetID)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid target_id")
		return
	}
	var season *int
	if body.TargetType == "season" {
		season = body.SeasonNumber
	}

	target := subtitles.BatchTarget{SeriesID: seriesID, Season: season}

	count, err := s.countEpisodes(target)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	req := subtitles.BatchRequest{
		Target:                 target,
		PreferredAudioLanguage: body.PreferredAudioLanguage,
		SourceLang:             body.SourceLang,
		TargetLang:             body.TargetLang,
	}
	batchID := s.subtitles.CreateBatch(count)
	go func() {
		if err := s.subtitles.RunBatch(backgroundContext(), batchID, req); err != nil {
			log.Printf("api: batch subtitle job %s failed: %v", batchID, err)
		}
	}()

	s.respondJSON(w, http.StatusAccepted, Response{Success: true, Data: map[string]string{"batch_id": batchID}})
}

func (s *Server) countEpisodes(target subtitles.BatchTarget) (int, error) {
	if target.Season != nil {
		episodes, err := s.mediaRepo.FindBySeason(target.SeriesID, *target.Season)
		if err != nil {
			return 0, err
		}
		return len(episodes), nil
	}
	episodes, err := s.mediaRepo.FindBySeries(target.SeriesID)
	if err != nil {
		return 0, err
	}
	return len(episodes), nil
}

func (s *Server) handleGetJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if job, ok := s.jobStore.Get(id); ok {
		s.respondOK(w, job)
		return
	}
	if batch, ok := s.jobStore.GetBatch(id); ok {
		s.respondOK(w, batch)
		return
	}
	s.respondError(w, http.StatusNotFound, "job not found")
}

func (s *Server) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if _, ok := s.jobStore.Get(id); ok {
		if err := s.jobStore.Cancel(id); err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondOK(w, map[string]bool{"cancelled": true})
		return
	}
	if _, ok := s.jobStore.GetBatch(id); ok {
		if err := s.jobStore.CancelBatch(id); err != nil {
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		s.respondOK(w, map[string]bool{"cancelled": true})
		return
	}
	s.respondError(w, http.StatusNotFound, "job not found")
}
