package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/reelkeep/reelkeep/internal/models"
	"github.com/reelkeep/reelkeep/internal/repository"
	"github.com/reelkeep/reelkeep/internal/stream"
)

func (s *Server) mediaByPath(r *http.Request) (*models.Media, error) {
	id, err := pathUUID(r, "id")
	if err != nil {
		return nil, repository.ErrNotFound
	}
	return s.mediaRepo.FindByID(id)
}

// handleStreamDirect is the byte-range direct-serve endpoint.
func (s *Server) handleStreamDirect(w http.ResponseWriter, r *http.Request) {
	media, err := s.mediaByPath(r)
	if err == repository.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	_ = s.bus.Publish(models.StreamStartedEvent{Base: models.NewBase(), MediaID: media.ID})

	if err := stream.ServeDirect(w, r, media.FilePath); err != nil {
		if err == stream.ErrRangeNotSatisfiable {
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		_ = s.bus.Publish(models.StreamErrorEvent{Base: models.NewBase(), MediaID: media.ID, Error: err.Error()})
		return
	}
	_ = s.bus.Publish(models.StreamEndedEvent{Base: models.NewBase(), MediaID: media.ID})
}

// handleStreamWeb is the transcoded-streaming endpoint: probe the file, build
// the ffmpeg argument list and pipe its stdout straight to the client.
func (s *Server) handleStreamWeb(w http.ResponseWriter, r *http.Request) {
	media, err := s.mediaByPath(r)
	if err == repository.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	probeCtx, cancel := requestContext(r, 30*time.Second)
	probe, err := s.ffprobe.Inspect(probeCtx, media.FilePath)
	cancel()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "probe failed: "+err.Error())
		return
	}

	req := stream.WebStreamRequest{
		FilePath:        media.FilePath,
		StartSeconds:    queryInt(r, "start", 0),
		AudioTrackIndex: queryInt(r, "audio", 0),
	}

	ffmpegPath := s.cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}

	_ = s.bus.Publish(models.StreamStartedEvent{Base: models.NewBase(), MediaID: media.ID})
	if err := stream.ServeWebTranscode(r.Context(), w, ffmpegPath, probe, req); err != nil {
		_ = s.bus.Publish(models.StreamErrorEvent{Base: models.NewBase(), MediaID: media.ID, Error: err.Error()})
		return
	}
	_ = s.bus.Publish(models.StreamEndedEvent{Base: models.NewBase(), MediaID: media.ID})
}

func (s *Server) handleThumbnail(w http.ResponseWriter, r *http.Request) {
	media, err := s.mediaByPath(r)
	if err == repository.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx, cancel := requestContext(r, 30*time.Second)
	defer cancel()
	probe, err := s.ffprobe.Inspect(ctx, media.FilePath)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "probe failed: "+err.Error())
		return
	}

	timestamp, width, height := stream.ResolveThumbnailRequest(probe, stream.ThumbnailRequest{
		FilePath:      media.FilePath,
		TimestampSecs: queryFloat(r, "timestamp", 0),
		Width:         queryInt(r, "width", 0),
	})

	ffmpegPath := s.cfg.FFmpegPath
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	data, err := stream.ExtractThumbnail(ffmpegPath, media.FilePath, timestamp, width, height)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.Header().Set("Cache-Control", "public, max-age=86400")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)

	_ = s.bus.Publish(models.ThumbnailGeneratedEvent{Base: models.NewBase(), MediaID: media.ID})
}

// handleExternalSubtitle discovers external SRT siblings, addresses them by
// index, converts to WebVTT, and applies an optional seek offset.
func (s *Server) handleExternalSubtitle(w http.ResponseWriter, r *http.Request) {
	media, err := s.mediaByPath(r)
	if err == repository.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	index, err := strconv.Atoi(r.PathValue("i"))
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid subtitle index")
		return
	}

	subs, err := stream.DiscoverExternalSubtitles(media.FilePath)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if index < 0 || index >= len(subs) {
		s.respondError(w, http.StatusNotFound, "subtitle track not found")
		return
	}

	offset := queryFloat(r, "offset", 0)
	vtt, err := stream.ConvertSRTToWebVTT(subs[index].Path, offset)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	w.Header().Set("Content-Type", "text/vtt; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(vtt))
}

// discoverSubtitleTracks adapts stream.DiscoverExternalSubtitles into the
// GET /v2/media/:id/tracks response shape.
func discoverSubtitleTracks(mediaPath string) ([]subtitleTrack, error) {
	subs, err := stream.DiscoverExternalSubtitles(mediaPath)
	if err != nil {
		return nil, err
	}
	out := make([]subtitleTrack, 0, len(subs))
	for i, sub := range subs {
		lang := sub.Language
		if lang == "" {
			lang = "und"
		}
		out = append(out, subtitleTrack{Index: i, Language: lang})
	}
	return out, nil
}
