package api

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/reelkeep/reelkeep/internal/metadata"
	"github.com/reelkeep/reelkeep/internal/models"
	"github.com/reelkeep/reelkeep/internal/repository"
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondOK(w, map[string]string{"status": "ok"})
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Secret string `json:"secret"`
	}
	if err := s.decodeJSON(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	token, err := s.auth.IssueSession(body.Secret)
	if err != nil {
		s.respondError(w, http.StatusUnauthorized, "invalid shared secret")
		return
	}
	s.respondOK(w, map[string]string{"token": token})
}

// groupedLibrary is the grouped-library shape GET /v2/media returns: movies
// on their own, episodes grouped by owning series, and collections
// alongside both.
type groupedLibrary struct {
	Movies      []*models.Media      `json:"movies"`
	Series      []seriesGroup        `json:"series"`
	Collections []*models.Collection `json:"collections"`
}

type seriesGroup struct {
	Series   *models.Series  `json:"series"`
	Episodes []*models.Media `json:"episodes"`
}

func (s *Server) handleMediaList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 500)
	all, err := s.mediaRepo.FindAll(limit, queryInt(r, "offset", 0))
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	byseries := make(map[string][]*models.Media)
	var movies []*models.Media
	for _, m := range all {
		if m.MediaType == models.MediaTypeEpisode && m.SeriesID != nil {
			key := m.SeriesID.String()
			byseriesAppend(byseries, key, m)
			continue
		}
		movies = append(movies, m)
	}

	var groups []seriesGroup
	seriesList, err := s.seriesRepo.ListAll()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	for _, series := range seriesList {
		episodes := byseries[series.ID.String()]
		if len(episodes) == 0 {
			continue
		}
		groups = append(groups, seriesGroup{Series: series, Episodes: episodes})
	}

	collections, err := s.collectionRepo.ListAll()
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.respondOK(w, groupedLibrary{Movies: movies, Series: groups, Collections: collections})
}

// byseriesAppend appends media to its series bucket so handleMediaList reads
// cleanly despite the anonymous map type; kept as a function instead of a
// method since it's pure data-shaping, not server state.
func byseriesAppend(m map[string][]*models.Media, key string, media *models.Media) {
	m[key] = append(m[key], media)
}

func (s *Server) handleMediaByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	media, err := s.mediaRepo.FindByID(id)
	if err == repository.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respondOK(w, media)
}

// mediaTracks is the GET /v2/media/:id/tracks response: audio tracks from
// ffprobe plus the externally discoverable subtitle tracks.
type mediaTracks struct {
	Audio     []ffprobeAudioTrack `json:"audio"`
	Subtitles []subtitleTrack     `json:"subtitles"`
}

type ffprobeAudioTrack struct {
	Index    int    `json:"index"`
	Codec    string `json:"codec"`
	Language string `json:"language"`
	Channels int    `json:"channels"`
	Default  bool   `json:"default"`
}

type subtitleTrack struct {
	Index    int    `json:"index"`
	Language string `json:"language"`
}

func (s *Server) handleMediaTracks(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	media, err := s.mediaRepo.FindByID(id)
	if err == repository.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	ctx, cancel := requestContext(r, 30*time.Second)
	defer cancel()
	probe, err := s.ffprobe.Inspect(ctx, media.FilePath)
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, "probe failed: "+err.Error())
		return
	}

	resp := mediaTracks{}
	for _, t := range probe.AudioTracks {
		resp.Audio = append(resp.Audio, ffprobeAudioTrack{
			Index: t.Index, Codec: t.Codec, Language: t.Language, Channels: t.Channels, Default: t.Default,
		})
	}
	subs, err := discoverSubtitleTracks(media.FilePath)
	if err == nil {
		resp.Subtitles = subs
	}
	s.respondOK(w, resp)
}

func (s *Server) handleMediaCredits(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	media, err := s.mediaRepo.FindByID(id)
	if err == repository.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// Stored credits are served without touching TMDB until they go
	// stale; a stale fetch failure falls back to the stored copy.
	stored, fetchedAt, storedErr := s.mediaRepo.CreditsFor(id)
	if storedErr == nil && time.Since(fetchedAt) < 24*time.Hour {
		s.respondOK(w, stored)
		return
	}

	if s.resolver == nil || media.TMDBID == nil {
		if storedErr == nil {
			s.respondOK(w, stored)
			return
		}
		s.respondError(w, http.StatusNotFound, "no metadata identity for this item")
		return
	}

	kind := "movie"
	if media.MediaType == models.MediaTypeEpisode {
		kind = "tv"
	}
	ctx, cancel := requestContext(r, 30*time.Second)
	defer cancel()
	credits, err := s.resolver.FetchCredits(ctx, kind, strconv.Itoa(*media.TMDBID))
	if err == metadata.ErrCreditsUnsupported {
		s.respondError(w, http.StatusNotFound, "credits unavailable")
		return
	}
	if err != nil {
		if storedErr == nil {
			s.respondOK(w, stored)
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.mediaRepo.SaveCredits(id, credits); err != nil {
		log.Printf("api: store credits for %s: %v", id, err)
	}
	s.respondOK(w, credits)
}

// handleMediaIdentify applies a manual override: an operator-supplied
// tmdb_id replaces whatever the automatic pipeline picked, and the record
// is marked verified since a human chose it.
func (s *Server) handleMediaIdentify(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	var body struct {
		TMDBID int `json:"tmdb_id"`
	}
	if err := s.decodeJSON(r, &body); err != nil || body.TMDBID <= 0 {
		s.respondError(w, http.StatusBadRequest, "tmdb_id is required")
		return
	}

	media, err := s.mediaRepo.FindByID(id)
	if err == repository.ErrNotFound {
		s.respondError(w, http.StatusNotFound, "media not found")
		return
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if s.resolver == nil {
		s.respondError(w, http.StatusInternalServerError, "metadata resolver not configured")
		return
	}

	ctx, cancel := requestContext(r, 30*time.Second)
	defer cancel()
	var match *models.MetadataMatch
	if media.MediaType == models.MediaTypeEpisode {
		match, err = s.resolver.FetchTVDetails(ctx, strconv.Itoa(body.TMDBID))
	} else {
		match, err = s.resolver.FetchMovieDetails(ctx, strconv.Itoa(body.TMDBID))
	}
	if err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	tmdbID := body.TMDBID
	media.TMDBID = &tmdbID
	media.Title = match.Title
	media.OriginalTitle = match.OriginalTitle
	media.Genres = match.Genres
	media.Rating = match.Rating
	media.VerificationStatus = models.VerificationVerified
	media.ConfidenceScore = 1.0

	if err := s.mediaRepo.Update(media); err != nil {
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if err := s.bus.Publish(models.MediaVerifiedEvent{
		Base: models.NewBase(), MediaID: media.ID, Status: models.VerificationVerified,
	}); err != nil {
		// Logged by the bus itself for per-handler failures; a publish-level
		// failure here is non-fatal to the override that already persisted.
		_ = err
	}
	s.respondOK(w, media)
}

// handleMediaProgress updates playback position — the watch-progress write
// path every /v2/media/:id response needs a way to update.
func (s *Server) handleMediaProgress(w http.ResponseWriter, r *http.Request) {
	id, err := pathUUID(r, "id")
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid media id")
		return
	}
	var body struct {
		PositionSeconds float64 `json:"position_seconds"`
		Watched         bool    `json:"watched"`
	}
	if err := s.decodeJSON(r, &body); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.mediaRepo.UpdateProgress(id, body.PositionSeconds, body.Watched); err != nil {
		if err == repository.ErrNotFound {
			s.respondError(w, http.StatusNotFound, "media not found")
			return
		}
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	}

	event := models.DomainEvent(models.MediaWatchedEvent{Base: models.NewBase(), MediaID: id})
	if !body.Watched {
		event = models.MediaUnwatchedEvent{Base: models.NewBase(), MediaID: id}
	}
	_ = s.bus.Publish(event)

	s.respondOK(w, map[string]bool{"updated": true})
}
