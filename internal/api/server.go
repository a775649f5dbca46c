// Package api wires the core media-library components behind the HTTP
// surface; the semantics live in the components this package only
// dispatches to. Routing uses a single *http.ServeMux with Go 1.22+
// method+pattern routes, a uniform {success, data, error} JSON envelope,
// a CORS middleware wrapping the whole mux, and auth middleware applied
// per route so that the health and login routes stay open.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/reelkeep/reelkeep/internal/authn"
	"github.com/reelkeep/reelkeep/internal/config"
	"github.com/reelkeep/reelkeep/internal/eventbus"
	"github.com/reelkeep/reelkeep/internal/ffmpeg"
	"github.com/reelkeep/reelkeep/internal/jobs"
	"github.com/reelkeep/reelkeep/internal/metadata"
	"github.com/reelkeep/reelkeep/internal/models"
	"github.com/reelkeep/reelkeep/internal/repository"
	"github.com/reelkeep/reelkeep/internal/scanner"
	"github.com/reelkeep/reelkeep/internal/subtitles"
)

// Response is the uniform JSON envelope every handler answers with.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

// Publisher is the narrow event-bus dependency handlers need directly (most
// publishing happens inside the components they call into).
type Publisher interface {
	Publish(event models.DomainEvent) error
}

var (
	_ Publisher = (*eventbus.Bus)(nil)
	_ Publisher = (*eventbus.PersistentBus)(nil)
)

// Server holds every collaborator a handler might need and owns the route
// table. Every field is a concrete or narrowly-interfaced dependency built
// in cmd/reelkeep/main.go — nothing here opens its own connections.
type Server struct {
	cfg  *config.Config
	auth *authn.Authenticator

	mediaRepo      *repository.MediaRepository
	seriesRepo     *repository.SeriesRepository
	collectionRepo *repository.CollectionRepository
	subtitleRepo   *repository.SubtitleRepository

	ffprobe  *ffmpeg.FFprobe
	resolver *metadata.Resolver

	scanner     *scanner.Scanner
	scanQueue   ScanEnqueuer
	subtitles   *subtitles.Pipeline
	jobStore    *jobs.Store
	bus         Publisher
	ws          *WSHub

	router *http.ServeMux
}

// ScanEnqueuer lets POST /v2/scan return before a full tree walk finishes;
// *jobs.Queue satisfies it.
type ScanEnqueuer interface {
	EnqueueScan(payload jobs.ScanPayload) (string, error)
}

var _ ScanEnqueuer = (*jobs.Queue)(nil)

// Deps bundles every collaborator NewServer needs, so main.go's wiring call
// site stays readable despite the component count.
type Deps struct {
	Config         *config.Config
	Auth           *authn.Authenticator
	MediaRepo      *repository.MediaRepository
	SeriesRepo     *repository.SeriesRepository
	CollectionRepo *repository.CollectionRepository
	SubtitleRepo   *repository.SubtitleRepository
	FFprobe        *ffmpeg.FFprobe
	Resolver       *metadata.Resolver // nil disables credits/identify enrichment
	Scanner        *scanner.Scanner
	ScanQueue      ScanEnqueuer
	Subtitles      *subtitles.Pipeline
	JobStore       *jobs.Store
	Bus            Publisher
	WSHub          *WSHub // nil disables the live event stream
}

// NewServer builds the server and registers every route.
func NewServer(d Deps) *Server {
	s := &Server{
		cfg:            d.Config,
		auth:           d.Auth,
		mediaRepo:      d.MediaRepo,
		seriesRepo:     d.SeriesRepo,
		collectionRepo: d.CollectionRepo,
		subtitleRepo:   d.SubtitleRepo,
		ffprobe:        d.FFprobe,
		resolver:       d.Resolver,
		scanner:        d.Scanner,
		scanQueue:      d.ScanQueue,
		subtitles:      d.Subtitles,
		jobStore:       d.JobStore,
		bus:            d.Bus,
		ws:             d.WSHub,
		router:         http.NewServeMux(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("GET /health", s.handleHealth)

	s.router.HandleFunc("POST /v2/auth/login", s.handleLogin)

	s.router.HandleFunc("POST /v2/scan", s.auth.Middleware(s.handleScan))

	s.router.HandleFunc("GET /v2/media", s.auth.Middleware(s.handleMediaList))
	s.router.HandleFunc("GET /v2/media/{id}", s.auth.Middleware(s.handleMediaByID))
	s.router.HandleFunc("GET /v2/media/{id}/tracks", s.auth.Middleware(s.handleMediaTracks))
	s.router.HandleFunc("GET /v2/media/{id}/credits", s.auth.Middleware(s.handleMediaCredits))
	s.router.HandleFunc("POST /v2/media/{id}/identify", s.auth.Middleware(s.handleMediaIdentify))
	s.router.HandleFunc("POST /v2/media/{id}/progress", s.auth.Middleware(s.handleMediaProgress))

	s.router.HandleFunc("GET /v2/stream/{id}", s.auth.Middleware(s.handleStreamDirect))
	s.router.HandleFunc("GET /v2/stream/web/{id}", s.auth.Middleware(s.handleStreamWeb))
	s.router.HandleFunc("GET /v2/thumbnail/{id}", s.auth.Middleware(s.handleThumbnail))
	s.router.HandleFunc("GET /v2/subtitles/{id}/{i}", s.auth.Middleware(s.handleExternalSubtitle))

	s.router.HandleFunc("POST /v2/subtitles/{id}/generate", s.auth.Middleware(s.handleGenerateSubtitle))
	s.router.HandleFunc("POST /v2/subtitles/batch/generate", s.auth.Middleware(s.handleBatchGenerateSubtitle))
	s.router.HandleFunc("GET /v2/subtitles/jobs/{id}", s.auth.Middleware(s.handleGetJob))
	s.router.HandleFunc("DELETE /v2/subtitles/jobs/{id}", s.auth.Middleware(s.handleCancelJob))

	// Browser WebSocket clients cannot set an Authorization header, so the
	// auth middleware's ?token= fallback carries the session token here,
	// the same way it does for <video>/<img> sources.
	if s.ws != nil {
		s.router.HandleFunc("GET /v2/events/ws", s.auth.Middleware(s.ws.HandleWS))
	}
}

// Start wraps the route table with global middleware and blocks serving
// HTTP. Auth middleware is applied per-route rather than globally, since
// /health and /v2/auth/login must stay open.
func (s *Server) Start() error {
	handler := s.corsMiddleware(s.router)
	addr := fmt.Sprintf(":%d", s.cfg.Port)
	log.Printf("api: listening on %s", addr)
	return http.ListenAndServe(addr, handler)
}

func (s *Server) corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ──────────────────── Helpers ────────────────────

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, Response{Success: false, Error: message})
}

func (s *Server) respondOK(w http.ResponseWriter, data interface{}) {
	s.respondJSON(w, http.StatusOK, Response{Success: true, Data: data})
}

func (s *Server) decodeJSON(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(dst)
}

func pathUUID(r *http.Request, key string) (uuid.UUID, error) {
	return uuid.Parse(r.PathValue(key))
}

func queryInt(r *http.Request, key string, fallback int) int {
	if v := r.URL.Query().Get(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func queryFloat(r *http.Request, key string, fallback float64) float64 {
	if v := r.URL.Query().Get(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return fallback
}

func requestContext(r *http.Request, timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(r.Context(), timeout)
}

// backgroundContext detaches a long-running job from the HTTP request that
// triggered it: the client gets a 202 and a job id before the pipeline
// finishes, so the job must not be cancelled when that request ends.
func backgroundContext() context.Context {
	return context.Background()
}
