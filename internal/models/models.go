// Package models holds the persisted and derived entities shared across the
// scan, identification, subtitle and streaming pipelines.
package models

import (
	"time"

	"github.com/google/uuid"
)

// ──────────────────── Media classification ────────────────────

type MediaType string

const (
	MediaTypeMovie   MediaType = "movie"
	MediaTypeEpisode MediaType = "episode"
	MediaTypeUnknown MediaType = "unknown"
)

// MatchCategory is the category a single filename-parsing Match belongs to.
// Order here doubles as nothing — priority is defined separately in the parser
// package — this is just the tag vocabulary.
type MatchCategory string

const (
	CategoryTitle        MatchCategory = "title"
	CategoryYear         MatchCategory = "year"
	CategorySeason       MatchCategory = "season"
	CategoryEpisode      MatchCategory = "episode"
	CategoryQuality      MatchCategory = "quality"
	CategorySource       MatchCategory = "source"
	CategoryCodec        MatchCategory = "codec"
	CategoryAudio        MatchCategory = "audio"
	CategoryLanguage     MatchCategory = "language"
	CategoryReleaseGroup MatchCategory = "release_group"
	CategoryNoise        MatchCategory = "noise"
)

// IdentificationStrategy records which reconciliation path produced a result.
type IdentificationStrategy string

const (
	StrategyImdbID           IdentificationStrategy = "imdb_id"
	StrategyFilenameWithYear  IdentificationStrategy = "filename_with_year"
	StrategyFolderWithYear    IdentificationStrategy = "folder_with_year"
	StrategyFilenameOnly      IdentificationStrategy = "filename_only"
	StrategyAlternativeTitle  IdentificationStrategy = "alternative_title"
	StrategyFuzzySearch       IdentificationStrategy = "fuzzy_search"
)

// VerificationStatus reflects how sure the system is that an identification
// is correct.
type VerificationStatus string

const (
	VerificationUnverified   VerificationStatus = "unverified"
	VerificationVerified     VerificationStatus = "verified"
	VerificationManualReview VerificationStatus = "manual_review"
	VerificationIncorrect    VerificationStatus = "incorrect"
)

// CollectionType distinguishes franchise collections that were auto-detected
// from TMDB data, curated presets, user-created custom groupings, and manual
// overrides.
type CollectionType string

const (
	CollectionAuto    CollectionType = "auto"
	CollectionPreset  CollectionType = "preset"
	CollectionCustom  CollectionType = "custom"
	CollectionManual  CollectionType = "manual"
)

// ──────────────────── ParsedFilename (derived, ephemeral) ────────────────────

type ParsedFilename struct {
	Title        string
	Year         *int
	Season       *int
	Episode      *int
	EpisodeEnd   *int
	Quality      string
	Source       string
	Codec        string
	Audio        []string
	Languages    []string
	ReleaseGroup string
	Container    string
	Confidence   int
	MediaType    MediaType
}

// Match is a single pattern hit produced during the tokenise phase of filename
// parsing, before conflict resolution collapses overlapping candidates.
type Match struct {
	Start      int
	End        int
	Category   MatchCategory
	Value      string
	Raw        string
	Confidence int
}

// ──────────────────── IdentificationResult ────────────────────

type IdentificationResult struct {
	MediaType     MediaType
	Title         string
	Year          *int
	Season        *int
	Episode       *int
	MultiEpisode  []int
	SeriesName    string
	Strategy      IdentificationStrategy
	TMDBID        *int
}

// ──────────────────── Media (persisted) ────────────────────

type Media struct {
	ID        uuid.UUID
	FilePath  string

	MediaType     MediaType
	Title         string
	OriginalTitle string
	ReleaseDate   *time.Time
	Genres        []string
	Rating        *float64

	SeriesID   *uuid.UUID
	Season     *int
	Episode    *int
	EpisodeEnd *int

	TMDBID               *int
	ConfidenceScore       float64
	VerificationStatus    VerificationStatus
	IdentificationStrategy IdentificationStrategy
	AlternativeMatches    []IdentificationResult

	CurrentPosition float64
	IsWatched       bool
	DurationSeconds *int

	CreatedAt time.Time
	UpdatedAt time.Time
}

// ──────────────────── Series ────────────────────

type Series struct {
	ID            uuid.UUID
	TMDBID        int
	Title         string
	OriginalTitle string
	FirstAirDate  *time.Time
	Genres        []string
	Rating        *float64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// ──────────────────── Collection ────────────────────

type Collection struct {
	ID               uuid.UUID
	TMDBCollectionID *int
	Name             string
	CollectionType   CollectionType
	TotalItems       int
	AvailableItems   int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type CollectionItem struct {
	ID             uuid.UUID
	CollectionID   uuid.UUID
	TMDBID         int
	MediaType      MediaType
	TimelineOrder  int
	MediaID        *uuid.UUID // weak reference; nil if not in library
}

// ──────────────────── Subtitles ────────────────────

type TranscriptionSegment struct {
	StartTime float64
	EndTime   float64
	Text      string
}

// WellFormed reports whether a segment sequence is sorted by start time,
// each segment starts before it ends, and no segment overlaps the one before
// it. No exception is made for a cue that spans a split point.
func WellFormed(segments []TranscriptionSegment) bool {
	for i := 1; i < len(segments); i++ {
		if segments[i].StartTime < segments[i-1].StartTime {
			return false
		}
		if segments[i].StartTime < segments[i-1].EndTime {
			return false
		}
	}
	for _, s := range segments {
		if s.StartTime >= s.EndTime {
			return false
		}
	}
	return true
}

// ──────────────────── Jobs ────────────────────

type JobState string

const (
	JobPending    JobState = "pending"
	JobProcessing JobState = "processing"
	JobCompleted  JobState = "completed"
	JobFailed     JobState = "failed"
	JobCancelled  JobState = "cancelled"
)

type Job struct {
	ID         string
	State      JobState
	Progress   float64
	Message    string
	Result     interface{}
	Error      string
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type BatchJob struct {
	ID        string
	State     JobState
	Total     int
	Completed int
	Failed    int
	Errors    map[string]string // media id -> error text
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ──────────────────── Domain events ────────────────────

type EventType string

const (
	EventMediaIdentified             EventType = "media_identified"
	EventScanCompleted               EventType = "scan_completed"
	EventMediaVerified               EventType = "media_verified"
	EventCollectionCreated           EventType = "collection_created"
	EventCollectionUpdated           EventType = "collection_updated"
	EventCollectionItemAdded         EventType = "collection_item_added"
	EventSubtitleGenerationStarted   EventType = "subtitle_generation_started"
	EventSubtitleGenerationCompleted EventType = "subtitle_generation_completed"
	EventSubtitleGenerationFailed    EventType = "subtitle_generation_failed"
	EventStreamStarted              EventType = "stream_started"
	EventStreamEnded                EventType = "stream_ended"
	EventStreamError                EventType = "stream_error"
	EventThumbnailGenerated          EventType = "thumbnail_generated"
	EventBackgroundScanScheduled     EventType = "background_scan_scheduled"
	EventBackgroundScanStarted       EventType = "background_scan_started"
	EventBackgroundTaskCompleted     EventType = "background_task_completed"
	EventProgressUpdated             EventType = "progress_updated"
	EventMediaWatched                EventType = "media_watched"
	EventMediaUnwatched              EventType = "media_unwatched"
)

// DomainEvent is the common envelope every concrete event type satisfies so
// the bus can dispatch on concrete Go type while still giving every event a
// correlation id and a wire-level EventType for the persistence layer.
type DomainEvent interface {
	EventType() EventType
	CorrelationID() uuid.UUID
}

// Base carries the correlation id shared by every concrete domain event.
// Embed it by value and initialise via NewBase().
type Base struct {
	Correlation uuid.UUID
}

func (b Base) CorrelationID() uuid.UUID { return b.Correlation }

// NewBase mints a fresh correlation id for a new event.
func NewBase() Base {
	return Base{Correlation: uuid.New()}
}

type MediaIdentifiedEvent struct {
	Base
	MediaID uuid.UUID
	Title   string
	Strategy IdentificationStrategy
}

func (MediaIdentifiedEvent) EventType() EventType { return EventMediaIdentified }

type ScanCompletedEvent struct {
	Base
	LibraryPath string
	Result      ScanResult
}

func (ScanCompletedEvent) EventType() EventType { return EventScanCompleted }

type MediaVerifiedEvent struct {
	Base
	MediaID uuid.UUID
	Status  VerificationStatus
}

func (MediaVerifiedEvent) EventType() EventType { return EventMediaVerified }

type CollectionCreatedEvent struct {
	Base
	CollectionID uuid.UUID
	Name         string
}

func (CollectionCreatedEvent) EventType() EventType { return EventCollectionCreated }

type CollectionUpdatedEvent struct {
	Base
	CollectionID uuid.UUID
}

func (CollectionUpdatedEvent) EventType() EventType { return EventCollectionUpdated }

type CollectionItemAddedEvent struct {
	Base
	CollectionID uuid.UUID
	TMDBID       int
}

func (CollectionItemAddedEvent) EventType() EventType { return EventCollectionItemAdded }

type SubtitleGenerationStartedEvent struct {
	Base
	MediaID uuid.UUID
	JobID   string
}

func (SubtitleGenerationStartedEvent) EventType() EventType {
	return EventSubtitleGenerationStarted
}

type SubtitleGenerationCompletedEvent struct {
	Base
	MediaID       uuid.UUID
	JobID         string
	SRTPath       string
	Language      string
	WasTranslated bool
}

func (SubtitleGenerationCompletedEvent) EventType() EventType {
	return EventSubtitleGenerationCompleted
}

type SubtitleGenerationFailedEvent struct {
	Base
	MediaID uuid.UUID
	JobID   string
	Error   string
}

func (SubtitleGenerationFailedEvent) EventType() EventType {
	return EventSubtitleGenerationFailed
}

type StreamStartedEvent struct {
	Base
	MediaID uuid.UUID
}

func (StreamStartedEvent) EventType() EventType { return EventStreamStarted }

type StreamEndedEvent struct {
	Base
	MediaID uuid.UUID
}

func (StreamEndedEvent) EventType() EventType { return EventStreamEnded }

type StreamErrorEvent struct {
	Base
	MediaID uuid.UUID
	Error   string
}

func (StreamErrorEvent) EventType() EventType { return EventStreamError }

type ThumbnailGeneratedEvent struct {
	Base
	MediaID uuid.UUID
	Path    string
}

func (ThumbnailGeneratedEvent) EventType() EventType { return EventThumbnailGenerated }

type BackgroundScanScheduledEvent struct {
	Base
	LibraryPath string
}

func (BackgroundScanScheduledEvent) EventType() EventType {
	return EventBackgroundScanScheduled
}

type BackgroundScanStartedEvent struct {
	Base
	LibraryPath string
}

func (BackgroundScanStartedEvent) EventType() EventType { return EventBackgroundScanStarted }

type BackgroundTaskCompletedEvent struct {
	Base
	TaskName string
}

func (BackgroundTaskCompletedEvent) EventType() EventType {
	return EventBackgroundTaskCompleted
}

type ProgressUpdatedEvent struct {
	Base
	Processed  int
	Total      int
	Percentage float64
	Identified int
	Failed     int
	Skipped    int
	ETASeconds float64
}

func (ProgressUpdatedEvent) EventType() EventType { return EventProgressUpdated }

type MediaWatchedEvent struct {
	Base
	MediaID uuid.UUID
}

func (MediaWatchedEvent) EventType() EventType { return EventMediaWatched }

type MediaUnwatchedEvent struct {
	Base
	MediaID uuid.UUID
}

func (MediaUnwatchedEvent) EventType() EventType { return EventMediaUnwatched }

// ScanResult is the aggregate outcome of a single scan run.
type ScanResult struct {
	Processed    int
	Identified   int
	Failed       int
	Skipped      int
	Duration     time.Duration
	FilesPerSec  float64
}

// ──────────────────── Metadata ────────────────────

// MetadataMatch is a single candidate returned by a search or fetch call
// against the metadata resolver, before reconciliation picks a winner.
type MetadataMatch struct {
	Source             string
	ExternalID         string
	IMDBID             string
	Title              string
	OriginalTitle       string
	Year               *int
	Overview           string
	PosterURL          *string
	Rating             *float64
	Genres             []string
	BelongsToCollection *CollectionRef
	SeasonCount        int
	Confidence         float64
}

// CollectionRef is the "belongs_to_collection" stub a movie detail fetch
// carries; the scan pipeline upserts the full Collection from this.
type CollectionRef struct {
	ID   int
	Name string
}

// EpisodeDetails is the result of fetch_episode, used by the episode-existence
// filter to narrow multiple TV candidates down to the ones that
// actually have the season/episode the file claims.
type EpisodeDetails struct {
	Exists bool
	Name   string
}

// ReconciliationResult is what reconcile(...) returns: the best candidate and
// whatever else cleared its strategy's threshold, for manual review.
type ReconciliationResult struct {
	Best         *MetadataMatch
	Alternatives []*MetadataMatch
	Strategy     IdentificationStrategy
}

// CastMember and CrewMember back the /v2/media/:id/credits endpoint —
// a cached-or-fetched view over the metadata service's cast/crew data.
type CastMember struct {
	Name        string
	Character   string
	ProfileURL  *string
	Order       int
}

type CrewMember struct {
	Name       string
	Job        string
	Department string
	ProfileURL *string
}

type Credits struct {
	Cast []CastMember
	Crew []CrewMember
}
