// Package types holds the core domain structs shared across Trace's
// capture, summarization, and retrieval packages.
package types

import "time"

// Screenshot is an immutable record of a single captured frame that
// survived perceptual-hash deduplication.
type Screenshot struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"ts"`
	MonitorID   int       `json:"monitor_id"`
	Path        string    `json:"path"` // relative to the blob root
	Fingerprint string    `json:"fingerprint"` // hex-encoded 64-bit dHash
	DiffScore   float64   `json:"diff_score"`  // normalized Hamming distance, 0.0-1.0
	Width       int       `json:"width"`
	Height      int       `json:"height"`
}

// EventTy is an activity category marker kept on Event for quick filtering.
type EventTy string

// Event is a maximal continuous span of a single activity context.
type Event struct {
	ID              string    `json:"id"`
	StartTS         time.Time `json:"start_ts"`
	EndTS           time.Time `json:"end_ts"`
	AppID           string    `json:"app_id,omitempty"`
	AppName         string    `json:"app_name"`
	WindowTitle     string    `json:"window_title"`
	FocusedMonitor  int       `json:"focused_monitor"`
	URL             string    `json:"url,omitempty"`
	PageTitle       string    `json:"page_title,omitempty"`
	FilePath        string    `json:"file_path,omitempty"`
	LocationText    string    `json:"location_text,omitempty"`
	NowPlayingJSON  string    `json:"now_playing_json,omitempty"`
	EvidenceIDs     []string  `json:"evidence_ids"`
}

// Duration returns the event's span length.
func (e *Event) Duration() time.Duration {
	return e.EndTS.Sub(e.StartTS)
}

// Clip returns the portion of the event's span that overlaps
// [windowStart, windowEnd), or ok=false if there is no overlap.
func (e *Event) Clip(windowStart, windowEnd time.Time) (start, end time.Time, ok bool) {
	start = e.StartTS
	if windowStart.After(start) {
		start = windowStart
	}
	end = e.EndTS
	if windowEnd.Before(end) {
		end = windowEnd
	}
	if !end.After(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

// TextBuffer is compressed textual evidence (OCR/clipboard/document excerpt).
type TextBuffer struct {
	ID            string    `json:"id"`
	Timestamp     time.Time `json:"ts"`
	EventID       string    `json:"event_id,omitempty"`
	Text          string    `json:"text"`
	TokenEstimate int       `json:"token_estimate"`
}

// NoteType distinguishes hourly from daily notes.
type NoteType string

const (
	NoteHour NoteType = "hour"
	NoteDay  NoteType = "day"
)

// Note is a rendered summary, either hourly or daily.
type Note struct {
	ID          string    `json:"id"`
	NoteType    NoteType  `json:"note_type"`
	StartTS     time.Time `json:"start_ts"`
	EndTS       time.Time `json:"end_ts"`
	FilePath    string    `json:"file_path"`
	JSONPayload string    `json:"json_payload"` // validated structured summary, opaque blob
	EmbeddingID string    `json:"embedding_id,omitempty"`
}

// EntityType enumerates the normalized real-world reference kinds.
type EntityType string

const (
	EntityTopic    EntityType = "topic"
	EntityApp      EntityType = "app"
	EntityDomain   EntityType = "domain"
	EntityDocument EntityType = "document"
	EntityArtist   EntityType = "artist"
	EntityTrack    EntityType = "track"
	EntityVideo    EntityType = "video"
	EntityGame     EntityType = "game"
	EntityPerson   EntityType = "person"
	EntityProject  EntityType = "project"
)

// Entity is a normalized real-world reference, deduplicated by
// (entity_type, canonical_name).
type Entity struct {
	ID            string     `json:"id"`
	EntityType    EntityType `json:"entity_type"`
	CanonicalName string     `json:"canonical_name"`
	Aliases       []string   `json:"aliases"`
}

// NoteEntity is a many-to-many edge between a Note and an Entity.
type NoteEntity struct {
	NoteID   string  `json:"note_id"`
	EntityID string  `json:"entity_id"`
	Strength float64 `json:"strength"`
	Context  string  `json:"context,omitempty"`
}

// EdgeType enumerates the typed, weighted relationships between entities.
type EdgeType string

const (
	EdgeAboutTopic      EdgeType = "ABOUT_TOPIC"
	EdgeCoOccurredWith  EdgeType = "CO_OCCURRED_WITH"
	EdgeStudiedWhile    EdgeType = "STUDIED_WHILE"
	EdgeUsedApp         EdgeType = "USED_APP"
	EdgeVisitedDomain   EdgeType = "VISITED_DOMAIN"
	EdgeDocReference    EdgeType = "DOC_REFERENCE"
	EdgeListenedTo      EdgeType = "LISTENED_TO"
	EdgeWatched         EdgeType = "WATCHED"
)

// EdgeWeights holds the default per-type multiplier used by graph
// expansion (spec.md 4.8.4).
var EdgeWeights = map[EdgeType]float64{
	EdgeAboutTopic:     1.0,
	EdgeCoOccurredWith: 0.9,
	EdgeStudiedWhile:   0.85,
	EdgeUsedApp:        0.8,
	EdgeVisitedDomain:  0.75,
	EdgeDocReference:   0.7,
	EdgeListenedTo:     0.6,
	EdgeWatched:        0.6,
}

// Edge is a typed, weighted relationship between two entities, optionally
// time-bounded.
type Edge struct {
	FromID          string     `json:"from_id"`
	ToID            string     `json:"to_id"`
	EdgeType        EdgeType   `json:"edge_type"`
	Weight          float64    `json:"weight"`
	StartTS         *time.Time `json:"start_ts,omitempty"`
	EndTS           *time.Time `json:"end_ts,omitempty"`
	EvidenceNoteIDs []string   `json:"evidence_note_ids,omitempty"`
}

// AggregateKeyType enumerates the dimensions aggregates are rolled up by.
type AggregateKeyType string

const (
	KeyCategory   AggregateKeyType = "category"
	KeyEntity     AggregateKeyType = "entity"
	KeyCoActivity AggregateKeyType = "co_activity"
	KeyApp        AggregateKeyType = "app"
	KeyDomain     AggregateKeyType = "domain"
	KeyTopic      AggregateKeyType = "topic"
	KeyMedia      AggregateKeyType = "media"
	KeyArtist     AggregateKeyType = "artist"
	KeyTrack      AggregateKeyType = "track"
)

// Aggregate is a pre-rolled usage row, sum-aggregatable across
// overlapping windows for a given (key_type, key).
type Aggregate struct {
	PeriodType    string           `json:"period_type"`
	PeriodStartTS time.Time        `json:"period_start_ts"`
	PeriodEndTS   time.Time        `json:"period_end_ts"`
	KeyType       AggregateKeyType `json:"key_type"`
	Key           string           `json:"key"`
	ValueNum      float64          `json:"value_num"`
	ExtraJSON     string           `json:"extra_json,omitempty"`
}

// Embedding is a vector keyed on a note.
type Embedding struct {
	ID        string    `json:"id"`
	SourceType string   `json:"source_type"` // always "note" for now
	SourceID  string    `json:"source_id"`
	Vector    []float64 `json:"vector"`
	ModelName string    `json:"model_name"`
}

// BlockType distinguishes app vs. domain blocklist entries.
type BlockType string

const (
	BlockApp    BlockType = "app"
	BlockDomain BlockType = "domain"
)

// BlocklistEntry suppresses capture for a matching app or domain.
type BlocklistEntry struct {
	ID               string    `json:"id"`
	BlockType        BlockType `json:"block_type"`
	Pattern          string    `json:"pattern"`
	DisplayName      string    `json:"display_name"`
	Enabled          bool      `json:"enabled"`
	BlockScreenshots bool      `json:"block_screenshots"`
	BlockEvents      bool      `json:"block_events"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// NotificationLevel is the severity of a platform-delivered notification.
type NotificationLevel string

const (
	LevelInfo     NotificationLevel = "info"
	LevelWarning  NotificationLevel = "warning"
	LevelError    NotificationLevel = "error"
	LevelCritical NotificationLevel = "critical"
)

// Notification is the core's only contract with the notification surface.
type Notification struct {
	Title string
	Body  string
	Level NotificationLevel
}

// TimeFilter is the result of parsing a natural-language time expression.
type TimeFilter struct {
	Start       time.Time
	End         time.Time
	Description string
	Confidence  float64
}
