package domain

import "time"

// Data source tags distinguish how an alert entered the store. Natural keys
// are unique only within one source, so upserts are scoped by both.
const (
	SourceBackfill = "iem_backfill"
	SourceLive     = "live_api"
)

// AlertRecord is a normalized NWS warning or watch.
type AlertRecord struct {
	NaturalKey string `json:"natural_key"`
	DataSource string `json:"data_source"`

	EventType string    `json:"event_type"` // e.g. "Severe Thunderstorm Warning"
	Severity  string    `json:"severity,omitempty"`
	AreaDesc  string    `json:"area_desc,omitempty"`
	Effective time.Time `json:"effective,omitempty"`
	Expires   time.Time `json:"expires,omitempty"`
	Issued    time.Time `json:"issued,omitempty"`

	// Geometry is nil when reconstruction failed for this record.
	Geometry *Geometry `json:"geometry,omitempty"`

	// Properties preserves raw source attributes not promoted to named fields.
	Properties map[string]string `json:"properties,omitempty"`
}

// ProgressStep names one step of the backfill pipeline for a (region, year,
// month) unit. A finished unit always ends with StepCompleted or StepFailed.
type ProgressStep string

const (
	StepDownload  ProgressStep = "download"
	StepParse     ProgressStep = "parse"
	StepInsert    ProgressStep = "insert"
	StepCompleted ProgressStep = "completed"
	StepFailed    ProgressStep = "failed"
)

// StepCounts accumulates per-step record counters.
type StepCounts struct {
	Processed int `json:"processed"`
	Inserted  int `json:"inserted"`
	Updated   int `json:"updated"`
	Skipped   int `json:"skipped"`
}

// Add folds other into c.
func (c *StepCounts) Add(other StepCounts) {
	c.Processed += other.Processed
	c.Inserted += other.Inserted
	c.Updated += other.Updated
	c.Skipped += other.Skipped
}

// ProgressRecord tracks one processing step for one (region, year, month).
// At most one row exists per (region, year, month, step); a step in flight
// has a nil CompletedAt and no error, a failed step has a nil CompletedAt
// and a non-empty ErrorMessage.
type ProgressRecord struct {
	Region string       `json:"region"`
	Year   int          `json:"year"`
	Month  time.Month   `json:"month"`
	Step   ProgressStep `json:"step"`

	StartedAt   time.Time  `json:"started_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	Counts       StepCounts        `json:"counts"`
	ErrorMessage string            `json:"error_message,omitempty"`
	Metadata     map[string]string `json:"metadata,omitempty"`
}

// InFlight reports whether the step started but has neither finished nor failed.
func (p ProgressRecord) InFlight() bool {
	return p.CompletedAt == nil && p.ErrorMessage == ""
}

// Failed reports whether the step recorded an error.
func (p ProgressRecord) Failed() bool {
	return p.CompletedAt == nil && p.ErrorMessage != ""
}
