package model

import "time"

// RunStatus is the lifecycle state of a pipeline invocation.
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// StageStats is the per-stage accounting every enrichment stage reports.
// Skipped counts gate rejections and insufficient-data entities; Failed
// counts errors; Updated counts entities that received at least one write.
// Flagged counts removal-candidate appends. The three outcomes are tracked
// separately on purpose — a skip is not a failure.
type StageStats struct {
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
	Flagged int `json:"flagged,omitempty"`
}

// CrawlStats is the fetch-stage accounting.
type CrawlStats struct {
	CellsClaimed   int `json:"cells_claimed"`
	CellsCompleted int `json:"cells_completed"`
	CellsFailed    int `json:"cells_failed"`
	PlacesFound    int `json:"places_found"`
	VenuesCreated  int `json:"venues_created"`
	VenuesUpdated  int `json:"venues_updated"`
}

// RunReport aggregates the stage results of one pipeline invocation.
// Stages that did not run in the invocation keep zero stats.
type RunReport struct {
	Fetch    CrawlStats `json:"fetch"`
	Annotate StageStats `json:"annotate"`
	Describe StageStats `json:"describe"`
}

// PipelineRun is a durable record of one orchestrator invocation.
type PipelineRun struct {
	ID         string     `json:"id"`
	Kind       string     `json:"kind"` // "run", "annotate", "describe"
	Status     RunStatus  `json:"status"`
	Report     *RunReport `json:"report,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}
