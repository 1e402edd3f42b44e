package similarity

import (
	"context"
	"time"
)

// Diagnostics summarises the soft failures of a run.
type Diagnostics struct {
	UnmappedPercent    float64       `json:"unmapped_percent"`
	UnmappedInstances  int           `json:"unmapped_instances"`
	MappedInstances    int           `json:"mapped_instances"`
	UnmappedConcepts   []string      `json:"unmapped_concepts,omitempty"`
	FullyObsoleteCases []string      `json:"fully_obsolete_cases,omitempty"`
	DroppedCases       []string      `json:"dropped_cases,omitempty"`
	PairsScored        int           `json:"pairs_scored"`
	Duration           time.Duration `json:"duration_ns"`
}

// RunReport describes a finished run for result sinks.
type RunReport struct {
	RunID       string
	StartedAt   time.Time
	FinishedAt  time.Time
	InputPath   string
	OutputPath  string
	Matrix      *Matrix
	Diagnostics Diagnostics
}

// ReportSink receives a RunReport once the local matrix file exists.
type ReportSink interface {
	Name() string
	Publish(ctx context.Context, report *RunReport) error
}
