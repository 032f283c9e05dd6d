package etl

import (
	"log/slog"
	"time"
)

type RunStatus string

const (
	StatusPass RunStatus = "pass"
	StatusFail RunStatus = "fail"
)

// Phases named in a failed report.
const (
	PhaseExtract    = "extract"
	PhaseDimensions = "load_dimensions"
	PhaseBuild      = "build_facts"
	PhaseFacts      = "write_facts"
)

type FactResult struct {
	Rows    int64     `json:"rows"`
	Skipped bool      `json:"skipped,omitempty"`
	Dropped DropStats `json:"dropped,omitempty"`
}

// Report is the single outcome of one ETL run.
type Report struct {
	RunID            string                `json:"run_id"`
	Status           RunStatus             `json:"status"`
	StartedAt        time.Time             `json:"started_at"`
	FinishedAt       time.Time             `json:"finished_at"`
	DurationMS       int64                 `json:"duration_ms"`
	SnapshotDate     string                `json:"snapshot_date"`
	Extracted        map[string]int        `json:"extracted,omitempty"`
	Dimensions       map[string]int64      `json:"dimensions,omitempty"`
	OrphanTasks      int                   `json:"orphan_tasks"`
	UnresolvedStatus int                   `json:"projects_without_status"`
	Facts            map[string]FactResult `json:"facts,omitempty"`
	FailedPhase      string                `json:"failed_phase,omitempty"`
	Error            string                `json:"error,omitempty"`
}

func (r *Report) Dropped() int {
	n := r.OrphanTasks
	for _, f := range r.Facts {
		n += f.Dropped.Total()
	}
	return n
}

func (r *Report) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("run_id", r.RunID),
		slog.String("status", string(r.Status)),
		slog.Int64("duration_ms", r.DurationMS),
		slog.Int("dropped", r.Dropped()),
	}
	for table, f := range r.Facts {
		attrs = append(attrs, slog.Int64(table, f.Rows))
	}
	if r.Error != "" {
		attrs = append(attrs, slog.String("failed_phase", r.FailedPhase), slog.String("error", r.Error))
	}
	return slog.GroupValue(attrs...)
}
