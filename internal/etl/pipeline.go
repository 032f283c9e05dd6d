// Package etl turns one operational extract into a freshly loaded warehouse.
package etl

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alitto/pond/v2"
	"github.com/jonboulle/clockwork"

	"pmdss/internal/metrics"
	"pmdss/internal/runlock"
	"pmdss/internal/source"
	"pmdss/internal/util"
	"pmdss/internal/warehouse"
)

var ErrRunInProgress = errors.New("another ETL run is in progress")

type Source interface {
	Extract(ctx context.Context) (*source.Dataset, error)
}

type Warehouse interface {
	LoadDimensions(ctx context.Context, ds *source.Dataset) (warehouse.Keys, warehouse.DimensionCounts, error)
	WriteFacts(ctx context.Context, table warehouse.Table, rows []warehouse.Row) (int64, error)
}

// Recorder persists finished reports. Failures are logged and never change
// the run outcome.
type Recorder interface {
	Record(ctx context.Context, report *Report) error
}

type Options struct {
	// Concurrency bounds how many fact recipes are built at once.
	Concurrency int
	Clock       clockwork.Clock
	Logger      *slog.Logger
	Lock        runlock.Locker
	Recorders   []Recorder
}

type Pipeline struct {
	src       Source
	wh        Warehouse
	lock      runlock.Locker
	recorders []Recorder
	clock     clockwork.Clock
	log       *slog.Logger
	pool      pond.ResultPool[builtFact]
}

type builtFact struct {
	table warehouse.Table
	rows  []warehouse.Row
	drops DropStats
}

func NewPipeline(src Source, wh Warehouse, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = len(warehouse.FactTables)
	}
	if opts.Clock == nil {
		opts.Clock = clockwork.NewRealClock()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		src:       src,
		wh:        wh,
		lock:      opts.Lock,
		recorders: opts.Recorders,
		clock:     opts.Clock,
		log:       opts.Logger,
		pool:      pond.NewResultPool[builtFact](opts.Concurrency),
	}
}

// Run executes one full truncate-and-reload. The returned report is non-nil
// whenever the run started; err is set when the run failed.
func (p *Pipeline) Run(ctx context.Context) (*Report, error) {
	if p.lock != nil {
		release, err := p.lock.Acquire(ctx)
		if err != nil {
			if errors.Is(err, runlock.ErrHeld) {
				metrics.ETLRunsTotal.WithLabelValues("locked").Inc()
				return nil, fmt.Errorf("%w: %w", ErrRunInProgress, err)
			}
			return nil, err
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				p.log.Warn("failed to release run lock", "error", err)
			}
		}()
	}

	started := p.clock.Now().UTC()
	report := &Report{
		RunID:        util.NewRunID(started),
		StartedAt:    started,
		SnapshotDate: source.Day(started).Format(time.DateOnly),
		Facts:        map[string]FactResult{},
	}
	log := p.log.With("run_id", report.RunID)
	log.Info("etl run started")

	err := p.run(ctx, log, report, started)
	p.finish(ctx, log, report, err)
	return report, err
}

func (p *Pipeline) run(ctx context.Context, log *slog.Logger, report *Report, started time.Time) error {
	ds, err := p.src.Extract(ctx)
	if err != nil {
		report.FailedPhase = PhaseExtract
		return err
	}
	report.Extracted = ds.Counts()

	keys, counts, err := p.wh.LoadDimensions(ctx, ds)
	report.Dimensions = counts.Rows
	report.OrphanTasks = counts.OrphanTasks
	report.UnresolvedStatus = counts.UnresolvedStatus
	if err != nil {
		report.FailedPhase = PhaseDimensions
		return err
	}
	if counts.OrphanTasks > 0 {
		metrics.ETLDroppedRowsTotal.WithLabelValues("dim_task", DropUnknownProject).Add(float64(counts.OrphanTasks))
	}

	facts, err := p.buildFacts(ctx, ds, keys, started)
	if err != nil {
		report.FailedPhase = PhaseBuild
		return err
	}

	for _, f := range facts {
		result := FactResult{Dropped: f.drops}
		for reason, n := range f.drops {
			metrics.ETLDroppedRowsTotal.WithLabelValues(f.table.Name, reason).Add(float64(n))
		}
		if f.drops.Total() > 0 {
			log.Info("dropped unresolved rows", "table", f.table.Name, "rows", f.drops.Total())
		}
		if len(f.rows) == 0 {
			result.Skipped = true
			report.Facts[f.table.Name] = result
			log.Info("fact batch empty, skipped", "table", f.table.Name)
			continue
		}
		n, err := p.wh.WriteFacts(ctx, f.table, f.rows)
		result.Rows = n
		report.Facts[f.table.Name] = result
		if err != nil {
			report.FailedPhase = PhaseFacts
			return err
		}
	}
	return nil
}

// buildFacts runs the six recipes on the pool. They only read ds and keys.
// Results come back in warehouse.FactTables order so writes stay serialized
// and deterministic.
func (p *Pipeline) buildFacts(ctx context.Context, ds *source.Dataset, keys warehouse.Keys, now time.Time) ([]builtFact, error) {
	recipes := []func() builtFact{
		func() builtFact {
			rows, drops := BuildTimelog(ds.TimeEntries, keys)
			return builtFact{warehouse.FactTimelog, warehouse.AsRows(rows), drops}
		},
		func() builtFact {
			rows, drops := BuildBudget(ds, keys)
			return builtFact{warehouse.FactBudget, warehouse.AsRows(rows), drops}
		},
		func() builtFact {
			rows, drops := BuildDefectSummary(ds.Defects, keys)
			return builtFact{warehouse.FactDefectSummary, warehouse.AsRows(rows), drops}
		},
		func() builtFact {
			rows, drops := BuildRisk(ds.Risks, keys)
			return builtFact{warehouse.FactRisk, warehouse.AsRows(rows), drops}
		},
		func() builtFact {
			rows, drops := BuildResource(ds.Resources, keys)
			return builtFact{warehouse.FactResource, warehouse.AsRows(rows), drops}
		},
		func() builtFact {
			rows, drops := BuildProgressSnapshot(ds.Tasks, keys, now)
			return builtFact{warehouse.FactProgressSnapshot, warehouse.AsRows(rows), drops}
		},
	}

	group := p.pool.NewGroupContext(ctx)
	for _, recipe := range recipes {
		group.SubmitErr(func() (builtFact, error) {
			if err := ctx.Err(); err != nil {
				return builtFact{}, err
			}
			return recipe(), nil
		})
	}
	return group.Wait()
}

func (p *Pipeline) finish(ctx context.Context, log *slog.Logger, report *Report, err error) {
	report.FinishedAt = p.clock.Now().UTC()
	report.DurationMS = report.FinishedAt.Sub(report.StartedAt).Milliseconds()

	if err != nil {
		report.Status = StatusFail
		report.Error = err.Error()
		log.Error("etl run failed", "report", report)
	} else {
		report.Status = StatusPass
		log.Info("etl run finished", "report", report)
		metrics.ETLLastSuccess.Set(float64(report.FinishedAt.Unix()))
	}

	metrics.ETLRunsTotal.WithLabelValues(string(report.Status)).Inc()
	metrics.ETLRunDuration.Observe(float64(report.DurationMS) / 1000)
	for table, n := range report.Dimensions {
		metrics.ETLRowsLoaded.WithLabelValues(table).Set(float64(n))
	}
	for table, f := range report.Facts {
		metrics.ETLRowsLoaded.WithLabelValues(table).Set(float64(f.Rows))
	}

	recordCtx := context.WithoutCancel(ctx)
	for _, r := range p.recorders {
		if err := r.Record(recordCtx, report); err != nil {
			log.Warn("failed to record run report", "error", err)
		}
	}
}

// Close stops the builder pool.
func (p *Pipeline) Close() {
	p.pool.StopAndWait()
}
