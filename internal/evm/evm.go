// Package evm computes earned-value and balanced-scorecard metrics from the
// warehouse. Nothing here writes; every figure is derived per request.
package evm

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/jonboulle/clockwork"
)

// ProjectBudget is one project's budget facts folded to BAC and AC.
type ProjectBudget struct {
	Key  int64
	ID   int64
	Name string
	BAC  float64
	AC   float64
}

type Task struct {
	Key          int64
	ProjectKey   int64
	PlannedHours float64
}

// Warehouse is the read side the aggregator needs.
type Warehouse interface {
	// ProjectBudgets returns every project that has budget facts, ordered by name.
	ProjectBudgets(ctx context.Context) ([]ProjectBudget, error)
	Tasks(ctx context.Context) ([]Task, error)
	// LatestSnapshotDate reports false when no snapshot has been taken.
	LatestSnapshotDate(ctx context.Context) (time.Time, bool, error)
	// SnapshotsAt maps task key to percent complete for one snapshot date.
	// Tasks whose snapshot carries a NULL percentage are omitted.
	SnapshotsAt(ctx context.Context, date time.Time) (map[int64]int, error)
}

type ProjectEVM struct {
	ID              int64   `json:"id"`
	Key             int64   `json:"-"`
	Name            string  `json:"name"`
	BAC             float64 `json:"budget_allocated"`
	AC              float64 `json:"actual_cost"`
	EV              float64 `json:"earned_value"`
	CV              float64 `json:"cost_variance"`
	CPI             float64 `json:"cpi"`
	PercentComplete float64 `json:"percent_complete"`

	// unrounded values, summed by Rollup
	rawEV, rawAC float64
}

type Portfolio struct {
	Cutoff   time.Time    `json:"cutoff"`
	EV       float64      `json:"earned_value"`
	AC       float64      `json:"actual_cost"`
	CV       float64      `json:"cost_variance"`
	CPI      float64      `json:"cpi"`
	Projects []ProjectEVM `json:"projects"`
}

type Aggregator struct {
	wh    Warehouse
	clock clockwork.Clock
}

func NewAggregator(wh Warehouse, clock clockwork.Clock) *Aggregator {
	return &Aggregator{wh: wh, clock: clock}
}

// Cutoff is the most recent snapshot date, or today when nothing has been
// snapshotted yet.
func (a *Aggregator) Cutoff(ctx context.Context) (time.Time, error) {
	latest, ok, err := a.wh.LatestSnapshotDate(ctx)
	if err != nil {
		return time.Time{}, fmt.Errorf("latest snapshot date: %w", err)
	}
	if !ok {
		now := a.clock.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return latest, nil
}

func (a *Aggregator) Projects(ctx context.Context) ([]ProjectEVM, error) {
	p, err := a.Portfolio(ctx)
	if err != nil {
		return nil, err
	}
	return p.Projects, nil
}

func (a *Aggregator) Portfolio(ctx context.Context) (Portfolio, error) {
	cutoff, err := a.Cutoff(ctx)
	if err != nil {
		return Portfolio{}, err
	}
	budgets, err := a.wh.ProjectBudgets(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("project budgets: %w", err)
	}
	tasks, err := a.wh.Tasks(ctx)
	if err != nil {
		return Portfolio{}, fmt.Errorf("tasks: %w", err)
	}
	progress, err := a.wh.SnapshotsAt(ctx, cutoff)
	if err != nil {
		return Portfolio{}, fmt.Errorf("snapshots at %s: %w", cutoff.Format(time.DateOnly), err)
	}

	p := Rollup(Compute(budgets, tasks, progress))
	p.Cutoff = cutoff
	return p, nil
}

// Compute derives EV, CV and CPI per project. A task missing from progress
// counts as 0% but its planned hours still weigh on the project.
func Compute(budgets []ProjectBudget, tasks []Task, progress map[int64]int) []ProjectEVM {
	type hours struct{ planned, earned float64 }
	byProject := make(map[int64]*hours, len(budgets))
	for _, t := range tasks {
		h := byProject[t.ProjectKey]
		if h == nil {
			h = &hours{}
			byProject[t.ProjectKey] = h
		}
		h.planned += t.PlannedHours
		h.earned += t.PlannedHours * float64(progress[t.Key]) / 100
	}

	out := make([]ProjectEVM, 0, len(budgets))
	for _, b := range budgets {
		var pct float64
		if h := byProject[b.Key]; h != nil && h.planned > 0 {
			pct = h.earned / h.planned
		}
		ev := b.BAC * pct
		out = append(out, ProjectEVM{
			ID:              b.ID,
			Key:             b.Key,
			Name:            b.Name,
			BAC:             Round(b.BAC, 2),
			AC:              Round(b.AC, 2),
			EV:              Round(ev, 2),
			CV:              Round(ev-b.AC, 2),
			CPI:             CPI(ev, b.AC),
			PercentComplete: Round(pct*100, 1),
			rawEV:           ev,
			rawAC:           b.AC,
		})
	}
	return out
}

// Rollup sums the unrounded EV and AC across projects and rounds once. The
// portfolio CPI is the ratio of the sums, never an average of project CPIs.
func Rollup(projects []ProjectEVM) Portfolio {
	var ev, ac float64
	for _, p := range projects {
		ev += p.rawEV
		ac += p.rawAC
	}
	return Portfolio{
		EV:       Round(ev, 2),
		AC:       Round(ac, 2),
		CV:       Round(ev-ac, 2),
		CPI:      CPI(ev, ac),
		Projects: projects,
	}
}

// CPI is EV/AC rounded to two decimals. With no cost yet incurred it is 1.0 if
// any value has been earned and 0 otherwise.
func CPI(ev, ac float64) float64 {
	if ac > 0 {
		return Round(ev/ac, 2)
	}
	if ev > 0 {
		return 1.0
	}
	return 0
}

func Round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
