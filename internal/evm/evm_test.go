package evm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"
)

type fakeWarehouse struct {
	budgets  []ProjectBudget
	tasks    []Task
	latest   time.Time
	hasLast  bool
	progress map[time.Time]map[int64]int
	err      error

	askedAt []time.Time
}

func (f *fakeWarehouse) ProjectBudgets(context.Context) ([]ProjectBudget, error) {
	return f.budgets, f.err
}

func (f *fakeWarehouse) Tasks(context.Context) ([]Task, error) {
	return f.tasks, nil
}

func (f *fakeWarehouse) LatestSnapshotDate(context.Context) (time.Time, bool, error) {
	return f.latest, f.hasLast, nil
}

func (f *fakeWarehouse) SnapshotsAt(_ context.Context, date time.Time) (map[int64]int, error) {
	f.askedAt = append(f.askedAt, date)
	return f.progress[date], nil
}

var (
	jan10 = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
	jan12 = time.Date(2024, 1, 12, 0, 0, 0, 0, time.UTC)
)

func TestProjectScenarios(t *testing.T) {
	wh := &fakeWarehouse{
		budgets: []ProjectBudget{
			{Key: 1, ID: 101, Name: "P", BAC: 10000, AC: 3000},
			{Key: 2, ID: 102, Name: "Q", BAC: 5000, AC: 0},
		},
		tasks:   []Task{{Key: 11, ProjectKey: 1, PlannedHours: 100}},
		latest:  jan12,
		hasLast: true,
		progress: map[time.Time]map[int64]int{
			jan10: {11: 90},
			jan12: {11: 50},
		},
	}
	agg := NewAggregator(wh, clockwork.NewFakeClockAt(time.Date(2024, 2, 1, 12, 0, 0, 0, time.UTC)))

	projects, err := agg.Projects(context.Background())
	require.NoError(t, err)
	require.Len(t, projects, 2)

	p := projects[0]
	require.Equal(t, int64(101), p.ID)
	require.Equal(t, 5000.0, p.EV)
	require.Equal(t, 2000.0, p.CV)
	require.Equal(t, 1.67, p.CPI)
	require.Equal(t, 50.0, p.PercentComplete)

	q := projects[1]
	require.Equal(t, 0.0, q.EV)
	require.Equal(t, 0.0, q.AC)
	require.Equal(t, 0.0, q.CPI)

	require.Equal(t, []time.Time{jan12}, wh.askedAt)
}

func TestCutoffFallsBackToToday(t *testing.T) {
	wh := &fakeWarehouse{}
	clock := clockwork.NewFakeClockAt(time.Date(2024, 3, 5, 23, 59, 0, 0, time.UTC))

	cutoff, err := NewAggregator(wh, clock).Cutoff(context.Background())
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC), cutoff)
}

func TestTasksWithoutSnapshotCountAsZero(t *testing.T) {
	budgets := []ProjectBudget{{Key: 1, Name: "P", BAC: 1000, AC: 100}}
	tasks := []Task{
		{Key: 1, ProjectKey: 1, PlannedHours: 10},
		{Key: 2, ProjectKey: 1, PlannedHours: 30},
	}

	got := Compute(budgets, tasks, map[int64]int{1: 100})
	require.Len(t, got, 1)
	require.Equal(t, 25.0, got[0].PercentComplete)
	require.Equal(t, 250.0, got[0].EV)
	require.Equal(t, 2.5, got[0].CPI)
}

func TestZeroPlannedHoursYieldsZeroProgress(t *testing.T) {
	got := Compute(
		[]ProjectBudget{{Key: 1, BAC: 1000, AC: 10}},
		[]Task{{Key: 1, ProjectKey: 1, PlannedHours: 0}},
		map[int64]int{1: 80},
	)
	require.Equal(t, 0.0, got[0].EV)
	require.Equal(t, 0.0, got[0].CPI)
	require.Equal(t, -10.0, got[0].CV)
}

func TestCPIFallbackLaw(t *testing.T) {
	tests := []struct {
		name   string
		ev, ac float64
		want   float64
	}{
		{name: "no cost, value earned", ev: 10, ac: 0, want: 1.0},
		{name: "no cost, nothing earned", ev: 0, ac: 0, want: 0},
		{name: "ratio rounded", ev: 5000, ac: 3000, want: 1.67},
		{name: "over budget", ev: 100, ac: 300, want: 0.33},
		{name: "cost but nothing earned", ev: 0, ac: 50, want: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.want, CPI(tt.ev, tt.ac))
		})
	}
}

func TestPortfolioIsRatioOfSums(t *testing.T) {
	p := Rollup([]ProjectEVM{
		{rawEV: 100, rawAC: 50},
		{rawEV: 100, rawAC: 150},
	})
	// average of ratios would be (2 + 0.67) / 2 = 1.33
	require.Equal(t, 1.0, p.CPI)
	require.Equal(t, 200.0, p.EV)
	require.Equal(t, 200.0, p.AC)
	require.Equal(t, 0.0, p.CV)

	empty := Rollup(nil)
	require.Equal(t, 0.0, empty.CPI)
}

func TestPortfolioSumsUnroundedValues(t *testing.T) {
	budgets := []ProjectBudget{
		{Key: 1, ID: 1, Name: "A", BAC: 0.01, AC: 0.01},
		{Key: 2, ID: 2, Name: "B", BAC: 0.01, AC: 0.01},
	}
	tasks := []Task{
		{Key: 10, ProjectKey: 1, PlannedHours: 100},
		{Key: 20, ProjectKey: 2, PlannedHours: 100},
	}
	projects := Compute(budgets, tasks, map[int64]int{10: 50, 20: 50})
	// each project displays EV 0.01 after rounding 0.005
	require.Equal(t, 0.01, projects[0].EV)

	p := Rollup(projects)
	require.Equal(t, 0.01, p.EV)
	require.Equal(t, 0.02, p.AC)
	require.Equal(t, 0.5, p.CPI)
	require.Equal(t, StatusWarning, Financial(p.CPI).Status)
}

func TestPortfolioPropagatesWarehouseErrors(t *testing.T) {
	boom := errors.New("connection reset")
	wh := &fakeWarehouse{err: boom}
	_, err := NewAggregator(wh, clockwork.NewFakeClock()).Portfolio(context.Background())
	require.ErrorIs(t, err, boom)
}
