package etl

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pmdss/internal/source"
	"pmdss/internal/warehouse"
)

func ptr[T any](v T) *T { return &v }

func day(d int) time.Time {
	return time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
}

func testKeys() warehouse.Keys {
	return warehouse.Keys{
		Status:   warehouse.NewKeyMap(map[string]int64{"Open": 5, "Closed": 6}),
		Project:  warehouse.NewKeyMap(map[int64]int64{1: 101, 2: 102}),
		Employee: warehouse.NewKeyMap(map[int64]int64{7: 207, 8: 208}),
		Resource: warehouse.NewKeyMap(map[int64]int64{30: 330}),
		Task:     warehouse.NewKeyMap(map[int64]int64{1: 11, 2: 12}),
	}
}

func TestBuildTimelogSumsPerGrainAndDropsUnresolved(t *testing.T) {
	entries := []source.TimeEntry{
		{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(10).Add(9 * time.Hour), HoursWorked: ptr(3.0)},
		{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(10).Add(14 * time.Hour), HoursWorked: ptr(2.5)},
		{EmployeeID: 8, TaskID: 1, EntryTimestamp: day(10).Add(10 * time.Hour), HoursWorked: ptr(1.0)},
		{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(11), HoursWorked: nil},
		{EmployeeID: 7, TaskID: 99, EntryTimestamp: day(10), HoursWorked: ptr(100.0)},
		{EmployeeID: 99, TaskID: 1, EntryTimestamp: day(10), HoursWorked: ptr(100.0)},
	}

	rows, drops := BuildTimelog(entries, testKeys())
	require.Equal(t, []warehouse.TimelogFact{
		{Date: day(10), TaskKey: 11, EmployeeKey: 207, HoursWorked: 5.5},
		{Date: day(10), TaskKey: 11, EmployeeKey: 208, HoursWorked: 1.0},
		{Date: day(11), TaskKey: 11, EmployeeKey: 207, HoursWorked: 0},
	}, rows)
	require.Equal(t, DropStats{DropUnknownTask: 1, DropUnknownEmployee: 1}, drops)
}

func TestBuildBudgetTakesMaxBudgetAndSumsCost(t *testing.T) {
	ds := &source.Dataset{
		Employees: []source.Employee{
			{ID: 7, CostPerHour: ptr(50.0)},
			{ID: 8, CostPerHour: nil},
		},
		Tasks: []source.Task{
			{ID: 1, ProjectID: 1},
			{ID: 2, ProjectID: 2},
			{ID: 3, ProjectID: 42},
		},
		TimeEntries: []source.TimeEntry{
			{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(1).Add(8 * time.Hour), HoursWorked: ptr(10.0)},
			{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(1).Add(15 * time.Hour), HoursWorked: ptr(2.0)},
			{EmployeeID: 8, TaskID: 1, EntryTimestamp: day(1), HoursWorked: ptr(4.0)},
			{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(3), HoursWorked: ptr(1.0)},
			{EmployeeID: 7, TaskID: 3, EntryTimestamp: day(3), HoursWorked: ptr(1.0)},
			{EmployeeID: 7, TaskID: 77, EntryTimestamp: day(3), HoursWorked: ptr(1.0)},
		},
		ProjectBudgets: []source.ProjectBudget{
			{ProjectID: 1, Budget: ptr(10000.0), StartDate: ptr(day(1))},
			{ProjectID: 2, Budget: nil, StartDate: ptr(day(5))},
			{ProjectID: 3, Budget: ptr(1.0), StartDate: nil},
			{ProjectID: 42, Budget: ptr(1.0), StartDate: ptr(day(5))},
		},
	}

	rows, drops := BuildBudget(ds, testKeys())
	require.Equal(t, []warehouse.BudgetFact{
		{Date: day(1), ProjectKey: 101, BudgetAllocated: 10000, CostActual: 600},
		{Date: day(3), ProjectKey: 101, BudgetAllocated: 0, CostActual: 50},
		{Date: day(5), ProjectKey: 102, BudgetAllocated: 0, CostActual: 0},
	}, rows)
	require.Equal(t, DropStats{DropUnknownProject: 2, DropMissingSource: 1, DropMissingDate: 1}, drops)
}

func TestBuildBudgetWithoutTimeEntriesStillRecordsBudgets(t *testing.T) {
	ds := &source.Dataset{
		ProjectBudgets: []source.ProjectBudget{{ProjectID: 1, Budget: ptr(500.0), StartDate: ptr(day(2))}},
	}
	rows, _ := BuildBudget(ds, testKeys())
	require.Equal(t, []warehouse.BudgetFact{{Date: day(2), ProjectKey: 101, BudgetAllocated: 500}}, rows)
}

func TestBuildDefectSummaryOuterJoinsCounts(t *testing.T) {
	defects := []source.Defect{
		{ProjectID: 1, DetectedDate: day(10)},
		{ProjectID: 1, DetectedDate: day(10)},
		{ProjectID: 1, DetectedDate: day(10), ResolvedDate: ptr(day(12))},
		{ProjectID: 2, DetectedDate: day(11), ResolvedDate: ptr(day(11))},
		{ProjectID: 9, DetectedDate: day(11)},
		{ProjectID: 9, DetectedDate: day(11), ResolvedDate: ptr(day(11))},
	}

	rows, drops := BuildDefectSummary(defects, testKeys())
	require.Equal(t, []warehouse.DefectSummaryFact{
		{Date: day(10), ProjectKey: 101, New: 3, Resolved: 0},
		{Date: day(11), ProjectKey: 102, New: 1, Resolved: 1},
		{Date: day(12), ProjectKey: 101, New: 0, Resolved: 1},
	}, rows)
	require.Equal(t, DropStats{DropUnknownProject: 2}, drops)
}

func TestBuildRiskResolvesAndAverages(t *testing.T) {
	risks := []source.Risk{
		{ID: 1, ProjectID: 1, Probability: ptr(0.4), ImpactScore: ptr(6), DetectedDate: ptr(day(3)), Status: ptr("Open")},
		{ID: 2, ProjectID: 2, Probability: nil, ImpactScore: nil, DetectedDate: ptr(day(4)), Status: ptr("Closed")},
		{ID: 3, ProjectID: 1, DetectedDate: ptr(day(4)), Status: ptr("Escalated")},
		{ID: 4, ProjectID: 1, DetectedDate: ptr(day(4))},
		{ID: 5, ProjectID: 9, DetectedDate: ptr(day(4)), Status: ptr("Open")},
		{ID: 6, ProjectID: 1, Status: ptr("Open")},
	}

	rows, drops := BuildRisk(risks, testKeys())
	require.Len(t, rows, 2)
	require.Equal(t, int64(1), rows[0].RiskID)
	require.Equal(t, int64(5), rows[0].StatusKey)
	require.InDelta(t, 0.4, *rows[0].Probability, 1e-9)
	require.InDelta(t, 6.0, *rows[0].ImpactScore, 1e-9)
	require.Nil(t, rows[1].Probability)
	require.Nil(t, rows[1].ImpactScore)
	require.Equal(t, DropStats{DropUnknownStatus: 2, DropUnknownProject: 1, DropMissingDate: 1}, drops)
}

func TestBuildResourceSumsCostWithZeroUsage(t *testing.T) {
	resources := []source.Resource{
		{ID: 30, ProjectID: 1, Cost: ptr(1200.0), StartDate: ptr(day(2))},
		{ID: 31, ProjectID: 1, Cost: ptr(10.0), StartDate: ptr(day(2))},
		{ID: 30, ProjectID: 9, Cost: ptr(10.0), StartDate: ptr(day(2))},
		{ID: 30, ProjectID: 1, Cost: ptr(10.0)},
	}

	rows, drops := BuildResource(resources, testKeys())
	require.Equal(t, []warehouse.ResourceFact{
		{ResourceKey: 330, ProjectKey: 101, Date: day(2), ResourceCost: 1200, UsageHours: 0},
	}, rows)
	require.Equal(t, DropStats{DropUnknownResource: 1, DropUnknownProject: 1, DropMissingDate: 1}, drops)
}

func TestBuildProgressSnapshotDatesBatchToday(t *testing.T) {
	tasks := []source.Task{
		{ID: 2, ProjectID: 2, PercentComplete: nil},
		{ID: 1, ProjectID: 1, PercentComplete: ptr(50)},
		{ID: 3, ProjectID: 99, PercentComplete: ptr(10)},
	}
	now := time.Date(2024, 2, 1, 18, 45, 0, 0, time.UTC)

	rows, drops := BuildProgressSnapshot(tasks, testKeys(), now)
	require.Equal(t, []warehouse.ProgressSnapshotFact{
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), TaskKey: 11, PercentComplete: ptr(50)},
		{Date: time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), TaskKey: 12, PercentComplete: nil},
	}, rows)
	require.Equal(t, DropStats{DropUnknownTask: 1}, drops)
}

func TestOrphanTasksNeverReachTaskFacts(t *testing.T) {
	// Task 3 belongs to project 99, which has no dim_project row, so it has no
	// task key either.
	projects := warehouse.NewKeyMap(map[int64]int64{1: 101})
	tasks := []source.Task{{ID: 1, ProjectID: 1}, {ID: 3, ProjectID: 99}}
	dims, orphans := warehouse.ResolveTasks(tasks, projects)
	require.Equal(t, 1, orphans)

	taskKeys := map[int64]int64{}
	for i, d := range dims {
		taskKeys[d.TaskID] = int64(i + 1)
	}
	keys := warehouse.Keys{
		Project:  projects,
		Employee: warehouse.NewKeyMap(map[int64]int64{7: 207}),
		Task:     warehouse.NewKeyMap(taskKeys),
	}

	timelog, _ := BuildTimelog([]source.TimeEntry{
		{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(1), HoursWorked: ptr(1.0)},
		{EmployeeID: 7, TaskID: 3, EntryTimestamp: day(1), HoursWorked: ptr(1.0)},
	}, keys)
	snapshots, _ := BuildProgressSnapshot(tasks, keys, day(1))

	require.Len(t, timelog, 1)
	require.Len(t, snapshots, 1)
	require.Equal(t, int64(1), timelog[0].TaskKey)
	require.Equal(t, int64(1), snapshots[0].TaskKey)
}

func TestBuildersAreDeterministic(t *testing.T) {
	ds := &source.Dataset{
		Tasks:       []source.Task{{ID: 1, ProjectID: 1}, {ID: 2, ProjectID: 2}},
		Employees:   []source.Employee{{ID: 7, CostPerHour: ptr(10.0)}, {ID: 8, CostPerHour: ptr(20.0)}},
		TimeEntries: make([]source.TimeEntry, 0, 40),
	}
	for i := range 40 {
		ds.TimeEntries = append(ds.TimeEntries, source.TimeEntry{
			EmployeeID:     int64(7 + i%2),
			TaskID:         int64(1 + i%2),
			EntryTimestamp: day(1 + i%5),
			HoursWorked:    ptr(float64(i)),
		})
	}

	first, _ := BuildBudget(ds, testKeys())
	second, _ := BuildBudget(ds, testKeys())
	require.Equal(t, first, second)

	tl1, _ := BuildTimelog(ds.TimeEntries, testKeys())
	tl2, _ := BuildTimelog(ds.TimeEntries, testKeys())
	require.Equal(t, tl1, tl2)
}

func TestFactGrainsAreUnique(t *testing.T) {
	entries := []source.TimeEntry{
		{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(1).Add(time.Hour), HoursWorked: ptr(1.0)},
		{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(1).Add(2 * time.Hour), HoursWorked: ptr(1.0)},
		{EmployeeID: 7, TaskID: 1, EntryTimestamp: day(2), HoursWorked: ptr(1.0)},
	}
	rows, _ := BuildTimelog(entries, testKeys())
	seen := map[[3]int64]bool{}
	for _, r := range rows {
		k := [3]int64{r.Date.Unix(), r.TaskKey, r.EmployeeKey}
		require.False(t, seen[k])
		seen[k] = true
	}

	risks := []source.Risk{
		{ID: 1, ProjectID: 1, Probability: ptr(0.2), DetectedDate: ptr(day(1)), Status: ptr("Open")},
		{ID: 1, ProjectID: 1, Probability: ptr(0.6), DetectedDate: ptr(day(1)), Status: ptr("Open")},
	}
	riskRows, _ := BuildRisk(risks, testKeys())
	require.Len(t, riskRows, 1)
	require.InDelta(t, 0.4, *riskRows[0].Probability, 1e-9)
}
