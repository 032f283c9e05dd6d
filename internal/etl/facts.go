package etl

import (
	"cmp"
	"slices"
	"time"

	"pmdss/internal/source"
	"pmdss/internal/warehouse"
)

// Drop reasons recorded when a source row cannot be resolved to the fact grain.
const (
	DropUnknownTask     = "unknown_task"
	DropUnknownEmployee = "unknown_employee"
	DropUnknownProject  = "unknown_project"
	DropUnknownStatus   = "unknown_status"
	DropUnknownResource = "unknown_resource"
	DropMissingDate     = "missing_date"
	DropMissingSource   = "missing_source_row"
)

// DropStats counts discarded source rows by reason.
type DropStats map[string]int

func (d DropStats) add(reason string) {
	d[reason]++
}

func (d DropStats) Total() int {
	n := 0
	for _, v := range d {
		n += v
	}
	return n
}

func deref[T any](p *T) T {
	var zero T
	if p == nil {
		return zero
	}
	return *p
}

// BuildTimelog sums hours per (day, task, employee). Unresolved rows are
// removed before summing.
func BuildTimelog(entries []source.TimeEntry, keys warehouse.Keys) ([]warehouse.TimelogFact, DropStats) {
	type grain struct {
		date     time.Time
		task     int64
		employee int64
	}
	drops := DropStats{}
	sums := map[grain]float64{}
	for _, e := range entries {
		task, ok := keys.Task.Lookup(e.TaskID)
		if !ok {
			drops.add(DropUnknownTask)
			continue
		}
		employee, ok := keys.Employee.Lookup(e.EmployeeID)
		if !ok {
			drops.add(DropUnknownEmployee)
			continue
		}
		sums[grain{source.Day(e.EntryTimestamp), task, employee}] += deref(e.HoursWorked)
	}

	out := make([]warehouse.TimelogFact, 0, len(sums))
	for g, hours := range sums {
		out = append(out, warehouse.TimelogFact{Date: g.date, TaskKey: g.task, EmployeeKey: g.employee, HoursWorked: hours})
	}
	slices.SortFunc(out, func(a, b warehouse.TimelogFact) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.TaskKey, b.TaskKey), cmp.Compare(a.EmployeeKey, b.EmployeeKey))
	})
	return out, drops
}

// BuildBudget unions daily cost with the one-shot budget recorded on each
// project's start date, then folds per (day, project): max of budget, sum of
// cost. Cost is joined to the source task and employee rows by natural id.
func BuildBudget(ds *source.Dataset, keys warehouse.Keys) ([]warehouse.BudgetFact, DropStats) {
	type grain struct {
		date    time.Time
		project int64
	}
	type measures struct {
		budget float64
		cost   float64
	}

	projectOfTask := make(map[int64]int64, len(ds.Tasks))
	for _, t := range ds.Tasks {
		projectOfTask[t.ID] = t.ProjectID
	}
	rateOf := make(map[int64]float64, len(ds.Employees))
	for _, e := range ds.Employees {
		rateOf[e.ID] = deref(e.CostPerHour)
	}

	drops := DropStats{}
	folded := map[grain]*measures{}
	at := func(g grain) *measures {
		m := folded[g]
		if m == nil {
			m = &measures{}
			folded[g] = m
		}
		return m
	}

	for _, e := range ds.TimeEntries {
		projectID, ok := projectOfTask[e.TaskID]
		if !ok {
			drops.add(DropMissingSource)
			continue
		}
		rate, ok := rateOf[e.EmployeeID]
		if !ok {
			drops.add(DropMissingSource)
			continue
		}
		project, ok := keys.Project.Lookup(projectID)
		if !ok {
			drops.add(DropUnknownProject)
			continue
		}
		at(grain{source.Day(e.EntryTimestamp), project}).cost += deref(e.HoursWorked) * rate
	}

	for _, b := range ds.ProjectBudgets {
		if b.StartDate == nil {
			drops.add(DropMissingDate)
			continue
		}
		project, ok := keys.Project.Lookup(b.ProjectID)
		if !ok {
			drops.add(DropUnknownProject)
			continue
		}
		m := at(grain{source.Day(*b.StartDate), project})
		m.budget = max(m.budget, deref(b.Budget))
	}

	out := make([]warehouse.BudgetFact, 0, len(folded))
	for g, m := range folded {
		out = append(out, warehouse.BudgetFact{Date: g.date, ProjectKey: g.project, BudgetAllocated: m.budget, CostActual: m.cost})
	}
	slices.SortFunc(out, func(a, b warehouse.BudgetFact) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ProjectKey, b.ProjectKey))
	})
	return out, drops
}

// BuildDefectSummary counts detections and resolutions per (day, project)
// and outer-joins the two counts. Days with neither event produce no row.
// Defects of unknown projects are dropped one by one.
func BuildDefectSummary(defects []source.Defect, keys warehouse.Keys) ([]warehouse.DefectSummaryFact, DropStats) {
	type grain struct {
		date    time.Time
		project int64
	}
	type counts struct{ detected, resolved int }

	drops := DropStats{}
	byGrain := map[grain]*counts{}
	at := func(g grain) *counts {
		c := byGrain[g]
		if c == nil {
			c = &counts{}
			byGrain[g] = c
		}
		return c
	}
	for _, d := range defects {
		project, ok := keys.Project.Lookup(d.ProjectID)
		if !ok {
			drops.add(DropUnknownProject)
			continue
		}
		at(grain{source.Day(d.DetectedDate), project}).detected++
		if d.ResolvedDate != nil {
			at(grain{source.Day(*d.ResolvedDate), project}).resolved++
		}
	}

	out := make([]warehouse.DefectSummaryFact, 0, len(byGrain))
	for g, c := range byGrain {
		out = append(out, warehouse.DefectSummaryFact{Date: g.date, ProjectKey: g.project, New: c.detected, Resolved: c.resolved})
	}
	slices.SortFunc(out, func(a, b warehouse.DefectSummaryFact) int {
		return cmp.Or(a.Date.Compare(b.Date), cmp.Compare(a.ProjectKey, b.ProjectKey))
	})
	return out, drops
}

// BuildRisk resolves project and status and averages the measures per
// (risk, day, project, status). NULL measures are left out of the mean.
func BuildRisk(risks []source.Risk, keys warehouse.Keys) ([]warehouse.RiskFact, DropStats) {
	type grain struct {
		risk    int64
		date    time.Time
		project int64
		status  int64
	}
	type mean struct {
		probSum, impactSum float64
		probN, impactN     int
	}

	drops := DropStats{}
	groups := map[grain]*mean{}
	for _, r := range risks {
		project, ok := keys.Project.Lookup(r.ProjectID)
		if !ok {
			drops.add(DropUnknownProject)
			continue
		}
		if r.Status == nil {
			drops.add(DropUnknownStatus)
			continue
		}
		status, ok := keys.Status.Lookup(*r.Status)
		if !ok {
			drops.add(DropUnknownStatus)
			continue
		}
		if r.DetectedDate == nil {
			drops.add(DropMissingDate)
			continue
		}
		g := grain{r.ID, source.Day(*r.DetectedDate), project, status}
		m := groups[g]
		if m == nil {
			m = &mean{}
			groups[g] = m
		}
		if r.Probability != nil {
			m.probSum += *r.Probability
			m.probN++
		}
		if r.ImpactScore != nil {
			m.impactSum += float64(*r.ImpactScore)
			m.impactN++
		}
	}

	out := make([]warehouse.RiskFact, 0, len(groups))
	for g, m := range groups {
		f := warehouse.RiskFact{RiskID: g.risk, Date: g.date, ProjectKey: g.project, StatusKey: g.status}
		if m.probN > 0 {
			v := m.probSum / float64(m.probN)
			f.Probability = &v
		}
		if m.impactN > 0 {
			v := m.impactSum / float64(m.impactN)
			f.ImpactScore = &v
		}
		out = append(out, f)
	}
	slices.SortFunc(out, func(a, b warehouse.RiskFact) int {
		return cmp.Or(cmp.Compare(a.RiskID, b.RiskID), a.Date.Compare(b.Date),
			cmp.Compare(a.ProjectKey, b.ProjectKey), cmp.Compare(a.StatusKey, b.StatusKey))
	})
	return out, drops
}

// BuildResource sums resource cost per (resource, project, start day). Usage
// hours have no source yet and are always 0.
func BuildResource(resources []source.Resource, keys warehouse.Keys) ([]warehouse.ResourceFact, DropStats) {
	type grain struct {
		resource int64
		project  int64
		date     time.Time
	}

	drops := DropStats{}
	sums := map[grain]float64{}
	for _, r := range resources {
		project, ok := keys.Project.Lookup(r.ProjectID)
		if !ok {
			drops.add(DropUnknownProject)
			continue
		}
		resource, ok := keys.Resource.Lookup(r.ID)
		if !ok {
			drops.add(DropUnknownResource)
			continue
		}
		if r.StartDate == nil {
			drops.add(DropMissingDate)
			continue
		}
		sums[grain{resource, project, source.Day(*r.StartDate)}] += deref(r.Cost)
	}

	out := make([]warehouse.ResourceFact, 0, len(sums))
	for g, cost := range sums {
		out = append(out, warehouse.ResourceFact{ResourceKey: g.resource, ProjectKey: g.project, Date: g.date, ResourceCost: cost})
	}
	slices.SortFunc(out, func(a, b warehouse.ResourceFact) int {
		return cmp.Or(cmp.Compare(a.ResourceKey, b.ResourceKey), cmp.Compare(a.ProjectKey, b.ProjectKey), a.Date.Compare(b.Date))
	})
	return out, drops
}

// BuildProgressSnapshot copies each resolvable task's percent complete into a
// batch dated today.
func BuildProgressSnapshot(tasks []source.Task, keys warehouse.Keys, today time.Time) ([]warehouse.ProgressSnapshotFact, DropStats) {
	day := source.Day(today)
	drops := DropStats{}
	out := make([]warehouse.ProgressSnapshotFact, 0, len(tasks))
	for _, t := range tasks {
		task, ok := keys.Task.Lookup(t.ID)
		if !ok {
			drops.add(DropUnknownTask)
			continue
		}
		out = append(out, warehouse.ProgressSnapshotFact{Date: day, TaskKey: task, PercentComplete: t.PercentComplete})
	}
	slices.SortFunc(out, func(a, b warehouse.ProgressSnapshotFact) int {
		return cmp.Compare(a.TaskKey, b.TaskKey)
	})
	return out, drops
}
