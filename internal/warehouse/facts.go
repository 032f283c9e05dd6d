package warehouse

import "time"

// Table describes a dwh table for bulk copy.
type Table struct {
	Name    string
	Columns []string
}

var (
	FactTimelog          = Table{Name: "fact_timelog", Columns: []string{"date_key", "task_key", "employee_key", "hours_worked"}}
	FactBudget           = Table{Name: "fact_budget", Columns: []string{"date_key", "project_key", "budget_allocated", "cost_actual"}}
	FactDefectSummary    = Table{Name: "fact_defect_summary", Columns: []string{"date_key", "project_key", "defect_count_new", "defect_count_resolved"}}
	FactRisk             = Table{Name: "fact_risk", Columns: []string{"risk_id", "date_key", "project_key", "status_key", "probability", "impact_score"}}
	FactResource         = Table{Name: "fact_resource", Columns: []string{"resource_key", "project_key", "date_key", "resource_cost", "usage_hours"}}
	FactProgressSnapshot = Table{Name: "fact_progress_snapshot", Columns: []string{"date_key", "task_key", "percent_complete"}}
)

// FactTables lists the fact tables in write order.
var FactTables = []Table{FactTimelog, FactBudget, FactDefectSummary, FactRisk, FactResource, FactProgressSnapshot}

// Row is one fact row in its table's column order.
type Row interface {
	Values() []any
}

// AsRows widens a typed fact slice for WriteFacts.
func AsRows[T Row](facts []T) []Row {
	rows := make([]Row, len(facts))
	for i := range facts {
		rows[i] = facts[i]
	}
	return rows
}

type TimelogFact struct {
	Date        time.Time
	TaskKey     int64
	EmployeeKey int64
	HoursWorked float64
}

func (f TimelogFact) Values() []any {
	return []any{f.Date, f.TaskKey, f.EmployeeKey, f.HoursWorked}
}

type BudgetFact struct {
	Date            time.Time
	ProjectKey      int64
	BudgetAllocated float64
	CostActual      float64
}

func (f BudgetFact) Values() []any {
	return []any{f.Date, f.ProjectKey, f.BudgetAllocated, f.CostActual}
}

type DefectSummaryFact struct {
	Date       time.Time
	ProjectKey int64
	New        int
	Resolved   int
}

func (f DefectSummaryFact) Values() []any {
	return []any{f.Date, f.ProjectKey, f.New, f.Resolved}
}

// RiskFact measures are nil when every contributing source value was NULL.
type RiskFact struct {
	RiskID      int64
	Date        time.Time
	ProjectKey  int64
	StatusKey   int64
	Probability *float64
	ImpactScore *float64
}

func (f RiskFact) Values() []any {
	return []any{f.RiskID, f.Date, f.ProjectKey, f.StatusKey, f.Probability, f.ImpactScore}
}

type ResourceFact struct {
	ResourceKey  int64
	ProjectKey   int64
	Date         time.Time
	ResourceCost float64
	UsageHours   float64
}

func (f ResourceFact) Values() []any {
	return []any{f.ResourceKey, f.ProjectKey, f.Date, f.ResourceCost, f.UsageHours}
}

type ProgressSnapshotFact struct {
	Date            time.Time
	TaskKey         int64
	PercentComplete *int
}

func (f ProgressSnapshotFact) Values() []any {
	return []any{f.Date, f.TaskKey, f.PercentComplete}
}
