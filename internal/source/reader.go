package source

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
)

// Querier is satisfied by *sql.DB, *sql.Conn and *sql.Tx.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ExtractError names the entity whose query failed.
type ExtractError struct {
	Entity string
	Err    error
}

func (e *ExtractError) Error() string {
	return fmt.Sprintf("extract %s: %v", e.Entity, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

const (
	clientQuery        = `SELECT client_id, name, sector FROM project_mgmt.client ORDER BY client_id`
	employeeQuery      = `SELECT employee_id, name, role, cost_per_hour::float8, available_hours_per_week::float8 FROM project_mgmt.employee ORDER BY employee_id`
	projectQuery       = `SELECT project_id, name, client_id, status FROM project_mgmt.project ORDER BY project_id`
	taskQuery          = `SELECT task_id, project_id, name, planned_hours::float8, percent_complete FROM project_mgmt.task ORDER BY task_id`
	timeEntryQuery     = `SELECT employee_id, task_id, entry_timestamp, hours_worked::float8 FROM project_mgmt.time_entry`
	defectQuery        = `SELECT project_id, detected_date, resolved_date, status FROM project_mgmt.defect`
	riskQuery          = `SELECT risk_id, project_id, probability::float8, impact_score, detected_date, status FROM project_mgmt.risk ORDER BY risk_id`
	resourceQuery      = `SELECT resource_id, project_id, type, cost::float8, start_date, end_date FROM project_mgmt.resource ORDER BY resource_id`
	projectBudgetQuery = `SELECT project_id, budget::float8, start_date FROM project_mgmt.project ORDER BY project_id`
)

type Reader struct {
	q   Querier
	log *slog.Logger
}

func NewReader(q Querier, log *slog.Logger) *Reader {
	return &Reader{q: q, log: log}
}

// Extract runs every entity query in a fixed order. The first failure aborts
// the extraction and no partial dataset is returned.
func (r *Reader) Extract(ctx context.Context) (*Dataset, error) {
	var (
		ds  Dataset
		err error
	)

	steps := []struct {
		entity string
		run    func() (int, error)
	}{
		{EntityClient, func() (int, error) {
			ds.Clients, err = queryAll(ctx, r.q, clientQuery, func(rows *sql.Rows, c *Client) error {
				return rows.Scan(&c.ID, &c.Name, &c.Sector)
			})
			return len(ds.Clients), err
		}},
		{EntityEmployee, func() (int, error) {
			ds.Employees, err = queryAll(ctx, r.q, employeeQuery, func(rows *sql.Rows, e *Employee) error {
				return rows.Scan(&e.ID, &e.Name, &e.Role, &e.CostPerHour, &e.AvailableHoursPerWeek)
			})
			return len(ds.Employees), err
		}},
		{EntityProject, func() (int, error) {
			ds.Projects, err = queryAll(ctx, r.q, projectQuery, func(rows *sql.Rows, p *Project) error {
				return rows.Scan(&p.ID, &p.Name, &p.ClientID, &p.Status)
			})
			return len(ds.Projects), err
		}},
		{EntityTask, func() (int, error) {
			ds.Tasks, err = queryAll(ctx, r.q, taskQuery, func(rows *sql.Rows, t *Task) error {
				return rows.Scan(&t.ID, &t.ProjectID, &t.Name, &t.PlannedHours, &t.PercentComplete)
			})
			return len(ds.Tasks), err
		}},
		{EntityTimeEntry, func() (int, error) {
			ds.TimeEntries, err = queryAll(ctx, r.q, timeEntryQuery, func(rows *sql.Rows, te *TimeEntry) error {
				return rows.Scan(&te.EmployeeID, &te.TaskID, &te.EntryTimestamp, &te.HoursWorked)
			})
			return len(ds.TimeEntries), err
		}},
		{EntityDefect, func() (int, error) {
			ds.Defects, err = queryAll(ctx, r.q, defectQuery, func(rows *sql.Rows, d *Defect) error {
				return rows.Scan(&d.ProjectID, &d.DetectedDate, &d.ResolvedDate, &d.Status)
			})
			return len(ds.Defects), err
		}},
		{EntityRisk, func() (int, error) {
			ds.Risks, err = queryAll(ctx, r.q, riskQuery, func(rows *sql.Rows, rk *Risk) error {
				return rows.Scan(&rk.ID, &rk.ProjectID, &rk.Probability, &rk.ImpactScore, &rk.DetectedDate, &rk.Status)
			})
			return len(ds.Risks), err
		}},
		{EntityResource, func() (int, error) {
			ds.Resources, err = queryAll(ctx, r.q, resourceQuery, func(rows *sql.Rows, res *Resource) error {
				return rows.Scan(&res.ID, &res.ProjectID, &res.Type, &res.Cost, &res.StartDate, &res.EndDate)
			})
			return len(ds.Resources), err
		}},
		{EntityProjectBudget, func() (int, error) {
			ds.ProjectBudgets, err = queryAll(ctx, r.q, projectBudgetQuery, func(rows *sql.Rows, b *ProjectBudget) error {
				return rows.Scan(&b.ProjectID, &b.Budget, &b.StartDate)
			})
			return len(ds.ProjectBudgets), err
		}},
	}

	for _, step := range steps {
		n, err := step.run()
		if err != nil {
			r.log.Error("extraction failed", "entity", step.entity, "error", err)
			return nil, &ExtractError{Entity: step.entity, Err: err}
		}
		r.log.Info("extracted", "entity", step.entity, "rows", n)
	}
	return &ds, nil
}

func queryAll[T any](ctx context.Context, q Querier, query string, scan func(*sql.Rows, *T) error) ([]T, error) {
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		var item T
		if err := scan(rows, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
