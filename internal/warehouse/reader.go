package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"pmdss/internal/evm"
)

// Reader answers the metric queries. It satisfies evm.Warehouse and
// evm.ScorecardSource.
type Reader struct {
	db *sql.DB
}

func NewReader(db *sql.DB) *Reader {
	return &Reader{db: db}
}

var (
	_ evm.Warehouse       = (*Reader)(nil)
	_ evm.ScorecardSource = (*Reader)(nil)
)

func (r *Reader) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Reader) ProjectBudgets(ctx context.Context) ([]evm.ProjectBudget, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT p.project_key, p.project_id, p.name,
		       COALESCE(MAX(b.budget_allocated), 0)::float8,
		       COALESCE(SUM(b.cost_actual), 0)::float8
		FROM dwh.fact_budget b
		JOIN dwh.dim_project p ON p.project_key = b.project_key
		GROUP BY p.project_key, p.project_id, p.name
		ORDER BY p.name, p.project_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evm.ProjectBudget
	for rows.Next() {
		var b evm.ProjectBudget
		if err := rows.Scan(&b.Key, &b.ID, &b.Name, &b.BAC, &b.AC); err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, rows.Err()
}

func (r *Reader) Tasks(ctx context.Context) ([]evm.Task, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_key, project_key, COALESCE(planned_hours, 0)::float8
		FROM dwh.dim_task
		ORDER BY task_key
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []evm.Task
	for rows.Next() {
		var t evm.Task
		if err := rows.Scan(&t.Key, &t.ProjectKey, &t.PlannedHours); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (r *Reader) LatestSnapshotDate(ctx context.Context) (time.Time, bool, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx, `SELECT MAX(date_key) FROM dwh.fact_progress_snapshot`).Scan(&latest)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !latest.Valid) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return latest.Time.UTC(), true, nil
}

func (r *Reader) SnapshotsAt(ctx context.Context, date time.Time) (map[int64]int, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT task_key, percent_complete
		FROM dwh.fact_progress_snapshot
		WHERE date_key = $1 AND percent_complete IS NOT NULL
	`, date.Format(time.DateOnly))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[int64]int{}
	for rows.Next() {
		var (
			key int64
			pct int
		)
		if err := rows.Scan(&key, &pct); err != nil {
			return nil, err
		}
		out[key] = pct
	}
	return out, rows.Err()
}

func (r *Reader) RiskImpact(ctx context.Context) (float64, int, error) {
	var (
		avg   float64
		count int
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(AVG(impact_score), 0)::float8, COUNT(risk_id)
		FROM dwh.fact_risk
	`).Scan(&avg, &count)
	return avg, count, err
}

func (r *Reader) DefectTotals(ctx context.Context) (int, int, error) {
	var detected, resolved int
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(defect_count_new), 0), COALESCE(SUM(defect_count_resolved), 0)
		FROM dwh.fact_defect_summary
	`).Scan(&detected, &resolved)
	return detected, resolved, err
}

func (r *Reader) HoursLoggedSince(ctx context.Context, since time.Time) (float64, error) {
	var hours float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(hours_worked), 0)::float8
		FROM dwh.fact_timelog
		WHERE date_key >= $1
	`, since.Format(time.DateOnly)).Scan(&hours)
	return hours, err
}

func (r *Reader) WeeklyCapacity(ctx context.Context) (float64, error) {
	var hours float64
	err := r.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(available_hours_per_week), 0)::float8
		FROM dwh.dim_employee
	`).Scan(&hours)
	return hours, err
}
