package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"pmdss/internal/source"
)

const (
	truncateFacts = `TRUNCATE dwh.fact_timelog, dwh.fact_budget, dwh.fact_defect_summary, dwh.fact_risk, dwh.fact_resource, dwh.fact_progress_snapshot RESTART IDENTITY CASCADE`
	truncateDims  = `TRUNCATE dwh.dim_task, dwh.dim_project, dwh.dim_employee, dwh.dim_client, dwh.dim_resource, dwh.dim_status RESTART IDENTITY CASCADE`
)

// DimensionCounts reports what one dimension phase wrote.
type DimensionCounts struct {
	Rows             map[string]int64
	OrphanTasks      int
	UnresolvedStatus int
}

type Loader struct {
	db  *sql.DB
	log *slog.Logger
}

func NewLoader(db *sql.DB, log *slog.Logger) *Loader {
	return &Loader{db: db, log: log}
}

// Truncate empties facts first, then dimensions, and restarts every surrogate
// key sequence.
func (l *Loader) Truncate(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, truncateFacts); err != nil {
		return &LoadError{Table: "facts", Err: fmt.Errorf("truncate: %w", err)}
	}
	if _, err := l.db.ExecContext(ctx, truncateDims); err != nil {
		return &LoadError{Table: "dimensions", Err: fmt.Errorf("truncate: %w", err)}
	}
	return nil
}

// LoadDimensions truncates the warehouse and reloads every dimension from ds.
// Each step depends on keys read back by the previous one.
func (l *Loader) LoadDimensions(ctx context.Context, ds *source.Dataset) (Keys, DimensionCounts, error) {
	var keys Keys
	counts := DimensionCounts{Rows: map[string]int64{}}

	if err := l.Truncate(ctx); err != nil {
		return keys, counts, err
	}

	statusRows := make([][]any, 0, len(StatusCatalog))
	for _, s := range StatusCatalog {
		statusRows = append(statusRows, []any{s.Code, s.Description, string(s.Category)})
	}
	if err := l.copyDim(ctx, counts, "dim_status", []string{"status_id", "description", "category"}, statusRows); err != nil {
		return keys, counts, err
	}
	status, err := readKeys[string](ctx, l.db, "dim_status", "status_id", "status_key")
	if err != nil {
		return keys, counts, err
	}
	keys.Status = status

	clientRows := make([][]any, 0, len(ds.Clients))
	for _, c := range ds.Clients {
		clientRows = append(clientRows, []any{c.ID, c.Name, c.Sector, nil})
	}
	if err := l.copyDim(ctx, counts, "dim_client", []string{"client_id", "name", "sector", "priority_level"}, clientRows); err != nil {
		return keys, counts, err
	}

	employeeRows := make([][]any, 0, len(ds.Employees))
	for _, e := range ds.Employees {
		employeeRows = append(employeeRows, []any{e.ID, e.Name, e.Role, e.AvailableHoursPerWeek})
	}
	if err := l.copyDim(ctx, counts, "dim_employee", []string{"employee_id", "name", "role", "available_hours_per_week"}, employeeRows); err != nil {
		return keys, counts, err
	}

	resourceRows := make([][]any, 0, len(ds.Resources))
	for _, r := range ds.Resources {
		resourceRows = append(resourceRows, []any{r.ID, r.Type, r.Cost, r.StartDate, r.EndDate})
	}
	if err := l.copyDim(ctx, counts, "dim_resource", []string{"resource_id", "type", "cost", "start_date", "end_date"}, resourceRows); err != nil {
		return keys, counts, err
	}

	projects, unresolved := ResolveProjects(ds.Projects, keys.Status)
	counts.UnresolvedStatus = unresolved
	if unresolved > 0 {
		l.log.Info("projects loaded without status", "rows", unresolved)
	}
	projectRows := make([][]any, 0, len(projects))
	for _, p := range projects {
		projectRows = append(projectRows, []any{p.ProjectID, p.Name, p.ClientID, p.StatusKey})
	}
	if err := l.copyDim(ctx, counts, "dim_project", []string{"project_id", "name", "client_id", "status_key"}, projectRows); err != nil {
		return keys, counts, err
	}

	if keys.Project, err = readKeys[int64](ctx, l.db, "dim_project", "project_id", "project_key"); err != nil {
		return keys, counts, err
	}
	if keys.Employee, err = readKeys[int64](ctx, l.db, "dim_employee", "employee_id", "employee_key"); err != nil {
		return keys, counts, err
	}
	if keys.Resource, err = readKeys[int64](ctx, l.db, "dim_resource", "resource_id", "resource_key"); err != nil {
		return keys, counts, err
	}

	tasks, orphans := ResolveTasks(ds.Tasks, keys.Project)
	counts.OrphanTasks = orphans
	if orphans > 0 {
		l.log.Info("dropped orphan tasks", "rows", orphans)
	}
	taskRows := make([][]any, 0, len(tasks))
	for _, t := range tasks {
		taskRows = append(taskRows, []any{t.TaskID, t.ProjectKey, t.Name, t.PlannedHours})
	}
	if err := l.copyDim(ctx, counts, "dim_task", []string{"task_id", "project_key", "name", "planned_hours"}, taskRows); err != nil {
		return keys, counts, err
	}
	if keys.Task, err = readKeys[int64](ctx, l.db, "dim_task", "task_id", "task_key"); err != nil {
		return keys, counts, err
	}

	return keys, counts, nil
}

// WriteFacts bulk-copies one fact batch. Callers skip empty batches.
func (l *Loader) WriteFacts(ctx context.Context, table Table, rows []Row) (int64, error) {
	values := make([][]any, len(rows))
	for i, r := range rows {
		values[i] = r.Values()
	}
	n, err := copyRows(ctx, l.db, table.Name, table.Columns, values)
	if err != nil {
		return 0, &LoadError{Table: table.Name, Err: err}
	}
	l.log.Info("fact written", "table", table.Name, "rows", n)
	return n, nil
}

func (l *Loader) copyDim(ctx context.Context, counts DimensionCounts, table string, columns []string, rows [][]any) error {
	n, err := copyRows(ctx, l.db, table, columns, rows)
	if err != nil {
		return &LoadError{Table: table, Err: err}
	}
	counts.Rows[table] = n
	l.log.Info("dimension loaded", "table", table, "rows", n)
	return nil
}

// copyRows streams rows into dwh.<table> with COPY on a single pooled
// connection. COPY is one statement, so a failure leaves the table untouched.
func copyRows(ctx context.Context, db *sql.DB, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	conn, err := db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Close()

	var n int64
	err = conn.Raw(func(driverConn any) error {
		c, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected driver connection %T", driverConn)
		}
		var err error
		n, err = c.Conn().CopyFrom(ctx, pgx.Identifier{"dwh", table}, columns, pgx.CopyFromRows(rows))
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("copy: %w", err)
	}
	return n, nil
}

func readKeys[K comparable](ctx context.Context, db *sql.DB, table, idColumn, keyColumn string) (KeyMap[K], error) {
	query := fmt.Sprintf(`SELECT %s, %s FROM dwh.%s`, idColumn, keyColumn, table)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return KeyMap[K]{}, &LoadError{Table: table, Err: fmt.Errorf("read keys: %w", err)}
	}
	defer rows.Close()

	m := map[K]int64{}
	for rows.Next() {
		var (
			id  K
			key int64
		)
		if err := rows.Scan(&id, &key); err != nil {
			return KeyMap[K]{}, &LoadError{Table: table, Err: fmt.Errorf("scan keys: %w", err)}
		}
		m[id] = key
	}
	if err := rows.Err(); err != nil {
		return KeyMap[K]{}, &LoadError{Table: table, Err: fmt.Errorf("read keys: %w", err)}
	}
	return NewKeyMap(m), nil
}
