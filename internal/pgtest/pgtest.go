// Package pgtest starts throwaway Postgres containers for integration tests.
package pgtest

import (
	"context"
	"database/sql"
	"testing"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
)

// New starts a Postgres container and returns an open handle to it. The
// container is terminated when the test finishes. Tests are skipped with
// -short.
func New(t *testing.T) (*sql.DB, string) {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}

	ctx := context.Background()
	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pmdss"),
		postgres.WithUsername("pmdss"),
		postgres.WithPassword("pmdss"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, container)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("connection string: %v", err)
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open postgres: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		t.Fatalf("ping postgres: %v", err)
	}
	return db, dsn
}

// SourceSchema is the subset of the operational schema that the ETL reads.
const SourceSchema = `
CREATE SCHEMA IF NOT EXISTS project_mgmt;

CREATE TABLE project_mgmt.client (
    client_id     SERIAL PRIMARY KEY,
    name          VARCHAR(100) NOT NULL,
    sector        VARCHAR(50),
    contact_email VARCHAR(100)
);

CREATE TABLE project_mgmt.employee (
    employee_id              SERIAL PRIMARY KEY,
    name                     VARCHAR(100) NOT NULL,
    role                     VARCHAR(50),
    cost_per_hour            NUMERIC(10, 2),
    start_date               DATE,
    available_hours_per_week NUMERIC(5, 2) NOT NULL
);

CREATE TABLE project_mgmt.project (
    project_id SERIAL PRIMARY KEY,
    client_id  INTEGER NOT NULL,
    name       VARCHAR(100) NOT NULL,
    start_date DATE,
    end_date   DATE,
    budget     NUMERIC(12, 2),
    status     VARCHAR(20)
);

CREATE TABLE project_mgmt.task (
    task_id          SERIAL PRIMARY KEY,
    project_id       INTEGER NOT NULL,
    name             VARCHAR(100),
    percent_complete INTEGER,
    planned_hours    NUMERIC(7, 2)
);

CREATE TABLE project_mgmt.time_entry (
    entry_id        SERIAL PRIMARY KEY,
    employee_id     INTEGER NOT NULL,
    task_id         INTEGER NOT NULL,
    entry_timestamp TIMESTAMP NOT NULL,
    hours_worked    NUMERIC(5, 2)
);

CREATE TABLE project_mgmt.defect (
    defect_id     SERIAL PRIMARY KEY,
    project_id    INTEGER NOT NULL,
    detected_date DATE NOT NULL,
    resolved_date DATE,
    status        VARCHAR(20)
);

CREATE TABLE project_mgmt.risk (
    risk_id       SERIAL PRIMARY KEY,
    project_id    INTEGER NOT NULL,
    probability   NUMERIC(3, 2),
    impact_score  INTEGER,
    status        VARCHAR(20),
    detected_date DATE
);

CREATE TABLE project_mgmt.resource (
    resource_id SERIAL PRIMARY KEY,
    project_id  INTEGER NOT NULL,
    type        VARCHAR(50),
    cost        NUMERIC(10, 2),
    start_date  DATE,
    end_date    DATE
);
`

// SampleData seeds two projects and one orphan task (project 99 does not
// exist). Project 1 is the EVM example: budget 10000, one 100h task at 50%,
// 3000 of cost logged.
const SampleData = `
INSERT INTO project_mgmt.client (client_id, name, sector) VALUES
    (1, 'Acme', 'Retail'),
    (2, 'Globex', NULL);

INSERT INTO project_mgmt.employee (employee_id, name, role, cost_per_hour, available_hours_per_week) VALUES
    (1, 'Ana', 'Developer', 50.00, 40),
    (2, 'Luis', 'Analyst', NULL, 20);

INSERT INTO project_mgmt.project (project_id, client_id, name, start_date, budget, status) VALUES
    (1, 1, 'Portal', '2024-01-01', 10000.00, 'Active'),
    (2, 2, 'Billing', '2024-01-05', 5000.00, 'Unknown');

INSERT INTO project_mgmt.task (task_id, project_id, name, percent_complete, planned_hours) VALUES
    (1, 1, 'Build portal', 50, 100),
    (2, 99, 'Orphan', 10, 8);

INSERT INTO project_mgmt.time_entry (employee_id, task_id, entry_timestamp, hours_worked) VALUES
    (1, 1, '2024-01-10 09:00:00', 30),
    (1, 1, '2024-01-10 14:00:00', 30),
    (2, 1, '2024-01-11 10:00:00', 4),
    (1, 2, '2024-01-11 10:00:00', 2);

INSERT INTO project_mgmt.defect (project_id, detected_date, resolved_date, status) VALUES
    (1, '2024-01-10', NULL, 'Abierto'),
    (1, '2024-01-10', NULL, 'Abierto'),
    (1, '2024-01-10', '2024-01-12', 'Resuelto');

INSERT INTO project_mgmt.risk (project_id, probability, impact_score, status, detected_date) VALUES
    (1, 0.40, 6, 'Open', '2024-01-03'),
    (2, 0.10, 2, 'Closed', '2024-01-06');

INSERT INTO project_mgmt.resource (project_id, type, cost, start_date, end_date) VALUES
    (1, 'License', 1200.00, '2024-01-02', '2024-12-31');
`

// Exec runs a multi-statement script, failing the test on error.
func Exec(t *testing.T, db *sql.DB, script string) {
	t.Helper()
	if _, err := db.ExecContext(context.Background(), script); err != nil {
		t.Fatalf("exec script: %v", err)
	}
}
