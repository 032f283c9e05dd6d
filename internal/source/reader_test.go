package source

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"pmdss/internal/logger"
	"pmdss/internal/pgtest"
)

type fakeQuerier struct {
	queries []string
	err     error
}

func (f *fakeQuerier) QueryContext(_ context.Context, query string, _ ...any) (*sql.Rows, error) {
	f.queries = append(f.queries, query)
	return nil, f.err
}

func TestExtractAbortsOnFirstFailure(t *testing.T) {
	boom := errors.New("relation does not exist")
	q := &fakeQuerier{err: boom}

	ds, err := NewReader(q, logger.Discard()).Extract(context.Background())
	require.Nil(t, ds)
	require.ErrorIs(t, err, boom)

	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	require.Equal(t, EntityClient, extractErr.Entity)
	require.Len(t, q.queries, 1)
	require.Contains(t, err.Error(), "extract client")
}

func TestDayTruncatesToUTCDate(t *testing.T) {
	loc := time.FixedZone("UTC-5", -5*3600)
	ts := time.Date(2024, 1, 10, 21, 30, 0, 0, loc)
	require.Equal(t, time.Date(2024, 1, 11, 0, 0, 0, 0, time.UTC), Day(ts))
	require.Equal(t, time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), Day(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)))
}

func TestDatasetCounts(t *testing.T) {
	ds := &Dataset{
		Clients: []Client{{ID: 1}, {ID: 2}},
		Tasks:   []Task{{ID: 1}},
	}
	counts := ds.Counts()
	require.Equal(t, 2, counts[EntityClient])
	require.Equal(t, 1, counts[EntityTask])
	require.Equal(t, 0, counts[EntityRisk])
	require.Len(t, counts, 9)
}

func TestExtractPostgres(t *testing.T) {
	db, _ := pgtest.New(t)
	pgtest.Exec(t, db, pgtest.SourceSchema)
	pgtest.Exec(t, db, pgtest.SampleData)

	ds, err := NewReader(db, logger.Discard()).Extract(context.Background())
	require.NoError(t, err)

	require.Len(t, ds.Clients, 2)
	require.Nil(t, ds.Clients[1].Sector)
	require.Len(t, ds.Employees, 2)
	require.NotNil(t, ds.Employees[0].CostPerHour)
	require.InDelta(t, 50.0, *ds.Employees[0].CostPerHour, 1e-9)
	require.Nil(t, ds.Employees[1].CostPerHour)
	require.Len(t, ds.Tasks, 2)
	require.Equal(t, 50, *ds.Tasks[0].PercentComplete)
	require.Len(t, ds.TimeEntries, 4)
	require.Len(t, ds.Defects, 3)
	require.Len(t, ds.Risks, 2)
	require.Len(t, ds.Resources, 1)
	require.Len(t, ds.ProjectBudgets, 2)
	require.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), Day(*ds.ProjectBudgets[0].StartDate))
}

func TestExtractPostgresMissingTableNamesEntity(t *testing.T) {
	db, _ := pgtest.New(t)
	pgtest.Exec(t, db, pgtest.SourceSchema)
	pgtest.Exec(t, db, `DROP TABLE project_mgmt.defect`)

	ds, err := NewReader(db, logger.Discard()).Extract(context.Background())
	require.Nil(t, ds)
	var extractErr *ExtractError
	require.ErrorAs(t, err, &extractErr)
	require.Equal(t, EntityDefect, extractErr.Entity)
	require.True(t, strings.Contains(err.Error(), "defect"))
}
