package warehouse

import (
	"testing"

	"github.com/stretchr/testify/require"

	"pmdss/internal/source"
)

func strPtr(s string) *string { return &s }

func TestKeyMapIsACopy(t *testing.T) {
	src := map[int64]int64{1: 10}
	keys := NewKeyMap(src)
	src[2] = 20

	require.Equal(t, 1, keys.Len())
	key, ok := keys.Lookup(1)
	require.True(t, ok)
	require.Equal(t, int64(10), key)
	_, ok = keys.Lookup(2)
	require.False(t, ok)
}

func TestStatusCatalogCodesAreUnique(t *testing.T) {
	require.Len(t, StatusCatalog, 10)
	seen := map[string]bool{}
	for _, s := range StatusCatalog {
		require.False(t, seen[s.Code], "duplicate status %q", s.Code)
		seen[s.Code] = true
	}
}

func TestResolveProjectsKeepsUnknownStatus(t *testing.T) {
	status := NewKeyMap(map[string]int64{"Active": 2})
	rows, unresolved := ResolveProjects([]source.Project{
		{ID: 1, Name: "Portal", ClientID: 1, Status: strPtr("Active")},
		{ID: 2, Name: "Billing", ClientID: 2, Status: strPtr("Unknown")},
		{ID: 3, Name: "Intranet", ClientID: 2},
	}, status)

	require.Len(t, rows, 3)
	require.Equal(t, 2, unresolved)
	require.NotNil(t, rows[0].StatusKey)
	require.Equal(t, int64(2), *rows[0].StatusKey)
	require.Nil(t, rows[1].StatusKey)
	require.Nil(t, rows[2].StatusKey)
}

func TestResolveTasksDropsOrphans(t *testing.T) {
	projects := NewKeyMap(map[int64]int64{1: 100})
	rows, orphans := ResolveTasks([]source.Task{
		{ID: 1, ProjectID: 1},
		{ID: 2, ProjectID: 99},
		{ID: 3, ProjectID: 1},
	}, projects)

	require.Equal(t, 1, orphans)
	require.Len(t, rows, 2)
	for _, r := range rows {
		require.Equal(t, int64(100), r.ProjectKey)
		require.NotEqual(t, int64(2), r.TaskID)
	}
}

func TestFactValuesMatchColumns(t *testing.T) {
	tests := []struct {
		table Table
		row   Row
	}{
		{FactTimelog, TimelogFact{}},
		{FactBudget, BudgetFact{}},
		{FactDefectSummary, DefectSummaryFact{}},
		{FactRisk, RiskFact{}},
		{FactResource, ResourceFact{}},
		{FactProgressSnapshot, ProgressSnapshotFact{}},
	}
	for _, tt := range tests {
		t.Run(tt.table.Name, func(t *testing.T) {
			require.Len(t, tt.row.Values(), len(tt.table.Columns))
		})
	}
	require.Len(t, FactTables, len(tests))
}
