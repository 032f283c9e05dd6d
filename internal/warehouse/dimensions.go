package warehouse

import "pmdss/internal/source"

type ProjectDim struct {
	ProjectID int64
	Name      string
	ClientID  int64
	StatusKey *int64
}

type TaskDim struct {
	TaskID       int64
	ProjectKey   int64
	Name         *string
	PlannedHours *float64
}

// ResolveProjects maps each project's textual status through the status keys.
// A project with an unknown or missing status is kept with a NULL reference.
func ResolveProjects(projects []source.Project, status KeyMap[string]) (rows []ProjectDim, unresolved int) {
	rows = make([]ProjectDim, 0, len(projects))
	for _, p := range projects {
		row := ProjectDim{ProjectID: p.ID, Name: p.Name, ClientID: p.ClientID}
		if p.Status != nil {
			if key, ok := status.Lookup(*p.Status); ok {
				row.StatusKey = &key
			}
		}
		if row.StatusKey == nil {
			unresolved++
		}
		rows = append(rows, row)
	}
	return rows, unresolved
}

// ResolveTasks drops tasks whose project has no dim_project row.
func ResolveTasks(tasks []source.Task, projects KeyMap[int64]) (rows []TaskDim, orphans int) {
	rows = make([]TaskDim, 0, len(tasks))
	for _, t := range tasks {
		key, ok := projects.Lookup(t.ProjectID)
		if !ok {
			orphans++
			continue
		}
		rows = append(rows, TaskDim{TaskID: t.ID, ProjectKey: key, Name: t.Name, PlannedHours: t.PlannedHours})
	}
	return rows, orphans
}
