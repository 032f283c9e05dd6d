// Package source reads the operational project_mgmt schema into typed records.
package source

import "time"

// Entity names, in extraction order. They key the row counts in run reports.
const (
	EntityClient        = "client"
	EntityEmployee      = "employee"
	EntityProject       = "project"
	EntityTask          = "task"
	EntityTimeEntry     = "time_entry"
	EntityDefect        = "defect"
	EntityRisk          = "risk"
	EntityResource      = "resource"
	EntityProjectBudget = "project_budget"
)

type Client struct {
	ID     int64
	Name   string
	Sector *string
}

type Employee struct {
	ID                    int64
	Name                  string
	Role                  *string
	CostPerHour           *float64
	AvailableHoursPerWeek float64
}

type Project struct {
	ID       int64
	Name     string
	ClientID int64
	Status   *string
}

type Task struct {
	ID              int64
	ProjectID       int64
	Name            *string
	PlannedHours    *float64
	PercentComplete *int
}

type TimeEntry struct {
	EmployeeID     int64
	TaskID         int64
	EntryTimestamp time.Time
	HoursWorked    *float64
}

type Defect struct {
	ProjectID    int64
	DetectedDate time.Time
	ResolvedDate *time.Time
	Status       *string
}

type Risk struct {
	ID           int64
	ProjectID    int64
	Probability  *float64
	ImpactScore  *int
	DetectedDate *time.Time
	Status       *string
}

type Resource struct {
	ID        int64
	ProjectID int64
	Type      *string
	Cost      *float64
	StartDate *time.Time
	EndDate   *time.Time
}

// ProjectBudget is the second projection over project: the one-shot budget
// recorded on the project's start date.
type ProjectBudget struct {
	ProjectID int64
	Budget    *float64
	StartDate *time.Time
}

// Dataset holds one full extraction. It is only ever returned complete.
type Dataset struct {
	Clients        []Client
	Employees      []Employee
	Projects       []Project
	Tasks          []Task
	TimeEntries    []TimeEntry
	Defects        []Defect
	Risks          []Risk
	Resources      []Resource
	ProjectBudgets []ProjectBudget
}

func (d *Dataset) Counts() map[string]int {
	return map[string]int{
		EntityClient:        len(d.Clients),
		EntityEmployee:      len(d.Employees),
		EntityProject:       len(d.Projects),
		EntityTask:          len(d.Tasks),
		EntityTimeEntry:     len(d.TimeEntries),
		EntityDefect:        len(d.Defects),
		EntityRisk:          len(d.Risks),
		EntityResource:      len(d.Resources),
		EntityProjectBudget: len(d.ProjectBudgets),
	}
}

// Day truncates t to its calendar date in UTC. Warehouse date keys are always
// produced through Day so that values from DATE and TIMESTAMP columns compare
// equal.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
