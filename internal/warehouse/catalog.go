package warehouse

type StatusCategory string

const (
	CategoryProject StatusCategory = "Project"
	CategoryRisk    StatusCategory = "Risk"
	CategoryDefect  StatusCategory = "Defect"
)

type Status struct {
	Code        string
	Description string
	Category    StatusCategory
}

// StatusCatalog is the fixed content of dim_status. Codes match the values the
// operational system writes, including the Spanish defect states.
var StatusCatalog = []Status{
	{Code: "Planned", Description: "Planned project", Category: CategoryProject},
	{Code: "Active", Description: "Active project", Category: CategoryProject},
	{Code: "Completed", Description: "Completed project", Category: CategoryProject},
	{Code: "On Hold", Description: "Project on hold", Category: CategoryProject},
	{Code: "Open", Description: "Open risk", Category: CategoryRisk},
	{Code: "Closed", Description: "Closed risk", Category: CategoryRisk},
	{Code: "Mitigated", Description: "Mitigated risk", Category: CategoryRisk},
	{Code: "Abierto", Description: "Open defect", Category: CategoryDefect},
	{Code: "Resuelto", Description: "Resolved defect", Category: CategoryDefect},
	{Code: "Cerrado", Description: "Closed defect", Category: CategoryDefect},
}
