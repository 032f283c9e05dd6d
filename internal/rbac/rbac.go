package rbac

type Role string
type Action string

const (
	RoleViewer         Role = "viewer"
	RoleProjectManager Role = "project_manager"
	RoleAdmin          Role = "admin"
)

const (
	// ActionReadMetrics covers the EVM, scorecard and run-status views.
	ActionReadMetrics Action = "read_metrics"
	// ActionPredict is the defect prediction simulator, reserved for project
	// managers.
	ActionPredict Action = "predict"
)

func Can(role Role, action Action) bool {
	switch role {
	case RoleAdmin:
		return true
	case RoleProjectManager:
		return action == ActionReadMetrics || action == ActionPredict
	case RoleViewer:
		return action == ActionReadMetrics
	default:
		return false
	}
}

// Normalize maps unknown or empty roles to viewer. The identity service
// spells the manager role a few ways.
func Normalize(role string) Role {
	switch role {
	case string(RoleViewer), string(RoleProjectManager), string(RoleAdmin):
		return Role(role)
	case "Project Managers", "project-manager", "pm":
		return RoleProjectManager
	default:
		return RoleViewer
	}
}
