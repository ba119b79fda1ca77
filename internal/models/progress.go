package models

// DepartmentProgress is the derived aggregation view of one department.
type DepartmentProgress struct {
	Department       Department                `json:"department"`
	Target           int                       `json:"target"`
	Validated        int                       `json:"validated"`
	Percentage       float64                   `json:"percentage"`
	EventsByCategory map[EventCategory][]Event `json:"events_by_category"`
}

// NewDepartmentProgress groups validated events by category keeping their given order.
// Percentage is validated/target*100 and may exceed 100.
func NewDepartmentProgress(dept Department, target int, validated []Event) DepartmentProgress {
	progress := DepartmentProgress{
		Department:       dept,
		Target:           target,
		Validated:        len(validated),
		EventsByCategory: make(map[EventCategory][]Event),
	}
	if target > 0 {
		progress.Percentage = float64(len(validated)) / float64(target) * 100
	}
	for _, event := range validated {
		progress.EventsByCategory[event.Category] = append(progress.EventsByCategory[event.Category], event)
	}
	return progress
}
