package dto

import "github.com/noah-isme/iqc-intake-api/internal/models"

// TrackerSummary is the aggregated view keyed by department.
type TrackerSummary map[models.Department]models.DepartmentProgress

// RejectedEvents lists a submitter's rejected events.
type RejectedEvents struct {
	Username string         `json:"username"`
	Events   []models.Event `json:"events"`
}

// ReportArtifact is a rendered department report.
type ReportArtifact struct {
	Filename    string
	ContentType string
	Body        []byte
}
