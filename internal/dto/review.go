package dto

import "github.com/noah-isme/iqc-intake-api/internal/models"

// ValidateEventRequest carries the reviewer corrected fields for POST /events/:id/validate.
type ValidateEventRequest struct {
	Name       string `json:"name"`
	Date       string `json:"date"`
	Category   string `json:"category"`
	Department string `json:"department"`
	Venue      string `json:"venue"`
	Organizer  string `json:"organizer"`
	Abstract   string `json:"abstract"`
}

// Fields converts the payload into reviewer supplied event fields.
func (r ValidateEventRequest) Fields() models.EventFields {
	return models.EventFields{
		Name:       r.Name,
		Date:       r.Date,
		Category:   r.Category,
		Department: r.Department,
		Venue:      r.Venue,
		Organizer:  r.Organizer,
		Abstract:   r.Abstract,
	}
}

// RejectEventRequest carries the optional reviewer comment.
type RejectEventRequest struct {
	Comment string `json:"comment" binding:"max=2000"`
}
