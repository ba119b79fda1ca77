package models

import "time"

// EventStatus is the review lifecycle state.
type EventStatus string

const (
	EventStatusPending   EventStatus = "pending"
	EventStatusValidated EventStatus = "validated"
	EventStatusRejected  EventStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s EventStatus) Terminal() bool {
	return s == EventStatusValidated || s == EventStatusRejected
}

// Event is the reviewable record derived from a document.
type Event struct {
	ID                  string        `db:"id" json:"id"`
	DocumentID          string        `db:"document_id" json:"document_id"`
	Name                string        `db:"name" json:"name"`
	Date                NullDate      `db:"event_date" json:"date"`
	Category            EventCategory `db:"category" json:"category"`
	Department          Department    `db:"department" json:"department"`
	Venue               string        `db:"venue" json:"venue"`
	Organizer           string        `db:"organizer" json:"organizer"`
	Abstract            string        `db:"abstract" json:"abstract"`
	DocumentType        DocumentType  `db:"document_type" json:"type"`
	Status              EventStatus   `db:"status" json:"status"`
	ReviewerComment     *string       `db:"reviewer_comment" json:"comment,omitempty"`
	SubmittedBy         string        `db:"submitted_by" json:"submitted_by"`
	SubmittedByUsername string        `db:"submitted_by_username" json:"submitted_by_username,omitempty"`
	ReviewedBy          *string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt          *time.Time    `db:"reviewed_at" json:"reviewed_at,omitempty"`
	CreatedAt           time.Time     `db:"created_at" json:"created_at"`
	UpdatedAt           time.Time     `db:"updated_at" json:"updated_at"`
}

// EventFields are the reviewer supplied values for a validation.
type EventFields struct {
	Name       string
	Date       string
	Category   string
	Department string
	Venue      string
	Organizer  string
	Abstract   string
}

// EventFilter scopes event listings.
type EventFilter struct {
	Status      EventStatus
	Departments []Department
	SubmittedBy string
}

// Transition is the compare-and-set payload applied to a pending event.
type Transition struct {
	EventID    string
	To         EventStatus
	Fields     *Event
	Comment    *string
	ReviewerID string
	At         time.Time
}
