package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Department is one of the fixed academic departments.
type Department string

const (
	DepartmentAIML    Department = "AIML"
	DepartmentCSECore Department = "CSE(Core)"
	DepartmentISE     Department = "ISE"
	DepartmentECE     Department = "ECE"
	DepartmentAERO    Department = "AERO"
)

// Departments lists every department in display order.
var Departments = []Department{
	DepartmentAIML,
	DepartmentCSECore,
	DepartmentISE,
	DepartmentECE,
	DepartmentAERO,
}

// Valid reports whether d belongs to the department enumeration.
func (d Department) Valid() bool {
	for _, known := range Departments {
		if d == known {
			return true
		}
	}
	return false
}

// ParseDepartment matches raw against the enumeration ignoring case and surrounding space.
func ParseDepartment(raw string) (Department, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, known := range Departments {
		if strings.EqualFold(trimmed, string(known)) {
			return known, true
		}
	}
	return "", false
}

// Scan maps a nullable column onto the empty department.
func (d *Department) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*d = ""
	case string:
		*d = Department(v)
	case []byte:
		*d = Department(v)
	default:
		return fmt.Errorf("scan department: unsupported type %T", src)
	}
	return nil
}

// Value stores the empty department as NULL.
func (d Department) Value() (driver.Value, error) {
	if d == "" {
		return nil, nil
	}
	return string(d), nil
}

// EventCategory is one of the fixed event types.
type EventCategory string

const (
	CategorySeminar          EventCategory = "Seminar"
	CategoryWorkshop         EventCategory = "Workshop"
	CategoryGuestLecture     EventCategory = "Guest Lecture"
	CategoryConference       EventCategory = "Conference"
	CategoryCompetition      EventCategory = "Competition"
	CategoryOrientation      EventCategory = "Orientation"
	CategoryResearchReport   EventCategory = "Research/Report"
	CategoryCertificateEvent EventCategory = "Certificate Event"
	CategoryGeneralEvent     EventCategory = "General Event"
)

// EventCategories lists every category.
var EventCategories = []EventCategory{
	CategorySeminar,
	CategoryWorkshop,
	CategoryGuestLecture,
	CategoryConference,
	CategoryCompetition,
	CategoryOrientation,
	CategoryResearchReport,
	CategoryCertificateEvent,
	CategoryGeneralEvent,
}

// Valid reports whether c belongs to the category enumeration.
func (c EventCategory) Valid() bool {
	for _, known := range EventCategories {
		if c == known {
			return true
		}
	}
	return false
}

// ParseEventCategory matches raw against the enumeration ignoring case and surrounding space.
func ParseEventCategory(raw string) (EventCategory, bool) {
	trimmed := strings.TrimSpace(raw)
	for _, known := range EventCategories {
		if strings.EqualFold(trimmed, string(known)) {
			return known, true
		}
	}
	return "", false
}

// DocumentType classifies an uploaded artifact.
type DocumentType string

const (
	DocumentTypeReport      DocumentType = "Report"
	DocumentTypeCertificate DocumentType = "Certificate"
)

// ParseDocumentType resolves raw, defaulting anything unrecognised to Report.
func ParseDocumentType(raw string) DocumentType {
	if strings.EqualFold(strings.TrimSpace(raw), string(DocumentTypeCertificate)) {
		return DocumentTypeCertificate
	}
	return DocumentTypeReport
}
