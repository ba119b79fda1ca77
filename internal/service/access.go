package service

import "github.com/noah-isme/iqc-intake-api/internal/models"

// Capability checks shared by every workflow operation.

// CanReview reports whether identity may validate or reject events of dept.
func CanReview(identity models.Identity, dept models.Department) bool {
	switch identity.Role {
	case models.RoleIQC:
		return true
	case models.RoleTeacher:
		return identity.Department != "" && identity.Department == dept
	}
	return false
}

// CanViewDepartment reports whether identity may read the aggregated view of dept.
func CanViewDepartment(identity models.Identity, dept models.Department) bool {
	if identity.Role == models.RoleIQC {
		return true
	}
	return identity.Role.Valid() && identity.Department != "" && identity.Department == dept
}

// CanViewDocument reports whether identity may open doc.
func CanViewDocument(identity models.Identity, doc *models.Document) bool {
	if doc == nil {
		return false
	}
	switch identity.Role {
	case models.RoleIQC:
		return true
	case models.RoleTeacher:
		return doc.OwnerID == identity.UserID || (identity.Department != "" && doc.Department == identity.Department)
	case models.RoleStudent:
		return doc.OwnerID == identity.UserID
	}
	return false
}

// CanViewSubmitter reports whether identity may list the submissions of user.
func CanViewSubmitter(identity models.Identity, user *models.User) bool {
	if user == nil {
		return false
	}
	if identity.UserID == user.ID {
		return true
	}
	switch identity.Role {
	case models.RoleIQC:
		return true
	case models.RoleTeacher:
		return identity.Department != "" && identity.Department == user.Department
	}
	return false
}

// CanUpload reports whether identity may submit documents.
func CanUpload(identity models.Identity) bool {
	return (identity.Role == models.RoleStudent || identity.Role == models.RoleTeacher) && identity.Department != ""
}

// reviewScope returns the departments identity reviews; nil means all of them.
func reviewScope(identity models.Identity) ([]models.Department, bool) {
	switch identity.Role {
	case models.RoleIQC:
		return nil, true
	case models.RoleTeacher:
		if identity.Department == "" {
			return nil, false
		}
		return []models.Department{identity.Department}, true
	}
	return nil, false
}
