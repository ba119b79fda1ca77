package models

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Identity is the resolved caller every workflow operation is evaluated against.
type Identity struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	Role       Role       `json:"role"`
	Department Department `json:"department,omitempty"`
}

// LoginRequest holds credentials for authenticating a user.
type LoginRequest struct {
	Username  string `json:"username" validate:"required,max=80"`
	Password  string `json:"password" validate:"required"`
	IP        string `json:"-"`
	UserAgent string `json:"-"`
}

// LoginResponse returns the issued tokens and user info.
type LoginResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	User         Identity  `json:"user"`
	IssuedAt     time.Time `json:"issued_at"`
}

// RefreshTokenRequest exchanges a refresh token for a new access token.
type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
	IP           string `json:"-"`
	UserAgent    string `json:"-"`
}

// RefreshTokenResponse returns the refreshed tokens.
type RefreshTokenResponse struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresIn    int64     `json:"expires_in"`
	IssuedAt     time.Time `json:"issued_at"`
}

// ChangePasswordRequest payload for updating password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,nefield=OldPassword"`
}

// JWTClaims represents the JWT payload for access tokens.
type JWTClaims struct {
	UserID     string     `json:"user_id"`
	Username   string     `json:"username"`
	Role       Role       `json:"role"`
	Department Department `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// Identity converts the verified claims into an Identity.
func (c *JWTClaims) Identity() Identity {
	return Identity{UserID: c.UserID, Username: c.Username, Role: c.Role, Department: c.Department}
}

// GetUserID exposes the subject for request logging.
func (c *JWTClaims) GetUserID() string {
	return c.UserID
}

// RefreshToken represents a persisted refresh token session.
type RefreshToken struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	Token     string     `db:"token"`
	ExpiresAt time.Time  `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
	Revoked   bool       `db:"revoked"`
	RevokedAt *time.Time `db:"revoked_at"`
	IPAddress string     `db:"ip_address"`
	UserAgent string     `db:"user_agent"`
}

// Usable reports whether the token can still be exchanged at now.
func (t *RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}
