package v1

import "time"

// User is the profile snapshot returned by the auth endpoints. Clients cache it
// for display only; it is never authoritative.
type User struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email,omitempty"`
	Role        string `json:"role"`
}

type LoginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Secret     string `json:"secret" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

type LoginResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

type UpdateProfileRequest struct {
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
}

type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" binding:"required"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

// ErrorBody is the error envelope shared by every endpoint. Error is the
// machine code, Message the human-readable text and Errors optional
// field-level validation messages.
type ErrorBody struct {
	Message string            `json:"message"`
	Error   string            `json:"error"`
	Errors  map[string]string `json:"errors,omitempty"`
}

// AuditEntry is one authentication event as listed by GET /auth/audits.
type AuditEntry struct {
	ID         int64     `json:"id"`
	UserID     string    `json:"userId,omitempty"`
	Identifier string    `json:"identifier,omitempty"`
	Event      string    `json:"event"`
	Reason     string    `json:"reason,omitempty"`
	IP         string    `json:"ip"`
	TraceID    string    `json:"traceId"`
	CreatedAt  time.Time `json:"createdAt"`
}
