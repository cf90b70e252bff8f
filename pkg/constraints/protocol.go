package constraints

const (
	RoleAdmin = "admin"
	RoleStaff = "staff"
)

// Machine error codes carried in the `error` field of error bodies.
const (
	CodeInvalidCredentials  = "invalid_credentials"
	CodeAccountLocked       = "account_locked"
	CodeInsufficientRole    = "insufficient_role"
	CodeInvalidRefreshToken = "invalid_refresh_token"
	CodeUnauthorized        = "unauthorized"
	CodeValidation          = "validation_failed"
	CodeWeakPassword        = "weak_password"
	CodeNotFound            = "not_found"
	CodeRateLimited         = "rate_limited"
	CodeInternal            = "internal_error"
)

const (
	OrderPending   = "pending"
	OrderRenting   = "renting"
	OrderReturned  = "returned"
	OrderCancelled = "cancelled"
)

const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Audit events recorded by the auth server.
const (
	AuditLoginSucceeded  = "login_succeeded"
	AuditLoginFailed     = "login_failed"
	AuditRefreshed       = "token_refreshed"
	AuditRefreshRejected = "refresh_rejected"
	AuditLogout          = "logout"
	AuditPasswordChanged = "password_changed"
)
