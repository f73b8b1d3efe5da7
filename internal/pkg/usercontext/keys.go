package usercontext

// Shared Locals keys and identity headers used across controllers and middlewares
const (
	KeyUserContext = "USER_CONTEXT"

	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"
)
