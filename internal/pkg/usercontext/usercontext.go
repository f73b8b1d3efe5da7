package usercontext

import (
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/BarberFox/app/models"
)

// UserContext represents the caller identity for a request
type UserContext struct {
	UserID     uint   `json:"user_id"`
	Role       string `json:"role"`
	IsLoggedIn bool   `json:"is_logged_in"`
	IsAdmin    bool   `json:"is_admin"`
}

// FromHeaders builds the context from the identity headers set by the
// upstream auth layer. A missing or malformed user id yields an anonymous context.
func FromHeaders(rawID, rawRole string) UserContext {
	id, err := strconv.ParseUint(strings.TrimSpace(rawID), 10, 64)
	if err != nil || id == 0 {
		return UserContext{}
	}
	role := strings.ToLower(strings.TrimSpace(rawRole))
	if role == "" {
		role = models.ROLE_OWNER
	}
	return UserContext{
		UserID:     uint(id),
		Role:       role,
		IsLoggedIn: true,
		IsAdmin:    role == models.ROLE_ADMIN,
	}
}

// GetUserContext retrieves the user context from fiber context
// Returns a default anonymous context if none is set
func GetUserContext(c *fiber.Ctx) UserContext {
	if ctx, ok := c.Locals(KeyUserContext).(UserContext); ok {
		return ctx
	}
	return UserContext{}
}

// IsLoggedIn checks if the current user is logged in
func IsLoggedIn(c *fiber.Ctx) bool {
	return GetUserContext(c).IsLoggedIn
}

// IsAdmin checks if the current user is an admin
func IsAdmin(c *fiber.Ctx) bool {
	return GetUserContext(c).IsAdmin
}

// GetUserID returns the current user's ID, or 0 if not logged in
func GetUserID(c *fiber.Ctx) uint {
	return GetUserContext(c).UserID
}
