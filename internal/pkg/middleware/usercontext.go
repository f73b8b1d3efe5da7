package middleware

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/BarberFox/internal/pkg/usercontext"
)

// UserContextMiddleware sets up the user context for every request from the
// identity headers forwarded by the upstream auth layer.
func UserContextMiddleware(c *fiber.Ctx) error {
	userCtx := usercontext.FromHeaders(c.Get(usercontext.HeaderUserID), c.Get(usercontext.HeaderUserRole))
	c.Locals(usercontext.KeyUserContext, userCtx)
	return c.Next()
}
