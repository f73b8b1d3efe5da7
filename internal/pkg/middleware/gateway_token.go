package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/gofiber/fiber/v2"
)

const HeaderGatewayToken = "X-Gateway-Token"

// GatewayTokenMiddleware only lets requests through that carry the shared
// secret of the upstream auth layer, so identity headers cannot be forged by
// clients talking to the service directly. An empty token rejects every
// request.
func GatewayTokenMiddleware(token string) fiber.Handler {
	expected := []byte(token)
	return func(c *fiber.Ctx) error {
		if token == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Gateway token is not configured"})
		}
		got := extractGatewayToken(c)
		if got == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing gateway token"})
		}
		if subtle.ConstantTimeCompare([]byte(got), expected) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Invalid gateway token"})
		}
		return c.Next()
	}
}

func extractGatewayToken(c *fiber.Ctx) string {
	token := strings.TrimSpace(c.Get(HeaderGatewayToken))
	if token != "" {
		return token
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}
