package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"github.com/ManuelReschke/BarberFox/internal/pkg/middleware"
)

const defaultLimiterMax = 120

type ApiRouter struct {
	cfg Config
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	max := h.cfg.LimiterMax
	if max <= 0 {
		max = defaultLimiterMax
	}
	api := app.Group("/api", limiter.New(limiter.Config{
		Max:        max,
		Expiration: time.Minute,
		Storage:    h.cfg.LimiterStorage,
		LimitReached: func(c *fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"error":   "too_many_requests",
				"message": "Rate limit exceeded",
			})
		},
	}))
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	// PayPal calls this directly; the payload is trusted only after signature verification
	bc := h.cfg.Billing
	v1.Post("/webhooks/paypal", bc.HandlePayPalWebhook)

	identified := v1.Group("")
	if !h.cfg.TrustIdentityHeaders {
		identified.Use(middleware.GatewayTokenMiddleware(h.cfg.GatewayToken))
	}
	identified.Use(middleware.UserContextMiddleware)
	h.registerBillingRoutes(identified)
	h.registerAdminRoutes(identified)
}

func NewApiRouter(cfg Config) *ApiRouter {
	return &ApiRouter{cfg: cfg}
}
