package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/BarberFox/app/controllers"
)

type Router interface {
	InstallRouter(app *fiber.App)
}

// Config carries what the routes need from the application.
type Config struct {
	Billing      *controllers.BillingController
	GatewayToken string
	// TrustIdentityHeaders skips the gateway token check. Development only.
	TrustIdentityHeaders bool
	LimiterStorage       fiber.Storage
	LimiterMax           int
}

func InstallRouter(app *fiber.App, cfg Config) {
	setup(app, NewApiRouter(cfg))
}

func setup(app *fiber.App, router ...Router) {
	for _, r := range router {
		r.InstallRouter(app)
	}
}
