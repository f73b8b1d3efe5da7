package router

import (
	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/BarberFox/internal/pkg/middleware"
)

func (h ApiRouter) registerBillingRoutes(r fiber.Router) {
	bc := h.cfg.Billing
	billing := r.Group("/billing", middleware.RequireAuth)
	billing.Get("/summary", bc.HandleSummary)
	billing.Get("/payments", bc.HandlePayments)

	// PayPal one-off orders
	billing.Post("/paypal/orders", bc.HandleCreateOrder)
	billing.Post("/paypal/orders/:id/capture", bc.HandleCaptureOrder)

	// PayPal recurring subscriptions
	billing.Post("/paypal/subscriptions", bc.HandleCreateSubscription)
	billing.Post("/paypal/subscriptions/confirm", bc.HandleConfirmSubscription)
	billing.Post("/paypal/subscriptions/cancel", bc.HandleCancelSubscription)
	billing.Post("/paypal/subscriptions/change-plan", bc.HandleChangePlan)

	// Bank transfers
	billing.Post("/manual-reports", bc.HandleSubmitManualReport)
	billing.Post("/manual-reports/proof", bc.HandleUploadProof)
}

func (h ApiRouter) registerAdminRoutes(r fiber.Router) {
	bc := h.cfg.Billing
	admin := r.Group("/admin/billing", middleware.RequireAdmin)
	admin.Get("/manual-reports", bc.HandleAdminManualReports)
	admin.Post("/manual-reports/:id/approve", bc.HandleAdminApproveManualReport)
	admin.Post("/manual-reports/:id/reject", bc.HandleAdminRejectManualReport)
	admin.Get("/stats", bc.HandleAdminStats)
	admin.Get("/owners/:id/summary", bc.HandleAdminOwnerSummary)
}
