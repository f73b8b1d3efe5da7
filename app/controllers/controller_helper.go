package controllers

import (
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BarberFox/internal/pkg/billing"
	"github.com/ManuelReschke/BarberFox/internal/pkg/usercontext"
)

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

func actorFrom(c *fiber.Ctx) billing.Actor {
	userCtx := usercontext.GetUserContext(c)
	return billing.Actor{UserID: userCtx.UserID, IsAdmin: userCtx.IsAdmin}
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": string(billing.KindValidation), "message": message})
}

// renderError writes the JSON body for an engine failure. Blocked owners get
// the period boundaries; upstream failures carry PayPal's answer.
func renderError(c *fiber.Ctx, err error) error {
	var pr *billing.PaymentRequiredError
	if errors.As(err, &pr) {
		return c.Status(fiber.StatusPaymentRequired).JSON(fiber.Map{
			"error":              "payment_required",
			"message":            "Subscription expired, renew to continue",
			"owner_id":           pr.OwnerID,
			"current_period_end": formatTimePtr(pr.CurrentPeriodEnd),
			"grace_period_end":   formatTimePtr(pr.GracePeriodEnd),
		})
	}

	var be *billing.Error
	if errors.As(err, &be) {
		body := fiber.Map{"error": string(be.Kind), "message": be.Message}
		if be.Kind == billing.KindUpstream {
			body["provider_status"] = be.ProviderStatus()
			body["provider_body"] = be.ProviderBody()
		}
		if be.Kind == billing.KindUpstream || be.Kind == billing.KindConfiguration {
			log.Errorf("[Billing] %s %s: %v", c.Method(), c.Path(), err)
		}
		return c.Status(be.HTTPStatus()).JSON(body)
	}

	log.Errorf("[Billing] %s %s: %v", c.Method(), c.Path(), err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Internal server error"})
}

func paramID(c *fiber.Ctx, name string) (uint, bool) {
	id, err := strconv.ParseUint(strings.TrimSpace(c.Params(name)), 10, 64)
	if err != nil || id == 0 {
		return 0, false
	}
	return uint(id), true
}

func pageQuery(c *fiber.Ctx) (int, int) {
	return c.QueryInt("page", 1), c.QueryInt("per_page", 0)
}
