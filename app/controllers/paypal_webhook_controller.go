package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
)

// HandlePayPalWebhook passes the raw delivery to the engine, which verifies
// the signature with PayPal before trusting the payload.
func (bc *BillingController) HandlePayPalWebhook(c *fiber.Ctx) error {
	headers := map[string]string{}
	c.Request().Header.VisitAll(func(key, value []byte) {
		headers[strings.ToLower(string(key))] = string(value)
	})
	body := append([]byte(nil), c.Body()...)

	result, err := bc.svc.HandleProviderWebhook(c.UserContext(), headers, body)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(result)
}
