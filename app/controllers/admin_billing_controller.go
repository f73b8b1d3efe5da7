package controllers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

type decisionRequest struct {
	Note string `json:"note" validate:"max=1000"`
}

// HandleAdminManualReports lists manual reports, optionally by status.
func (bc *BillingController) HandleAdminManualReports(c *fiber.Ctx) error {
	page, perPage := pageQuery(c)
	status := strings.ToLower(strings.TrimSpace(c.Query("status")))
	reports, err := bc.svc.ListManualReports(c.UserContext(), actorFrom(c), status, page, perPage)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(reports)
}

func (bc *BillingController) HandleAdminApproveManualReport(c *fiber.Ctx) error {
	return bc.decide(c, true)
}

func (bc *BillingController) HandleAdminRejectManualReport(c *fiber.Ctx) error {
	return bc.decide(c, false)
}

func (bc *BillingController) decide(c *fiber.Ctx, approve bool) error {
	reportID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid report id")
	}
	fields, err := readFields(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	req := decisionRequest{Note: fields.get(aliasNote)}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	decision, err := bc.svc.DecideManualReport(c.UserContext(), actorFrom(c), reportID, approve, req.Note)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(decision)
}

// HandleAdminOwnerSummary shows the billing summary of any owner.
func (bc *BillingController) HandleAdminOwnerSummary(c *fiber.Ctx) error {
	ownerID, ok := paramID(c, "id")
	if !ok {
		return badRequest(c, "invalid owner id")
	}
	summary, err := bc.svc.GetSummary(c.UserContext(), ownerID)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(summary)
}

// HandleAdminStats returns billing counters and job queue figures. Missing
// sources are reported as null.
func (bc *BillingController) HandleAdminStats(c *fiber.Ctx) error {
	ctx := c.UserContext()
	response := fiber.Map{"counters": nil, "queue": nil}

	if bc.counters != nil {
		stats, err := bc.counters.Stats(ctx)
		if err != nil {
			log.Errorf("[Billing] Failed to read counters: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
		}
		response["counters"] = stats
	}
	if bc.queue != nil {
		jobs, err := bc.queue.GetJobStats(ctx)
		if err != nil {
			log.Errorf("[Billing] Failed to read job stats: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
		}
		pending, err := bc.queue.GetQueueSize(ctx)
		if err != nil {
			log.Errorf("[Billing] Failed to read queue size: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load statistics"})
		}
		response["queue"] = fiber.Map{"jobs": jobs, "pending": pending}
	}
	return c.JSON(response)
}
