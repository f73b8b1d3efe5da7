package controllers

import (
	"context"
	"errors"
	"io"
	"strconv"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/internal/pkg/billing"
	"github.com/ManuelReschke/BarberFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BarberFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/BarberFox/internal/pkg/proofstore"
	"github.com/ManuelReschke/BarberFox/internal/pkg/usercontext"
)

// BillingService is the engine surface the HTTP layer calls.
type BillingService interface {
	GetSummary(ctx context.Context, ownerID uint) (*billing.Summary, error)
	ListPayments(ctx context.Context, ownerID uint, page, perPage int) (*billing.PaymentPage, error)
	CreateOrder(ctx context.Context, ownerID uint) (*billing.OrderCheckout, error)
	CaptureOrder(ctx context.Context, ownerID uint, orderID string) (*billing.PaymentResult, error)
	CreateRecurringSubscription(ctx context.Context, ownerID uint, planCode string) (*billing.RecurringCheckout, error)
	ConfirmRecurringSubscription(ctx context.Context, ownerID uint, subscriptionID string) (*billing.RecurringConfirmation, error)
	CancelRecurringSubscription(ctx context.Context, ownerID uint, reason string) (*models.Subscription, error)
	ChangeRecurringPlan(ctx context.Context, ownerID uint, planCode string) (*billing.PlanChange, error)
	SubmitManualReport(ctx context.Context, actor billing.Actor, in billing.ManualReportInput) (*models.ManualPaymentReport, error)
	DecideManualReport(ctx context.Context, actor billing.Actor, reportID uint, approve bool, note string) (*billing.ManualDecision, error)
	ListManualReports(ctx context.Context, actor billing.Actor, status string, page, perPage int) (*billing.ManualReportPage, error)
	HandleProviderWebhook(ctx context.Context, headers map[string]string, body []byte) (*billing.WebhookResult, error)
}

// ProofUploader stores transfer receipts.
type ProofUploader interface {
	Upload(ctx context.Context, ownerID uint, filename string, body io.ReadSeeker, size int64) (*proofstore.UploadResult, error)
}

// CounterStats reads the billing event counters.
type CounterStats interface {
	Stats(ctx context.Context) (*counter.Stats, error)
}

// QueueStats reads the background job queue.
type QueueStats interface {
	GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error)
	GetQueueSize(ctx context.Context) (int64, error)
}

// BillingController serves the owner, admin and webhook billing routes.
type BillingController struct {
	svc      BillingService
	proofs   ProofUploader
	counters CounterStats
	queue    QueueStats
}

func NewBillingController(svc BillingService, proofs ProofUploader, counters CounterStats, queue QueueStats) *BillingController {
	return &BillingController{svc: svc, proofs: proofs, counters: counters, queue: queue}
}

type planRequest struct {
	PlanCode string `json:"plan_code" validate:"required,max=32"`
}

type confirmRequest struct {
	SubscriptionID string `json:"subscription_id" validate:"required,max=64"`
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"max=128"`
}

type manualReportRequest struct {
	OwnerID   string `json:"owner_id" validate:"omitempty,number"`
	Amount    string `json:"amount" validate:"required,numeric"`
	Currency  string `json:"currency" validate:"omitempty,alpha,len=3"`
	Reference string `json:"reference" validate:"max=255"`
	ProofURL  string `json:"proof_url" validate:"omitempty,url,max=512"`
}

// HandleSummary returns subscription, state, usage and price of the caller.
func (bc *BillingController) HandleSummary(c *fiber.Ctx) error {
	summary, err := bc.svc.GetSummary(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(summary)
}

func (bc *BillingController) HandlePayments(c *fiber.Ctx) error {
	page, perPage := pageQuery(c)
	payments, err := bc.svc.ListPayments(c.UserContext(), usercontext.GetUserID(c), page, perPage)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(payments)
}

// HandleCreateOrder starts a one-off PayPal checkout for the current tier.
func (bc *BillingController) HandleCreateOrder(c *fiber.Ctx) error {
	checkout, err := bc.svc.CreateOrder(c.UserContext(), usercontext.GetUserID(c))
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(checkout)
}

func (bc *BillingController) HandleCaptureOrder(c *fiber.Ctx) error {
	result, err := bc.svc.CaptureOrder(c.UserContext(), usercontext.GetUserID(c), c.Params("id"))
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(result)
}

func (bc *BillingController) HandleCreateSubscription(c *fiber.Ctx) error {
	fields, err := readFields(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	req := planRequest{PlanCode: fields.get(aliasPlanCode)}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	checkout, err := bc.svc.CreateRecurringSubscription(c.UserContext(), usercontext.GetUserID(c), req.PlanCode)
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(checkout)
}

// HandleConfirmSubscription accepts the id from the body or from the query
// string PayPal appends to the return URL.
func (bc *BillingController) HandleConfirmSubscription(c *fiber.Ctx) error {
	fields, err := readFields(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	req := confirmRequest{SubscriptionID: fields.get(aliasSubscriptionID)}
	if req.SubscriptionID == "" {
		req.SubscriptionID = c.Query("subscription_id")
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	confirmation, err := bc.svc.ConfirmRecurringSubscription(c.UserContext(), usercontext.GetUserID(c), req.SubscriptionID)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(confirmation)
}

func (bc *BillingController) HandleCancelSubscription(c *fiber.Ctx) error {
	fields, err := readFields(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	req := cancelRequest{Reason: fields.get(aliasReason)}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	sub, err := bc.svc.CancelRecurringSubscription(c.UserContext(), usercontext.GetUserID(c), req.Reason)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(fiber.Map{"subscription": sub})
}

func (bc *BillingController) HandleChangePlan(c *fiber.Ctx) error {
	fields, err := readFields(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	req := planRequest{PlanCode: fields.get(aliasPlanCode)}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	change, err := bc.svc.ChangeRecurringPlan(c.UserContext(), usercontext.GetUserID(c), req.PlanCode)
	if err != nil {
		return renderError(c, err)
	}
	return c.JSON(change)
}

// HandleSubmitManualReport records a bank-transfer claim. Owners report for
// themselves; admins may pass owner_id.
func (bc *BillingController) HandleSubmitManualReport(c *fiber.Ctx) error {
	fields, err := readFields(c)
	if err != nil {
		return badRequest(c, err.Error())
	}
	req := manualReportRequest{
		OwnerID:   fields.get(aliasOwnerID),
		Amount:    fields.get(aliasAmount),
		Currency:  fields.get(aliasCurrency),
		Reference: fields.get(aliasReference),
		ProofURL:  fields.get(aliasProofURL),
	}
	if err := validate.Struct(req); err != nil {
		return badRequest(c, validationMessage(err))
	}

	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		return badRequest(c, "amount is invalid")
	}
	actor := actorFrom(c)
	ownerID := actor.UserID
	if req.OwnerID != "" {
		id, err := strconv.ParseUint(req.OwnerID, 10, 64)
		if err != nil || id == 0 {
			return badRequest(c, "owner_id is invalid")
		}
		ownerID = uint(id)
	}

	report, err := bc.svc.SubmitManualReport(c.UserContext(), actor, billing.ManualReportInput{
		OwnerID:       ownerID,
		Amount:        amount,
		Currency:      req.Currency,
		ReferenceText: req.Reference,
		ProofURL:      req.ProofURL,
	})
	if err != nil {
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"report": report})
}

// HandleUploadProof stores a receipt and returns the URL to submit as proof_url.
func (bc *BillingController) HandleUploadProof(c *fiber.Ctx) error {
	if bc.proofs == nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error":   string(billing.KindConfiguration),
			"message": "proof uploads are not configured",
		})
	}
	fh, err := c.FormFile("file")
	if err != nil {
		fh, err = c.FormFile("comprobante")
	}
	if err != nil {
		return badRequest(c, "file is required")
	}
	file, err := fh.Open()
	if err != nil {
		return badRequest(c, "file could not be read")
	}
	defer file.Close()

	result, err := bc.proofs.Upload(c.UserContext(), usercontext.GetUserID(c), fh.Filename, file, fh.Size)
	switch {
	case errors.Is(err, proofstore.ErrEmptyFile), errors.Is(err, proofstore.ErrTooLarge), errors.Is(err, proofstore.ErrUnsupportedType):
		return badRequest(c, err.Error())
	case err != nil:
		return renderError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}
