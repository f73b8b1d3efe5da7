package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/internal/pkg/billing"
	"github.com/ManuelReschke/BarberFox/internal/pkg/jobqueue"
	"github.com/ManuelReschke/BarberFox/internal/pkg/metrics/counter"
	"github.com/ManuelReschke/BarberFox/internal/pkg/middleware"
	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
	"github.com/ManuelReschke/BarberFox/internal/pkg/proofstore"
	"github.com/ManuelReschke/BarberFox/internal/pkg/usercontext"
)

type fakeBilling struct {
	err error

	ownerID        uint
	planCode       string
	subscriptionID string
	reason         string
	orderID        string
	actor          billing.Actor
	manual         billing.ManualReportInput
	reportID       uint
	approve        bool
	note           string
	status         string
	headers        map[string]string
	body           []byte
	calls          int
}

func (f *fakeBilling) GetSummary(ctx context.Context, ownerID uint) (*billing.Summary, error) {
	f.calls++
	f.ownerID = ownerID
	return &billing.Summary{OwnerID: ownerID}, f.err
}

func (f *fakeBilling) ListPayments(ctx context.Context, ownerID uint, page, perPage int) (*billing.PaymentPage, error) {
	f.calls++
	f.ownerID = ownerID
	return &billing.PaymentPage{Page: page, PerPage: perPage}, f.err
}

func (f *fakeBilling) CreateOrder(ctx context.Context, ownerID uint) (*billing.OrderCheckout, error) {
	f.calls++
	f.ownerID = ownerID
	return &billing.OrderCheckout{OrderID: "O-1"}, f.err
}

func (f *fakeBilling) CaptureOrder(ctx context.Context, ownerID uint, orderID string) (*billing.PaymentResult, error) {
	f.calls++
	f.ownerID, f.orderID = ownerID, orderID
	return &billing.PaymentResult{}, f.err
}

func (f *fakeBilling) CreateRecurringSubscription(ctx context.Context, ownerID uint, planCode string) (*billing.RecurringCheckout, error) {
	f.calls++
	f.ownerID, f.planCode = ownerID, planCode
	return &billing.RecurringCheckout{SubscriptionID: "I-1", PlanCode: planCode}, f.err
}

func (f *fakeBilling) ConfirmRecurringSubscription(ctx context.Context, ownerID uint, subscriptionID string) (*billing.RecurringConfirmation, error) {
	f.calls++
	f.ownerID, f.subscriptionID = ownerID, subscriptionID
	return &billing.RecurringConfirmation{ProviderStatus: "ACTIVE"}, f.err
}

func (f *fakeBilling) CancelRecurringSubscription(ctx context.Context, ownerID uint, reason string) (*models.Subscription, error) {
	f.calls++
	f.ownerID, f.reason = ownerID, reason
	return &models.Subscription{OwnerID: ownerID}, f.err
}

func (f *fakeBilling) ChangeRecurringPlan(ctx context.Context, ownerID uint, planCode string) (*billing.PlanChange, error) {
	f.calls++
	f.ownerID, f.planCode = ownerID, planCode
	return &billing.PlanChange{PlanCode: planCode}, f.err
}

func (f *fakeBilling) SubmitManualReport(ctx context.Context, actor billing.Actor, in billing.ManualReportInput) (*models.ManualPaymentReport, error) {
	f.calls++
	f.actor, f.manual = actor, in
	return &models.ManualPaymentReport{ID: 3, OwnerID: in.OwnerID}, f.err
}

func (f *fakeBilling) DecideManualReport(ctx context.Context, actor billing.Actor, reportID uint, approve bool, note string) (*billing.ManualDecision, error) {
	f.calls++
	f.actor, f.reportID, f.approve, f.note = actor, reportID, approve, note
	return &billing.ManualDecision{Report: &models.ManualPaymentReport{ID: reportID}}, f.err
}

func (f *fakeBilling) ListManualReports(ctx context.Context, actor billing.Actor, status string, page, perPage int) (*billing.ManualReportPage, error) {
	f.calls++
	f.actor, f.status = actor, status
	return &billing.ManualReportPage{Page: page, PerPage: perPage}, f.err
}

func (f *fakeBilling) HandleProviderWebhook(ctx context.Context, headers map[string]string, body []byte) (*billing.WebhookResult, error) {
	f.calls++
	f.headers, f.body = headers, body
	return &billing.WebhookResult{EventID: "WH-1"}, f.err
}

type fakeUploader struct {
	ownerID  uint
	filename string
	content  string
	err      error
}

func (f *fakeUploader) Upload(ctx context.Context, ownerID uint, filename string, body io.ReadSeeker, size int64) (*proofstore.UploadResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	data, _ := io.ReadAll(body)
	f.ownerID, f.filename, f.content = ownerID, filename, string(data)
	return &proofstore.UploadResult{URL: "https://cdn.test/proofs/7/x.png", Size: size}, nil
}

type fakeCounters struct{}

func (fakeCounters) Stats(ctx context.Context) (*counter.Stats, error) {
	return &counter.Stats{Totals: map[string]int64{"webhook_received": 4}, Day: "2026-10-15"}, nil
}

type fakeQueue struct{}

func (fakeQueue) GetJobStats(ctx context.Context) (map[jobqueue.JobStatus]int64, error) {
	return map[jobqueue.JobStatus]int64{jobqueue.JobStatusCompleted: 2}, nil
}

func (fakeQueue) GetQueueSize(ctx context.Context) (int64, error) {
	return 1, nil
}

func newTestApp(svc *fakeBilling, uploader ProofUploader) *fiber.App {
	bc := NewBillingController(svc, uploader, fakeCounters{}, fakeQueue{})
	app := fiber.New()
	app.Use(middleware.UserContextMiddleware)
	app.Post("/webhooks/paypal", bc.HandlePayPalWebhook)

	b := app.Group("/billing", middleware.RequireAuth)
	b.Get("/summary", bc.HandleSummary)
	b.Get("/payments", bc.HandlePayments)
	b.Post("/paypal/orders/:id/capture", bc.HandleCaptureOrder)
	b.Post("/paypal/subscriptions", bc.HandleCreateSubscription)
	b.Post("/paypal/subscriptions/confirm", bc.HandleConfirmSubscription)
	b.Post("/paypal/subscriptions/cancel", bc.HandleCancelSubscription)
	b.Post("/manual-reports", bc.HandleSubmitManualReport)
	b.Post("/manual-reports/proof", bc.HandleUploadProof)

	a := app.Group("/admin/billing", middleware.RequireAdmin)
	a.Get("/manual-reports", bc.HandleAdminManualReports)
	a.Post("/manual-reports/:id/approve", bc.HandleAdminApproveManualReport)
	a.Post("/manual-reports/:id/reject", bc.HandleAdminRejectManualReport)
	a.Get("/stats", bc.HandleAdminStats)
	a.Get("/owners/:id/summary", bc.HandleAdminOwnerSummary)
	return app
}

func send(t *testing.T, app *fiber.App, method, path, role string, body string) (int, map[string]interface{}) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if role != "" {
		id := "7"
		if role == models.ROLE_ADMIN {
			id = "1"
		}
		req.Header.Set(usercontext.HeaderUserID, id)
		req.Header.Set(usercontext.HeaderUserRole, role)
	}
	return doRequest(t, app, req)
}

func doRequest(t *testing.T, app *fiber.App, req *http.Request) (int, map[string]interface{}) {
	t.Helper()
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	var out map[string]interface{}
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestHandleSummary_UsesCallerAsOwner(t *testing.T) {
	svc := &fakeBilling{}
	status, body := send(t, newTestApp(svc, nil), http.MethodGet, "/billing/summary", models.ROLE_OWNER, "")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint(7), svc.ownerID)
	assert.Equal(t, float64(7), body["owner_id"])
}

func TestHandleSummary_RequiresIdentity(t *testing.T) {
	svc := &fakeBilling{}
	status, _ := send(t, newTestApp(svc, nil), http.MethodGet, "/billing/summary", "", "")

	assert.Equal(t, http.StatusUnauthorized, status)
	assert.Zero(t, svc.calls)
}

func TestRenderError_PaymentRequired(t *testing.T) {
	end := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	grace := end.Add(5 * 24 * time.Hour)
	svc := &fakeBilling{err: &billing.PaymentRequiredError{OwnerID: 7, CurrentPeriodEnd: &end, GracePeriodEnd: &grace}}

	status, body := send(t, newTestApp(svc, nil), http.MethodGet, "/billing/summary", models.ROLE_OWNER, "")

	assert.Equal(t, http.StatusPaymentRequired, status)
	assert.Equal(t, "payment_required", body["error"])
	assert.Equal(t, float64(7), body["owner_id"])
	assert.Equal(t, "2026-10-01T00:00:00Z", body["current_period_end"])
	assert.Equal(t, "2026-10-06T00:00:00Z", body["grace_period_end"])
}

func TestRenderError_UpstreamCarriesProviderAnswer(t *testing.T) {
	svc := &fakeBilling{err: &billing.Error{
		Kind:    billing.KindUpstream,
		Message: "paypal capture order failed",
		Err:     &paypal.APIError{Operation: "capture order", StatusCode: 422, Body: `{"name":"UNPROCESSABLE_ENTITY"}`},
	}}

	status, body := send(t, newTestApp(svc, nil), http.MethodPost, "/billing/paypal/orders/O-9/capture", models.ROLE_OWNER, "")

	assert.Equal(t, http.StatusBadGateway, status)
	assert.Equal(t, "upstream_error", body["error"])
	assert.Equal(t, float64(422), body["provider_status"])
	assert.Equal(t, `{"name":"UNPROCESSABLE_ENTITY"}`, body["provider_body"])
	assert.Equal(t, "O-9", svc.orderID)
}

func TestRenderError_ConflictAndUnknown(t *testing.T) {
	svc := &fakeBilling{err: &billing.Error{Kind: billing.KindConflict, Message: "report already decided"}}
	status, body := send(t, newTestApp(svc, nil), http.MethodPost, "/admin/billing/manual-reports/4/approve", models.ROLE_ADMIN, "")
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, "report already decided", body["message"])

	svc = &fakeBilling{err: assert.AnError}
	status, body = send(t, newTestApp(svc, nil), http.MethodGet, "/billing/payments", models.ROLE_OWNER, "")
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "internal_server_error", body["error"])
}

func TestHandleSubmitManualReport_AcceptsSpanishFields(t *testing.T) {
	svc := &fakeBilling{}
	payload := `{"monto": 1500, "moneda": "dop", "referencia": " BHD-1 ", "comprobante_url": "https://cdn.test/r.png"}`

	status, body := send(t, newTestApp(svc, nil), http.MethodPost, "/billing/manual-reports", models.ROLE_OWNER, payload)

	require.Equal(t, http.StatusCreated, status)
	assert.NotNil(t, body["report"])
	assert.Equal(t, billing.Actor{UserID: 7}, svc.actor)
	assert.Equal(t, uint(7), svc.manual.OwnerID)
	assert.True(t, decimal.NewFromInt(1500).Equal(svc.manual.Amount))
	assert.Equal(t, "dop", svc.manual.Currency)
	assert.Equal(t, "BHD-1", svc.manual.ReferenceText)
	assert.Equal(t, "https://cdn.test/r.png", svc.manual.ProofURL)
}

func TestHandleSubmitManualReport_AdminForOwner(t *testing.T) {
	svc := &fakeBilling{}
	payload := `{"owner_id": 9, "amount": "1000.50", "currency": "DOP", "reference": "X"}`

	status, _ := send(t, newTestApp(svc, nil), http.MethodPost, "/billing/manual-reports", models.ROLE_ADMIN, payload)

	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, billing.Actor{UserID: 1, IsAdmin: true}, svc.actor)
	assert.Equal(t, uint(9), svc.manual.OwnerID)
	assert.Equal(t, "1000.5", svc.manual.Amount.String())
}

func TestHandleSubmitManualReport_RejectsMalformedInput(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"invalid json", `{"amount":`},
		{"missing amount", `{"currency":"DOP","reference":"x"}`},
		{"non numeric amount", `{"amount":"mil","reference":"x"}`},
		{"bad currency", `{"amount":"10","currency":"pesos","reference":"x"}`},
		{"bad proof url", `{"amount":"10","proof_url":"not a url"}`},
		{"bad owner id", `{"amount":"10","reference":"x","owner_id":"abc"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeBilling{}
			status, body := send(t, newTestApp(svc, nil), http.MethodPost, "/billing/manual-reports", models.ROLE_OWNER, tt.payload)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, "validation_error", body["error"])
			assert.Zero(t, svc.calls)
		})
	}
}

func TestHandleCreateSubscription_PlanAliases(t *testing.T) {
	svc := &fakeBilling{}
	app := newTestApp(svc, nil)

	status, body := send(t, app, http.MethodPost, "/billing/paypal/subscriptions", models.ROLE_OWNER, `{"plan":"pro"}`)
	assert.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "pro", svc.planCode)
	assert.Equal(t, "I-1", body["subscription_id"])

	status, _ = send(t, app, http.MethodPost, "/billing/paypal/subscriptions", models.ROLE_OWNER, `{}`)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, 1, svc.calls)
}

func TestHandleConfirmSubscription_FromQueryString(t *testing.T) {
	svc := &fakeBilling{}
	status, body := send(t, newTestApp(svc, nil), http.MethodPost, "/billing/paypal/subscriptions/confirm?subscription_id=I-77", models.ROLE_OWNER, "")

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "I-77", svc.subscriptionID)
	assert.Equal(t, "ACTIVE", body["provider_status"])
}

func TestHandleCancelSubscription_Reason(t *testing.T) {
	svc := &fakeBilling{}
	status, _ := send(t, newTestApp(svc, nil), http.MethodPost, "/billing/paypal/subscriptions/cancel", models.ROLE_OWNER, `{"motivo":"cierre"}`)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "cierre", svc.reason)
}

func TestHandlePayPalWebhook_ForwardsHeadersAndBody(t *testing.T) {
	svc := &fakeBilling{}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(`{"id":"WH-1"}`))
	req.Header.Set("PAYPAL-TRANSMISSION-ID", "t-1")
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	status, body := doRequest(t, newTestApp(svc, nil), req)

	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "WH-1", body["event_id"])
	assert.Equal(t, "t-1", svc.headers["paypal-transmission-id"])
	assert.JSONEq(t, `{"id":"WH-1"}`, string(svc.body))
}

func TestHandlePayPalWebhook_InvalidSignature(t *testing.T) {
	svc := &fakeBilling{err: &billing.Error{Kind: billing.KindValidation, Message: "invalid webhook signature"}}
	req := httptest.NewRequest(http.MethodPost, "/webhooks/paypal", strings.NewReader(`{}`))

	status, body := doRequest(t, newTestApp(svc, nil), req)

	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, "invalid webhook signature", body["message"])
}

func TestAdminDecision(t *testing.T) {
	svc := &fakeBilling{}
	app := newTestApp(svc, nil)

	status, _ := send(t, app, http.MethodPost, "/admin/billing/manual-reports/4/reject", models.ROLE_ADMIN, `{"nota":"monto incorrecto"}`)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint(4), svc.reportID)
	assert.False(t, svc.approve)
	assert.Equal(t, "monto incorrecto", svc.note)

	status, _ = send(t, app, http.MethodPost, "/admin/billing/manual-reports/abc/approve", models.ROLE_ADMIN, "")
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = send(t, app, http.MethodPost, "/admin/billing/manual-reports/4/approve", models.ROLE_OWNER, "")
	assert.Equal(t, http.StatusForbidden, status)
	assert.Equal(t, 1, svc.calls)
}

func TestAdminListAndOwnerSummary(t *testing.T) {
	svc := &fakeBilling{}
	app := newTestApp(svc, nil)

	status, body := send(t, app, http.MethodGet, "/admin/billing/manual-reports?status=Pending&page=2&per_page=5", models.ROLE_ADMIN, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "pending", svc.status)
	assert.Equal(t, float64(2), body["page"])

	status, body = send(t, app, http.MethodGet, "/admin/billing/owners/12/summary", models.ROLE_ADMIN, "")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, uint(12), svc.ownerID)
	assert.Equal(t, float64(12), body["owner_id"])
}

func TestAdminStats(t *testing.T) {
	status, body := send(t, newTestApp(&fakeBilling{}, nil), http.MethodGet, "/admin/billing/stats", models.ROLE_ADMIN, "")

	require.Equal(t, http.StatusOK, status)
	counters := body["counters"].(map[string]interface{})
	assert.Equal(t, float64(4), counters["totals"].(map[string]interface{})["webhook_received"])
	queue := body["queue"].(map[string]interface{})
	assert.Equal(t, float64(1), queue["pending"])
}

func multipartProof(t *testing.T, field, filename, content string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, "/billing/manual-reports/proof", &buf)
	req.Header.Set(fiber.HeaderContentType, w.FormDataContentType())
	req.Header.Set(usercontext.HeaderUserID, "7")
	return req
}

func TestHandleUploadProof(t *testing.T) {
	uploader := &fakeUploader{}
	status, body := doRequest(t, newTestApp(&fakeBilling{}, uploader), multipartProof(t, "comprobante", "recibo.png", "png-bytes"))

	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "https://cdn.test/proofs/7/x.png", body["url"])
	assert.Equal(t, uint(7), uploader.ownerID)
	assert.Equal(t, "recibo.png", uploader.filename)
	assert.Equal(t, "png-bytes", uploader.content)
}

func TestHandleUploadProof_Errors(t *testing.T) {
	status, _ := doRequest(t, newTestApp(&fakeBilling{}, &fakeUploader{err: proofstore.ErrUnsupportedType}), multipartProof(t, "file", "virus.exe", "x"))
	assert.Equal(t, http.StatusBadRequest, status)

	status, body := doRequest(t, newTestApp(&fakeBilling{}, nil), multipartProof(t, "file", "r.png", "x"))
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "configuration_error", body["error"])
}
