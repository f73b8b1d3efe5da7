package billing

import (
	"context"
	"errors"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
)

type WebhookResult struct {
	EventID   string `json:"event_id"`
	EventType string `json:"event_type"`
	Duplicate bool   `json:"duplicate"`
	Ignored   bool   `json:"ignored"`
}

type eventOutcome struct {
	ignored bool
	sync    *planSyncTarget
	counter string
}

func webhookEventID(ev *paypal.Event, body []byte) string {
	if id := strings.TrimSpace(ev.ID); id != "" {
		return id
	}
	sum := sha256.Sum256(body)
	return "hash:" + hex.EncodeToString(sum[:])
}

func webhookHeaderLog(headers map[string]string) datatypes.JSONMap {
	out := datatypes.JSONMap{}
	for k, v := range headers {
		if strings.HasPrefix(strings.ToLower(k), "paypal-") {
			out[strings.ToLower(k)] = v
		}
	}
	return out
}

func errorString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// HandleProviderWebhook verifies a PayPal delivery with PayPal itself, logs
// it idempotently by event id and applies it. Payments are deduplicated by
// (provider, provider_payment_id), so a replayed sale or capture is a no-op.
func (s *Service) HandleProviderWebhook(ctx context.Context, headers map[string]string, body []byte) (*WebhookResult, error) {
	if len(body) == 0 {
		return nil, validationError("empty webhook body")
	}
	ev, err := paypal.ParseEvent(body)
	if err != nil {
		return nil, &Error{Kind: KindValidation, Message: "invalid webhook payload", Err: err}
	}
	s.incr(ctx, CounterWebhookReceived)

	valid, err := s.provider.VerifyWebhookSignature(ctx, paypal.WebhookHeadersFromMap(headers), body)
	if err != nil {
		return nil, providerError("verify webhook signature", err)
	}
	if !valid {
		s.incr(ctx, CounterWebhookInvalid)
		log.Warnf("[Billing] Rejected PayPal webhook %s (%s): invalid signature", ev.ID, ev.EventType)
		return nil, validationError("invalid webhook signature")
	}

	result := &WebhookResult{EventID: webhookEventID(ev, body), EventType: ev.EventType}

	var stored *models.PayPalWebhookEvent
	var created bool
	err = s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		var err error
		created, stored, err = repos.WebhookEvent.CreateIfNotExists(&models.PayPalWebhookEvent{
			ProviderEventID: result.EventID,
			EventType:       ev.EventType,
			ResourceID:      ev.ResourceID(),
			Payload:         datatypes.JSON(body),
			Headers:         webhookHeaderLog(headers),
			SignatureValid:  true,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("record webhook event: %w", err)
	}
	if !created && stored.ProcessedAt != nil && stored.ProcessingError == "" {
		s.incr(ctx, CounterWebhookDuplicate)
		result.Duplicate = true
		return result, nil
	}

	var outcome eventOutcome
	procErr := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		var err error
		outcome, err = s.applyEvent(repos, ev)
		return err
	})
	if errors.Is(procErr, errPaymentRecorded) {
		procErr, outcome = nil, eventOutcome{}
	}

	markErr := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		return repos.WebhookEvent.MarkProcessed(stored.ID, errorString(procErr))
	})
	if markErr != nil {
		log.Warnf("[Billing] Failed to mark webhook %s processed: %v", result.EventID, markErr)
	}
	if procErr != nil {
		s.incr(ctx, CounterWebhookFailed)
		log.Errorf("[Billing] Processing PayPal webhook %s (%s) failed: %v", result.EventID, ev.EventType, procErr)
		return nil, procErr
	}

	result.Ignored = outcome.ignored
	if outcome.counter != "" {
		s.incr(ctx, outcome.counter)
	}
	if outcome.sync != nil {
		s.schedulePlanSync(ctx, *outcome.sync)
	}
	return result, nil
}

func (s *Service) applyEvent(repos *repository.Repositories, ev *paypal.Event) (eventOutcome, error) {
	switch ev.EventType {
	case paypal.EventSubscriptionActivated,
		paypal.EventSubscriptionUpdated,
		paypal.EventSubscriptionCancelled,
		paypal.EventSubscriptionSuspended,
		paypal.EventSubscriptionExpired:
		return s.syncSubscriptionStatus(repos, ev)
	case paypal.EventSaleCompleted:
		return s.applySale(repos, ev)
	case paypal.EventCaptureCompleted:
		return s.applyCapture(repos, ev)
	default:
		return eventOutcome{ignored: true}, nil
	}
}

func statusForEvent(eventType string) string {
	switch eventType {
	case paypal.EventSubscriptionActivated:
		return paypal.SubscriptionStatusActive
	case paypal.EventSubscriptionCancelled:
		return paypal.SubscriptionStatusCancelled
	case paypal.EventSubscriptionSuspended:
		return paypal.SubscriptionStatusSuspended
	case paypal.EventSubscriptionExpired:
		return paypal.SubscriptionStatusExpired
	default:
		return ""
	}
}

// syncSubscriptionStatus stores the provider status only. Plan and period are
// left alone; payments and explicit confirmation drive those.
func (s *Service) syncSubscriptionStatus(repos *repository.Repositories, ev *paypal.Event) (eventOutcome, error) {
	res, err := ev.DecodeSubscription()
	if err != nil || strings.TrimSpace(res.ID) == "" {
		return eventOutcome{}, validationError("subscription event without resource id")
	}
	sub, err := repos.Subscription.GetByPayPalSubscriptionID(res.ID, true)
	if err != nil {
		if isNotFound(err) {
			log.Warnf("[Billing] %s for unknown subscription %s", ev.EventType, res.ID)
			return eventOutcome{ignored: true}, nil
		}
		return eventOutcome{}, err
	}

	status := strings.ToUpper(strings.TrimSpace(res.Status))
	if status == "" {
		status = statusForEvent(ev.EventType)
	}
	if status == "" {
		return eventOutcome{ignored: true}, nil
	}
	sub.PayPalSubscriptionStatus = &status
	if err := repos.Subscription.Save(sub); err != nil {
		return eventOutcome{}, fmt.Errorf("save subscription status: %w", err)
	}
	return eventOutcome{}, nil
}

// applySale renews for a recurring payment. The first sale of a subscription
// whose activation already renewed is recorded without renewing again.
func (s *Service) applySale(repos *repository.Repositories, ev *paypal.Event) (eventOutcome, error) {
	sale, err := ev.DecodeSale()
	if err != nil || strings.TrimSpace(sale.ID) == "" {
		return eventOutcome{}, validationError("sale event without resource id")
	}
	subID := strings.TrimSpace(sale.BillingAgreementID)
	if subID == "" {
		return eventOutcome{ignored: true}, nil
	}

	sub, err := repos.Subscription.GetByPayPalSubscriptionID(subID, true)
	if err != nil {
		if isNotFound(err) {
			log.Warnf("[Billing] Sale %s for unknown subscription %s", sale.ID, subID)
			return eventOutcome{ignored: true}, nil
		}
		return eventOutcome{}, err
	}

	if _, err := repos.Payment.GetByProviderPaymentID(models.PaymentProviderPayPalSubscription, sale.ID); err == nil {
		return eventOutcome{}, nil
	} else if !isNotFound(err) {
		return eventOutcome{}, fmt.Errorf("check sale idempotency: %w", err)
	}

	covered, err := s.saleCoveredByActivation(repos, subID)
	if err != nil {
		return eventOutcome{}, err
	}

	payment := &models.Payment{
		OwnerID:           sub.OwnerID,
		Provider:          models.PaymentProviderPayPalSubscription,
		ProviderPaymentID: sale.ID,
		ProviderReference: subID,
		Status:            PaymentStatusCompleted,
		Amount:            parseAmount(sale.Amount.Total),
		Currency:          strings.ToUpper(sale.Amount.Currency),
		Metadata: datatypes.JSONMap{
			"subscription_id": subID,
			"event_id":        ev.ID,
			"source":          "webhook",
		},
		PaidAt: parseProviderTime(sale.CreateTime, s.now().UTC()),
	}
	if covered {
		payment.Metadata["renewal"] = "covered_by_activation"
	} else {
		if _, err := s.renewLocked(repos, sub, renewal{recurring: true}); err != nil {
			return eventOutcome{}, err
		}
	}
	if err := repos.Payment.Create(payment); err != nil {
		return eventOutcome{}, fmt.Errorf("insert sale payment: %w", err)
	}
	log.Infof("[Billing] Recorded sale %s for subscription %s (owner %d, renewed=%t)", sale.ID, subID, sub.OwnerID, !covered)

	return eventOutcome{
		sync:    &planSyncTarget{ownerID: sub.OwnerID, subscriptionID: subID},
		counter: CounterPaymentsSubscription,
	}, nil
}

// saleCoveredByActivation reports whether an activation row exists and no
// sale has been recorded after it yet.
func (s *Service) saleCoveredByActivation(repos *repository.Repositories, subID string) (bool, error) {
	if _, err := repos.Payment.GetByProviderPaymentID(models.PaymentProviderPayPalSubscription, activationKey(subID)); err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("check activation: %w", err)
	}
	count, err := repos.Payment.CountByProviderReference(models.PaymentProviderPayPalSubscription, subID)
	if err != nil {
		return false, fmt.Errorf("count subscription payments: %w", err)
	}
	return count <= 1, nil
}

// applyCapture handles the asynchronous capture of a one-off order with the
// same idempotency key CaptureOrder uses.
func (s *Service) applyCapture(repos *repository.Repositories, ev *paypal.Event) (eventOutcome, error) {
	capture, err := ev.DecodeCapture()
	if err != nil || strings.TrimSpace(capture.ID) == "" {
		return eventOutcome{}, validationError("capture event without resource id")
	}
	if capture.Status != "" && !strings.EqualFold(capture.Status, paypal.OrderStatusCompleted) {
		return eventOutcome{ignored: true}, nil
	}
	ownerID, planCode, ok := parseOrderCustomID(capture.CustomID)
	if !ok {
		log.Warnf("[Billing] Capture %s has no owner reference", capture.ID)
		return eventOutcome{ignored: true}, nil
	}

	orderID := capture.SupplementaryData.RelatedIDs.OrderID
	res, err := s.recordPayment(repos, ownerID, renewal{planCode: planCode}, &models.Payment{
		Provider:          models.PaymentProviderPayPal,
		ProviderPaymentID: capture.ID,
		ProviderReference: orderID,
		Status:            PaymentStatusCompleted,
		Amount:            parseAmount(capture.Amount.Value),
		Currency:          strings.ToUpper(capture.Amount.CurrencyCode),
		Metadata: datatypes.JSONMap{
			"order_id":  orderID,
			"plan_code": planCode,
			"event_id":  ev.ID,
			"source":    "webhook",
		},
		PaidAt: parseProviderTime(capture.CreateTime, s.now().UTC()),
	})
	if err != nil {
		return eventOutcome{}, err
	}
	if res.Duplicate {
		return eventOutcome{}, nil
	}
	return eventOutcome{counter: CounterPaymentsPayPal}, nil
}
