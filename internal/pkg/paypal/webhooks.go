package paypal

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

const (
	EventSubscriptionActivated = "BILLING.SUBSCRIPTION.ACTIVATED"
	EventSubscriptionUpdated   = "BILLING.SUBSCRIPTION.UPDATED"
	EventSubscriptionCancelled = "BILLING.SUBSCRIPTION.CANCELLED"
	EventSubscriptionSuspended = "BILLING.SUBSCRIPTION.SUSPENDED"
	EventSubscriptionExpired   = "BILLING.SUBSCRIPTION.EXPIRED"
	EventSaleCompleted         = "PAYMENT.SALE.COMPLETED"
	EventCaptureCompleted      = "PAYMENT.CAPTURE.COMPLETED"
)

// ErrWebhookNotConfigured is returned when PAYPAL_WEBHOOK_ID is missing.
var ErrWebhookNotConfigured = errors.New("PAYPAL_WEBHOOK_ID is not configured")

// WebhookHeaders are the transmission headers PayPal signs a delivery with.
type WebhookHeaders struct {
	TransmissionID   string
	TransmissionTime string
	TransmissionSig  string
	CertURL          string
	AuthAlgo         string
}

// WebhookHeadersFromMap reads the transmission headers case-insensitively.
func WebhookHeadersFromMap(h map[string]string) WebhookHeaders {
	get := func(name string) string {
		for k, v := range h {
			if strings.EqualFold(k, name) {
				return strings.TrimSpace(v)
			}
		}
		return ""
	}
	return WebhookHeaders{
		TransmissionID:   get("Paypal-Transmission-Id"),
		TransmissionTime: get("Paypal-Transmission-Time"),
		TransmissionSig:  get("Paypal-Transmission-Sig"),
		CertURL:          get("Paypal-Cert-Url"),
		AuthAlgo:         get("Paypal-Auth-Algo"),
	}
}

// Complete reports whether every header needed for verification is present.
func (h WebhookHeaders) Complete() bool {
	return h.TransmissionID != "" && h.TransmissionTime != "" && h.TransmissionSig != "" && h.CertURL != "" && h.AuthAlgo != ""
}

type Event struct {
	ID           string          `json:"id"`
	EventType    string          `json:"event_type"`
	ResourceType string          `json:"resource_type"`
	Summary      string          `json:"summary"`
	CreateTime   string          `json:"create_time"`
	Resource     json.RawMessage `json:"resource"`
}

func ParseEvent(body []byte) (*Event, error) {
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, err
	}
	if strings.TrimSpace(ev.EventType) == "" {
		return nil, errors.New("webhook event missing event_type")
	}
	return &ev, nil
}

// SaleResource is the resource of PAYMENT.SALE.* events for recurring billing.
type SaleResource struct {
	ID     string `json:"id"`
	State  string `json:"state"`
	Amount struct {
		Total    string `json:"total"`
		Currency string `json:"currency"`
	} `json:"amount"`
	BillingAgreementID string `json:"billing_agreement_id"`
	Custom             string `json:"custom,omitempty"`
	CreateTime         string `json:"create_time"`
}

// CaptureResource is the resource of PAYMENT.CAPTURE.* events.
type CaptureResource struct {
	Capture
	SupplementaryData struct {
		RelatedIDs struct {
			OrderID string `json:"order_id"`
		} `json:"related_ids"`
	} `json:"supplementary_data"`
}

func (e *Event) DecodeSale() (*SaleResource, error) {
	var r SaleResource
	if err := json.Unmarshal(e.Resource, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (e *Event) DecodeCapture() (*CaptureResource, error) {
	var r CaptureResource
	if err := json.Unmarshal(e.Resource, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

func (e *Event) DecodeSubscription() (*Subscription, error) {
	var r Subscription
	if err := json.Unmarshal(e.Resource, &r); err != nil {
		return nil, err
	}
	return &r, nil
}

// ResourceID extracts resource.id without knowing the resource type.
func (e *Event) ResourceID() string {
	var r struct {
		ID string `json:"id"`
	}
	_ = json.Unmarshal(e.Resource, &r)
	return r.ID
}

// VerifyWebhookSignature asks PayPal whether the delivery was signed for the
// configured webhook id.
func (c *Client) VerifyWebhookSignature(ctx context.Context, headers WebhookHeaders, body []byte) (bool, error) {
	if c.WebhookID == "" {
		return false, ErrWebhookNotConfigured
	}
	if !headers.Complete() {
		return false, nil
	}
	if !json.Valid(body) {
		return false, nil
	}

	payload := map[string]interface{}{
		"auth_algo":         headers.AuthAlgo,
		"cert_url":          headers.CertURL,
		"transmission_id":   headers.TransmissionID,
		"transmission_sig":  headers.TransmissionSig,
		"transmission_time": headers.TransmissionTime,
		"webhook_id":        c.WebhookID,
		"webhook_event":     json.RawMessage(body),
	}
	var out struct {
		VerificationStatus string `json:"verification_status"`
	}
	if err := c.do(ctx, "verify webhook signature", http.MethodPost, "/v1/notifications/verify-webhook-signature", payload, &out); err != nil {
		return false, err
	}
	return strings.EqualFold(out.VerificationStatus, "SUCCESS"), nil
}
