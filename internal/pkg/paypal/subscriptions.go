package paypal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

const (
	SubscriptionStatusApprovalPending = "APPROVAL_PENDING"
	SubscriptionStatusApproved        = "APPROVED"
	SubscriptionStatusActive          = "ACTIVE"
	SubscriptionStatusSuspended       = "SUSPENDED"
	SubscriptionStatusCancelled       = "CANCELLED"
	SubscriptionStatusExpired         = "EXPIRED"
)

type Subscription struct {
	ID          string       `json:"id"`
	Status      string       `json:"status"`
	PlanID      string       `json:"plan_id"`
	CustomID    string       `json:"custom_id,omitempty"`
	StartTime   string       `json:"start_time,omitempty"`
	BillingInfo *BillingInfo `json:"billing_info,omitempty"`
	Links       []Link       `json:"links,omitempty"`
}

type LastPayment struct {
	Amount Money  `json:"amount"`
	Time   string `json:"time"`
}

type BillingInfo struct {
	LastPayment     *LastPayment `json:"last_payment,omitempty"`
	NextBillingTime string       `json:"next_billing_time,omitempty"`
}

// ApproveURL returns the link the payer must visit to approve the subscription.
func (s *Subscription) ApproveURL() string {
	return findLink(s.Links, "approve")
}

type CreateSubscriptionRequest struct {
	PlanID    string
	CustomID  string
	ReturnURL string
	CancelURL string
	BrandName string
}

// ReviseResult is PayPal's answer to a plan revision. The payer may need to
// re-approve through the returned link.
type ReviseResult struct {
	PlanID string `json:"plan_id"`
	Links  []Link `json:"links,omitempty"`
}

func (r *ReviseResult) ApproveURL() string {
	return findLink(r.Links, "approve")
}

func subscriptionPath(id string) (string, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return "", fmt.Errorf("subscription id is required")
	}
	return "/v1/billing/subscriptions/" + url.PathEscape(id), nil
}

func (c *Client) CreateSubscription(ctx context.Context, in CreateSubscriptionRequest) (*Subscription, error) {
	appCtx := map[string]string{"user_action": "SUBSCRIBE_NOW", "shipping_preference": "NO_SHIPPING"}
	if in.BrandName != "" {
		appCtx["brand_name"] = in.BrandName
	}
	if in.ReturnURL != "" {
		appCtx["return_url"] = in.ReturnURL
	}
	if in.CancelURL != "" {
		appCtx["cancel_url"] = in.CancelURL
	}
	payload := map[string]interface{}{
		"plan_id":             in.PlanID,
		"custom_id":           in.CustomID,
		"application_context": appCtx,
	}

	var out Subscription
	if err := c.do(ctx, "create subscription", http.MethodPost, "/v1/billing/subscriptions", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	path, err := subscriptionPath(subscriptionID)
	if err != nil {
		return nil, err
	}
	var out Subscription
	if err := c.do(ctx, "get subscription", http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID, reason string) error {
	path, err := subscriptionPath(subscriptionID)
	if err != nil {
		return err
	}
	if strings.TrimSpace(reason) == "" {
		reason = "Cancelled by owner"
	}
	return c.do(ctx, "cancel subscription", http.MethodPost, path+"/cancel", map[string]string{"reason": reason}, nil)
}

func (c *Client) ReviseSubscription(ctx context.Context, subscriptionID, planID string) (*ReviseResult, error) {
	path, err := subscriptionPath(subscriptionID)
	if err != nil {
		return nil, err
	}
	var out ReviseResult
	if err := c.do(ctx, "revise subscription", http.MethodPost, path+"/revise", map[string]string{"plan_id": planID}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
