package paypal

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	OrderStatusCreated   = "CREATED"
	OrderStatusApproved  = "APPROVED"
	OrderStatusCompleted = "COMPLETED"
)

type Money struct {
	CurrencyCode string `json:"currency_code"`
	Value        string `json:"value"`
}

// NewMoney formats an amount with two decimals as PayPal expects.
func NewMoney(currency string, amount decimal.Decimal) Money {
	return Money{CurrencyCode: strings.ToUpper(currency), Value: amount.StringFixed(2)}
}

type Capture struct {
	ID         string `json:"id"`
	Status     string `json:"status"`
	Amount     Money  `json:"amount"`
	CustomID   string `json:"custom_id,omitempty"`
	CreateTime string `json:"create_time,omitempty"`
}

type PurchaseUnit struct {
	ReferenceID string `json:"reference_id,omitempty"`
	CustomID    string `json:"custom_id,omitempty"`
	Description string `json:"description,omitempty"`
	Amount      *Money `json:"amount,omitempty"`
	Payments    *struct {
		Captures []Capture `json:"captures"`
	} `json:"payments,omitempty"`
}

type Order struct {
	ID            string         `json:"id"`
	Status        string         `json:"status"`
	PurchaseUnits []PurchaseUnit `json:"purchase_units"`
	Links         []Link         `json:"links"`
}

// ApproveURL returns the payer approval link of a freshly created order.
func (o *Order) ApproveURL() string {
	return findLink(o.Links, "approve", "payer-action")
}

// CustomID returns the custom id of the first purchase unit.
func (o *Order) CustomID() string {
	for _, pu := range o.PurchaseUnits {
		if pu.CustomID != "" {
			return pu.CustomID
		}
	}
	return ""
}

// FirstCapture returns the first capture across all purchase units, or nil.
func (o *Order) FirstCapture() *Capture {
	for _, pu := range o.PurchaseUnits {
		if pu.Payments == nil {
			continue
		}
		if len(pu.Payments.Captures) > 0 {
			return &pu.Payments.Captures[0]
		}
	}
	return nil
}

type CreateOrderRequest struct {
	Amount      Money
	CustomID    string
	Description string
	ReturnURL   string
	CancelURL   string
	BrandName   string
}

func (c *Client) CreateOrder(ctx context.Context, in CreateOrderRequest) (*Order, error) {
	unit := PurchaseUnit{
		CustomID:    in.CustomID,
		Description: in.Description,
		Amount:      &in.Amount,
	}
	payload := map[string]interface{}{
		"intent":         "CAPTURE",
		"purchase_units": []PurchaseUnit{unit},
	}
	appCtx := map[string]string{"user_action": "PAY_NOW", "shipping_preference": "NO_SHIPPING"}
	if in.BrandName != "" {
		appCtx["brand_name"] = in.BrandName
	}
	if in.ReturnURL != "" {
		appCtx["return_url"] = in.ReturnURL
	}
	if in.CancelURL != "" {
		appCtx["cancel_url"] = in.CancelURL
	}
	payload["application_context"] = appCtx

	var out Order
	if err := c.do(ctx, "create order", http.MethodPost, "/v2/checkout/orders", payload, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) CaptureOrder(ctx context.Context, orderID string) (*Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return nil, fmt.Errorf("order id is required")
	}
	var out Order
	path := "/v2/checkout/orders/" + url.PathEscape(orderID) + "/capture"
	if err := c.do(ctx, "capture order", http.MethodPost, path, map[string]interface{}{}, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
