package billing

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/entitlements"
	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// Provider is the subset of the PayPal API the engine calls.
type Provider interface {
	CreateOrder(ctx context.Context, in paypal.CreateOrderRequest) (*paypal.Order, error)
	CaptureOrder(ctx context.Context, orderID string) (*paypal.Order, error)
	CreateSubscription(ctx context.Context, in paypal.CreateSubscriptionRequest) (*paypal.Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*paypal.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID, reason string) error
	ReviseSubscription(ctx context.Context, subscriptionID, planID string) (*paypal.ReviseResult, error)
	VerifyWebhookSignature(ctx context.Context, headers paypal.WebhookHeaders, body []byte) (bool, error)
}

// Counters receives best-effort event counts.
type Counters interface {
	Incr(ctx context.Context, field string)
}

// AdminNotifier is told about new manual payment reports.
type AdminNotifier interface {
	ManualReportSubmitted(ctx context.Context, report *models.ManualPaymentReport) error
}

// Service is the subscription and entitlement engine.
type Service struct {
	store    Store
	provider Provider
	cfg      Config
	now      func() time.Time

	planSync PlanSyncScheduler
	counters Counters
	notifier AdminNotifier
}

type Option func(*Service)

// WithClock overrides time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

func WithPlanSyncScheduler(p PlanSyncScheduler) Option {
	return func(s *Service) { s.planSync = p }
}

func WithCounters(c Counters) Option {
	return func(s *Service) { s.counters = c }
}

func WithAdminNotifier(n AdminNotifier) Option {
	return func(s *Service) { s.notifier = n }
}

// NewService creates the engine from an injected store and provider.
func NewService(store Store, provider Provider, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:    store,
		provider: provider,
		cfg:      cfg.withDefaults(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// NewServiceFromDB creates the engine from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB, provider Provider, cfg Config, opts ...Option) *Service {
	return NewService(NewStore(db), provider, cfg, opts...)
}

func (s *Service) Config() Config {
	return s.cfg
}

func (s *Service) incr(ctx context.Context, field string) {
	if s.counters != nil {
		s.counters.Incr(ctx, field)
	}
}

// Summary is the billing overview of one owner.
type Summary struct {
	OwnerID            uint                 `json:"owner_id"`
	Subscription       *models.Subscription `json:"subscription"`
	State              entitlements.State   `json:"state"`
	Usage              UsageSnapshot        `json:"usage"`
	Pricing            Pricing              `json:"pricing"`
	Currency           string               `json:"currency"`
	SettlementCurrency string               `json:"settlement_currency"`
	Tiers              []Tier               `json:"tiers"`
}

// GetSummary returns subscription, state, usage and pricing for an owner.
// Reading a lapsed subscription may insert the daily expiry notification.
func (s *Service) GetSummary(ctx context.Context, ownerID uint) (*Summary, error) {
	if ownerID == 0 {
		return nil, validationError("owner id is required")
	}
	var out *Summary
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		sub, err := s.loadSubscription(repos, ownerID, false)
		if err != nil {
			return err
		}
		state, err := s.evaluate(repos, sub)
		if err != nil {
			return err
		}
		usage, err := CountUsage(repos, ownerID)
		if err != nil {
			return err
		}
		out = &Summary{
			OwnerID:            ownerID,
			Subscription:       sub,
			State:              state,
			Usage:              usage,
			Pricing:            SelectTier(usage),
			Currency:           s.cfg.BaseCurrency,
			SettlementCurrency: s.cfg.SettlementCurrency,
			Tiers:              Tiers(),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

type PaymentPage struct {
	Payments []models.Payment `json:"payments"`
	Page     int              `json:"page"`
	PerPage  int              `json:"per_page"`
	Total    int64            `json:"total"`
}

func normalizePage(page, perPage int) (int, int) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = defaultPerPage
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}
	return page, perPage
}

// ListPayments returns the owner's ledger, newest first.
func (s *Service) ListPayments(ctx context.Context, ownerID uint, page, perPage int) (*PaymentPage, error) {
	if ownerID == 0 {
		return nil, validationError("owner id is required")
	}
	page, perPage = normalizePage(page, perPage)
	out := &PaymentPage{Page: page, PerPage: perPage}
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		total, err := repos.Payment.CountByOwnerID(ownerID)
		if err != nil {
			return err
		}
		payments, err := repos.Payment.ListByOwnerID(ownerID, (page-1)*perPage, perPage)
		if err != nil {
			return err
		}
		out.Total = total
		out.Payments = payments
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Payments == nil {
		out.Payments = []models.Payment{}
	}
	return out, nil
}
