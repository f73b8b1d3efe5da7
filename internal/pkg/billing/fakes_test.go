package billing

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/paypal"
)

var testNow = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

type memState struct {
	subs          map[uint]*models.Subscription
	payments      []models.Payment
	reports       map[uint]*models.ManualPaymentReport
	events        map[string]*models.PayPalWebhookEvent
	notifications []models.Notification
	shops         map[uint]*models.Shop
	staff         []models.ShopStaff
	users         map[uint]*models.User
	nextID        uint
}

func (m *memState) clone() *memState {
	c := &memState{
		subs:          map[uint]*models.Subscription{},
		payments:      append([]models.Payment(nil), m.payments...),
		reports:       map[uint]*models.ManualPaymentReport{},
		events:        map[string]*models.PayPalWebhookEvent{},
		notifications: append([]models.Notification(nil), m.notifications...),
		shops:         map[uint]*models.Shop{},
		staff:         append([]models.ShopStaff(nil), m.staff...),
		users:         map[uint]*models.User{},
		nextID:        m.nextID,
	}
	for k, v := range m.subs {
		c.subs[k] = v.Clone()
	}
	for k, v := range m.reports {
		r := *v
		c.reports[k] = &r
	}
	for k, v := range m.events {
		e := *v
		c.events[k] = &e
	}
	for k, v := range m.shops {
		s := *v
		c.shops[k] = &s
	}
	for k, v := range m.users {
		u := *v
		c.users[k] = &u
	}
	return c
}

// memStore is a transactional in-memory Store. Transactions are serialized
// and roll back to a snapshot on error.
type memStore struct {
	mu    sync.Mutex
	state *memState
	fail  map[string]error
	// staleReads hides committed payments from idempotency lookups, like a
	// REPEATABLE READ snapshot taken before a concurrent commit.
	staleReads bool
}

func newMemStore() *memStore {
	return &memStore{
		state: &memState{
			subs:    map[uint]*models.Subscription{},
			reports: map[uint]*models.ManualPaymentReport{},
			events:  map[string]*models.PayPalWebhookEvent{},
			shops:   map[uint]*models.Shop{},
			users:   map[uint]*models.User{},
			nextID:  100,
		},
		fail: map[string]error{},
	}
}

func (m *memStore) Transaction(ctx context.Context, fn func(repos *repository.Repositories) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snapshot := m.state.clone()
	if err := fn(m.repos()); err != nil {
		m.state = snapshot
		return err
	}
	return nil
}

func (m *memStore) repos() *repository.Repositories {
	return &repository.Repositories{
		User:         memUsers{m},
		Shop:         memShops{m},
		Subscription: memSubs{m},
		Payment:      memPayments{m},
		ManualReport: memReports{m},
		WebhookEvent: memEvents{m},
		Notification: memNotifications{m},
	}
}

func (m *memStore) id() uint {
	m.state.nextID++
	return m.state.nextID
}

func (m *memStore) failOn(op string, err error) {
	m.fail[op] = err
}

// seeding and inspection helpers, called outside transactions

func (m *memStore) addOwner(ownerID uint) {
	m.state.users[ownerID] = &models.User{ID: ownerID, Role: models.ROLE_OWNER}
}

func (m *memStore) addShop(ownerID uint) uint {
	id := m.id()
	m.state.shops[id] = &models.Shop{ID: id, OwnerID: ownerID}
	return id
}

func (m *memStore) addStaff(shopID uint, role string) uint {
	userID := m.id()
	m.state.users[userID] = &models.User{ID: userID, Role: role}
	m.state.staff = append(m.state.staff, models.ShopStaff{ShopID: shopID, UserID: userID})
	return userID
}

func (m *memStore) assign(shopID, userID uint) {
	m.state.staff = append(m.state.staff, models.ShopStaff{ShopID: shopID, UserID: userID})
}

// seedUsage creates shops and staff for an owner.
func (m *memStore) seedUsage(ownerID uint, shops, staffPerShop int) []uint {
	m.addOwner(ownerID)
	var ids []uint
	for i := 0; i < shops; i++ {
		shopID := m.addShop(ownerID)
		ids = append(ids, shopID)
		for j := 0; j < staffPerShop; j++ {
			m.addStaff(shopID, models.ROLE_STAFF)
		}
	}
	return ids
}

func (m *memStore) putSubscription(sub *models.Subscription) {
	if sub.ID == 0 {
		sub.ID = m.id()
	}
	m.state.subs[sub.OwnerID] = sub.Clone()
}

func (m *memStore) subscription(ownerID uint) *models.Subscription {
	return m.state.subs[ownerID].Clone()
}

func (m *memStore) paymentsFor(ownerID uint) []models.Payment {
	var out []models.Payment
	for _, p := range m.state.payments {
		if p.OwnerID == ownerID {
			out = append(out, p)
		}
	}
	return out
}

func (m *memStore) notificationsFor(userID uint) []models.Notification {
	var out []models.Notification
	for _, n := range m.state.notifications {
		if n.UserID == userID {
			out = append(out, n)
		}
	}
	return out
}

func (m *memStore) checkFail(op string) error {
	if err, ok := m.fail[op]; ok {
		return err
	}
	return nil
}

type memUsers struct{ m *memStore }

func (r memUsers) GetByID(id uint) (*models.User, error) {
	u, ok := r.m.state.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *u
	return &c, nil
}

func (r memUsers) ListByRole(role string) ([]models.User, error) {
	var out []models.User
	for _, u := range r.m.state.users {
		if u.Role == role {
			out = append(out, *u)
		}
	}
	return out, nil
}

type memShops struct{ m *memStore }

func (r memShops) GetByID(id uint) (*models.Shop, error) {
	s, ok := r.m.state.shops[id]
	if !ok || s.DeletedAt.Valid {
		return nil, gorm.ErrRecordNotFound
	}
	c := *s
	return &c, nil
}

func (r memShops) ListActiveShopIDs(ownerID uint) ([]uint, error) {
	if err := r.m.checkFail("ListActiveShopIDs"); err != nil {
		return nil, err
	}
	var ids []uint
	for id, s := range r.m.state.shops {
		if s.OwnerID == ownerID && !s.DeletedAt.Valid {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r memShops) CountStaffAtShops(shopIDs []uint, ownerID uint) (int64, error) {
	in := map[uint]bool{}
	for _, id := range shopIDs {
		in[id] = true
	}
	seen := map[uint]bool{}
	for _, st := range r.m.state.staff {
		u, ok := r.m.state.users[st.UserID]
		if !in[st.ShopID] || !ok || u.Role != models.ROLE_STAFF || u.ID == ownerID {
			continue
		}
		seen[st.UserID] = true
	}
	return int64(len(seen)), nil
}

func (r memShops) IsOwnerAlsoStaff(ownerID uint) (bool, error) {
	for _, st := range r.m.state.staff {
		s, ok := r.m.state.shops[st.ShopID]
		if ok && !s.DeletedAt.Valid && s.OwnerID == ownerID && st.UserID == ownerID {
			return true, nil
		}
	}
	return false, nil
}

type memSubs struct{ m *memStore }

func (r memSubs) GetByOwnerID(ownerID uint, forUpdate bool) (*models.Subscription, error) {
	s, ok := r.m.state.subs[ownerID]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return s.Clone(), nil
}

func (r memSubs) GetByPayPalSubscriptionID(id string, forUpdate bool) (*models.Subscription, error) {
	for _, s := range r.m.state.subs {
		if s.PayPalSubscriptionID != nil && *s.PayPalSubscriptionID == id {
			return s.Clone(), nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memSubs) CreateIfNotExists(sub *models.Subscription) (bool, error) {
	if _, ok := r.m.state.subs[sub.OwnerID]; ok {
		return false, nil
	}
	sub.ID = r.m.id()
	r.m.state.subs[sub.OwnerID] = sub.Clone()
	return true, nil
}

func (r memSubs) Save(sub *models.Subscription) error {
	if err := r.m.checkFail("SaveSubscription"); err != nil {
		return err
	}
	r.m.state.subs[sub.OwnerID] = sub.Clone()
	return nil
}

func (r memSubs) UpdateLastAlertSentAt(id uint, at time.Time) error {
	for _, s := range r.m.state.subs {
		if s.ID == id {
			t := at
			s.LastAlertSentAt = &t
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type memPayments struct{ m *memStore }

func (r memPayments) Create(p *models.Payment) error {
	if err := r.m.checkFail("CreatePayment"); err != nil {
		return err
	}
	for _, existing := range r.m.state.payments {
		if existing.Provider == p.Provider && existing.ProviderPaymentID == p.ProviderPaymentID {
			return fmt.Errorf("ux_payments_provider_payment: %w", gorm.ErrDuplicatedKey)
		}
	}
	p.ID = r.m.id()
	p.CreatedAt = testNow
	r.m.state.payments = append(r.m.state.payments, *p)
	return nil
}

func (r memPayments) GetByProviderPaymentID(provider, id string) (*models.Payment, error) {
	if r.m.staleReads {
		return nil, gorm.ErrRecordNotFound
	}
	for _, p := range r.m.state.payments {
		if p.Provider == provider && p.ProviderPaymentID == id {
			c := p
			return &c, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r memPayments) CountByProviderReference(provider, reference string) (int64, error) {
	var n int64
	for _, p := range r.m.state.payments {
		if p.Provider == provider && p.ProviderReference == reference {
			n++
		}
	}
	return n, nil
}

func (r memPayments) ListByOwnerID(ownerID uint, offset, limit int) ([]models.Payment, error) {
	var out []models.Payment
	for i := len(r.m.state.payments) - 1; i >= 0; i-- {
		if r.m.state.payments[i].OwnerID == ownerID {
			out = append(out, r.m.state.payments[i])
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memPayments) CountByOwnerID(ownerID uint) (int64, error) {
	var n int64
	for _, p := range r.m.state.payments {
		if p.OwnerID == ownerID {
			n++
		}
	}
	return n, nil
}

type memReports struct{ m *memStore }

func (r memReports) Create(report *models.ManualPaymentReport) error {
	report.ID = r.m.id()
	report.CreatedAt = testNow
	c := *report
	r.m.state.reports[report.ID] = &c
	return nil
}

func (r memReports) GetByID(id uint, forUpdate bool) (*models.ManualPaymentReport, error) {
	rep, ok := r.m.state.reports[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	c := *rep
	return &c, nil
}

func (r memReports) Save(report *models.ManualPaymentReport) error {
	c := *report
	r.m.state.reports[report.ID] = &c
	return nil
}

func (r memReports) filtered(status string) []models.ManualPaymentReport {
	var out []models.ManualPaymentReport
	for _, rep := range r.m.state.reports {
		if status == "" || rep.Status == status {
			out = append(out, *rep)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

func (r memReports) List(status string, offset, limit int) ([]models.ManualPaymentReport, error) {
	out := r.filtered(status)
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r memReports) Count(status string) (int64, error) {
	return int64(len(r.filtered(status))), nil
}

type memEvents struct{ m *memStore }

func (r memEvents) CreateIfNotExists(ev *models.PayPalWebhookEvent) (bool, *models.PayPalWebhookEvent, error) {
	if existing, ok := r.m.state.events[ev.ProviderEventID]; ok {
		c := *existing
		return false, &c, nil
	}
	ev.ID = r.m.id()
	c := *ev
	r.m.state.events[ev.ProviderEventID] = &c
	out := c
	return true, &out, nil
}

func (r memEvents) MarkProcessed(id uint, processingError string) error {
	for _, ev := range r.m.state.events {
		if ev.ID == id {
			now := testNow
			ev.ProcessedAt = &now
			ev.ProcessingError = processingError
			return nil
		}
	}
	return gorm.ErrRecordNotFound
}

type memNotifications struct{ m *memStore }

func (r memNotifications) Insert(userID uint, notificationType, title, message string, payload map[string]interface{}) error {
	r.m.state.notifications = append(r.m.state.notifications, models.Notification{
		ID:      r.m.id(),
		UserID:  userID,
		Type:    notificationType,
		Title:   title,
		Message: message,
		Payload: payload,
	})
	return nil
}

// fakeProvider records calls and answers from canned responses.
type fakeProvider struct {
	mu sync.Mutex

	createdOrders []paypal.CreateOrderRequest
	captures      map[string]*paypal.Order
	captureCalls  int
	// afterCapture runs once PayPal has answered, outside the provider lock.
	afterCapture func(orderID string)

	createdSubs []paypal.CreateSubscriptionRequest
	nextSub     *paypal.Subscription
	remoteSubs  map[string]*paypal.Subscription
	cancelled   []string
	revised     map[string]string
	signatureOK bool
	verifyCalls int
	errs        map[string]error
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		captures:    map[string]*paypal.Order{},
		remoteSubs:  map[string]*paypal.Subscription{},
		revised:     map[string]string{},
		signatureOK: true,
		errs:        map[string]error{},
	}
}

func (f *fakeProvider) CreateOrder(ctx context.Context, in paypal.CreateOrderRequest) (*paypal.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["CreateOrder"]; err != nil {
		return nil, err
	}
	f.createdOrders = append(f.createdOrders, in)
	return &paypal.Order{
		ID:     "ORD-1",
		Status: paypal.OrderStatusCreated,
		Links:  []paypal.Link{{Href: "https://paypal.test/checkout?token=ORD-1", Rel: "approve"}},
	}, nil
}

func (f *fakeProvider) CaptureOrder(ctx context.Context, orderID string) (*paypal.Order, error) {
	f.mu.Lock()
	f.captureCalls++
	if err := f.errs["CaptureOrder"]; err != nil {
		f.mu.Unlock()
		return nil, err
	}
	o, ok := f.captures[orderID]
	hook := f.afterCapture
	f.mu.Unlock()
	if !ok {
		return nil, &paypal.APIError{Operation: "capture order", StatusCode: 404, Body: `{"name":"RESOURCE_NOT_FOUND"}`}
	}
	if hook != nil {
		hook(orderID)
	}
	return o, nil
}

func (f *fakeProvider) CreateSubscription(ctx context.Context, in paypal.CreateSubscriptionRequest) (*paypal.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["CreateSubscription"]; err != nil {
		return nil, err
	}
	f.createdSubs = append(f.createdSubs, in)
	sub := f.nextSub
	if sub == nil {
		sub = &paypal.Subscription{ID: "I-NEW", Status: paypal.SubscriptionStatusApprovalPending, PlanID: in.PlanID}
	}
	sub.CustomID = in.CustomID
	sub.Links = []paypal.Link{{Href: "https://paypal.test/approve/" + sub.ID, Rel: "approve"}}
	c := *sub
	f.remoteSubs[sub.ID] = &c
	return sub, nil
}

func (f *fakeProvider) GetSubscription(ctx context.Context, id string) (*paypal.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["GetSubscription"]; err != nil {
		return nil, err
	}
	s, ok := f.remoteSubs[id]
	if !ok {
		return nil, &paypal.APIError{Operation: "get subscription", StatusCode: 404, Body: `{"name":"RESOURCE_NOT_FOUND"}`}
	}
	c := *s
	return &c, nil
}

func (f *fakeProvider) setRemote(id, status, planID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.remoteSubs[id]
	if !ok {
		s = &paypal.Subscription{ID: id}
		f.remoteSubs[id] = s
	}
	s.Status = status
	s.PlanID = planID
}

func (f *fakeProvider) CancelSubscription(ctx context.Context, id, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["CancelSubscription"]; err != nil {
		return err
	}
	f.cancelled = append(f.cancelled, id)
	return nil
}

func (f *fakeProvider) ReviseSubscription(ctx context.Context, id, planID string) (*paypal.ReviseResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.errs["ReviseSubscription"]; err != nil {
		return nil, err
	}
	f.revised[id] = planID
	return &paypal.ReviseResult{PlanID: planID, Links: []paypal.Link{{Href: "https://paypal.test/revise/" + id, Rel: "approve"}}}, nil
}

func (f *fakeProvider) VerifyWebhookSignature(ctx context.Context, h paypal.WebhookHeaders, body []byte) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.verifyCalls++
	if err := f.errs["VerifyWebhookSignature"]; err != nil {
		return false, err
	}
	return f.signatureOK && strings.TrimSpace(h.TransmissionSig) != "", nil
}

type recordingScheduler struct {
	mu    sync.Mutex
	calls []planSyncTarget
}

func (r *recordingScheduler) SchedulePlanSync(ctx context.Context, ownerID uint, subscriptionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, planSyncTarget{ownerID: ownerID, subscriptionID: subscriptionID})
	return nil
}

type recordingCounters struct {
	mu     sync.Mutex
	counts map[string]int
}

func (c *recordingCounters) Incr(ctx context.Context, field string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.counts == nil {
		c.counts = map[string]int{}
	}
	c.counts[field]++
}

type recordingNotifier struct {
	reports []uint
	err     error
}

func (n *recordingNotifier) ManualReportSubmitted(ctx context.Context, report *models.ManualPaymentReport) error {
	n.reports = append(n.reports, report.ID)
	return n.err
}

func testConfig() Config {
	return Config{
		BaseCurrency:       "DOP",
		SettlementCurrency: "USD",
		ExchangeRate:       mustDecimal("60"),
		PlanIDs: map[string]string{
			"basic_1": "P-BASIC1",
			"basic_2": "P-BASIC2",
			"pro":     "P-PRO",
			"premium": "P-PREMIUM",
		},
		PublicDomain: "https://app.barberfox.test",
	}
}

type harness struct {
	store     *memStore
	provider  *fakeProvider
	scheduler *recordingScheduler
	counters  *recordingCounters
	notifier  *recordingNotifier
	svc       *Service
	now       time.Time
}

func newHarness(cfg Config) *harness {
	h := &harness{
		store:     newMemStore(),
		provider:  newFakeProvider(),
		scheduler: &recordingScheduler{},
		counters:  &recordingCounters{},
		notifier:  &recordingNotifier{},
		now:       testNow,
	}
	h.svc = NewService(h.store, h.provider, cfg,
		WithClock(func() time.Time { return h.now }),
		WithPlanSyncScheduler(h.scheduler),
		WithCounters(h.counters),
		WithAdminNotifier(h.notifier),
	)
	return h
}

func timePtr(t time.Time) *time.Time { return &t }

func strPtr(s string) *string { return &s }

// activeSubscription seeds a subscription whose period ends at end.
func (h *harness) activeSubscription(ownerID uint, end time.Time) *models.Subscription {
	sub := &models.Subscription{
		OwnerID:            ownerID,
		Status:             models.SubscriptionStatusActive,
		CurrentPeriodStart: timePtr(end.Add(-30 * 24 * time.Hour)),
		CurrentPeriodEnd:   timePtr(end),
		GracePeriodEnd:     timePtr(end.Add(5 * 24 * time.Hour)),
		BillingProvider:    models.BillingProviderNone,
	}
	h.store.putSubscription(sub)
	return sub
}

func mustDecimal(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
