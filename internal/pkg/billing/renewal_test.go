package billing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
)

func renewOwner(h *harness, ownerID uint, r renewal) (*models.Subscription, error) {
	var sub *models.Subscription
	err := h.store.Transaction(context.Background(), func(repos *repository.Repositories) error {
		var err error
		sub, err = h.svc.renew(repos, ownerID, r)
		return err
	})
	return sub, err
}

func TestRenew_EarlyRenewalKeepsRemainingTime(t *testing.T) {
	h := newHarness(testConfig())
	end := testNow.Add(10 * 24 * time.Hour)
	h.activeSubscription(7, end)

	sub, err := renewOwner(h, 7, renewal{})
	require.NoError(t, err)
	assert.True(t, sub.CurrentPeriodStart.Equal(end))
	assert.True(t, sub.CurrentPeriodEnd.Equal(end.Add(30*24*time.Hour)))
	assert.True(t, sub.GracePeriodEnd.Equal(end.Add(35*24*time.Hour)))
}

func TestRenew_ExpiredRestartsFromNow(t *testing.T) {
	h := newHarness(testConfig())
	h.activeSubscription(7, testNow.Add(-20*24*time.Hour))
	pending := h.store.subscription(7)
	pending.Status = models.SubscriptionStatusPendingVerification
	h.store.putSubscription(pending)

	sub, err := renewOwner(h, 7, renewal{})
	require.NoError(t, err)
	assert.Equal(t, models.SubscriptionStatusActive, sub.Status)
	assert.True(t, sub.CurrentPeriodStart.Equal(testNow))
	assert.True(t, sub.CurrentPeriodEnd.Equal(testNow.Add(30*24*time.Hour)))
}

func TestRenew_IsMonotonic(t *testing.T) {
	h := newHarness(testConfig())
	h.activeSubscription(7, testNow.Add(-3*24*time.Hour))

	prev := h.store.subscription(7).CurrentPeriodEnd
	for i := 0; i < 4; i++ {
		sub, err := renewOwner(h, 7, renewal{})
		require.NoError(t, err)
		assert.False(t, sub.CurrentPeriodEnd.Before(*prev))
		assert.True(t, sub.GracePeriodEnd.Equal(sub.CurrentPeriodEnd.Add(5*24*time.Hour)))
		prev = sub.CurrentPeriodEnd
		h.now = h.now.Add(time.Duration(i) * 24 * time.Hour)
	}
}

func TestRenew_RecurringPlanResolution(t *testing.T) {
	t.Run("pending plan wins over usage", func(t *testing.T) {
		h := newHarness(testConfig())
		h.store.seedUsage(7, 1, 1)
		sub := h.activeSubscription(7, testNow)
		sub.PendingPlanCode = strPtr("premium")
		h.store.putSubscription(sub)

		got, err := renewOwner(h, 7, renewal{recurring: true})
		require.NoError(t, err)
		assert.Equal(t, "premium", got.PlanCodeValue())
		assert.Nil(t, got.PendingPlanCode)
		assert.Equal(t, models.BillingProviderPayPal, got.BillingProvider)
	})

	t.Run("usage tier without pending plan", func(t *testing.T) {
		h := newHarness(testConfig())
		h.store.seedUsage(7, 2, 2)
		h.activeSubscription(7, testNow)

		got, err := renewOwner(h, 7, renewal{recurring: true})
		require.NoError(t, err)
		assert.Equal(t, "pro", got.PlanCodeValue())
	})

	t.Run("explicit plan wins", func(t *testing.T) {
		h := newHarness(testConfig())
		h.store.seedUsage(7, 1, 1)
		sub := h.activeSubscription(7, testNow)
		sub.PendingPlanCode = strPtr("premium")
		h.store.putSubscription(sub)

		got, err := renewOwner(h, 7, renewal{planCode: "basic_2", recurring: true})
		require.NoError(t, err)
		assert.Equal(t, "basic_2", got.PlanCodeValue())
	})

	t.Run("non recurring keeps pending plan", func(t *testing.T) {
		h := newHarness(testConfig())
		sub := h.activeSubscription(7, testNow)
		sub.PendingPlanCode = strPtr("premium")
		h.store.putSubscription(sub)

		got, err := renewOwner(h, 7, renewal{})
		require.NoError(t, err)
		assert.Equal(t, "premium", got.PendingPlanCodeValue())
		assert.Nil(t, got.PlanCode)
	})
}

func TestRenew_RollsBackWithFailedLedgerInsert(t *testing.T) {
	h := newHarness(testConfig())
	end := testNow.Add(2 * 24 * time.Hour)
	h.activeSubscription(7, end)
	h.store.failOn("CreatePayment", errors.New("disk full"))

	err := h.store.Transaction(context.Background(), func(repos *repository.Repositories) error {
		_, err := h.svc.recordPayment(repos, 7, renewal{}, &models.Payment{
			Provider:          models.PaymentProviderManual,
			ProviderPaymentID: "manual-report:1",
			Amount:            mustDecimal("1500"),
			Currency:          "DOP",
			PaidAt:            testNow,
		})
		return err
	})
	require.Error(t, err)
	assert.True(t, h.store.subscription(7).CurrentPeriodEnd.Equal(end))
	assert.Empty(t, h.store.paymentsFor(7))
}
