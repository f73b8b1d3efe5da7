package billing

import (
	"fmt"
	"time"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/entitlements"
)

// evaluate derives the state and sends the daily expiry notification when
// the subscription is not active.
//
// Deduplication is best-effort: two concurrent readers can both observe no
// alert for today and each insert one. Callers must not rely on exactly-once.
func (s *Service) evaluate(repos *repository.Repositories, sub *models.Subscription) (entitlements.State, error) {
	now := s.now()
	state := entitlements.DeriveState(now, sub.CurrentPeriodEnd, sub.GracePeriodEnd)
	if !entitlements.NeedsExpiryAlert(state, sub.LastAlertSentAt, now) {
		return state, nil
	}

	notificationType, title, message := expiryNotice(state, sub)
	payload := map[string]interface{}{
		"state":              string(state),
		"current_period_end": formatTime(sub.CurrentPeriodEnd),
		"grace_period_end":   formatTime(sub.GracePeriodEnd),
	}
	if err := repos.Notification.Insert(sub.OwnerID, notificationType, title, message, payload); err != nil {
		return state, fmt.Errorf("insert expiry notification: %w", err)
	}
	if err := repos.Subscription.UpdateLastAlertSentAt(sub.ID, now); err != nil {
		return state, fmt.Errorf("stamp expiry notification: %w", err)
	}
	sub.LastAlertSentAt = &now
	return state, nil
}

func expiryNotice(state entitlements.State, sub *models.Subscription) (string, string, string) {
	if state == entitlements.StateGrace {
		return models.NotificationTypeSubscriptionGrace,
			"Tu suscripción ha vencido",
			fmt.Sprintf("Tu período pagado terminó. Renueva antes del %s para evitar el bloqueo.", formatDate(sub.GracePeriodEnd))
	}
	return models.NotificationTypeSubscriptionBlocked,
		"Tu suscripción está bloqueada",
		"El período de gracia terminó. Renueva tu plan para seguir gestionando reservas y personal."
}

func formatTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.UTC().Format("2006-01-02")
}
