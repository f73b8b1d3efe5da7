package jobqueue

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/internal/pkg/mail"
)

// PlanSyncer re-reads a provider subscription and stores its plan.
type PlanSyncer interface {
	SyncPlanFromProvider(ctx context.Context, ownerID uint, subscriptionID string) error
}

// MailSender delivers one HTML e-mail.
type MailSender interface {
	Send(to, subject, body string) error
}

// SchedulePlanSync enqueues a plan_sync job for the billing engine.
func (q *Queue) SchedulePlanSync(ctx context.Context, ownerID uint, subscriptionID string) error {
	_, err := q.EnqueueJob(ctx, JobTypePlanSync, PlanSyncJobPayload{
		OwnerID:        ownerID,
		SubscriptionID: subscriptionID,
	}.ToMap())
	return err
}

// AdminNotifier queues the admin e-mail about a new manual payment report.
type AdminNotifier struct {
	queue *Queue
	to    string
}

func NewAdminNotifier(q *Queue, adminEmail string) *AdminNotifier {
	return &AdminNotifier{queue: q, to: strings.TrimSpace(adminEmail)}
}

func (n *AdminNotifier) ManualReportSubmitted(ctx context.Context, report *models.ManualPaymentReport) error {
	if n.to == "" {
		log.Debugf("[JobQueue] No admin e-mail configured, skipping notice for report %d", report.ID)
		return nil
	}
	_, err := n.queue.EnqueueJob(ctx, JobTypeManualReportMail, ManualReportMailJobPayload{
		ReportID:      report.ID,
		OwnerID:       report.OwnerID,
		Amount:        report.Amount.StringFixed(2),
		Currency:      report.Currency,
		ReferenceText: report.ReferenceText,
		ProofURL:      report.ProofURL,
	}.ToMap())
	return err
}

// RegisterBillingHandlers wires the billing job types to their processors.
// A nil sender leaves manual report mails unhandled.
func RegisterBillingHandlers(q *Queue, syncer PlanSyncer, sender MailSender, adminEmail, reviewURL string) {
	q.Handle(JobTypePlanSync, func(ctx context.Context, job *Job) error {
		payload, err := PlanSyncJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid plan sync payload: %w", err)
		}
		return syncer.SyncPlanFromProvider(ctx, payload.OwnerID, payload.SubscriptionID)
	})

	if sender == nil {
		return
	}
	q.Handle(JobTypeManualReportMail, func(ctx context.Context, job *Job) error {
		payload, err := ManualReportMailJobPayloadFromMap(job.Payload)
		if err != nil {
			return fmt.Errorf("invalid manual report mail payload: %w", err)
		}
		subject, body, err := mail.ManualReportMessage(mail.ManualReport{
			ReportID:      payload.ReportID,
			OwnerID:       payload.OwnerID,
			Amount:        payload.Amount,
			Currency:      payload.Currency,
			ReferenceText: payload.ReferenceText,
			ProofURL:      payload.ProofURL,
			ReviewURL:     reviewURL,
		})
		if err != nil {
			return err
		}
		return sender.Send(adminEmail, subject, body)
	})
}
