package billing

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofiber/fiber/v2/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/ManuelReschke/BarberFox/app/models"
	"github.com/ManuelReschke/BarberFox/app/repository"
	"github.com/ManuelReschke/BarberFox/internal/pkg/entitlements"
)

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID  uint
	IsAdmin bool
}

// ManualReportInput is the canonical shape of a bank-transfer claim.
type ManualReportInput struct {
	OwnerID       uint
	Amount        decimal.Decimal
	Currency      string
	ReferenceText string
	ProofURL      string
}

type ManualDecision struct {
	Report       *models.ManualPaymentReport `json:"report"`
	Subscription *models.Subscription        `json:"subscription,omitempty"`
	State        entitlements.State          `json:"state,omitempty"`
	Payment      *models.Payment             `json:"payment,omitempty"`
}

type ManualReportPage struct {
	Reports []models.ManualPaymentReport `json:"reports"`
	Page    int                          `json:"page"`
	PerPage int                          `json:"per_page"`
	Total   int64                        `json:"total"`
}

func manualPaymentID(reportID uint) string {
	return fmt.Sprintf("manual-report:%d", reportID)
}

// SubmitManualReport stores a pending transfer claim and flips the owner's
// subscription to pending_verification in the same transaction.
func (s *Service) SubmitManualReport(ctx context.Context, actor Actor, in ManualReportInput) (*models.ManualPaymentReport, error) {
	if in.OwnerID == 0 {
		return nil, validationError("owner id is required")
	}
	if !actor.IsAdmin && actor.UserID != in.OwnerID {
		return nil, forbiddenError("only the owner or an admin can report a payment")
	}
	if !in.Amount.IsPositive() {
		return nil, validationError("amount must be greater than zero")
	}
	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = s.cfg.BaseCurrency
	}
	reference := strings.TrimSpace(in.ReferenceText)
	proof := strings.TrimSpace(in.ProofURL)
	if reference == "" && proof == "" {
		return nil, validationError("a transfer reference or a proof link is required")
	}

	report := &models.ManualPaymentReport{
		OwnerID:       in.OwnerID,
		SubmittedBy:   actor.UserID,
		Amount:        in.Amount.Round(2),
		Currency:      currency,
		ReferenceText: reference,
		ProofURL:      proof,
		Status:        models.ManualReportStatusPending,
	}
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		sub, err := s.loadSubscription(repos, in.OwnerID, true)
		if err != nil {
			return err
		}
		sub.Status = models.SubscriptionStatusPendingVerification
		if err := repos.Subscription.Save(sub); err != nil {
			return fmt.Errorf("mark subscription pending verification: %w", err)
		}
		if err := repos.ManualReport.Create(report); err != nil {
			return fmt.Errorf("create manual report: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.incr(ctx, CounterManualReports)
	log.Infof("[Billing] Manual payment report %d submitted for owner %d (%s %s)", report.ID, report.OwnerID, report.Amount.StringFixed(2), report.Currency)
	if s.notifier != nil {
		if err := s.notifier.ManualReportSubmitted(ctx, report); err != nil {
			log.Warnf("[Billing] Failed to notify admins about manual report %d: %v", report.ID, err)
		}
	}
	return report, nil
}

// DecideManualReport approves or rejects a pending report exactly once.
// Approval renews and writes the ledger row; rejection leaves the
// subscription untouched.
func (s *Service) DecideManualReport(ctx context.Context, actor Actor, reportID uint, approve bool, note string) (*ManualDecision, error) {
	if !actor.IsAdmin {
		return nil, forbiddenError("only admins can decide manual payment reports")
	}
	if reportID == 0 {
		return nil, validationError("report id is required")
	}

	var out *ManualDecision
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		report, err := repos.ManualReport.GetByID(reportID, true)
		if err != nil {
			if isNotFound(err) {
				return notFoundError("manual payment report %d not found", reportID)
			}
			return fmt.Errorf("load manual report: %w", err)
		}
		if report.IsDecided() {
			return conflictError("manual payment report %d is already %s", reportID, report.Status)
		}

		now := s.now()
		adminID := actor.UserID
		report.DecidedAt = &now
		report.DecisionNote = strings.TrimSpace(note)
		out = &ManualDecision{Report: report}

		if !approve {
			report.Status = models.ManualReportStatusRejected
			report.RejectedBy = &adminID
			return repos.ManualReport.Save(report)
		}

		res, err := s.recordPayment(repos, report.OwnerID, renewal{}, &models.Payment{
			Provider:          models.PaymentProviderManual,
			ProviderPaymentID: manualPaymentID(report.ID),
			ProviderReference: report.ReferenceText,
			Status:            PaymentStatusApproved,
			Amount:            report.Amount,
			Currency:          report.Currency,
			Metadata: datatypes.JSONMap{
				"report_id":   report.ID,
				"approved_by": adminID,
				"reference":   report.ReferenceText,
				"proof_url":   report.ProofURL,
			},
			PaidAt: now.UTC(),
		})
		if err != nil {
			return err
		}
		report.Status = models.ManualReportStatusApproved
		report.ApprovedBy = &adminID
		if err := repos.ManualReport.Save(report); err != nil {
			return fmt.Errorf("save manual report: %w", err)
		}
		out.Subscription = res.Subscription
		out.State = res.State
		out.Payment = res.Payment
		return nil
	})
	if err != nil {
		return nil, err
	}
	if approve {
		s.incr(ctx, CounterPaymentsManual)
	}
	log.Infof("[Billing] Manual payment report %d %s by admin %d", reportID, out.Report.Status, actor.UserID)
	return out, nil
}

// ListManualReports lists reports for admins, optionally filtered by status.
func (s *Service) ListManualReports(ctx context.Context, actor Actor, status string, page, perPage int) (*ManualReportPage, error) {
	if !actor.IsAdmin {
		return nil, forbiddenError("only admins can list manual payment reports")
	}
	status = strings.ToLower(strings.TrimSpace(status))
	switch status {
	case "", models.ManualReportStatusPending, models.ManualReportStatusApproved, models.ManualReportStatusRejected:
	default:
		return nil, validationError("invalid status %q", status)
	}
	page, perPage = normalizePage(page, perPage)

	out := &ManualReportPage{Page: page, PerPage: perPage}
	err := s.store.Transaction(ctx, func(repos *repository.Repositories) error {
		total, err := repos.ManualReport.Count(status)
		if err != nil {
			return err
		}
		reports, err := repos.ManualReport.List(status, (page-1)*perPage, perPage)
		if err != nil {
			return err
		}
		out.Total = total
		out.Reports = reports
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out.Reports == nil {
		out.Reports = []models.ManualPaymentReport{}
	}
	return out, nil
}
