package billing

// Counter fields incremented through Counters.
const (
	CounterWebhookReceived      = "webhook_received"
	CounterWebhookInvalid       = "webhook_invalid_signature"
	CounterWebhookDuplicate     = "webhook_duplicate"
	CounterWebhookFailed        = "webhook_failed"
	CounterPaymentsPayPal       = "payments_paypal"
	CounterPaymentsSubscription = "payments_paypal_subscription"
	CounterPaymentsManual       = "payments_manual"
	CounterManualReports        = "manual_reports_submitted"
)
