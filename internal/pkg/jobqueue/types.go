package jobqueue

import (
	"encoding/json"
	"time"
)

// JobType defines the type of job
type JobType string

const (
	JobTypePlanSync         JobType = "plan_sync"
	JobTypeManualReportMail JobType = "manual_report_mail"
)

// JobStatus defines the status of a job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
	JobStatusRetrying   JobStatus = "retrying"
)

// Job represents a background job
type Job struct {
	ID          string                 `json:"id"`
	Type        JobType                `json:"type"`
	Status      JobStatus              `json:"status"`
	Payload     map[string]interface{} `json:"payload"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
	ProcessedAt *time.Time             `json:"processed_at,omitempty"`
	CompletedAt *time.Time             `json:"completed_at,omitempty"`
	ErrorMsg    string                 `json:"error_msg,omitempty"`
	RetryCount  int                    `json:"retry_count"`
	MaxRetries  int                    `json:"max_retries"`
}

// PlanSyncJobPayload identifies the provider subscription to re-read.
type PlanSyncJobPayload struct {
	OwnerID        uint   `json:"owner_id"`
	SubscriptionID string `json:"subscription_id"`
}

// ToMap converts the payload to a map for storage
func (p PlanSyncJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"owner_id":        p.OwnerID,
		"subscription_id": p.SubscriptionID,
	}
}

func PlanSyncJobPayloadFromMap(data map[string]interface{}) (*PlanSyncJobPayload, error) {
	var payload PlanSyncJobPayload
	err := fromMap(data, &payload)
	return &payload, err
}

// ManualReportMailJobPayload carries what the admin e-mail shows.
type ManualReportMailJobPayload struct {
	ReportID      uint   `json:"report_id"`
	OwnerID       uint   `json:"owner_id"`
	Amount        string `json:"amount"`
	Currency      string `json:"currency"`
	ReferenceText string `json:"reference_text"`
	ProofURL      string `json:"proof_url"`
}

func (p ManualReportMailJobPayload) ToMap() map[string]interface{} {
	return map[string]interface{}{
		"report_id":      p.ReportID,
		"owner_id":       p.OwnerID,
		"amount":         p.Amount,
		"currency":       p.Currency,
		"reference_text": p.ReferenceText,
		"proof_url":      p.ProofURL,
	}
}

func ManualReportMailJobPayloadFromMap(data map[string]interface{}) (*ManualReportMailJobPayload, error) {
	var payload ManualReportMailJobPayload
	err := fromMap(data, &payload)
	return &payload, err
}

func fromMap(data map[string]interface{}, out interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return json.Unmarshal(jsonData, out)
}

// IsRetryable checks if the job can be retried
func (j *Job) IsRetryable() bool {
	return j.Status == JobStatusFailed && j.RetryCount < j.MaxRetries
}

// MarkAsProcessing updates the job status to processing
func (j *Job) MarkAsProcessing() {
	now := time.Now()
	j.Status = JobStatusProcessing
	j.UpdatedAt = now
	j.ProcessedAt = &now
}

// MarkAsCompleted updates the job status to completed
func (j *Job) MarkAsCompleted() {
	now := time.Now()
	j.Status = JobStatusCompleted
	j.UpdatedAt = now
	j.CompletedAt = &now
	j.ErrorMsg = ""
}

// MarkAsFailed updates the job status to failed
func (j *Job) MarkAsFailed(errorMsg string) {
	j.Status = JobStatusFailed
	j.UpdatedAt = time.Now()
	j.ErrorMsg = errorMsg
	j.RetryCount++
}

// MarkAsRetrying updates the job status to retrying
func (j *Job) MarkAsRetrying() {
	j.Status = JobStatusRetrying
	j.UpdatedAt = time.Now()
}
