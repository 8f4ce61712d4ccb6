package jobs

import (
	"encoding/json"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSendEmail is the task type for sending transactional emails.
	TaskTypeSendEmail = "mail:send"
	// TaskSettlementBackfill re-runs closing settlement over closed proposals.
	TaskSettlementBackfill = "settlement:backfill"
	// TaskFinanceMarkOverdue flags pending transactions past their due date.
	TaskFinanceMarkOverdue = "finance:mark_overdue"
)

// SendEmailPayload describes the information required to send an email.
type SendEmailPayload struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Body    string `json:"body"`
}

// NewSendEmailTask constructs an Asynq task.
func NewSendEmailTask(payload SendEmailPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeSendEmail, data, asynq.MaxRetry(5)), nil
}

// AgencyPayload scopes a maintenance task to one agency. A nil AgencyID covers every agency.
type AgencyPayload struct {
	AgencyID *uuid.UUID `json:"agency_id,omitempty"`
}

// NewSettlementBackfillTask constructs the backfill task.
func NewSettlementBackfillTask(agencyID *uuid.UUID) (*asynq.Task, error) {
	return newAgencyTask(TaskSettlementBackfill, agencyID)
}

// NewMarkOverdueTask constructs the overdue sweep task.
func NewMarkOverdueTask(agencyID *uuid.UUID) (*asynq.Task, error) {
	return newAgencyTask(TaskFinanceMarkOverdue, agencyID)
}

func newAgencyTask(typ string, agencyID *uuid.UUID) (*asynq.Task, error) {
	data, err := json.Marshal(AgencyPayload{AgencyID: agencyID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(typ, data), nil
}

func decodeAgencyPayload(t *asynq.Task) (AgencyPayload, error) {
	var payload AgencyPayload
	if len(t.Payload()) == 0 {
		return payload, nil
	}
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, err
	}
	return payload, nil
}
