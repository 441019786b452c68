package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"

	"github.com/solkant/solkant/internal/mail"
	"github.com/solkant/solkant/internal/quotes"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueCritical carries customer-facing deliveries.
	QueueCritical = "critical"

	// TaskSendMail sends a transactional email.
	TaskSendMail = "mail:send"
	// TaskQuoteDeliver renders a quote PDF and emails it to the client.
	TaskQuoteDeliver = "quote:deliver"
	// TaskMaintenancePurge removes expired reset tokens and idempotency keys.
	TaskMaintenancePurge = "maintenance:purge"
)

// NewSendMailTask constructs a mail task.
func NewSendMailTask(msg mail.Message) (*asynq.Task, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskSendMail, data, asynq.MaxRetry(5)), nil
}

// NewQuoteDeliverTask constructs a quote delivery task.
func NewQuoteDeliverTask(d quotes.Delivery) (*asynq.Task, error) {
	data, err := json.Marshal(d)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuoteDeliver, data, asynq.MaxRetry(5)), nil
}

// NewMaintenancePurgeTask constructs the nightly purge task.
func NewMaintenancePurgeTask() *asynq.Task {
	return asynq.NewTask(TaskMaintenancePurge, nil, asynq.MaxRetry(3))
}
