package jobs

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/solkant/solkant/internal/mail"
	"github.com/solkant/solkant/internal/quotes"
)

type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// Client submits jobs to the queue. It sends mail asynchronously and
// dispatches quote deliveries.
type Client struct {
	client enqueuer
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// Send enqueues msg for delivery by the worker.
func (c *Client) Send(ctx context.Context, msg mail.Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	task, err := NewSendMailTask(msg)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueDefault)); err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskSendMail, err)
	}
	return nil
}

// EnqueueQuoteDelivery queues the email of a quote.
func (c *Client) EnqueueQuoteDelivery(ctx context.Context, d quotes.Delivery) error {
	task, err := NewQuoteDeliverTask(d)
	if err != nil {
		return err
	}
	if _, err := c.client.EnqueueContext(ctx, task, asynq.Queue(QueueCritical)); err != nil {
		return fmt.Errorf("enqueue %s: %w", TaskQuoteDeliver, err)
	}
	return nil
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var (
	_ mail.Sender       = (*Client)(nil)
	_ quotes.Dispatcher = (*Client)(nil)
)
