package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solkant/solkant/internal/documents"
	"github.com/solkant/solkant/internal/mail"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
)

type recordingEnqueuer struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (r *recordingEnqueuer) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if r.err != nil {
		return nil, r.err
	}
	r.tasks = append(r.tasks, task)
	r.opts = append(r.opts, opts)
	return &asynq.TaskInfo{ID: "task-1", Type: task.Type()}, nil
}

func (r *recordingEnqueuer) Close() error { return nil }

type recordingSender struct {
	sent []mail.Message
	err  error
}

func (s *recordingSender) Send(_ context.Context, msg mail.Message) error {
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, msg)
	return nil
}

func TestClientSendEnqueuesMail(t *testing.T) {
	enq := &recordingEnqueuer{}
	c := &Client{client: enq}

	err := c.Send(context.Background(), mail.Message{To: []string{"lea@example.com"}, Subject: "Bonjour", HTML: "<p>hi</p>"})
	require.NoError(t, err)
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskSendMail, enq.tasks[0].Type())

	var msg mail.Message
	require.NoError(t, json.Unmarshal(enq.tasks[0].Payload(), &msg))
	assert.Equal(t, "Bonjour", msg.Subject)
}

func TestClientSendRejectsInvalidMessage(t *testing.T) {
	enq := &recordingEnqueuer{}
	c := &Client{client: enq}

	err := c.Send(context.Background(), mail.Message{Subject: "x"})
	assert.ErrorIs(t, err, mail.ErrInvalidMessage)
	assert.Empty(t, enq.tasks)
}

func TestClientEnqueueQuoteDelivery(t *testing.T) {
	enq := &recordingEnqueuer{}
	c := &Client{client: enq}

	require.NoError(t, c.EnqueueQuoteDelivery(context.Background(), quotes.Delivery{BusinessID: 10, QuoteID: 7, RequestedBy: 1, To: "lea@example.com"}))
	require.Len(t, enq.tasks, 1)
	assert.Equal(t, TaskQuoteDeliver, enq.tasks[0].Type())
	assert.JSONEq(t, `{"business_id":10,"quote_id":7,"requested_by":1,"to":"lea@example.com"}`, string(enq.tasks[0].Payload()))

	enq.err = errors.New("redis down")
	assert.ErrorContains(t, c.EnqueueQuoteDelivery(context.Background(), quotes.Delivery{QuoteID: 8}), "enqueue quote:deliver")
}

func TestMailJobSkipsRetryOnBadPayload(t *testing.T) {
	job := NewMailJob(&recordingSender{}, nil, nil)
	err := job.Handle(context.Background(), asynq.NewTask(TaskSendMail, []byte("{")))
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func TestMailJobSends(t *testing.T) {
	sender := &recordingSender{}
	job := NewMailJob(sender, nil, nil)
	task, err := NewSendMailTask(mail.Message{To: []string{"a@b.fr"}, Subject: "s"})
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Len(t, sender.sent, 1)

	sender.err = errors.New("provider down")
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
}

type quoteStoreStub struct {
	quote    *quotes.Quote
	err      error
	marked   []int64
	markErr  error
	tenantOf shared.Tenant
}

func (s *quoteStoreStub) Get(_ context.Context, tenant shared.Tenant, _ int64) (*quotes.Quote, error) {
	s.tenantOf = tenant
	return s.quote, s.err
}

func (s *quoteStoreStub) MarkSent(_ context.Context, _ shared.Tenant, id int64) error {
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, id)
	return nil
}

type documentsStub struct{ pdfErr error }

func (documentsStub) Document(_ context.Context, _ shared.Tenant, q *quotes.Quote) (documents.QuoteDocument, error) {
	return documents.Build(nil, q), nil
}

func (d documentsStub) PDF(context.Context, shared.Tenant, *quotes.Quote) ([]byte, error) {
	if d.pdfErr != nil {
		return nil, d.pdfErr
	}
	return []byte("%PDF-1.4"), nil
}

type emailStub struct{}

func (emailStub) Execute(w io.Writer, name string, data any) error {
	_, err := fmt.Fprintf(w, "%s:%s", name, data.(quoteEmail).Document.Number)
	return err
}

func deliveryTask(t *testing.T) *asynq.Task {
	t.Helper()
	task, err := NewQuoteDeliverTask(quotes.Delivery{BusinessID: 10, QuoteID: 7, RequestedBy: 1, To: "old@example.com"})
	require.NoError(t, err)
	return task
}

func sentQuote() *quotes.Quote {
	return &quotes.Quote{
		ID:          7,
		BusinessID:  10,
		QuoteNumber: "DEVIS-2025-001",
		Status:      quotes.StatusDraft,
		Client:      &quotes.ClientRef{FirstName: "Léa", LastName: "Martin", Email: "lea@example.com"},
		CreatedAt:   time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
	}
}

func TestQuoteDeliverySendsPDFAndMarksSent(t *testing.T) {
	store := &quoteStoreStub{quote: sentQuote()}
	sender := &recordingSender{}
	job := &QuoteDeliveryJob{Quotes: store, Documents: documentsStub{}, Emails: emailStub{}, Sender: sender}

	require.NoError(t, job.Handle(context.Background(), deliveryTask(t)))

	assert.Equal(t, shared.Tenant{UserID: 1, BusinessID: 10}, store.tenantOf)
	require.Len(t, sender.sent, 1)
	msg := sender.sent[0]
	assert.Equal(t, []string{"lea@example.com"}, msg.To)
	assert.Equal(t, "Votre devis DEVIS-2025-001", msg.Subject)
	assert.Equal(t, "emails/quote_email.html:DEVIS-2025-001", msg.HTML)
	require.Len(t, msg.Attachments, 1)
	assert.Equal(t, "DEVIS-2025-001.pdf", msg.Attachments[0].Filename)
	assert.Equal(t, []int64{7}, store.marked)
}

func TestQuoteDeliveryMissingQuoteSkipsRetry(t *testing.T) {
	job := &QuoteDeliveryJob{Quotes: &quoteStoreStub{err: shared.ErrNotFound}, Documents: documentsStub{}, Emails: emailStub{}, Sender: &recordingSender{}}
	assert.ErrorIs(t, job.Handle(context.Background(), deliveryTask(t)), asynq.SkipRetry)
}

func TestQuoteDeliveryRetriesOnRenderFailure(t *testing.T) {
	store := &quoteStoreStub{quote: sentQuote()}
	sender := &recordingSender{}
	job := &QuoteDeliveryJob{Quotes: store, Documents: documentsStub{pdfErr: errors.New("gotenberg down")}, Emails: emailStub{}, Sender: sender}

	err := job.Handle(context.Background(), deliveryTask(t))
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Empty(t, sender.sent)
	assert.Empty(t, store.marked)
}

func TestQuoteDeliveryDoesNotResendWhenMarkFails(t *testing.T) {
	store := &quoteStoreStub{quote: sentQuote(), markErr: errors.New("db down")}
	sender := &recordingSender{}
	job := &QuoteDeliveryJob{Quotes: store, Documents: documentsStub{}, Emails: emailStub{}, Sender: sender}

	assert.NoError(t, job.Handle(context.Background(), deliveryTask(t)))
	assert.Len(t, sender.sent, 1)
}

func TestQuoteDeliveryDeletedClientFallsBackToRequestedAddress(t *testing.T) {
	q := sentQuote()
	q.Client = nil
	sender := &recordingSender{}
	job := &QuoteDeliveryJob{Quotes: &quoteStoreStub{quote: q}, Documents: documentsStub{}, Emails: emailStub{}, Sender: sender}

	require.NoError(t, job.Handle(context.Background(), deliveryTask(t)))
	assert.Equal(t, []string{"old@example.com"}, sender.sent[0].To)
}

type purgerStub struct{ n int64 }

func (p purgerStub) PurgeExpiredTokens(context.Context) (int64, error) { return p.n, nil }

type cleanerStub struct {
	olderThan time.Duration
	err       error
}

func (c *cleanerStub) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.olderThan = olderThan
	return 2, c.err
}

func TestPurgeJob(t *testing.T) {
	cleaner := &cleanerStub{}
	job := &PurgeJob{Tokens: purgerStub{n: 3}, Keys: cleaner}

	require.NoError(t, job.Handle(context.Background(), NewMaintenancePurgeTask()))
	assert.Equal(t, IdempotencyRetention, cleaner.olderThan)

	cleaner.err = errors.New("db down")
	assert.Error(t, job.Handle(context.Background(), NewMaintenancePurgeTask()))
}

type inspectorStub struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (i inspectorStub) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if i.err != nil {
		return nil, i.err
	}
	info, ok := i.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthReportsQueues(t *testing.T) {
	h := NewHandler(inspectorStub{infos: map[string]*asynq.QueueInfo{
		QueueCritical: {Queue: QueueCritical, Pending: 2, Retry: 1},
	}}, nil)

	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Queues []queueHealth `json:"queues"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Queues, 2)
	assert.Equal(t, queueHealth{Queue: QueueCritical, Pending: 2, Retry: 1}, body.Queues[0])
	assert.Equal(t, queueHealth{Queue: QueueDefault}, body.Queues[1])
}

func TestHealthUnavailable(t *testing.T) {
	h := NewHandler(inspectorStub{err: errors.New("dial tcp")}, nil)
	rec := httptest.NewRecorder()
	h.health(rec, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
