package jobs

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/solkant/solkant/internal/documents"
	jobmetrics "github.com/solkant/solkant/internal/jobs"
	"github.com/solkant/solkant/internal/mail"
	"github.com/solkant/solkant/internal/observability"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
)

const quoteEmailTemplate = "emails/quote_email.html"

// QuoteStore loads quotes and records their delivery.
type QuoteStore interface {
	Get(ctx context.Context, tenant shared.Tenant, id int64) (*quotes.Quote, error)
	MarkSent(ctx context.Context, tenant shared.Tenant, id int64) error
}

// QuoteDocuments renders the quote attachment.
type QuoteDocuments interface {
	Document(ctx context.Context, tenant shared.Tenant, q *quotes.Quote) (documents.QuoteDocument, error)
	PDF(ctx context.Context, tenant shared.Tenant, q *quotes.Quote) ([]byte, error)
}

// EmailRenderer renders an email body template.
type EmailRenderer interface {
	Execute(w io.Writer, name string, data any) error
}

// QuoteDeliveryJob emails a quote PDF to its client and marks the quote sent.
type QuoteDeliveryJob struct {
	Quotes    QuoteStore
	Documents QuoteDocuments
	Emails    EmailRenderer
	Sender    mail.Sender
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	Domain    *observability.Metrics
}

type quoteEmail struct {
	Document documents.QuoteDocument
}

// Handle processes TaskQuoteDeliver tasks.
func (j *QuoteDeliveryJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Quotes == nil || j.Documents == nil || j.Sender == nil || j.Emails == nil {
		return errors.New("quote delivery: handler not configured")
	}
	tracker := j.Metrics.Track(TaskQuoteDeliver)
	defer func() { err = tracker.End(err) }()

	var d quotes.Delivery
	if err := json.Unmarshal(t.Payload(), &d); err != nil {
		return fmt.Errorf("decode delivery payload: %v: %w", err, asynq.SkipRetry)
	}
	log := logger(j.Logger).With(slog.Int64("business_id", d.BusinessID), slog.Int64("quote_id", d.QuoteID))
	tenant := shared.Tenant{UserID: d.RequestedBy, BusinessID: d.BusinessID}

	q, err := j.Quotes.Get(ctx, tenant, d.QuoteID)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			j.Domain.QuoteDelivery("skipped")
			log.WarnContext(ctx, "quote vanished before delivery")
			return fmt.Errorf("quote %d: %w", d.QuoteID, asynq.SkipRetry)
		}
		return err
	}
	to := q.ClientEmail()
	if to == "" {
		to = d.To
	}
	if to == "" {
		j.Domain.QuoteDelivery("skipped")
		return fmt.Errorf("quote %s has no recipient: %w", q.QuoteNumber, asynq.SkipRetry)
	}

	doc, err := j.Documents.Document(ctx, tenant, q)
	if err != nil {
		j.Domain.QuoteDelivery("failed")
		return err
	}
	pdf, err := j.Documents.PDF(ctx, tenant, q)
	if err != nil {
		j.Domain.QuoteDelivery("failed")
		return err
	}
	var body bytes.Buffer
	if err := j.Emails.Execute(&body, quoteEmailTemplate, quoteEmail{Document: doc}); err != nil {
		j.Domain.QuoteDelivery("failed")
		return fmt.Errorf("render quote email: %w", err)
	}

	subject := "Votre devis " + doc.Number
	if doc.Issuer.Name != "" {
		subject += " - " + doc.Issuer.Name
	}
	if err := j.Sender.Send(ctx, mail.Message{
		To:          []string{to},
		ReplyTo:     doc.Issuer.Email,
		Subject:     subject,
		HTML:        body.String(),
		Attachments: []mail.Attachment{{Filename: doc.FileName(), Content: pdf}},
	}); err != nil {
		j.Domain.QuoteDelivery("failed")
		return fmt.Errorf("send quote %s: %w", doc.Number, err)
	}
	if err := j.Quotes.MarkSent(ctx, tenant, q.ID); err != nil {
		// The email is out; a retry would send it twice.
		log.ErrorContext(ctx, "mark quote sent", slog.Any("error", err))
		j.Domain.QuoteDelivery("sent")
		return nil
	}
	j.Domain.QuoteDelivery("sent")
	log.InfoContext(ctx, "quote delivered", slog.String("quote", doc.Number))
	return nil
}
