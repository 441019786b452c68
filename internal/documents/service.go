package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/observability"
	"github.com/solkant/solkant/internal/quotes"
	"github.com/solkant/solkant/internal/shared"
)

// ErrForeignQuote is returned when a quote does not belong to the tenant.
var ErrForeignQuote = errors.New("documents: quote belongs to another business")

// BusinessSource loads the issuer of a document.
type BusinessSource interface {
	Get(ctx context.Context, businessID int64) (*businesses.Business, error)
}

// Service renders quote previews and PDFs.
type Service struct {
	businesses BusinessSource
	html       *HTMLRenderer
	engines    []PDFEngine
	metrics    *observability.Metrics
	logger     *slog.Logger
	group      singleflight.Group
}

// NewService constructs a Service. Engines are tried in order until one
// succeeds.
func NewService(businesses BusinessSource, html *HTMLRenderer, metrics *observability.Metrics, logger *slog.Logger, engines ...PDFEngine) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{businesses: businesses, html: html, engines: engines, metrics: metrics, logger: logger}
}

// Document loads the issuer and projects q.
func (s *Service) Document(ctx context.Context, tenant shared.Tenant, q *quotes.Quote) (QuoteDocument, error) {
	if q == nil || q.BusinessID != tenant.BusinessID {
		return QuoteDocument{}, ErrForeignQuote
	}
	b, err := s.businesses.Get(ctx, tenant.BusinessID)
	if err != nil {
		return QuoteDocument{}, fmt.Errorf("load issuer: %w", err)
	}
	return Build(b, q), nil
}

// Preview renders the HTML version of q.
func (s *Service) Preview(ctx context.Context, tenant shared.Tenant, q *quotes.Quote) ([]byte, error) {
	doc, err := s.Document(ctx, tenant, q)
	if err != nil {
		return nil, err
	}
	return s.html.Render(doc)
}

// PDF renders q as PDF. Concurrent requests for the same revision of a quote
// share one rendering. The shared rendering ignores the cancellation of
// whichever request started it; each caller stops waiting when its own ctx ends.
func (s *Service) PDF(ctx context.Context, tenant shared.Tenant, q *quotes.Quote) ([]byte, error) {
	doc, err := s.Document(ctx, tenant, q)
	if err != nil {
		return nil, err
	}
	key := fmt.Sprintf("%d:%d:%d", q.BusinessID, q.ID, q.UpdatedAt.UnixNano())
	renderCtx := context.WithoutCancel(ctx)
	ch := s.group.DoChan(key, func() (any, error) {
		return s.render(renderCtx, doc)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (s *Service) render(ctx context.Context, doc QuoteDocument) ([]byte, error) {
	if len(s.engines) == 0 {
		return nil, errors.New("documents: no pdf engine configured")
	}
	var errs []error
	for _, engine := range s.engines {
		start := time.Now()
		out, err := engine.Render(ctx, doc)
		if err == nil {
			s.metrics.ObservePDFRender(engine.Name(), time.Since(start))
			return out, nil
		}
		s.logger.WarnContext(ctx, "pdf engine failed",
			slog.String("engine", engine.Name()),
			slog.String("quote", doc.Number),
			slog.Any("error", err),
		)
		errs = append(errs, fmt.Errorf("%s: %w", engine.Name(), err))
	}
	return nil, fmt.Errorf("render quote %s: %w", doc.Number, errors.Join(errs...))
}
