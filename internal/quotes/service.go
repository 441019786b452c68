// Package quotes implements quote creation, numbering, pricing and lifecycle.
package quotes

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/catalog"
	"github.com/solkant/solkant/internal/observability"
	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/shared"
)

// maxNumberRetries bounds how many times a number collision is retried after
// the first attempt.
const maxNumberRetries = 3

// ErrNumberingExhausted is returned when every numbering attempt collided.
var ErrNumberingExhausted = fmt.Errorf("quotes: quote number retries exhausted: %w", shared.ErrConflict)

// ErrDeliveryUnavailable is returned when no delivery queue is configured.
var ErrDeliveryUnavailable = errors.New("quotes: delivery unavailable")

// PackageSource resolves packages of the tenant.
type PackageSource interface {
	GetPackage(ctx context.Context, tenant shared.Tenant, id int64) (*catalog.Package, error)
}

// BusinessSource provides the quote defaults of a business.
type BusinessSource interface {
	Get(ctx context.Context, businessID int64) (*businesses.Business, error)
}

// Delivery asks the worker to email a quote.
type Delivery struct {
	BusinessID  int64  `json:"business_id"`
	QuoteID     int64  `json:"quote_id"`
	RequestedBy int64  `json:"requested_by"`
	To          string `json:"to"`
}

// Dispatcher queues quote deliveries.
type Dispatcher interface {
	EnqueueQuoteDelivery(ctx context.Context, d Delivery) error
}

// Auditor records quote events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached tenant aggregates after a mutation.
type Invalidator interface {
	Bump(ctx context.Context, tenantID int64) error
}

// Service implements quote use cases.
type Service struct {
	repo       Repository
	packages   PackageSource
	businesses BusinessSource
	dispatcher Dispatcher
	audit      Auditor
	cache      Invalidator
	metrics    *observability.Metrics
	logger     *slog.Logger
	validator  *validator.Validate
	now        func() time.Time
	location   *time.Location
}

// Option customises a Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

// WithLocation sets the timezone deciding the numbering year.
func WithLocation(loc *time.Location) Option { return func(s *Service) { s.location = loc } }

// WithPackages enables package expansion.
func WithPackages(p PackageSource) Option { return func(s *Service) { s.packages = p } }

// WithBusinesses enables default validity dates.
func WithBusinesses(b BusinessSource) Option { return func(s *Service) { s.businesses = b } }

// WithDispatcher enables sending quotes.
func WithDispatcher(d Dispatcher) Option { return func(s *Service) { s.dispatcher = d } }

// WithAudit records quote events.
func WithAudit(a Auditor) Option { return func(s *Service) { s.audit = a } }

// WithInvalidator bumps the dashboard cache after mutations.
func WithInvalidator(c Invalidator) Option { return func(s *Service) { s.cache = c } }

// WithMetrics counts creations and numbering conflicts.
func WithMetrics(m *observability.Metrics) Option { return func(s *Service) { s.metrics = m } }

// NewService constructs a quote Service.
func NewService(repo Repository, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		repo:      repo,
		logger:    logger,
		validator: shared.NewValidator(),
		now:       time.Now,
		location:  time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get returns a quote with its items and client.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, id int64) (*Quote, error) {
	return s.repo.Get(ctx, tenant.BusinessID, id)
}

// List returns a page of quotes and the total count.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, filter ListFilter) ([]Quote, int, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		filter.Status = ""
	}
	return s.repo.List(ctx, tenant.BusinessID, filter)
}

// Create validates the request, computes totals and persists a new draft
// under the next free number of the current year. Number collisions with a
// concurrent creation are retried up to maxNumberRetries times.
func (s *Service) Create(ctx context.Context, tenant shared.Tenant, req CreateRequest) (*Quote, error) {
	q, err := s.build(ctx, tenant, req, decimal.Zero)
	if err != nil {
		return nil, err
	}
	q.Status = StatusDraft
	userID := tenant.UserID
	q.CreatedBy = &userID

	year := s.now().In(s.location).Year()
	for attempt := 0; ; attempt++ {
		err = s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
			latest, err := tx.LatestNumber(ctx, tenant.BusinessID, NumberPrefix(year))
			if err != nil {
				return fmt.Errorf("latest quote number: %w", err)
			}
			number, err := NextNumber(year, latest)
			if err != nil {
				return err
			}
			q.QuoteNumber = number
			id, err := tx.Create(ctx, q)
			if err != nil {
				return err
			}
			q.ID = id
			return nil
		})
		if err == nil {
			break
		}
		if !errors.Is(err, ErrDuplicateNumber) {
			s.logger.Error("create quote", slog.Int64("business_id", tenant.BusinessID), slog.Any("error", err))
			return nil, fmt.Errorf("create quote: %w", err)
		}
		s.metrics.QuoteNumberConflict()
		if attempt >= maxNumberRetries {
			s.logger.Error("quote number retries exhausted",
				slog.Int64("business_id", tenant.BusinessID), slog.Int("attempts", attempt+1))
			return nil, ErrNumberingExhausted
		}
		s.logger.Warn("quote number collision, retrying",
			slog.Int64("business_id", tenant.BusinessID), slog.String("number", q.QuoteNumber), slog.Int("attempt", attempt+1))
	}

	s.metrics.QuoteCreated()
	s.afterMutation(ctx, tenant, "quote.created", q.ID, map[string]any{"number": q.QuoteNumber, "total": q.Total.StringFixed(2)})
	return q, nil
}

// Update replaces a draft quote's client, items and discount. The number is kept.
// An unchanged FIXED discount on a draft that holds package lines is the
// packages' discount, so further packages may still be added.
func (s *Service) Update(ctx context.Context, tenant shared.Tenant, id int64, req CreateRequest) (*Quote, error) {
	existing, err := s.repo.Get(ctx, tenant.BusinessID, id)
	if err != nil {
		return nil, err
	}
	if !existing.Editable() {
		return nil, fmt.Errorf("update quote %s: %w", existing.QuoteNumber, shared.ErrInvalidState)
	}
	q, err := s.build(ctx, tenant, req, carriedPackageDiscount(existing, req))
	if err != nil {
		return nil, err
	}
	q.ID = existing.ID
	q.QuoteNumber = existing.QuoteNumber
	q.Status = existing.Status
	q.CreatedBy = existing.CreatedBy
	if err := s.repo.WithTx(ctx, func(ctx context.Context, tx Repository) error {
		return tx.Update(ctx, q)
	}); err != nil {
		return nil, fmt.Errorf("update quote: %w", err)
	}
	s.afterMutation(ctx, tenant, "quote.updated", id, map[string]any{"total": q.Total.StringFixed(2)})
	return s.repo.Get(ctx, tenant.BusinessID, id)
}

// Delete removes a draft quote and its items.
func (s *Service) Delete(ctx context.Context, tenant shared.Tenant, id int64) error {
	existing, err := s.repo.Get(ctx, tenant.BusinessID, id)
	if err != nil {
		return err
	}
	if !existing.Editable() {
		return fmt.Errorf("delete quote %s: %w", existing.QuoteNumber, shared.ErrInvalidState)
	}
	if err := s.repo.Delete(ctx, tenant.BusinessID, id); err != nil {
		return fmt.Errorf("delete quote: %w", err)
	}
	s.afterMutation(ctx, tenant, "quote.deleted", id, map[string]any{"number": existing.QuoteNumber})
	return nil
}

// Duplicate copies a quote's client, items and discount into a new draft.
func (s *Service) Duplicate(ctx context.Context, tenant shared.Tenant, id int64) (*Quote, error) {
	src, err := s.repo.Get(ctx, tenant.BusinessID, id)
	if err != nil {
		return nil, err
	}
	if src.ClientID == nil {
		return nil, shared.NewValidationError(map[string]string{"clientId": "Le client de ce devis a été supprimé"})
	}
	req := CreateRequest{
		ClientID:     *src.ClientID,
		Discount:     src.Discount,
		DiscountType: string(src.DiscountType),
		Notes:        src.Notes,
	}
	for _, item := range src.Items {
		req.Items = append(req.Items, ItemInput{
			ServiceID:   item.ServiceID,
			PackageID:   item.PackageID,
			Name:        item.Name,
			Description: item.Description,
			UnitPrice:   item.UnitPrice,
			Quantity:    item.Quantity,
		})
	}
	return s.Create(ctx, tenant, req)
}

// Send queues the quote for delivery to its client's email address.
// Draft and already sent quotes can be sent.
func (s *Service) Send(ctx context.Context, tenant shared.Tenant, id int64) (*Quote, error) {
	q, err := s.repo.Get(ctx, tenant.BusinessID, id)
	if err != nil {
		return nil, err
	}
	if q.Status != StatusDraft && q.Status != StatusSent {
		return nil, fmt.Errorf("send quote %s: %w", q.QuoteNumber, shared.ErrInvalidState)
	}
	if q.ClientEmail() == "" {
		return nil, shared.NewValidationError(map[string]string{"client": "Le client n'a pas d'adresse e-mail"})
	}
	if s.dispatcher == nil {
		return nil, ErrDeliveryUnavailable
	}
	if err := s.dispatcher.EnqueueQuoteDelivery(ctx, Delivery{
		BusinessID:  tenant.BusinessID,
		QuoteID:     q.ID,
		RequestedBy: tenant.UserID,
		To:          q.ClientEmail(),
	}); err != nil {
		return nil, fmt.Errorf("enqueue quote delivery: %w", err)
	}
	s.record(ctx, tenant, "quote.send_requested", q.ID, map[string]any{"to": q.ClientEmail()})
	return q, nil
}

// MarkSent records a successful delivery.
func (s *Service) MarkSent(ctx context.Context, tenant shared.Tenant, id int64) error {
	at := s.now()
	if err := s.repo.SetStatus(ctx, tenant.BusinessID, id, []Status{StatusDraft, StatusSent}, StatusSent, &at); err != nil {
		return fmt.Errorf("mark quote sent: %w", err)
	}
	s.afterMutation(ctx, tenant, "quote.sent", id, nil)
	return nil
}

// Accept marks a sent quote as accepted by the client.
func (s *Service) Accept(ctx context.Context, tenant shared.Tenant, id int64) error {
	return s.transition(ctx, tenant, id, StatusAccepted, "quote.accepted")
}

// Reject marks a sent quote as refused by the client.
func (s *Service) Reject(ctx context.Context, tenant shared.Tenant, id int64) error {
	return s.transition(ctx, tenant, id, StatusRejected, "quote.rejected")
}

func (s *Service) transition(ctx context.Context, tenant shared.Tenant, id int64, to Status, action string) error {
	if err := s.repo.SetStatus(ctx, tenant.BusinessID, id, []Status{StatusSent}, to, nil); err != nil {
		return fmt.Errorf("set quote status %s: %w", to, err)
	}
	s.afterMutation(ctx, tenant, action, id, nil)
	return nil
}

// carriedPackageDiscount returns the stored discount of existing when req keeps
// it together with at least one package line.
func carriedPackageDiscount(existing *Quote, req CreateRequest) decimal.Decimal {
	if existing.DiscountType != pricing.DiscountFixed || !existing.Discount.IsPositive() || !existing.hasPackageLine() {
		return decimal.Zero
	}
	if t, err := pricing.ParseDiscountType(req.DiscountType); err != nil || t != pricing.DiscountFixed {
		return decimal.Zero
	}
	if !req.Discount.Round(2).Equal(existing.Discount) {
		return decimal.Zero
	}
	for _, item := range req.Items {
		if item.PackageID != nil {
			return existing.Discount
		}
	}
	return decimal.Zero
}

// build validates req and turns it into a priced quote. carried is the part of
// req.Discount already granted by package lines of the quote being edited.
func (s *Service) build(ctx context.Context, tenant shared.Tenant, req CreateRequest, carried decimal.Decimal) (*Quote, error) {
	req = req.normalized()
	fields := shared.FieldErrors{}
	if err := shared.Validate(s.validator, req); err != nil {
		var verr *shared.ValidationError
		if !errors.As(err, &verr) {
			return nil, err
		}
		for k, v := range verr.Fields {
			fields.Add(k, v)
		}
	}

	discountType, err := pricing.ParseDiscountType(req.DiscountType)
	if err != nil {
		fields.Add("discountType", "Type de remise invalide")
	} else if msg := pricing.ValidateDiscount(req.Discount, discountType); msg != "" {
		fields.Add("discount", msg)
	}
	if len(req.Items) == 0 && len(req.PackageIDs) == 0 {
		fields.Add("items", "Ajoutez au moins une prestation")
	}
	for i, item := range req.Items {
		if item.UnitPrice.IsNegative() {
			fields.Add(fmt.Sprintf("items[%d].unitPrice", i), "Le prix ne peut pas être négatif")
		}
	}
	var validUntil *time.Time
	if req.ValidUntil != "" {
		if t, err := time.ParseInLocation("2006-01-02", req.ValidUntil, s.location); err == nil {
			validUntil = &t
		}
	}
	if err := fields.Err(); err != nil {
		return nil, err
	}

	if ok, err := s.repo.ClientExists(ctx, tenant.BusinessID, req.ClientID); err != nil {
		return nil, fmt.Errorf("check client: %w", err)
	} else if !ok {
		return nil, shared.NewValidationError(map[string]string{"clientId": "Client introuvable"})
	}
	if err := s.checkServices(ctx, tenant, req.Items); err != nil {
		return nil, err
	}
	if err := s.checkPackages(ctx, tenant, req.Items); err != nil {
		return nil, err
	}

	items := make([]Item, 0, len(req.Items)+len(req.PackageIDs))
	for _, in := range req.Items {
		items = append(items, Item{
			ServiceID:   in.ServiceID,
			PackageID:   in.PackageID,
			Name:        in.Name,
			Description: in.Description,
			UnitPrice:   in.UnitPrice,
			Quantity:    in.Quantity,
		})
	}

	packageItems, packageDiscount, err := s.expandPackages(ctx, tenant, req.PackageIDs)
	if err != nil {
		return nil, err
	}
	items = append(items, packageItems...)
	discount := req.Discount
	if carried.IsPositive() {
		discount = discount.Sub(carried)
		packageDiscount = packageDiscount.Add(carried)
	}
	if packageDiscount.IsPositive() {
		if discount.IsPositive() {
			return nil, shared.NewValidationError(map[string]string{"discount": "La remise du forfait ne peut pas être combinée avec une remise manuelle"})
		}
		discount, discountType = packageDiscount, pricing.DiscountFixed
	}

	lines := make([]pricing.Line, len(items))
	for i, item := range items {
		lines[i] = pricing.Line{UnitPrice: item.UnitPrice, Quantity: item.Quantity}
	}
	totals := pricing.Compute(lines, discount, discountType)
	for i := range items {
		items[i].LineTotal = totals.LineTotals[i]
	}

	if validUntil == nil {
		validUntil = s.defaultValidity(ctx, tenant)
	}

	return &Quote{
		BusinessID:   tenant.BusinessID,
		ClientID:     &req.ClientID,
		Items:        items,
		Subtotal:     totals.Subtotal,
		Discount:     discount,
		DiscountType: discountType,
		Total:        totals.Total,
		Notes:        req.Notes,
		ValidUntil:   validUntil,
	}, nil
}

func (s *Service) checkServices(ctx context.Context, tenant shared.Tenant, items []ItemInput) error {
	seen := map[int64]bool{}
	var ids []int64
	for _, item := range items {
		if item.ServiceID == nil || seen[*item.ServiceID] {
			continue
		}
		seen[*item.ServiceID] = true
		ids = append(ids, *item.ServiceID)
	}
	if len(ids) == 0 {
		return nil
	}
	n, err := s.repo.CountOwnedServices(ctx, tenant.BusinessID, ids)
	if err != nil {
		return fmt.Errorf("check services: %w", err)
	}
	if n != len(ids) {
		return shared.NewValidationError(map[string]string{"items": "Prestation introuvable"})
	}
	return nil
}

func (s *Service) checkPackages(ctx context.Context, tenant shared.Tenant, items []ItemInput) error {
	seen := map[int64]bool{}
	var ids []int64
	for _, item := range items {
		if item.PackageID == nil || seen[*item.PackageID] {
			continue
		}
		seen[*item.PackageID] = true
		ids = append(ids, *item.PackageID)
	}
	if len(ids) == 0 {
		return nil
	}
	n, err := s.repo.CountOwnedPackages(ctx, tenant.BusinessID, ids)
	if err != nil {
		return fmt.Errorf("check packages: %w", err)
	}
	if n != len(ids) {
		return shared.NewValidationError(map[string]string{"items": "Forfait introuvable"})
	}
	return nil
}

// expandPackages turns packages into gross-priced lines and the sum of their
// discounts.
func (s *Service) expandPackages(ctx context.Context, tenant shared.Tenant, ids []int64) ([]Item, decimal.Decimal, error) {
	if len(ids) == 0 {
		return nil, decimal.Zero, nil
	}
	if s.packages == nil {
		return nil, decimal.Zero, shared.NewValidationError(map[string]string{"packageIds": "Forfaits indisponibles"})
	}
	var (
		items    []Item
		discount = decimal.Zero
	)
	for _, id := range ids {
		pkg, err := s.packages.GetPackage(ctx, tenant, id)
		if err != nil {
			if errors.Is(err, shared.ErrNotFound) {
				return nil, decimal.Zero, shared.NewValidationError(map[string]string{"packageIds": "Forfait introuvable"})
			}
			return nil, decimal.Zero, fmt.Errorf("load package: %w", err)
		}
		if !pkg.IsActive || len(pkg.Items) == 0 {
			return nil, decimal.Zero, shared.NewValidationError(map[string]string{"packageIds": "Forfait indisponible"})
		}
		exp := pkg.Pricing().Expand()
		packageID := pkg.ID
		items = append(items, Item{
			PackageID:   &packageID,
			Name:        exp.Name,
			Description: exp.Description,
			UnitPrice:   exp.UnitPrice,
			Quantity:    exp.Quantity,
		})
		discount = discount.Add(exp.Discount)
	}
	return items, discount, nil
}

func (s *Service) defaultValidity(ctx context.Context, tenant shared.Tenant) *time.Time {
	if s.businesses == nil {
		return nil
	}
	b, err := s.businesses.Get(ctx, tenant.BusinessID)
	if err != nil {
		s.logger.Warn("load business defaults", slog.Any("error", err))
		return nil
	}
	if b.QuoteValidityDays <= 0 {
		return nil
	}
	now := s.now().In(s.location)
	t := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.location).AddDate(0, 0, b.QuoteValidityDays)
	return &t
}

func (s *Service) afterMutation(ctx context.Context, tenant shared.Tenant, action string, id int64, meta map[string]any) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx, tenant.BusinessID); err != nil {
			s.logger.Warn("bump dashboard cache", slog.Any("error", err))
		}
	}
	s.record(ctx, tenant, action, id, meta)
}

func (s *Service) record(ctx context.Context, tenant shared.Tenant, action string, id int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, shared.AuditLog{
		BusinessID: tenant.BusinessID,
		ActorID:    tenant.UserID,
		Action:     action,
		Entity:     "quote",
		EntityID:   fmt.Sprint(id),
		Meta:       meta,
	}); err != nil {
		s.logger.Warn("audit quote", slog.String("action", action), slog.Any("error", err))
	}
}
