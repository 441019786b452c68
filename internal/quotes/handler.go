package quotes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sort"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solkant/solkant/internal/catalog"
	"github.com/solkant/solkant/internal/clients"
	"github.com/solkant/solkant/internal/platform/httpx"
	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
)

const (
	msgCreateFailed = "Erreur lors de la création du devis"
	msgUpdateFailed = "Erreur lors de la mise à jour du devis"
	msgSendFailed   = "Erreur lors de l'envoi du devis"
)

// Documents renders printable versions of a quote.
type Documents interface {
	Preview(ctx context.Context, tenant shared.Tenant, q *Quote) ([]byte, error)
	PDF(ctx context.Context, tenant shared.Tenant, q *Quote) ([]byte, error)
}

// ClientLister lists the clients offered in the quote form.
type ClientLister interface {
	All(ctx context.Context, tenant shared.Tenant) ([]clients.Client, error)
}

// CatalogLister lists the services and packages offered in the quote form.
type CatalogLister interface {
	ActiveServices(ctx context.Context, tenant shared.Tenant) ([]catalog.Service, error)
	ListPackages(ctx context.Context, tenant shared.Tenant, activeOnly bool) ([]catalog.Package, error)
}

// Handler serves quote pages and the JSON quote API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	documents Documents
	clients   ClientLister
	catalog   CatalogLister
	pages     view.Responder
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, documents Documents, clients ClientLister, catalog CatalogLister, pages view.Responder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, documents: documents, clients: clients, catalog: catalog, pages: pages}
}

// MountRoutes registers the HTML quote routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/new", h.showForm)
	r.Post("/", h.create)
	r.Route("/{id}", func(r chi.Router) {
		r.Get("/", h.show)
		r.Get("/edit", h.showEditForm)
		r.Post("/edit", h.update)
		r.Post("/delete", h.delete)
		r.Post("/duplicate", h.duplicate)
		r.Post("/send", h.send)
		r.Post("/accept", h.accept)
		r.Post("/reject", h.reject)
		r.Get("/preview", h.preview)
		r.Get("/pdf", h.pdf)
	})
}

// MountAPI registers the JSON quote routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.apiList)
	r.Post("/", h.apiCreate)
	r.Get("/{id}", h.apiGet)
	r.Put("/{id}", h.apiUpdate)
	r.Delete("/{id}", h.apiDelete)
	r.Post("/{id}/send", h.apiSend)
}

type listPage struct {
	Quotes     []Quote
	Status     string
	Search     string
	Statuses   []Status
	Pagination shared.Pagination
}

type formPage struct {
	Quote    *Quote
	Form     quoteForm
	Clients  []clients.Client
	Services []catalog.Service
	Packages []catalog.Package
	Errors   map[string]string
}

type quoteForm struct {
	ClientID     int64
	Discount     string
	DiscountType string
	Notes        string
	ValidUntil   string
	Items        []itemForm
	PackageIDs   []int64
}

type itemForm struct {
	ServiceID   string
	PackageID   string
	Name        string
	Description string
	UnitPrice   string
	Quantity    string
}

// HasPackage reports whether id is selected.
func (f quoteForm) HasPackage(id int64) bool {
	for _, p := range f.PackageIDs {
		if p == id {
			return true
		}
	}
	return false
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page := shared.PageFromRequest(r)
	q := r.URL.Query()
	filter := ListFilter{Status: Status(strings.ToUpper(q.Get("status"))), Search: q.Get("q"), Limit: page.Limit(), Offset: page.Offset()}

	list, total, err := h.service.List(r.Context(), tenant, filter)
	if err != nil {
		h.logger.Error("list quotes", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, httpx.MsgInternal)
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/quotes/index.html", "Devis", listPage{
		Quotes:     list,
		Status:     string(filter.Status),
		Search:     filter.Search,
		Statuses:   []Status{StatusDraft, StatusSent, StatusAccepted, StatusRejected},
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	q, ok := h.load(w, r, tenant)
	if !ok {
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/quotes/show.html", q.QuoteNumber, map[string]any{"Quote": q})
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	form := quoteForm{DiscountType: string(pricing.DiscountFixed), Items: []itemForm{{Quantity: "1"}}}
	if id, err := strconv.ParseInt(r.URL.Query().Get("client_id"), 10, 64); err == nil {
		form.ClientID = id
	}
	h.renderForm(w, r, http.StatusOK, nil, form, nil)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	form, req, errs := h.parseForm(r, tenant)
	if len(errs) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, nil, form, errs)
		return
	}
	q, err := h.service.Create(r.Context(), tenant, req)
	if err != nil {
		h.formError(w, r, nil, form, err, msgCreateFailed)
		return
	}
	h.pages.RedirectWithFlash(w, r, quotePath(q.ID), "success", "Devis "+q.QuoteNumber+" créé")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	q, ok := h.load(w, r, tenant)
	if !ok {
		return
	}
	if !q.Editable() {
		h.pages.RedirectWithFlash(w, r, quotePath(q.ID), "error", "Seuls les brouillons peuvent être modifiés")
		return
	}
	h.renderForm(w, r, http.StatusOK, q, formFromQuote(q), nil)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	q, ok := h.load(w, r, tenant)
	if !ok {
		return
	}
	form, req, errs := h.parseForm(r, tenant)
	if len(errs) > 0 {
		h.renderForm(w, r, http.StatusUnprocessableEntity, q, form, errs)
		return
	}
	if _, err := h.service.Update(r.Context(), tenant, q.ID, req); err != nil {
		if errors.Is(err, shared.ErrInvalidState) {
			h.pages.RedirectWithFlash(w, r, quotePath(q.ID), "error", "Seuls les brouillons peuvent être modifiés")
			return
		}
		h.formError(w, r, q, form, err, msgUpdateFailed)
		return
	}
	h.pages.RedirectWithFlash(w, r, quotePath(q.ID), "success", "Devis mis à jour")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(tenant shared.Tenant, id int64) (string, string, error) {
		if err := h.service.Delete(r.Context(), tenant, id); err != nil {
			return "", "", err
		}
		return "/quotes", "Devis supprimé", nil
	})
}

func (h *Handler) duplicate(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(tenant shared.Tenant, id int64) (string, string, error) {
		q, err := h.service.Duplicate(r.Context(), tenant, id)
		if err != nil {
			return "", "", err
		}
		return quotePath(q.ID), "Devis dupliqué en " + q.QuoteNumber, nil
	})
}

func (h *Handler) send(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(tenant shared.Tenant, id int64) (string, string, error) {
		q, err := h.service.Send(r.Context(), tenant, id)
		if err != nil {
			return "", "", err
		}
		return quotePath(id), "Envoi du devis à " + q.ClientEmail() + " en cours", nil
	})
}

func (h *Handler) accept(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(tenant shared.Tenant, id int64) (string, string, error) {
		return quotePath(id), "Devis marqué comme accepté", h.service.Accept(r.Context(), tenant, id)
	})
}

func (h *Handler) reject(w http.ResponseWriter, r *http.Request) {
	h.action(w, r, func(tenant shared.Tenant, id int64) (string, string, error) {
		return quotePath(id), "Devis marqué comme refusé", h.service.Reject(r.Context(), tenant, id)
	})
}

// action runs a state-changing POST and redirects with the outcome.
func (h *Handler) action(w http.ResponseWriter, r *http.Request, fn func(shared.Tenant, int64) (string, string, error)) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return
	}
	target, message, err := fn(tenant, id)
	if err != nil {
		f := httpx.Classify(err, "")
		if f.Status == http.StatusNotFound {
			h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
			return
		}
		msg := f.Result.Error
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			msg = firstMessage(verr.Fields)
		} else if f.Status >= http.StatusInternalServerError {
			h.logger.Error("quote action", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		h.pages.RedirectWithFlash(w, r, quotePath(id), "error", msg)
		return
	}
	h.pages.RedirectWithFlash(w, r, target, "success", message)
}

func (h *Handler) preview(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	q, ok := h.load(w, r, tenant)
	if !ok {
		return
	}
	body, err := h.documents.Preview(r.Context(), tenant, q)
	if err != nil {
		h.logger.Error("preview quote", slog.Int64("quote_id", q.ID), slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, "Impossible d'afficher l'aperçu")
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) pdf(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	q, ok := h.load(w, r, tenant)
	if !ok {
		return
	}
	body, err := h.documents.PDF(r.Context(), tenant, q)
	if err != nil {
		h.logger.Error("render quote pdf", slog.Int64("quote_id", q.ID), slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, "Impossible de générer le PDF")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, q.QuoteNumber))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Fail(w, err, "")
		return
	}
	page := shared.PageFromRequest(r)
	q := r.URL.Query()
	list, total, err := h.service.List(r.Context(), tenant, ListFilter{
		Status: Status(strings.ToUpper(q.Get("status"))),
		Search: q.Get("q"),
		Limit:  page.Limit(),
		Offset: page.Offset(),
	})
	if err != nil {
		h.logger.Error("api list quotes", slog.Any("error", err))
		httpx.Fail(w, err, "")
		return
	}
	if list == nil {
		list = []Quote{}
	}
	httpx.OK(w, http.StatusOK, map[string]any{"items": list, "pagination": shared.NewPagination(page.Page, page.PerPage, total)})
}

func (h *Handler) apiCreate(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Fail(w, err, "")
		return
	}
	var req CreateRequest
	if err := decodeJSON(r, &req); err != nil {
		httpx.Fail(w, err, "")
		return
	}
	q, err := h.service.Create(r.Context(), tenant, req)
	if err != nil {
		httpx.Fail(w, err, msgCreateFailed)
		return
	}
	httpx.OK(w, http.StatusCreated, q.Summarize())
}

func (h *Handler) apiGet(w http.ResponseWriter, r *http.Request) {
	h.apiWithID(w, r, "", func(tenant shared.Tenant, id int64) (int, any, error) {
		q, err := h.service.Get(r.Context(), tenant, id)
		return http.StatusOK, q, err
	})
}

func (h *Handler) apiUpdate(w http.ResponseWriter, r *http.Request) {
	h.apiWithID(w, r, msgUpdateFailed, func(tenant shared.Tenant, id int64) (int, any, error) {
		var req CreateRequest
		if err := decodeJSON(r, &req); err != nil {
			return 0, nil, err
		}
		q, err := h.service.Update(r.Context(), tenant, id, req)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, q.Summarize(), nil
	})
}

func (h *Handler) apiDelete(w http.ResponseWriter, r *http.Request) {
	h.apiWithID(w, r, "", func(tenant shared.Tenant, id int64) (int, any, error) {
		if err := h.service.Delete(r.Context(), tenant, id); err != nil {
			return 0, nil, err
		}
		return http.StatusOK, map[string]any{"id": id}, nil
	})
}

func (h *Handler) apiSend(w http.ResponseWriter, r *http.Request) {
	h.apiWithID(w, r, msgSendFailed, func(tenant shared.Tenant, id int64) (int, any, error) {
		q, err := h.service.Send(r.Context(), tenant, id)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusAccepted, q.Summarize(), nil
	})
}

func (h *Handler) apiWithID(w http.ResponseWriter, r *http.Request, fallback string, fn func(shared.Tenant, int64) (int, any, error)) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Fail(w, err, "")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Fail(w, shared.ErrNotFound, "")
		return
	}
	status, data, err := fn(tenant, id)
	if err != nil {
		if httpx.Classify(err, "").Status >= http.StatusInternalServerError {
			h.logger.Error("quote api", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.Fail(w, err, fallback)
		return
	}
	httpx.OK(w, status, data)
}

func decodeJSON(r *http.Request, dest any) error {
	if err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(dest); err != nil {
		return shared.NewValidationError(map[string]string{"body": "Requête invalide"})
	}
	return nil
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, tenant shared.Tenant) (*Quote, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return nil, false
	}
	q, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
			return nil, false
		}
		h.logger.Error("get quote", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, httpx.MsgInternal)
		return nil, false
	}
	return q, true
}

func (h *Handler) renderForm(w http.ResponseWriter, r *http.Request, status int, q *Quote, form quoteForm, errs map[string]string) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page := formPage{Quote: q, Form: form, Errors: summarizeItemErrors(errs)}
	var err error
	if page.Clients, err = h.clients.All(r.Context(), tenant); err != nil {
		h.logger.Warn("list clients for quote form", slog.Any("error", err))
	}
	if page.Services, err = h.catalog.ActiveServices(r.Context(), tenant); err != nil {
		h.logger.Warn("list services for quote form", slog.Any("error", err))
	}
	if page.Packages, err = h.catalog.ListPackages(r.Context(), tenant, true); err != nil {
		h.logger.Warn("list packages for quote form", slog.Any("error", err))
	}
	title := "Nouveau devis"
	if q != nil {
		title = "Modifier " + q.QuoteNumber
	}
	h.pages.Page(w, r, status, "pages/quotes/form.html", title, page)
}

func (h *Handler) formError(w http.ResponseWriter, r *http.Request, q *Quote, form quoteForm, err error, fallback string) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		h.renderForm(w, r, http.StatusUnprocessableEntity, q, form, verr.Fields)
		return
	}
	f := httpx.Classify(err, fallback)
	if f.Status == http.StatusNotFound {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return
	}
	h.logger.Error("save quote", slog.Any("error", err))
	h.renderForm(w, r, f.Status, q, form, map[string]string{"general": f.Result.Error})
}

// parseForm reads the quote form. Lines naming a catalog service but no label
// take the service's current name and price.
func (h *Handler) parseForm(r *http.Request, tenant shared.Tenant) (quoteForm, CreateRequest, map[string]string) {
	errs := map[string]string{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Formulaire invalide"
		return quoteForm{}, CreateRequest{}, errs
	}
	form := quoteForm{
		Discount:     r.PostFormValue("discount"),
		DiscountType: r.PostFormValue("discount_type"),
		Notes:        r.PostFormValue("notes"),
		ValidUntil:   r.PostFormValue("valid_until"),
	}
	req := CreateRequest{DiscountType: form.DiscountType, Notes: form.Notes, ValidUntil: form.ValidUntil}
	if id, err := strconv.ParseInt(r.PostFormValue("client_id"), 10, 64); err == nil {
		form.ClientID = id
		req.ClientID = id
	}
	discount, err := pricing.ParseAmount(form.Discount)
	if err != nil {
		errs["discount"] = "Remise invalide"
	}
	req.Discount = discount

	for _, raw := range r.PostForm["package_id"] {
		if id, err := strconv.ParseInt(raw, 10, 64); err == nil && id > 0 {
			form.PackageIDs = append(form.PackageIDs, id)
		}
	}
	req.PackageIDs = form.PackageIDs

	var services map[int64]catalog.Service
	names := r.PostForm["item_name"]
	for i, rawService := range r.PostForm["item_service_id"] {
		item := itemForm{
			ServiceID:   rawService,
			PackageID:   at(r.PostForm["item_package_id"], i),
			Name:        at(names, i),
			Description: at(r.PostForm["item_description"], i),
			UnitPrice:   at(r.PostForm["item_unit_price"], i),
			Quantity:    at(r.PostForm["item_quantity"], i),
		}
		if strings.TrimSpace(item.ServiceID) == "" && strings.TrimSpace(item.Name) == "" {
			continue
		}
		form.Items = append(form.Items, item)
		idx := len(form.Items) - 1

		in := ItemInput{Name: item.Name, Description: item.Description, Quantity: 1}
		if id, err := strconv.ParseInt(item.ServiceID, 10, 64); err == nil && id > 0 {
			in.ServiceID = &id
			if strings.TrimSpace(item.Name) == "" {
				if services == nil {
					services = h.serviceIndex(r.Context(), tenant)
				}
				if svc, ok := services[id]; ok {
					in.Name = svc.Name
					in.Description = svc.Description
					if strings.TrimSpace(item.UnitPrice) == "" {
						item.UnitPrice = svc.Price.StringFixed(2)
					}
					form.Items[idx].Name, form.Items[idx].UnitPrice = in.Name, item.UnitPrice
				}
			}
		}
		if id, err := strconv.ParseInt(item.PackageID, 10, 64); err == nil && id > 0 {
			in.PackageID = &id
		}
		price, err := pricing.ParseAmount(item.UnitPrice)
		if err != nil {
			errs[fmt.Sprintf("items[%d].unitPrice", idx)] = "Prix invalide"
		}
		in.UnitPrice = price
		if raw := strings.TrimSpace(item.Quantity); raw != "" {
			qty, err := strconv.Atoi(raw)
			if err != nil {
				errs[fmt.Sprintf("items[%d].quantity", idx)] = "Quantité invalide"
			}
			in.Quantity = qty
		}
		req.Items = append(req.Items, in)
	}
	return form, req, errs
}

func (h *Handler) serviceIndex(ctx context.Context, tenant shared.Tenant) map[int64]catalog.Service {
	out := map[int64]catalog.Service{}
	list, err := h.catalog.ActiveServices(ctx, tenant)
	if err != nil {
		h.logger.Warn("load services", slog.Any("error", err))
		return out
	}
	for _, svc := range list {
		out[svc.ID] = svc
	}
	return out
}

func formFromQuote(q *Quote) quoteForm {
	form := quoteForm{
		Discount:     q.Discount.StringFixed(2),
		DiscountType: string(q.DiscountType),
		Notes:        q.Notes,
	}
	if q.ClientID != nil {
		form.ClientID = *q.ClientID
	}
	if q.ValidUntil != nil {
		form.ValidUntil = q.ValidUntil.Format("2006-01-02")
	}
	for _, item := range q.Items {
		f := itemForm{
			Name:        item.Name,
			Description: item.Description,
			UnitPrice:   item.UnitPrice.StringFixed(2),
			Quantity:    strconv.Itoa(item.Quantity),
		}
		if item.ServiceID != nil {
			f.ServiceID = strconv.FormatInt(*item.ServiceID, 10)
		}
		if item.PackageID != nil {
			f.PackageID = strconv.FormatInt(*item.PackageID, 10)
		}
		form.Items = append(form.Items, f)
	}
	return form
}

// summarizeItemErrors surfaces per-line errors under "items", the key the
// form displays.
func summarizeItemErrors(errs map[string]string) map[string]string {
	if len(errs) == 0 || errs["items"] != "" {
		return errs
	}
	keys := make([]string, 0, len(errs))
	for key := range errs {
		if strings.HasPrefix(key, "items[") {
			keys = append(keys, key)
		}
	}
	if len(keys) == 0 {
		return errs
	}
	sort.Strings(keys)
	out := make(map[string]string, len(errs)+1)
	for k, v := range errs {
		out[k] = v
	}
	out["items"] = errs[keys[0]]
	index, _, _ := strings.Cut(strings.TrimPrefix(keys[0], "items["), "]")
	if i, err := strconv.Atoi(index); err == nil {
		out["items"] = fmt.Sprintf("Ligne %d : %s", i+1, errs[keys[0]])
	}
	return out
}

func quotePath(id int64) string {
	return "/quotes/" + strconv.FormatInt(id, 10)
}

func at(values []string, i int) string {
	if i < len(values) {
		return values[i]
	}
	return ""
}

func firstMessage(fields map[string]string) string {
	for _, key := range []string{"client", "clientId", "items", "discount"} {
		if msg, ok := fields[key]; ok {
			return msg
		}
	}
	for _, msg := range fields {
		return msg
	}
	return httpx.MsgValidation
}
