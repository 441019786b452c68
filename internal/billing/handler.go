package billing

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/solkant/solkant/internal/businesses"
	"github.com/solkant/solkant/internal/platform/httpx"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
)

const maxWebhookBytes = 1 << 16

// Handler serves the billing page and the provider webhook.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pages   view.Responder
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, pages view.Responder) *Handler {
	return &Handler{logger: logger, service: service, pages: pages}
}

// MountRoutes registers tenant billing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.Post("/checkout", h.checkout)
	r.Post("/portal", h.portal)
}

// MountWebhook registers the public webhook endpoint.
func (h *Handler) MountWebhook(r chi.Router) {
	r.Post("/", h.webhook)
}

type billingPage struct {
	Business *businesses.Business
	Enabled  bool
	Checkout string
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	b, err := h.service.Status(r.Context(), tenant)
	if err != nil {
		h.logger.Error("load billing status", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, httpx.MsgInternal)
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/billing/index.html", "Abonnement", billingPage{
		Business: b,
		Enabled:  h.service.Enabled(),
		Checkout: r.URL.Query().Get("checkout"),
	})
}

func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	url, err := h.service.Checkout(r.Context(), tenant, r.PostFormValue("plan"))
	if err != nil {
		h.fail(w, r, "checkout", err)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (h *Handler) portal(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	url, err := h.service.Portal(r.Context(), tenant)
	if err != nil {
		h.fail(w, r, "portal", err)
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, op string, err error) {
	var msg string
	switch {
	case errors.Is(err, ErrBillingDisabled):
		msg = "La facturation n'est pas disponible pour le moment"
	case errors.Is(err, ErrUnknownPlan):
		msg = "Formule inconnue"
	case errors.Is(err, ErrNoCustomer):
		msg = "Aucun abonnement à gérer pour le moment"
	default:
		h.logger.Error("billing "+op, slog.Any("error", err))
		msg = httpx.MsgInternal
	}
	h.pages.RedirectWithFlash(w, r, "/billing", "error", msg)
}

func (h *Handler) webhook(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBytes))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Unreadable payload", "")
		return
	}
	err = h.service.HandleWebhook(r.Context(), payload, r.Header.Get("Stripe-Signature"))
	switch {
	case err == nil:
		httpx.JSON(w, http.StatusOK, map[string]bool{"received": true})
	case errors.Is(err, ErrInvalidSignature):
		httpx.Problem(w, http.StatusBadRequest, "Invalid signature", "")
	case errors.Is(err, ErrBillingDisabled):
		httpx.Problem(w, http.StatusServiceUnavailable, "Billing disabled", "")
	default:
		h.logger.Error("webhook processing failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Webhook processing failed", "")
	}
}
