package dashboard

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/solkant/solkant/internal/platform/httpx"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
)

// Handler serves the home page.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pages   view.Responder
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, pages view.Responder) *Handler {
	return &Handler{logger: logger, service: service, pages: pages}
}

// MountRoutes registers the dashboard route.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
}

// MountAPI registers the JSON stats endpoint.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.stats)
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	stats, err := h.service.Stats(r.Context(), tenant)
	if err != nil {
		h.logger.Error("load dashboard", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, httpx.MsgInternal)
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/dashboard/index.html", "Tableau de bord", stats)
}

func (h *Handler) stats(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Fail(w, err, httpx.MsgInternal)
		return
	}
	stats, err := h.service.Stats(r.Context(), tenant)
	if err != nil {
		h.logger.Error("load dashboard stats", slog.Any("error", err))
		httpx.Fail(w, err, httpx.MsgInternal)
		return
	}
	httpx.OK(w, http.StatusOK, stats)
}
