package businesses

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
)

// Handler serves the settings page.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pages   view.Responder
}

// NewHandler constructs a Handler.
func NewHandler(logger *slog.Logger, service *Service, pages view.Responder) *Handler {
	return &Handler{logger: logger, service: service, pages: pages}
}

// MountRoutes registers settings routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.show)
	r.Post("/", h.update)
}

type settingsPage struct {
	Business *Business
	Form     Profile
	Errors   map[string]string
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	business, err := h.service.Get(r.Context(), tenant.BusinessID)
	if err != nil {
		h.logger.Error("load business", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, "Impossible de charger les paramètres")
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/settings/index.html", "Paramètres", settingsPage{
		Business: business,
		Form:     profileOf(business),
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, "/auth/login", http.StatusSeeOther)
		return
	}
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	validity, convErr := strconv.Atoi(r.PostFormValue("quote_validity_days"))
	form := Profile{
		Name:              r.PostFormValue("name"),
		Email:             r.PostFormValue("email"),
		Phone:             r.PostFormValue("phone"),
		Address:           r.PostFormValue("address"),
		Siret:             r.PostFormValue("siret"),
		VATMention:        r.PostFormValue("vat_mention"),
		QuoteFooter:       r.PostFormValue("quote_footer"),
		QuoteValidityDays: validity,
	}
	if convErr != nil {
		h.renderInvalid(w, r, tenant.BusinessID, form, map[string]string{"quote_validity_days": "Nombre invalide"})
		return
	}

	if err := h.service.UpdateProfile(r.Context(), tenant.BusinessID, form); err != nil {
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			h.renderInvalid(w, r, tenant.BusinessID, form, verr.Fields)
			return
		}
		h.logger.Error("update business", slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/settings", "error", "Une erreur est survenue, veuillez réessayer")
		return
	}
	h.pages.RedirectWithFlash(w, r, "/settings", "success", "Paramètres enregistrés")
}

func (h *Handler) renderInvalid(w http.ResponseWriter, r *http.Request, businessID int64, form Profile, errs map[string]string) {
	business, _ := h.service.Get(r.Context(), businessID)
	h.pages.Page(w, r, http.StatusUnprocessableEntity, "pages/settings/index.html", "Paramètres", settingsPage{
		Business: business,
		Form:     form,
		Errors:   errs,
	})
}

func profileOf(b *Business) Profile {
	return Profile{
		Name:              b.Name,
		Email:             b.Email,
		Phone:             b.Phone,
		Address:           b.Address,
		Siret:             b.Siret,
		VATMention:        b.VATMention,
		QuoteFooter:       b.QuoteFooter,
		QuoteValidityDays: b.QuoteValidityDays,
	}
}
