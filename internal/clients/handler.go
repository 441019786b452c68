package clients

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/solkant/solkant/internal/platform/httpx"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
)

// Handler manages client pages.
type Handler struct {
	logger  *slog.Logger
	service *Service
	pages   view.Responder
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, pages view.Responder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, pages: pages}
}

// MountRoutes registers client routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/new", h.showForm)
	r.Post("/", h.create)
	r.Get("/{id}", h.show)
	r.Get("/{id}/edit", h.showEditForm)
	r.Post("/{id}/edit", h.update)
	r.Post("/{id}/delete", h.delete)
}

// MountAPI registers JSON routes.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/", h.apiList)
}

type formPage struct {
	Client *Client
	Form   Input
	Errors map[string]string
}

type listPage struct {
	Clients    []Client
	Search     string
	Pagination shared.Pagination
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page := shared.PageFromRequest(r)
	search := r.URL.Query().Get("q")

	list, total, err := h.service.List(r.Context(), tenant, ListFilter{Search: search, Limit: page.Limit(), Offset: page.Offset()})
	if err != nil {
		h.logger.Error("list clients", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, "Impossible de charger les clients")
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/clients/index.html", "Clients", listPage{
		Clients:    list,
		Search:     search,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	client, ok := h.load(w, r, tenant)
	if !ok {
		return
	}
	quotes, err := h.service.Quotes(r.Context(), tenant, client.ID)
	if err != nil {
		h.logger.Warn("list client quotes", slog.Any("error", err))
	}
	h.pages.Page(w, r, http.StatusOK, "pages/clients/show.html", client.FullName(), map[string]any{
		"Client": client,
		"Quotes": quotes,
	})
}

func (h *Handler) showForm(w http.ResponseWriter, r *http.Request) {
	h.pages.Page(w, r, http.StatusOK, "pages/clients/form.html", "Nouveau client", formPage{})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	in, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	client, err := h.service.Create(r.Context(), tenant, in)
	if err != nil {
		h.formError(w, r, nil, in, err)
		return
	}
	h.pages.RedirectWithFlash(w, r, "/clients/"+strconv.FormatInt(client.ID, 10), "success", "Client créé")
}

func (h *Handler) showEditForm(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	client, ok := h.load(w, r, tenant)
	if !ok {
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/clients/form.html", "Modifier le client", formPage{
		Client: client,
		Form: Input{
			FirstName: client.FirstName,
			LastName:  client.LastName,
			Email:     client.Email,
			Phone:     client.Phone,
			Address:   client.Address,
			Notes:     client.Notes,
		},
	})
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	client, ok := h.load(w, r, tenant)
	if !ok {
		return
	}
	in, ok := h.parseForm(w, r)
	if !ok {
		return
	}
	if _, err := h.service.Update(r.Context(), tenant, client.ID, in); err != nil {
		h.formError(w, r, client, in, err)
		return
	}
	h.pages.RedirectWithFlash(w, r, "/clients/"+strconv.FormatInt(client.ID, 10), "success", "Client mis à jour")
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return
	}
	if err := h.service.Delete(r.Context(), tenant, id); err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
			return
		}
		h.logger.Error("delete client", slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/clients/"+strconv.FormatInt(id, 10), "error", httpx.MsgInternal)
		return
	}
	h.pages.RedirectWithFlash(w, r, "/clients", "success", "Client supprimé")
}

func (h *Handler) apiList(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Fail(w, err, "")
		return
	}
	page := shared.PageFromRequest(r)
	list, total, err := h.service.List(r.Context(), tenant, ListFilter{Search: r.URL.Query().Get("q"), Limit: page.Limit(), Offset: page.Offset()})
	if err != nil {
		h.logger.Error("api list clients", slog.Any("error", err))
		httpx.Fail(w, err, "")
		return
	}
	if list == nil {
		list = []Client{}
	}
	httpx.OK(w, http.StatusOK, map[string]any{
		"items":      list,
		"pagination": shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) load(w http.ResponseWriter, r *http.Request, tenant shared.Tenant) (*Client, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return nil, false
	}
	client, err := h.service.Get(r.Context(), tenant, id)
	if err != nil {
		if errors.Is(err, shared.ErrNotFound) {
			h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
			return nil, false
		}
		h.logger.Error("get client", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, httpx.MsgInternal)
		return nil, false
	}
	return client, true
}

func (h *Handler) parseForm(w http.ResponseWriter, r *http.Request) (Input, bool) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return Input{}, false
	}
	return Input{
		FirstName: r.PostFormValue("first_name"),
		LastName:  r.PostFormValue("last_name"),
		Email:     r.PostFormValue("email"),
		Phone:     r.PostFormValue("phone"),
		Address:   r.PostFormValue("address"),
		Notes:     r.PostFormValue("notes"),
	}, true
}

func (h *Handler) formError(w http.ResponseWriter, r *http.Request, client *Client, in Input, err error) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		h.pages.Page(w, r, http.StatusUnprocessableEntity, "pages/clients/form.html", "Client", formPage{Client: client, Form: in, Errors: verr.Fields})
		return
	}
	if errors.Is(err, shared.ErrNotFound) {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return
	}
	h.logger.Error("save client", slog.Any("error", err))
	h.pages.Page(w, r, http.StatusInternalServerError, "pages/clients/form.html", "Client", formPage{
		Client: client,
		Form:   in,
		Errors: map[string]string{"general": httpx.MsgInternal},
	})
}
