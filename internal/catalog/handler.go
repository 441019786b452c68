package catalog

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/solkant/solkant/internal/platform/httpx"
	"github.com/solkant/solkant/internal/pricing"
	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
)

// Handler serves service and package pages.
type Handler struct {
	logger  *slog.Logger
	manager *Manager
	pages   view.Responder
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, manager *Manager, pages view.Responder) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, manager: manager, pages: pages}
}

// MountServices registers /services routes.
func (h *Handler) MountServices(r chi.Router) {
	r.Get("/", h.listServices)
	r.Get("/new", h.newService)
	r.Post("/", h.createService)
	r.Get("/{id}/edit", h.editService)
	r.Post("/{id}/edit", h.updateService)
	r.Post("/{id}/delete", h.deleteService)
}

// MountPackages registers /packages routes.
func (h *Handler) MountPackages(r chi.Router) {
	r.Get("/", h.listPackages)
	r.Get("/new", h.newPackage)
	r.Post("/", h.createPackage)
	r.Get("/{id}/edit", h.editPackage)
	r.Post("/{id}/edit", h.updatePackage)
	r.Post("/{id}/delete", h.deletePackage)
}

// MountAPI registers JSON catalog routes used by the quote form.
func (h *Handler) MountAPI(r chi.Router) {
	r.Get("/services", h.apiServices)
	r.Get("/packages", h.apiPackages)
}

type serviceListPage struct {
	Services   []Service
	Categories []string
	Search     string
	Category   string
	Pagination shared.Pagination
}

type serviceFormPage struct {
	Service *Service
	Form    serviceForm
	Errors  map[string]string
}

// serviceForm keeps raw text so invalid amounts are echoed back.
type serviceForm struct {
	Name            string
	Description     string
	Price           string
	DurationMinutes string
	Category        string
	IsActive        bool
}

type packageFormPage struct {
	Package  *Package
	Form     packageForm
	Services []Service
	Errors   map[string]string
}

type packageForm struct {
	Name         string
	Description  string
	Discount     string
	DiscountType string
	IsActive     bool
	Items        []PackageItemInput
}

func (h *Handler) listServices(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	page := shared.PageFromRequest(r)
	q := r.URL.Query()
	filter := ServiceFilter{Search: q.Get("q"), Category: q.Get("category"), Limit: page.Limit(), Offset: page.Offset()}

	list, total, err := h.manager.ListServices(r.Context(), tenant, filter)
	if err != nil {
		h.logger.Error("list services", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, httpx.MsgInternal)
		return
	}
	categories, err := h.manager.Categories(r.Context(), tenant)
	if err != nil {
		h.logger.Warn("list categories", slog.Any("error", err))
	}
	h.pages.Page(w, r, http.StatusOK, "pages/services/index.html", "Prestations", serviceListPage{
		Services:   list,
		Categories: categories,
		Search:     filter.Search,
		Category:   filter.Category,
		Pagination: shared.NewPagination(page.Page, page.PerPage, total),
	})
}

func (h *Handler) newService(w http.ResponseWriter, r *http.Request) {
	h.pages.Page(w, r, http.StatusOK, "pages/services/form.html", "Nouvelle prestation", serviceFormPage{Form: serviceForm{IsActive: true}})
}

func (h *Handler) createService(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	form, in, errs := parseServiceForm(r)
	if len(errs) > 0 {
		h.pages.Page(w, r, http.StatusUnprocessableEntity, "pages/services/form.html", "Nouvelle prestation", serviceFormPage{Form: form, Errors: errs})
		return
	}
	if _, err := h.manager.CreateService(r.Context(), tenant, in); err != nil {
		h.serviceFormError(w, r, nil, form, err)
		return
	}
	h.pages.RedirectWithFlash(w, r, "/services", "success", "Prestation créée")
}

func (h *Handler) editService(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	svc, ok := h.loadService(w, r, tenant)
	if !ok {
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/services/form.html", "Modifier la prestation", serviceFormPage{
		Service: svc,
		Form: serviceForm{
			Name:            svc.Name,
			Description:     svc.Description,
			Price:           svc.Price.StringFixed(2),
			DurationMinutes: strconv.Itoa(svc.DurationMinutes),
			Category:        svc.Category,
			IsActive:        svc.IsActive,
		},
	})
}

func (h *Handler) updateService(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	svc, ok := h.loadService(w, r, tenant)
	if !ok {
		return
	}
	form, in, errs := parseServiceForm(r)
	if len(errs) > 0 {
		h.pages.Page(w, r, http.StatusUnprocessableEntity, "pages/services/form.html", "Modifier la prestation", serviceFormPage{Service: svc, Form: form, Errors: errs})
		return
	}
	if _, err := h.manager.UpdateService(r.Context(), tenant, svc.ID, in); err != nil {
		h.serviceFormError(w, r, svc, form, err)
		return
	}
	h.pages.RedirectWithFlash(w, r, "/services", "success", "Prestation mise à jour")
}

func (h *Handler) deleteService(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil {
		err = h.manager.DeleteService(r.Context(), tenant, id)
	}
	if err != nil {
		h.logger.Warn("delete service", slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/services", "error", "Impossible de supprimer la prestation")
		return
	}
	h.pages.RedirectWithFlash(w, r, "/services", "success", "Prestation supprimée")
}

func (h *Handler) listPackages(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	list, err := h.manager.ListPackages(r.Context(), tenant, false)
	if err != nil {
		h.logger.Error("list packages", slog.Any("error", err))
		h.pages.Error(w, r, http.StatusInternalServerError, httpx.MsgInternal)
		return
	}
	h.pages.Page(w, r, http.StatusOK, "pages/packages/index.html", "Forfaits", map[string]any{"Packages": list})
}

func (h *Handler) newPackage(w http.ResponseWriter, r *http.Request) {
	h.renderPackageForm(w, r, http.StatusOK, nil, packageForm{DiscountType: string(pricing.DiscountFixed), IsActive: true}, nil)
}

func (h *Handler) createPackage(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	form, in, errs := parsePackageForm(r)
	if len(errs) > 0 {
		h.renderPackageForm(w, r, http.StatusUnprocessableEntity, nil, form, errs)
		return
	}
	if _, err := h.manager.CreatePackage(r.Context(), tenant, in); err != nil {
		h.packageFormError(w, r, nil, form, err)
		return
	}
	h.pages.RedirectWithFlash(w, r, "/packages", "success", "Forfait créé")
}

func (h *Handler) editPackage(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	pkg, ok := h.loadPackage(w, r, tenant)
	if !ok {
		return
	}
	form := packageForm{
		Name:         pkg.Name,
		Description:  pkg.Description,
		Discount:     pkg.Discount.StringFixed(2),
		DiscountType: string(pkg.DiscountType),
		IsActive:     pkg.IsActive,
	}
	for _, item := range pkg.Items {
		form.Items = append(form.Items, PackageItemInput{ServiceID: item.ServiceID, Quantity: item.Quantity})
	}
	h.renderPackageForm(w, r, http.StatusOK, pkg, form, nil)
}

func (h *Handler) updatePackage(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	pkg, ok := h.loadPackage(w, r, tenant)
	if !ok {
		return
	}
	form, in, errs := parsePackageForm(r)
	if len(errs) > 0 {
		h.renderPackageForm(w, r, http.StatusUnprocessableEntity, pkg, form, errs)
		return
	}
	if _, err := h.manager.UpdatePackage(r.Context(), tenant, pkg.ID, in); err != nil {
		h.packageFormError(w, r, pkg, form, err)
		return
	}
	h.pages.RedirectWithFlash(w, r, "/packages", "success", "Forfait mis à jour")
}

func (h *Handler) deletePackage(w http.ResponseWriter, r *http.Request) {
	tenant, _ := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err == nil {
		err = h.manager.DeletePackage(r.Context(), tenant, id)
	}
	if err != nil {
		h.logger.Warn("delete package", slog.Any("error", err))
		h.pages.RedirectWithFlash(w, r, "/packages", "error", "Impossible de supprimer le forfait")
		return
	}
	h.pages.RedirectWithFlash(w, r, "/packages", "success", "Forfait supprimé")
}

func (h *Handler) apiServices(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Fail(w, err, "")
		return
	}
	list, err := h.manager.ActiveServices(r.Context(), tenant)
	if err != nil {
		h.logger.Error("api services", slog.Any("error", err))
		httpx.Fail(w, err, "")
		return
	}
	if list == nil {
		list = []Service{}
	}
	httpx.OK(w, http.StatusOK, list)
}

type packageView struct {
	Package
	GrossPrice     string `json:"grossPrice"`
	DiscountAmount string `json:"discountAmount"`
	NetPrice       string `json:"netPrice"`
}

func (h *Handler) apiPackages(w http.ResponseWriter, r *http.Request) {
	tenant, err := shared.TenantFromContext(r.Context())
	if err != nil {
		httpx.Fail(w, err, "")
		return
	}
	list, err := h.manager.ListPackages(r.Context(), tenant, true)
	if err != nil {
		h.logger.Error("api packages", slog.Any("error", err))
		httpx.Fail(w, err, "")
		return
	}
	out := make([]packageView, 0, len(list))
	for _, p := range list {
		out = append(out, packageView{
			Package:        p,
			GrossPrice:     p.GrossPrice().StringFixed(2),
			DiscountAmount: p.DiscountAmount().StringFixed(2),
			NetPrice:       p.NetPrice().StringFixed(2),
		})
	}
	httpx.OK(w, http.StatusOK, out)
}

func (h *Handler) loadService(w http.ResponseWriter, r *http.Request, tenant shared.Tenant) (*Service, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return nil, false
	}
	svc, err := h.manager.GetService(r.Context(), tenant, id)
	if err != nil {
		h.notFoundOrInternal(w, r, "get service", err)
		return nil, false
	}
	return svc, true
}

func (h *Handler) loadPackage(w http.ResponseWriter, r *http.Request, tenant shared.Tenant) (*Package, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return nil, false
	}
	pkg, err := h.manager.GetPackage(r.Context(), tenant, id)
	if err != nil {
		h.notFoundOrInternal(w, r, "get package", err)
		return nil, false
	}
	return pkg, true
}

func (h *Handler) notFoundOrInternal(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, shared.ErrNotFound) {
		h.pages.Error(w, r, http.StatusNotFound, httpx.MsgNotFound)
		return
	}
	h.logger.Error(op, slog.Any("error", err))
	h.pages.Error(w, r, http.StatusInternalServerError, httpx.MsgInternal)
}

func (h *Handler) renderPackageForm(w http.ResponseWriter, r *http.Request, status int, pkg *Package, form packageForm, errs map[string]string) {
	tenant, _ := shared.TenantFromContext(r.Context())
	services, err := h.manager.ActiveServices(r.Context(), tenant)
	if err != nil {
		h.logger.Warn("list services for package form", slog.Any("error", err))
	}
	title := "Nouveau forfait"
	if pkg != nil {
		title = "Modifier le forfait"
	}
	h.pages.Page(w, r, status, "pages/packages/form.html", title, packageFormPage{Package: pkg, Form: form, Services: services, Errors: errs})
}

func (h *Handler) serviceFormError(w http.ResponseWriter, r *http.Request, svc *Service, form serviceForm, err error) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		h.pages.Page(w, r, http.StatusUnprocessableEntity, "pages/services/form.html", "Prestation", serviceFormPage{Service: svc, Form: form, Errors: verr.Fields})
		return
	}
	h.notFoundOrInternal(w, r, "save service", err)
}

func (h *Handler) packageFormError(w http.ResponseWriter, r *http.Request, pkg *Package, form packageForm, err error) {
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		h.renderPackageForm(w, r, http.StatusUnprocessableEntity, pkg, form, verr.Fields)
		return
	}
	h.notFoundOrInternal(w, r, "save package", err)
}

func parseServiceForm(r *http.Request) (serviceForm, ServiceInput, map[string]string) {
	errs := map[string]string{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Formulaire invalide"
		return serviceForm{}, ServiceInput{}, errs
	}
	form := serviceForm{
		Name:            r.PostFormValue("name"),
		Description:     r.PostFormValue("description"),
		Price:           r.PostFormValue("price"),
		DurationMinutes: r.PostFormValue("duration_minutes"),
		Category:        r.PostFormValue("category"),
		IsActive:        r.PostFormValue("is_active") != "",
	}
	in := ServiceInput{Name: form.Name, Description: form.Description, Category: form.Category, IsActive: form.IsActive}
	price, err := pricing.ParseAmount(form.Price)
	if err != nil || strings.TrimSpace(form.Price) == "" {
		errs["price"] = "Prix invalide"
	}
	in.Price = price
	if raw := strings.TrimSpace(form.DurationMinutes); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil {
			errs["durationMinutes"] = "Nombre invalide"
		}
		in.DurationMinutes = minutes
	}
	return form, in, errs
}

func parsePackageForm(r *http.Request) (packageForm, PackageInput, map[string]string) {
	errs := map[string]string{}
	if err := r.ParseForm(); err != nil {
		errs["general"] = "Formulaire invalide"
		return packageForm{}, PackageInput{}, errs
	}
	form := packageForm{
		Name:         r.PostFormValue("name"),
		Description:  r.PostFormValue("description"),
		Discount:     r.PostFormValue("discount"),
		DiscountType: r.PostFormValue("discount_type"),
		IsActive:     r.PostFormValue("is_active") != "",
	}
	in := PackageInput{Name: form.Name, Description: form.Description, DiscountType: form.DiscountType, IsActive: form.IsActive}
	discount, err := pricing.ParseAmount(form.Discount)
	if err != nil {
		errs["discount"] = "Remise invalide"
	}
	in.Discount = discount

	serviceIDs := r.PostForm["item_service_id"]
	quantities := r.PostForm["item_quantity"]
	for i, raw := range serviceIDs {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			errs["items"] = "Prestation invalide"
			continue
		}
		qty := 1
		if i < len(quantities) && strings.TrimSpace(quantities[i]) != "" {
			if qty, err = strconv.Atoi(strings.TrimSpace(quantities[i])); err != nil {
				errs["items"] = "Quantité invalide"
				continue
			}
		}
		item := PackageItemInput{ServiceID: id, Quantity: qty}
		in.Items = append(in.Items, item)
	}
	form.Items = in.Items
	return form, in, errs
}
