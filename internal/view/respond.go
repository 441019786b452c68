package view

import (
	"log/slog"
	"net/http"

	"github.com/solkant/solkant/internal/shared"
)

// Responder bundles what HTML handlers need to answer a request.
type Responder struct {
	Logger    *slog.Logger
	Templates *Engine
	CSRF      *shared.CSRFManager
}

// NewResponder constructs a Responder.
func NewResponder(logger *slog.Logger, templates *Engine, csrf *shared.CSRFManager) Responder {
	if logger == nil {
		logger = slog.Default()
	}
	return Responder{Logger: logger, Templates: templates, CSRF: csrf}
}

// Page renders a page with the session's CSRF token and pending flash.
func (p Responder) Page(w http.ResponseWriter, r *http.Request, status int, name, title string, data any) {
	sess := shared.SessionFromContext(r.Context())
	var (
		csrfToken string
		flash     *shared.FlashMessage
	)
	if sess != nil {
		if p.CSRF != nil {
			csrfToken, _ = p.CSRF.EnsureToken(r.Context(), sess)
		}
		flash = sess.PopFlash()
	}
	td := TemplateData{
		Title:       title,
		CSRFToken:   csrfToken,
		Flash:       flash,
		CurrentPath: r.URL.Path,
		Data:        data,
	}
	if tenant, err := shared.TenantFromContext(r.Context()); err == nil {
		td.Tenant = &tenant
	}
	if err := p.Templates.RenderStatus(w, status, name, td); err != nil {
		p.Logger.Error("render page", slog.String("template", name), slog.Any("error", err))
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
	}
}

// RedirectWithFlash queues a flash message and redirects with 303.
func (p Responder) RedirectWithFlash(w http.ResponseWriter, r *http.Request, url, kind, message string) {
	if sess := shared.SessionFromContext(r.Context()); sess != nil {
		sess.AddFlash(shared.FlashMessage{Kind: kind, Message: message})
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

// Error renders the error page with a user-facing message.
func (p Responder) Error(w http.ResponseWriter, r *http.Request, status int, message string) {
	p.Page(w, r, status, "pages/error.html", "Erreur", map[string]any{
		"Status":  status,
		"Message": message,
	})
}
