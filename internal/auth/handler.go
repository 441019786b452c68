package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"

	"github.com/solkant/solkant/internal/shared"
	"github.com/solkant/solkant/internal/view"
)

const msgInvalidCredentials = "Adresse e-mail ou mot de passe incorrect"

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	pages          view.Responder
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	validator      *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, templates *view.Engine, sessions *shared.SessionManager, csrf *shared.CSRFManager) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		pages:          view.NewResponder(logger, templates, csrf),
		sessionManager: sessions,
		csrfManager:    csrf,
		validator:      shared.NewValidator(),
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(RedirectIfAuthenticated)
		r.Use(httprate.Limit(20, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP)))
		r.Get("/login", h.showLogin)
		r.Post("/login", h.handleLogin)
		r.Get("/signup", h.showSignup)
		r.Post("/signup", h.handleSignup)
		r.Get("/forgot", h.showForgot)
		r.Post("/forgot", h.handleForgot)
		r.Get("/reset", h.showReset)
		r.Post("/reset", h.handleReset)
	})
	r.Post("/logout", h.handleLogout)
}

type loginForm struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type signupForm struct {
	BusinessName string `json:"business_name" validate:"required,max=120"`
	Name         string `json:"name" validate:"required,max=120"`
	Email        string `json:"email" validate:"required,email"`
	Password     string `json:"password" validate:"required,min=8,max=72"`
	Confirm      string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type forgotForm struct {
	Email string `json:"email" validate:"required,email"`
}

type resetForm struct {
	Token    string `json:"token" validate:"required"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Confirm  string `json:"password_confirm" validate:"required,eqfield=Password"`
}

type formPage struct {
	Form   any
	Errors map[string]string
	Sent   bool
}

func (h *Handler) showLogin(w http.ResponseWriter, r *http.Request) {
	h.pages.Page(w, r, http.StatusOK, "pages/auth/login.html", "Connexion", formPage{Form: loginForm{}})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := loginForm{
		Email:    strings.TrimSpace(r.PostFormValue("email")),
		Password: r.PostFormValue("password"),
	}
	if errs := h.validate(form); errs != nil {
		h.pages.Page(w, r, http.StatusBadRequest, "pages/auth/login.html", "Connexion", formPage{Form: form, Errors: errs})
		return
	}

	user, err := h.service.Authenticate(r.Context(), form.Email, form.Password)
	if err != nil {
		form.Password = ""
		h.pages.Page(w, r, http.StatusBadRequest, "pages/auth/login.html", "Connexion", formPage{
			Form:   form,
			Errors: map[string]string{"general": msgInvalidCredentials},
		})
		return
	}
	h.startSession(w, r, user, "Bon retour parmi nous")
}

func (h *Handler) showSignup(w http.ResponseWriter, r *http.Request) {
	h.pages.Page(w, r, http.StatusOK, "pages/auth/signup.html", "Créer un compte", formPage{Form: signupForm{}})
}

func (h *Handler) handleSignup(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := signupForm{
		BusinessName: strings.TrimSpace(r.PostFormValue("business_name")),
		Name:         strings.TrimSpace(r.PostFormValue("name")),
		Email:        strings.TrimSpace(r.PostFormValue("email")),
		Password:     r.PostFormValue("password"),
		Confirm:      r.PostFormValue("password_confirm"),
	}
	if errs := h.validate(form); errs != nil {
		form.Password, form.Confirm = "", ""
		h.pages.Page(w, r, http.StatusBadRequest, "pages/auth/signup.html", "Créer un compte", formPage{Form: form, Errors: errs})
		return
	}

	user, err := h.service.Signup(r.Context(), form.BusinessName, form.Name, form.Email, form.Password)
	if err != nil {
		form.Password, form.Confirm = "", ""
		var verr *shared.ValidationError
		if errors.As(err, &verr) {
			h.pages.Page(w, r, http.StatusBadRequest, "pages/auth/signup.html", "Créer un compte", formPage{Form: form, Errors: verr.Fields})
			return
		}
		h.logger.Error("signup", slog.Any("error", err))
		h.pages.Page(w, r, http.StatusInternalServerError, "pages/auth/signup.html", "Créer un compte", formPage{
			Form:   form,
			Errors: map[string]string{"general": "Une erreur est survenue, veuillez réessayer"},
		})
		return
	}
	h.startSession(w, r, user, "Bienvenue sur Solkant")
}

func (h *Handler) startSession(w http.ResponseWriter, r *http.Request, user *User, greeting string) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
		return
	}
	sess.SetIdentity(shared.Tenant{UserID: user.ID, BusinessID: user.BusinessID, Email: user.Email})
	if _, err := h.csrfManager.Rotate(r.Context(), sess); err != nil {
		h.logger.Warn("rotate csrf token", slog.Any("error", err))
	}
	expiresAt := time.Now().Add(h.sessionManager.TTL())
	if err := h.service.RegisterSession(r.Context(), sess.ID, user.ID, expiresAt, r.RemoteAddr, r.UserAgent()); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.pages.RedirectWithFlash(w, r, "/", "success", greeting)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	http.Redirect(w, r, LoginPath, http.StatusSeeOther)
}

func (h *Handler) showForgot(w http.ResponseWriter, r *http.Request) {
	h.pages.Page(w, r, http.StatusOK, "pages/auth/forgot.html", "Mot de passe oublié", formPage{Form: forgotForm{}})
}

func (h *Handler) handleForgot(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := forgotForm{Email: strings.TrimSpace(r.PostFormValue("email"))}
	if errs := h.validate(form); errs != nil {
		h.pages.Page(w, r, http.StatusBadRequest, "pages/auth/forgot.html", "Mot de passe oublié", formPage{Form: form, Errors: errs})
		return
	}
	if err := h.service.RequestPasswordReset(r.Context(), form.Email); err != nil {
		h.logger.Error("request password reset", slog.Any("error", err))
	}
	h.pages.Page(w, r, http.StatusOK, "pages/auth/forgot.html", "Mot de passe oublié", formPage{Form: form, Sent: true})
}

func (h *Handler) showReset(w http.ResponseWriter, r *http.Request) {
	h.pages.Page(w, r, http.StatusOK, "pages/auth/reset.html", "Nouveau mot de passe", formPage{
		Form: resetForm{Token: r.URL.Query().Get("token")},
	})
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	form := resetForm{
		Token:    r.PostFormValue("token"),
		Password: r.PostFormValue("password"),
		Confirm:  r.PostFormValue("password_confirm"),
	}
	if errs := h.validate(form); errs != nil {
		form.Password, form.Confirm = "", ""
		h.pages.Page(w, r, http.StatusBadRequest, "pages/auth/reset.html", "Nouveau mot de passe", formPage{Form: form, Errors: errs})
		return
	}
	if err := h.service.ResetPassword(r.Context(), form.Token, form.Password); err != nil {
		msg := "Une erreur est survenue, veuillez réessayer"
		if errors.Is(err, ErrInvalidResetToken) {
			msg = "Ce lien est invalide ou a expiré"
		} else {
			h.logger.Error("reset password", slog.Any("error", err))
		}
		form.Password, form.Confirm = "", ""
		h.pages.Page(w, r, http.StatusBadRequest, "pages/auth/reset.html", "Nouveau mot de passe", formPage{
			Form:   form,
			Errors: map[string]string{"general": msg},
		})
		return
	}
	h.pages.RedirectWithFlash(w, r, LoginPath, "success", "Mot de passe mis à jour, vous pouvez vous connecter")
}

func (h *Handler) validate(form any) map[string]string {
	err := shared.Validate(h.validator, form)
	if err == nil {
		return nil
	}
	var verr *shared.ValidationError
	if errors.As(err, &verr) {
		return verr.Fields
	}
	return map[string]string{"general": "Données invalides"}
}
