package httpx

import (
	"errors"
	"net/http"

	"github.com/solkant/solkant/internal/shared"
)

// Result is the uniform action outcome returned by JSON endpoints.
type Result struct {
	Success     bool              `json:"success"`
	Data        any               `json:"data,omitempty"`
	Error       string            `json:"error,omitempty"`
	Code        string            `json:"code,omitempty"`
	FieldErrors map[string]string `json:"fieldErrors,omitempty"`
}

// Error codes carried by failed results.
const (
	CodeValidation   = "VALIDATION_ERROR"
	CodeUnauthorized = "UNAUTHORIZED"
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidState = "INVALID_STATE"
	CodeConflict     = "CONFLICT"
	CodeInternal     = "INTERNAL_ERROR"
)

// Generic user-facing messages. Details stay in the logs.
const (
	MsgValidation   = "Données invalides"
	MsgUnauthorized = "Non autorisé"
	MsgNotFound     = "Élément introuvable"
	MsgInvalidState = "Action impossible dans l'état actuel"
	MsgInternal     = "Une erreur est survenue, veuillez réessayer"
)

// OK writes a successful result.
func OK(w http.ResponseWriter, status int, data any) {
	JSON(w, status, Result{Success: true, Data: data})
}

// Failure describes how an error is presented to the caller.
type Failure struct {
	Status int
	Result Result
}

// Classify maps an error onto a status code and a generic result. fallback
// replaces the internal error message when non-empty.
func Classify(err error, fallback string) Failure {
	var verr *shared.ValidationError
	switch {
	case errors.As(err, &verr):
		return Failure{Status: http.StatusUnprocessableEntity, Result: Result{Error: MsgValidation, Code: CodeValidation, FieldErrors: verr.Fields}}
	case errors.Is(err, shared.ErrValidation):
		return Failure{Status: http.StatusUnprocessableEntity, Result: Result{Error: MsgValidation, Code: CodeValidation}}
	case errors.Is(err, shared.ErrUnauthorized):
		return Failure{Status: http.StatusUnauthorized, Result: Result{Error: MsgUnauthorized, Code: CodeUnauthorized}}
	case errors.Is(err, shared.ErrNotFound):
		return Failure{Status: http.StatusNotFound, Result: Result{Error: MsgNotFound, Code: CodeNotFound}}
	case errors.Is(err, shared.ErrInvalidState):
		return Failure{Status: http.StatusConflict, Result: Result{Error: MsgInvalidState, Code: CodeInvalidState}}
	case errors.Is(err, shared.ErrConflict):
		msg := fallback
		if msg == "" {
			msg = MsgInternal
		}
		return Failure{Status: http.StatusConflict, Result: Result{Error: msg, Code: CodeConflict}}
	default:
		msg := fallback
		if msg == "" {
			msg = MsgInternal
		}
		return Failure{Status: http.StatusInternalServerError, Result: Result{Error: msg, Code: CodeInternal}}
	}
}

// Fail writes the failed result for err.
func Fail(w http.ResponseWriter, err error, fallback string) {
	f := Classify(err, fallback)
	f.Result.Success = false
	JSON(w, f.Status, f.Result)
}
