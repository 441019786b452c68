package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/solkant/solkant/internal/shared"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		fallback string
		status   int
		code     string
		message  string
	}{
		{name: "validation", err: shared.NewValidationError(map[string]string{"clientId": "Client requis"}), status: http.StatusUnprocessableEntity, code: CodeValidation, message: MsgValidation},
		{name: "unauthorized", err: fmt.Errorf("tenant: %w", shared.ErrUnauthorized), status: http.StatusUnauthorized, code: CodeUnauthorized, message: MsgUnauthorized},
		{name: "not found", err: shared.ErrNotFound, status: http.StatusNotFound, code: CodeNotFound, message: MsgNotFound},
		{name: "invalid state", err: shared.ErrInvalidState, status: http.StatusConflict, code: CodeInvalidState, message: MsgInvalidState},
		{name: "conflict uses fallback", err: shared.ErrConflict, fallback: "Erreur lors de la création du devis", status: http.StatusConflict, code: CodeConflict, message: "Erreur lors de la création du devis"},
		{name: "internal hides details", err: errors.New("dial tcp: connection refused"), status: http.StatusInternalServerError, code: CodeInternal, message: MsgInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err, tt.fallback)
			assert.Equal(t, tt.status, f.Status)
			assert.Equal(t, tt.code, f.Result.Code)
			assert.Equal(t, tt.message, f.Result.Error)
			assert.NotContains(t, f.Result.Error, "tcp")
		})
	}
}

func TestFailWritesEnvelope(t *testing.T) {
	rec := httptest.NewRecorder()
	Fail(rec, shared.NewValidationError(map[string]string{"items": "Ajoutez au moins une prestation"}), "")

	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
	assert.Equal(t, CodeValidation, body["code"])
	fields, ok := body["fieldErrors"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Ajoutez au moins une prestation", fields["items"])
}

func TestOK(t *testing.T) {
	rec := httptest.NewRecorder()
	OK(rec, http.StatusCreated, map[string]any{"id": 1})

	assert.Equal(t, http.StatusCreated, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":{"id":1}}`, rec.Body.String())
}
