package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err    error
		status int
	}{
		{Validation("inválido"), http.StatusBadRequest},
		{Conflict("conflito"), http.StatusBadRequest},
		{Authentication("sem token"), http.StatusUnauthorized},
		{Authorization("sem permissão"), http.StatusForbidden},
		{NotFound("não encontrado"), http.StatusNotFound},
		{Dependency("serviço fora", errors.New("timeout")), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tc := range tests {
		assert.Equal(t, tc.status, HTTPStatus(tc.err))
	}
}

func TestHTTPStatusUnwrapsWrappedErrors(t *testing.T) {
	wrapped := fmt.Errorf("handler: %w", NotFound("não encontrado"))
	assert.Equal(t, http.StatusNotFound, HTTPStatus(wrapped))
	assert.True(t, IsKind(wrapped, KindNotFound))
}

func TestMessage(t *testing.T) {
	assert.Equal(t, "inválido", Message(Validation("inválido"), "fallback"))
	assert.Equal(t, "fallback", Message(errors.New("internal detail"), "fallback"))
}

func TestErrorStringAndUnwrap(t *testing.T) {
	cause := errors.New("timeout")
	err := Dependency("serviço fora", cause)
	assert.Equal(t, "serviço fora: timeout", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}
