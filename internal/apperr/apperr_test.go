package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		InvalidInput: http.StatusBadRequest,
		Unauthorized: http.StatusUnauthorized,
		Forbidden:    http.StatusForbidden,
		NotFound:     http.StatusNotFound,
		Conflict:     http.StatusConflict,
		Internal:     http.StatusInternalServerError,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(New(kind, "x")), kind.String())
	}
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestKindSurvivesWrapping(t *testing.T) {
	base := New(NotFound, "Produit introuvable")
	wrapped := fmt.Errorf("create order: %w", base)

	assert.True(t, IsKind(wrapped, NotFound))
	assert.Equal(t, "Produit introuvable", Message(wrapped))
}

func TestWrapKeepsCause(t *testing.T) {
	cause := errors.New("E11000 duplicate key")
	err := Wrap(Conflict, cause, "Nom de produit déjà utilisé")

	assert.ErrorIs(t, err, cause)
	assert.Equal(t, Conflict, KindOf(err))
	assert.Nil(t, Wrap(Conflict, nil, "rien"))
}

func TestMessageHidesInternalErrors(t *testing.T) {
	assert.Equal(t, "Erreur interne du serveur", Message(errors.New("mongo: connection refused")))
	assert.Equal(t, "Erreur interne du serveur", Message(Wrap(Internal, errors.New("x"), "détail")))
}
