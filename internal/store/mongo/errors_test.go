package mongo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.mongodb.org/mongo-driver/mongo"

	"storefront_back_end/internal/apperr"
)

func TestMapError(t *testing.T) {
	assert.NoError(t, mapError(nil, "", ""))

	notFound := mapError(mongo.ErrNoDocuments, "Produit introuvable", "")
	assert.True(t, apperr.IsKind(notFound, apperr.NotFound))
	assert.Equal(t, "Produit introuvable", apperr.Message(notFound))

	dup := mongo.WriteException{WriteErrors: []mongo.WriteError{{Code: 11000, Message: "E11000 duplicate key"}}}
	conflict := mapError(dup, "", "Nom de produit déjà utilisé")
	assert.True(t, apperr.IsKind(conflict, apperr.Conflict))

	other := mapError(errors.New("socket closed"), "", "")
	assert.True(t, apperr.IsKind(other, apperr.Internal))
}
