// Package store déclare les interfaces de persistance utilisées par les
// services. Les implémentations vivent dans store/mongo et store/memory.
package store

import (
	"context"
	"time"

	"storefront_back_end/internal/models"
)

// Noms des compteurs de séquence.
const (
	SeqProducts = "productNums"
	SeqOrders   = "orderNums"
)

// SequenceStart est la première valeur rendue par un compteur.
const SequenceStart = 100

type UserStore interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	// GetUserByUsername compare les noms sans tenir compte de la casse.
	GetUserByUsername(ctx context.Context, username string) (*models.User, error)
	UpdateUser(ctx context.Context, u *models.User) error
	ListUsers(ctx context.Context) ([]models.User, error)
}

type ProductStore interface {
	CreateProduct(ctx context.Context, p *models.Product) error
	GetProduct(ctx context.Context, id string) (*models.Product, error)
	// GetProductByName compare les noms sans tenir compte de la casse.
	GetProductByName(ctx context.Context, name string) (*models.Product, error)
	UpdateProduct(ctx context.Context, p *models.Product) error
	DeleteProduct(ctx context.Context, id string) error
	ListProducts(ctx context.Context, onlyAvailable bool) ([]models.Product, error)
}

type OrderStore interface {
	CreateOrder(ctx context.Context, o *models.Order) error
	GetOrder(ctx context.Context, id string) (*models.Order, error)
	UpdateOrder(ctx context.Context, o *models.Order) error
	DeleteOrder(ctx context.Context, id string) error
	// ListOrders retourne les commandes les plus récentes d'abord. userID vide = toutes.
	ListOrders(ctx context.Context, userID string) ([]models.Order, error)
}

type CartStore interface {
	// GetCart retourne NotFound si l'utilisateur n'a pas de panier.
	GetCart(ctx context.Context, userID string) (*models.Cart, error)
	SaveCart(ctx context.Context, c *models.Cart) error
	DeleteCart(ctx context.Context, userID string) error
	// DeleteStaleCarts supprime les paniers non modifiés depuis before.
	DeleteStaleCarts(ctx context.Context, before time.Time) (int64, error)
}

type Sequencer interface {
	// Next incrémente atomiquement le compteur name et retourne sa valeur.
	Next(ctx context.Context, name string) (int64, error)
}

// TxRunner exécute fn dans une transaction. Le contexte passé à fn doit être
// transmis aux appels de store pour qu'ils participent à la transaction.
type TxRunner interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Store regroupe tout ce qu'une implémentation complète doit fournir.
type Store interface {
	UserStore
	ProductStore
	OrderStore
	CartStore
	Sequencer
	TxRunner
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}
