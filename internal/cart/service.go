// Package cart gère le panier serveur de chaque utilisateur et sa
// conversion en commande.
package cart

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/cache"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/orders"
	"storefront_back_end/internal/store"
)

// Events diffuse les changements de panier aux clients connectés.
type Events interface {
	Publish(ctx context.Context, userID, event string) error
}

// Recorder compte les passages en caisse par résultat.
type Recorder interface {
	Checkout(result string)
}

type Store interface {
	store.CartStore
	store.ProductStore
	store.TxRunner
}

type Service struct {
	store    Store
	orders   *orders.Service
	events   Events
	recorder Recorder
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(st Store, orderSvc *orders.Service, events Events, recorder Recorder, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:    st,
		orders:   orderSvc,
		events:   events,
		recorder: recorder,
		log:      log.WithField("component", "cart"),
		now:      time.Now,
	}
}

func (s *Service) load(ctx context.Context, userID string) (*models.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.New(apperr.Unauthorized, "Non authentifié")
	}
	c, err := s.store.GetCart(ctx, userID)
	if apperr.IsKind(err, apperr.NotFound) {
		return models.NewCart(userID), nil
	}
	return c, err
}

// Get retourne le panier avec les noms et prix actuels du catalogue. Les
// produits supprimés depuis sont retirés.
func (s *Service) Get(ctx context.Context, userID string) (*models.Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	fresh := c.Items[:0]
	for _, item := range c.Items {
		p, err := s.store.GetProduct(ctx, item.ProductID)
		if apperr.IsKind(err, apperr.NotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		item.Name, item.Price, item.ImageURL = p.Name, p.Price, p.ImageURL
		fresh = append(fresh, item)
	}
	c.Items = fresh
	return c, nil
}

// Add ajoute qty unités d'un produit disponible. qty vaut 1 si absent.
func (s *Service) Add(ctx context.Context, userID, productID string, qty int) (*models.Cart, error) {
	if qty == 0 {
		qty = 1
	}
	if qty < 0 {
		return nil, apperr.New(apperr.InvalidInput, "La quantité doit être positive")
	}
	if strings.TrimSpace(productID) == "" {
		return nil, apperr.New(apperr.InvalidInput, "productId est obligatoire")
	}

	p, err := s.store.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	if !p.Available {
		return nil, apperr.New(apperr.InvalidInput, "Produit indisponible")
	}

	return s.mutate(ctx, userID, func(c *models.Cart) bool {
		c.AddQuantity(*p, qty)
		return true
	})
}

// SetQuantity ajuste la quantité de delta. La ligne disparaît sous 1.
func (s *Service) SetQuantity(ctx context.Context, userID, productID string, delta int) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(c *models.Cart) bool {
		return delta != 0 && c.SetQuantity(productID, delta)
	})
}

func (s *Service) Remove(ctx context.Context, userID, productID string) (*models.Cart, error) {
	return s.mutate(ctx, userID, func(c *models.Cart) bool {
		return c.Remove(productID)
	})
}

func (s *Service) Clear(ctx context.Context, userID string) (*models.Cart, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, apperr.New(apperr.Unauthorized, "Non authentifié")
	}
	if err := s.store.DeleteCart(ctx, userID); err != nil {
		return nil, err
	}
	s.publish(ctx, userID, cache.CartCleared)
	return models.NewCart(userID), nil
}

func (s *Service) mutate(ctx context.Context, userID string, fn func(c *models.Cart) bool) (*models.Cart, error) {
	c, err := s.load(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !fn(c) {
		return c, nil
	}
	c.UpdatedAt = s.now().UTC()
	if err := s.store.SaveCart(ctx, c); err != nil {
		return nil, err
	}
	s.publish(ctx, userID, cache.CartUpdated)
	return c, nil
}

// Checkout convertit le panier en commande et le vide dans une même
// transaction : soit les deux réussissent, soit rien ne change.
func (s *Service) Checkout(ctx context.Context, userID string) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		c, err := s.load(ctx, userID)
		if err != nil {
			return err
		}
		if c.IsEmpty() {
			return apperr.New(apperr.InvalidInput, "Le panier est vide")
		}

		order, err = s.orders.PlaceInTx(ctx, userID, c.LineItems())
		if err != nil {
			return err
		}
		return s.store.DeleteCart(ctx, userID)
	})
	if err != nil {
		s.record("failed")
		return nil, err
	}

	s.record("success")
	s.orders.Announce(ctx, order)
	s.publish(ctx, userID, cache.CartCleared)
	return order, nil
}

func (s *Service) record(result string) {
	if s.recorder != nil {
		s.recorder.Checkout(result)
	}
}

func (s *Service) publish(ctx context.Context, userID, event string) {
	if s.events == nil {
		return
	}
	if err := s.events.Publish(ctx, userID, event); err != nil {
		s.log.WithError(err).WithField("user_id", userID).Warn("⚠️ Événement panier non publié")
	}
}
