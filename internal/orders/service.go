// Package orders gère le cycle de vie des commandes.
package orders

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

// Notifier est prévenu une fois la transaction validée.
type Notifier interface {
	OrderPlaced(ctx context.Context, order models.Order)
	OrderStatusChanged(ctx context.Context, order models.Order, previous models.OrderStatus)
}

// Recorder compte les commandes créées.
type Recorder interface {
	OrderCreated()
}

type Store interface {
	store.UserStore
	store.ProductStore
	store.OrderStore
	store.Sequencer
	store.TxRunner
}

type Options struct {
	// FreeTransitions désactive la table de transitions de statut.
	FreeTransitions bool
}

type Service struct {
	store    Store
	notifier Notifier
	recorder Recorder
	opts     Options
	log      logrus.FieldLogger
	now      func() time.Time
}

func NewService(st Store, notifier Notifier, recorder Recorder, opts Options, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		store:    st,
		notifier: notifier,
		recorder: recorder,
		opts:     opts,
		log:      log.WithField("component", "orders"),
		now:      time.Now,
	}
}

// UpdatePatch reprend le corps de PATCH /orders.
type UpdatePatch struct {
	UserID    string
	Items     []models.LineItem
	Completed *bool
}

func (s *Service) CreateOrder(ctx context.Context, userID string, items []models.LineItem) (*models.Order, error) {
	var order *models.Order
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		var err error
		order, err = s.PlaceInTx(ctx, userID, items)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.Announce(ctx, order)
	return order, nil
}

// PlaceInTx crée la commande sans gérer la transaction ni les
// notifications. ctx doit porter la transaction de l'appelant, qui appelle
// Announce après validation.
func (s *Service) PlaceInTx(ctx context.Context, userID string, items []models.LineItem) (*models.Order, error) {
	lines, err := s.validate(ctx, userID, items)
	if err != nil {
		return nil, err
	}

	ticket, err := s.store.Next(ctx, store.SeqOrders)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	order := &models.Order{
		ID:         uuid.NewString(),
		UserID:     userID,
		Items:      lines,
		TotalPrice: models.ItemsTotal(lines),
		Status:     models.StatusPending,
		Completed:  false,
		Ticket:     ticket,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := s.store.CreateOrder(ctx, order); err != nil {
		return nil, err
	}
	return order, nil
}

// Announce publie une commande validée : métriques, notification, log.
func (s *Service) Announce(ctx context.Context, order *models.Order) {
	if s.recorder != nil {
		s.recorder.OrderCreated()
	}
	if s.notifier != nil {
		s.notifier.OrderPlaced(ctx, *order)
	}
	s.log.WithFields(logrus.Fields{
		"order_id": order.ID,
		"ticket":   order.Ticket,
		"total":    order.TotalPrice,
	}).Info("🧾 Commande créée")
}

// validate contrôle dans l'ordre : lignes, utilisateur, produits. Les lignes
// d'un même produit sont fusionnées et les prix relus au catalogue.
func (s *Service) validate(ctx context.Context, userID string, items []models.LineItem) ([]models.OrderItem, error) {
	if len(items) == 0 {
		return nil, apperr.New(apperr.InvalidInput, "La commande doit contenir au moins un produit")
	}
	merged := make([]models.LineItem, 0, len(items))
	index := make(map[string]int, len(items))
	for _, item := range items {
		productID := strings.TrimSpace(item.ProductID)
		if productID == "" {
			return nil, apperr.New(apperr.InvalidInput, "Chaque ligne doit référencer un produit")
		}
		if item.Quantity < 1 {
			return nil, apperr.New(apperr.InvalidInput, "La quantité doit être au moins 1")
		}
		if i, ok := index[productID]; ok {
			merged[i].Quantity += item.Quantity
			continue
		}
		index[productID] = len(merged)
		merged = append(merged, models.LineItem{ProductID: productID, Quantity: item.Quantity})
	}

	if strings.TrimSpace(userID) == "" {
		return nil, apperr.New(apperr.InvalidInput, "L'utilisateur est obligatoire")
	}
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return nil, err
	}

	lines := make([]models.OrderItem, 0, len(merged))
	for _, item := range merged {
		p, err := s.store.GetProduct(ctx, item.ProductID)
		if err != nil {
			if apperr.IsKind(err, apperr.NotFound) {
				return nil, apperr.Newf(apperr.NotFound, "Produit introuvable: %s", item.ProductID)
			}
			return nil, err
		}
		lines = append(lines, models.OrderItem{
			ProductID: p.ID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  item.Quantity,
		})
	}
	return lines, nil
}

func (s *Service) UpdateOrder(ctx context.Context, id string, patch UpdatePatch) (*models.Order, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperr.New(apperr.InvalidInput, "L'id de la commande est obligatoire")
	}

	var (
		order    *models.Order
		previous models.OrderStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		previous = current.Status

		lines, err := s.validate(ctx, patch.UserID, patch.Items)
		if err != nil {
			return err
		}
		if current.Status.Terminal() && !s.opts.FreeTransitions {
			return apperr.Newf(apperr.Conflict, "Commande %s, modification impossible", current.Status)
		}

		next := current.Status
		if patch.Completed != nil {
			switch {
			case *patch.Completed:
				next = models.StatusCompleted
			case current.Status == models.StatusCompleted:
				next = models.StatusPending
			}
		}
		if !s.allowed(current.Status, next) {
			return apperr.Newf(apperr.Conflict, "Transition %s → %s interdite", current.Status, next)
		}

		current.UserID = patch.UserID
		current.Items = lines
		current.TotalPrice = models.ItemsTotal(lines)
		current.Status = next
		current.Completed = next == models.StatusCompleted
		current.UpdatedAt = s.now().UTC()
		if err := s.store.UpdateOrder(ctx, current); err != nil {
			return err
		}
		order = current
		return nil
	})
	if err != nil {
		return nil, err
	}

	if order.Status != previous && s.notifier != nil {
		s.notifier.OrderStatusChanged(ctx, *order, previous)
	}
	return order, nil
}

// SetStatus change le statut d'une commande. Demander le statut actuel ne
// produit aucun effet.
func (s *Service) SetStatus(ctx context.Context, id string, status string) (*models.Order, error) {
	next := models.OrderStatus(strings.ToLower(strings.TrimSpace(status)))
	if !next.Valid() {
		return nil, apperr.Newf(apperr.InvalidInput, "Statut inconnu: %s", status)
	}
	if strings.TrimSpace(id) == "" {
		return nil, apperr.New(apperr.InvalidInput, "L'id de la commande est obligatoire")
	}

	var (
		order    *models.Order
		previous models.OrderStatus
	)
	err := s.store.WithinTx(ctx, func(ctx context.Context) error {
		current, err := s.store.GetOrder(ctx, id)
		if err != nil {
			return err
		}
		previous = current.Status
		order = current
		if current.Status == next {
			return nil
		}
		if !s.allowed(current.Status, next) {
			return apperr.Newf(apperr.Conflict, "Transition %s → %s interdite", current.Status, next)
		}

		current.Status = next
		current.Completed = next == models.StatusCompleted
		current.UpdatedAt = s.now().UTC()
		return s.store.UpdateOrder(ctx, current)
	})
	if err != nil {
		return nil, err
	}

	if order.Status != previous {
		if s.notifier != nil {
			s.notifier.OrderStatusChanged(ctx, *order, previous)
		}
		s.log.WithFields(logrus.Fields{
			"order_id": order.ID,
			"from":     previous,
			"to":       order.Status,
		}).Info("📦 Statut de commande modifié")
	}
	return order, nil
}

func (s *Service) allowed(from, to models.OrderStatus) bool {
	return s.opts.FreeTransitions || CanTransition(from, to)
}

// Get retourne la commande si requester en est le propriétaire ou un administrateur.
func (s *Service) Get(ctx context.Context, id, requester string, admin bool) (*models.Order, error) {
	order, err := s.store.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !admin && order.UserID != requester {
		return nil, apperr.New(apperr.Forbidden, "Accès refusé")
	}
	return order, nil
}

func (s *Service) ListForUser(ctx context.Context, userID string) ([]models.Order, error) {
	if userID == "" {
		return nil, apperr.New(apperr.InvalidInput, "L'utilisateur est obligatoire")
	}
	return s.store.ListOrders(ctx, userID)
}

func (s *Service) ListAll(ctx context.Context) ([]models.Order, error) {
	return s.store.ListOrders(ctx, "")
}

// ListAllWithUsers ajoute le nom d'utilisateur à chaque commande. Un compte
// supprimé laisse le nom vide.
func (s *Service) ListAllWithUsers(ctx context.Context) ([]models.UserOrder, error) {
	list, err := s.store.ListOrders(ctx, "")
	if err != nil {
		return nil, err
	}

	names := make(map[string]string)
	out := make([]models.UserOrder, 0, len(list))
	for _, o := range list {
		name, ok := names[o.UserID]
		if !ok {
			u, err := s.store.GetUser(ctx, o.UserID)
			switch {
			case err == nil:
				name = u.Username
			case !apperr.IsKind(err, apperr.NotFound):
				return nil, err
			}
			names[o.UserID] = name
		}
		out = append(out, models.UserOrder{Order: o, Username: name})
	}
	return out, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.New(apperr.InvalidInput, "L'id de la commande est obligatoire")
	}
	return s.store.DeleteOrder(ctx, id)
}
