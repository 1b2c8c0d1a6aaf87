// Package memory fournit une implémentation en mémoire de store.Store,
// utilisée par les tests et par STORE_DRIVER=memory.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

var _ store.Store = (*Store)(nil)

type txKey struct{}

// tx garde le journal d'annulation d'une transaction ouverte.
type tx struct {
	undo []func()
}

func txFrom(ctx context.Context) *tx {
	t, _ := ctx.Value(txKey{}).(*tx)
	return t
}

// Store garde toutes les collections dans des maps protégées par un mutex.
// Les transactions sont sérialisées entre elles. Une transaction annulée
// ne rétablit que les clés qu'elle a écrites, les écritures faites hors
// transaction pendant ce temps sont conservées.
type Store struct {
	mu       sync.RWMutex
	txMu     sync.Mutex
	users    map[string]models.User
	products map[string]models.Product
	orders   map[string]models.Order
	carts    map[string]models.Cart
	counters map[string]int64
}

func New() *Store {
	return &Store{
		users:    make(map[string]models.User),
		products: make(map[string]models.Product),
		orders:   make(map[string]models.Order),
		carts:    make(map[string]models.Cart),
		counters: make(map[string]int64),
	}
}

func (s *Store) Ping(context.Context) error  { return nil }
func (s *Store) Close(context.Context) error { return nil }

// Transactions ---------------------------------------------------------------

func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if txFrom(ctx) != nil {
		return fn(ctx)
	}

	s.txMu.Lock()
	defer s.txMu.Unlock()

	t := &tx{}
	if err := fn(context.WithValue(ctx, txKey{}, t)); err != nil {
		s.rollback(t)
		return err
	}
	return nil
}

func (s *Store) rollback(t *tx) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
}

// remember note l'état d'une clé avant écriture quand ctx porte une
// transaction. À appeler sous s.mu.
func remember[V any](ctx context.Context, m map[string]V, key string) {
	t := txFrom(ctx)
	if t == nil {
		return
	}
	prev, existed := m[key]
	t.undo = append(t.undo, func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
}

// Sequencer ------------------------------------------------------------------

func (s *Store) Next(ctx context.Context, name string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.counters[name]
	if !ok {
		v = store.SequenceStart - 1
	}
	v++
	s.counters[name] = v
	if t := txFrom(ctx); t != nil {
		// Un numéro déjà repris hors transaction n'est pas rendu.
		t.undo = append(t.undo, func() {
			if s.counters[name] != v {
				return
			}
			if ok {
				s.counters[name] = v - 1
			} else {
				delete(s.counters, name)
			}
		})
	}
	return v, nil
}

// UserStore ------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.users[u.ID]; exists {
		return apperr.Newf(apperr.Conflict, "Utilisateur %s déjà existant", u.ID)
	}
	if s.usernameTakenLocked(u.Username, "") {
		return apperr.New(apperr.Conflict, "Nom d'utilisateur déjà utilisé")
	}
	remember(ctx, s.users, u.ID)
	s.users[u.ID] = cloneUser(*u)
	return nil
}

func (s *Store) GetUser(_ context.Context, id string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "Utilisateur introuvable")
	}
	out := cloneUser(u)
	return &out, nil
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, u := range s.users {
		if strings.EqualFold(u.Username, username) {
			out := cloneUser(u)
			return &out, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "Utilisateur introuvable")
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[u.ID]; !ok {
		return apperr.New(apperr.NotFound, "Utilisateur introuvable")
	}
	if s.usernameTakenLocked(u.Username, u.ID) {
		return apperr.New(apperr.Conflict, "Nom d'utilisateur déjà utilisé")
	}
	remember(ctx, s.users, u.ID)
	s.users[u.ID] = cloneUser(*u)
	return nil
}

func (s *Store) ListUsers(context.Context) ([]models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.User, 0, len(s.users))
	for _, u := range s.users {
		out = append(out, cloneUser(u))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) usernameTakenLocked(username, exceptID string) bool {
	for id, u := range s.users {
		if id != exceptID && strings.EqualFold(u.Username, username) {
			return true
		}
	}
	return false
}

// ProductStore ---------------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.products[p.ID]; exists {
		return apperr.Newf(apperr.Conflict, "Produit %s déjà existant", p.ID)
	}
	if s.productNameTakenLocked(p.Name, "") {
		return apperr.New(apperr.Conflict, "Nom de produit déjà utilisé")
	}
	remember(ctx, s.products, p.ID)
	s.products[p.ID] = *p
	return nil
}

func (s *Store) GetProduct(_ context.Context, id string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.products[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "Produit introuvable")
	}
	return &p, nil
}

func (s *Store) GetProductByName(_ context.Context, name string) (*models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.products {
		if strings.EqualFold(p.Name, name) {
			out := p
			return &out, nil
		}
	}
	return nil, apperr.New(apperr.NotFound, "Produit introuvable")
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[p.ID]; !ok {
		return apperr.New(apperr.NotFound, "Produit introuvable")
	}
	if s.productNameTakenLocked(p.Name, p.ID) {
		return apperr.New(apperr.Conflict, "Nom de produit déjà utilisé")
	}
	remember(ctx, s.products, p.ID)
	s.products[p.ID] = *p
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return apperr.New(apperr.NotFound, "Produit introuvable")
	}
	remember(ctx, s.products, id)
	delete(s.products, id)
	return nil
}

func (s *Store) ListProducts(_ context.Context, onlyAvailable bool) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Product, 0, len(s.products))
	for _, p := range s.products {
		if onlyAvailable && !p.Available {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ProductNumber < out[j].ProductNumber })
	return out, nil
}

func (s *Store) productNameTakenLocked(name, exceptID string) bool {
	for id, p := range s.products {
		if id != exceptID && strings.EqualFold(p.Name, name) {
			return true
		}
	}
	return false
}

// OrderStore -----------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.orders[o.ID]; exists {
		return apperr.Newf(apperr.Conflict, "Commande %s déjà existante", o.ID)
	}
	remember(ctx, s.orders, o.ID)
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) GetOrder(_ context.Context, id string) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.orders[id]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "Commande introuvable")
	}
	out := cloneOrder(o)
	return &out, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *models.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[o.ID]; !ok {
		return apperr.New(apperr.NotFound, "Commande introuvable")
	}
	remember(ctx, s.orders, o.ID)
	s.orders[o.ID] = cloneOrder(*o)
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.orders[id]; !ok {
		return apperr.New(apperr.NotFound, "Commande introuvable")
	}
	remember(ctx, s.orders, id)
	delete(s.orders, id)
	return nil
}

func (s *Store) ListOrders(_ context.Context, userID string) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Order, 0)
	for _, o := range s.orders {
		if userID != "" && o.UserID != userID {
			continue
		}
		out = append(out, cloneOrder(o))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Ticket > out[j].Ticket
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// CartStore ------------------------------------------------------------------

func (s *Store) GetCart(_ context.Context, userID string) (*models.Cart, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.carts[userID]
	if !ok {
		return nil, apperr.New(apperr.NotFound, "Panier introuvable")
	}
	out := cloneCart(c)
	return &out, nil
}

func (s *Store) SaveCart(ctx context.Context, c *models.Cart) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remember(ctx, s.carts, c.UserID)
	s.carts[c.UserID] = cloneCart(*c)
	return nil
}

func (s *Store) DeleteCart(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	remember(ctx, s.carts, userID)
	delete(s.carts, userID)
	return nil
}

func (s *Store) DeleteStaleCarts(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for id, c := range s.carts {
		if c.UpdatedAt.Before(before) {
			remember(ctx, s.carts, id)
			delete(s.carts, id)
			n++
		}
	}
	return n, nil
}

// Helpers ----------------------------------------------------------------------

func cloneUser(u models.User) models.User {
	u.Roles = append(models.Roles(nil), u.Roles...)
	return u
}

func cloneOrder(o models.Order) models.Order {
	o.Items = append([]models.OrderItem(nil), o.Items...)
	return o
}

func cloneCart(c models.Cart) models.Cart {
	c.Items = append([]models.CartItem{}, c.Items...)
	return c
}
