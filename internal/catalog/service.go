// Package catalog gère les produits : vue publique, vue administrateur et
// écritures réservées aux administrateurs.
package catalog

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

// Searcher indexe les produits pour la recherche plein texte.
type Searcher interface {
	Index(ctx context.Context, p models.Product) error
	Delete(ctx context.Context, id string) error
	Search(ctx context.Context, query string) ([]models.Product, error)
}

// ProductCache garde la liste publique entre deux écritures.
// Invalidate incrémente une génération. SetPublic n'écrit que si la
// génération lue avant la requête au store n'a pas bougé.
type ProductCache interface {
	GetPublic(ctx context.Context) ([]models.Product, bool)
	Generation(ctx context.Context) (int64, error)
	SetPublic(ctx context.Context, gen int64, products []models.Product)
	Invalidate(ctx context.Context)
}

type Products interface {
	store.ProductStore
	store.Sequencer
}

type Service struct {
	products Products
	search   Searcher
	cache    ProductCache
	log      logrus.FieldLogger
	now      func() time.Time
}

// NewService accepte un searcher et un cache nil.
func NewService(products Products, search Searcher, cache ProductCache, log logrus.FieldLogger) *Service {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Service{
		products: products,
		search:   search,
		cache:    cache,
		log:      log.WithField("component", "catalog"),
		now:      time.Now,
	}
}

// CreateInput reprend le corps de POST /products.
type CreateInput struct {
	Name        string   `json:"name"`
	Price       *float64 `json:"price"`
	Description string   `json:"description"`
	Weight      string   `json:"weight"`
	ImageURL    string   `json:"imageUrl"`
	Available   *bool    `json:"available"`
}

// UpdateInput reprend le corps de PATCH /products. Les champs absents
// gardent leur valeur actuelle.
type UpdateInput struct {
	ID          string   `json:"id"`
	Name        *string  `json:"name"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Weight      *string  `json:"weight"`
	ImageURL    *string  `json:"imageUrl"`
	Available   *bool    `json:"available"`
}

func (s *Service) ListAvailable(ctx context.Context) ([]models.Product, error) {
	var (
		gen      int64
		cachable bool
	)
	if s.cache != nil {
		if products, ok := s.cache.GetPublic(ctx); ok {
			return products, nil
		}
		var err error
		gen, err = s.cache.Generation(ctx)
		cachable = err == nil
	}
	products, err := s.products.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	if cachable {
		s.cache.SetPublic(ctx, gen, products)
	}
	return products, nil
}

func (s *Service) ListAll(ctx context.Context) ([]models.Product, error) {
	return s.products.ListProducts(ctx, false)
}

// Get retourne un produit. Un produit indisponible n'est visible que des
// administrateurs.
func (s *Service) Get(ctx context.Context, id string, admin bool) (*models.Product, error) {
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return nil, err
	}
	if !p.Available && !admin {
		return nil, apperr.New(apperr.NotFound, "Produit introuvable")
	}
	return p, nil
}

// Search interroge l'index de recherche, ou parcourt le catalogue si
// l'index est indisponible. Seuls les produits disponibles sont retournés.
func (s *Service) Search(ctx context.Context, query string) ([]models.Product, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return s.ListAvailable(ctx)
	}

	if s.search != nil {
		hits, err := s.search.Search(ctx, query)
		if err == nil {
			out := make([]models.Product, 0, len(hits))
			for _, p := range hits {
				if p.Available {
					out = append(out, p)
				}
			}
			return out, nil
		}
		s.log.WithError(err).Warn("⚠️ Recherche indisponible, parcours du catalogue")
	}

	products, err := s.products.ListProducts(ctx, true)
	if err != nil {
		return nil, err
	}
	needle := strings.ToLower(query)
	out := make([]models.Product, 0)
	for _, p := range products {
		if strings.Contains(strings.ToLower(p.Name), needle) ||
			strings.Contains(strings.ToLower(p.Description), needle) ||
			strings.Contains(strings.ToLower(p.Weight), needle) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*models.Product, error) {
	name := strings.TrimSpace(in.Name)
	imageURL := strings.TrimSpace(in.ImageURL)
	if name == "" || in.Price == nil || imageURL == "" {
		return nil, apperr.New(apperr.InvalidInput, "Les champs name, price et imageUrl sont obligatoires")
	}
	if *in.Price < 0 {
		return nil, apperr.New(apperr.InvalidInput, "Le prix doit être positif")
	}

	if _, err := s.products.GetProductByName(ctx, name); err == nil {
		return nil, apperr.New(apperr.Conflict, "Nom de produit déjà utilisé")
	} else if !apperr.IsKind(err, apperr.NotFound) {
		return nil, err
	}

	number, err := s.products.Next(ctx, store.SeqProducts)
	if err != nil {
		return nil, err
	}

	available := true
	if in.Available != nil {
		available = *in.Available
	}
	now := s.now().UTC()
	p := &models.Product{
		ID:            uuid.NewString(),
		Name:          name,
		Price:         *in.Price,
		Description:   in.Description,
		Weight:        in.Weight,
		ImageURL:      imageURL,
		Available:     available,
		ProductNumber: number,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.products.CreateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, p, false)
	s.log.WithFields(logrus.Fields{"product_id": p.ID, "number": p.ProductNumber}).Info("🆕 Produit créé")
	return p, nil
}

func (s *Service) Update(ctx context.Context, in UpdateInput) (*models.Product, error) {
	if strings.TrimSpace(in.ID) == "" {
		return nil, apperr.New(apperr.InvalidInput, "L'id du produit est obligatoire")
	}
	p, err := s.products.GetProduct(ctx, in.ID)
	if err != nil {
		return nil, err
	}

	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, apperr.New(apperr.InvalidInput, "Le nom ne peut pas être vide")
		}
		if existing, err := s.products.GetProductByName(ctx, name); err == nil && existing.ID != p.ID {
			return nil, apperr.New(apperr.Conflict, "Nom de produit déjà utilisé")
		} else if err != nil && !apperr.IsKind(err, apperr.NotFound) {
			return nil, err
		}
		p.Name = name
	}
	if in.Price != nil {
		if *in.Price < 0 {
			return nil, apperr.New(apperr.InvalidInput, "Le prix doit être positif")
		}
		p.Price = *in.Price
	}
	if in.Description != nil {
		p.Description = *in.Description
	}
	if in.Weight != nil {
		p.Weight = *in.Weight
	}
	if in.ImageURL != nil {
		imageURL := strings.TrimSpace(*in.ImageURL)
		if imageURL == "" {
			return nil, apperr.New(apperr.InvalidInput, "imageUrl ne peut pas être vide")
		}
		p.ImageURL = imageURL
	}
	if in.Available != nil {
		p.Available = *in.Available
	}
	p.UpdatedAt = s.now().UTC()

	if err := s.products.UpdateProduct(ctx, p); err != nil {
		return nil, err
	}

	s.afterWrite(ctx, p, false)
	return p, nil
}

func (s *Service) Delete(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperr.New(apperr.InvalidInput, "L'id du produit est obligatoire")
	}
	p, err := s.products.GetProduct(ctx, id)
	if err != nil {
		return err
	}
	if err := s.products.DeleteProduct(ctx, id); err != nil {
		return err
	}

	s.afterWrite(ctx, p, true)
	s.log.WithField("product_id", id).Info("🗑️ Produit supprimé")
	return nil
}

// afterWrite invalide le cache public et met l'index de recherche à jour.
// Un échec d'indexation est journalisé sans annuler l'écriture.
func (s *Service) afterWrite(ctx context.Context, p *models.Product, deleted bool) {
	if s.cache != nil {
		s.cache.Invalidate(ctx)
	}
	if s.search == nil {
		return
	}
	var err error
	if deleted {
		err = s.search.Delete(ctx, p.ID)
	} else {
		err = s.search.Index(ctx, *p)
	}
	if err != nil {
		s.log.WithError(err).WithField("product_id", p.ID).Warn("⚠️ Index de recherche non mis à jour")
	}
}
