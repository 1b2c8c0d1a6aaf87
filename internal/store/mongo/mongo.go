// Package mongo implémente store.Store sur MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"storefront_back_end/internal/apperr"
	"storefront_back_end/internal/models"
	"storefront_back_end/internal/store"
)

var _ store.Store = (*Store)(nil)

const (
	colUsers    = "users"
	colProducts = "products"
	colOrders   = "orders"
	colCarts    = "carts"
	colCounters = "counters"
)

// Collation insensible à la casse, utilisée pour les index uniques sur les noms.
var caseInsensitive = &options.Collation{Locale: "en", Strength: 2}

type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	timeout time.Duration
}

// Connect ouvre la connexion, vérifie le serveur et crée les index.
func Connect(ctx context.Context, uri, database string, timeout time.Duration) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connexion MongoDB: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping MongoDB: %w", err)
	}

	s := &Store{client: client, db: client.Database(database), timeout: timeout}
	if err := s.ensureIndexes(connectCtx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}

	logrus.WithField("database", database).Info("✅ Connecté à MongoDB")
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	unique := func(field string, collation *options.Collation) mongo.IndexModel {
		opts := options.Index().SetUnique(true)
		if collation != nil {
			opts.SetCollation(collation)
		}
		return mongo.IndexModel{Keys: bson.D{{Key: field, Value: 1}}, Options: opts}
	}

	indexes := map[string][]mongo.IndexModel{
		colUsers:    {unique("username", caseInsensitive)},
		colProducts: {unique("name", caseInsensitive), {Keys: bson.D{{Key: "available", Value: 1}}}},
		colOrders:   {{Keys: bson.D{{Key: "user_id", Value: 1}, {Key: "created_at", Value: -1}}}},
		colCarts:    {unique("user_id", nil), {Keys: bson.D{{Key: "updated_at", Value: 1}}}},
	}
	for col, idx := range indexes {
		if _, err := s.db.Collection(col).Indexes().CreateMany(ctx, idx); err != nil {
			return fmt.Errorf("création des index %s: %w", col, err)
		}
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.op(ctx)
	defer cancel()
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// op borne la durée d'un appel. Le contexte dérivé garde la session de
// transaction éventuelle.
func (s *Store) op(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

// WithinTx exécute fn dans une transaction multi-documents. Un appel imbriqué
// réutilise la transaction en cours.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if mongo.SessionFromContext(ctx) != nil {
		return fn(ctx)
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("démarrage session MongoDB: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		return nil, fn(sc)
	})
	return err
}

// Next incrémente le compteur name. Le premier appel retourne store.SequenceStart.
func (s *Store) Next(ctx context.Context, name string) (int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.db.Collection(colCounters).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("compteur %s: %w", name, err)
	}
	return counter.Seq + store.SequenceStart - 1, nil
}

// Users ------------------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	_, err := s.db.Collection(colUsers).InsertOne(ctx, u)
	return mapError(err, "", "Nom d'utilisateur déjà utilisé")
}

func (s *Store) GetUser(ctx context.Context, id string) (*models.User, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var u models.User
	err := s.db.Collection(colUsers).FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err != nil {
		return nil, mapError(err, "Utilisateur introuvable", "")
	}
	return &u, nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*models.User, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var u models.User
	err := s.db.Collection(colUsers).FindOne(ctx,
		bson.M{"username": username},
		options.FindOne().SetCollation(caseInsensitive),
	).Decode(&u)
	if err != nil {
		return nil, mapError(err, "Utilisateur introuvable", "")
	}
	return &u, nil
}

func (s *Store) UpdateUser(ctx context.Context, u *models.User) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	res, err := s.db.Collection(colUsers).ReplaceOne(ctx, bson.M{"_id": u.ID}, u)
	if err != nil {
		return mapError(err, "", "Nom d'utilisateur déjà utilisé")
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.NotFound, "Utilisateur introuvable")
	}
	return nil
}

func (s *Store) ListUsers(ctx context.Context) ([]models.User, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	users := []models.User{}
	if err := s.findAll(ctx, colUsers, bson.M{}, bson.D{{Key: "created_at", Value: 1}}, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// Products -----------------------------------------------------------------------

func (s *Store) CreateProduct(ctx context.Context, p *models.Product) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	_, err := s.db.Collection(colProducts).InsertOne(ctx, p)
	return mapError(err, "", "Nom de produit déjà utilisé")
}

func (s *Store) GetProduct(ctx context.Context, id string) (*models.Product, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var p models.Product
	if err := s.db.Collection(colProducts).FindOne(ctx, bson.M{"_id": id}).Decode(&p); err != nil {
		return nil, mapError(err, "Produit introuvable", "")
	}
	return &p, nil
}

func (s *Store) GetProductByName(ctx context.Context, name string) (*models.Product, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var p models.Product
	err := s.db.Collection(colProducts).FindOne(ctx,
		bson.M{"name": name},
		options.FindOne().SetCollation(caseInsensitive),
	).Decode(&p)
	if err != nil {
		return nil, mapError(err, "Produit introuvable", "")
	}
	return &p, nil
}

func (s *Store) UpdateProduct(ctx context.Context, p *models.Product) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	res, err := s.db.Collection(colProducts).ReplaceOne(ctx, bson.M{"_id": p.ID}, p)
	if err != nil {
		return mapError(err, "", "Nom de produit déjà utilisé")
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.NotFound, "Produit introuvable")
	}
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteOne(ctx, colProducts, bson.M{"_id": id}, "Produit introuvable")
}

func (s *Store) ListProducts(ctx context.Context, onlyAvailable bool) ([]models.Product, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	filter := bson.M{}
	if onlyAvailable {
		filter["available"] = true
	}
	products := []models.Product{}
	if err := s.findAll(ctx, colProducts, filter, bson.D{{Key: "product_number", Value: 1}}, &products); err != nil {
		return nil, err
	}
	return products, nil
}

// Orders -------------------------------------------------------------------------

func (s *Store) CreateOrder(ctx context.Context, o *models.Order) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	_, err := s.db.Collection(colOrders).InsertOne(ctx, o)
	return mapError(err, "", "Commande déjà existante")
}

func (s *Store) GetOrder(ctx context.Context, id string) (*models.Order, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var o models.Order
	if err := s.db.Collection(colOrders).FindOne(ctx, bson.M{"_id": id}).Decode(&o); err != nil {
		return nil, mapError(err, "Commande introuvable", "")
	}
	return &o, nil
}

func (s *Store) UpdateOrder(ctx context.Context, o *models.Order) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	res, err := s.db.Collection(colOrders).ReplaceOne(ctx, bson.M{"_id": o.ID}, o)
	if err != nil {
		return mapError(err, "", "")
	}
	if res.MatchedCount == 0 {
		return apperr.New(apperr.NotFound, "Commande introuvable")
	}
	return nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	return s.deleteOne(ctx, colOrders, bson.M{"_id": id}, "Commande introuvable")
}

func (s *Store) ListOrders(ctx context.Context, userID string) ([]models.Order, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	filter := bson.M{}
	if userID != "" {
		filter["user_id"] = userID
	}
	orders := []models.Order{}
	sort := bson.D{{Key: "created_at", Value: -1}, {Key: "ticket", Value: -1}}
	if err := s.findAll(ctx, colOrders, filter, sort, &orders); err != nil {
		return nil, err
	}
	return orders, nil
}

// Carts --------------------------------------------------------------------------

func (s *Store) GetCart(ctx context.Context, userID string) (*models.Cart, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	var c models.Cart
	if err := s.db.Collection(colCarts).FindOne(ctx, bson.M{"user_id": userID}).Decode(&c); err != nil {
		return nil, mapError(err, "Panier introuvable", "")
	}
	if c.Items == nil {
		c.Items = []models.CartItem{}
	}
	return &c, nil
}

func (s *Store) SaveCart(ctx context.Context, c *models.Cart) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	_, err := s.db.Collection(colCarts).ReplaceOne(ctx,
		bson.M{"user_id": c.UserID}, c,
		options.Replace().SetUpsert(true),
	)
	return mapError(err, "", "")
}

func (s *Store) DeleteCart(ctx context.Context, userID string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	_, err := s.db.Collection(colCarts).DeleteOne(ctx, bson.M{"user_id": userID})
	return mapError(err, "", "")
}

func (s *Store) DeleteStaleCarts(ctx context.Context, before time.Time) (int64, error) {
	ctx, cancel := s.op(ctx)
	defer cancel()

	res, err := s.db.Collection(colCarts).DeleteMany(ctx, bson.M{"updated_at": bson.M{"$lt": before}})
	if err != nil {
		return 0, mapError(err, "", "")
	}
	return res.DeletedCount, nil
}

// Helpers ------------------------------------------------------------------------

func (s *Store) findAll(ctx context.Context, col string, filter interface{}, sort bson.D, out interface{}) error {
	cursor, err := s.db.Collection(col).Find(ctx, filter, options.Find().SetSort(sort))
	if err != nil {
		return mapError(err, "", "")
	}
	defer cursor.Close(ctx)
	return cursor.All(ctx, out)
}

func (s *Store) deleteOne(ctx context.Context, col string, filter interface{}, notFound string) error {
	ctx, cancel := s.op(ctx)
	defer cancel()

	res, err := s.db.Collection(col).DeleteOne(ctx, filter)
	if err != nil {
		return mapError(err, "", "")
	}
	if res.DeletedCount == 0 {
		return apperr.New(apperr.NotFound, notFound)
	}
	return nil
}

// mapError traduit les erreurs du driver dans la taxonomie apperr.
func mapError(err error, notFound, conflict string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return apperr.Wrap(apperr.NotFound, err, notFound)
	case mongo.IsDuplicateKeyError(err):
		return apperr.Wrap(apperr.Conflict, err, conflict)
	default:
		return apperr.Wrap(apperr.Internal, err, "erreur MongoDB")
	}
}
