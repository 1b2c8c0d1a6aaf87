package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"storefront_back_end/internal/models"
)

const ProductCacheTTL = 10 * time.Minute

// RedisProductCache garde la liste publique du catalogue en JSON.
type RedisProductCache struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisProductCache(rdb *redis.Client) *RedisProductCache {
	return &RedisProductCache{rdb: rdb, ttl: ProductCacheTTL}
}

func (c *RedisProductCache) GetPublic(ctx context.Context) ([]models.Product, bool) {
	data, err := c.rdb.Get(ctx, publicProductsKey).Bytes()
	if err != nil {
		if !IsMiss(err) {
			logrus.WithError(err).Warn("⚠️ Lecture du cache produits impossible")
		}
		return nil, false
	}
	var products []models.Product
	if err := json.Unmarshal(data, &products); err != nil {
		return nil, false
	}
	return products, true
}

// Generation renvoie 0 tant qu'aucune invalidation n'a eu lieu.
func (c *RedisProductCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.rdb.Get(ctx, publicProductsGenKey).Int64()
	if IsMiss(err) {
		return 0, nil
	}
	return gen, err
}

var errStaleGeneration = errors.New("génération du cache périmée")

// SetPublic écrit la liste sous WATCH de la génération : une invalidation
// survenue depuis la lecture de gen fait échouer l'écriture.
func (c *RedisProductCache) SetPublic(ctx context.Context, gen int64, products []models.Product) {
	data, err := json.Marshal(products)
	if err != nil {
		return
	}
	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, publicProductsGenKey).Int64()
		if err != nil && !IsMiss(err) {
			return err
		}
		if cur != gen {
			return errStaleGeneration
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, publicProductsKey, data, c.ttl)
			return nil
		})
		return err
	}, publicProductsGenKey)
	switch {
	case err == nil:
	case errors.Is(err, errStaleGeneration), errors.Is(err, redis.TxFailedErr):
		logrus.Debug("Cache produits non rempli : catalogue modifié entre-temps")
	default:
		logrus.WithError(err).Warn("⚠️ Écriture du cache produits impossible")
	}
}

func (c *RedisProductCache) Invalidate(ctx context.Context) {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, publicProductsGenKey)
		pipe.Del(ctx, publicProductsKey)
		return nil
	})
	if err != nil {
		logrus.WithError(err).Warn("⚠️ Invalidation du cache produits impossible")
	}
}

// NopProductCache ne garde rien.
type NopProductCache struct{}

func (NopProductCache) GetPublic(context.Context) ([]models.Product, bool) { return nil, false }
func (NopProductCache) Generation(context.Context) (int64, error)          { return 0, nil }
func (NopProductCache) SetPublic(context.Context, int64, []models.Product) {}
func (NopProductCache) Invalidate(context.Context)                         {}
