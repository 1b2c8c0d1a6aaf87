// Package cache regroupe les usages de Redis : révocation des sessions,
// limitation des connexions, cache du catalogue public et événements panier.
// Chaque usage a une variante en mémoire utilisée quand Redis n'est pas configuré.
package cache

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

func revokedKey(jti string) string        { return fmt.Sprintf("revoked:%s", jti) }
func loginAttemptsKey(name string) string { return fmt.Sprintf("login_attempts:%s", name) }
func loginCooldownKey(name string) string { return fmt.Sprintf("login_cooldown:%s", name) }
func cartChannel(userID string) string    { return fmt.Sprintf("cart:%s", userID) }

const (
	publicProductsKey    = "products:public"
	publicProductsGenKey = "products:public:gen"
)

// --- Révocation des refresh tokens ---

type RedisSessions struct {
	rdb *redis.Client
}

func NewRedisSessions(rdb *redis.Client) *RedisSessions {
	return &RedisSessions{rdb: rdb}
}

// Revoke marque le jeton comme révoqué jusqu'à son expiration naturelle.
func (s *RedisSessions) Revoke(ctx context.Context, jti string, ttl time.Duration) error {
	return s.rdb.Set(ctx, revokedKey(jti), "revoked", ttl).Err()
}

func (s *RedisSessions) IsRevoked(ctx context.Context, jti string) (bool, error) {
	n, err := s.rdb.Exists(ctx, revokedKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

type MemorySessions struct {
	mu      sync.Mutex
	revoked map[string]time.Time
	now     func() time.Time
}

func NewMemorySessions() *MemorySessions {
	return &MemorySessions{revoked: make(map[string]time.Time), now: time.Now}
}

func (s *MemorySessions) Revoke(_ context.Context, jti string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.revoked[jti] = s.now().Add(ttl)
	return nil
}

func (s *MemorySessions) IsRevoked(_ context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	until, ok := s.revoked[jti]
	if !ok {
		return false, nil
	}
	if s.now().After(until) {
		delete(s.revoked, jti)
		return false, nil
	}
	return true, nil
}

// --- Limitation des tentatives de connexion ---

const (
	LoginMaxAttempts = 5
	LoginCooldown    = 15 * time.Minute
)

// LoginGuard compte les échecs de connexion par nom d'utilisateur.
type LoginGuard interface {
	// Cooldown retourne la durée de blocage restante, 0 si aucun blocage.
	Cooldown(ctx context.Context, username string) (time.Duration, error)
	// Fail enregistre un échec et retourne le nombre d'essais restants
	// avant blocage.
	Fail(ctx context.Context, username string) (int, error)
	Reset(ctx context.Context, username string) error
}

type RedisLoginGuard struct {
	rdb *redis.Client
}

func NewRedisLoginGuard(rdb *redis.Client) *RedisLoginGuard {
	return &RedisLoginGuard{rdb: rdb}
}

func (g *RedisLoginGuard) Cooldown(ctx context.Context, username string) (time.Duration, error) {
	ttl, err := g.rdb.TTL(ctx, loginCooldownKey(username)).Result()
	if err != nil {
		return 0, err
	}
	if ttl < 0 {
		return 0, nil
	}
	return ttl, nil
}

func (g *RedisLoginGuard) Fail(ctx context.Context, username string) (int, error) {
	key := loginAttemptsKey(username)
	attempts, err := g.rdb.Incr(ctx, key).Result()
	if err != nil {
		return 0, err
	}
	if attempts == 1 {
		// La fenêtre démarre au premier échec.
		if err := g.rdb.Expire(ctx, key, LoginCooldown).Err(); err != nil {
			return 0, err
		}
	}

	if attempts >= LoginMaxAttempts {
		pipe := g.rdb.TxPipeline()
		pipe.Set(ctx, loginCooldownKey(username), "1", LoginCooldown)
		pipe.Del(ctx, key)
		if _, err := pipe.Exec(ctx); err != nil {
			return 0, err
		}
		return 0, nil
	}
	return LoginMaxAttempts - int(attempts), nil
}

func (g *RedisLoginGuard) Reset(ctx context.Context, username string) error {
	return g.rdb.Del(ctx, loginAttemptsKey(username), loginCooldownKey(username)).Err()
}

type attemptWindow struct {
	count   int
	expires time.Time
}

type MemoryLoginGuard struct {
	mu       sync.Mutex
	attempts map[string]attemptWindow
	blocked  map[string]time.Time
	now      func() time.Time
}

func NewMemoryLoginGuard() *MemoryLoginGuard {
	return &MemoryLoginGuard{
		attempts: make(map[string]attemptWindow),
		blocked:  make(map[string]time.Time),
		now:      time.Now,
	}
}

func (g *MemoryLoginGuard) Cooldown(_ context.Context, username string) (time.Duration, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	until, ok := g.blocked[username]
	if !ok {
		return 0, nil
	}
	left := until.Sub(g.now())
	if left <= 0 {
		delete(g.blocked, username)
		return 0, nil
	}
	return left, nil
}

func (g *MemoryLoginGuard) Fail(_ context.Context, username string) (int, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	now := g.now()
	w := g.attempts[username]
	if now.After(w.expires) {
		w = attemptWindow{expires: now.Add(LoginCooldown)}
	}
	w.count++
	if w.count >= LoginMaxAttempts {
		delete(g.attempts, username)
		g.blocked[username] = now.Add(LoginCooldown)
		return 0, nil
	}
	g.attempts[username] = w
	return LoginMaxAttempts - w.count, nil
}

func (g *MemoryLoginGuard) Reset(_ context.Context, username string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, username)
	delete(g.blocked, username)
	return nil
}

// IsMiss indique une clé absente du cache.
func IsMiss(err error) bool {
	return errors.Is(err, redis.Nil)
}
