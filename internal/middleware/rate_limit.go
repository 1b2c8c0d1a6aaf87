package middleware

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"storefront_back_end/internal/cache"
)

// LoginRateLimit bloque un nom d'utilisateur après trop d'échecs de
// connexion. Les 401 sont comptés après le passage du handler.
func LoginRateLimit(guard cache.LoginGuard) gin.HandlerFunc {
	return func(c *gin.Context) {
		bodyBytes, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Next()
			return
		}
		// Remettre le body pour les handlers suivants
		c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))

		var input struct {
			Username string `json:"username"`
		}
		if err := json.Unmarshal(bodyBytes, &input); err != nil || strings.TrimSpace(input.Username) == "" {
			c.Next()
			return
		}
		username := strings.ToLower(strings.TrimSpace(input.Username))
		ctx := c.Request.Context()

		left, err := guard.Cooldown(ctx, username)
		if err != nil {
			logrus.WithError(err).Warn("⚠️ Lecture du cooldown de connexion impossible")
		}
		if left > 0 {
			minutes := int(math.Ceil(left.Minutes()))
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message":     fmt.Sprintf("Trop de tentatives échouées. Réessayez dans %d minutes", minutes),
				"retry_after": int(left.Seconds()),
			})
			return
		}

		c.Next()

		switch c.Writer.Status() {
		case http.StatusUnauthorized:
			remaining, err := guard.Fail(ctx, username)
			if err != nil {
				logrus.WithError(err).Warn("⚠️ Comptage de l'échec de connexion impossible")
				return
			}
			if remaining > 0 {
				c.Header("X-RateLimit-Remaining", fmt.Sprintf("%d", remaining))
			}
		case http.StatusOK:
			if err := guard.Reset(ctx, username); err != nil {
				logrus.WithError(err).Warn("⚠️ Réinitialisation des tentatives impossible")
			}
		}
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// IPRateLimiter applique un seau à jetons par IP cliente.
type IPRateLimiter struct {
	mu        sync.Mutex
	visitors  map[string]*visitor
	limit     rate.Limit
	burst     int
	idle      time.Duration
	lastSweep time.Time
	now       func() time.Time
}

func NewIPRateLimiter(rps float64, burst int) *IPRateLimiter {
	return &IPRateLimiter{
		visitors: make(map[string]*visitor),
		limit:    rate.Limit(rps),
		burst:    burst,
		idle:     3 * time.Minute,
		now:      time.Now,
	}
}

func (l *IPRateLimiter) allow(ip string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if now.Sub(l.lastSweep) > time.Minute {
		for key, v := range l.visitors {
			if now.Sub(v.lastSeen) > l.idle {
				delete(l.visitors, key)
			}
		}
		l.lastSweep = now
	}

	v, ok := l.visitors[ip]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.visitors[ip] = v
	}
	v.lastSeen = now
	return v.limiter.AllowN(now, 1)
}

func (l *IPRateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !l.allow(c.ClientIP()) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"message": "Trop de requêtes. Réessayez dans un instant",
			})
			return
		}
		c.Next()
	}
}
