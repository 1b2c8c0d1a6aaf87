package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"storefront_back_end/internal/cart"
	"storefront_back_end/internal/middleware"
)

const (
	wsPingPeriod = 30 * time.Second
	wsWriteWait  = 10 * time.Second
)

// CartSubscriber fournit le flux d'événements panier d'un utilisateur.
type CartSubscriber interface {
	Subscribe(ctx context.Context, userID string) (<-chan string, func(), error)
}

type CartSocket struct {
	cart     *cart.Service
	events   CartSubscriber
	upgrader websocket.Upgrader
}

// NewCartSocket n'accepte que les origines listées, ou toutes si la liste
// est vide.
func NewCartSocket(svc *cart.Service, events CartSubscriber, allowedOrigins []string) *CartSocket {
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[o] = true
	}
	return &CartSocket{
		cart:   svc,
		events: events,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return len(allowed) == 0 || origin == "" || allowed[origin]
			},
		},
	}
}

// Serve synchronise le panier en temps réel : un instantané à la connexion
// puis un nouvel instantané à chaque événement.
func (s *CartSocket) Serve(c *gin.Context) {
	userID := c.GetString(middleware.KeyUserID)
	log := logrus.WithField("user_id", userID)

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	events, stop, err := s.events.Subscribe(ctx, userID)
	if err != nil {
		respondError(c, err)
		return
	}
	defer stop()

	conn, err := s.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.WithError(err).Warn("❌ Erreur upgrade WebSocket")
		return
	}
	defer conn.Close()

	// Lecture nécessaire pour traiter les pongs et détecter la fermeture.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	send := func(kind string) error {
		current, err := s.cart.Get(ctx, userID)
		if err != nil {
			return err
		}
		payload := cartView(current)
		payload["type"] = kind
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
		return conn.WriteJSON(payload)
	}

	if err := send("connected"); err != nil {
		log.WithError(err).Warn("❌ Erreur envoi WebSocket")
		return
	}

	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	for {
		select {
		case _, ok := <-events:
			if !ok {
				return
			}
			if err := send("cart_updated"); err != nil {
				log.WithError(err).Warn("❌ Erreur envoi WebSocket")
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}
