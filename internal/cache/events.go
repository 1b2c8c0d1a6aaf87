package cache

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Événements publiés sur le canal panier d'un utilisateur.
const (
	CartUpdated = "updated"
	CartCleared = "cleared"
)

// RedisCartEvents diffuse les changements de panier via pub/sub, ce qui
// permet à plusieurs instances de notifier les websockets.
type RedisCartEvents struct {
	rdb *redis.Client
}

func NewRedisCartEvents(rdb *redis.Client) *RedisCartEvents {
	return &RedisCartEvents{rdb: rdb}
}

func (e *RedisCartEvents) Publish(ctx context.Context, userID, event string) error {
	return e.rdb.Publish(ctx, cartChannel(userID), event).Err()
}

// Subscribe retourne un canal d'événements fermé à l'appel de la fonction
// d'arrêt ou à l'annulation de ctx.
func (e *RedisCartEvents) Subscribe(ctx context.Context, userID string) (<-chan string, func(), error) {
	pubsub := e.rdb.Subscribe(ctx, cartChannel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, nil, err
	}

	out := make(chan string, 8)
	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			pubsub.Close()
		})
	}

	go func() {
		defer close(out)
		ch := pubsub.Channel()
		for {
			select {
			case msg, ok := <-ch:
				if !ok {
					return
				}
				select {
				case out <- msg.Payload:
				case <-done:
					return
				case <-ctx.Done():
					return
				}
			case <-done:
				return
			case <-ctx.Done():
				stop()
				return
			}
		}
	}()
	return out, stop, nil
}

// MemoryCartEvents est un broker en processus pour une instance unique.
type MemoryCartEvents struct {
	mu   sync.Mutex
	subs map[string]map[chan string]struct{}
}

func NewMemoryCartEvents() *MemoryCartEvents {
	return &MemoryCartEvents{subs: make(map[string]map[chan string]struct{})}
}

func (e *MemoryCartEvents) Publish(_ context.Context, userID, event string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for ch := range e.subs[userID] {
		select {
		case ch <- event:
		default:
			// abonné trop lent : l'événement suivant portera l'état à jour
		}
	}
	return nil
}

func (e *MemoryCartEvents) Subscribe(ctx context.Context, userID string) (<-chan string, func(), error) {
	ch := make(chan string, 8)

	e.mu.Lock()
	if e.subs[userID] == nil {
		e.subs[userID] = make(map[chan string]struct{})
	}
	e.subs[userID][ch] = struct{}{}
	e.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	stop := func() {
		once.Do(func() {
			e.mu.Lock()
			delete(e.subs[userID], ch)
			if len(e.subs[userID]) == 0 {
				delete(e.subs, userID)
			}
			close(ch)
			e.mu.Unlock()
			close(done)
		})
	}
	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()
	return ch, stop, nil
}
