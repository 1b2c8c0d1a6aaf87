// Package jobs planifie les tâches de maintenance périodiques.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// CartSweeper supprime les paniers non modifiés depuis before.
type CartSweeper interface {
	DeleteStaleCarts(ctx context.Context, before time.Time) (int64, error)
}

type Scheduler struct {
	cron *cron.Cron
	log  logrus.FieldLogger
	now  func() time.Time
}

func NewScheduler(log logrus.FieldLogger) *Scheduler {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{
		cron: cron.New(),
		log:  log.WithField("component", "jobs"),
		now:  time.Now,
	}
}

// SweepCarts enregistre la purge des paniers abandonnés depuis plus de ttl.
func (s *Scheduler) SweepCarts(spec string, carts CartSweeper, ttl time.Duration) error {
	_, err := s.cron.AddFunc(spec, func() {
		s.sweepCarts(context.Background(), carts, ttl)
	})
	return err
}

func (s *Scheduler) sweepCarts(ctx context.Context, carts CartSweeper, ttl time.Duration) int64 {
	ctx, cancel := context.WithTimeout(ctx, time.Minute)
	defer cancel()

	n, err := carts.DeleteStaleCarts(ctx, s.now().Add(-ttl))
	if err != nil {
		s.log.WithError(err).Error("❌ Purge des paniers échouée")
		return 0
	}
	s.log.WithField("deleted", n).Info("🧹 Paniers abandonnés purgés")
	return n
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.WithField("jobs", len(s.cron.Entries())).Info("⏰ Planificateur démarré")
}

// Stop attend la fin des tâches en cours ou l'annulation de ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
	}
}
