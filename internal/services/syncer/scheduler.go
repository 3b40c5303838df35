package syncer

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"github.com/groundscore/commerce_layer/internal/system"
	"github.com/groundscore/commerce_layer/pkg/logger"
)

// Scheduler runs SyncAll on a cron schedule ("@every 15m" by default).
type Scheduler struct {
	service  *Service
	schedule string
	log      *logger.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	running bool
}

var _ system.Service = (*Scheduler)(nil)

func NewScheduler(service *Service, schedule string, log *logger.Logger) *Scheduler {
	if log == nil {
		log = logger.NewDefault("sync-scheduler")
	}
	if schedule == "" {
		schedule = "@every 15m"
	}
	return &Scheduler{service: service, schedule: schedule, log: log}
}

func (s *Scheduler) Name() string { return "shop-sync" }

func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}

	c := cron.New()
	_, err := c.AddFunc(s.schedule, func() {
		results, err := s.service.SyncAll(context.Background())
		if err != nil {
			s.log.WithError(err).Error("scheduled sync failed")
			return
		}
		failures := 0
		for _, r := range results {
			if !r.Ok() {
				failures++
			}
		}
		s.log.WithField("shops", len(results)).
			WithField("failures", failures).
			Info("scheduled sync finished")
	})
	if err != nil {
		return fmt.Errorf("invalid sync schedule %q: %w", s.schedule, err)
	}

	c.Start()
	s.cron = c
	s.running = true
	s.log.WithField("schedule", s.schedule).Info("shop sync scheduler started")
	return nil
}

func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	stopCtx := s.cron.Stop()
	s.cron = nil
	s.running = false

	select {
	case <-stopCtx.Done():
	case <-ctx.Done():
		return ctx.Err()
	}
	return nil
}
