package review

import (
	"context"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"blik/config"
	"blik/core/utils"
	"blik/core/webhook"
)

// Scheduler runs the periodic passes on cron expressions: the close-check
// sweep, the reminder sweep, and webhook redelivery.
type Scheduler struct {
	cfg        config.SchedulerConfig
	svc        *Service
	dispatcher *webhook.Dispatcher
	logger     *utils.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	cancel  context.CancelFunc
	running bool
}

func NewScheduler(cfg config.SchedulerConfig, svc *Service, dispatcher *webhook.Dispatcher, logger *utils.Logger) *Scheduler {
	return &Scheduler{cfg: cfg, svc: svc, dispatcher: dispatcher, logger: logger}
}

func (s *Scheduler) StartWithContext(ctx context.Context) error {
	if s == nil || s.svc == nil || !s.cfg.Enabled {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	runCtx, cancel := context.WithCancel(ctx)

	c := cron.New(cron.WithLocation(time.UTC))
	if _, err := c.AddFunc(s.cfg.CloseCheckCron, func() {
		if _, err := s.svc.RunCloseCheck(runCtx, false); err != nil && s.logger != nil {
			s.logger.Errorf("close check sweep: %v", err)
		}
	}); err != nil {
		cancel()
		return err
	}
	if _, err := c.AddFunc(s.cfg.ReminderCron, func() {
		if _, err := s.svc.RunReminderSweep(runCtx); err != nil && s.logger != nil {
			s.logger.Errorf("reminder sweep: %v", err)
		}
	}); err != nil {
		cancel()
		return err
	}
	if s.dispatcher != nil {
		if _, err := c.AddFunc(s.cfg.WebhookRetryCron, func() {
			if _, err := s.dispatcher.RetryPending(runCtx); err != nil && s.logger != nil {
				s.logger.Errorf("webhook redelivery: %v", err)
			}
		}); err != nil {
			cancel()
			return err
		}
	}
	c.Start()
	s.cron = c
	s.cancel = cancel
	s.running = true
	if s.logger != nil {
		s.logger.Printf("review scheduler started")
	}
	return nil
}

func (s *Scheduler) StopWithContext(ctx context.Context) error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	c := s.cron
	cancel := s.cancel
	s.cron = nil
	s.cancel = nil
	wasRunning := s.running
	s.running = false
	s.mu.Unlock()
	if !wasRunning || c == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	stopCtx := c.Stop()
	select {
	case <-stopCtx.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
