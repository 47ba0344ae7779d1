package scheduler

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"carsync/config"
)

// Triggerable allows workers to be triggered manually
type Triggerable interface {
	Trigger()
}

// SyncFunc runs one full sync. The scheduler serializes invocations: a tick
// that fires while a sync is in flight is skipped, not queued.
type SyncFunc func(ctx context.Context) error

type Scheduler struct {
	cfg     *config.Config
	runSync SyncFunc
	cron    *cron.Cron
	ticker  *time.Ticker
	stopCh  chan struct{}
	running sync.Mutex

	imageWorker       Triggerable
	healthcheckWorker Triggerable
}

func New(cfg *config.Config, runSync SyncFunc) *Scheduler {
	return &Scheduler{
		cfg:     cfg,
		runSync: runSync,
		cron:    cron.New(),
		stopCh:  make(chan struct{}),
	}
}

// SetWorkers registers background workers for manual triggering
func (s *Scheduler) SetWorkers(images, healthcheck Triggerable) {
	s.imageWorker = images
	s.healthcheckWorker = healthcheck
}

func (s *Scheduler) Start(ctx context.Context) error {
	if s.cfg.Scheduler.Cron != "" {
		log.Printf("Starting scheduler with cron: %s", s.cfg.Scheduler.Cron)
		_, err := s.cron.AddFunc(s.cfg.Scheduler.Cron, func() {
			s.tick(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid cron expression: %w", err)
		}
		s.cron.Start()
		return nil
	}

	if s.cfg.Scheduler.Interval > 0 {
		log.Printf("Starting scheduler with interval: %s", s.cfg.Scheduler.Interval)
		s.ticker = time.NewTicker(s.cfg.Scheduler.Interval)
		go func() {
			for {
				select {
				case <-s.ticker.C:
					s.tick(ctx)
				case <-s.stopCh:
					return
				case <-ctx.Done():
					return
				}
			}
		}()
		return nil
	}

	log.Println("No schedule configured, daemon will only sync on startup")
	return nil
}

func (s *Scheduler) tick(ctx context.Context) {
	if !s.running.TryLock() {
		log.Println("Sync already in flight, skipping scheduled run")
		return
	}
	defer s.running.Unlock()

	if err := s.runSync(ctx); err != nil {
		log.Printf("Scheduled sync error: %v", err)
	}

	// Workers pick up the new rows right away instead of waiting a tick
	if s.imageWorker != nil {
		s.imageWorker.Trigger()
	}
	if s.healthcheckWorker != nil {
		s.healthcheckWorker.Trigger()
	}
}

// TriggerNow runs a sync immediately, outside the schedule.
func (s *Scheduler) TriggerNow(ctx context.Context) error {
	s.running.Lock()
	defer s.running.Unlock()
	return s.runSync(ctx)
}

func (s *Scheduler) Stop() {
	if s.cron != nil {
		s.cron.Stop()
	}
	if s.ticker != nil {
		s.ticker.Stop()
	}
	close(s.stopCh)
}
