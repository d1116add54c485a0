// Package scheduler fires daily scheduled scaling configs. Each config names
// a wall-clock time; the scheduler runs it once per day at or after that
// time, under a distributed lock so only one engine instance executes it.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ignite/adpilot/internal/pkg/distlock"
	"github.com/ignite/adpilot/internal/pkg/logger"
	"github.com/ignite/adpilot/internal/scaling"
)

// ConfigSource lists the configs with daily scheduling enabled.
type ConfigSource interface {
	ListScheduledConfigs(ctx context.Context) ([]scaling.Config, error)
}

// TaskRunner executes one scaling config end to end.
type TaskRunner interface {
	RunConfig(ctx context.Context, cfg scaling.Config) (*scaling.Task, error)
}

// LockFactory builds a distributed lock for a key.
type LockFactory func(key string) distlock.DistLock

const defaultInterval = 30 * time.Second

// Scheduler polls for due configs on a fixed interval.
type Scheduler struct {
	configs  ConfigSource
	runner   TaskRunner
	locks    LockFactory
	interval time.Duration
	now      func() time.Time

	mu    sync.Mutex
	fired map[int64]string // config id -> date last fired

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a scheduler. A non-positive interval falls back to the default.
func New(configs ConfigSource, runner TaskRunner, locks LockFactory, interval time.Duration) *Scheduler {
	if interval <= 0 {
		interval = defaultInterval
	}
	return &Scheduler{
		configs:  configs,
		runner:   runner,
		locks:    locks,
		interval: interval,
		now:      time.Now,
		fired:    make(map[int64]string),
	}
}

// Start launches the polling loop.
func (s *Scheduler) Start() {
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		logger.Info("scheduler started", "interval", s.interval.String())

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-s.ctx.Done():
				logger.Info("scheduler stopped")
				return
			case <-ticker.C:
				s.RunDue(s.ctx)
			}
		}
	}()
}

// Stop terminates the loop and waits for an in-flight pass to finish.
// Running tasks are not interrupted; cancellation is a task-level concern.
func (s *Scheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunDue executes every config whose schedule time has passed today and that
// has not fired yet. Configs run sequentially; one config's failure never
// blocks the rest.
func (s *Scheduler) RunDue(ctx context.Context) {
	configs, err := s.configs.ListScheduledConfigs(ctx)
	if err != nil {
		logger.Error("scheduler: failed to list configs", "error", err.Error())
		return
	}

	now := s.now().UTC()
	for _, cfg := range configs {
		if ctx.Err() != nil {
			return
		}
		if !s.due(cfg, now) {
			continue
		}
		s.runOne(ctx, cfg, now)
	}
}

func (s *Scheduler) due(cfg scaling.Config, now time.Time) bool {
	at, err := time.Parse("15:04", cfg.ScheduleTime)
	if err != nil {
		logger.Warn("scheduler: config has invalid schedule time",
			"config_id", cfg.ID, "schedule_time", cfg.ScheduleTime)
		return false
	}

	today := now.Format("2006-01-02")
	s.mu.Lock()
	alreadyFired := s.fired[cfg.ID] == today
	s.mu.Unlock()
	if alreadyFired {
		return false
	}

	dueAt := time.Date(now.Year(), now.Month(), now.Day(), at.Hour(), at.Minute(), 0, 0, time.UTC)
	return !now.Before(dueAt)
}

func (s *Scheduler) runOne(ctx context.Context, cfg scaling.Config, now time.Time) {
	lock := s.locks(fmt.Sprintf("scaling:config:%d", cfg.ID))
	acquired, err := lock.Acquire(ctx)
	if err != nil {
		logger.Error("scheduler: lock acquire failed", "config_id", cfg.ID, "error", err.Error())
		return
	}
	if !acquired {
		// Another instance owns today's run; counting it as fired here would
		// hide that instance crashing before completion.
		logger.Info("scheduler: config locked by another instance", "config_id", cfg.ID)
		return
	}
	defer func() {
		if err := lock.Release(ctx); err != nil {
			logger.Warn("scheduler: lock release failed", "config_id", cfg.ID, "error", err.Error())
		}
	}()

	s.mu.Lock()
	s.fired[cfg.ID] = now.Format("2006-01-02")
	s.mu.Unlock()

	logger.Info("scheduler: running config", "config_id", cfg.ID, "config_name", cfg.Name)
	task, err := s.runner.RunConfig(ctx, cfg)
	if err != nil {
		logger.Error("scheduler: config run failed", "config_id", cfg.ID, "error", err.Error())
		return
	}
	logger.Info("scheduler: config run finished",
		"config_id", cfg.ID, "task_id", task.ID, "status", string(task.Status))
}
