package scaling

import (
	"context"
	"fmt"

	"github.com/ignite/adpilot/internal/pkg/logger"
	"github.com/ignite/adpilot/internal/platform"
)

// AccountSource provides the accounts the engine operates on.
type AccountSource interface {
	ListAccounts(ctx context.Context) ([]platform.Account, error)
}

const defaultLookbackDays = 3

// Service ties classification, orchestration and manual duplication into the
// task lifecycle: create, register, run, finish. It is the entry point both
// the scheduler and the API layer use.
type Service struct {
	classifier *Classifier
	orch       *Orchestrator
	dup        *Duplicator
	tasks      TaskStore
	registry   *Registry
	accounts   AccountSource
}

// NewService creates the scaling service.
func NewService(classifier *Classifier, orch *Orchestrator, dup *Duplicator, tasks TaskStore, registry *Registry, accounts AccountSource) *Service {
	return &Service{
		classifier: classifier,
		orch:       orch,
		dup:        dup,
		tasks:      tasks,
		registry:   registry,
		accounts:   accounts,
	}
}

// RunConfig executes one scaling config end to end and returns its finished
// task. The returned error covers setup failures only; operation failures
// live on the task.
func (s *Service) RunConfig(ctx context.Context, cfg Config) (*Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scaling config %d: %w", cfg.ID, err)
	}

	task, err := s.createTask(ctx, TaskAuto, cfg.ID)
	if err != nil {
		return nil, err
	}

	accounts, err := s.accounts.ListAccounts(ctx)
	if err != nil {
		s.abort(ctx, task, fmt.Sprintf("failed to list accounts: %v", err))
		return task, fmt.Errorf("failed to list accounts: %w", err)
	}

	lookback := cfg.LookbackDays
	if lookback <= 0 {
		lookback = defaultLookbackDays
	}
	window := platform.LastDays(lookback)

	result, err := s.classifier.Classify(ctx, cfg, accounts, window)
	if err != nil {
		s.abort(ctx, task, fmt.Sprintf("classification aborted: %v", err))
		return task, err
	}

	s.orch.Run(ctx, task, cfg, result)
	return task, nil
}

// SubmitConfig starts a scaling run in the background and returns its
// pending task for polling. The run detaches from the caller's context;
// stopping it goes through Cancel.
func (s *Service) SubmitConfig(ctx context.Context, cfg Config) (*Task, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scaling config %d: %w", cfg.ID, err)
	}

	task, err := s.createTask(ctx, TaskAuto, cfg.ID)
	if err != nil {
		return nil, err
	}

	go func() {
		ctx := context.Background()
		accounts, err := s.accounts.ListAccounts(ctx)
		if err != nil {
			s.abort(ctx, task, fmt.Sprintf("failed to list accounts: %v", err))
			return
		}

		lookback := cfg.LookbackDays
		if lookback <= 0 {
			lookback = defaultLookbackDays
		}
		result, err := s.classifier.Classify(ctx, cfg, accounts, platform.LastDays(lookback))
		if err != nil {
			s.abort(ctx, task, fmt.Sprintf("classification aborted: %v", err))
			return
		}
		s.orch.Run(ctx, task, cfg, result)
	}()
	return task, nil
}

// RunManual executes an operator duplication request end to end.
func (s *Service) RunManual(ctx context.Context, req ManualRequest) (*Task, error) {
	if len(req.AdGroupIDs) == 0 {
		return nil, fmt.Errorf("manual duplication needs at least one ad group")
	}
	task, err := s.createTask(ctx, TaskManual, 0)
	if err != nil {
		return nil, err
	}
	s.dup.Run(ctx, task, req)
	return task, nil
}

// SubmitManual starts a manual duplication in the background.
func (s *Service) SubmitManual(ctx context.Context, req ManualRequest) (*Task, error) {
	if len(req.AdGroupIDs) == 0 {
		return nil, fmt.Errorf("manual duplication needs at least one ad group")
	}
	task, err := s.createTask(ctx, TaskManual, 0)
	if err != nil {
		return nil, err
	}
	go s.dup.Run(context.Background(), task, req)
	return task, nil
}

// Cancel flags a running task for cooperative cancellation.
func (s *Service) Cancel(ctx context.Context, taskID string) error {
	return s.registry.Cancel(ctx, taskID)
}

func (s *Service) createTask(ctx context.Context, taskType TaskType, configID int64) (*Task, error) {
	task := NewTask(taskType, configID)
	if err := s.tasks.CreateTask(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to create task record: %w", err)
	}
	if err := s.registry.Register(ctx, task); err != nil {
		return nil, fmt.Errorf("failed to register task: %w", err)
	}
	return task, nil
}

func (s *Service) abort(ctx context.Context, task *Task, reason string) {
	task.Fail(reason)
	if err := s.tasks.UpdateTask(ctx, task); err != nil {
		logger.Error("failed to persist aborted task", "task_id", task.ID, "error", err.Error())
	}
	if err := s.registry.SetStatus(ctx, task.ID, task.Type, task.Status); err != nil {
		logger.Error("failed to persist aborted task status", "task_id", task.ID, "error", err.Error())
	}
}
