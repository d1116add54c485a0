package scaling

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ignite/adpilot/internal/notify"
	"github.com/ignite/adpilot/internal/pkg/logger"
	"github.com/ignite/adpilot/internal/platform"
)

// TaskStore persists task progress records.
type TaskStore interface {
	CreateTask(ctx context.Context, task *Task) error
	UpdateTask(ctx context.Context, task *Task) error
}

// LogStore persists per-operation scaling log rows.
type LogStore interface {
	InsertScalingLog(ctx context.Context, entry *Log) error
}

// Orchestrator drives the end-to-end scaling workflow: for every qualifying
// ad group, duplicate it the configured number of times and apply the per-
// class banner policy to each copy.
//
// Accounts are processed independently of one another; copies of the same
// group are strictly sequential. The task record has a single writer (the
// aggregation loop inside Run).
type Orchestrator struct {
	client   platform.Client
	tasks    TaskStore
	logs     LogStore
	registry *Registry
	notifier notify.Notifier
}

// NewOrchestrator creates a scaling orchestrator.
func NewOrchestrator(client platform.Client, tasks TaskStore, logs LogStore, registry *Registry, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Orchestrator{client: client, tasks: tasks, logs: logs, registry: registry, notifier: notifier}
}

// opResult is the outcome of one duplication operation, fed to the
// aggregation loop which owns the task record.
type opResult struct {
	accountID   int64
	groupID     int64
	groupName   string
	newGroupID  int64
	success     bool
	errMessage  string
}

// Run executes the scaling workflow for an already-classified result set.
// It never panics past the task boundary: a fatal error inside the loop
// forces the task to failed and is swallowed.
func (o *Orchestrator) Run(ctx context.Context, task *Task, cfg Config, result *ClassificationResult) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("fatal orchestrator error: %v", r)
			logger.Error("scaling run panicked", "task_id", task.ID, "error", reason)
			task.Fail(reason)
			o.persistTask(ctx, task)
		}
	}()

	task.Start()
	task.TotalOperations = len(result.Plans) * cfg.DuplicatesCount
	if err := o.registry.SetStatus(ctx, task.ID, task.Type, StatusRunning); err != nil {
		logger.Error("scaling run could not mark task running", "task_id", task.ID, "error", err.Error())
	}
	o.persistTask(ctx, task)

	// Classification errors are surfaced on the task so a partially blind run
	// is visible to operators even when every duplication succeeds.
	for _, cerr := range result.Errors {
		task.Errors = append(task.Errors, TaskError{
			Message:   cerr.Err,
			AccountID: cerr.AccountID,
			GroupID:   cerr.GroupID,
			At:        time.Now().UTC(),
		})
	}

	byAccount := groupPlansByAccount(result.Plans)

	results := make(chan opResult)
	var cancelled atomic.Bool
	var wg sync.WaitGroup

	for _, plans := range byAccount {
		wg.Add(1)
		go func(plans []GroupPlan) {
			defer wg.Done()
			o.runAccount(ctx, task.ID, cfg, plans, results, &cancelled)
		}(plans)
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	for res := range results {
		task.CurrentGroupID = res.groupID
		task.CurrentGroupName = res.groupName
		if res.success {
			task.RecordSuccess()
			if res.errMessage != "" {
				task.Errors = append(task.Errors, TaskError{
					Message:   fmt.Sprintf("copy %d created with errors: %s", res.newGroupID, res.errMessage),
					AccountID: res.accountID,
					GroupID:   res.groupID,
					GroupName: res.groupName,
					At:        time.Now().UTC(),
				})
			}
		} else {
			task.RecordFailure(TaskError{
				Message:   res.errMessage,
				AccountID: res.accountID,
				GroupID:   res.groupID,
				GroupName: res.groupName,
			})
		}
		o.persistTask(ctx, task)
	}

	task.Finish(cancelled.Load() || o.registry.Cancelled(ctx, task.ID))
	if err := o.registry.SetStatus(ctx, task.ID, task.Type, task.Status); err != nil {
		logger.Error("scaling run could not persist final status", "task_id", task.ID, "error", err.Error())
	}
	o.persistTask(ctx, task)

	o.notifier.Send(ctx, summarizeRun(task, cfg))
	logger.Info("scaling run finished",
		"task_id", task.ID,
		"status", string(task.Status),
		"completed", task.CompletedOperations,
		"successful", task.SuccessfulOperations,
		"failed", task.FailedOperations)
}

// runAccount processes one account's plans sequentially: every copy of every
// group finishes before the next one starts. The cancellation flag is polled
// before each copy; in-flight remote calls run to completion.
func (o *Orchestrator) runAccount(ctx context.Context, taskID string, cfg Config, plans []GroupPlan, results chan<- opResult, cancelled *atomic.Bool) {
	for _, plan := range plans {
		for copyIndex := 1; copyIndex <= cfg.DuplicatesCount; copyIndex++ {
			if cancelled.Load() || o.registry.Cancelled(ctx, taskID) {
				cancelled.Store(true)
				return
			}
			results <- o.duplicateOnce(ctx, taskID, cfg, plan, copyIndex)
		}
	}
}

// duplicateOnce performs one duplicate → rebudget/rename → per-banner policy
// sequence and writes its scaling log row.
func (o *Orchestrator) duplicateOnce(ctx context.Context, taskID string, cfg Config, plan GroupPlan, copyIndex int) opResult {
	token := plan.Account.AccessToken
	entry := &Log{
		TaskID:            taskID,
		ConfigID:          cfg.ID,
		AccountID:         plan.Account.ID,
		SourceGroupID:     plan.Group.ID,
		SourceGroupName:   plan.Group.Name,
		CopyIndex:         copyIndex,
		TotalBanners:      len(plan.Classifications),
		PositiveBannerIDs: plan.PositiveIDs,
		NegativeBannerIDs: plan.NegativeIDs,
		CreatedAt:         time.Now().UTC(),
	}

	newName := ResolveNameTemplate(cfg.NewNameTemplate, time.Now())
	dup, err := o.client.DuplicateAdGroup(ctx, token, plan.Group.ID, newName, cfg.NewBudget)
	if err != nil {
		entry.Error = fmt.Sprintf("duplicate failed: %v", err)
		o.insertLog(ctx, entry)
		return opResult{
			accountID:  plan.Account.ID,
			groupID:    plan.Group.ID,
			groupName:  plan.Group.Name,
			errMessage: entry.Error,
		}
	}

	entry.NewGroupID = dup.NewID
	entry.NewGroupName = dup.NewName

	positive := make(map[int64]bool, len(plan.PositiveIDs))
	for _, id := range plan.PositiveIDs {
		positive[id] = true
	}

	var bannerErrs []string
	for _, b := range dup.Banners {
		if err := o.applyBannerPolicy(ctx, token, cfg, b, positive[b.SourceID]); err != nil {
			bannerErrs = append(bannerErrs, fmt.Sprintf("banner %d: %v", b.ID, err))
			continue
		}
		if positive[b.SourceID] || cfg.DuplicateNegativeBanners {
			entry.DuplicatedBanners++
		}
	}

	if cfg.AutoActivate {
		if err := o.client.SetAdGroupStatus(ctx, token, dup.NewID, platform.StatusActive); err != nil {
			bannerErrs = append(bannerErrs, fmt.Sprintf("activate group %d: %v", dup.NewID, err))
		}
	}

	// The copy exists, so the operation counts as successful even when some
	// banner-level adjustments failed; those failures stay visible on the
	// log row and the task error list.
	entry.Success = true
	entry.Error = strings.Join(bannerErrs, "; ")
	o.insertLog(ctx, entry)

	return opResult{
		accountID:  plan.Account.ID,
		groupID:    plan.Group.ID,
		groupName:  plan.Group.Name,
		newGroupID: dup.NewID,
		success:    true,
		errMessage: entry.Error,
	}
}

// applyBannerPolicy enforces the four per-class toggles on one banner in the
// copy. Negative banners are removed from the copy when their class is not
// duplicated; activation for a class that is not duplicated is moot.
func (o *Orchestrator) applyBannerPolicy(ctx context.Context, token string, cfg Config, b platform.DuplicatedBanner, positive bool) error {
	if positive {
		if cfg.ActivatePositiveBanners {
			return o.client.SetBannerStatus(ctx, token, b.ID, platform.StatusActive)
		}
		return nil
	}

	if !cfg.DuplicateNegativeBanners {
		return o.client.DeleteBanner(ctx, token, b.ID)
	}
	if cfg.ActivateNegativeBanners {
		return o.client.SetBannerStatus(ctx, token, b.ID, platform.StatusActive)
	}
	return nil
}

func (o *Orchestrator) persistTask(ctx context.Context, task *Task) {
	if err := o.tasks.UpdateTask(ctx, task); err != nil {
		logger.Error("failed to persist task progress", "task_id", task.ID, "error", err.Error())
	}
}

func (o *Orchestrator) insertLog(ctx context.Context, entry *Log) {
	if err := o.logs.InsertScalingLog(ctx, entry); err != nil {
		logger.Error("failed to insert scaling log", "task_id", entry.TaskID, "error", err.Error())
	}
}

func groupPlansByAccount(plans []GroupPlan) map[int64][]GroupPlan {
	byAccount := make(map[int64][]GroupPlan)
	for _, p := range plans {
		byAccount[p.Account.ID] = append(byAccount[p.Account.ID], p)
	}
	return byAccount
}

func summarizeRun(task *Task, cfg Config) string {
	return fmt.Sprintf(
		"Scaling run %s (%s) finished: %s\nconfig: %s\noperations: %d/%d completed, %d ok, %d failed\nlast error: %s",
		task.ID, task.Type, task.Status, cfg.Name,
		task.CompletedOperations, task.TotalOperations,
		task.SuccessfulOperations, task.FailedOperations,
		task.LastError)
}
