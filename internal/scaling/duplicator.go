package scaling

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/adpilot/internal/notify"
	"github.com/ignite/adpilot/internal/pkg/logger"
	"github.com/ignite/adpilot/internal/platform"
)

// ManualRequest is an operator-requested duplication of specific ad groups,
// without banner-level classification.
type ManualRequest struct {
	Account      platform.Account
	AdGroupIDs   []int64
	Count        int
	NewBudget    *float64
	NewName      string
	AutoActivate bool
}

// Duplicator runs manual duplication tasks. One group's failure never aborts
// the remaining groups or copies.
type Duplicator struct {
	client   platform.Client
	tasks    TaskStore
	logs     LogStore
	registry *Registry
	notifier notify.Notifier
}

// NewDuplicator creates a manual duplication worker.
func NewDuplicator(client platform.Client, tasks TaskStore, logs LogStore, registry *Registry, notifier notify.Notifier) *Duplicator {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &Duplicator{client: client, tasks: tasks, logs: logs, registry: registry, notifier: notifier}
}

// Run executes the request, tracking progress on the task. Fatal errors are
// contained at the task boundary like in the orchestrator.
func (d *Duplicator) Run(ctx context.Context, task *Task, req ManualRequest) {
	defer func() {
		if r := recover(); r != nil {
			reason := fmt.Sprintf("fatal duplication error: %v", r)
			logger.Error("manual duplication panicked", "task_id", task.ID, "error", reason)
			task.Fail(reason)
			d.persistTask(ctx, task)
		}
	}()

	count := req.Count
	if count < 1 {
		count = 1
	}

	task.Start()
	task.TotalOperations = len(req.AdGroupIDs) * count
	if err := d.registry.SetStatus(ctx, task.ID, task.Type, StatusRunning); err != nil {
		logger.Error("manual duplication could not mark task running", "task_id", task.ID, "error", err.Error())
	}
	d.persistTask(ctx, task)

	cancelled := false
loop:
	for _, groupID := range req.AdGroupIDs {
		for copyIndex := 1; copyIndex <= count; copyIndex++ {
			if d.registry.Cancelled(ctx, task.ID) {
				cancelled = true
				break loop
			}
			d.duplicateOnce(ctx, task, req, groupID, copyIndex)
			d.persistTask(ctx, task)
		}
	}

	task.Finish(cancelled)
	if err := d.registry.SetStatus(ctx, task.ID, task.Type, task.Status); err != nil {
		logger.Error("manual duplication could not persist final status", "task_id", task.ID, "error", err.Error())
	}
	d.persistTask(ctx, task)

	d.notifier.Send(ctx, fmt.Sprintf(
		"Manual duplication %s finished: %s\noperations: %d/%d completed, %d ok, %d failed",
		task.ID, task.Status,
		task.CompletedOperations, task.TotalOperations,
		task.SuccessfulOperations, task.FailedOperations))
}

func (d *Duplicator) duplicateOnce(ctx context.Context, task *Task, req ManualRequest, groupID int64, copyIndex int) {
	task.CurrentGroupID = groupID
	entry := &Log{
		TaskID:        task.ID,
		AccountID:     req.Account.ID,
		SourceGroupID: groupID,
		CopyIndex:     copyIndex,
		CreatedAt:     time.Now().UTC(),
	}

	newName := ResolveNameTemplate(req.NewName, time.Now())
	dup, err := d.client.DuplicateAdGroup(ctx, req.Account.AccessToken, groupID, newName, req.NewBudget)
	if err != nil {
		entry.Error = fmt.Sprintf("duplicate failed: %v", err)
		d.insertLog(ctx, entry)
		task.RecordFailure(TaskError{
			Message:   entry.Error,
			AccountID: req.Account.ID,
			GroupID:   groupID,
		})
		return
	}

	entry.NewGroupID = dup.NewID
	entry.NewGroupName = dup.NewName
	entry.TotalBanners = len(dup.Banners)
	entry.DuplicatedBanners = len(dup.Banners)
	task.CurrentGroupName = dup.NewName

	if req.AutoActivate {
		// The whole copy is activated: group first, then every banner.
		var activateErrs []string
		if err := d.client.SetAdGroupStatus(ctx, req.Account.AccessToken, dup.NewID, platform.StatusActive); err != nil {
			activateErrs = append(activateErrs, fmt.Sprintf("activate group %d: %v", dup.NewID, err))
		}
		for _, b := range dup.Banners {
			if err := d.client.SetBannerStatus(ctx, req.Account.AccessToken, b.ID, platform.StatusActive); err != nil {
				activateErrs = append(activateErrs, fmt.Sprintf("activate banner %d: %v", b.ID, err))
			}
		}
		entry.Error = strings.Join(activateErrs, "; ")
	}

	entry.Success = true
	d.insertLog(ctx, entry)
	task.RecordSuccess()
}

func (d *Duplicator) persistTask(ctx context.Context, task *Task) {
	if err := d.tasks.UpdateTask(ctx, task); err != nil {
		logger.Error("failed to persist task progress", "task_id", task.ID, "error", err.Error())
	}
}

func (d *Duplicator) insertLog(ctx context.Context, entry *Log) {
	if err := d.logs.InsertScalingLog(ctx, entry); err != nil {
		logger.Error("failed to insert scaling log", "task_id", entry.TaskID, "error", err.Error())
	}
}
