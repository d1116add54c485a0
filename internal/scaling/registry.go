package scaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ignite/adpilot/internal/pkg/logger"
)

// ProcessState is the persisted liveness row for one task. The database row
// is the authority; everything else is cache.
type ProcessState struct {
	TaskID    string
	Type      TaskType
	Status    TaskStatus
	UpdatedAt time.Time
}

// ProcessStore persists task process state. UpsertProcess must preserve the
// existing row's type when the given state carries an empty one.
type ProcessStore interface {
	UpsertProcess(ctx context.Context, state ProcessState) error
	ProcessStatus(ctx context.Context, taskID string) (TaskStatus, bool, error)
	ListProcesses(ctx context.Context, statuses ...TaskStatus) ([]ProcessState, error)
}

const registryKeyTTL = 24 * time.Hour

// Registry tracks live tasks and carries the cooperative cancellation flag.
// The DB row is authoritative; the in-memory map and the optional Redis entry
// are non-authoritative caches that survive neither restarts nor failovers
// and are rebuilt by Recover.
type Registry struct {
	store ProcessStore
	redis *redis.Client

	mu    sync.RWMutex
	cache map[string]TaskStatus
}

// NewRegistry creates a registry. redisClient may be nil; status checks then
// go straight to the store.
func NewRegistry(store ProcessStore, redisClient *redis.Client) *Registry {
	return &Registry{
		store: store,
		redis: redisClient,
		cache: make(map[string]TaskStatus),
	}
}

func redisStatusKey(taskID string) string {
	return fmt.Sprintf("adpilot:task:%s:status", taskID)
}

// Register records a new task in the store and caches.
func (r *Registry) Register(ctx context.Context, task *Task) error {
	return r.SetStatus(ctx, task.ID, task.Type, task.Status)
}

// SetStatus writes the task status: DB first, then the caches. A cache write
// failure is logged but never fails the caller; the authority already holds
// the new value.
func (r *Registry) SetStatus(ctx context.Context, taskID string, taskType TaskType, status TaskStatus) error {
	state := ProcessState{TaskID: taskID, Type: taskType, Status: status, UpdatedAt: time.Now().UTC()}
	if err := r.store.UpsertProcess(ctx, state); err != nil {
		return fmt.Errorf("failed to persist task status: %w", err)
	}

	if r.redis != nil {
		if err := r.redis.Set(ctx, redisStatusKey(taskID), string(status), registryKeyTTL).Err(); err != nil {
			logger.Warn("task registry: redis status write failed", "task_id", taskID, "error", err.Error())
		}
	}

	r.mu.Lock()
	r.cache[taskID] = status
	r.mu.Unlock()
	return nil
}

// Cancel flips a non-terminal task to cancelled. The orchestrator observes
// the flag between operations; in-flight remote calls are never aborted.
func (r *Registry) Cancel(ctx context.Context, taskID string) error {
	status, ok, err := r.store.ProcessStatus(ctx, taskID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("unknown task %s", taskID)
	}
	if status.Terminal() {
		return fmt.Errorf("task %s already %s", taskID, status)
	}
	// An empty type leaves the persisted type untouched; cancellation may
	// arrive from a process that never registered the task.
	return r.SetStatus(ctx, taskID, "", StatusCancelled)
}

// Cancelled reports whether the cancellation flag is set for the task.
// Redis is consulted first for cross-process freshness, the store on a miss.
// Lookup failures err on the side of "not cancelled" so a cache outage cannot
// silently kill running work.
func (r *Registry) Cancelled(ctx context.Context, taskID string) bool {
	r.mu.RLock()
	if status, ok := r.cache[taskID]; ok && status == StatusCancelled {
		r.mu.RUnlock()
		return true
	}
	r.mu.RUnlock()

	if r.redis != nil {
		val, err := r.redis.Get(ctx, redisStatusKey(taskID)).Result()
		if err == nil {
			if TaskStatus(val) == StatusCancelled {
				r.rememberCancelled(taskID)
				return true
			}
			return false
		}
		if err != redis.Nil {
			logger.Warn("task registry: redis status read failed", "task_id", taskID, "error", err.Error())
		}
	}

	status, ok, err := r.store.ProcessStatus(ctx, taskID)
	if err != nil {
		logger.Warn("task registry: store status read failed", "task_id", taskID, "error", err.Error())
		return false
	}
	if ok && status == StatusCancelled {
		r.rememberCancelled(taskID)
		return true
	}
	return false
}

func (r *Registry) rememberCancelled(taskID string) {
	// Cancellation is sticky, so caching it can never go stale.
	r.mu.Lock()
	r.cache[taskID] = StatusCancelled
	r.mu.Unlock()
}

// Recover reconciles the in-memory cache against persisted state at startup.
// Tasks persisted as running belong to a previous process and cannot still
// be alive; they are marked failed so operators see the interruption instead
// of a forever-running ghost.
func (r *Registry) Recover(ctx context.Context) error {
	states, err := r.store.ListProcesses(ctx, StatusPending, StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to list persisted task state: %w", err)
	}

	for _, state := range states {
		if state.Status == StatusRunning {
			logger.Warn("task registry: marking orphaned task failed", "task_id", state.TaskID)
			if err := r.SetStatus(ctx, state.TaskID, state.Type, StatusFailed); err != nil {
				return err
			}
			continue
		}
		r.mu.Lock()
		r.cache[state.TaskID] = state.Status
		r.mu.Unlock()
	}

	logger.Info("task registry recovered", "persisted_tasks", len(states))
	return nil
}
