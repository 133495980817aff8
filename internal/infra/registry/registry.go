// File: internal/infra/registry/registry.go
package registry

import (
	"sync"
	"time"

	"freelance-apply-pipeline/internal/domain"
	"freelance-apply-pipeline/internal/domain/model"
)

// entry pairs a task with its own mutex so updates to one job never
// contend with updates to another. The registry map lock is held only
// for lookup, insert and eviction.
type entry struct {
	mu sync.Mutex
	t  *model.TaskStatus
}

// Registry tracks long-running per-job tasks in memory. At most one
// non-terminal task may exist per (job, category) key; a second Begin
// for the same key returns domain.ErrTaskInFlight.
type Registry struct {
	mu        sync.RWMutex
	tasks     map[string]*entry
	retention time.Duration
	maxLog    int
	now       func() time.Time
}

const defaultRetention = 30 * time.Minute

func New(retention time.Duration, maxLog int) *Registry {
	if retention <= 0 {
		retention = defaultRetention
	}
	if maxLog <= 0 {
		maxLog = 200
	}
	return &Registry{
		tasks:     make(map[string]*entry),
		retention: retention,
		maxLog:    maxLog,
		now:       time.Now,
	}
}

func key(jobID string, cat model.TaskCategory) string {
	return jobID + "/" + string(cat)
}

func (r *Registry) lookup(k string) *entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tasks[k]
}

// Begin registers a new pending task for the key. Finished tasks past
// their retention window are evicted lazily on the way in.
func (r *Registry) Begin(jobID string, cat model.TaskCategory) (*model.TaskStatus, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictMapLocked()

	k := key(jobID, cat)
	if existing, ok := r.tasks[k]; ok {
		existing.mu.Lock()
		live := !existing.t.State.Terminal()
		existing.mu.Unlock()
		if live {
			return nil, domain.ErrTaskInFlight
		}
	}
	now := r.now()
	t := &model.TaskStatus{
		JobID:     jobID,
		Category:  cat,
		State:     model.TaskPending,
		StartedAt: now,
		UpdatedAt: now,
	}
	r.tasks[k] = &entry{t: t}
	return snapshot(t), nil
}

// Progress moves the task to in_progress, records the current stage and
// appends a log line. Unknown or finished keys are ignored so reporters
// never have to care about task lifecycle races.
func (r *Registry) Progress(jobID string, cat model.TaskCategory, stage, line string) {
	e := r.lookup(key(jobID, cat))
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t.State.Terminal() {
		return
	}
	e.t.State = model.TaskInProgress
	if stage != "" {
		e.t.Stage = stage
	}
	if line != "" {
		e.t.Log = append(e.t.Log, line)
		if len(e.t.Log) > r.maxLog {
			e.t.Log = e.t.Log[len(e.t.Log)-r.maxLog:]
		}
	}
	e.t.UpdatedAt = r.now()
}

func (r *Registry) Complete(jobID string, cat model.TaskCategory, result map[string]any) {
	r.finish(jobID, cat, model.TaskCompleted, "", result)
}

func (r *Registry) Fail(jobID string, cat model.TaskCategory, errMsg string) {
	r.finish(jobID, cat, model.TaskFailed, errMsg, nil)
}

func (r *Registry) finish(jobID string, cat model.TaskCategory, state model.TaskState, errMsg string, result map[string]any) {
	e := r.lookup(key(jobID, cat))
	if e == nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.t.State.Terminal() {
		return
	}
	e.t.State = state
	e.t.Error = errMsg
	e.t.Result = result
	e.t.UpdatedAt = r.now()
}

// Get returns the task for the key, or nil when none is tracked. A
// terminal entry past its retention window is evicted on the way out.
func (r *Registry) Get(jobID string, cat model.TaskCategory) *model.TaskStatus {
	k := key(jobID, cat)
	e := r.lookup(k)
	if e == nil {
		return nil
	}
	e.mu.Lock()
	stale := e.t.State.Terminal() && e.t.UpdatedAt.Before(r.now().Add(-r.retention))
	var cp *model.TaskStatus
	if !stale {
		cp = snapshot(e.t)
	}
	e.mu.Unlock()

	if stale {
		r.mu.Lock()
		if r.tasks[k] == e {
			delete(r.tasks, k)
		}
		r.mu.Unlock()
		return nil
	}
	return cp
}

// Snapshot returns copies of every tracked task, evicting stale ones first.
func (r *Registry) Snapshot() []*model.TaskStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.evictMapLocked()
	out := make([]*model.TaskStatus, 0, len(r.tasks))
	for _, e := range r.tasks {
		e.mu.Lock()
		out = append(out, snapshot(e.t))
		e.mu.Unlock()
	}
	return out
}

// ActiveCount reports tasks not yet in a terminal state.
func (r *Registry) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	n := 0
	for _, e := range r.tasks {
		e.mu.Lock()
		if !e.t.State.Terminal() {
			n++
		}
		e.mu.Unlock()
	}
	return n
}

// evictMapLocked removes stale terminal entries. Caller holds the map
// write lock.
func (r *Registry) evictMapLocked() {
	cutoff := r.now().Add(-r.retention)
	for k, e := range r.tasks {
		e.mu.Lock()
		stale := e.t.State.Terminal() && e.t.UpdatedAt.Before(cutoff)
		e.mu.Unlock()
		if stale {
			delete(r.tasks, k)
		}
	}
}

func snapshot(t *model.TaskStatus) *model.TaskStatus {
	cp := *t
	cp.Log = append([]string(nil), t.Log...)
	if t.Result != nil {
		cp.Result = make(map[string]any, len(t.Result))
		for k, v := range t.Result {
			cp.Result[k] = v
		}
	}
	return &cp
}
