package daemon

import (
	"fmt"
	"sync"

	"github.com/cuemby/rch/pkg/metrics"
	"github.com/cuemby/rch/pkg/types"
)

// workerEntry pairs a worker's static identity with its mutable runtime
// state behind its own mutex, per spec.md §9's recommended shape: cross-
// worker selection reads a consistent snapshot, mutations happen after
// selection guarded by a per-worker lock.
type workerEntry struct {
	mu     sync.Mutex
	worker types.Worker
	state  types.WorkerState
}

// Fleet is the sole owner of worker runtime state. The map itself is
// guarded by mu, touched on construction and by AddWorkers on a reload
// signal; each entry's state is guarded independently so one worker's
// reservation doesn't block another's probe.
type Fleet struct {
	mu      sync.RWMutex
	entries map[string]*workerEntry
}

// NewFleet builds a Fleet from the configured worker list. Every worker
// starts Unreachable with a Closed circuit until the reconciler's first
// probe updates it.
func NewFleet(workers []types.Worker) *Fleet {
	entries := make(map[string]*workerEntry, len(workers))
	for _, w := range workers {
		entries[w.ID] = &workerEntry{
			worker: w,
			state: types.WorkerState{
				Health:   types.HealthUnreachable,
				Circuit:  types.Circuit{State: types.CircuitClosed},
				CacheSet: make(map[string]bool),
			},
		}
	}
	return &Fleet{entries: entries}
}

// AddWorkers merges newly-declared workers into the fleet without
// disturbing any existing entry's runtime state, for the reload signal
// (spec.md §3 "Lifecycles"): a worker id already present is left exactly as
// it was, in-flight reservations included, while a new id starts
// Unreachable with a Closed circuit like any worker does at startup. It
// never removes an entry whose config line disappeared, since deleting a
// worker out from under a live reservation would orphan it.
func (f *Fleet) AddWorkers(workers []types.Worker) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	added := 0
	for _, w := range workers {
		if _, exists := f.entries[w.ID]; exists {
			continue
		}
		f.entries[w.ID] = &workerEntry{
			worker: w,
			state: types.WorkerState{
				Health:   types.HealthUnreachable,
				Circuit:  types.Circuit{State: types.CircuitClosed},
				CacheSet: make(map[string]bool),
			},
		}
		added++
	}
	return added
}

// WorkerView is a read snapshot of one worker's identity and state, taken
// under that worker's lock.
type WorkerView struct {
	Worker types.Worker
	State  types.WorkerState
}

// IDs returns every configured worker id in no particular order.
func (f *Fleet) IDs() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ids := make([]string, 0, len(f.entries))
	for id := range f.entries {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns a consistent-at-read-time view of every worker. Each
// entry is locked only for the duration of its own copy, so a slow probe on
// one worker never stalls the snapshot of the rest.
func (f *Fleet) Snapshot() []WorkerView {
	f.mu.RLock()
	entries := make([]*workerEntry, 0, len(f.entries))
	for _, e := range f.entries {
		entries = append(entries, e)
	}
	f.mu.RUnlock()

	views := make([]WorkerView, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		views = append(views, WorkerView{Worker: e.worker, State: e.state})
		e.mu.Unlock()
	}
	return views
}

// SnapshotWorkers implements metrics.FleetSnapshotter.
func (f *Fleet) SnapshotWorkers() []metrics.WorkerSnapshot {
	views := f.Snapshot()
	out := make([]metrics.WorkerSnapshot, 0, len(views))
	for _, v := range views {
		out = append(out, metrics.WorkerSnapshot{
			ID:         v.Worker.ID,
			Health:     string(v.State.Health),
			Circuit:    string(v.State.Circuit.State),
			UsedSlots:  v.State.UsedSlots,
			SlotsTotal: v.Worker.SlotsTotal,
			SpeedScore: v.State.SpeedScore,
		})
	}
	return out
}

// Get returns a point-in-time copy of one worker's view.
func (f *Fleet) Get(id string) (WorkerView, bool) {
	f.mu.RLock()
	e, ok := f.entries[id]
	f.mu.RUnlock()
	if !ok {
		return WorkerView{}, false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return WorkerView{Worker: e.worker, State: e.state}, true
}

// WithWorker runs fn against one worker's live state under its lock, so fn
// can read-then-write atomically (used by selection's reserve step and by
// the reconciler's probe-result application). A missing worker id is
// reported to the caller rather than silently skipped.
func (f *Fleet) WithWorker(id string, fn func(worker types.Worker, state *types.WorkerState)) error {
	f.mu.RLock()
	e, ok := f.entries[id]
	f.mu.RUnlock()
	if !ok {
		return fmt.Errorf("daemon: unknown worker %q", id)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(e.worker, &e.state)
	return nil
}
