package director

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// RunRecord is the archive row written for a run on every status
// transition.
type RunRecord struct {
	ID         uuid.UUID
	ListID     string
	Status     Status
	Cursors    []string
	StartedAt  time.Time
	UpdatedAt  time.Time
	FinishedAt *time.Time
}

// RunStore archives run records. The postgres repository implements it; a
// nil store disables archiving.
type RunStore interface {
	// UpsertRun inserts or updates the row for rec.ID.
	UpsertRun(ctx context.Context, rec RunRecord) error
}

func recordOf(r *Run) RunRecord {
	rec := RunRecord{
		ID:        r.id,
		ListID:    r.list.ID,
		Status:    r.status,
		Cursors:   r.cursors(),
		StartedAt: r.startedAt,
		UpdatedAt: time.Now(),
	}
	if !r.finishedAt.IsZero() {
		t := r.finishedAt
		rec.FinishedAt = &t
	}
	return rec
}

// Snapshot is the resumable state of one run: which list, which status, and
// the node each branch stands on. Actions are the atoms of resumption, so a
// restored branch restarts its node from the beginning.
type Snapshot struct {
	RunID     uuid.UUID `json:"run_id"`
	ListID    string    `json:"list_id"`
	Status    Status    `json:"status"`
	Cursors   []string  `json:"cursors"`
	Skipping  bool      `json:"skipping,omitempty"`
	Tick      uint64    `json:"tick"`
	StartedAt time.Time `json:"started_at"`
}

// SnapshotRun captures the resumable state of one run.
//
// Postcondition: Returns ErrRunNotFound when id is unknown.
func (d *Director) SnapshotRun(id uuid.UUID) (Snapshot, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.runs[id]
	if !ok {
		return Snapshot{}, ErrRunNotFound
	}
	return snapshotOf(r, d.tick.Load()), nil
}

// SnapshotAll captures every non-terminal run, in creation order. This is
// what a save slot stores.
func (d *Director) SnapshotAll() []Snapshot {
	d.mu.RLock()
	defer d.mu.RUnlock()
	tick := d.tick.Load()
	snaps := make([]Snapshot, 0, len(d.order))
	for _, id := range d.order {
		r, ok := d.runs[id]
		if !ok || r.status.Terminal() {
			continue
		}
		snaps = append(snaps, snapshotOf(r, tick))
	}
	return snaps
}

func snapshotOf(r *Run, tick uint64) Snapshot {
	return Snapshot{
		RunID:     r.id,
		ListID:    r.list.ID,
		Status:    r.status,
		Cursors:   r.cursors(),
		Skipping:  r.skipping,
		Tick:      tick,
		StartedAt: r.startedAt,
	}
}

// RestoreRun rebuilds a run from a snapshot under its original ID. Each
// recorded cursor becomes a branch positioned at that node; cursors whose
// node no longer exists are dropped with a warning. A restored running run
// with no surviving cursors finishes on its next tick. A terminal run under
// the same ID is replaced, so a save taken earlier in this process loads
// back cleanly.
//
// Postcondition: Returns ErrRunExists when the ID is live, ErrListNotFound
// when the list is gone.
func (d *Director) RestoreRun(snap Snapshot) error {
	d.mu.Lock()
	err := d.restoreLocked(snap)
	recs := d.drainRecsLocked()
	d.mu.Unlock()
	d.flush(recs)
	return err
}

func (d *Director) restoreLocked(snap Snapshot) error {
	if prev, exists := d.runs[snap.RunID]; exists {
		if !prev.status.Terminal() {
			return fmt.Errorf("%w: %s", ErrRunExists, snap.RunID)
		}
		d.forgetLocked(snap.RunID)
	}
	if len(d.runs) >= d.opts.MaxRuns {
		return fmt.Errorf("run table is full (%d runs)", d.opts.MaxRuns)
	}
	list, ok := d.lib.GetList(snap.ListID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrListNotFound, snap.ListID)
	}
	if list.Entry() == nil {
		return fmt.Errorf("%w: %q", ErrEmptyList, snap.ListID)
	}

	r := newRun(snap.RunID, list, d.env, d.cfg, d.queueEvent, d.spawnDetached, d.log)
	r.status = snap.Status
	r.skipping = snap.Skipping
	if !snap.StartedAt.IsZero() {
		r.startedAt = snap.StartedAt
	}
	if snap.Status.Terminal() {
		r.finishedAt = time.Now()
	}

	r.branches = r.branches[:0]
	for _, nodeID := range snap.Cursors {
		idx := list.IndexOf(nodeID)
		if idx < 0 {
			d.log.Warn("snapshot cursor is gone, dropping branch",
				zap.String("list", list.ID),
				zap.String("node", nodeID),
			)
			continue
		}
		r.branches = append(r.branches, &branch{idx: idx, nodeID: nodeID})
	}

	d.runs[r.id] = r
	d.order = append(d.order, r.id)
	d.queueEvent(Event{
		Tick:   d.tick.Load(),
		Time:   time.Now(),
		Kind:   EventRunStarted,
		Run:    r.id,
		List:   list.ID,
		Detail: "restored",
	})
	d.pendingRecs = append(d.pendingRecs, recordOf(r))
	return nil
}
