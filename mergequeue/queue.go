/*
Package mergequeue holds the merge decisions of a session that have not yet
been persisted, along with the label equivalences they imply.

Equivalences are kept in a disjoint-set forest where the master of each
decision becomes the root of the merged group, so the canonical label of a
group is always the master of its most recent merge.  Undo and flush rebuild
the forest by replaying the decisions still pending, which keeps undo exact
no matter how merges were interleaved.

Flushed decisions stay in the forest, ahead of the pending ones, until the
caller calls Settle to say its label data now comes from the store after
those merges.  Until then a label merged by a flush keeps resolving to its
master even if the caller is still showing labels fetched before the flush.
*/
package mergequeue

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/DmitriyVTitov/size"
	"github.com/dustin/go-humanize"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
	"github.com/janelia-flyem/dvidviewer/mutlog"
	"github.com/janelia-flyem/dvidviewer/store"
)

// DefaultDepth is the number of decisions held before the oldest is flushed.
const DefaultDepth = 5

var (
	// ErrSelfMerge is returned when a decision would merge a label into itself.
	ErrSelfMerge = errors.New("label cannot be merged into itself")

	// ErrBackground is returned when a decision involves the background label.
	ErrBackground = errors.New("background label cannot be merged")
)

// Queue is an ordered set of pending merge decisions.  Decisions are
// persisted oldest first and undone newest first.
type Queue struct {
	depth     int
	persister store.Persister
	recorder  mutlog.Recorder
	session   string

	pending []labels.Decision
	flushed []labels.Decision // persisted but not yet settled
	parent  map[uint64]uint64     // label -> parent label, absent for roots
	members map[uint64]labels.Set // root -> all labels of its group including root
	retired []uint64

	sync.RWMutex
}

// New returns a queue that persists through p once more than depth decisions
// are pending.  A depth of 0 persists every decision immediately.
func New(p store.Persister, depth int) *Queue {
	if depth < 0 {
		depth = 0
	}
	return &Queue{
		depth:     depth,
		persister: p,
		parent:    make(map[uint64]uint64),
		members:   make(map[uint64]labels.Set),
	}
}

// SetRecorder records every add, undo, and flush of the queue, stamping
// entries with the given session identifier.  A nil recorder turns
// recording off.
func (q *Queue) SetRecorder(r mutlog.Recorder, session string) {
	q.Lock()
	q.recorder = r
	q.session = session
	q.Unlock()
}

// Depth returns the number of decisions held before flushing.
func (q *Queue) Depth() int {
	return q.depth
}

func (q *Queue) record(t mutlog.EntryType, d labels.Decision) {
	if q.recorder == nil {
		return
	}
	if err := q.recorder.Record(mutlog.NewEntry(t, q.session, d)); err != nil {
		dvid.Errorf("unable to record %s of %s: %v\n", t, d, err)
	}
}

// find returns the root of label, compressing the path it walked.
func (q *Queue) find(label uint64) uint64 {
	root := label
	for {
		p, found := q.parent[root]
		if !found {
			break
		}
		root = p
	}
	for label != root {
		next := q.parent[label]
		q.parent[label] = root
		label = next
	}
	return root
}

// union makes the group of slave part of the group of master, with the
// master's root as the canonical label.
func (q *Queue) union(master, slave uint64) {
	rm, rs := q.find(master), q.find(slave)
	if rm == rs {
		return
	}
	q.parent[rs] = rm
	group, found := q.members[rm]
	if !found {
		group = labels.NewSet(rm)
		q.members[rm] = group
	}
	if slaveGroup, found := q.members[rs]; found {
		group.Merge(slaveGroup)
		delete(q.members, rs)
	} else {
		group.Add(rs)
	}
}

// rebuild replays the unsettled flushed decisions and then the pending
// decisions onto an empty forest.
func (q *Queue) rebuild() {
	q.parent = make(map[uint64]uint64, len(q.parent))
	q.members = make(map[uint64]labels.Set, len(q.members))
	for _, d := range q.flushed {
		q.union(d.Master, d.Slave)
	}
	for _, d := range q.pending {
		q.union(d.Master, d.Slave)
	}
}

func checkDecision(d labels.Decision) error {
	if d.Master == labels.Background || d.Slave == labels.Background {
		return ErrBackground
	}
	if d.Master == d.Slave {
		return ErrSelfMerge
	}
	return nil
}

// AddDecision queues a decision and applies its equivalence.  The caller is
// expected to pass canonical labels.  If the queue then holds more than its
// depth, the oldest decisions are persisted and flushed is true.  When a
// persist fails the new decision is withdrawn, the queue is left as it was
// before the call, and the error is returned.
func (q *Queue) AddDecision(ctx context.Context, d labels.Decision) (flushed bool, err error) {
	if err = checkDecision(d); err != nil {
		return false, fmt.Errorf("bad decision (%s): %w", d, err)
	}
	q.Lock()
	defer q.Unlock()

	q.pending = append(q.pending, d)
	q.union(d.Master, d.Slave)
	q.record(mutlog.AddEntry, d)

	numRetired := len(q.retired)
	for len(q.pending) > q.depth {
		if err = q.flushOldest(ctx); err != nil {
			// Only the new decision can be withdrawn; anything flushed before
			// the failure is already durable.
			if n := len(q.pending); n > 0 && q.pending[n-1] == d {
				q.pending = q.pending[:n-1]
				q.rebuild()
				q.record(mutlog.UndoEntry, d)
			}
			return len(q.retired) > numRetired, err
		}
		flushed = true
	}
	if dvid.GetLogMode() == dvid.DebugMode {
		dvid.Debugf("Added %s: %d pending, %d labels in merge groups, %s in maps\n",
			d, len(q.pending), len(q.parent), humanize.Bytes(uint64(size.Of(q.parent)+size.Of(q.members))))
	}
	return flushed, nil
}

// flushOldest persists the oldest pending decision and, only on success,
// moves it from the pending to the unsettled flushed decisions and retires
// its slave label.
func (q *Queue) flushOldest(ctx context.Context) error {
	d := q.pending[0]
	timedLog := dvid.NewTimeLog()
	if err := q.persister.PersistMerge(ctx, d.Op()); err != nil {
		return fmt.Errorf("unable to persist %s: %w", d, err)
	}
	q.pending = q.pending[1:]
	q.flushed = append(q.flushed, d)
	q.retired = append(q.retired, d.Slave)
	q.record(mutlog.FlushEntry, d)
	timedLog.Infof("Flushed %s, %d decisions still pending", d, len(q.pending))
	return nil
}

// UndoDecision removes the most recent pending decision and returns it.
// It returns false if nothing is pending.  Flushed decisions cannot be
// undone.
func (q *Queue) UndoDecision() (labels.Decision, bool) {
	q.Lock()
	defer q.Unlock()

	n := len(q.pending)
	if n == 0 {
		return labels.Decision{}, false
	}
	d := q.pending[n-1]
	q.pending = q.pending[:n-1]
	q.rebuild()
	q.record(mutlog.UndoEntry, d)
	dvid.Debugf("Undid %s: %d pending\n", d, len(q.pending))
	return d, true
}

// Restore queues decisions recovered from a previous session without
// recording them again.  Decisions beyond the queue depth are persisted.
func (q *Queue) Restore(ctx context.Context, decisions []labels.Decision) error {
	q.Lock()
	defer q.Unlock()

	for _, d := range decisions {
		if err := checkDecision(d); err != nil {
			return fmt.Errorf("bad recovered decision (%s): %w", d, err)
		}
		q.pending = append(q.pending, d)
		q.union(d.Master, d.Slave)
	}
	for len(q.pending) > q.depth {
		if err := q.flushOldest(ctx); err != nil {
			return err
		}
	}
	dvid.Infof("Restored %d merge decisions, %d pending\n", len(decisions), len(q.pending))
	return nil
}

// FlushAll persists every pending decision in order.  On error, decisions
// not yet persisted stay pending.  The flushed equivalences are kept until
// Settle.
func (q *Queue) FlushAll(ctx context.Context) error {
	q.Lock()
	defer q.Unlock()

	timedLog := dvid.NewTimeLog()
	n := len(q.pending)
	for len(q.pending) > 0 {
		if err := q.flushOldest(ctx); err != nil {
			return err
		}
	}
	q.pending = nil
	if n > 0 {
		dvid.Infof("Flushed all %d pending decisions in %s\n", n, timedLog.Elapsed())
	}
	return nil
}

// Settle drops the equivalences of flushed decisions.  Call it once label
// data fetched after the flush is in hand, so the store itself reflects
// those merges.  Pending decisions are unaffected.
func (q *Queue) Settle() {
	q.Lock()
	defer q.Unlock()
	if len(q.flushed) == 0 {
		return
	}
	dvid.Debugf("Settled %d flushed decisions\n", len(q.flushed))
	q.flushed = nil
	q.rebuild()
}

// Unsettled returns the number of flushed decisions whose equivalences are
// still applied by Resolve.
func (q *Queue) Unsettled() int {
	q.RLock()
	defer q.RUnlock()
	return len(q.flushed)
}

// Resolve returns the canonical label for the given label.  Labels that
// are not part of any pending or unsettled merge resolve to themselves.
func (q *Queue) Resolve(label uint64) uint64 {
	q.Lock()
	defer q.Unlock()
	return q.find(label)
}

// Group returns all labels that resolve to the same canonical label as the
// given label, or just the label itself if it is not part of a merge.
func (q *Queue) Group(label uint64) labels.Set {
	q.Lock()
	defer q.Unlock()
	root := q.find(label)
	if group, found := q.members[root]; found {
		return group.Copy()
	}
	return labels.NewSet(label)
}

// Pending returns a copy of the pending decisions, oldest first.
func (q *Queue) Pending() []labels.Decision {
	q.RLock()
	defer q.RUnlock()
	out := make([]labels.Decision, len(q.pending))
	copy(out, q.pending)
	return out
}

// Len returns the number of pending decisions.
func (q *Queue) Len() int {
	q.RLock()
	defer q.RUnlock()
	return len(q.pending)
}

// TakeRetired returns the labels retired by flushes since the last call and
// clears the list.
func (q *Queue) TakeRetired() []uint64 {
	q.Lock()
	defer q.Unlock()
	retired := q.retired
	q.retired = nil
	return retired
}

// ClearRetired drops the list of retired labels.
func (q *Queue) ClearRetired() {
	q.Lock()
	q.retired = nil
	q.Unlock()
}
