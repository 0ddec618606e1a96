/*
Package mutlog records the merge decisions of a viewing session.  Entries can
go to an append-only file, from which decisions that were never persisted can
be recovered after a crash, and persisted merges can be published to Kafka.
*/
package mutlog

import (
	"time"

	"github.com/janelia-flyem/dvidviewer/dvid"
	"github.com/janelia-flyem/dvidviewer/labels"
)

// EntryType identifies what happened to a decision.
type EntryType uint16

const (
	UnknownEntry EntryType = iota
	AddEntry               // decision queued
	UndoEntry              // most recent pending decision undone
	FlushEntry             // decision persisted to the store
	DiscardEntry           // all earlier pending decisions abandoned
)

func (t EntryType) String() string {
	switch t {
	case AddEntry:
		return "add"
	case UndoEntry:
		return "undo"
	case FlushEntry:
		return "flush"
	case DiscardEntry:
		return "discard"
	default:
		return "unknown"
	}
}

// Entry is one record in a mutation log.
type Entry struct {
	Type     EntryType    `msg:"type"`
	Session  string       `msg:"session"`
	Time     int64        `msg:"time"`
	Master   uint64       `msg:"master"`
	Slave    uint64       `msg:"slave"`
	Location dvid.Point3d `msg:"loc"`
}

// NewEntry returns an entry time-stamped now.
func NewEntry(t EntryType, session string, d labels.Decision) Entry {
	return Entry{
		Type:     t,
		Session:  session,
		Time:     time.Now().UnixNano(),
		Master:   d.Master,
		Slave:    d.Slave,
		Location: d.Location,
	}
}

// Decision returns the decision the entry refers to.
func (e Entry) Decision() labels.Decision {
	return labels.Decision{Master: e.Master, Slave: e.Slave, Location: e.Location}
}

// Recorder accepts mutation log entries.
type Recorder interface {
	Record(Entry) error
	Close() error
}

// Multi sends each entry to all of its recorders.
type Multi []Recorder

// Record returns the first error encountered but always tries every recorder.
func (m Multi) Record(e Entry) error {
	var firstErr error
	for _, r := range m {
		if err := r.Record(e); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (m Multi) Close() error {
	var firstErr error
	for _, r := range m {
		if err := r.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Pending replays log entries and returns, oldest first, the decisions that
// were queued but neither undone, persisted, nor discarded.
func Pending(entries []Entry) []labels.Decision {
	var pending []labels.Decision
	for _, e := range entries {
		switch e.Type {
		case AddEntry:
			pending = append(pending, e.Decision())
		case UndoEntry:
			if n := len(pending); n > 0 {
				pending = pending[:n-1]
			}
		case FlushEntry:
			d := e.Decision()
			for i, p := range pending {
				if p == d {
					pending = append(pending[:i], pending[i+1:]...)
					break
				}
			}
		case DiscardEntry:
			pending = nil
		}
	}
	return pending
}
