package session

import "sync"

// Observer is notified of every session change.
type Observer interface {
	SessionChanged(ChangeSet)
}

// ObserverFunc adapts an ordinary function to an Observer.  Since functions
// are not comparable, detach an ObserverFunc through the pointer that was
// attached.
type ObserverFunc func(ChangeSet)

func (f *ObserverFunc) SessionChanged(cs ChangeSet) {
	(*f)(cs)
}

// Dispatcher delivers change sets to attached observers in the order they
// were attached.  A change set published while observers are being notified
// is queued and delivered once the current round finishes, so observers
// never see nested notifications.
type Dispatcher struct {
	observers []Observer

	mu          sync.Mutex
	dispatching bool
	queued      []ChangeSet
}

// Attach registers an observer.  Attaching an observer twice has no effect.
func (d *Dispatcher) Attach(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, cur := range d.observers {
		if cur == o {
			return
		}
	}
	observers := make([]Observer, len(d.observers), len(d.observers)+1)
	copy(observers, d.observers)
	d.observers = append(observers, o)
}

// Detach removes an observer, compared by identity.  Detaching an observer
// that is not attached is a no-op.
func (d *Dispatcher) Detach(o Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for i, cur := range d.observers {
		if cur == o {
			observers := make([]Observer, 0, len(d.observers)-1)
			observers = append(observers, d.observers[:i]...)
			d.observers = append(observers, d.observers[i+1:]...)
			return
		}
	}
}

// NumObservers returns the number of attached observers.
func (d *Dispatcher) NumObservers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.observers)
}

// Notify synchronously delivers the change set to every observer.  Empty
// change sets are dropped.  If an observer panics, change sets still queued
// are dropped and later calls to Notify deliver normally.
func (d *Dispatcher) Notify(cs ChangeSet) {
	if cs.Empty() {
		return
	}
	d.mu.Lock()
	d.queued = append(d.queued, cs)
	if d.dispatching {
		d.mu.Unlock()
		return
	}
	d.dispatching = true
	d.mu.Unlock()
	defer func() {
		d.mu.Lock()
		d.queued = nil
		d.dispatching = false
		d.mu.Unlock()
	}()

	for {
		d.mu.Lock()
		if len(d.queued) == 0 {
			d.mu.Unlock()
			return
		}
		next := d.queued[0]
		d.queued = d.queued[1:]
		observers := d.observers
		d.mu.Unlock()
		for _, o := range observers {
			o.SessionChanged(next)
		}
	}
}
