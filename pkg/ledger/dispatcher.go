package ledger

import (
	"fmt"
	"sync"

	"github.com/mcclellann/kasbon/pkg/models"
)

// Observer is notified with every state produced by a successful dispatch.
type Observer interface {
	Submit(s models.State)
}

// Dispatcher owns the current state and serializes actions against it,
// so no two actions interleave.
type Dispatcher struct {
	mu        sync.Mutex
	ledger    *Ledger
	state     models.State
	observers []Observer
}

// NewDispatcher starts from initial. Observers are called after each
// successful dispatch while the dispatcher lock is held, so they see states
// in order and must not block.
func NewDispatcher(l *Ledger, initial models.State, observers ...Observer) *Dispatcher {
	return &Dispatcher{
		ledger:    l,
		state:     initial.Clone(),
		observers: observers,
	}
}

// Dispatch applies a to the current state. On error the current state is
// left untouched and observers are not notified.
func (d *Dispatcher) Dispatch(a Action) (models.State, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := d.ledger.Apply(d.state, a)
	if err != nil {
		return d.state, err
	}
	d.state = next
	for _, o := range d.observers {
		o.Submit(next)
	}
	return next, nil
}

// BatchError reports the action that stopped an Update.
type BatchError struct {
	Index  int
	Action Action
	Err    error
}

func (e *BatchError) Error() string {
	return fmt.Sprintf("action %d (%s): %v", e.Index, e.Action.Type(), e.Err)
}

func (e *BatchError) Unwrap() error { return e.Err }

// Update runs compute against the current state and applies the actions it
// returns as a single transition. Nothing is committed unless compute
// succeeds and every action applies; observers then see only the final
// state. compute runs under the dispatcher lock and must not block.
func (d *Dispatcher) Update(compute func(models.State) ([]Action, error)) (models.State, []Action, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	actions, err := compute(d.state)
	if err != nil {
		return d.state, nil, err
	}
	next := d.state
	for i, a := range actions {
		if next, err = d.ledger.Apply(next, a); err != nil {
			return d.state, actions, &BatchError{Index: i, Action: a, Err: err}
		}
	}
	if len(actions) == 0 {
		return d.state, actions, nil
	}
	d.state = next
	for _, o := range d.observers {
		o.Submit(next)
	}
	return next, actions, nil
}

// State returns the current state. Callers must treat it as read-only.
func (d *Dispatcher) State() models.State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}
