package reactor

import (
	"github.com/roach88/nucleus/internal/getter"
	"github.com/roach88/nucleus/internal/immutable"
)

// notify runs the notification phase for a transaction that moved the
// state from prev to next and changed the dirty stores.
//
// Candidates are fixed before the first handler runs: observers added by a
// handler wait for the next transaction, while observers removed by a
// handler are skipped even when already selected. The guard is held for
// the whole pass, so handlers cannot dispatch.
func (r *Reactor) notify(prev, next *State, dirty []string) error {
	if prev == next || len(dirty) == 0 {
		return nil
	}

	r.dispatching = true
	defer func() { r.dispatching = false }()

	for _, e := range r.observers.ObserversToNotify(dirty) {
		if !e.Alive() {
			continue
		}
		before, err := r.evaluator.Evaluate(prev, e.Getter())
		if err != nil {
			return err
		}
		after, err := r.evaluator.Evaluate(next, e.Getter())
		if err != nil {
			return err
		}
		if immutable.Equal(before, after) {
			if r.opts.Debug {
				r.logger.Debug("observer unchanged", "observer", e.ID(), "getter", getter.Describe(e.Getter()))
			}
			continue
		}
		if r.opts.Debug {
			r.logger.Debug("notify observer", "observer", e.ID(), "getter", getter.Describe(e.Getter()), "dispatch_id", next.dispatchID)
		}
		if err := e.Handler()(after); err != nil {
			return err
		}
	}
	return nil
}
