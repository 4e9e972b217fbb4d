// Package revert provides a stack of cleanup functions for unwinding a
// partially completed multi-step setup: used by the dqlite store bootstrap,
// where several external resources may need to be torn down if a later step
// fails.
package revert

// Reverter accumulates cleanup functions and runs them in reverse order on
// Fail, or discards them entirely on Success.
type Reverter struct {
	fns []func()
}

// New returns an empty Reverter.
func New() *Reverter {
	return &Reverter{}
}

// Add appends a cleanup function to the stack.
func (r *Reverter) Add(fn func()) {
	r.fns = append(r.fns, fn)
}

// Fail runs every added function in reverse (most recently added first)
// order. Safe to call unconditionally via defer; it is a no-op after
// Success.
func (r *Reverter) Fail() {
	for i := len(r.fns) - 1; i >= 0; i-- {
		r.fns[i]()
	}

	r.fns = nil
}

// Success discards the cleanup stack without running it, for the
// happy-path return once every step has completed.
func (r *Reverter) Success() {
	r.fns = nil
}

// Clone returns a Reverter with an independent copy of the current cleanup
// stack, for a helper that wants to hand its own partial progress back to a
// caller's Reverter.
func (r *Reverter) Clone() *Reverter {
	clone := &Reverter{fns: make([]func(), len(r.fns))}
	copy(clone.fns, r.fns)
	return clone
}
