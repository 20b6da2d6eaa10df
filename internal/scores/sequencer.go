package scores

import "sync/atomic"

// Sequencer issues monotonically increasing fetch tokens. Only the most
// recently issued token is current; results carrying any other token are stale.
type Sequencer struct {
	last atomic.Uint64
}

// Next issues a new token, superseding every earlier one.
func (s *Sequencer) Next() uint64 {
	return s.last.Add(1)
}

// Current reports whether token is the most recently issued one.
func (s *Sequencer) Current(token uint64) bool {
	return token != 0 && s.last.Load() == token
}

// Last returns the most recently issued token, 0 if none.
func (s *Sequencer) Last() uint64 {
	return s.last.Load()
}
