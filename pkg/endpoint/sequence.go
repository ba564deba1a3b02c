package endpoint

import "sync/atomic"

// Sequence is a stale-completion guard.
// Callers take a tag with Next before starting asynchronous work and apply the
// result only if Current still reports the tag as the latest one.
type Sequence struct {
	n atomic.Uint64
}

// Next returns a fresh tag, invalidating every earlier one.
func (s *Sequence) Next() uint64 {
	return s.n.Add(1)
}

// Current reports whether tag is the most recent one handed out.
func (s *Sequence) Current(tag uint64) bool {
	return s.n.Load() == tag
}

// Invalidate discards every outstanding tag without starting new work.
func (s *Sequence) Invalidate() {
	s.n.Add(1)
}
