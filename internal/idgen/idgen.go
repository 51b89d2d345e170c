// Package idgen implements request-id assignment: monotonic increment
// modulo 2^32, skipping the reserved sentinel 0 and any id the caller
// reports as currently in use.
//
// Both the parent engine (assigning ids to outbound requests in cooperative
// mode) and the blocking child engine (independently reconstructing the
// same id sequence to stamp on response frames — see DESIGN.md) use this
// generator, so the two ends agree on id values even though blocking-mode
// request frames carry no id; only the responses put it on the wire.
package idgen

// Generator produces the next request id in sequence.
type Generator struct {
	next uint32
}

// New returns a Generator whose first call to Next returns 1.
func New() *Generator {
	return &Generator{next: 0}
}

// Taken reports whether a candidate id is currently in use; Next skips any
// id for which it returns true. A nil Taken treats every id as free; the
// blocking-mode callers pass nil, so there the skip loop degenerates to a
// plain wraparound-skipping counter.
type Taken func(id uint32) bool

// Next returns the next id not equal to 0 and not reported as taken. The
// skip loop is bounded by however many ids are currently in use, which
// callers are expected to keep small.
func (g *Generator) Next(taken Taken) uint32 {
	for {
		g.next++
		if g.next == 0 {
			continue
		}
		if taken != nil && taken(g.next) {
			continue
		}
		return g.next
	}
}
