package xhci

// Ring is a producer ring of TRBs with a trailing Link TRB, used for the
// Command Ring and every endpoint Transfer Ring (spec.md §3 "xHCI ring
// descriptor"). size counts all slots including the link slot; usable
// slots are size-1. Invariants (spec.md §4.9 "Ring invariants" / §8
// scenario 5): a newly enqueued TRB carries the current cycle bit; after
// filling the last usable slot the enqueue index wraps to 0, the Link
// TRB's cycle bit is rewritten to the current cycle, and the cycle bit
// flips for subsequent productions.
type Ring struct {
	Base    []TRB
	Enqueue uint32
	Cycle   bool
}

// NewRing builds a ring over a caller-provided backing array (physically
// contiguous memory in production; a plain slice in tests) and installs
// the trailing Link TRB pointing back at slot 0 with Toggle-Cycle set.
func NewRing(base []TRB) *Ring {
	r := &Ring{Base: base, Cycle: true}
	last := len(base) - 1
	base[last] = TRB{}
	base[last].SetType(TRBTypeLink)
	base[last].Control |= 1 << 1 // Toggle Cycle bit (bit 1 of control)
	return r
}

func (r *Ring) usable() uint32 { return uint32(len(r.Base)) - 1 }

// Produce writes trb into the next usable slot with the ring's current
// cycle bit, then advances the enqueue index, wrapping through the Link
// TRB when the last usable slot is filled.
func (r *Ring) Produce(trb TRB) {
	trb.SetCycle(r.Cycle)
	r.Base[r.Enqueue] = trb

	r.Enqueue++
	if r.Enqueue == r.usable() {
		link := len(r.Base) - 1
		r.Base[link].SetCycle(r.Cycle)
		r.Cycle = !r.Cycle
		r.Enqueue = 0
	}
}

// Slot returns a pointer to Base[i].
func (r *Ring) Slot(i uint32) *TRB { return &r.Base[i] }

// EventRing is the consumer side: it reads TRBs only while their cycle
// bit matches the ring's expected cycle, flipping that expectation on
// wrap (spec.md §4.9).
type EventRing struct {
	Base     []TRB
	Dequeue  uint32
	Expected bool
}

// NewEventRing builds a consumer ring; the expected cycle starts true,
// matching the producer's initial cycle of true.
func NewEventRing(base []TRB) *EventRing {
	return &EventRing{Base: base, Expected: true}
}

// Pop returns the next unconsumed TRB and true, or a zero TRB and false
// if the ring has no new entries (cycle bit doesn't match expected yet).
func (r *EventRing) Pop() (TRB, bool) {
	trb := r.Base[r.Dequeue]
	if trb.Cycle() != r.Expected {
		return TRB{}, false
	}
	r.Dequeue++
	if int(r.Dequeue) == len(r.Base) {
		r.Dequeue = 0
		r.Expected = !r.Expected
	}
	return trb, true
}
