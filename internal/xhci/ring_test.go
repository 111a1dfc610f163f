package xhci

import "testing"

// TestRingCycleWrap reproduces spec.md §8 scenario 5: a ring of 4 slots (3
// usable + link). After enqueueing 4 commands, enqueue_index == 1, the
// cycle bit has flipped, and the Link TRB's cycle bit has been rewritten
// to the pre-flip cycle.
func TestRingCycleWrap(t *testing.T) {
	base := make([]TRB, 4)
	r := NewRing(base)

	for i := 0; i < 4; i++ {
		r.Produce(TRB{Param: uint64(i)})
	}

	if r.Enqueue != 1 {
		t.Fatalf("enqueue index = %d, want 1", r.Enqueue)
	}
	if r.Cycle != false {
		t.Fatalf("cycle = %v, want flipped to false", r.Cycle)
	}
	link := &base[3]
	if !link.Cycle() {
		t.Fatalf("link TRB cycle = %v, want true (pre-flip cycle)", link.Cycle())
	}
}

func TestRingEnqueueIndexFormula(t *testing.T) {
	// For N-1 usable slots, after k productions without consumer
	// progress: enqueue_index == k mod (N-1); cycle == initial XOR
	// (k/(N-1)) mod 2 (spec.md §8 "Ring (xHCI) invariants").
	const usable = 7
	base := make([]TRB, usable+1)
	r := NewRing(base)

	for k := 1; k <= 20; k++ {
		r.Produce(TRB{})
		wantIdx := uint32(k % usable)
		if r.Enqueue != wantIdx {
			t.Fatalf("after %d productions, enqueue = %d, want %d", k, r.Enqueue, wantIdx)
		}
		wantCycle := (k/usable)%2 == 0
		if r.Cycle != wantCycle {
			t.Fatalf("after %d productions, cycle = %v, want %v", k, r.Cycle, wantCycle)
		}
	}
}

func TestEventRingConsumesOnlyMatchingCycle(t *testing.T) {
	base := make([]TRB, 4)
	ev := NewEventRing(base)

	// Nothing produced yet: cycle bit defaults false, expected is true.
	if _, ok := ev.Pop(); ok {
		t.Fatalf("expected no event ready")
	}

	base[0].SetCycle(true)
	base[0].SetSlotID(5)
	trb, ok := ev.Pop()
	if !ok || trb.SlotID() != 5 {
		t.Fatalf("expected event with slot 5, got ok=%v slot=%d", ok, trb.SlotID())
	}
	if ev.Dequeue != 1 {
		t.Fatalf("dequeue index = %d, want 1", ev.Dequeue)
	}
}

func TestEventRingWrapFlipsExpectedCycle(t *testing.T) {
	base := make([]TRB, 2)
	ev := NewEventRing(base)
	base[0].SetCycle(true)
	base[1].SetCycle(true)

	if _, ok := ev.Pop(); !ok {
		t.Fatalf("expected first event")
	}
	if _, ok := ev.Pop(); !ok {
		t.Fatalf("expected second event")
	}
	if ev.Dequeue != 0 || ev.Expected != false {
		t.Fatalf("after wrap: dequeue=%d expected=%v, want 0,false", ev.Dequeue, ev.Expected)
	}
}
