package nvme

import "testing"

func TestSubmissionQueueWraps(t *testing.T) {
	q := NewSubmissionQueue(1, make([]SQEntry, 4))
	for i := 0; i < 4; i++ {
		var e SQEntry
		e.SetCommandID(uint16(i))
		q.Submit(e)
	}
	if q.Tail != 0 {
		t.Fatalf("tail = %d, want wrap to 0", q.Tail)
	}
}

func TestCompletionQueuePhaseGating(t *testing.T) {
	entries := make([]CQEntry, 2)
	q := NewCompletionQueue(1, entries)

	if _, ok := q.Pop(); ok {
		t.Fatalf("expected no completion before phase bit is set")
	}

	entries[0].Status = 1 // phase=1, status code 0
	e, ok := q.Pop()
	if !ok {
		t.Fatalf("expected a completion once phase matches")
	}
	if e.StatusCode() != 0 {
		t.Fatalf("status code = %d, want 0", e.StatusCode())
	}
	if q.Head != 1 {
		t.Fatalf("head = %d, want 1", q.Head)
	}
}

func TestCompletionQueueWrapTogglesPhase(t *testing.T) {
	entries := make([]CQEntry, 2)
	q := NewCompletionQueue(1, entries)
	entries[0].Status = 1
	entries[1].Status = 1

	if _, ok := q.Pop(); !ok {
		t.Fatalf("expected first completion")
	}
	if _, ok := q.Pop(); !ok {
		t.Fatalf("expected second completion")
	}
	if q.Head != 0 {
		t.Fatalf("head = %d, want wrap to 0", q.Head)
	}
	if q.Phase != false {
		t.Fatalf("phase should have toggled to false after wrap")
	}

	// Stale entries from the previous phase must not be re-consumed.
	if _, ok := q.Pop(); ok {
		t.Fatalf("expected no completion: entries still carry the old phase")
	}
}
