package trap

import "testing"

func TestTranslateSet1DropsReleaseEvents(t *testing.T) {
	if _, ok := translateSet1(0x1E | 0x80); ok {
		t.Fatalf("release event (high bit set) must not translate")
	}
}

func TestTranslateSet1Mapping(t *testing.T) {
	b, ok := translateSet1(0x1E)
	if !ok || b != 'a' {
		t.Fatalf("0x1E should map to 'a', got %q ok=%v", b, ok)
	}
}

func TestKeyRingFIFO(t *testing.T) {
	var r keyRing
	r.push('a')
	r.push('b')
	if b, ok := r.Pop(); !ok || b != 'a' {
		t.Fatalf("expected 'a' first, got %q ok=%v", b, ok)
	}
	if b, ok := r.Pop(); !ok || b != 'b' {
		t.Fatalf("expected 'b' second, got %q ok=%v", b, ok)
	}
	if _, ok := r.Pop(); ok {
		t.Fatalf("expected empty ring")
	}
}

func TestKeyRingDropsWhenFull(t *testing.T) {
	var r keyRing
	for i := 0; i < keyRingSize+10; i++ {
		r.push('x')
	}
	count := 0
	for {
		if _, ok := r.Pop(); !ok {
			break
		}
		count++
	}
	if count != keyRingSize-1 {
		t.Fatalf("expected %d bytes retained (one slot reserved to distinguish full/empty), got %d", keyRingSize-1, count)
	}
}
