package syscall

import "testing"

func TestDispatchPrint(t *testing.T) {
	var gotPtr uintptr
	var gotLen uint64
	d := NewDispatcher(Handlers{
		Print: func(ptr uintptr, length uint64) { gotPtr, gotLen = ptr, length },
	})
	// spec.md §8 scenario 3: RAX=1, RDI=&"hi", RSI=2.
	res := d.Dispatch(IDPrint, 0xDEAD, 2, 0, 0, 0, 0)
	if res != 0 {
		t.Fatalf("print result = %d, want 0", res)
	}
	if gotPtr != 0xDEAD || gotLen != 2 {
		t.Fatalf("print args = (%#x,%d), want (0xdead,2)", gotPtr, gotLen)
	}
}

func TestDispatchUnknownID(t *testing.T) {
	d := NewDispatcher(Handlers{})
	if got := d.Dispatch(0xFF, 0, 0, 0, 0, 0, 0); got != unknownResult {
		t.Fatalf("unknown id result = %#x, want %#x", got, unknownResult)
	}
}

func TestDispatchAllocFreeRealloc(t *testing.T) {
	var freed uint64
	d := NewDispatcher(Handlers{
		Alloc:   func(size, align uint64) uint64 { return size + align },
		Free:    func(ptr uint64) { freed = ptr },
		Realloc: func(ptr, size, align uint64) uint64 { return ptr + size + align },
	})
	if got := d.Dispatch(IDAlloc, 64, 16, 0, 0, 0, 0); got != 80 {
		t.Fatalf("alloc = %d, want 80", got)
	}
	d.Dispatch(IDFree, 0x1000, 0, 0, 0, 0, 0)
	if freed != 0x1000 {
		t.Fatalf("free arg = %#x, want 0x1000", freed)
	}
	if got := d.Dispatch(IDRealloc, 1, 2, 3, 0, 0, 0); got != 6 {
		t.Fatalf("realloc = %d, want 6", got)
	}
}

func TestDispatchReadKey(t *testing.T) {
	d := NewDispatcher(Handlers{ReadKey: func() byte { return 0x41 }})
	if got := d.Dispatch(IDReadKey, 0, 0, 0, 0, 0, 0); got != 0x41 {
		t.Fatalf("read_key = %#x, want 0x41", got)
	}
}

func TestDispatchNilHandlerReturnsZero(t *testing.T) {
	d := NewDispatcher(Handlers{})
	if got := d.Dispatch(IDYield, 0, 0, 0, 0, 0, 0); got != 0 {
		t.Fatalf("yield with nil handler = %d, want 0", got)
	}
}
