package sched

import (
	"testing"
	"unsafe"

	"github.com/iansmith/x86kernel/internal/syscall"
)

// fakeAllocator hands out slices from a backing array, one per call,
// mirroring the memory.Allocator signature without touching real heap
// machinery (paging_test.go / frame_test.go use the same fakePhysMem
// style of test double).
type fakeAllocator struct {
	regions [][]byte
}

func (a *fakeAllocator) Alloc(size uint32, align uintptr) uintptr {
	buf := make([]byte, size+uint32(align))
	a.regions = append(a.regions, buf)
	p := uintptr(unsafe.Pointer(&buf[0]))
	return (p + align - 1) &^ (align - 1)
}

func newTestScheduler() (*Scheduler, *fakeAllocator) {
	alloc := &fakeAllocator{}
	s := New(alloc)
	s.Init(&syscall.KernelGsBase{})
	return s, alloc
}

// TestNextReadyRoundRobin reproduces spec.md §8 scenario 4: task 1 and
// task 2 alternate in order starting from whichever is current.
func TestNextReadyRoundRobin(t *testing.T) {
	s, _ := newTestScheduler()
	s.tasks[1] = &Task{ID: 1, Status: StatusReady}
	s.tasks[2] = &Task{ID: 2, Status: StatusReady}
	s.count = 3

	idx, ok := s.nextReady()
	if !ok || idx != 1 {
		t.Fatalf("nextReady from task 0 = (%d,%v), want (1,true)", idx, ok)
	}

	s.current = 1
	idx, ok = s.nextReady()
	if !ok || idx != 2 {
		t.Fatalf("nextReady from task 1 = (%d,%v), want (2,true)", idx, ok)
	}
}

func TestNextReadySkipsTerminated(t *testing.T) {
	s, _ := newTestScheduler()
	s.tasks[1] = &Task{ID: 1, Status: StatusTerminated}
	s.tasks[2] = &Task{ID: 2, Status: StatusReady}
	s.count = 3

	idx, ok := s.nextReady()
	if !ok || idx != 2 {
		t.Fatalf("nextReady should skip terminated task 1, got (%d,%v)", idx, ok)
	}
}

func TestNextReadyNoneLeavesScheduler(t *testing.T) {
	s, _ := newTestScheduler()
	s.tasks[0].Status = StatusTerminated
	if _, ok := s.nextReady(); ok {
		t.Fatalf("expected no ready task")
	}
}

func TestAddKernelTaskStackLayout(t *testing.T) {
	s, _ := newTestScheduler()
	const entry = uintptr(0xABCD1234)
	task := s.AddKernelTask(entry, 4096)
	if task == nil {
		t.Fatalf("AddKernelTask returned nil")
	}
	if task.Status != StatusReady {
		t.Fatalf("new kernel task status = %v, want Ready", task.Status)
	}
	words := (*[numCalleeSaved + 1]uint64)(unsafe.Pointer(uintptr(task.SavedRSP)))
	for i := 0; i < numCalleeSaved; i++ {
		if words[i] != 0 {
			t.Fatalf("callee-saved slot %d = %#x, want 0", i, words[i])
		}
	}
	if words[numCalleeSaved] != uint64(entry) {
		t.Fatalf("entry slot = %#x, want %#x", words[numCalleeSaved], entry)
	}
	// RSP+8 must be 16-byte aligned once the final RET in ContextSwitch
	// "calls" entry (System-V ABI, spec.md §4.8).
	if (uintptr(task.SavedRSP)+8*uintptr(numCalleeSaved+1)+8)%16 != 0 {
		t.Fatalf("entry-time RSP+8 not 16-byte aligned")
	}
}

func TestAddUserTaskFrameLayout(t *testing.T) {
	s, _ := newTestScheduler()
	const entry = uintptr(0x400000)
	userStack := make([]byte, 8192)
	userStackBottom := uintptr(unsafe.Pointer(&userStack[0]))

	task := s.AddUserTask(entry, userStackBottom, 8192, 4096, 0x1B, 0x23)
	if task == nil {
		t.Fatalf("AddUserTask returned nil")
	}
	if task.GsbasePtr == nil {
		t.Fatalf("user task missing dedicated GsbasePtr")
	}
	if task.GsbasePtr.UserStack != uint64(userStackBottom+8192) {
		t.Fatalf("gsbase.UserStack = %#x, want top of user stack", task.GsbasePtr.UserStack)
	}

	f := (*userFrameWords)(unsafe.Pointer(uintptr(task.SavedRSP)))
	for i := 0; i < numCalleeSaved; i++ {
		if f.calleeSaved[i] != 0 {
			t.Fatalf("callee-saved slot %d = %#x, want 0", i, f.calleeSaved[i])
		}
	}
	if f.entry != uint64(entry) {
		t.Fatalf("entry = %#x, want %#x", f.entry, entry)
	}
	if f.cs != 0x23 || f.ss != 0x1B {
		t.Fatalf("cs/ss = %#x/%#x, want 0x23/0x1B", f.cs, f.ss)
	}
	if f.rflags != rflagsIF {
		t.Fatalf("rflags = %#x, want %#x", f.rflags, rflagsIF)
	}
	if f.rsp != uint64(userStackBottom+8192) {
		t.Fatalf("rsp = %#x, want top of user stack", f.rsp)
	}
}

func TestSwitchReRunsAloneReadyTask(t *testing.T) {
	s, _ := newTestScheduler()
	// Only task 0 exists and is Running; switching should leave it Running
	// without touching ContextSwitch (no other Ready task to pick).
	s.Switch()
	if s.tasks[0].Status != StatusRunning {
		t.Fatalf("lone task status = %v, want Running", s.tasks[0].Status)
	}
	if s.current != 0 {
		t.Fatalf("current = %d, want 0", s.current)
	}
}

