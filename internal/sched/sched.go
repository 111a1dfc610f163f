// Package sched implements the round-robin cooperative task scheduler of
// spec.md §4.8: a fixed task table, manual stack synthesis for both
// kernel- and user-mode tasks, and the context-switch/termination logic
// built on top of internal/asm's ContextSwitch primitive. Grounded on
// mazboot's goroutine.go (createGoroutine/createKernelGoroutine): allocate
// a stack from the heap, round/align it, hand-build the initial frame,
// and hand the resulting RSP to a context-switch primitive rather than
// ever calling the entry function directly.
package sched

import (
	"unsafe"

	"github.com/iansmith/x86kernel/internal/asm"
	"github.com/iansmith/x86kernel/internal/syscall"
)

// Status is a task's position in the state machine of spec.md §4.8:
// Ready -> Running -> {Ready, Terminated}. No task leaves Terminated.
type Status int

const (
	StatusReady Status = iota
	StatusRunning
	StatusTerminated
)

// Task mirrors spec.md §3's Task record. GsbasePtr is nil for tasks added
// by AddKernelTask (they share the scheduler's global KernelGsBase), points
// at that global record for task 0 (see Init), and points at a dedicated
// record for each user task.
type Task struct {
	ID                int
	SavedRSP          uint64
	StackBottom       uintptr
	KernelStackBottom uintptr
	Status            Status
	GsbasePtr         *syscall.KernelGsBase
}

const maxTasks = 64

// msrGSBase is MSR_GS_BASE (spec.md §4.8), distinct from KERNEL_GS_BASE
// (0xC0000102, owned by the syscall package): this one is live while
// running kernel code and is what SWAPGS exchanges with KERNEL_GS_BASE.
const msrGSBase = 0xC0000101

// Allocator is the subset of memory.Allocator the scheduler needs to
// carve task stacks from the kernel heap, injected rather than imported
// directly so this package stays testable without a real heap.
type Allocator interface {
	Alloc(size uint32, align uintptr) uintptr
}

// Scheduler owns the task table and round-robin cursor. It is a single
// module-local value created once at boot (spec.md §9): single-writer by
// construction, since only the currently running task ever calls Switch.
type Scheduler struct {
	alloc   Allocator
	tasks   [maxTasks]*Task
	count   int
	current int
}

// New builds a scheduler backed by the given allocator for task stacks.
func New(alloc Allocator) *Scheduler {
	return &Scheduler{alloc: alloc}
}

// Init creates task 0 in state Running, representing the current kernel
// thread (the bootstrap stack UEFI handed the kernel), whose gsbase_ptr
// points at the global KernelGsBase record (spec.md §4.8 "init()").
func (s *Scheduler) Init(bootGsbase *syscall.KernelGsBase) *Task {
	t := &Task{ID: 0, Status: StatusRunning, GsbasePtr: bootGsbase}
	s.tasks[0] = t
	s.count = 1
	s.current = 0
	return t
}

// Current returns the task presently marked Running.
func (s *Scheduler) Current() *Task { return s.tasks[s.current] }

const (
	rbp = iota
	rbx
	r12
	r13
	r14
	r15
	numCalleeSaved
)

// alignEntrySP aligns top down to 16 then subtracts 8, so that RSP+8 is
// 16-byte aligned once the task's entry function is "called" by the
// final RET inside ContextSwitch (System-V ABI, spec.md §4.8).
func alignEntrySP(top uintptr) uintptr {
	return (top &^ 0xF) - 8
}

// AddKernelTask synthesizes a stack so that context_switch's final RET
// resumes execution at entry: from high to low,
// [entry][0:r15][0:r14][0:r13][0:r12][0:rbx][0:rbp]; saved_rsp is the
// address of the rbp slot, the one ContextSwitch pops first.
func (s *Scheduler) AddKernelTask(entry uintptr, stackSize uint32) *Task {
	if s.count >= maxTasks {
		return nil
	}
	stackBottom := s.alloc.Alloc(stackSize, 16)
	if stackBottom == 0 {
		return nil
	}
	top := stackBottom + uintptr(stackSize)
	sp := alignEntrySP(top)

	// Reserve entry + numCalleeSaved uint64 slots below sp.
	sp -= 8 * uintptr(numCalleeSaved+1)
	words := (*[numCalleeSaved + 1]uint64)(unsafe.Pointer(sp))
	words[numCalleeSaved] = uint64(entry)
	for i := 0; i < numCalleeSaved; i++ {
		words[i] = 0
	}

	t := &Task{
		ID:          s.count,
		SavedRSP:    uint64(sp),
		StackBottom: stackBottom,
		Status:      StatusReady,
	}
	s.tasks[s.count] = t
	s.count++
	return t
}

// userFrameWords is laid out in ascending-address (declaration) order to
// match how ContextSwitch's POPs and the trampoline's IRETQ consume the
// stack, which is the reverse of spec.md §4.8's high-to-low prose
// ([user_ss][user_rsp][rflags][user_cs][entry][trampoline][callee-saved]):
// ContextSwitch's final RET pops trampoline first (lowest remaining
// address), leaving SP pointing at entry/cs/rflags/rsp/ss exactly where
// IRETQ expects RIP/CS/RFLAGS/RSP/SS.
type userFrameWords struct {
	calleeSaved [numCalleeSaved]uint64
	trampoline  uint64
	entry       uint64
	cs          uint64
	rflags      uint64
	rsp         uint64
	ss          uint64
}

const rflagsIF = 0x202 // reserved bit 1 always set, plus IF

// AddUserTask allocates a dedicated kernel stack and KernelGsBase record
// and synthesizes the frame of spec.md §4.8: the scheduler's RET lands on
// the two-instruction trampoline (swapgs; iretq), which drops to Ring 3
// at entry with the given user stack.
func (s *Scheduler) AddUserTask(entry, userStackBottom uintptr, userStackSize uint32, kernelStackSize uint32, userSS, userCS uint16) *Task {
	if s.count >= maxTasks {
		return nil
	}
	kernelStackBottom := s.alloc.Alloc(kernelStackSize, 16)
	if kernelStackBottom == 0 {
		return nil
	}
	gsbasePtr := (*syscall.KernelGsBase)(unsafe.Pointer(s.alloc.Alloc(uint32(unsafe.Sizeof(syscall.KernelGsBase{})), 8)))
	if gsbasePtr == nil {
		return nil
	}
	userTop := userStackBottom + uintptr(userStackSize)
	gsbasePtr.KernelStack = uint64(kernelStackBottom) + uint64(kernelStackSize)
	gsbasePtr.UserStack = uint64(userTop)

	top := kernelStackBottom + uintptr(kernelStackSize)
	sp := alignEntrySP(top)
	sp -= unsafe.Sizeof(userFrameWords{})
	f := (*userFrameWords)(unsafe.Pointer(sp))
	f.ss = uint64(userSS)
	f.rsp = uint64(userTop)
	f.rflags = rflagsIF
	f.cs = uint64(userCS)
	f.entry = uint64(entry)
	f.trampoline = uint64(asm.UserTaskTrampolineAddr())
	for i := range f.calleeSaved {
		f.calleeSaved[i] = 0
	}

	t := &Task{
		ID:                s.count,
		SavedRSP:          uint64(sp),
		StackBottom:        userStackBottom,
		KernelStackBottom: kernelStackBottom,
		Status:            StatusReady,
		GsbasePtr:         gsbasePtr,
	}
	s.tasks[s.count] = t
	s.count++
	return t
}

// nextReady implements spec.md §4.8's selection rule: starting at
// (current+1) mod N, walk up to N entries for the next Ready task.
func (s *Scheduler) nextReady() (int, bool) {
	for i := 1; i <= s.count; i++ {
		idx := (s.current + i) % s.count
		if s.tasks[idx].Status == StatusReady {
			return idx, true
		}
	}
	return 0, false
}

// Switch performs one round-robin step (spec.md §4.8). If the current
// task is still Running it is re-marked Ready so it may be selected
// again. If no Ready task exists and the current is Terminated, the
// scheduler halts forever; otherwise (no other Ready task, current still
// runnable) it simply continues running the same task.
func (s *Scheduler) Switch() {
	cur := s.tasks[s.current]
	wasRunning := cur.Status == StatusRunning
	if wasRunning {
		cur.Status = StatusReady
	}

	idx, ok := s.nextReady()
	if !ok {
		if cur.Status == StatusTerminated {
			asm.Halt()
		}
		cur.Status = StatusRunning
		return
	}
	if idx == s.current {
		cur.Status = StatusRunning
		return
	}

	next := s.tasks[idx]
	next.Status = StatusRunning
	s.current = idx
	if next.GsbasePtr != nil {
		asm.WriteMSR(msrGSBase, uint64(uintptr(unsafe.Pointer(next.GsbasePtr))))
	}
	asm.ContextSwitch(&cur.SavedRSP, next.SavedRSP)
}

// Terminate marks the current task Terminated and immediately yields;
// its stack is intentionally leaked (spec.md §4.8, §9 Open Questions:
// no reaper task is implemented).
func (s *Scheduler) Terminate() {
	s.tasks[s.current].Status = StatusTerminated
	s.Switch()
}
