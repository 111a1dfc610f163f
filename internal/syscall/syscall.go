// Package syscall implements the SYSCALL/SYSRET fast-path gateway and the
// 13-entry dispatch table of spec.md §4.7. Grounded on mazboot's
// syscall.go: one function per syscall id, looked up from a dispatch
// table, each go:nosplit since it may run with interrupts masked. mazboot
// dispatches a Linux-syscall-emulation ABI for the patched Go runtime
// above it; this package keeps that "one function per id" shape but swaps
// in spec.md's own 13-entry ABI and mazboot's pattern of a process-wide
// state record reached from assembly via a GSBASE-style pointer
// (KernelGsBase here; mazboot's futex-waiter table is the closest analogue
// reached the same way, from asm-trapped contexts).
package syscall

import (
	"unsafe"

	"github.com/iansmith/x86kernel/internal/asm"
)

func uintptrOf(p *KernelGsBase) uintptr { return uintptr(unsafe.Pointer(p)) }

// Syscall ids, fixed by wire (spec.md §4.7).
const (
	IDPrint       = 1
	IDAlloc       = 2
	IDFree        = 3
	IDAddTask     = 4
	IDYield       = 5
	IDExit        = 6
	IDNVMeRead    = 7
	IDNVMeWrite   = 8
	IDXHCIPoll    = 9
	IDShutdown    = 10
	IDReadKey     = 11
	IDClearScreen = 12
	IDRealloc     = 13
)

const unknownResult = ^uint64(0)

// KernelGsBase is the per-CPU (here: per-task, since the system is
// single-CPU) scratch record KERNEL_GS_BASE points to while running user
// code; the SWAPGS on kernel entry moves it into GS_BASE, where the entry
// stub reaches it through GS (spec.md §3 "KernelGsBase record").
type KernelGsBase struct {
	KernelStack uint64
	UserStack   uint64
	Scratch     uint64
}

// Handlers bundles the collaborators syscalls need, injected rather than
// reached through package-level globals so the dispatcher stays unit
// testable (spec.md §9 "not as lexically global pointers that any code may
// mutate").
type Handlers struct {
	Print       func(ptr uintptr, length uint64)
	Alloc       func(size, align uint64) uint64
	Free        func(ptr uint64)
	Realloc     func(ptr, size, align uint64) uint64
	AddTask     func(entry, userStack uint64)
	Yield       func()
	Exit        func()
	NVMeRead    func(nsid, lba, ptr, count uint64) uint64
	NVMeWrite   func(nsid, lba, ptr, count uint64) uint64
	XHCIPoll    func()
	Shutdown    func()
	ReadKey     func() byte
	ClearScreen func()
}

// Dispatcher owns the live Handlers and is the thing Init wires into the
// asm package's registered dispatch hook.
type Dispatcher struct {
	h Handlers
}

// NewDispatcher builds a dispatcher over the given handlers.
func NewDispatcher(h Handlers) *Dispatcher { return &Dispatcher{h: h} }

// Dispatch implements the id -> behavior mapping of spec.md §4.7's table.
// Unknown ids return ^0 (all-ones).
func (d *Dispatcher) Dispatch(id, a1, a2, a3, a4, a5, a6 uint64) uint64 {
	switch id {
	case IDPrint:
		if d.h.Print != nil {
			d.h.Print(uintptr(a1), a2)
		}
		return 0
	case IDAlloc:
		if d.h.Alloc != nil {
			return d.h.Alloc(a1, a2)
		}
		return 0
	case IDFree:
		if d.h.Free != nil {
			d.h.Free(a1)
		}
		return 0
	case IDAddTask:
		if d.h.AddTask != nil {
			d.h.AddTask(a1, a2)
		}
		return 0
	case IDYield:
		if d.h.Yield != nil {
			d.h.Yield()
		}
		return 0
	case IDExit:
		if d.h.Exit != nil {
			d.h.Exit()
		}
		return 0
	case IDNVMeRead:
		if d.h.NVMeRead != nil {
			return d.h.NVMeRead(a1, a2, a3, a4)
		}
		return 0
	case IDNVMeWrite:
		if d.h.NVMeWrite != nil {
			return d.h.NVMeWrite(a1, a2, a3, a4)
		}
		return 0
	case IDXHCIPoll:
		if d.h.XHCIPoll != nil {
			d.h.XHCIPoll()
		}
		return 0
	case IDShutdown:
		if d.h.Shutdown != nil {
			d.h.Shutdown()
		}
		return 0
	case IDReadKey:
		if d.h.ReadKey != nil {
			return uint64(d.h.ReadKey())
		}
		return 0
	case IDClearScreen:
		if d.h.ClearScreen != nil {
			d.h.ClearScreen()
		}
		return 0
	case IDRealloc:
		if d.h.Realloc != nil {
			return d.h.Realloc(a1, a2, a3)
		}
		return 0
	default:
		return unknownResult
	}
}

// MSR numbers (spec.md §6).
const (
	msrEFER         = 0xC0000080
	msrSTAR         = 0xC0000081
	msrLSTAR        = 0xC0000082
	msrSFMASK       = 0xC0000084
	msrKernelGSBase = 0xC0000102

	eferSCE   = 1 << 0
	sfmaskIF  = 0x200
)

// Init programs the gateway once during boot (spec.md §4.7): EFER.SCE,
// STAR (selector pairing for SYSCALL/SYSRET), LSTAR (entry point),
// SFMASK (clears IF on entry), and KERNEL_GS_BASE (the scratch record the
// entry stub's GS-relative loads/stores reach).
func Init(d *Dispatcher, userCSBase, kernelCS uint16, gsBase *KernelGsBase) {
	asm.RegisterSyscallDispatch(d.Dispatch)

	efer := asm.ReadMSR(msrEFER)
	asm.WriteMSR(msrEFER, efer|eferSCE)

	star := (uint64(userCSBase) << 48) | (uint64(kernelCS) << 32)
	asm.WriteMSR(msrSTAR, star)

	asm.WriteMSR(msrLSTAR, uint64(asm.SyscallEntryAddr()))
	asm.WriteMSR(msrSFMASK, sfmaskIF)
	asm.WriteMSR(msrKernelGSBase, uint64(uintptrOf(gsBase)))
}
