// Package main is the kernel's wiring point: it brings every subsystem up
// in the order spec.md §2 describes and never implements subsystem logic
// itself, only the handoff between packages. Grounded on mazboot's own
// KernelMain (kernel.go): a single long init function, driven one
// subsystem at a time, each step logged before/after so a hang during boot
// narrows straight to a line number.
package main

import (
	"unsafe"

	"github.com/iansmith/x86kernel/internal/asm"
	"github.com/iansmith/x86kernel/internal/bootinfo"
	"github.com/iansmith/x86kernel/internal/fbtext"
	"github.com/iansmith/x86kernel/internal/jit"
	"github.com/iansmith/x86kernel/internal/klog"
	"github.com/iansmith/x86kernel/internal/memory"
	"github.com/iansmith/x86kernel/internal/nvme"
	"github.com/iansmith/x86kernel/internal/paging"
	"github.com/iansmith/x86kernel/internal/pciutil"
	"github.com/iansmith/x86kernel/internal/pic"
	"github.com/iansmith/x86kernel/internal/sched"
	"github.com/iansmith/x86kernel/internal/shell"
	"github.com/iansmith/x86kernel/internal/syscall"
	"github.com/iansmith/x86kernel/internal/trap"
	"github.com/iansmith/x86kernel/internal/xhci"
)

// heapFrames sets the kernel heap's size in 4 KiB frames (16 MiB); no
// spec-mandated size exists, so this is chosen generously against the
// scenario memory maps used in testing (spec.md §8 "Boot to prompt" uses a
// 4096-page conventional region, 16 MiB of which this reserves for the
// heap).
const heapFrames = 4096

// xhciClass/nvmeClass are the PCI class/subclass pairs pciutil.FindByClass
// looks for (spec.md §4.9/§4.10 device identification).
const (
	xhciClass, xhciSubClass = 0x0C, 0x03
	nvmeClass, nvmeSubClass = 0x01, 0x08
)

// Panic logs a fatal message and halts forever. Every boot-critical
// failure in this package funnels through here, mirroring mazboot's
// repeated `print("FATAL: ..."); for {}` idiom (spec.md §7).
func Panic(msg string) {
	klog.Line("*** FATAL: " + msg + " ***")
	asm.Halt()
}

// pagingExecMapper adapts paging.Mapper's error-returning MakeExecutable
// to jit.Mapper's signature; a failure here means the JIT tried to execute
// code in memory that was never mapped, which cannot happen since jit.Run
// only calls it on memory it just got from the same allocator paging
// mapped the heap out of.
type pagingExecMapper struct {
	m *paging.Mapper
}

func (p pagingExecMapper) MakeExecutable(addr uintptr, size uintptr) {
	if err := p.m.MakeExecutable(uint64(addr), size); err != nil {
		Panic("jit: MakeExecutable on unmapped page: " + err.Error())
	}
}

// physMem backs paging's read/write/zero hooks with direct volatile
// access: the frames paging.InitPaging allocates come from descriptors
// already identity mapped by firmware before the kernel's own CR3 load,
// so physical addresses are valid pointers at this stage (spec.md §4.2).
func readPhys(phys uint64) uint64 {
	return asm.LoadVolatile64(unsafe.Pointer(uintptr(phys)))
}

func writePhys(phys uint64, val uint64) {
	asm.StoreVolatile64(unsafe.Pointer(uintptr(phys)), val)
}

func zeroPhys(phys uint64, size uintptr) {
	for off := uintptr(0); off < size; off += 8 {
		writePhys(phys+uint64(off), 0)
	}
}

// KernelMain is the entry point the boot stub calls once UEFI hands off
// control, with bootInfoAddr the linear address of the bootinfo.Info
// record (spec.md §6). Not directly callable from a hosted Go program;
// there is no func main because nothing above this ever returns.
//
//go:noinline
func KernelMain(bootInfoAddr uint64) {
	info := (*bootinfo.Info)(unsafe.Pointer(uintptr(bootInfoAddr)))

	frames := memory.NewFrameAllocator(info)

	klog.Line("x86kernel: building page tables")
	pml4, err := paging.InitPaging(info, frames, zeroPhys, readPhys, writePhys)
	if err != nil {
		Panic("paging init: " + err.Error())
	}
	asm.LoadCR3(pml4)
	pagingMapper := paging.MapperFor(pml4, readPhys, writePhys)

	klog.Line("x86kernel: carving kernel heap")
	heapStart, err := firstNFrames(frames, heapFrames)
	if err != nil {
		Panic("heap: " + err.Error())
	}
	var heapAlloc memory.Allocator
	heapAlloc.Init(uintptr(heapStart), heapFrames*bootinfo.PageSize)

	klog.Line("x86kernel: bringing up framebuffer console")
	console, err := fbtext.New(fbtext.Target{
		Base:   uintptr(info.FramebufferBase),
		Width:  info.HRes,
		Height: info.VRes,
		Pitch:  info.PixelsPerScanline * 4,
	})
	if err != nil {
		Panic("fbtext: " + err.Error())
	}
	klog.SetSink(func(s string) { console.Write([]byte(s)) })
	trap.Println = func(s string) { console.Write([]byte(s)) }
	console.Flush()

	klog.Line("x86kernel: installing GDT/TSS")
	var gdt trapGDT
	gdt.Init()

	klog.Line("x86kernel: installing IDT")
	pic.Remap()
	var idt trapIDT
	idt.Init(16)
	trap.SetIRQHandler(1, trap.PS2KeyboardIRQ)
	asm.EnableInterrupts()

	klog.Line("x86kernel: starting scheduler")
	scheduler := sched.New(&heapAlloc)
	bootGsbase := &syscall.KernelGsBase{}
	scheduler.Init(bootGsbase)

	klog.Line("x86kernel: enumerating PCI devices")
	var xhciCtl *xhci.Controller
	var nvmeCtl *nvme.Controller
	pciutil.Scan(func(d pciutil.Device) {
		switch {
		case d.ClassCode == xhciClass && d.SubClass == xhciSubClass:
			pciutil.EnableDevice(d)
			xhciCtl = xhci.New(xhci.NewHardwareMMIO(uintptr(d.BAR0)))
			xhciCtl.Init(&heapAlloc)
		case d.ClassCode == nvmeClass && d.SubClass == nvmeSubClass:
			pciutil.EnableDevice(d)
			nvmeCtl = nvme.New(nvme.NewHardwareMMIO(uintptr(d.BAR0)))
			nvmeCtl.Init(&heapAlloc)
		}
	})

	if xhciCtl != nil {
		klog.Line("x86kernel: scanning xHCI ports")
		for port := uint8(1); port <= xhciCtl.MaxPorts; port++ {
			speed, connected := xhciCtl.PortStatus(port)
			if connected {
				xhciCtl.EnumeratePort(port, speed)
			}
		}
	}

	tinyJIT := jit.New(&heapAlloc, pagingExecMapper{m: pagingMapper})

	dispatcher := syscall.NewDispatcher(buildHandlers(scheduler, &heapAlloc, console, xhciCtl, nvmeCtl))
	syscall.Init(dispatcher, trap.SelUserCode, trap.SelKernelCode, bootGsbase)

	klog.Line("x86kernel: starting shell")
	sh := shell.New(kernelSyscalls{console: console, scheduler: scheduler}, tinyJIT)
	sh.Run()
}

// firstNFrames allocates n consecutive frames and returns the first's
// physical address, relying on memory.FrameAllocator's documented
// monotone-contiguous-within-a-descriptor guarantee (spec.md §4.1, §8).
func firstNFrames(a *memory.FrameAllocator, n int) (uint64, error) {
	first, err := a.Allocate()
	if err != nil {
		return 0, err
	}
	for i := 1; i < n; i++ {
		if _, err := a.Allocate(); err != nil {
			return 0, err
		}
	}
	return first, nil
}

// trapGDT/trapIDT alias the trap package's exported types so this file
// reads top-to-bottom without repeating the package-qualified name at
// every call site below.
type trapGDT = trap.GDT
type trapIDT = trap.IDT

// kernelSyscalls is the in-kernel Syscalls implementation the shell runs
// against directly (no real SYSCALL trap needed when the shell runs as
// kernel-mode task 0 rather than a Ring-3 user task — a simplification
// noted in DESIGN.md). Print/ReadKey/ClearScreen go straight to the
// console and keyboard ring; Yield/Exit go through the scheduler.
type kernelSyscalls struct {
	console   *fbtext.Console
	scheduler *sched.Scheduler
}

func (k kernelSyscalls) Print(s string)  { k.console.Write([]byte(s)); k.console.Flush() }
func (k kernelSyscalls) Yield()          { k.scheduler.Switch() }
func (k kernelSyscalls) ClearScreen()    { k.console.Clear() }
func (k kernelSyscalls) Exit()           { k.scheduler.Terminate() }
func (k kernelSyscalls) ReadKey() byte {
	b, ok := trap.PS2KeyRing.Pop()
	if !ok {
		return 0
	}
	return b
}

// defaultUserStackSize/defaultKernelStackSize size the stacks add_task
// synthesizes; spec.md §4.7's ABI only carries entry/user_stack for this
// syscall, so the sizes and Ring-3 selectors it needs beyond that are
// fixed constants rather than additional syscall arguments.
const (
	defaultUserStackSize   = 64 * 1024
	defaultKernelStackSize = 16 * 1024
)

// nvmeSectorSize is the logical block size this driver assumes (spec.md
// §4.10 does not name one explicitly; 512 is the common NVMe default).
const nvmeSectorSize = 512

// buildHandlers wires the syscall dispatch table to the subsystems this
// package just brought up (spec.md §4.7's table). xhciCtl/nvmeCtl may be
// nil if no matching PCI device was found; their handlers then report
// failure rather than dereferencing a nil controller.
func buildHandlers(s *sched.Scheduler, alloc *memory.Allocator, console *fbtext.Console, xhciCtl *xhci.Controller, nvmeCtl *nvme.Controller) syscall.Handlers {
	return syscall.Handlers{
		Print: func(ptr uintptr, length uint64) {
			buf := unsafe.Slice((*byte)(unsafe.Pointer(ptr)), length)
			console.Write(buf)
			console.Flush()
		},
		Alloc: func(size, align uint64) uint64 {
			return uint64(alloc.Alloc(uint32(size), uintptr(align)))
		},
		Free: func(ptr uint64) { alloc.Dealloc(uintptr(ptr)) },
		Realloc: func(ptr, size, align uint64) uint64 {
			return uint64(alloc.Realloc(uintptr(ptr), uint32(size), uintptr(align)))
		},
		AddTask: func(entry, userStack uint64) {
			s.AddUserTask(uintptr(entry), uintptr(userStack), defaultUserStackSize,
				defaultKernelStackSize, trap.SelUserData, trap.SelUserCode)
		},
		Yield: s.Switch,
		Exit:  s.Terminate,
		NVMeRead: func(nsid, lba, ptr, count uint64) uint64 {
			if nvmeCtl == nil {
				return 0
			}
			buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), count*nvmeSectorSize)
			if nvmeCtl.Read(uint32(nsid), lba, buf, uint16(count)) {
				return 1
			}
			return 0
		},
		NVMeWrite: func(nsid, lba, ptr, count uint64) uint64 {
			if nvmeCtl == nil {
				return 0
			}
			buf := unsafe.Slice((*byte)(unsafe.Pointer(uintptr(ptr))), count*nvmeSectorSize)
			if nvmeCtl.Write(uint32(nsid), lba, buf, uint16(count)) {
				return 1
			}
			return 0
		},
		XHCIPoll: func() {
			if xhciCtl != nil {
				xhciCtl.ProcessEvents()
			}
		},
		Shutdown: func() {
			if xhciCtl != nil {
				xhciCtl.Shutdown()
			}
			asm.Halt()
		},
		ReadKey: func() byte {
			b, _ := trap.PS2KeyRing.Pop()
			return b
		},
		ClearScreen: console.Clear,
	}
}
