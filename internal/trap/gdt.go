// Package trap covers the GDT/TSS, IDT, exception, and IRQ machinery of
// spec.md §4.4/§4.5 — the CPU-privilege and fault-handling half of "Trap,
// privilege-mode, and syscall gateway" (spec.md §1). Grounded on mazboot's
// exceptions.go (vector relocation, per-exception dump-and-halt) and
// mmu.go's register-loader idiom, re-targeted from AArch64's VBAR_EL1/ESR
// to x86_64's GDT/IDT/TSS.
package trap

import (
	"unsafe"

	"github.com/iansmith/x86kernel/internal/asm"
)

// Segment selectors (spec.md §3/§6), fixed by wire.
const (
	SelKernelCode uint16 = 0x08
	SelKernelData uint16 = 0x10
	SelUserData   uint16 = 0x18 | 3
	SelUserCode   uint16 = 0x20 | 3
	SelTSS        uint16 = 0x28
)

// Segment descriptor access-byte/flag bits.
const (
	accPresent  = 1 << 7
	accDPL3     = 3 << 5
	accCodeData = 1 << 4
	accExec     = 1 << 3
	accRW       = 1 << 1 // readable (code) / writable (data)
	flagLong    = 1 << 5 // L bit, 64-bit code segment
	flagGran4K  = 1 << 7 // G bit, limit in 4K units
)

// gdtEntry is a classic 8-byte segment descriptor.
type gdtEntry struct {
	limitLow  uint16
	baseLow   uint16
	baseMid   uint8
	access    uint8
	flagsLim  uint8 // high nibble flags, low nibble limit[19:16]
	baseHigh  uint8
}

func makeEntry(access, flags uint8) gdtEntry {
	// Base/limit are meaningless for 64-bit code/data segments but the
	// classic fields are still populated as 0/0xFFFFF for compatibility
	// with how real-mode-descended CPUs parse the descriptor.
	return gdtEntry{
		limitLow: 0xFFFF,
		flagsLim: flags | 0xF,
		access:   access,
	}
}

// tssDescriptor is the 16-byte "system" descriptor form the TSS selector
// uses (spec.md §3: "TSS (16-byte system descriptor)").
type tssDescriptor struct {
	limitLow  uint16
	baseLow   uint16
	baseMid   uint8
	access    uint8
	flagsLim  uint8
	baseHigh  uint8
	baseUpper uint32
	reserved  uint32
}

// TSS is the 64-bit task-state segment: only RSP0 and the seven IST stacks
// are meaningful in long mode (spec.md §3).
type TSS struct {
	reserved0 uint32
	RSP0      uint64
	RSP1      uint64
	RSP2      uint64
	reserved1 uint64
	IST       [7]uint64
	reserved2 uint64
	reserved3 uint16
	IOMapBase uint16
}

// gdtr/idtr match the operand LGDT/LIDT expect: a 16-bit limit followed by
// a 64-bit linear base.
type tableRegister struct {
	limit uint16
	base  uint64
}

// GDT holds the seven entries described in spec.md §3: null, kernel
// code/data, user data/code, and the 16-byte TSS descriptor (which
// occupies two 8-byte slots).
type GDT struct {
	entries [7]uint64
	tss     TSS
}

func (g *GDT) setEntry(index int, e gdtEntry) {
	raw := uint64(e.limitLow) |
		uint64(e.baseLow)<<16 |
		uint64(e.baseMid)<<32 |
		uint64(e.access)<<40 |
		uint64(e.flagsLim)<<48 |
		uint64(e.baseHigh)<<56
	g.entries[index] = raw
}

func (g *GDT) setTSSDescriptor(index int, tssAddr uint64) {
	limit := uint32(unsafe.Sizeof(TSS{}) - 1)
	low := uint64(limit&0xFFFF) |
		(tssAddr&0xFFFF)<<16 |
		((tssAddr>>16)&0xFF)<<32 |
		uint64(accPresent|9 /* 64-bit TSS (available) type */)<<40 |
		uint64((limit>>16)&0xF)<<48 |
		((tssAddr >> 24) & 0xFF) << 56
	high := (tssAddr >> 32) & 0xFFFFFFFF
	g.entries[index] = low
	g.entries[index+1] = high
}

// Init installs the seven GDT entries, loads GDTR, far-returns into the
// kernel code selector, reloads the data segment registers, and loads the
// task register with the TSS selector (spec.md §4.4).
func (g *GDT) Init() {
	g.entries[0] = 0 // null
	g.setEntry(1, makeEntry(accPresent|accCodeData|accExec|accRW, flagLong))            // kernel code
	g.setEntry(2, makeEntry(accPresent|accCodeData|accRW, 0))                           // kernel data
	g.setEntry(3, makeEntry(accPresent|accDPL3|accCodeData|accRW, 0))                   // user data
	g.setEntry(4, makeEntry(accPresent|accDPL3|accCodeData|accExec|accRW, flagLong))     // user code
	g.setTSSDescriptor(5, uint64(uintptr(unsafe.Pointer(&g.tss))))

	tr := tableRegister{
		limit: uint16(unsafe.Sizeof(g.entries) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&g.entries))),
	}
	asm.LoadGDT(unsafe.Pointer(&tr), SelKernelCode, SelKernelData)
	asm.LoadTR(SelTSS)
}

// SetTSSStack updates TSS.RSP0 — the kernel stack Ring 3→0 transitions
// (syscall or interrupt while in user mode) switch onto. Nothing in this
// repository calls it: the scheduler does not update RSP0 when it starts or
// switches to a user task, so RSP0 keeps its zero value.
func (g *GDT) SetTSSStack(rsp uint64) {
	g.tss.RSP0 = rsp
}

// SetISTStack installs one of the seven IST stacks (1-indexed per the
// x86_64 TSS layout); the double-fault handler's IDT gate references one of
// these by index (spec.md §4.5).
func (g *GDT) SetISTStack(index int, top uint64) {
	g.tss.IST[index-1] = top
}
