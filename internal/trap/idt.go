// IDT construction and exception/IRQ dispatch (spec.md §4.5). Grounded on
// mazboot's exceptions.go: a fixed vector-name table used purely for
// diagnostic printing, a frame struct capturing what the hardware (or the
// common stub) pushed, and a dispatch-by-vector switch that always finishes
// by acknowledging the interrupt controller.
package trap

import (
	"unsafe"

	"github.com/iansmith/x86kernel/internal/asm"
	"github.com/iansmith/x86kernel/internal/klog"
	"github.com/iansmith/x86kernel/internal/pic"
)

const (
	numExceptionVectors = 32
	irqVectorBase       = 32
	doubleFaultVector   = 8
	pageFaultVector     = 14
	doubleFaultIST      = 1
)

// idtGate is one 16-byte IDT entry (spec.md §3).
type idtGate struct {
	offsetLow  uint16
	selector   uint16
	istIndex   uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

const gateTypeAttr = 0x8E // present, ring 0, interrupt gate (spec.md §3)

func makeGate(handler uintptr, ist uint8) idtGate {
	h := uint64(handler)
	return idtGate{
		offsetLow:  uint16(h),
		selector:   SelKernelCode,
		istIndex:   ist,
		typeAttr:   gateTypeAttr,
		offsetMid:  uint16(h >> 16),
		offsetHigh: uint32(h >> 32),
	}
}

// IDT holds the 256-entry interrupt descriptor table.
type IDT struct {
	gates [256]idtGate
}

// stubAddr returns the address of the auto-generated low-level entry for
// `vector`, emitted by idt_amd64.s (idtStubTable, one 16-byte-aligned slot
// per vector so Go can compute it without 256 hand-written symbols).
func stubAddr(vector int) uintptr {
	base := idtStubTableAddr()
	return base + uintptr(vector)*stubSlotSize
}

// stubSlotSize must match the padded stub size in idt_amd64.s.
const stubSlotSize = 16

// idtStubTableAddr returns the base of the generated per-vector stub table.
func idtStubTableAddr() uintptr

// Init installs gates 0..31 (exceptions) and 32..(32+numIRQLines-1) (IRQs
// from the PIC), each type_attr=0x8E (spec.md §4.5); the remaining gates of
// the 256-entry table stay zero (not present). Vector 8 (double fault) uses
// the double-fault IST stack.
func (t *IDT) Init(numIRQLines int) {
	for v := 0; v < numExceptionVectors; v++ {
		ist := uint8(0)
		if v == doubleFaultVector {
			ist = doubleFaultIST
		}
		t.gates[v] = makeGate(stubAddr(v), ist)
	}
	for i := 0; i < numIRQLines; i++ {
		v := irqVectorBase + i
		t.gates[v] = makeGate(stubAddr(v), 0)
	}

	tr := tableRegister{
		limit: uint16(unsafe.Sizeof(t.gates) - 1),
		base:  uint64(uintptr(unsafe.Pointer(&t.gates))),
	}
	asm.LoadIDT(unsafe.Pointer(&tr))
}

// Frame is what the CPU (plus the common stub) leaves on the stack for
// every trap: the software-pushed vector/error-code pair, the
// hardware-pushed iret frame, and the stub-pushed general registers
// (spec.md §3 "Interrupt frame").
type Frame struct {
	// Pushed by the common stub, in this order (last pushed is lowest
	// address, matching the pop sequence on return):
	R15, R14, R13, R12, R11, R10, R9, R8 uint64
	RDI, RSI, RBP, RDX, RCX, RBX, RAX    uint64
	// Pushed by the low-level per-vector stub.
	Vector    uint64
	ErrorCode uint64
	// Pushed by the CPU.
	RIP, CS, RFLAGS, RSP, SS uint64
}

var vectorNames = [numExceptionVectors]string{
	0: "Divide Error", 1: "Debug", 2: "NMI", 3: "Breakpoint",
	4: "Overflow", 5: "BOUND Range Exceeded", 6: "Invalid Opcode",
	7: "Device Not Available", 8: "Double Fault", 9: "Coprocessor Segment Overrun",
	10: "Invalid TSS", 11: "Segment Not Present", 12: "Stack-Segment Fault",
	13: "General Protection Fault", 14: "Page Fault", 15: "Reserved",
	16: "x87 Floating-Point Exception", 17: "Alignment Check", 18: "Machine Check",
	19: "SIMD Floating-Point Exception", 20: "Virtualization Exception",
	21: "Control Protection Exception", 22: "Reserved", 23: "Reserved",
	24: "Reserved", 25: "Reserved", 26: "Reserved", 27: "Reserved",
	28: "Hypervisor Injection Exception", 29: "VMM Communication Exception",
	30: "Security Exception", 31: "Reserved",
}

// Println is supplied by the kernel's console sink; trap has no framebuffer
// dependency of its own so it stays testable without one.
var Println func(s string)

func logln(s string) {
	if Println != nil {
		Println(s)
	}
}

// commonExceptionHandler prints a named message, dumps registers, and on
// vector 14 prints the faulting CR2 address, then halts forever — every
// exception is fatal in this kernel by design (spec.md §4.5/§7).
//
//go:nosplit
func commonExceptionHandler(f *Frame) {
	name := "Unknown Exception"
	if int(f.Vector) < numExceptionVectors {
		name = vectorNames[f.Vector]
	}
	logln("\n*** EXCEPTION: " + name + " ***")
	dumpRegisters(f)
	asm.Halt()
}

// regLine hex-formats one register through klog.PutHex64, mazboot's own
// uartPutHex64Direct digit-by-digit encoder, the same one the kernel uses
// for every other boot-time log line.
func regLine(name string, val uint64) {
	klog.Puts(name + "=")
	klog.PutHex64(val)
	klog.Puts("\r\n")
}

// dumpRegisters hex-prints every field of f, and on a page fault (vector
// 14) the faulting address from CR2, per spec.md §4.5.
func dumpRegisters(f *Frame) {
	regLine("RAX", f.RAX)
	regLine("RBX", f.RBX)
	regLine("RCX", f.RCX)
	regLine("RDX", f.RDX)
	regLine("RSI", f.RSI)
	regLine("RDI", f.RDI)
	regLine("RBP", f.RBP)
	regLine("R8 ", f.R8)
	regLine("R9 ", f.R9)
	regLine("R10", f.R10)
	regLine("R11", f.R11)
	regLine("R12", f.R12)
	regLine("R13", f.R13)
	regLine("R14", f.R14)
	regLine("R15", f.R15)
	regLine("RIP", f.RIP)
	regLine("CS ", f.CS)
	regLine("RFLAGS", f.RFLAGS)
	regLine("RSP", f.RSP)
	regLine("SS ", f.SS)
	regLine("ERR", f.ErrorCode)
	if f.Vector == pageFaultVector {
		regLine("CR2", asm.ReadCR2())
	}
}

// irqHandlerTable dispatches by (vector - irqVectorBase); index 1 is PS/2
// keyboard (spec.md §4.5). Populated by the kernel's init sequence once the
// keyboard ring buffer exists.
var irqHandlerTable [16]func()

// SetIRQHandler installs the handler for IRQ line `line` (0-based).
func SetIRQHandler(line int, fn func()) {
	irqHandlerTable[line] = fn
}

// commonIRQHandler dispatches by vector and always finishes with EOI to the
// PIC: slave EOI first iff vector >= 8+irqVectorBase, then master EOI
// always (spec.md §4.5).
//
//go:nosplit
func commonIRQHandler(f *Frame) {
	line := int(f.Vector) - irqVectorBase
	if line >= 0 && line < len(irqHandlerTable) && irqHandlerTable[line] != nil {
		irqHandlerTable[line]()
	}
	pic.EndOfInterrupt(line)
}

// trapDispatch is the single entry point trap_common_entry calls with a
// pointer to the freshly pushed Frame; it routes to the exception path or
// the IRQ path by vector number.
//
//go:nosplit
func trapDispatch(f *Frame) {
	if int(f.Vector) < numExceptionVectors {
		commonExceptionHandler(f)
		return
	}
	commonIRQHandler(f)
}
