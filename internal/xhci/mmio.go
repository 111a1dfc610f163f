package xhci

import (
	"unsafe"

	"github.com/iansmith/x86kernel/internal/asm"
)

func unsafe32(addr uintptr) unsafe.Pointer { return unsafe.Pointer(addr) }
func unsafe64(addr uintptr) unsafe.Pointer { return unsafe.Pointer(addr) }

// MMIO is the register-access surface the controller needs, injected so
// ring/enumeration logic can be unit tested against a fake (spec.md §9:
// "an implementation should express each as a module-local value" rather
// than reaching for real MMIO from anywhere). hwMMIO is the only real
// implementation; it is never exercised by tests.
type MMIO interface {
	Read32(off uintptr) uint32
	Write32(off uintptr, v uint32)
	Read64(off uintptr) uint64
	Write64(off uintptr, v uint64)
}

// hwMMIO reads/writes through a fixed base address using the volatile
// primitives internal/asm declares, exactly as mazboot's virtio driver
// reaches its BAR through asm.MmioRead16/MmioWrite.
type hwMMIO struct{ base uintptr }

func (m hwMMIO) Read32(off uintptr) uint32 {
	return asm.LoadVolatile32(unsafe32(m.base + off))
}
func (m hwMMIO) Write32(off uintptr, v uint32) {
	asm.StoreVolatile32(unsafe32(m.base+off), v)
}
func (m hwMMIO) Read64(off uintptr) uint64 {
	return asm.LoadVolatile64(unsafe64(m.base + off))
}
func (m hwMMIO) Write64(off uintptr, v uint64) {
	asm.StoreVolatile64(unsafe64(m.base+off), v)
}

// NewHardwareMMIO wraps a BAR physical/identity-mapped address for use by
// Controller.Init in production; tests construct a fakeMMIO instead.
func NewHardwareMMIO(base uintptr) MMIO { return hwMMIO{base: base} }
