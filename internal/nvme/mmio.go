package nvme

import (
	"unsafe"

	"github.com/iansmith/x86kernel/internal/asm"
)

// MMIO is the register-access surface Controller needs, injected for the
// same reason as xhci.MMIO: ring and queue-index math should be testable
// off real hardware (spec.md §9).
type MMIO interface {
	Read32(off uintptr) uint32
	Write32(off uintptr, v uint32)
	Read64(off uintptr) uint64
	Write64(off uintptr, v uint64)
}

type hwMMIO struct{ base uintptr }

func (m hwMMIO) Read32(off uintptr) uint32 {
	return asm.LoadVolatile32(unsafe.Pointer(m.base + off))
}
func (m hwMMIO) Write32(off uintptr, v uint32) {
	asm.StoreVolatile32(unsafe.Pointer(m.base+off), v)
}
func (m hwMMIO) Read64(off uintptr) uint64 {
	return asm.LoadVolatile64(unsafe.Pointer(m.base + off))
}
func (m hwMMIO) Write64(off uintptr, v uint64) {
	asm.StoreVolatile64(unsafe.Pointer(m.base+off), v)
}

// NewHardwareMMIO wraps a BAR0 address for production use; tests use a
// fake instead.
func NewHardwareMMIO(base uintptr) MMIO { return hwMMIO{base: base} }
