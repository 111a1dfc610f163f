package xhci

import "unsafe"

// unsafeTRBSlice/unsafeU64Slice reinterpret an allocated address as a
// fixed-length Go slice backed by that exact memory, never reallocated or
// grown; this is how ring/DCBAA/ERST memory is handed to the hardware
// without copying (mirrors mazboot's pattern of casting a kmalloc'd
// address to a fixed-size array pointer in virtio_rng.go).
func unsafeTRBSlice(addr uintptr, n int) []TRB {
	return unsafe.Slice((*TRB)(unsafe.Pointer(addr)), n)
}

func unsafeU64Slice(addr uintptr, n int) []uint64 {
	return unsafe.Slice((*uint64)(unsafe.Pointer(addr)), n)
}

// addrOf returns the address of a TRB or byte within the kernel's single
// identity-mapped address space, where virtual and physical addresses
// coincide (spec.md §2 Non-goals: "a single identity-mapped page-table
// serves all tasks").
func addrOf(p *TRB) uintptr { return uintptr(unsafe.Pointer(p)) }

func byteAddrOf(p *byte) uintptr { return uintptr(unsafe.Pointer(p)) }
