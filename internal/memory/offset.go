// Offset-header wrapper: the publicly visible allocator (spec.md §4.3/§8).
//
// For every user allocation of (size, align) the heap reserves
// size+align+wordSize raw bytes; the aligned payload starts at the smallest
// address >= raw+wordSize satisfying the alignment, and the word
// immediately preceding the payload stores raw (the payload address
// AllocRaw returned, one header past the block itself) so Dealloc/Realloc
// can recover the underlying block. Grounded on mazboot's heap, generalized
// from its hard-coded 16-byte alignment to arbitrary alignment per spec.
package memory

import "unsafe"

const wordSize = unsafe.Sizeof(uintptr(0))

// Allocator is the aligned allocator callers use; Heap is its unaligned
// backing store.
type Allocator struct {
	Heap Heap
}

// Init initializes the backing heap over [start, start+size).
func (a *Allocator) Init(start uintptr, size uint32) {
	a.Heap.Init(start, size)
}

// Alloc reserves size bytes aligned to align (which must be a power of
// two) and returns the payload address, or 0 on exhaustion.
func (a *Allocator) Alloc(size uint32, align uintptr) uintptr {
	if align == 0 {
		align = 1
	}
	raw := a.Heap.AllocRaw(uint32(uintptr(size) + align + wordSize))
	if raw == 0 {
		return 0
	}
	aligned := alignUp(raw+wordSize, align)
	*(*uintptr)(unsafe.Pointer(aligned - wordSize)) = raw
	return aligned
}

// alignUp returns the smallest address >= addr that is a multiple of align.
func alignUp(addr, align uintptr) uintptr {
	return (addr + align - 1) &^ (align - 1)
}

// blockHeaderOf recovers the raw allocation address (AllocRaw's return
// value, headerSize past the block header) for a pointer previously
// returned by Alloc, by reading the stored word.
func blockHeaderOf(ptr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(ptr - wordSize))
}

// Dealloc releases a pointer previously returned by Alloc.
func (a *Allocator) Dealloc(ptr uintptr) {
	if ptr == 0 {
		return
	}
	a.Heap.FreeRaw(blockHeaderOf(ptr))
}

// oldCapacity derives the usable payload size backing ptr: the raw block's
// size minus the raw-payload-to-aligned-payload offset already consumed.
func (a *Allocator) oldCapacity(ptr uintptr) uint32 {
	raw := blockHeaderOf(ptr)
	total := a.Heap.capacity(raw)
	consumed := uint32(ptr - raw)
	if consumed > total {
		return 0
	}
	return total - consumed
}

// Realloc allocates a fresh (newSize, align) block, copies
// min(newSize, old capacity) bytes, frees the old block, and returns the
// new pointer. On failure the old block is left intact and 0 is returned
// (spec.md §7).
func (a *Allocator) Realloc(ptr uintptr, newSize uint32, align uintptr) uintptr {
	if ptr == 0 {
		return a.Alloc(newSize, align)
	}
	fresh := a.Alloc(newSize, align)
	if fresh == 0 {
		return 0
	}
	n := a.oldCapacity(ptr)
	if n > newSize {
		n = newSize
	}
	src := (*[1 << 30]byte)(unsafe.Pointer(ptr))[:n:n]
	dst := (*[1 << 30]byte)(unsafe.Pointer(fresh))[:n:n]
	copy(dst, src)
	a.Dealloc(ptr)
	return fresh
}
