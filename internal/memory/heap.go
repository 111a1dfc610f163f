// Heap implements the kernel free-list allocator (spec.md §4.3), grounded on
// mazboot's heap.go (heapSegment doubly-linked free list, first-fit,
// kmalloc/kfree). mazboot hard-codes 16-byte alignment; this type keeps
// mazboot's block-list shape but is itself alignment-agnostic — arbitrary
// alignment is layered on top by Allocator (offset.go), exactly as spec.md
// §4.3 splits "raw allocator" from "aligned wrapper".
package memory

import (
	"sync"
	"unsafe"
)

// minPayload is the smallest remainder, in bytes, worth splitting off a
// block as its own free block: header + >=16 bytes of payload (spec.md §4.3).
const minPayload = 16

// block is the header preceding every payload in the heap, in address
// order via next/prev. size excludes the header itself.
type block struct {
	size uint32
	next *block
	prev *block
	free bool
}

var headerSize = uint32(unsafe.Sizeof(block{}))

// Heap is a first-fit, address-ordered, coalescing free-list allocator over
// a single contiguous region. One spinlock-equivalent mutex guards the free
// list: the allocator is reached both from driver/boot code and, via the
// syscall gateway, from trap context, so a single simple lock is used
// rather than per-block locking (spec.md §4.3 concurrency note).
type Heap struct {
	mu   sync.Mutex
	head *block
}

// Init carves a single free block spanning [start, start+size) and installs
// it as the heap's only block.
func (h *Heap) Init(start uintptr, size uint32) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := (*block)(unsafe.Pointer(start))
	b.size = size - headerSize
	b.next = nil
	b.prev = nil
	b.free = true
	h.head = b
}

func blockAddr(b *block) uintptr { return uintptr(unsafe.Pointer(b)) }

func payloadAddr(b *block) uintptr { return blockAddr(b) + uintptr(headerSize) }

// AllocRaw reserves `size` contiguous bytes and returns the payload address,
// or 0 if no free block is large enough. This is the un-aligned primitive;
// callers needing alignment use Allocator.Alloc instead.
func (h *Heap) AllocRaw(size uint32) uintptr {
	h.mu.Lock()
	defer h.mu.Unlock()

	var best *block
	for b := h.head; b != nil; b = b.next {
		if b.free && b.size >= size {
			best = b
			break
		}
	}
	if best == nil {
		return 0
	}

	// Split off the remainder if it can hold a header plus minPayload bytes.
	if best.size >= size+headerSize+minPayload {
		remainderAddr := blockAddr(best) + uintptr(headerSize) + uintptr(size)
		remainder := (*block)(unsafe.Pointer(remainderAddr))
		remainder.size = best.size - size - headerSize
		remainder.free = true
		remainder.next = best.next
		remainder.prev = best
		if best.next != nil {
			best.next.prev = remainder
		}
		best.next = remainder
		best.size = size
	}

	best.free = false
	return payloadAddr(best)
}

// FreeRaw releases a payload pointer previously returned by AllocRaw,
// coalescing with the following then the preceding block (spec.md §4.3:
// "next, then previous, in that order"). Freeing an already-free block is a
// silent no-op (spec.md §7 double-free handling).
func (h *Heap) FreeRaw(ptr uintptr) {
	h.mu.Lock()
	defer h.mu.Unlock()

	b := (*block)(unsafe.Pointer(ptr - uintptr(headerSize)))
	if b.free {
		return
	}
	b.free = true

	if b.next != nil && b.next.free {
		coalesce(b, b.next)
	}
	if b.prev != nil && b.prev.free {
		coalesce(b.prev, b)
	}
}

// coalesce merges `next` into `first`, which must immediately precede it in
// address order. Both must be free; the caller guarantees this.
func coalesce(first, next *block) {
	first.size += headerSize + next.size
	first.next = next.next
	if next.next != nil {
		next.next.prev = first
	}
}

// capacity returns the payload capacity of the block backing ptr, for use
// by realloc to compute how many bytes must be copied forward.
func (h *Heap) capacity(ptr uintptr) uint32 {
	b := (*block)(unsafe.Pointer(ptr - uintptr(headerSize)))
	return b.size
}
