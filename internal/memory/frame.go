// Package memory implements the physical frame allocator (spec.md §4.1).
//
// Grounded on mazboot's page.go free-page bookkeeping: a simple cursor that
// only ever advances, never frees. Page tables and driver rings are
// permanent boot-time allocations, so an eager free would only complicate
// the monotone-cursor invariant for no benefit (spec.md §4.1 rationale).
package memory

import (
	"errors"

	"github.com/iansmith/x86kernel/internal/bootinfo"
)

// ErrNoMemory is returned when the frame allocator has exhausted every
// conventional-memory descriptor in the boot-info memory map.
var ErrNoMemory = errors.New("memory: out of physical frames")

// cursor locates the next frame to hand out: a descriptor index and a page
// offset within that descriptor. It only ever advances.
type cursor struct {
	descIndex  uintptr
	pageOffset uint64
}

// FrameAllocator is a bump allocator over the UEFI-reported conventional
// memory descriptors. It never frees; see the package doc comment.
type FrameAllocator struct {
	info *bootinfo.Info
	cur  cursor
}

// NewFrameAllocator builds an allocator starting at the first descriptor.
func NewFrameAllocator(info *bootinfo.Info) *FrameAllocator {
	return &FrameAllocator{info: info}
}

// Allocate returns the next free 4 KiB physical frame, or ErrNoMemory once
// every conventional descriptor has been exhausted. Frames are returned in
// strictly monotone increasing physical-address order, walking the memory
// map in its original (not sorted) order and skipping non-conventional
// descriptors, per spec.md §4.1 and the testable property in spec.md §8.
func (a *FrameAllocator) Allocate() (uint64, error) {
	n := bootinfo.Count(a.info)
	for a.cur.descIndex < n {
		d := bootinfo.DescriptorAt(a.info, a.cur.descIndex)
		if !d.Type.Allocatable() {
			a.cur.descIndex++
			a.cur.pageOffset = 0
			continue
		}
		if a.cur.pageOffset >= d.PageCount {
			a.cur.descIndex++
			a.cur.pageOffset = 0
			continue
		}
		phys := d.PhysicalStart + a.cur.pageOffset*bootinfo.PageSize
		a.cur.pageOffset++
		return phys, nil
	}
	return 0, ErrNoMemory
}
