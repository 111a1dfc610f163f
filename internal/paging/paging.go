// Package paging builds the 4-level x86_64 page tables (spec.md §4.2).
//
// Grounded on mazboot's mmu.go: PTE bit constants named after the hardware
// fields, a level-by-level table walk that allocates-and-zeroes a table the
// first time an entry is absent, and a page-aligned frame allocator feeding
// it. mazboot walks AArch64's PGD/PUD/PMD/PT levels; this package keeps
// that walk shape over x86_64's PML4/PDPT/PD/PT, and keeps mazboot's
// "never overwrite a present table entry, only add leaves" invariant.
package paging

import (
	"errors"

	"github.com/iansmith/x86kernel/internal/bootinfo"
)

// PTE flag bits (spec.md §3).
const (
	FlagP   uint64 = 1 << 0
	FlagW   uint64 = 1 << 1
	FlagU   uint64 = 1 << 2
	FlagPCD uint64 = 1 << 4
	FlagNX  uint64 = 1 << 63
)

const (
	entriesPerTable = 512
	pageSize        = 4096
	physAddrMask    = 0x000F_FFFF_FFFF_F000 // bits 12..51
)

// ErrOOM is returned when the frame allocator cannot supply a frame for a
// new page-table level; callers are expected to treat this as fatal
// (spec.md §7: "Fatal panic during boot").
var ErrOOM = errors.New("paging: out of memory while building page tables")

// errUnmapped is returned by MakeExecutable when asked to rewrite a leaf
// that was never mapped; callers only call it on heap memory they just got
// back from an allocator, so this should never trigger in practice.
var errUnmapped = errors.New("paging: MakeExecutable on unmapped page")

// FrameAllocator is the minimal allocator interface paging needs, satisfied
// by *memory.FrameAllocator without importing it directly (keeps this
// package testable against a fake).
type FrameAllocator interface {
	Allocate() (uint64, error)
}

// ZeroMemFn zeroes size bytes starting at a physical address, which on real
// hardware must go through whatever identity mapping is already valid (the
// first frames allocated for PML4 et al. are zeroed through their own
// just-established identity map). Injected so tests can use a plain slice.
type ZeroMemFn func(phys uint64, size uintptr)

// Mapper owns the PML4 root and the machinery to populate it.
type Mapper struct {
	PML4  uint64 // physical address of the root table
	alloc FrameAllocator
	zero  ZeroMemFn
	read  func(phys uint64) uint64
	write func(phys uint64, val uint64)
}

// NewMapper allocates and zeroes a fresh PML4 and returns a Mapper ready to
// receive mappings. read/write/zero abstract over physical-memory access so
// tests can back this with a plain Go map instead of real MMIO.
func NewMapper(alloc FrameAllocator, zero ZeroMemFn, read func(uint64) uint64, write func(uint64, uint64)) (*Mapper, error) {
	root, err := alloc.Allocate()
	if err != nil {
		return nil, ErrOOM
	}
	zero(root, pageSize)
	return &Mapper{PML4: root, alloc: alloc, zero: zero, read: read, write: write}, nil
}

// MapperFor rebinds an already-built PML4 (e.g. one InitPaging already
// returned) to fresh read/write hooks, for callers that need further
// mutations — such as MakeExecutable — after boot-time construction only
// handed back the bare PML4 physical address.
func MapperFor(pml4 uint64, read func(uint64) uint64, write func(uint64, uint64)) *Mapper {
	return &Mapper{PML4: pml4, read: read, write: write}
}

// indices splits a virtual address into its four 9-bit table indices,
// per spec.md §4.2: bits 39/30/21/12, each masked to 9 bits.
func indices(virt uint64) (pml4, pdpt, pd, pt uint64) {
	return (virt >> 39) & 0x1FF, (virt >> 30) & 0x1FF, (virt >> 21) & 0x1FF, (virt >> 12) & 0x1FF
}

// entryAddr returns the physical address of slot `index` within the table
// rooted at `tableBase`.
func entryAddr(tableBase uint64, index uint64) uint64 {
	return tableBase + index*8
}

// stepDown reads the table-pointer entry at tableBase[index]; if absent, it
// allocates and zeroes a new table, writes a P|W|U parent entry pointing at
// it, and returns the new table's physical base. Never overwrites an
// already-present entry (spec.md §8 paging invariant).
func (m *Mapper) stepDown(tableBase, index uint64) (uint64, error) {
	addr := entryAddr(tableBase, index)
	entry := m.read(addr)
	if entry&FlagP != 0 {
		return entry & physAddrMask, nil
	}
	next, err := m.alloc.Allocate()
	if err != nil {
		return 0, ErrOOM
	}
	m.zero(next, pageSize)
	m.write(addr, next|FlagP|FlagW|FlagU)
	return next, nil
}

// MapPage walks the four levels for virt, allocating intermediate tables on
// demand, and writes a leaf PTE phys|flags|P at the bottom (spec.md §4.2).
func (m *Mapper) MapPage(virt, phys uint64, flags uint64) error {
	p4, p3, p2, p1 := indices(virt)

	pdpt, err := m.stepDown(m.PML4, p4)
	if err != nil {
		return err
	}
	pd, err := m.stepDown(pdpt, p3)
	if err != nil {
		return err
	}
	pt, err := m.stepDown(pd, p2)
	if err != nil {
		return err
	}
	leaf := entryAddr(pt, p1)
	m.write(leaf, (phys&physAddrMask)|flags|FlagP)
	return nil
}

// MakeExecutable clears FlagNX on every already-mapped leaf covering
// [virt, virt+size), for code a caller assembles into heap memory after the
// fact (internal/jit's Run). Unlike MapPage this only rewrites existing
// leaves and never allocates; it is an error to call it on an unmapped page.
func (m *Mapper) MakeExecutable(virt uint64, size uintptr) error {
	end := virt + uint64(size)
	for page := virt &^ (pageSize - 1); page < end; page += pageSize {
		p4, p3, p2, p1 := indices(page)
		e4 := m.read(entryAddr(m.PML4, p4))
		if e4&FlagP == 0 {
			return errUnmapped
		}
		pdpt := e4 & physAddrMask
		e3 := m.read(entryAddr(pdpt, p3))
		if e3&FlagP == 0 {
			return errUnmapped
		}
		pd := e3 & physAddrMask
		e2 := m.read(entryAddr(pd, p2))
		if e2&FlagP == 0 {
			return errUnmapped
		}
		pt := e2 & physAddrMask
		leaf := entryAddr(pt, p1)
		entry := m.read(leaf)
		if entry&FlagP == 0 {
			return errUnmapped
		}
		m.write(leaf, entry&^FlagNX)
	}
	return nil
}

// LeafEntry returns the raw leaf PTE for virt, for test assertions.
func (m *Mapper) LeafEntry(virt uint64) uint64 {
	p4, p3, p2, p1 := indices(virt)
	pdpt := m.read(entryAddr(m.PML4, p4)) & physAddrMask
	pd := m.read(entryAddr(pdpt, p3)) & physAddrMask
	pt := m.read(entryAddr(pd, p2)) & physAddrMask
	return m.read(entryAddr(pt, p1))
}

// IdentityMapRange maps every 4 KiB page in [base, base+size) to itself
// with the given flags.
func (m *Mapper) IdentityMapRange(base, size uint64, flags uint64) error {
	for off := uint64(0); off < size; off += pageSize {
		if err := m.MapPage(base+off, base+off, flags); err != nil {
			return err
		}
	}
	return nil
}

// InitPaging builds the full identity map described by spec.md §4.2: every
// descriptor whose type is in the identity-map set, plus the framebuffer,
// each mapped W|U|P. Returns the PML4 physical address to load into CR3.
func InitPaging(info *bootinfo.Info, alloc FrameAllocator, zero ZeroMemFn, read func(uint64) uint64, write func(uint64, uint64)) (uint64, error) {
	m, err := NewMapper(alloc, zero, read, write)
	if err != nil {
		return 0, err
	}

	var mapErr error
	bootinfo.Walk(info, func(_ uintptr, d *bootinfo.Descriptor) {
		if mapErr != nil || !d.Type.IdentityMap() {
			return
		}
		size := d.PageCount * bootinfo.PageSize
		if err := m.IdentityMapRange(d.PhysicalStart, size, FlagW|FlagU); err != nil {
			mapErr = err
		}
	})
	if mapErr != nil {
		return 0, mapErr
	}

	if info.FramebufferSize > 0 {
		if err := m.IdentityMapRange(info.FramebufferBase, uint64(info.FramebufferSize), FlagW|FlagU); err != nil {
			return 0, err
		}
	}

	return m.PML4, nil
}
