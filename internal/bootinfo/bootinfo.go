// Package bootinfo describes the hand-off record the UEFI bootloader passes
// to the kernel and the UEFI memory map it points at. The bootloader itself
// is an external collaborator (not designed here); this package only models
// the wire layout it produces, immutable once the kernel reads it.
package bootinfo

import "unsafe"

// Info is the boot-info record produced once by the bootloader. Field order
// matches the wire layout in spec.md §6 exactly; do not reorder.
type Info struct {
	FramebufferBase   uint64
	FramebufferSize   uintptr
	HRes              uint32
	VRes              uint32
	PixelsPerScanline uint32
	PixelFormat       uint32
	MemoryMap         unsafe.Pointer // *u8, start of the descriptor array
	MemoryMapSize     uintptr
	DescriptorSize    uintptr
	DescriptorVersion uint32
}

// DescriptorType is a UEFI memory-descriptor type tag (spec.md §3/§6).
type DescriptorType uint32

const (
	TypeReservedMemory      DescriptorType = 0
	TypeLoaderCode          DescriptorType = 1
	TypeLoaderData          DescriptorType = 2
	TypeBootServicesCode    DescriptorType = 3
	TypeBootServicesData    DescriptorType = 4
	TypeRuntimeServicesCode DescriptorType = 5
	TypeRuntimeServicesData DescriptorType = 6
	TypeConventionalMemory  DescriptorType = 7
	TypeUnusableMemory      DescriptorType = 8
	TypeACPIReclaimMemory   DescriptorType = 9
	TypeACPIMemoryNVS       DescriptorType = 10
	TypeMemoryMappedIO      DescriptorType = 11
	TypeMemoryMappedIOPortSpace DescriptorType = 12
	TypePalCode             DescriptorType = 13
	TypePersistentMemory    DescriptorType = 14
)

// Allocatable reports whether the frame allocator may hand out pages from a
// descriptor of this type. Only conventional memory is allocatable.
func (t DescriptorType) Allocatable() bool {
	return t == TypeConventionalMemory
}

// IdentityMap reports whether paging must identity-map a descriptor of this
// type during init_paging (spec.md §4.2).
func (t DescriptorType) IdentityMap() bool {
	switch t {
	case TypeLoaderCode, TypeLoaderData,
		TypeBootServicesCode, TypeBootServicesData,
		TypeRuntimeServicesCode, TypeRuntimeServicesData,
		TypeConventionalMemory,
		TypeACPIReclaimMemory, TypeACPIMemoryNVS,
		TypeMemoryMappedIO, TypeMemoryMappedIOPortSpace:
		return true
	default:
		return false
	}
}

// Descriptor is one entry of the UEFI memory map. The real wire stride
// (Info.DescriptorSize) may exceed sizeof(Descriptor); callers must never
// assume the descriptors are packed back-to-back and must step by
// DescriptorSize, not unsafe.Sizeof(Descriptor{}).
type Descriptor struct {
	Type          DescriptorType
	PhysicalStart uint64
	VirtualStart  uint64
	PageCount     uint64
	Attribute     uint64
}

const PageSize = 4096

// DescriptorAt returns a pointer to the i-th descriptor in the map, honoring
// the reported (possibly padded) stride. Callers must step by
// DescriptorSize rather than assume descriptors are packed back-to-back.
func DescriptorAt(info *Info, i uintptr) *Descriptor {
	base := uintptr(info.MemoryMap) + i*info.DescriptorSize
	return (*Descriptor)(unsafe.Pointer(base))
}

// Count returns the number of descriptors in the memory map.
func Count(info *Info) uintptr {
	if info.DescriptorSize == 0 {
		return 0
	}
	return info.MemoryMapSize / info.DescriptorSize
}

// Walk calls fn once per descriptor in map order (the order the bootloader
// reported them in; the frame allocator and paging init both depend on this
// being stable iteration order, not sorted order).
func Walk(info *Info, fn func(index uintptr, d *Descriptor)) {
	n := Count(info)
	for i := uintptr(0); i < n; i++ {
		fn(i, DescriptorAt(info, i))
	}
}
