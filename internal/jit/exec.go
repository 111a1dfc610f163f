package jit

import (
	"unsafe"

	"github.com/iansmith/x86kernel/internal/asm"
)

// Allocator carves heap memory for a freshly assembled snippet, injected
// so Assemble/code-building logic is testable without a real heap.
type Allocator interface {
	Alloc(size uint32, align uintptr) uintptr
}

// Mapper marks a heap range executable (clears NX on its page-table
// entries) before Run calls into it, so a snippet also runs on pages that
// were mapped with NX set.
type Mapper interface {
	MakeExecutable(addr uintptr, size uintptr)
}

// JIT ties the pure encoder to the allocator/mapper pair needed to
// actually run a snippet, and is what internal/shell's "jit" built-in is
// constructed with.
type JIT struct {
	alloc  Allocator
	mapper Mapper
}

func New(alloc Allocator, mapper Mapper) *JIT {
	return &JIT{alloc: alloc, mapper: mapper}
}

// Assemble encodes src, delegating to the package-level pure encoder.
func (j *JIT) Assemble(src string) ([]byte, error) { return Assemble(src) }

// Run copies code into a freshly allocated heap buffer, marks it
// executable, and calls into it, returning whatever it left in RAX.
func (j *JIT) Run(code []byte) uint64 {
	if len(code) == 0 {
		return 0
	}
	addr := j.alloc.Alloc(uint32(len(code)), 16)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(addr)), len(code))
	copy(buf, code)
	j.mapper.MakeExecutable(addr, uintptr(len(code)))
	return asm.ExecuteCode(addr)
}
