package nvme

import "unsafe"

func unsafeSQSlice(addr uintptr, n int) []SQEntry {
	return unsafe.Slice((*SQEntry)(unsafe.Pointer(addr)), n)
}

func unsafeCQSlice(addr uintptr, n int) []CQEntry {
	return unsafe.Slice((*CQEntry)(unsafe.Pointer(addr)), n)
}

func byteAddrOf(p *byte) uintptr { return uintptr(unsafe.Pointer(p)) }

func unsafeByteSlice(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
