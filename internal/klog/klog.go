// Package klog is the kernel's allocation-free logging primitive. Grounded
// on mazboot's uartPutsDirect/uartPutHex64Direct split (kernel.go,
// exceptions.go): before the heap and scheduler exist, the only safe way to
// report anything is a direct byte-at-a-time write with no formatting
// package behind it. fmt is never used in boot-critical code for exactly
// that reason; it is fine in host-side tooling and tests.
package klog

// Sink is whatever the kernel currently writes log bytes to — the
// framebuffer console once it exists, or nothing before it does. A package
// var (not a constructor-injected field) because every subsystem from
// paging init onward needs to log and none of them import each other to
// get at a shared console.
var Sink func(s string)

// SetSink installs the active log sink. Called once cmd/kernel brings the
// framebuffer console up; before that, Puts/PutHex64 are no-ops.
func SetSink(fn func(s string)) { Sink = fn }

// Puts writes s directly, with no formatting or allocation.
func Puts(s string) {
	if Sink != nil {
		Sink(s)
	}
}

const hexDigits = "0123456789ABCDEF"

// PutHex64 writes val as 16 uppercase hex digits, matching mazboot's
// uartPutHex64Direct digit-by-digit loop.
func PutHex64(val uint64) {
	var buf [16]byte
	for i := 0; i < 16; i++ {
		nibble := (val >> uint(60-i*4)) & 0xF
		buf[i] = hexDigits[nibble]
	}
	Puts(string(buf[:]))
}

// Line writes s followed by a CRLF, mazboot's own line terminator choice
// since the target console is a terminal emulator, not a Unix pipe.
func Line(s string) { Puts(s); Puts("\r\n") }
