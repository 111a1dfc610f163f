// PS/2 keyboard IRQ path (spec.md §4.5 IRQ 1): scancode read, release-event
// drop, Set-1 translation, ring-buffer push. This is the legacy fallback
// input path; xHCI/HID is the primary one (internal/xhci).
package trap

import "github.com/iansmith/x86kernel/internal/asm"

const ps2DataPort = 0x60

const keyRingSize = 256

// keyRing is the keyboard ring buffer: written by the PS/2 IRQ handler and
// by PushKey (the xHCI HID path), read by the read_key syscall.
type keyRing struct {
	buf        [keyRingSize]byte
	head, tail uint32 // tail write, head read
}

func (r *keyRing) push(b byte) {
	next := (r.tail + 1) % keyRingSize
	if next == r.head {
		return // full; drop (no backpressure path exists for IRQ context)
	}
	r.buf[r.tail] = b
	r.tail = next
}

// Pop returns the next queued byte and true, or 0 and false if empty.
func (r *keyRing) Pop() (byte, bool) {
	if r.head == r.tail {
		return 0, false
	}
	b := r.buf[r.head]
	r.head = (r.head + 1) % keyRingSize
	return b, true
}

// PS2KeyRing is the process-wide PS/2 ring buffer instance. It is also the
// sink for xHCI/HID keyboard input (internal/xhci): both input paths feed
// the single ring the read_key syscall drains, since only one keyboard is
// ever attached at a time.
var PS2KeyRing keyRing

// PushKey queues an already-translated ASCII byte, for callers (the xHCI
// HID path) that do their own scancode-to-ASCII translation upstream.
func PushKey(b byte) { PS2KeyRing.push(b) }

// set1ToASCII maps a Set-1 make-code to an ASCII byte, 0 if unmapped. Only
// the codes relevant to a line-editor shell are populated; spec.md §4.5
// does not require full coverage of every Set-1 code.
var set1ToASCII = map[byte]byte{
	0x1E: 'a', 0x30: 'b', 0x2E: 'c', 0x20: 'd', 0x12: 'e', 0x21: 'f',
	0x22: 'g', 0x23: 'h', 0x17: 'i', 0x24: 'j', 0x25: 'k', 0x26: 'l',
	0x32: 'm', 0x31: 'n', 0x18: 'o', 0x19: 'p', 0x10: 'q', 0x13: 'r',
	0x1F: 's', 0x14: 't', 0x16: 'u', 0x2F: 'v', 0x11: 'w', 0x2D: 'x',
	0x15: 'y', 0x2C: 'z',
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x39: ' ', 0x1C: 0x0A, 0x0E: 0x08, 0x0F: 0x09,
}

// translateSet1 drops release events (high bit set) and maps a Set-1
// make-code to an ASCII byte; ok is false for a release event or an
// unmapped code. Split out from PS2KeyboardIRQ so it is testable without a
// real PS/2 port.
func translateSet1(code byte) (ascii byte, ok bool) {
	if code&0x80 != 0 {
		return 0, false
	}
	ascii, ok = set1ToASCII[code]
	return
}

// PS2KeyboardIRQ is the IRQ-line-1 handler: reads the scancode from port
// 0x60, drops release events (high bit set), translates via the Set-1
// table, and pushes the result into the ring buffer (spec.md §4.5).
func PS2KeyboardIRQ() {
	code := asm.InB(ps2DataPort)
	if ascii, ok := translateSet1(code); ok {
		PS2KeyRing.push(ascii)
	}
}
