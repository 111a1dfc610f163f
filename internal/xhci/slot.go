package xhci

import "github.com/iansmith/x86kernel/internal/trap"

// Device Context / Input Context sizes for a 32-byte-context controller
// (CSZ=0); spec.md does not prescribe an exact layout, only that an Input
// Context is constructed for Address Device and a Device Context exists
// per slot, so these are sized generously and left largely opaque to the
// driver beyond the fields it actually touches.
const (
	deviceContextSize = 32 * 32
	inputContextSize  = 32 * 33
	epRingSlots       = 16
)

// DeviceSlot mirrors spec.md §3's "xHCI device slot state". Slot IDs are
// 1-based; index 0 of Controller.Slots is unused.
type DeviceSlot struct {
	SlotID        uint8
	PortID        uint8
	Speed         uint8
	DeviceContext uintptr
	VendorID      uint16
	ProductID     uint16

	EP0Ring *Ring

	InterruptInRing    *Ring
	HasInterruptIn     bool
	KeyboardReport     [8]byte
	PrevKeyboardReport [8]byte
}

// SetupPacket is the 8-byte USB control setup packet (spec.md §4.9
// "Control transfer (EP0)").
type SetupPacket struct {
	RequestType uint8
	Request     uint8
	Value       uint16
	Index       uint16
	Length      uint16
}

func (s SetupPacket) pack() uint64 {
	return uint64(s.RequestType) | uint64(s.Request)<<8 |
		uint64(s.Value)<<16 | uint64(s.Index)<<32 | uint64(s.Length)<<48
}

const (
	trtNone = 0
	trtOut  = 2
	trtIn   = 3
)

// buildControlTransfer composes the three-stage TRB sequence of spec.md
// §4.9 onto dst (the slot's EP0 ring), given a setup packet and an
// optional data-stage buffer address/length/direction. Split out from
// Controller.ControlTransfer so the composition itself — independent of
// doorbells and completion waits — is unit testable.
func buildControlTransfer(dst *Ring, setup SetupPacket, dataAddr uint64, dataLen uint32, dataIn bool) {
	var s TRB
	s.Param = setup.pack()
	s.Status = dataLen & 0x1FFFF
	s.SetType(TRBTypeSetupStage)
	s.Control |= ctrlIDT
	trt := trtNone
	if dataLen > 0 {
		if dataIn {
			trt = trtIn
		} else {
			trt = trtOut
		}
	}
	setBits(&s.Control, ctrlTRTLo, ctrlTRTHi, uint32(trt))
	dst.Produce(s)

	if dataLen > 0 {
		var d TRB
		d.Param = dataAddr
		d.Status = dataLen
		d.SetType(TRBTypeDataStage)
		if dataIn {
			d.Control |= ctrlDIRBit
		}
		dst.Produce(d)
	}

	var st TRB
	st.SetType(TRBTypeStatusStage)
	st.Control |= ctrlIOC
	// Status stage direction is opposite the data stage (spec.md §4.9);
	// with no data stage it defaults to IN.
	if dataLen == 0 || !dataIn {
		st.Control |= ctrlDIRBit
	}
	dst.Produce(st)
}

// ControlTransfer performs a three-stage EP0 transfer and waits (with a
// bounded spin) for a completion code (spec.md §4.9).
func (c *Controller) ControlTransfer(slot *DeviceSlot, setup SetupPacket, dataAddr uint64, dataLen uint32, dataIn bool) (completionCode uint8, timedOut bool) {
	buildControlTransfer(slot.EP0Ring, setup, dataAddr, dataLen, dataIn)
	c.LastCompletionCode = 0
	c.ringDoorbell(slot.SlotID, 1)
	const spinLimit = 10_000_000
	for i := 0; i < spinLimit; i++ {
		c.ProcessEvents()
		if c.LastCompletionCode != 0 {
			return c.LastCompletionCode, false
		}
	}
	return 0, true
}

// keyCodesPresent extracts the up-to-6 nonzero HID usage keycodes from a
// boot-protocol report (bytes 2..7).
func keyCodesPresent(report [8]byte) []byte {
	var out []byte
	for _, k := range report[2:] {
		if k != 0 {
			out = append(out, k)
		}
	}
	return out
}

func contains(keys []byte, k byte) bool {
	for _, x := range keys {
		if x == k {
			return true
		}
	}
	return false
}

// freshPresses returns keycodes present in cur but not in prev (spec.md
// §4.9 "Keyboard input path" press-edge detection).
func freshPresses(prev, cur [8]byte) []byte {
	prevKeys := keyCodesPresent(prev)
	curKeys := keyCodesPresent(cur)
	var fresh []byte
	for _, k := range curKeys {
		if !contains(prevKeys, k) {
			fresh = append(fresh, k)
		}
	}
	return fresh
}

// hidUsageToASCII is the static HID-usage to ASCII table (spec.md §4.9),
// with the four arrow keys mapped to 0x80..0x83.
var hidUsageToASCII = map[byte]byte{
	0x04: 'a', 0x05: 'b', 0x06: 'c', 0x07: 'd', 0x08: 'e', 0x09: 'f',
	0x0A: 'g', 0x0B: 'h', 0x0C: 'i', 0x0D: 'j', 0x0E: 'k', 0x0F: 'l',
	0x10: 'm', 0x11: 'n', 0x12: 'o', 0x13: 'p', 0x14: 'q', 0x15: 'r',
	0x16: 's', 0x17: 't', 0x18: 'u', 0x19: 'v', 0x1A: 'w', 0x1B: 'x',
	0x1C: 'y', 0x1D: 'z',
	0x1E: '1', 0x1F: '2', 0x20: '3', 0x21: '4', 0x22: '5',
	0x23: '6', 0x24: '7', 0x25: '8', 0x26: '9', 0x27: '0',
	0x28: 0x0A, // Enter
	0x2A: 0x08, // Backspace
	0x2B: 0x09, // Tab
	0x2C: ' ',  // Space
	0x4F: 0x80, // Right arrow
	0x50: 0x81, // Left arrow
	0x51: 0x82, // Down arrow
	0x52: 0x83, // Up arrow
}

// handleTransferEvent routes a Transfer Event to the owning slot when its
// param lies within that slot's interrupt-in ring, diffs the freshly
// completed HID report against the previous one, translates fresh
// presses, pushes them to the keyboard ring buffer, and re-queues a
// request TRB for the next report (spec.md §4.9).
func (c *Controller) handleTransferEvent(trb TRB) {
	cc := trb.CompletionCode()
	if cc != CompletionSuccess && cc != CompletionShortPacket {
		return
	}
	slot := c.Slots[trb.SlotID()]
	if slot == nil || !slot.HasInterruptIn {
		return
	}
	if !ringOwnsAddress(slot.InterruptInRing, trb.Param) {
		return
	}

	for _, key := range freshPresses(slot.PrevKeyboardReport, slot.KeyboardReport) {
		if ascii, ok := hidUsageToASCII[key]; ok {
			trap.PushKey(ascii)
		}
	}
	slot.PrevKeyboardReport = slot.KeyboardReport

	requeueInterruptIn(slot)
}

// ringOwnsAddress reports whether addr falls within ring's backing
// memory, used to recognize which ring a Transfer Event's TRB pointer
// (its param field) belongs to.
func ringOwnsAddress(r *Ring, addr uint64) bool {
	if r == nil || len(r.Base) == 0 {
		return false
	}
	lo := uint64(addrOf(&r.Base[0]))
	hi := lo + uint64(len(r.Base))*16
	return addr >= lo && addr < hi
}

// requeueInterruptIn enqueues a fresh Normal TRB on the slot's
// interrupt-in ring so the next HID report is captured (spec.md §4.9).
func requeueInterruptIn(slot *DeviceSlot) {
	var trb TRB
	trb.Param = uint64(byteAddrOf(&slot.KeyboardReport[0]))
	trb.Status = uint32(len(slot.KeyboardReport))
	trb.SetType(TRBTypeNormal)
	trb.Control |= ctrlIOC
	slot.InterruptInRing.Produce(trb)
}
