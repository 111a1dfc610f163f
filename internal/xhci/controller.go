package xhci

// Operational/runtime/doorbell register offsets, relative to the bases
// computed in Init (spec.md §4.9 "Bring-up sequence").
const (
	regUSBCMD     = 0x00
	regUSBSTS     = 0x04
	regCONFIG     = 0x38
	regPORTSCBase = 0x400
	portSCStride  = 0x10

	capHCSPARAMS1 = 0x04

	rtERSTSZOff = 0x28
	rtERSTBAOff = 0x30
	rtERDPOff   = 0x38

	usbcmdRS    = 1 << 0
	usbcmdHCRST = 1 << 1
	usbstsHCH   = 1 << 0
	usbstsCNR   = 1 << 11

	portscCCS = 1 << 0
	portscPED = 1 << 1
	portscPR  = 1 << 4
	portscPRC = 1 << 21
)

// Allocator carves physically-contiguous ring/context memory from the
// kernel heap, injected for the same testability reason as sched.Allocator.
type Allocator interface {
	Alloc(size uint32, align uintptr) uintptr
}

// Controller owns one xHCI host controller's ring state (spec.md §4.9).
// Its command/event-ring fields are single-writer: only the main kernel
// task drives enumeration and polling (spec.md §9).
type Controller struct {
	cap, op, rt, db uintptr
	mmio            MMIO
	alloc           Allocator

	CommandRing *Ring
	EventRing   *EventRing
	DCBAA       []uint64

	MaxSlots uint8
	MaxPorts uint8

	Slots [64]*DeviceSlot

	// Single-flight command completion state (spec.md §4.9).
	LastCompletionCode uint8
	LastSlotID         uint8
}

// New builds a controller bound to the given register window; bases are
// computed from CAPLENGTH/RTSOFF/DBOFF once Init reads them.
func New(mmio MMIO) *Controller { return &Controller{mmio: mmio} }

// ringDoorbell writes the target value to doorbell register n.
func (c *Controller) ringDoorbell(n uint8, target uint32) {
	c.mmio.Write32(c.db+uintptr(n)*4, target)
}

// Init performs the bring-up sequence of spec.md §4.9 steps 1-7: reset,
// read capability limits, install the Command Ring and one Event Ring,
// zero the DCBAA, and start the controller.
func (c *Controller) Init(alloc Allocator) {
	c.alloc = alloc
	capLength := uint8(c.mmio.Read32(0) & 0xFF)
	rtsoff := c.mmio.Read32(0x18) &^ 0x1F
	dboff := c.mmio.Read32(0x14) &^ 0x3

	c.cap = 0
	c.op = uintptr(capLength)
	c.rt = uintptr(rtsoff)
	c.db = uintptr(dboff)

	cmd := c.mmio.Read32(c.op + regUSBCMD)
	c.mmio.Write32(c.op+regUSBCMD, cmd|usbcmdHCRST)
	for c.mmio.Read32(c.op+regUSBCMD)&usbcmdHCRST != 0 {
	}
	for c.mmio.Read32(c.op+regUSBSTS)&usbstsCNR != 0 {
	}

	hcsparams1 := c.mmio.Read32(capHCSPARAMS1)
	c.MaxSlots = uint8(hcsparams1 & 0xFF)
	c.MaxPorts = uint8(hcsparams1 >> 24)
	c.mmio.Write32(c.op+regCONFIG, uint32(c.MaxSlots))

	const cmdRingSlots = 16 // plenty for a single-flight command ring
	cmdRingBase := alloc.Alloc(cmdRingSlots*16, 64)
	c.CommandRing = NewRing(unsafeTRBSlice(cmdRingBase, cmdRingSlots))
	c.mmio.Write64(c.op+0x18, uint64(cmdRingBase)|1)

	dcbaaAddr := alloc.Alloc(uint32(len(c.Slots)+1)*8, 64)
	c.DCBAA = unsafeU64Slice(dcbaaAddr, len(c.Slots)+1)
	for i := range c.DCBAA {
		c.DCBAA[i] = 0
	}
	c.mmio.Write64(c.op+0x30, uint64(dcbaaAddr))

	const eventSlots = 4096 / 16
	evRingBase := alloc.Alloc(eventSlots*16, 64)
	c.EventRing = NewEventRing(unsafeTRBSlice(evRingBase, eventSlots))

	erstAddr := alloc.Alloc(16, 64)
	erst := unsafeU64Slice(erstAddr, 2)
	erst[0] = uint64(evRingBase)
	erst[1] = uint64(eventSlots)

	c.mmio.Write32(c.rt+rtERSTSZOff, 1)
	c.mmio.Write64(c.rt+rtERSTBAOff, uint64(erstAddr))
	c.mmio.Write64(c.rt+rtERDPOff, uint64(evRingBase))

	cmd = c.mmio.Read32(c.op + regUSBCMD)
	c.mmio.Write32(c.op+regUSBCMD, cmd|usbcmdRS)
}

// ProcessEvents drains the Event Ring once, updating LastCompletionCode/
// LastSlotID for Command Completion events and routing Transfer Events to
// the owning slot's interrupt-in handling (spec.md §4.9).
func (c *Controller) ProcessEvents() {
	for {
		trb, ok := c.EventRing.Pop()
		if !ok {
			return
		}
		switch trb.Type() {
		case TRBTypeCommandComp:
			c.LastCompletionCode = trb.CompletionCode()
			c.LastSlotID = trb.SlotID()
		case TRBTypeTransferEvent:
			c.handleTransferEvent(trb)
		}
		erdp := c.mmio.Read64(c.rt + rtERDPOff)
		c.mmio.Write64(c.rt+rtERDPOff, erdp&^0xF|uint64(c.EventRing.Dequeue)*16)
	}
}

// submitCommand enqueues a command TRB, rings doorbell 0, and spins via
// ProcessEvents until a completion code is posted (spec.md §4.9: "This is
// single-flight by construction").
func (c *Controller) submitCommand(trb TRB) (completionCode, slotID uint8) {
	c.LastCompletionCode = 0
	c.LastSlotID = 0
	c.CommandRing.Produce(trb)
	c.ringDoorbell(0, 0)
	for c.LastCompletionCode == 0 {
		c.ProcessEvents()
	}
	return c.LastCompletionCode, c.LastSlotID
}

// EnableSlot issues an Enable Slot command (TRB type 9).
func (c *Controller) EnableSlot() (slotID uint8, ok bool) {
	var trb TRB
	trb.SetType(TRBTypeEnableSlot)
	cc, sid := c.submitCommand(trb)
	return sid, cc == CompletionSuccess
}

// PortStatus reads PORTSC for port i (1-based) and, if a device is newly
// connected (CCS set, PED clear), resets the port and returns its final
// speed bits [13:10] (spec.md §4.9 "Port enumeration").
func (c *Controller) PortStatus(i uint8) (speed uint8, connected bool) {
	off := c.op + regPORTSCBase + uintptr(i-1)*portSCStride
	v := c.mmio.Read32(off)
	if v&portscCCS == 0 || v&portscPED != 0 {
		return 0, false
	}
	c.mmio.Write32(off, v|portscPR)
	for c.mmio.Read32(off)&portscPRC == 0 {
	}
	c.mmio.Write32(off, c.mmio.Read32(off)|portscPRC)
	final := c.mmio.Read32(off)
	return uint8((final >> 10) & 0xF), true
}

// Shutdown clears USBCMD.RS and spins on USBSTS.HCH up to a bounded
// number of polls (spec.md §4.9 "Shutdown").
func (c *Controller) Shutdown() {
	cmd := c.mmio.Read32(c.op + regUSBCMD)
	c.mmio.Write32(c.op+regUSBCMD, cmd&^usbcmdRS)
	for i := 0; i < 1_000_000; i++ {
		if c.mmio.Read32(c.op+regUSBSTS)&usbstsHCH != 0 {
			return
		}
	}
}
