package xhci

// EnumeratePort drives one newly connected port through spec.md §4.9's
// full sequence: Enable Slot, Address Device, Get Descriptor (device),
// Get Descriptor (configuration, two phases), and — if an Interrupt-In
// endpoint is present — Set Configuration, Set Idle, Set Protocol(boot),
// Configure Endpoint, and the first HID report request. Returns nil if
// Enable Slot, Address Device or the device-descriptor read fails. After
// that it returns the slot: HasInterruptIn stays false when the
// configuration-descriptor read or Set Configuration fails or no
// Interrupt-In endpoint exists, and the results of Set Idle, Set Protocol
// and Configure Endpoint are not checked.
func (c *Controller) EnumeratePort(portID uint8, speed uint8) *DeviceSlot {
	slotID, ok := c.EnableSlot()
	if !ok || slotID == 0 || int(slotID) >= len(c.Slots) {
		return nil
	}

	deviceContext := c.alloc.Alloc(deviceContextSize, 64)
	c.DCBAA[slotID] = uint64(deviceContext)

	ep0RingMem := unsafeTRBSlice(c.alloc.Alloc(epRingSlots*16, 64), epRingSlots)
	slot := &DeviceSlot{
		SlotID:        slotID,
		PortID:        portID,
		Speed:         speed,
		DeviceContext: deviceContext,
		EP0Ring:       NewRing(ep0RingMem),
	}
	c.Slots[slotID] = slot

	inputContext := c.alloc.Alloc(inputContextSize, 64)
	if !c.AddressDevice(slotID, inputContext) {
		return nil
	}

	var devDesc [18]byte
	vendor, product, ok := c.getDeviceDescriptor(slot, devDesc[:])
	if !ok {
		return nil
	}
	slot.VendorID, slot.ProductID = vendor, product

	var header [9]byte
	var full [256]byte
	hasInterruptIn, ok := c.getConfigDescriptor(slot, header[:], full[:])
	if !ok || !hasInterruptIn {
		return slot
	}

	if !c.setConfiguration(slot, 1) {
		return slot
	}
	c.setIdle(slot)
	c.setProtocolBoot(slot)

	inRingMem := unsafeTRBSlice(c.alloc.Alloc(epRingSlots*16, 64), epRingSlots)
	slot.InterruptInRing = NewRing(inRingMem)
	slot.HasInterruptIn = true

	epInputContext := c.alloc.Alloc(inputContextSize, 64)
	c.ConfigureEndpoint(slotID, epInputContext)

	requeueInterruptIn(slot)

	return slot
}

// PollPorts walks ports 1..MaxPorts, enumerating any newly connected
// device on a port whose reset just completed (spec.md §4.9 "Port
// enumeration").
func (c *Controller) PollPorts() {
	for i := uint8(1); i <= c.MaxPorts; i++ {
		speed, connected := c.PortStatus(i)
		if !connected {
			continue
		}
		c.EnumeratePort(i, speed)
	}
}
