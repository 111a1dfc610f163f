package xhci

// Standard USB request codes used during enumeration (spec.md §4.9).
const (
	reqGetDescriptor = 0x06
	reqSetConfig     = 0x09
	reqSetIdle       = 0x0A // class request, HID
	reqSetProtocol   = 0x0B // class request, HID

	descDevice        = 1
	descConfiguration = 2

	bmRequestTypeDeviceToHost = 0x80
	bmRequestTypeHostToDevice = 0x00
	bmRequestTypeClassIface   = 0x21

	bootProtocol = 0
)

// AddressDevice issues an Address Device command (TRB type 11) for a
// slot freshly returned by EnableSlot, pointing at the caller-constructed
// Input Context (spec.md §4.9).
func (c *Controller) AddressDevice(slotID uint8, inputContextAddr uintptr) bool {
	var trb TRB
	trb.Param = uint64(inputContextAddr)
	trb.SetType(TRBTypeAddressDevice)
	trb.SetSlotID(slotID)
	cc, _ := c.submitCommand(trb)
	return cc == CompletionSuccess
}

// ConfigureEndpoint issues a Configure Endpoint command (TRB type 12).
func (c *Controller) ConfigureEndpoint(slotID uint8, inputContextAddr uintptr) bool {
	var trb TRB
	trb.Param = uint64(inputContextAddr)
	trb.SetType(TRBTypeConfigureEP)
	trb.SetSlotID(slotID)
	cc, _ := c.submitCommand(trb)
	return cc == CompletionSuccess
}

// getDeviceDescriptor fetches the 18-byte device descriptor and extracts
// vendor/product IDs (offsets 8 and 10, spec.md §4.9).
func (c *Controller) getDeviceDescriptor(slot *DeviceSlot, buf []byte) (vendor, product uint16, ok bool) {
	setup := SetupPacket{
		RequestType: bmRequestTypeDeviceToHost,
		Request:     reqGetDescriptor,
		Value:       uint16(descDevice) << 8,
		Length:      uint16(len(buf)),
	}
	cc, timedOut := c.ControlTransfer(slot, setup, uint64(byteAddrOf(&buf[0])), uint32(len(buf)), true)
	if timedOut || (cc != CompletionSuccess && cc != CompletionShortPacket) {
		return 0, 0, false
	}
	vendor = uint16(buf[8]) | uint16(buf[9])<<8
	product = uint16(buf[10]) | uint16(buf[11])<<8
	return vendor, product, true
}

// getConfigDescriptor fetches the configuration descriptor in two phases
// (spec.md §4.9): first a 9-byte header to learn wTotalLength, then the
// full descriptor set, from which it reports whether any endpoint
// descriptor advertises an Interrupt-In endpoint (address bit 7 set,
// attributes & 0x3 == 3).
func (c *Controller) getConfigDescriptor(slot *DeviceSlot, header, full []byte) (hasInterruptIn bool, ok bool) {
	setup := SetupPacket{
		RequestType: bmRequestTypeDeviceToHost,
		Request:     reqGetDescriptor,
		Value:       uint16(descConfiguration) << 8,
		Length:      9,
	}
	cc, timedOut := c.ControlTransfer(slot, setup, uint64(byteAddrOf(&header[0])), 9, true)
	if timedOut || (cc != CompletionSuccess && cc != CompletionShortPacket) {
		return false, false
	}
	totalLen := uint16(header[2]) | uint16(header[3])<<8

	setup.Length = totalLen
	n := int(totalLen)
	if n > len(full) {
		n = len(full)
	}
	cc, timedOut = c.ControlTransfer(slot, setup, uint64(byteAddrOf(&full[0])), uint32(n), true)
	if timedOut || (cc != CompletionSuccess && cc != CompletionShortPacket) {
		return false, false
	}
	return hasInterruptInEndpoint(full[:n]), true
}

// hasInterruptInEndpoint walks a configuration descriptor's concatenated
// sub-descriptors looking for an endpoint descriptor (type 5) that is
// both IN (address bit 7 set) and Interrupt (attributes & 0x3 == 3).
func hasInterruptInEndpoint(cfg []byte) bool {
	for i := 0; i+1 < len(cfg); {
		length := int(cfg[i])
		if length == 0 {
			break
		}
		descType := cfg[i+1]
		if descType == 5 && length >= 7 {
			addr := cfg[i+2]
			attrs := cfg[i+3]
			if addr&0x80 != 0 && attrs&0x3 == 3 {
				return true
			}
		}
		i += length
	}
	return false
}

// setConfiguration, setIdle, and setProtocolBoot issue the no-data-stage
// control requests of spec.md §4.9's enumeration sequence.
func (c *Controller) setConfiguration(slot *DeviceSlot, configValue uint8) bool {
	setup := SetupPacket{RequestType: bmRequestTypeHostToDevice, Request: reqSetConfig, Value: uint16(configValue)}
	cc, timedOut := c.ControlTransfer(slot, setup, 0, 0, false)
	return !timedOut && cc == CompletionSuccess
}

func (c *Controller) setIdle(slot *DeviceSlot) bool {
	setup := SetupPacket{RequestType: bmRequestTypeClassIface, Request: reqSetIdle}
	cc, timedOut := c.ControlTransfer(slot, setup, 0, 0, false)
	return !timedOut && cc == CompletionSuccess
}

func (c *Controller) setProtocolBoot(slot *DeviceSlot) bool {
	setup := SetupPacket{RequestType: bmRequestTypeClassIface, Request: reqSetProtocol, Value: bootProtocol}
	cc, timedOut := c.ControlTransfer(slot, setup, 0, 0, false)
	return !timedOut && cc == CompletionSuccess
}
