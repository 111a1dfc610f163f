// Package pciutil enumerates PCI configuration space and reports the
// devices found as plain descriptors, leaving driver bring-up (xHCI,
// NVMe) to their own packages (spec.md §1: "the PCI enumeration helper"
// is an external collaborator, treated as producing device descriptors).
package pciutil

import "github.com/iansmith/x86kernel/internal/asm"

// x86 legacy configuration-space access ports (distinct from the ECAM
// MMIO-window approach the teacher's AArch64 code uses, since x86_64
// always has the CF8/CFC I/O-port mechanism available regardless of
// whether an MCFG/ECAM window was also published).
const (
	configAddress = 0x0CF8
	configData    = 0x0CFC

	offVendorDevice = 0x00
	offCommand      = 0x04
	offClass        = 0x08
	offHeaderType   = 0x0E
	offBAR0         = 0x10

	cmdIOSpace   = 1 << 0
	cmdMemSpace  = 1 << 1
	cmdBusMaster = 1 << 2
	vendorIDNone = 0xFFFF
)

func configAddr(bus, slot, fn, offset uint8) uint32 {
	return 1<<31 | uint32(bus)<<16 | uint32(slot)<<11 | uint32(fn)<<8 | uint32(offset&0xFC)
}

// ReadConfig32 reads a 32-bit dword from PCI configuration space at
// (bus, slot, fn, offset), via the CF8/CFC port pair.
func ReadConfig32(bus, slot, fn, offset uint8) uint32 {
	asm.OutL(configAddress, configAddr(bus, slot, fn, offset))
	return asm.InL(configData)
}

// WriteConfig32 writes a 32-bit dword to PCI configuration space.
func WriteConfig32(bus, slot, fn, offset uint8, value uint32) {
	asm.OutL(configAddress, configAddr(bus, slot, fn, offset))
	asm.OutL(configData, value)
}

// Device is what enumeration reports about one function found on the
// bus: enough for a driver to locate and map its BARs.
type Device struct {
	Bus, Slot, Func     uint8
	VendorID, DeviceID  uint16
	ClassCode, SubClass uint8
	ProgIF              uint8
	BAR0                uint64 // resolved; 64-bit if BAR0's type bits are 10
}

// bar64 reports whether a BAR's low dword marks it as a 64-bit
// memory-mapped BAR (type bits [2:1] == 10b, bit 0 clear).
func bar64(lo uint32) bool { return lo&0x1 == 0 && (lo>>1)&0x3 == 0x2 }

// readBAR0 resolves BAR0, reading the adjoining BAR1 dword too when
// BAR0 is a 64-bit BAR (spec.md §4.9 step 1: "possibly 64-bit when
// bar-type bits are 10").
func readBAR0(bus, slot, fn uint8) uint64 {
	lo := ReadConfig32(bus, slot, fn, offBAR0)
	base := uint64(lo &^ 0xF)
	if bar64(lo) {
		hi := ReadConfig32(bus, slot, fn, offBAR0+4)
		base |= uint64(hi) << 32
	}
	return base
}

// EnableDevice sets the I/O space, memory space, and bus-master bits in
// the command register, the step a driver must take before touching a
// device's BARs or issuing DMA.
func EnableDevice(d Device) {
	cmd := ReadConfig32(d.Bus, d.Slot, d.Func, offCommand)
	cmd |= cmdIOSpace | cmdMemSpace | cmdBusMaster
	WriteConfig32(d.Bus, d.Slot, d.Func, offCommand, cmd)
}

// Scan walks every (bus, slot, function) triple and calls fn for each
// present function (vendor id not 0xFFFF/0x0000), in bus/slot/function
// order — the same brute-force scan shape as the teacher's
// findBochsDisplay, generalized to report every device rather than
// searching for one vendor/device pair.
func Scan(fn func(Device)) {
	for bus := 0; bus < 256; bus++ {
		for slot := 0; slot < 32; slot++ {
			for f := 0; f < 8; f++ {
				b, s, fnNum := uint8(bus), uint8(slot), uint8(f)
				reg := ReadConfig32(b, s, fnNum, offVendorDevice)
				vendor := uint16(reg & 0xFFFF)
				if vendor == vendorIDNone || vendor == 0 {
					if f == 0 {
						break // no function 0 means no device in this slot
					}
					continue
				}
				device := uint16(reg >> 16)
				class := ReadConfig32(b, s, fnNum, offClass)
				d := Device{
					Bus: b, Slot: s, Func: fnNum,
					VendorID:  vendor,
					DeviceID:  device,
					ClassCode: uint8(class >> 24),
					SubClass:  uint8(class >> 16),
					ProgIF:    uint8(class >> 8),
					BAR0:      readBAR0(b, s, fnNum),
				}
				fn(d)

				headerType := ReadConfig32(b, s, fnNum, offHeaderType) >> 16 & 0xFF
				if f == 0 && headerType&0x80 == 0 {
					break // not multi-function: skip remaining functions
				}
			}
		}
	}
}

// FindByClass returns the first device whose (class, subclass) matches,
// or false if none was found. xHCI is class 0x0C subclass 0x03 (progIF
// 0x30 distinguishes xHCI from UHCI/OHCI/EHCI); NVMe is class 0x01
// subclass 0x08.
func FindByClass(class, subClass uint8) (Device, bool) {
	var found Device
	ok := false
	Scan(func(d Device) {
		if ok {
			return
		}
		if d.ClassCode == class && d.SubClass == subClass {
			found = d
			ok = true
		}
	})
	return found, ok
}
