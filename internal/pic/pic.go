// Package pic programs the two cascaded 8259A controllers (spec.md §4.6).
// Treated by spec.md §1 as an "opaque two-controller cascade" collaborator,
// but the recipe itself is fully specified, so it is implemented here in
// full rather than stubbed. Grounded on mazboot's gic_qemu.go mask/EOI
// sequencing idiom (itself the GICv2 analogue of this exact remap dance),
// re-targeted to the literal ICW1..ICW4 byte sequence x86 PCs use.
package pic

import "github.com/iansmith/x86kernel/internal/asm"

const (
	master       = 0x20
	masterData   = 0x21
	slave        = 0xA0
	slaveData    = 0xA1

	icw1Init      = 0x11
	icw4_8086     = 0x01
	masterOffset  = 0x20
	slaveOffset   = 0x28
	masterCascade = 4 // IRQ2 has a slave attached
	slaveCascade  = 2 // slave's identity on the cascade

	maskMasterFinal = 0xFD // unmask IRQ1 (keyboard) only
	maskSlaveFinal  = 0xFF

	EOICommand = 0x20
)

// Remap reprograms both controllers to vectors 0x20 (master) and 0x28
// (slave), then applies the final IRQ mask: only IRQ1 (PS/2 keyboard)
// unmasked on the master, everything masked on the slave (spec.md §4.6).
func Remap() {
	// ICW1: begin initialization, expect ICW4.
	asm.OutB(master, icw1Init)
	asm.IODelay()
	asm.OutB(slave, icw1Init)
	asm.IODelay()

	// ICW2: vector offsets.
	asm.OutB(masterData, masterOffset)
	asm.IODelay()
	asm.OutB(slaveData, slaveOffset)
	asm.IODelay()

	// ICW3: cascade identity.
	asm.OutB(masterData, masterCascade)
	asm.IODelay()
	asm.OutB(slaveData, slaveCascade)
	asm.IODelay()

	// ICW4: 8086 mode.
	asm.OutB(masterData, icw4_8086)
	asm.IODelay()
	asm.OutB(slaveData, icw4_8086)
	asm.IODelay()

	asm.OutB(masterData, maskMasterFinal)
	asm.OutB(slaveData, maskSlaveFinal)
}

// EndOfInterrupt acknowledges IRQ `line` (0-based): slave EOI first iff
// line >= 8, then master EOI always (spec.md §4.5).
func EndOfInterrupt(line int) {
	if line >= 8 {
		asm.OutB(slave, EOICommand)
	}
	asm.OutB(master, EOICommand)
}

// SetMask replaces the current IRQ mask on both controllers; used if a
// driver needs to unmask an additional line beyond IRQ1 at runtime.
func SetMask(masterMask, slaveMask uint8) {
	asm.OutB(masterData, masterMask)
	asm.OutB(slaveData, slaveMask)
}
