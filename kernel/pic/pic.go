// Package pic programs the two cascaded 8259A programmable interrupt
// controllers: master at ports 0x20/0x21, slave at 0xA0/0xA1,
// remapped so IRQ0-15 land on IDT vectors 0x20-0x2F instead of colliding
// with the CPU's own exception vectors 0-31.
package pic

import "ringzero/kernel/cpu"

const (
	masterCmd  = 0x20
	masterData = 0x21
	slaveCmd   = 0xA0
	slaveData  = 0xA1

	// MasterOffset and SlaveOffset are the IDT vectors the master and
	// slave PIC's IRQ0/IRQ8 are remapped to.
	MasterOffset = 0x20
	SlaveOffset  = 0x28

	icw1Init     = 0x11 // edge-triggered, cascade, ICW4 needed
	icw4Mode8086 = 0x01

	cascadeIRQ = 2

	eoiCmd = 0x20
)

// outBFn is swapped out by tests so register programming can be observed
// without real port I/O.
var outBFn = cpu.OutB

var mask uint16 = 0xFFFF

// Init remaps both PICs to MasterOffset/SlaveOffset, wires the cascade on
// IRQ2, switches to 8086 mode, and masks every line (callers unmask the
// ones they handle).
func Init() {
	outBFn(masterCmd, icw1Init)
	outBFn(slaveCmd, icw1Init)
	outBFn(masterData, MasterOffset)
	outBFn(slaveData, SlaveOffset)
	outBFn(masterData, 1<<cascadeIRQ)
	outBFn(slaveData, cascadeIRQ)
	outBFn(masterData, icw4Mode8086)
	outBFn(slaveData, icw4Mode8086)

	mask = 0xFFFF
	outBFn(masterData, byte(mask))
	outBFn(slaveData, byte(mask>>8))
}

// Mask disables a single IRQ line (0-15).
func Mask(line uint8) {
	mask |= 1 << line
	applyMask()
}

// Unmask enables a single IRQ line (0-15).
func Unmask(line uint8) {
	mask &^= 1 << line
	applyMask()
}

// MaskAll disables every IRQ line.
func MaskAll() {
	mask = 0xFFFF
	applyMask()
}

// UnmaskAll enables every IRQ line.
func UnmaskAll() {
	mask = 0
	applyMask()
}

func applyMask() {
	outBFn(masterData, byte(mask))
	outBFn(slaveData, byte(mask>>8))
}

// EOI sends an end-of-interrupt to the PIC(s) that raised line (an IRQ
// line 0-15, not an IDT vector). Lines >= 8 also need an EOI
// sent to the master, since the slave is cascaded through it.
func EOI(line uint8) {
	if line >= 8 {
		outBFn(slaveCmd, eoiCmd)
	}
	outBFn(masterCmd, eoiCmd)
}
