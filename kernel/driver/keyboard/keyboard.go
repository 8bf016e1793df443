// Package keyboard reads scancodes from the PS/2 controller and translates
// set-1 make codes into ASCII for the kernel's minimal keyboard shell. It
// is driven entirely from IRQ1's dispatch table; there is no polling loop.
package keyboard

import "ringzero/kernel/cpu"

const (
	dataPort   = 0x60
	statusPort = 0x64

	statusOutputFull = 1 << 0

	// releaseBit marks a set-1 "key up" code; the make code for the same
	// key has it clear.
	releaseBit = 0x80
)

var inBFn = cpu.InB

// set1 maps the low 7 bits of a set-1 make code to its ASCII rendering for
// the unshifted US layout. Unmapped entries (function keys, modifiers,
// arrows) read as 0 and are reported as non-printable.
var set1 = [128]byte{
	0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
	0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
	0x0C: '-', 0x0D: '=', 0x0E: '\b', 0x0F: '\t',
	0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
	0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
	0x1A: '[', 0x1B: ']', 0x1C: '\n',
	0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
	0x23: 'h', 0x24: 'j', 0x25: 'k', 0x26: 'l', 0x27: ';',
	0x28: '\'', 0x29: '`',
	0x2B: '\\',
	0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
	0x31: 'n', 0x32: 'm', 0x33: ',', 0x34: '.', 0x35: '/',
	0x39: ' ',
}

// Event is a single decoded key transition.
type Event struct {
	Scancode byte
	ASCII    byte // 0 if the key has no ASCII rendering
	Released bool
}

// ReadEvent polls the controller's status register and, if a scancode is
// waiting, reads and decodes it. It reports ok=false when the output
// buffer is empty, which should never happen when called from the IRQ1
// handler (the interrupt only fires when a byte is ready) but is checked
// for anyway since the status and data registers are two separate reads.
func ReadEvent() (Event, bool) {
	if inBFn(statusPort)&statusOutputFull == 0 {
		return Event{}, false
	}

	code := inBFn(dataPort)
	released := code&releaseBit != 0
	makeCode := code &^ releaseBit

	return Event{
		Scancode: code,
		ASCII:    set1[makeCode],
		Released: released,
	}, true
}
