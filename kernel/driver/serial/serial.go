// Package serial drives the 16550 UART at the default COM1 address and
// mirrors every byte the write syscall sends to VGA, so a kernel running
// headless still has an observable output stream.
package serial

import "ringzero/kernel/cpu"

const (
	// com1 is the default 16550 base I/O address; the eight registers
	// below are all offsets from it.
	com1 = 0x3F8

	regData       = com1 + 0 // DLAB=0: transmit/receive holding register
	regIntEnable  = com1 + 1 // DLAB=0: interrupt enable
	regDivisorLo  = com1 + 0 // DLAB=1: baud rate divisor, low byte
	regDivisorHi  = com1 + 1 // DLAB=1: baud rate divisor, high byte
	regFIFOCtrl   = com1 + 2
	regLineCtrl   = com1 + 3
	regModemCtrl  = com1 + 4
	regLineStatus = com1 + 5

	dlab            = 1 << 7
	lineCtrl8N1     = 0x03 // 8 data bits, no parity, 1 stop bit
	fifoEnableClear = 0xC7 // enable FIFO, clear rx/tx, 14-byte threshold
	modemLoopback   = 0x10
	modemNormal     = 0x03 // DTR | RTS, loopback disabled

	// baseClock is the UART's fixed input clock; dividing it by the
	// target baud rate gives the 16-bit divisor latch value.
	baseClock = 115200
	baudRate  = 38400

	lineStatusTxEmpty = 1 << 5
)

var (
	outBFn = cpu.OutB
	inBFn  = cpu.InB
)

// Port is the COM1 UART. It implements io.Writer so kfmt.Fprintf and the
// write syscall can address it the same way they address the VGA
// terminal.
type Port struct{}

// COM1 is the kernel's single serial port instance.
var COM1 = &Port{}

// Init brings COM1 up at 38400 8N1 with the FIFO enabled: disable
// interrupts, set the baud divisor, select 8N1,
// enable and clear the FIFOs, then take the port out of loopback.
func (p *Port) Init() {
	outBFn(regIntEnable, 0x00)

	divisor := uint16(baseClock / baudRate)
	outBFn(regLineCtrl, dlab)
	outBFn(regDivisorLo, byte(divisor))
	outBFn(regDivisorHi, byte(divisor>>8))

	outBFn(regLineCtrl, lineCtrl8N1)
	outBFn(regFIFOCtrl, fifoEnableClear)
	outBFn(regModemCtrl, modemNormal)
}

// WriteByte blocks until the transmit holding register is empty, then
// sends b.
func (p *Port) WriteByte(b byte) {
	for inBFn(regLineStatus)&lineStatusTxEmpty == 0 {
	}
	outBFn(regData, b)
}

// Write sends every byte in buf and returns len(buf); it never fails,
// matching io.Writer's contract for a sink that cannot be backpressured
// away.
func (p *Port) Write(buf []byte) (int, error) {
	for _, b := range buf {
		p.WriteByte(b)
	}
	return len(buf), nil
}
