// Package pit programs the Intel 8253/8254 programmable interval timer
// to fire at 100Hz, driving the scheduler's tick accounting via
// IRQ0.
package pit

import "ringzero/kernel/cpu"

const (
	channel0Data = 0x40
	commandPort  = 0x43

	// modeSquareWave selects channel 0, lobyte/hibyte access, mode 3
	// (square wave generator), binary mode.
	modeSquareWave = 0x36

	// oscillatorHz is the PIT's fixed input clock frequency.
	oscillatorHz = 1193180

	// FrequencyHz is the tick rate the scheduler's accounting assumes.
	FrequencyHz = 100
)

var outBFn = cpu.OutB

// Init programs channel 0 for a FrequencyHz square wave.
func Init() {
	divisor := uint16(oscillatorHz / FrequencyHz)

	outBFn(commandPort, modeSquareWave)
	outBFn(channel0Data, byte(divisor))
	outBFn(channel0Data, byte(divisor>>8))
}
