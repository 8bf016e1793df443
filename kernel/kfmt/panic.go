package kfmt

import (
	"ringzero/kernel"
	"ringzero/kernel/cpu"
)

// cpuHaltFn is swapped out by tests.
var cpuHaltFn = cpu.Halt

// Panic prints a diagnostic banner for err to the active terminal and halts
// the CPU in a disabled-interrupt loop. This is the kernel's only panic
// path: fatal exceptions (double fault, GPF, unrecoverable page
// fault) funnel here after writing their register dump.
func Panic(err *kernel.Error) {
	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpu.DisableInterrupts()
	for {
		cpuHaltFn()
	}
}
