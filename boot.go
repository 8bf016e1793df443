// Package main is the trampoline the rt0 assembly jumps into once it has
// set up the GDT and a minimal g0 stack for the Go runtime to run on. It
// exists purely so the Go compiler cannot treat kmain's code as
// unreachable and discard it; main itself does nothing but hand off to
// the real kernel entry point.
//
// main is not expected to return. If it does, the rt0 code halts the CPU.
package main

import "ringzero/kernel/kmain"

// multibootInfoPtr, kernelStart and kernelEnd are populated by the rt0
// assembly before it transfers control here: the physical address of the
// Multiboot info structure the boot loader left behind, and the kernel
// image's own physical bounds, which the frame allocator needs to keep
// from handing out memory the kernel itself occupies.
var (
	multibootInfoPtr uintptr
	kernelStart      uintptr
	kernelEnd        uintptr
)

func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)
}
