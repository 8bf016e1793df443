// +build 386

// Package cpu provides the small set of non-portable primitives that the
// rest of the kernel needs: port I/O, interrupt masking, control-register
// access and TLB management. Every exported function here is declared
// without a body; the actual implementation lives in cpu_386.s and is
// written in Plan9 assembly.
package cpu

// OutB writes a byte to the given I/O port.
func OutB(port uint16, value uint8)

// InB reads a byte from the given I/O port.
func InB(port uint16) uint8

// OutW writes a word to the given I/O port.
func OutW(port uint16, value uint16)

// InW reads a word from the given I/O port.
func InW(port uint16) uint16

// OutL writes a double word to the given I/O port.
func OutL(port uint16, value uint32)

// InL reads a double word from the given I/O port.
func InL(port uint16) uint32

// EnableInterrupts executes sti, allowing maskable interrupts to be
// delivered to the CPU.
func EnableInterrupts()

// DisableInterrupts executes cli, masking all maskable interrupts.
func DisableInterrupts()

// Halt executes hlt, stopping instruction execution until the next
// interrupt (maskable or not) arrives.
func Halt()

// ReadCR2 returns the last faulting address recorded by the CPU; valid only
// while inside a page-fault handler.
func ReadCR2() uint32

// ReadCR3 returns the physical address of the currently active page
// directory.
func ReadCR3() uint32

// WriteCR3 loads a new page directory physical address into CR3, flushing
// every non-global TLB entry.
func WriteCR3(pdPhysAddr uint32)

// EnablePaging sets CR0.PG, turning on the MMU. It must only be called
// after a valid page directory has been loaded via WriteCR3.
func EnablePaging()

// FlushTLBEntry invalidates the single TLB entry that covers virtAddr.
func FlushTLBEntry(virtAddr uintptr)

// Lgdt loads the GDTR register from the 6-byte pseudo-descriptor at ptr and
// reloads DS/ES/FS/GS/SS with dataSelector. CS is not reloaded: there is no
// far jump, and codeSelector is not read.
func Lgdt(ptr uintptr, codeSelector, dataSelector uint16)

// Lidt loads the IDTR register from the 6-byte pseudo-descriptor at ptr.
func Lidt(ptr uintptr)

// Ltr loads the task register with the given TSS selector.
func Ltr(selector uint16)
