// Package irq installs the 256-entry IDT and dispatches CPU exceptions,
// hardware IRQs and the int 0x80 system-call gate to registered handlers
//. The common save/restore trampolines live in idt_386.s; this
// file holds everything that can be expressed, and tested, in Go.
package irq

import (
	"ringzero/kernel/kfmt"
	"ringzero/kernel/pic"
)

// Regs is the snapshot of general-purpose registers pushed by the common
// trampoline before it calls into Go. ErrorCode is the CPU-pushed error
// code for exceptions that have one, or 0 (the trampoline pushes a dummy)
// for those that don't. Vector identifies which IDT gate fired.
type Regs struct {
	EDI uint32
	ESI uint32
	EBP uint32
	EBX uint32
	EDX uint32
	ECX uint32
	EAX uint32

	Vector    uint32
	ErrorCode uint32
}

// Print outputs a register dump to the active terminal.
func (r *Regs) Print() {
	kfmt.Printf("EAX=%8x EBX=%8x ECX=%8x EDX=%8x\n", r.EAX, r.EBX, r.ECX, r.EDX)
	kfmt.Printf("ESI=%8x EDI=%8x EBP=%8x\n", r.ESI, r.EDI, r.EBP)
	kfmt.Printf("vector=%2d errorCode=%8x\n", r.Vector, r.ErrorCode)
}

// Frame is the CPU-pushed return frame restored by iret.
type Frame struct {
	EIP    uint32
	CS     uint32
	EFlags uint32
	ESP    uint32
	SS     uint32
}

// Print outputs the exception frame to the active terminal.
func (f *Frame) Print() {
	kfmt.Printf("EIP=%8x CS=%4x EFLAGS=%8x\n", f.EIP, f.CS, f.EFlags)
	kfmt.Printf("ESP=%8x SS=%4x\n", f.ESP, f.SS)
}

// InterruptNumber names an IDT vector.
type InterruptNumber uint8

// CPU exception vectors 0-31.
const (
	DivideByZero               = InterruptNumber(0)
	NMI                        = InterruptNumber(2)
	Overflow                   = InterruptNumber(4)
	BoundRangeExceeded         = InterruptNumber(5)
	InvalidOpcode              = InterruptNumber(6)
	DeviceNotAvailable         = InterruptNumber(7)
	DoubleFault                = InterruptNumber(8)
	InvalidTSS                 = InterruptNumber(10)
	SegmentNotPresent          = InterruptNumber(11)
	StackSegmentFault          = InterruptNumber(12)
	GPFException               = InterruptNumber(13)
	PageFaultException         = InterruptNumber(14)
	FloatingPointException     = InterruptNumber(16)
	AlignmentCheck             = InterruptNumber(17)
	MachineCheck               = InterruptNumber(18)
	SIMDFloatingPointException = InterruptNumber(19)
)

const (
	// SyscallVector is the DPL=3 software-interrupt gate user code uses
	// to enter the kernel.
	SyscallVector = InterruptNumber(0x80)

	irqBase  = 32
	irqCount = 16
	idtSize  = 256

	// cpuPushesErrorCode (below) marks the exceptions the CPU itself pushes an
	// error code for; every other vector gets a dummy 0 pushed by its
	// stub so the common trampoline can treat Regs uniformly.
)

var cpuPushesErrorCode = [idtSize]bool{
	8: true, 10: true, 11: true, 12: true, 13: true, 14: true, 17: true,
}

// HasErrorCode reports whether the CPU pushes a real error code for vector,
// as opposed to the stub pushing a dummy 0.
func HasErrorCode(vector InterruptNumber) bool {
	return cpuPushesErrorCode[vector]
}

var (
	exceptionHandlers [idtSize]func(*Regs, *Frame)
	irqHandlers       [irqCount]func(*Regs)

	// panicFn is swapped out by tests; in the kernel it is kfmt.Panic.
	panicFn = defaultPanic

	// eoiFn is swapped out by tests; in the kernel it is pic.EOI.
	eoiFn = pic.EOI
)

// HandleException registers handler to run when vector fires. Registering
// for a vector that already has a handler replaces it.
func HandleException(vector InterruptNumber, handler func(*Regs, *Frame)) {
	exceptionHandlers[vector] = handler
}

// HandleIRQ registers handler to run when hardware IRQ line (0-15) fires.
func HandleIRQ(line uint8, handler func(*Regs)) {
	irqHandlers[line] = handler
}

// dispatchException is called by the common exception trampoline. An
// unregistered vector is treated as fatal: it dumps the registers and
// frame and never returns.
func dispatchException(regs *Regs, frame *Frame) {
	handler := exceptionHandlers[regs.Vector]
	if handler == nil {
		regs.Print()
		frame.Print()
		panicFn()
		return
	}
	handler(regs, frame)
}

// dispatchIRQ is called by the common IRQ trampoline. It always sends EOI,
// even for an unregistered line, since the PIC does not know or care
// whether anyone handled the interrupt.
func dispatchIRQ(regs *Regs) {
	line := uint8(regs.Vector - irqBase)

	if handler := irqHandlers[line]; handler != nil {
		handler(regs)
	}

	eoiFn(line)
}

func defaultPanic() {
	kfmt.Panic(nil)
}

var (
	// interruptGateEntriesFn is swapped out by tests; in the kernel it is
	// the asm-backed interruptGateEntries.
	interruptGateEntriesFn = interruptGateEntries

	// installIDTFn is swapped out by tests; in the kernel it is installIDT.
	installIDTFn = installIDT
)

// Init installs the IDT: exceptions 0-31 and IRQs 32-47 as DPL=0 interrupt
// gates, and vector 0x80 as a DPL=3 gate so user code can reach it via
// `int $0x80`.
func Init() {
	entries := interruptGateEntriesFn()

	for v := 0; v < idtSize; v++ {
		dpl := uint8(0)
		if InterruptNumber(v) == SyscallVector {
			dpl = 3
		}
		installGate(uint8(v), entries[v], dpl)
	}

	installIDTFn()
}
