package irq

import (
	"unsafe"

	"ringzero/kernel/cpu"
	"ringzero/kernel/gdt"
)

// idtEntry is a single 32-bit interrupt-gate descriptor (Intel SDM 6.11).
type idtEntry struct {
	offsetLow  uint16
	selector   uint16
	zero       uint8
	typeAttr   uint8
	offsetHigh uint16
}

const (
	gatePresent   = 1 << 7
	gateType32Int = 0x0E
	gateDPLShift  = 5
)

var (
	idt [idtSize]idtEntry

	idtr struct {
		limit uint16
		base  uint32
	}
)

// installGate encodes a single descriptor for vector, pointing at
// handlerAddr with the given DPL, using the kernel code selector.
func installGate(vector uint8, handlerAddr uintptr, dpl uint8) {
	idt[vector] = idtEntry{
		offsetLow:  uint16(handlerAddr),
		selector:   gdt.KernelCodeSelector,
		zero:       0,
		typeAttr:   gatePresent | (dpl << gateDPLShift) | gateType32Int,
		offsetHigh: uint16(handlerAddr >> 16),
	}
}

// installIDT loads the IDT register with the table built by installGate.
func installIDT() {
	idtr.limit = uint16(unsafe.Sizeof(idt) - 1)
	idtr.base = uint32(uintptr(unsafe.Pointer(&idt[0])))

	cpu.Lidt(uintptr(unsafe.Pointer(&idtr)))
}
