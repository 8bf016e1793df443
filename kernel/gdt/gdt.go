// Package gdt installs the five-descriptor global descriptor table: a null
// descriptor, a ring-0 code/data pair and a ring-3 code/data pair, each
// spanning the full 4 GiB address space. It also owns the single TSS used
// to carry ESP0 across ring-3 -> ring-0 transitions.
package gdt

import (
	"unsafe"

	"ringzero/kernel/cpu"
)

// Selector values referred to throughout the kernel (§6).
const (
	KernelCodeSelector = uint16(0x08)
	KernelDataSelector = uint16(0x10)
	UserCodeSelector   = uint16(0x1B) // includes RPL=3
	UserDataSelector   = uint16(0x23) // includes RPL=3
	TSSSelector        = uint16(0x28)
)

const (
	accessPresent  = 0x80
	accessRing0    = 0x00
	accessRing3    = 0x60
	accessCode     = 0x1A // executable, readable
	accessData     = 0x12 // writable
	accessTSS      = 0x89 // present, 32-bit TSS (available)
	granularity4K  = 0xC0 // 4KiB granularity, 32-bit operand size
	granularityTSS = 0x00
)

type descriptor struct {
	limitLow   uint16
	baseLow    uint16
	baseMiddle uint8
	access     uint8
	granular   uint8
	baseHigh   uint8
}

func newDescriptor(base uint32, limit uint32, access, granular uint8) descriptor {
	return descriptor{
		limitLow:   uint16(limit & 0xFFFF),
		baseLow:    uint16(base & 0xFFFF),
		baseMiddle: uint8((base >> 16) & 0xFF),
		access:     access,
		granular:   granular | uint8((limit>>16)&0x0F),
		baseHigh:   uint8((base >> 24) & 0xFF),
	}
}

// TSS is the minimal 32-bit task state segment the kernel needs. Only ESP0
// and SS0 are ever read by the CPU (on a ring3->ring0 transition); the rest
// of the fields exist solely to satisfy the structure's size and layout.
type TSS struct {
	prevTask uint32
	esp0     uint32
	ss0      uint32
	_        [22]uint32
	ioMapBase uint16
}

var (
	table [6]descriptor
	tss   TSS

	pseudoDescriptor struct {
		limit uint16
		base  uint32
	}
)

// Init builds the descriptor table and TSS, loads GDTR via LGDT, reloads
// the data segment registers (CS keeps the selector it had on entry) and
// loads the task register via LTR.
func Init() {
	table[0] = newDescriptor(0, 0, 0, 0)
	table[1] = newDescriptor(0, 0xFFFFF, accessPresent|accessRing0|accessCode, granularity4K)
	table[2] = newDescriptor(0, 0xFFFFF, accessPresent|accessRing0|accessData, granularity4K)
	table[3] = newDescriptor(0, 0xFFFFF, accessPresent|accessRing3|accessCode, granularity4K)
	table[4] = newDescriptor(0, 0xFFFFF, accessPresent|accessRing3|accessData, granularity4K)

	tssSize := uint32(unsafe.Sizeof(tss))
	tss.ioMapBase = uint16(tssSize)
	table[5] = newDescriptor(uint32(uintptr(unsafe.Pointer(&tss))), tssSize-1, accessPresent|accessTSS, granularityTSS)

	pseudoDescriptor.limit = uint16(len(table)*8 - 1)
	pseudoDescriptor.base = uint32(uintptr(unsafe.Pointer(&table[0])))

	cpu.Lgdt(uintptr(unsafe.Pointer(&pseudoDescriptor)), KernelCodeSelector, KernelDataSelector)
	cpu.Ltr(TSSSelector)
}

// SetKernelStack updates the TSS's ESP0/SS0 fields so that the next
// ring3->ring0 transition (via an interrupt, exception or syscall gate)
// lands on the given kernel stack. This is invoked by the scheduler's
// context switch whenever it hands the CPU to a user-mode process (§4.6).
func SetKernelStack(esp0 uintptr) {
	tss.esp0 = uint32(esp0)
	tss.ss0 = uint32(KernelDataSelector)
}
