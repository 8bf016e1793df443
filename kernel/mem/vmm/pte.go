// Package vmm implements the two-level (page directory / page table) i386
// virtual memory manager: map/unmap, translate, address-space cloning for
// fork with copy-on-write marking, and the page-fault handler that
// resolves a COW fault.
package vmm

import (
	"ringzero/kernel"
	"ringzero/kernel/mem"
	"ringzero/kernel/mem/pmm"
)

// ErrInvalidMapping is returned when looking up a virtual address that has
// no PDE or PTE installed.
var ErrInvalidMapping = &kernel.Error{Module: "vmm", Message: "virtual address does not point to a mapped physical page"}

// PageTableEntryFlag describes a flag bit (or combination of bits) that can
// be applied to a page directory or page table entry. The layout follows
// the packed record: present, writable, user, write-through,
// cache-disabled, accessed, dirty, page-size, global, 3 available bits,
// 20-bit frame index.
type PageTableEntryFlag uint32

const (
	FlagPresent  PageTableEntryFlag = 1 << 0
	FlagRW       PageTableEntryFlag = 1 << 1
	FlagUser     PageTableEntryFlag = 1 << 2
	FlagWriteThrough PageTableEntryFlag = 1 << 3
	FlagCacheDisabled PageTableEntryFlag = 1 << 4
	FlagAccessed PageTableEntryFlag = 1 << 5
	FlagDirty    PageTableEntryFlag = 1 << 6
	FlagPageSize PageTableEntryFlag = 1 << 7
	FlagGlobal   PageTableEntryFlag = 1 << 8

	// FlagCopyOnWrite is an available bit repurposed to mark a page that
	// is currently shared read-only between a parent and a forked child
	// and should be privately copied on the next write fault.
	FlagCopyOnWrite PageTableEntryFlag = 1 << 9
)

const ptePhysPageMask = uintptr(0xFFFFF000)

// pageTableEntry describes a single 32-bit page directory or page table
// entry.
type pageTableEntry uint32

// HasFlags returns true if this entry has every bit in flags set.
func (pte pageTableEntry) HasFlags(flags PageTableEntryFlag) bool {
	return uint32(pte)&uint32(flags) == uint32(flags)
}

// SetFlags ORs the given flag bits into the entry.
func (pte *pageTableEntry) SetFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint32(*pte) | uint32(flags))
}

// ClearFlags clears the given flag bits from the entry.
func (pte *pageTableEntry) ClearFlags(flags PageTableEntryFlag) {
	*pte = pageTableEntry(uint32(*pte) &^ uint32(flags))
}

// Frame returns the physical frame this entry points to.
func (pte pageTableEntry) Frame() pmm.Frame {
	return pmm.Frame((uintptr(pte) & ptePhysPageMask) >> mem.PageShift)
}

// SetFrame updates the entry to point at the given physical frame,
// preserving its flag bits.
func (pte *pageTableEntry) SetFrame(frame pmm.Frame) {
	*pte = pageTableEntry((uintptr(*pte) &^ ptePhysPageMask) | frame.Address())
}
