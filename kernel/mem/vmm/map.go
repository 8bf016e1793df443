package vmm

import (
	"ringzero/kernel"
	"ringzero/kernel/mem/pmm"
)

// FrameAllocatorFn is a function that can allocate a physical frame.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

var (
	// frameAllocator is registered via SetFrameAllocator and used
	// whenever Map needs to instantiate a missing page table.
	frameAllocator FrameAllocatorFn

	// flushTLBEntryFn is swapped out by tests; in the kernel it is
	// cpu.FlushTLBEntry.
	flushTLBEntryFn = func(uintptr) {}

	errOutOfMemory = &kernel.Error{Module: "vmm", Message: "out of memory while establishing mapping"}
)

// SetFrameAllocator registers the physical frame allocator used to back new
// page tables and newly mapped pages.
func SetFrameAllocator(fn FrameAllocatorFn) {
	frameAllocator = fn
}

// Map installs a PTE mapping virtual page `page` to physical frame `frame`
// with the given flags, allocating and zeroing a new page table if the
// owning PDE is not yet present.
func Map(page Page, frame pmm.Frame, flags PageTableEntryFlag) *kernel.Error {
	virtAddr := page.Address()
	pde := pdeFor(virtAddr)

	if !pde.HasFlags(FlagPresent) {
		ptFrame, err := frameAllocator()
		if err != nil {
			return err
		}

		userBit := flags & FlagUser
		*pde = 0
		pde.SetFrame(ptFrame)
		pde.SetFlags(FlagPresent | FlagRW | userBit)

		ptBase := ptView(pdIndex(virtAddr))
		for i := uintptr(0); i < 1024; i++ {
			*pdeAt(ptBase, i) = 0
		}
	}

	pte := pteFor(virtAddr)
	*pte = 0
	pte.SetFrame(frame)
	pte.SetFlags(FlagPresent | flags)
	flushTLBEntryFn(virtAddr)

	return nil
}

// Unmap clears the PTE mapping `page`. If this was the last present entry
// in its page table, the table's frame is returned to the allocator and the
// owning PDE is cleared too. Always invalidates the TLB entry for `page`.
func Unmap(page Page) *kernel.Error {
	virtAddr := page.Address()
	pde := pdeFor(virtAddr)
	if !pde.HasFlags(FlagPresent) {
		return ErrInvalidMapping
	}

	pte := pteFor(virtAddr)
	if !pte.HasFlags(FlagPresent) {
		return ErrInvalidMapping
	}
	pte.ClearFlags(FlagPresent)
	flushTLBEntryFn(virtAddr)

	if !pageTableHasPresentEntry(pdIndex(virtAddr)) {
		ptFrame := pde.Frame()
		*pde = 0
		if freeFrameFn != nil {
			freeFrameFn(ptFrame)
		}
	}

	return nil
}

// freeFrameFn is swapped out by tests and set to allocator.FreeFrame by the
// kernel's boot sequence.
var freeFrameFn func(pmm.Frame)

// SetFrameDeallocator registers the function Unmap uses to release a page
// table frame once it becomes entirely empty.
func SetFrameDeallocator(fn func(pmm.Frame)) {
	freeFrameFn = fn
}

func pageTableHasPresentEntry(pdeIndex uintptr) bool {
	base := ptView(pdeIndex)
	for i := uintptr(0); i < 1024; i++ {
		entry := (*pageTableEntry)(ptPtrFn(base + i<<2))
		if entry.HasFlags(FlagPresent) {
			return true
		}
	}
	return false
}

// IsMapped returns true if virtAddr currently translates to a physical
// address.
func IsMapped(virtAddr uintptr) bool {
	pde := pdeFor(virtAddr)
	if !pde.HasFlags(FlagPresent) {
		return false
	}
	return pteFor(virtAddr).HasFlags(FlagPresent)
}

// ChangeFlags preserves the target frame of the PTE mapping virtAddr and
// replaces its flag bits.
func ChangeFlags(virtAddr uintptr, flags PageTableEntryFlag) *kernel.Error {
	pde := pdeFor(virtAddr)
	if !pde.HasFlags(FlagPresent) {
		return ErrInvalidMapping
	}
	pte := pteFor(virtAddr)
	if !pte.HasFlags(FlagPresent) {
		return ErrInvalidMapping
	}

	frame := pte.Frame()
	*pte = 0
	pte.SetFrame(frame)
	pte.SetFlags(FlagPresent | flags)
	flushTLBEntryFn(virtAddr)
	return nil
}
