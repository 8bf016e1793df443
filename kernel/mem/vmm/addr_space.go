package vmm

import (
	"ringzero/kernel"
	"ringzero/kernel/mem"
	"ringzero/kernel/mem/pmm"
)

var (
	activePDFn = activePD
	switchPDFn = switchPD

	// enablePagingFn is swapped out by tests; in the kernel it is
	// cpu.EnablePaging.
	enablePagingFn = func() {}
)

// AddressSpace owns one page directory frame. Every AddressSpace maps the
// shared kernel high half identically and a private low half.
type AddressSpace struct {
	pdFrame pmm.Frame
}

// New allocates a fresh page directory frame, zeroes it, installs the
// recursive self-mapping entry and copies the shared kernel PDEs (indices
// for virtAddr >= mem.KernelBase) from the currently active address space.
func New() (AddressSpace, *kernel.Error) {
	pdFrame, err := frameAllocator()
	if err != nil {
		return AddressSpace{}, errOutOfMemory
	}

	// The kernel half is snapshotted from the currently active page
	// directory before the scratch mapping below is installed, so the
	// scratch page's own (temporary) page table is never copied.
	kernelStartIndex := pdIndex(mem.KernelBase)
	var kernelPDEs [1024]pageTableEntry
	for i := kernelStartIndex; i < recursiveSlot; i++ {
		kernelPDEs[i] = *pdeFor(i << 22)
	}

	// A fresh page directory has no recursive entry of its own yet, so
	// withMapped cannot reach it; it is filled in through the scratch page.
	if err := mapScratchFn(pdFrame); err != nil {
		return AddressSpace{}, err
	}
	base := scratchAddrFn()
	for i := uintptr(0); i < 1024; i++ {
		*pdeAt(base, i) = 0
	}

	self := pdeAt(base, recursiveSlot)
	*self = 0
	self.SetFrame(pdFrame)
	self.SetFlags(FlagPresent | FlagRW)

	for i := kernelStartIndex; i < recursiveSlot; i++ {
		*pdeAt(base, i) = kernelPDEs[i]
	}
	if err := unmapScratchFn(); err != nil {
		return AddressSpace{}, err
	}

	return AddressSpace{pdFrame: pdFrame}, nil
}

// Frame returns the physical frame backing this address space's page
// directory.
func (as AddressSpace) Frame() pmm.Frame {
	return as.pdFrame
}

// Activate loads this address space's page directory into CR3.
func (as AddressSpace) Activate() {
	switchPDFn(as.pdFrame.Address())
}

// IsActive reports whether this address space's page directory is the one
// currently loaded into CR3.
func (as AddressSpace) IsActive() bool {
	return uintptr(activePDFn()) == as.pdFrame.Address()
}

// withMapped runs fn with base set to a virtual address at which as's page
// directory can be read/written as a flat array of 1024 entries. If as is
// already active, this is simply pdView; otherwise the target PD is
// temporarily aliased into the active PD's recursive slot and restored
// once fn returns.
func (as AddressSpace) withMapped(fn func(base uintptr)) *kernel.Error {
	if as.IsActive() {
		fn(pdView)
		return nil
	}

	activeFrame := pmm.Frame(activePDFn() >> mem.PageShift)
	selfEntryAddr := uintptr(pdView + recursiveSlot<<2)
	self := (*pageTableEntry)(ptPtrFn(selfEntryAddr))

	self.SetFrame(as.pdFrame)
	flushTLBEntryFn(pdView)

	fn(pdView)

	self.SetFrame(activeFrame)
	flushTLBEntryFn(pdView)
	return nil
}

// pdeAt returns a pointer to the PDE at index i within base (a page
// directory viewed as a flat array, as returned to withMapped's callback).
func pdeAt(base uintptr, i uintptr) *pageTableEntry {
	return (*pageTableEntry)(ptPtrFn(base + i<<2))
}

// CloneForFork implements clone_for_fork: allocate a fresh PD;
// for each present low-half PDE, allocate a fresh PT, copy the parent's PT
// entries byte-for-byte, then mark every present, originally-writable entry
// read-only on both the parent's and the child's copy (COW marking).
// High-half PDEs are shared by reference (copied by value, same PT frame).
func CloneForFork(parent AddressSpace) (AddressSpace, *kernel.Error) {
	child, err := New()
	if err != nil {
		return AddressSpace{}, err
	}

	kernelStartIndex := pdIndex(mem.KernelBase)

	for i := uintptr(0); i < kernelStartIndex; i++ {
		parentPDE := *pdeFor(i << 22)
		if !parentPDE.HasFlags(FlagPresent) {
			continue
		}

		childPTFrame, err := frameAllocator()
		if err != nil {
			return AddressSpace{}, errOutOfMemory
		}

		// Snapshot the parent's PT while the parent is still the
		// mapping reachable through the recursive slot, marking every
		// present+writable entry copy-on-write on the parent's own
		// copy as we go. This must happen before child.withMapped
		// below re-aliases the recursive slot to the child's page
		// directory, after which ptView(i) no longer resolves to the
		// parent's page table.
		parentPTBase := ptView(i)
		var ptSnapshot [1024]pageTableEntry
		for e := uintptr(0); e < 1024; e++ {
			parentPTE := pdeAt(parentPTBase, e)
			if parentPTE.HasFlags(FlagPresent) && parentPTE.HasFlags(FlagRW) {
				parentPTE.ClearFlags(FlagRW)
				parentPTE.SetFlags(FlagCopyOnWrite)
			}
			ptSnapshot[e] = *parentPTE
		}

		if err := child.withMapped(func(childPDBase uintptr) {
			childPDE := pdeAt(childPDBase, i)
			*childPDE = 0
			childPDE.SetFrame(childPTFrame)
			childPDE.SetFlags(FlagPresent | FlagRW | (flagsOf(parentPDE) & FlagUser))

			childPTBase := ptView(i)
			for e := uintptr(0); e < 1024; e++ {
				*pdeAt(childPTBase, e) = ptSnapshot[e]
			}
		}); err != nil {
			return AddressSpace{}, err
		}
	}

	cpuFlushAllFn()
	return child, nil
}

// cpuFlushAllFn is overridden by the kernel to reload CR3, which flushes
// every non-global TLB entry in one shot; tests leave it a no-op.
var cpuFlushAllFn = func() {}

// flagsOf reinterprets a raw page table entry's bits as a PageTableEntryFlag
// so callers can mask out individual flag bits from it.
func flagsOf(pte pageTableEntry) PageTableEntryFlag {
	return PageTableEntryFlag(uint32(pte))
}
