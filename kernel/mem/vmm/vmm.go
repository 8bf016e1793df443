package vmm

import (
	"ringzero/kernel"
	"ringzero/kernel/cpu"
	"ringzero/kernel/mem"
	"ringzero/kernel/mem/pmm"
)

// activePD returns the physical address of the page directory currently
// loaded into CR3.
func activePD() uint32 {
	return cpu.ReadCR3()
}

// switchPD loads pdPhysAddr into CR3, flushing every non-global TLB entry.
func switchPD(pdPhysAddr uintptr) {
	cpu.WriteCR3(uint32(pdPhysAddr))
}

// kernelAS is the address space every process's high half is cloned from; it
// owns the identity/high-half mapping established by Init.
var kernelAS AddressSpace

// Init establishes the boot-time mapping: identity
// maps [0, end) and additionally maps the same physical range at
// [mem.KernelBase, mem.KernelBase+end) with FlagGlobal set, then turns
// on paging. end is kernelEnd rounded up to a page, but never less than
// mem.KernelImageEnd-mem.KernelBase (4 MiB). The caller (the kernel's boot sequence) must install the real
// frame allocator with SetFrameAllocator before calling Init; Init itself
// only consumes that hook, the same way it is consumed later by Map.
func Init(kernelEnd uintptr) *kernel.Error {
	flushTLBEntryFn = cpu.FlushTLBEntry
	cpuFlushAllFn = func() { switchPDFn(uintptr(activePDFn())) }
	enablePagingFn = cpu.EnablePaging

	pdFrame, err := frameAllocator()
	if err != nil {
		return err
	}
	for i := uintptr(0); i < 1024; i++ {
		*pdeAt(pdFrame.Address(), i) = 0
	}

	kernelAS = AddressSpace{pdFrame: pdFrame}

	lastPage := uintptr(kernelEnd) / uintptr(mem.PageSize)
	if uintptr(kernelEnd)%uintptr(mem.PageSize) != 0 {
		lastPage++
	}
	if minPages := (mem.KernelImageEnd - mem.KernelBase) / uintptr(mem.PageSize); lastPage < minPages {
		lastPage = minPages
	}

	if err := identityMapLowMem(pdFrame, lastPage); err != nil {
		return err
	}

	switchPDFn(pdFrame.Address())
	enablePagingFn()

	return nil
}

// maxBootPTs bounds the number of distinct page tables identityMapLowMem can
// track. This runs before the kernel heap exists, so nothing in this path
// may allocate through the Go runtime; a fixed-size linear lookup stands in
// for a map. The boot image is assumed to span at most maxBootPTs page
// tables per install() call (16MiB at 4MiB/PDE).
const maxBootPTs = 4

// identityMapLowMem builds the page tables for Init directly (bypassing Map,
// which assumes paging is already active and the recursive trick is already
// usable) covering [0, pageCount*PageSize) at both identity and high-half
// virtual addresses.
func identityMapLowMem(pdFrame pmm.Frame, pageCount uintptr) *kernel.Error {
	pdBase := pdFrame.Address()

	recurseEntry := (*pageTableEntry)(ptPtrFn(pdBase + recursiveSlot<<2))
	*recurseEntry = 0
	recurseEntry.SetFrame(pdFrame)
	recurseEntry.SetFlags(FlagPresent | FlagRW)

	var pdIndices [maxBootPTs]uintptr
	var ptFrames [maxBootPTs]pmm.Frame
	numPTs := 0

	install := func(virtBase uintptr) *kernel.Error {
		for page := uintptr(0); page < pageCount; page++ {
			virt := virtBase + page*uintptr(mem.PageSize)
			pdIdx := pdIndex(virt)

			var ptFrame pmm.Frame
			found := false
			for k := 0; k < numPTs; k++ {
				if pdIndices[k] == pdIdx {
					ptFrame, found = ptFrames[k], true
					break
				}
			}
			if !found {
				if numPTs == maxBootPTs {
					return errOutOfMemory
				}
				f, err := frameAllocator()
				if err != nil {
					return err
				}
				for e := uintptr(0); e < 1024; e++ {
					*pdeAt(f.Address(), e) = 0
				}
				pdIndices[numPTs], ptFrames[numPTs] = pdIdx, f
				numPTs++
				ptFrame = f

				pde := (*pageTableEntry)(ptPtrFn(pdBase + pdIdx<<2))
				*pde = 0
				pde.SetFrame(ptFrame)
				pde.SetFlags(FlagPresent | FlagRW)
			}

			pte := (*pageTableEntry)(ptPtrFn(ptFrame.Address() + ptIndex(virt)<<2))
			*pte = 0
			pte.SetFrame(pmm.Frame(page))
			pte.SetFlags(FlagPresent | FlagRW | FlagGlobal)
		}
		return nil
	}

	if err := install(0); err != nil {
		return err
	}
	// The high-half alias uses a distinct PDE index from the identity
	// range, so it needs its own page tables even though every PTE ends
	// up pointing at the same physical frame as its identity-mapped
	// counterpart.
	numPTs = 0
	if err := install(mem.KernelBase); err != nil {
		return err
	}

	return nil
}
