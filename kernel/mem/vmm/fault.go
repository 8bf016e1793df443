package vmm

import (
	"ringzero/kernel"
	"ringzero/kernel/mem"
	"ringzero/kernel/mem/pmm"
)

// errUnrecoverableFault is returned for any page fault HandlePageFault
// cannot resolve on its own; the caller (the kernel's exception dispatch)
// is expected to terminate the faulting process.
var errUnrecoverableFault = &kernel.Error{Module: "vmm", Message: "unrecoverable page fault"}

// scratchPage is a single kernel-only virtual page reserved for temporarily
// mapping a freshly allocated frame so a copy-on-write fault can populate it
// before installing it in the faulting page's own mapping; New uses it the
// same way to fill in a fresh page directory.
var scratchPage = PageFromAddress(mem.KernelHeapBase - uintptr(mem.PageSize))

// mapScratchFn, unmapScratchFn and scratchAddrFn together install/remove the
// temporary mapping HandlePageFault copies through and report its address.
// They are split out as their own seam (rather than calling Map/Unmap and
// scratchPage.Address() directly) so tests can redirect the copy to a plain
// host buffer instead of the unmapped high virtual address scratchPage
// names outside a real i386 paging setup.
var (
	mapScratchFn   = func(f pmm.Frame) *kernel.Error { return Map(scratchPage, f, FlagRW) }
	unmapScratchFn = func() *kernel.Error { return Unmap(scratchPage) }
	scratchAddrFn  = scratchPage.Address
)

// HandlePageFault resolves a page fault at faultAddr, the only
// recoverable case: a write to a page that clone_for_fork marked
// FlagCopyOnWrite. It allocates a private frame, copies the shared page's
// contents into it and remaps the faulting page writable. Any other fault
// (access to an unmapped page, a write to a page that is read-only for a
// reason other than CoW, or a non-write fault) is reported back as
// errUnrecoverableFault for the caller to turn into process termination.
func HandlePageFault(faultAddr uintptr, writeFault bool) *kernel.Error {
	page := PageFromAddress(faultAddr)

	pde := pdeFor(page.Address())
	if !pde.HasFlags(FlagPresent) {
		return errUnrecoverableFault
	}
	pte := pteFor(page.Address())
	if !pte.HasFlags(FlagPresent) {
		return errUnrecoverableFault
	}

	if !writeFault || pte.HasFlags(FlagRW) || !pte.HasFlags(FlagCopyOnWrite) {
		return errUnrecoverableFault
	}

	newFrame, err := frameAllocator()
	if err != nil {
		return err
	}

	if err := mapScratchFn(newFrame); err != nil {
		return err
	}
	mem.Memcopy(page.Address(), scratchAddrFn(), uintptr(mem.PageSize))
	if err := unmapScratchFn(); err != nil {
		return err
	}

	pte.ClearFlags(FlagCopyOnWrite)
	pte.SetFlags(FlagPresent | FlagRW)
	pte.SetFrame(newFrame)
	flushTLBEntryFn(page.Address())
	return nil
}
