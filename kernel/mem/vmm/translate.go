package vmm

import "ringzero/kernel"

// Translate returns the physical address that corresponds to virtAddr, or
// ErrInvalidMapping if no PDE/PTE chain maps it.
func Translate(virtAddr uintptr) (uintptr, *kernel.Error) {
	pde := pdeFor(virtAddr)
	if !pde.HasFlags(FlagPresent) {
		return 0, ErrInvalidMapping
	}

	pte := pteFor(virtAddr)
	if !pte.HasFlags(FlagPresent) {
		return 0, ErrInvalidMapping
	}

	offset := virtAddr & (uintptr(1)<<12 - 1)
	return pte.Frame().Address() + offset, nil
}
