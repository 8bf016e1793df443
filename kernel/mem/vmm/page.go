package vmm

import "ringzero/kernel/mem"

// Page describes a virtual memory page index.
type Page uintptr

// Address returns the virtual address pointed to by this Page.
func (p Page) Address() uintptr {
	return uintptr(p) << mem.PageShift
}

// PageFromAddress returns the Page that contains the given virtual
// address, rounding down if the address is not page-aligned.
func PageFromAddress(virtAddr uintptr) Page {
	return Page((virtAddr & ^(uintptr(mem.PageSize) - 1)) >> mem.PageShift)
}

// pdIndex returns the 10-bit page-directory index for a virtual address.
func pdIndex(virtAddr uintptr) uintptr {
	return (virtAddr >> 22) & 0x3FF
}

// ptIndex returns the 10-bit page-table index for a virtual address.
func ptIndex(virtAddr uintptr) uintptr {
	return (virtAddr >> 12) & 0x3FF
}
