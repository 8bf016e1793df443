package vmm

import "unsafe"

// recursiveSlot is the page-directory entry index that is always made to
// point back at the page directory itself. This is the classic i386
// "recursive page directory" trick, specialized here to the two-level
// i386 case instead of the four-level walk a 64-bit page table needs.
//
// With PDE[recursiveSlot] pointing at the PD's own frame, the MMU can be
// made to resolve the PD's raw bytes (viewing it as an array of PDEs) or
// any individual page table's raw bytes (viewing it as an array of PTEs),
// without ever needing a separate "physical memory window" mapping.
const recursiveSlot = 0x3FF

// pdView is the virtual address at which the currently active page
// directory's own entries can be read/written as a plain [1024]pageTableEntry
// array.
const pdView = (recursiveSlot << 22) | (recursiveSlot << 12)

// ptPtrFn returns a pointer to the given address. It is swapped out by
// tests so that the walk can be driven against host-memory fixtures instead
// of requiring an actual i386 MMU.
var ptPtrFn = func(addr uintptr) unsafe.Pointer {
	return unsafe.Pointer(addr)
}

// ptView returns the virtual address at which the page table referenced by
// PDE[pdeIndex] can be read/written as a plain [1024]pageTableEntry array.
func ptView(pdeIndex uintptr) uintptr {
	return (recursiveSlot << 22) | (pdeIndex << 12)
}

// pdeFor returns a pointer to the page directory entry governing virtAddr
// in the currently active address space.
func pdeFor(virtAddr uintptr) *pageTableEntry {
	addr := uintptr(pdView) + pdIndex(virtAddr)<<2
	return (*pageTableEntry)(ptPtrFn(addr))
}

// pteFor returns a pointer to the page table entry governing virtAddr,
// assuming the owning page table is present. Callers must check the PDE's
// FlagPresent bit first.
func pteFor(virtAddr uintptr) *pageTableEntry {
	addr := ptView(pdIndex(virtAddr)) + ptIndex(virtAddr)<<2
	return (*pageTableEntry)(ptPtrFn(addr))
}
