package heap

import (
	"ringzero/kernel"
	"ringzero/kernel/mem"
)

// Kmalloc allocates at least size bytes, growing the arena (doubling it, up
// to mem.KernelHeapMax) and retrying once if no free block fits. align is
// clamped to blockAlign: every block already starts blockAlign-aligned, so
// no caller in this kernel needs anything coarser.
func Kmalloc(size uintptr, align uintptr) (uintptr, *kernel.Error) {
	if size == 0 {
		size = 1
	}
	needed := alignUp(headerSize+size, blockAlign)

	if ptr, ok := firstFit(needed); ok {
		return ptr, nil
	}

	growBy := mem.Size(arenaEnd - arenaBase)
	if growBy == 0 {
		growBy = mem.KernelHeapInitial
	}
	if uintptr(growBy) < needed {
		growBy = mem.Size(alignUp(needed, uintptr(mem.PageSize)))
	}
	if err := grow(growBy); err != nil {
		return 0, err
	}

	if ptr, ok := firstFit(needed); ok {
		return ptr, nil
	}
	return 0, errOutOfMemory
}

// Kzalloc allocates size bytes and zeroes them before returning.
func Kzalloc(size uintptr) (uintptr, *kernel.Error) {
	ptr, err := Kmalloc(size, blockAlign)
	if err != nil {
		return 0, err
	}
	mem.Memset(ptr, 0, size)
	return ptr, nil
}

// KmallocPages allocates n pages' worth of heap space, for callers (such as
// a kernel stack) that think in whole pages rather than byte counts.
func KmallocPages(n uintptr) (uintptr, *kernel.Error) {
	return Kmalloc(n*uintptr(mem.PageSize), blockAlign)
}

// Kfree releases a block previously returned by Kmalloc/Kzalloc/Krealloc,
// merging it with its immediate successor if that block is free and
// physically adjacent. Pointers outside the arena are rejected, and
// freeing an already-free block is reported as a double free.
func Kfree(ptr uintptr) *kernel.Error {
	addr, err := blockAddrFor(ptr)
	if err != nil {
		return err
	}

	h := header(addr)
	if h.free {
		return errDoubleFree
	}
	h.free = true
	mergeWithNext(addr, h)
	return nil
}

// Krealloc resizes the block at ptr to newSize, returning the same pointer
// if the existing block already fits (splitting off any now-spare tail) or
// else allocating, copying and freeing the original block.
func Krealloc(ptr uintptr, newSize uintptr) (uintptr, *kernel.Error) {
	addr, err := blockAddrFor(ptr)
	if err != nil {
		return 0, err
	}

	h := header(addr)
	needed := alignUp(headerSize+newSize, blockAlign)
	if uintptr(h.size) >= needed {
		split(addr, needed)
		return ptr, nil
	}

	newPtr, err := Kmalloc(newSize, blockAlign)
	if err != nil {
		return 0, err
	}
	oldPayload := uintptr(h.size) - headerSize
	copySize := oldPayload
	if newSize < copySize {
		copySize = newSize
	}
	mem.Memcopy(ptr, newPtr, copySize)
	_ = Kfree(ptr)
	return newPtr, nil
}

// blockAddrFor validates that ptr is a live payload pointer inside the
// arena and returns the address of its header.
func blockAddrFor(ptr uintptr) (uintptr, *kernel.Error) {
	if ptr < arenaBase+headerSize || ptr >= arenaEnd {
		return 0, errInvalidPointer
	}
	return ptr - headerSize, nil
}
