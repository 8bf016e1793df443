// Package heap implements the kernel's dynamic memory allocator: an
// intrusive first-fit free-list over a growable arena above
// mem.KernelHeapBase. It backs kmalloc/kfree/krealloc and every
// higher layer (PCBs with their fd tables, kernel stacks) that needs
// memory once the kernel heap is up.
package heap

import (
	"unsafe"

	"ringzero/kernel"
	"ringzero/kernel/mem"
	"ringzero/kernel/mem/pmm"
	"ringzero/kernel/mem/vmm"
)

// FrameAllocatorFn is a function that can allocate a physical frame.
type FrameAllocatorFn func() (pmm.Frame, *kernel.Error)

// MapPageFn installs a single page mapping; its signature matches vmm.Map.
type MapPageFn func(vmm.Page, pmm.Frame, vmm.PageTableEntryFlag) *kernel.Error

var (
	// frameAllocator backs new arena pages; registered via
	// SetFrameAllocator by the kernel's boot sequence.
	frameAllocator FrameAllocatorFn

	// mapPageFn is swapped out by tests so arena growth can be exercised
	// without a real vmm/paging setup.
	mapPageFn MapPageFn = vmm.Map

	arenaBase uintptr
	arenaEnd  uintptr // first byte past the currently mapped arena
	tailAddr  uintptr // address of the last block's header, 0 if empty

	// maxArenaSize is the hard cap grow refuses to cross; overridden by
	// tests so they can exercise the cap without a 256MiB host buffer.
	maxArenaSize = mem.KernelHeapMax

	errOutOfMemory    = &kernel.Error{Module: "heap", Message: "out of memory"}
	errInvalidPointer = &kernel.Error{Module: "heap", Message: "pointer is not a live heap allocation"}
	errDoubleFree     = &kernel.Error{Module: "heap", Message: "double free"}
)

// SetFrameAllocator registers the physical frame allocator Init/Kmalloc use
// to back new arena pages.
func SetFrameAllocator(fn FrameAllocatorFn) {
	frameAllocator = fn
}

// blockAlign is the alignment every block boundary (and so every payload
// and every following header) is kept at. The kernel never asks kmalloc for
// an alignment wider than this (the widest caller, the kernel stack, wants
// 16 bytes), so honoring anything coarser than blockAlign would require
// per-allocation padding this design does not need.
const blockAlign = 16

// blockHeaderFields holds the header's actual data; blockHeader pads it out
// to a multiple of blockAlign so that a payload immediately following an
// aligned block start is itself always aligned, on any architecture's
// uintptr width (the field kmalloc_pages's i386 target needs 4 bytes for;
// the host arch this package's tests run under may need 8).
type blockHeaderFields struct {
	size mem.Size
	next uintptr
	free bool
}

const (
	rawHeaderSize = unsafe.Sizeof(blockHeaderFields{})
	headerPad     = (blockAlign - rawHeaderSize%blockAlign) % blockAlign
)

type blockHeader struct {
	blockHeaderFields
	_ [headerPad]byte
}

const headerSize = unsafe.Sizeof(blockHeader{})

func header(addr uintptr) *blockHeader {
	return (*blockHeader)(unsafe.Pointer(addr))
}

func alignUp(v, a uintptr) uintptr {
	return (v + a - 1) &^ (a - 1)
}

// Init establishes the arena's first block spanning mem.KernelHeapInitial
// bytes starting at mem.KernelHeapBase.
func Init() *kernel.Error {
	return initArena(mem.KernelHeapBase)
}

// initArena resets the allocator state and establishes the first block at
// base. Split out from Init so tests can point the arena at a real host
// buffer instead of the kernel's high virtual address.
func initArena(base uintptr) *kernel.Error {
	arenaBase = base
	arenaEnd = base
	tailAddr = 0
	return grow(mem.KernelHeapInitial)
}

// grow demand-maps by more bytes at the end of the arena and folds them
// into a trailing free block, extending the current tail block in place if
// it is already free and physically adjacent.
func grow(by mem.Size) *kernel.Error {
	if by == 0 {
		return nil
	}
	newEnd := arenaEnd + uintptr(by)
	if newEnd-arenaBase > uintptr(maxArenaSize) {
		return errOutOfMemory
	}

	for addr := arenaEnd; addr < newEnd; addr += uintptr(mem.PageSize) {
		frame, err := frameAllocator()
		if err != nil {
			return errOutOfMemory
		}
		if err := mapPageFn(vmm.PageFromAddress(addr), frame, vmm.FlagRW); err != nil {
			return err
		}
	}

	appendFreeBlock(arenaEnd, mem.Size(newEnd-arenaEnd))
	arenaEnd = newEnd
	return nil
}

func appendFreeBlock(addr uintptr, size mem.Size) {
	if tailAddr != 0 {
		tail := header(tailAddr)
		if tail.free && tailAddr+uintptr(tail.size) == addr {
			tail.size += size
			return
		}
		tail.next = addr
	}
	*header(addr) = blockHeader{blockHeaderFields: blockHeaderFields{size: size, free: true}}
	tailAddr = addr
}

// firstFit walks the free list looking for the first free block at least
// needed bytes long, splitting its tail into a new free block if the
// residue can hold a header plus at least 8 bytes.
func firstFit(needed uintptr) (uintptr, bool) {
	for addr := arenaBase; addr != 0; {
		h := header(addr)
		if h.free && uintptr(h.size) >= needed {
			split(addr, needed)
			h.free = false
			return addr + headerSize, true
		}
		addr = h.next
	}
	return 0, false
}

func split(addr uintptr, needed uintptr) {
	h := header(addr)
	residue := uintptr(h.size) - needed
	const minSplitResidue = uintptr(headerSize) + 8
	if residue < minSplitResidue {
		return
	}

	newAddr := addr + needed
	*header(newAddr) = blockHeader{blockHeaderFields: blockHeaderFields{size: mem.Size(residue), free: true, next: h.next}}
	h.size = mem.Size(needed)
	h.next = newAddr
	if tailAddr == addr {
		tailAddr = newAddr
	}
}

func mergeWithNext(addr uintptr, h *blockHeader) {
	if h.next == 0 {
		return
	}
	next := header(h.next)
	if !next.free || addr+uintptr(h.size) != h.next {
		return
	}
	if tailAddr == h.next {
		tailAddr = addr
	}
	h.size += next.size
	h.next = next.next
}

// Stats summarizes the arena's current occupancy.
type Stats struct {
	ArenaBase uintptr
	ArenaSize mem.Size
	Used      mem.Size
	Free      mem.Size
}

// GetStats walks the free list and reports how much of the arena is used
// versus free. Intended for diagnostics; O(n) in the number of blocks.
func GetStats() Stats {
	var s Stats
	s.ArenaBase = arenaBase
	s.ArenaSize = mem.Size(arenaEnd - arenaBase)
	for addr := arenaBase; addr != 0; {
		h := header(addr)
		if h.free {
			s.Free += h.size
		} else {
			s.Used += h.size
		}
		addr = h.next
	}
	return s
}
