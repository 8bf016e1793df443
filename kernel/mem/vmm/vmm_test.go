package vmm

import (
	"testing"
	"unsafe"

	"ringzero/kernel"
	"ringzero/kernel/mem"
	"ringzero/kernel/mem/pmm"
)

// flatPhysMem backs ptPtrFn with a single host byte slice indexed directly
// by address. Init and identityMapLowMem dereference physical addresses
// directly (paging is not active yet, so virt == phys on real hardware);
// fakeMMU's recursive-walk simulation does not apply here, so this harness
// stands in for physical RAM instead.
type flatPhysMem struct {
	buf  []byte
	next uintptr
}

func newFlatPhysMem(frames int) *flatPhysMem {
	return &flatPhysMem{buf: make([]byte, frames*int(mem.PageSize))}
}

func (p *flatPhysMem) allocFrame() (pmm.Frame, *kernel.Error) {
	if (p.next+1)*uintptr(mem.PageSize) > uintptr(len(p.buf)) {
		return pmm.InvalidFrame, errOutOfMemory
	}
	f := pmm.Frame(p.next)
	p.next++
	return f, nil
}

func (p *flatPhysMem) ptr(addr uintptr) unsafe.Pointer {
	if addr >= uintptr(len(p.buf)) {
		panic("flatPhysMem: address out of range")
	}
	return unsafe.Pointer(&p.buf[addr])
}

func (p *flatPhysMem) entry(addr uintptr) *pageTableEntry {
	return (*pageTableEntry)(p.ptr(addr))
}

func withFlatPhysMem(t *testing.T, frames int) *flatPhysMem {
	t.Helper()
	p := newFlatPhysMem(frames)

	origPtr, origAlloc, origFlush := ptPtrFn, frameAllocator, flushTLBEntryFn
	origSwitch, origEnable, origCPUFlush := switchPDFn, enablePagingFn, cpuFlushAllFn
	ptPtrFn = p.ptr
	frameAllocator = p.allocFrame
	flushTLBEntryFn = func(uintptr) {}
	switchPDFn = func(uintptr) {}
	enablePagingFn = func() {}
	cpuFlushAllFn = func() {}

	t.Cleanup(func() {
		ptPtrFn, frameAllocator, flushTLBEntryFn = origPtr, origAlloc, origFlush
		switchPDFn, enablePagingFn, cpuFlushAllFn = origSwitch, origEnable, origCPUFlush
	})
	return p
}

func TestInitIdentityMapsLowMemory(t *testing.T) {
	p := withFlatPhysMem(t, 64)

	const kernelEnd = 3*uintptr(mem.PageSize) + 1
	if err := Init(kernelEnd); err != nil {
		t.Fatalf("Init failed: %v", err)
	}

	pdBase := kernelAS.Frame().Address()

	self := p.entry(pdBase + recursiveSlot<<2)
	if !self.HasFlags(FlagPresent | FlagRW) {
		t.Fatal("expected the recursive self-mapping entry to be installed")
	}
	if exp, got := kernelAS.Frame(), self.Frame(); exp != got {
		t.Errorf("expected the recursive entry to point back at the PD's own frame %v; got %v", exp, got)
	}

	for page := uintptr(0); page < 4; page++ {
		virt := page * uintptr(mem.PageSize)
		pde := p.entry(pdBase + pdIndex(virt)<<2)
		if !pde.HasFlags(FlagPresent) {
			t.Fatalf("expected PDE for identity page %d to be present", page)
		}
		pte := p.entry(pde.Frame().Address() + ptIndex(virt)<<2)
		if !pte.HasFlags(FlagPresent | FlagRW | FlagGlobal) {
			t.Errorf("expected identity PTE %d to be present+RW+global; got %v", page, pte)
		}
		if exp, got := pmm.Frame(page), pte.Frame(); exp != got {
			t.Errorf("expected identity page %d to map to frame %v; got %v", page, exp, got)
		}
	}

	for page := uintptr(0); page < 4; page++ {
		virt := mem.KernelBase + page*uintptr(mem.PageSize)
		pde := p.entry(pdBase + pdIndex(virt)<<2)
		if !pde.HasFlags(FlagPresent) {
			t.Fatalf("expected PDE for high-half page %d to be present", page)
		}
		pte := p.entry(pde.Frame().Address() + ptIndex(virt)<<2)
		if !pte.HasFlags(FlagPresent | FlagRW | FlagGlobal) {
			t.Errorf("expected high-half PTE %d to be present+RW+global; got %v", page, pte)
		}
		if exp, got := pmm.Frame(page), pte.Frame(); exp != got {
			t.Errorf("expected high-half page %d to alias frame %v; got %v", page, exp, got)
		}
	}
}

func TestInitAllocatorFailure(t *testing.T) {
	withFlatPhysMem(t, 0)

	if err := Init(uintptr(mem.PageSize)); err == nil {
		t.Fatal("expected Init to fail when the frame allocator is exhausted")
	}
}

func TestIdentityMapLowMemExceedsBootPTBudget(t *testing.T) {
	p := withFlatPhysMem(t, 1024)

	pdFrame, err := p.allocFrame()
	if err != nil {
		t.Fatalf("allocFrame failed: %v", err)
	}

	// Each PDE covers 4MiB (1024 pages); spanning more than maxBootPTs
	// worth of PDEs in a single install() call should hit the fixed-size
	// tracking array's bound and fail closed rather than overrun it.
	pageCount := uintptr(maxBootPTs+1) * 1024
	if err := identityMapLowMem(pdFrame, pageCount); err != errOutOfMemory {
		t.Fatalf("expected errOutOfMemory once more than %d page tables are needed; got %v", maxBootPTs, err)
	}
}
