package vmm

import (
	"testing"
	"unsafe"

	"ringzero/kernel"
	"ringzero/kernel/mem"
	"ringzero/kernel/mem/pmm"
)

// pageAlignedBuffer returns a page-sized window inside a larger host buffer
// that starts on a mem.PageSize boundary, so it can stand in for a real
// physical page's contents in tests without needing actual i386 paging.
func pageAlignedBuffer() []byte {
	raw := make([]byte, 2*uintptr(mem.PageSize))
	base := uintptr(unsafe.Pointer(&raw[0]))
	aligned := (base + uintptr(mem.PageSize) - 1) &^ (uintptr(mem.PageSize) - 1)
	offset := aligned - base
	return raw[offset : offset+uintptr(mem.PageSize) : offset+uintptr(mem.PageSize)]
}

func TestHandlePageFaultRecoversCopyOnWrite(t *testing.T) {
	withFakeMMU(t)
	defer func(origMap func(pmm.Frame) *kernel.Error, origUnmap func() *kernel.Error, origAddr func() uintptr) {
		mapScratchFn, unmapScratchFn, scratchAddrFn = origMap, origUnmap, origAddr
	}(mapScratchFn, unmapScratchFn, scratchAddrFn)

	origPage := pageAlignedBuffer()
	clonedPage := pageAlignedBuffer()
	for i := range origPage {
		origPage[i] = byte(i % 256)
	}

	origAddr := uintptr(unsafe.Pointer(&origPage[0]))
	clonedAddr := uintptr(unsafe.Pointer(&clonedPage[0]))

	page := PageFromAddress(origAddr)
	sharedFrame := pmm.Frame(0x42)
	if err := Map(page, sharedFrame, FlagRW|FlagUser); err != nil {
		t.Fatalf("Map failed: %v", err)
	}
	if err := ChangeFlags(page.Address(), (FlagUser|FlagCopyOnWrite)&^FlagRW); err != nil {
		t.Fatalf("ChangeFlags failed: %v", err)
	}

	mapScratchFn = func(pmm.Frame) *kernel.Error { return nil }
	unmapScratchFn = func() *kernel.Error { return nil }
	scratchAddrFn = func() uintptr { return clonedAddr }

	if err := HandlePageFault(origAddr+0x10, true); err != nil {
		t.Fatalf("expected the CoW fault to be recovered; got %v", err)
	}

	for i := range origPage {
		if clonedPage[i] != origPage[i] {
			t.Fatalf("expected the private copy to match the original page; mismatch at byte %d", i)
		}
	}

	pte := pteFor(page.Address())
	if pte.HasFlags(FlagCopyOnWrite) {
		t.Error("expected FlagCopyOnWrite to be cleared after recovery")
	}
	if !pte.HasFlags(FlagRW | FlagPresent) {
		t.Error("expected the page to be writable and present after recovery")
	}
	if pte.Frame() == sharedFrame {
		t.Error("expected the faulting page to be remapped to a private frame, not the shared one")
	}
}

func TestHandlePageFaultUnmappedAddress(t *testing.T) {
	withFakeMMU(t)

	if err := HandlePageFault(0x00401000, true); err != errUnrecoverableFault {
		t.Errorf("expected errUnrecoverableFault; got %v", err)
	}
}

func TestHandlePageFaultReadOnlyWithoutCopyOnWrite(t *testing.T) {
	withFakeMMU(t)

	page := PageFromAddress(0x00401000)
	if err := Map(page, pmm.Frame(0x42), FlagUser); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	if err := HandlePageFault(page.Address(), true); err != errUnrecoverableFault {
		t.Errorf("expected errUnrecoverableFault for a plain read-only page; got %v", err)
	}
}

func TestHandlePageFaultReadFault(t *testing.T) {
	withFakeMMU(t)

	page := PageFromAddress(0x00401000)
	if err := Map(page, pmm.Frame(0x42), (FlagUser|FlagCopyOnWrite)&^FlagRW); err != nil {
		t.Fatalf("Map failed: %v", err)
	}

	if err := HandlePageFault(page.Address(), false); err != errUnrecoverableFault {
		t.Errorf("expected a non-write fault on a CoW page to stay unrecovered; got %v", err)
	}
}

func TestScratchPageDoesNotOverlapHeap(t *testing.T) {
	if scratchPage.Address() >= mem.KernelHeapBase {
		t.Fatalf("expected scratchPage to sit below the kernel heap; got %#x", scratchPage.Address())
	}
}
