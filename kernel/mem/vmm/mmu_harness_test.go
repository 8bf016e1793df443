package vmm

import "unsafe"

// fakeMMU backs the recursive page-directory trick with plain Go memory so
// Map/Unmap/Translate/CloneForFork can be exercised without real i386
// paging hardware. It models every page directory and page table as a
// [1024]pageTableEntry keyed by an arbitrary "frame number" (these numbers
// play the same role pmm.Frame values do in production, but need not
// correspond to any real address) and resolves a virtual address the same
// way the real two-level MMU would: walk the active PD's entry for the
// address's top 10 bits to a frame, walk that frame (viewed as a page
// table) using the next 10 bits to a second frame, then index the low 10
// bits into that frame viewed as an entry array. This reproduces the
// recursive self-mapping trick faithfully, including withMapped's
// temporary re-aliasing of the active PD's own recursive slot.
type fakeMMU struct {
	tables   map[uintptr]*[1024]pageTableEntry
	nextID   uintptr
	activePD uintptr
}

func newFakeMMU() *fakeMMU {
	return &fakeMMU{tables: map[uintptr]*[1024]pageTableEntry{}}
}

func (m *fakeMMU) allocTable() uintptr {
	m.nextID++
	m.tables[m.nextID] = &[1024]pageTableEntry{}
	return m.nextID
}

func (m *fakeMMU) allocPD() uintptr { return m.allocTable() }
func (m *fakeMMU) allocPT() uintptr { return m.allocTable() }

func (m *fakeMMU) table(id uintptr) *[1024]pageTableEntry {
	t, ok := m.tables[id]
	if !ok {
		panic("fakeMMU: reference to an unallocated frame")
	}
	return t
}

func (m *fakeMMU) ptr(addr uintptr) unsafe.Pointer {
	pdIdx := (addr >> 22) & 0x3FF
	ptIdx := (addr >> 12) & 0x3FF
	cellIdx := (addr >> 2) & 0x3FF

	pde := m.table(m.activePD)[pdIdx]
	pte := m.table(uintptr(pde.Frame()))[ptIdx]
	cell := &m.table(uintptr(pte.Frame()))[cellIdx]
	return unsafe.Pointer(cell)
}
