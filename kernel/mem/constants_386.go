// +build 386 amd64

package mem

const (
	// PointerShift is equal to log2(unsafe.Sizeof(uintptr)) for a 32-bit
	// pointer. The pointer size for this architecture is (1 << PointerShift).
	PointerShift = 2

	// PageShift is equal to log2(PageSize). Used to convert a physical or
	// virtual address to a frame/page number (shift right by PageShift)
	// and vice-versa.
	PageShift = 12

	// PageSize defines the system's page size in bytes.
	PageSize = Size(1 << PageShift)
)

// Address-space layout constants. These apply identically
// to every process's low half; the high half (KernelBase and up) is shared
// across all address spaces.
const (
	// UserReservedEnd marks the end of the low-NULL trap region; no
	// mapping is ever installed below this address.
	UserReservedEnd = uintptr(0x08000000)

	// UserCodeBase is where a freshly exec'd program's code segment starts.
	UserCodeBase = uintptr(0x08000000)

	// UserHeapBase is where a process's heap begins; it grows up.
	UserHeapBase = uintptr(0x40000000)

	// UserStackTop is the first byte above the user stack; ESP is
	// initialized to UserStackTop-4 so that the first push lands inside
	// the mapped region. The stack grows down from here.
	UserStackTop = uintptr(0xC0000000)

	// UserStackBase is the lowest address of the (default-sized) user
	// stack region.
	UserStackBase = uintptr(0xBF000000)

	// KernelBase is the start of the shared high half: the kernel image
	// identity mapping and the kernel heap arena both live above this
	// address in every address space.
	KernelBase = uintptr(0xC0000000)

	// KernelImageEnd is the end of the identity-mapped kernel image
	// range established during early boot (see kernel/mem/vmm.Init).
	KernelImageEnd = uintptr(0xC0400000)

	// KernelHeapBase is the start of the kernel heap arena (see
	// kernel/mem/heap).
	KernelHeapBase = uintptr(0xD0000000)

	// KernelHeapMax is the hard upper bound on the kernel heap arena.
	KernelHeapMax = Size(256 * Mb)

	// KernelHeapInitial is the arena size established at boot.
	KernelHeapInitial = Size(1 * Mb)
)
