package proc

import "ringzero/kernel/mem"

// Image is the in-memory program blob exec and CreateUser load from: there
// is no ELF-from-filesystem loading, so this stands in as the loader's only
// input. Code and Data are copied byte-for-byte
// into freshly allocated user pages; Entry is the virtual address execution
// resumes at, relative to mem.UserCodeBase.
type Image struct {
	Code  []byte
	Data  []byte
	Entry uintptr
}

// pagesFor returns the number of whole pages needed to hold n bytes.
func pagesFor(n int) uintptr {
	sz := uintptr(mem.PageSize)
	return (uintptr(n) + sz - 1) / sz
}
