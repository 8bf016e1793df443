package proc

import (
	"unsafe"

	"ringzero/kernel"
	"ringzero/kernel/mem/heap"
	"ringzero/kernel/sync"
)

var (
	ErrNoSuchProcess = kernel.ErrNoSuchProcess
	ErrOutOfMemory   = kernel.ErrOutOfMemory
	ErrInvalidParam  = kernel.ErrInvalidParameter

	tableLock sync.Spinlock
	table     = map[uint32]*PCB{}
	nextPid   = uint32(2) // 0: idle, 1: init
)

// allocPCB returns a zeroed PCB allocated from the kernel heap: PCBs live
// on the kernel heap. The process table itself (the map
// indexing live PCBs by pid) is ordinary kernel-side bookkeeping, not a
// resource a user process owns, so it lives in normal Go memory.
func allocPCB() (*PCB, *kernel.Error) {
	addr, err := heap.Kzalloc(unsafe.Sizeof(PCB{}))
	if err != nil {
		return nil, err
	}
	return (*PCB)(unsafe.Pointer(addr)), nil
}

// freePCB returns a PCB's backing memory to the kernel heap. Callers must
// have already removed it from the process table.
func freePCB(p *PCB) {
	heap.Kfree(uintptr(unsafe.Pointer(p)))
}

// register assigns the next pid (or a caller-provided reserved one for
// idle/init) and inserts p into the process table.
func register(p *PCB, reservedPid uint32, reserved bool) {
	tableLock.Acquire()
	defer tableLock.Release()

	if reserved {
		p.Pid = reservedPid
	} else {
		p.Pid = nextPid
		nextPid++
	}
	table[p.Pid] = p
}

// Lookup returns the live PCB for pid, or ErrNoSuchProcess.
func Lookup(pid uint32) (*PCB, *kernel.Error) {
	tableLock.Acquire()
	defer tableLock.Release()

	p, ok := table[pid]
	if !ok {
		return nil, ErrNoSuchProcess
	}
	return p, nil
}

// Count returns the number of PCBs currently registered, live or zombie.
func Count() int {
	tableLock.Acquire()
	defer tableLock.Release()
	return len(table)
}

// remove deletes pid from the process table; used once a zombie has been
// reaped.
func remove(pid uint32) {
	tableLock.Acquire()
	defer tableLock.Release()
	delete(table, pid)
}

// addChild links childPid into parent's ChildPids, returning
// ErrInvalidParam if the parent's table is already full.
func addChild(parent *PCB, childPid uint32) *kernel.Error {
	if parent.ChildCount >= MaxChildren {
		return ErrInvalidParam
	}
	parent.ChildPids[parent.ChildCount] = childPid
	parent.ChildCount++
	return nil
}

// removeChild drops childPid from parent's ChildPids, compacting the slice.
func removeChild(parent *PCB, childPid uint32) {
	for i := 0; i < parent.ChildCount; i++ {
		if parent.ChildPids[i] == childPid {
			copy(parent.ChildPids[i:parent.ChildCount-1], parent.ChildPids[i+1:parent.ChildCount])
			parent.ChildCount--
			return
		}
	}
}
