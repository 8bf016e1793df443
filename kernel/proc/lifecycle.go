package proc

import (
	"unsafe"

	"ringzero/kernel"
	"ringzero/kernel/mem"
	"ringzero/kernel/mem/heap"
	"ringzero/kernel/mem/pmm"
	"ringzero/kernel/mem/pmm/allocator"
	"ringzero/kernel/mem/vmm"
)

const (
	defaultKernelStackSize = uintptr(16 * 1024)
	defaultUserStackSize   = uintptr(8 * 1024)
	kernelStackAlign       = uintptr(16)
)

// EnqueueFn is set by the kernel's boot sequence to sched.Enqueue. proc
// cannot import sched directly (sched imports proc for *PCB), so every
// lifecycle operation that needs to make a PCB schedulable goes through
// this hook instead.
var EnqueueFn func(*PCB)

// The hooks below wrap every call in this file that touches the live MMU or
// the kernel heap's real arena. Tests in this package swap them out the
// same way vmm and heap swap out their own hardware-facing seams, so
// Fork/Exit/Wait can be driven end to end without a booted kernel under
// them.
var (
	allocPCBFn          = allocPCB
	newAddressSpaceFn   = vmm.New
	cloneAddressSpaceFn = vmm.CloneForFork
	allocKernelStackFn  = func(size, align uintptr) (uintptr, *kernel.Error) { return heap.Kmalloc(size, align) }
	activateFn          = func(as vmm.AddressSpace) { as.Activate() }
	teardownLowHalfFn   = teardownLowHalf
)

// SliceForLevel returns the timer-tick quantum for MLFQ priority level
// level.
func SliceForLevel(level int) uint32 {
	ticks := [5]uint32{1, 2, 4, 8, 16}
	if level < 0 {
		level = 0
	}
	if level > 4 {
		level = 4
	}
	return ticks[level]
}

// Create builds a kernel-privilege PCB: a fresh address space
// with only the shared kernel high half mapped, a kernel stack, and a
// register context ready to start executing at entry in ring 0.
func Create(name string, entry uintptr) (*PCB, *kernel.Error) {
	return createKernel(name, entry, 0, false)
}

// CreateIdle is Create specialized for the kernel's one well-known kernel-
// privilege process: pid 0, the idle loop, never selected by name after
// boot. kmain calls this exactly once, before any other process exists.
func CreateIdle(entry uintptr) (*PCB, *kernel.Error) {
	return createKernel("idle", entry, 0, true)
}

func createKernel(name string, entry uintptr, reservedPid uint32, reserved bool) (*PCB, *kernel.Error) {
	p, err := allocPCBFn()
	if err != nil {
		return nil, err
	}
	p.SetName(name)
	p.Privilege = PrivilegeKernel
	p.State = Created
	p.WaitingForChild = -1

	as, err := newAddressSpaceFn()
	if err != nil {
		freePCB(p)
		return nil, err
	}
	p.AddressSpace = as

	stackAddr, err := allocKernelStackFn(defaultKernelStackSize, kernelStackAlign)
	if err != nil {
		freePCB(p)
		return nil, err
	}
	p.KernelStack = stackAddr
	p.KernelStackSz = defaultKernelStackSize

	p.Registers = RegisterContext{
		EIP:    uint32(entry),
		ESP:    uint32(stackAddr + defaultKernelStackSize),
		CS:     KernelCodeSelector,
		EFlags: eflagsIF1,
	}
	p.PriorityLevel = 0
	p.TimeSliceRemaining = SliceForLevel(0)

	register(p, reservedPid, reserved)
	readyAndEnqueue(p)
	return p, nil
}

// CreateUser builds a user-privilege PCB from img: code and
// data pages copied in read+exec/read+write+user, a user stack, and a
// register context that resumes in ring 3.
func CreateUser(name string, img Image) (*PCB, *kernel.Error) {
	return createUser(name, img, 0, false)
}

// CreateInit is CreateUser specialized for the kernel's other well-known
// process: pid 1, the root of the reparenting tree every orphaned process
// lands on. kmain calls this exactly once, right after
// sched.Init brings up idle.
func CreateInit(img Image) (*PCB, *kernel.Error) {
	return createUser("init", img, initPid, true)
}

func createUser(name string, img Image, reservedPid uint32, reserved bool) (*PCB, *kernel.Error) {
	p, err := allocPCBFn()
	if err != nil {
		return nil, err
	}
	p.SetName(name)
	p.Privilege = PrivilegeUser
	p.State = Created
	p.WaitingForChild = -1

	as, err := newAddressSpaceFn()
	if err != nil {
		freePCB(p)
		return nil, err
	}
	p.AddressSpace = as
	activateFn(as)

	if err := mapUserImage(img); err != nil {
		freePCB(p)
		return nil, err
	}

	stackTop, err := mapUserStack(defaultUserStackSize)
	if err != nil {
		freePCB(p)
		return nil, err
	}

	stackAddr, err := allocKernelStackFn(defaultKernelStackSize, kernelStackAlign)
	if err != nil {
		freePCB(p)
		return nil, err
	}
	p.KernelStack = stackAddr
	p.KernelStackSz = defaultKernelStackSize

	p.Registers = RegisterContext{
		EIP:     uint32(mem.UserCodeBase + img.Entry),
		CS:      UserCodeSelector,
		EFlags:  eflagsIF1,
		UserESP: uint32(stackTop - 4),
		UserSS:  UserDataSelector,
		ESP:     uint32(stackAddr + defaultKernelStackSize),
	}
	p.PriorityLevel = 0
	p.TimeSliceRemaining = SliceForLevel(0)

	register(p, reservedPid, reserved)
	readyAndEnqueue(p)
	return p, nil
}

// mapUserImage copies img's code and data into freshly allocated,
// page-aligned user pages starting at mem.UserCodeBase. It must run with
// img's owning address space active.
func mapUserImage(img Image) *kernel.Error {
	if err := mapAndCopy(mem.UserCodeBase, img.Code, vmm.FlagUser); err != nil {
		return err
	}
	dataBase := mem.UserCodeBase + pagesFor(len(img.Code))*uintptr(mem.PageSize)
	if err := mapAndCopy(dataBase, img.Data, vmm.FlagUser|vmm.FlagRW); err != nil {
		return err
	}
	return nil
}

// mapAndCopy allocates enough pages at base to hold data, maps them with
// flags|FlagRW so the copy below can write through them, sets flags as the
// final permissions, and copies data in.
func mapAndCopy(base uintptr, data []byte, flags vmm.PageTableEntryFlag) *kernel.Error {
	pages := pagesFor(len(data))
	for i := uintptr(0); i < pages; i++ {
		frame, err := allocator.AllocFrame()
		if err != nil {
			return err
		}
		va := base + i*uintptr(mem.PageSize)
		if err := vmm.Map(vmm.PageFromAddress(va), frame, flags|vmm.FlagRW); err != nil {
			return err
		}
		mem.Memset(va, 0, uintptr(mem.PageSize))
	}
	if len(data) > 0 {
		copyBytes(base, data)
	}
	if flags&vmm.FlagRW == 0 {
		for i := uintptr(0); i < pages; i++ {
			va := base + i*uintptr(mem.PageSize)
			if err := vmm.ChangeFlags(va, flags); err != nil {
				return err
			}
		}
	}
	return nil
}

// copyBytes writes src into the mapped virtual range starting at dst.
func copyBytes(dst uintptr, src []byte) {
	for i, b := range src {
		*(*byte)(unsafe.Pointer(dst + uintptr(i))) = b
	}
}

// mapUserStack allocates sz bytes of user stack growing down from
// mem.UserStackTop and returns the stack's top address.
func mapUserStack(sz uintptr) (uintptr, *kernel.Error) {
	pages := pagesFor(int(sz))
	base := mem.UserStackTop - pages*uintptr(mem.PageSize)
	for i := uintptr(0); i < pages; i++ {
		frame, err := allocator.AllocFrame()
		if err != nil {
			return 0, err
		}
		va := base + i*uintptr(mem.PageSize)
		if err := vmm.Map(vmm.PageFromAddress(va), frame, vmm.FlagRW|vmm.FlagUser); err != nil {
			return 0, err
		}
	}
	return mem.UserStackTop, nil
}

// readyAndEnqueue transitions a freshly built PCB to Ready and hands it to
// the scheduler: a freshly created or forked process enters queue 0.
func readyAndEnqueue(p *PCB) {
	p.State = Ready
	if EnqueueFn != nil {
		EnqueueFn(p)
	}
}

// teardownLowHalf frees every user-space frame and every low-half page
// table frame back to the allocator (shared by Exec and Exit).
// p's address space must already be active.
func teardownLowHalf(p *PCB) {
	for va := uintptr(0); va < mem.KernelBase; va += uintptr(mem.PageSize) {
		if !vmm.IsMapped(va) {
			continue
		}
		physAddr, terr := vmm.Translate(va)
		if terr != nil {
			continue
		}
		if err := vmm.Unmap(vmm.PageFromAddress(va)); err != nil {
			continue
		}
		allocator.FreeFrame(pmm.FrameFromAddress(physAddr))
	}
}

// Fork clones parent into a new child PCB: a copy-on-write
// address space, a duplicated fd table, and a register context identical
// to parent's except for the syscall return value (0 in the child, the
// child's pid in the parent).
func Fork(parent *PCB) (*PCB, *kernel.Error) {
	child, err := allocPCBFn()
	if err != nil {
		return nil, err
	}
	child.SetName(parent.NameString())
	child.Privilege = parent.Privilege
	child.State = Created
	child.WaitingForChild = -1

	as, err := cloneAddressSpaceFn(parent.AddressSpace)
	if err != nil {
		freePCB(child)
		return nil, err
	}
	child.AddressSpace = as

	stackAddr, err := allocKernelStackFn(defaultKernelStackSize, kernelStackAlign)
	if err != nil {
		freePCB(child)
		return nil, err
	}
	child.KernelStack = stackAddr
	child.KernelStackSz = defaultKernelStackSize

	child.Registers = parent.Registers
	child.Registers.EAX = 0

	child.FDTable = parent.FDTable
	for i := range child.FDTable {
		if child.FDTable[i].RefCount > 0 {
			child.FDTable[i] = parent.FDTable[i].Dup()
		}
	}

	child.PriorityLevel = parent.PriorityLevel
	child.TimeSliceRemaining = SliceForLevel(child.PriorityLevel)
	child.HasParent = true
	child.ParentPid = parent.Pid

	register(child, 0, false)

	if err := addChild(parent, child.Pid); err != nil {
		remove(child.Pid)
		freePCB(child)
		return nil, err
	}

	parent.Registers.EAX = child.Pid

	readyAndEnqueue(child)
	return child, nil
}

// Exec replaces p's user-space image with img: every low-half
// mapping is torn down and freed, a fresh image is mapped in, and p's
// register context is reset to a user-mode entry. File descriptors and
// pid survive unchanged.
func Exec(p *PCB, img Image) *kernel.Error {
	activateFn(p.AddressSpace)
	teardownLowHalfFn(p)

	if err := mapUserImage(img); err != nil {
		return err
	}
	stackTop, err := mapUserStack(defaultUserStackSize)
	if err != nil {
		return err
	}

	p.Registers = RegisterContext{
		EIP:     uint32(mem.UserCodeBase + img.Entry),
		CS:      UserCodeSelector,
		EFlags:  eflagsIF1,
		UserESP: uint32(stackTop - 4),
		UserSS:  UserDataSelector,
		ESP:     uint32(p.KernelStack + p.KernelStackSz),
	}
	return nil
}

// initPid is the well-known pid every orphaned child is reparented to
//.
const initPid = uint32(1)

// Exit terminates p: its children are reparented to init, its
// file descriptors are closed, its low-half memory and kernel stack are
// released, and its parent is woken if it was waiting on p or on any
// child. p stays in the table as a Zombie, still linked into its parent's
// ChildPids, until the parent calls Wait and reap removes it; Exit itself
// must never drop p from the parent's child list or the exit code can
// never be collected.
func Exit(p *PCB, exitCode int32) {
	p.ExitCode = exitCode
	p.State = Zombie

	if parent, perr := Lookup(p.ParentPid); perr == nil && p.HasParent {
		if parent.WaitingForChild == int64(p.Pid) || parent.WaitingForChild == 0 {
			parent.WaitingForChild = -1
			parent.State = Ready
			readyAndEnqueue(parent)
		}
	}

	for i := 0; i < p.ChildCount; i++ {
		if child, cerr := Lookup(p.ChildPids[i]); cerr == nil {
			child.ParentPid = initPid
			if init, ierr := Lookup(initPid); ierr == nil {
				addChild(init, child.Pid)
			}
		}
	}
	p.ChildCount = 0

	for i := range p.FDTable {
		if p.FDTable[i].RefCount > 0 {
			p.FDTable[i].Close()
		}
	}

	activateFn(p.AddressSpace)
	teardownLowHalfFn(p)
	heap.Kfree(p.KernelStack)
}

// reap finalizes a zombie child: unlinks it from parent's ChildPids, removes
// it from the table and frees its PCB. Callers must already hold the exit
// code they need.
func reap(parent *PCB, childPid uint32) {
	if child, err := Lookup(childPid); err == nil {
		removeChild(parent, childPid)
		remove(childPid)
		freePCB(child)
	}
}

// Wait implements blocking wait/waitpid: targetPid == 0 reaps
// any terminated child (or blocks the caller on any child); targetPid > 0
// reaps that specific child (or blocks on it), and reports
// ErrNoSuchProcess if it is not one of caller's children.
func Wait(caller *PCB, targetPid int64) (exitCode int32, reapedPid uint32, err *kernel.Error) {
	if targetPid > 0 {
		found := false
		for i := 0; i < caller.ChildCount; i++ {
			if caller.ChildPids[i] == uint32(targetPid) {
				found = true
				break
			}
		}
		if !found {
			return 0, 0, ErrNoSuchProcess
		}

		child, lerr := Lookup(uint32(targetPid))
		if lerr != nil {
			return 0, 0, ErrNoSuchProcess
		}
		if child.State == Zombie {
			exitCode, reapedPid = child.ExitCode, child.Pid
			reap(caller, child.Pid)
			return exitCode, reapedPid, nil
		}

		caller.WaitingForChild = targetPid
		caller.State = Blocked
		return 0, 0, nil
	}

	for i := 0; i < caller.ChildCount; i++ {
		if child, lerr := Lookup(caller.ChildPids[i]); lerr == nil && child.State == Zombie {
			exitCode, reapedPid = child.ExitCode, child.Pid
			reap(caller, child.Pid)
			return exitCode, reapedPid, nil
		}
	}

	if caller.ChildCount == 0 {
		return 0, 0, ErrNoSuchProcess
	}

	caller.WaitingForChild = 0
	caller.State = Blocked
	return 0, 0, nil
}
