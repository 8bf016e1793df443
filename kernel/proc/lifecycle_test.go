package proc

import (
	"testing"

	"ringzero/kernel"
	"ringzero/kernel/mem/vmm"
)

// withFakeHardware redirects every lifecycle hook that touches the live MMU
// or the kernel heap's real arena to an in-memory fake, so Fork/Exit/Wait's
// process-table bookkeeping can be driven through the real entry points
// instead of hand-built fixtures.
func withFakeHardware(t *testing.T) {
	t.Helper()
	origAllocPCB := allocPCBFn
	origNewAS := newAddressSpaceFn
	origCloneAS := cloneAddressSpaceFn
	origAllocStack := allocKernelStackFn
	origActivate := activateFn
	origTeardown := teardownLowHalfFn
	t.Cleanup(func() {
		allocPCBFn = origAllocPCB
		newAddressSpaceFn = origNewAS
		cloneAddressSpaceFn = origCloneAS
		allocKernelStackFn = origAllocStack
		activateFn = origActivate
		teardownLowHalfFn = origTeardown
	})

	allocPCBFn = func() (*PCB, *kernel.Error) { return &PCB{}, nil }
	newAddressSpaceFn = func() (vmm.AddressSpace, *kernel.Error) { return vmm.AddressSpace{}, nil }
	cloneAddressSpaceFn = func(vmm.AddressSpace) (vmm.AddressSpace, *kernel.Error) { return vmm.AddressSpace{}, nil }

	stacks := map[uintptr][]byte{}
	var nextStack uintptr = 1
	allocKernelStackFn = func(size, align uintptr) (uintptr, *kernel.Error) {
		buf := make([]byte, size)
		addr := nextStack
		nextStack++
		stacks[addr] = buf
		return addr, nil
	}
	activateFn = func(vmm.AddressSpace) {}
	teardownLowHalfFn = func(*PCB) {}
}

// TestForkExitWaitRoundTrip drives a real Fork, Exit and Wait end to end: the
// child's EAX is 0, the parent's EAX is the child's pid, and the parent's
// first Wait collects the exit code while the second sees the child gone
// from the table.
func TestForkExitWaitRoundTrip(t *testing.T) {
	resetTable(t)
	withFakeHardware(t)

	parent := newTestPCB("parent")
	register(parent, 0, false)
	parent.AddressSpace = vmm.AddressSpace{}

	child, err := Fork(parent)
	if err != nil {
		t.Fatalf("Fork: unexpected error: %v", err)
	}

	if child.Registers.EAX != 0 {
		t.Fatalf("expected child EAX == 0; got %d", child.Registers.EAX)
	}
	if parent.Registers.EAX != child.Pid {
		t.Fatalf("expected parent EAX == child pid %d; got %d", child.Pid, parent.Registers.EAX)
	}
	if parent.ChildCount != 1 || parent.ChildPids[0] != child.Pid {
		t.Fatalf("expected child %d linked into parent's ChildPids", child.Pid)
	}

	Exit(child, 42)

	if got, err := Lookup(child.Pid); err != nil || got.State != Zombie {
		t.Fatalf("expected child to remain a reapable zombie after Exit; got %+v, err=%v", got, err)
	}
	if parent.ChildCount != 1 {
		t.Fatalf("Exit must not unlink the child before it is reaped; ChildCount=%d", parent.ChildCount)
	}

	exitCode, reapedPid, werr := Wait(parent, int64(child.Pid))
	if werr != nil {
		t.Fatalf("Wait: unexpected error: %v", werr)
	}
	if exitCode != 42 || reapedPid != child.Pid {
		t.Fatalf("expected exitCode=42 reapedPid=%d; got %d,%d", child.Pid, exitCode, reapedPid)
	}
	if _, err := Lookup(child.Pid); err != ErrNoSuchProcess {
		t.Fatal("expected the reaped child to be removed from the process table")
	}

	if _, _, err := Wait(parent, int64(child.Pid)); err != ErrNoSuchProcess {
		t.Fatalf("expected a second Wait for the same pid to report ErrNoSuchProcess, not block forever; got %v", err)
	}
}

// TestForkDuplicatesOpenFileDescriptors checks that a forked child shares
// its parent's open descriptors via Dup rather than a bare struct copy.
func TestForkDuplicatesOpenFileDescriptors(t *testing.T) {
	resetTable(t)
	withFakeHardware(t)

	parent := newTestPCB("parent")
	register(parent, 0, false)
	parent.FDTable[0].RefCount = 1

	child, err := Fork(parent)
	if err != nil {
		t.Fatalf("Fork: unexpected error: %v", err)
	}
	if child.FDTable[0].RefCount != 2 {
		t.Fatalf("expected Dup to bump RefCount to 2; got %d", child.FDTable[0].RefCount)
	}
}
