package syscall

import (
	"testing"

	"ringzero/kernel/irq"
	"ringzero/kernel/proc"
)

func resetStats(t *testing.T) {
	t.Helper()
	orig := stats
	t.Cleanup(func() { stats = orig })
	stats = Stats{}
}

func withSeams(t *testing.T, caller *proc.PCB) {
	t.Helper()
	origCurrent := CurrentFn
	origTick := TickCountFn
	origYield := YieldFn
	t.Cleanup(func() {
		CurrentFn = origCurrent
		TickCountFn = origTick
		YieldFn = origYield
	})
	CurrentFn = func() *proc.PCB { return caller }
	TickCountFn = nil
	YieldFn = nil
}

func TestDispatchNoCurrentProcessReportsNoSuchProcess(t *testing.T) {
	resetStats(t)
	withSeams(t, nil)

	regs := &irq.Regs{EAX: SysGetpid}
	Dispatch(regs, &irq.Frame{})

	if int32(regs.EAX) != int32(ErrnoNoSuchProcess) {
		t.Fatalf("expected ErrnoNoSuchProcess; got %d", int32(regs.EAX))
	}
	if stats.Total != 1 {
		t.Fatalf("expected the total counter to increment even without a caller; got %d", stats.Total)
	}
}

func TestDispatchUnknownCallNumberIsTotal(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 5}
	withSeams(t, caller)

	regs := &irq.Regs{EAX: 999}
	Dispatch(regs, &irq.Frame{})

	if int32(regs.EAX) != int32(ErrnoInvalidSyscall) {
		t.Fatalf("expected ErrnoInvalidSyscall; got %d", int32(regs.EAX))
	}
	if stats.Total != 1 {
		t.Fatalf("expected total to increment once; got %d", stats.Total)
	}
	for i, c := range stats.PerCall {
		if c != 0 {
			t.Fatalf("expected no per-call counter to move for an unknown call; call %d has %d", i, c)
		}
	}
}

func TestDispatchGetpidReturnsCallerPid(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 42}
	withSeams(t, caller)

	regs := &irq.Regs{EAX: SysGetpid}
	Dispatch(regs, &irq.Frame{})

	if regs.EAX != 42 {
		t.Fatalf("expected EAX == 42; got %d", regs.EAX)
	}
	if stats.PerCall[SysGetpid] != 1 {
		t.Fatalf("expected getpid's per-call counter to be 1; got %d", stats.PerCall[SysGetpid])
	}
}

func TestDispatchStubCallsReturnInvalidSyscall(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 1}
	withSeams(t, caller)

	for _, n := range []uint32{SysRead, SysOpen, SysClose} {
		regs := &irq.Regs{EAX: n}
		Dispatch(regs, &irq.Frame{})
		if int32(regs.EAX) != int32(ErrnoInvalidSyscall) {
			t.Fatalf("expected call %d to report invalid_syscall; got %d", n, int32(regs.EAX))
		}
	}
}

func TestSysYieldInvokesYieldFnAndReturnsZero(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 1}
	withSeams(t, caller)

	var yielded bool
	YieldFn = func() { yielded = true }

	regs := &irq.Regs{EAX: SysYield}
	Dispatch(regs, &irq.Frame{})

	if !yielded {
		t.Fatal("expected sys_yield to invoke YieldFn")
	}
	if regs.EAX != 0 {
		t.Fatalf("expected EAX == 0; got %d", regs.EAX)
	}
}

func TestSysSleepRejectsOversizeDuration(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 1}
	withSeams(t, caller)

	regs := &irq.Regs{EAX: SysSleep, EBX: maxSleepMs + 1}
	Dispatch(regs, &irq.Frame{})

	if int32(regs.EAX) != int32(ErrnoInvalidParam) {
		t.Fatalf("expected ErrnoInvalidParam; got %d", int32(regs.EAX))
	}
}

func TestSysSleepBusyWaitsUntilTickTarget(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 1}
	withSeams(t, caller)

	tick := uint64(0)
	TickCountFn = func() uint64 { return tick }
	var yieldCalls int
	YieldFn = func() {
		yieldCalls++
		tick++
	}

	regs := &irq.Regs{EAX: SysSleep, EBX: 30} // 30ms == 3 ticks at 100Hz
	Dispatch(regs, &irq.Frame{})

	if regs.EAX != 0 {
		t.Fatalf("expected EAX == 0; got %d", regs.EAX)
	}
	if yieldCalls != 3 {
		t.Fatalf("expected sleep to yield exactly 3 times; got %d", yieldCalls)
	}
}

func TestSysWriteRejectsUnsupportedFD(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 1}
	withSeams(t, caller)

	regs := &irq.Regs{EAX: SysWrite, EBX: 2, ECX: 0, EDX: 5}
	Dispatch(regs, &irq.Frame{})

	if int32(regs.EAX) != int32(ErrnoInvalidParam) {
		t.Fatalf("expected ErrnoInvalidParam for fd != 1; got %d", int32(regs.EAX))
	}
}

func TestSysWriteZeroCountReturnsZero(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 1}
	withSeams(t, caller)

	regs := &irq.Regs{EAX: SysWrite, EBX: 1, ECX: 0, EDX: 0}
	Dispatch(regs, &irq.Frame{})

	if regs.EAX != 0 {
		t.Fatalf("expected EAX == 0 for count == 0; got %d", regs.EAX)
	}
}

func TestSysWriteRejectsOversizeCount(t *testing.T) {
	resetStats(t)
	caller := &proc.PCB{Pid: 1}
	withSeams(t, caller)

	regs := &irq.Regs{EAX: SysWrite, EBX: 1, ECX: 0, EDX: maxWriteCount + 1}
	Dispatch(regs, &irq.Frame{})

	if int32(regs.EAX) != int32(ErrnoInvalidParam) {
		t.Fatalf("expected ErrnoInvalidParam for an oversize count; got %d", int32(regs.EAX))
	}
}

func TestTranslatePrintable(t *testing.T) {
	cases := map[byte]byte{
		'a': 'a', '\n': '\n', '\t': ' ', 0x01: ' ', 0x7F: ' ',
	}
	for in, want := range cases {
		if got := translatePrintable(in); got != want {
			t.Errorf("translatePrintable(%q) = %q, want %q", in, got, want)
		}
	}
}
