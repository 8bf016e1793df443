package sched

import (
	"testing"

	"ringzero/kernel/proc"
)

func resetSched(t *testing.T) {
	t.Helper()
	for i := range queues {
		queues[i] = queue{}
	}
	current = nil
	idle = &proc.PCB{}
	tickCount = 0
	needResched = false

	origSwitch := contextSwitchFn
	origStack := setKernelStackFn
	t.Cleanup(func() {
		contextSwitchFn = origSwitch
		setKernelStackFn = origStack
	})
	contextSwitchFn = func(oldSP *uintptr, newSP uintptr) { *oldSP = newSP ^ 0xA5A5 }
	setKernelStackFn = func(uintptr) {}
}

func newPCB(level int) *proc.PCB {
	p := &proc.PCB{}
	p.PriorityLevel = level
	p.TimeSliceRemaining = proc.SliceForLevel(level)
	return p
}

func TestEnqueueSelectNextFIFOWithinLevel(t *testing.T) {
	resetSched(t)

	a, b := newPCB(0), newPCB(0)
	Enqueue(a)
	Enqueue(b)

	if got := SelectNext(); got != a {
		t.Fatal("expected FIFO order to return a first")
	}
	if got := SelectNext(); got != b {
		t.Fatal("expected FIFO order to return b second")
	}
	if got := SelectNext(); got != idle {
		t.Fatal("expected idle once every queue is empty")
	}
}

func TestSelectNextPrefersHigherPriority(t *testing.T) {
	resetSched(t)

	low := newPCB(3)
	high := newPCB(0)
	Enqueue(low)
	Enqueue(high)

	if got := SelectNext(); got != high {
		t.Fatal("expected the level-0 process to be selected before level-3")
	}
}

func TestEnqueueSetsReadyAndResetsWaitTime(t *testing.T) {
	resetSched(t)

	p := newPCB(1)
	p.State = proc.Blocked
	p.WaitTime = 500
	Enqueue(p)

	if p.State != proc.Ready {
		t.Fatalf("expected Enqueue to set state Ready; got %v", p.State)
	}
	if p.WaitTime != 0 {
		t.Fatalf("expected WaitTime reset to 0; got %d", p.WaitTime)
	}
}

func TestTickDemotesOnSliceExhaustion(t *testing.T) {
	resetSched(t)

	p := newPCB(0)
	p.TimeSliceRemaining = 1
	current = p

	Tick()

	if p.PriorityLevel != 1 {
		t.Fatalf("expected demotion to level 1; got %d", p.PriorityLevel)
	}
	if p.TimeSliceRemaining != proc.SliceForLevel(1) {
		t.Fatalf("expected slice reset to level 1's quantum; got %d", p.TimeSliceRemaining)
	}
	if !NeedResched() {
		t.Fatal("expected NeedResched to report true after a demotion")
	}
	if NeedResched() {
		t.Fatal("expected NeedResched to clear itself once read")
	}
}

func TestTickNeverDemotesBelowLevel4(t *testing.T) {
	resetSched(t)

	p := newPCB(4)
	p.TimeSliceRemaining = 1
	current = p

	Tick()

	if p.PriorityLevel != 4 {
		t.Fatalf("expected level to stay at 4; got %d", p.PriorityLevel)
	}
}

func TestTickDoesNotDemoteWithRemainingSlice(t *testing.T) {
	resetSched(t)

	p := newPCB(0)
	p.TimeSliceRemaining = 5
	current = p

	Tick()

	if p.PriorityLevel != 0 {
		t.Fatalf("expected no demotion; got level %d", p.PriorityLevel)
	}
	if p.TimeSliceRemaining != 4 {
		t.Fatalf("expected slice decremented to 4; got %d", p.TimeSliceRemaining)
	}
	if p.TotalCPUTime != 1 {
		t.Fatalf("expected TotalCPUTime incremented to 1; got %d", p.TotalCPUTime)
	}
}

func TestTickIgnoresIdle(t *testing.T) {
	resetSched(t)
	current = idle

	Tick()

	if idle.TotalCPUTime != 0 {
		t.Fatal("expected idle's CPU time never to be accounted")
	}
}

func TestAgingPromotesStarvedProcess(t *testing.T) {
	resetSched(t)

	starved := newPCB(4)
	Enqueue(starved)
	starved.WaitTime = AgingThreshold + 1

	agingPass()

	if starved.PriorityLevel != 3 {
		t.Fatalf("expected promotion to level 3; got %d", starved.PriorityLevel)
	}
	if starved.WaitTime != 0 {
		t.Fatalf("expected WaitTime reset on promotion; got %d", starved.WaitTime)
	}
	if queues[4].size != 0 || queues[3].size != 1 {
		t.Fatalf("expected the process to have moved queues; level4=%d level3=%d", queues[4].size, queues[3].size)
	}
}

func TestAgingLeavesFreshProcessesAlone(t *testing.T) {
	resetSched(t)

	p := newPCB(2)
	Enqueue(p)

	agingPass()

	if p.PriorityLevel != 2 {
		t.Fatalf("expected no promotion before the threshold; got %d", p.PriorityLevel)
	}
	if p.WaitTime != 1 {
		t.Fatalf("expected WaitTime incremented by one tick; got %d", p.WaitTime)
	}
}

func TestYieldReenqueuesWithoutDemotion(t *testing.T) {
	resetSched(t)

	p := newPCB(2)
	p.TimeSliceRemaining = 7
	current = p

	next := newPCB(0)
	Enqueue(next)

	Yield()

	if p.PriorityLevel != 2 {
		t.Fatalf("expected Yield not to demote; got level %d", p.PriorityLevel)
	}
	if p.TimeSliceRemaining != 7 {
		t.Fatalf("expected Yield to preserve the remaining slice; got %d", p.TimeSliceRemaining)
	}
	if current != next {
		t.Fatal("expected Schedule to switch current to the only ready process")
	}
}

func TestScheduleSwitchesCurrentAndMarksRunning(t *testing.T) {
	resetSched(t)

	first := newPCB(0)
	Enqueue(first)

	Schedule()

	if current != first {
		t.Fatal("expected Schedule to select the only ready process")
	}
	if first.State != proc.Running {
		t.Fatalf("expected selected process to be Running; got %v", first.State)
	}
}
