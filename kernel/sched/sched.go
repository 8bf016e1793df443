// Package sched implements the five-level multi-level feedback queue
// scheduler: per-level time slices, aging-based promotion, demotion on
// slice exhaustion, and the idle process that runs when every queue is
// empty.
package sched

import (
	"ringzero/kernel"
	"ringzero/kernel/cpu"
	"ringzero/kernel/gdt"
	"ringzero/kernel/proc"
)

// NumLevels is the number of MLFQ priority levels, 0 (highest) .. 4
// (lowest).
const NumLevels = 5

// AgingThreshold is the accumulated wait_time, in ticks, after which a
// ready process is promoted one level.
const AgingThreshold = 1000

var (
	queues  [NumLevels]queue
	current *proc.PCB
	idle    *proc.PCB

	tickCount uint64

	// needResched is set by Tick when the running process's slice has
	// been exhausted; the IRQ0 handler checks it after Tick returns and
	// invokes Schedule from a context where doing so is safe.
	needResched bool

	// contextSwitchFn performs the actual register/stack swap; swapped
	// out in tests so the MLFQ bookkeeping above can be exercised
	// without a real CPU.
	contextSwitchFn = cpu.ContextSwitch

	// setKernelStackFn updates the TSS's ring0 stack pointer so the next
	// privilege-level transition into the new current process lands on
	// its own kernel stack.
	setKernelStackFn = gdt.SetKernelStack
)

// Init creates the idle process (pid 0, an infinite halt loop) and resets
// all scheduler state. idleEntry is the address idle's kernel stack is
// primed to resume at; kmain supplies the address of its asm-backed halt
// loop.
func Init(idleEntry uintptr) *kernel.Error {
	for i := range queues {
		queues[i] = queue{}
	}
	current = nil
	tickCount = 0
	needResched = false

	p, err := proc.CreateIdle(idleEntry)
	if err != nil {
		return err
	}
	// idle never sits in a ready queue; SelectNext falls back to it
	// directly once every real queue is empty.
	dequeueFromLevel(p, 0)
	idle = p
	return nil
}

// dequeueFromLevel removes p from queues[level]; used right after
// proc.Create/Fork hand back a PCB that EnqueueFn already placed on a
// queue, for the one case (idle) that must never be selectable from a
// queue scan.
func dequeueFromLevel(p *proc.PCB, level int) {
	queues[level].remove(p)
}

// init wires proc's enqueue hook to this package's Enqueue, breaking what
// would otherwise be an import cycle (proc cannot import sched).
func init() {
	proc.EnqueueFn = Enqueue
}

// Enqueue places p at the tail of its current priority level and marks it
// ready.
func Enqueue(p *proc.PCB) {
	p.State = proc.Ready
	p.WaitTime = 0
	queues[p.PriorityLevel].pushBack(p)
}

// SelectNext scans levels 0..4 for the first non-empty queue and dequeues
// its head; if every level is empty, idle runs.
func SelectNext() *proc.PCB {
	for level := 0; level < NumLevels; level++ {
		if !queues[level].empty() {
			return queues[level].popFront()
		}
	}
	return idle
}

// Current returns the process presently selected as running, or nil
// before the first Schedule.
func Current() *proc.PCB { return current }

// TickCount returns the number of timer ticks seen since Init; wired to
// syscall.TickCountFn so sys_sleep can busy-wait against it.
func TickCount() uint64 { return tickCount }

// Tick runs the per-timer-interrupt scheduler accounting: the running
// process's slice is decremented and its
// total CPU time incremented; on slice exhaustion it is demoted and
// rescheduling is requested. Every ready process in levels 1..4 ages, and
// any whose wait_time exceeds AgingThreshold is promoted.
func Tick() {
	tickCount++

	if current != nil && current != idle {
		current.TotalCPUTime++
		if current.TimeSliceRemaining > 0 {
			current.TimeSliceRemaining--
		}
		if current.TimeSliceRemaining == 0 {
			demote(current)
			needResched = true
		}
	}

	agingPass()
}

// demote moves p to the next-lower (numerically higher) priority level,
// resetting its slice to that level's quantum; it does not touch p's
// queue membership — callers enqueue p themselves once it is no longer
// `current`.
func demote(p *proc.PCB) {
	if p.PriorityLevel < NumLevels-1 {
		p.PriorityLevel++
	}
	p.TimeSliceRemaining = proc.SliceForLevel(p.PriorityLevel)
}

// agingPass promotes any ready process in levels 1..4 whose accumulated
// wait_time exceeds AgingThreshold, guaranteeing no process starves.
func agingPass() {
	for level := 1; level < NumLevels; level++ {
		var promote []*proc.PCB
		queues[level].forEach(func(p *proc.PCB) {
			p.WaitTime++
			if p.WaitTime > AgingThreshold {
				promote = append(promote, p)
			}
		})
		for _, p := range promote {
			queues[level].remove(p)
			p.PriorityLevel--
			p.TimeSliceRemaining = proc.SliceForLevel(p.PriorityLevel)
			p.WaitTime = 0
			queues[p.PriorityLevel].pushBack(p)
		}
	}
}

// NeedResched reports whether Tick requested a scheduling decision; the
// IRQ0 trampoline's Go handler checks this after calling Tick and calls
// Schedule only when it is safe to give up the CPU.
func NeedResched() bool {
	r := needResched
	needResched = false
	return r
}

// Yield voluntarily gives up the CPU without demotion (a process that
// blocks or yields before exhausting its slice keeps its current priority)
// and immediately schedules a replacement.
func Yield() {
	if current != nil && current != idle {
		Enqueue(current)
	}
	Schedule()
}

// Schedule selects the next process to run and switches the CPU into it.
// prev is left in whatever state the caller already set (Ready if it was
// re-enqueued, Blocked if it just called wait/sleep, Zombie if it just
// exited); Schedule only moves `current` and performs the register/stack
// swap.
func Schedule() {
	prev := current
	next := SelectNext()

	next.State = proc.Running
	next.LastScheduled = tickCount
	current = next

	if next != idle {
		setKernelStackFn(next.KernelStack + next.KernelStackSz)
	}
	if !next.AddressSpace.IsActive() {
		next.AddressSpace.Activate()
	}

	if prev == nil {
		var discard uintptr
		contextSwitchFn(&discard, uintptr(next.Registers.ESP))
		return
	}
	if prev == next {
		return
	}

	var savedSP uintptr
	contextSwitchFn(&savedSP, uintptr(next.Registers.ESP))
	prev.Registers.ESP = uint32(savedSP)
}
