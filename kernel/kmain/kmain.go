// Package kmain wires every kernel subsystem together into the boot
// sequence: GDT/IDT/PIC/PIT bring-up, the physical
// and virtual memory managers, the kernel heap, the scheduler and its idle
// process, and the one well-known init process every orphan reparents to.
package kmain

import (
	"ringzero/kernel"
	"ringzero/kernel/cpu"
	"ringzero/kernel/driver/keyboard"
	"ringzero/kernel/driver/serial"
	"ringzero/kernel/gdt"
	"ringzero/kernel/hal"
	"ringzero/kernel/hal/multiboot"
	"ringzero/kernel/irq"
	"ringzero/kernel/kfmt"
	"ringzero/kernel/mem/heap"
	"ringzero/kernel/mem/pmm"
	"ringzero/kernel/mem/pmm/allocator"
	"ringzero/kernel/mem/vmm"
	"ringzero/kernel/pic"
	"ringzero/kernel/pit"
	"ringzero/kernel/proc"
	"ringzero/kernel/sched"
	"ringzero/kernel/syscall"
)

var errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

// initImage is the kernel's one built-in program, loaded directly into
// pid 1 instead of off a filesystem: there is no ELF-from-disk loader, so
// Image is the stub hook that stands in for one. It does nothing but yield
// the CPU forever, giving the scheduler's reparenting tree a live root to
// adopt orphans into.
//
//	mov eax, 7      ; SysYield
//	int $0x80
//	jmp start
var initImage = proc.Image{
	Code: []byte{
		0xB8, 0x07, 0x00, 0x00, 0x00, // mov eax, 7
		0xCD, 0x80, // int $0x80
		0xEB, 0xF7, // jmp start
	},
	Entry: 0,
}

// Kmain is the only Go symbol visible (exported) from the rt0
// initialization code. It is invoked after rt0 has set up the GDT's
// bootstrap stand-in and a minimal environment for the Go runtime, passing
// the physical address of the Multiboot info structure and the kernel
// image's own physical bounds.
//
// Kmain is not expected to return. If it does, the rt0 code halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)

	gdt.Init()

	hal.InitTerminal()
	hal.ActiveTerminal.Clear()

	var err *kernel.Error
	if err = allocator.Init(kernelStart, kernelEnd); err != nil {
		panic(err)
	}
	vmm.SetFrameAllocator(allocator.AllocFrame)
	vmm.SetFrameDeallocator(func(f pmm.Frame) { allocator.FreeFrame(f) })
	if err = vmm.Init(kernelEnd); err != nil {
		panic(err)
	}

	heap.SetFrameAllocator(allocator.AllocFrame)
	if err = heap.Init(); err != nil {
		panic(err)
	}

	irq.Init()
	pic.Init()
	pit.Init()
	serial.COM1.Init()

	irq.HandleIRQ(0, onTimerTick)
	irq.HandleIRQ(1, onKeyboard)
	irq.HandleException(irq.SyscallVector, syscall.Dispatch)
	irq.HandleException(irq.PageFaultException, onPageFault)
	pic.Unmask(0)
	pic.Unmask(1)

	syscall.CurrentFn = sched.Current
	syscall.TickCountFn = sched.TickCount
	syscall.YieldFn = sched.Yield

	if err = sched.Init(cpu.IdleEntry()); err != nil {
		panic(err)
	}
	if _, err = proc.CreateInit(initImage); err != nil {
		panic(err)
	}

	cpu.EnableInterrupts()
	sched.Schedule()

	// Use kfmt.Panic instead of panic to prevent the compiler from
	// treating this call as dead code and eliminating it.
	kfmt.Panic(errKmainReturned)
}

// onTimerTick drives the scheduler's per-tick accounting and
// hands the CPU to a different process once the running one's slice is
// exhausted.
func onTimerTick(_ *irq.Regs) {
	sched.Tick()
	if sched.NeedResched() {
		// Tick has already demoted the running process; put it back on
		// the tail of its new level before picking a successor.
		sched.Enqueue(sched.Current())
		sched.Schedule()
	}
}

// onKeyboard echoes printable keystrokes straight to the terminal and
// serial port. There is no sys_read-backed input queue yet (the read stub
// reports invalid_syscall), so this is the only path that makes
// keyboard input observable at all.
func onKeyboard(_ *irq.Regs) {
	ev, ok := keyboard.ReadEvent()
	if !ok || ev.Released || ev.ASCII == 0 {
		return
	}
	hal.ActiveTerminal.WriteByte(ev.ASCII)
	serial.COM1.WriteByte(ev.ASCII)
}

// errorCodeWriteFault is bit 1 of the CPU-pushed page-fault error code: set
// when the fault was caused by a write, clear for a read or instruction
// fetch.
const errorCodeWriteFault = 0x2

// faultExitCode is the exit status recorded for a process killed by a page
// fault vmm.HandlePageFault could not resolve.
const faultExitCode = -1

// onPageFault is registered for vector 14. CR2 holds the faulting linear
// address; the CPU-pushed error code's bit 1 says whether the access was a
// write. vmm.HandlePageFault resolves the one recoverable case (a
// copy-on-write write fault); anything else kills the faulting process so
// the scheduler can move on instead of spinning on the same fault forever.
func onPageFault(regs *irq.Regs, _ *irq.Frame) {
	faultAddr := uintptr(cpu.ReadCR2())
	writeFault := regs.ErrorCode&errorCodeWriteFault != 0

	if err := vmm.HandlePageFault(faultAddr, writeFault); err == nil {
		return
	}

	caller := sched.Current()
	if caller == nil {
		kfmt.Panic(&kernel.Error{Module: "kmain", Message: "page fault with no running process"})
	}
	proc.Exit(caller, faultExitCode)
	sched.Schedule()
}
