// Package syscall implements the int 0x80 system-call gateway:
// the call-number dispatch table, argument translation/validation, and the
// errno mapping every handler returns through.
package syscall

import (
	"reflect"
	"unsafe"

	"ringzero/kernel/driver/serial"
	"ringzero/kernel/hal"
	"ringzero/kernel/irq"
	"ringzero/kernel/mem/vmm"
	"ringzero/kernel/proc"
)

// Call numbers, fixed by the ABI.
const (
	SysExit = iota
	SysWrite
	SysGetpid
	SysRead
	SysOpen
	SysClose
	SysSleep
	SysYield

	numCalls
)

// Errno is the negative return value a handler writes into EAX on failure.
type Errno int32

var (
	ErrnoInvalidSyscall Errno = -1
	ErrnoInvalidParam   Errno = -2
	ErrnoPermDenied     Errno = -3
	ErrnoNoSuchProcess  Errno = -4
	ErrnoOutOfMemory    Errno = -5
	ErrnoInvalidAddress Errno = -6
	ErrnoBufferTooSmall Errno = -7
)

const maxWriteCount = 4096
const maxSleepMs = 60000

// msPerTick is the PIT's programmed period at 100Hz.
const msPerTick = 10

// CurrentFn resolves the calling process; set by kmain to sched.Current.
// A syscall with no current process (should never happen once booted, but
// the dispatcher must handle it anyway) reports ErrnoNoSuchProcess.
var CurrentFn func() *proc.PCB

// TickCountFn lets sys_sleep busy-wait against the scheduler's tick
// counter without syscall importing sched back.
var TickCountFn func() uint64

// YieldFn performs a voluntary context switch for sys_yield and the
// sleep busy-wait loop.
var YieldFn func()

// handler writes a syscall's result into regs.EAX; it may also mutate the
// caller's PCB (exit, yield).
type handler func(caller *proc.PCB, regs *irq.Regs)

var dispatch = [numCalls]handler{
	SysExit:   sysExit,
	SysWrite:  sysWrite,
	SysGetpid: sysGetpid,
	SysRead:   sysInvalid,
	SysOpen:   sysInvalid,
	SysClose:  sysInvalid,
	SysSleep:  sysSleep,
	SysYield:  sysYield,
}

// Stats counts every syscall dispatched, by call number, plus the total.
type Stats struct {
	PerCall [numCalls]uint64
	Total   uint64
}

var stats Stats

// GetStats returns a snapshot of the dispatch counters: how many times each
// call number has been dispatched, plus the running total.
func GetStats() Stats { return stats }

// Dispatch is registered with irq.HandleException(irq.SyscallVector, ...):
// EAX holds the call number, EBX/ECX/EDX/ESI
// the arguments, and the handler's result is written back into EAX. An
// out-of-range or stub call number reports ErrnoInvalidSyscall without
// touching the caller's state; Dispatch always resolves to a result, never
// leaves EAX untouched.
func Dispatch(regs *irq.Regs, _ *irq.Frame) {
	stats.Total++

	caller := CurrentFn()
	if caller == nil {
		regs.EAX = uint32(int32(ErrnoNoSuchProcess))
		return
	}

	n := regs.EAX
	if n >= numCalls || dispatch[n] == nil {
		regs.EAX = uint32(int32(ErrnoInvalidSyscall))
		return
	}
	stats.PerCall[n]++
	dispatch[n](caller, regs)
}

func sysInvalid(_ *proc.PCB, regs *irq.Regs) {
	regs.EAX = uint32(int32(ErrnoInvalidSyscall))
}

func sysExit(caller *proc.PCB, regs *irq.Regs) {
	proc.Exit(caller, int32(regs.EBX))
	if YieldFn != nil {
		YieldFn()
	}
}

func sysGetpid(caller *proc.PCB, regs *irq.Regs) {
	regs.EAX = caller.Pid
}

func sysYield(_ *proc.PCB, regs *irq.Regs) {
	if YieldFn != nil {
		YieldFn()
	}
	regs.EAX = 0
}

func sysSleep(_ *proc.PCB, regs *irq.Regs) {
	ms := regs.EBX
	if ms > maxSleepMs {
		regs.EAX = uint32(int32(ErrnoInvalidParam))
		return
	}
	if TickCountFn == nil {
		regs.EAX = 0
		return
	}
	target := TickCountFn() + uint64(ms)/msPerTick
	for TickCountFn() < target {
		if YieldFn != nil {
			YieldFn()
		}
	}
	regs.EAX = 0
}

// sysWrite implements write(fd, buf_va, count): only fd 1 is
// supported; the caller's buffer is translated through its own address
// space (so one process can never address another's memory), copied byte
// by byte, and mirrored to both VGA and serial.
func sysWrite(caller *proc.PCB, regs *irq.Regs) {
	fd, bufVA, count := regs.EBX, regs.ECX, regs.EDX

	if fd != 1 {
		regs.EAX = uint32(int32(ErrnoInvalidParam))
		return
	}
	if count == 0 {
		regs.EAX = 0
		return
	}
	if count > maxWriteCount {
		regs.EAX = uint32(int32(ErrnoInvalidParam))
		return
	}

	start := uintptr(bufVA)
	end := start + uintptr(count) - 1
	if vmm.PageFromAddress(start) != vmm.PageFromAddress(end) {
		regs.EAX = uint32(int32(ErrnoInvalidAddress))
		return
	}
	// Translate against the currently active address space; sysWrite is
	// only ever called for `caller`, which the scheduler has already made
	// the active process.
	if _, err := vmm.Translate(start); err != nil {
		regs.EAX = uint32(int32(ErrnoInvalidAddress))
		return
	}

	buf := unsafeBytes(start, uintptr(count))
	for _, b := range buf {
		if b == '\t' {
			for i := 0; i < tabWidth; i++ {
				hal.ActiveTerminal.WriteByte(' ')
				serial.COM1.WriteByte(' ')
			}
			continue
		}
		out := translatePrintable(b)
		hal.ActiveTerminal.WriteByte(out)
		serial.COM1.WriteByte(out)
	}
	regs.EAX = count
}

// tabWidth is the number of space characters a '\t' byte expands to.
const tabWidth = 4

// translatePrintable passes through printable ASCII and newline unchanged;
// anything else is rendered as a space rather than rejected, since write's
// contract only names which bytes get special handling, not a whole-buffer
// validation failure mode. '\t' is handled by the caller before reaching
// here, since it expands to multiple output bytes rather than translating
// to one.
func translatePrintable(b byte) byte {
	if b == '\n' || (b >= 0x20 && b < 0x7F) {
		return b
	}
	return ' '
}

// unsafeBytesFn overlays a []byte on a raw address range; swapped out in
// tests so sysWrite can be exercised against a host buffer instead of a
// real translated user page.
var unsafeBytesFn = func(addr uintptr, n uintptr) []byte {
	return *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Len:  int(n),
		Cap:  int(n),
		Data: addr,
	}))
}

func unsafeBytes(addr uintptr, n uintptr) []byte {
	return unsafeBytesFn(addr, n)
}
