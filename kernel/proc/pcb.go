// Package proc implements the process model: the process
// control block, its register context, and the lifecycle operations
// (create, fork, exec, exit, wait) that create and destroy it. Nothing here
// decides *when* a process runs; that is kernel/sched's job.
package proc

import "ringzero/kernel/mem/vmm"

// ProcessState is a PCB's position in its lifecycle.
type ProcessState int

const (
	Created ProcessState = iota
	Ready
	Running
	Blocked
	Terminated
	Zombie
)

func (s ProcessState) String() string {
	switch s {
	case Created:
		return "created"
	case Ready:
		return "ready"
	case Running:
		return "running"
	case Blocked:
		return "blocked"
	case Terminated:
		return "terminated"
	case Zombie:
		return "zombie"
	default:
		return "unknown"
	}
}

// Privilege is the ring a PCB's saved context resumes at.
type Privilege int

const (
	PrivilegeKernel Privilege = iota
	PrivilegeUser
)

// Selector values a RegisterContext's CS/SS fields take.
const (
	KernelCodeSelector = uint32(0x08)
	UserCodeSelector   = uint32(0x1B)
	UserDataSelector   = uint32(0x23)
)

// eflagsIF1 is the EFLAGS reset value every fresh context uses: interrupts
// enabled (IF) and the reserved bit 1, which the CPU requires to always
// read as 1.
const eflagsIF1 = 0x202

// RegisterContext is exactly the state needed to resume a process:
// general registers, instruction pointer, flags, the code selector,
// and — for a user process — the saved user stack pointer/selector. The
// kernel's own ESP/SS live in the fields above; UserESP/UserSS are only
// meaningful when Privilege == PrivilegeUser.
type RegisterContext struct {
	EAX, EBX, ECX, EDX uint32
	ESI, EDI, EBP      uint32
	ESP                uint32
	EIP                uint32
	EFlags             uint32
	CS                 uint32

	UserESP uint32
	UserSS  uint32
}

// MaxFDs and MaxChildren bound the PCB's fixed-size tables.
const (
	MaxFDs      = 256
	MaxChildren = 64
	MaxNameLen  = 32
)

// FileDescriptor is an opaque handle slot: only duplicate/close
// ref-counting semantics are implemented in this core.
type FileDescriptor struct {
	Handle   interface{}
	Flags    uint32
	Position uint64
	RefCount int
}

// Dup increments the descriptor's ref count and returns a copy that shares
// the same handle.
func (fd *FileDescriptor) Dup() FileDescriptor {
	fd.RefCount++
	return *fd
}

// Close decrements the ref count; the caller is responsible for releasing
// the underlying handle once it reaches zero.
func (fd *FileDescriptor) Close() (releaseHandle bool) {
	fd.RefCount--
	return fd.RefCount <= 0
}

// PCB is a process control block. PCBs live on the kernel heap
// and are always reached through the process table by pid; nothing stores
// a PCB by value once it has been registered (Create/Fork hand back a
// pointer for exactly this reason).
type PCB struct {
	Pid       uint32
	Name      [MaxNameLen]byte
	State     ProcessState
	Privilege Privilege

	Registers     RegisterContext
	AddressSpace  vmm.AddressSpace
	KernelStack   uintptr
	KernelStackSz uintptr

	PriorityLevel      int
	TimeSliceRemaining uint32
	WaitTime           uint32
	TotalCPUTime       uint64
	LastScheduled      uint64

	ParentPid       uint32
	HasParent       bool
	ExitCode        int32
	FDTable         [MaxFDs]FileDescriptor
	ChildPids       [MaxChildren]uint32
	ChildCount      int
	WaitingForChild int64 // -1: not waiting; 0: any child; >0: a specific pid

	// Next/Prev let a PCB sit in exactly one scheduler queue at a time
	// without a second allocation, as an intrusive linked-list node.
	// Only kernel/sched touches these.
	Next, Prev *PCB
}

// SetName copies name into the fixed-size Name field, truncating if it is
// too long.
func (p *PCB) SetName(name string) {
	n := copy(p.Name[:], name)
	for i := n; i < MaxNameLen; i++ {
		p.Name[i] = 0
	}
}

// NameString returns Name up to its first NUL byte.
func (p *PCB) NameString() string {
	n := 0
	for n < MaxNameLen && p.Name[n] != 0 {
		n++
	}
	return string(p.Name[:n])
}
