// +build 386

package cpu

// IdleEntry returns the address of the kernel's halt loop (STI; HLT;
// repeat), backed by idle_386.s. kmain uses this as the idle process's
// initial EIP; nothing ever calls it as a Go function.
func IdleEntry() uintptr
