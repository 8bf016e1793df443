// +build 386

package cpu

// ContextSwitch saves the callee-saved registers and stack pointer of the
// currently running context into *oldSP, switches the stack pointer to
// newSP, and restores the callee-saved registers found there. Control
// returns to whatever called ContextSwitch the first time newSP's owner
// was switched away from; backed by switch_386.s.
func ContextSwitch(oldSP *uintptr, newSP uintptr)
