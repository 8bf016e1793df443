// +build 386

package irq

// interruptGateEntries returns the entry-point address of the generated
// per-vector stub for every IDT slot; backed by idt_386.s.
func interruptGateEntries() [idtSize]uintptr
