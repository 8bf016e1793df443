// Package hal wires the kernel's chosen console and terminal implementations
// behind stable package vars so early boot code (kfmt/early.Printf, the
// write syscall) never needs to know it's talking to a VGA text buffer.
package hal

import (
	"ringzero/kernel/driver/tty"
	"ringzero/kernel/driver/video/console"
)

var (
	vgaConsole = &console.Vga{}

	// ActiveTerminal is the terminal every early-boot printf and the
	// write syscall's fd 1/2 output funnel through.
	ActiveTerminal = &tty.Vt{}
)

// InitTerminal brings up the VGA text console and attaches ActiveTerminal to
// it. The boot sequence calls it before vmm.Init: the console writes to the
// VGA buffer's fixed physical address, which is reachable directly while
// paging is off and through vmm.Init's identity mapping afterwards.
func InitTerminal() {
	vgaConsole.Init()
	ActiveTerminal.AttachTo(vgaConsole)
}
