// +build !386

package cpu

// Host-architecture stand-ins for the i386 primitives declared in
// cpu_386.go/cpu_386.s. They exist so packages that reference these
// functions as package-level seam values (e.g. var outBFn = cpu.OutB) link
// and run under `go test` on the development machine; every call site that
// matters swaps the seam out before exercising real behaviour. None of this
// file ships in the kernel image.

var (
	fakeCR2 uint32
	fakeCR3 uint32
)

func OutB(port uint16, value uint8)  {}
func InB(port uint16) uint8          { return 0 }
func OutW(port uint16, value uint16) {}
func InW(port uint16) uint16         { return 0 }
func OutL(port uint16, value uint32) {}
func InL(port uint16) uint32         { return 0 }

func EnableInterrupts()  {}
func DisableInterrupts() {}
func Halt()              {}

func ReadCR2() uint32 { return fakeCR2 }
func ReadCR3() uint32 { return fakeCR3 }

func WriteCR3(pdPhysAddr uint32) { fakeCR3 = pdPhysAddr }

func EnablePaging() {}

func FlushTLBEntry(virtAddr uintptr) {}

func Lgdt(ptr uintptr, codeSelector, dataSelector uint16) {}

func Lidt(ptr uintptr) {}

func Ltr(selector uint16) {}
