// +build !386

package cpu

// IdleEntry is a no-op placeholder on non-386 hosts; nothing in the host
// test suite resumes a process at this address.
func IdleEntry() uintptr { return 0 }
