// Package kfmt provides the kernel's heap-backed formatted output: Printf to
// the active terminal, Fprintf to an arbitrary io.Writer (used by register
// dumps), and the kernel's sole panic path. Unlike kfmt/early, this package
// may only be used once kernel/mem/heap is up, since io.Writer is an
// interface value and interface conversion can allocate.
package kfmt

import (
	"io"

	"ringzero/kernel"
	"ringzero/kernel/hal"
)

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	padding         = byte(' ')
	trueValue       = []byte("true")
	falseValue      = []byte("false")
)

// Printf formats according to a format specifier and writes to
// hal.ActiveTerminal. See Fprintf for the supported verb set.
func Printf(format string, args ...interface{}) {
	Fprintf(hal.ActiveTerminal, format, args...)
}

// Fprintf formats according to a format specifier and writes to w.
//
// Supported verbs: %s (string/[]byte), %d (base 10), %o (base 8), %x (base
// 16, lower-case), %t (bool). An optional decimal width may precede the
// verb; strings and base-10 integers pad with spaces, base-8/16 integers
// pad with zeroes.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		nextCh                       byte
		nextArgIndex                 int
		blockStart, blockEnd, padLen int
		fmtLen                       = len(format)
	)

	writeByte := func(b byte) { w.Write([]byte{b}) }

	for blockEnd < fmtLen {
		nextCh = format[blockEnd]
		if nextCh != '%' {
			blockEnd++
			continue
		}

		if blockStart < blockEnd {
			w.Write([]byte(format[blockStart:blockEnd]))
		}

		padLen = 0
		blockEnd++
	parseFmt:
		for ; blockEnd < fmtLen; blockEnd++ {
			nextCh = format[blockEnd]
			switch {
			case nextCh == '%':
				writeByte('%')
				break parseFmt
			case nextCh >= '0' && nextCh <= '9':
				padLen = (padLen * 10) + int(nextCh-'0')
				continue
			case nextCh == 'd' || nextCh == 'x' || nextCh == 'o' || nextCh == 's' || nextCh == 't':
				if nextArgIndex >= len(args) {
					w.Write(errMissingArg)
					break parseFmt
				}

				switch nextCh {
				case 'o':
					fmtInt(w, args[nextArgIndex], 8, padLen)
				case 'd':
					fmtInt(w, args[nextArgIndex], 10, padLen)
				case 'x':
					fmtInt(w, args[nextArgIndex], 16, padLen)
				case 's':
					fmtString(w, args[nextArgIndex], padLen)
				case 't':
					fmtBool(w, args[nextArgIndex])
				}

				nextArgIndex++
				break parseFmt
			}

			w.Write(errNoVerb)
		}
		blockStart, blockEnd = blockEnd+1, blockEnd+1
	}

	if blockStart != blockEnd {
		w.Write([]byte(format[blockStart:blockEnd]))
	}

	for ; nextArgIndex < len(args); nextArgIndex++ {
		w.Write(errExtraArg)
	}
}

func fmtBool(w io.Writer, v interface{}) {
	switch bVal := v.(type) {
	case bool:
		if bVal {
			w.Write(trueValue)
		} else {
			w.Write(falseValue)
		}
	default:
		w.Write(errWrongArgType)
	}
}

func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, padding, padLen-len(castedVal))
		w.Write([]byte(castedVal))
	case []byte:
		fmtRepeat(w, padding, padLen-len(castedVal))
		w.Write(castedVal)
	default:
		w.Write(errWrongArgType)
	}
}

func fmtRepeat(w io.Writer, ch byte, count int) {
	for i := 0; i < count; i++ {
		w.Write([]byte{ch})
	}
}

func fmtInt(w io.Writer, v interface{}, base, padLen int) {
	var (
		sval             int64
		uval             uint64
		divider          uint64
		remainder        uint64
		buf              [20]byte
		padCh            byte
		left, right, end int
	)

	switch base {
	case 8:
		divider = 8
		padCh = '0'
	case 10:
		divider = 10
		padCh = ' '
	case 16:
		divider = 16
		padCh = '0'
	}

	switch tv := v.(type) {
	case uint8:
		uval = uint64(tv)
	case uint16:
		uval = uint64(tv)
	case uint32:
		uval = uint64(tv)
	case uint64:
		uval = tv
	case uintptr:
		uval = uint64(tv)
	case int8:
		sval = int64(tv)
	case int16:
		sval = int64(tv)
	case int32:
		sval = int64(tv)
	case int64:
		sval = tv
	case int:
		sval = int64(tv)
	default:
		w.Write(errWrongArgType)
		return
	}

	if sval < 0 {
		uval = uint64(-sval)
	} else if sval > 0 {
		uval = uint64(sval)
	}

	for {
		remainder = uval % divider
		if remainder < 10 {
			buf[right] = byte(remainder) + '0'
		} else {
			buf[right] = byte(remainder-10) + 'a'
		}

		right++

		uval /= divider
		if uval == 0 {
			break
		}
	}

	for ; right-left < padLen; right++ {
		buf[right] = padCh
	}

	if base == 16 {
		buf[right] = 'x'
		buf[right+1] = '0'
		right += 2
	}

	if sval < 0 {
		for end = right - 1; buf[end] == ' '; end-- {
		}
		if end == right-1 {
			right++
		}
		buf[end+1] = '-'
	}

	end = right
	for right = right - 1; left < right; left, right = left+1, right-1 {
		buf[left], buf[right] = buf[right], buf[left]
	}

	w.Write(buf[0:end])
}

// errRuntimePanic is preallocated since kfmt cannot allocate a fresh
// *kernel.Error for an arbitrary error value; nothing in this kernel passes
// it to Panic.
var errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
