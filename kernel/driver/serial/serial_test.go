package serial

import "testing"

type portOp struct {
	isRead bool
	port   uint16
	value  uint8
}

func withRecordedPorts(t *testing.T) *[]portOp {
	t.Helper()
	var ops []portOp
	origOut, origIn := outBFn, inBFn
	outBFn = func(port uint16, value uint8) {
		ops = append(ops, portOp{port: port, value: value})
	}
	inBFn = func(port uint16) uint8 {
		ops = append(ops, portOp{isRead: true, port: port})
		return lineStatusTxEmpty
	}
	t.Cleanup(func() { outBFn, inBFn = origOut, origIn })
	return &ops
}

func TestInitProgramsExpectedSequence(t *testing.T) {
	ops := withRecordedPorts(t)

	(&Port{}).Init()

	want := []portOp{
		{port: regIntEnable, value: 0x00},
		{port: regLineCtrl, value: dlab},
		{port: regDivisorLo, value: byte(baseClock / baudRate)},
		{port: regDivisorHi, value: byte((baseClock / baudRate) >> 8)},
		{port: regLineCtrl, value: lineCtrl8N1},
		{port: regFIFOCtrl, value: fifoEnableClear},
		{port: regModemCtrl, value: modemNormal},
	}
	if len(*ops) != len(want) {
		t.Fatalf("expected %d port writes; got %d: %v", len(want), len(*ops), *ops)
	}
	for i, w := range want {
		if (*ops)[i] != w {
			t.Fatalf("write %d: expected %+v; got %+v", i, w, (*ops)[i])
		}
	}
}

func TestWriteByteWaitsForTransmitEmpty(t *testing.T) {
	var reads int
	origOut, origIn := outBFn, inBFn
	defer func() { outBFn, inBFn = origOut, origIn }()

	var sent byte
	outBFn = func(port uint16, value uint8) {
		if port == regData {
			sent = value
		}
	}
	inBFn = func(port uint16) uint8 {
		reads++
		if reads < 3 {
			return 0
		}
		return lineStatusTxEmpty
	}

	(&Port{}).WriteByte('x')

	if reads != 3 {
		t.Fatalf("expected WriteByte to poll line status 3 times; got %d", reads)
	}
	if sent != 'x' {
		t.Fatalf("expected 'x' written to the data register; got %q", sent)
	}
}

func TestWriteReturnsLengthAndSendsEveryByte(t *testing.T) {
	var got []byte
	origOut, origIn := outBFn, inBFn
	defer func() { outBFn, inBFn = origOut, origIn }()

	outBFn = func(port uint16, value uint8) {
		if port == regData {
			got = append(got, value)
		}
	}
	inBFn = func(uint16) uint8 { return lineStatusTxEmpty }

	n, err := (&Port{}).Write([]byte("hi"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if n != 2 {
		t.Fatalf("expected n=2; got %d", n)
	}
	if string(got) != "hi" {
		t.Fatalf("expected \"hi\" written; got %q", got)
	}
}
