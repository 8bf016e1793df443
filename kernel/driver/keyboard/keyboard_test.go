package keyboard

import "testing"

func withPorts(t *testing.T, status uint8, data uint8) {
	t.Helper()
	orig := inBFn
	inBFn = func(port uint16) uint8 {
		switch port {
		case statusPort:
			return status
		case dataPort:
			return data
		}
		t.Fatalf("unexpected port read: %#x", port)
		return 0
	}
	t.Cleanup(func() { inBFn = orig })
}

func TestReadEventReportsEmptyBuffer(t *testing.T) {
	withPorts(t, 0, 0)

	_, ok := ReadEvent()
	if ok {
		t.Fatal("expected ok=false when the output buffer is empty")
	}
}

func TestReadEventDecodesMakeCode(t *testing.T) {
	withPorts(t, statusOutputFull, 0x1E) // 'a' make code

	ev, ok := ReadEvent()
	if !ok {
		t.Fatal("expected ok=true when the output buffer is full")
	}
	if ev.Released {
		t.Fatal("expected a make code to report Released=false")
	}
	if ev.ASCII != 'a' {
		t.Fatalf("expected ASCII 'a'; got %q", ev.ASCII)
	}
}

func TestReadEventDecodesReleaseCode(t *testing.T) {
	withPorts(t, statusOutputFull, 0x1E|releaseBit)

	ev, ok := ReadEvent()
	if !ok {
		t.Fatal("expected ok=true")
	}
	if !ev.Released {
		t.Fatal("expected the release bit to be decoded")
	}
	if ev.ASCII != 'a' {
		t.Fatalf("expected the release event to still resolve to 'a'; got %q", ev.ASCII)
	}
}

func TestReadEventUnmappedScancodeHasNoASCII(t *testing.T) {
	withPorts(t, statusOutputFull, 0x3B) // F1, not in the set1 table

	ev, ok := ReadEvent()
	if !ok {
		t.Fatal("expected ok=true")
	}
	if ev.ASCII != 0 {
		t.Fatalf("expected no ASCII rendering for an unmapped scancode; got %q", ev.ASCII)
	}
}
