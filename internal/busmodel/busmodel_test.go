package busmodel

import "testing"

func TestLinFrameSignalByName(t *testing.T) {
	f := &LinFrame{Name: "F1", Signals: []LinSignalInstance{
		{Name: "Speed", StartBit: 0, Length: 8},
		{Name: "Temp", StartBit: 8, Length: 8},
	}}

	sig, ok := f.SignalByName("Temp")
	if !ok || sig.StartBit != 8 {
		t.Fatalf("expected to find Temp at start bit 8, got %+v ok=%v", sig, ok)
	}

	if _, ok := f.SignalByName("Missing"); ok {
		t.Errorf("expected Missing to be absent")
	}
}

func TestCanMessageSignalByName(t *testing.T) {
	m := &CanMessage{Name: "Msg", Signals: []CanSignal{{Name: "RPM", StartBit: 0, Length: 16}}}

	if _, ok := m.SignalByName("RPM"); !ok {
		t.Fatalf("expected to find RPM")
	}
	if _, ok := m.SignalByName("Nope"); ok {
		t.Errorf("expected Nope to be absent")
	}
}

func TestEncodingKindString(t *testing.T) {
	cases := map[EncodingKind]string{
		EncodingPhysical:  "physical",
		EncodingLogical:   "logical",
		EncodingHybrid:    "hybrid",
		EncodingByteArray: "byte_array",
		EncodingUnknown:   "unknown",
	}
	for kind, want := range cases {
		if got := kind.String(); got != want {
			t.Errorf("EncodingKind(%d).String() = %q, want %q", kind, got, want)
		}
	}
}
