package logtoken

import (
	"strings"
	"testing"
)

func TestTokenizerHappyPath(t *testing.T) {
	input := `0.000 Li 01 Rx
0.010 Li 02 Rx 2 05 FA checksum=4F CSM=Enhanced
0.020 CAN1 7E8 Rx d 8 02 41 0D 45 00 00 00 00
0.030 Li SleepModeEvent 1 entering sleep mode
garbage line nobody understands
`
	tok := New(strings.NewReader(input))

	rec, ok, err := tok.Next()
	if err != nil || !ok {
		t.Fatalf("record 1: ok=%v err=%v", ok, err)
	}
	if rec.Kind != KindLinFrame || rec.Lin.PIDRaw != 0x01 || rec.Lin.Direction != "Rx" {
		t.Errorf("record 1 = %+v", rec.Lin)
	}

	rec, ok, err = tok.Next()
	if err != nil || !ok {
		t.Fatalf("record 2: ok=%v err=%v", ok, err)
	}
	if rec.Lin.PIDRaw != 0x02 {
		t.Errorf("record 2 pid = %#x, want 0x02", rec.Lin.PIDRaw)
	}
	if len(rec.Lin.Data) != 2 || rec.Lin.Data[0] != 0x05 || rec.Lin.Data[1] != 0xFA {
		t.Errorf("record 2 data = %v, want [05 FA]", rec.Lin.Data)
	}
	if rec.Lin.DeclaredChecksum == nil || *rec.Lin.DeclaredChecksum != 0x4F {
		t.Errorf("record 2 checksum = %v, want 0x4F", rec.Lin.DeclaredChecksum)
	}
	if rec.Lin.CSM != "Enhanced" {
		t.Errorf("record 2 csm = %q, want Enhanced", rec.Lin.CSM)
	}

	rec, ok, err = tok.Next()
	if err != nil || !ok {
		t.Fatalf("record 3: ok=%v err=%v", ok, err)
	}
	if rec.Kind != KindCanFrame || rec.Can.ID != 0x7E8 || len(rec.Can.Data) != 8 {
		t.Errorf("record 3 = %+v", rec.Can)
	}

	rec, ok, err = tok.Next()
	if err != nil || !ok {
		t.Fatalf("record 4: ok=%v err=%v", ok, err)
	}
	if rec.Kind != KindLinEvent || rec.LinEvent.Kind != EventSleepModeEvent {
		t.Errorf("record 4 = %+v", rec.LinEvent)
	}

	_, ok, err = tok.Next()
	if err != nil || ok {
		t.Fatalf("expected end of stream after skipping garbage, got ok=%v err=%v", ok, err)
	}
	if tok.Skipped() != 1 {
		t.Errorf("skipped = %d, want 1", tok.Skipped())
	}
}
