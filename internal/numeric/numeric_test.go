package numeric

import "testing"

func TestCalculatePIDRoundTrips(t *testing.T) {
	for id := 0; id <= 63; id++ {
		pid, err := CalculatePID(id)
		if err != nil {
			t.Fatalf("id %d: unexpected error: %v", id, err)
		}
		if !CheckParity(pid) {
			t.Errorf("id %d: pid %#x failed its own parity check", id, pid)
		}
	}
}

func TestCalculatePIDOutOfRange(t *testing.T) {
	if _, err := CalculatePID(64); err == nil {
		t.Error("expected error for id 64")
	}
	if _, err := CalculatePID(-1); err == nil {
		t.Error("expected error for id -1")
	}
}

func TestClassicChecksumEmpty(t *testing.T) {
	if got := ClassicChecksum(nil); got != 0xFF {
		t.Errorf("expected 0xFF for empty data, got %#x", got)
	}
}

func TestEnhancedChecksumMatchesClassicWithPrependedPID(t *testing.T) {
	data := []byte{0x05, 0xFA}
	pid, err := CalculatePID(0x02)
	if err != nil {
		t.Fatal(err)
	}
	want := ClassicChecksum(append([]byte{pid}, data...))
	got := EnhancedChecksum(pid, data)
	if got != want {
		t.Errorf("enhanced checksum = %#x, want %#x", got, want)
	}
}

func TestEnhancedChecksumEmptyData(t *testing.T) {
	pid, _ := CalculatePID(0x01)
	got := EnhancedChecksum(pid, nil)
	want := ^pid
	if got != want {
		t.Errorf("enhanced checksum of empty data = %#x, want %#x", got, want)
	}
}

func TestExtractSignalBigEndian(t *testing.T) {
	data := []byte{0b10110000, 0x00}
	got := ExtractSignal(data, 7, 4, BigEndian, false)
	if got != 0b1011 {
		t.Errorf("got %b, want 1011", got)
	}
}

func TestExtractSignalLittleEndianSigned(t *testing.T) {
	data := []byte{0xFF, 0x00}
	got := ExtractSignal(data, 0, 8, LittleEndian, true)
	if int64(got) != -1 {
		t.Errorf("got %d, want -1", int64(got))
	}
}

func TestScale(t *testing.T) {
	if got := Scale(10, 0.5, 2); got != 7 {
		t.Errorf("Scale(10, 0.5, 2) = %f, want 7", got)
	}
}

func TestPhysicallyEqual(t *testing.T) {
	if !PhysicallyEqual(1.0000001, 1.0000002) {
		t.Error("expected values within epsilon to compare equal")
	}
	if PhysicallyEqual(1.0, 1.1) {
		t.Error("expected values outside epsilon to compare unequal")
	}
}
