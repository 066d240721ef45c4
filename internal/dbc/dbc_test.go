package dbc

import (
	"testing"

	"github.com/anodyne74/linspect/internal/busmodel"
)

const sampleDBC1 = `
VERSION ""

BO_ 256 EngineStatus: 8 ECU
 SG_ RPM : 0|16@1+ (0.25,0) [0|8000] "rpm"
 SG_ Mux M : 16|8@1+ (1,0) [0|255] ""
 SG_ Temp m1 : 24|8@1+ (1,-40) [0|0] "degC"

BA_DEF_DEF_ "Baudrate" 500000;
BA_ "Baudrate" 500000;

VAL_ 256 Mux 0 "Idle" 1 "Running" ;
`

const sampleDBC2 = `
BO_ 300 GatewayMsg: 4 GW
 SG_ Value : 0|8@1- (1,0) [-128|127] "u"

BA_ "Baudrate" 500000;
`

func TestParseFileBasic(t *testing.T) {
	msgs, baud, src, err := ParseFile(sampleDBC1, ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if baud != 500000 || src != "explicit" {
		t.Errorf("baud/source = %d/%s, want 500000/explicit", baud, src)
	}
	msg, ok := msgs[256]
	if !ok {
		t.Fatalf("expected message id 256, got %v", msgs)
	}
	if msg.Name != "EngineStatus" || msg.DLC != 8 {
		t.Errorf("message = %+v", msg)
	}
	rpm, ok := msg.SignalByName("RPM")
	if !ok || rpm.BigEndian || rpm.Signed {
		t.Errorf("RPM signal = %+v", rpm)
	}
	mux, ok := msg.SignalByName("Mux")
	if !ok || !mux.IsMultiplexer {
		t.Errorf("expected Mux to be a multiplexer switch, got %+v", mux)
	}
	if label := mux.LogicalMap[0]; label != "Idle" {
		t.Errorf("VAL_ mapping for 0 = %q, want Idle", label)
	}
	temp, ok := msg.SignalByName("Temp")
	if !ok || !temp.HasMuxValue || temp.MultiplexValue != 1 {
		t.Errorf("expected Temp to be multiplexed under value 1, got %+v", temp)
	}
}

func TestDecodeIDExtended(t *testing.T) {
	id, ext := decodeID(0x80000100)
	if !ext || id != 0x100 {
		t.Errorf("bit31-flagged id decoded as %#x extended=%v", id, ext)
	}
	id, ext = decodeID(0x800)
	if !ext || id != 0x800 {
		t.Errorf("id just above standard max decoded as %#x extended=%v, want extended", id, ext)
	}
	id, ext = decodeID(0x7FF)
	if ext || id != 0x7FF {
		t.Errorf("standard max id decoded as %#x extended=%v, want standard", id, ext)
	}
}

func TestParseChannelBaudConflict(t *testing.T) {
	conflicting := `
BO_ 1 M: 1 N
 SG_ S : 0|8@1+ (1,0) [0|0] ""
BA_ "Baudrate" 250000;
`
	_, err := ParseChannel(busmodel.ChannelCAN1, []string{sampleDBC1, conflicting}, ParseOptions{})
	if err == nil {
		t.Fatal("expected baud conflict error")
	}
}

func TestParseChannelMerge(t *testing.T) {
	model, err := ParseChannel(busmodel.ChannelCAN1, []string{sampleDBC1, sampleDBC2}, ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(model.Messages) != 2 {
		t.Errorf("expected 2 messages after merge, got %d", len(model.Messages))
	}
	if model.BaudRate != 500000 {
		t.Errorf("baud = %d, want 500000", model.BaudRate)
	}
}
