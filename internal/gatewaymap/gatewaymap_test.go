package gatewaymap

import (
	"testing"

	"github.com/anodyne74/linspect/internal/busmodel"
)

func sampleModel() *busmodel.BusModel {
	lin := &busmodel.BusModelLIN{
		Frames: map[string]*busmodel.LinFrame{
			"F1": {Name: "F1", ID: 1, Signals: []busmodel.LinSignalInstance{{Name: "A", Length: 8}}},
		},
	}
	can := &busmodel.BusModelCAN{
		Messages: map[uint32]*busmodel.CanMessage{
			300: {Name: "GatewayMsg", ID: 300, Signals: []busmodel.CanSignal{{Name: "B", Length: 8}}},
		},
	}
	return &busmodel.BusModel{LIN: lin, CAN: map[busmodel.Channel]*busmodel.BusModelCAN{busmodel.ChannelCAN1: can}}
}

const sampleJSON = `[
  {"source_network": "LIN", "source_message": "F1", "source_signal": "A", "target_network": "CAN1", "target_message": "GatewayMsg", "target_signal": "B"},
  {"source_network": "LIN", "source_message": "Ghost", "source_signal": "A", "target_network": "CAN1", "target_message": "GatewayMsg", "target_signal": "B"},
  {"source_network": "BOGUS", "source_message": "F1", "source_signal": "A", "target_network": "CAN1", "target_message": "GatewayMsg", "target_signal": "B"}
]`

func TestLoadAndResolve(t *testing.T) {
	raws, loadWarnings, err := Load([]byte(sampleJSON), nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(loadWarnings) != 1 {
		t.Fatalf("expected 1 shape warning (invalid network enum), got %d: %v", len(loadWarnings), loadWarnings)
	}
	if len(raws) != 2 {
		t.Fatalf("expected 2 syntactically valid entries, got %d", len(raws))
	}

	resolved, resolveWarnings, lookup := Resolve(raws, sampleModel(), nil)
	if len(resolved) != 1 {
		t.Fatalf("expected 1 resolved mapping, got %d: warnings=%v", len(resolved), resolveWarnings)
	}
	if len(resolveWarnings) != 1 || resolveWarnings[0].Reason != "lin_frame_not_found" {
		t.Errorf("expected lin_frame_not_found warning for Ghost, got %v", resolveWarnings)
	}
	if lookup.Source[busmodel.ChannelLIN][1] == nil {
		t.Error("expected source lookup index keyed by LIN frame id 1")
	}
	if lookup.Target[busmodel.ChannelCAN1][300] == nil {
		t.Error("expected target lookup index keyed by CAN1 message id 300")
	}
}

func TestLoadRejectsNonArray(t *testing.T) {
	_, _, err := Load([]byte(`{"not":"an array"}`), nil)
	if err == nil {
		t.Fatal("expected error for non-array top level JSON")
	}
}
