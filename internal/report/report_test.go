package report

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/anodyne74/linspect/internal/engine"
)

func sampleResult() *engine.AnalysisResult {
	return &engine.AnalysisResult{
		TotalLogDurationS: 12.5,
		SkippedLines:      2,
		DLCErrors:         map[int]*engine.Bucket{1: {Count: 3}},
		ChecksumErrors:    map[int]*engine.Bucket{},
		ParityErrors:      map[int]*engine.Bucket{},
		ForeignIDs:        map[int]*engine.Bucket{},
		TransmissionErrors: map[string]*engine.Bucket{},
		RangeErrors:        map[string]*engine.Bucket{},
		SlaveFaults:        map[string]*engine.Bucket{},
		PhysicalErrors:     map[string]*engine.Bucket{},
		SyncErrors:         &engine.Bucket{},
		NetworkCycle:       engine.NetworkCycleSummary{CyclesCompleted: 4},
		BusLoad:            engine.BusLoadResult{OverallPercent: 37.2, ByNode: map[string]float64{"ECU1": 10.0}},
		Gateway:            map[int]*engine.GatewayMappingResult{},
	}
}

func TestWriteTextIncludesKeySections(t *testing.T) {
	var buf bytes.Buffer
	if err := WriteText(&buf, "trace.log", sampleResult()); err != nil {
		t.Fatalf("WriteText: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Trace Analysis for trace.log", "Network Cycle:", "Bus Load:", "ECU1", "37.20%"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q, got:\n%s", want, out)
		}
	}
}

func TestWriteJSONRoundTrips(t *testing.T) {
	var buf bytes.Buffer
	res := sampleResult()
	if err := WriteJSON(&buf, res); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}

	var decoded engine.AnalysisResult
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if decoded.TotalLogDurationS != res.TotalLogDurationS {
		t.Errorf("expected duration %v, got %v", res.TotalLogDurationS, decoded.TotalLogDurationS)
	}
	if decoded.BusLoad.OverallPercent != res.BusLoad.OverallPercent {
		t.Errorf("expected bus load %v, got %v", res.BusLoad.OverallPercent, decoded.BusLoad.OverallPercent)
	}
}
