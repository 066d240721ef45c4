package engine

import (
	"strings"
	"testing"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/anodyne74/linspect/internal/config"
	"github.com/anodyne74/linspect/internal/gatewaymap"
	"github.com/anodyne74/linspect/internal/logtoken"
)

func testModel(scheduleEntries ...busmodel.ScheduleEntry) *busmodel.BusModel {
	f1 := &busmodel.LinFrame{Name: "F1", ID: 1, Publisher: "M", DLC: 0}
	f2 := &busmodel.LinFrame{Name: "F2", ID: 2, Publisher: "S", DLC: 2, Signals: []busmodel.LinSignalInstance{
		{Name: "Sig", StartBit: 0, Length: 8, Factor: 1, Offset: 0, Encoding: busmodel.EncodingPhysical},
	}}
	lin := &busmodel.BusModelLIN{
		MasterName:       "M",
		ResponseErrorSig: map[string]string{},
		Frames:           map[string]*busmodel.LinFrame{"F1": f1, "F2": f2},
		FramesByID:       map[int]*busmodel.LinFrame{1: f1, 2: f2},
		Schedules:        map[string]*busmodel.ScheduleTable{"Sched": {Name: "Sched", Entries: scheduleEntries}},
	}
	return &busmodel.BusModel{LIN: lin, CAN: map[busmodel.Channel]*busmodel.BusModelCAN{}}
}

func run(t *testing.T, model *busmodel.BusModel, log string) *AnalysisResult {
	t.Helper()
	return runWithGateway(t, model, gatewaymap.Lookup{}, log)
}

func runWithGateway(t *testing.T, model *busmodel.BusModel, gwLookup gatewaymap.Lookup, log string) *AnalysisResult {
	t.Helper()
	cfg := config.DefaultEngineConfig()
	st := New(cfg, model, gwLookup, nil)
	tok := logtoken.New(strings.NewReader(log))
	res, err := st.Run(tok)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return res
}

// gatewayTestModel adds a CAN1 message ("CM1", ID 0x100, signal "Mirror") to
// testModel's LIN frames, wired as a gateway target for F2's "Sig" signal.
func gatewayTestModel(t *testing.T) (*busmodel.BusModel, gatewaymap.Lookup) {
	t.Helper()
	model := testModel(
		busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10},
		busmodel.ScheduleEntry{FrameName: "F2", DelayMs: 10},
	)
	model.CAN[busmodel.ChannelCAN1] = &busmodel.BusModelCAN{
		Channel:  busmodel.ChannelCAN1,
		BaudRate: 500000,
		Messages: map[uint32]*busmodel.CanMessage{
			0x100: {Name: "CM1", ID: 0x100, DLC: 1, Signals: []busmodel.CanSignal{
				{Name: "Mirror", StartBit: 0, Length: 8, Factor: 1, Offset: 0},
			}},
		},
	}

	data := []byte(`[{"source_network":"LIN","source_message":"F2","source_signal":"Sig","target_network":"CAN1","target_message":"CM1","target_signal":"Mirror"}]`)
	raws, _, err := gatewaymap.Load(data, nil)
	if err != nil {
		t.Fatalf("gatewaymap.Load: %v", err)
	}
	_, warnings, lookup := gatewaymap.Resolve(raws, model, nil)
	if len(warnings) != 0 {
		t.Fatalf("unexpected resolve warnings: %+v", warnings)
	}
	return model, lookup
}

func TestHappyPathCompletesScheduleWithNoTimingMismatch(t *testing.T) {
	model := testModel(
		busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10},
		busmodel.ScheduleEntry{FrameName: "F2", DelayMs: 10},
	)
	res := run(t, model, "0.000 Li C1 Rx\n0.010 Li 42 Rx 05 FA checksum=BD CSM=Enhanced\n")

	if len(res.ScheduleCycles) != 1 || res.ScheduleCycles[0].Status != "Completed" {
		t.Fatalf("expected one completed cycle, got %+v", res.ScheduleCycles)
	}
	if len(res.ScheduleTimingMismatches) != 0 {
		t.Errorf("expected no timing mismatches, got %v", res.ScheduleTimingMismatches)
	}
	st := res.SignalStats["LIN|Sig"]
	if st == nil || st.MinPhys != 5 || st.MaxPhys != 5 {
		t.Errorf("expected Sig min=max=5, got %+v", st)
	}
	if res.BusLoad.OverallPercent <= 0 {
		t.Errorf("expected positive bus load, got %v", res.BusLoad.OverallPercent)
	}
	if res.NetworkCycle.ImplicitStarts != 1 {
		t.Errorf("expected one implicit start, got %d", res.NetworkCycle.ImplicitStarts)
	}
}

func TestChecksumFailureRecordsErrorBucket(t *testing.T) {
	model := testModel(
		busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10},
		busmodel.ScheduleEntry{FrameName: "F2", DelayMs: 10},
	)
	res := run(t, model, "0.000 Li C1 Rx\n0.010 Li 42 Rx 05 FA checksum=00 CSM=Enhanced\n")

	b := res.ChecksumErrors[2]
	if b == nil || b.Count != 1 {
		t.Fatalf("expected one checksum error for id 2, got %+v", b)
	}
}

func TestIntrusionFrameOutsideSchedule(t *testing.T) {
	model := testModel(busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10})
	res := run(t, model, "0.000 Li C1 Rx\n0.005 Li 42 Rx 00 00\n")

	b := res.IntrusionFrames["F2"]
	if b == nil || b.Count != 1 {
		t.Fatalf("expected one intrusion frame event for F2, got %+v", res.IntrusionFrames)
	}
}

func TestImplicitCycleStartNoFatalError(t *testing.T) {
	model := testModel(busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10})
	res := run(t, model, "0.000 Li C1 Rx\n")
	if res.NetworkCycle.ImplicitStarts != 1 {
		t.Errorf("expected implicit start flag, got %d", res.NetworkCycle.ImplicitStarts)
	}
}

func TestEmptyLogYieldsZeroedResult(t *testing.T) {
	model := testModel(busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10})
	res := run(t, model, "")
	if res.SkippedLines != 0 || len(res.ScheduleCycles) != 0 || res.TotalLogDurationS != 0 {
		t.Errorf("expected zero-valued result for empty log, got %+v", res)
	}
}

func TestUnknownLinIDRecordsForeignID(t *testing.T) {
	model := testModel(busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10})
	res := run(t, model, "0.000 Li 00 Rx\n")
	if len(res.ForeignIDs) != 1 {
		t.Fatalf("expected exactly one foreign LIN id entry, got %v", res.ForeignIDs)
	}
}

func TestGatewayCorrelationMatchesWithinTolerance(t *testing.T) {
	model, lookup := gatewayTestModel(t)
	log := "0.000 Li C1 Rx\n" +
		"0.010 Li 42 Rx 05 FA checksum=BD CSM=Enhanced\n" +
		"0.015 CAN1 100 Rx 05 00 00 00 00 00 00 00\n"
	res := runWithGateway(t, model, lookup, log)

	gw := res.Gateway[0]
	if gw == nil || gw.Matches != 1 {
		t.Fatalf("expected one gateway match, got %+v", gw)
	}
	if gw.MismatchesValue != 0 || gw.MismatchesTiming != 0 || gw.MismatchesType != 0 {
		t.Errorf("expected no mismatches, got %+v", gw)
	}
}

func TestGatewayCorrelationMissesOutsideTolerance(t *testing.T) {
	model, lookup := gatewayTestModel(t)
	log := "0.000 Li C1 Rx\n" +
		"0.010 Li 42 Rx 05 FA checksum=BD CSM=Enhanced\n" +
		"0.100 CAN1 100 Rx 05 00 00 00 00 00 00 00\n"
	res := runWithGateway(t, model, lookup, log)

	gw := res.Gateway[0]
	if gw == nil || gw.MismatchesTiming != 1 {
		t.Fatalf("expected one gateway timing mismatch, got %+v", gw)
	}
	if gw.Matches != 0 {
		t.Errorf("expected no matches, got %+v", gw)
	}
}
