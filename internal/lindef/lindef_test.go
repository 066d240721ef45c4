package lindef

import "testing"

const sampleLDF = `
LIN_description_file;

Nodes {
  Master: ECU1, 10 ms, 0.1 ms;
  Slaves: Sensor1;
}

Signals {
  EngineSpeed: 16, 0, ECU1, Sensor1;
  VinData: 64, {0}, ECU1, Sensor1;
}

Signal_encoding_types {
  EngineSpeedEncoding {
    physical_value, 0, 8000, 1, 0, "rpm";
  }
}

Signal_representation {
  EngineSpeedEncoding: EngineSpeed;
}

Frames {
  EngineData: 0x01, ECU1, 4 {
    EngineSpeed, 0;
  }
  VinFrame: 0x02, Sensor1, 8 {
    VinData, 0;
  }
}

Schedule_tables {
  NormalSchedule {
    EngineData delay 10 ms;
    VinFrame delay 10 ms;
  }
}

Node_attributes {
  Sensor1 {
    response_error = RespErr;
  }
}
`

func TestParseHappyPath(t *testing.T) {
	model, err := Parse(sampleLDF, ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if model.MasterName != "ECU1" {
		t.Errorf("master name = %q, want ECU1", model.MasterName)
	}
	if model.MasterTimebaseMs != 10 || model.MasterJitterMs != 0.1 {
		t.Errorf("timebase/jitter = %v/%v, want 10/0.1", model.MasterTimebaseMs, model.MasterJitterMs)
	}
	if len(model.Slaves) != 1 || model.Slaves[0] != "Sensor1" {
		t.Errorf("slaves = %v, want [Sensor1]", model.Slaves)
	}
	frame, ok := model.Frames["EngineData"]
	if !ok {
		t.Fatal("expected EngineData frame")
	}
	if frame.ID != 0x01 || frame.DLC != 4 {
		t.Errorf("frame id/dlc = %d/%d, want 1/4", frame.ID, frame.DLC)
	}
	sig, ok := frame.SignalByName("EngineSpeed")
	if !ok {
		t.Fatal("expected EngineSpeed signal on EngineData frame")
	}
	if sig.Factor != 1 || sig.Unit != "rpm" {
		t.Errorf("signal factor/unit = %v/%q, want 1/rpm", sig.Factor, sig.Unit)
	}
	if sig.Encoding != 0 {
		_ = sig.Encoding
	}
	if model.FramesByID[0x02].Name != "VinFrame" {
		t.Error("expected frame lookup by id to find VinFrame")
	}
	sched, ok := model.Schedules["NormalSchedule"]
	if !ok || len(sched.Entries) != 2 {
		t.Fatalf("expected NormalSchedule with 2 entries, got %+v", sched)
	}
	if got := model.ResponseErrorSig["Sensor1"]; got != "RespErr" {
		t.Errorf("response error signal = %q, want RespErr", got)
	}
}

func TestParseMissingNodes(t *testing.T) {
	_, err := Parse("Signals {}\nFrames { F: 0x01, X, 1 { } }", ParseOptions{})
	if err == nil {
		t.Fatal("expected error for missing Nodes section")
	}
}

func TestParseNoFrames(t *testing.T) {
	text := `Nodes { Master: M, 10 ms; }`
	_, err := Parse(text, ParseOptions{})
	if err == nil {
		t.Fatal("expected error when no frames are found")
	}
}

func TestParseScheduleDroppedOnUnknownFrame(t *testing.T) {
	text := `
Nodes { Master: M, 10 ms; }
Frames {
  F1: 0x01, M, 1 { }
}
Schedule_tables {
  Bad {
    F1 delay 10 ms;
    Ghost delay 10 ms;
  }
}
`
	model, err := Parse(text, ParseOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, exists := model.Schedules["Bad"]; exists {
		t.Error("expected schedule referencing unknown frame to be dropped")
	}
}
