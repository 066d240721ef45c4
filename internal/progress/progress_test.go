package progress

import (
	"io"
	"strings"
	"testing"
)

func TestNewReporterStartsNotDone(t *testing.T) {
	r := NewReporter("trace.log")
	snap := r.Snapshot()
	if snap.Done {
		t.Errorf("expected a fresh reporter to not be done")
	}
	if snap.File != "trace.log" {
		t.Errorf("expected file=trace.log, got %q", snap.File)
	}
}

func TestFinishMarksDone(t *testing.T) {
	r := NewReporter("trace.log")
	r.Finish()
	if !r.Snapshot().Done {
		t.Errorf("expected Done after Finish")
	}
}

func TestCountingReaderTalliesLinesAndBytes(t *testing.T) {
	r := NewReporter("trace.log")
	src := "0.000 Li C1 Rx\n0.010 Li 42 Rx 05 FA\n0.020 Li C1 Rx\n"
	cr := NewCountingReader(strings.NewReader(src), r)

	out, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(out) != src {
		t.Errorf("expected passthrough content to be unchanged, got %q", out)
	}

	snap := r.Snapshot()
	if snap.LinesRead != 3 {
		t.Errorf("expected 3 lines read, got %d", snap.LinesRead)
	}
	if snap.BytesRead != int64(len(src)) {
		t.Errorf("expected %d bytes read, got %d", len(src), snap.BytesRead)
	}
}

func TestCountingReaderEmptyInput(t *testing.T) {
	r := NewReporter("trace.log")
	cr := NewCountingReader(strings.NewReader(""), r)
	out, err := io.ReadAll(cr)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(out) != 0 {
		t.Errorf("expected no output for empty input, got %q", out)
	}
	if r.Snapshot().LinesRead != 0 {
		t.Errorf("expected zero lines read, got %d", r.Snapshot().LinesRead)
	}
}
