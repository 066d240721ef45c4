package schedule

import "testing"

import "github.com/anodyne74/linspect/internal/busmodel"

func tbl(name string, entries ...busmodel.ScheduleEntry) *busmodel.ScheduleTable {
	return &busmodel.ScheduleTable{Name: name, Entries: entries}
}

func TestGroupCollapsesIdenticalSchedules(t *testing.T) {
	schedules := map[string]*busmodel.ScheduleTable{
		"Normal":     tbl("Normal", busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10}, busmodel.ScheduleEntry{FrameName: "F2", DelayMs: 10}),
		"NormalCopy": tbl("NormalCopy", busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 10}, busmodel.ScheduleEntry{FrameName: "F2", DelayMs: 10}),
		"Diagnostic": tbl("Diagnostic", busmodel.ScheduleEntry{FrameName: "F3", DelayMs: 5}),
	}
	res := Group(schedules)
	if len(res.Unique) != 2 {
		t.Fatalf("expected 2 unique schedules, got %d: %v", len(res.Unique), res.Unique)
	}
	rep := res.OriginalToRepresentative["NormalCopy"]
	if rep != res.OriginalToRepresentative["Normal"] {
		t.Errorf("Normal and NormalCopy should share a representative, got %q and %q", res.OriginalToRepresentative["Normal"], rep)
	}
	if len(res.RepresentativeToGrouped[rep]) != 2 {
		t.Errorf("expected representative to list both original names, got %v", res.RepresentativeToGrouped[rep])
	}
}

func TestGroupIdempotent(t *testing.T) {
	schedules := map[string]*busmodel.ScheduleTable{
		"A": tbl("A", busmodel.ScheduleEntry{FrameName: "F1", DelayMs: 1}),
		"B": tbl("B", busmodel.ScheduleEntry{FrameName: "F2", DelayMs: 2}),
	}
	first := Group(schedules)
	second := Group(first.Unique)
	if len(first.Unique) != len(second.Unique) {
		t.Errorf("grouping is not idempotent: first=%d second=%d", len(first.Unique), len(second.Unique))
	}
}
