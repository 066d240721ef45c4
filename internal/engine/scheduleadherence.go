package engine

import (
	"fmt"
	"sort"
)

// scheduleCursor is the cursor state for the active schedule-adherence
// cycle, rebuilt fresh every time a cycle starts (spec.md §4.7).
type scheduleCursor struct {
	cycleID         int
	activeSchedules []string
	currentIndex    int
	lastEventTs     float64
	cycleStartTs    float64
	events          []ScheduleCycleEvent
	hasTimingErrors bool
}

// advanceSchedule feeds one observed LIN frame name into the schedule
// cursor state machine: starting a cycle, pruning ambiguity, checking slot
// timing, or aborting on a sequence mismatch. Mirrors linspector.py's
// validate_schedule_order_and_presence `while True:` loop: an abort (for
// either reason) retries the same observed frame as a candidate new-cycle
// start rather than dropping it.
func (s *AnalysisState) advanceSchedule(ts float64, frameName string) {
	if frameName == "" {
		return
	}
	for {
		if s.cursor == nil {
			s.maybeStartCycle(ts, frameName)
			return
		}

		expected := s.expectedAt(s.cursor.activeSchedules, s.cursor.currentIndex)
		if len(expected) == 0 {
			s.abortCycle(ts, "no schedule entries remain at current slot")
			continue
		}
		s.bumpRequestCounters(expected)

		schedsAtSlot, isExpected := expected[frameName]
		if !isExpected {
			s.cursor.events = append(s.cursor.events, ScheduleCycleEvent{Ts: ts, Kind: "Sequence Mismatch",
				Detail: fmt.Sprintf("expected one of %v, observed %q", expectedNames(expected), frameName)})
			s.abortCycle(ts, "sequence mismatch")
			continue
		}

		if fr := s.model.LIN.Frames[frameName]; fr != nil && fr.Publisher != s.model.LIN.MasterName {
			s.nodeResponseStat(fr.Publisher).Responses++
		}

		for _, schedName := range schedsAtSlot {
			tbl := s.model.LIN.Schedules[schedName]
			entry := tbl.Entries[s.cursor.currentIndex]
			s.checkSlotTiming(ts, schedName, s.cursor.currentIndex, ts-s.cursor.lastEventTs, entry.DelayMs)
		}

		s.cursor.activeSchedules = schedsAtSlot
		s.cursor.currentIndex++
		s.cursor.lastEventTs = ts

		rep := s.cursor.activeSchedules[0]
		if len(s.cursor.activeSchedules) == 1 && s.cursor.currentIndex >= len(s.model.LIN.Schedules[rep].Entries) {
			s.completeCycle(ts, rep)
		}
		return
	}
}

func (s *AnalysisState) maybeStartCycle(ts float64, frameName string) {
	var candidates []string
	for name, tbl := range s.model.LIN.Schedules {
		if len(tbl.Entries) > 0 && tbl.Entries[0].FrameName == frameName {
			candidates = append(candidates, name)
		}
	}
	if len(candidates) == 0 {
		s.bucketForKey(s.result.IntrusionFrames, frameName).observe(ts, fmt.Sprintf("no active schedule, frame %q observed", frameName))
		return
	}
	sort.Strings(candidates)
	s.cycleIDCounter++
	s.cursor = &scheduleCursor{
		cycleID:         s.cycleIDCounter,
		activeSchedules: candidates,
		currentIndex:    1,
		cycleStartTs:    ts,
		lastEventTs:     ts,
	}
	s.cursor.events = append(s.cursor.events, ScheduleCycleEvent{Ts: ts, Kind: "Cycle Start",
		Detail: fmt.Sprintf("candidates=%v", candidates)})

	if len(candidates) == 1 && 1 >= len(s.model.LIN.Schedules[candidates[0]].Entries) {
		s.completeCycle(ts, candidates[0])
	}
}

// expectedAt returns, for every schedule still active, the frame name
// expected at idx, grouped back by frame name so ambiguity between
// schedules sharing a prefix can be pruned.
func (s *AnalysisState) expectedAt(active []string, idx int) map[string][]string {
	out := map[string][]string{}
	for _, name := range active {
		tbl := s.model.LIN.Schedules[name]
		if tbl == nil || idx >= len(tbl.Entries) {
			continue
		}
		frameName := tbl.Entries[idx].FrameName
		out[frameName] = append(out[frameName], name)
	}
	return out
}

func expectedNames(m map[string][]string) []string {
	var out []string
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (s *AnalysisState) checkSlotTiming(ts float64, schedule string, slot int, observedSec, expectedMs float64) {
	expectedSec := expectedMs / 1000.0
	masterJitterSec := s.model.LIN.MasterJitterMs / 1000.0
	tol := maxFloat(expectedSec*s.cfg.ScheduleToleranceFactor, s.cfg.ScheduleMinAbsoluteToleranceS) + masterJitterSec

	key := fmt.Sprintf("%s|%d", schedule, slot)
	js := s.result.ScheduleSlotTiming[key]
	if js == nil {
		js = &JitterStats{}
		s.result.ScheduleSlotTiming[key] = js
	}
	js.observe(observedSec * 1000)

	if absFloat(observedSec-expectedSec) > tol {
		s.cursor.hasTimingErrors = true
		tm := s.result.ScheduleTimingMismatches[key]
		if tm == nil {
			tm = &ScheduleTimingMismatch{Schedule: schedule, Slot: slot}
			s.result.ScheduleTimingMismatches[key] = tm
		}
		tm.Bucket.observe(ts, fmt.Sprintf("expected=%.3fms observed=%.3fms", expectedMs, observedSec*1000))
		tm.Observed.observe(observedSec * 1000)
	}
}

func (s *AnalysisState) completeCycle(ts float64, schedule string) {
	s.cursor.events = append(s.cursor.events, ScheduleCycleEvent{Ts: ts, Kind: "Cycle Completed", Detail: schedule})
	status := "Completed"
	s.result.ScheduleCycles = append(s.result.ScheduleCycles, ScheduleCycleRecord{
		CycleID: s.cursor.cycleID, Schedule: schedule, Status: status, Events: s.cursor.events,
	})
	s.cursor = nil
}

func (s *AnalysisState) abortCycle(ts float64, reason string) {
	s.cursor.events = append(s.cursor.events, ScheduleCycleEvent{Ts: ts, Kind: "Aborted", Detail: reason})
	s.result.ScheduleCycles = append(s.result.ScheduleCycles, ScheduleCycleRecord{
		CycleID: s.cursor.cycleID, Schedule: joinNames(s.cursor.activeSchedules), Status: "Aborted", Events: s.cursor.events,
	})
	s.cursor = nil
}

func (s *AnalysisState) nodeResponseStat(node string) *NodeResponseStat {
	nr := s.result.NodeResponseStats[node]
	if nr == nil {
		nr = &NodeResponseStat{Node: node}
		s.result.NodeResponseStats[node] = nr
	}
	return nr
}

// bumpRequestCounters increments Requests once per non-master publisher
// expected at the current slot, per spec.md §4.7.
func (s *AnalysisState) bumpRequestCounters(expected map[string][]string) {
	for frameName := range expected {
		fr := s.model.LIN.Frames[frameName]
		if fr == nil || fr.Publisher == s.model.LIN.MasterName {
			continue
		}
		s.nodeResponseStat(fr.Publisher).Requests++
	}
}

func joinNames(names []string) string {
	out := ""
	for i, n := range names {
		if i > 0 {
			out += ","
		}
		out += n
	}
	return out
}

func maxFloat(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func absFloat(a float64) float64 {
	if a < 0 {
		return -a
	}
	return a
}
