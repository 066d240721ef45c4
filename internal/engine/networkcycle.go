package engine

import (
	"fmt"
	"strings"

	"github.com/anodyne74/linspect/internal/logtoken"
)

func isWakeText(text string) bool {
	t := strings.ToLower(text)
	return strings.Contains(t, "wake") || strings.Contains(t, "waking")
}

func isSleepText(text string) bool {
	return strings.Contains(strings.ToLower(text), "sleep")
}

// handleLinFrame is the per-LIN-frame entry point: it drives the network
// cycle machine (implicit start / frames_after_sleep), then the rest of
// the per-record pipeline (schedule cursor, validators, bus load, gateway
// capture) once the cycle state is known.
func (s *AnalysisState) handleLinFrame(rec *logtoken.LinFrameRecord) {
	ts := rec.Ts
	if s.networkCycle.state == cycleIdle {
		s.result.FramesAfterSleep.observe(ts, fmt.Sprintf("id=0x%02X", rec.PIDRaw&0x3F))
		s.startCycle(ts, "Implicit Start")
		s.result.NetworkCycle.ImplicitStarts++
	}

	id := int(rec.PIDRaw & 0x3F)
	fr := s.model.LIN.FramesByID[id]

	if s.networkCycle.state == cycleActive && rec.Direction == "Rx" && fr != nil {
		if fr.Publisher == s.model.LIN.MasterName && !s.networkCycle.firstMasterFound {
			s.networkCycle.firstMasterFound = true
			if s.networkCycle.haveLastWake {
				s.result.NetworkCycle.MasterResponseDelayMs.observe((ts - s.networkCycle.lastWakeTs) * 1000)
			}
		}
	}

	if s.cfg.EnableScheduleValidation && s.networkCycle.state == cycleActive && rec.Direction == "Rx" {
		s.advanceSchedule(ts, s.frameNameForID(id))
	}

	s.validateLinFrame(rec)
	s.accumulateBusLoadForFrame(rec)
	s.accumulateLinFrameTiming(rec)
	s.captureGatewayLin(rec)

	if s.networkCycle.state == cycleActive && rec.PIDRaw&0x3F == 0x3C && len(rec.Data) > 0 && rec.Data[0] == 0x00 {
		s.endCycle(ts)
	}
}

func (s *AnalysisState) frameNameForID(id int) string {
	if fr := s.model.LIN.FramesByID[id]; fr != nil {
		return fr.Name
	}
	return ""
}

// handleLinEvent dispatches Spike/TransmErr/RcvError (schedule-relevant
// traffic), sleep/wake events (network cycle + logger activity), and the
// inert SchedModChng/UnexpectedWakeup lines.
func (s *AnalysisState) handleLinEvent(ev *logtoken.LinEventRecord) {
	switch ev.Kind {
	case logtoken.EventSleepModeEvent:
		s.handleSleepModeEvent(ev)
		return
	case logtoken.EventSchedModChng:
		s.result.ScheduleChangeEvents++
		return
	case logtoken.EventUnexpectedWakeup:
		s.result.NetworkCycle.UnexpectedWakeups++
		return
	case logtoken.EventWakeupFrame:
		return
	}

	// Spike / TransmErr / RcvError: schedule-relevant traffic per spec.md §4.7.
	ts := ev.Ts
	if s.networkCycle.state == cycleIdle {
		s.result.FramesAfterSleep.observe(ts, eventKindLabel(ev.Kind))
		s.startCycle(ts, "Implicit Start")
		s.result.NetworkCycle.ImplicitStarts++
	}

	if s.cfg.EnableScheduleValidation && s.networkCycle.state == cycleActive && ev.FrameID != nil {
		s.advanceSchedule(ts, s.frameNameForID(*ev.FrameID))
	}

	s.validateLinEvent(ev)
}

func (s *AnalysisState) handleSleepModeEvent(ev *logtoken.LinEventRecord) {
	ts := ev.Ts
	channel := 0
	if ev.Channel != nil {
		channel = *ev.Channel
	}

	if channel == 1 {
		switch {
		case isWakeText(ev.Text):
			if s.networkCycle.state == cycleIdle {
				s.startCycle(ts, "Explicit Wake")
				s.networkCycle.haveLastWake = true
				s.networkCycle.lastWakeTs = ts
			} else {
				s.result.NetworkCycle.UnexpectedWakeups++
			}
		case isSleepText(ev.Text):
			if s.networkCycle.state == cycleActive {
				s.endCycle(ts)
			}
		}
		return
	}

	// channel 0: logger activity machine, reporting only (spec.md §4.7).
	switch {
	case isWakeText(ev.Text):
		if !s.loggerActivity.active {
			s.loggerActivity.active = true
			s.loggerActivity.startTs = ts
		}
	case isSleepText(ev.Text):
		if s.loggerActivity.active {
			s.result.LoggerActivity = append(s.result.LoggerActivity, ActivityPeriod{
				StartTs: s.loggerActivity.startTs, EndTs: ts, Duration: ts - s.loggerActivity.startTs,
			})
			s.loggerActivity.active = false
		}
	}
}

func (s *AnalysisState) startCycle(ts float64, detail string) {
	s.networkCycle.state = cycleActive
	s.networkCycle.startedAt = ts
	s.networkCycle.firstMasterFound = false
	_ = detail
}

func (s *AnalysisState) endCycle(ts float64) {
	if s.cursor != nil {
		s.abortCycle(ts, "cycle ended mid-schedule")
	}
	s.networkCycle.state = cycleIdle
	s.networkCycle.haveLastWake = false
	s.result.NetworkCycle.CyclesCompleted++
}

func eventKindLabel(k logtoken.LinEventKind) string {
	switch k {
	case logtoken.EventSpike:
		return "Spike"
	case logtoken.EventTransmErr:
		return "TransmErr"
	case logtoken.EventRcvError:
		return "RcvError"
	default:
		return "Event"
	}
}
