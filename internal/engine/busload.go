package engine

import (
	"fmt"
	"strings"

	"github.com/anodyne74/linspect/internal/logtoken"
)

// accumulateBusLoadForFrame implements spec.md §4.7's LIN bus-load
// windowing: every LIN record contributes a frame_duration_s, bucketed by
// floor((ts-start)/W), and (supplemented) attributed to its publisher.
func (s *AnalysisState) accumulateBusLoadForFrame(rec *logtoken.LinFrameRecord) {
	if !s.haveBusLoad {
		s.haveBusLoad = true
		s.busLoadStartTs = rec.Ts
	}

	baud := float64(s.cfg.LinBaudrate)
	var durationS float64
	switch rec.Direction {
	case "Rx":
		if rec.Physical != nil && rec.Physical.FullTimeTbit != nil {
			durationS = *rec.Physical.FullTimeTbit / baud
		} else {
			durationS = (34 + 10*float64(len(rec.Data)+1)) / baud
		}
	default:
		if rec.Physical != nil && rec.Physical.HeaderTimeTbit != nil {
			durationS = *rec.Physical.HeaderTimeTbit / baud
		} else {
			durationS = 34 / baud
		}
	}

	window := s.cfg.BusLoadWindowS
	if window <= 0 {
		window = 1.0
	}
	idx := int((rec.Ts - s.busLoadStartTs) / window)
	s.busLoadWindows[idx] += durationS

	if id := int(rec.PIDRaw & 0x3F); id >= 0 {
		if frame := s.model.LIN.FramesByID[id]; frame != nil {
			s.busLoadByNode[frame.Publisher] += durationS
		}
	}
}

// accumulateFrameTiming records an Rx observation timestamp for the
// finalizer's per-(channel,id) timing summary (spec.md §4.10); only
// traffic observed while the network cycle is Active is meaningful for
// drive-cycle timing, matching linspector.py's own gating.
func (s *AnalysisState) accumulateFrameTiming(rec *logtoken.CanFrameRecord) {
	if s.networkCycle.state != cycleActive {
		return
	}
	if !strings.EqualFold(rec.Direction, "Rx") {
		return
	}
	key := fmt.Sprintf("%s|%d", rec.Channel, rec.ID)
	s.frameTiming[key] = append(s.frameTiming[key], rec.Ts)
}

func (s *AnalysisState) accumulateLinFrameTiming(rec *logtoken.LinFrameRecord) {
	if rec.Direction != "Rx" || s.networkCycle.state != cycleActive {
		return
	}
	key := fmt.Sprintf("LIN|%d", int(rec.PIDRaw&0x3F))
	s.frameTiming[key] = append(s.frameTiming[key], rec.Ts)
}
