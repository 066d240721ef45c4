package engine

import (
	"sort"
)

// MaxTimingGapForAverage excludes inter-frame gaps wider than this from the
// frame-timing summary average (a parked vehicle between drive cycles
// should not skew timing stats) — see SPEC_FULL.md's supplemented features.
const MaxTimingGapForAverage = 1.0 // seconds

// finalize implements C9: it runs the gateway post-pass, derives every
// summary percentage/average/peak, and seals the AnalysisResult.
func (s *AnalysisState) finalize() *AnalysisResult {
	s.correlateGateways()
	s.finalizeFrameTiming()
	s.finalizeBusLoad()

	if s.haveFirst {
		s.result.TotalLogDurationS = s.lastTs - s.firstTs
	}
	return s.result
}

func (s *AnalysisState) finalizeFrameTiming() {
	keys := make([]string, 0, len(s.frameTiming))
	for k := range s.frameTiming {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		ts := s.frameTiming[key]
		if len(ts) < 2 {
			continue
		}
		sum := 0.0
		min, max := -1.0, -1.0
		n := 0
		for i := 1; i < len(ts); i++ {
			gap := ts[i] - ts[i-1]
			if gap > MaxTimingGapForAverage {
				continue
			}
			sum += gap
			if min < 0 || gap < min {
				min = gap
			}
			if gap > max {
				max = gap
			}
			n++
		}
		if n == 0 {
			continue
		}
		channel, id := splitFrameTimingKey(key)
		s.result.FrameTimingSummaries = append(s.result.FrameTimingSummaries, FrameTimingSummary{
			Channel: channel, FrameID: id, AvgMs: (sum / float64(n)) * 1000, MinMs: min * 1000, MaxMs: max * 1000, Samples: n,
		})
	}
}

func splitFrameTimingKey(key string) (string, int) {
	for i := len(key) - 1; i >= 0; i-- {
		if key[i] == '|' {
			channel := key[:i]
			id := 0
			for _, c := range key[i+1:] {
				id = id*10 + int(c-'0')
			}
			return channel, id
		}
	}
	return key, 0
}

func (s *AnalysisState) finalizeBusLoad() {
	if s.result.TotalLogDurationS <= 0 && s.haveFirst {
		s.result.TotalLogDurationS = s.lastTs - s.firstTs
	}
	duration := s.result.TotalLogDurationS
	window := s.cfg.BusLoadWindowS
	if window <= 0 {
		window = 1.0
	}

	var totalBusy float64
	maxIdx := -1
	for idx, busy := range s.busLoadWindows {
		totalBusy += busy
		if idx > maxIdx {
			maxIdx = idx
		}
	}

	byWindow := make([]float64, 0, maxIdx+1)
	for i := 0; i <= maxIdx; i++ {
		pct := 0.0
		if busy, ok := s.busLoadWindows[i]; ok {
			pct = (busy / window) * 100
		}
		byWindow = append(byWindow, pct)
	}

	overall := 0.0
	if duration > 0 {
		overall = (totalBusy / duration) * 100
	}

	byNode := map[string]float64{}
	for node, busy := range s.busLoadByNode {
		if duration > 0 {
			byNode[node] = (busy / duration) * 100
		}
	}

	s.result.BusLoad = BusLoadResult{OverallPercent: overall, ByWindow: byWindow, ByNode: byNode}
}
