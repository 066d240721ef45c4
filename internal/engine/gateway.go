package engine

import (
	"fmt"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/anodyne74/linspect/internal/logtoken"
	"github.com/anodyne74/linspect/internal/numeric"
)

func (s *AnalysisState) excludedSignal(name string) bool {
	for _, n := range s.cfg.ExcludeGatewaySignals {
		if n == name {
			return true
		}
	}
	return false
}

func extractResolved(data []byte, spec *busmodel.ResolvedSignal) uint64 {
	order := numeric.BigEndian
	if !spec.BigEndian {
		order = numeric.LittleEndian
	}
	return numeric.ExtractSignal(data, spec.StartBit, spec.Length, order, spec.Signed)
}

// captureGatewayLin appends a (ts,raw) event to every resolved mapping
// whose source or target signal sits on this LIN frame, while the network
// cycle is Active (spec.md §4.7).
func (s *AnalysisState) captureGatewayLin(rec *logtoken.LinFrameRecord) {
	if !s.cfg.EnableGatewayValidation || s.networkCycle.state != cycleActive {
		return
	}
	id := int(rec.PIDRaw & 0x3F)
	for _, m := range s.gwLookup.Source[busmodel.ChannelLIN][id] {
		if s.excludedSignal(m.SourceSignal) {
			continue
		}
		raw := extractResolved(rec.Data, m.SourceSignalSpec)
		s.gwSourceEvents[m.Index] = append(s.gwSourceEvents[m.Index], gatewayEvent{Ts: rec.Ts, Raw: raw})
	}
	for _, m := range s.gwLookup.Target[busmodel.ChannelLIN][id] {
		raw := extractResolved(rec.Data, m.TargetSignalSpec)
		s.gwTargetEvents[m.Index] = append(s.gwTargetEvents[m.Index], gatewayEvent{Ts: rec.Ts, Raw: raw})
	}
}

// captureGatewayCan is the CAN/CAN-FD side of gateway event capture.
func (s *AnalysisState) captureGatewayCan(rec *logtoken.CanFrameRecord) {
	if !s.cfg.EnableGatewayValidation || s.networkCycle.state != cycleActive {
		return
	}
	id := int(rec.ID)
	for _, m := range s.gwLookup.Source[rec.Channel][id] {
		if s.excludedSignal(m.SourceSignal) {
			continue
		}
		raw := extractResolved(rec.Data, m.SourceSignalSpec)
		s.gwSourceEvents[m.Index] = append(s.gwSourceEvents[m.Index], gatewayEvent{Ts: rec.Ts, Raw: raw})
	}
	for _, m := range s.gwLookup.Target[rec.Channel][id] {
		raw := extractResolved(rec.Data, m.TargetSignalSpec)
		s.gwTargetEvents[m.Index] = append(s.gwTargetEvents[m.Index], gatewayEvent{Ts: rec.Ts, Raw: raw})
	}
}

// correlateGateways is the post-pass of spec.md §4.8: for every mapping
// with both source and target events, each target event is paired with
// the latest source event inside the tolerance window, advancing the
// source pointer monotonically so repeated scans stay linear.
func (s *AnalysisState) correlateGateways() {
	for idx, mapping := range s.mappings {
		targets := s.gwTargetEvents[idx]
		sources := s.gwSourceEvents[idx]
		if len(targets) == 0 || len(sources) == 0 {
			continue
		}
		res := s.result.Gateway[idx]
		if res == nil {
			res = &GatewayMappingResult{MapIndex: idx}
			s.result.Gateway[idx] = res
		}

		srcPtr := 0
		for _, target := range targets {
			tolerance := s.cfg.GatewayToleranceS
			for srcPtr < len(sources) && sources[srcPtr].Ts < target.Ts-tolerance {
				srcPtr++
			}
			found := -1
			for p := srcPtr; p < len(sources) && sources[p].Ts < target.Ts; p++ {
				if sources[p].Ts >= target.Ts-tolerance {
					found = p
				}
			}

			res.Comparisons++
			if found < 0 {
				res.MismatchesTiming++
				continue
			}
			source := sources[found]
			latencySec := target.Ts - source.Ts
			res.Latency.observe(latencySec * 1000)

			status, match := compareGatewayValues(source.Raw, target.Raw, mapping.SourceSignalSpec, mapping.TargetSignalSpec)
			switch {
			case match:
				res.Matches++
			case status == "hybrid_mismatch":
				res.MismatchesType++
				res.MismatchExamples = append(res.MismatchExamples, fmt.Sprintf("hybrid mismatch src_raw=%d tgt_raw=%d", source.Raw, target.Raw))
			default:
				res.MismatchesValue++
				res.MismatchExamples = append(res.MismatchExamples, fmt.Sprintf("value mismatch src_raw=%d tgt_raw=%d latency=%.3fs", source.Raw, target.Raw, latencySec))
			}
		}
	}
}

// compareGatewayValues implements spec.md §4.9's three-way comparison.
func compareGatewayValues(srcRaw, tgtRaw uint64, src, tgt *busmodel.ResolvedSignal) (status string, match bool) {
	srcLabel, srcHasLabel := src.LogicalMap[int64(srcRaw)]
	tgtLabel, tgtHasLabel := tgt.LogicalMap[int64(tgtRaw)]

	switch {
	case srcHasLabel && tgtHasLabel:
		return "raw_logical", srcRaw == tgtRaw
	case !srcHasLabel && !tgtHasLabel:
		srcVal := numeric.Scale(float64(srcRaw), src.Factor, src.Offset)
		tgtVal := numeric.Scale(float64(tgtRaw), tgt.Factor, tgt.Offset)
		if src.Signed {
			srcVal = numeric.Scale(float64(int64(srcRaw)), src.Factor, src.Offset)
		}
		if tgt.Signed {
			tgtVal = numeric.Scale(float64(int64(tgtRaw)), tgt.Factor, tgt.Offset)
		}
		return "physical", numeric.PhysicallyEqual(srcVal, tgtVal)
	default:
		_ = srcLabel
		_ = tgtLabel
		return "hybrid_mismatch", false
	}
}
