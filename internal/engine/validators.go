package engine

import (
	"fmt"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/anodyne74/linspect/internal/logtoken"
	"github.com/anodyne74/linspect/internal/numeric"
)

func (s *AnalysisState) validateLinFrame(rec *logtoken.LinFrameRecord) {
	id := int(rec.PIDRaw & 0x3F)
	frame := s.model.LIN.FramesByID[id]

	if frame == nil {
		s.bucketFor(s.result.ForeignIDs, id).observe(rec.Ts, fmt.Sprintf("id=0x%02X", id))
	} else if frame.DLC != len(rec.Data) {
		s.bucketFor(s.result.DLCErrors, id).observe(rec.Ts, fmt.Sprintf("id=0x%02X expected=%d observed=%d", id, frame.DLC, len(rec.Data)))
	}

	if rec.PIDRaw >= 0x40 && !numeric.CheckParity(rec.PIDRaw) {
		s.bucketFor(s.result.ParityErrors, int(rec.PIDRaw)).observe(rec.Ts, fmt.Sprintf("pid=0x%02X", rec.PIDRaw))
	}

	if s.cfg.EnableChecksumValidation && rec.DeclaredChecksum != nil && (rec.CSM == "Classic" || rec.CSM == "Enhanced") {
		var expected byte
		if rec.CSM == "Enhanced" {
			pid, err := numeric.CalculatePID(id)
			if err == nil {
				expected = numeric.EnhancedChecksum(pid, rec.Data)
			}
		} else {
			expected = numeric.ClassicChecksum(rec.Data)
		}
		if expected != *rec.DeclaredChecksum {
			s.bucketFor(s.result.ChecksumErrors, id).observe(rec.Ts,
				fmt.Sprintf("id=0x%02X expected=0x%02X observed=0x%02X", id, expected, *rec.DeclaredChecksum))
		}
	}

	if frame != nil {
		s.decodeLinSignals(frame, rec)
		s.slaveResponsePerformance(frame, rec)
		s.slaveFaultSignal(frame, rec)
	}

	if s.cfg.EnablePhysicalValidation && rec.Physical != nil {
		s.validatePhysical(frame, rec)
	}
}

func (s *AnalysisState) validateLinEvent(ev *logtoken.LinEventRecord) {
	key := eventKindLabel(ev.Kind)
	if ev.FrameID != nil {
		key = fmt.Sprintf("%s:0x%02X", key, *ev.FrameID)
	}
	s.bucketForKey(s.result.TransmissionErrors, key).observe(ev.Ts, ev.Text)
}

func (s *AnalysisState) bucketFor(m map[int]*Bucket, key int) *Bucket {
	b := m[key]
	if b == nil {
		b = &Bucket{}
		m[key] = b
	}
	return b
}

func (s *AnalysisState) bucketForKey(m map[string]*Bucket, key string) *Bucket {
	b := m[key]
	if b == nil {
		b = &Bucket{}
		m[key] = b
	}
	return b
}

// decodeLinSignals extracts, scales and displays every signal bound to
// frame out of rec's payload, updating the per-(network,signal) stat and
// the range-error bucket (spec.md §4.7).
func (s *AnalysisState) decodeLinSignals(frame *busmodel.LinFrame, rec *logtoken.LinFrameRecord) {
	for i := range frame.Signals {
		sig := &frame.Signals[i]
		raw := numeric.ExtractSignal(rec.Data, sig.StartBit, sig.Length, numeric.LittleEndian, false)
		phys := numeric.Scale(float64(raw), sig.Factor, sig.Offset)

		display := formatPhysical(phys, sig.Unit)
		if (sig.Encoding == busmodel.EncodingLogical || sig.Encoding == busmodel.EncodingHybrid) && sig.LogicalMap != nil {
			if label, ok := sig.LogicalMap[int64(raw)]; ok {
				display = label
			}
		}

		key := "LIN|" + sig.Name
		stat := s.signalStat(key, "LIN", sig.Name, frame.Name, sig.Unit, sig.Encoding.String())
		s.updateSignalStat(stat, phys, display, rec.Ts)

		if (sig.Encoding == busmodel.EncodingPhysical || sig.Encoding == busmodel.EncodingHybrid) && sig.PhysRange.Defined {
			if phys < sig.PhysRange.Min || phys > sig.PhysRange.Max {
				s.bucketForKey(s.result.RangeErrors, key).observe(rec.Ts,
					fmt.Sprintf("%s=%.3f outside [%.3f,%.3f]", sig.Name, phys, sig.PhysRange.Min, sig.PhysRange.Max))
			}
		}
	}
}

func (s *AnalysisState) signalStat(key, network, name, frameName, unit, encoding string) *SignalStat {
	st := s.result.SignalStats[key]
	if st == nil {
		st = &SignalStat{Network: network, Signal: name, FrameName: frameName, Unit: unit, Encoding: encoding}
		s.result.SignalStats[key] = st
	}
	return st
}

func (s *AnalysisState) updateSignalStat(st *SignalStat, phys float64, display string, ts float64) {
	if !st.initialized {
		st.MinPhys, st.MaxPhys = phys, phys
		st.MinDisplay, st.MaxDisplay = display, display
		st.FirstTs = ts
		st.initialized = true
	} else {
		if phys < st.MinPhys {
			st.MinPhys, st.MinDisplay = phys, display
		}
		if phys > st.MaxPhys {
			st.MaxPhys, st.MaxDisplay = phys, display
		}
	}
	st.LastTs = ts
	st.Count++
}

func formatPhysical(phys float64, unit string) string {
	if unit == "" {
		return fmt.Sprintf("%.3f", phys)
	}
	return fmt.Sprintf("%.3f%s", phys, unit)
}

// slaveResponsePerformance implements spec.md §4.7's slave response-time
// accumulator: EOH to first EOB; samples outside the open (0,10ms) sanity
// window are dropped.
func (s *AnalysisState) slaveResponsePerformance(frame *busmodel.LinFrame, rec *logtoken.LinFrameRecord) {
	if frame.Publisher == s.model.LIN.MasterName || rec.Physical == nil {
		return
	}
	if rec.Physical.EOH == nil || len(rec.Physical.EOB) == 0 {
		return
	}
	respMs := (rec.Physical.EOB[0] - *rec.Physical.EOH) * 1000
	if respMs <= 0 || respMs >= 10 {
		return
	}
	nr := s.nodeResponseStat(frame.Publisher)
	if nr.Count == 0 {
		nr.MinMs, nr.MaxMs = respMs, respMs
	} else {
		if respMs < nr.MinMs {
			nr.MinMs = respMs
		}
		if respMs > nr.MaxMs {
			nr.MaxMs = respMs
		}
	}
	nr.SumMs += respMs
	nr.Count++
	nr.FramesPublished++
}

// slaveFaultSignal reports a non-zero response-error signal value,
// spec.md §4.7's "slave fault signal" check.
func (s *AnalysisState) slaveFaultSignal(frame *busmodel.LinFrame, rec *logtoken.LinFrameRecord) {
	sigName, ok := s.model.LIN.ResponseErrorSig[frame.Publisher]
	if !ok {
		return
	}
	sig, ok := frame.SignalByName(sigName)
	if !ok {
		return
	}
	raw := numeric.ExtractSignal(rec.Data, sig.StartBit, sig.Length, numeric.LittleEndian, false)
	if raw != 0 {
		key := frame.Publisher + "|" + sigName
		s.bucketForKey(s.result.SlaveFaults, key).observe(rec.Ts, fmt.Sprintf("raw=%d", raw))
	}
}

// handleCanFrame decodes a CAN/CAN-FD record against its channel's
// BusModelCAN, honoring multiplexed signals, and captures gateway events.
func (s *AnalysisState) handleCanFrame(rec *logtoken.CanFrameRecord) {
	canModel := s.model.CAN[rec.Channel]
	var msg *busmodel.CanMessage
	if canModel != nil {
		msg = canModel.Messages[rec.ID]
	}
	if msg != nil {
		s.decodeCanSignals(rec.Channel, msg, rec)
	}

	s.accumulateFrameTiming(rec)
	s.captureGatewayCan(rec)
}

func (s *AnalysisState) decodeCanSignals(channel busmodel.Channel, msg *busmodel.CanMessage, rec *logtoken.CanFrameRecord) {
	muxSwitch := int64(-1)
	haveMux := false
	for i := range msg.Signals {
		sig := &msg.Signals[i]
		if sig.IsMultiplexer {
			order := numeric.BigEndian
			if !sig.BigEndian {
				order = numeric.LittleEndian
			}
			raw := numeric.ExtractSignal(rec.Data, sig.StartBit, sig.Length, order, false)
			muxSwitch = int64(raw)
			haveMux = true
			break
		}
	}

	for i := range msg.Signals {
		sig := &msg.Signals[i]
		if sig.IsMultiplexer {
			continue
		}
		if sig.HasMuxValue && (!haveMux || int64(sig.MultiplexValue) != muxSwitch) {
			continue
		}

		order := numeric.BigEndian
		if !sig.BigEndian {
			order = numeric.LittleEndian
		}
		raw := numeric.ExtractSignal(rec.Data, sig.StartBit, sig.Length, order, sig.Signed)
		var rawf float64
		if sig.Signed {
			rawf = float64(int64(raw))
		} else {
			rawf = float64(raw)
		}
		phys := numeric.Scale(rawf, sig.Factor, sig.Offset)

		encoding := "physical"
		display := formatPhysical(phys, sig.Unit)
		if sig.LogicalMap != nil {
			if label, ok := sig.LogicalMap[int64(raw)]; ok {
				display = label
				encoding = "hybrid"
			}
		}

		key := string(channel) + "|" + sig.Name
		stat := s.signalStat(key, string(channel), sig.Name, msg.Name, sig.Unit, encoding)
		s.updateSignalStat(stat, phys, display, rec.Ts)

		if sig.PhysRange.Defined && (phys < sig.PhysRange.Min || phys > sig.PhysRange.Max) {
			s.bucketForKey(s.result.RangeErrors, key).observe(rec.Ts,
				fmt.Sprintf("%s=%.3f outside [%.3f,%.3f]", sig.Name, phys, sig.PhysRange.Min, sig.PhysRange.Max))
		}
	}
}

// validatePhysical implements spec.md §4.7's physical-layer checks: they
// only run when the line carries physical_meta, and every measured value
// that does not itself trigger an error still feeds PhysicalMetrics.
func (s *AnalysisState) validatePhysical(frame *busmodel.LinFrame, rec *logtoken.LinFrameRecord) {
	p := rec.Physical
	tb := 1.0 / float64(s.cfg.LinBaudrate)
	masterJitterSec := s.model.LIN.MasterJitterMs / 1000.0
	jitter := maxFloat(masterJitterSec, s.cfg.ScheduleMinAbsoluteToleranceS)

	checkBaud := func(label string, measured *float64) {
		if measured == nil {
			return
		}
		s.result.PhysicalMetrics.BaudrateValues = append(s.result.PhysicalMetrics.BaudrateValues, *measured)
		tol := float64(s.cfg.LinBaudrate) * s.cfg.PhysicalBaudTolerancePercent / 100
		if absFloat(*measured-float64(s.cfg.LinBaudrate)) > tol {
			s.bucketForKey(s.result.PhysicalErrors, "baud_"+label).observe(rec.Ts, fmt.Sprintf("measured=%.1f", *measured))
		}
	}
	checkBaud("br", p.BR)
	checkBaud("rbr", p.RBR)
	checkBaud("hbr", p.HBR)

	if len(p.BreakInfoNs) > 0 {
		breakUs := p.BreakInfoNs[0] / 1000
		low := float64(s.cfg.PhysicalBreakMinBits)*tb*1e6 - s.cfg.PhysicalBreakAbsToleranceUs
		high := float64(s.cfg.PhysicalBreakMaxBits)*tb*1e6 + s.cfg.PhysicalBreakAbsToleranceUs
		if breakUs < low || breakUs > high {
			s.bucketForKey(s.result.PhysicalErrors, "break").observe(rec.Ts, fmt.Sprintf("break_us=%.2f", breakUs))
		}
	}
	if len(p.BreakInfoNs) > 1 {
		delimUs := p.BreakInfoNs[1] / 1000
		expected := tb * 1e6
		if absFloat(delimUs-expected) > s.cfg.PhysicalBreakAbsToleranceUs {
			s.bucketForKey(s.result.PhysicalErrors, "delimiter").observe(rec.Ts, fmt.Sprintf("delimiter_us=%.2f", delimUs))
		}
	}

	dlc := len(rec.Data)
	if frame != nil {
		dlc = frame.DLC
	}
	if p.SOF != nil && p.EOF != nil {
		dur := *p.EOF - *p.SOF
		expected := (43 + 10*float64(dlc)) * tb
		tol := maxFloat(expected*s.cfg.PhysicalTimingRelativeToleranceFactor, jitter)
		s.result.PhysicalMetrics.FrameDurationS = append(s.result.PhysicalMetrics.FrameDurationS, dur)
		if absFloat(dur-expected) > tol {
			s.bucketForKey(s.result.PhysicalErrors, "frame_duration").observe(rec.Ts, fmt.Sprintf("duration=%.6f expected=%.6f", dur, expected))
		}
	}

	if len(p.EOB) > 1 {
		expected := 10 * tb
		tol := maxFloat(expected*s.cfg.PhysicalTimingRelativeToleranceFactor, jitter)
		for i := 1; i < len(p.EOB); i++ {
			diff := p.EOB[i] - p.EOB[i-1]
			if absFloat(diff-expected) > tol {
				s.bucketForKey(s.result.PhysicalErrors, "byte_interval").observe(rec.Ts, fmt.Sprintf("interval=%.6f expected=%.6f", diff, expected))
			}
		}
	}

	if p.SOF != nil {
		if s.lastEOF != nil {
			gap := *p.SOF - *s.lastEOF
			minGap := float64(s.cfg.PhysicalIfsMinBits) * tb
			if gap < minGap {
				s.bucketForKey(s.result.PhysicalErrors, "inter_frame_spacing").observe(rec.Ts, fmt.Sprintf("gap=%.6f min=%.6f", gap, minGap))
			}
		}
	}
	if p.EOF != nil {
		s.lastEOF = p.EOF
	}

	if p.EOH != nil && p.SOF != nil {
		dur := *p.EOH - *p.SOF
		if dur > 0 && dur < 0.1 {
			s.result.PhysicalMetrics.HeaderDurationS = append(s.result.PhysicalMetrics.HeaderDurationS, dur)
		}
	}
	if p.HSONs != nil {
		s.result.PhysicalMetrics.HSOValuesS = append(s.result.PhysicalMetrics.HSOValuesS, *p.HSONs/1e9)
	}
	if p.RSONs != nil {
		s.result.PhysicalMetrics.RSOValuesS = append(s.result.PhysicalMetrics.RSOValuesS, *p.RSONs/1e9)
	}
}
