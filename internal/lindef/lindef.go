// Package lindef parses LIN Description File (LDF) text into a
// busmodel.BusModelLIN. Section bodies are carved out with a matched-brace
// scanner (see blockscan.go) because LDF sections nest; each body is then
// parsed with small line-oriented regular expressions.
package lindef

import (
	"fmt"
	"strconv"
	"strings"

	"regexp"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/sirupsen/logrus"
)

var (
	masterRe  = regexp.MustCompile(`Master:\s*(\w+)\s*,\s*([\d.]+)\s*ms(?:\s*,\s*([\d.]+)\s*ms)?`)
	slavesRe  = regexp.MustCompile(`Slaves:\s*([^;]+);`)
	signalRe  = regexp.MustCompile(`(?m)^\s*(\w+)\s*:\s*(\d+)\s*,\s*(\{[^}]*\}|[\w.+-]+)\s*,\s*(\w+)\s*(?:,\s*([^;]*))?;`)
	frameRe   = regexp.MustCompile(`(?s)(\w+)\s*:\s*(0x[0-9A-Fa-f]+|\d+)\s*,\s*(\w+)\s*,\s*(\d+)\s*\{([^{}]*)\}`)
	frameSigRe = regexp.MustCompile(`(\w+)\s*,\s*(\d+)\s*;`)
	schedEntryRe = regexp.MustCompile(`(\w+)\s+delay\s+([\d.]+)\s*ms\s*;`)
	encBlockHeaderRe = regexp.MustCompile(`(?m)^\s*(\w+)\s*\{`)
	physicalValRe = regexp.MustCompile(`physical_value\s*,\s*([\d.eE+-]+)\s*,\s*([\d.eE+-]+)\s*,\s*([\d.eE+-]+)\s*,\s*([\d.eE+-]+)\s*(?:,\s*"([^"]*)")?\s*;`)
	logicalValRe  = regexp.MustCompile(`logical_value\s*,\s*(-?\d+)\s*,\s*"([^"]*)"\s*;`)
	reprLineRe    = regexp.MustCompile(`(?m)^\s*(\w+)\s*:\s*([^;]+);`)
	respErrorRe   = regexp.MustCompile(`response_error\s*=\s*(\w+)\s*;`)
)

// ParseOptions controls non-fatal diagnostic routing.
type ParseOptions struct {
	Log *logrus.Entry
}

func (o ParseOptions) warn(format string, args ...interface{}) {
	if o.Log != nil {
		o.Log.Warnf(format, args...)
	}
}

// Parse reads LDF text and produces a BusModelLIN. Fatal: missing Nodes
// section, no frames found, malformed frame id. Schedule table text that
// does not match the entry pattern is skipped without an error, and a
// schedule naming an unknown frame is dropped with a warning.
func Parse(text string, opts ParseOptions) (*busmodel.BusModelLIN, error) {
	model := &busmodel.BusModelLIN{
		ResponseErrorSig: map[string]string{},
		Frames:           map[string]*busmodel.LinFrame{},
		FramesByID:       map[int]*busmodel.LinFrame{},
		Schedules:        map[string]*busmodel.ScheduleTable{},
	}

	nodesBody, ok := extractBlock(text, "Nodes")
	if !ok {
		return nil, &busmodel.LdfParseError{Kind: "missing_nodes", Err: fmt.Errorf("no Nodes section found")}
	}
	m := masterRe.FindStringSubmatch(nodesBody)
	if m == nil {
		return nil, &busmodel.LdfParseError{Kind: "missing_nodes", Err: fmt.Errorf("Nodes section has no Master entry")}
	}
	model.MasterName = m[1]
	model.MasterTimebaseMs, _ = strconv.ParseFloat(m[2], 64)
	if m[3] != "" {
		model.MasterJitterMs, _ = strconv.ParseFloat(m[3], 64)
	}
	if sm := slavesRe.FindStringSubmatch(nodesBody); sm != nil {
		for _, s := range strings.Split(sm[1], ",") {
			s = strings.TrimSpace(s)
			if s != "" {
				model.Slaves = append(model.Slaves, s)
			}
		}
	}

	encodings := parseEncodingTypes(text)
	signalEncoding := parseSignalRepresentation(text)

	signalDefs := map[string]*busmodel.LinSignalInstance{}
	if signalsBody, ok := extractBlock(text, "Signals"); ok {
		for _, sm := range signalRe.FindAllStringSubmatch(signalsBody, -1) {
			name := sm[1]
			bits, _ := strconv.Atoi(sm[2])
			publisher := sm[4]
			var subs []string
			if sm[5] != "" {
				for _, s := range strings.Split(sm[5], ",") {
					s = strings.TrimSpace(s)
					if s != "" {
						subs = append(subs, s)
					}
				}
			}
			sig := &busmodel.LinSignalInstance{
				Name:        name,
				Length:      bits,
				Publisher:   publisher,
				Subscribers: subs,
				Encoding:    busmodel.EncodingUnknown,
			}
			if strings.HasPrefix(strings.TrimSpace(sm[3]), "{") {
				sig.Encoding = busmodel.EncodingByteArray
			}
			if encName, ok := signalEncoding[name]; ok {
				if enc, ok := encodings[encName]; ok {
					sig.Encoding = enc.kind
					sig.Factor = enc.factor
					sig.Offset = enc.offset
					sig.Unit = enc.unit
					sig.PhysRange = enc.physRange
					sig.LogicalMap = enc.logicalMap
				}
			}
			signalDefs[name] = sig
		}
	}

	if framesBody, ok := extractBlock(text, "Frames"); ok {
		for _, fm := range frameRe.FindAllStringSubmatch(framesBody, -1) {
			name := fm[1]
			id, err := parseIntAuto(fm[2])
			if err != nil || id < 0 || id > 63 {
				return nil, &busmodel.LdfParseError{Kind: "malformed_frame_id", Err: fmt.Errorf("frame %q: invalid id %q", name, fm[2])}
			}
			dlc, _ := strconv.Atoi(fm[4])
			frame := &busmodel.LinFrame{
				Name:      name,
				Kind:      busmodel.FrameUnconditional,
				ID:        id,
				Publisher: fm[3],
				DLC:       dlc,
			}
			for _, sigRef := range frameSigRe.FindAllStringSubmatch(fm[5], -1) {
				sigName := sigRef[1]
				startBit, _ := strconv.Atoi(sigRef[2])
				inst := busmodel.LinSignalInstance{Name: sigName, StartBit: startBit, Length: 8}
				if def, ok := signalDefs[sigName]; ok {
					inst = *def
					inst.StartBit = startBit
				} else {
					opts.warn("ldf: frame %q references unknown signal %q", name, sigName)
				}
				frame.Signals = append(frame.Signals, inst)
			}
			model.Frames[name] = frame
			model.FramesByID[id] = frame
		}
	}

	if len(model.Frames) == 0 {
		return nil, &busmodel.LdfParseError{Kind: "no_frames", Err: fmt.Errorf("no Frames section or no frame entries found")}
	}

	parseAssociatedFrames(text, "Sporadic_frames", busmodel.FrameSporadic, model, opts)
	parseAssociatedFrames(text, "Event_triggered_frames", busmodel.FrameEventTriggered, model, opts)
	parseDiagnosticFrames(text, model)
	parseScheduleTables(text, model, opts)
	parseNodeAttributes(text, model)
	for node, sigName := range model.ResponseErrorSig {
		if _, ok := signalDefs[sigName]; !ok {
			opts.warn("ldf: response_error signal %q of node %q not found in Signals", sigName, node)
		}
	}

	return model, nil
}

func parseIntAuto(s string) (int, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		v, err := strconv.ParseInt(s[2:], 16, 64)
		return int(v), err
	}
	v, err := strconv.Atoi(s)
	return v, err
}

type encodingDef struct {
	kind       busmodel.EncodingKind
	factor     float64
	offset     float64
	unit       string
	physRange  busmodel.Range
	logicalMap map[int64]string
}

func parseEncodingTypes(text string) map[string]encodingDef {
	out := map[string]encodingDef{}
	body, ok := extractBlock(text, "Signal_encoding_types")
	if !ok {
		return out
	}
	for _, block := range extractAllBlocks(body, encBlockHeaderRe) {
		def := encodingDef{logicalMap: map[int64]string{}}
		hasPhys := false
		hasLogical := false
		if pm := physicalValRe.FindStringSubmatch(block.Content); pm != nil {
			hasPhys = true
			min, _ := strconv.ParseFloat(pm[1], 64)
			max, _ := strconv.ParseFloat(pm[2], 64)
			def.factor, _ = strconv.ParseFloat(pm[3], 64)
			def.offset, _ = strconv.ParseFloat(pm[4], 64)
			def.unit = pm[5]
			def.physRange = busmodel.Range{Min: min, Max: max, Defined: true}
		}
		for _, lm := range logicalValRe.FindAllStringSubmatch(block.Content, -1) {
			hasLogical = true
			raw, _ := strconv.ParseInt(lm[1], 10, 64)
			def.logicalMap[raw] = lm[2]
		}
		switch {
		case hasPhys && hasLogical:
			def.kind = busmodel.EncodingHybrid
		case hasPhys:
			def.kind = busmodel.EncodingPhysical
		case hasLogical:
			def.kind = busmodel.EncodingLogical
		default:
			def.kind = busmodel.EncodingUnknown
		}
		out[block.Name] = def
	}
	return out
}

func parseSignalRepresentation(text string) map[string]string {
	out := map[string]string{}
	body, ok := extractBlock(text, "Signal_representation")
	if !ok {
		return out
	}
	for _, lm := range reprLineRe.FindAllStringSubmatch(body, -1) {
		encName := lm[1]
		for _, sig := range strings.Split(lm[2], ",") {
			sig = strings.TrimSpace(sig)
			if sig != "" {
				out[sig] = encName
			}
		}
	}
	return out
}

func parseAssociatedFrames(text, keyword string, kind busmodel.FrameKind, model *busmodel.BusModelLIN, opts ParseOptions) {
	body, ok := extractBlock(text, keyword)
	if !ok {
		return
	}
	for _, lm := range reprLineRe.FindAllStringSubmatch(body, -1) {
		name := lm[1]
		var assoc []string
		for _, f := range strings.Split(lm[2], ",") {
			f = strings.TrimSpace(f)
			if f == "" {
				continue
			}
			if _, exists := model.Frames[f]; exists {
				assoc = append(assoc, f)
			}
		}
		if len(assoc) == 0 {
			opts.warn("ldf: %s %q has no valid associated frames, skipping", keyword, name)
			continue
		}
		model.Frames[name] = &busmodel.LinFrame{Name: name, Kind: kind, ID: -1, Associated: assoc}
	}
}

func parseDiagnosticFrames(text string, model *busmodel.BusModelLIN) {
	body, ok := extractBlock(text, "Diagnostic_frames")
	if !ok {
		return
	}
	if strings.Contains(body, "MasterReq") {
		model.Frames["MasterReq"] = &busmodel.LinFrame{Name: "MasterReq", Kind: busmodel.FrameDiagnostic, ID: 0x3C, Publisher: model.MasterName, DLC: 8}
		model.FramesByID[0x3C] = model.Frames["MasterReq"]
	}
	if strings.Contains(body, "SlaveResp") {
		model.Frames["SlaveResp"] = &busmodel.LinFrame{Name: "SlaveResp", Kind: busmodel.FrameDiagnostic, ID: 0x3D, DLC: 8}
		model.FramesByID[0x3D] = model.Frames["SlaveResp"]
	}
}

func parseScheduleTables(text string, model *busmodel.BusModelLIN, opts ParseOptions) {
	body, ok := extractBlock(text, "Schedule_tables")
	if !ok {
		return
	}
	for _, block := range extractAllBlocks(body, encBlockHeaderRe) {
		var entries []busmodel.ScheduleEntry
		allValid := true
		for _, em := range schedEntryRe.FindAllStringSubmatch(block.Content, -1) {
			frameName := em[1]
			delay, _ := strconv.ParseFloat(em[2], 64)
			if _, exists := model.Frames[frameName]; !exists {
				allValid = false
				opts.warn("ldf: schedule %q references unknown frame %q, dropping schedule", block.Name, frameName)
				break
			}
			entries = append(entries, busmodel.ScheduleEntry{FrameName: frameName, DelayMs: delay})
		}
		if !allValid || len(entries) == 0 {
			continue
		}
		model.Schedules[block.Name] = &busmodel.ScheduleTable{Name: block.Name, Entries: entries}
	}
}

func parseNodeAttributes(text string, model *busmodel.BusModelLIN) {
	body, ok := extractBlock(text, "Node_attributes")
	if !ok {
		return
	}
	for _, block := range extractAllBlocks(body, encBlockHeaderRe) {
		if rm := respErrorRe.FindStringSubmatch(block.Content); rm != nil {
			model.ResponseErrorSig[block.Name] = rm[1]
		}
	}
}
