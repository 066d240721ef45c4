// Package gatewaymap implements C6: loading, shape-validating and
// resolving the optional JSON gateway map against a parsed BusModel.
package gatewaymap

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/sirupsen/logrus"
)

// gatewayMapSchema front-validates the overall JSON shape (an array of
// objects carrying the six required string keys, network names drawn from
// the closed enum) before the hand-written semantic resolution below runs.
const gatewayMapSchema = `{
  "type": "array",
  "items": {
    "type": "object",
    "required": ["source_network", "source_message", "source_signal", "target_network", "target_message", "target_signal"],
    "properties": {
      "source_network": {"type": "string", "enum": ["LIN", "CAN1", "CAN2", "CAN3", "CANFD1", "CANFD2", "CANFD3"]},
      "target_network": {"type": "string", "enum": ["LIN", "CAN1", "CAN2", "CAN3", "CANFD1", "CANFD2", "CANFD3"]},
      "source_message": {"type": "string"},
      "target_message": {"type": "string"},
      "source_signal": {"type": "string"},
      "target_signal": {"type": "string"}
    }
  }
}`

var compiledSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	c := jsonschema.NewCompiler()
	if err := c.AddResource("gateway_map.json", strings.NewReader(gatewayMapSchema)); err != nil {
		panic(fmt.Sprintf("gatewaymap: invalid embedded schema: %v", err))
	}
	return c.MustCompile("gateway_map.json")
}

type rawMapping struct {
	SourceNetwork string `json:"source_network"`
	SourceMessage string `json:"source_message"`
	SourceSignal  string `json:"source_signal"`
	TargetNetwork string `json:"target_network"`
	TargetMessage string `json:"target_message"`
	TargetSignal  string `json:"target_signal"`
}

// Warning describes one dropped or unresolved gateway-map entry.
type Warning struct {
	MapIndex int
	Reason   string // e.g. "lin_frame_not_found", "signal_not_in_can_message", ...
	Detail   string
}

// Load parses raw JSON bytes, schema-validates the overall shape, and
// returns the list of syntactically valid entries (JSON-shape invalid
// entries are dropped with a warning rather than aborting the whole file,
// per spec.md §4.6 — only a totally malformed JSON document is fatal).
func Load(data []byte, log *logrus.Entry) ([]rawMapping, []Warning, error) {
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, nil, fmt.Errorf("gatewaymap: invalid JSON: %w", err)
	}
	items, ok := generic.([]interface{})
	if !ok {
		return nil, nil, fmt.Errorf("gatewaymap: top-level JSON value must be an array")
	}

	var valid []rawMapping
	var warnings []Warning
	for i, item := range items {
		single := []interface{}{item}
		if err := compiledSchema.Validate(single); err != nil {
			warnings = append(warnings, Warning{MapIndex: i, Reason: "invalid_shape", Detail: err.Error()})
			if log != nil {
				log.Warnf("gatewaymap: entry %d dropped: %v", i, err)
			}
			continue
		}
		raw, _ := json.Marshal(item)
		var rm rawMapping
		if err := json.Unmarshal(raw, &rm); err != nil {
			warnings = append(warnings, Warning{MapIndex: i, Reason: "invalid_shape", Detail: err.Error()})
			continue
		}
		valid = append(valid, rm)
	}
	return valid, warnings, nil
}

// Resolve binds each syntactically valid mapping to its source/target
// signal handles inside model, building the two lookup indices the engine
// uses for O(1) per-record gateway dispatch. Entries that fail resolution
// are dropped with a diagnostic, per spec.md §4.6/§7 (structural warning,
// not fatal).
func Resolve(raws []rawMapping, model *busmodel.BusModel, log *logrus.Entry) ([]*busmodel.GatewayMapping, []Warning, Lookup) {
	lookup := Lookup{
		Source: map[busmodel.Channel]map[int][]*busmodel.GatewayMapping{},
		Target: map[busmodel.Channel]map[int][]*busmodel.GatewayMapping{},
	}
	var resolved []*busmodel.GatewayMapping
	var warnings []Warning

	for i, rm := range raws {
		mapping := &busmodel.GatewayMapping{
			Index:         i,
			SourceNetwork: busmodel.Channel(rm.SourceNetwork),
			SourceMessage: rm.SourceMessage,
			SourceSignal:  rm.SourceSignal,
			TargetNetwork: busmodel.Channel(rm.TargetNetwork),
			TargetMessage: rm.TargetMessage,
			TargetSignal:  rm.TargetSignal,
		}

		srcID, srcSig, reason := findSignal(model, mapping.SourceNetwork, mapping.SourceMessage, mapping.SourceSignal)
		if reason != "" {
			warnings = append(warnings, Warning{MapIndex: i, Reason: reason, Detail: "source"})
			continue
		}
		tgtID, tgtSig, reason := findSignal(model, mapping.TargetNetwork, mapping.TargetMessage, mapping.TargetSignal)
		if reason != "" {
			warnings = append(warnings, Warning{MapIndex: i, Reason: reason, Detail: "target"})
			continue
		}

		mapping.Resolved = true
		mapping.SourceFrameID = srcID
		mapping.TargetFrameID = tgtID
		mapping.SourceSignalSpec = srcSig
		mapping.TargetSignalSpec = tgtSig
		resolved = append(resolved, mapping)

		if lookup.Source[mapping.SourceNetwork] == nil {
			lookup.Source[mapping.SourceNetwork] = map[int][]*busmodel.GatewayMapping{}
		}
		lookup.Source[mapping.SourceNetwork][srcID] = append(lookup.Source[mapping.SourceNetwork][srcID], mapping)

		if lookup.Target[mapping.TargetNetwork] == nil {
			lookup.Target[mapping.TargetNetwork] = map[int][]*busmodel.GatewayMapping{}
		}
		lookup.Target[mapping.TargetNetwork][tgtID] = append(lookup.Target[mapping.TargetNetwork][tgtID], mapping)
	}
	return resolved, warnings, lookup
}

// Lookup indexes resolved mappings by (network, frame/message id) for both
// directions, as spec.md §4.6 requires.
type Lookup struct {
	Source map[busmodel.Channel]map[int][]*busmodel.GatewayMapping
	Target map[busmodel.Channel]map[int][]*busmodel.GatewayMapping
}

func findSignal(model *busmodel.BusModel, network busmodel.Channel, message, signal string) (int, *busmodel.ResolvedSignal, string) {
	if !busmodel.ValidChannels[network] {
		return 0, nil, "unknown_network_type"
	}
	if network == busmodel.ChannelLIN {
		if model.LIN == nil {
			return 0, nil, "ldf_missing_data"
		}
		frame, ok := model.LIN.Frames[message]
		if !ok {
			return 0, nil, "lin_frame_not_found"
		}
		if frame.ID < 0 {
			return 0, nil, "lin_frame_no_id"
		}
		sig, ok := frame.SignalByName(signal)
		if !ok {
			return 0, nil, "signal_not_in_lin_frame"
		}
		return frame.ID, &busmodel.ResolvedSignal{
			Name: sig.Name, StartBit: sig.StartBit, Length: sig.Length, Signed: false,
			Factor: sig.Factor, Offset: sig.Offset, LogicalMap: sig.LogicalMap,
			Encoding: sig.Encoding, BigEndian: false,
		}, ""
	}

	canModel, ok := model.CAN[network]
	if !ok || canModel == nil {
		return 0, nil, "dbc_missing_for_channel"
	}
	for id, msg := range canModel.Messages {
		if msg.Name != message {
			continue
		}
		sig, ok := msg.SignalByName(signal)
		if !ok {
			return 0, nil, "signal_not_in_can_message"
		}
		enc := busmodel.EncodingPhysical
		if len(sig.LogicalMap) > 0 {
			enc = busmodel.EncodingHybrid
		}
		return int(id), &busmodel.ResolvedSignal{
			Name: sig.Name, StartBit: sig.StartBit, Length: sig.Length, Signed: sig.Signed,
			Factor: sig.Factor, Offset: sig.Offset, LogicalMap: sig.LogicalMap,
			Encoding: enc, BigEndian: sig.BigEndian,
		}, ""
	}
	return 0, nil, "can_message_not_found"
}
