// Package dbc parses CAN database (DBC) text into a busmodel.BusModelCAN
// per channel, resolving the standard/extended id-format flag and
// multiplexed signals, and merges multiple DBC files sharing a channel.
package dbc

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"

	"regexp"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/sirupsen/logrus"
)

const (
	extendedIDFlagBit31  = 0x80000000
	standardIDMax        = 0x7FF
	extendedIDMask29Bit  = 0x1FFFFFFF
)

var (
	msgDefRe     = regexp.MustCompile(`^BO_\s+(\d+)\s+(\w+)\s*:\s*(\d+)\s+(\w+)`)
	sigDefRe     = regexp.MustCompile(`^\s*SG_\s+(\w+)\s+(m\d+|M)?\s*:\s*(\d+)\|(\d+)@([01])([+-])\s*\(([^,]+),([^)]+)\)\s*\[([^|]*)\|([^\]]*)\]\s*"([^"]*)"`)
	valRe        = regexp.MustCompile(`^VAL_\s+(\d+)\s+(\w+)\s+(.*);`)
	valPairRe    = regexp.MustCompile(`(-?\d+)\s+"([^"]*)"`)
	baDefDefRe   = regexp.MustCompile(`^BA_DEF_DEF_\s+"(\w+)"\s+(.+);`)
	baNonObjRe   = regexp.MustCompile(`^BA_\s+"(\w+)"\s+(.+);`)
	baObjRe      = regexp.MustCompile(`^BA_\s+"(\w+)"\s+(BO_|SG_|BU_)\s+(\d+)\s*(\w+)?\s+(.+);`)
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

// decodeID applies spec.md §4.3's id-format rule: bit 31 set, or raw value
// above the 11-bit standard range, means extended (masked to 29 bits).
func decodeID(raw uint32) (id uint32, extended bool) {
	if raw&extendedIDFlagBit31 != 0 {
		return raw & extendedIDMask29Bit, true
	}
	if raw > standardIDMax {
		return raw & extendedIDMask29Bit, true
	}
	return raw, false
}

// ParseFile parses one DBC file's text into a map of CanId -> CanMessage,
// along with the channel baud rate determined from its BA_/BA_DEF_DEF_
// attribute lines.
func ParseFile(text string, opts ParseOptions) (map[uint32]*busmodel.CanMessage, int, string, error) {
	messages := map[uint32]*busmodel.CanMessage{}
	var current *busmodel.CanMessage
	baud := 0
	baudSource := ""

	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch {
		case msgDefRe.MatchString(line):
			mm := msgDefRe.FindStringSubmatch(line)
			rawID, _ := strconv.ParseUint(mm[1], 10, 32)
			id, extended := decodeID(uint32(rawID))
			current = &busmodel.CanMessage{
				Name:       mm[2],
				ID:         id,
				Extended:   extended,
				Attributes: map[string]string{},
			}
			dlc, _ := strconv.Atoi(mm[3])
			current.DLC = dlc
			current.SenderNode = mm[4]
			messages[id] = current

		case sigDefRe.MatchString(line):
			if current == nil {
				opts.warn("dbc: SG_ line outside of any BO_ block, skipping: %s", line)
				continue
			}
			sm := sigDefRe.FindStringSubmatch(line)
			sig := busmodel.CanSignal{Name: sm[1]}
			if sm[2] == "M" {
				sig.IsMultiplexer = true
			} else if sm[2] != "" {
				sig.HasMuxValue = true
				n, _ := strconv.Atoi(strings.TrimPrefix(sm[2], "m"))
				sig.MultiplexValue = n
			}
			sig.StartBit, _ = strconv.Atoi(sm[3])
			sig.Length, _ = strconv.Atoi(sm[4])
			sig.BigEndian = sm[5] == "0"
			sig.Signed = sm[6] == "-"
			sig.Factor, _ = strconv.ParseFloat(strings.TrimSpace(sm[7]), 64)
			sig.Offset, _ = strconv.ParseFloat(strings.TrimSpace(sm[8]), 64)
			min, errMin := strconv.ParseFloat(strings.TrimSpace(sm[9]), 64)
			max, errMax := strconv.ParseFloat(strings.TrimSpace(sm[10]), 64)
			if errMin == nil && errMax == nil && (min != 0 || max != 0) {
				sig.PhysRange = busmodel.Range{Min: min, Max: max, Defined: true}
			}
			sig.Unit = sm[11]
			sig.LogicalMap = map[int64]string{}
			current.Signals = append(current.Signals, sig)

		case valRe.MatchString(line):
			vm := valRe.FindStringSubmatch(line)
			rawID, _ := strconv.ParseUint(vm[1], 10, 32)
			id, _ := decodeID(uint32(rawID))
			sigName := vm[2]
			msg, ok := messages[id]
			if !ok {
				continue
			}
			for i := range msg.Signals {
				if msg.Signals[i].Name == sigName {
					for _, pm := range valPairRe.FindAllStringSubmatch(vm[3], -1) {
						raw, _ := strconv.ParseInt(pm[1], 10, 64)
						msg.Signals[i].LogicalMap[raw] = pm[2]
					}
				}
			}

		case baDefDefRe.MatchString(line):
			dm := baDefDefRe.FindStringSubmatch(line)
			if dm[1] == "Baudrate" && baudSource != "explicit" {
				if v, err := strconv.Atoi(strings.TrimSpace(dm[2])); err == nil {
					baud = v
					baudSource = "default"
				}
			}

		case baObjRe.MatchString(line):
			om := baObjRe.FindStringSubmatch(line)
			rawID, err := strconv.ParseUint(om[3], 10, 32)
			if err == nil {
				id, _ := decodeID(uint32(rawID))
				if msg, ok := messages[id]; ok {
					msg.Attributes[om[1]] = strings.TrimSpace(om[5])
				}
			}

		case baNonObjRe.MatchString(line):
			// Reject forms that are actually object-specific (BO_/SG_/BU_
			// scoped) since Go's RE2 cannot express the negative lookahead
			// the reference grammar uses here; baObjRe above already claims
			// those lines first, but a plain prefix check guards against
			// ordering mistakes.
			nm := baNonObjRe.FindStringSubmatch(line)
			rest := strings.TrimSpace(nm[2])
			if strings.HasPrefix(rest, "BO_ ") || strings.HasPrefix(rest, "SG_ ") || strings.HasPrefix(rest, "BU_ ") {
				continue
			}
			if nm[1] == "Baudrate" {
				if v, err := strconv.Atoi(rest); err == nil {
					baud = v
					baudSource = "explicit"
				}
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, "", &busmodel.DbcParseError{Kind: "unreadable", Err: err}
	}
	return messages, baud, baudSource, nil
}

// ParseChannel merges one or more DBC file texts that share a CAN channel,
// applying spec.md §4.3's merge rules: signals union by name (later file
// wins), DLC/sender fill-if-null, attributes merged, and a hard error on
// conflicting explicit baud rates between files.
func ParseChannel(channel busmodel.Channel, texts []string, opts ParseOptions) (*busmodel.BusModelCAN, error) {
	out := &busmodel.BusModelCAN{Channel: channel, Messages: map[uint32]*busmodel.CanMessage{}}
	for i, text := range texts {
		messages, baud, baudSource, err := ParseFile(text, opts)
		if err != nil {
			return nil, fmt.Errorf("dbc: parsing file %d for channel %s: %w", i, channel, err)
		}
		if baudSource == "explicit" {
			if out.BaudSource == "explicit" && out.BaudRate != baud {
				return nil, &busmodel.DbcParseError{Kind: "baud_conflict", Err: fmt.Errorf("channel %s: conflicting explicit baud rates %d and %d", channel, out.BaudRate, baud)}
			}
			out.BaudRate = baud
			out.BaudSource = "explicit"
		} else if baudSource == "default" && out.BaudSource == "" {
			out.BaudRate = baud
			out.BaudSource = "default"
		}
		for id, msg := range messages {
			existing, ok := out.Messages[id]
			if !ok {
				out.Messages[id] = msg
				continue
			}
			mergeMessage(existing, msg)
		}
	}
	return out, nil
}

func mergeMessage(existing, incoming *busmodel.CanMessage) {
	if existing.DLC == 0 {
		existing.DLC = incoming.DLC
	}
	if existing.SenderNode == "" {
		existing.SenderNode = incoming.SenderNode
	}
	for k, v := range incoming.Attributes {
		existing.Attributes[k] = v
	}
	bySame := map[string]int{}
	for i, s := range existing.Signals {
		bySame[s.Name] = i
	}
	for _, s := range incoming.Signals {
		if i, ok := bySame[s.Name]; ok {
			existing.Signals[i] = s // later file wins
		} else {
			existing.Signals = append(existing.Signals, s)
		}
	}
}
