package logtoken

import (
	"bufio"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/anodyne74/linspect/internal/busmodel"
)

// Dispatch order per spec.md §4.4: Spike, TransmErr, RcvError, LIN frame,
// CAN-FD, CAN, sleep/wake/other events. First match wins.
var (
	spikeRe      = regexp.MustCompile(`(?i)^([\d.]+)\s+Li\s+Spike\s+(\S+)\s*(.*)$`)
	transmErrRe  = regexp.MustCompile(`(?i)^([\d.]+)\s+Li\s+(?:([0-9A-Fa-f]+)\s+)?TransmErr\b\s*(.*)$`)
	rcvErrorRe   = regexp.MustCompile(`(?i)^([\d.]+)\s+Li\s+(?:([0-9A-Fa-f]+)\s+)?(?:(\d+)\s+)?RcvError:?\s*(.*)$`)
	linFrameRe   = regexp.MustCompile(`(?i)^([\d.]+)\s+Li\s+([0-9A-Fa-f]+)\s+(Rx|Tx)\b\s*(.*)$`)
	canfdRe      = regexp.MustCompile(`(?i)^([\d.]+)\s+CANFD(\d)\s+(\w+)\s+([0-9A-Fa-f]+)\s*(.*)$`)
	canRe        = regexp.MustCompile(`(?i)^([\d.]+)\s+CAN(\d)\s+([0-9A-Fa-f]+)(x)?\s*(F)?\s+(\w+)\s*(.*)$`)
	sleepModeRe  = regexp.MustCompile(`(?i)^([\d.]+)\s+Li\s+SleepModeEvent\s+(\d+)\s+(.*)$`)
	wakeupRe     = regexp.MustCompile(`(?i)^([\d.]+)\s+Li\s+WakeupFrame\s*(.*)$`)
	schedChngRe  = regexp.MustCompile(`(?i)^([\d.]+)\s+Li\s+SchedModChng\s*(.*)$`)
	unexpWakeRe  = regexp.MustCompile(`(?i)^([\d.]+)\s+Li\s+UnexpectedWakeup\s*(.*)$`)

	breakKVRe  = regexp.MustCompile(`(?i)break=([\d.]+)(?:\s+([\d.]+))?`)
	eobKVRe    = regexp.MustCompile(`(?i)EOB=([\d.]+(?:\s+[\d.]+)*)`)
	genericKVRe = regexp.MustCompile(`(?i)(checksum|header\s*time|full\s*time|SOF|BR|RBR|HBR|EOH|EOF|HSO|RSO|CSM)\s*=\s*(\S+)`)
	hexByteRe  = regexp.MustCompile(`(?i)^[0-9A-F]{2}$`)
)

// Tokenizer reads LogRecords one line at a time from an underlying reader.
type Tokenizer struct {
	scanner *bufio.Scanner
	skipped int
	lineNo  int
}

// New wraps r for sequential, pull-based tokenization.
func New(r io.Reader) *Tokenizer {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &Tokenizer{scanner: s}
}

// Skipped returns the count of non-empty lines that matched no recognized
// form so far.
func (t *Tokenizer) Skipped() int { return t.skipped }

// Next returns the next record. ok is false once the underlying reader is
// exhausted; err is non-nil only on a read failure of the underlying
// stream itself (never on a malformed line, which is counted and skipped
// per spec.md §7's recoverable-parse-failure class).
func (t *Tokenizer) Next() (LogRecord, bool, error) {
	for t.scanner.Scan() {
		t.lineNo++
		line := strings.TrimSpace(t.scanner.Text())
		if line == "" {
			continue
		}
		if rec, ok := t.parseLine(line); ok {
			return rec, true, nil
		}
		t.skipped++
	}
	if err := t.scanner.Err(); err != nil {
		return LogRecord{}, false, err
	}
	return LogRecord{}, false, nil
}

func (t *Tokenizer) parseLine(line string) (LogRecord, bool) {
	if m := spikeRe.FindStringSubmatch(line); m != nil {
		ts := parseFloatTolerant(m[1])
		return LogRecord{Kind: KindLinEvent, LinEvent: &LinEventRecord{Ts: ts, Kind: EventSpike, Text: strings.TrimSpace(m[2] + " " + m[3])}}, true
	}
	if m := transmErrRe.FindStringSubmatch(line); m != nil {
		ts := parseFloatTolerant(m[1])
		ev := &LinEventRecord{Ts: ts, Kind: EventTransmErr, Text: strings.TrimSpace(m[3])}
		if id, ok := parseHexTolerant(m[2]); ok {
			ev.FrameID = &id
		}
		return LogRecord{Kind: KindLinEvent, LinEvent: ev}, true
	}
	if m := rcvErrorRe.FindStringSubmatch(line); m != nil {
		ts := parseFloatTolerant(m[1])
		ev := &LinEventRecord{Ts: ts, Kind: EventRcvError, Text: strings.TrimSpace(m[4])}
		if id, ok := parseHexTolerant(m[2]); ok {
			ev.FrameID = &id
		}
		return LogRecord{Kind: KindLinEvent, LinEvent: ev}, true
	}
	if m := linFrameRe.FindStringSubmatch(line); m != nil {
		return t.parseLinFrame(m)
	}
	if m := canfdRe.FindStringSubmatch(line); m != nil {
		return parseCanFD(m)
	}
	if m := canRe.FindStringSubmatch(line); m != nil {
		return parseCan(m)
	}
	if m := sleepModeRe.FindStringSubmatch(line); m != nil {
		ts := parseFloatTolerant(m[1])
		ch, _ := strconv.Atoi(m[2])
		return LogRecord{Kind: KindLinEvent, LinEvent: &LinEventRecord{Ts: ts, Kind: EventSleepModeEvent, Channel: &ch, Text: strings.TrimSpace(m[3])}}, true
	}
	if m := wakeupRe.FindStringSubmatch(line); m != nil {
		ts := parseFloatTolerant(m[1])
		return LogRecord{Kind: KindLinEvent, LinEvent: &LinEventRecord{Ts: ts, Kind: EventWakeupFrame, Text: strings.TrimSpace(m[2])}}, true
	}
	if m := schedChngRe.FindStringSubmatch(line); m != nil {
		ts := parseFloatTolerant(m[1])
		return LogRecord{Kind: KindLinEvent, LinEvent: &LinEventRecord{Ts: ts, Kind: EventSchedModChng, Text: strings.TrimSpace(m[2])}}, true
	}
	if m := unexpWakeRe.FindStringSubmatch(line); m != nil {
		ts := parseFloatTolerant(m[1])
		return LogRecord{Kind: KindLinEvent, LinEvent: &LinEventRecord{Ts: ts, Kind: EventUnexpectedWakeup, Text: strings.TrimSpace(m[2])}}, true
	}
	return LogRecord{}, false
}

func (t *Tokenizer) parseLinFrame(m []string) (LogRecord, bool) {
	ts := parseFloatTolerant(m[1])
	idRaw, ok := parseHexTolerant(m[2])
	if !ok {
		return LogRecord{}, false
	}
	rest := m[4]

	phys := &PhysicalMeta{}
	hasPhys := false

	if bm := breakKVRe.FindStringSubmatch(rest); bm != nil {
		hasPhys = true
		vals := []float64{parseFloatTolerant(bm[1])}
		if bm[2] != "" {
			vals = append(vals, parseFloatTolerant(bm[2]))
		}
		phys.BreakInfoNs = vals
		rest = breakKVRe.ReplaceAllString(rest, "")
	}
	if em := eobKVRe.FindStringSubmatch(rest); em != nil {
		hasPhys = true
		for _, tok := range strings.Fields(em[1]) {
			phys.EOB = append(phys.EOB, parseFloatTolerant(tok))
		}
		rest = eobKVRe.ReplaceAllString(rest, "")
	}

	var checksum *byte
	var csm string
	for _, kv := range genericKVRe.FindAllStringSubmatch(rest, -1) {
		hasPhys = true
		key := strings.ToLower(strings.Join(strings.Fields(kv[1]), ""))
		val := kv[2]
		switch key {
		case "checksum":
			if b, ok := parseHexByte(val); ok {
				checksum = &b
			}
		case "csm":
			csm = val
		case "headertime":
			phys.HeaderTimeTbit = parseFloatPtr(val)
		case "fulltime":
			phys.FullTimeTbit = parseFloatPtr(val)
		case "sof":
			phys.SOF = parseFloatPtr(val)
		case "eoh":
			phys.EOH = parseFloatPtr(val)
		case "eof":
			phys.EOF = parseFloatPtr(val)
		case "br":
			phys.BR = parseFloatPtr(val)
		case "rbr":
			phys.RBR = parseFloatPtr(val)
		case "hbr":
			phys.HBR = parseFloatPtr(val)
		case "hso":
			phys.HSONs = parseFloatPtr(val)
		case "rso":
			phys.RSONs = parseFloatPtr(val)
		}
	}
	rest = genericKVRe.ReplaceAllString(rest, "")

	var data []byte
	fields := strings.Fields(rest)
	// Drop a leading decimal DLC token that precedes the byte list.
	if len(fields) > 0 {
		if _, err := strconv.Atoi(fields[0]); err == nil && !hexByteRe.MatchString(fields[0]) {
			fields = fields[1:]
		}
	}
	for _, f := range fields {
		if b, ok := parseHexByte(f); ok {
			data = append(data, b)
		}
	}

	rec := &LinFrameRecord{
		Ts:               ts,
		PIDRaw:           byte(idRaw),
		Direction:        strings.Title(strings.ToLower(m[3])),
		Data:             data,
		DeclaredChecksum: checksum,
		CSM:              csm,
	}
	if hasPhys {
		rec.Physical = phys
	}
	return LogRecord{Kind: KindLinFrame, Lin: rec}, true
}

func parseCanFD(m []string) (LogRecord, bool) {
	ts := parseFloatTolerant(m[1])
	chNum := m[2]
	direction := m[3]
	idRaw, ok := parseHexTolerant(m[4])
	if !ok {
		return LogRecord{}, false
	}
	channel := busmodel.Channel("CANFD" + chNum)
	data := parseByteFields(m[5])
	return LogRecord{Kind: KindCanFrame, Can: &CanFrameRecord{
		Ts: ts, Channel: channel, ID: uint32(idRaw), Extended: idRaw > 0x7FF,
		Direction: direction, Data: data, FD: true,
	}}, true
}

func parseCan(m []string) (LogRecord, bool) {
	ts := parseFloatTolerant(m[1])
	chNum := m[2]
	idRaw, ok := parseHexTolerant(m[3])
	if !ok {
		return LogRecord{}, false
	}
	extendedMarker := m[4] == "x" || m[4] == "X"
	direction := m[6]
	channel := busmodel.Channel("CAN" + chNum)
	data := parseByteFields(m[7])
	return LogRecord{Kind: KindCanFrame, Can: &CanFrameRecord{
		Ts: ts, Channel: channel, ID: uint32(idRaw), Extended: extendedMarker || idRaw > 0x7FF,
		Direction: direction, Data: data,
	}}, true
}

func parseByteFields(rest string) []byte {
	var data []byte
	for _, f := range strings.Fields(rest) {
		if f == "d" {
			continue
		}
		if _, err := strconv.Atoi(f); err == nil && len(f) <= 1 {
			continue // leading DLC token
		}
		if b, ok := parseHexByte(f); ok {
			data = append(data, b)
		}
	}
	return data
}

func parseFloatTolerant(s string) float64 {
	v, _ := strconv.ParseFloat(strings.TrimSpace(s), 64)
	return v
}

func parseFloatPtr(s string) *float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return nil
	}
	return &v
}

func parseHexTolerant(s string) (int, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	v, err := strconv.ParseInt(s, 16, 64)
	if err != nil {
		return 0, false
	}
	return int(v), true
}

func parseHexByte(s string) (byte, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 16, 16)
	if err != nil {
		return 0, false
	}
	return byte(v), true
}
