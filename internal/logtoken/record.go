// Package logtoken implements the log tokenizer (C4): a lazy, finite,
// non-restartable sequence of LogRecord values read from a timestamped
// textual bus trace.
package logtoken

import "github.com/anodyne74/linspect/internal/busmodel"

// RecordKind discriminates the LogRecord tagged-union members.
type RecordKind int

const (
	KindLinFrame RecordKind = iota
	KindLinEvent
	KindCanFrame
)

// LinEventKind enumerates the recognized LIN event-line families.
type LinEventKind int

const (
	EventSpike LinEventKind = iota
	EventTransmErr
	EventRcvError
	EventSleepModeEvent
	EventWakeupFrame
	EventSchedModChng
	EventUnexpectedWakeup
)

// PhysicalMeta carries the optional physical-layer timing fields a LIN
// frame line may report. Every field is independently optional per
// spec.md §4.4 (a field missing or unparseable simply stays nil/empty
// rather than invalidating the whole record).
type PhysicalMeta struct {
	SOF, EOH, EOF      *float64
	EOB                []float64
	BR, RBR, HBR       *float64
	BreakInfoNs        []float64 // [break_duration_ns, delimiter_ns]
	HSONs, RSONs       *float64
	FullTimeTbit       *float64
	HeaderTimeTbit     *float64
}

// LinFrameRecord is a LIN Rx/Tx frame line.
type LinFrameRecord struct {
	Ts               float64
	PIDRaw           byte
	Direction        string // "Rx" or "Tx"
	Data             []byte
	DeclaredChecksum *byte
	CSM              string // "Classic", "Enhanced", or ""
	Physical         *PhysicalMeta
}

// LinEventRecord is a non-frame LIN line: spike, transmission/receive
// error, sleep/wake event, schedule-mode change.
type LinEventRecord struct {
	Ts      float64
	Kind    LinEventKind
	FrameID *int
	Channel *int
	Text    string
}

// CanFrameRecord is a CAN or CAN-FD frame line.
type CanFrameRecord struct {
	Ts        float64
	Channel   busmodel.Channel
	ID        uint32
	Extended  bool
	Direction string
	Data      []byte
	FD        bool
}

// LogRecord is the tagged union produced by the tokenizer; exactly one of
// Lin, LinEvent, Can is non-nil.
type LogRecord struct {
	Kind     RecordKind
	Lin      *LinFrameRecord
	LinEvent *LinEventRecord
	Can      *CanFrameRecord
}

// Timestamp returns the record's observation time regardless of variant.
func (r LogRecord) Timestamp() float64 {
	switch r.Kind {
	case KindLinFrame:
		return r.Lin.Ts
	case KindLinEvent:
		return r.LinEvent.Ts
	case KindCanFrame:
		return r.Can.Ts
	}
	return 0
}
