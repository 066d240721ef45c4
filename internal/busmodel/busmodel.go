// Package busmodel holds the in-memory representation shared by the LDF and
// DBC parsers and consumed read-only by the analysis engine: LIN, CAN/CAN-FD
// bus models (BusModelLIN, BusModelCAN), the channel-merged BusModel, and
// gateway mapping descriptors.
package busmodel

// Channel identifies one physical or logical bus segment in the trace.
type Channel string

const (
	ChannelLIN     Channel = "LIN"
	ChannelCAN1    Channel = "CAN1"
	ChannelCAN2    Channel = "CAN2"
	ChannelCAN3    Channel = "CAN3"
	ChannelCANFD1  Channel = "CANFD1"
	ChannelCANFD2  Channel = "CANFD2"
	ChannelCANFD3  Channel = "CANFD3"
)

// ValidChannels enumerates every channel name recognized anywhere in the
// system (gateway map validation, CLI flags).
var ValidChannels = map[Channel]bool{
	ChannelLIN: true, ChannelCAN1: true, ChannelCAN2: true, ChannelCAN3: true,
	ChannelCANFD1: true, ChannelCANFD2: true, ChannelCANFD3: true,
}

// EncodingKind classifies how a signal's raw value maps to meaning.
type EncodingKind int

const (
	EncodingUnknown EncodingKind = iota
	EncodingPhysical
	EncodingLogical
	EncodingHybrid
	EncodingByteArray
)

func (k EncodingKind) String() string {
	switch k {
	case EncodingPhysical:
		return "physical"
	case EncodingLogical:
		return "logical"
	case EncodingHybrid:
		return "hybrid"
	case EncodingByteArray:
		return "byte_array"
	default:
		return "unknown"
	}
}

// FrameKind classifies a LIN frame's scheduling role.
type FrameKind int

const (
	FrameUnconditional FrameKind = iota
	FrameSporadic
	FrameEventTriggered
	FrameDiagnostic
)

// Range is an optional closed physical interval.
type Range struct {
	Min, Max float64
	Defined  bool
}

// LinSignalInstance is a signal as it appears inside a LIN frame.
type LinSignalInstance struct {
	Name        string
	StartBit    int
	Length      int
	Publisher   string
	Subscribers []string
	Factor      float64
	Offset      float64
	Unit        string
	LogicalMap  map[int64]string // raw -> label
	Encoding    EncodingKind
	PhysRange   Range
}

// LinFrame is one LDF frame definition.
type LinFrame struct {
	Name           string
	Kind           FrameKind
	ID             int // -1 if not applicable (e.g. unresolved sporadic)
	Publisher      string
	DLC            int
	Signals        []LinSignalInstance
	Associated     []string // sporadic/event-triggered: names of unconditional frames
}

// SignalByName returns the signal instance with the given name, if present.
func (f *LinFrame) SignalByName(name string) (*LinSignalInstance, bool) {
	for i := range f.Signals {
		if f.Signals[i].Name == name {
			return &f.Signals[i], true
		}
	}
	return nil, false
}

// ScheduleEntry is one slot in a LIN schedule table.
type ScheduleEntry struct {
	FrameName string
	DelayMs   float64
}

// ScheduleTable is an ordered list of schedule entries.
type ScheduleTable struct {
	Name    string
	Entries []ScheduleEntry
}

// BusModelLIN is the parsed LDF cluster description.
type BusModelLIN struct {
	MasterName       string
	MasterTimebaseMs float64
	MasterJitterMs   float64
	Slaves           []string
	ResponseErrorSig map[string]string // slave name -> signal name
	Frames           map[string]*LinFrame
	FramesByID       map[int]*LinFrame
	Schedules        map[string]*ScheduleTable

	// Populated after schedule grouping (C5).
	OriginalToRepresentative map[string]string
	RepresentativeToGrouped  map[string][]string
}

// CanSignal is a signal defined inside a CAN/CAN-FD message.
type CanSignal struct {
	Name            string
	StartBit        int
	Length          int
	BigEndian       bool
	Signed          bool
	Factor          float64
	Offset          float64
	Unit            string
	PhysRange       Range
	IsMultiplexer   bool
	HasMuxValue     bool
	MultiplexValue  int
	LogicalMap      map[int64]string
}

// CanMessage is one DBC message (BO_ block).
type CanMessage struct {
	Name       string
	ID         uint32
	Extended   bool
	DLC        int
	SenderNode string
	Attributes map[string]string
	Signals    []CanSignal
}

// SignalByName returns the signal with the given name, if present.
func (m *CanMessage) SignalByName(name string) (*CanSignal, bool) {
	for i := range m.Signals {
		if m.Signals[i].Name == name {
			return &m.Signals[i], true
		}
	}
	return nil, false
}

// BusModelCAN is the merged set of messages for one CAN/CAN-FD channel.
type BusModelCAN struct {
	Channel     Channel
	BaudRate    int
	BaudSource  string // "explicit" or "default"
	Messages    map[uint32]*CanMessage
}

// BusModel is the full parsed static description of the bus under analysis.
type BusModel struct {
	LIN *BusModelLIN
	CAN map[Channel]*BusModelCAN
}

// GatewayMapping declares that a signal on one network should mirror
// another's value within a latency tolerance, once resolved against the
// BusModel.
type GatewayMapping struct {
	Index            int
	SourceNetwork    Channel
	SourceMessage    string
	SourceSignal     string
	TargetNetwork    Channel
	TargetMessage    string
	TargetSignal     string

	// Populated on successful resolution.
	Resolved         bool
	SourceFrameID    int
	TargetFrameID    int
	SourceSignalSpec *ResolvedSignal
	TargetSignalSpec *ResolvedSignal
}

// ResolvedSignal is a network-agnostic handle to a signal's scaling and
// logical-value metadata, used by gateway value comparison.
type ResolvedSignal struct {
	Name       string
	StartBit   int
	Length     int
	Signed     bool
	Factor     float64
	Offset     float64
	LogicalMap map[int64]string
	Encoding   EncodingKind
	BigEndian  bool
}
