// Package engine implements C7 (the single-pass analysis engine), C8 (the
// post-pass gateway correlator) and C9 (the result finalizer).
package engine

// Example captures the first offending observation in a bucket, for
// diagnostics.
type Example struct {
	Timestamp float64
	Detail    string
}

// Bucket is the shape every counter in the system shares: a count, the
// first/last timestamp it was seen, and one illustrative example. This is
// the "explicit get-or-insert with pre-declared shape" substitute for the
// original defaultdict-style counters (spec.md §9).
type Bucket struct {
	Count     int
	FirstTs   float64
	LastTs    float64
	Example   Example
}

func (b *Bucket) observe(ts float64, detail string) {
	if b.Count == 0 {
		b.FirstTs = ts
		b.Example = Example{Timestamp: ts, Detail: detail}
	}
	b.Count++
	b.LastTs = ts
}

// JitterStats accumulates count/sum/sum-of-squares/min/max for a timing
// series, used for schedule slot timing, observed timing mismatches, master
// response delay and gateway latency.
type JitterStats struct {
	Count  int
	SumMs  float64
	SumSqMs float64
	MinMs  float64
	MaxMs  float64
}

func (j *JitterStats) observe(ms float64) {
	if j.Count == 0 {
		j.MinMs, j.MaxMs = ms, ms
	} else {
		if ms < j.MinMs {
			j.MinMs = ms
		}
		if ms > j.MaxMs {
			j.MaxMs = ms
		}
	}
	j.Count++
	j.SumMs += ms
	j.SumSqMs += ms * ms
}

// Mean returns the arithmetic mean, or 0 if no samples were observed.
func (j *JitterStats) Mean() float64 {
	if j.Count == 0 {
		return 0
	}
	return j.SumMs / float64(j.Count)
}

// StdDev returns sqrt(E[x^2] - E[x]^2), clamped at zero to absorb floating
// point error, matching spec.md §4.7's slot jitter formula.
func (j *JitterStats) StdDev() float64 {
	if j.Count == 0 {
		return 0
	}
	mean := j.Mean()
	variance := j.SumSqMs/float64(j.Count) - mean*mean
	if variance < 0 {
		variance = 0
	}
	return sqrt(variance)
}

// SignalStat is the per-(network, signal) accumulator from spec.md §4.7.
type SignalStat struct {
	Network        string
	Signal         string
	FrameName      string
	Unit           string
	Encoding       string
	MinPhys        float64
	MaxPhys        float64
	MinDisplay     string
	MaxDisplay     string
	FirstTs        float64
	LastTs         float64
	Count          int
	initialized    bool
}

// NodeResponseStat is the per-slave response-time accumulator.
type NodeResponseStat struct {
	Node            string
	MinMs, MaxMs    float64
	SumMs           float64
	Count           int
	FramesPublished int
	Requests        int
	Responses       int
}

// ScheduleTimingMismatch is keyed by (schedule, slot index).
type ScheduleTimingMismatch struct {
	Schedule string
	Slot     int
	Bucket   Bucket
	Observed JitterStats
}

// ActivityPeriod is a [start,end) interval, used for logger activity
// reporting (a supplemented feature, see SPEC_FULL.md).
type ActivityPeriod struct {
	StartTs  float64
	EndTs    float64
	Duration float64
}

// GatewayMappingResult is the per-mapping outcome of correlation (C8).
type GatewayMappingResult struct {
	MapIndex        int
	Comparisons     int
	Matches         int
	MismatchesValue int
	MismatchesType  int
	MismatchesTiming int
	Latency         JitterStats
	MismatchExamples []string
}

// FrameTimingSummary is the per-(channel, frame id) Rx interval summary
// from the finalizer (C9), gap-filtered per spec.md §4.10.
type FrameTimingSummary struct {
	Channel  string
	FrameID  int
	AvgMs    float64
	MinMs    float64
	MaxMs    float64
	Samples  int
}

// NetworkCycleSummary reports the health of the LIN network-cycle state
// machine across the whole log.
type NetworkCycleSummary struct {
	CyclesCompleted        int
	CyclesNoMasterResponse int
	IncompleteCycles       int
	UnexpectedWakeups      int
	ImplicitStarts         int
	MasterResponseDelayMs  JitterStats
	ExampleProblemCycle    string
}

// ScheduleCycleEvent is one line of a schedule cycle's event log
// (spec.md §8's "exactly one Cycle Start, one Cycle Completed" property).
type ScheduleCycleEvent struct {
	Ts   float64
	Kind string // "Cycle Start", "Cycle Completed", "Sequence Mismatch", "Aborted"
	Detail string
}

// ScheduleCycleRecord is one finalized schedule cycle.
type ScheduleCycleRecord struct {
	CycleID  int
	Schedule string
	Status   string // "Completed" or "Aborted"
	Events   []ScheduleCycleEvent
}

// BusLoadResult carries overall, per-window, and per-node bus occupancy.
type BusLoadResult struct {
	OverallPercent float64
	ByWindow       []float64
	ByNode         map[string]float64
}

// AnalysisResult is the sealed output of a run: every counter, example and
// timeline spec.md §3/§4.8 names, plus the supplemented buckets from
// SPEC_FULL.md.
type AnalysisResult struct {
	TotalLogDurationS float64
	SkippedLines      int

	DLCErrors         map[int]*Bucket
	ChecksumErrors    map[int]*Bucket
	TransmissionErrors map[string]*Bucket
	SyncErrors        *Bucket
	InactivityEvents  *Bucket
	FramesAfterSleep  *Bucket
	ParityErrors      map[int]*Bucket
	ForeignIDs        map[int]*Bucket
	RangeErrors       map[string]*Bucket
	SlaveFaults       map[string]*Bucket

	ScheduleChangeEvents int

	NetworkCycle    NetworkCycleSummary
	LoggerActivity  []ActivityPeriod

	ScheduleCycles           []ScheduleCycleRecord
	ScheduleTimingMismatches map[string]*ScheduleTimingMismatch
	ScheduleSlotTiming       map[string]*JitterStats
	IntrusionFrames          map[string]*Bucket

	SignalStats       map[string]*SignalStat
	NodeResponseStats map[string]*NodeResponseStat

	PhysicalErrors  map[string]*Bucket
	PhysicalMetrics PhysicalMetrics

	FrameTimingSummaries []FrameTimingSummary
	BusLoad              BusLoadResult

	Gateway map[int]*GatewayMappingResult

	GatewayMapWarnings []string
}

// PhysicalMetrics holds the metric-only (non-error) physical-layer
// observations from spec.md §4.7.
type PhysicalMetrics struct {
	BaudrateValues      []float64
	HeaderDurationS     []float64
	FrameDurationS      []float64
	HSOValuesS          []float64
	RSOValuesS          []float64
}

func sqrt(x float64) float64 {
	if x <= 0 {
		return 0
	}
	// Newton's method; avoids importing math solely for one call site
	// duplicated across every JitterStats — kept local and tiny.
	z := x
	for i := 0; i < 40; i++ {
		z -= (z*z - x) / (2 * z)
	}
	return z
}
