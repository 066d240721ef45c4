package engine

import (
	"fmt"

	"github.com/anodyne74/linspect/internal/busmodel"
	"github.com/anodyne74/linspect/internal/config"
	"github.com/anodyne74/linspect/internal/gatewaymap"
	"github.com/anodyne74/linspect/internal/logtoken"
	"github.com/sirupsen/logrus"
)

// cycleState is the network-cycle machine's two states (spec.md §4.7).
type cycleState int

const (
	cycleIdle cycleState = iota
	cycleActive
)

type networkCycleState struct {
	state            cycleState
	startedAt        float64
	firstMasterFound bool
	haveLastWake     bool
	lastWakeTs       float64
}

type loggerActivityState struct {
	active  bool
	startTs float64
}

type gatewayEvent struct {
	Ts  float64
	Raw uint64
}

// AnalysisState is the single mutable value threaded through dispatch for
// one run; nothing else in the engine holds state (SPEC_FULL.md §9).
type AnalysisState struct {
	cfg      config.EngineConfig
	model    *busmodel.BusModel
	gwLookup gatewaymap.Lookup
	log      *logrus.Entry

	result *AnalysisResult

	networkCycle   networkCycleState
	loggerActivity loggerActivityState
	cursor         *scheduleCursor
	cycleIDCounter int

	haveLastTs bool
	lastTs     float64
	firstTs    float64
	haveFirst  bool

	lastEOF    *float64

	busLoadStartTs float64
	haveBusLoad    bool
	busLoadWindows map[int]float64
	busLoadByNode  map[string]float64

	gwSourceEvents map[int][]gatewayEvent
	gwTargetEvents map[int][]gatewayEvent
	mappings       map[int]*busmodel.GatewayMapping

	frameTiming map[string][]float64 // "<channel>|<id>" -> rx timestamps, Active only
}

// New builds a fresh AnalysisState bound to a parsed BusModel and resolved
// gateway lookup (both are read-only for the lifetime of the run).
func New(cfg config.EngineConfig, model *busmodel.BusModel, gwLookup gatewaymap.Lookup, log *logrus.Entry) *AnalysisState {
	mappings := map[int]*busmodel.GatewayMapping{}
	for _, byID := range gwLookup.Source {
		for _, list := range byID {
			for _, m := range list {
				mappings[m.Index] = m
			}
		}
	}
	for _, byID := range gwLookup.Target {
		for _, list := range byID {
			for _, m := range list {
				mappings[m.Index] = m
			}
		}
	}

	return &AnalysisState{
		cfg:      cfg,
		model:    model,
		gwLookup: gwLookup,
		log:      log,
		result: &AnalysisResult{
			DLCErrors:                map[int]*Bucket{},
			ChecksumErrors:           map[int]*Bucket{},
			TransmissionErrors:       map[string]*Bucket{},
			SyncErrors:               &Bucket{},
			InactivityEvents:         &Bucket{},
			FramesAfterSleep:         &Bucket{},
			ParityErrors:             map[int]*Bucket{},
			ForeignIDs:               map[int]*Bucket{},
			RangeErrors:              map[string]*Bucket{},
			SlaveFaults:              map[string]*Bucket{},
			ScheduleTimingMismatches: map[string]*ScheduleTimingMismatch{},
			ScheduleSlotTiming:       map[string]*JitterStats{},
			IntrusionFrames:          map[string]*Bucket{},
			SignalStats:              map[string]*SignalStat{},
			NodeResponseStats:        map[string]*NodeResponseStat{},
			PhysicalErrors:           map[string]*Bucket{},
			Gateway:                  map[int]*GatewayMappingResult{},
		},
		busLoadWindows: map[int]float64{},
		busLoadByNode:  map[string]float64{},
		gwSourceEvents: map[int][]gatewayEvent{},
		gwTargetEvents: map[int][]gatewayEvent{},
		mappings:       mappings,
		frameTiming:    map[string][]float64{},
	}
}

// Run streams every record out of t, drives dispatch, and returns the
// sealed AnalysisResult. The only error it returns is a failure to read
// the underlying log stream itself (spec.md §7: the engine never raises
// on record content).
func (s *AnalysisState) Run(t *logtoken.Tokenizer) (*AnalysisResult, error) {
	for {
		rec, ok, err := t.Next()
		if err != nil {
			return nil, fmt.Errorf("engine: reading log stream: %w", err)
		}
		if !ok {
			break
		}
		s.dispatch(rec)
	}
	s.result.SkippedLines = t.Skipped()
	if s.networkCycle.state == cycleActive {
		s.result.NetworkCycle.IncompleteCycles++
		if !s.networkCycle.firstMasterFound {
			s.result.NetworkCycle.CyclesNoMasterResponse++
		}
		if s.cursor != nil {
			s.abortCycle(s.lastTs, "end of log")
		}
	}
	return s.finalize(), nil
}

func (s *AnalysisState) dispatch(rec logtoken.LogRecord) {
	ts := rec.Timestamp()
	s.checkMonotonic(ts)
	if !s.haveFirst {
		s.haveFirst = true
		s.firstTs = ts
	}
	s.lastTs = ts
	s.haveLastTs = true

	switch rec.Kind {
	case logtoken.KindLinFrame:
		s.handleLinFrame(rec.Lin)
	case logtoken.KindLinEvent:
		s.handleLinEvent(rec.LinEvent)
	case logtoken.KindCanFrame:
		s.handleCanFrame(rec.Can)
	}
}

func (s *AnalysisState) checkMonotonic(ts float64) {
	if s.haveLastTs && ts < s.lastTs {
		s.result.SyncErrors.observe(ts, fmt.Sprintf("prev=%v current=%v delta=%v", s.lastTs, ts, ts-s.lastTs))
	}
}
