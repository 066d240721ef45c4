// Package report is the minimal JSON/text renderer for a sealed
// engine.AnalysisResult, the one human-facing layer SPEC_FULL.md's AMBIENT
// STACK calls for. It deliberately does no HTML/plot rendering (Non-goals);
// the text mode follows the teacher's cmd/analyze/main.go Printf-table
// shape, generalized from one vehicle's metrics to this module's buckets.
package report

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/anodyne74/linspect/internal/engine"
)

// WriteJSON marshals res as indented JSON to w.
func WriteJSON(w io.Writer, res *engine.AnalysisResult) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		return fmt.Errorf("report: encoding JSON: %w", err)
	}
	return nil
}

// WriteText renders res as a human-readable summary, the generalization of
// the teacher's "Session Analysis for %s" / "=====" table.
func WriteText(w io.Writer, sourceName string, res *engine.AnalysisResult) error {
	fmt.Fprintf(w, "\nTrace Analysis for %s\n", sourceName)
	fmt.Fprintf(w, "=================================\n")
	fmt.Fprintf(w, "Log duration:     %.3fs\n", res.TotalLogDurationS)
	fmt.Fprintf(w, "Skipped lines:    %d\n", res.SkippedLines)

	fmt.Fprintf(w, "\nNetwork Cycle:\n")
	fmt.Fprintf(w, "- Cycles completed:          %d\n", res.NetworkCycle.CyclesCompleted)
	fmt.Fprintf(w, "- Cycles w/o master response: %d\n", res.NetworkCycle.CyclesNoMasterResponse)
	fmt.Fprintf(w, "- Incomplete at end of log:  %d\n", res.NetworkCycle.IncompleteCycles)
	fmt.Fprintf(w, "- Unexpected wakeups:        %d\n", res.NetworkCycle.UnexpectedWakeups)
	fmt.Fprintf(w, "- Implicit starts:           %d\n", res.NetworkCycle.ImplicitStarts)
	if res.NetworkCycle.MasterResponseDelayMs.Count > 0 {
		fmt.Fprintf(w, "- Master response delay:     mean=%.3fms stddev=%.3fms\n",
			res.NetworkCycle.MasterResponseDelayMs.Mean(), res.NetworkCycle.MasterResponseDelayMs.StdDev())
	}

	fmt.Fprintf(w, "\nSchedule Adherence:\n")
	fmt.Fprintf(w, "- Cycles recorded:           %d\n", len(res.ScheduleCycles))
	completed, aborted := 0, 0
	for _, c := range res.ScheduleCycles {
		switch c.Status {
		case "Completed":
			completed++
		case "Aborted":
			aborted++
		}
	}
	fmt.Fprintf(w, "- Completed / Aborted:       %d / %d\n", completed, aborted)
	fmt.Fprintf(w, "- Timing mismatches:         %d\n", len(res.ScheduleTimingMismatches))
	fmt.Fprintf(w, "- Intrusion frame kinds:     %d\n", len(res.IntrusionFrames))

	fmt.Fprintf(w, "\nError Buckets:\n")
	printIntBucketCounts(w, "DLC errors", res.DLCErrors)
	printIntBucketCounts(w, "Checksum errors", res.ChecksumErrors)
	printIntBucketCounts(w, "Parity errors", res.ParityErrors)
	printIntBucketCounts(w, "Foreign IDs", res.ForeignIDs)
	printStrBucketCounts(w, "Transmission errors", res.TransmissionErrors)
	printStrBucketCounts(w, "Range errors", res.RangeErrors)
	printStrBucketCounts(w, "Slave faults", res.SlaveFaults)
	printStrBucketCounts(w, "Physical errors", res.PhysicalErrors)
	fmt.Fprintf(w, "- Sync errors:               %d\n", res.SyncErrors.Count)

	fmt.Fprintf(w, "\nBus Load:\n")
	fmt.Fprintf(w, "- Overall:                   %.2f%%\n", res.BusLoad.OverallPercent)
	for _, node := range sortedKeys(res.BusLoad.ByNode) {
		fmt.Fprintf(w, "  - %-20s %.2f%%\n", node, res.BusLoad.ByNode[node])
	}

	if len(res.Gateway) > 0 {
		fmt.Fprintf(w, "\nGateway Mappings:\n")
		idxs := make([]int, 0, len(res.Gateway))
		for i := range res.Gateway {
			idxs = append(idxs, i)
		}
		sort.Ints(idxs)
		for _, i := range idxs {
			g := res.Gateway[i]
			fmt.Fprintf(w, "- #%d: comparisons=%d matches=%d value_mismatches=%d type_mismatches=%d timing_mismatches=%d\n",
				g.MapIndex, g.Comparisons, g.Matches, g.MismatchesValue, g.MismatchesType, g.MismatchesTiming)
		}
	}

	return nil
}

func printIntBucketCounts(w io.Writer, label string, m map[int]*engine.Bucket) {
	if len(m) == 0 {
		fmt.Fprintf(w, "- %-20s %d\n", label+":", 0)
		return
	}
	total := 0
	for _, b := range m {
		total += b.Count
	}
	fmt.Fprintf(w, "- %-20s %d (across %d ids)\n", label+":", total, len(m))
}

func printStrBucketCounts(w io.Writer, label string, m map[string]*engine.Bucket) {
	if len(m) == 0 {
		fmt.Fprintf(w, "- %-20s %d\n", label+":", 0)
		return
	}
	total := 0
	for _, b := range m {
		total += b.Count
	}
	fmt.Fprintf(w, "- %-20s %d (across %d keys)\n", label+":", total, len(m))
}

func sortedKeys(m map[string]float64) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
