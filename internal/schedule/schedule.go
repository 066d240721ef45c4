// Package schedule implements C5: collapsing textually distinct but
// semantically identical LIN schedule tables by content hash, retaining the
// mapping from every original name to its chosen representative.
package schedule

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/anodyne74/linspect/internal/busmodel"
)

// Result is the output of Group: the deduplicated schedule set plus the two
// bookkeeping maps spec.md §4.5 requires.
type Result struct {
	Unique                   map[string]*busmodel.ScheduleTable
	OriginalToRepresentative map[string]string
	RepresentativeToGrouped  map[string][]string
}

// Group collapses schedules whose ordered (frame_name, delay_ms) sequences
// are identical. Two schedules compare equal iff their canonical encodings
// hash the same; the first name encountered for a given hash becomes the
// representative.
func Group(schedules map[string]*busmodel.ScheduleTable) Result {
	res := Result{
		Unique:                   map[string]*busmodel.ScheduleTable{},
		OriginalToRepresentative: map[string]string{},
		RepresentativeToGrouped:  map[string][]string{},
	}

	names := make([]string, 0, len(schedules))
	for name := range schedules {
		names = append(names, name)
	}
	sort.Strings(names)

	hashToRepresentative := map[string]string{}
	for _, name := range names {
		table := schedules[name]
		hash := canonicalHash(table.Entries)
		rep, seen := hashToRepresentative[hash]
		if !seen {
			rep = name
			hashToRepresentative[hash] = rep
			res.Unique[rep] = table
		}
		res.OriginalToRepresentative[name] = rep
		res.RepresentativeToGrouped[rep] = append(res.RepresentativeToGrouped[rep], name)
	}
	for rep := range res.RepresentativeToGrouped {
		sort.Strings(res.RepresentativeToGrouped[rep])
	}
	return res
}

func canonicalHash(entries []busmodel.ScheduleEntry) string {
	b, err := json.Marshal(entries)
	if err != nil {
		// Entries is a plain slice of comparable fields; Marshal cannot
		// fail here, but fall back to a name that can never collide with
		// a real hash to avoid panicking on the hot analysis path.
		return fmt.Sprintf("unmarshalable:%p", entries)
	}
	sum := sha256.Sum256(b)
	return fmt.Sprintf("%x", sum)
}
