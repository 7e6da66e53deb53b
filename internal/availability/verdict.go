package availability

import (
	"sort"

	"slotcheck/internal/models"
)

// Verdicts checks every candidate against events. A candidate is available
// iff no relevant event overlaps it; conflicts are listed by event start.
// Output order follows candidates.
func Verdicts(candidates []models.CandidateSlot, events []models.BusyEvent, opts Options) []models.SlotVerdict {
	events = relevant(events, opts)
	verdicts := make([]models.SlotVerdict, 0, len(candidates))
	for _, c := range candidates {
		conflicts := []models.BusyEvent{}
		for _, ev := range events {
			if models.Overlaps(c.Interval, ev.Interval) {
				conflicts = append(conflicts, ev)
			}
		}
		sort.SliceStable(conflicts, func(i, j int) bool {
			return conflicts[i].Interval.Start.Before(conflicts[j].Interval.Start)
		})
		verdicts = append(verdicts, models.SlotVerdict{
			Candidate: c,
			Available: len(conflicts) == 0,
			Conflicts: conflicts,
		})
	}
	return verdicts
}
