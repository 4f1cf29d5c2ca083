package event

import "sort"

// BufferLimit bounds the journal buffer. This is a display buffer, not an
// authoritative log; the server remains the source of truth for anything
// older than the most recent BufferLimit events.
const BufferLimit = 120

// Merge folds a batch of newly observed events into an existing ordered
// collection and returns a new collection that:
//
//   - contains the union of both inputs, deduplicated by event ID, where a
//     later-arriving copy wins only if it carries a sequence token and the
//     previously stored copy does not;
//   - is sorted by sequence token descending, with tokenless events ordered
//     by creation timestamp descending;
//   - is truncated to the BufferLimit highest-ordered entries.
//
// Merge is pure: neither input is mutated, and applying the same batch twice
// yields the same result as applying it once.
func Merge(existing, incoming []Event) []Event {
	merged := make([]Event, 0, len(existing)+len(incoming))
	index := make(map[string]int, len(existing)+len(incoming))

	for _, evt := range existing {
		if pos, ok := index[evt.ID]; ok {
			if merged[pos].Seq == "" && evt.Seq != "" {
				merged[pos] = evt
			}
			continue
		}
		index[evt.ID] = len(merged)
		merged = append(merged, evt)
	}
	for _, evt := range incoming {
		if pos, ok := index[evt.ID]; ok {
			if merged[pos].Seq == "" && evt.Seq != "" {
				merged[pos] = evt
			}
			continue
		}
		index[evt.ID] = len(merged)
		merged = append(merged, evt)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		if cmp := CompareSeq(merged[i].Seq, merged[j].Seq); cmp != 0 {
			return cmp > 0
		}
		return merged[i].CreatedAt.After(merged[j].CreatedAt)
	})

	if len(merged) > BufferLimit {
		merged = merged[:BufferLimit]
	}
	return merged
}

// HighestSeq returns the highest sequence token present in events, or the
// empty string when no event carries one. The result is the cursor for the
// next incremental event fetch.
func HighestSeq(events []Event) string {
	highest := ""
	for _, evt := range events {
		if evt.Seq == "" {
			continue
		}
		if highest == "" || CompareSeq(evt.Seq, highest) > 0 {
			highest = evt.Seq
		}
	}
	return highest
}
