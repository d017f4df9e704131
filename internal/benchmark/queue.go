package benchmark

import "github.com/mwiater/edgebench/internal/catalog"

// DefaultTiers are the example counts the work queue runs, smallest first.
var DefaultTiers = []int{10, 50}

// NextPending returns the first item, scanning tiers in order, then models and
// datasets in catalog order, that has no record in runs. Partial records count
// as present: a failed item stays done until its record is deleted.
func NextPending(runs []RunRecord, tiers []int, models []catalog.ModelDescriptor, datasets []catalog.DatasetDescriptor) (Item, bool) {
	return nextPending(runs, nil, tiers, models, datasets)
}

func nextPending(runs []RunRecord, skip map[Item]bool, tiers []int, models []catalog.ModelDescriptor, datasets []catalog.DatasetDescriptor) (Item, bool) {
	done := make(map[Item]bool, len(runs))
	for _, r := range runs {
		done[r.Item()] = true
	}
	for _, size := range tiers {
		if size <= 0 {
			continue
		}
		for _, m := range models {
			for _, d := range datasets {
				it := Item{Model: m.ID, Dataset: d.ID, Size: size}
				if !done[it] && !skip[it] {
					return it, true
				}
			}
		}
	}
	return Item{}, false
}

// Pending lists every item not yet present in runs, in queue order.
func Pending(runs []RunRecord, tiers []int, models []catalog.ModelDescriptor, datasets []catalog.DatasetDescriptor) []Item {
	skip := make(map[Item]bool)
	var out []Item
	for {
		it, ok := nextPending(runs, skip, tiers, models, datasets)
		if !ok {
			return out
		}
		out = append(out, it)
		skip[it] = true
	}
}
