// Package pinmap tracks which physical pins are claimed by which peripheral
// instance. Assignments and DetectConflicts are pure functions over a
// configuration; Registry is the stateful claim table used when a plan is
// applied.
package pinmap

import (
	"sort"

	"mcuplan/types"
)

// Assignments derives the pin assignment record from cfg: every pin named
// by a pin field of an enabled instance, with all of its owners. Sorted by
// pin; owners sorted by peripheral, instance, field.
func Assignments(cfg *types.Configuration) []types.PinAssignment {
	if cfg == nil {
		return nil
	}
	byPin := map[string][]types.Owner{}
	for _, in := range cfg.Instances() {
		if !in.Fields.Enabled() {
			continue
		}
		for _, pf := range in.Fields.PinFields() {
			byPin[pf.Pin] = append(byPin[pf.Pin], types.Owner{
				Peripheral: in.Type,
				Instance:   in.Instance,
				Field:      pf.Field,
				Function:   pf.Function,
			})
		}
	}

	pins := make([]string, 0, len(byPin))
	for p := range byPin {
		pins = append(pins, p)
	}
	types.SortPins(pins)

	out := make([]types.PinAssignment, 0, len(pins))
	for _, p := range pins {
		owners := byPin[p]
		sort.SliceStable(owners, func(i, j int) bool { return ownerLess(owners[i], owners[j]) })
		out = append(out, types.PinAssignment{Pin: p, Owners: owners})
	}
	return out
}

func ownerLess(a, b types.Owner) bool {
	if a.Peripheral != b.Peripheral {
		return a.Peripheral < b.Peripheral
	}
	if a.Instance != b.Instance {
		return a.Instance < b.Instance
	}
	return a.Field < b.Field
}
