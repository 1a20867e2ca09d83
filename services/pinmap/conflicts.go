package pinmap

import (
	"fmt"
	"strings"

	"mcuplan/errcode"
	"mcuplan/types"
)

// DetectConflicts is the single pin-collision check: (configuration, pin
// inventory) -> issues.
//
// Every pin claimed by more than one instance field produces one conflict
// issue per claimant, so each side of a collision is listed. When inventory
// is non-empty, a pin outside it also produces an unknown_pin error per
// claimant, ahead of any conflicts on that pin. Output order follows
// Assignments.
func DetectConflicts(cfg *types.Configuration, inventory []string) []types.Issue {
	known := make(map[string]struct{}, len(inventory))
	for _, p := range inventory {
		known[p] = struct{}{}
	}

	var out []types.Issue
	for _, a := range Assignments(cfg) {
		if len(known) > 0 {
			if _, ok := known[a.Pin]; !ok {
				for _, o := range a.Owners {
					out = append(out, types.Issue{
						Type:       types.SeverityError,
						Code:       string(errcode.UnknownPin),
						Message:    fmt.Sprintf("%s: pin %s does not exist on this MCU", o, a.Pin),
						Peripheral: o.Peripheral,
						Instance:   o.Instance,
						Field:      o.Field,
						Pin:        a.Pin,
					})
				}
			}
		}
		if len(a.Owners) < 2 {
			continue
		}
		for i, o := range a.Owners {
			out = append(out, types.Issue{
				Type:       types.SeverityConflict,
				Code:       string(errcode.PinConflict),
				Message:    fmt.Sprintf("Pin %s claimed by %s is also used by %s", a.Pin, o, others(a.Owners, i)),
				Peripheral: o.Peripheral,
				Instance:   o.Instance,
				Field:      o.Field,
				Pin:        a.Pin,
			})
		}
	}
	return out
}

func others(owners []types.Owner, skip int) string {
	names := make([]string, 0, len(owners)-1)
	for i, o := range owners {
		if i != skip {
			names = append(names, o.String())
		}
	}
	return strings.Join(names, ", ")
}

// Conflicted returns the set of pins that have more than one claimant.
func Conflicted(cfg *types.Configuration) []string {
	var out []string
	for _, a := range Assignments(cfg) {
		if len(a.Owners) > 1 {
			out = append(out, a.Pin)
		}
	}
	return out
}
