// Package validate checks a peripheral configuration against its MCU
// specification and produces a Report of errors, warnings and pin conflicts.
package validate

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"mcuplan/errcode"
	"mcuplan/services/pinmap"
	"mcuplan/types"
)

// Lookup resolves MCU specifications; *catalog.Catalog satisfies it.
type Lookup interface {
	Get(id string) (types.MCU, bool)
}

type Validator struct {
	cat   Lookup
	log   zerolog.Logger
	now   func() time.Time
	newID func() string
}

func New(cat Lookup, log zerolog.Logger) *Validator {
	return &Validator{
		cat:   cat,
		log:   log.With().Str("component", "validator").Logger(),
		now:   time.Now,
		newID: uuid.NewString,
	}
}

// Validate resolves cfg's MCU and checks the configuration.
func (v *Validator) Validate(cfg *types.Configuration) types.Report {
	r := types.Report{ID: v.newID(), CheckedAt: v.now().UTC()}
	if cfg == nil {
		r.Add(types.Issue{Type: types.SeverityError, Code: string(errcode.InvalidPayload), Message: "no configuration"})
		r.Finish()
		return r
	}
	r.MCUID = cfg.MCUID

	m, ok := v.cat.Get(cfg.MCUID)
	if !ok {
		r.Add(types.Issue{
			Type:    types.SeverityError,
			Code:    string(errcode.UnknownMCU),
			Message: fmt.Sprintf("Unknown microcontroller %q", cfg.MCUID),
		})
		r.Finish()
		return r
	}

	for _, is := range Check(&m, cfg) {
		r.Add(is)
	}
	r.Assignments = pinmap.Assignments(cfg)
	r.Finish()

	v.log.Debug().
		Str("mcu", cfg.MCUID).
		Int("errors", len(r.Errors)).
		Int("warnings", len(r.Warnings)).
		Int("conflicts", len(r.Conflicts)).
		Msg("Configuration validated")
	return r
}

// Check is the pure rule pass: per-instance checks in instance order, then
// pin conflicts against the MCU inventory.
func Check(m *types.MCU, cfg *types.Configuration) []types.Issue {
	var out []types.Issue
	inventory := m.Inventory()
	known := make(map[string]struct{}, len(inventory))
	for _, p := range inventory {
		known[p] = struct{}{}
	}

	for _, in := range cfg.Instances() {
		if !in.Fields.Enabled() {
			continue
		}
		label := strings.ToUpper(string(in.Type)) + " " + in.Instance

		if !in.Type.Known() || !m.Supports(in.Type) {
			out = append(out, types.Issue{
				Type:       types.SeverityError,
				Code:       string(errcode.UnknownPeripheral),
				Message:    fmt.Sprintf("%s does not support %s", m.Name, strings.ToUpper(string(in.Type))),
				Peripheral: in.Type,
				Instance:   in.Instance,
			})
			continue
		}
		spec, ok := m.Instance(in.Type, in.Instance)
		if !ok {
			out = append(out, types.Issue{
				Type:       types.SeverityError,
				Code:       string(errcode.UnknownInstance),
				Message:    fmt.Sprintf("%s: no such instance on %s", label, m.Name),
				Peripheral: in.Type,
				Instance:   in.Instance,
			})
			continue
		}

		out = append(out, checkFields(m, in)...)

		// GPIO pins are freely assignable; only the inventory applies.
		if in.Type == types.PeriphGPIO {
			continue
		}
		for _, pf := range in.Fields.PinFields() {
			if _, exists := known[pf.Pin]; !exists {
				continue // reported by DetectConflicts
			}
			if spec.Allows(pf.Function, pf.Pin) {
				continue
			}
			msg := fmt.Sprintf("%s: %s on %s has no fixed mapping for this instance", label, pf.Function, pf.Pin)
			if def, has := spec.Pins[pf.Function]; has {
				msg = fmt.Sprintf("%s: %s on %s differs from the default %s", label, pf.Function, pf.Pin, def)
			}
			out = append(out, types.Issue{
				Type:       types.SeverityWarning,
				Code:       string(errcode.NonDefaultPin),
				Message:    msg,
				Peripheral: in.Type,
				Instance:   in.Instance,
				Field:      pf.Field,
				Pin:        pf.Pin,
			})
		}
	}

	return append(out, pinmap.DetectConflicts(cfg, inventory)...)
}
