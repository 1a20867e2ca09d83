package validate

import (
	"fmt"
	"math"
	"strings"

	"mcuplan/errcode"
	"mcuplan/types"
	"mcuplan/x/mathx"
)

// fieldRule constrains one instance field. Zero-valued checks are skipped.
type fieldRule struct {
	Field    string
	Required bool

	Range     *mathx.Range[int] // error outside
	Allowed   []int             // error when not one of
	Preferred []int             // warning when not one of
	Enum      []string          // error when not one of (case-insensitive)

	// Warn returns a non-empty message to raise a warning for value v.
	Warn func(mcu *types.MCU, v int) string
}

func rng(lo, hi int) *mathx.Range[int] { return &mathx.Range[int]{Lo: lo, Hi: hi} }

// atLeast is a range with no upper bound.
func atLeast(lo int) *mathx.Range[int] { return rng(lo, math.MaxInt) }

var standardBauds = []int{300, 600, 1200, 2400, 4800, 9600, 14400, 19200, 38400, 57600,
	115200, 230400, 460800, 921600, 1000000, 2000000, 4000000}

// rules is the one rule table for every peripheral type.
var rules = map[types.PeripheralType][]fieldRule{
	types.PeriphUART: {
		{Field: "baudRate", Required: true, Range: rng(300, 4_000_000), Preferred: standardBauds},
		{Field: "dataBits", Range: rng(5, 9)},
		{Field: "stopBits", Range: rng(1, 2)},
		{Field: "parity", Enum: []string{"none", "even", "odd"}},
	},
	types.PeriphI2C: {
		{Field: "speed", Required: true, Range: atLeast(1), Preferred: []int{100_000, 400_000, 1_000_000}},
		// 7-bit addresses outside 0x08..0x77 are reserved.
		{Field: "address", Range: rng(0x08, 0x77)},
	},
	types.PeriphSPI: {
		{Field: "mode", Required: true, Range: rng(0, 3)},
		{Field: "clockHz", Required: true, Range: atLeast(1), Warn: spiClockWarn},
		{Field: "bitOrder", Enum: []string{"msb", "lsb"}},
	},
	types.PeriphPWM: {
		{Field: "frequencyHz", Required: true, Range: atLeast(1)},
		{Field: "dutyCycle", Range: rng(0, 100)},
	},
	types.PeriphADC: {
		{Field: "resolution", Allowed: []int{8, 10, 12, 16}},
		{Field: "sampleRate", Range: rng(1, 100_000_000)},
	},
	types.PeriphCAN: {
		{Field: "bitrate", Required: true, Allowed: []int{125_000, 250_000, 500_000, 1_000_000}},
	},
	types.PeriphGPIO: {
		{Field: "mode", Enum: []string{"input", "output", "input_pullup", "input_pulldown"}},
	},
}

func spiClockWarn(m *types.MCU, hz int) string {
	if m == nil || m.ClockMHz <= 0 {
		return ""
	}
	limit := m.ClockMHz * 1_000_000 / 2
	if hz > limit {
		return fmt.Sprintf("clockHz %d exceeds half the core clock (%d Hz)", hz, limit)
	}
	return ""
}

func ints(xs []int) string {
	s := make([]string, len(xs))
	for i, x := range xs {
		s[i] = fmt.Sprint(x)
	}
	return strings.Join(s, ", ")
}

// checkFields applies the rule table for in.Type to in.Fields.
func checkFields(m *types.MCU, in types.InstanceRef) []types.Issue {
	var out []types.Issue
	issue := func(sev types.Severity, code errcode.Code, field, msg string) {
		out = append(out, types.Issue{
			Type:       sev,
			Code:       string(code),
			Message:    fmt.Sprintf("%s %s: %s", strings.ToUpper(string(in.Type)), in.Instance, msg),
			Peripheral: in.Type,
			Instance:   in.Instance,
			Field:      field,
		})
	}

	for _, r := range rules[in.Type] {
		if !in.Fields.Has(r.Field) {
			if r.Required {
				issue(types.SeverityError, errcode.MissingField, r.Field, r.Field+" is required")
			}
			continue
		}

		if len(r.Enum) > 0 {
			v := strings.ToLower(in.Fields.String(r.Field))
			if !mathx.OneOf(v, r.Enum...) {
				issue(types.SeverityError, errcode.OutOfRange, r.Field,
					fmt.Sprintf("%s must be one of %s, got %q", r.Field, strings.Join(r.Enum, ", "), v))
			}
			continue
		}

		v, ok := in.Fields.Int(r.Field)
		if !ok {
			issue(types.SeverityError, errcode.InvalidParams, r.Field, r.Field+" must be an integer")
			continue
		}
		if r.Range != nil && !r.Range.Contains(v) {
			msg := fmt.Sprintf("%s %d out of range %d..%d", r.Field, v, r.Range.Lo, r.Range.Hi)
			if r.Range.Hi == math.MaxInt {
				msg = fmt.Sprintf("%s %d must be at least %d", r.Field, v, r.Range.Lo)
			}
			issue(types.SeverityError, errcode.OutOfRange, r.Field, msg)
			continue
		}
		if len(r.Allowed) > 0 && !mathx.OneOf(v, r.Allowed...) {
			issue(types.SeverityError, errcode.OutOfRange, r.Field,
				fmt.Sprintf("%s %d must be one of %s", r.Field, v, ints(r.Allowed)))
			continue
		}
		if len(r.Preferred) > 0 && !mathx.OneOf(v, r.Preferred...) {
			issue(types.SeverityWarning, errcode.OutOfRange, r.Field,
				fmt.Sprintf("%s %d is non-standard", r.Field, v))
		}
		if r.Warn != nil {
			if msg := r.Warn(m, v); msg != "" {
				issue(types.SeverityWarning, errcode.OutOfRange, r.Field, msg)
			}
		}
	}
	return out
}

// RequiredFields lists the required fields for t (for form hints).
func RequiredFields(t types.PeripheralType) []string {
	var out []string
	for _, r := range rules[t] {
		if r.Required {
			out = append(out, r.Field)
		}
	}
	return out
}
