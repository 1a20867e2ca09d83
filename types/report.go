package types

import "time"

// ------------------------
// Validation output
// ------------------------

type Severity string

const (
	SeverityError    Severity = "error"
	SeverityWarning  Severity = "warning"
	SeverityConflict Severity = "conflict"
)

// Issue is one validation finding.
type Issue struct {
	Type       Severity       `json:"type"`
	Code       string         `json:"code"`
	Message    string         `json:"message"`
	Peripheral PeripheralType `json:"peripheral,omitempty"`
	Instance   string         `json:"instance,omitempty"`
	Field      string         `json:"field,omitempty"`
	Pin        string         `json:"pin,omitempty"`
}

// Owner identifies the instance field that claims a pin.
type Owner struct {
	Peripheral PeripheralType `json:"peripheral"`
	Instance   string         `json:"instance"`
	Field      string         `json:"field"`
	Function   string         `json:"function"`
}

// SameInstance reports whether o and x refer to the same peripheral instance.
func (o Owner) SameInstance(x Owner) bool {
	return o.Peripheral == x.Peripheral && o.Instance == x.Instance
}

func (o Owner) String() string {
	return string(o.Peripheral) + "/" + o.Instance + "." + o.Field
}

// PinAssignment is derived from a configuration, never stored.
type PinAssignment struct {
	Pin    string  `json:"pin"`
	Owners []Owner `json:"owners"`
}

// Report is the result of validating one configuration.
type Report struct {
	ID          string          `json:"id"`
	MCUID       string          `json:"mcu"`
	Valid       bool            `json:"valid"`
	Errors      []Issue         `json:"errors"`
	Warnings    []Issue         `json:"warnings"`
	Conflicts   []Issue         `json:"conflicts"`
	Assignments []PinAssignment `json:"assignments"`
	CheckedAt   time.Time       `json:"checked_at"`
}

// Add files an issue under the list matching its severity.
func (r *Report) Add(is Issue) {
	switch is.Type {
	case SeverityError:
		r.Errors = append(r.Errors, is)
	case SeverityConflict:
		r.Conflicts = append(r.Conflicts, is)
	default:
		r.Warnings = append(r.Warnings, is)
	}
}

// Finish computes Valid; it also normalises nil slices for stable JSON.
func (r *Report) Finish() {
	if r.Errors == nil {
		r.Errors = []Issue{}
	}
	if r.Warnings == nil {
		r.Warnings = []Issue{}
	}
	if r.Conflicts == nil {
		r.Conflicts = []Issue{}
	}
	if r.Assignments == nil {
		r.Assignments = []PinAssignment{}
	}
	r.Valid = len(r.Errors) == 0 && len(r.Conflicts) == 0
}

// Issues returns errors, conflicts and warnings in that order.
func (r *Report) Issues() []Issue {
	out := make([]Issue, 0, len(r.Errors)+len(r.Conflicts)+len(r.Warnings))
	out = append(out, r.Errors...)
	out = append(out, r.Conflicts...)
	return append(out, r.Warnings...)
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK      bool   `json:"ok"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}
