package types

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ------------------------
// Peripheral configuration (user-edited, per MCU)
// ------------------------

// Fields holds free-form instance settings such as baudRate or txPin.
// Values arrive from JSON or YAML, so numbers may be float64, int or string.
type Fields map[string]any

// PinMarker is the substring that marks a field as a pin assignment.
const PinMarker = "Pin"

// FieldEnabled disables an instance when set to false.
const FieldEnabled = "enabled"

// String returns the field rendered as a string ("" if absent).
func (f Fields) String(key string) string {
	v, ok := f[key]
	if !ok || v == nil {
		return ""
	}
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case int:
		return strconv.Itoa(x)
	case int64:
		return strconv.FormatInt(x, 10)
	case bool:
		return strconv.FormatBool(x)
	case json.Number:
		return x.String()
	}
	return ""
}

// Int returns the field as an integer. Strings are parsed (decimal or 0x hex);
// non-integral floats are rejected.
func (f Fields) Int(key string) (int, bool) {
	v, ok := f[key]
	if !ok {
		return 0, false
	}
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case uint64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case json.Number:
		n, err := x.Int64()
		return int(n), err == nil
	case string:
		n, err := strconv.ParseInt(strings.TrimSpace(x), 0, 64)
		return int(n), err == nil
	}
	return 0, false
}

// Bool returns the field as a bool; "true"/"false" strings are accepted.
func (f Fields) Bool(key string) (bool, bool) {
	switch x := f[key].(type) {
	case bool:
		return x, true
	case string:
		b, err := strconv.ParseBool(x)
		return b, err == nil
	}
	return false, false
}

// Has reports whether key is present with a non-empty value.
func (f Fields) Has(key string) bool {
	v, ok := f[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr {
		return strings.TrimSpace(s) != ""
	}
	return true
}

// Enabled is true unless the instance carries enabled=false.
func (f Fields) Enabled() bool {
	if b, ok := f.Bool(FieldEnabled); ok {
		return b
	}
	return true
}

// PinField is one pin assignment found in an instance's fields.
type PinField struct {
	Field    string // e.g. "txPin"
	Function string // e.g. "tx"
	Pin      string // e.g. "PA9"
}

// PinFields returns every field whose name contains "Pin" and whose value
// is a non-empty string, sorted by field name.
func (f Fields) PinFields() []PinField {
	var out []PinField
	for k, v := range f {
		if !strings.Contains(k, PinMarker) {
			continue
		}
		s, ok := v.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, PinField{Field: k, Function: PinFunction(k), Pin: s})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	return out
}

// PinFunction derives the logical function from a pin field name:
// "txPin" -> "tx", "sdaPin" -> "sda", "Pin" -> "pin".
func PinFunction(field string) string {
	fn := strings.Replace(field, PinMarker, "", 1)
	if fn == "" {
		return "pin"
	}
	return strings.ToLower(fn)
}

// Clone returns a shallow copy.
func (f Fields) Clone() Fields {
	out := make(Fields, len(f))
	for k, v := range f {
		out[k] = v
	}
	return out
}

// Configuration maps peripheral type -> instance name -> fields for one MCU.
type Configuration struct {
	MCUID       string                               `json:"mcu" yaml:"mcu"`
	Peripherals map[PeripheralType]map[string]Fields `json:"peripherals" yaml:"peripherals"`
	UpdatedAt   time.Time                            `json:"updated_at,omitempty" yaml:"-"`
}

func NewConfiguration(mcuID string) *Configuration {
	return &Configuration{MCUID: mcuID, Peripherals: map[PeripheralType]map[string]Fields{}}
}

// Set replaces the fields of one instance.
func (c *Configuration) Set(t PeripheralType, instance string, f Fields) {
	if c.Peripherals == nil {
		c.Peripherals = map[PeripheralType]map[string]Fields{}
	}
	m := c.Peripherals[t]
	if m == nil {
		m = map[string]Fields{}
		c.Peripherals[t] = m
	}
	m[instance] = f.Clone()
}

// Delete removes an instance; it reports whether anything was removed.
func (c *Configuration) Delete(t PeripheralType, instance string) bool {
	m := c.Peripherals[t]
	if _, ok := m[instance]; !ok {
		return false
	}
	delete(m, instance)
	if len(m) == 0 {
		delete(c.Peripherals, t)
	}
	return true
}

func (c *Configuration) Get(t PeripheralType, instance string) (Fields, bool) {
	f, ok := c.Peripherals[t][instance]
	return f, ok
}

// InstanceRef is one configured instance with its fields.
type InstanceRef struct {
	Type     PeripheralType
	Instance string
	Fields   Fields
}

// Instances lists configured instances ordered by type then instance name.
func (c *Configuration) Instances() []InstanceRef {
	var out []InstanceRef
	for t, m := range c.Peripherals {
		for name, f := range m {
			out = append(out, InstanceRef{Type: t, Instance: name, Fields: f})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Instance < out[j].Instance
	})
	return out
}

// Clone deep-copies the peripheral map (field values are shared).
func (c *Configuration) Clone() *Configuration {
	out := &Configuration{MCUID: c.MCUID, UpdatedAt: c.UpdatedAt, Peripherals: make(map[PeripheralType]map[string]Fields, len(c.Peripherals))}
	for t, m := range c.Peripherals {
		mm := make(map[string]Fields, len(m))
		for k, f := range m {
			mm[k] = f.Clone()
		}
		out.Peripherals[t] = mm
	}
	return out
}

// Selection is the persisted choice of MCU.
type Selection struct {
	MCU        MCU       `json:"mcu"`
	SelectedAt time.Time `json:"selected_at"`
}
