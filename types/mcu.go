package types

import (
	"sort"
	"strings"
)

// ------------------------
// Peripheral taxonomy
// ------------------------

type PeripheralType string

const (
	PeriphUART PeripheralType = "uart"
	PeriphI2C  PeripheralType = "i2c"
	PeriphSPI  PeripheralType = "spi"
	PeriphPWM  PeripheralType = "pwm"
	PeriphADC  PeripheralType = "adc"
	PeriphCAN  PeripheralType = "can"
	PeriphGPIO PeripheralType = "gpio"
)

// Known reports whether t is one of the peripheral types above.
func (t PeripheralType) Known() bool {
	switch t {
	case PeriphUART, PeriphI2C, PeriphSPI, PeriphPWM, PeriphADC, PeriphCAN, PeriphGPIO:
		return true
	}
	return false
}

// ------------------------
// MCU specification (static, never mutated after load)
// ------------------------

// InstanceSpec is one peripheral instance (e.g. "UART1") and its fixed
// logical-function to physical-pin mapping ("tx" -> "PA9").
type InstanceSpec struct {
	Name       string              `json:"name" yaml:"name"`
	Pins       map[string]string   `json:"pins" yaml:"pins"`
	Alternates map[string][]string `json:"alternates,omitempty" yaml:"alternates,omitempty"`
}

// Allows reports whether pin is the default or an alternate for function fn.
func (s InstanceSpec) Allows(fn, pin string) bool {
	if s.Pins[fn] == pin {
		return true
	}
	for _, alt := range s.Alternates[fn] {
		if alt == pin {
			return true
		}
	}
	return false
}

type PeripheralSpec struct {
	Type      PeripheralType `json:"type" yaml:"type"`
	Instances []InstanceSpec `json:"instances" yaml:"instances"`
}

type MCU struct {
	ID          string           `json:"id" yaml:"id"`
	Name        string           `json:"name" yaml:"name"`
	Vendor      string           `json:"vendor,omitempty" yaml:"vendor,omitempty"`
	Core        string           `json:"core,omitempty" yaml:"core,omitempty"`
	Description string           `json:"description,omitempty" yaml:"description,omitempty"`
	ClockMHz    int              `json:"clock_mhz" yaml:"clock_mhz"`
	FlashKB     int              `json:"flash_kb" yaml:"flash_kb"`
	RAMKB       int              `json:"ram_kb" yaml:"ram_kb"`
	Pins        []string         `json:"pins,omitempty" yaml:"pins,omitempty"`
	Peripherals []PeripheralSpec `json:"peripherals" yaml:"peripherals"`
}

// Peripheral returns the spec for type t.
func (m *MCU) Peripheral(t PeripheralType) (PeripheralSpec, bool) {
	for _, p := range m.Peripherals {
		if p.Type == t {
			return p, true
		}
	}
	return PeripheralSpec{}, false
}

func (m *MCU) Supports(t PeripheralType) bool {
	_, ok := m.Peripheral(t)
	return ok
}

// Instance looks up an instance by name, case-insensitively ("uart1" finds "UART1").
func (m *MCU) Instance(t PeripheralType, name string) (InstanceSpec, bool) {
	p, ok := m.Peripheral(t)
	if !ok {
		return InstanceSpec{}, false
	}
	for _, in := range p.Instances {
		if strings.EqualFold(in.Name, name) {
			return in, true
		}
	}
	return InstanceSpec{}, false
}

// Inventory returns every physical pin the MCU knows about: the declared
// pin list plus any pin named by an instance mapping or alternate.
// Sorted and de-duplicated.
func (m *MCU) Inventory() []string {
	seen := make(map[string]struct{}, len(m.Pins))
	add := func(p string) {
		if p != "" {
			seen[p] = struct{}{}
		}
	}
	for _, p := range m.Pins {
		add(p)
	}
	for _, per := range m.Peripherals {
		for _, in := range per.Instances {
			for _, p := range in.Pins {
				add(p)
			}
			for _, alts := range in.Alternates {
				for _, p := range alts {
					add(p)
				}
			}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	SortPins(out)
	return out
}

// SortPins orders pin names naturally: "PA2" < "PA10", "GP3" < "GP12".
func SortPins(pins []string) {
	sort.Slice(pins, func(i, j int) bool { return PinLess(pins[i], pins[j]) })
}

// PinLess compares the alphabetic prefix first, then the trailing number.
func PinLess(a, b string) bool {
	pa, na, oka := splitPin(a)
	pb, nb, okb := splitPin(b)
	if pa != pb || !oka || !okb {
		return a < b
	}
	if na != nb {
		return na < nb
	}
	return a < b
}

func splitPin(s string) (string, int, bool) {
	i := len(s)
	for i > 0 && s[i-1] >= '0' && s[i-1] <= '9' {
		i--
	}
	if i == len(s) {
		return s, 0, false
	}
	n := 0
	for _, c := range s[i:] {
		n = n*10 + int(c-'0')
		if n > 1<<20 {
			return s, 0, false
		}
	}
	return s[:i], n, true
}
