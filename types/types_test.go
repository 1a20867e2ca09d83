package types

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testMCU() *MCU {
	return &MCU{
		ID:   "demo",
		Pins: []string{"PA10", "PA2", "PB0"},
		Peripherals: []PeripheralSpec{
			{Type: PeriphUART, Instances: []InstanceSpec{
				{Name: "UART1", Pins: map[string]string{"tx": "PA9", "rx": "PA10"},
					Alternates: map[string][]string{"tx": {"PB6"}}},
			}},
		},
	}
}

func TestInventoryMergesDeclaredAndMappedPins(t *testing.T) {
	got := testMCU().Inventory()
	want := []string{"PA2", "PA9", "PA10", "PB0", "PB6"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("inventory mismatch (-want +got):\n%s", diff)
	}
}

func TestInstanceLookup(t *testing.T) {
	m := testMCU()
	in, ok := m.Instance(PeriphUART, "uart1")
	require.True(t, ok)
	assert.Equal(t, "UART1", in.Name)
	assert.True(t, in.Allows("tx", "PA9"))
	assert.True(t, in.Allows("tx", "PB6"))
	assert.False(t, in.Allows("tx", "PA10"))

	_, ok = m.Instance(PeriphI2C, "I2C1")
	assert.False(t, ok)
	assert.False(t, m.Supports(PeriphSPI))
}

func TestPinFields(t *testing.T) {
	f := Fields{
		"baudRate": 115200.0,
		"txPin":    "PA9",
		"rxPin":    " PA10 ",
		"ctsPin":   "",
		"rtsPin":   12.0,
	}
	got := f.PinFields()
	want := []PinField{
		{Field: "rxPin", Function: "rx", Pin: "PA10"},
		{Field: "txPin", Function: "tx", Pin: "PA9"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("pin fields mismatch (-want +got):\n%s", diff)
	}
}

func TestPinFunction(t *testing.T) {
	assert.Equal(t, "tx", PinFunction("txPin"))
	assert.Equal(t, "sda", PinFunction("sdaPin"))
	assert.Equal(t, "pin", PinFunction("Pin"))
	assert.Equal(t, "chipselect", PinFunction("chipSelectPin"))
}

func TestFieldsConversions(t *testing.T) {
	var f Fields
	require.NoError(t, json.Unmarshal([]byte(`{"baudRate":9600,"address":"0x3C","half":1.5,"enabled":"false"}`), &f))

	n, ok := f.Int("baudRate")
	assert.True(t, ok)
	assert.Equal(t, 9600, n)

	n, ok = f.Int("address")
	assert.True(t, ok)
	assert.Equal(t, 0x3C, n)

	_, ok = f.Int("half")
	assert.False(t, ok)

	assert.False(t, f.Enabled())
	assert.Equal(t, "9600", f.String("baudRate"))
	assert.True(t, Fields{}.Enabled())
}

func TestConfigurationSetDeleteInstances(t *testing.T) {
	c := NewConfiguration("demo")
	c.Set(PeriphUART, "UART2", Fields{"baudRate": 9600})
	c.Set(PeriphI2C, "I2C1", Fields{"speed": 100000})
	c.Set(PeriphUART, "UART1", Fields{"baudRate": 115200})

	var order []string
	for _, in := range c.Instances() {
		order = append(order, string(in.Type)+"/"+in.Instance)
	}
	assert.Equal(t, []string{"i2c/I2C1", "uart/UART1", "uart/UART2"}, order)

	assert.True(t, c.Delete(PeriphI2C, "I2C1"))
	assert.False(t, c.Delete(PeriphI2C, "I2C1"))
	_, ok := c.Peripherals[PeriphI2C]
	assert.False(t, ok)

	cl := c.Clone()
	cl.Set(PeriphUART, "UART1", Fields{"baudRate": 1})
	f, _ := c.Get(PeriphUART, "UART1")
	assert.Equal(t, 115200, f["baudRate"])
}

func TestReportFinish(t *testing.T) {
	var r Report
	r.Add(Issue{Type: SeverityWarning, Message: "w"})
	r.Finish()
	assert.True(t, r.Valid)
	assert.NotNil(t, r.Errors)

	r.Add(Issue{Type: SeverityConflict, Message: "c"})
	r.Finish()
	assert.False(t, r.Valid)
	assert.Len(t, r.Issues(), 2)
}

func TestPinLess(t *testing.T) {
	pins := []string{"GP12", "GP3", "D10", "A0", "D2"}
	SortPins(pins)
	assert.Equal(t, []string{"A0", "D2", "D10", "GP3", "GP12"}, pins)
}
