package validate

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mcuplan/errcode"
	"mcuplan/services/catalog"
	"mcuplan/types"
)

func newValidator() *Validator {
	v := New(catalog.NewBuiltin(), zerolog.Nop())
	v.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	v.newID = func() string { return "report-1" }
	return v
}

func codes(is []types.Issue) []string {
	out := make([]string, len(is))
	for i, x := range is {
		out[i] = x.Code
	}
	return out
}

func TestValidConfiguration(t *testing.T) {
	c := types.NewConfiguration("stm32f103c8")
	c.Set(types.PeriphUART, "USART1", types.Fields{"baudRate": 115200, "txPin": "PA9", "rxPin": "PA10"})
	c.Set(types.PeriphI2C, "I2C1", types.Fields{"speed": 400000, "sclPin": "PB6", "sdaPin": "PB7"})
	c.Set(types.PeriphSPI, "SPI1", types.Fields{"mode": 0, "clockHz": 8_000_000, "sckPin": "PA5"})

	r := newValidator().Validate(c)
	assert.True(t, r.Valid, "%+v", r.Issues())
	assert.Empty(t, r.Warnings)
	assert.Equal(t, "report-1", r.ID)
	assert.Equal(t, "stm32f103c8", r.MCUID)
	assert.Len(t, r.Assignments, 5)
}

func TestUnknownMCU(t *testing.T) {
	r := newValidator().Validate(types.NewConfiguration("z80"))
	assert.False(t, r.Valid)
	require.Len(t, r.Errors, 1)
	assert.Equal(t, string(errcode.UnknownMCU), r.Errors[0].Code)
}

func TestNilConfiguration(t *testing.T) {
	r := newValidator().Validate(nil)
	assert.False(t, r.Valid)
	assert.Equal(t, []string{string(errcode.InvalidPayload)}, codes(r.Errors))
}

func TestUnsupportedPeripheralAndUnknownInstance(t *testing.T) {
	c := types.NewConfiguration("atmega328p")
	c.Set(types.PeriphCAN, "CAN1", types.Fields{"bitrate": 500000})
	c.Set(types.PeriphUART, "USART3", types.Fields{"baudRate": 9600})

	r := newValidator().Validate(c)
	assert.Equal(t, []string{string(errcode.UnknownPeripheral), string(errcode.UnknownInstance)}, codes(r.Errors))
}

func TestFieldRules(t *testing.T) {
	c := types.NewConfiguration("stm32f103c8")
	c.Set(types.PeriphUART, "USART1", types.Fields{"baudRate": 12345, "parity": "mark", "stopBits": 3})
	c.Set(types.PeriphUART, "USART2", types.Fields{})
	c.Set(types.PeriphI2C, "I2C1", types.Fields{"speed": 250000, "address": 0x03})
	c.Set(types.PeriphCAN, "CAN1", types.Fields{"bitrate": 100000})
	c.Set(types.PeriphPWM, "TIM2", types.Fields{"frequencyHz": 1000, "dutyCycle": 150})
	c.Set(types.PeriphADC, "ADC1", types.Fields{"resolution": 11})
	c.Set(types.PeriphSPI, "SPI2", types.Fields{"mode": 4, "clockHz": "fast"})

	r := newValidator().Validate(c)
	assert.False(t, r.Valid)

	byField := map[string]types.Issue{}
	for _, is := range r.Issues() {
		byField[is.Instance+"."+is.Field] = is
	}
	assert.Equal(t, types.SeverityWarning, byField["USART1.baudRate"].Type)
	assert.Equal(t, types.SeverityError, byField["USART1.parity"].Type)
	assert.Equal(t, types.SeverityError, byField["USART1.stopBits"].Type)
	assert.Equal(t, string(errcode.MissingField), byField["USART2.baudRate"].Code)
	assert.Equal(t, types.SeverityWarning, byField["I2C1.speed"].Type)
	assert.Equal(t, types.SeverityError, byField["I2C1.address"].Type)
	assert.Equal(t, types.SeverityError, byField["CAN1.bitrate"].Type)
	assert.Equal(t, types.SeverityError, byField["TIM2.dutyCycle"].Type)
	assert.Equal(t, types.SeverityError, byField["ADC1.resolution"].Type)
	assert.Equal(t, string(errcode.OutOfRange), byField["SPI2.mode"].Code)
	assert.Equal(t, string(errcode.InvalidParams), byField["SPI2.clockHz"].Code)
}

func TestFastBusSpeedsWarnOnly(t *testing.T) {
	c := types.NewConfiguration("rp2040")
	c.Set(types.PeriphI2C, "I2C0", types.Fields{"speed": 10_000_000})
	c.Set(types.PeriphSPI, "SPI0", types.Fields{"mode": 0, "clockHz": 2_000_000_000})
	c.Set(types.PeriphPWM, "PWM0", types.Fields{"frequencyHz": 2_000_000_000})

	r := newValidator().Validate(c)
	assert.Empty(t, r.Errors)
	require.Len(t, r.Warnings, 2)
	assert.Equal(t, "speed", r.Warnings[0].Field)
	assert.Contains(t, r.Warnings[0].Message, "non-standard")
	assert.Equal(t, "clockHz", r.Warnings[1].Field)
	assert.Contains(t, r.Warnings[1].Message, "half the core clock")

	c.Set(types.PeriphI2C, "I2C0", types.Fields{"speed": 0})
	r = newValidator().Validate(c)
	require.Len(t, r.Errors, 1)
	assert.Contains(t, r.Errors[0].Message, "speed 0 must be at least 1")
}

func TestSPIClockAboveHalfCoreClockWarns(t *testing.T) {
	c := types.NewConfiguration("atmega328p")
	c.Set(types.PeriphSPI, "SPI", types.Fields{"mode": 0, "clockHz": 10_000_000})
	r := newValidator().Validate(c)
	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 1)
	assert.Contains(t, r.Warnings[0].Message, "half the core clock")
}

func TestNonDefaultPinWarning(t *testing.T) {
	c := types.NewConfiguration("stm32f103c8")
	// PB6/PB7 are the documented USART1 remap: allowed without warning.
	c.Set(types.PeriphUART, "USART1", types.Fields{"baudRate": 9600, "txPin": "PB6", "rxPin": "PB7"})
	// PA0 is a real pin but not a USART2 tx option.
	c.Set(types.PeriphUART, "USART2", types.Fields{"baudRate": 9600, "txPin": "PA0"})

	r := newValidator().Validate(c)
	assert.True(t, r.Valid)
	require.Len(t, r.Warnings, 1)
	w := r.Warnings[0]
	assert.Equal(t, string(errcode.NonDefaultPin), w.Code)
	assert.Equal(t, "PA0", w.Pin)
	assert.Contains(t, w.Message, "default PA2")
}

func TestPinConflictsBothAppear(t *testing.T) {
	c := types.NewConfiguration("rp2040")
	// Default UART1 and I2C0 both sit on GP4/GP5.
	c.Set(types.PeriphUART, "UART1", types.Fields{"baudRate": 115200, "txPin": "GP4", "rxPin": "GP5"})
	c.Set(types.PeriphI2C, "I2C0", types.Fields{"speed": 100000, "sdaPin": "GP4", "sclPin": "GP5"})

	r := newValidator().Validate(c)
	assert.False(t, r.Valid)
	assert.Empty(t, r.Errors)
	require.Len(t, r.Conflicts, 4)
	insts := map[string]int{}
	for _, is := range r.Conflicts {
		insts[is.Instance]++
	}
	assert.Equal(t, map[string]int{"UART1": 2, "I2C0": 2}, insts)
}

func TestUnknownPinIsError(t *testing.T) {
	c := types.NewConfiguration("rp2040")
	c.Set(types.PeriphUART, "UART0", types.Fields{"baudRate": 115200, "txPin": "GP99"})
	r := newValidator().Validate(c)
	assert.Equal(t, []string{string(errcode.UnknownPin)}, codes(r.Errors))
	assert.Empty(t, r.Warnings)
}

func TestDisabledInstanceIgnored(t *testing.T) {
	c := types.NewConfiguration("rp2040")
	c.Set(types.PeriphUART, "UART9", types.Fields{"enabled": false})
	r := newValidator().Validate(c)
	assert.True(t, r.Valid)
}

func TestGPIOPinsAreFree(t *testing.T) {
	c := types.NewConfiguration("rp2040")
	c.Set(types.PeriphGPIO, "GPIO", types.Fields{"mode": "output", "ledPin": "GP15", "buttonPin": "GP14"})
	r := newValidator().Validate(c)
	assert.True(t, r.Valid)
	assert.Empty(t, r.Warnings)
}

func TestRequiredFields(t *testing.T) {
	assert.Equal(t, []string{"baudRate"}, RequiredFields(types.PeriphUART))
	assert.Equal(t, []string{"mode", "clockHz"}, RequiredFields(types.PeriphSPI))
	assert.Empty(t, RequiredFields(types.PeriphGPIO))
}
