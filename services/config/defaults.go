package config

// -----------------------------------------------------------------------------
// Embedded starter configurations
//
// Key: MCU id. Val: raw JSON for that MCU's configuration. Used when an MCU
// is selected for the first time and nothing is stored yet.
// -----------------------------------------------------------------------------

const cfgRP2040 = `{
  "mcu": "rp2040",
  "peripherals": {
    "uart": {
      "UART0": { "baudRate": 115200, "txPin": "GP0", "rxPin": "GP1" }
    },
    "i2c": {
      "I2C1": { "speed": 400000, "sdaPin": "GP2", "sclPin": "GP3" }
    },
    "gpio": {
      "GPIO": { "mode": "output", "ledPin": "GP25" }
    }
  }
}`

const cfgSTM32F103C8 = `{
  "mcu": "stm32f103c8",
  "peripherals": {
    "uart": {
      "USART1": { "baudRate": 115200, "txPin": "PA9", "rxPin": "PA10" }
    },
    "gpio": {
      "GPIO": { "mode": "output", "ledPin": "PC13" }
    }
  }
}`

const cfgATmega328P = `{
  "mcu": "atmega328p",
  "peripherals": {
    "uart": {
      "USART0": { "baudRate": 9600, "txPin": "PD1", "rxPin": "PD0" }
    }
  }
}`

var embeddedDefaults = map[string][]byte{
	"rp2040":      []byte(cfgRP2040),
	"stm32f103c8": []byte(cfgSTM32F103C8),
	"atmega328p":  []byte(cfgATmega328P),
}

// DefaultsLookup allows overriding how starter configs are resolved.
var DefaultsLookup = func(mcuID string) ([]byte, bool) {
	b, ok := embeddedDefaults[mcuID]
	return b, ok
}
