package catalog

import (
	"fmt"

	"mcuplan/types"
)

// -----------------------------------------------------------------------------
// Built-in MCU specifications
//
// Hand-authored and never mutated. Pin mappings are the vendor defaults;
// alternates list the documented remap options.
// -----------------------------------------------------------------------------

func pinRange(prefix string, from, to int) []string {
	out := make([]string, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, fmt.Sprintf("%s%d", prefix, i))
	}
	return out
}

func pins(groups ...[]string) []string {
	var out []string
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

type pm = map[string]string
type alt = map[string][]string

func inst(name string, p pm, a alt) types.InstanceSpec {
	return types.InstanceSpec{Name: name, Pins: p, Alternates: a}
}

func periph(t types.PeripheralType, in ...types.InstanceSpec) types.PeripheralSpec {
	return types.PeripheralSpec{Type: t, Instances: in}
}

func stm32f103c8() types.MCU {
	return types.MCU{
		ID:          "stm32f103c8",
		Name:        "STM32F103C8",
		Vendor:      "STMicroelectronics",
		Core:        "Cortex-M3",
		Description: "Mainstream performance line, 64 KB flash (Blue Pill)",
		ClockMHz:    72,
		FlashKB:     64,
		RAMKB:       20,
		Pins:        pins(pinRange("PA", 0, 15), pinRange("PB", 0, 15), pinRange("PC", 13, 15)),
		Peripherals: []types.PeripheralSpec{
			periph(types.PeriphUART,
				inst("USART1", pm{"tx": "PA9", "rx": "PA10"}, alt{"tx": {"PB6"}, "rx": {"PB7"}}),
				inst("USART2", pm{"tx": "PA2", "rx": "PA3"}, nil),
				inst("USART3", pm{"tx": "PB10", "rx": "PB11"}, nil),
			),
			periph(types.PeriphI2C,
				inst("I2C1", pm{"scl": "PB6", "sda": "PB7"}, alt{"scl": {"PB8"}, "sda": {"PB9"}}),
				inst("I2C2", pm{"scl": "PB10", "sda": "PB11"}, nil),
			),
			periph(types.PeriphSPI,
				inst("SPI1", pm{"nss": "PA4", "sck": "PA5", "miso": "PA6", "mosi": "PA7"},
					alt{"nss": {"PA15"}, "sck": {"PB3"}, "miso": {"PB4"}, "mosi": {"PB5"}}),
				inst("SPI2", pm{"nss": "PB12", "sck": "PB13", "miso": "PB14", "mosi": "PB15"}, nil),
			),
			periph(types.PeriphPWM,
				inst("TIM1", pm{"ch1": "PA8", "ch2": "PA9", "ch3": "PA10", "ch4": "PA11"}, nil),
				inst("TIM2", pm{"ch1": "PA0", "ch2": "PA1", "ch3": "PA2", "ch4": "PA3"}, nil),
				inst("TIM3", pm{"ch1": "PA6", "ch2": "PA7", "ch3": "PB0", "ch4": "PB1"}, nil),
			),
			periph(types.PeriphADC,
				inst("ADC1", pm{"in0": "PA0", "in1": "PA1", "in2": "PA2", "in3": "PA3", "in4": "PA4",
					"in5": "PA5", "in6": "PA6", "in7": "PA7", "in8": "PB0", "in9": "PB1"}, nil),
			),
			periph(types.PeriphCAN,
				inst("CAN1", pm{"rx": "PA11", "tx": "PA12"}, alt{"rx": {"PB8"}, "tx": {"PB9"}}),
			),
			periph(types.PeriphGPIO, inst("GPIO", pm{"led": "PC13"}, nil)),
		},
	}
}

func rp2040() types.MCU {
	gp := func(ns ...int) []string {
		out := make([]string, len(ns))
		for i, n := range ns {
			out[i] = fmt.Sprintf("GP%d", n)
		}
		return out
	}
	pwm := make([]types.InstanceSpec, 0, 8)
	for s := 0; s < 8; s++ {
		pwm = append(pwm, inst(fmt.Sprintf("PWM%d", s),
			pm{"a": fmt.Sprintf("GP%d", 2*s), "b": fmt.Sprintf("GP%d", 2*s+1)},
			alt{"a": gp(2*s + 16), "b": gp(2*s + 17)}))
	}
	return types.MCU{
		ID:          "rp2040",
		Name:        "RP2040",
		Vendor:      "Raspberry Pi",
		Core:        "Dual Cortex-M0+",
		Description: "Dual-core microcontroller with programmable I/O (Pico)",
		ClockMHz:    133,
		FlashKB:     2048,
		RAMKB:       264,
		Pins:        pinRange("GP", 0, 29),
		Peripherals: []types.PeripheralSpec{
			periph(types.PeriphUART,
				inst("UART0", pm{"tx": "GP0", "rx": "GP1"}, alt{"tx": gp(12, 16, 28), "rx": gp(13, 17, 29)}),
				inst("UART1", pm{"tx": "GP4", "rx": "GP5"}, alt{"tx": gp(8, 20, 24), "rx": gp(9, 21, 25)}),
			),
			periph(types.PeriphI2C,
				inst("I2C0", pm{"sda": "GP4", "scl": "GP5"}, alt{"sda": gp(0, 8, 12, 16, 20), "scl": gp(1, 9, 13, 17, 21)}),
				inst("I2C1", pm{"sda": "GP2", "scl": "GP3"}, alt{"sda": gp(6, 10, 14, 18, 26), "scl": gp(7, 11, 15, 19, 27)}),
			),
			periph(types.PeriphSPI,
				inst("SPI0", pm{"rx": "GP16", "cs": "GP17", "sck": "GP18", "tx": "GP19"},
					alt{"rx": gp(0, 4), "cs": gp(1, 5), "sck": gp(2, 6), "tx": gp(3, 7)}),
				inst("SPI1", pm{"rx": "GP12", "cs": "GP13", "sck": "GP14", "tx": "GP15"},
					alt{"rx": gp(8, 28), "cs": gp(9), "sck": gp(10, 26), "tx": gp(11, 27)}),
			),
			periph(types.PeriphPWM, pwm...),
			periph(types.PeriphADC,
				inst("ADC", pm{"in0": "GP26", "in1": "GP27", "in2": "GP28", "in3": "GP29"}, nil),
			),
			periph(types.PeriphGPIO, inst("GPIO", pm{"led": "GP25"}, nil)),
		},
	}
}

func esp32() types.MCU {
	return types.MCU{
		ID:          "esp32-wroom-32",
		Name:        "ESP32-WROOM-32",
		Vendor:      "Espressif",
		Core:        "Dual Xtensa LX6",
		Description: "Wi-Fi + Bluetooth module with GPIO matrix",
		ClockMHz:    240,
		FlashKB:     4096,
		RAMKB:       520,
		Pins: pins(pinRange("GPIO", 0, 5), pinRange("GPIO", 12, 19), pinRange("GPIO", 21, 23),
			pinRange("GPIO", 25, 27), pinRange("GPIO", 32, 39)),
		Peripherals: []types.PeripheralSpec{
			periph(types.PeriphUART,
				inst("UART0", pm{"tx": "GPIO1", "rx": "GPIO3"}, nil),
				inst("UART1", pm{"tx": "GPIO10", "rx": "GPIO9"}, alt{"tx": {"GPIO4"}, "rx": {"GPIO5"}}),
				inst("UART2", pm{"tx": "GPIO17", "rx": "GPIO16"}, nil),
			),
			periph(types.PeriphI2C,
				inst("I2C0", pm{"sda": "GPIO21", "scl": "GPIO22"}, nil),
				inst("I2C1", pm{"sda": "GPIO25", "scl": "GPIO26"}, alt{"sda": {"GPIO32"}, "scl": {"GPIO33"}}),
			),
			periph(types.PeriphSPI,
				inst("HSPI", pm{"mosi": "GPIO13", "miso": "GPIO12", "sck": "GPIO14", "cs": "GPIO15"}, nil),
				inst("VSPI", pm{"mosi": "GPIO23", "miso": "GPIO19", "sck": "GPIO18", "cs": "GPIO5"}, nil),
			),
			periph(types.PeriphPWM,
				inst("LEDC0", pm{"ch0": "GPIO2", "ch1": "GPIO4"}, alt{"ch0": {"GPIO27"}, "ch1": {"GPIO32"}}),
			),
			periph(types.PeriphADC,
				inst("ADC1", pm{"ch0": "GPIO36", "ch3": "GPIO39", "ch4": "GPIO32", "ch5": "GPIO33", "ch6": "GPIO34", "ch7": "GPIO35"}, nil),
			),
			periph(types.PeriphCAN,
				inst("TWAI0", pm{"tx": "GPIO5", "rx": "GPIO4"}, alt{"tx": {"GPIO27"}, "rx": {"GPIO26"}}),
			),
		},
	}
}

func atmega328p() types.MCU {
	return types.MCU{
		ID:          "atmega328p",
		Name:        "ATmega328P",
		Vendor:      "Microchip",
		Core:        "AVR",
		Description: "8-bit AVR (Arduino Uno)",
		ClockMHz:    16,
		FlashKB:     32,
		RAMKB:       2,
		Pins:        pins(pinRange("PB", 0, 5), pinRange("PC", 0, 5), pinRange("PD", 0, 7)),
		Peripherals: []types.PeripheralSpec{
			periph(types.PeriphUART, inst("USART0", pm{"tx": "PD1", "rx": "PD0"}, nil)),
			periph(types.PeriphI2C, inst("TWI", pm{"sda": "PC4", "scl": "PC5"}, nil)),
			periph(types.PeriphSPI, inst("SPI", pm{"ss": "PB2", "mosi": "PB3", "miso": "PB4", "sck": "PB5"}, nil)),
			periph(types.PeriphPWM,
				inst("TIMER0", pm{"oca": "PD6", "ocb": "PD5"}, nil),
				inst("TIMER1", pm{"oca": "PB1", "ocb": "PB2"}, nil),
				inst("TIMER2", pm{"oca": "PB3", "ocb": "PD3"}, nil),
			),
			periph(types.PeriphADC,
				inst("ADC", pm{"in0": "PC0", "in1": "PC1", "in2": "PC2", "in3": "PC3", "in4": "PC4", "in5": "PC5"}, nil),
			),
			periph(types.PeriphGPIO, inst("GPIO", pm{"led": "PB5"}, nil)),
		},
	}
}

func nrf52840() types.MCU {
	return types.MCU{
		ID:          "nrf52840",
		Name:        "nRF52840",
		Vendor:      "Nordic Semiconductor",
		Core:        "Cortex-M4F",
		Description: "Bluetooth LE / Thread / Zigbee SoC with fully remappable pins",
		ClockMHz:    64,
		FlashKB:     1024,
		RAMKB:       256,
		Pins:        pins(pinRange("P0.", 0, 31), pinRange("P1.", 0, 15)),
		Peripherals: []types.PeripheralSpec{
			periph(types.PeriphUART,
				inst("UARTE0", pm{"tx": "P0.6", "rx": "P0.8", "rts": "P0.5", "cts": "P0.7"}, nil),
				inst("UARTE1", pm{"tx": "P1.2", "rx": "P1.1"}, nil),
			),
			periph(types.PeriphI2C,
				inst("TWIM0", pm{"sda": "P0.26", "scl": "P0.27"}, nil),
				inst("TWIM1", pm{"sda": "P1.4", "scl": "P1.6"}, nil),
			),
			periph(types.PeriphSPI,
				inst("SPIM3", pm{"sck": "P0.19", "mosi": "P0.20", "miso": "P0.21", "cs": "P0.17"}, nil),
			),
			periph(types.PeriphPWM,
				inst("PWM0", pm{"out0": "P0.13", "out1": "P0.14", "out2": "P0.15", "out3": "P0.16"}, nil),
			),
			periph(types.PeriphADC,
				inst("SAADC", pm{"ain0": "P0.2", "ain1": "P0.3", "ain2": "P0.4", "ain4": "P0.28",
					"ain5": "P0.29", "ain6": "P0.30", "ain7": "P0.31"}, nil),
			),
		},
	}
}

// Builtin returns a fresh copy of the built-in specifications.
func Builtin() []types.MCU {
	return []types.MCU{stm32f103c8(), rp2040(), esp32(), atmega328p(), nrf52840()}
}
