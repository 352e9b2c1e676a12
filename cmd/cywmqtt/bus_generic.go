//go:build (tinygo || cyw43439_hw) && !(rp2040 || rp2350)

package main

import (
	"machine"

	"github.com/soypat/cyw43439"
)

// newBus constructs the radio transport using the board's hardware
// SPI peripheral, for boards whose SPI controller can drive MOSI and
// MISO as independent lines.
func newBus() cyw43439.Bus {
	cs, wlRegOn, irq := cyw43439.PicoWSpi()
	spi := machine.SPI0
	spi.Configure(machine.SPIConfig{Frequency: 30_000_000, Mode: 0})
	return cyw43439.NewSPIBus(spi, cs, wlRegOn, irq)
}
