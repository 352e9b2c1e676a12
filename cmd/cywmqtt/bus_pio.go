//go:build rp2040 || rp2350

package main

import (
	"machine"

	"github.com/soypat/cyw43439"
	"github.com/soypat/cyw43439/piospi"
	pio "github.com/tinygo-org/pio/rp2-pio"
)

// newBus constructs the radio transport on a PIO state machine instead
// of the hardware SPI peripheral: the Pico W ties the CYW43439's DO
// and DI lines together onto one data pin, which RP2040's SPI
// controller can't drive half-duplex but a bitbanged PIO program can.
// piospi.T implements drivers.SPI, so the same gSPI framing SPIBus
// already knows runs unmodified on top of it.
func newBus() cyw43439.Bus {
	cs, wlRegOn, irq := cyw43439.PicoWSpi()

	sm, err := pio.PIO0.ClaimStateMachine()
	if err != nil {
		panic(err)
	}
	spi, err := piospi.New(sm, piospi.Config{
		Clock:  machine.GPIO29,
		Data:   machine.GPIO24,
		CS:     cs,
		BaudHz: 30_000_000,
	})
	if err != nil {
		panic(err)
	}
	return cyw43439.NewSPIBus(spi, cs, wlRegOn, irq)
}
