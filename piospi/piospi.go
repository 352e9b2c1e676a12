//go:build rp2040 || rp2350

// Package piospi implements a PIO-driven SPI bus for boards (like the
// Raspberry Pi Pico W) where the CYW43439 shares a single data pin
// between SPI's MOSI and MISO lines, which the hardware SPI peripheral
// cannot drive: a bitbanged half-duplex program run on a PIO state
// machine takes its place, matching the shape of the RMII PIO driver
// this package is grounded on (NewXxx(sm, cfg) (*T, error), a small
// pio.StateMachine wrapper, SetEnabled/Tx8/Rx8 pass-throughs).
package piospi

import (
	"errors"
	"machine"

	pio "github.com/tinygo-org/pio/rp2-pio"
)

// Config describes the three pins and clock divider the shared-data-
// pin SPI program needs.
type Config struct {
	Clock  machine.Pin
	Data   machine.Pin // shared MOSI/MISO line.
	CS     machine.Pin
	BaudHz uint32
}

// T is a PIO-backed half-duplex SPI bus: one state machine drives the
// clock and, depending on direction, either shifts out write() words or
// shifts in read() words over the shared data pin.
type T struct {
	sm      pio.StateMachine
	cs      machine.Pin
	offset  uint8
	program []uint16
}

// program is the PIO assembly for half-duplex, MSB-first, mode-0 SPI
// over a single bidirectional data pin: out pins reconfigure the data
// pin as output for the write half of a transaction and as input for
// the read half, driven entirely by the side-set clock.
var program = []uint16{
	0x6021, // out pins, 1        side 0
	0x1040, // jmp x--, 0         side 1
	0x4021, // in pins, 1         side 0
	0x0042, // jmp y--, 2         side 1
}

// New configures a state machine with the shared-data-pin SPI program
// and returns a ready-to-use bus, following the same constructor shape
// as the RMII driver's NewRMII(sm, cfg).
func New(sm pio.StateMachine, cfg Config) (*T, error) {
	if cfg.Clock == cfg.Data {
		return nil, errors.New("piospi: clock and data pins must differ")
	}
	cfg.Clock.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cfg.CS.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cfg.CS.High()

	t := &T{sm: sm, cs: cfg.CS, program: program}

	Pio := sm.PIO()
	offset, err := Pio.AddProgram(program, pio.StateMachineConfig{})
	if err != nil {
		return nil, err
	}
	t.offset = uint8(offset)

	cfg2 := sm.PIO().DefaultStateMachineConfig()
	cfg2.SetClkDivFromFrequency(cfg.BaudHz*4, machine.CPUFrequency())
	cfg2.SetOutPins(cfg.Data, 1)
	cfg2.SetInPins(cfg.Data)
	cfg2.SetSidesetPins(cfg.Clock)

	sm.Init(offset, cfg2)
	sm.SetEnabled(true)
	return t, nil
}

// SetEnabled starts or stops the underlying state machine.
func (t *T) SetEnabled(enabled bool) { t.sm.SetEnabled(enabled) }

// Tx writes w and reads back an equally-sized response into r (either
// may be nil to skip that half), implementing the cyw43439.Bus
// half-duplex transaction shape over the shared data pin.
func (t *T) Tx(w, r []byte) error {
	t.cs.Low()
	defer t.cs.High()

	for _, b := range w {
		t.sm.TxPut(uint32(b) << 24)
	}
	for i := range r {
		for t.sm.IsRxFIFOEmpty() {
		}
		r[i] = byte(t.sm.RxGet() >> 24)
	}
	return nil
}
