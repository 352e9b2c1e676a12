// Package tracesaleae wraps a cyw43439.Bus with an optional capture
// recorder, so SPI register transactions can be exported to a Saleae
// Logic2-compatible trace while debugging boot sequencing or credit
// exhaustion, without touching the hot path when disabled.
package tracesaleae

import (
	"context"
	"time"

	"github.com/soypat/saleae"
)

// Bus mirrors cyw43439.Bus's full method set structurally, so this
// package does not need to import the root package. Any cyw43439.Bus
// implementation — SPIBus (over a hardware SPI peripheral or a
// piospi.T), a test fake — satisfies this interface as-is.
type Bus interface {
	Init() error

	Read8(fn uint32, addr uint32) (uint8, error)
	Read16(fn uint32, addr uint32) (uint16, error)
	Read32(fn uint32, addr uint32) (uint32, error)
	Write8(fn uint32, addr uint32, v uint8) error
	Write16(fn uint32, addr uint32, v uint16) error
	Write32(fn uint32, addr uint32, v uint32) error

	ReadWLAN(buf []uint32, lenBytes uint32) error
	WriteWLAN(buf []uint32) error

	Status() uint32
	WaitForEvent(ctx context.Context) error
}

// Recorder decorates a Bus, logging every transaction's value (not its
// address) onto channel 0 (chip-select framing) and channel 1 (data), so a
// capture replayed in Logic2 lines up one pulse per bus transaction.
// It implements Bus itself, so it can be substituted for the
// transport it wraps with no other code changes.
type Recorder struct {
	inner Bus
	state *saleae.State
	start time.Time
	cs    saleae.Channel
	data  saleae.Channel
}

// NewRecorder wraps inner with a fresh capture session sampling at
// sampleHz.
func NewRecorder(inner Bus, sampleHz uint64) *Recorder {
	st := saleae.NewState(sampleHz)
	return &Recorder{
		inner: inner,
		state: st,
		cs:    st.NewChannel("CS"),
		data:  st.NewChannel("DATA"),
	}
}

func (r *Recorder) pulse(addr uint32, v uint64, write bool) {
	r.cs.Set(true)
	r.data.Set(write)
	r.data.SetValue(v)
	r.cs.Set(false)
}

func (r *Recorder) Init() error { return r.inner.Init() }

func (r *Recorder) Read8(fn uint32, addr uint32) (uint8, error) {
	v, err := r.inner.Read8(fn, addr)
	r.pulse(addr, uint64(v), false)
	return v, err
}

func (r *Recorder) Read16(fn uint32, addr uint32) (uint16, error) {
	v, err := r.inner.Read16(fn, addr)
	r.pulse(addr, uint64(v), false)
	return v, err
}

func (r *Recorder) Read32(fn uint32, addr uint32) (uint32, error) {
	v, err := r.inner.Read32(fn, addr)
	r.pulse(addr, uint64(v), false)
	return v, err
}

func (r *Recorder) Write8(fn uint32, addr uint32, v uint8) error {
	err := r.inner.Write8(fn, addr, v)
	r.pulse(addr, uint64(v), true)
	return err
}

func (r *Recorder) Write16(fn uint32, addr uint32, v uint16) error {
	err := r.inner.Write16(fn, addr, v)
	r.pulse(addr, uint64(v), true)
	return err
}

func (r *Recorder) Write32(fn uint32, addr uint32, v uint32) error {
	err := r.inner.Write32(fn, addr, v)
	r.pulse(addr, uint64(v), true)
	return err
}

// ReadWLAN and WriteWLAN log one pulse per bulk F2 transfer rather
// than per word: the WLAN data function moves whole frames, and a
// pulse per word would dwarf the register-transaction trace.
func (r *Recorder) ReadWLAN(buf []uint32, lenBytes uint32) error {
	err := r.inner.ReadWLAN(buf, lenBytes)
	r.pulse(0, uint64(lenBytes), false)
	return err
}

func (r *Recorder) WriteWLAN(buf []uint32) error {
	err := r.inner.WriteWLAN(buf)
	r.pulse(0, uint64(len(buf)*4), true)
	return err
}

func (r *Recorder) Status() uint32 { return r.inner.Status() }

func (r *Recorder) WaitForEvent(ctx context.Context) error {
	return r.inner.WaitForEvent(ctx)
}

// Save flushes the capture to path in Logic2's import format.
func (r *Recorder) Save(path string) error {
	return r.state.SaveAs(path)
}
