package cyw43439

import (
	"context"

	"github.com/soypat/cyw43439/whd"
)

// Bus is the typed, word-oriented SPI transport spec.md §4.1 requires:
// register-sized reads/writes addressed by (function, address), a
// bulk word-slice transfer for the WLAN data function (F2), and an
// auto-latched status word plus an IRQ wait. Implementations (bus_spi.go's
// SPIBus, over either a hardware SPI peripheral or a piospi.T) are expected to be infallible once Init
// completes — transient faults surface as malformed frames caught
// downstream, per spec.md §4.1 "Error model".
type Bus interface {
	Init() error

	Read8(fn uint32, addr uint32) (uint8, error)
	Read16(fn uint32, addr uint32) (uint16, error)
	Read32(fn uint32, addr uint32) (uint32, error)
	Write8(fn uint32, addr uint32, val uint8) error
	Write16(fn uint32, addr uint32, val uint16) error
	Write32(fn uint32, addr uint32, val uint32) error

	// ReadWLAN reads lenBytes into buf (word-sliced) over F2.
	ReadWLAN(buf []uint32, lenBytes uint32) error
	// WriteWLAN writes the entirety of buf (word-sliced) over F2.
	WriteWLAN(buf []uint32) error

	// Status returns the last bus status word, auto-latched on every
	// transfer per spec.md §4.1.
	Status() uint32
	// WaitForEvent suspends until the IRQ line asserts, or ctx is done.
	WaitForEvent(ctx context.Context) error
}

// TXRXChannel is the host network channel spec.md §6 describes: a
// pair of ring buffers supplying outbound packets and accepting
// inbound ones. Implemented by netlink.Device against a seqs stack.
type TXRXChannel interface {
	// TxBuf blocks until an outbound packet is ready and returns it.
	TxBuf(ctx context.Context) ([]byte, error)
	// TxDone releases the buffer most recently returned by TxBuf.
	TxDone()
	// TryRxBuf non-blockingly reserves a receive buffer, or returns
	// nil if the ring is full.
	TryRxBuf() []byte
	// RxDone commits n bytes written into the buffer from TryRxBuf.
	RxDone(n int)
}

// busInit brings up the SPI link itself (clock, word-swap mode) and
// resets backplane-window tracking. The boot sequencer (init.go)
// calls this as its first step.
func (d *Device) busInit() error {
	d.currentBackplaneWindow = 0
	return d.bus.Init()
}

func (d *Device) read8(fn, addr uint32) (uint8, error)  { return d.bus.Read8(fn, addr) }
func (d *Device) read16(fn, addr uint32) (uint16, error) { return d.bus.Read16(fn, addr) }
func (d *Device) read32(fn, addr uint32) (uint32, error) { return d.bus.Read32(fn, addr) }
func (d *Device) write8(fn, addr uint32, v uint8) error  { return d.bus.Write8(fn, addr, v) }
func (d *Device) write16(fn, addr uint32, v uint16) error { return d.bus.Write16(fn, addr, v) }
func (d *Device) write32(fn, addr uint32, v uint32) error { return d.bus.Write32(fn, addr, v) }

func (d *Device) status() uint32 { return d.bus.Status() }

func (d *Device) wait_for_event(ctx context.Context) error { return d.bus.WaitForEvent(ctx) }

// setBackplaneWindow slides the F1 address-window registers so that
// addr's high bits are mapped in, if they aren't already. Per
// spec.md §4.1, the window covers whd.BackplaneWindowSize (64KiB).
func (d *Device) setBackplaneWindow(addr uint32) error {
	win := addr &^ (whd.BackplaneWindowSize - 1)
	if win == d.currentBackplaneWindow {
		return nil
	}
	hi := uint8(win >> 24)
	mid := uint8(win >> 16)
	if err := d.bus.Write8(whd.FuncBackplane, whd.RegBackplaneAddrHigh, hi); err != nil {
		return err
	}
	if err := d.bus.Write8(whd.FuncBackplane, whd.RegBackplaneAddrMid, mid); err != nil {
		return err
	}
	d.currentBackplaneWindow = win
	return nil
}

func (d *Device) windowOffset(addr uint32) uint32 {
	return addr & (whd.BackplaneWindowSize - 1)
}

func (d *Device) bp_read8(addr uint32) (uint8, error) {
	if err := d.setBackplaneWindow(addr); err != nil {
		return 0, err
	}
	return d.bus.Read8(whd.FuncBackplane, d.windowOffset(addr))
}

func (d *Device) bp_write8(addr uint32, v uint8) error {
	if err := d.setBackplaneWindow(addr); err != nil {
		return err
	}
	return d.bus.Write8(whd.FuncBackplane, d.windowOffset(addr), v)
}

func (d *Device) bp_read16(addr uint32) (uint16, error) {
	if err := d.setBackplaneWindow(addr); err != nil {
		return 0, err
	}
	return d.bus.Read16(whd.FuncBackplane, d.windowOffset(addr))
}

func (d *Device) bp_write16(addr uint32, v uint16) error {
	if err := d.setBackplaneWindow(addr); err != nil {
		return err
	}
	return d.bus.Write16(whd.FuncBackplane, d.windowOffset(addr), v)
}

func (d *Device) bp_read32(addr uint32) (uint32, error) {
	if err := d.setBackplaneWindow(addr); err != nil {
		return 0, err
	}
	return d.bus.Read32(whd.FuncBackplane, d.windowOffset(addr))
}

func (d *Device) bp_write32(addr uint32, v uint32) error {
	if err := d.setBackplaneWindow(addr); err != nil {
		return err
	}
	return d.bus.Write32(whd.FuncBackplane, d.windowOffset(addr), v)
}

// bp_read reads len(dst) bytes from the chip's backplane address
// space starting at addr, transparently sliding the window whenever
// the transfer crosses a whd.BackplaneWindowSize boundary.
func (d *Device) bp_read(addr uint32, dst []byte) error {
	for len(dst) > 0 {
		if err := d.setBackplaneWindow(addr); err != nil {
			return err
		}
		off := d.windowOffset(addr)
		chunk := whd.BackplaneWindowSize - off
		if chunk > uint32(len(dst)) {
			chunk = uint32(len(dst))
		}
		if err := d.bpReadChunk(off, dst[:chunk]); err != nil {
			return err
		}
		dst = dst[chunk:]
		addr += chunk
	}
	return nil
}

// bpReadChunk reads a same-window run of bytes, 4 bytes at a time
// where possible.
func (d *Device) bpReadChunk(off uint32, dst []byte) error {
	i := uint32(0)
	for ; i+4 <= uint32(len(dst)); i += 4 {
		v, err := d.bus.Read32(whd.FuncBackplane, off+i)
		if err != nil {
			return err
		}
		_busOrder.PutUint32(dst[i:i+4], v)
	}
	for ; i < uint32(len(dst)); i++ {
		v, err := d.bus.Read8(whd.FuncBackplane, off+i)
		if err != nil {
			return err
		}
		dst[i] = v
	}
	return nil
}

// bp_write writes src to the chip's backplane address space starting
// at addr, sliding the window as needed.
func (d *Device) bp_write(addr uint32, src []byte) error {
	for len(src) > 0 {
		if err := d.setBackplaneWindow(addr); err != nil {
			return err
		}
		off := d.windowOffset(addr)
		chunk := whd.BackplaneWindowSize - off
		if chunk > uint32(len(src)) {
			chunk = uint32(len(src))
		}
		if err := d.bpWriteChunk(off, src[:chunk]); err != nil {
			return err
		}
		src = src[chunk:]
		addr += chunk
	}
	return nil
}

func (d *Device) bpWriteChunk(off uint32, src []byte) error {
	i := uint32(0)
	for ; i+4 <= uint32(len(src)); i += 4 {
		v := _busOrder.Uint32(src[i : i+4])
		if err := d.bus.Write32(whd.FuncBackplane, off+i, v); err != nil {
			return err
		}
	}
	for ; i < uint32(len(src)); i++ {
		if err := d.bus.Write8(whd.FuncBackplane, off+i, src[i]); err != nil {
			return err
		}
	}
	return nil
}

// wlan_read reads lenBytes into buf over F2, word-sliced.
func (d *Device) wlan_read(buf []uint32, lenBytes uint32) error {
	return d.bus.ReadWLAN(buf, lenBytes)
}

// wlan_write writes the word-slice buf over F2.
func (d *Device) wlan_write(buf []uint32) error {
	return d.bus.WriteWLAN(buf)
}
