package cyw43439

import (
	"context"
	"sync"

	"github.com/soypat/cyw43439/whd"
)

// fakeBus is an in-memory stand-in for the SPI link, enough to drive
// the boot sequencer and runner loop deterministically in tests: F1
// register space above whd.BackplaneWindowSize is a flat map, F1
// address space below it is windowed chip memory addressed through
// the last RegBackplaneAddrHigh/Mid write, and the WLAN function (F2)
// is a simple queue of frames waiting to be "received".
type fakeBus struct {
	mu sync.Mutex

	f0regs map[uint32]uint32
	f1regs map[uint32]uint32
	mem    map[uint32]byte
	window uint32

	rxQueue [][]byte
	txLog   [][]byte

	irqCh chan struct{}
}

func newFakeBus() *fakeBus {
	return &fakeBus{
		f0regs: make(map[uint32]uint32),
		f1regs: make(map[uint32]uint32),
		mem:    make(map[uint32]byte),
		irqCh:  make(chan struct{}, 1),
	}
}

func (b *fakeBus) Init() error {
	b.window = 0
	return nil
}

func (b *fakeBus) windowedAddr(addr uint32) (uint32, bool) {
	if addr >= whd.BackplaneWindowSize {
		return 0, false
	}
	return b.window | addr, true
}

func (b *fakeBus) readReg(fn, addr uint32) uint32 {
	switch {
	case fn == whd.FuncBus && addr == whd.RegBusStatus:
		if len(b.rxQueue) > 0 {
			return whd.StatusF2PacketAvailable | whd.StatusF2RxReady | (uint32(len(b.rxQueue[0])) << whd.StatusF2PacketLenShift)
		}
		return whd.StatusF2RxReady
	case fn == whd.FuncBackplane && addr == whd.RegBackplaneChipClockCSR:
		return whd.BackplaneALPAvail | whd.BackplaneHTAvail
	}
	if full, ok := b.windowedAddr(addr); ok && fn == whd.FuncBackplane {
		return uint32(b.mem[full])
	}
	if fn == whd.FuncBus {
		return b.f0regs[addr]
	}
	return b.f1regs[addr]
}

func (b *fakeBus) writeReg(fn, addr, v uint32) {
	switch {
	case fn == whd.FuncBackplane && addr == whd.RegBackplaneAddrHigh:
		b.window = (b.window &^ (0xFF << 24)) | (v << 24)
		return
	case fn == whd.FuncBackplane && addr == whd.RegBackplaneAddrMid:
		b.window = (b.window &^ (0xFF << 16)) | (v << 16)
		return
	}
	if full, ok := b.windowedAddr(addr); ok && fn == whd.FuncBackplane {
		b.mem[full] = byte(v)
		return
	}
	if fn == whd.FuncBus {
		b.f0regs[addr] = v
		return
	}
	b.f1regs[addr] = v
}

func (b *fakeBus) Read8(fn, addr uint32) (uint8, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint8(b.readReg(fn, addr)), nil
}
func (b *fakeBus) Read16(fn, addr uint32) (uint16, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return uint16(b.readReg(fn, addr)), nil
}
func (b *fakeBus) Read32(fn, addr uint32) (uint32, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readReg(fn, addr), nil
}
func (b *fakeBus) Write8(fn, addr uint32, v uint8) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeReg(fn, addr, uint32(v))
	return nil
}
func (b *fakeBus) Write16(fn, addr uint32, v uint16) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeReg(fn, addr, uint32(v))
	return nil
}
func (b *fakeBus) Write32(fn, addr, v uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.writeReg(fn, addr, v)
	return nil
}

func (b *fakeBus) ReadWLAN(buf []uint32, lenBytes uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.rxQueue) == 0 {
		return nil
	}
	frame := b.rxQueue[0]
	b.rxQueue = b.rxQueue[1:]
	copy(u32AsU8(buf), frame)
	return nil
}

func (b *fakeBus) WriteWLAN(buf []uint32) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw := u32AsU8(buf)
	sdpcm := whd.DecodeSdpcmHeader(raw[:whd.SizeSdpcmHeader])
	cp := make([]byte, sdpcm.Len)
	copy(cp, raw)
	b.txLog = append(b.txLog, cp)
	return nil
}

func (b *fakeBus) Status() uint32 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.readReg(whd.FuncBus, whd.RegBusStatus)
}

func (b *fakeBus) WaitForEvent(ctx context.Context) error {
	select {
	case <-b.irqCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// queueRX enqueues a raw SDPCM frame for the runner to pick up on its
// next status check (via Status()/ReadWLAN), without waking a blocked
// WaitForEvent caller; use signalIRQ for that.
func (b *fakeBus) queueRX(frame []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rxQueue = append(b.rxQueue, frame)
}

// signalIRQ wakes one blocked WaitForEvent caller, simulating the
// bus IRQ line asserting.
func (b *fakeBus) signalIRQ() {
	select {
	case b.irqCh <- struct{}{}:
	default:
	}
}
