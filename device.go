package cyw43439

import (
	"context"
	"log/slog"
	"sync"

	"github.com/soypat/cyw43439/whd"
)

// mode bits arbitrate exclusive access to the shared SPI bus between
// the Wi-Fi runner loop and the Bluetooth HCI transport; at most one
// is active at a time, mirroring the teacher's single acquire/release
// lock generalized to cover both traffic types.
type deviceMode uint8

const (
	modeNone deviceMode = 0
	modeWifi deviceMode = 1 << iota
	modeBluetooth
)

// Config bundles the parameters needed to bring up a Device: the
// firmware and NVRAM calibration blobs, whether to also initialize
// Bluetooth, and where to send structured logs.
type Config struct {
	Firmware        []byte
	NVRAM           []byte
	BluetoothFW     []byte
	EnableBluetooth bool
	Logger          *slog.Logger
	EnableLogs      bool
}

// Device is the single radio instance this package drives: it owns
// the SPI bus exclusively and multiplexes the Wi-Fi runner and the
// Bluetooth HCI transport onto it.
type Device struct {
	bus Bus

	mode   deviceMode
	modeMu sync.Mutex
	modeCV *sync.Cond

	logger *slog.Logger

	// Wi-Fi runner state (spec.md §3 "Runner state").
	ioctlID     uint16
	sdpcmSeq    uint8
	sdpcmSeqMax uint8

	ioctlPending *ioctlCall

	netdev TXRXChannel

	log logState

	chip whd.ChipRAM

	// Bluetooth ring-buffer cursors (kept from teacher's bluetooth.go).
	btaddr      uint32
	h2bWritePtr uint32
	b2hReadPtr  uint32

	// backplane window state (spec.md §4.1 "sliding page window").
	currentBackplaneWindow uint32

	_sendIoctlBuf [512 / 4]uint32
	_rxBuf        [512 / 4]uint32
}

type logState struct {
	enabled  bool
	addr     uint32
	lastIdx  int
	buf      [256]byte
	bufCount int
}

// New constructs a Device. It does not touch the bus; call Init to
// bring the radio out of reset.
func New(bus Bus, netdev TXRXChannel, opts ...func(*Device)) *Device {
	d := &Device{
		bus:         bus,
		netdev:      netdev,
		sdpcmSeqMax: 1,
		chip:        whd.CYW43439,
		logger:      slog.Default(),
	}
	d.modeCV = sync.NewCond(&d.modeMu)
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// acquire blocks until the bus is free of any mode other than want,
// then marks it busy with want. release must be called to free it.
// sync.Cond.Wait has no ctx awareness of its own, so a watcher
// goroutine broadcasts when ctx is done to wake every waiter and let
// them notice cancellation instead of blocking until some unrelated
// release() happens to come along.
func (d *Device) acquire(ctx context.Context, want deviceMode) error {
	d.modeMu.Lock()
	defer d.modeMu.Unlock()
	if d.mode == modeNone || d.mode == want {
		d.mode = want
		return nil
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			d.modeMu.Lock()
			d.modeCV.Broadcast()
			d.modeMu.Unlock()
		case <-stop:
		}
	}()

	for d.mode != modeNone && d.mode != want {
		if err := ctx.Err(); err != nil {
			return err
		}
		d.modeCV.Wait()
	}
	d.mode = want
	return nil
}

func (d *Device) release() {
	d.modeMu.Lock()
	d.mode = modeNone
	d.modeMu.Unlock()
	d.modeCV.Broadcast()
}

func (d *Device) trace(msg string, attrs ...slog.Attr) {
	d.log_(slog.LevelDebug-4, msg, attrs)
}

func (d *Device) debug(msg string, attrs ...slog.Attr) {
	d.log_(slog.LevelDebug, msg, attrs)
}

func (d *Device) info(msg string, attrs ...slog.Attr) {
	d.log_(slog.LevelInfo, msg, attrs)
}

func (d *Device) warn(msg string, attrs ...slog.Attr) {
	d.log_(slog.LevelWarn, msg, attrs)
}

func (d *Device) logerr(msg string, attrs ...slog.Attr) {
	d.log_(slog.LevelError, msg, attrs)
}

func (d *Device) log_(level slog.Level, msg string, attrs []slog.Attr) {
	if d.logger == nil {
		return
	}
	d.logger.LogAttrs(context.Background(), level, msg, attrs...)
}

func u32AsU8(s []uint32) []byte {
	if len(s) == 0 {
		return nil
	}
	return unsafeU32ToU8(s)
}
