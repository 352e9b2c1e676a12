package cyw43439

import (
	"errors"
	"log/slog"
	"time"

	"github.com/soypat/cyw43439/whd"
)

// errCoreNotUp is returned by Init when the WLAN core fails to come
// up after core_reset, per spec.md §4.3 step 7's checkpoint.
var errCoreNotUp = errors.New("cyw43439: wlan core did not come up")

// Init runs the boot sequencer (spec.md §4.3), bringing the radio out
// of reset, uploading firmware and NVRAM, and leaving it ready for
// Run. It is called exactly once on a freshly constructed Device.
func (d *Device) Init(cfg Config) error {
	d.logger = cfg.Logger
	if d.logger == nil {
		d.logger = slog.Default()
	}
	d.log.enabled = cfg.EnableLogs

	// Step 1: bring up the SPI link.
	if err := d.busInit(); err != nil {
		return err
	}

	// Step 2: request ALP clock, poll until available.
	if err := d.write8(whd.FuncBackplane, whd.RegBackplaneChipClockCSR, whd.BackplaneALPAvailReq); err != nil {
		return err
	}
	d.info("waiting for ALP clock...")
	for {
		v, err := d.read8(whd.FuncBackplane, whd.RegBackplaneChipClockCSR)
		if err != nil {
			return err
		}
		if v&whd.BackplaneALPAvail != 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}
	d.info("ALP clock ready")

	// Step 3: read chip-id register for diagnostics.
	chipID, err := d.bp_read16(whd.RegChipIDAddr)
	if err != nil {
		return err
	}
	d.info("chip id", slog.Uint64("id", uint64(chipID)))

	// Step 4: disable WLAN core, reset SOCSRAM core, bank config.
	if err := d.core_disable(whd.CoreWLAN); err != nil {
		return err
	}
	if err := d.core_reset(whd.CoreSOCSRAM); err != nil {
		return err
	}
	if err := d.bp_write32(d.chip.SocsramBase+0x10, 3); err != nil {
		return err
	}
	if err := d.bp_write32(d.chip.SocsramBase+0x44, 0); err != nil {
		return err
	}

	ramAddr := d.chip.AtcmRAMBase

	// Step 5: upload firmware.
	d.info("uploading firmware", slog.Int("len", len(cfg.Firmware)))
	if err := d.bp_write(ramAddr, cfg.Firmware); err != nil {
		return err
	}

	// Step 6: pad and upload NVRAM, write length trailer.
	d.info("uploading nvram", slog.Int("len", len(cfg.NVRAM)))
	nvramLen := (len(cfg.NVRAM) + 3) / 4 * 4
	padded := make([]byte, nvramLen)
	copy(padded, cfg.NVRAM)
	nvramDst := ramAddr + d.chip.ChipRAMSize - 4 - uint32(nvramLen)
	if err := d.bp_write(nvramDst, padded); err != nil {
		return err
	}
	words := uint32(nvramLen) / 4
	trailer := (^words << 16) | words
	if err := d.bp_write32(ramAddr+d.chip.ChipRAMSize-4, trailer); err != nil {
		return err
	}

	// Step 7: release the WLAN core, confirm it's up.
	d.info("starting up core...")
	if err := d.core_reset(whd.CoreWLAN); err != nil {
		return err
	}
	up, err := d.core_is_up(whd.CoreWLAN)
	if err != nil {
		return err
	}
	if !up {
		return errCoreNotUp
	}

	// Step 8: wait for HT/backplane clock readiness.
	for {
		v, err := d.read8(whd.FuncBackplane, whd.RegBackplaneChipClockCSR)
		if err != nil {
			return err
		}
		if v&whd.BackplaneHTAvail != 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// Step 9: unmask F2_PACKET_AVAILABLE IRQ.
	if err := d.write16(whd.FuncBus, whd.RegBusInterruptEnable, whd.IRQF2PacketAvailable); err != nil {
		return err
	}

	// Step 10: set F2 watermark.
	if err := d.write8(whd.FuncBackplane, whd.RegBackplaneFunction2Watermark, 32); err != nil {
		return err
	}

	// Step 11: wait for F2 RX ready.
	d.info("waiting for wifi init...")
	for {
		v, err := d.read32(whd.FuncBus, whd.RegBusStatus)
		if err != nil {
			return err
		}
		if v&whd.StatusF2RxReady != 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	// Step 12: clear backplane pull-ups.
	if err := d.write8(whd.FuncBackplane, whd.RegBackplanePullUp, 0); err != nil {
		return err
	}
	if _, err := d.read8(whd.FuncBackplane, whd.RegBackplanePullUp); err != nil {
		return err
	}

	// Step 13: locate firmware log ring, if enabled.
	if d.log.enabled {
		if err := d.logInit(); err != nil {
			return err
		}
	}

	if cfg.EnableBluetooth {
		if err := d.bt_init(cfg.BluetoothFW); err != nil {
			return err
		}
	}

	d.info("init done")
	return nil
}
