package cyw43439

import (
	"log/slog"
	"time"

	"github.com/soypat/cyw43439/whd"
)

// core_disable implements spec.md §4.2: returns immediately if the
// core is already in reset; otherwise clears IO-control, busy-waits
// 1ms, then asserts reset. Every write is followed by a dummy read to
// flush the posted write, matching the AXI-interconnect semantics.
func (d *Device) core_disable(core whd.Core) error {
	base := core.BaseAddr()

	// Dummy read, as the original does before checking reset state.
	if _, err := d.bp_read8(base + whd.AIResetCtrlOffset); err != nil {
		return err
	}

	r, err := d.bp_read8(base + whd.AIResetCtrlOffset)
	if err != nil {
		return err
	}
	if r&whd.AIResetCtrlBitReset != 0 {
		return nil // Already in reset.
	}

	if err := d.bp_write8(base+whd.AIIOCtrlOffset, 0); err != nil {
		return err
	}
	if _, err := d.bp_read8(base + whd.AIIOCtrlOffset); err != nil {
		return err
	}

	time.Sleep(time.Millisecond)

	if err := d.bp_write8(base+whd.AIResetCtrlOffset, whd.AIResetCtrlBitReset); err != nil {
		return err
	}
	_, err = d.bp_read8(base + whd.AIResetCtrlOffset)
	return err
}

// core_reset implements spec.md §4.2: disable, then bring the core up
// with the force-gated-clock bit set, release reset, settle, then
// clear the force-gated-clock bit and settle again.
func (d *Device) core_reset(core whd.Core) error {
	if err := d.core_disable(core); err != nil {
		return err
	}
	base := core.BaseAddr()

	if err := d.bp_write8(base+whd.AIIOCtrlOffset, whd.AIIOCtrlBitFGC|whd.AIIOCtrlBitClockEn); err != nil {
		return err
	}
	if _, err := d.bp_read8(base + whd.AIIOCtrlOffset); err != nil {
		return err
	}

	if err := d.bp_write8(base+whd.AIResetCtrlOffset, 0); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)

	if err := d.bp_write8(base+whd.AIIOCtrlOffset, whd.AIIOCtrlBitClockEn); err != nil {
		return err
	}
	if _, err := d.bp_read8(base + whd.AIIOCtrlOffset); err != nil {
		return err
	}
	time.Sleep(time.Millisecond)
	return nil
}

// core_is_up implements spec.md §4.2: true iff IO-control shows
// CLOCK_EN with FGC clear, and reset-control's reset bit is clear.
func (d *Device) core_is_up(core whd.Core) (bool, error) {
	base := core.BaseAddr()

	io, err := d.bp_read8(base + whd.AIIOCtrlOffset)
	if err != nil {
		return false, err
	}
	if io&(whd.AIIOCtrlBitFGC|whd.AIIOCtrlBitClockEn) != whd.AIIOCtrlBitClockEn {
		d.debug("core_is_up: bad ioctrl", slog.Uint64("ioctrl", uint64(io)))
		return false, nil
	}

	r, err := d.bp_read8(base + whd.AIResetCtrlOffset)
	if err != nil {
		return false, err
	}
	if r&whd.AIResetCtrlBitReset != 0 {
		d.debug("core_is_up: bad resetctrl", slog.Uint64("resetctrl", uint64(r)))
		return false, nil
	}
	return true, nil
}
