package cyw43439

import "log/slog"

// sharedMemDataSize/sharedMemLogSize are the sizes of the two shared
// console-memory descriptors the chip exposes, per spec.md §4.10.
const (
	sharedMemDataSize = 8 // console_addr (u32) + 4 bytes padding, see logInit.
	sharedMemLogSize  = 12 + 3*4
	logRingSize       = 0x400
)

// logInit implements spec.md §4.3 step 13: locate the shared-memory
// console descriptor and remember its buffer base for logRead.
func (d *Device) logInit() error {
	addr := d.chip.AtcmRAMBase + d.chip.ChipRAMSize - 4 - d.chip.SocramSrmemSize
	sharedAddr, err := d.bp_read32(addr)
	if err != nil {
		return err
	}
	d.info("shared console addr", slog.Uint64("addr", uint64(sharedAddr)))

	var shared [sharedMemDataSize]byte
	if err := d.bp_read(sharedAddr, shared[:]); err != nil {
		return err
	}
	consoleAddr := _busOrder.Uint32(shared[0:4])
	d.log.addr = consoleAddr + 8
	return nil
}

// logRead implements spec.md §4.10: read the shared log header; if
// its write index has advanced, read the full ring and emit every
// complete line (split on \r or \n) via the host log facility.
func (d *Device) logRead() error {
	var hdr [sharedMemLogSize]byte
	if err := d.bp_read(d.log.addr, hdr[:]); err != nil {
		return err
	}
	bufAddr := _busOrder.Uint32(hdr[0:4])
	idx := int(_busOrder.Uint32(hdr[8:12]))

	if idx == d.log.lastIdx {
		return nil
	}

	var ring [logRingSize]byte
	if err := d.bp_read(bufAddr, ring[:]); err != nil {
		return err
	}

	for d.log.lastIdx != idx {
		b := ring[d.log.lastIdx]
		if b == '\r' || b == '\n' {
			if d.log.bufCount != 0 {
				d.info("firmware log", slog.String("line", string(d.log.buf[:d.log.bufCount])))
				d.log.bufCount = 0
			}
		} else if d.log.bufCount < len(d.log.buf) {
			d.log.buf[d.log.bufCount] = b
			d.log.bufCount++
		}
		d.log.lastIdx++
		if d.log.lastIdx == logRingSize {
			d.log.lastIdx = 0
		}
	}
	return nil
}
