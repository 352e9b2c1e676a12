package cyw43439

import "github.com/soypat/cyw43439/whd"

// update_credit implements spec.md §4.5: on every RX SDPCM frame
// whose channel is CONTROL/EVENT/DATA, refresh the TX credit window
// from the chip's reported bus_data_credit, clamping against a
// stale/replayed value that would otherwise open an implausibly large
// window.
func (d *Device) update_credit(h *whd.SdpcmHeader) {
	if h.Channel() >= whd.ChannelTypeData+1 {
		// Channel value >= 3 is none of CONTROL/EVENT/DATA; spec.md
		// §4.5 gates credit updates on "channel < 3".
		return
	}
	c := h.BusDataCredit
	if c-d.sdpcmSeq > 0x40 {
		d.sdpcmSeqMax = d.sdpcmSeq + 2
	} else {
		d.sdpcmSeqMax = c
	}
}

// has_credit implements spec.md §4.5: the runner may transmit iff the
// next sequence number hasn't caught up to the chip's advertised
// ceiling, and that ceiling hasn't wrapped behind the current sequence.
func (d *Device) has_credit() bool {
	return d.sdpcmSeq != d.sdpcmSeqMax && (d.sdpcmSeqMax-d.sdpcmSeq)&0x80 == 0
}
