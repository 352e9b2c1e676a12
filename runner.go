package cyw43439

import (
	"context"
	"log/slog"
	"sync"

	"github.com/soypat/cyw43439/whd"
)

// scratchWords is the size of the runner's single preallocated
// scratch buffer, in 32-bit words (spec.md §4.4: "one preallocated
// 512-word scratch buffer").
const scratchWords = 512

// Run is the event-loop core (spec.md §4.4): it never returns (except
// on ctx cancellation or an unrecoverable bus error). Each iteration
// drains the firmware log (if enabled), then — while TX credit
// remains — performs a fair three-way select among a pending IOCTL,
// the next outbound host packet, and the bus IRQ; when credit is
// exhausted it parks on the IRQ alone, per spec.md §4.4 step 3.
func (d *Device) Run(ctx context.Context, ioctls *IoctlState, events *EventQueue) error {
	var scratch [scratchWords]uint32

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := d.acquire(ctx, modeWifi); err != nil {
			return err
		}
		err := d.runIteration(ctx, ioctls, events, scratch[:])
		d.release()
		if err != nil {
			return err
		}
	}
}

// runIteration is one pass of the loop body, run under the bus lock
// so it never interleaves with a concurrent Bluetooth HCI transfer.
func (d *Device) runIteration(ctx context.Context, ioctls *IoctlState, events *EventQueue, scratch []uint32) error {
	if d.log.enabled {
		if err := d.logRead(); err != nil {
			return err
		}
	}

	if d.has_credit() {
		return d.selectAndServe(ctx, ioctls, events, scratch)
	}

	d.warn("tx stalled, waiting for credit")
	if err := d.wait_for_event(ctx); err != nil {
		return err
	}
	return d.handleIRQ(scratch, events)
}

// selectAndServe implements spec.md §4.4 step 2's three-way select.
// The pending-IOCTL arm is a genuine receive directly on
// ioctls.reqCh in the outer select below, so a request is only ever
// removed from that channel by the arm that actually wins — losing
// the race leaves it right where a later iteration will pick it up,
// instead of being drained into a goroutine and discarded. The other
// two arms (next TX packet, bus IRQ) have no such single-receive
// channel to select on directly — TxBuf peeks the host queue without
// consuming it and wait_for_event just waits on a level, so racing
// them in their own goroutines against a per-iteration cancellable
// context and discarding a loser costs nothing: the peeked packet is
// still queued for TxBuf to return again, and a still-pending IRQ
// condition is still visible in the status register the next
// checkStatus reads. selectAndServe waits for those two loser
// goroutines to fully unwind (wg.Wait) before the winner is allowed
// to touch the bus again, so there is never concurrent bus access
// despite the concurrent race.
func (d *Device) selectAndServe(ctx context.Context, ioctls *IoctlState, events *EventQueue, scratch []uint32) error {
	iterCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(2)

	txCh := make(chan []byte, 1)
	go func() {
		defer wg.Done()
		pkt, err := d.netdev.TxBuf(iterCtx)
		if err == nil {
			txCh <- pkt
		}
	}()

	irqCh := make(chan struct{}, 1)
	go func() {
		defer wg.Done()
		if d.wait_for_event(iterCtx) == nil {
			irqCh <- struct{}{}
		}
	}()

	// While an IOCTL still awaits its reply, leave further requests
	// queued on reqCh (a nil channel never wins the select).
	reqCh := ioctls.reqCh
	if d.ioctlPending != nil {
		reqCh = nil
	}

	var (
		winner func() error
		outErr error
	)
	select {
	case c := <-reqCh:
		winner = func() error { return d.serveIoctl(c, scratch, events) }
	case pkt := <-txCh:
		winner = func() error { return d.sendData(pkt, scratch, events) }
	case <-irqCh:
		winner = func() error { return d.handleIRQ(scratch, events) }
	case <-ctx.Done():
		outErr = ctx.Err()
	}

	cancel()
	wg.Wait()
	if outErr != nil {
		return outErr
	}
	return winner()
}

// serveIoctl implements spec.md §4.4 "IOCTL branch": build and send
// the SDPCM+CDC frame, remember the call so rx() can match the CDC
// reply by id, then drain RX.
func (d *Device) serveIoctl(c ioctlCall, scratch []uint32, events *EventQueue) error {
	d.ioctlPending = &c
	if err := d.doIoctl(c.req.Kind, c.req.Cmd, c.req.Iface, c.req.Buf, scratch); err != nil {
		d.ioctlPending = nil
		c.complete(nil, err)
		return err
	}
	return d.checkStatus(scratch, events)
}

// sendData implements spec.md §4.4 "TX branch": build and send the
// SDPCM+BDC frame wrapping the host packet, release it, then drain RX.
func (d *Device) sendData(pkt []byte, scratch []uint32, events *EventQueue) error {
	defer d.netdev.TxDone()

	buf8 := u32AsU8(scratch)
	totalLen := whd.SizeSdpcmHeader + whd.SizeBdcHeader + len(pkt)

	seq := d.sdpcmSeq
	d.sdpcmSeq++

	sdpcm := whd.SdpcmHeader{
		Len:             uint16(totalLen), // Not rounded to 4 bytes; see SPEC_FULL.md open question 2.
		LenInv:          ^uint16(totalLen),
		Sequence:        seq,
		ChannelAndFlags: whd.ChannelTypeData,
		HeaderLength:    whd.SizeSdpcmHeader,
	}
	bdc := whd.BdcHeader{Flags: whd.BDCVersion << whd.BDCVersionShift}

	sdpcm.Put(buf8[0:whd.SizeSdpcmHeader])
	bdc.Put(buf8[whd.SizeSdpcmHeader : whd.SizeSdpcmHeader+whd.SizeBdcHeader])
	copy(buf8[whd.SizeSdpcmHeader+whd.SizeBdcHeader:], pkt)

	padded := (totalLen + 3) &^ 3
	if err := d.wlan_write(scratch[:padded/4]); err != nil {
		return err
	}
	return d.checkStatus(scratch, events)
}

// handleIRQ implements spec.md §4.4 "IRQ branch".
func (d *Device) handleIRQ(scratch []uint32, events *EventQueue) error {
	irq, err := d.read16(whd.FuncBus, whd.RegBusInterrupt)
	if err != nil {
		return err
	}
	if irq&whd.IRQF2PacketAvailable != 0 {
		if err := d.checkStatus(scratch, events); err != nil {
			return err
		}
	}
	if irq&whd.IRQDataUnavailable != 0 {
		d.warn("irq data_unavailable, clearing")
		if err := d.write16(whd.FuncBus, whd.RegBusInterrupt, 1); err != nil {
			return err
		}
	}
	return nil
}

// checkStatus implements spec.md §4.7: drain RX to completion before
// returning, so a TX/IOCTL is never left un-followed-up while RX
// frames pile up (spec.md §5 "Ordering guarantees").
func (d *Device) checkStatus(scratch []uint32, events *EventQueue) error {
	for {
		status := d.status()
		if status&whd.StatusF2PacketAvailable == 0 {
			return nil
		}
		length := (status & whd.StatusF2PacketLenMask) >> whd.StatusF2PacketLenShift
		if err := d.wlan_read(scratch, length); err != nil {
			return err
		}
		d.rx(u32AsU8(scratch)[:length], events)
	}
}

// rx implements spec.md §4.7's dispatch-by-channel.
func (d *Device) rx(packet []byte, events *EventQueue) {
	if len(packet) < whd.SizeSdpcmHeader {
		d.warn("packet too short", slog.Int("len", len(packet)))
		return
	}
	sdpcm := whd.DecodeSdpcmHeader(packet[:whd.SizeSdpcmHeader])
	if sdpcm.LenInv != ^sdpcm.Len {
		d.warn("len_inv mismatch")
		return
	}
	if int(sdpcm.Len) != len(packet) {
		d.warn("header len doesn't match spi len")
		return
	}

	d.update_credit(&sdpcm)

	if int(sdpcm.HeaderLength) > len(packet) {
		d.warn("header_length out of range")
		return
	}
	payload := packet[sdpcm.HeaderLength:]

	switch sdpcm.Channel() {
	case whd.ChannelTypeControl:
		d.rxControl(payload)
	case whd.ChannelTypeEvent:
		d.rxEvent(payload, events)
	case whd.ChannelTypeData:
		d.rxData(payload)
	default:
		// Unknown channel: ignored, per spec.md §4.7.
	}
}

func (d *Device) rxControl(payload []byte) {
	if len(payload) < whd.SizeCdcHeader {
		d.warn("cdc payload too short", slog.Int("len", len(payload)))
		return
	}
	cdc := whd.DecodeCdcHeader(payload[:whd.SizeCdcHeader])
	if cdc.ID != d.ioctlID {
		d.warn("ioctl id mismatch", slog.Uint64("got", uint64(cdc.ID)), slog.Uint64("want", uint64(d.ioctlID)))
		return
	}

	call := d.ioctlPending
	d.ioctlPending = nil
	if call == nil {
		// No call is recorded as pending (a duplicate reply, or one
		// whose send already failed), so there is no one to notify. A
		// caller that abandoned its wait is still recorded and gets
		// completed below; complete's buffered done channel absorbs it.
		return
	}
	if cdc.Status != 0 {
		call.complete(nil, &ErrIoctlFirmware{Status: cdc.StatusError()})
		return
	}
	response := payload[whd.SizeCdcHeader:]
	respLen := int(cdc.Len)
	if respLen > len(response) {
		respLen = len(response)
	}
	call.complete(response[:respLen], nil)
}

func (d *Device) rxEvent(payload []byte, events *EventQueue) {
	if len(payload) < whd.SizeBdcHeader {
		d.warn("bdc event header too short")
		return
	}
	bdc := whd.DecodeBdcHeader(payload[:whd.SizeBdcHeader])
	start := whd.SizeBdcHeader + 4*int(bdc.DataOffset)
	if start+whd.SizeEventPacket > len(payload) {
		d.warn("bdc event, incomplete header")
		return
	}
	evtBytes := payload[start:]
	pkt := whd.DecodeEventPacket(evtBytes[:whd.SizeEventPacket])
	if !pkt.Valid() {
		d.warn("unexpected event envelope",
			slog.Uint64("ethertype", uint64(pkt.Eth.EtherType)),
			slog.Uint64("subtype", uint64(pkt.Hdr.Subtype)),
			slog.Uint64("user_subtype", uint64(pkt.Hdr.UserSubtype)),
		)
		return
	}

	datalen := int(pkt.Msg.DataLen)
	if whd.SizeEventPacket+datalen > len(evtBytes) {
		d.warn("bdc event, incomplete data")
		return
	}
	evtData := evtBytes[whd.SizeEventPacket : whd.SizeEventPacket+datalen]
	evtType := whd.EventType(pkt.Msg.EventType)
	d.debug("event", slog.String("type", evtType.String()), slog.Int("datalen", len(evtData)))

	if evtType == whd.EventAuth || evtType == whd.EventJoin {
		events.publishImmediate(EventStatus{Status: pkt.Msg.Status, EventType: evtType})
	}
}

func (d *Device) rxData(payload []byte) {
	if len(payload) < whd.SizeBdcHeader {
		d.warn("bdc data header too short")
		return
	}
	bdc := whd.DecodeBdcHeader(payload[:whd.SizeBdcHeader])
	start := whd.SizeBdcHeader + 4*int(bdc.DataOffset)
	if start > len(payload) {
		d.warn("packet start out of range")
		return
	}
	pkt := payload[start:]

	dst := d.netdev.TryRxBuf()
	if dst == nil {
		d.warn("rx ring full, dropping packet", slog.Int("len", len(pkt)))
		return
	}
	n := copy(dst, pkt)
	d.netdev.RxDone(n)
}
