package cyw43439

import (
	"context"
	"fmt"

	"github.com/soypat/cyw43439/whd"
)

// PendingIoctl is a caller's in-flight IOCTL request, as described by
// spec.md §4.8/§6: a command kind, firmware command id, interface
// index, and a buffer the runner will overwrite with the reply.
type PendingIoctl struct {
	Kind  whd.IoctlType
	Cmd   uint32
	Iface uint32
	Buf   []byte
}

// IoctlState is the single-slot request/response rendezvous of
// spec.md §4.8: at most one IOCTL outstanding at a time, enforced by
// serializing callers through reqCh.
type IoctlState struct {
	reqCh chan ioctlCall
}

type ioctlCall struct {
	req  PendingIoctl
	done chan ioctlResult
}

type ioctlResult struct {
	n   int
	err error
}

// NewIoctlState constructs an IoctlState ready for use.
func NewIoctlState() *IoctlState {
	return &IoctlState{reqCh: make(chan ioctlCall)}
}

// ErrIoctlFirmware wraps a non-zero CDC status, surfaced to the
// caller per SPEC_FULL.md's open-question decision (the original Rust
// source panics here; this driver reports the error to the caller
// instead).
type ErrIoctlFirmware struct{ Status int32 }

func (e *ErrIoctlFirmware) Error() string {
	return fmt.Sprintf("cyw43439: ioctl firmware error, status=%d", e.Status)
}

// Do submits an IOCTL and blocks until the runner has a reply,
// copying it into buf and returning the copied length. At most one
// Do call may be outstanding at a time (spec.md §4.8).
func (s *IoctlState) Do(ctx context.Context, kind whd.IoctlType, cmd uint32, iface uint32, buf []byte) (int, error) {
	call := ioctlCall{
		req:  PendingIoctl{Kind: kind, Cmd: cmd, Iface: iface, Buf: buf},
		done: make(chan ioctlResult, 1),
	}
	select {
	case s.reqCh <- call:
	case <-ctx.Done():
		return 0, ctx.Err()
	}
	select {
	case res := <-call.done:
		return res.n, res.err
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// complete copies response into the caller's buffer and wakes it,
// per spec.md §6 "ioctl_done(&[u8])". A nil err delivers a successful
// reply; a non-nil err (e.g. *ErrIoctlFirmware) delivers a failure.
func (c ioctlCall) complete(response []byte, err error) {
	n := 0
	if err == nil {
		n = copy(c.req.Buf, response)
	}
	c.done <- ioctlResult{n: n, err: err}
}

// doIoctl builds and sends an SDPCM+CDC frame for the given request,
// per spec.md §4.6 "IOCTL send".
func (d *Device) doIoctl(kind whd.IoctlType, cmd uint32, iface uint32, data []byte, buf []uint32) error {
	buf8 := u32AsU8(buf)

	totalLen := whd.SizeSdpcmHeader + whd.SizeCdcHeader + len(data)

	seq := d.sdpcmSeq
	d.sdpcmSeq++
	d.ioctlID++

	sdpcm := whd.SdpcmHeader{
		Len:             uint16(totalLen),
		LenInv:          ^uint16(totalLen),
		Sequence:        seq,
		ChannelAndFlags: whd.ChannelTypeControl,
		HeaderLength:    whd.SizeSdpcmHeader,
	}
	cdc := whd.CdcHeader{
		Cmd:    cmd,
		Len:    uint32(len(data)),
		Flags:  uint16(kind) | uint16(iface)<<12,
		ID:     d.ioctlID,
		Status: 0,
	}

	sdpcm.Put(buf8[0:whd.SizeSdpcmHeader])
	cdc.Put(buf8[whd.SizeSdpcmHeader : whd.SizeSdpcmHeader+whd.SizeCdcHeader])
	copy(buf8[whd.SizeSdpcmHeader+whd.SizeCdcHeader:], data)

	padded := (totalLen + 3) &^ 3
	return d.wlan_write(buf[:padded/4])
}
