package whd

import "encoding/binary"

// Channel types, carried in the low 4 bits of SdpcmHeader.ChannelAndFlags.
const (
	ChannelTypeControl uint8 = 0
	ChannelTypeEvent   uint8 = 1
	ChannelTypeData    uint8 = 2
)

// BDC version, shifted into the high nibble of BdcHeader.Flags.
const (
	BDCVersion      = 2
	BDCVersionShift = 4
)

// IOCTL kinds, encoded in the low 2 bits of CdcHeader.Flags.
type IoctlType uint16

const (
	IoctlGet IoctlType = 0
	IoctlSet IoctlType = 2
)

// SdpcmHeader is the 12-byte little-endian bus-framing header that
// prefixes every packet on the WLAN data function (F2).
type SdpcmHeader struct {
	Len                uint16
	LenInv             uint16
	Sequence           uint8
	ChannelAndFlags    uint8
	NextLength         uint8
	HeaderLength       uint8
	WirelessFlowControl uint8
	BusDataCredit      uint8
	Reserved           [2]uint8
}

const SizeSdpcmHeader = 12

// Put serializes h into dst[:SizeSdpcmHeader], little-endian.
func (h *SdpcmHeader) Put(dst []byte) {
	_ = dst[:SizeSdpcmHeader]
	binary.LittleEndian.PutUint16(dst[0:2], h.Len)
	binary.LittleEndian.PutUint16(dst[2:4], h.LenInv)
	dst[4] = h.Sequence
	dst[5] = h.ChannelAndFlags
	dst[6] = h.NextLength
	dst[7] = h.HeaderLength
	dst[8] = h.WirelessFlowControl
	dst[9] = h.BusDataCredit
	dst[10] = h.Reserved[0]
	dst[11] = h.Reserved[1]
}

// DecodeSdpcmHeader parses the first SizeSdpcmHeader bytes of src.
func DecodeSdpcmHeader(src []byte) SdpcmHeader {
	_ = src[:SizeSdpcmHeader]
	return SdpcmHeader{
		Len:                 binary.LittleEndian.Uint16(src[0:2]),
		LenInv:              binary.LittleEndian.Uint16(src[2:4]),
		Sequence:            src[4],
		ChannelAndFlags:     src[5],
		NextLength:          src[6],
		HeaderLength:        src[7],
		WirelessFlowControl: src[8],
		BusDataCredit:       src[9],
		Reserved:            [2]uint8{src[10], src[11]},
	}
}

// Channel returns the low-4-bit channel selector.
func (h *SdpcmHeader) Channel() uint8 { return h.ChannelAndFlags & 0x0f }

// BdcHeader is the 4-byte data-path header between SDPCM and payload.
type BdcHeader struct {
	Flags      uint8
	Priority   uint8
	Flags2     uint8
	DataOffset uint8 // in 4-byte units.
}

const SizeBdcHeader = 4

func (h *BdcHeader) Put(dst []byte) {
	_ = dst[:SizeBdcHeader]
	dst[0] = h.Flags
	dst[1] = h.Priority
	dst[2] = h.Flags2
	dst[3] = h.DataOffset
}

func DecodeBdcHeader(src []byte) BdcHeader {
	_ = src[:SizeBdcHeader]
	return BdcHeader{Flags: src[0], Priority: src[1], Flags2: src[2], DataOffset: src[3]}
}

// CdcHeader is the 16-byte control-path (IOCTL) header.
type CdcHeader struct {
	Cmd    uint32
	Len    uint32
	Flags  uint16
	ID     uint16
	Status uint32
}

const SizeCdcHeader = 16

func (h *CdcHeader) Put(dst []byte) {
	_ = dst[:SizeCdcHeader]
	binary.LittleEndian.PutUint32(dst[0:4], h.Cmd)
	binary.LittleEndian.PutUint32(dst[4:8], h.Len)
	binary.LittleEndian.PutUint16(dst[8:10], h.Flags)
	binary.LittleEndian.PutUint16(dst[10:12], h.ID)
	binary.LittleEndian.PutUint32(dst[12:16], h.Status)
}

func DecodeCdcHeader(src []byte) CdcHeader {
	_ = src[:SizeCdcHeader]
	return CdcHeader{
		Cmd:    binary.LittleEndian.Uint32(src[0:4]),
		Len:    binary.LittleEndian.Uint32(src[4:8]),
		Flags:  binary.LittleEndian.Uint16(src[8:10]),
		ID:     binary.LittleEndian.Uint16(src[10:12]),
		Status: binary.LittleEndian.Uint32(src[12:16]),
	}
}

// StatusError interprets Status as a firmware reply code: zero means
// success, any other value is a signed error code from firmware.
func (h *CdcHeader) StatusError() int32 { return int32(h.Status) }

// Iface returns the interface index packed into bits 12-15 of Flags.
func (h *CdcHeader) Iface() uint16 { return h.Flags >> 12 }

// Kind returns the IOCTL kind packed into the low 2 bits of Flags.
func (h *CdcHeader) Kind() IoctlType { return IoctlType(h.Flags & 0x3) }

// EthernetHeader is a 14-byte Ethernet II header (no VLAN tag).
type EthernetHeader struct {
	Destination [6]byte
	Source      [6]byte
	EtherType   uint16
}

const SizeEthernetHeader = 14

// EtherTypeLinkCtl is the Broadcom wlan link-local-tunnel ethertype
// used to wrap firmware event packets.
const EtherTypeLinkCtl uint16 = 0x886c

func DecodeEthernetHeader(src []byte) EthernetHeader {
	_ = src[:SizeEthernetHeader]
	var h EthernetHeader
	copy(h.Destination[:], src[0:6])
	copy(h.Source[:], src[6:12])
	h.EtherType = binary.BigEndian.Uint16(src[12:14])
	return h
}

// EventHeader is the vendor-specific header identifying a Broadcom
// event-type IE, following the Ethernet header in an event packet.
type EventHeader struct {
	OUI         [3]byte
	Subtype     uint16
	Version     uint16
	HeaderLen   uint16
	UserSubtype uint16
}

const SizeEventHeader = 3 + 2 + 2 + 2 + 2

// Broadcom OUI and expected subtype/user_subtype for firmware events.
var (
	BroadcomOUI = [3]byte{0x00, 0x10, 0x18}
)

const (
	BCMILCPSubtypeVendorLong = 32769
	BCMILCPBCMSubtypeEvent   = 1
)

func DecodeEventHeader(src []byte) EventHeader {
	_ = src[:SizeEventHeader]
	var h EventHeader
	copy(h.OUI[:], src[0:3])
	h.Subtype = binary.BigEndian.Uint16(src[3:5])
	h.Version = binary.BigEndian.Uint16(src[5:7])
	h.HeaderLen = binary.BigEndian.Uint16(src[7:9])
	h.UserSubtype = binary.BigEndian.Uint16(src[9:11])
	return h
}

// EventMessage carries the event type/status/datalen triple; it
// arrives big-endian on the wire and must be byteswapped.
type EventMessage struct {
	EventType uint32
	Status    uint32
	DataLen   uint32
}

const SizeEventMessage = 12

func DecodeEventMessage(src []byte) EventMessage {
	_ = src[:SizeEventMessage]
	return EventMessage{
		EventType: binary.BigEndian.Uint32(src[0:4]),
		Status:    binary.BigEndian.Uint32(src[4:8]),
		DataLen:   binary.BigEndian.Uint32(src[8:12]),
	}
}

// EventPacket is the composite frame carried on the EVENT channel:
// an Ethernet header, a vendor event header, and an event message.
type EventPacket struct {
	Eth EthernetHeader
	Hdr EventHeader
	Msg EventMessage
}

const SizeEventPacket = SizeEthernetHeader + SizeEventHeader + SizeEventMessage

// DecodeEventPacket parses the fixed portion of an event packet,
// byteswapping Msg's fields from their big-endian wire order. It does
// not validate the envelope; callers should check Valid() before
// trusting Msg.
func DecodeEventPacket(src []byte) EventPacket {
	_ = src[:SizeEventPacket]
	return EventPacket{
		Eth: DecodeEthernetHeader(src[0:SizeEthernetHeader]),
		Hdr: DecodeEventHeader(src[SizeEthernetHeader : SizeEthernetHeader+SizeEventHeader]),
		Msg: DecodeEventMessage(src[SizeEthernetHeader+SizeEventHeader : SizeEventPacket]),
	}
}

// Valid reports whether the packet matches the fixed Broadcom event
// envelope (ethertype, OUI, subtype, user_subtype).
func (p *EventPacket) Valid() bool {
	return p.Eth.EtherType == EtherTypeLinkCtl &&
		p.Hdr.OUI == BroadcomOUI &&
		p.Hdr.Subtype == BCMILCPSubtypeVendorLong &&
		p.Hdr.UserSubtype == BCMILCPBCMSubtypeEvent
}

// EventType enumerates the firmware event codes the runner cares
// about; all others are logged and discarded.
type EventType uint32

const (
	EventAuth EventType = 3
	EventJoin EventType = 1
)

func (e EventType) String() string {
	switch e {
	case EventAuth:
		return "AUTH"
	case EventJoin:
		return "JOIN"
	default:
		return "EVENT"
	}
}
