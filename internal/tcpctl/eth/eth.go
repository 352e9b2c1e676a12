// Package eth implements minimal read-only Ethernet/IPv4/TCP header
// decoding used by the cyweth example.
package eth

import (
	"encoding/binary"
	"fmt"
)

// SizeEthernetHeaderNoVLAN is the length of an Ethernet II header
// without an 802.1Q tag.
const SizeEthernetHeaderNoVLAN = 14

// SizeIPv4Header is the length of a (no-options) IPv4 header.
const SizeIPv4Header = 20

// EtherType values this package recognizes.
const (
	EtherTypeIPv4 uint16 = 0x0800
	EtherTypeIPv6 uint16 = 0x86DD
	EtherTypeARP  uint16 = 0x0806
)

// EthernetHeader is a decoded Ethernet II frame header.
type EthernetHeader struct {
	Destination [6]byte
	Source      [6]byte
	EtherType   uint16
}

// DecodeEthernetHeader parses the first SizeEthernetHeaderNoVLAN
// bytes of b.
func DecodeEthernetHeader(b []byte) EthernetHeader {
	_ = b[:SizeEthernetHeaderNoVLAN]
	var h EthernetHeader
	copy(h.Destination[:], b[0:6])
	copy(h.Source[:], b[6:12])
	h.EtherType = binary.BigEndian.Uint16(b[12:14])
	return h
}

// AssertType returns the header's EtherType, for readable call sites
// like `if ethHdr.AssertType() != eth.EtherTypeIPv4`.
func (h EthernetHeader) AssertType() uint16 { return h.EtherType }

func (h EthernetHeader) String() string {
	return fmt.Sprintf("%02x:%02x:%02x:%02x:%02x:%02x > %02x:%02x:%02x:%02x:%02x:%02x ethertype=%#04x",
		h.Source[0], h.Source[1], h.Source[2], h.Source[3], h.Source[4], h.Source[5],
		h.Destination[0], h.Destination[1], h.Destination[2], h.Destination[3], h.Destination[4], h.Destination[5],
		h.EtherType)
}

// IPv4Header is a decoded IPv4 header (no options).
type IPv4Header struct {
	VersionIHL     uint8
	ToS            uint8
	TotalLength    uint16
	ID             uint16
	FlagsFragOff   uint16
	TTL            uint8
	Protocol       uint8
	HeaderChecksum uint16
	Source         [4]byte
	Destination    [4]byte
}

// DecodeIPv4Header parses the first SizeIPv4Header bytes of b.
func DecodeIPv4Header(b []byte) IPv4Header {
	_ = b[:SizeIPv4Header]
	var h IPv4Header
	h.VersionIHL = b[0]
	h.ToS = b[1]
	h.TotalLength = binary.BigEndian.Uint16(b[2:4])
	h.ID = binary.BigEndian.Uint16(b[4:6])
	h.FlagsFragOff = binary.BigEndian.Uint16(b[6:8])
	h.TTL = b[8]
	h.Protocol = b[9]
	h.HeaderChecksum = binary.BigEndian.Uint16(b[10:12])
	copy(h.Source[:], b[12:16])
	copy(h.Destination[:], b[16:20])
	return h
}

func (h IPv4Header) String() string {
	return fmt.Sprintf("%d.%d.%d.%d > %d.%d.%d.%d proto=%d len=%d ttl=%d",
		h.Source[0], h.Source[1], h.Source[2], h.Source[3],
		h.Destination[0], h.Destination[1], h.Destination[2], h.Destination[3],
		h.Protocol, h.TotalLength, h.TTL)
}

// SizeTCPHeaderNoOptions is the length of a TCP header without options.
const SizeTCPHeaderNoOptions = 20

// TCPHeader is a decoded TCP header (no options).
type TCPHeader struct {
	SourcePort uint16
	DestPort   uint16
	Seq        uint32
	Ack        uint32
	OffsetFlags uint16
	WindowSize uint16
	Checksum   uint16
	UrgentPtr  uint16
}

// DecodeTCPHeader parses the first SizeTCPHeaderNoOptions bytes of b.
func DecodeTCPHeader(b []byte) TCPHeader {
	_ = b[:SizeTCPHeaderNoOptions]
	return TCPHeader{
		SourcePort:  binary.BigEndian.Uint16(b[0:2]),
		DestPort:    binary.BigEndian.Uint16(b[2:4]),
		Seq:         binary.BigEndian.Uint32(b[4:8]),
		Ack:         binary.BigEndian.Uint32(b[8:12]),
		OffsetFlags: binary.BigEndian.Uint16(b[12:14]),
		WindowSize:  binary.BigEndian.Uint16(b[14:16]),
		Checksum:    binary.BigEndian.Uint16(b[16:18]),
		UrgentPtr:   binary.BigEndian.Uint16(b[18:20]),
	}
}

func (h TCPHeader) String() string {
	return fmt.Sprintf("%d > %d seq=%d ack=%d win=%d", h.SourcePort, h.DestPort, h.Seq, h.Ack, h.WindowSize)
}
