package whd

import "testing"

func TestSdpcmHeaderRoundTrip(t *testing.T) {
	h := SdpcmHeader{
		Len:                 64,
		LenInv:              ^uint16(64),
		Sequence:            7,
		ChannelAndFlags:     ChannelTypeData,
		NextLength:          0,
		HeaderLength:        SizeSdpcmHeader,
		WirelessFlowControl: 0,
		BusDataCredit:       3,
		Reserved:            [2]uint8{0, 0},
	}
	var buf [SizeSdpcmHeader]byte
	h.Put(buf[:])
	got := DecodeSdpcmHeader(buf[:])
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
	if got.LenInv != ^got.Len {
		t.Fatalf("len_inv invariant broken")
	}
}

func TestBdcHeaderRoundTrip(t *testing.T) {
	h := BdcHeader{Flags: BDCVersion << BDCVersionShift, Priority: 1, Flags2: 0, DataOffset: 2}
	var buf [SizeBdcHeader]byte
	h.Put(buf[:])
	got := DecodeBdcHeader(buf[:])
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
}

func TestCdcHeaderRoundTrip(t *testing.T) {
	h := CdcHeader{Cmd: 0x20, Len: 2, Flags: uint16(IoctlSet) | (1 << 12), ID: 42, Status: 0}
	var buf [SizeCdcHeader]byte
	h.Put(buf[:])
	got := DecodeCdcHeader(buf[:])
	if got != h {
		t.Fatalf("round trip mismatch: got %+v want %+v", got, h)
	}
	if got.Kind() != IoctlSet {
		t.Fatalf("kind: got %v want %v", got.Kind(), IoctlSet)
	}
	if got.Iface() != 1 {
		t.Fatalf("iface: got %d want 1", got.Iface())
	}
}

func TestEventPacketValid(t *testing.T) {
	buf := make([]byte, SizeEventPacket+8)
	eth := EthernetHeader{EtherType: EtherTypeLinkCtl}
	copy(buf[12:14], []byte{0x88, 0x6c})
	_ = eth
	copy(buf[SizeEthernetHeader:SizeEthernetHeader+3], BroadcomOUI[:])
	buf[SizeEthernetHeader+3] = 0x80
	buf[SizeEthernetHeader+4] = 0x01 // subtype = 32769
	buf[SizeEthernetHeader+9] = 0x00
	buf[SizeEthernetHeader+10] = 0x01 // user_subtype = 1

	p := DecodeEventPacket(buf[:SizeEventPacket])
	if !p.Valid() {
		t.Fatalf("expected valid event packet, got %+v", p)
	}
}

func TestNVRAMTrailer(t *testing.T) {
	cases := []struct {
		n int
	}{
		{0}, {1}, {3}, {4}, {5}, {100}, {101},
	}
	for _, c := range cases {
		padded := (c.n + 3) / 4 * 4
		words := uint32(padded / 4)
		trailer := (^words << 16) | words
		gotWords := trailer & 0xffff
		gotInv := trailer >> 16
		if gotWords != words || gotInv != ^words&0xffff {
			t.Fatalf("n=%d: trailer=%#x words=%d", c.n, trailer, words)
		}
	}
}
