package cyw43439

import (
	"encoding/binary"
	"unsafe"
)

// _busOrder is the byte order words are exchanged in over the gSPI
// link: little-endian, per spec.md §9 "Byte layout".
var _busOrder = binary.LittleEndian

// isaligned reports whether v is a multiple of align.
func isaligned(v, align uint32) bool { return v%align == 0 }

// aligndown rounds v down to the nearest multiple of align.
func aligndown(v, align uint32) uint32 { return v - v%align }

// alignup rounds v up to the nearest multiple of align.
func alignup(v, align uint32) uint32 {
	rem := v % align
	if rem == 0 {
		return v
	}
	return v + (align - rem)
}

// b2u32 converts a bool to 0/1, mirroring the teacher's own helper in
// the reference cy43439.go.
func b2u32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// unsafeU32ToU8 reinterprets a []uint32 scratch buffer as a []byte of
// 4x the length, for in-place byte-wise header/packet construction.
// This is the one place the driver reinterprets memory rather than
// byte-serializing explicitly: the buffer is our own word-aligned
// scratch space (RX frames are read into it too, then decoded
// byte-wise), so the reinterpretation is safe and avoids a copy on
// every TX/RX.
func unsafeU32ToU8(s []uint32) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(&s[0])), len(s)*4)
}
