package smpphelper

import "encoding/binary"

// Information element identifiers for concatenated short messages.
const (
	IEIConcat8Bit  byte = 0x00
	IEIConcat16Bit byte = 0x08
)

// ConcatInfo describes one concatenation information element.
type ConcatInfo struct {
	Reference uint16
	Total     uint8
	Sequence  uint8
}

// EncodeConcatenatedUDH creates the UDH byte slice for multipart messages
// using the 8-bit reference form (05 00 03 ref total seq).
func EncodeConcatenatedUDH(refNum, totalSegments, sequenceNum uint8) []byte {
	return []byte{0x05, IEIConcat8Bit, 0x03, refNum, totalSegments, sequenceNum}
}

// EncodeConcatenatedUDH16 creates the 16-bit reference form
// (06 08 04 refHi refLo total seq).
func EncodeConcatenatedUDH16(refNum uint16, totalSegments, sequenceNum uint8) []byte {
	b := []byte{0x06, IEIConcat16Bit, 0x04, 0, 0, totalSegments, sequenceNum}
	binary.BigEndian.PutUint16(b[3:5], refNum)
	return b
}

// HasFixedConcatHeader reports whether b starts with the fixed 8-bit
// concatenation header 05 00 03.
func HasFixedConcatHeader(b []byte) bool {
	return len(b) >= 6 && b[0] == 0x05 && b[1] == IEIConcat8Bit && b[2] == 0x03
}

// ParseConcatenatedUDH walks the user data header at the start of b and
// returns the first concatenation element. headerLen includes the UDHL octet.
func ParseConcatenatedUDH(b []byte) (info ConcatInfo, headerLen int, ok bool) {
	if len(b) < 1 {
		return ConcatInfo{}, 0, false
	}
	udhl := int(b[0])
	if udhl == 0 || len(b) < 1+udhl {
		return ConcatInfo{}, 0, false
	}
	headerLen = 1 + udhl
	ies := b[1:headerLen]
	for len(ies) >= 2 {
		iei, l := ies[0], int(ies[1])
		if len(ies) < 2+l {
			return ConcatInfo{}, 0, false
		}
		v := ies[2 : 2+l]
		switch {
		case iei == IEIConcat8Bit && l == 3:
			return ConcatInfo{Reference: uint16(v[0]), Total: v[1], Sequence: v[2]}, headerLen, true
		case iei == IEIConcat16Bit && l == 4:
			return ConcatInfo{Reference: binary.BigEndian.Uint16(v[0:2]), Total: v[2], Sequence: v[3]}, headerLen, true
		}
		ies = ies[2+l:]
	}
	return ConcatInfo{}, headerLen, false
}

// StripUDH removes a user data header from b, returning b unchanged when the
// length octet is inconsistent.
func StripUDH(b []byte) []byte {
	if len(b) < 1 {
		return b
	}
	n := 1 + int(b[0])
	if n > len(b) {
		return b
	}
	return b[n:]
}
