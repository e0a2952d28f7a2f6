package signer

import "encoding/binary"

// CompactUint encodes v in SCALE compact form.
func CompactUint(v uint64) []byte {
	switch {
	case v < 1<<6:
		return []byte{byte(v) << 2}
	case v < 1<<14:
		buf := make([]byte, 2)
		binary.LittleEndian.PutUint16(buf, uint16(v)<<2|0b01)
		return buf
	case v < 1<<30:
		buf := make([]byte, 4)
		binary.LittleEndian.PutUint32(buf, uint32(v)<<2|0b10)
		return buf
	default:
		// big-integer mode: length byte then little-endian value bytes
		var value [8]byte
		binary.LittleEndian.PutUint64(value[:], v)
		n := 8
		for n > 4 && value[n-1] == 0 {
			n--
		}
		out := make([]byte, 0, n+1)
		out = append(out, byte(n-4)<<2|0b11)
		return append(out, value[:n]...)
	}
}

func uint32LE(v uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, v)
	return buf
}
