package stream

// AppendVarint appends the canonical minimal encoding of v.
func AppendVarint(dst []byte, v uint32) []byte {
	for i := 0; i < 4 && v >= 0x80; i++ {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// AppendS24 appends v as a signed 24-bit little-endian value.
// Bits above the low 24 are dropped.
func AppendS24(dst []byte, v int32) []byte {
	return append(dst, byte(v), byte(v>>8), byte(v>>16))
}

// VarintLen reports how many bytes AppendVarint emits for v.
func VarintLen(v uint32) int {
	n := 1
	for i := 0; i < 4 && v >= 0x80; i++ {
		v >>= 7
		n++
	}
	return n
}
