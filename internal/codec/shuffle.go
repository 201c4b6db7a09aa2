package codec

import "encoding/binary"

// Shuffle groups byte j of every element together: [all byte 0s][all byte
// 1s]... Trailing bytes that do not form a whole element are copied as is.
func Shuffle(dst, src []byte, width int) {
	n := len(src) / width
	if width <= 1 || n == 0 {
		copy(dst, src)
		return
	}
	for i := 0; i < n; i++ {
		for j := 0; j < width; j++ {
			dst[j*n+i] = src[i*width+j]
		}
	}
	copy(dst[n*width:], src[n*width:])
}

// Unshuffle reverses Shuffle.
func Unshuffle(dst, src []byte, width int) {
	n := len(src) / width
	if width <= 1 || n == 0 {
		copy(dst, src)
		return
	}
	for i := 0; i < n; i++ {
		for j := 0; j < width; j++ {
			dst[i*width+j] = src[j*n+i]
		}
	}
	copy(dst[n*width:], src[n*width:])
}

// Zigzag maps every width byte two's complement element of src to its zigzag
// form, so small negative numbers become small positive ones.
func Zigzag(dst, src []byte, width int) {
	bits := uint(width * 8)
	for i := 0; i+width <= len(src); i += width {
		v := getUint(src[i:], width)
		s := int64(v<<(64-bits)) >> (64 - bits)
		putUint(dst[i:], width, uint64((s<<1)^(s>>63)))
	}
}

// Unzigzag reverses Zigzag in place.
func Unzigzag(buf []byte, width int) {
	for i := 0; i+width <= len(buf); i += width {
		z := getUint(buf[i:], width)
		putUint(buf[i:], width, (z>>1)^-(z&1))
	}
}

func getUint(b []byte, width int) uint64 {
	switch width {
	case 1:
		return uint64(b[0])
	case 2:
		return uint64(binary.LittleEndian.Uint16(b))
	case 4:
		return uint64(binary.LittleEndian.Uint32(b))
	default:
		return binary.LittleEndian.Uint64(b)
	}
}

func putUint(b []byte, width int, v uint64) {
	switch width {
	case 1:
		b[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(b, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(b, uint32(v))
	default:
		binary.LittleEndian.PutUint64(b, v)
	}
}
