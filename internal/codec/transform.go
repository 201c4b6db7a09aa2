package codec

import (
	"encoding/binary"

	"golang.org/x/exp/constraints"
)

// Delta2DEncode treats buf as rows x cols and replaces every row but the
// first with its difference to the row above. Rows run bottom-up so the
// transform works in place.
func Delta2DEncode[S constraints.Integer](rows, cols int, buf []S) {
	for r := rows - 1; r >= 1; r-- {
		cur, prev := buf[r*cols:(r+1)*cols], buf[(r-1)*cols:r*cols]
		for c := range cur {
			cur[c] -= prev[c]
		}
	}
}

// Delta2DDecode reverses Delta2DEncode.
func Delta2DDecode[S constraints.Integer](rows, cols int, buf []S) {
	for r := 1; r < rows; r++ {
		cur, prev := buf[r*cols:(r+1)*cols], buf[(r-1)*cols:r*cols]
		for c := range cur {
			cur[c] += prev[c]
		}
	}
}

// Xor2DEncode is Delta2DEncode with xor instead of subtraction. It is meant
// for float bit patterns, where neighbouring rows share sign and exponent.
func Xor2DEncode[S constraints.Integer](rows, cols int, buf []S) {
	for r := rows - 1; r >= 1; r-- {
		cur, prev := buf[r*cols:(r+1)*cols], buf[(r-1)*cols:r*cols]
		for c := range cur {
			cur[c] ^= prev[c]
		}
	}
}

// Xor2DDecode reverses Xor2DEncode.
func Xor2DDecode[S constraints.Integer](rows, cols int, buf []S) {
	for r := 1; r < rows; r++ {
		cur, prev := buf[r*cols:(r+1)*cols], buf[(r-1)*cols:r*cols]
		for c := range cur {
			cur[c] ^= prev[c]
		}
	}
}

// PutLE writes src into dst as width byte little-endian integers.
func PutLE[S constraints.Integer](dst []byte, src []S, width int) {
	switch width {
	case 1:
		for i, v := range src {
			dst[i] = byte(v)
		}
	case 2:
		for i, v := range src {
			binary.LittleEndian.PutUint16(dst[2*i:], uint16(v))
		}
	case 4:
		for i, v := range src {
			binary.LittleEndian.PutUint32(dst[4*i:], uint32(v))
		}
	default:
		for i, v := range src {
			binary.LittleEndian.PutUint64(dst[8*i:], uint64(v))
		}
	}
}

// GetLE reads width byte little-endian integers from src into dst.
func GetLE[S constraints.Integer](dst []S, src []byte, width int) {
	switch width {
	case 1:
		for i := range dst {
			dst[i] = S(src[i])
		}
	case 2:
		for i := range dst {
			dst[i] = S(binary.LittleEndian.Uint16(src[2*i:]))
		}
	case 4:
		for i := range dst {
			dst[i] = S(binary.LittleEndian.Uint32(src[4*i:]))
		}
	default:
		for i := range dst {
			dst[i] = S(binary.LittleEndian.Uint64(src[8*i:]))
		}
	}
}
