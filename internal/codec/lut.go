package codec

import (
	"encoding/binary"
	"fmt"
)

// LUTBlockEntries is the number of lookup table entries compressed together.
const LUTBlockEntries = 64

// LUTBlocks returns the number of blocks of a table with n entries.
func LUTBlocks(n uint64) uint64 {
	blocks := n / LUTBlockEntries
	if n%LUTBlockEntries != 0 {
		blocks++
	}
	return blocks
}

// EncodeLUT compresses a lookup table of non-decreasing offsets. Each block
// of 64 entries is delta coded, compressed with the Integer codec, prefixed
// with its compressed length (u32) and zero padded to a common stride, so
// block b starts at b*stride.
func EncodeLUT(lut []uint64) (out []byte, stride uint64) {
	n := LUTBlocks(uint64(len(lut)))
	frames := make([][]byte, n)
	raw := make([]byte, LUTBlockEntries*8)
	deltas := make([]uint64, LUTBlockEntries)
	longest := 0
	for b := range frames {
		entries := lut[b*LUTBlockEntries : min((b+1)*LUTBlockEntries, len(lut))]
		var prev uint64
		for i, e := range entries {
			deltas[i] = e - prev
			prev = e
		}
		size := len(entries) * 8
		PutLE(raw[:size], deltas[:len(entries)], 8)
		frame := make([]byte, 4, 4+Integer.Bound(size))
		frame = Integer.Encode(frame, raw[:size], 8)
		binary.LittleEndian.PutUint32(frame, uint32(len(frame)-4))
		frames[b] = frame
		longest = max(longest, len(frame))
	}
	out = make([]byte, 0, longest*len(frames))
	for _, f := range frames {
		out = append(out, f...)
		out = append(out, make([]byte, longest-len(f))...)
	}
	return out, uint64(longest)
}

// DecodeLUTBlock decodes one padded block into dst, which must be sized to
// the number of entries of that block.
func DecodeLUTBlock(dst []uint64, src []byte) error {
	if len(src) < 4 {
		return fmt.Errorf("%w: lookup table block of %d bytes", ErrCorrupt, len(src))
	}
	n := uint64(binary.LittleEndian.Uint32(src))
	if n > uint64(len(src)-4) {
		return fmt.Errorf("%w: lookup table block claims %d bytes, has %d", ErrCorrupt, n, len(src)-4)
	}
	raw := make([]byte, len(dst)*8)
	if err := Integer.Decode(raw, src[4:4+n], 8); err != nil {
		return fmt.Errorf("failed to decode lookup table block: %w", err)
	}
	GetLE(dst, raw, 8)
	for i := 1; i < len(dst); i++ {
		dst[i] += dst[i-1]
	}
	return nil
}
