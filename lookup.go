package omfile

import (
	"encoding/binary"
	"fmt"

	"github.com/yudeqang/om-file-format/internal/codec"
	"github.com/yudeqang/om-file-format/internal/format"
	"github.com/yudeqang/om-file-format/internal/grid"
	"github.com/yudeqang/om-file-format/internal/plan"
)

const lutBlock = codec.LUTBlockEntries

// lookupTable locates chunk payloads. Entry i is the absolute offset of
// chunk i and entry i+1 its end. Entries are fetched in blocks of lutBlock.
type lookupTable interface {
	span(block uint64) plan.Span
	decode(block uint64, src []byte) ([]uint64, error)
}

func blockEntries(block, entries uint64) uint64 {
	return min(lutBlock, entries-block*lutBlock)
}

func newLookupTable(v *format.Variable, legacy bool) (lookupTable, error) {
	entries := grid.NumChunks(v.Dimensions, v.Chunks) + 1
	if legacy {
		return &legacyTable{
			offset:    v.LutOffset,
			dataStart: v.LutOffset + v.LutSize,
			entries:   entries,
		}, nil
	}
	blocks := codec.LUTBlocks(entries)
	if blocks == 0 || v.LutSize == 0 || v.LutSize%blocks != 0 {
		return nil, fmt.Errorf("%w: lookup table of %d bytes cannot hold %d blocks", ErrFormat, v.LutSize, blocks)
	}
	return &compressedTable{offset: v.LutOffset, stride: v.LutSize / blocks, entries: entries}, nil
}

// compressedTable is the lookup table of modern files: fixed stride blocks
// of delta coded absolute offsets.
type compressedTable struct {
	offset  uint64
	stride  uint64
	entries uint64
}

func (t *compressedTable) span(block uint64) plan.Span {
	return plan.Span{Offset: t.offset + block*t.stride, Length: t.stride}
}

func (t *compressedTable) decode(block uint64, src []byte) ([]uint64, error) {
	out := make([]uint64, blockEntries(block, t.entries))
	if err := codec.DecodeLUTBlock(out, src); err != nil {
		return nil, fmt.Errorf("failed to decode lookup table block %d: %w", block, err)
	}
	return out, nil
}

// legacyTable is the uncompressed table of version 1 and 2 files. It stores
// the end of every chunk relative to the data start, so entry 0 is implied.
type legacyTable struct {
	offset    uint64
	dataStart uint64
	entries   uint64
}

func (t *legacyTable) span(block uint64) plan.Span {
	first := max(block*lutBlock, 1)
	end := block*lutBlock + blockEntries(block, t.entries)
	return plan.Span{Offset: t.offset + (first-1)*8, Length: (end - first) * 8}
}

func (t *legacyTable) decode(block uint64, src []byte) ([]uint64, error) {
	out := make([]uint64, blockEntries(block, t.entries))
	stored := out
	if block == 0 {
		out[0] = t.dataStart
		stored = out[1:]
	}
	if len(src) != len(stored)*8 {
		return nil, fmt.Errorf("%w: legacy lookup table block %d has %d bytes", ErrFormat, block, len(src))
	}
	for i := range stored {
		stored[i] = t.dataStart + binary.LittleEndian.Uint64(src[i*8:])
	}
	return out, nil
}
