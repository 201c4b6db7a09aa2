package plan

// Span is a byte range required by a decode call.
type Span struct {
	Offset uint64
	Length uint64
}

// End is the exclusive end offset of s.
func (s Span) End() uint64 { return s.Offset + s.Length }

// Read is one coalesced backend read. It covers spans[First:Last] of the
// slice passed to Merge.
type Read struct {
	Offset uint64
	Length uint64
	First  int
	Last   int
}

// Slice returns the bytes of s inside buf, the result of fetching r.
func (r Read) Slice(buf []byte, s Span) []byte {
	return buf[s.Offset-r.Offset : s.End()-r.Offset]
}

// Merge coalesces spans, which must be sorted by offset, into reads. A span
// joins the current read while the gap to it is at most mergeGap and the
// read stays within maxSize. Overlapping spans always share a read. A span
// larger than maxSize is still issued as one read. With maxSize or mergeGap
// set to zero every span gets its own read.
func Merge(spans []Span, maxSize, mergeGap uint64) []Read {
	if len(spans) == 0 {
		return nil
	}
	merging := maxSize > 0 && mergeGap > 0

	reads := make([]Read, 0, 1)
	cur := Read{Offset: spans[0].Offset, Length: spans[0].Length, First: 0, Last: 1}
	for i := 1; i < len(spans); i++ {
		s := spans[i]
		end := cur.Offset + cur.Length
		newEnd := max(end, s.End())
		switch {
		case s.Offset < end:
		case merging && s.Offset-end <= mergeGap && newEnd-cur.Offset <= maxSize:
		default:
			reads = append(reads, cur)
			cur = Read{Offset: s.Offset, Length: s.Length, First: i, Last: i + 1}
			continue
		}
		cur.Length = newEnd - cur.Offset
		cur.Last = i + 1
	}
	return append(reads, cur)
}
