package mlang

import "fmt"

// Span is a half-open byte range into the schema source. Spans are attached
// to every AST node and diagnostic; they carry no semantics of their own.
type Span struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Extend returns the smallest span covering both s and other.
func (s Span) Extend(other Span) Span {
	if other.Start < s.Start {
		s.Start = other.Start
	}
	if other.End > s.End {
		s.End = other.End
	}
	return s
}

func (s Span) String() string {
	return fmt.Sprintf("[%d,%d)", s.Start, s.End)
}

// Position contains resolved line/column information for a byte offset.
// Line and Column are 1-based; a zero Position means "no position".
type Position struct {
	Line   int `json:"line"`
	Column int `json:"column"`
	Offset int `json:"offset"`
}

func (p Position) String() string {
	if p.Line == 0 {
		return fmt.Sprintf("offset %d", p.Offset)
	}
	return fmt.Sprintf("%d:%d", p.Line, p.Column)
}

// SourceMap resolves byte offsets to line/column positions. It indexes the
// newline offsets of a source buffer once and answers lookups by binary
// search.
type SourceMap struct {
	newlines []int
	size     int
}

// NewSourceMap builds a SourceMap for src.
func NewSourceMap(src []byte) *SourceMap {
	sm := &SourceMap{size: len(src)}
	for i, b := range src {
		if b == '\n' {
			sm.newlines = append(sm.newlines, i)
		}
	}
	return sm
}

// Position resolves a byte offset to a 1-based line/column pair.
func (sm *SourceMap) Position(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > sm.size {
		offset = sm.size
	}
	lo, hi := 0, len(sm.newlines)
	for lo < hi {
		mid := (lo + hi) / 2
		if sm.newlines[mid] < offset {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	col := offset + 1
	if lo > 0 {
		col = offset - sm.newlines[lo-1]
	}
	return Position{Line: lo + 1, Column: col, Offset: offset}
}

// SpanPosition resolves the start of a span.
func (sm *SourceMap) SpanPosition(s Span) Position {
	return sm.Position(s.Start)
}
