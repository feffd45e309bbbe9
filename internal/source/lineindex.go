// Package source maps byte offsets in peri source text to lines and columns
// and extracts the line excerpts shown in diagnostics.
package source

import (
	"sort"
	"strings"
)

// LineIndex provides byte offset to line/column conversion.
// It pre-computes line start positions for O(log n) lookups.
type LineIndex struct {
	source     string
	lineStarts []int // byte offset of each line start
}

// NewLineIndex creates a LineIndex for the given source.
func NewLineIndex(source string) *LineIndex {
	idx := &LineIndex{
		source:     source,
		lineStarts: []int{0},
	}

	for i := 0; i < len(source); i++ {
		switch source[i] {
		case '\n':
			if i+1 < len(source) {
				idx.lineStarts = append(idx.lineStarts, i+1)
			}
		case '\r':
			if i+1 < len(source) && source[i+1] == '\n' {
				i++
			}
			if i+1 < len(source) {
				idx.lineStarts = append(idx.lineStarts, i+1)
			}
		}
	}

	return idx
}

// LineCount returns the number of lines in the source.
func (idx *LineIndex) LineCount() int {
	return len(idx.lineStarts)
}

// ByteOffsetToLineColumn converts a byte offset to 0-indexed line and column.
// The column is in bytes. Offsets past the end clamp to the end of source.
func (idx *LineIndex) ByteOffsetToLineColumn(offset int) (line, col int) {
	if offset < 0 {
		return 0, 0
	}
	if offset > len(idx.source) {
		offset = len(idx.source)
	}

	line = sort.Search(len(idx.lineStarts), func(i int) bool {
		return idx.lineStarts[i] > offset
	}) - 1
	if line < 0 {
		line = 0
	}

	return line, offset - idx.lineStarts[line]
}

// Position returns the 1-based line and column for a byte offset.
func (idx *LineIndex) Position(offset int) (line, col int) {
	line, col = idx.ByteOffsetToLineColumn(offset)
	return line + 1, col + 1
}

// LineText returns the text of a 0-indexed line without its terminator.
func (idx *LineIndex) LineText(line int) string {
	if line < 0 || line >= len(idx.lineStarts) {
		return ""
	}
	start := idx.lineStarts[line]
	end := len(idx.source)
	if line+1 < len(idx.lineStarts) {
		end = idx.lineStarts[line+1]
	}
	return strings.TrimRight(idx.source[start:end], "\r\n")
}

// LineEnd returns the byte offset where a 0-indexed line's text ends.
func (idx *LineIndex) LineEnd(line int) int {
	if line < 0 || line >= len(idx.lineStarts) {
		return len(idx.source)
	}
	return idx.lineStarts[line] + len(idx.LineText(line))
}
