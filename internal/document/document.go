// Package document implements the in-memory text buffer that backs every
// open Smithy or build file. It tracks a byte-offset line index alongside
// the text so that positional edits (the shape of an LSP
// textDocument/didChange notification) and byte-offset lookups (the shape
// the model assembler wants) stay cheap after every keystroke.
package document

import (
	"fmt"
	"strings"
)

// Position is a zero-based (line, character) location in a Document.
// Character is a byte offset within the line; Smithy source is treated as
// single-byte-per-character for simplicity (no surrogate-pair handling).
type Position struct {
	Line      int
	Character int
}

// Range is a half-open span between two Positions: Start is inclusive
// and End is exclusive (the character at End is not part of the span),
// matching textDocument/didChange's range semantics.
type Range struct {
	Start Position
	End   Position
}

// isIDChar reports whether b belongs to the shape-id token grammar: alphanumerics, underscore, dot,
// hash (absolute shape id separator) and dollar (member/mixin sigils).
func isIDChar(b byte) bool {
	switch {
	case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		return true
	case b == '_' || b == '.' || b == '#' || b == '$':
		return true
	default:
		return false
	}
}

// ID is a positional slice into a Document: the span and text of a
// shape-id or JSON-pointer token found under some cursor position.
type ID struct {
	Start Position
	End   Position
	Text  string
}

// Document is a mutable text buffer addressable by both byte offset and
// (line, character) position. The line index (lineStarts) is kept
// consistent with the text after every edit.
//
// Invariant: lineStarts[0] == 0 and lineStarts[i] is the byte offset of the
// first character of line i.
type Document struct {
	text       []byte
	lineStarts []int
}

// New creates a Document from its initial full text.
func New(text string) *Document {
	d := &Document{}
	d.setText([]byte(text))
	return d
}

func (d *Document) setText(text []byte) {
	d.text = text
	d.lineStarts = computeLineStarts(text)
}

func computeLineStarts(text []byte) []int {
	starts := make([]int, 1, 16)
	starts[0] = 0
	for i, b := range text {
		if b == '\n' {
			starts = append(starts, i+1)
		}
	}
	return starts
}

// ApplyEdit replaces the text in rng with newText. A nil rng replaces the
// entire buffer (the shape of a full-document-sync didChange event).
//
// The line index is updated incrementally: only the line-start entries
// inside the edited range are recomputed from newText; entries after the
// edit are shifted by the length delta, never rescanned.
func (d *Document) ApplyEdit(rng *Range, newText string) error {
	if rng == nil {
		d.setText([]byte(newText))
		return nil
	}

	startOffset, ok := d.IndexOfPosition(rng.Start)
	if !ok {
		return fmt.Errorf("document: start position %+v out of range", rng.Start)
	}
	endOffset, ok := d.IndexOfPosition(rng.End)
	if !ok {
		return fmt.Errorf("document: end position %+v out of range", rng.End)
	}
	if endOffset < startOffset {
		return fmt.Errorf("document: range end %+v precedes start %+v", rng.End, rng.Start)
	}

	inserted := []byte(newText)
	newTextBytes := make([]byte, 0, len(d.text)-(endOffset-startOffset)+len(inserted))
	newTextBytes = append(newTextBytes, d.text[:startOffset]...)
	newTextBytes = append(newTextBytes, inserted...)
	newTextBytes = append(newTextBytes, d.text[endOffset:]...)

	delta := len(inserted) - (endOffset - startOffset)

	// Line starts strictly before rng.Start.Line+1 are untouched.
	headEnd := rng.Start.Line + 1
	head := append([]int(nil), d.lineStarts[:headEnd]...)

	// Recompute line starts introduced by the inserted text, offset from startOffset.
	var mid []int
	for i, b := range inserted {
		if b == '\n' {
			mid = append(mid, startOffset+i+1)
		}
	}

	// Line starts after rng.End.Line survive, shifted by delta.
	tailStart := rng.End.Line + 1
	var tail []int
	if tailStart < len(d.lineStarts) {
		tail = make([]int, len(d.lineStarts)-tailStart)
		for i, v := range d.lineStarts[tailStart:] {
			tail[i] = v + delta
		}
	}

	d.lineStarts = append(head, append(mid, tail...)...)
	d.text = newTextBytes
	return nil
}

// IndexOfPosition converts a (line, character) position into a byte
// offset. Returns false if the position is outside the document.
func (d *Document) IndexOfPosition(pos Position) (int, bool) {
	if pos.Line < 0 || pos.Line >= len(d.lineStarts) {
		return 0, false
	}
	lineStart := d.lineStarts[pos.Line]
	lineLen := d.lineLength(pos.Line)
	if pos.Character < 0 || pos.Character > lineLen {
		return 0, false
	}
	return lineStart + pos.Character, true
}

func (d *Document) lineLength(line int) int {
	start := d.lineStarts[line]
	var end int
	if line+1 < len(d.lineStarts) {
		end = d.lineStarts[line+1]
		// Exclude the trailing newline from the line's length.
		if end > start && d.text[end-1] == '\n' {
			end--
		}
	} else {
		end = len(d.text)
	}
	return end - start
}

// PositionOfIndex converts a byte offset into a (line, character) position.
func (d *Document) PositionOfIndex(offset int) Position {
	if offset < 0 {
		offset = 0
	}
	if offset > len(d.text) {
		offset = len(d.text)
	}
	// Binary search for the line containing offset.
	lo, hi := 0, len(d.lineStarts)-1
	for lo < hi {
		mid := (lo + hi + 1) / 2
		if d.lineStarts[mid] <= offset {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return Position{Line: lo, Character: offset - d.lineStarts[lo]}
}

// LineEnd returns the position at the end of the given line (before its
// trailing newline, if any).
func (d *Document) LineEnd(line int) Position {
	if line < 0 {
		line = 0
	}
	if line >= len(d.lineStarts) {
		line = len(d.lineStarts) - 1
	}
	return Position{Line: line, Character: d.lineLength(line)}
}

// End returns the position just past the last character of the document.
func (d *Document) End() Position {
	return d.PositionOfIndex(len(d.text))
}

// CopyText returns a copy of the document's full text.
func (d *Document) CopyText() string {
	return string(d.text)
}

// LineCount returns the number of lines in the document.
func (d *Document) LineCount() int {
	return len(d.lineStarts)
}

// CopyDocumentID returns the shape-id or JSON-pointer token under pos, or
// nil if pos is not within such a token.
func (d *Document) CopyDocumentID(pos Position) *ID {
	offset, ok := d.IndexOfPosition(pos)
	if !ok {
		return nil
	}
	if offset >= len(d.text) || !isIDChar(d.text[offset]) {
		return nil
	}

	start := offset
	for start > 0 && isIDChar(d.text[start-1]) {
		start--
	}
	end := offset
	for end < len(d.text) && isIDChar(d.text[end]) {
		end++
	}
	if start == end {
		return nil
	}

	text := string(d.text[start:end])
	if strings.TrimSpace(text) == "" {
		return nil
	}

	return &ID{
		Start: d.PositionOfIndex(start),
		End:   d.PositionOfIndex(end),
		Text:  text,
	}
}
