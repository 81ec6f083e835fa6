package document

import "testing"

func TestApplyEditFullReplace(t *testing.T) {
	d := New("hello\nworld\n")
	if err := d.ApplyEdit(nil, "foo\nbar\nbaz\n"); err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}
	if got := d.CopyText(); got != "foo\nbar\nbaz\n" {
		t.Fatalf("CopyText = %q", got)
	}
	if got := d.LineCount(); got != 4 {
		t.Fatalf("LineCount = %d, want 4", got)
	}
}

func TestApplyEditSingleCharInsert(t *testing.T) {
	d := New("abc\ndef\n")
	// Insert "X" at line 0, char 1 ("aXbc\ndef\n").
	err := d.ApplyEdit(&Range{
		Start: Position{Line: 0, Character: 1},
		End:   Position{Line: 0, Character: 1},
	}, "X")
	if err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}
	if got := d.CopyText(); got != "aXbc\ndef\n" {
		t.Fatalf("CopyText = %q", got)
	}
	pos := d.PositionOfIndex(5) // 'd' in "def"
	if pos.Line != 1 || pos.Character != 0 {
		t.Fatalf("PositionOfIndex(5) = %+v", pos)
	}
}

func TestApplyEditSpanningLines(t *testing.T) {
	d := New("one\ntwo\nthree\nfour\n")
	// Replace "two\nthree" with "TWOTHREE".
	err := d.ApplyEdit(&Range{
		Start: Position{Line: 1, Character: 0},
		End:   Position{Line: 2, Character: 5},
	}, "TWOTHREE")
	if err != nil {
		t.Fatalf("ApplyEdit: %v", err)
	}
	want := "one\nTWOTHREE\nfour\n"
	if got := d.CopyText(); got != want {
		t.Fatalf("CopyText = %q, want %q", got, want)
	}
	if got := d.LineCount(); got != 4 {
		t.Fatalf("LineCount = %d, want 4", got)
	}
	end := d.LineEnd(1)
	if end.Character != len("TWOTHREE") {
		t.Fatalf("LineEnd(1) = %+v", end)
	}
}

func TestIndexOfPositionRoundTrip(t *testing.T) {
	d := New("namespace com.foo\nstring Bar\n")
	offset, ok := d.IndexOfPosition(Position{Line: 1, Character: 7})
	if !ok {
		t.Fatal("IndexOfPosition: out of range")
	}
	pos := d.PositionOfIndex(offset)
	if pos.Line != 1 || pos.Character != 7 {
		t.Fatalf("round trip = %+v", pos)
	}
}

func TestIndexOfPositionOutOfRange(t *testing.T) {
	d := New("abc\n")
	if _, ok := d.IndexOfPosition(Position{Line: 5, Character: 0}); ok {
		t.Fatal("expected out-of-range position to fail")
	}
	if _, ok := d.IndexOfPosition(Position{Line: 0, Character: 100}); ok {
		t.Fatal("expected out-of-range character to fail")
	}
}

func TestCopyDocumentID(t *testing.T) {
	d := New("apply com.foo#Bar @length(min: 1)\n")
	id := d.CopyDocumentID(Position{Line: 0, Character: 10})
	if id == nil {
		t.Fatal("expected a document id")
	}
	if id.Text != "com.foo#Bar" {
		t.Fatalf("CopyDocumentID text = %q", id.Text)
	}
}

func TestCopyDocumentIDOnWhitespace(t *testing.T) {
	d := New("foo bar\n")
	if id := d.CopyDocumentID(Position{Line: 0, Character: 3}); id != nil {
		t.Fatalf("expected nil id on whitespace, got %+v", id)
	}
}

func TestEnd(t *testing.T) {
	d := New("abc\ndef")
	end := d.End()
	if end.Line != 1 || end.Character != 3 {
		t.Fatalf("End = %+v", end)
	}
}

func TestApplyEditInvalidRange(t *testing.T) {
	d := New("abc\n")
	err := d.ApplyEdit(&Range{
		Start: Position{Line: 0, Character: 1},
		End:   Position{Line: 0, Character: 0},
	}, "x")
	if err == nil {
		t.Fatal("expected error for inverted range")
	}
}
