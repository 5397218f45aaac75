package transcribe

import "testing"

func TestAppendChunkTextJoinsWithSingleSpace(t *testing.T) {
	got := appendChunkText("hello world", "this is next")
	want := "hello world this is next"
	if got != want {
		t.Fatalf("appendChunkText = %q, want %q", got, want)
	}
}

func TestAppendChunkTextDropsDuplicatedBoundaryToken(t *testing.T) {
	got := appendChunkText("the quick brown", "brown fox jumps")
	want := "the quick brown fox jumps"
	if got != want {
		t.Fatalf("appendChunkText = %q, want %q", got, want)
	}
}

func TestAppendChunkTextBoundaryDedupeIsCaseInsensitive(t *testing.T) {
	got := appendChunkText("and then Boston", "boston was cold")
	want := "and then Boston was cold"
	if got != want {
		t.Fatalf("appendChunkText = %q, want %q", got, want)
	}
}

func TestAppendChunkTextHandlesEmptyInputs(t *testing.T) {
	if got := appendChunkText("", "  first chunk  "); got != "first chunk" {
		t.Fatalf("empty buffer: got %q", got)
	}
	if got := appendChunkText("existing text", "   "); got != "existing text" {
		t.Fatalf("blank chunk: got %q", got)
	}
	if got := appendChunkText("solo", "solo"); got != "solo" {
		t.Fatalf("fully duplicated chunk: got %q", got)
	}
}

func TestCountWordsUsesAssembledText(t *testing.T) {
	text := appendChunkText("one two three", "three four")
	if got := countWords(text); got != 4 {
		t.Fatalf("countWords(%q) = %d, want 4", text, got)
	}
	if got := countWords(""); got != 0 {
		t.Fatalf("countWords empty = %d, want 0", got)
	}
}
