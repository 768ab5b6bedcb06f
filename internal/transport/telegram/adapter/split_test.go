package adapter

import (
	"strings"
	"testing"
)

func TestSplitTelegramTextShort(t *testing.T) {
	got := splitTelegramText("hello", 10)
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %#v", got)
	}
	// empty input stays a single empty chunk
	got = splitTelegramText("", 10)
	if len(got) != 1 || got[0] != "" {
		t.Fatalf("got %#v", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	lines := []string{
		strings.Repeat("a", 40),
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
	}
	s := strings.Join(lines, "\n")

	got := splitTelegramText(s, 100)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2: %#v", len(got), got)
	}
	// the first cut lands on the newline after line two, not mid-line
	if got[0] != lines[0]+"\n"+lines[1] {
		t.Fatalf("first chunk = %q", got[0])
	}
	if got[1] != lines[2] {
		t.Fatalf("second chunk = %q", got[1])
	}
}

func TestSplitTelegramTextHardSplit(t *testing.T) {
	s := strings.Repeat("x", 250)
	got := splitTelegramText(s, 100)
	if len(got) != 3 {
		t.Fatalf("chunks = %d, want 3", len(got))
	}
	var total int
	for i, c := range got {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk %d exceeds limit: %d runes", i, len([]rune(c)))
		}
		total += len(c)
	}
	if total != 250 {
		t.Fatalf("content lost: %d of 250 chars", total)
	}
}

func TestSplitTelegramTextMultibyte(t *testing.T) {
	s := strings.Repeat("电", 150)
	got := splitTelegramText(s, 100)
	if len(got) != 2 {
		t.Fatalf("chunks = %d, want 2", len(got))
	}
	if n := len([]rune(got[0])); n != 100 {
		t.Fatalf("first chunk = %d runes, want 100", n)
	}
	if n := len([]rune(got[1])); n != 50 {
		t.Fatalf("second chunk = %d runes, want 50", n)
	}
}

func TestSplitTelegramTextNoEmptyChunks(t *testing.T) {
	s := strings.Repeat("a", 90) + "\n\n\n" + strings.Repeat("b", 90)
	for _, c := range splitTelegramText(s, 100) {
		if c == "" {
			t.Fatalf("empty chunk produced")
		}
	}
}
