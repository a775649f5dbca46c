package translator

import (
	"strings"
	"testing"
)

func TestBuildPrompt_NamesLanguagesAndNumbersLines(t *testing.T) {
	prompt := buildPrompt([]string{"Hello", "Goodbye"}, "en", "hu")
	if !strings.Contains(prompt, "English") || !strings.Contains(prompt, "Hungarian") {
		t.Fatalf("prompt should name both languages: %s", prompt)
	}
	if !strings.Contains(prompt, "[1] Hello") || !strings.Contains(prompt, "[2] Goodbye") {
		t.Fatalf("prompt should number each line: %s", prompt)
	}
	if !strings.Contains(prompt, "tegezés") {
		t.Fatalf("expected the Hungarian style hint, got: %s", prompt)
	}
}

func TestBuildPrompt_UnknownTargetUsesGenericStyleHint(t *testing.T) {
	prompt := buildPrompt([]string{"Hi"}, "en", "fi")
	if !strings.Contains(prompt, genericStyleHint) {
		t.Fatalf("expected generic style hint for an unmapped target language, got: %s", prompt)
	}
}

func TestParseResponse_BracketFormat(t *testing.T) {
	raw := "[1] Szia\n[2] Viszlát\n"
	got := parseResponse(raw, 2)
	want := []string{"Szia", "Viszlát"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("line %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestParseResponse_FallsBackToNewlineSplitWhenBracketsIncomplete(t *testing.T) {
	raw := "Szia\nViszlát\n"
	got := parseResponse(raw, 2)
	if got[0] != "Szia" || got[1] != "Viszlát" {
		t.Fatalf("unexpected fallback parse: %+v", got)
	}
}

func TestParseResponse_PadsShortOutputWithEmptyStrings(t *testing.T) {
	raw := "[1] Szia\n"
	got := parseResponse(raw, 3)
	if len(got) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(got))
	}
	if got[0] != "Szia" || got[1] != "" || got[2] != "" {
		t.Fatalf("unexpected padded result: %+v", got)
	}
}

func TestParseResponse_StripsLeadingIndexInFallback(t *testing.T) {
	raw := "[1] Szia\nViszlát\n"
	// First line is well-formed bracket syntax but the second is missing its
	// bracket, so the strict bracket pass is incomplete and falls back.
	got := parseResponse(raw, 2)
	if got[0] != "Szia" || got[1] != "Viszlát" {
		t.Fatalf("unexpected result: %+v", got)
	}
}

func TestLanguageName_FallsBackToUppercasedCode(t *testing.T) {
	if got := languageName("xx"); got != "XX" {
		t.Fatalf("languageName(xx) = %q, want XX", got)
	}
	if got := languageName("hu"); got != "Hungarian" {
		t.Fatalf("languageName(hu) = %q, want Hungarian", got)
	}
}
