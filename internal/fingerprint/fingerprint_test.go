package fingerprint

import "testing"

func TestParseFpcalcOutput_ExtractsFingerprintAndDuration(t *testing.T) {
	raw := "FILE=input.wav\nDURATION=213\nFINGERPRINT=AQAAQ0mUaEkSRWWU\n"
	r, err := parseFpcalcOutput(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if r.Hex != "AQAAQ0mUaEkSRWWU" {
		t.Fatalf("hex = %q", r.Hex)
	}
	if r.Duration != 213 {
		t.Fatalf("duration = %d, want 213", r.Duration)
	}
}

func TestParseFpcalcOutput_MissingFingerprintIsError(t *testing.T) {
	if _, err := parseFpcalcOutput("DURATION=10\n"); err == nil {
		t.Fatal("expected error when FINGERPRINT line is absent")
	}
}
