// Package fingerprint computes the chromaprint-style audio fingerprint the
// subtitle pipeline records alongside every generated subtitle, so a
// regenerated subtitle can later be matched back to the audio it was
// transcribed from even if the video file was renamed or moved. It takes a
// context since subtitle generation runs under the GPU guard's cancellable
// scope.
package fingerprint

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Result is the fingerprint and duration fpcalc reports for one file.
type Result struct {
	Hex      string
	Duration int
}

// Fingerprinter invokes the external fpcalc (chromaprint) binary.
type Fingerprinter struct {
	binPath string
}

func New(binPath string) *Fingerprinter {
	if binPath == "" {
		binPath = "fpcalc"
	}
	return &Fingerprinter{binPath: binPath}
}

// Compute runs fpcalc against filePath and parses its FINGERPRINT/DURATION
// output lines.
func (f *Fingerprinter) Compute(ctx context.Context, filePath string) (*Result, error) {
	cmd := exec.CommandContext(ctx, f.binPath, filePath)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("fpcalc: %w", err)
	}
	return parseFpcalcOutput(string(out))
}

func parseFpcalcOutput(raw string) (*Result, error) {
	var result Result
	for _, line := range strings.Split(raw, "\n") {
		switch {
		case strings.HasPrefix(line, "FINGERPRINT="):
			result.Hex = strings.TrimPrefix(line, "FINGERPRINT=")
		case strings.HasPrefix(line, "DURATION="):
			if d, err := strconv.Atoi(strings.TrimPrefix(line, "DURATION=")); err == nil {
				result.Duration = d
			}
		}
	}
	if result.Hex == "" {
		return nil, fmt.Errorf("fpcalc: no fingerprint in output")
	}
	return &result, nil
}
