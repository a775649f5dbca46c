package subtitles

import (
	"bufio"
	"fmt"
	"os"

	"github.com/reelkeep/reelkeep/internal/models"
)

// writeSRTFile serialises segments to path in SubRip format: index line,
// time line, text line, blank separator.
func writeSRTFile(path string, segments []models.TranscriptionSegment) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	defer w.Flush()

	for i, seg := range segments {
		fmt.Fprintf(w, "%d\n", i+1)
		fmt.Fprintf(w, "%s --> %s\n", formatSRTTime(seg.StartTime), formatSRTTime(seg.EndTime))
		fmt.Fprintf(w, "%s\n\n", seg.Text)
	}
	return nil
}

// formatSRTTime renders seconds as SubRip's HH:MM:SS,mmm.
func formatSRTTime(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	totalMillis := int64(seconds*1000 + 0.5)
	ms := totalMillis % 1000
	totalSeconds := totalMillis / 1000
	s := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	m := totalMinutes % 60
	h := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, ms)
}
