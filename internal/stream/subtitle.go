package stream

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

// ExternalSubtitle is one discovered `<stem>[.lang].srt` file.
type ExternalSubtitle struct {
	Path     string
	Language string // "" when the filename carries no language tag
}

// knownLanguageCodes recognises the common two/three-letter codes that
// appear between a media stem and ".srt". A code
// not in this list is treated as part of the stem instead of a language tag,
// so "Movie.Director.Cut.srt" isn't misread as language "Cut".
var knownLanguageCodes = map[string]bool{
	"en": true, "eng": true,
	"hu": true, "hun": true,
	"de": true, "ger": true, "deu": true,
	"es": true, "spa": true,
	"fr": true, "fra": true, "fre": true,
	"it": true, "ita": true,
	"pt": true, "por": true,
	"ru": true, "rus": true,
	"ja": true, "jpn": true,
	"ko": true, "kor": true,
	"zh": true, "chi": true, "zho": true,
	"pl": true, "pol": true,
	"nl": true, "dut": true, "nld": true,
}

// DiscoverExternalSubtitles lists every `<stem>[.lang].srt` sibling of
// mediaPath, sorted for deterministic indexing (the subtitle endpoint
// addresses them by index 0..K-1).
func DiscoverExternalSubtitles(mediaPath string) ([]ExternalSubtitle, error) {
	dir := filepath.Dir(mediaPath)
	base := filepath.Base(mediaPath)
	stem := strings.TrimSuffix(base, filepath.Ext(base))

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("stream: list subtitle siblings of %s: %w", mediaPath, err)
	}

	var out []ExternalSubtitle
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".srt") {
			continue
		}
		if !strings.HasPrefix(name, stem) {
			continue
		}
		rest := strings.TrimSuffix(strings.TrimPrefix(name, stem), filepath.Ext(name))
		lang := ""
		if tag := strings.TrimPrefix(rest, "."); tag != rest && knownLanguageCodes[strings.ToLower(tag)] {
			lang = strings.ToLower(tag)
		} else if rest != "" {
			// A non-empty, unrecognised suffix means this file belongs to a
			// different (longer) stem, not a language tag on ours.
			continue
		}
		out = append(out, ExternalSubtitle{Path: filepath.Join(dir, name), Language: lang})
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

var srtTimecodePattern = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2}),(\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2}),(\d{3})`)

// ConvertSRTToWebVTT reads an SRT file and renders it as WebVTT: WEBVTT
// header, comma-to-period timestamp conversion, passthrough of everything
// else. offsetSeconds is subtracted from every cue so a client that seeked
// before requesting subtitles stays in sync.
func ConvertSRTToWebVTT(path string, offsetSeconds float64) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("stream: open subtitle %s: %w", path, err)
	}
	defer f.Close()

	var sb strings.Builder
	sb.WriteString("WEBVTT\n\n")

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		line = strings.TrimPrefix(line, "\xef\xbb\xbf")

		if m := srtTimecodePattern.FindStringSubmatch(line); m != nil {
			start := srtTimeToSeconds(m[1], m[2], m[3], m[4]) - offsetSeconds
			end := srtTimeToSeconds(m[5], m[6], m[7], m[8]) - offsetSeconds
			if start < 0 {
				start = 0
			}
			if end < 0 {
				end = 0
			}
			fmt.Fprintf(&sb, "%s --> %s\n", formatVTTTime(start), formatVTTTime(end))
			continue
		}

		sb.WriteString(line)
		sb.WriteString("\n")
	}

	return sb.String(), scanner.Err()
}

func srtTimeToSeconds(hh, mm, ss, ms string) float64 {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	milli, _ := strconv.Atoi(ms)
	return float64(h*3600+m*60+s) + float64(milli)/1000.0
}

func formatVTTTime(seconds float64) string {
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
	return fmt.Sprintf("%02d:%02d:%02d.%03d", h, m, s, ms)
}

// ExtractEmbeddedSubtitle converts an embedded subtitle stream to WebVTT via
// ffmpeg, for indexes at or beyond the external-subtitle count.
func ExtractEmbeddedSubtitle(ffmpegPath, mediaPath string, streamIndex int) (string, error) {
	args := []string{
		"-hide_banner", "-v", "error",
		"-i", mediaPath,
		"-map", fmt.Sprintf("0:%d", streamIndex),
		"-f", "webvtt",
		"pipe:",
	}
	out, err := runCapture(ffmpegPath, args)
	if err != nil {
		return "", fmt.Errorf("stream: extract embedded subtitle: %w", err)
	}
	return string(out), nil
}
