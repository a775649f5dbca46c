package subtitles

import (
	"strings"

	"golang.org/x/text/language"

	"github.com/reelkeep/reelkeep/internal/ffmpeg"
)

// languageAliases are the common non-BCP-47 spellings the
// batch use case's audio-track preference has to recognise.
// golang.org/x/text/language.ParseBase already folds the ISO
// 639-1/639-2 codes (hu/hun, en/eng, ...) into the same language.Base, so
// this table only needs to carry the full-name spellings ffprobe's language
// tag never contains but a user-facing preference string might.
var languageAliases = map[string]string{
	"hungarian": "hu",
	"english":   "en",
	"german":    "de",
	"spanish":   "es",
	"french":    "fr",
	"italian":   "it",
	"japanese":  "ja",
	"korean":    "ko",
	"chinese":   "zh",
	"russian":   "ru",
	"polish":    "pl",
	"dutch":     "nl",
	"portuguese": "pt",
}

// baseLanguage resolves a user- or ffprobe-supplied language string (a BCP-47
// tag, an ISO 639-2 code, or a full English name) down to its ISO 639-1 base
// subtag for comparison. Unrecognised input normalises to its lowercase form
// so two unrecognised-but-identical strings still compare equal.
func baseLanguage(code string) string {
	code = strings.ToLower(strings.TrimSpace(code))
	if code == "" {
		return ""
	}
	if alias, ok := languageAliases[code]; ok {
		code = alias
	}
	if base, err := language.ParseBase(code); err == nil {
		return base.String()
	}
	return code
}

// SelectAudioTrack picks the audio stream to transcribe, in preference
// order: an exact match on the preferred language (accepting its
// common aliases), else the stream ffprobe's disposition marks default, else
// stream index 0. It returns the audio-relative index (position within
// tracks, not the overall ffprobe stream index) since that's what both the
// STT adapter and the "0:a:N" ffmpeg selector expect.
func SelectAudioTrack(tracks []ffmpeg.AudioTrack, preferredLanguage string) int {
	if len(tracks) == 0 {
		return 0
	}
	if preferredLanguage != "" {
		want := baseLanguage(preferredLanguage)
		for i, t := range tracks {
			if baseLanguage(t.Language) == want {
				return i
			}
		}
	}
	for i, t := range tracks {
		if t.Default {
			return i
		}
	}
	return 0
}
