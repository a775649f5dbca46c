package parser

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/reelkeep/reelkeep/internal/models"
)

// composeSourceToken and composeCodecToken map a canonical tag back to the
// scene-release token that re-parses to the same canonical value; a tag not
// listed here is emitted verbatim.
var composeSourceToken = map[string]string{
	"Blu-ray": "BluRay",
	"WEB-DL":  "WEB-DL",
	"WEBRip":  "WEBRip",
	"HDTV":    "HDTV",
	"DVDRip":  "DVDRip",
}

var composeCodecToken = map[string]string{
	"H.264": "x264",
	"HEVC":  "x265",
	"XviD":  "XviD",
	"DivX":  "DivX",
	"AV1":   "AV1",
	"VP9":   "VP9",
	"VP8":   "VP8",
}

// Compose renders a ParsedFilename back into the canonical release form
// Title.Year.SxxExx.Quality.Source.Codec-Group.ext. For names already in
// this shape it is the inverse of ParseFilename: parsing the composed name
// yields the same fields back.
func Compose(p models.ParsedFilename) string {
	var parts []string
	if p.Title != "" {
		parts = append(parts, strings.ReplaceAll(p.Title, " ", "."))
	}
	if p.Year != nil {
		parts = append(parts, strconv.Itoa(*p.Year))
	}
	if p.Season != nil && p.Episode != nil {
		se := fmt.Sprintf("S%02dE%02d", *p.Season, *p.Episode)
		if p.EpisodeEnd != nil {
			se += fmt.Sprintf("-E%02d", *p.EpisodeEnd)
		}
		parts = append(parts, se)
	}
	if p.Quality != "" {
		parts = append(parts, p.Quality)
	}
	if p.Source != "" {
		parts = append(parts, tokenFor(composeSourceToken, p.Source))
	}
	if p.Codec != "" {
		parts = append(parts, tokenFor(composeCodecToken, p.Codec))
	}

	name := strings.Join(parts, ".")
	if p.ReleaseGroup != "" {
		name += "-" + p.ReleaseGroup
	}

	ext := p.Container
	if ext == "" {
		ext = "mkv"
	}
	return name + "." + ext
}

func tokenFor(table map[string]string, canonical string) string {
	if token, ok := table[canonical]; ok {
		return token
	}
	return canonical
}
