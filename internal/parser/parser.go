// Package parser implements the release-filename tokenizer: scan the
// stem for every recognised pattern, resolve overlapping candidates by
// priority, length and position, then derive the remaining structured
// fields (title, season, episode, quality, ...) from what's left over.
//
// Matching uses independent regex scan passes feeding a single
// conflict-resolution pass, rather than one monolithic regular
// expression.
package parser

import (
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/reelkeep/reelkeep/internal/models"
)

// Match is an exported view of a resolved token, matching models.Match.
type Match = models.Match

// candidate is an internal, not-yet-resolved token produced during the
// tokenize pass. start/end are byte offsets into the stem being parsed.
type candidate struct {
	start, end int
	category   matchCategory
	value      string
	raw        string
	groups     []string
}

// ParseFilename runs the full tokenize -> resolve -> derive pipeline on a
// single filename (with or without a directory component).
func ParseFilename(name string) models.ParsedFilename {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(filepath.Base(name), ext)

	candidates := tokenize(stem)
	accepted := resolveConflicts(candidates, len(stem))
	parsed := deriveFields(stem, accepted)
	parsed.Container = strings.ToLower(strings.TrimPrefix(ext, "."))
	return parsed
}

// IsVideoFile reports whether name has a recognised video container
// extension, used by the scan pipeline to decide whether a directory entry
// is worth parsing at all.
func IsVideoFile(name string) bool {
	return videoContainers[strings.ToLower(filepath.Ext(name))]
}

// shortUniformCaseWord matches a leading title word of at most 5 characters
// that is either all-lowercase or all-uppercase — often a fragment of a
// truncated or abbreviated filename, e.g. "walle-bttf.iii.720.mkv".
var shortUniformCaseWord = regexp.MustCompile(`^([a-z]{1,5}|[A-Z]{1,5})(\s|$)`)

// ParseWithFolder applies the folder-first fallback rule: when the
// filename parse is "poor", fields are re-derived against the nearest
// non-structural, non-root parent folder name and merged in. The folder
// result only wins a field it shares with the filename result when it has
// a strictly longer title, supplies a year the filename lacks, or exceeds
// the filename's confidence by more than 10; ties keep the filename.
func ParseWithFolder(path string) models.ParsedFilename {
	filenameResult := ParseFilename(path)
	if !isPoor(filenameResult) {
		return filenameResult
	}

	folder := ""
	for dir := filepath.Dir(path); ; dir = filepath.Dir(dir) {
		name := filepath.Base(dir)
		if name == "." || name == "/" || mediaRootPattern.MatchString(name) {
			break
		}
		if !structuralFolderPattern.MatchString(name) {
			folder = name
			break
		}
	}
	if folder == "" {
		return filenameResult
	}

	folderResult := ParseFilename(folder)
	return mergeFolderFallback(filenameResult, folderResult)
}

// isPoor reports whether a parse is missing enough structural information
// that the parent folder name is worth consulting.
func isPoor(p models.ParsedFilename) bool {
	if p.Confidence < 60 {
		return true
	}
	if len(p.Title) <= 2 {
		return true
	}
	if shortUniformCaseWord.MatchString(p.Title) {
		return true
	}
	if resolutionInTitlePattern.MatchString(p.Title) {
		return true
	}
	lowerTitle := strings.ToLower(p.Title)
	for _, group := range sceneGroupSubstrings {
		if strings.Contains(lowerTitle, group) {
			return true
		}
	}
	if p.MediaType == models.MediaTypeUnknown && p.Year == nil {
		return true
	}
	return false
}

// mergeFolderFallback applies the "strictly better" rule: the
// folder only overrides a field the filename also produced when it is
// decisively better; it always fills a field the filename left empty.
func mergeFolderFallback(file, folder models.ParsedFilename) models.ParsedFilename {
	out := file

	folderWins := len(folder.Title) > len(out.Title) ||
		(out.Year == nil && folder.Year != nil) ||
		folder.Confidence > out.Confidence+10

	if out.Title == "" || (folderWins && folder.Title != "") {
		out.Title = folder.Title
	}
	if out.Year == nil {
		out.Year = folder.Year
	}
	// Season/episode numbers always prefer the filename; the
	// folder only supplies them when the filename has none at all.
	if out.Season == nil {
		out.Season = folder.Season
	}
	if out.Episode == nil {
		out.Episode = folder.Episode
	}
	if out.EpisodeEnd == nil {
		out.EpisodeEnd = folder.EpisodeEnd
	}
	if out.Quality == "" {
		out.Quality = folder.Quality
	}
	if out.Source == "" {
		out.Source = folder.Source
	}
	if out.MediaType == models.MediaTypeUnknown {
		out.MediaType = folder.MediaType
	}
	return out
}

// tokenize runs every category pattern over the stem and returns every
// raw match found, without resolving overlaps yet.
func tokenize(stem string) []candidate {
	var out []candidate

	out = append(out, matchYear(stem)...)
	out = append(out, matchEpisode(stem)...)
	out = append(out, matchSeasonOnly(stem)...)
	out = append(out, matchSingle(stem, qualityPattern, catQuality, nil)...)
	out = append(out, matchSingle(stem, sourcePattern, catSource, canonicalize(sourceCanonical))...)
	out = append(out, matchAllCanonical(stem, codecPattern, catCodec, codecCanonical)...)
	out = append(out, matchAllCanonical(stem, audioPattern, catAudio, audioCanonical)...)
	out = append(out, matchAllCanonical(stem, languagePattern, catLanguage, languageCanonical)...)
	out = append(out, matchReleaseGroup(stem)...)
	out = append(out, matchAllCanonical(stem, noisePattern, catNoise, nil)...)

	return out
}

func canonicalize(table map[string]string) func(string) string {
	return func(s string) string {
		if v, ok := table[strings.ToLower(s)]; ok {
			return v
		}
		return s
	}
}

func matchYear(stem string) []candidate {
	var out []candidate
	for _, m := range yearPattern.FindAllStringSubmatchIndex(stem, -1) {
		start, end := m[2], m[3]
		raw := stem[start:end]
		out = append(out, candidate{start: start, end: end, category: catYear, value: raw, raw: raw})
	}
	return out
}

func matchEpisode(stem string) []candidate {
	var out []candidate
	for _, m := range episodePattern.FindAllStringSubmatchIndex(stem, -1) {
		full := m[0:2]
		season := stem[m[2]:m[3]]
		episode := stem[m[4]:m[5]]
		episodeEnd := ""
		if m[6] >= 0 {
			episodeEnd = stem[m[6]:m[7]]
		}
		value := season + "|" + episode + "|" + episodeEnd
		out = append(out, candidate{
			start: full[0], end: full[1], category: catEpisode,
			value: value, raw: stem[full[0]:full[1]],
		})
	}
	if len(out) > 0 {
		return out
	}
	// Only fall back to the 1x05 convention when no SxxExx form matched.
	for _, m := range altEpisodePattern.FindAllStringSubmatchIndex(stem, -1) {
		season := stem[m[2]:m[3]]
		episode := stem[m[4]:m[5]]
		value := season + "|" + episode + "|"
		out = append(out, candidate{
			start: m[0], end: m[1], category: catEpisode,
			value: value, raw: stem[m[0]:m[1]],
		})
	}
	return out
}

func matchSeasonOnly(stem string) []candidate {
	var out []candidate
	for _, m := range seasonOnlyPattern.FindAllStringSubmatchIndex(stem, -1) {
		season := stem[m[2]:m[3]]
		out = append(out, candidate{start: m[0], end: m[1], category: catSeason, value: season, raw: stem[m[0]:m[1]]})
	}
	if len(out) > 0 {
		return out
	}
	for _, m := range seasonBarePattern.FindAllStringSubmatchIndex(stem, -1) {
		season := stem[m[2]:m[3]]
		out = append(out, candidate{start: m[0], end: m[1], category: catSeason, value: season, raw: stem[m[0]:m[1]]})
	}
	return out
}

// matchSingle captures the first submatch group of every hit for a pattern
// that represents a single canonical value per token. The scan resumes at
// the end of the captured token rather than the end of the full match, so
// the trailing delimiter a match consumes still serves as the leading
// delimiter of an immediately following token ("Hun.Eng", "DTS.AC3").
func matchSingle(stem string, pattern *regexp.Regexp, category matchCategory, canon func(string) string) []candidate {
	var out []candidate
	pos := 0
	for pos < len(stem) {
		m := pattern.FindStringSubmatchIndex(stem[pos:])
		if m == nil {
			break
		}
		start, end := pos+m[2], pos+m[3]
		raw := stem[start:end]
		value := raw
		if canon != nil {
			value = canon(raw)
		}
		out = append(out, candidate{start: start, end: end, category: category, value: value, raw: raw})
		pos = end
	}
	return out
}

// matchAllCanonical is matchSingle for categories that may legitimately
// appear more than once in the same filename (audio, language, noise).
func matchAllCanonical(stem string, pattern *regexp.Regexp, category matchCategory, table map[string]string) []candidate {
	return matchSingle(stem, pattern, category, canonicalize(table))
}

func matchReleaseGroup(stem string) []candidate {
	m := releaseGroupPattern.FindStringSubmatchIndex(stem)
	if m == nil {
		return nil
	}
	raw := stem[m[2]:m[3]]
	// A release group made entirely of digits is almost always a year or
	// episode number accidentally trailing a dash; skip it.
	if isAllDigits(raw) {
		return nil
	}
	return []candidate{{start: m[2], end: m[3], category: catReleaseGroup, value: raw, raw: raw}}
}

func isAllDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}

// resolveConflicts sorts candidates by category
// priority (descending), then by match length (descending), then by start
// offset (ascending); accept each in turn unless it overlaps an
// already-accepted match.
func resolveConflicts(candidates []candidate, stemLen int) []candidate {
	sorted := make([]candidate, len(candidates))
	copy(sorted, candidates)

	sort.SliceStable(sorted, func(i, j int) bool {
		pi, pj := categoryPriority[sorted[i].category], categoryPriority[sorted[j].category]
		if pi != pj {
			return pi > pj
		}
		li, lj := sorted[i].end-sorted[i].start, sorted[j].end-sorted[j].start
		if li != lj {
			return li > lj
		}
		return sorted[i].start < sorted[j].start
	})

	var accepted []candidate
	occupied := make([]bool, stemLen)

	for _, c := range sorted {
		if overlaps(occupied, c.start, c.end) {
			continue
		}
		for i := c.start; i < c.end && i < stemLen; i++ {
			occupied[i] = true
		}
		accepted = append(accepted, c)
	}

	sort.Slice(accepted, func(i, j int) bool { return accepted[i].start < accepted[j].start })
	return accepted
}

func overlaps(occupied []bool, start, end int) bool {
	for i := start; i < end && i < len(occupied); i++ {
		if occupied[i] {
			return true
		}
	}
	return false
}
