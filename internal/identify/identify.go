// Package identify composes the filename parser with folder context and a
// few structural heuristics to produce an IdentificationResult.
package identify

import (
	"path/filepath"
	"regexp"
	"strings"

	"github.com/reelkeep/reelkeep/internal/models"
	"github.com/reelkeep/reelkeep/internal/parser"
)

// seasonFolderPattern recognises a "Season N" parent folder for the type
// coercion rule: a file of unknown type under such a folder is an episode.
var seasonFolderPattern = regexp.MustCompile(`(?i)^season[\.\s_]?(\d{1,3})$`)

// animeStudioTokens are well-known fansub/studio names that mark a release
// as anime even without an "/anime/" path segment.
var animeStudioTokens = []string{
	"horriblesubs", "subsplease", "erai-raws", "judas", "asenshi",
}

// IdentifyContent implements the C3 contract: path -> IdentificationResult.
// It never fails; an unparseable path degrades to MediaTypeUnknown.
func IdentifyContent(path string) models.IdentificationResult {
	parsed := parser.ParseWithFolder(path)

	result := models.IdentificationResult{
		MediaType: parsed.MediaType,
		Title:     parsed.Title,
		Year:      parsed.Year,
		Season:    parsed.Season,
		Episode:   parsed.Episode,
	}

	applySeasonFolderCoercion(&result, path)
	applyMultiEpisodeExpansion(&result, parsed)
	applyAnimeHeuristic(&result, path)

	if result.MediaType == models.MediaTypeEpisode {
		result.SeriesName = parsed.Title
	}

	if result.Year != nil {
		result.Strategy = models.StrategyFilenameWithYear
	} else {
		result.Strategy = models.StrategyFilenameOnly
	}

	return result
}

// applySeasonFolderCoercion reclassifies an unknown-type file as an
// episode when its direct parent folder is a bare season marker (as in
// "<Show>/Season N/<file>" layouts); the grandparent is not checked.
func applySeasonFolderCoercion(result *models.IdentificationResult, path string) {
	if result.MediaType != models.MediaTypeUnknown {
		return
	}
	folder := filepath.Base(filepath.Dir(path))
	if seasonFolderPattern.MatchString(folder) {
		result.MediaType = models.MediaTypeEpisode
		if m := seasonFolderPattern.FindStringSubmatch(folder); m != nil && result.Season == nil {
			result.Season = atoiPtr(m[1])
		}
	}
}

// applyMultiEpisodeExpansion expands an episode/episode_end range into the
// explicit ordered list the identification result carries for downstream
// consumers that need every episode number, not just the bounds.
func applyMultiEpisodeExpansion(result *models.IdentificationResult, parsed models.ParsedFilename) {
	if parsed.Episode == nil {
		return
	}
	start := *parsed.Episode
	end := start
	if parsed.EpisodeEnd != nil && *parsed.EpisodeEnd >= start {
		end = *parsed.EpisodeEnd
	}
	for e := start; e <= end; e++ {
		result.MultiEpisode = append(result.MultiEpisode, e)
	}
}

// applyAnimeHeuristic strips a leaked fansub/studio tag from the title and,
// for an otherwise unclassified file, treats an "/anime/" path segment or a
// recognised studio token as enough evidence to call it an episode — anime
// releases are overwhelmingly episodic even without an SxxExx marker.
func applyAnimeHeuristic(result *models.IdentificationResult, path string) {
	isAnime := strings.Contains(filepath.ToSlash(strings.ToLower(path)), "/anime/")
	lowerTitle := strings.ToLower(result.Title)
	for _, token := range animeStudioTokens {
		if strings.Contains(lowerTitle, token) {
			isAnime = true
			result.Title = stripToken(result.Title, token)
		}
	}
	if isAnime && result.MediaType == models.MediaTypeUnknown {
		result.MediaType = models.MediaTypeEpisode
	}
}

func stripToken(title, token string) string {
	idx := strings.Index(strings.ToLower(title), token)
	if idx < 0 {
		return title
	}
	cleaned := title[:idx] + title[idx+len(token):]
	return strings.TrimSpace(strings.Trim(cleaned, "[]-_ "))
}

func atoiPtr(s string) *int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil
		}
		n = n*10 + int(r-'0')
	}
	return &n
}
