package parser

import (
	"sort"
	"strconv"
	"strings"

	"github.com/reelkeep/reelkeep/internal/models"
)

// deriveFields turns resolved matches into fields: the title is the cleaned
// text of the stem before the earliest accepted match that is not a release
// group. Every other field is read directly off its accepted category.
func deriveFields(stem string, accepted []candidate) models.ParsedFilename {
	var out models.ParsedFilename

	firstBoundary := len(stem)
	for _, c := range accepted {
		if c.category != catReleaseGroup && c.start < firstBoundary {
			firstBoundary = c.start
		}
	}
	titleRaw := stem[:firstBoundary]
	out.Title = cleanTitle(titleRaw)

	var audio []string
	var languages []string

	for _, c := range accepted {
		switch c.category {
		case catYear:
			if y, err := strconv.Atoi(c.value); err == nil {
				out.Year = intPtr(y)
			}
		case catEpisode:
			season, episode, episodeEnd := decodeEpisodeValue(c.value)
			if season != nil {
				out.Season = season
			}
			out.Episode = episode
			out.EpisodeEnd = episodeEnd
			out.MediaType = models.MediaTypeEpisode
		case catSeason:
			if out.Season == nil {
				if s, err := strconv.Atoi(c.value); err == nil {
					out.Season = intPtr(s)
				}
			}
			if out.MediaType == models.MediaTypeUnknown {
				out.MediaType = models.MediaTypeEpisode
			}
		case catQuality:
			if out.Quality == "" {
				out.Quality = c.value
			}
		case catSource:
			if out.Source == "" {
				out.Source = c.value
			}
		case catCodec:
			if out.Codec == "" {
				out.Codec = c.value
			}
		case catAudio:
			audio = append(audio, c.value)
		case catLanguage:
			languages = append(languages, c.value)
		case catReleaseGroup:
			out.ReleaseGroup = c.value
		}
	}

	out.Audio = dedupeOrdered(audio)
	out.Languages = dedupeSet(languages)

	if out.MediaType == models.MediaTypeUnknown {
		if out.Title != "" && out.Year != nil {
			out.MediaType = models.MediaTypeMovie
		}
	}

	out.Confidence = scoreParse(out, accepted)
	return out
}

// decodeEpisodeValue splits the "season|episode|episode_end" encoding
// produced by matchEpisode back into typed fields.
func decodeEpisodeValue(v string) (season, episode, episodeEnd *int) {
	parts := strings.SplitN(v, "|", 3)
	if len(parts) < 2 {
		return nil, nil, nil
	}
	if parts[0] != "" {
		if s, err := strconv.Atoi(parts[0]); err == nil {
			season = intPtr(s)
		}
	}
	if parts[1] != "" {
		if e, err := strconv.Atoi(parts[1]); err == nil {
			episode = intPtr(e)
		}
	}
	if len(parts) == 3 && parts[2] != "" {
		if e, err := strconv.Atoi(parts[2]); err == nil {
			episodeEnd = intPtr(e)
		}
	}
	return season, episode, episodeEnd
}

// cleanTitle converts the raw leading hole into a human-readable title:
// separators become spaces, runs collapse, and known collapsed-hyphen
// forms are restored.
func cleanTitle(raw string) string {
	replaced := strings.Map(func(r rune) rune {
		switch r {
		case '.', '_':
			return ' '
		default:
			return r
		}
	}, raw)

	fields := strings.Fields(replaced)
	joined := strings.Join(fields, " ")
	joined = strings.Trim(joined, " -([{,:;")

	if canon, ok := hyphenatedTitleAllowlist[strings.ToLower(joined)]; ok {
		return canon
	}
	return joined
}

// dedupeOrdered removes duplicates keeping first-seen order. Audio tags are
// an ordered sequence: the filename lists the primary track format first.
func dedupeOrdered(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, v := range in {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// dedupeSet removes duplicates and sorts: languages are a set, so a stable
// canonical order beats filename order.
func dedupeSet(in []string) []string {
	out := dedupeOrdered(in)
	sort.Strings(out)
	return out
}

// scoreParse produces the 0-100 parse confidence used by the
// identification service as one of several scoring inputs. It rewards
// structural completeness, not metadata correctness.
func scoreParse(p models.ParsedFilename, accepted []candidate) int {
	score := 40
	if p.Title != "" {
		score += 15
	}
	if p.Year != nil {
		score += 15
	}
	if p.MediaType == models.MediaTypeEpisode && p.Episode != nil {
		score += 15
	}
	if p.Quality != "" {
		score += 5
	}
	if p.Source != "" {
		score += 5
	}
	if p.ReleaseGroup != "" {
		score += 5
	}
	if resolutionInTitlePattern.MatchString(p.Title) {
		score -= 20
	}
	lowerTitle := strings.ToLower(p.Title)
	for _, group := range sceneGroupSubstrings {
		if strings.Contains(lowerTitle, group) {
			score -= 20
			break
		}
	}
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}
	return score
}

func intPtr(v int) *int { return &v }
