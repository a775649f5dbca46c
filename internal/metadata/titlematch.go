package metadata

import (
	"regexp"
	"strings"
)

// titleSimilarity scores how closely two titles match: exact match is 1.0,
// prefix containment is 0.9, otherwise a Jaccard-like word-overlap score
// penalised when one side carries many extra words.
func titleSimilarity(query, result string) float64 {
	q := strings.ToLower(strings.TrimSpace(query))
	r := strings.ToLower(strings.TrimSpace(result))

	if q == r {
		return 1.0
	}
	if strings.HasPrefix(r, q+" ") || strings.HasPrefix(q, r+" ") {
		return 0.9
	}

	qWords := strings.Fields(q)
	rWords := strings.Fields(r)
	if len(qWords) == 0 || len(rWords) == 0 {
		return 0.0
	}

	rSet := make(map[string]bool, len(rWords))
	for _, w := range rWords {
		rSet[w] = true
	}
	matched := 0
	for _, w := range qWords {
		if rSet[w] {
			matched++
		}
	}

	total := len(qWords)
	if len(rWords) > total {
		total = len(rWords)
	}
	score := float64(matched) / float64(total)
	if len(rWords) > len(qWords) {
		score *= float64(len(qWords)) / float64(len(rWords))
	}
	return score
}

// bestSimilarity returns the highest similarity between the query and any of
// the candidate's title / original title.
func bestSimilarity(query, title, originalTitle string) float64 {
	conf := titleSimilarity(query, title)
	if originalTitle != "" && originalTitle != title {
		if alt := titleSimilarity(query, originalTitle); alt > conf {
			conf = alt
		}
	}
	return conf
}

var leadingArticle = regexp.MustCompile(`(?i)^(the|a|an)\s+`)

// stripArticle removes a leading English article, used by reconciliation
// strategy 5 (alternative title).
func stripArticle(title string) string {
	return strings.TrimSpace(leadingArticle.ReplaceAllString(title, ""))
}

var partSuffix = regexp.MustCompile(`(?i)[\s:,-]+part\s+(i{1,3}|iv|v|[0-9]+)\s*$`)

// dropPartSuffix removes a trailing "Part I"/"Part 2" marker.
func dropPartSuffix(title string) string {
	return strings.TrimSpace(partSuffix.ReplaceAllString(title, ""))
}

// dropSubtitle keeps only the text before the first colon, stripping a
// "Title: Subtitle" suffix.
func dropSubtitle(title string) string {
	if idx := strings.Index(title, ":"); idx > 0 {
		return strings.TrimSpace(title[:idx])
	}
	return title
}

var romanToArabic = map[string]string{
	"i": "1", "ii": "2", "iii": "3", "iv": "4", "v": "5",
	"vi": "6", "vii": "7", "viii": "8", "ix": "9", "x": "10",
}

var arabicToRoman = map[string]string{
	"1": "I", "2": "II", "3": "III", "4": "IV", "5": "V",
	"6": "VI", "7": "VII", "8": "VIII", "9": "IX", "10": "X",
}

var trailingNumeralWord = regexp.MustCompile(`(?i)\b(i{1,3}|iv|v|vi{1,3}|ix|x)\b\s*$`)
var trailingDigits = regexp.MustCompile(`\b([0-9]{1,2})\s*$`)

// numeralVariant swaps a trailing roman numeral for its arabic form or vice
// versa, e.g. "Rocky III" <-> "Rocky 3".
func numeralVariant(title string) (string, bool) {
	if m := trailingNumeralWord.FindStringIndex(title); m != nil {
		word := strings.ToLower(title[m[0]:m[1]])
		if arabic, ok := romanToArabic[word]; ok {
			return strings.TrimSpace(title[:m[0]]) + " " + arabic, true
		}
	}
	if m := trailingDigits.FindStringIndex(title); m != nil {
		digits := title[m[0]:m[1]]
		if roman, ok := arabicToRoman[digits]; ok {
			return strings.TrimSpace(title[:m[0]]) + " " + roman, true
		}
	}
	return title, false
}

// titleVariants produces the alternative spellings reconciliation strategy 6
// tries in sequence: original, numeral swap, article stripped, "Part N"
// dropped, subtitle dropped. Duplicates are dropped; the variants are
// searched in this order and the first that yields candidates wins.
func titleVariants(title string) []string {
	seen := map[string]bool{}
	var out []string
	add := func(v string) {
		v = strings.TrimSpace(v)
		if v == "" || seen[strings.ToLower(v)] {
			return
		}
		seen[strings.ToLower(v)] = true
		out = append(out, v)
	}

	add(title)
	if v, ok := numeralVariant(title); ok {
		add(v)
	}
	add(stripArticle(title))
	add(dropPartSuffix(title))
	add(dropSubtitle(title))
	return out
}

var imdbIDPattern = regexp.MustCompile(`tt\d{7,8}`)

// extractIMDBID finds an embedded IMDB id (e.g. from an NFO sidecar or a
// filename fragment) for reconciliation strategy 1.
func extractIMDBID(s string) (string, bool) {
	m := imdbIDPattern.FindString(s)
	return m, m != ""
}
