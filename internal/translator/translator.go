package translator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/reelkeep/reelkeep/internal/models"
)

const batchSize = 10

// languageNames maps the ISO-639-1/2 codes the rest of the module deals in
// to the display name the prompt names the source/target language by.
var languageNames = map[string]string{
	"en":  "English",
	"eng": "English",
	"hu":  "Hungarian",
	"hun": "Hungarian",
	"de":  "German",
	"ger": "German",
	"deu": "German",
	"es":  "Spanish",
	"spa": "Spanish",
	"fr":  "French",
	"fra": "French",
	"fre": "French",
	"it":  "Italian",
	"ita": "Italian",
	"pt":  "Portuguese",
	"por": "Portuguese",
	"ru":  "Russian",
	"rus": "Russian",
	"ja":  "Japanese",
	"jpn": "Japanese",
	"ko":  "Korean",
	"kor": "Korean",
	"zh":  "Chinese",
	"chi": "Chinese",
	"zho": "Chinese",
	"pl":  "Polish",
	"pol": "Polish",
	"nl":  "Dutch",
	"dut": "Dutch",
	"nld": "Dutch",
}

// languageName resolves code to a display name, falling back to the code
// itself (uppercased) for anything the table doesn't carry.
func languageName(code string) string {
	if name, ok := languageNames[strings.ToLower(code)]; ok {
		return name
	}
	return strings.ToUpper(code)
}

// styleHints gives the prompt a per-target-language nudge toward natural,
// casual dialogue phrasing; anything not in the table gets the generic
// fallback.
var styleHints = map[string]string{
	"Hungarian": "Use informal, everyday Hungarian (tegezés) unless the scene clearly calls for formal address. Prefer natural spoken idiom over literal translation.",
	"German":    "Use informal \"du\" address unless the scene clearly calls for formal \"Sie\". Keep sentences punchy, the way spoken German dialogue reads.",
	"Spanish":   "Use informal \"tú\" address unless the scene clearly calls for formal \"usted\". Favor natural colloquial phrasing over literal translation.",
	"French":    "Use informal \"tu\" address unless the scene clearly calls for formal \"vous\". Keep the register casual and conversational.",
}

const genericStyleHint = "Keep the register casual and conversational, the way people actually speak, not the way a dictionary would phrase it."

func styleHintFor(targetLanguage string) string {
	if hint, ok := styleHints[targetLanguage]; ok {
		return hint
	}
	return genericStyleHint
}

// Translator batches segments to a Client and parses the bracket-numbered
// response back into segments, preserving count, order, and timestamps.
type Translator struct {
	client *Client
}

// New builds a Translator around client.
func New(client *Client) *Translator {
	return &Translator{client: client}
}

// Translate translates segments batch by batch (source_lang,
// target_lang) -> segments' with identical count/order/timestamps.
func (t *Translator) Translate(ctx context.Context, segments []models.TranscriptionSegment, sourceLang, targetLang string) ([]models.TranscriptionSegment, error) {
	if len(segments) == 0 {
		return segments, nil
	}

	out := make([]models.TranscriptionSegment, len(segments))
	copy(out, segments)

	singleSegment := len(segments) == 1

	for start := 0; start < len(segments); start += batchSize {
		end := start + batchSize
		if end > len(segments) {
			end = len(segments)
		}
		translated, err := t.translateBatch(ctx, segments[start:end], sourceLang, targetLang, singleSegment)
		if err != nil {
			return nil, fmt.Errorf("translator: batch %d-%d: %w", start, end, err)
		}
		for i, text := range translated {
			out[start+i].Text = text
		}
	}

	return out, nil
}

func (t *Translator) translateBatch(ctx context.Context, batch []models.TranscriptionSegment, sourceLang, targetLang string, singleSegment bool) ([]string, error) {
	texts := make([]string, len(batch))
	for i, seg := range batch {
		texts[i] = seg.Text
	}

	prompt := buildPrompt(texts, sourceLang, targetLang)
	keepAlive := ""
	if singleSegment {
		keepAlive = "0"
	}

	raw, err := t.client.Generate(ctx, prompt, keepAlive)
	if err != nil {
		return nil, err
	}

	translations := parseResponse(raw, len(texts))
	return translations, nil
}

func buildPrompt(texts []string, sourceLang, targetLang string) string {
	sourceName := languageName(sourceLang)
	targetName := languageName(targetLang)

	var b strings.Builder
	fmt.Fprintf(&b, "Translate the following %d subtitle lines from %s to %s.\n", len(texts), sourceName, targetName)
	b.WriteString(styleHintFor(targetName))
	b.WriteString("\n\n")
	b.WriteString("Rules:\n")
	b.WriteString("- Preserve the [N] numbering exactly, one translated line per input line.\n")
	b.WriteString("- Output only the translations, nothing else: no notes, no explanations, no markdown.\n")
	b.WriteString("- If a source line looks garbled or incomplete, use the neighbouring lines' context to repair its meaning before translating.\n\n")

	for i, text := range texts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, text)
	}

	return b.String()
}

var bracketPattern = regexp.MustCompile(`(?m)^\s*\[(\d+)\]\s*(.*)$`)

// parseResponse scans the model's output for [i] boundaries. If that
// yields fewer lines than expected, it falls back to a plain newline split
// with any leading "[i]" stripped, then pads with empty strings so the
// caller always gets exactly expectedCount entries.
func parseResponse(raw string, expectedCount int) []string {
	matches := bracketPattern.FindAllStringSubmatch(raw, -1)
	if len(matches) > 0 {
		byIndex := make(map[int]string, len(matches))
		for _, m := range matches {
			idx, err := strconv.Atoi(m[1])
			if err != nil {
				continue
			}
			byIndex[idx] = strings.TrimSpace(m[2])
		}
		out := make([]string, expectedCount)
		complete := true
		for i := 0; i < expectedCount; i++ {
			text, ok := byIndex[i+1]
			if !ok {
				complete = false
				break
			}
			out[i] = text
		}
		if complete {
			return out
		}
	}

	return fallbackSplit(raw, expectedCount)
}

func fallbackSplit(raw string, expectedCount int) []string {
	lines := strings.Split(strings.TrimSpace(raw), "\n")
	out := make([]string, expectedCount)
	for i := 0; i < expectedCount && i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		line = stripLeadingIndex(line)
		out[i] = line
	}
	return out
}

var leadingIndexPattern = regexp.MustCompile(`^\[\d+\]\s*`)

func stripLeadingIndex(line string) string {
	return leadingIndexPattern.ReplaceAllString(line, "")
}
