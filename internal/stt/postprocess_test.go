package stt

import (
	"strings"
	"testing"
)

func TestStripAnnotations_DropsNonSpeechCuesEntirely(t *testing.T) {
	in := []Segment{
		{StartTime: 0, EndTime: 1, Text: "(door creaks)"},
		{StartTime: 1, EndTime: 2, Text: "Hello [laughs] there"},
		{StartTime: 2, EndTime: 3, Text: "♪ music playing ♪"},
	}
	out := stripAnnotations(in)
	if len(out) != 1 {
		t.Fatalf("expected 1 surviving cue, got %d: %+v", len(out), out)
	}
	if out[0].Text != "Hello there" {
		t.Fatalf("text = %q", out[0].Text)
	}
}

func TestFilterHallucinations_DropsKnownPhrase(t *testing.T) {
	in := []Segment{
		{StartTime: 0, EndTime: 1, Text: "Thank you for watching"},
		{StartTime: 1, EndTime: 2, Text: "Let's begin the tour"},
	}
	out := filterHallucinations(in)
	if len(out) != 1 || out[0].Text != "Let's begin the tour" {
		t.Fatalf("unexpected result: %+v", out)
	}
}

func TestFilterHallucinations_DropsOverThresholdRepeats(t *testing.T) {
	var in []Segment
	for i := 0; i < 20; i++ {
		in = append(in, Segment{StartTime: float64(i), EndTime: float64(i) + 1, Text: "yeah"})
	}
	in = append(in, Segment{StartTime: 20, EndTime: 21, Text: "something unique"})

	out := filterHallucinations(in)
	if len(out) != 1 || out[0].Text != "something unique" {
		t.Fatalf("expected only the unique cue to survive, got %d cues", len(out))
	}
}

func TestFilterHallucinations_AllowsAtMostTwoConsecutiveIdenticalCues(t *testing.T) {
	in := []Segment{
		{StartTime: 0, EndTime: 1, Text: "okay"},
		{StartTime: 1, EndTime: 2, Text: "okay"},
		{StartTime: 2, EndTime: 3, Text: "okay"},
		{StartTime: 3, EndTime: 4, Text: "moving on"},
	}
	out := filterHallucinations(in)
	count := 0
	for _, seg := range out {
		if seg.Text == "okay" {
			count++
		}
	}
	if count != 2 {
		t.Fatalf("expected at most 2 consecutive repeats kept, got %d", count)
	}
}

func TestSplitOverlong_PreservesMinimumCharsOnEachSide(t *testing.T) {
	longText := "This is the first clause of a very long subtitle line, and here is the second clause that makes it overlong."
	seg := Segment{StartTime: 0, EndTime: 5, Text: longText}

	out := splitOne(seg)
	if len(out) < 2 {
		t.Fatalf("expected the overlong cue to split, got %d pieces", len(out))
	}
	for _, piece := range out {
		if len(piece.Text) < minSplitRemain && len(out) > 1 {
			t.Fatalf("split piece too short: %q", piece.Text)
		}
	}
	total := out[0].StartTime
	for _, piece := range out {
		if piece.StartTime < total {
			t.Fatalf("pieces out of order: %+v", out)
		}
		total = piece.EndTime
	}
	if out[len(out)-1].EndTime != seg.EndTime {
		t.Fatalf("last piece should end at the original end time, got %f want %f", out[len(out)-1].EndTime, seg.EndTime)
	}
}

func TestSplitOverlong_ShortCueIsUnaffected(t *testing.T) {
	seg := Segment{StartTime: 0, EndTime: 2, Text: "Hi there."}
	out := splitOne(seg)
	if len(out) != 1 || out[0].Text != seg.Text {
		t.Fatalf("short cue should pass through unchanged, got %+v", out)
	}
}

func TestNormalizeCapitalisation_CapitalisesAfterSentenceEnd(t *testing.T) {
	in := []Segment{
		{Text: "this is the end."},
		{Text: "and this continues."},
	}
	out := normalizeCapitalisation(in)
	if !strings.HasPrefix(out[1].Text, "A") {
		t.Fatalf("expected capitalised continuation, got %q", out[1].Text)
	}
}

func TestNormalizeCapitalisation_EllipsisDoesNotTriggerCapitalisation(t *testing.T) {
	in := []Segment{
		{Text: "and then she said..."},
		{Text: "nothing at all."},
	}
	out := normalizeCapitalisation(in)
	if out[1].Text != "nothing at all." {
		t.Fatalf("ellipsis-continued cue should be left alone, got %q", out[1].Text)
	}
}

func TestWrapLine_BreaksLongLineIntoTwo(t *testing.T) {
	long := "This sentence is long enough that it should certainly need to be wrapped onto two lines for display."
	wrapped := wrapLine(long)
	lines := strings.Split(wrapped, "\n")
	if len(lines) != 2 {
		t.Fatalf("expected exactly 2 lines, got %d: %q", len(lines), wrapped)
	}
}

func TestWrapLine_ShortLineUnaffected(t *testing.T) {
	short := "Short cue."
	if wrapLine(short) != short {
		t.Fatalf("short line should be unchanged, got %q", wrapLine(short))
	}
}

func TestParseSRTCues_ParsesIndexTimeAndMultilineText(t *testing.T) {
	data := "1\n00:00:01,000 --> 00:00:03,500\nHello there\nsecond line\n\n2\n00:00:04,000 --> 00:00:05,000\nGoodbye\n"
	segments, err := parseSRTCues(data)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].StartTime != 1.0 || segments[0].EndTime != 3.5 {
		t.Fatalf("unexpected timing: %+v", segments[0])
	}
	if segments[0].Text != "Hello there second line" {
		t.Fatalf("unexpected text: %q", segments[0].Text)
	}
}

func TestPostProcess_EndToEndOrdering(t *testing.T) {
	in := []Segment{
		{StartTime: 0, EndTime: 1, Text: "(sigh) thank you for watching"},
		{StartTime: 1, EndTime: 2, Text: "Real content starts here."},
		{StartTime: 2, EndTime: 3, Text: "and it keeps going on."},
	}
	out := postProcess(in)
	if len(out) != 2 {
		t.Fatalf("expected hallucinated cue dropped, got %d: %+v", len(out), out)
	}
	if !strings.HasPrefix(out[1].Text, "A") {
		t.Fatalf("expected capitalisation carried through the pipeline, got %q", out[1].Text)
	}
}
