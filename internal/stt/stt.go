// Package stt adapts a local whisper.cpp-style CLI into the speech-to-text
// step of the subtitle pipeline: extract the selected audio track,
// run the recognizer with a fixed anti-hallucination parameter set, and
// turn its output into a cleaned sequence of transcription segments.
//
// Cue parsing follows the SRT grammar whisper.cpp's --output-srt flag
// emits.
package stt

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/reelkeep/reelkeep/internal/models"
)

// Params are the fixed decoding parameters that keep the recognizer from
// hallucinating filler text into silence.
type Params struct {
	EntropyThreshold    float64
	LogProbThreshold    float64
	MaxContext          int
	BestOf              int
	BeamSize            int
}

// DefaultParams is the tuned anti-hallucination parameter set.
var DefaultParams = Params{
	EntropyThreshold: 2.4,
	LogProbThreshold: -0.5,
	MaxContext:       224,
	BestOf:           5,
	BeamSize:         5,
}

// Segment is one cleaned-up cue, in seconds from the start of the track.
type Segment = models.TranscriptionSegment

// Result is the output of Transcribe: the cleaned segments plus whatever
// language whisper detected (used downstream to decide if translation is
// needed at all).
type Result struct {
	Segments         []Segment
	DetectedLanguage string
}

// Adapter wraps the whisper and ffmpeg binaries.
type Adapter struct {
	WhisperCLIPath string
	ModelPath      string
	FFmpegPath     string
	Params         Params
}

// New builds an Adapter with DefaultParams.
func New(whisperCLIPath, modelPath, ffmpegPath string) *Adapter {
	return &Adapter{
		WhisperCLIPath: whisperCLIPath,
		ModelPath:      modelPath,
		FFmpegPath:     ffmpegPath,
		Params:         DefaultParams,
	}
}

// Kind distinguishes the stages that can fail, so callers (and the job
// store) can report something more specific than "stt failed".
type Kind string

const (
	KindAudioExtraction Kind = "audio_extraction"
	KindExecution       Kind = "execution"
	KindTimeout         Kind = "timeout"
	KindMissingOutput   Kind = "missing_output"
	KindParse           Kind = "parse"
)

// Error wraps a stage-tagged STT failure.
type Error struct {
	Kind  Kind
	Cause error
}

func (e *Error) Error() string { return fmt.Sprintf("stt: %s: %v", e.Kind, e.Cause) }
func (e *Error) Unwrap() error  { return e.Cause }

// Transcribe runs the full transcription pipeline: extract audioTrackIndex (the
// index of the audio stream among the file's audio streams only, i.e. the
// "N" in ffmpeg's "0:a:N" selector) from mediaPath, recognize it, and
// return post-processed segments.
func (a *Adapter) Transcribe(ctx context.Context, mediaPath string, audioTrackIndex int) (*Result, error) {
	workDir, err := os.MkdirTemp("", "reelkeep-stt-*")
	if err != nil {
		return nil, &Error{Kind: KindAudioExtraction, Cause: err}
	}
	defer os.RemoveAll(workDir)

	wavPath := filepath.Join(workDir, "audio.wav")
	if err := a.extractAudio(ctx, mediaPath, audioTrackIndex, wavPath); err != nil {
		return nil, err
	}

	srtPath := filepath.Join(workDir, "audio.srt")
	detectedLang, err := a.runWhisper(ctx, wavPath, workDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(srtPath)
	if err != nil {
		return nil, &Error{Kind: KindMissingOutput, Cause: err}
	}

	segments, err := parseSRTCues(string(data))
	if err != nil {
		return nil, &Error{Kind: KindParse, Cause: err}
	}

	segments = postProcess(segments)
	logGaps(mediaPath, segments)

	return &Result{Segments: segments, DetectedLanguage: detectedLang}, nil
}

// extractAudio pulls audioTrackIndex down to a mono 16kHz 16-bit PCM wav,
// the format whisper.cpp expects.
func (a *Adapter) extractAudio(ctx context.Context, mediaPath string, audioTrackIndex int, outPath string) error {
	cmdPath := a.FFmpegPath
	if cmdPath == "" {
		cmdPath = "ffmpeg"
	}
	selector := fmt.Sprintf("0:a:%d", audioTrackIndex)
	cmd := exec.CommandContext(ctx, cmdPath,
		"-y",
		"-i", mediaPath,
		"-map", selector,
		"-ac", "1",
		"-ar", "16000",
		"-c:a", "pcm_s16le",
		outPath,
	)
	if err := runLogged(cmd); err != nil {
		if ctx.Err() != nil {
			return &Error{Kind: KindTimeout, Cause: ctx.Err()}
		}
		return &Error{Kind: KindAudioExtraction, Cause: err}
	}
	return nil
}

var detectedLangPattern = regexp.MustCompile(`auto-detected language:\s*([a-zA-Z-]+)`)

// runWhisper invokes the whisper CLI against wavPath, writing an SRT file
// alongside it in workDir (whisper.cpp's -of controls the output stem,
// -osrt the format), and returns the language it auto-detected from its
// log output.
func (a *Adapter) runWhisper(ctx context.Context, wavPath, workDir string) (string, error) {
	outStem := filepath.Join(workDir, "audio")
	args := []string{
		"-m", a.ModelPath,
		"-f", wavPath,
		"-of", outStem,
		"-osrt",
		"-entropy-thold", formatFloat(a.Params.EntropyThreshold),
		"-logprob-thold", formatFloat(a.Params.LogProbThreshold),
		"-mc", strconv.Itoa(a.Params.MaxContext),
		"-bo", strconv.Itoa(a.Params.BestOf),
		"-bs", strconv.Itoa(a.Params.BeamSize),
	}
	cmd := exec.CommandContext(ctx, a.WhisperCLIPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return "", &Error{Kind: KindExecution, Cause: err}
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return "", &Error{Kind: KindExecution, Cause: err}
	}

	var detected string
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stdout)
		buf := make([]byte, 0, 64*1024)
		scanner.Buffer(buf, 4*1024*1024)
		for scanner.Scan() {
			line := scanner.Text()
			if m := detectedLangPattern.FindStringSubmatch(line); m != nil && detected == "" {
				detected = m[1]
			}
		}
	}()

	waitErr := cmd.Wait()
	<-done

	if waitErr != nil {
		if ctx.Err() != nil {
			return "", &Error{Kind: KindTimeout, Cause: ctx.Err()}
		}
		return "", &Error{Kind: KindExecution, Cause: waitErr}
	}
	if detected == "" {
		detected = "und"
	}
	return detected, nil
}

func runLogged(cmd *exec.Cmd) error {
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	cmd.Stderr = cmd.Stdout

	if err := cmd.Start(); err != nil {
		return err
	}
	done := make(chan struct{})
	go func() {
		defer close(done)
		scanner := bufio.NewScanner(stdout)
		for scanner.Scan() {
			_ = scanner.Text()
		}
	}()
	err = cmd.Wait()
	<-done
	return err
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// ──────────────────── cue parsing ────────────────────

var srtTimePattern = regexp.MustCompile(`(\d{2}):(\d{2}):(\d{2})[,.](\d{3})\s*-->\s*(\d{2}):(\d{2}):(\d{2})[,.](\d{3})`)

// parseSRTCues parses whisper's SRT output into Segments, ignoring the
// numeric index lines (only start/end/text are kept).
func parseSRTCues(data string) ([]Segment, error) {
	var segments []Segment
	lines := strings.Split(strings.ReplaceAll(data, "\r\n", "\n"), "\n")

	i := 0
	for i < len(lines) {
		line := strings.TrimSpace(lines[i])
		if line == "" {
			i++
			continue
		}
		if _, err := strconv.Atoi(line); err == nil {
			i++
			if i >= len(lines) {
				break
			}
			line = strings.TrimSpace(lines[i])
		}
		m := srtTimePattern.FindStringSubmatch(line)
		if m == nil {
			i++
			continue
		}
		start := srtTimeToSeconds(m[1], m[2], m[3], m[4])
		end := srtTimeToSeconds(m[5], m[6], m[7], m[8])
		i++

		var textLines []string
		for i < len(lines) && strings.TrimSpace(lines[i]) != "" {
			textLines = append(textLines, strings.TrimSpace(lines[i]))
			i++
		}
		text := strings.TrimSpace(strings.Join(textLines, " "))
		if text != "" {
			segments = append(segments, Segment{StartTime: start, EndTime: end, Text: text})
		}
	}

	sort.SliceStable(segments, func(a, b int) bool { return segments[a].StartTime < segments[b].StartTime })
	return segments, nil
}

func srtTimeToSeconds(hh, mm, ss, ms string) float64 {
	h, _ := strconv.Atoi(hh)
	m, _ := strconv.Atoi(mm)
	s, _ := strconv.Atoi(ss)
	milli, _ := strconv.Atoi(ms)
	return float64(h*3600+m*60+s) + float64(milli)/1000.0
}

// logGaps is informational only: it reports silences over 30s before the
// first cue and between cues (a silence after the last cue is not
// reported), so operators can spot a botched
// audio-track selection without it affecting the pipeline's outcome.
func logGaps(mediaPath string, segments []Segment) {
	const gapThreshold = 30.0
	if len(segments) == 0 {
		return
	}
	if segments[0].StartTime > gapThreshold {
		logf("%s: %.1fs of silence before the first cue", mediaPath, segments[0].StartTime)
	}
	for i := 1; i < len(segments); i++ {
		gap := segments[i].StartTime - segments[i-1].EndTime
		if gap > gapThreshold {
			logf("%s: %.1fs gap between cues %d and %d", mediaPath, gap, i-1, i)
		}
	}
}

var logf = func(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "stt: "+format+"\n", args...)
}
