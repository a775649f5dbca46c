package stream

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"
	"strconv"

	"github.com/reelkeep/reelkeep/internal/ffmpeg"
)

// WebStreamRequest describes one web/transcoded-endpoint request.
type WebStreamRequest struct {
	FilePath        string
	StartSeconds    int // floored to the integer second
	AudioTrackIndex int // index within the file's audio-only streams
}

// BuildTranscodeArgs builds the ffmpeg argument list for the web endpoint:
// input first with -ss after it, so the seek decodes up to the target
// instead of jumping to the nearest preceding keyframe (frame-accurate, at
// the cost of a slower start), -map 0:v:0 plus the caller-selected audio
// track, conditional codec copy-vs-transcode per stream, and fragmented
// MP4 on stdout. The A/V-sync flags differ by whether video is copied or
// transcoded; -vsync is never combined with stream copy.
func BuildTranscodeArgs(probe *ffmpeg.Probe, req WebStreamRequest) []string {
	args := []string{"-hide_banner", "-v", "error"}

	args = append(args, "-i", req.FilePath)
	if req.StartSeconds > 0 {
		args = append(args, "-ss", strconv.Itoa(req.StartSeconds))
	}
	args = append(args, "-map", "0:v:0")
	args = append(args, "-map", fmt.Sprintf("0:a:%d", req.AudioTrackIndex))

	if probe.NeedsVideoTranscode() {
		// Constant frame rate plus PTS regeneration keeps audio and video
		// aligned when the source has variable frame rate or broken
		// timestamps; never valid to combine with stream copy below.
		args = append(args,
			"-c:v", "libx264",
			"-preset", "fast",
			"-crf", "23",
			"-vsync", "cfr",
			"-fflags", "+genpts",
		)
	} else {
		args = append(args,
			"-c:v", "copy",
			"-copyts",
			"-avoid_negative_ts", "make_zero",
		)
	}

	if probe.NeedsAudioTranscode() {
		args = append(args,
			"-c:a", "aac",
			"-b:a", "192k",
			"-ac", "2",
		)
	} else {
		args = append(args, "-c:a", "copy")
	}

	args = append(args,
		"-f", "mp4",
		"-movflags", "frag_keyframe+empty_moov+default_base_moof",
		"pipe:",
	)

	return args
}

// ServeWebTranscode runs the ffmpeg command BuildTranscodeArgs describes and
// streams its stdout to w as fragmented MP4, terminating the child process
// when the client disconnects (ctx cancelled closes the pipe).
func ServeWebTranscode(ctx context.Context, w http.ResponseWriter, ffmpegPath string, probe *ffmpeg.Probe, req WebStreamRequest) error {
	args := BuildTranscodeArgs(probe, req)
	cmd := exec.CommandContext(ctx, ffmpegPath, args...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stream: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stream: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("stream: start ffmpeg: %w", err)
	}

	go func() {
		data, _ := io.ReadAll(stderr)
		if err := cmd.Wait(); err != nil && ctx.Err() == nil {
			log.Printf("stream: transcode for %s exited: %v: %s", req.FilePath, err, truncate(string(data), 500))
		}
	}()

	w.Header().Set("Content-Type", "video/mp4")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, stdout); err != nil && ctx.Err() == nil {
		return fmt.Errorf("stream: write transcoded output: %w", err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
