package stream

import (
	"fmt"
	"os/exec"
	"strconv"

	"github.com/reelkeep/reelkeep/internal/ffmpeg"
)

// ThumbnailRequest describes one thumbnail-endpoint request.
type ThumbnailRequest struct {
	FilePath      string
	TimestampSecs float64 // 0 means "use the default of 10% into the video"
	Width         int     // 0 means the default of 320
}

const defaultThumbnailWidth = 320

// ResolveThumbnailRequest fills in the defaults: timestamp 10%
// into the file's duration, width 320 with height derived from the probed
// aspect ratio.
func ResolveThumbnailRequest(probe *ffmpeg.Probe, req ThumbnailRequest) (timestamp float64, width, height int) {
	timestamp = req.TimestampSecs
	if timestamp <= 0 {
		timestamp = probe.Duration * 0.1
	}
	width = req.Width
	if width <= 0 {
		width = defaultThumbnailWidth
	}
	height = width
	if probe.Width > 0 && probe.Height > 0 {
		height = width * probe.Height / probe.Width
		if height%2 != 0 {
			height++
		}
	}
	return timestamp, width, height
}

// ExtractThumbnail runs ffmpeg to pull a single JPEG frame at timestamp,
// scaled to width x height.
func ExtractThumbnail(ffmpegPath string, filePath string, timestamp float64, width, height int) ([]byte, error) {
	args := []string{
		"-hide_banner", "-v", "error",
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", filePath,
		"-vframes", "1",
		"-vf", fmt.Sprintf("scale=%d:%d", width, height),
		"-f", "mjpeg",
		"pipe:",
	}
	data, err := runCapture(ffmpegPath, args)
	if err != nil {
		return nil, fmt.Errorf("stream: extract thumbnail: %w", err)
	}
	return data, nil
}

// runCapture runs a command to completion and returns its raw stdout, the
// shape both thumbnail extraction and embedded-subtitle extraction need.
func runCapture(path string, args []string) ([]byte, error) {
	cmd := exec.Command(path, args...)
	return cmd.Output()
}
