// Package ffmpeg wraps the ffprobe binary used by the scan pipeline
// (duration discovery) and the streaming engine (codec inspection); the
// ffmpeg transcoding itself lives in internal/stream. It lives in its own package rather than as a
// scanner-private helper since both collaborators need it.
package ffmpeg

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
)

// Probe is the subset of ffprobe's output the rest of the module consumes:
// duration for the repository layer, codec names for the streaming engine's
// transcode-needed decision.
type Probe struct {
	VideoCodec string
	AudioCodec string
	Width      int
	Height     int
	Duration   float64
	Bitrate    int
	AudioRate  int
	Channels   int
	AudioTracks []AudioTrack
}

// AudioTrack describes one audio stream for track-selection endpoints.
type AudioTrack struct {
	Index    int
	Codec    string
	Language string
	Channels int
	Default  bool
}

type probeOutput struct {
	Streams []probeStream `json:"streams"`
	Format  probeFormat   `json:"format"`
}

type probeStream struct {
	Index       int               `json:"index"`
	CodecName   string            `json:"codec_name"`
	CodecType   string            `json:"codec_type"`
	Width       int               `json:"width"`
	Height      int               `json:"height"`
	SampleRate  string            `json:"sample_rate"`
	Channels    int               `json:"channels"`
	Tags        map[string]string `json:"tags"`
	Disposition probeDisposition  `json:"disposition"`
}

type probeDisposition struct {
	Default int `json:"default"`
}

type probeFormat struct {
	Duration string `json:"duration"`
	BitRate  string `json:"bit_rate"`
}

// FFprobe invokes the ffprobe binary at path to inspect media files.
type FFprobe struct {
	path string
}

func NewFFprobe(path string) *FFprobe {
	if path == "" {
		path = "ffprobe"
	}
	return &FFprobe{path: path}
}

// Inspect runs ffprobe against filePath and returns the stream/format
// summary used throughout the module.
func (f *FFprobe) Inspect(ctx context.Context, filePath string) (*Probe, error) {
	cmd := exec.CommandContext(ctx, f.path,
		"-v", "quiet",
		"-print_format", "json",
		"-show_streams",
		"-show_format",
		filePath)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe: %w", err)
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(raw []byte) (*Probe, error) {
	var data probeOutput
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, fmt.Errorf("parse ffprobe output: %w", err)
	}

	result := &Probe{}
	for _, s := range data.Streams {
		switch s.CodecType {
		case "video":
			if result.VideoCodec == "" {
				result.VideoCodec = s.CodecName
				result.Width = s.Width
				result.Height = s.Height
			}
		case "audio":
			track := AudioTrack{Index: s.Index, Codec: s.CodecName, Channels: s.Channels, Default: s.Disposition.Default != 0}
			if lang, ok := s.Tags["language"]; ok {
				track.Language = lang
			}
			result.AudioTracks = append(result.AudioTracks, track)
			if result.AudioCodec == "" {
				result.AudioCodec = s.CodecName
				result.Channels = s.Channels
				if rate, err := strconv.Atoi(s.SampleRate); err == nil {
					result.AudioRate = rate
				}
			}
		}
	}

	if data.Format.Duration != "" {
		result.Duration, _ = strconv.ParseFloat(data.Format.Duration, 64)
	}
	if data.Format.BitRate != "" {
		result.Bitrate, _ = strconv.Atoi(data.Format.BitRate)
	}

	return result, nil
}

// NeedsVideoTranscode reports whether the probed video codec requires
// transcoding for web playback.
func (p *Probe) NeedsVideoTranscode() bool {
	switch p.VideoCodec {
	case "h264", "avc", "vp8", "vp9", "av1":
		return false
	default:
		return true
	}
}

// NeedsAudioTranscode reports whether the probed audio codec requires
// transcoding for web playback; only AAC is passed through as-is.
func (p *Probe) NeedsAudioTranscode() bool {
	return p.AudioCodec != "aac"
}
