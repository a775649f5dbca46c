package stream

import (
	"strings"
	"testing"

	"github.com/reelkeep/reelkeep/internal/ffmpeg"
)

func containsArgPair(args []string, flag, value string) bool {
	for i := 0; i < len(args)-1; i++ {
		if args[i] == flag && args[i+1] == value {
			return true
		}
	}
	return false
}

func TestBuildTranscodeArgs_CopiesCompatibleVideoWithTimestampFixups(t *testing.T) {
	probe := &ffmpeg.Probe{VideoCodec: "h264", AudioCodec: "aac"}
	args := BuildTranscodeArgs(probe, WebStreamRequest{FilePath: "/media/movie.mkv", AudioTrackIndex: 0})

	if !containsArgPair(args, "-c:v", "copy") {
		t.Fatalf("expected -c:v copy, got %v", args)
	}
	if !contains(args, "-copyts") || !containsArgPair(args, "-avoid_negative_ts", "make_zero") {
		t.Fatalf("expected copyts/avoid_negative_ts fixups, got %v", args)
	}
	if contains(args, "-vsync") {
		t.Fatalf("must never combine -vsync with stream copy, got %v", args)
	}
	if !containsArgPair(args, "-c:a", "copy") {
		t.Fatalf("expected aac passthrough as copy, got %v", args)
	}
}

func TestBuildTranscodeArgs_TranscodesIncompatibleVideoWithCFRAndPTS(t *testing.T) {
	probe := &ffmpeg.Probe{VideoCodec: "hevc", AudioCodec: "ac3"}
	args := BuildTranscodeArgs(probe, WebStreamRequest{FilePath: "/media/movie.mkv", AudioTrackIndex: 2})

	if !containsArgPair(args, "-c:v", "libx264") {
		t.Fatalf("expected libx264 transcode, got %v", args)
	}
	if !containsArgPair(args, "-vsync", "cfr") {
		t.Fatalf("expected constant frame rate, got %v", args)
	}
	if contains(args, "-copyts") {
		t.Fatalf("copyts only applies to stream copy, got %v", args)
	}
	if !containsArgPair(args, "-c:a", "aac") {
		t.Fatalf("expected audio transcode to aac, got %v", args)
	}
	if !contains(args, "0:a:2") {
		t.Fatalf("expected audio map to track 2, got %v", args)
	}
}

func TestBuildTranscodeArgs_SeeksAfterInput(t *testing.T) {
	probe := &ffmpeg.Probe{VideoCodec: "h264", AudioCodec: "aac"}
	args := BuildTranscodeArgs(probe, WebStreamRequest{FilePath: "/media/movie.mkv", StartSeconds: 90})

	ssIdx, iIdx := -1, -1
	for i, a := range args {
		if a == "-ss" {
			ssIdx = i
		}
		if a == "-i" {
			iIdx = i
		}
	}
	if ssIdx == -1 || iIdx == -1 || ssIdx < iIdx {
		t.Fatalf("expected -ss to follow -i, got %v", args)
	}
}

func TestBuildTranscodeArgs_OutputsFragmentedMP4(t *testing.T) {
	probe := &ffmpeg.Probe{VideoCodec: "h264", AudioCodec: "aac"}
	args := BuildTranscodeArgs(probe, WebStreamRequest{FilePath: "/media/movie.mkv"})
	joined := strings.Join(args, " ")
	if !strings.Contains(joined, "frag_keyframe") {
		t.Fatalf("expected fragmented mp4 movflags, got %s", joined)
	}
	if !containsArgPair(args, "-f", "mp4") {
		t.Fatalf("expected mp4 output format, got %v", args)
	}
}

func contains(args []string, want string) bool {
	for _, a := range args {
		if a == want {
			return true
		}
	}
	return false
}
