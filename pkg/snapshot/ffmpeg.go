package snapshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os/exec"
	"strings"
)

// FFmpegOpener drives the ffprobe/ffmpeg binaries. Open probes the URL for a
// video stream; each ReadFrame runs ffmpeg for a single frame.
type FFmpegOpener struct {
	FFmpegPath  string
	FFprobePath string
}

func NewFFmpegOpener() FFmpegOpener {
	return FFmpegOpener{FFmpegPath: "ffmpeg", FFprobePath: "ffprobe"}
}

func (o FFmpegOpener) Open(ctx context.Context, url string) (Stream, error) {
	cmd := exec.CommandContext(ctx, o.FFprobePath, probeArgs(url)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("ffprobe error: %w | %s", err, strings.TrimSpace(string(out)))
	}
	if !strings.Contains(string(out), "video") {
		return nil, fmt.Errorf("ffprobe: no video stream in %s", url)
	}
	return &ffmpegStream{ffmpegPath: o.FFmpegPath, url: url}, nil
}

type ffmpegStream struct {
	ffmpegPath string
	url        string
}

func (s *ffmpegStream) ReadFrame(ctx context.Context) (image.Image, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, s.ffmpegPath, grabArgs(s.url)...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("ffmpeg error: %w | %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, ErrEmptyFrame
	}

	img, err := jpeg.Decode(&stdout)
	if err != nil {
		return nil, fmt.Errorf("decode frame: %w", err)
	}
	return img, nil
}

// Close is a no-op: every read is its own ffmpeg process.
func (s *ffmpegStream) Close() error { return nil }

func inputArgs(url string) []string {
	if strings.HasPrefix(strings.ToLower(url), "rtsp://") {
		return []string{"-rtsp_transport", "tcp", "-i", url}
	}
	return []string{"-i", url}
}

func probeArgs(url string) []string {
	args := []string{"-v", "error"}
	args = append(args, inputArgs(url)...)
	return append(args,
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
	)
}

func grabArgs(url string) []string {
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, inputArgs(url)...)
	return append(args,
		"-frames:v", "1",
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "2",
		"pipe:1",
	)
}
