package snapshot

import (
	"context"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeScript drops an executable shell script standing in for ffmpeg/ffprobe.
func writeScript(t *testing.T, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell script fakes need a POSIX shell")
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
	return path
}

func TestProbeArgs(t *testing.T) {
	assert.Equal(t, []string{
		"-v", "error",
		"-rtsp_transport", "tcp", "-i", "rtsp://cam/1",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_type",
		"-of", "csv=p=0",
	}, probeArgs("rtsp://cam/1"))
}

func TestGrabArgs_NonRTSP(t *testing.T) {
	args := grabArgs("/videos/clip.mp4")
	assert.Equal(t, []string{"-hide_banner", "-loglevel", "error", "-i", "/videos/clip.mp4"}, args[:5])
	assert.Equal(t, "pipe:1", args[len(args)-1])
	assert.NotContains(t, args, "-rtsp_transport")
}

func TestFFmpegOpener_OpenAndRead(t *testing.T) {
	dir := t.TempDir()

	frame := filepath.Join(dir, "frame.jpg")
	fh, err := os.Create(frame)
	require.NoError(t, err)
	require.NoError(t, jpeg.Encode(fh, testFrame(), nil))
	require.NoError(t, fh.Close())

	opener := FFmpegOpener{
		FFprobePath: writeScript(t, dir, "ffprobe", "echo video"),
		FFmpegPath:  writeScript(t, dir, "ffmpeg", "cat '"+frame+"'"),
	}

	stream, err := opener.Open(context.Background(), "rtsp://cam/1")
	require.NoError(t, err)
	defer stream.Close()

	img, err := stream.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 16, 12), img.Bounds())
}

func TestFFmpegOpener_ProbeFails(t *testing.T) {
	dir := t.TempDir()
	opener := FFmpegOpener{
		FFprobePath: writeScript(t, dir, "ffprobe", "echo 'Connection refused' >&2; exit 1"),
		FFmpegPath:  "ffmpeg",
	}

	_, err := opener.Open(context.Background(), "rtsp://cam/1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Connection refused")
}

func TestFFmpegOpener_NoVideoStream(t *testing.T) {
	dir := t.TempDir()
	opener := FFmpegOpener{FFprobePath: writeScript(t, dir, "ffprobe", "echo audio")}

	_, err := opener.Open(context.Background(), "rtsp://cam/1")
	assert.Error(t, err)
}

func TestFFmpegStream_EmptyOutput(t *testing.T) {
	dir := t.TempDir()
	stream := &ffmpegStream{ffmpegPath: writeScript(t, dir, "ffmpeg", "exit 0"), url: "rtsp://cam/1"}

	_, err := stream.ReadFrame(context.Background())
	assert.ErrorIs(t, err, ErrEmptyFrame)
}
