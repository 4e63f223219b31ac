package codec

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"os/exec"
	"sync"
)

// FFmpegWriter opens one ffmpeg subprocess per recording, fed a raw
// motion-JPEG stream over its stdin pipe (image2pipe demuxing) and encoding
// to the container/codec configured below. This is the same
// external-binary-via-os/exec integration used for continuous camera
// recording in the reference stack, adapted from a pull-one-RTSP-stream
// shape to a push-one-decoded-frame-at-a-time shape.
type FFmpegWriter struct {
	// ffmpeg encoder name, passed to the output's -vcodec; empty selects
	// "mpeg4" (the mp4v fourCC family). The container follows the path's
	// extension.
	VideoCodec string
}

func (w FFmpegWriter) Open(path string, width, height, framerate int) (Handle, error) {
	codecName := w.VideoCodec
	if codecName == "" {
		codecName = "mpeg4" // mp4v fourCC family
	}

	args := []string{
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-framerate", fmt.Sprintf("%d", framerate),
		"-s", fmt.Sprintf("%dx%d", width, height),
		"-i", "-",
		"-vcodec", codecName,
		"-y", path,
	}
	cmd := exec.Command("ffmpeg", args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("ffmpeg stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start ffmpeg: %w", err)
	}

	return &ffmpegHandle{cmd: cmd, stdin: stdin, width: width, height: height}, nil
}

type ffmpegHandle struct {
	mu            sync.Mutex
	cmd           *exec.Cmd
	stdin         io.WriteCloser
	width, height int
	closed        bool
}

func (h *ffmpegHandle) Append(img image.Image) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, fmt.Errorf("codec handle already closed")
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		return 0, fmt.Errorf("re-encode frame: %w", err)
	}
	n, err := h.stdin.Write(buf.Bytes())
	if err != nil {
		return int64(n), fmt.Errorf("write frame to ffmpeg: %w", err)
	}
	return int64(n), nil
}

func (h *ffmpegHandle) Close() error {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	h.mu.Unlock()

	closeErr := h.stdin.Close()
	waitErr := h.cmd.Wait()
	if closeErr != nil {
		return closeErr
	}
	return waitErr
}
