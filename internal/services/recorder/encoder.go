package recorder

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"sentinel-worker-go/internal/models"
)

// VideoWriter is an open encoding session
type VideoWriter interface {
	Write(frame *models.Frame) error
	Close() error
}

// Encoder opens video files for writing
type Encoder interface {
	Open(path, codec string, fps, width, height int) (VideoWriter, error)
}

// Resizer scales a frame to the given resolution
type Resizer interface {
	Resize(frame *models.Frame, width, height int) (*models.Frame, error)
}

// FFmpegEncoder pipes raw BGR24 frames into an ffmpeg process
type FFmpegEncoder struct {
	Binary string
}

func NewFFmpegEncoder() *FFmpegEncoder {
	return &FFmpegEncoder{Binary: "ffmpeg"}
}

// ffmpegCodec maps a fourcc to the matching ffmpeg encoder
func ffmpegCodec(fourcc string) string {
	switch strings.ToLower(fourcc) {
	case "avc1", "h264", "x264":
		return "libx264"
	case "mjpg":
		return "mjpeg"
	case "hevc", "h265", "hvc1":
		return "libx265"
	default:
		return "mpeg4"
	}
}

func (e *FFmpegEncoder) Open(path, codec string, fps, width, height int) (VideoWriter, error) {
	frameSize := fmt.Sprintf("%dx%d", width, height)
	args := []string{
		"-y",
		"-f", "rawvideo",
		"-pix_fmt", "bgr24",
		"-s", frameSize,
		"-r", fmt.Sprintf("%d", fps),
		"-i", "-",
		"-c:v", ffmpegCodec(codec),
		"-pix_fmt", "yuv420p",
		"-movflags", "+faststart",
		"-f", "mp4",
		"-loglevel", "warning",
		path,
	}

	cmd := exec.Command(e.Binary, args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to create stdin pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start ffmpeg: %w", err)
	}

	log.Debug().
		Str("path", path).
		Str("frame_size", frameSize).
		Int("fps", fps).
		Msg("ffmpeg encoder started")

	return &ffmpegWriter{
		cmd:       cmd,
		stdin:     stdin,
		frameSize: width * height * 3,
	}, nil
}

type ffmpegWriter struct {
	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	frameSize int
	closed    bool
}

func (w *ffmpegWriter) Write(frame *models.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("ffmpeg writer closed")
	}
	if len(frame.Data) != w.frameSize {
		return fmt.Errorf("frame size mismatch: got %d bytes, want %d", len(frame.Data), w.frameSize)
	}
	if _, err := w.stdin.Write(frame.Data); err != nil {
		return fmt.Errorf("failed to write frame data to ffmpeg: %w", err)
	}
	return nil
}

// Close flushes ffmpeg by closing its stdin, force-killing it after 5s
func (w *ffmpegWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	w.stdin.Close()

	done := make(chan error, 1)
	go func() {
		done <- w.cmd.Wait()
	}()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		if err := w.cmd.Process.Signal(os.Interrupt); err != nil {
			w.cmd.Process.Kill()
		}
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			w.cmd.Process.Kill()
			<-done
		}
		return fmt.Errorf("ffmpeg did not exit in time")
	}
}
