package mjpeg

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const boundary = "frame"

// ErrStreamingUnsupported is returned when the response writer cannot flush
var ErrStreamingUnsupported = errors.New("streaming unsupported")

// FrameProvider returns the current dashboard JPEG of a camera
type FrameProvider interface {
	Frame(id string) ([]byte, error)
}

// Publisher serves multipart MJPEG streams by polling the dashboard frame of
// a camera at a fixed rate
type Publisher struct {
	frames   FrameProvider
	interval time.Duration
	active   atomic.Int64
	logger   zerolog.Logger
}

func NewPublisher(frames FrameProvider, fps int, logger zerolog.Logger) *Publisher {
	if fps <= 0 {
		fps = 10
	}
	return &Publisher{
		frames:   frames,
		interval: time.Second / time.Duration(fps),
		logger:   logger,
	}
}

// ActiveStreams is the number of clients currently attached
func (p *Publisher) ActiveStreams() int64 {
	return p.active.Load()
}

// StreamMJPEGHTTP writes frames until the client goes away or the camera
// disappears. The first frame is fetched before any header is written so an
// unknown camera can still be answered with a regular error.
func (p *Publisher) StreamMJPEGHTTP(w http.ResponseWriter, r *http.Request, cameraID string) error {
	flusher, ok := w.(http.Flusher)
	if !ok {
		return ErrStreamingUnsupported
	}

	first, err := p.frames.Frame(cameraID)
	if err != nil {
		return err
	}

	w.Header().Set("Content-Type", "multipart/x-mixed-replace; boundary="+boundary)
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
	w.Header().Set("Pragma", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	p.active.Add(1)
	defer p.active.Add(-1)
	p.logger.Debug().Str("camera_id", cameraID).Msg("MJPEG client attached")

	if err := writePart(w, first); err != nil {
		return nil
	}
	flusher.Flush()

	return p.loop(r.Context(), w, flusher, cameraID)
}

func (p *Publisher) loop(ctx context.Context, w io.Writer, flusher http.Flusher, cameraID string) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			jpeg, err := p.frames.Frame(cameraID)
			if err != nil {
				p.logger.Debug().Err(err).Str("camera_id", cameraID).Msg("MJPEG stream ended")
				return nil
			}
			if err := writePart(w, jpeg); err != nil {
				return nil
			}
			flusher.Flush()
		}
	}
}

func writePart(w io.Writer, jpeg []byte) error {
	header := fmt.Sprintf("--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(jpeg))
	if _, err := io.WriteString(w, header); err != nil {
		return err
	}
	if _, err := w.Write(jpeg); err != nil {
		return err
	}
	_, err := io.WriteString(w, "\r\n")
	return err
}
