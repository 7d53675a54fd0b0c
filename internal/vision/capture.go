package vision

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"gocv.io/x/gocv"

	"sentinel-worker-go/internal/models"
	"sentinel-worker-go/internal/services/camera"
)

// Source opens RTSP/HTTP/file sources and local webcams through OpenCV
type Source struct{}

func NewSource() *Source { return &Source{} }

// deviceIndex reports whether uri names a local webcam by index
func deviceIndex(uri string) (int, bool) {
	idx, err := strconv.Atoi(strings.TrimSpace(uri))
	if err != nil || idx < 0 {
		return 0, false
	}
	return idx, true
}

func (s *Source) Open(ctx context.Context, uri string, bufferSize int) (camera.Capture, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if strings.TrimSpace(uri) == "" {
		return nil, fmt.Errorf("empty source uri")
	}

	var device interface{} = uri
	if idx, ok := deviceIndex(uri); ok {
		device = idx
	}

	vc, err := gocv.OpenVideoCapture(device)
	if err != nil {
		return nil, fmt.Errorf("failed to open video source: %w", err)
	}
	if !vc.IsOpened() {
		vc.Close()
		return nil, fmt.Errorf("video source is not opened")
	}
	if bufferSize > 0 {
		vc.Set(gocv.VideoCaptureBufferSize, float64(bufferSize))
	}

	return &videoCapture{vc: vc, mat: gocv.NewMat()}, nil
}

type videoCapture struct {
	vc  *gocv.VideoCapture
	mat gocv.Mat
}

func (c *videoCapture) Read() (*models.Frame, error) {
	if ok := c.vc.Read(&c.mat); !ok {
		return nil, fmt.Errorf("failed to read frame")
	}
	if c.mat.Empty() {
		return nil, fmt.Errorf("received empty frame")
	}
	return bgrFrame(c.mat, time.Now())
}

func (c *videoCapture) Close() error {
	c.mat.Close()
	return c.vc.Close()
}
