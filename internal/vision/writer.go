package vision

import (
	"fmt"

	"gocv.io/x/gocv"

	"sentinel-worker-go/internal/models"
	"sentinel-worker-go/internal/services/recorder"
)

// VideoEncoder writes clips with OpenCV's VideoWriter
type VideoEncoder struct{}

func NewVideoEncoder() *VideoEncoder { return &VideoEncoder{} }

func (e *VideoEncoder) Open(path, codec string, fps, width, height int) (recorder.VideoWriter, error) {
	vw, err := gocv.VideoWriterFile(path, codec, float64(fps), width, height, true)
	if err != nil {
		return nil, fmt.Errorf("failed to open video writer %s: %w", path, err)
	}
	if !vw.IsOpened() {
		vw.Close()
		return nil, fmt.Errorf("video writer %s is not opened", path)
	}
	return &videoWriter{vw: vw, width: width, height: height}, nil
}

type videoWriter struct {
	vw     *gocv.VideoWriter
	width  int
	height int
}

func (w *videoWriter) Write(frame *models.Frame) error {
	if frame.Width != w.width || frame.Height != w.height {
		return fmt.Errorf("frame is %dx%d, writer expects %dx%d", frame.Width, frame.Height, w.width, w.height)
	}
	mat, err := toMat(frame)
	if err != nil {
		return err
	}
	defer mat.Close()
	return w.vw.Write(mat)
}

func (w *videoWriter) Close() error {
	return w.vw.Close()
}
