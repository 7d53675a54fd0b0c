package vision

import (
	"fmt"
	"time"

	"gocv.io/x/gocv"

	"sentinel-worker-go/internal/models"
)

// toMat wraps a BGR24 frame in a Mat. The caller closes it.
func toMat(frame *models.Frame) (gocv.Mat, error) {
	if frame.Empty() {
		return gocv.NewMat(), fmt.Errorf("empty frame")
	}
	if len(frame.Data) != frame.Width*frame.Height*3 {
		return gocv.NewMat(), fmt.Errorf("frame data length %d does not match %dx%d BGR", len(frame.Data), frame.Width, frame.Height)
	}
	mat, err := gocv.NewMatFromBytes(frame.Height, frame.Width, gocv.MatTypeCV8UC3, frame.Data)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("failed to create Mat from frame data: %w", err)
	}
	return mat, nil
}

// fromMat copies the Mat pixels into a new frame
func fromMat(mat gocv.Mat, ts time.Time) *models.Frame {
	return &models.Frame{
		Data:      mat.ToBytes(),
		Width:     mat.Cols(),
		Height:    mat.Rows(),
		Timestamp: ts,
	}
}

// bgrFrame copies a decoded Mat into a BGR24 frame. Grayscale and BGRA
// sources are converted; any other layout is a read error.
func bgrFrame(mat gocv.Mat, ts time.Time) (*models.Frame, error) {
	var code gocv.ColorConversionCode
	switch ch := mat.Channels(); ch {
	case 3:
		return fromMat(mat, ts), nil
	case 1:
		code = gocv.ColorGrayToBGR
	case 4:
		code = gocv.ColorBGRAToBGR
	default:
		return nil, fmt.Errorf("unsupported frame layout: %d channels", ch)
	}

	bgr := gocv.NewMat()
	defer bgr.Close()
	gocv.CvtColor(mat, &bgr, code)
	return fromMat(bgr, ts), nil
}

// cloneMat returns an owned, writable copy of the frame as a Mat
func cloneMat(frame *models.Frame) (gocv.Mat, error) {
	src, err := toMat(frame)
	if err != nil {
		return src, err
	}
	defer src.Close()
	return src.Clone(), nil
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
