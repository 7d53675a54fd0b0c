package vision

import (
	"fmt"
	"image"
	"image/color"
	"time"

	"gocv.io/x/gocv"

	"sentinel-worker-go/internal/models"
	"sentinel-worker-go/internal/services/camera"
)

const (
	DefaultJPEGQuality = 90

	statusTimeLayout = "02/01/2006 15:04:05"
)

var (
	boxColor       = color.RGBA{R: 255, G: 0, B: 0, A: 255}
	monitorColor   = color.RGBA{R: 0, G: 255, B: 0, A: 255}
	motionColor    = color.RGBA{R: 255, G: 255, B: 0, A: 255}
	white          = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	black          = color.RGBA{R: 0, G: 0, B: 0, A: 255}
	placeholderBGR = gocv.NewScalar(30, 30, 30, 0)
)

// Renderer draws overlays and encodes frames with OpenCV. Input frames are
// never modified.
type Renderer struct {
	Quality int
}

func NewRenderer() *Renderer {
	return &Renderer{Quality: DefaultJPEGQuality}
}

// Annotate draws a box and confidence label for every detection
func (r *Renderer) Annotate(frame *models.Frame, detections []models.Detection) *models.Frame {
	mat, err := cloneMat(frame)
	if err != nil {
		return frame.Clone()
	}
	defer mat.Close()

	for _, det := range detections {
		rect := boxRect(mat, det.BBox)
		gocv.Rectangle(&mat, rect, boxColor, 2)
		label := fmt.Sprintf("%.2f", det.Confidence)
		gocv.PutText(&mat, label, image.Pt(rect.Min.X, max(20, rect.Min.Y-10)), gocv.FontHersheySimplex, 0.6, boxColor, 2)
	}
	return fromMat(mat, frame.Timestamp)
}

// MarkReconnecting overlays a reconnecting notice on a copy of frame
func (r *Renderer) MarkReconnecting(frame *models.Frame) *models.Frame {
	mat, err := cloneMat(frame)
	if err != nil {
		return frame.Clone()
	}
	defer mat.Close()

	gocv.PutText(&mat, "Reconnecting camera...", image.Pt(10, 30), gocv.FontHersheySimplex, 0.7, black, 2)
	return fromMat(mat, frame.Timestamp)
}

// Placeholder returns a dark gray frame with a waiting notice
func (r *Renderer) Placeholder(width, height int) *models.Frame {
	if width <= 0 || height <= 0 {
		width, height = 640, 480
	}
	mat := gocv.NewMatWithSizeFromScalar(placeholderBGR, height, width, gocv.MatTypeCV8UC3)
	defer mat.Close()

	gocv.PutText(&mat, "Waiting for signal...", image.Pt(10, max(30, int(float64(height)*0.15))), gocv.FontHersheySimplex, 0.7, white, 2)
	return fromMat(mat, time.Now())
}

// Resize scales frame to width x height
func (r *Renderer) Resize(frame *models.Frame, width, height int) (*models.Frame, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid target size %dx%d", width, height)
	}
	if frame.Width == width && frame.Height == height {
		return frame.Clone(), nil
	}
	src, err := toMat(frame)
	if err != nil {
		return nil, err
	}
	defer src.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Resize(src, &dst, image.Pt(width, height), 0, 0, gocv.InterpolationLinear)
	return fromMat(dst, frame.Timestamp), nil
}

// DrawStatus draws boxes, the status banner and the time on a copy of frame
func (r *Renderer) DrawStatus(frame *models.Frame, boxes []models.Detection, level camera.StatusLevel, at time.Time) *models.Frame {
	mat, err := cloneMat(frame)
	if err != nil {
		return frame.Clone()
	}
	defer mat.Close()

	for _, det := range boxes {
		gocv.Rectangle(&mat, boxRect(mat, det.BBox), boxColor, 2)
	}

	gocv.PutText(&mat, "STATUS: "+level.String(), image.Pt(10, 30), gocv.FontHersheySimplex, 1, statusColor(level), 2)
	gocv.PutText(&mat, at.Format(statusTimeLayout), image.Pt(10, 60), gocv.FontHersheySimplex, 0.7, white, 2)
	return fromMat(mat, frame.Timestamp)
}

// EncodeJPEG encodes frame at the renderer quality
func (r *Renderer) EncodeJPEG(frame *models.Frame) ([]byte, error) {
	mat, err := toMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	quality := r.Quality
	if quality <= 0 || quality > 100 {
		quality = DefaultJPEGQuality
	}
	buf, err := gocv.IMEncodeWithParams(gocv.JPEGFileExt, mat, []int{gocv.IMWriteJpegQuality, quality})
	if err != nil {
		return nil, fmt.Errorf("failed to encode frame as JPEG: %w", err)
	}
	defer buf.Close()

	out := make([]byte, buf.Len())
	copy(out, buf.GetBytes())
	return out, nil
}

func statusColor(level camera.StatusLevel) color.RGBA {
	switch level {
	case camera.StatusPerson:
		return boxColor
	case camera.StatusMotion:
		return motionColor
	default:
		return monitorColor
	}
}

// boxRect clamps a box to the Mat bounds
func boxRect(mat gocv.Mat, b models.BBox) image.Rectangle {
	w, h := mat.Cols(), mat.Rows()
	x1 := clamp(b.X1, 0, w-2)
	y1 := clamp(b.Y1, 0, h-2)
	x2 := clamp(b.X2, x1+1, w-1)
	y2 := clamp(b.Y2, y1+1, h-1)
	return image.Rect(x1, y1, x2, y2)
}
