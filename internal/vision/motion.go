package vision

import (
	"gocv.io/x/gocv"

	"sentinel-worker-go/internal/models"
	"sentinel-worker-go/internal/services/camera"
)

// NewMotionDetector builds a MOG2 background model. It matches
// camera.MotionFactory.
func NewMotionDetector(params camera.MotionParams) (camera.MotionDetector, error) {
	return &mog2{
		bs:   gocv.NewBackgroundSubtractorMOG2WithParams(params.History, params.VarThreshold, params.DetectShadows),
		mask: gocv.NewMat(),
	}, nil
}

type mog2 struct {
	bs   gocv.BackgroundSubtractorMOG2
	mask gocv.Mat
}

// Apply updates the background model and reports whether any external
// foreground contour covers at least minArea pixels
func (m *mog2) Apply(frame *models.Frame, minArea float64) (bool, error) {
	src, err := toMat(frame)
	if err != nil {
		return false, err
	}
	defer src.Close()

	m.bs.Apply(src, &m.mask)

	contours := gocv.FindContours(m.mask, gocv.RetrievalExternal, gocv.ChainApproxSimple)
	defer contours.Close()

	for i := 0; i < contours.Size(); i++ {
		if gocv.ContourArea(contours.At(i)) >= minArea {
			return true, nil
		}
	}
	return false, nil
}

func (m *mog2) Close() error {
	m.mask.Close()
	return m.bs.Close()
}
