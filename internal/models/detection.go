package models

import (
	"time"
)

// Frame is a decoded BGR24 image
type Frame struct {
	Data      []byte
	Width     int
	Height    int
	Timestamp time.Time
}

// Clone deep-copies the frame so the copy can be mutated independently
func (f *Frame) Clone() *Frame {
	if f == nil {
		return nil
	}
	data := make([]byte, len(f.Data))
	copy(data, f.Data)
	return &Frame{
		Data:      data,
		Width:     f.Width,
		Height:    f.Height,
		Timestamp: f.Timestamp,
	}
}

// Empty reports whether the frame carries no pixels
func (f *Frame) Empty() bool {
	return f == nil || len(f.Data) == 0 || f.Width <= 0 || f.Height <= 0
}

// BBox is an axis-aligned box in frame pixel coordinates
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

// Scale multiplies the box coordinates by the given factors
func (b BBox) Scale(sx, sy float64) BBox {
	return BBox{
		X1: int(float64(b.X1) * sx),
		Y1: int(float64(b.Y1) * sy),
		X2: int(float64(b.X2) * sx),
		Y2: int(float64(b.Y2) * sy),
	}
}

// Detection represents one object returned by the object detector
type Detection struct {
	BBox       BBox    `json:"bbox"`
	Confidence float32 `json:"confidence"`
	ClassID    int     `json:"class_id"`
	Label      string  `json:"label,omitempty"`
}

// AlertType represents the kind of event that raised an alert
type AlertType string

const (
	AlertTypePerson AlertType = "person"
	AlertTypeManual AlertType = "manual"
)

// MessagePublisher interface for publishing events
type MessagePublisher interface {
	Publish(subject string, data interface{}) error
}

// AlertRecord is created for every accepted alert trigger
type AlertRecord struct {
	Sequence  int64     `json:"sequence"`
	Timestamp time.Time `json:"timestamp"`
	Location  string    `json:"location"`
}

// AlertEvent is published on the message bus for every accepted alert
type AlertEvent struct {
	ID         string    `json:"id"`
	Sequence   int64     `json:"sequence"`
	Type       AlertType `json:"type"`
	CameraID   string    `json:"camera_id"`
	Location   string    `json:"location"`
	ImagePath  string    `json:"image_path,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	Recording  bool      `json:"recording"`
	Timestamp  time.Time `json:"timestamp"`
	Detections int       `json:"detections"`
}

// AlertStats exposes aggregate alerting state
type AlertStats struct {
	TotalAlerts      int64      `json:"total_alerts"`
	LastAlertTime    *time.Time `json:"last_alert_time,omitempty"`
	NotifierEnabled  bool       `json:"notifier_enabled"`
	RecordingEnabled bool       `json:"recording_enabled"`
	IsRecording      bool       `json:"is_recording"`
}

// AlertImage describes a saved alert snapshot
type AlertImage struct {
	Filename  string    `json:"filename"`
	Path      string    `json:"path"`
	Size      int64     `json:"size"`
	CreatedAt time.Time `json:"created_at"`
	URL       string    `json:"url"`
}

// RecordingEvent is published when a recording session is finalized
type RecordingEvent struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"`
	Reason    string    `json:"reason"`
	StartTime time.Time `json:"start_time"`
	Duration  float64   `json:"duration"`
	FileSize  int64     `json:"file_size"`
	Frames    int64     `json:"frames"`
}

// RecordingFile describes one stored recording
type RecordingFile struct {
	Filename      string    `json:"filename"`
	Path          string    `json:"path"`
	Size          int64     `json:"size"`
	SizeFormatted string    `json:"size_formatted"`
	ModTime       time.Time `json:"created"`
	URL           string    `json:"url"`
}

// RecordingCatalog groups recordings by year, month and day
type RecordingCatalog map[string]map[string]map[string][]RecordingFile
