package models

import (
	"time"
)

// CameraState represents the externally visible camera state
type CameraState string

const (
	CameraStateOnline   CameraState = "online"
	CameraStateOffline  CameraState = "offline"
	CameraStateDisabled CameraState = "disabled"
)

// String returns the string representation of CameraState
func (cs CameraState) String() string {
	return string(cs)
}

// CameraDescriptor is the configured identity of a camera
type CameraDescriptor struct {
	ID        string `json:"id" yaml:"id"`
	Name      string `json:"name" yaml:"name"`
	SourceURI string `json:"source_uri" yaml:"source_uri"`
	Enabled   bool   `json:"enabled" yaml:"enabled"`
}

// CameraUpdate carries a partial descriptor update; nil fields are left untouched
type CameraUpdate struct {
	Name      *string `json:"name,omitempty"`
	SourceURI *string `json:"source_uri,omitempty"`
	Enabled   *bool   `json:"enabled,omitempty"`
}

// Apply returns a copy of d with the non-nil fields of u applied
func (u CameraUpdate) Apply(d CameraDescriptor) CameraDescriptor {
	if u.Name != nil {
		d.Name = *u.Name
		if d.Name == "" {
			d.Name = d.ID
		}
	}
	if u.SourceURI != nil {
		d.SourceURI = *u.SourceURI
	}
	if u.Enabled != nil {
		d.Enabled = *u.Enabled
	}
	return d
}

// CameraRequest for API
type CameraRequest struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	SourceURI string `json:"source_uri" binding:"required"`
	Enabled   *bool  `json:"enabled,omitempty"` // Optional, defaults to true
}

// Descriptor converts the request into a descriptor
func (r CameraRequest) Descriptor() CameraDescriptor {
	enabled := true
	if r.Enabled != nil {
		enabled = *r.Enabled
	}
	return CameraDescriptor{
		ID:        r.ID,
		Name:      r.Name,
		SourceURI: r.SourceURI,
		Enabled:   enabled,
	}
}

// CameraStatus is the aggregated live view of one camera
type CameraStatus struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Connected       bool        `json:"connected"`
	State           CameraState `json:"state"`
	SourceURI       string      `json:"source_uri"`
	Enabled         bool        `json:"enabled"`
	MotionDetected  bool        `json:"motion_detected"`
	PersonDetected  bool        `json:"person_detected"`
	MotionEvents    int64       `json:"motion_events"`
	PersonEvents    int64       `json:"person_events"`
	DetectionCount  int64       `json:"detection_count"`
	LastFrame       *time.Time  `json:"last_frame,omitempty"`
	LastDetection   *time.Time  `json:"last_detection,omitempty"`
	LastInference   *time.Time  `json:"last_inference,omitempty"`
	DetectorActive  bool        `json:"detector_active"`
	FrameRate       float64     `json:"frame_rate"`
	ProcessInterval string      `json:"process_interval,omitempty"`
}

// OfflineStatus synthesizes the status of a camera without a running stream
func OfflineStatus(d CameraDescriptor) CameraStatus {
	state := CameraStateOffline
	if !d.Enabled {
		state = CameraStateDisabled
	}
	return CameraStatus{
		ID:        d.ID,
		Name:      d.Name,
		State:     state,
		SourceURI: d.SourceURI,
		Enabled:   d.Enabled,
	}
}

// TimePtr returns nil for the zero time so statuses omit unset timestamps
func TimePtr(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
