package recorder

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// VideoExtension is the container extension of every recording
const VideoExtension = ".mp4"

const (
	filenamePrefix = "clip_"
	filenameLayout = "15-04h02-01-06"
)

// MonthDir names a month directory, e.g. "03_March"
func MonthDir(t time.Time) string {
	return fmt.Sprintf("%02d_%s", int(t.Month()), t.Month().String())
}

// DayDir returns <root>/<year>/<NN_Month>/<DD> for t
func DayDir(root string, t time.Time) string {
	return filepath.Join(root, strconv.Itoa(t.Year()), MonthDir(t), fmt.Sprintf("%02d", t.Day()))
}

// Filename returns clip_HH-MMhDD-MM-YY.mp4 for t
func Filename(t time.Time) string {
	return filenamePrefix + t.Format(filenameLayout) + VideoExtension
}

// NextPath creates the day directory for t and returns a recording path that
// does not collide with an existing file from the same minute
func NextPath(root string, t time.Time) (string, error) {
	dir := DayDir(root, t)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create recording directory %s: %w", dir, err)
	}

	name := Filename(t)
	path := filepath.Join(dir, name)
	base := strings.TrimSuffix(name, VideoExtension)
	for n := 2; ; n++ {
		if _, err := os.Stat(path); os.IsNotExist(err) {
			return path, nil
		}
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", base, n, VideoExtension))
	}
}

// ParseFilename recovers the minute a recording was started from its name.
// The returned time is in loc.
func ParseFilename(name string, loc *time.Location) (time.Time, error) {
	if !strings.HasPrefix(name, filenamePrefix) || !strings.HasSuffix(name, VideoExtension) {
		return time.Time{}, fmt.Errorf("not a recording filename: %q", name)
	}
	stem := strings.TrimSuffix(strings.TrimPrefix(name, filenamePrefix), VideoExtension)
	if len(stem) > len(filenameLayout) {
		stem = stem[:len(filenameLayout)]
	}
	t, err := time.ParseInLocation(filenameLayout, stem, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("not a recording filename: %q: %w", name, err)
	}
	return t, nil
}

// FormatSize renders a byte count the way the dashboard displays it
func FormatSize(size int64) string {
	if size == 0 {
		return "0 B"
	}
	value := float64(size)
	for _, unit := range []string{"B", "KB", "MB", "GB"} {
		if value < 1024 {
			return fmt.Sprintf("%.1f %s", value, unit)
		}
		value /= 1024
	}
	return fmt.Sprintf("%.1f TB", value)
}
