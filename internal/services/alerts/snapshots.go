package alerts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"sentinel-worker-go/internal/models"
)

const (
	snapshotPrefix = "alert_"
	snapshotExt    = ".jpg"
	snapshotLayout = "20060102_150405"
)

// ErrInvalidSnapshot is returned for names that are not alert snapshots
var ErrInvalidSnapshot = errors.New("invalid snapshot name")

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

// ImageEncoder turns a frame into JPEG bytes
type ImageEncoder interface {
	EncodeJPEG(frame *models.Frame) ([]byte, error)
}

// ObjectStore mirrors snapshots to remote storage and returns their URL
type ObjectStore interface {
	SaveSnapshot(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// SnapshotStore writes alert images to a directory, optionally mirroring
// them to an object store
type SnapshotStore struct {
	dir     string
	encoder ImageEncoder
	mirror  ObjectStore
	logger  zerolog.Logger
}

func NewSnapshotStore(dir string, encoder ImageEncoder, mirror ObjectStore, logger zerolog.Logger) (*SnapshotStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create alerts directory: %w", err)
	}
	return &SnapshotStore{dir: dir, encoder: encoder, mirror: mirror, logger: logger}, nil
}

// SnapshotName returns alert_<YYYYmmdd_HHMMSS>_<camera>.jpg
func SnapshotName(cameraID string, at time.Time) string {
	id := unsafeChars.ReplaceAllString(cameraID, "-")
	if id == "" {
		id = "camera"
	}
	return snapshotPrefix + at.Format(snapshotLayout) + "_" + id + snapshotExt
}

// Save encodes and writes frame. The mirror URL is empty when no mirror is
// configured or the upload failed.
func (s *SnapshotStore) Save(ctx context.Context, frame *models.Frame, cameraID string, at time.Time) (string, string, error) {
	data, err := s.encoder.EncodeJPEG(frame)
	if err != nil {
		return "", "", fmt.Errorf("failed to encode snapshot: %w", err)
	}

	name := SnapshotName(cameraID, at)
	path := filepath.Join(s.dir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", "", fmt.Errorf("failed to write snapshot: %w", err)
	}

	var url string
	if s.mirror != nil {
		key := fmt.Sprintf("%s/%s", at.Format("2006/01/02"), name)
		if url, err = s.mirror.SaveSnapshot(ctx, key, data, "image/jpeg"); err != nil {
			s.logger.Warn().Err(err).Str("key", key).Msg("Failed to mirror alert snapshot")
			url = ""
		}
	}
	return path, url, nil
}

// List returns saved snapshots newest first, at most max entries when max > 0
func (s *SnapshotStore) List(max int, urlPrefix string) ([]models.AlertImage, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []models.AlertImage{}, nil
		}
		return nil, err
	}

	images := make([]models.AlertImage, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !isSnapshotName(entry.Name()) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		created := info.ModTime()
		if t, ok := parseSnapshotTime(entry.Name()); ok {
			created = t
		}
		images = append(images, models.AlertImage{
			Filename:  entry.Name(),
			Path:      filepath.Join(s.dir, entry.Name()),
			Size:      info.Size(),
			CreatedAt: created,
			URL:       strings.TrimSuffix(urlPrefix, "/") + "/" + entry.Name(),
		})
	}

	sort.Slice(images, func(i, j int) bool {
		if images[i].CreatedAt.Equal(images[j].CreatedAt) {
			return images[i].Filename > images[j].Filename
		}
		return images[i].CreatedAt.After(images[j].CreatedAt)
	})
	if max > 0 && len(images) > max {
		images = images[:max]
	}
	return images, nil
}

// Resolve returns the on-disk path of a snapshot by name
func (s *SnapshotStore) Resolve(name string) (string, error) {
	if name != filepath.Base(name) || !isSnapshotName(name) {
		return "", fmt.Errorf("%w: %s", ErrInvalidSnapshot, name)
	}
	return filepath.Join(s.dir, name), nil
}

func isSnapshotName(name string) bool {
	return strings.HasPrefix(name, snapshotPrefix) && strings.HasSuffix(name, snapshotExt)
}

func parseSnapshotTime(name string) (time.Time, bool) {
	stem := strings.TrimPrefix(name, snapshotPrefix)
	if len(stem) < len(snapshotLayout) {
		return time.Time{}, false
	}
	t, err := time.ParseInLocation(snapshotLayout, stem[:len(snapshotLayout)], time.Local)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
