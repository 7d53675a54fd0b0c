package recorder

import (
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// LowWatermark is the fraction of the quota an eviction pass shrinks usage to
const LowWatermark = 0.8

// StoredFile is a recording discovered on disk
type StoredFile struct {
	Path    string
	Year    string
	Month   string
	Day     string
	Size    int64
	ModTime time.Time
}

// EvictionResult summarizes one eviction pass
type EvictionResult struct {
	TotalBefore int64
	TotalAfter  int64
	Removed     []string
}

// ScanRecordings walks <root>/<year>/<month>/<day>/*.mp4. Unreadable entries
// are skipped. A missing root yields no files.
func ScanRecordings(root string) ([]StoredFile, error) {
	years, err := os.ReadDir(root)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var files []StoredFile
	for _, year := range years {
		if !year.IsDir() {
			continue
		}
		yearPath := filepath.Join(root, year.Name())
		months, err := os.ReadDir(yearPath)
		if err != nil {
			continue
		}
		for _, month := range months {
			if !month.IsDir() {
				continue
			}
			monthPath := filepath.Join(yearPath, month.Name())
			days, err := os.ReadDir(monthPath)
			if err != nil {
				continue
			}
			for _, day := range days {
				if !day.IsDir() {
					continue
				}
				dayPath := filepath.Join(monthPath, day.Name())
				entries, err := os.ReadDir(dayPath)
				if err != nil {
					continue
				}
				for _, entry := range entries {
					if entry.IsDir() || !strings.HasSuffix(entry.Name(), VideoExtension) {
						continue
					}
					info, err := entry.Info()
					if err != nil {
						continue
					}
					files = append(files, StoredFile{
						Path:    filepath.Join(dayPath, entry.Name()),
						Year:    year.Name(),
						Month:   month.Name(),
						Day:     day.Name(),
						Size:    info.Size(),
						ModTime: info.ModTime(),
					})
				}
			}
		}
	}
	return files, nil
}

// Evict deletes the oldest recordings under root once their total size
// exceeds quota, stopping when usage is at or below LowWatermark × quota.
// Failed deletions are logged and skipped.
func Evict(root string, quota int64, logger zerolog.Logger) (EvictionResult, error) {
	files, err := ScanRecordings(root)
	if err != nil {
		return EvictionResult{}, err
	}

	var total int64
	for _, f := range files {
		total += f.Size
	}
	result := EvictionResult{TotalBefore: total, TotalAfter: total}
	if total <= quota {
		return result, nil
	}

	sort.SliceStable(files, func(i, j int) bool {
		return files[i].ModTime.Before(files[j].ModTime)
	})

	target := int64(float64(quota) * LowWatermark)
	for _, f := range files {
		if total <= target {
			break
		}
		if err := os.Remove(f.Path); err != nil {
			logger.Error().Err(err).Str("path", f.Path).Msg("Failed to remove old recording")
			continue
		}
		total -= f.Size
		result.Removed = append(result.Removed, f.Path)
		logger.Info().Str("path", f.Path).Int64("size_bytes", f.Size).Msg("Removed old recording")

		// Only succeeds when the day directory is now empty
		_ = os.Remove(filepath.Dir(f.Path))
	}
	result.TotalAfter = total

	logger.Info().
		Int64("total_before", result.TotalBefore).
		Int64("total_after", result.TotalAfter).
		Int64("quota", quota).
		Int("removed", len(result.Removed)).
		Msg("Recording storage trimmed")
	return result, nil
}
