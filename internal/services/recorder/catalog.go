package recorder

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"sentinel-worker-go/internal/models"
)

// ErrInvalidPath is returned for download paths that escape the storage root
var ErrInvalidPath = errors.New("invalid recording path")

// Catalog groups every recording under root by year, month and day. URLs are
// built as <urlPrefix>/<year>/<month>/<day>/<file>.
func Catalog(root, urlPrefix string) (models.RecordingCatalog, error) {
	files, err := ScanRecordings(root)
	if err != nil {
		return nil, err
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Path < files[j].Path })

	catalog := models.RecordingCatalog{}
	for _, f := range files {
		months, ok := catalog[f.Year]
		if !ok {
			months = map[string]map[string][]models.RecordingFile{}
			catalog[f.Year] = months
		}
		days, ok := months[f.Month]
		if !ok {
			days = map[string][]models.RecordingFile{}
			months[f.Month] = days
		}
		name := filepath.Base(f.Path)
		days[f.Day] = append(days[f.Day], models.RecordingFile{
			Filename:      name,
			Path:          f.Path,
			Size:          f.Size,
			SizeFormatted: FormatSize(f.Size),
			ModTime:       f.ModTime,
			URL:           path.Join(urlPrefix, f.Year, f.Month, f.Day, name),
		})
	}
	return catalog, nil
}

// ResolvePath maps a catalog-relative path (year/month/day/file) to a file
// under root, rejecting anything that would leave it
func ResolvePath(root, rel string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(rel))
	if clean == string(filepath.Separator) || !strings.HasSuffix(clean, VideoExtension) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	full := filepath.Join(root, clean)

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", err
	}
	absFull, err := filepath.Abs(full)
	if err != nil {
		return "", err
	}
	if !strings.HasPrefix(absFull, absRoot+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	return full, nil
}
