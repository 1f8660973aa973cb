package validation

import (
	"fmt"
	"os"
	"path/filepath"

	"sd_backend/core"
)

// MinOutputFreeBytes is the free space below which the output directory
// check fails. A 1024x1024 PNG plus thumbnail is a few megabytes, so this
// leaves room for a long session.
const MinOutputFreeBytes int64 = 1 * core.BytesPerGB

// DiskSpaceInfo contains information about disk space.
type DiskSpaceInfo struct {
	Path           string
	Total          int64
	Free           int64
	Used           int64
	TotalFormatted string
	FreeFormatted  string
	UsedPercent    float64
}

// DiskSpaceError indicates a disk space problem.
type DiskSpaceError struct {
	Path      string
	Required  int64
	Available int64
}

func (e *DiskSpaceError) Error() string {
	return fmt.Sprintf("insufficient disk space at %s: need %s, have %s free",
		e.Path, core.FormatBytes(e.Required), core.FormatBytes(e.Available))
}

// GetDiskSpace returns disk space information for the filesystem holding
// path. A path that does not exist yet is resolved through its nearest
// existing parent, so the output directory can be checked before creation.
func GetDiskSpace(path string) (*DiskSpaceInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			if parent := filepath.Dir(path); parent != path {
				return GetDiskSpace(parent)
			}
		}
		return nil, fmt.Errorf("cannot access path %s: %w", path, err)
	}
	if !info.IsDir() {
		path = filepath.Dir(path)
	}

	total, free, err := getDiskSpace(path)
	if err != nil {
		return nil, fmt.Errorf("failed to get disk space for %s: %w", path, err)
	}

	used := total - free
	var usedPercent float64
	if total > 0 {
		usedPercent = float64(used) / float64(total) * 100
	}

	return &DiskSpaceInfo{
		Path:           path,
		Total:          total,
		Free:           free,
		Used:           used,
		TotalFormatted: core.FormatBytes(total),
		FreeFormatted:  core.FormatBytes(free),
		UsedPercent:    usedPercent,
	}, nil
}

// CheckDiskSpace verifies there is at least requiredBytes free at path.
// Returns a *DiskSpaceError when there is not.
func CheckDiskSpace(path string, requiredBytes int64) (*DiskSpaceInfo, error) {
	info, err := GetDiskSpace(path)
	if err != nil {
		return nil, err
	}
	if info.Free < requiredBytes {
		return info, &DiskSpaceError{Path: path, Required: requiredBytes, Available: info.Free}
	}
	return info, nil
}
