package validation

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// Category subdirectories expected under the models root.
var modelCategoryDirs = []string{"checkpoints", "loras", "vaes"}

// ErrNotDirectory is returned when a configured directory path is a file.
var ErrNotDirectory = errors.New("path is not a directory")

// CheckModelsDir reports whether the models root exists and how many of the
// category subdirectories are present. A missing root is an error. Missing
// categories are not: the catalog simply lists nothing for them.
func CheckModelsDir(root string) (present []string, err error) {
	info, err := os.Stat(root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("models directory not found: %s", root)
		}
		return nil, fmt.Errorf("error checking models directory %s: %w", root, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotDirectory, root)
	}

	for _, name := range modelCategoryDirs {
		if fi, err := os.Stat(filepath.Join(root, name)); err == nil && fi.IsDir() {
			present = append(present, name)
		}
	}
	return present, nil
}

// CheckDirWritable creates dir if needed and proves it is writable by
// creating and removing a probe file.
func CheckDirWritable(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("cannot create %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".probe-*")
	if err != nil {
		return fmt.Errorf("cannot write to %s: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}
