package core

import (
	"os"
	"path/filepath"
	"runtime"
)

// AppName is the application name used in data directory paths.
const AppName = "SDBackend"

// GetDataDirectory returns the platform-specific directory for state that
// is not part of the outputs tree, such as the generation history database.
//
// Paths by platform:
//   - Windows: %APPDATA%/SDBackend
//   - Linux/macOS: ~/.sdbackend
//
// Does NOT create the directory.
func GetDataDirectory() string {
	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, AppName)
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return AppName
		}
		return filepath.Join(home, "AppData", "Roaming", AppName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ".sdbackend"
	}
	return filepath.Join(home, ".sdbackend")
}

// GetDataFilePath returns the full path for a file within the data directory.
func GetDataFilePath(filename string) string {
	return filepath.Join(GetDataDirectory(), filename)
}
