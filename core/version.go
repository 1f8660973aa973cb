package core

// Build metadata, injected with:
//
//	go build -ldflags "-X sd_backend/core.Version=$(git describe --tags --always) -X sd_backend/core.GitCommit=$(git rev-parse --short HEAD)"
var (
	Version   = "dev"
	GitCommit = "unknown"
)

// GetVersionInfo returns a formatted version string such as "v1.2.0 (commit abc1234)".
func GetVersionInfo() string {
	return Version + " (commit " + GitCommit + ")"
}
