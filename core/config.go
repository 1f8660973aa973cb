package core

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Device names accepted by SD_DEVICE.
const (
	DeviceAuto = "auto"
	DeviceCUDA = "cuda"
	DeviceCPU  = "cpu"
)

// Config holds all configuration values
type Config struct {
	// Filesystem layout
	ModelsDir string // Root containing checkpoints/, loras/, vaes/
	OutputDir string // Root containing images/ and thumbnails/
	ThumbSize Size   // Thumbnail bounding box

	// Server Configuration
	Host        string
	Port        int
	CORSOrigins []string

	// Logging
	DevMode  bool
	LogLevel string // Empty means the mode default
	LogFile  string

	// Inference
	Device        string // auto, cuda or cpu
	MaxConcurrent int    // Concurrent inference calls

	// Generation history
	DBPath               string
	HistoryRetentionDays int
	HistoryCleanupSpec   string

	ShutdownTimeout time.Duration
}

// Size is a width/height pair parsed from "WxH".
type Size struct {
	Width  int
	Height int
}

func (s Size) String() string {
	return fmt.Sprintf("%dx%d", s.Width, s.Height)
}

// Default configuration values
const (
	DefaultModelsDir            = "./models"
	DefaultOutputDir            = "./outputs"
	DefaultHost                 = "0.0.0.0"
	DefaultPort                 = 8000
	DefaultLogFile              = "app.log"
	DefaultMaxConcurrent        = 1
	DefaultHistoryRetentionDays = 30
	DefaultHistoryCleanupSpec   = "@daily"
	DefaultShutdownSeconds      = 60
	DefaultThumbEdge            = 300

	maxConcurrentLimit = 8
)

// LoadConfig loads configuration from environment variables with defaults
// suitable for a single-workstation deployment. Nothing is required.
func LoadConfig() (*Config, error) {
	thumb, err := ParseSizeEnv("THUMB_SIZE", Size{Width: DefaultThumbEdge, Height: DefaultThumbEdge})
	if err != nil {
		return nil, err
	}

	device := strings.ToLower(GetEnvOrDefault("SD_DEVICE", DeviceAuto))
	switch device {
	case DeviceAuto, DeviceCUDA, DeviceCPU:
	default:
		return nil, ErrInvalidValue("SD_DEVICE", device, "use auto, cuda or cpu")
	}

	maxConcurrent := ParseIntEnv("SD_MAX_CONCURRENT", DefaultMaxConcurrent)
	if maxConcurrent < 1 || maxConcurrent > maxConcurrentLimit {
		return nil, ErrInvalidValue("SD_MAX_CONCURRENT", fmt.Sprint(maxConcurrent),
			fmt.Sprintf("use a value between 1 and %d", maxConcurrentLimit))
	}

	port := ParseIntEnv("PORT", DefaultPort)
	if port < 1 || port > 65535 {
		return nil, ErrInvalidValue("PORT", fmt.Sprint(port), "use a TCP port between 1 and 65535")
	}

	retention := ParseIntEnv("HISTORY_RETENTION_DAYS", DefaultHistoryRetentionDays)
	if retention < 0 {
		return nil, ErrInvalidValue("HISTORY_RETENTION_DAYS", fmt.Sprint(retention), "use 0 to disable cleanup or a positive number of days")
	}

	dbPath := os.Getenv("DB_PATH")
	if dbPath == "" {
		dbPath = GetDataFilePath("history.db")
	}

	return &Config{
		ModelsDir: filepath.Clean(GetEnvOrDefault("MODELS_DIR", DefaultModelsDir)),
		OutputDir: filepath.Clean(GetEnvOrDefault("OUTPUT_DIR", DefaultOutputDir)),
		ThumbSize: thumb,

		Host:        GetEnvOrDefault("HOST", DefaultHost),
		Port:        port,
		CORSOrigins: ParseListEnv("CORS_ORIGINS", []string{"*"}),

		DevMode:  ParseBoolEnv("DEV_MODE", false),
		LogLevel: os.Getenv("LOG_LEVEL"),
		LogFile:  GetEnvOrDefault("LOG_FILE", DefaultLogFile),

		Device:        device,
		MaxConcurrent: maxConcurrent,

		DBPath:               dbPath,
		HistoryRetentionDays: retention,
		HistoryCleanupSpec:   GetEnvOrDefault("HISTORY_CLEANUP_SCHEDULE", DefaultHistoryCleanupSpec),

		ShutdownTimeout: ParseDurationEnv("SHUTDOWN_TIMEOUT", DefaultShutdownSeconds),
	}, nil
}

// Addr returns the host:port pair the HTTP server binds to.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// ImagesDir is where full-resolution images and their sidecars live.
func (c *Config) ImagesDir() string {
	return filepath.Join(c.OutputDir, "images")
}

// ThumbnailsDir is where thumbnails live.
func (c *Config) ThumbnailsDir() string {
	return filepath.Join(c.OutputDir, "thumbnails")
}

// EnsureOutputDirs creates the images and thumbnails directories.
func (c *Config) EnsureOutputDirs() error {
	for _, dir := range []string{c.ImagesDir(), c.ThumbnailsDir()} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return ErrDirectoryUnusable(dir, err)
		}
	}
	return nil
}
