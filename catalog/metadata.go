package catalog

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"sd_backend/core"
)

// Format names reported by Metadata.
const (
	FormatSafeTensors = "SafeTensors"
	FormatCheckpoint  = "Checkpoint"
)

// Default native resolutions by model family.
const (
	ResolutionSD15 = "512x512"
	ResolutionSDXL = "1024x1024"
)

// ModelMetadata describes a model file. Size is in gigabytes.
type ModelMetadata struct {
	Format        string   `json:"format"`
	Size          float64  `json:"size"`
	Resolution    string   `json:"resolution"`
	Description   string   `json:"description,omitempty"`
	TriggerTokens []string `json:"triggerTokens,omitempty"`
}

// sidecarMetadata is the optional <stem>.yaml file next to a model:
//
//	resolution: 768x768
//	description: Anime-style fine-tune
//	trigger_tokens: [lineart, flat color]
type sidecarMetadata struct {
	Resolution    string   `yaml:"resolution"`
	Description   string   `yaml:"description"`
	TriggerTokens []string `yaml:"trigger_tokens"`
}

// Metadata returns format, size and resolution for the model with id.
// Values from a YAML sidecar override the derived ones.
func (c *Catalog) Metadata(id string) (ModelMetadata, error) {
	model, err := c.Find(id)
	if err != nil {
		return ModelMetadata{}, err
	}

	full, err := c.AbsPath(model.Path)
	if err != nil {
		return ModelMetadata{}, err
	}
	info, err := os.Stat(full)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return ModelMetadata{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
		}
		return ModelMetadata{}, fmt.Errorf("catalog: stat %s: %w", full, err)
	}

	meta := ModelMetadata{
		Format:     FormatCheckpoint,
		Size:       core.BytesToGB(info.Size()),
		Resolution: ResolutionSDXL,
	}
	if strings.HasSuffix(strings.ToLower(model.Path), ".safetensors") {
		meta.Format = FormatSafeTensors
	}
	if strings.Contains(model.ID, "sd15") {
		meta.Resolution = ResolutionSD15
	}

	sidecar, err := readSidecar(sidecarPath(full))
	if err != nil {
		c.logger.Warn("ignoring unreadable model sidecar",
			zap.String("model", model.ID),
			zap.Error(err))
		return meta, nil
	}
	if sidecar.Resolution != "" {
		meta.Resolution = sidecar.Resolution
	}
	meta.Description = sidecar.Description
	meta.TriggerTokens = sidecar.TriggerTokens
	return meta, nil
}

// sidecarPath maps "loras/foo.v2.safetensors" to "loras/foo.v2.yaml".
func sidecarPath(modelPath string) string {
	for _, ext := range ModelExtensions {
		if strings.HasSuffix(strings.ToLower(modelPath), ext) {
			return modelPath[:len(modelPath)-len(ext)] + ".yaml"
		}
	}
	return modelPath + ".yaml"
}

// readSidecar returns an empty value when the file does not exist.
func readSidecar(path string) (sidecarMetadata, error) {
	var meta sidecarMetadata

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return meta, nil
		}
		return meta, err
	}
	if err := yaml.Unmarshal(data, &meta); err != nil {
		return sidecarMetadata{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return meta, nil
}
