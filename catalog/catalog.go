// Package catalog lists the model files available to the service.
//
// Models live under category subdirectories of a models root:
//
//	models/
//	  checkpoints/  full diffusion checkpoints
//	  loras/        low-rank adapters
//	  vaes/         variational autoencoders
//
// Every scan reads the filesystem again, so files added or removed while
// the service runs are picked up on the next request.
package catalog

import (
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Catalog errors
var (
	ErrModelNotFound = errors.New("catalog: model not found")
	ErrInvalidPath   = errors.New("catalog: path escapes models root")
)

// ModelType is the category a model belongs to.
type ModelType string

const (
	TypeCheckpoint ModelType = "checkpoint"
	TypeLoRA       ModelType = "lora"
	TypeVAE        ModelType = "vae"
)

// Category describes one subdirectory of the models root.
type Category struct {
	Dir  string
	Name string
	Type ModelType
}

// Categories are scanned in this order. Find returns the first match, so a
// checkpoint wins over a LoRA with the same id.
var Categories = []Category{
	{Dir: "checkpoints", Name: "Checkpoints", Type: TypeCheckpoint},
	{Dir: "loras", Name: "LoRAs", Type: TypeLoRA},
	{Dir: "vaes", Name: "VAEs", Type: TypeVAE},
}

// ModelInfo identifies a model file. Path is relative to the models root
// and always uses forward slashes.
type ModelInfo struct {
	ID   string    `json:"id"`
	Name string    `json:"name"`
	Path string    `json:"path"`
	Type ModelType `json:"type"`
}

// ModelFolder groups the models of one category.
type ModelFolder struct {
	ID     string      `json:"id"`
	Name   string      `json:"name"`
	Models []ModelInfo `json:"models"`
}

// Catalog reads models from a root directory.
type Catalog struct {
	root   string
	logger *zap.Logger
}

// New creates a catalog rooted at root. A nil logger disables logging.
func New(root string, logger *zap.Logger) *Catalog {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Catalog{root: filepath.Clean(root), logger: logger}
}

// Root returns the models root directory.
func (c *Catalog) Root() string {
	return c.root
}

// Scan lists every model under the root, grouped by category. Categories
// with no models are omitted, and a missing category directory is not an
// error.
func (c *Catalog) Scan() ([]ModelFolder, error) {
	var folders []ModelFolder

	for _, cat := range Categories {
		models, err := c.scanCategory(cat)
		if err != nil {
			return nil, err
		}
		if len(models) > 0 {
			folders = append(folders, ModelFolder{ID: cat.Dir, Name: cat.Name, Models: models})
		}
	}

	c.logger.Debug("models scanned", zap.String("root", c.root), zap.Int("folders", len(folders)))
	return folders, nil
}

func (c *Catalog) scanCategory(cat Category) ([]ModelInfo, error) {
	dir := filepath.Join(c.root, cat.Dir)

	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("catalog: read %s: %w", dir, err)
	}

	var models []ModelInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !IsModelFile(name) {
			continue
		}
		id := DeriveID(name)
		if id == "" {
			c.logger.Debug("skipping model without a name", zap.String("file", name))
			continue
		}
		models = append(models, ModelInfo{
			ID:   id,
			Name: DeriveName(name),
			Path: path.Join(cat.Dir, name),
			Type: cat.Type,
		})
	}
	return models, nil
}

// Find returns the first model whose id matches.
func (c *Catalog) Find(id string) (ModelInfo, error) {
	folders, err := c.Scan()
	if err != nil {
		return ModelInfo{}, err
	}
	for _, folder := range folders {
		for _, m := range folder.Models {
			if m.ID == id {
				return m, nil
			}
		}
	}
	return ModelInfo{}, fmt.Errorf("%w: %s", ErrModelNotFound, id)
}

// AbsPath joins a root-relative model path onto the root.
func (c *Catalog) AbsPath(rel string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPath, rel)
	}
	return filepath.Join(c.root, clean), nil
}

// Verify reports whether rel names an existing file under the root.
// Paths that leave the root are reported as missing.
func (c *Catalog) Verify(rel string) bool {
	full, err := c.AbsPath(rel)
	if err != nil {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && !info.IsDir()
}
