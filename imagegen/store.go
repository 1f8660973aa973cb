package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"sd_backend/core"
)

// TempFilePattern names in-progress writes. Files matching it are never
// visible under their final name and can be removed at startup or shutdown.
const TempFilePattern = ".tmp-*"

// Store persists generated images under an outputs root:
//
//	images/<id>.png       full resolution
//	thumbnails/<id>.png   fitted into the thumbnail box
//	images/<id>.json      sidecar, written last
//
// A sidecar on disk implies both PNGs exist. Store holds no locks; every
// image gets its own files, so concurrent Persist calls never collide.
type Store struct {
	imagesDir string
	thumbsDir string
	thumbBox  core.Size
	logger    *zap.Logger

	newID func() string
	now   func() time.Time
}

// NewStore creates the output directories and returns a store over them.
func NewStore(outputDir string, thumbBox core.Size, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		imagesDir: filepath.Join(outputDir, "images"),
		thumbsDir: filepath.Join(outputDir, "thumbnails"),
		thumbBox:  thumbBox,
		logger:    logger,
		newID:     uuid.NewString,
		now:       time.Now,
	}
	for _, dir := range []string{s.imagesDir, s.thumbsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %w", ErrIO, dir, err)
		}
	}
	return s, nil
}

// ImagePath returns the full-resolution file for id.
func (s *Store) ImagePath(id string) string {
	return filepath.Join(s.imagesDir, id+".png")
}

// ThumbnailPath returns the thumbnail file for id.
func (s *Store) ThumbnailPath(id string) string {
	return filepath.Join(s.thumbsDir, id+".png")
}

// SidecarPath returns the metadata file for id.
func (s *Store) SidecarPath(id string) string {
	return filepath.Join(s.imagesDir, id+".json")
}

// Dirs returns the directories the store writes to.
func (s *Store) Dirs() []string {
	return []string{s.imagesDir, s.thumbsDir}
}

// Persist writes img, its thumbnail and its sidecar, in that order, and
// returns the record stored in the sidecar. Errors wrap ErrIO. Files
// written before a failure are left in place. A finished image is written
// even when ctx is already cancelled.
func (s *Store) Persist(ctx context.Context, img image.Image, params GenerationParameters, seed int64) (GeneratedImage, error) {
	id := s.newID()
	record := GeneratedImage{
		ID:             id,
		URL:            ImageURL(id),
		Prompt:         params.Prompt,
		NegativePrompt: params.NegativePrompt,
		Parameters:     params,
		Seed:           seed,
		Timestamp:      s.now().Unix(),
	}

	if err := writePNG(s.ImagePath(id), img); err != nil {
		return GeneratedImage{}, err
	}
	if err := writePNG(s.ThumbnailPath(id), Thumbnail(img, s.thumbBox)); err != nil {
		return GeneratedImage{}, err
	}

	data, err := json.Marshal(record)
	if err != nil {
		return GeneratedImage{}, fmt.Errorf("%w: encode sidecar: %w", ErrIO, err)
	}
	if err := writeFileAtomic(s.SidecarPath(id), data); err != nil {
		return GeneratedImage{}, err
	}

	s.logger.Debug("image persisted", zap.String("image_id", id), zap.Int64("seed", seed))
	return record, nil
}

// Get reads the record for id from its sidecar. A missing sidecar is
// ErrNotFound even when the PNGs exist.
func (s *Store) Get(id string) (GeneratedImage, error) {
	if !validID(id) {
		return GeneratedImage{}, fmt.Errorf("%w: image %s", ErrNotFound, id)
	}

	data, err := os.ReadFile(s.SidecarPath(id))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return GeneratedImage{}, fmt.Errorf("%w: image %s", ErrNotFound, id)
		}
		return GeneratedImage{}, fmt.Errorf("%w: read sidecar %s: %w", ErrIO, id, err)
	}

	var record GeneratedImage
	if err := json.Unmarshal(data, &record); err != nil {
		return GeneratedImage{}, fmt.Errorf("%w: decode sidecar %s: %w", ErrIO, id, err)
	}
	return record, nil
}

// Delete removes the files of id. The sidecar goes first so a record is
// never visible without its images; the PNGs are then removed best-effort
// and failures are logged. Deleting an id without a sidecar is ErrNotFound.
func (s *Store) Delete(id string) error {
	if !validID(id) {
		return fmt.Errorf("%w: image %s", ErrNotFound, id)
	}

	if err := os.Remove(s.SidecarPath(id)); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("%w: image %s", ErrNotFound, id)
		}
		return fmt.Errorf("%w: delete sidecar %s: %w", ErrIO, id, err)
	}

	for _, path := range []string{s.ImagePath(id), s.ThumbnailPath(id)} {
		if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("failed to remove image file",
				zap.String("image_id", id),
				zap.String("path", path),
				zap.Error(err))
		}
	}
	return nil
}

// validID accepts canonical UUIDs only, which also keeps ids from naming
// files outside the store.
func validID(id string) bool {
	parsed, err := uuid.Parse(id)
	return err == nil && parsed.String() == id
}

func writePNG(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return fmt.Errorf("%w: encode %s: %w", ErrIO, filepath.Base(path), err)
	}
	return writeFileAtomic(path, buf.Bytes())
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it into place.
func writeFileAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, TempFilePattern)
	if err != nil {
		return fmt.Errorf("%w: create temp file in %s: %w", ErrIO, dir, err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("%w: write %s: %w", ErrIO, filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrIO, filepath.Base(path), err)
	}
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("%w: chmod %s: %w", ErrIO, filepath.Base(path), err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: rename %s: %w", ErrIO, filepath.Base(path), err)
	}

	success = true
	return nil
}
