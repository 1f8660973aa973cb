package catalog

import (
	"strings"
	"unicode"
)

// =============================================================================
// Naming Atoms
// =============================================================================
//
// Pure functions that turn a model filename into its catalog id and display
// name. They have no dependencies on the filesystem.

// ModelExtensions are the weight file formats the catalog lists.
var ModelExtensions = []string{".safetensors", ".ckpt", ".pt"}

// IsModelFile reports whether name has one of ModelExtensions.
// The comparison ignores case.
func IsModelFile(name string) bool {
	lower := strings.ToLower(name)
	for _, ext := range ModelExtensions {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

// Stem returns the text before the first '.' in a filename.
// For "sd_xl.base.safetensors" it returns "sd_xl".
func Stem(filename string) string {
	if i := strings.IndexByte(filename, '.'); i >= 0 {
		return filename[:i]
	}
	return filename
}

// DeriveID returns the catalog id for a filename: the stem, lowercased,
// with spaces replaced by hyphens.
func DeriveID(filename string) string {
	return strings.ReplaceAll(strings.ToLower(Stem(filename)), " ", "-")
}

// DeriveName returns the display name for a filename: the stem with
// underscores replaced by spaces, title-cased.
func DeriveName(filename string) string {
	return titleCase(strings.ReplaceAll(Stem(filename), "_", " "))
}

// titleCase upper-cases every letter that follows a non-letter and
// lower-cases the rest, so "sd15abc v2" becomes "Sd15Abc V2".
func titleCase(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	prevLetter := false
	for _, r := range s {
		if unicode.IsLetter(r) {
			if prevLetter {
				r = unicode.ToLower(r)
			} else {
				r = unicode.ToTitle(r)
			}
			prevLetter = true
		} else {
			prevLetter = false
		}
		b.WriteRune(r)
	}
	return b.String()
}
