package file

import (
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var (
	disallowedChars = regexp.MustCompile(`[^A-Za-z0-9_.\-\s]`)
	whitespaceChars = regexp.MustCompile(`\s`)
)

// NameFunc returns the stem to use for a file. It receives the current stem
// and extension, the field being processed and the raw source the file came
// from. An empty result keeps the current stem.
type NameFunc func(stem, ext, field string, source any) string

// Sanitize folds accents ("é" -> "e"), maps whitespace to "_" and drops
// everything outside [A-Za-z0-9_.-].
func Sanitize(s string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	if folded, _, err := transform.String(t, s); err == nil {
		s = folded
	}
	s = disallowedChars.ReplaceAllString(s, "")
	return whitespaceChars.ReplaceAllString(s, "_")
}

// FormatName builds "<prepend><stem><append>.<ext>". The stem is sanitized and
// truncated to maxLength (when > 0) before the affixes are added, so the
// extension always survives.
func FormatName(stem, ext, appendStr, prependStr string, maxLength int) string {
	ext = strings.TrimPrefix(ext, ".")
	if ext != "" {
		stem = strings.TrimSuffix(stem, "."+ext)
	}

	name := Sanitize(stem)
	if maxLength > 0 && len(name) > maxLength {
		name = name[:maxLength]
	}
	if name == "" {
		name = uuid.New().String()[:8]
	}

	name = Sanitize(prependStr) + name + Sanitize(appendStr)
	if ext != "" {
		name += "." + Sanitize(ext)
	}
	return name
}

// Destination returns a free path in dir for the formatted name. Without
// overwrite, "-1", "-2", ... is appended until the name is unused; self is
// never considered a collision.
func Destination(dir, stem, ext, appendStr, prependStr string, maxLength int, overwrite bool, self string) string {
	target := filepath.Join(dir, FormatName(stem, ext, appendStr, prependStr, maxLength))
	if overwrite {
		return target
	}

	for n := 1; exists(target) && target != self; n++ {
		target = filepath.Join(dir, FormatName(stem, ext, appendStr+"-"+strconv.Itoa(n), prependStr, maxLength))
	}
	return target
}

// EnsureDir creates dir (and parents) if needed and makes it writable.
// Concurrent callers racing on the same dir all succeed.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	info, err := os.Stat(dir)
	if err != nil {
		return err
	}
	if info.Mode().Perm()&0o200 == 0 {
		return os.Chmod(dir, info.Mode().Perm()|0o700)
	}
	return nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func splitName(base string) (stem, ext string) {
	ext = filepath.Ext(base)
	stem = strings.TrimSuffix(base, ext)
	return stem, strings.TrimPrefix(ext, ".")
}
