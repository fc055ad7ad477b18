package mime

import (
	"errors"
	"sort"
	"strings"
)

// Classification groups
const (
	GroupImage       = "image"
	GroupText        = "text"
	GroupArchive     = "archive"
	GroupAudio       = "audio"
	GroupVideo       = "video"
	GroupApplication = "application"
)

var (
	ErrUnknownExtension = errors.New("extension is not registered")
	ErrMimeMismatch     = errors.New("mime type does not match extension")
)

// Table maps group -> extension -> candidate mime types.
// The first candidate is the canonical mime type for the extension.
type Table map[string]map[string][]string

type entry struct {
	group string
	mimes []string
}

// Registry is a read-only lookup over a Table. It is safe for concurrent use
// because nothing mutates it after New returns.
type Registry struct {
	groups []string
	byExt  map[string][]entry
	byMime map[string]string
}

// WithPreferred returns a copy of r whose ExtensionForMime answers come from
// preferred first (mime -> extension).
func (r *Registry) WithPreferred(preferred map[string]string) *Registry {
	c := &Registry{
		groups: r.groups,
		byExt:  r.byExt,
		byMime: make(map[string]string, len(r.byMime)),
	}
	for m, ext := range r.byMime {
		c.byMime[m] = ext
	}
	for m, ext := range preferred {
		c.byMime[Normalize(m)] = normalizeExt(ext)
	}
	return c
}

// New builds a registry from table. The table is copied.
func New(table Table) *Registry {
	r := &Registry{
		byExt:  make(map[string][]entry),
		byMime: make(map[string]string),
	}

	for group := range table {
		r.groups = append(r.groups, group)
	}
	sort.Strings(r.groups)

	for _, group := range r.groups {
		exts := make([]string, 0, len(table[group]))
		for ext := range table[group] {
			exts = append(exts, ext)
		}
		sort.Strings(exts)

		for _, ext := range exts {
			mimes := make([]string, 0, len(table[group][ext]))
			for _, m := range table[group][ext] {
				mimes = append(mimes, strings.ToLower(m))
			}
			key := normalizeExt(ext)
			r.byExt[key] = append(r.byExt[key], entry{group: group, mimes: mimes})

			for _, m := range mimes {
				if _, ok := r.byMime[m]; !ok {
					r.byMime[m] = key
				}
			}
		}
	}

	return r
}

// Groups returns the registered group names in sorted order.
func (r *Registry) Groups() []string {
	return append([]string(nil), r.groups...)
}

// Classify returns the group of a file with the given extension and mime type.
// The extension must be registered and the mime type must be one of its candidates.
func (r *Registry) Classify(ext, mimeType string) (string, error) {
	entries, ok := r.byExt[normalizeExt(ext)]
	if !ok {
		return "", ErrUnknownExtension
	}

	mimeType = Normalize(mimeType)
	for _, e := range entries {
		for _, m := range e.mimes {
			if m == mimeType {
				return e.group, nil
			}
		}
	}

	return "", ErrMimeMismatch
}

// MimeForExtension returns the canonical mime type for ext.
func (r *Registry) MimeForExtension(ext string) (string, bool) {
	entries, ok := r.byExt[normalizeExt(ext)]
	if !ok || len(entries[0].mimes) == 0 {
		return "", false
	}
	return entries[0].mimes[0], true
}

// GroupForExtension returns the first group ext is registered under.
func (r *Registry) GroupForExtension(ext string) (string, bool) {
	entries, ok := r.byExt[normalizeExt(ext)]
	if !ok {
		return "", false
	}
	return entries[0].group, true
}

// ExtensionForMime returns an extension registered for mimeType.
func (r *Registry) ExtensionForMime(mimeType string) (string, bool) {
	ext, ok := r.byMime[Normalize(mimeType)]
	return ext, ok
}

// Normalize lowercases a mime type and strips parameters ("text/plain; charset=utf-8" -> "text/plain").
func Normalize(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}
