package file

import (
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/templui/transit/internal/mime"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

var (
	ErrNotImage = errors.New("file is not an image")
	ErrDeleted  = errors.New("file has been deleted")
)

const octetStream = "application/octet-stream"

// File wraps a single path on disk. Rename and Move perform the filesystem
// operation and update the stored path together.
type File struct {
	path     string
	registry *mime.Registry
	deleted  bool
}

// Dimensions of a decoded image header.
type Dimensions struct {
	Width  int
	Height int
}

// New wraps an existing regular file.
func New(path string, registry *mime.Registry) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path: %w", err)
	}

	info, err := os.Stat(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%s is a directory", abs)
	}

	if registry == nil {
		registry = mime.Default()
	}
	return &File{path: abs, registry: registry}, nil
}

// Create writes r into dir under the sanitized name and wraps the result.
// Data goes to a temp file first and is then moved into place. Without
// overwrite the name is claimed atomically, so concurrent writers of the
// same name each get their own file.
func Create(dir, name string, r io.Reader, overwrite bool, registry *mime.Registry) (*File, error) {
	if err := EnsureDir(dir); err != nil {
		return nil, fmt.Errorf("failed to prepare directory: %w", err)
	}

	stem, ext := splitName(filepath.Base(name))

	tmp, err := os.CreateTemp(dir, ".transit-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to write data: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to close temp file: %w", err)
	}

	var target string
	if overwrite {
		target = Destination(dir, stem, ext, "", "", 0, true, "")
		err = os.Rename(tmpPath, target)
	} else {
		target, err = claim(tmpPath, func() string {
			return Destination(dir, stem, ext, "", "", 0, false, "")
		})
	}
	if err != nil {
		os.Remove(tmpPath)
		return nil, fmt.Errorf("failed to place file: %w", err)
	}

	return New(target, registry)
}

// maxClaims bounds the retries when writers keep racing for the same names.
const maxClaims = 100

// claim links tmp to the name next returns and removes tmp. Linking fails
// when the name exists, in which case next is asked again.
func claim(tmp string, next func() string) (string, error) {
	for i := 0; i < maxClaims; i++ {
		target := next()
		err := os.Link(tmp, target)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if err := os.Remove(tmp); err != nil {
			os.Remove(target)
			return "", err
		}
		return target, nil
	}
	return "", fmt.Errorf("no free name after %d attempts", maxClaims)
}

func (f *File) Path() string {
	return f.path
}

func (f *File) Dir() string {
	return filepath.Dir(f.path)
}

// Basename is the name with extension.
func (f *File) Basename() string {
	return filepath.Base(f.path)
}

// Name is the basename without extension.
func (f *File) Name() string {
	stem, _ := splitName(f.Basename())
	return stem
}

// Extension is lowercase and without the leading dot.
func (f *File) Extension() string {
	_, ext := splitName(f.Basename())
	return strings.ToLower(ext)
}

func (f *File) Registry() *mime.Registry {
	return f.registry
}

func (f *File) Deleted() bool {
	return f.deleted
}

func (f *File) Size() (int64, error) {
	if f.deleted {
		return 0, ErrDeleted
	}

	info, err := os.Stat(f.path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}

// MimeType sniffs the content. When sniffing is inconclusive and the
// extension is registered outside the image group, the registry's mime type
// for the extension is used instead.
func (f *File) MimeType() (string, error) {
	if f.deleted {
		return "", ErrDeleted
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return "", err
	}
	defer fh.Close()

	buf := make([]byte, 512)
	n, err := fh.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}

	detected := mime.Normalize(http.DetectContentType(buf[:n]))
	if detected != octetStream && detected != "text/plain" {
		return detected, nil
	}

	group, ok := f.registry.GroupForExtension(f.Extension())
	if !ok || group == mime.GroupImage {
		return detected, nil
	}
	if detected == "text/plain" && group != mime.GroupText {
		return detected, nil
	}
	if m, ok := f.registry.MimeForExtension(f.Extension()); ok {
		return m, nil
	}
	return detected, nil
}

// Group returns the classification group, or "" when the file does not classify.
func (f *File) Group() string {
	m, err := f.MimeType()
	if err != nil {
		return ""
	}
	group, err := f.registry.Classify(f.Extension(), m)
	if err != nil {
		return ""
	}
	return group
}

func (f *File) IsImage() bool {
	m, err := f.MimeType()
	return err == nil && strings.HasPrefix(m, "image/")
}

// Dimensions decodes the image header. Non-images return ErrNotImage.
func (f *File) Dimensions() (Dimensions, error) {
	if f.deleted {
		return Dimensions{}, ErrDeleted
	}
	if !f.IsImage() {
		return Dimensions{}, ErrNotImage
	}

	fh, err := os.Open(f.path)
	if err != nil {
		return Dimensions{}, err
	}
	defer fh.Close()

	cfg, _, err := image.DecodeConfig(fh)
	if err != nil {
		return Dimensions{}, ErrNotImage
	}
	return Dimensions{Width: cfg.Width, Height: cfg.Height}, nil
}

// Rename gives the file a new name in its current directory. The extension is kept.
func (f *File) Rename(naming Naming) error {
	if f.deleted {
		return ErrDeleted
	}

	stem, ext := splitName(f.Basename())
	if naming.Name != nil {
		if custom := naming.Name(stem, strings.ToLower(ext), naming.Field, naming.Source); custom != "" {
			stem = custom
		}
	}

	target := Destination(f.Dir(), stem, ext, naming.Append, naming.Prepend, naming.MaxLength, naming.Overwrite, f.path)
	return f.moveTo(target, naming.Overwrite)
}

// Move relocates the file into dir keeping its name. Without overwrite a
// numeric suffix is added on collision; with overwrite the existing file is replaced.
func (f *File) Move(dir string, overwrite bool) error {
	if f.deleted {
		return ErrDeleted
	}

	dir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("failed to resolve directory: %w", err)
	}
	if dir == f.Dir() {
		return nil
	}
	if err := EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to prepare directory: %w", err)
	}

	stem, ext := splitName(f.Basename())
	target := Destination(dir, stem, ext, "", "", 0, overwrite, f.path)
	return f.moveTo(target, overwrite)
}

// Place moves the file into dir under name (sanitized).
func (f *File) Place(dir, name string, overwrite bool) error {
	if f.deleted {
		return ErrDeleted
	}
	if err := EnsureDir(dir); err != nil {
		return fmt.Errorf("failed to prepare directory: %w", err)
	}

	stem, ext := splitName(filepath.Base(name))
	target := Destination(dir, stem, ext, "", "", 0, overwrite, f.path)
	return f.moveTo(target, overwrite)
}

// Delete removes the file. Deleting a file that is already gone is not an error.
func (f *File) Delete() error {
	err := os.Remove(f.path)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete file: %w", err)
	}
	f.deleted = true
	return nil
}

// Reader opens the file for reading.
func (f *File) Reader() (*os.File, error) {
	if f.deleted {
		return nil, ErrDeleted
	}
	return os.Open(f.path)
}

func (f *File) moveTo(target string, overwrite bool) error {
	target, err := filepath.Abs(target)
	if err != nil {
		return err
	}
	if target == f.path {
		return nil
	}

	if overwrite && exists(target) {
		if err := os.Remove(target); err != nil {
			return fmt.Errorf("failed to remove existing file: %w", err)
		}
	}

	if err := os.Rename(f.path, target); err != nil {
		// Cross-device moves fall back to copy + remove.
		if cerr := copyFile(f.path, target); cerr != nil {
			return fmt.Errorf("failed to move file: %w", err)
		}
		if rerr := os.Remove(f.path); rerr != nil {
			os.Remove(target)
			return fmt.Errorf("failed to remove source after copy: %w", rerr)
		}
	}

	f.path = target
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// Naming controls Rename. Field and Source are handed to Name as they are.
type Naming struct {
	Name      NameFunc
	Append    string
	Prepend   string
	MaxLength int
	Overwrite bool

	Field  string
	Source any
}

// Metadata is the attribute set exposed for meta-column mapping.
type Metadata struct {
	Basename string
	Name     string
	Ext      string
	Type     string
	Group    string
	Size     int64
	Filesize string
	Width    int
	Height   int
}

func (f *File) Metadata() (Metadata, error) {
	size, err := f.Size()
	if err != nil {
		return Metadata{}, err
	}
	mimeType, err := f.MimeType()
	if err != nil {
		return Metadata{}, err
	}

	md := Metadata{
		Basename: f.Basename(),
		Name:     f.Name(),
		Ext:      f.Extension(),
		Type:     mimeType,
		Size:     size,
		Filesize: humanize.IBytes(uint64(size)),
	}
	if group, err := f.registry.Classify(md.Ext, mimeType); err == nil {
		md.Group = group
	}
	if dims, err := f.Dimensions(); err == nil {
		md.Width = dims.Width
		md.Height = dims.Height
	}
	return md, nil
}

// MetadataMap keys: basename, name, ext, type, group, size, filesize and,
// for images, width and height.
func (f *File) MetadataMap() (map[string]any, error) {
	md, err := f.Metadata()
	if err != nil {
		return nil, err
	}

	m := map[string]any{
		"basename": md.Basename,
		"name":     md.Name,
		"ext":      md.Ext,
		"type":     md.Type,
		"group":    md.Group,
		"size":     md.Size,
		"filesize": md.Filesize,
	}
	if md.Width > 0 || md.Height > 0 {
		m["width"] = md.Width
		m["height"] = md.Height
	}
	return m, nil
}
