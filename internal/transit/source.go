package transit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/templui/transit/internal/file"
	"github.com/templui/transit/internal/mime"
)

// SourceKind tells the pipeline how a source is acquired and how strictly it is classified.
type SourceKind string

const (
	SourceUpload SourceKind = "upload"
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
	SourceStream SourceKind = "stream"
)

// Source is one of Upload, Multipart, Local, Remote or Stream.
type Source interface {
	Kind() SourceKind
}

// Upload error codes as reported by form handlers.
const (
	UploadOK        = 0
	UploadIniSize   = 1
	UploadFormSize  = 2
	UploadPartial   = 3
	UploadNoFile    = 4
	UploadNoTmpDir  = 6
	UploadCantWrite = 7
	UploadExtension = 8
)

var uploadErrors = map[int]string{
	UploadIniSize:   "the file exceeds the server upload limit",
	UploadFormSize:  "the file exceeds the form upload limit",
	UploadPartial:   "the file was only partially uploaded",
	UploadNoTmpDir:  "missing a temporary folder",
	UploadCantWrite: "failed to write file to disk",
	UploadExtension: "an extension stopped the upload",
}

// Upload is a file already received into a temp path by the web layer.
type Upload struct {
	TempPath string
	Name     string
	Size     int64
	Error    int
	Type     string
}

func (Upload) Kind() SourceKind { return SourceUpload }

// Multipart streams a form file straight into staging.
type Multipart struct {
	Header *multipart.FileHeader
}

func (Multipart) Kind() SourceKind { return SourceUpload }

// Local imports a file by copying it; the original is left untouched.
type Local struct {
	Path string
}

func (Local) Kind() SourceKind { return SourceLocal }

// Remote imports a file over HTTP(S).
type Remote struct {
	URL string
}

func (Remote) Kind() SourceKind { return SourceRemote }

// Stream imports arbitrary bytes. Name is used for the extension; an empty
// name gets a random one.
type Stream struct {
	Name   string
	Reader io.Reader
}

func (Stream) Kind() SourceKind { return SourceStream }

// SourceFrom picks the source kind by the value's shape. Strings with an
// http(s) scheme are remote imports, strings naming an existing path are
// local imports and any other non-empty string is a stream read from body
// under that name. Empty values return nil.
func SourceFrom(value any, body io.Reader) Source {
	switch v := value.(type) {
	case nil:
		return nil
	case Source:
		return v
	case *multipart.FileHeader:
		if v == nil {
			return nil
		}
		return Multipart{Header: v}
	case io.Reader:
		return Stream{Reader: v}
	case string:
		s := strings.TrimSpace(v)
		switch {
		case s == "":
			return nil
		case strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://"):
			return Remote{URL: s}
		case exists(s):
			return Local{Path: s}
		default:
			return Stream{Name: s, Reader: body}
		}
	}
	return nil
}

func exists(p string) bool {
	info, err := os.Stat(p)
	return err == nil && !info.IsDir()
}

// absent reports sources that carry no file at all.
func absent(src Source) bool {
	switch s := src.(type) {
	case nil:
		return true
	case Upload:
		return s.Error == UploadNoFile || (s.Error == UploadOK && s.TempPath == "")
	case Multipart:
		return s.Header == nil || (s.Header.Size == 0 && s.Header.Filename == "")
	case Local:
		return s.Path == ""
	case Remote:
		return s.URL == ""
	case Stream:
		return s.Reader == nil && s.Name == ""
	}
	return false
}

// acquirer stages sources into dir.
type acquirer struct {
	dir      string
	registry *mime.Registry
	client   *http.Client
}

func (a acquirer) acquire(ctx context.Context, src Source) (*file.File, error) {
	switch s := src.(type) {
	case Upload:
		return a.upload(s)
	case Multipart:
		return a.multipart(s)
	case Local:
		return a.local(s)
	case Remote:
		return a.remote(ctx, s)
	case Stream:
		if s.Reader == nil {
			return nil, fmt.Errorf("stream %q has no data", s.Name)
		}
		name := s.Name
		if name == "" {
			name = uuid.New().String()
		}
		return file.Create(a.dir, name, s.Reader, false, a.registry)
	}
	return nil, fmt.Errorf("unsupported source %T", src)
}

func (a acquirer) upload(s Upload) (*file.File, error) {
	if s.Error != UploadOK {
		msg, ok := uploadErrors[s.Error]
		if !ok {
			msg = fmt.Sprintf("upload failed with code %d", s.Error)
		}
		return nil, errors.New(msg)
	}

	f, err := file.New(s.TempPath, a.registry)
	if err != nil {
		return nil, fmt.Errorf("failed to open upload: %w", err)
	}

	name := s.Name
	if name == "" {
		name = f.Basename()
	}
	if err := f.Place(a.dir, name, false); err != nil {
		return nil, fmt.Errorf("failed to move upload: %w", err)
	}
	return f, nil
}

func (a acquirer) multipart(s Multipart) (*file.File, error) {
	r, err := s.Header.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open form file: %w", err)
	}
	defer r.Close()

	return file.Create(a.dir, s.Header.Filename, r, false, a.registry)
}

func (a acquirer) local(s Local) (*file.File, error) {
	r, err := os.Open(s.Path)
	if err != nil {
		return nil, fmt.Errorf("failed to open local file: %w", err)
	}
	defer r.Close()

	return file.Create(a.dir, filepath.Base(s.Path), r, false, a.registry)
}

func (a acquirer) remote(ctx context.Context, s Remote) (*file.File, error) {
	u, err := url.Parse(s.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build request: %w", err)
	}

	client := a.client
	if client == nil {
		client = http.DefaultClient
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", u.Redacted(), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("failed to fetch %s: status %d", u.Redacted(), resp.StatusCode)
	}

	name := path.Base(u.Path)
	if name == "." || name == "/" || name == "" {
		name = uuid.New().String()
	}
	if path.Ext(name) == "" {
		if ext, ok := a.registry.ExtensionForMime(mime.Normalize(resp.Header.Get("Content-Type"))); ok {
			name += "." + ext
		}
	}

	slog.Debug("fetched remote file", "url", u.Redacted(), "name", name, "content_type", resp.Header.Get("Content-Type"))
	return file.Create(a.dir, name, resp.Body, false, a.registry)
}
