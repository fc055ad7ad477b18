package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"

	"github.com/ncw/swift/v2"
	"github.com/templui/transit/internal/file"
)

type swiftAPI interface {
	Object(ctx context.Context, container string, objectName string) (swift.Object, swift.Headers, error)
	ObjectPut(ctx context.Context, container string, objectName string, contents io.Reader, checkHash bool, Hash string, contentType string, h swift.Headers) (swift.Headers, error)
	ObjectDelete(ctx context.Context, container string, objectName string) error
}

// Swift pushes files to an OpenStack Swift container (Rackspace Cloud Files).
type Swift struct {
	client    swiftAPI
	container string
	publicURL string
	// baseURL is consulted when no public URL is configured; the storage
	// URL is only known after authentication.
	baseURL func() string
}

type SwiftConfig struct {
	Username  string
	APIKey    string
	AuthURL   string
	Region    string
	Tenant    string
	Container string
	PublicURL string // Optional: CDN base for returned references
}

// NewSwift prepares a connection. Authentication happens on the first call.
func NewSwift(cfg SwiftConfig) (*Swift, error) {
	if err := requireAll(KindSwift, map[string]string{
		"username":  cfg.Username,
		"apiKey":    cfg.APIKey,
		"authUrl":   cfg.AuthURL,
		"container": cfg.Container,
	}); err != nil {
		return nil, err
	}

	conn := &swift.Connection{
		UserName: cfg.Username,
		ApiKey:   cfg.APIKey,
		AuthUrl:  cfg.AuthURL,
		Region:   cfg.Region,
		Tenant:   cfg.Tenant,
	}

	slog.Info("initializing Swift transport", "container", cfg.Container, "auth_url", cfg.AuthURL)
	return &Swift{
		client:    conn,
		container: cfg.Container,
		publicURL: strings.TrimSuffix(cfg.PublicURL, "/"),
		baseURL: func() string {
			return strings.TrimSuffix(conn.StorageUrl, "/") + "/" + cfg.Container
		},
	}, nil
}

func (s *Swift) Transport(ctx context.Context, f *file.File, dest Destination) (string, error) {
	name, err := uniqueKey(ctx, objectKey(dest.Folder, f.Basename()), dest.Overwrite, s.exists)
	if err != nil {
		return "", fmt.Errorf("failed to check Swift object: %w", err)
	}

	mimeType, err := f.MimeType()
	if err != nil {
		return "", fmt.Errorf("failed to read mime type: %w", err)
	}

	body, err := f.Reader()
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer body.Close()

	if _, err := s.client.ObjectPut(ctx, s.container, name, body, false, "", mimeType, nil); err != nil {
		return "", fmt.Errorf("failed to upload to Swift: %w", err)
	}

	slog.Debug("uploaded to Swift", "container", s.container, "object", name)
	return s.base() + "/" + name, nil
}

func (s *Swift) Delete(ctx context.Context, ref string) error {
	err := s.client.ObjectDelete(ctx, s.container, s.objectName(ref))
	if err != nil && !errors.Is(err, swift.ObjectNotFound) {
		return fmt.Errorf("failed to delete from Swift: %w", err)
	}
	return nil
}

// objectName maps a reference back to its object name. Storage URLs lose
// everything up to the container segment, so no authenticated connection is
// needed to resolve them.
func (s *Swift) objectName(ref string) string {
	if s.publicURL != "" && strings.HasPrefix(ref, s.publicURL+"/") {
		return strings.TrimPrefix(ref, s.publicURL+"/")
	}

	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimPrefix(ref, "/")
	}

	p := strings.TrimPrefix(u.Path, "/")
	marker := s.container + "/"
	if strings.HasPrefix(p, marker) {
		return strings.TrimPrefix(p, marker)
	}
	if _, name, ok := strings.Cut(p, "/"+marker); ok {
		return name
	}
	return p
}

func (s *Swift) base() string {
	if s.publicURL != "" {
		return s.publicURL
	}
	return s.baseURL()
}

func (s *Swift) exists(ctx context.Context, name string) (bool, error) {
	_, _, err := s.client.Object(ctx, s.container, name)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, swift.ObjectNotFound) {
		return false, nil
	}
	return false, err
}
