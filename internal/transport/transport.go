package transport

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"sort"
	"strconv"
	"strings"

	"github.com/templui/transit/internal/file"
)

// Kind names a transport backend.
type Kind string

const (
	KindS3      Kind = "s3"
	KindGlacier Kind = "glacier"
	KindSwift   Kind = "swift"
	KindLocal   Kind = "local"
)

var (
	ErrUnknownKind       = errors.New("unknown transport class")
	ErrMissingCredential = errors.New("missing transport credential")
	ErrOutsideRoot       = errors.New("reference outside transport root")
)

// Transporter pushes a local file to a store and returns a reference (URL,
// path or archive id) that Delete accepts later.
type Transporter interface {
	Transport(ctx context.Context, f *file.File, dest Destination) (string, error)
	Delete(ctx context.Context, ref string) error
}

// Destination is where a single file goes inside the backend.
type Destination struct {
	Folder    string
	Overwrite bool
}

// Spec is the static configuration of one transporter. Credentials that
// are left empty are filled from process config before Build.
type Spec struct {
	Class Kind `yaml:"class"`

	// S3 and Glacier
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Region    string `yaml:"region"`
	Bucket    string `yaml:"bucket"`
	Endpoint  string `yaml:"endpoint"`
	ACL       string `yaml:"acl"`
	Vault     string `yaml:"vault"`

	// Swift (Rackspace Cloud Files)
	Username  string `yaml:"username"`
	APIKey    string `yaml:"apiKey"`
	AuthURL   string `yaml:"authUrl"`
	Tenant    string `yaml:"tenant"`
	Container string `yaml:"container"`

	// Local
	Directory string `yaml:"directory"`

	PublicURL string `yaml:"publicUrl"`
	Folder    string `yaml:"folder"`
	Overwrite bool   `yaml:"overwrite"`
	// RemoveLocal deletes the local copy after a successful push. Defaults to true.
	RemoveLocal *bool `yaml:"removeLocal"`

	Options map[string]any `yaml:"options"`
}

func (s Spec) Destination() Destination {
	return Destination{Folder: s.Folder, Overwrite: s.Overwrite}
}

func (s Spec) KeepLocal() bool {
	return s.RemoveLocal != nil && !*s.RemoveLocal
}

// Factory builds a transporter from its spec. Factories validate
// credentials but do not touch the network.
type Factory func(ctx context.Context, s Spec) (Transporter, error)

type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry returns a registry holding s3, glacier, swift and local.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Kind]Factory)}

	r.Register(KindS3, func(ctx context.Context, s Spec) (Transporter, error) {
		return NewS3(ctx, S3Config{
			Region:    s.Region,
			Bucket:    s.Bucket,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			Endpoint:  s.Endpoint,
			PublicURL: s.PublicURL,
			ACL:       s.ACL,
		})
	})
	r.Register(KindGlacier, func(ctx context.Context, s Spec) (Transporter, error) {
		return NewGlacier(ctx, GlacierConfig{
			Region:    s.Region,
			Vault:     s.Vault,
			AccessKey: s.AccessKey,
			SecretKey: s.SecretKey,
			Endpoint:  s.Endpoint,
		})
	})
	r.Register(KindSwift, func(ctx context.Context, s Spec) (Transporter, error) {
		return NewSwift(SwiftConfig{
			Username:  s.Username,
			APIKey:    s.APIKey,
			AuthURL:   s.AuthURL,
			Region:    s.Region,
			Tenant:    s.Tenant,
			Container: s.Container,
			PublicURL: s.PublicURL,
		})
	})
	r.Register(KindLocal, func(ctx context.Context, s Spec) (Transporter, error) {
		return NewLocal(s.Directory, s.PublicURL)
	})

	return r
}

func (r *Registry) Register(kind Kind, factory Factory) {
	r.factories[kind] = factory
}

func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Build resolves spec.Class. Unknown classes return ErrUnknownKind.
func (r *Registry) Build(ctx context.Context, spec Spec) (Transporter, error) {
	factory, ok := r.factories[spec.Class]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Class)
	}
	t, err := factory(ctx, spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s transport: %w", spec.Class, err)
	}
	return t, nil
}

// KeyFromReference turns a full URL or a bare key into an object key. The
// scheme and host are dropped; for path-style URLs the leading bucket
// segment is dropped as well.
func KeyFromReference(ref, bucket string) string {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return strings.TrimPrefix(ref, "/")
	}

	key := strings.TrimPrefix(u.Path, "/")
	if bucket != "" && !strings.HasPrefix(u.Host, bucket+".") {
		key = strings.TrimPrefix(key, bucket+"/")
	}
	return key
}

func objectKey(folder, name string) string {
	return path.Join(strings.Trim(folder, "/"), name)
}

// uniqueKey appends -1, -2, ... to the key stem until exists reports false.
func uniqueKey(ctx context.Context, key string, overwrite bool, exists func(context.Context, string) (bool, error)) (string, error) {
	if overwrite {
		return key, nil
	}

	dir, base := path.Split(key)
	ext := path.Ext(base)
	stem := strings.TrimSuffix(base, ext)

	candidate := key
	for n := 1; ; n++ {
		found, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !found {
			return candidate, nil
		}
		candidate = dir + stem + "-" + strconv.Itoa(n) + ext
	}
}

func requireAll(kind Kind, fields map[string]string) error {
	var missing []string
	for name, v := range fields {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return fmt.Errorf("%w: %s needs %s", ErrMissingCredential, kind, strings.Join(missing, ", "))
}
