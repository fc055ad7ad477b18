package attachment

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/templui/transit/internal/file"
	"github.com/templui/transit/internal/mime"
	"github.com/templui/transit/internal/transform"
	"github.com/templui/transit/internal/transit"
	"github.com/templui/transit/internal/transport"
)

var (
	ErrUnknownNameCallback = errors.New("unknown name callback")
	ErrInvalidPolicy       = errors.New("invalid transport failure policy")
	ErrOutsideFinalDir     = errors.New("transform directory outside final directory")
)

// NameFuncs are the built-in rename callbacks selectable by name.
var NameFuncs = map[string]file.NameFunc{
	"uuid": func(string, string, string, any) string {
		return uuid.New().String()
	},
	"timestamp": func(string, string, string, any) string {
		return strconv.FormatInt(time.Now().UnixNano(), 10)
	},
}

// Deps are the shared components a field is built from.
type Deps struct {
	Registry   *mime.Registry
	Transforms *transform.Registry
	Transports *transport.Registry
	NameFuncs  map[string]file.NameFunc
	HTTPClient *http.Client
	// TransportDefaults fill empty credentials per class.
	TransportDefaults map[transport.Kind]transport.Spec
}

func (d Deps) withDefaults() Deps {
	if d.Registry == nil {
		d.Registry = mime.Default()
	}
	if d.Transforms == nil {
		d.Transforms = transform.NewRegistry()
	}
	if d.Transports == nil {
		d.Transports = transport.NewRegistry()
	}
	if d.NameFuncs == nil {
		d.NameFuncs = NameFuncs
	}
	return d
}

// Field is a configured attachment with its transforms and transporters
// resolved. It is safe to share; every Run gets its own Transit.
type Field struct {
	Name   string
	Config Config

	registry   *mime.Registry
	nameFunc   file.NameFunc
	client     *http.Client
	steps      []transit.Step
	dispatches []transit.Dispatch
}

// Build resolves every transform and transporter in cfg. All failures are
// configuration errors and happen before any file is touched.
func Build(ctx context.Context, name string, cfg Config, deps Deps) (*Field, error) {
	deps = deps.withDefaults()

	f := &Field{
		Name:     name,
		Config:   cfg,
		registry: deps.Registry,
		client:   deps.HTTPClient,
	}

	if cfg.NameCallback != "" {
		fn, ok := deps.NameFuncs[cfg.NameCallback]
		if !ok {
			return nil, transit.ConfigError(name, fmt.Errorf("%w: %q", ErrUnknownNameCallback, cfg.NameCallback))
		}
		f.nameFunc = fn
	}

	switch cfg.TransportFailure {
	case "", transit.FailFatal, transit.FailSoft:
	default:
		return nil, transit.ConfigError(name, fmt.Errorf("%w: %q", ErrInvalidPolicy, cfg.TransportFailure))
	}

	for i, spec := range cfg.Transforms {
		// Stored values of files outside FinalDir could not be mapped back through FinalPath.
		if !spec.Self && spec.Directory != "" && cfg.FinalPath != "" && !transit.Within(cfg.FinalDir, spec.Directory) {
			return nil, transit.ConfigError(name, fmt.Errorf("transform %d: %w: %s", i, ErrOutsideFinalDir, spec.Directory))
		}
		tr, err := deps.Transforms.Build(spec)
		if err != nil {
			return nil, transit.ConfigError(name, fmt.Errorf("transform %d: %w", i, err))
		}
		f.steps = append(f.steps, transit.Step{
			Method:      spec.Method,
			Self:        spec.Self,
			DBColumn:    spec.DBColumn,
			Folder:      spec.Folder,
			Transformer: tr,
		})
	}

	for i, spec := range cfg.Transport {
		spec = fillCredentials(spec, deps.TransportDefaults[spec.Class])
		tr, err := deps.Transports.Build(ctx, spec)
		if err != nil {
			return nil, transit.ConfigError(name, fmt.Errorf("transport %d: %w", i, err))
		}
		f.dispatches = append(f.dispatches, transit.Dispatch{
			Class:       spec.Class,
			Transporter: tr,
			Destination: spec.Destination(),
			KeepLocal:   spec.KeepLocal(),
		})
	}

	return f, nil
}

func fillCredentials(s, d transport.Spec) transport.Spec {
	s.AccessKey = lo.CoalesceOrEmpty(s.AccessKey, d.AccessKey)
	s.SecretKey = lo.CoalesceOrEmpty(s.SecretKey, d.SecretKey)
	s.Region = lo.CoalesceOrEmpty(s.Region, d.Region)
	s.Bucket = lo.CoalesceOrEmpty(s.Bucket, d.Bucket)
	s.Endpoint = lo.CoalesceOrEmpty(s.Endpoint, d.Endpoint)
	s.Vault = lo.CoalesceOrEmpty(s.Vault, d.Vault)
	s.Username = lo.CoalesceOrEmpty(s.Username, d.Username)
	s.APIKey = lo.CoalesceOrEmpty(s.APIKey, d.APIKey)
	s.AuthURL = lo.CoalesceOrEmpty(s.AuthURL, d.AuthURL)
	s.Tenant = lo.CoalesceOrEmpty(s.Tenant, d.Tenant)
	s.Container = lo.CoalesceOrEmpty(s.Container, d.Container)
	s.Directory = lo.CoalesceOrEmpty(s.Directory, d.Directory)
	s.PublicURL = lo.CoalesceOrEmpty(s.PublicURL, d.PublicURL)
	return s
}

// Transit returns a fresh pipeline for one save of this field.
func (f *Field) Transit() *transit.Transit {
	c := f.Config

	rules := c.Validation
	rules.AllowEmpty = c.AllowEmpty

	return transit.New(transit.Options{
		Field:     f.Name,
		Registry:  f.registry,
		TempDir:   c.UploadDir,
		FinalDir:  c.FinalDir,
		FinalPath: c.FinalPath,
		Naming: file.Naming{
			Name:      f.nameFunc,
			Append:    c.Append,
			Prepend:   c.Prepend,
			MaxLength: c.MaxNameLength,
			Overwrite: c.Overwrite,
		},
		Overwrite:        c.Overwrite,
		Rules:            rules,
		DBColumn:         c.DBColumn,
		MetaColumns:      c.MetaColumns,
		Transforms:       f.steps,
		Transports:       f.dispatches,
		TransportFailure: c.TransportFailure,
		HTTPClient:       f.client,
	})
}

// FileColumns lists the columns holding file values: the primary column
// followed by each derived transform's column.
func (f *Field) FileColumns() []string {
	var cols []string
	if f.Config.DBColumn != "" {
		cols = append(cols, f.Config.DBColumn)
	}
	for _, s := range f.steps {
		if !s.Self && s.DBColumn != "" {
			cols = append(cols, s.DBColumn)
		}
	}
	return cols
}

// DeleteValue removes the file a stored column value points at. When copies
// holds the per-transporter references, each is deleted from its own
// transporter. Otherwise local values are mapped back through FinalPath and
// anything else goes to the first transporter. The default path is never
// deleted.
func (f *Field) DeleteValue(ctx context.Context, value string, copies []string) error {
	if value == "" || value == f.Config.DefaultPath {
		return nil
	}

	if len(copies) > 0 {
		return f.deleteCopies(ctx, copies)
	}

	if p, ok := f.localPath(value); ok {
		if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to delete %s: %w", p, err)
		}
		return nil
	}

	if len(f.dispatches) == 0 {
		return fmt.Errorf("no transporter configured to delete %s", value)
	}
	return f.dispatches[0].Transporter.Delete(ctx, value)
}

// deleteCopies tries every transporter and joins the failures.
func (f *Field) deleteCopies(ctx context.Context, copies []string) error {
	var errs []error
	for i, ref := range copies {
		if ref == "" || i >= len(f.dispatches) {
			continue
		}
		d := f.dispatches[i]
		if err := d.Transporter.Delete(ctx, ref); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.Class, err))
		}
	}
	return errors.Join(errs...)
}

func (f *Field) localPath(value string) (string, bool) {
	if strings.Contains(value, "://") {
		return "", false
	}

	c := f.Config
	if c.FinalPath != "" && strings.HasPrefix(value, c.FinalPath) {
		rel := strings.TrimPrefix(strings.TrimPrefix(value, c.FinalPath), "/")
		return filepath.Join(c.FinalDir, filepath.FromSlash(rel)), true
	}
	if filepath.IsAbs(value) {
		return value, true
	}
	return "", false
}

// BuildAll builds every named config in order and stops at the first error.
func BuildAll(ctx context.Context, named []Named, deps Deps) ([]*Field, error) {
	fields := make([]*Field, 0, len(named))
	for _, n := range named {
		f, err := Build(ctx, n.Name, n.Config, deps)
		if err != nil {
			return nil, err
		}
		fields = append(fields, f)
	}
	return fields, nil
}
