package transform

import (
	"context"
	"errors"
	"fmt"
	"sort"
)

// Kind names a transformation method.
type Kind string

const (
	KindCrop   Kind = "crop"
	KindFlip   Kind = "flip"
	KindResize Kind = "resize"
	KindScale  Kind = "scale"
	KindRotate Kind = "rotate"
	KindFit    Kind = "fit"
	KindExif   Kind = "exif"
)

var (
	ErrUnknownKind       = errors.New("unknown transform method")
	ErrUnsupportedFormat = errors.New("unsupported image format")
	ErrDegenerate        = errors.New("degenerate transform geometry")
	ErrInvalidOption     = errors.New("invalid transform option")
)

// Spec is the static configuration of one transform. Only the fields
// relevant to Method are read.
type Spec struct {
	Method   Kind   `yaml:"method"`
	Self     bool   `yaml:"self"`
	DBColumn string `yaml:"dbColumn"`
	// Append nil means "use the method's descriptive suffix"; a pointer to ""
	// keeps the name unchanged.
	Append    *string `yaml:"append"`
	Prepend   string  `yaml:"prepend"`
	Directory string  `yaml:"directory"`
	Overwrite bool    `yaml:"overwrite"`
	Quality   int     `yaml:"quality"`
	// Folder overrides the transport folder for this transform's output.
	Folder string `yaml:"folder"`

	Width     int     `yaml:"width"`
	Height    int     `yaml:"height"`
	Location  string  `yaml:"location"`
	Direction string  `yaml:"direction"`
	Expand    bool    `yaml:"expand"`
	Aspect    *bool   `yaml:"aspect"`
	Mode      string  `yaml:"mode"`
	Percent   float64 `yaml:"percent"`
	Angle     float64 `yaml:"angle"`

	// Options carries parameters for custom kinds.
	Options map[string]any `yaml:"options"`
}

// Output returns the naming and encoding fields of s.
func (s Spec) Output() Output {
	return Output{
		Append:    s.Append,
		Prepend:   s.Prepend,
		Directory: s.Directory,
		Overwrite: s.Overwrite,
		Quality:   s.Quality,
	}
}

// Factory builds a transformer from its spec.
type Factory func(Spec) (Transformer, error)

// Registry resolves a Kind to a Factory. Register custom kinds during setup;
// Build is safe for concurrent use once registration is done.
type Registry struct {
	factories map[Kind]Factory
}

// NewRegistry returns a registry holding the built-in kinds.
func NewRegistry() *Registry {
	r := &Registry{factories: make(map[Kind]Factory)}

	r.Register(KindCrop, func(s Spec) (Transformer, error) {
		return NewCrop(CropOptions{Width: s.Width, Height: s.Height, Location: s.Location, Output: s.Output()})
	})
	r.Register(KindFlip, func(s Spec) (Transformer, error) {
		return NewFlip(FlipOptions{Direction: s.Direction, Output: s.Output()})
	})
	r.Register(KindResize, func(s Spec) (Transformer, error) {
		aspect := true
		if s.Aspect != nil {
			aspect = *s.Aspect
		}
		return NewResize(ResizeOptions{
			Width:  s.Width,
			Height: s.Height,
			Expand: s.Expand,
			Aspect: aspect,
			Mode:   s.Mode,
			Output: s.Output(),
		})
	})
	r.Register(KindScale, func(s Spec) (Transformer, error) {
		return NewScale(ScaleOptions{Percent: s.Percent, Output: s.Output()})
	})
	r.Register(KindRotate, func(s Spec) (Transformer, error) {
		return NewRotate(RotateOptions{Angle: s.Angle, Output: s.Output()})
	})
	r.Register(KindFit, func(s Spec) (Transformer, error) {
		return NewFit(FitOptions{Width: s.Width, Height: s.Height, Mode: s.Mode, Location: s.Location, Output: s.Output()})
	})
	r.Register(KindExif, func(s Spec) (Transformer, error) {
		return NewExif(ExifOptions{Output: s.Output()})
	})

	return r
}

func (r *Registry) Register(kind Kind, factory Factory) {
	r.factories[kind] = factory
}

// Kinds lists the registered kinds in sorted order.
func (r *Registry) Kinds() []Kind {
	kinds := make([]Kind, 0, len(r.factories))
	for k := range r.factories {
		kinds = append(kinds, k)
	}
	sort.Slice(kinds, func(i, j int) bool { return kinds[i] < kinds[j] })
	return kinds
}

// Build resolves spec.Method. Unknown kinds return ErrUnknownKind.
func (r *Registry) Build(spec Spec) (Transformer, error) {
	factory, ok := r.factories[spec.Method]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, spec.Method)
	}
	t, err := factory(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s transform: %w", spec.Method, err)
	}
	return t, nil
}

// checkContext returns ctx.Err() so long transform chains stop early.
func checkContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	return ctx.Err()
}
