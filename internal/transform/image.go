package transform

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"math"
	"strconv"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/templui/transit/internal/file"
)

type CropOptions struct {
	Width    int
	Height   int
	Location string
	Output   Output
}

// Crop resamples an aspect-preserving window of the source to exactly Width x Height.
type Crop struct {
	opts CropOptions
}

func NewCrop(opts CropOptions) (*Crop, error) {
	if opts.Width <= 0 && opts.Height <= 0 {
		return nil, fmt.Errorf("%w: crop needs a width or height", ErrInvalidOption)
	}
	if opts.Location == "" {
		opts.Location = LocationCenter
	}
	switch opts.Location {
	case LocationTop, LocationBottom, LocationLeft, LocationRight, LocationCenter:
	default:
		return nil, fmt.Errorf("%w: crop location %q", ErrInvalidOption, opts.Location)
	}
	return &Crop{opts: opts}, nil
}

func (c *Crop) Transform(ctx context.Context, src *file.File, self bool) (*file.File, error) {
	s, err := decode(ctx, src)
	if err != nil {
		return nil, err
	}

	rect, w, h, err := CropRect(s.width(), s.height(), c.opts.Width, c.opts.Height, c.opts.Location)
	if err != nil {
		return nil, err
	}

	rect = rect.Add(s.img.Bounds().Min)
	img := imaging.Resize(imaging.Crop(s.img, rect), w, h, imaging.Lanczos)

	return c.opts.Output.write(s, img, fmt.Sprintf("_cropped_%dx%d", w, h), self)
}

type FlipOptions struct {
	Direction string
	Output    Output
}

// Flip mirrors the image vertically, horizontally or both.
type Flip struct {
	opts FlipOptions
}

func NewFlip(opts FlipOptions) (*Flip, error) {
	if opts.Direction == "" {
		opts.Direction = DirectionVertical
	}
	switch opts.Direction {
	case DirectionVertical, DirectionHorizontal, DirectionBoth:
	default:
		return nil, fmt.Errorf("%w: flip direction %q", ErrInvalidOption, opts.Direction)
	}
	return &Flip{opts: opts}, nil
}

func (f *Flip) Transform(ctx context.Context, src *file.File, self bool) (*file.File, error) {
	s, err := decode(ctx, src)
	if err != nil {
		return nil, err
	}

	var img *image.NRGBA
	var tag string
	switch f.opts.Direction {
	case DirectionVertical:
		img, tag = imaging.FlipV(s.img), "vert"
	case DirectionHorizontal:
		img, tag = imaging.FlipH(s.img), "hor"
	default:
		img, tag = imaging.FlipH(imaging.FlipV(s.img)), "both"
	}

	return f.opts.Output.write(s, img, "_flipped_"+tag, self)
}

type ResizeOptions struct {
	Width  int
	Height int
	// Expand allows upscaling past the source dimensions.
	Expand bool
	// Aspect keeps the source ratio; Mode picks the binding side.
	Aspect bool
	Mode   string
	Output Output
}

type Resize struct {
	opts ResizeOptions
}

func NewResize(opts ResizeOptions) (*Resize, error) {
	if opts.Width <= 0 && opts.Height <= 0 {
		return nil, fmt.Errorf("%w: resize needs a width or height", ErrInvalidOption)
	}
	if opts.Mode == "" {
		opts.Mode = ModeWidth
	}
	if opts.Mode != ModeWidth && opts.Mode != ModeHeight {
		return nil, fmt.Errorf("%w: resize mode %q", ErrInvalidOption, opts.Mode)
	}
	return &Resize{opts: opts}, nil
}

func (r *Resize) Transform(ctx context.Context, src *file.File, self bool) (*file.File, error) {
	s, err := decode(ctx, src)
	if err != nil {
		return nil, err
	}

	w, h, err := ResizeDimensions(s.width(), s.height(), r.opts)
	if err != nil {
		return nil, err
	}

	img := imaging.Resize(s.img, w, h, imaging.Lanczos)
	return r.opts.Output.write(s, img, fmt.Sprintf("_resized_%dx%d", w, h), self)
}

type ScaleOptions struct {
	// Percent is a factor: 0.5 halves both sides. Defaults to 0.5.
	Percent float64
	Output  Output
}

type Scale struct {
	opts ScaleOptions
}

func NewScale(opts ScaleOptions) (*Scale, error) {
	if opts.Percent == 0 {
		opts.Percent = 0.5
	}
	if opts.Percent < 0 {
		return nil, fmt.Errorf("%w: scale percent %v", ErrInvalidOption, opts.Percent)
	}
	return &Scale{opts: opts}, nil
}

func (sc *Scale) Transform(ctx context.Context, src *file.File, self bool) (*file.File, error) {
	s, err := decode(ctx, src)
	if err != nil {
		return nil, err
	}

	w, h, err := ScaleDimensions(s.width(), s.height(), sc.opts.Percent)
	if err != nil {
		return nil, err
	}

	img := imaging.Resize(s.img, w, h, imaging.Lanczos)
	return sc.opts.Output.write(s, img, fmt.Sprintf("_scaled_%dx%d", w, h), self)
}

type RotateOptions struct {
	// Angle in degrees, counter-clockwise.
	Angle  float64
	Output Output
}

// Rotate turns the image by an arbitrary angle; the canvas grows to fit.
type Rotate struct {
	opts RotateOptions
}

func NewRotate(opts RotateOptions) (*Rotate, error) {
	if math.IsNaN(opts.Angle) || math.IsInf(opts.Angle, 0) {
		return nil, fmt.Errorf("%w: rotate angle", ErrInvalidOption)
	}
	return &Rotate{opts: opts}, nil
}

func (r *Rotate) Transform(ctx context.Context, src *file.File, self bool) (*file.File, error) {
	s, err := decode(ctx, src)
	if err != nil {
		return nil, err
	}

	var bg color.Color = color.Transparent
	if s.format == imaging.JPEG || s.format == imaging.BMP {
		bg = color.White
	}

	img := imaging.Rotate(s.img, r.opts.Angle, bg)
	angle := strings.ReplaceAll(strconv.FormatFloat(r.opts.Angle, 'f', -1, 64), ".", "_")
	return r.opts.Output.write(s, img, "_rotated_"+angle, self)
}

// Fit modes
const (
	FitContain = "contain"
	FitCover   = "cover"
)

type FitOptions struct {
	Width  int
	Height int
	// Mode "contain" scales down to fit inside the box; "cover" fills the box and crops the overflow.
	Mode     string
	Location string
	Output   Output
}

type Fit struct {
	opts FitOptions
}

func NewFit(opts FitOptions) (*Fit, error) {
	if opts.Width <= 0 || opts.Height <= 0 {
		return nil, fmt.Errorf("%w: fit needs width and height", ErrInvalidOption)
	}
	if opts.Mode == "" {
		opts.Mode = FitContain
	}
	if opts.Mode != FitContain && opts.Mode != FitCover {
		return nil, fmt.Errorf("%w: fit mode %q", ErrInvalidOption, opts.Mode)
	}
	return &Fit{opts: opts}, nil
}

func (f *Fit) Transform(ctx context.Context, src *file.File, self bool) (*file.File, error) {
	s, err := decode(ctx, src)
	if err != nil {
		return nil, err
	}

	var img *image.NRGBA
	if f.opts.Mode == FitCover {
		img = imaging.Fill(s.img, f.opts.Width, f.opts.Height, anchor(f.opts.Location), imaging.Lanczos)
	} else {
		img = imaging.Fit(s.img, f.opts.Width, f.opts.Height, imaging.Lanczos)
	}

	b := img.Bounds()
	return f.opts.Output.write(s, img, fmt.Sprintf("_fit_%dx%d", b.Dx(), b.Dy()), self)
}

func anchor(location string) imaging.Anchor {
	switch location {
	case LocationTop:
		return imaging.Top
	case LocationBottom:
		return imaging.Bottom
	case LocationLeft:
		return imaging.Left
	case LocationRight:
		return imaging.Right
	}
	return imaging.Center
}

type ExifOptions struct {
	Output Output
}

// Exif re-encodes the pixels, which drops EXIF and other metadata blocks.
type Exif struct {
	opts ExifOptions
}

func NewExif(opts ExifOptions) (*Exif, error) {
	return &Exif{opts: opts}, nil
}

func (e *Exif) Transform(ctx context.Context, src *file.File, self bool) (*file.File, error) {
	s, err := decode(ctx, src)
	if err != nil {
		return nil, err
	}

	return e.opts.Output.write(s, imaging.Clone(s.img), "_stripped", self)
}
