package transform

import (
	"context"
	"fmt"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/templui/transit/internal/file"
)

// Transformer produces a new file from src. With self set the result
// replaces src in place and src itself is returned.
type Transformer interface {
	Transform(ctx context.Context, src *file.File, self bool) (*file.File, error)
}

// Output holds the naming and encoding options shared by all image transforms.
type Output struct {
	Append    *string
	Prepend   string
	Directory string
	Overwrite bool
	Quality   int
}

func (o Output) quality() int {
	if o.Quality <= 0 || o.Quality > 100 {
		return 100
	}
	return o.Quality
}

// source is a decoded input image.
type source struct {
	file   *file.File
	img    image.Image
	format imaging.Format
}

func (s source) width() int  { return s.img.Bounds().Dx() }
func (s source) height() int { return s.img.Bounds().Dy() }

// decode opens src as GIF, PNG, JPEG, BMP or TIFF.
func decode(ctx context.Context, src *file.File) (source, error) {
	if err := checkContext(ctx); err != nil {
		return source{}, err
	}

	mimeType, err := src.MimeType()
	if err != nil {
		return source{}, fmt.Errorf("failed to read mime type: %w", err)
	}

	format, ok := formatForMime(mimeType)
	if !ok {
		return source{}, fmt.Errorf("%w: %s", ErrUnsupportedFormat, mimeType)
	}

	img, err := imaging.Open(src.Path())
	if err != nil {
		return source{}, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}

	return source{file: src, img: img, format: format}, nil
}

func formatForMime(mimeType string) (imaging.Format, bool) {
	switch mimeType {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return imaging.JPEG, true
	case "image/png", "image/x-png":
		return imaging.PNG, true
	case "image/gif":
		return imaging.GIF, true
	case "image/bmp", "image/x-ms-bmp":
		return imaging.BMP, true
	case "image/tiff":
		return imaging.TIFF, true
	}
	return 0, false
}

// write encodes img and returns the resulting file. defaultAppend is used
// when the caller gave no explicit append.
func (o Output) write(src source, img image.Image, defaultAppend string, self bool) (*file.File, error) {
	bounds := img.Bounds()
	if bounds.Dx() < 1 || bounds.Dy() < 1 {
		return nil, ErrDegenerate
	}

	if src.format == imaging.PNG || src.format == imaging.GIF {
		// Copy onto a fully transparent canvas without blending so alpha survives.
		canvas := imaging.New(bounds.Dx(), bounds.Dy(), color.NRGBA{R: 255, G: 255, B: 255, A: 0})
		img = imaging.Paste(canvas, img, image.Pt(0, 0))
	}

	var target string
	if self {
		target = src.file.Path()
	} else {
		appendStr := defaultAppend
		if o.Append != nil {
			appendStr = *o.Append
		}

		dir := src.file.Dir()
		if o.Directory != "" {
			dir = o.Directory
			if err := file.EnsureDir(dir); err != nil {
				return nil, fmt.Errorf("failed to prepare directory: %w", err)
			}
		}

		ext := strings.TrimPrefix(filepath.Ext(src.file.Basename()), ".")
		target = file.Destination(dir, src.file.Name(), ext, appendStr, o.Prepend, 0, o.Overwrite, "")
	}

	if err := encodeTo(target, img, src.format, o.quality()); err != nil {
		return nil, err
	}

	if self {
		return src.file, nil
	}
	return file.New(target, src.file.Registry())
}

func encodeTo(target string, img image.Image, format imaging.Format, quality int) error {
	tmp, err := os.CreateTemp(filepath.Dir(target), ".transform-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := imaging.Encode(tmp, img, format, imaging.JPEGQuality(quality)); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to encode %s: %w", format, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to chmod temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", target, err)
	}
	return nil
}
