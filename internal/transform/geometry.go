package transform

import (
	"image"
	"math"
)

// Crop anchors
const (
	LocationTop    = "top"
	LocationBottom = "bottom"
	LocationLeft   = "left"
	LocationRight  = "right"
	LocationCenter = "center"
)

// Flip directions
const (
	DirectionVertical   = "vertical"
	DirectionHorizontal = "horizontal"
	DirectionBoth       = "both"
)

// Resize modes pick the binding dimension when both are given.
const (
	ModeWidth  = "width"
	ModeHeight = "height"
)

// completeSize fills in a missing dimension from the base aspect ratio.
func completeSize(baseW, baseH, width, height int) (float64, float64, error) {
	if baseW < 1 || baseH < 1 {
		return 0, 0, ErrDegenerate
	}

	w, h := float64(width), float64(height)
	switch {
	case width > 0 && height <= 0:
		h = math.Round(float64(baseH) * w / float64(baseW))
	case height > 0 && width <= 0:
		w = math.Round(float64(baseW) * h / float64(baseH))
	case width <= 0 && height <= 0:
		return 0, 0, ErrDegenerate
	}
	if w < 1 || h < 1 {
		return 0, 0, ErrDegenerate
	}
	return w, h, nil
}

// ResizeDimensions computes the output size of a resize.
func ResizeDimensions(baseW, baseH int, o ResizeOptions) (int, int, error) {
	bothGiven := o.Width > 0 && o.Height > 0

	width, height, err := completeSize(baseW, baseH, o.Width, o.Height)
	if err != nil {
		return 0, 0, err
	}

	newW, newH := width, height
	if o.Aspect && bothGiven {
		if o.Mode == ModeHeight {
			newW = float64(baseW) * newH / float64(baseH)
		} else {
			newH = float64(baseH) * newW / float64(baseW)
		}
	}

	if !o.Expand {
		newW = math.Min(newW, float64(baseW))
		newH = math.Min(newH, float64(baseH))
	}

	w, h := int(math.Round(newW)), int(math.Round(newH))
	if w < 1 || h < 1 {
		return 0, 0, ErrDegenerate
	}
	return w, h, nil
}

// ScaleDimensions multiplies both sides by percent.
func ScaleDimensions(baseW, baseH int, percent float64) (int, int, error) {
	if percent <= 0 {
		return 0, 0, ErrDegenerate
	}

	w := int(math.Round(float64(baseW) * percent))
	h := int(math.Round(float64(baseH) * percent))
	if w < 1 || h < 1 {
		return 0, 0, ErrDegenerate
	}
	return w, h, nil
}

// CropRect returns the source rectangle to sample and the output size. The
// rectangle keeps the target aspect ratio; the side with the larger relative
// scale is cut down and positioned by location.
func CropRect(baseW, baseH, width, height int, location string) (image.Rectangle, int, int, error) {
	w, h, err := completeSize(baseW, baseH, width, height)
	if err != nil {
		return image.Rectangle{}, 0, 0, err
	}

	bw, bh := float64(baseW), float64(baseH)
	widthScale := bw / w
	heightScale := bh / h

	srcX, srcY := 0.0, 0.0
	srcW, srcH := bw, bh

	if widthScale > heightScale {
		srcW = math.Round(w * heightScale)
		switch location {
		case LocationCenter:
			srcX = math.Round(bw/2 - (w/2)*heightScale)
		case LocationRight, LocationBottom:
			srcX = bw - srcW
		}
	} else {
		srcH = math.Round(h * widthScale)
		switch location {
		case LocationCenter:
			srcY = math.Round(bh/2 - (h/2)*widthScale)
		case LocationRight, LocationBottom:
			srcY = bh - srcH
		}
	}

	if srcW < 1 || srcH < 1 {
		return image.Rectangle{}, 0, 0, ErrDegenerate
	}

	rect := image.Rect(int(srcX), int(srcY), int(srcX+srcW), int(srcY+srcH))
	return rect, int(w), int(h), nil
}
