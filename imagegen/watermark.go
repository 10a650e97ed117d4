package imagegen

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	"alterego/models"

	"golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
	_ "golang.org/x/image/webp"
)

const (
	watermarkPadding = 20
	// watermarkMinHeight is the label height on small images, in pixels
	watermarkMinHeight = 16
	// watermarkHeightRatio sets the label height relative to image width
	watermarkHeightRatio = 40
)

var (
	watermarkText   = color.NRGBA{R: 255, G: 255, B: 255, A: 200}
	watermarkShadow = color.NRGBA{A: 140}
)

// Watermarker stamps a text label with a shadow onto the bottom-right of
// every image the wrapped Transformer returns.
type Watermarker struct {
	next Transformer
	text string
}

// NewWatermarker wraps next. An empty text disables stamping.
func NewWatermarker(next Transformer, text string) *Watermarker {
	return &Watermarker{next: next, text: text}
}

// Transform calls the wrapped Transformer and stamps its output.
func (w *Watermarker) Transform(ctx context.Context, req TransformRequest) (models.ImageHandle, error) {
	out, err := w.next.Transform(ctx, req)
	if err != nil {
		return "", err
	}
	return ApplyWatermark(out, w.text)
}

// ApplyWatermark draws text onto img and re-encodes it as PNG. An empty
// text returns img unchanged.
func ApplyWatermark(img models.ImageHandle, text string) (models.ImageHandle, error) {
	if text == "" {
		return img, nil
	}
	_, data, err := img.Decode()
	if err != nil {
		return "", ErrInvalidImage
	}
	src, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", ErrInvalidImage
	}

	bounds := src.Bounds()
	dst := image.NewRGBA(bounds)
	draw.Draw(dst, bounds, src, bounds.Min, draw.Src)

	label := renderLabel(text)
	if rect, ok := labelRect(bounds, label.Bounds()); ok {
		draw.ApproxBiLinear.Scale(dst, rect, label, label.Bounds(), draw.Over, nil)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, dst); err != nil {
		return "", fmt.Errorf("imagegen: failed to encode watermarked image: %w", err)
	}
	return models.NewDataURL("image/png", buf.Bytes()), nil
}

// renderLabel draws text at the bitmap font's native size, offset by one
// pixel over its shadow.
func renderLabel(text string) *image.RGBA {
	face := basicfont.Face7x13
	m := face.Metrics()
	width := font.MeasureString(face, text).Ceil() + 1
	height := (m.Ascent + m.Descent).Ceil() + 1

	label := image.NewRGBA(image.Rect(0, 0, width, height))
	d := &font.Drawer{
		Dst:  label,
		Src:  image.NewUniform(watermarkShadow),
		Face: face,
		Dot:  fixed.P(1, m.Ascent.Ceil()+1),
	}
	d.DrawString(text)

	d.Src = image.NewUniform(watermarkText)
	d.Dot = fixed.P(0, m.Ascent.Ceil())
	d.DrawString(text)
	return label
}

// labelRect scales the label to the image and anchors it bottom-right
// inside the padding. It reports false when the image is too small.
func labelRect(img, label image.Rectangle) (image.Rectangle, bool) {
	height := max(watermarkMinHeight, img.Dx()/watermarkHeightRatio)
	width := label.Dx() * height / label.Dy()

	if room := img.Dx() - 2*watermarkPadding; width > room {
		if room <= 0 {
			return image.Rectangle{}, false
		}
		width = room
		height = label.Dy() * width / label.Dx()
	}
	if height <= 0 || height > img.Dy()-2*watermarkPadding {
		return image.Rectangle{}, false
	}

	maxPt := image.Pt(img.Max.X-watermarkPadding, img.Max.Y-watermarkPadding)
	return image.Rectangle{Min: maxPt.Sub(image.Pt(width, height)), Max: maxPt}, true
}
