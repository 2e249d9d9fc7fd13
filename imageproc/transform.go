// Package imageproc implements the image transform stages of the try-on
// pipeline: subject/garment preprocessing, result postprocessing, and the
// deterministic fallback compositor.
package imageproc

import (
	"bytes"
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/raushankrgupta/fitview-tryon/errs"
)

const (
	// CanonicalSize is the fixed square resolution all delivered
	// composites are normalized to.
	CanonicalSize = 1024

	// GarmentMinSize is the minimum garment edge; smaller inputs are
	// upscaled preserving aspect ratio before generation.
	GarmentMinSize = 512
)

// Stage performs the pre/postprocessing transforms. All operations are pure
// and stateless; optional capabilities are fixed at construction.
type Stage struct {
	segmenter Segmenter
	enhancer  Enhancer
}

// NewStage creates a Stage with the given capabilities. Nil capabilities
// fall back to the passthrough/no-op defaults.
func NewStage(seg Segmenter, enh Enhancer) *Stage {
	if seg == nil {
		seg = PassthroughSegmenter{}
	}
	if enh == nil {
		enh = NoopEnhancer{}
	}
	return &Stage{segmenter: seg, enhancer: enh}
}

// PreprocessSubject normalizes a model or user photo: decode, cover-resize
// and center-crop to the canonical square, re-encode as PNG.
func (s *Stage) PreprocessSubject(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}
	img = imaging.Fill(img, CanonicalSize, CanonicalSize, imaging.Center, imaging.Lanczos)
	return encodePNG(img)
}

// PreprocessGarment normalizes a garment photo: upscale to the minimum
// resolution if needed, then isolate the garment onto a transparent
// background via the configured segmenter.
func (s *Stage) PreprocessGarment(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() < GarmentMinSize || b.Dy() < GarmentMinSize {
		scale := max(float64(GarmentMinSize)/float64(b.Dx()), float64(GarmentMinSize)/float64(b.Dy()))
		img = imaging.Resize(img, int(float64(b.Dx())*scale), int(float64(b.Dy())*scale), imaging.Lanczos)
	}

	// Clone guarantees an alpha channel even when the segmenter passes
	// the image through untouched.
	out := s.segmenter.Segment(imaging.Clone(img))
	return encodePNG(out)
}

// Postprocess finishes a generated composite: sharpen, bounded contrast and
// saturation boosts, optional enhancement pass, then normalize to the
// canonical size and encode for delivery.
func (s *Stage) Postprocess(data []byte) ([]byte, error) {
	img, err := decode(data)
	if err != nil {
		return nil, err
	}

	out := imaging.Sharpen(img, 1.0)
	out = imaging.AdjustContrast(out, 5)
	out = imaging.AdjustSaturation(out, 3)
	out = s.enhancer.Enhance(out)
	out = imaging.Fill(out, CanonicalSize, CanonicalSize, imaging.Center, imaging.Lanczos)
	return encodePNG(out)
}

func decode(data []byte) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %v: %w", err, errs.ErrInvalidInput)
	}
	return img, nil
}

func encodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
