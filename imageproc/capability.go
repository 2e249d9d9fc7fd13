package imageproc

import (
	"image"

	"github.com/disintegration/imaging"
)

// Segmenter isolates the garment from its background. The default
// passthrough keeps the image as-is (the clone already carries an alpha
// channel), so a missing segmentation capability never fails the pipeline.
type Segmenter interface {
	Segment(img *image.NRGBA) *image.NRGBA
}

// Enhancer is an optional postprocessing capability: local-contrast
// equalization plus edge-preserving smoothing. Selected at startup; the
// default is a no-op.
type Enhancer interface {
	Enhance(img *image.NRGBA) *image.NRGBA
}

// PassthroughSegmenter returns the garment unchanged.
type PassthroughSegmenter struct{}

func (PassthroughSegmenter) Segment(img *image.NRGBA) *image.NRGBA { return img }

// ChromaKeySegmenter keys out a near-uniform backdrop. The backdrop color is
// estimated from the four corners; pixels within the tolerance become fully
// transparent. Works for flat-lay catalog shots, degrades to passthrough-ish
// behavior on busy backgrounds.
type ChromaKeySegmenter struct {
	// Tolerance is the max per-channel distance (0-255) from the sampled
	// backdrop color for a pixel to be keyed out.
	Tolerance int
}

func (s ChromaKeySegmenter) Segment(img *image.NRGBA) *image.NRGBA {
	tol := s.Tolerance
	if tol <= 0 {
		tol = 30
	}

	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w < 2 || h < 2 {
		return img
	}

	corners := [][2]int{{0, 0}, {w - 1, 0}, {0, h - 1}, {w - 1, h - 1}}
	var br, bg, bb int
	for _, c := range corners {
		i := img.PixOffset(b.Min.X+c[0], b.Min.Y+c[1])
		br += int(img.Pix[i])
		bg += int(img.Pix[i+1])
		bb += int(img.Pix[i+2])
	}
	br, bg, bb = br/4, bg/4, bb/4

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(b.Min.X+x, b.Min.Y+y)
			if abs(int(img.Pix[i])-br) <= tol &&
				abs(int(img.Pix[i+1])-bg) <= tol &&
				abs(int(img.Pix[i+2])-bb) <= tol {
				img.Pix[i+3] = 0
			}
		}
	}
	return img
}

// NoopEnhancer leaves the composite untouched.
type NoopEnhancer struct{}

func (NoopEnhancer) Enhance(img *image.NRGBA) *image.NRGBA { return img }

// SigmoidEnhancer approximates adaptive local-contrast equalization with a
// sigmoidal contrast curve followed by a light blur+sharpen smoothing pass.
type SigmoidEnhancer struct{}

func (SigmoidEnhancer) Enhance(img *image.NRGBA) *image.NRGBA {
	out := imaging.AdjustSigmoid(img, 0.5, 3.0)
	out = imaging.Blur(out, 0.5)
	return imaging.Sharpen(out, 0.5)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
