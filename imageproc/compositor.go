package imageproc

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/raushankrgupta/fitview-tryon/errs"
)

// Fallback compositing constants, tuned for a natural-looking overlay.
const (
	perspectiveInset = 0.03 // top-edge narrowing, fraction of garment width

	torsoTop    = 0.15 // torso luminance band, fraction of subject height
	torsoBottom = 0.55

	minBrightnessRatio = 0.7
	maxBrightnessRatio = 1.3

	alphaBlurSigma = 3.0

	singleFeatherPx = 20
	multiFeatherPx  = 15

	singleHeightCap = 0.50 // garment height cap, fraction of subject height
	multiHeightCap  = 0.35
)

// Garment width ratios and vertical anchors. Single-garment composites use
// the first slot; additional garments stack at staggered offsets with
// decreasing widths.
var (
	widthRatios = []float64{0.55, 0.45, 0.40, 0.35, 0.30}
	yOffsets    = []float64{0.18, 0.45, 0.60, 0.70, 0.78}
)

// Compositor produces a deterministic, offline composite when every AI
// provider has failed. It never needs the network and never fails for
// decodable inputs.
type Compositor struct{}

// NewCompositor creates a Compositor.
func NewCompositor() *Compositor { return &Compositor{} }

// Compose overlays the garments onto the subject: scale, perspective-narrow,
// brightness-match, feather, paste, sharpen. The output is a PNG the same
// size as the (preprocessed) subject image.
func (c *Compositor) Compose(subject []byte, garments [][]byte) ([]byte, error) {
	if len(garments) == 0 {
		return nil, fmt.Errorf("no garments to composite: %w", errs.ErrInvalidInput)
	}

	subjImg, err := decode(subject)
	if err != nil {
		return nil, err
	}
	subj := imaging.Clone(subjImg)
	w, h := subj.Bounds().Dx(), subj.Bounds().Dy()

	torsoLum := regionBrightness(subj, int(float64(h)*torsoTop), int(float64(h)*torsoBottom))

	single := len(garments) == 1
	heightCap := multiHeightCap
	featherPx := multiFeatherPx
	if single {
		heightCap = singleHeightCap
		featherPx = singleFeatherPx
	}

	composite := subj
	for i, raw := range garments {
		gImg, err := decode(raw)
		if err != nil {
			return nil, err
		}
		g := imaging.Clone(gImg)

		ratio := widthRatios[min(i, len(widthRatios)-1)]
		yOff := yOffsets[min(i, len(yOffsets)-1)]
		if single {
			yOff = yOffsets[0]
		}

		targetW := int(float64(w) * ratio)
		aspect := float64(g.Bounds().Dy()) / float64(g.Bounds().Dx())
		targetH := int(float64(targetW) * aspect)
		if maxH := int(float64(h) * heightCap); targetH > maxH {
			targetH = maxH
		}
		if targetW < 1 || targetH < 1 {
			continue
		}

		g = imaging.Resize(g, targetW, targetH, imaging.Lanczos)
		g = perspectiveNarrow(g, perspectiveInset)
		g = matchBrightness(g, torsoLum)
		g = featherAlpha(g, alphaBlurSigma, featherPx)

		pasteX := (w - targetW) / 2
		pasteY := int(float64(h) * yOff)
		composite = imaging.Overlay(composite, g, image.Pt(pasteX, pasteY), 1.0)
	}

	composite = imaging.Sharpen(composite, 0.8)
	return encodePNG(composite)
}

// perspectiveNarrow insets the top edge of the garment by a fraction of its
// width, linearly widening back to full width at the bottom. Emulates drape
// without a full perspective transform.
func perspectiveNarrow(img *image.NRGBA, inset float64) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	topInset := float64(w) * inset
	if topInset < 1 || w < 3 || h < 2 {
		return img
	}

	out := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		rowInset := topInset * (1 - float64(y)/float64(h-1))
		rowWidth := float64(w) - 2*rowInset
		for x := 0; x < w; x++ {
			fx := float64(x)
			if fx < rowInset || fx > float64(w)-rowInset {
				continue // transparent outside the narrowed band
			}
			srcX := (fx - rowInset) / rowWidth * float64(w-1)
			copyPixelLerp(out, img, x, y, srcX)
		}
	}
	return out
}

// copyPixelLerp writes the horizontally interpolated source pixel at
// (srcX, y) into dst at (x, y).
func copyPixelLerp(dst, src *image.NRGBA, x, y int, srcX float64) {
	w := src.Bounds().Dx()
	x0 := int(srcX)
	x1 := x0 + 1
	if x1 > w-1 {
		x1 = w - 1
	}
	frac := srcX - float64(x0)

	i0 := src.PixOffset(x0, y)
	i1 := src.PixOffset(x1, y)
	o := dst.PixOffset(x, y)
	for c := 0; c < 4; c++ {
		v := float64(src.Pix[i0+c])*(1-frac) + float64(src.Pix[i1+c])*frac
		dst.Pix[o+c] = uint8(v + 0.5)
	}
}

// regionBrightness returns the mean RGB channel value over the given row
// band of the image.
func regionBrightness(img *image.NRGBA, yStart, yEnd int) float64 {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if yStart < 0 {
		yStart = 0
	}
	if yEnd > h {
		yEnd = h
	}
	if yEnd <= yStart || w == 0 {
		return 0
	}

	var sum, n float64
	for y := yStart; y < yEnd; y++ {
		for x := 0; x < w; x++ {
			i := img.PixOffset(x, y)
			sum += float64(img.Pix[i]) + float64(img.Pix[i+1]) + float64(img.Pix[i+2])
			n += 3
		}
	}
	return sum / n
}

// brightnessRatio computes the clamped correction factor that matches the
// garment brightness to the subject's torso brightness.
func brightnessRatio(torsoLum, garmentLum float64) float64 {
	if garmentLum <= 0 {
		return maxBrightnessRatio
	}
	ratio := torsoLum / garmentLum
	if ratio < minBrightnessRatio {
		return minBrightnessRatio
	}
	if ratio > maxBrightnessRatio {
		return maxBrightnessRatio
	}
	return ratio
}

// matchBrightness scales the garment's RGB channels toward the subject's
// torso brightness, leaving alpha untouched.
func matchBrightness(img *image.NRGBA, torsoLum float64) *image.NRGBA {
	b := img.Bounds()
	garmentLum := regionBrightness(img, 0, b.Dy())
	ratio := brightnessRatio(torsoLum, garmentLum)

	for i := 0; i < len(img.Pix); i += 4 {
		for c := 0; c < 3; c++ {
			v := float64(img.Pix[i+c]) * ratio
			if v > 255 {
				v = 255
			}
			img.Pix[i+c] = uint8(v)
		}
	}
	return img
}

// featherAlpha blurs the garment's alpha channel and linearly fades a border
// band on all four edges to zero, so the paste blends instead of cutting.
func featherAlpha(img *image.NRGBA, blurSigma float64, featherPx int) *image.NRGBA {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	// Blur the alpha channel through a grayscale proxy image.
	gray := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := img.Pix[img.PixOffset(x, y)+3]
			o := gray.PixOffset(x, y)
			gray.Pix[o] = a
			gray.Pix[o+1] = a
			gray.Pix[o+2] = a
			gray.Pix[o+3] = 255
		}
	}
	blurred := imaging.Blur(gray, blurSigma)

	if featherPx > w/2 {
		featherPx = w / 2
	}
	if featherPx > h/2 {
		featherPx = h / 2
	}

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			a := float64(blurred.Pix[blurred.PixOffset(x, y)])

			edge := min(min(x, w-1-x), min(y, h-1-y))
			if featherPx > 0 && edge < featherPx {
				a *= float64(edge) / float64(featherPx)
			}

			img.Pix[img.PixOffset(x, y)+3] = uint8(a)
		}
	}
	return img
}
