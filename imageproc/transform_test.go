package imageproc

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/disintegration/imaging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raushankrgupta/fitview-tryon/errs"
)

func encodeTestImage(t *testing.T, w, h int, c color.Color, format imaging.Format) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, imaging.Encode(&buf, imaging.New(w, h, c), format))
	return buf.Bytes()
}

func decodeDims(t *testing.T, data []byte) (width, height int, format string) {
	t.Helper()
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	require.NoError(t, err)
	return cfg.Width, cfg.Height, format
}

func TestPreprocessSubjectNormalizesToCanonicalSquare(t *testing.T) {
	stage := NewStage(nil, nil)

	for name, input := range map[string][]byte{
		"square jpeg":    encodeTestImage(t, 512, 512, color.Gray{Y: 128}, imaging.JPEG),
		"landscape png":  encodeTestImage(t, 800, 600, color.Gray{Y: 128}, imaging.PNG),
		"portrait jpeg":  encodeTestImage(t, 600, 900, color.Gray{Y: 128}, imaging.JPEG),
		"oversized jpeg": encodeTestImage(t, 2048, 1536, color.Gray{Y: 128}, imaging.JPEG),
	} {
		out, err := stage.PreprocessSubject(input)
		require.NoError(t, err, name)

		w, h, format := decodeDims(t, out)
		assert.Equal(t, CanonicalSize, w, name)
		assert.Equal(t, CanonicalSize, h, name)
		assert.Equal(t, "png", format, name)
	}
}

func TestPreprocessGarmentUpscalesSmallInput(t *testing.T) {
	stage := NewStage(nil, nil)
	input := encodeTestImage(t, 256, 128, color.NRGBA{R: 200, A: 255}, imaging.PNG)

	out, err := stage.PreprocessGarment(input)
	require.NoError(t, err)

	w, h, format := decodeDims(t, out)
	assert.Equal(t, "png", format)
	assert.GreaterOrEqual(t, w, GarmentMinSize)
	assert.GreaterOrEqual(t, h, GarmentMinSize)
	// Aspect ratio survives the upscale.
	assert.Equal(t, 2, w/h)
}

func TestPreprocessGarmentKeepsLargeInput(t *testing.T) {
	stage := NewStage(nil, nil)
	input := encodeTestImage(t, 800, 600, color.NRGBA{G: 200, A: 255}, imaging.JPEG)

	out, err := stage.PreprocessGarment(input)
	require.NoError(t, err)

	w, h, _ := decodeDims(t, out)
	assert.Equal(t, 800, w)
	assert.Equal(t, 600, h)
}

func TestPostprocessNormalizesToCanonicalSquare(t *testing.T) {
	stage := NewStage(nil, nil)
	input := encodeTestImage(t, 768, 768, color.NRGBA{B: 150, A: 255}, imaging.PNG)

	out, err := stage.Postprocess(input)
	require.NoError(t, err)

	w, h, format := decodeDims(t, out)
	assert.Equal(t, CanonicalSize, w)
	assert.Equal(t, CanonicalSize, h)
	assert.Equal(t, "png", format)
}

func TestUndecodableInputIsInvalid(t *testing.T) {
	stage := NewStage(nil, nil)
	garbage := []byte("not an image at all")

	_, err := stage.PreprocessSubject(garbage)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = stage.PreprocessGarment(garbage)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)

	_, err = stage.Postprocess(garbage)
	assert.ErrorIs(t, err, errs.ErrInvalidInput)
}

func TestChromaKeySegmenterClearsBackdrop(t *testing.T) {
	img := imaging.New(100, 100, color.NRGBA{R: 255, G: 255, B: 255, A: 255})
	// Solid garment block in the middle on a white backdrop.
	for y := 30; y < 70; y++ {
		for x := 30; x < 70; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: 180, G: 20, B: 20, A: 255})
		}
	}

	out := ChromaKeySegmenter{}.Segment(img)

	assert.EqualValues(t, 0, out.NRGBAAt(1, 1).A, "backdrop corner should be transparent")
	assert.EqualValues(t, 255, out.NRGBAAt(50, 50).A, "garment body should stay opaque")
}
