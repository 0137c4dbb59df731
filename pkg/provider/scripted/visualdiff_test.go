package scripted_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pressgate/pkg/provider/scripted"
)

func solidPNG(t *testing.T, w, h int, c color.Color) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestCompareScreenshots_Identical(t *testing.T) {
	shot := solidPNG(t, 200, 100, color.White)

	delta, err := scripted.CompareScreenshots(shot, shot)
	require.NoError(t, err)
	assert.Zero(t, delta)
}

func TestCompareScreenshots_FullyDifferent(t *testing.T) {
	white := solidPNG(t, 200, 100, color.White)
	black := solidPNG(t, 200, 100, color.Black)

	delta, err := scripted.CompareScreenshots(white, black)
	require.NoError(t, err)
	assert.Greater(t, delta, scripted.DefaultDriftThreshold)
}

func TestCompareScreenshots_MinorChange(t *testing.T) {
	base := solidPNG(t, 200, 100, color.White)

	img := image.NewRGBA(image.Rect(0, 0, 200, 100))
	for y := 0; y < 100; y++ {
		for x := 0; x < 200; x++ {
			if y < 5 {
				img.Set(x, y, color.Black)
			} else {
				img.Set(x, y, color.White)
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	delta, err := scripted.CompareScreenshots(base, buf.Bytes())
	require.NoError(t, err)
	assert.Less(t, delta, scripted.DefaultDriftThreshold)
}

func TestCompareScreenshots_SizeMismatchPenalized(t *testing.T) {
	big := solidPNG(t, 400, 200, color.White)
	small := solidPNG(t, 100, 50, color.White)

	delta, err := scripted.CompareScreenshots(big, small)
	require.NoError(t, err)
	// Pixels match but the layout shrank to a fraction of its size.
	assert.Greater(t, delta, scripted.DefaultDriftThreshold)
}

func TestCompareScreenshots_InvalidPNG(t *testing.T) {
	valid := solidPNG(t, 10, 10, color.White)

	_, err := scripted.CompareScreenshots([]byte("not a png"), valid)
	assert.ErrorContains(t, err, "decoding baseline screenshot")

	_, err = scripted.CompareScreenshots(valid, []byte("not a png"))
	assert.ErrorContains(t, err, "decoding current screenshot")
}
