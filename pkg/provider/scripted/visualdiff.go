package scripted

import (
	"bytes"
	"fmt"
	"image"
	_ "image/png"
	"os"
	"path/filepath"
)

// DefaultDriftThreshold is the normalized pixel delta above which a
// rendered page is considered to have drifted from its baseline.
// Static selectors likely no longer match a page that changed this
// much, so drift is a signal to fall back to the agentic provider.
const DefaultDriftThreshold = 0.35

// CompareScreenshots returns the normalized average per-pixel delta
// between two PNG screenshots, in [0,1]. Images of different sizes are
// compared over the overlapping region; a large size change itself
// contributes to the delta.
func CompareScreenshots(baseline, current []byte) (float64, error) {
	baseImg, _, err := image.Decode(bytes.NewReader(baseline))
	if err != nil {
		return 0, fmt.Errorf("decoding baseline screenshot: %w", err)
	}
	curImg, _, err := image.Decode(bytes.NewReader(current))
	if err != nil {
		return 0, fmt.Errorf("decoding current screenshot: %w", err)
	}

	bb, cb := baseImg.Bounds(), curImg.Bounds()
	w := min(bb.Dx(), cb.Dx())
	h := min(bb.Dy(), cb.Dy())
	if w == 0 || h == 0 {
		return 1, nil
	}

	// Sample on a coarse grid; exact per-pixel diffing buys nothing
	// for a drift signal and screenshots are large.
	const grid = 64
	stepX := max(w/grid, 1)
	stepY := max(h/grid, 1)

	var total, samples float64
	for y := 0; y < h; y += stepY {
		for x := 0; x < w; x += stepX {
			br, bg, bbl, _ := baseImg.At(bb.Min.X+x, bb.Min.Y+y).RGBA()
			cr, cg, cbl, _ := curImg.At(cb.Min.X+x, cb.Min.Y+y).RGBA()
			total += absDiff(br, cr) + absDiff(bg, cg) + absDiff(bbl, cbl)
			samples += 3
		}
	}
	delta := total / (samples * 0xffff)

	// Fold in the size mismatch.
	sizePenalty := 1 - (float64(w*h) / float64(max(bb.Dx()*bb.Dy(), cb.Dx()*cb.Dy())))
	delta += sizePenalty * (1 - delta)
	if delta > 1 {
		delta = 1
	}
	return delta, nil
}

func absDiff(a, b uint32) float64 {
	if a > b {
		return float64(a - b)
	}
	return float64(b - a)
}

// baselineCheck compares a phase screenshot against the stored
// baseline. A missing baseline is adopted, not flagged: the first run
// against a target establishes the reference.
func baselineCheck(baselineDir, name string, current []byte, threshold float64) (float64, error) {
	path := filepath.Join(baselineDir, name+".png")
	baseline, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		if mkErr := os.MkdirAll(baselineDir, 0755); mkErr != nil {
			return 0, fmt.Errorf("creating baseline directory: %w", mkErr)
		}
		if wrErr := os.WriteFile(path, current, 0644); wrErr != nil {
			return 0, fmt.Errorf("storing new baseline %q: %w", path, wrErr)
		}
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("reading baseline %q: %w", path, err)
	}
	return CompareScreenshots(baseline, current)
}
