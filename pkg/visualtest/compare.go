// Package visualtest compares renderings pixel by pixel. It backs the
// reflow regression tests: a document rendered, reflowed at another size
// and rendered again at the first size must produce the same pixels.
package visualtest

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"os"
)

// CompareResult contains the results of an image comparison
type CompareResult struct {
	Match           bool
	DifferentPixels int
	TotalPixels     int
	MaxDifference   int // largest channel difference found, 0-255
	// Diff marks differing pixels in red over a grayscale copy of the
	// actual image. Set only when requested and the images differ.
	Diff *image.RGBA
}

// CompareOptions configures the image comparison
type CompareOptions struct {
	// Tolerance is the largest per-channel difference (0-255) still
	// counted as equal.
	Tolerance int

	// MaxDifferentPercent lets a comparison pass when at most this
	// percentage of pixels differ.
	MaxDifferentPercent float64

	KeepDiff bool
}

// DefaultOptions returns sensible defaults for image comparison
func DefaultOptions() CompareOptions {
	return CompareOptions{Tolerance: 2}
}

// Compare compares two images of the same bounds.
func Compare(actual, expected image.Image, opts CompareOptions) (*CompareResult, error) {
	bounds := actual.Bounds()
	if bounds != expected.Bounds() {
		return &CompareResult{}, fmt.Errorf("image dimensions differ: actual=%v, expected=%v", bounds, expected.Bounds())
	}

	result := &CompareResult{Match: true, TotalPixels: bounds.Dx() * bounds.Dy()}
	var diff *image.RGBA
	if opts.KeepDiff {
		diff = image.NewRGBA(bounds)
	}
	for y := bounds.Min.Y; y < bounds.Max.Y; y++ {
		for x := bounds.Min.X; x < bounds.Max.X; x++ {
			a := color.NRGBAModel.Convert(actual.At(x, y)).(color.NRGBA)
			e := color.NRGBAModel.Convert(expected.At(x, y)).(color.NRGBA)
			d := max(
				channelDiff(a.R, e.R),
				channelDiff(a.G, e.G),
				channelDiff(a.B, e.B),
				channelDiff(a.A, e.A),
			)
			result.MaxDifference = max(result.MaxDifference, d)
			if d > opts.Tolerance {
				result.DifferentPixels++
			}
			if diff == nil {
				continue
			}
			if d > opts.Tolerance {
				diff.Set(x, y, color.RGBA{255, 0, 0, 255})
			} else {
				gray := color.GrayModel.Convert(a).(color.Gray)
				diff.Set(x, y, color.RGBA{gray.Y, gray.Y, gray.Y, 255})
			}
		}
	}

	if result.DifferentPixels > 0 {
		pct := float64(result.DifferentPixels) / float64(result.TotalPixels) * 100
		result.Match = opts.MaxDifferentPercent > 0 && pct <= opts.MaxDifferentPercent
	}
	if !result.Match {
		result.Diff = diff
	}
	return result, nil
}

// CompareFiles decodes two PNG files and compares them.
func CompareFiles(actualPath, expectedPath string, opts CompareOptions) (*CompareResult, error) {
	actual, err := loadPNG(actualPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load actual image: %w", err)
	}
	expected, err := loadPNG(expectedPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load expected image: %w", err)
	}
	return Compare(actual, expected, opts)
}

func loadPNG(path string) (image.Image, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return png.Decode(f)
}

// SavePNG writes img to path.
func SavePNG(img image.Image, path string) error {
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	return png.Encode(file, img)
}

func channelDiff(a, b uint8) int {
	if a > b {
		return int(a - b)
	}
	return int(b - a)
}
