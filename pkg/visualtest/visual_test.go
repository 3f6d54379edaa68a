package visualtest

import (
	"context"
	"image"
	"image/color"
	"path/filepath"
	"testing"

	"boxmark/pkg/config"
	"boxmark/pkg/markup"
	"boxmark/pkg/resource"
	"boxmark/pkg/view"
)

func solid(w, h int, c color.Color) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, c)
		}
	}
	return img
}

func TestCompare_Identical(t *testing.T) {
	img := solid(10, 10, color.RGBA{255, 0, 0, 255})
	result, err := Compare(img, img, DefaultOptions())
	if err != nil {
		t.Fatalf("comparison failed: %v", err)
	}
	if !result.Match || result.DifferentPixels != 0 {
		t.Errorf("expected match with 0 different pixels, got %+v", result)
	}
}

func TestCompare_Different(t *testing.T) {
	opts := DefaultOptions()
	opts.KeepDiff = true
	result, err := Compare(solid(10, 10, color.RGBA{255, 0, 0, 255}), solid(10, 10, color.RGBA{0, 0, 255, 255}), opts)
	if err != nil {
		t.Fatalf("comparison failed: %v", err)
	}
	if result.Match {
		t.Error("expected images to not match")
	}
	if result.DifferentPixels != 100 {
		t.Errorf("expected 100 different pixels, got %d", result.DifferentPixels)
	}
	if result.Diff == nil {
		t.Error("expected a diff image")
	}
}

func TestCompare_Tolerance(t *testing.T) {
	a := solid(10, 10, color.RGBA{100, 100, 100, 255})
	b := solid(10, 10, color.RGBA{102, 102, 102, 255})
	opts := DefaultOptions()
	if result, _ := Compare(a, b, opts); !result.Match {
		t.Error("expected images to match with tolerance=2")
	}
	opts.Tolerance = 0
	if result, _ := Compare(a, b, opts); result.Match {
		t.Error("expected images to not match with tolerance=0")
	}
	opts.MaxDifferentPercent = 100
	if result, _ := Compare(a, b, opts); !result.Match {
		t.Error("expected percentage threshold to accept the difference")
	}
}

func TestCompareFiles_DifferentDimensions(t *testing.T) {
	dir := t.TempDir()
	p1, p2 := filepath.Join(dir, "a.png"), filepath.Join(dir, "b.png")
	if err := SavePNG(solid(10, 10, color.White), p1); err != nil {
		t.Fatal(err)
	}
	if err := SavePNG(solid(20, 20, color.White), p2); err != nil {
		t.Fatal(err)
	}
	result, err := CompareFiles(p1, p2, DefaultOptions())
	if err == nil {
		t.Error("expected error for different dimensions")
	}
	if result != nil && result.Match {
		t.Error("expected images with different dimensions to not match")
	}
}

const reflowDoc = `<body>
<div bgcolor=#336699 height=12></div>
<p>the quick brown fox jumps over the lazy dog</p>
<div id=extra hidden bgcolor=red height=20></div>
<div bgcolor=#993366>aaaa bbbb cccc dddd</div>
</body>`

func testPipeline() *view.Pipeline {
	return view.NewWithFetcher(config.DefaultConfig(), &resource.Mux{}, nil, nil)
}

func TestReflow_RotateAndBack(t *testing.T) {
	ctx := context.Background()
	p := testPipeline()
	tree, err := p.Parse(ctx, reflowDoc)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}

	portrait, first, err := RenderTree(ctx, p, tree, 120, 200)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	// Rotate: reflow the decorated result, revert it, and go back.
	_, rotated, err := RenderTree(ctx, p, &markup.Tree{Root: first.Root, Errors: &markup.Errors{}}, 200, 120)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	markup.Revert(rotated.Root)
	again, _, err := RenderTree(ctx, p, &markup.Tree{Root: rotated.Root, Errors: &markup.Errors{}}, 120, 200)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	result, err := Compare(again, portrait, CompareOptions{})
	if err != nil {
		t.Fatalf("comparison failed: %v", err)
	}
	if !result.Match {
		t.Errorf("expected identical pixels after reflow, %d differ", result.DifferentPixels)
	}
}

func TestReflow_HiddenToggleChangesPixels(t *testing.T) {
	ctx := context.Background()
	p := testPipeline()
	tree, err := p.Parse(ctx, reflowDoc)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	before, _, err := RenderTree(ctx, p, tree, 120, 200)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}

	var extra *markup.Node
	tree.Root.Walk(func(n *markup.Node) bool {
		if v, _ := n.Attr("id"); v == "extra" {
			extra = n
		}
		return extra == nil
	})
	extra.SetHidden(false)
	after, _, err := RenderTree(ctx, p, tree, 120, 200)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	result, _ := Compare(after, before, CompareOptions{})
	if result.Match {
		t.Error("expected showing the hidden block to change the rendering")
	}

	extra.SetHidden(true)
	restored, _, _ := RenderTree(ctx, p, tree, 120, 200)
	if result, _ := Compare(restored, before, CompareOptions{}); !result.Match {
		t.Errorf("expected hiding it again to restore the rendering, %d differ", result.DifferentPixels)
	}
}

func TestRenderMarkup(t *testing.T) {
	img, err := RenderMarkup(context.Background(), testPipeline(), "<body><div bgcolor=lime height=10></div></body>", 20, 20)
	if err != nil {
		t.Fatalf("render failed: %v", err)
	}
	r, g, b, _ := img.At(5, 5).RGBA()
	if r != 0 || g>>8 != 255 || b != 0 {
		t.Errorf("expected lime, got %d,%d,%d", r>>8, g>>8, b>>8)
	}
}
