package visualtest

import (
	"context"
	"fmt"
	"image"

	"boxmark/pkg/layout"
	"boxmark/pkg/markup"
	"boxmark/pkg/render"
	"boxmark/pkg/view"
)

// RenderTree lays out tree at width x height through p and paints it.
func RenderTree(ctx context.Context, p *view.Pipeline, tree *markup.Tree, width, height int) (*image.RGBA, *layout.Result, error) {
	res, err := p.Layout(ctx, tree, layout.Size{Width: float64(width), Height: float64(height)})
	if res == nil {
		return nil, nil, fmt.Errorf("layout error: %w", err)
	}
	target := image.NewRGBA(image.Rect(0, 0, width, height))
	r := render.NewRendererForImage(target)
	r.SetImages(p.Images)
	r.Render(ctx, res)
	return target, res, err
}

// RenderMarkup parses src and renders it at width x height.
func RenderMarkup(ctx context.Context, p *view.Pipeline, src string, width, height int) (*image.RGBA, error) {
	tree, err := p.Parse(ctx, src)
	if tree == nil {
		return nil, fmt.Errorf("parse error: %w", err)
	}
	img, _, err := RenderTree(ctx, p, tree, width, height)
	return img, err
}
