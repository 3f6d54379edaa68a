package layout

import (
	"context"
	"errors"
	"testing"
	"time"

	"boxmark/pkg/async"
	"boxmark/pkg/images"
	"boxmark/pkg/markup"
	"boxmark/pkg/tags"
	"boxmark/pkg/text"
)

const testList = "resources://Views/LayoutTest/DepthAssetList"

func testRegistry(t *testing.T) *tags.Registry {
	t.Helper()
	table, err := tags.NewTable(testList,
		tags.Entry{Name: "itemlayout", Type: "layer"},
		tags.Entry{Name: "topleft", Type: "layer"},
		tags.Entry{Name: "topright", Type: "layer"},
		tags.Entry{Name: "content", Type: "layer", Box: true},
		tags.Entry{Name: "bottom", Type: "layer"},
		tags.Entry{Name: "customtag", Type: "layer"},
		tags.Entry{Name: "custombg", Type: "layer"},
		tags.Entry{Name: "customtext", Type: "text"},
	)
	if err != nil {
		t.Fatalf("building table: %v", err)
	}
	return tags.NewRegistry(tags.StaticSource{testList: table})
}

func parseTree(t *testing.T, reg *tags.Registry, src string) *markup.Tree {
	t.Helper()
	tree, err := markup.Parse(context.Background(), reg, src)
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	return tree
}

func layoutTree(t *testing.T, reg *tags.Registry, sizes images.SizeProvider, tree *markup.Tree, w, h float64) *Result {
	t.Helper()
	m := NewMachine(reg, text.NewFixedMeasurer(), sizes)
	res, err := m.LayoutSync(context.Background(), tree, Size{Width: w, Height: h})
	if err != nil {
		t.Fatalf("layout failed: %v", err)
	}
	return res
}

func layoutMarkup(t *testing.T, src string, sizes images.SizeProvider, w, h float64) *Result {
	t.Helper()
	reg := testRegistry(t)
	return layoutTree(t, reg, sizes, parseTree(t, reg, src), w, h)
}

func TestLayout_SingleLineText(t *testing.T) {
	res := layoutMarkup(t, "<body>something</body>", nil, 100, 100)
	if len(res.Root.Children) != 1 {
		t.Fatalf("expected 1 root child, got %d", len(res.Root.Children))
	}
	body := res.Root.Children[0]
	if body.Type != markup.Container {
		t.Errorf("expected body Container, got %v", body.Type)
	}
	if len(body.Children) != 1 {
		t.Fatalf("expected 1 body child, got %d", len(body.Children))
	}
	txt := body.Children[0]
	if txt.Type != markup.ContentText {
		t.Errorf("expected Content_Text, got %v", txt.Type)
	}
	if txt.Height != 16 {
		t.Errorf("expected height 16, got %v", txt.Height)
	}
	if txt.Y != 0 {
		t.Errorf("expected offsetY 0, got %v", txt.Y)
	}
	if txt.Width != 72 {
		t.Errorf("expected width 72, got %v", txt.Width)
	}
}

func TestLayout_ImageExactFit(t *testing.T) {
	sizes := images.StaticSizes{"a.png": {Width: 100, Height: 100}}
	res := layoutMarkup(t, "<body><img src='a.png'/></body>", sizes, 100, 100)
	img := res.Root.Children[0].Children[0]
	if img.Width != 100 || img.Height != 100 {
		t.Errorf("expected 100x100, got %vx%v", img.Width, img.Height)
	}
	if len(res.Failed) != 0 {
		t.Errorf("expected no failures, got %d", len(res.Failed))
	}
}

func TestLayout_ImageBreaksLine(t *testing.T) {
	sizes := images.StaticSizes{
		"a.png": {Width: 10, Height: 10},
		"b.png": {Width: 97, Height: 20},
	}
	res := layoutMarkup(t, "<body><img src='a.png'/><img src='b.png'/></body>", sizes, 100, 100)
	body := res.Root.Children[0]
	first, second := body.Children[0], body.Children[1]
	if first.X != 0 || first.Y != 0 {
		t.Errorf("expected first image at 0,0, got %v,%v", first.X, first.Y)
	}
	if second.X != 0 || second.Y != 10 {
		t.Errorf("expected second image at 0,10, got %v,%v", second.X, second.Y)
	}
	if body.Height != 30 {
		t.Errorf("expected body height 30, got %v", body.Height)
	}
}

func TestLayout_ImagesShareLine(t *testing.T) {
	sizes := images.StaticSizes{
		"a.png": {Width: 10, Height: 10},
		"b.png": {Width: 90, Height: 20},
	}
	res := layoutMarkup(t, "<body><img src='a.png'/><img src='b.png'/></body>", sizes, 100, 100)
	body := res.Root.Children[0]
	if body.Children[1].X != 10 || body.Children[1].Y != 0 {
		t.Errorf("expected exact fit on the same line, got %v,%v", body.Children[1].X, body.Children[1].Y)
	}
	if body.Height != 20 {
		t.Errorf("expected line height 20, got %v", body.Height)
	}
}

func TestLayout_ImageScaledToWidth(t *testing.T) {
	sizes := images.StaticSizes{"wide.png": {Width: 200, Height: 50}}
	res := layoutMarkup(t, "<body><img src='wide.png'/></body>", sizes, 100, 100)
	img := res.Root.Children[0].Children[0]
	if img.Width != 100 || img.Height != 25 {
		t.Errorf("expected 100x25, got %vx%v", img.Width, img.Height)
	}
}

func TestLayout_ImageAttributes(t *testing.T) {
	sizes := images.StaticSizes{"a.png": {Width: 100, Height: 100}}
	res := layoutMarkup(t, "<body><img src='a.png' width='50'/><img width=20 height=30/></body>", sizes, 100, 100)
	body := res.Root.Children[0]
	if body.Children[0].Width != 50 || body.Children[0].Height != 50 {
		t.Errorf("expected proportional 50x50, got %vx%v", body.Children[0].Width, body.Children[0].Height)
	}
	if body.Children[1].Width != 20 || body.Children[1].Height != 30 || body.Children[1].X != 50 {
		t.Errorf("expected explicit 20x30 at x=50, got %vx%v at %v", body.Children[1].Width, body.Children[1].Height, body.Children[1].X)
	}
}

func TestLayout_FailedImagePlaceholder(t *testing.T) {
	res := layoutMarkup(t, "<body><img src='missing.png'/>text</body>", images.StaticSizes{}, 100, 100)
	body := res.Root.Children[0]
	img := body.Children[0]
	if img.Width != 0 || img.Height != 0 {
		t.Errorf("expected zero-size placeholder, got %vx%v", img.Width, img.Height)
	}
	if len(res.Failed) != 1 || res.Failed[0] != img {
		t.Fatalf("expected the image to be reported as failed, got %v", res.Failed)
	}
	if !res.Errors.Has(markup.ErrImageFailed) {
		t.Error("expected IMAGE_FAILED")
	}
	if body.Children[1].Y != 0 || body.Height != 16 {
		t.Errorf("expected text to lay out normally, got y=%v body height %v", body.Children[1].Y, body.Height)
	}
}

func TestLayout_TextWraps(t *testing.T) {
	reg := testRegistry(t)
	tree := parseTree(t, reg, "<body>aaaa bbbb cccc dddd eeee</body>")
	res := layoutTree(t, reg, nil, tree, 100, 100)

	body := res.Root.Children[0]
	if len(body.Children) != 3 {
		t.Fatalf("expected 3 pieces, got %d", len(body.Children))
	}
	want := []string{"aaaa bbbb ", "cccc dddd ", "eeee"}
	for i, piece := range body.Children {
		if piece.Text != want[i] {
			t.Errorf("piece %d: expected %q, got %q", i, want[i], piece.Text)
		}
		if piece.Y != float64(16*i) {
			t.Errorf("piece %d: expected y %d, got %v", i, 16*i, piece.Y)
		}
		if piece.Height != 16 {
			t.Errorf("piece %d: expected height 16, got %v", i, piece.Height)
		}
	}
	if !body.Children[1].Inserted() || !body.Children[2].Inserted() {
		t.Error("expected continuation pieces to be insertion wrappers")
	}
	if body.Height != 48 {
		t.Errorf("expected body height 48, got %v", body.Height)
	}

	// The parsed tree itself is never edited.
	orig := tree.Root.Children[0]
	if len(orig.Children) != 1 || orig.Children[0].Text != "aaaa bbbb cccc dddd eeee" {
		t.Error("expected the input tree to be left untouched")
	}
}

func TestLayout_InclusiveFit(t *testing.T) {
	// "aaaa bbbb" is exactly 72 wide.
	res := layoutMarkup(t, "<body>aaaa bbbb</body>", nil, 72, 100)
	if h := res.Root.Children[0].Height; h != 16 {
		t.Errorf("expected one line at exact width, got height %v", h)
	}
	res = layoutMarkup(t, "<body>aaaa bbbb</body>", nil, 71, 100)
	if h := res.Root.Children[0].Height; h != 32 {
		t.Errorf("expected two lines below exact width, got height %v", h)
	}
}

func TestLayout_LongWordOverflows(t *testing.T) {
	res := layoutMarkup(t, "<body>abcdefghijklmnop qr</body>", nil, 40, 100)
	body := res.Root.Children[0]
	if len(body.Children) != 2 {
		t.Fatalf("expected 2 pieces, got %d", len(body.Children))
	}
	if body.Children[0].Width != 128 {
		t.Errorf("expected overflowing word width 128, got %v", body.Children[0].Width)
	}
	if body.Children[1].Y != 16 {
		t.Errorf("expected second piece on next line, got y %v", body.Children[1].Y)
	}
}

func TestLayout_JapaneseWraps(t *testing.T) {
	res := layoutMarkup(t, "<body>あいうえおかきくけこ</body>", nil, 100, 100)
	body := res.Root.Children[0]
	if len(body.Children) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(body.Children))
	}
	if body.Children[0].Text != "あいうえおか" || body.Children[1].Text != "きくけこ" {
		t.Errorf("unexpected split %q / %q", body.Children[0].Text, body.Children[1].Text)
	}
	if body.Height != 32 {
		t.Errorf("expected height 32, got %v", body.Height)
	}
}

func TestLayout_TextAfterImage(t *testing.T) {
	sizes := images.StaticSizes{"a.png": {Width: 60, Height: 30}}
	res := layoutMarkup(t, "<body><img src='a.png'/>aaaa bbbb</body>", sizes, 100, 100)
	body := res.Root.Children[0]
	first, rest := body.Children[1], body.Children[2]
	if first.X != 60 || first.Y != 0 || first.Text != "aaaa " {
		t.Errorf("expected 'aaaa ' beside the image, got %q at %v,%v", first.Text, first.X, first.Y)
	}
	if rest.X != 0 || rest.Y != 30 {
		t.Errorf("expected remainder below the image line, got %v,%v", rest.X, rest.Y)
	}
	if body.Height != 46 {
		t.Errorf("expected height 46, got %v", body.Height)
	}
}

func TestLayout_BlocksStack(t *testing.T) {
	res := layoutMarkup(t, "<body><h1>big</h1><p>one</p><br><p>two</p>tail</body>", nil, 100, 100)
	body := res.Root.Children[0]
	h1, p1, br, p2, tail := body.Children[0], body.Children[1], body.Children[2], body.Children[3], body.Children[4]
	if h1.Height != 32 {
		t.Errorf("expected h1 height 32, got %v", h1.Height)
	}
	if p1.Y != 32 {
		t.Errorf("expected first p at 32, got %v", p1.Y)
	}
	if br.Y != 48 || p2.Y != 64 {
		t.Errorf("expected br at 48 and second p at 64, got %v and %v", br.Y, p2.Y)
	}
	if tail.Y != 80 || body.Height != 96 {
		t.Errorf("expected tail at 80 and height 96, got %v and %v", tail.Y, body.Height)
	}
	if p1.Width != 100 {
		t.Errorf("expected blocks to take the full width, got %v", p1.Width)
	}
}

func TestLayout_TextAfterBlockStartsAtLineEdge(t *testing.T) {
	res := layoutMarkup(t, "<body><p>a</p> tail</body>", nil, 100, 100)
	tail := res.Root.Children[0].Children[1]
	if tail.X != 0 || tail.Y != 16 {
		t.Errorf("expected tail at 0,16, got %v,%v", tail.X, tail.Y)
	}
	if tail.Width != 32 {
		t.Errorf("expected width 32 without a leading space, got %v", tail.Width)
	}
}

func TestLayout_ExplicitContainerSize(t *testing.T) {
	res := layoutMarkup(t, "<body><div width='50%' height=40>aaaa bbbb</div><p>x</p></body>", nil, 100, 100)
	body := res.Root.Children[0]
	div := body.Children[0]
	if div.Width != 50 || div.Height != 40 {
		t.Errorf("expected 50x40, got %vx%v", div.Width, div.Height)
	}
	if len(div.Children) != 2 {
		t.Errorf("expected text to wrap at the explicit width, got %d pieces", len(div.Children))
	}
	if body.Children[1].Y != 40 {
		t.Errorf("expected next block at 40, got %v", body.Children[1].Y)
	}
}

func TestLayout_Idempotent(t *testing.T) {
	reg := testRegistry(t)
	sizes := images.StaticSizes{"a.png": {Width: 30, Height: 30}}
	tree := parseTree(t, reg, "<body>aaaa bbbb cccc<img src='a.png'/><p>dddd eeee ffff gggg</p></body>")
	first := boxes(layoutTree(t, reg, sizes, tree, 100, 100).Root)
	second := boxes(layoutTree(t, reg, sizes, tree, 100, 100).Root)
	compareBoxes(t, first, second)
}

func TestLayout_RelayoutAfterRevert(t *testing.T) {
	reg := testRegistry(t)
	tree := parseTree(t, reg, "<body>aaaa bbbb cccc dddd eeee ffff</body>")
	res := layoutTree(t, reg, nil, tree, 100, 100)
	want := boxes(res.Root)

	// Rotate: lay out the decorated result at another width, revert it in
	// place and lay it out again at the original width.
	rotated := layoutTree(t, reg, nil, &markup.Tree{Root: res.Root, Errors: &markup.Errors{}}, 50, 100)
	if rotated.Root.Children[0].Height <= res.Root.Children[0].Height {
		t.Fatal("expected a narrower viewport to produce more lines")
	}
	markup.Revert(rotated.Root)
	if len(rotated.Root.Children[0].Children) != 1 {
		t.Fatalf("expected revert to restore one text node, got %d", len(rotated.Root.Children[0].Children))
	}
	again := layoutTree(t, reg, nil, &markup.Tree{Root: rotated.Root, Errors: &markup.Errors{}}, 100, 100)
	compareBoxes(t, want, boxes(again.Root))
}

func TestLayout_HiddenToggle(t *testing.T) {
	reg := testRegistry(t)
	tree := parseTree(t, reg, "<body><p id='more' hidden>hello</p><p>world</p></body>")

	res := layoutTree(t, reg, nil, tree, 100, 100)
	body := res.Root.Children[0]
	if body.Height != 16 || body.Children[1].Y != 0 {
		t.Fatalf("expected hidden p to take no space, got height %v y %v", body.Height, body.Children[1].Y)
	}
	if body.Children[0].Height != 0 {
		t.Errorf("expected hidden node to have zero height, got %v", body.Children[0].Height)
	}

	FindByID(tree.Root, "more").SetHidden(false)
	res = layoutTree(t, reg, nil, tree, 100, 100)
	body = res.Root.Children[0]
	if body.Height != 32 || body.Children[1].Y != 16 {
		t.Errorf("expected shown p to be included, got height %v y %v", body.Height, body.Children[1].Y)
	}
}

func TestLayout_MultipleBoxConstraints(t *testing.T) {
	sizes := images.StaticSizes{
		"l.png": {Width: 40, Height: 40},
		"r.png": {Width: 40, Height: 30},
		"b.png": {Width: 40, Height: 20},
	}
	src := `<!--depth asset list url(` + testList + `)-->
<itemlayout>
<topleft>
    <img src='l.png'/>
</topleft>
<bottom>
    <img src='b.png'/>
</bottom>
<topright>
    <img src='r.png'/>
</topright>
<content><p>something!</p></content>
</itemlayout>`
	res := layoutMarkup(t, src, sizes, 100, 100)
	item := res.Root.Children[0]
	topleft, bottom, topright, content := item.Children[0], item.Children[1], item.Children[2], item.Children[3]

	if topleft.Y != 0 || topright.Y != 0 {
		t.Errorf("expected top row at y=0, got %v and %v", topleft.Y, topright.Y)
	}
	if topleft.X != 0 || topleft.Width != 40 {
		t.Errorf("expected topleft at x=0 width 40, got %v width %v", topleft.X, topleft.Width)
	}
	if topright.X != 60 || topright.Width != 40 {
		t.Errorf("expected topright at x=60 width 40, got %v width %v", topright.X, topright.Width)
	}
	if content.Y != 40 {
		t.Errorf("expected content below the taller top region, got %v", content.Y)
	}
	if bottom.Y != 56 {
		t.Errorf("expected bottom after content, got %v", bottom.Y)
	}
	if item.Height != 76 {
		t.Errorf("expected layer height 76, got %v", item.Height)
	}

	var abs Box
	Walk(res.Root, func(b Box) bool {
		if b.Node == topright.Children[0] {
			abs = b
		}
		return true
	})
	if abs.AbsX != 60 || abs.AbsY != 0 {
		t.Errorf("expected topright image at absolute 60,0, got %v,%v", abs.AbsX, abs.AbsY)
	}
}

func TestLayout_TextInBoxStillLaidOut(t *testing.T) {
	src := `<!--depth asset list url(` + testList + `)--><itemlayout><topleft></topleft><content>something!</content></itemlayout>`
	res := layoutMarkup(t, src, nil, 100, 100)
	if !res.Errors.Has(markup.ErrCannotContainTextInBoxDirectly) {
		t.Error("expected CANNOT_CONTAIN_TEXT_IN_BOX_DIRECTLY in the result")
	}
	content := res.Root.Children[0].Children[1]
	if content.Height != 16 || content.Children[0].Width != 80 {
		t.Errorf("expected boxed text to flow as usual, got height %v width %v", content.Height, content.Children[0].Width)
	}
}

func TestLayout_CustomLayersStack(t *testing.T) {
	src := `<!--depth asset list url(` + testList + `)-->
<customtag><custombg><customtext>something1</customtext></custombg></customtag>
<customtag><custombg><customtext>something2</customtext></custombg></customtag>`
	res := layoutMarkup(t, src, nil, 100, 100)
	if len(res.Root.Children) != 2 {
		t.Fatalf("expected 2 layers, got %d", len(res.Root.Children))
	}
	first, second := res.Root.Children[0], res.Root.Children[1]
	if first.Type != markup.CustomLayer {
		t.Errorf("expected CustomLayer, got %v", first.Type)
	}
	if first.Y != 0 || second.Y != 16 {
		t.Errorf("expected layers at 0 and 16, got %v and %v", first.Y, second.Y)
	}
}

// deferredSizes answers every lookup with the same pending future.
type deferredSizes struct {
	f *async.Future[images.Size]
}

func (d deferredSizes) Size(context.Context, string) *async.Future[images.Size] {
	return d.f
}

func TestLayout_SuspendsForImageSize(t *testing.T) {
	f, resolve, _ := async.NewPending[images.Size]()
	reg := testRegistry(t)
	tree := parseTree(t, reg, "<body><img src='slow.png'/></body>")
	m := NewMachine(reg, text.NewFixedMeasurer(), deferredSizes{f})

	results := make(chan *Result, 1)
	run := m.Layout(context.Background(), tree, Size{Width: 100, Height: 100}, func(r *Result) { results <- r })
	if run.Result() != nil {
		t.Fatal("expected layout to wait for the image size")
	}

	go resolve(images.Size{Width: 50, Height: 20})
	select {
	case res := <-results:
		img := res.Root.Children[0].Children[0]
		if img.Width != 50 || img.Height != 20 {
			t.Errorf("expected 50x20, got %vx%v", img.Width, img.Height)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("layout did not resume")
	}
}

func TestLayoutSync_Timeout(t *testing.T) {
	f, _, _ := async.NewPending[images.Size]()
	reg := testRegistry(t)
	tree := parseTree(t, reg, "<body><img src='slow.png'/>after</body>")
	m := NewMachine(reg, text.NewFixedMeasurer(), deferredSizes{f})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	res, err := m.LayoutSync(ctx, tree, Size{Width: 100, Height: 100})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error, got %v", err)
	}
	if res == nil {
		t.Fatal("expected a completed result")
	}
	if !res.Errors.Has(markup.ErrResolutionTimeout) || len(res.Failed) != 1 {
		t.Errorf("expected the pending image to time out, got %v", res.Errors.Err())
	}
	if res.Root.Children[0].Height != 16 {
		t.Errorf("expected the rest of the tree laid out, got height %v", res.Root.Children[0].Height)
	}
}

func TestListeners(t *testing.T) {
	reg := testRegistry(t)
	tree := parseTree(t, reg, "<body><button listen='readmore' id='btn'>more</button><p listen=readmore>x</p></body>")
	l := Listeners(tree.Root)
	if len(l["readmore"]) != 2 {
		t.Errorf("expected 2 listeners, got %d", len(l["readmore"]))
	}
	if FindByID(tree.Root, "btn") == nil {
		t.Error("expected to find button by id")
	}
}

type geometry struct {
	name, text string
	x, y, w, h float64
}

func boxes(root *markup.Node) []geometry {
	var out []geometry
	Walk(root, func(b Box) bool {
		out = append(out, geometry{b.Name, b.Text, b.AbsX, b.AbsY, b.Width, b.Height})
		return true
	})
	return out
}

func compareBoxes(t *testing.T, want, got []geometry) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("expected %d boxes, got %d", len(want), len(got))
	}
	for i := range want {
		if want[i] != got[i] {
			t.Errorf("box %d: expected %+v, got %+v", i, want[i], got[i])
		}
	}
}
