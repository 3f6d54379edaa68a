package markup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"boxmark/pkg/async"
	"boxmark/pkg/tags"
)

var directiveRe = regexp.MustCompile(`^\s*depth\s+asset\s+list\s+url\(\s*([^)]*?)\s*\)\s*$`)

// ParseDirective extracts the depth asset list identifier from a comment
// body such as "depth asset list url(resources://Views/List)".
func ParseDirective(comment string) (string, bool) {
	m := directiveRe.FindStringSubmatch(comment)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// Parser turns markup into trees, classifying tags through a Registry.
// One Parser may run any number of parses, concurrently.
type Parser struct {
	reg    *tags.Registry
	logger *slog.Logger
}

// ParserOption configures a Parser.
type ParserOption func(*Parser)

// WithLogger sets the parser's logger.
func WithLogger(l *slog.Logger) ParserOption {
	return func(p *Parser) { p.logger = l }
}

func NewParser(reg *tags.Registry, opts ...ParserOption) *Parser {
	p := &Parser{reg: reg, logger: slog.Default()}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ParseState is one in-progress parse. It is a state machine: Step advances it
// until it finishes or needs a depth asset list that is still loading.
type ParseState struct {
	p         *Parser
	ctx       context.Context
	tokenizer *Tokenizer
	tree      *Tree
	stack     []*Node // open elements; stack[0] is the root

	seenConstruct bool
	tableFuture   *async.Future[*tags.Table]
	table         *tags.Table
	tableFailed   bool
	held          *Token // start tag waiting for the table
	done          bool
}

// Start begins parsing markup. Nothing is consumed until Step is called.
func (p *Parser) Start(ctx context.Context, markup string) *ParseState {
	root := newRoot()
	return &ParseState{
		p:         p,
		ctx:       ctx,
		tokenizer: NewTokenizer(markup),
		tree:      &Tree{Root: root, Errors: &Errors{}},
		stack:     []*Node{root},
	}
}

// Tree returns the tree built so far. It is complete once Step reports done.
func (ps *ParseState) Tree() *Tree {
	return ps.tree
}

// Done reports whether parsing has finished.
func (ps *ParseState) Done() bool {
	return ps.done
}

// Step consumes tokens until the input ends (done) or a custom tag needs
// a depth asset list that has not resolved yet (the returned waiter).
func (ps *ParseState) Step() (bool, async.Waiter) {
	for !ps.done {
		if ps.held != nil {
			if ps.tableFuture != nil && !ps.tableFuture.Done() {
				return false, ps.tableFuture
			}
			ps.settleTable()
			tok := *ps.held
			ps.held = nil
			ps.startTag(tok)
			continue
		}

		tok := ps.tokenizer.NextToken()
		first := !ps.seenConstruct
		ps.seenConstruct = true

		switch tok.Type {
		case TokenEOF:
			ps.finish()
		case TokenComment:
			if first {
				ps.directive(tok)
			}
		case TokenStartTag:
			if ps.needsTable(tok.TagName) {
				ps.held = &tok
				continue
			}
			ps.startTag(tok)
		case TokenEndTag:
			ps.endTag(tok)
		case TokenText:
			ps.text(tok)
		}
	}
	return true, nil
}

// Abandon stops waiting for the depth asset list: custom tags not yet
// registered degrade to containers and code is recorded once.
func (ps *ParseState) Abandon(code ErrorCode, reason error) {
	if ps.table != nil || ps.tableFailed {
		return
	}
	ps.tableFailed = true
	ps.tableFuture = nil
	ps.tree.Errors.Add(code, ps.tree.Root, "depth asset list %s: %v", ps.tree.AssetList, reason)
}

func (ps *ParseState) directive(tok Token) {
	id, ok := ParseDirective(tok.Text)
	if !ok {
		return
	}
	ps.tree.AssetList = id
	ps.tableFuture = ps.p.reg.Load(ps.ctx, id)
	ps.p.logger.Debug("depth asset list declared", "id", id, "ready", ps.tableFuture.Done())
}

func (ps *ParseState) needsTable(name string) bool {
	if ps.table != nil || ps.tableFailed || ps.tableFuture == nil {
		return false
	}
	_, known := ps.p.reg.Classify(name)
	return !known
}

func (ps *ParseState) settleTable() {
	if ps.table != nil || ps.tableFailed || ps.tableFuture == nil {
		return
	}
	table, err := ps.tableFuture.Result()
	if err != nil {
		ps.Abandon(ErrTagTableFailed, err)
		return
	}
	ps.table = table
}

// definition classifies name, registering it from the document's table
// when it is a custom tag seen for the first time.
func (ps *ParseState) definition(name string, node *Node) (tags.Definition, bool) {
	if def, ok := ps.p.reg.Classify(name); ok {
		return def, true
	}
	if ps.table == nil {
		if !ps.tableFailed {
			ps.tree.Errors.Add(ErrUnresolvedCustomTag, node, "unknown tag <%s> and no depth asset list", name)
		}
		return tags.Definition{ID: UnknownTag, Name: name}, false
	}
	def, err := ps.p.reg.Register(ps.table, name)
	if err != nil {
		ps.tree.Errors.Add(ErrUnresolvedCustomTag, node, "<%s>: %v", name, err)
		return tags.Definition{ID: UnknownTag, Name: name}, false
	}
	return def, true
}

func (ps *ParseState) current() *Node {
	return ps.stack[len(ps.stack)-1]
}

func (ps *ParseState) startTag(tok Token) {
	node := &Node{Name: tok.TagName, Attrs: tok.Attributes}
	def, _ := ps.definition(tok.TagName, node)
	node.Tag = def.ID
	node.Box = def.IsBox
	switch def.Content {
	case tags.Image:
		node.Type = ContentImg
	case tags.CustomLayer:
		node.Type = CustomLayer
	default:
		// Text-typed tags hold their text as ordinary content children.
		node.Type = Container
	}

	ps.current().AddChild(node)

	if tok.Truncated {
		ps.tree.Errors.Add(ErrUnexpectedEOF, node, "input ended inside <%s>", tok.TagName)
	}
	if tok.SelfClosing || tok.Truncated || (!def.Custom && tags.IsVoid(def.ID)) {
		ps.close(node)
		return
	}
	ps.stack = append(ps.stack, node)
}

// endTag pops to the matching open element. A close that skips open
// elements closes them too; a close with no match is ignored.
func (ps *ParseState) endTag(tok Token) {
	for i := len(ps.stack) - 1; i >= 1; i-- {
		if ps.stack[i].Name != tok.TagName {
			continue
		}
		if i != len(ps.stack)-1 {
			var unclosed []string
			for _, n := range ps.stack[i+1:] {
				unclosed = append(unclosed, n.Name)
			}
			ps.tree.Errors.Add(ErrMismatchedClose, ps.current(),
				"</%s> closes unclosed <%s>", tok.TagName, strings.Join(unclosed, ">, <"))
		}
		for len(ps.stack) > i {
			ps.close(ps.current())
			ps.stack = ps.stack[:len(ps.stack)-1]
		}
		return
	}
	ps.tree.Errors.Add(ErrMismatchedClose, ps.current(), "ignoring </%s> with no open element", tok.TagName)
}

func (ps *ParseState) text(tok Token) {
	parent := ps.current()
	content := tok.Text
	// Text starting a line drops its leading space: first in its parent, or
	// after a block, which layout always ends the line for.
	if k := len(parent.Children); k == 0 || !inline(parent.Children[k-1]) {
		content = strings.TrimLeft(content, " ")
	}
	if content == "" {
		return
	}
	node := &Node{
		Tag:  parent.Tag,
		Name: parent.Name,
		Type: ContentText,
		Text: content,
	}
	parent.AddChild(node)
	if parent.Box {
		ps.tree.Errors.Add(ErrCannotContainTextInBoxDirectly, node,
			"<%s> is a box and cannot contain text %q directly", parent.Name, content)
	}
}

// inline reports whether layout places n on the current line.
func inline(n *Node) bool {
	return n.Type == ContentText || n.Type == ContentImg
}

// close finalizes an element: trailing space of its last text run is
// dropped and an image tag that gained children becomes a container.
func (ps *ParseState) close(n *Node) {
	if k := len(n.Children); k > 0 {
		last := n.Children[k-1]
		if last.Type == ContentText {
			last.Text = strings.TrimRight(last.Text, " ")
			if last.Text == "" {
				n.RemoveChild(last)
			}
		}
	}
	if n.Type == ContentImg && len(n.Children) > 0 {
		n.Type = Container
	}
}

func (ps *ParseState) finish() {
	for len(ps.stack) > 0 {
		ps.close(ps.current())
		ps.stack = ps.stack[:len(ps.stack)-1]
	}
	ps.done = true
	ps.p.logger.Debug("parse finished", "nodes", ps.tree.Root.Count(), "errors", ps.tree.Errors.Len())
}

// ParseRoot parses markup cooperatively and delivers the tree to done. If
// a depth asset list is still loading, ParseRoot returns early and the
// parse resumes on the goroutine that resolves it.
func (p *Parser) ParseRoot(ctx context.Context, markup string, done func(*Tree)) *ParseState {
	ps := p.Start(ctx, markup)
	async.Resume(ps.Step, func() { done(ps.tree) })
	return ps
}

// Parse parses markup, blocking while a depth asset list loads. If ctx
// ends first, the remaining custom tags degrade to containers, the tree
// is completed and returned together with ctx's error.
func (p *Parser) Parse(ctx context.Context, markup string) (*Tree, error) {
	ps := p.Start(ctx, markup)
	err := async.Drive(ctx, ps.Step)
	if err == nil {
		return ps.tree, nil
	}
	code := ErrTagTableFailed
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		code = ErrResolutionTimeout
	}
	ps.Abandon(code, err)
	ps.Step()
	return ps.tree, fmt.Errorf("parsing markup: %w", err)
}

// Parse parses markup with a parser over reg.
func Parse(ctx context.Context, reg *tags.Registry, markup string) (*Tree, error) {
	return NewParser(reg).Parse(ctx, markup)
}
