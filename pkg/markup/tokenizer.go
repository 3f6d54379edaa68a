package markup

import (
	gohtml "html"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

type TokenType int

const (
	TokenStartTag TokenType = iota
	TokenEndTag
	TokenText
	TokenComment
	TokenEOF
)

type Token struct {
	Type        TokenType
	TagName     string
	Attributes  map[string]string
	Text        string
	SelfClosing bool // True for tags ending with />
	// Truncated is set when input ended inside the tag.
	Truncated bool
	Pos       int
}

// Tokenizer scans markup left to right. It never fails: malformed input
// becomes text or a truncated token.
type Tokenizer struct {
	input string
	pos   int
}

func NewTokenizer(markup string) *Tokenizer {
	return &Tokenizer{input: markup, pos: 0}
}

func (t *Tokenizer) NextToken() Token {
	for {
		if t.pos >= len(t.input) {
			return Token{Type: TokenEOF, Pos: t.pos}
		}
		var tok Token
		var ok bool
		if t.input[t.pos] == '<' {
			tok, ok = t.readTag()
		} else {
			tok, ok = t.readText()
		}
		if ok {
			return tok
		}
	}
}

func (t *Tokenizer) readTag() (Token, bool) {
	start := t.pos
	rest := t.input[t.pos+1:]

	// <!-- comments --> are returned so the parser can read directives.
	if strings.HasPrefix(rest, "!--") {
		body := rest[3:]
		end := strings.Index(body, "-->")
		if end < 0 {
			t.pos = len(t.input)
			return Token{Type: TokenComment, Text: body, Truncated: true, Pos: start}, true
		}
		t.pos += 1 + 3 + end + 3
		return Token{Type: TokenComment, Text: body[:end], Pos: start}, true
	}

	// <?xml ...?>, <!DOCTYPE ...> and other declarations are skipped.
	if strings.HasPrefix(rest, "?") || strings.HasPrefix(rest, "!") {
		end := strings.IndexByte(rest, '>')
		if end < 0 {
			t.pos = len(t.input)
		} else {
			t.pos += 1 + end + 1
		}
		return Token{}, false
	}

	t.pos++
	isEndTag := false
	if t.pos < len(t.input) && t.input[t.pos] == '/' {
		isEndTag = true
		t.pos++
	}
	tagName := t.readTagName()
	if tagName == "" {
		// A bare '<' is text.
		t.pos = start + 1
		return Token{Type: TokenText, Text: "<", Pos: start}, true
	}
	if isEndTag {
		end := strings.IndexByte(t.input[t.pos:], '>')
		if end < 0 {
			t.pos = len(t.input)
			return Token{Type: TokenEndTag, TagName: tagName, Truncated: true, Pos: start}, true
		}
		t.pos += end + 1
		return Token{Type: TokenEndTag, TagName: tagName, Pos: start}, true
	}

	tok := Token{Type: TokenStartTag, TagName: tagName, Attributes: make(map[string]string), Pos: start}
	for {
		t.skipWhitespace()
		if t.pos >= len(t.input) {
			tok.Truncated = true
			return tok, true
		}
		switch t.input[t.pos] {
		case '>':
			t.pos++
			return tok, true
		case '/':
			t.pos++
			t.skipWhitespace()
			if t.pos < len(t.input) && t.input[t.pos] == '>' {
				t.pos++
				tok.SelfClosing = true
				return tok, true
			}
			continue
		}
		name, value, ok := t.readAttribute()
		if !ok {
			// Skip a character we cannot read as an attribute.
			t.pos++
			continue
		}
		tok.Attributes[name] = value
	}
}

func (t *Tokenizer) readTagName() string {
	start := t.pos
	for t.pos < len(t.input) && isTagNameChar(t.input[t.pos]) {
		t.pos++
	}
	return strings.ToLower(t.input[start:t.pos])
}

// readAttribute reads name, name=value, name='value' or name="value". A
// bare name is a boolean flag and reads as "true".
func (t *Tokenizer) readAttribute() (string, string, bool) {
	start := t.pos
	for t.pos < len(t.input) && isAttributeNameChar(t.input[t.pos]) {
		t.pos++
	}
	name := strings.ToLower(t.input[start:t.pos])
	if name == "" {
		return "", "", false
	}
	t.skipWhitespace()
	if t.pos >= len(t.input) || t.input[t.pos] != '=' {
		return name, "true", true
	}
	t.pos++
	t.skipWhitespace()
	return name, t.readAttributeValue(), true
}

func (t *Tokenizer) readAttributeValue() string {
	if t.pos >= len(t.input) {
		return ""
	}
	quote := t.input[t.pos]
	if quote == '"' || quote == '\'' {
		t.pos++
		start := t.pos
		for t.pos < len(t.input) && t.input[t.pos] != quote {
			t.pos++
		}
		value := t.input[start:t.pos]
		if t.pos < len(t.input) {
			t.pos++
		}
		return gohtml.UnescapeString(value)
	}
	start := t.pos
	for t.pos < len(t.input) && !isSpace(t.input[t.pos]) && t.input[t.pos] != '>' {
		if t.input[t.pos] == '/' && t.pos+1 < len(t.input) && t.input[t.pos+1] == '>' {
			break
		}
		t.pos++
	}
	return t.input[start:t.pos]
}

func (t *Tokenizer) readText() (Token, bool) {
	start := t.pos
	for t.pos < len(t.input) && t.input[t.pos] != '<' {
		t.pos++
	}
	raw := t.input[start:t.pos]
	// Whitespace-only runs (indentation between tags) are dropped.
	if strings.TrimSpace(raw) == "" {
		return Token{}, false
	}
	text := normalizeWhitespace(raw)
	text = norm.NFC.String(gohtml.UnescapeString(text))
	return Token{Type: TokenText, Text: text, Pos: start}, true
}

// normalizeWhitespace collapses runs of whitespace to a single space,
// preserving a single space at boundaries so inline neighbours stay apart.
func normalizeWhitespace(s string) string {
	first, _ := utf8.DecodeRuneInString(s)
	last, _ := utf8.DecodeLastRuneInString(s)
	hasLeading := len(s) > 0 && unicode.IsSpace(first)
	hasTrailing := len(s) > 0 && unicode.IsSpace(last)

	fields := strings.Fields(s)
	if len(fields) == 0 {
		if hasLeading || hasTrailing {
			return " "
		}
		return ""
	}

	result := strings.Join(fields, " ")
	if hasLeading {
		result = " " + result
	}
	if hasTrailing {
		result = result + " "
	}
	return result
}

func (t *Tokenizer) skipWhitespace() {
	for t.pos < len(t.input) && isSpace(t.input[t.pos]) {
		t.pos++
	}
}

// isSpace reports ASCII whitespace. Bytes of multi-byte runes never match.
func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r' || c == '\f'
}

func isTagNameChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_'
}

func isAttributeNameChar(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '-' || c == '_' || c == ':' || c == '.'
}
