package tags

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"sync"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"boxmark/pkg/resource"
)

// ErrNotInTable is returned when a tag name is not declared by a table.
var ErrNotInTable = errors.New("tags: name not declared in depth asset list")

// Entry is one declaration of a depth asset list.
type Entry struct {
	Name string `yaml:"name" json:"name" validate:"required,max=64,tagname"`
	Type string `yaml:"type" json:"type" validate:"required,oneof=container text image img layer customlayer"`
	Box  bool   `yaml:"box" json:"box"`
}

// Table is a resolved depth asset list.
type Table struct {
	ID   string  `yaml:"-"`
	Tags []Entry `yaml:"tags" validate:"dive"`

	index map[string]Entry
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
	tagNameRe    = regexp.MustCompile(`^[a-z][a-z0-9_-]*$`)
)

func tableValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
		validate.RegisterValidation("tagname", func(fl validator.FieldLevel) bool {
			return tagNameRe.MatchString(fl.Field().String())
		})
	})
	return validate
}

// ParseTable decodes a YAML (or JSON) depth asset list:
//
//	tags:
//	  - name: customtag
//	    type: layer
//	  - name: customtagtext
//	    type: container
//	    box: true
func ParseTable(id string, data []byte) (*Table, error) {
	t := &Table{ID: id}
	if err := yaml.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("decoding depth asset list %s: %w", id, err)
	}
	if err := tableValidator().Struct(t); err != nil {
		return nil, fmt.Errorf("validating depth asset list %s: %w", id, err)
	}
	t.index = make(map[string]Entry, len(t.Tags))
	for _, e := range t.Tags {
		if _, dup := t.index[e.Name]; dup {
			continue
		}
		t.index[e.Name] = e
	}
	return t, nil
}

// NewTable builds a table from entries without decoding. Used by tests
// and by hosts that embed their tag declarations.
func NewTable(id string, entries ...Entry) (*Table, error) {
	t := &Table{ID: id, Tags: entries}
	if err := tableValidator().Struct(t); err != nil {
		return nil, fmt.Errorf("validating depth asset list %s: %w", id, err)
	}
	t.index = make(map[string]Entry, len(entries))
	for _, e := range entries {
		if _, dup := t.index[e.Name]; !dup {
			t.index[e.Name] = e
		}
	}
	return t, nil
}

// Lookup returns the declaration for name.
func (t *Table) Lookup(name string) (Entry, bool) {
	if t == nil {
		return Entry{}, false
	}
	e, ok := t.index[name]
	return e, ok
}

// TableSource resolves a depth asset list identifier. Implementations may
// block; the Registry calls them off the parser's goroutine.
type TableSource interface {
	Table(ctx context.Context, id string) (*Table, error)
}

// FetcherSource loads tables through a resource.Fetcher, treating the
// identifier as a URI.
type FetcherSource struct {
	Fetcher resource.Fetcher
}

func (s FetcherSource) Table(ctx context.Context, id string) (*Table, error) {
	body, _, err := s.Fetcher.Fetch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("fetching depth asset list: %w", err)
	}
	return ParseTable(id, body)
}

// StaticSource serves tables from memory.
type StaticSource map[string]*Table

func (s StaticSource) Table(_ context.Context, id string) (*Table, error) {
	t, ok := s[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, id)
	}
	return t, nil
}
