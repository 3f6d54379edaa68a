package markup

import (
	"errors"
	"fmt"
	"sync"
)

// ErrorCode classifies a collected parse or layout error.
type ErrorCode int

const (
	ErrCannotContainTextInBoxDirectly ErrorCode = iota + 1
	ErrMismatchedClose
	ErrUnresolvedCustomTag
	ErrUnexpectedEOF
	ErrTagTableFailed
	ErrImageFailed
	ErrResolutionTimeout
)

var errorCodeNames = map[ErrorCode]string{
	ErrCannotContainTextInBoxDirectly: "CANNOT_CONTAIN_TEXT_IN_BOX_DIRECTLY",
	ErrMismatchedClose:                "MISMATCHED_TAG_CLOSURE",
	ErrUnresolvedCustomTag:            "UNRESOLVED_CUSTOM_TAG",
	ErrUnexpectedEOF:                  "UNEXPECTED_EOF",
	ErrTagTableFailed:                 "TAG_TABLE_FAILED",
	ErrImageFailed:                    "IMAGE_FAILED",
	ErrResolutionTimeout:              "UNRESOLVED_CUSTOM_TAG_TIMEOUT",
}

func (c ErrorCode) String() string {
	if s, ok := errorCodeNames[c]; ok {
		return s
	}
	return fmt.Sprintf("ErrorCode(%d)", int(c))
}

// Error is a recoverable problem attached to a node.
type Error struct {
	Code    ErrorCode
	Node    *Node
	Message string
}

func (e Error) Error() string {
	return e.Code.String() + ": " + e.Message
}

// Errors collects errors without aborting the tree build.
type Errors struct {
	mu   sync.Mutex
	list []Error
}

// Add records an error against node.
func (e *Errors) Add(code ErrorCode, node *Node, format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.list = append(e.list, Error{Code: code, Node: node, Message: fmt.Sprintf(format, args...)})
}

// List returns a copy of the collected errors in the order they occurred.
func (e *Errors) List() []Error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]Error(nil), e.list...)
}

// Len returns the number of collected errors.
func (e *Errors) Len() int {
	if e == nil {
		return 0
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.list)
}

// Has reports whether an error with code was collected.
func (e *Errors) Has(code ErrorCode) bool {
	for _, err := range e.List() {
		if err.Code == code {
			return true
		}
	}
	return false
}

// Err joins the collected errors, or returns nil when there are none.
func (e *Errors) Err() error {
	list := e.List()
	if len(list) == 0 {
		return nil
	}
	errs := make([]error, len(list))
	for i, err := range list {
		errs[i] = err
	}
	return errors.Join(errs...)
}
