package document

import (
	"errors"
	"fmt"
)

// Error kinds surfaced by the pipeline. Component errors wrap exactly one of these.
var (
	ErrInput      = errors.New("input_error")
	ErrPreprocess = errors.New("preprocess_error")
	ErrOCR        = errors.New("ocr_error")
	ErrValidator  = errors.New("validator_error")
	ErrQueue      = errors.New("queue_error")
)

// Error carries an error kind, the operation that failed and a short detail.
type Error struct {
	Kind   error
	Op     string
	Detail string
	Err    error
}

// NewError builds an Error of the given kind.
func NewError(kind error, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}

func (e *Error) Error() string {
	detail := e.Detail
	if detail == "" && e.Err != nil {
		detail = e.Err.Error()
	}
	if e.Op != "" {
		detail = e.Op + ": " + detail
	}
	return fmt.Sprintf("%s:%s", kindName(e.Kind), detail)
}

// Is matches the error kind so errors.Is(err, ErrInput) works.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

func (e *Error) Unwrap() error { return e.Err }

// Inputf builds an input error.
func Inputf(op, format string, args ...any) *Error {
	return NewError(ErrInput, op, fmt.Sprintf(format, args...), nil)
}

// KindOf returns the kind of err, or nil when it carries none.
func KindOf(err error) error {
	for _, k := range []error{ErrInput, ErrPreprocess, ErrOCR, ErrValidator, ErrQueue} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}

// Describe renders err as "<kind>:<detail>" for ExtractionResult.Error.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	var de *Error
	if errors.As(err, &de) {
		return de.Error()
	}
	if k := KindOf(err); k != nil {
		return fmt.Sprintf("%s:%v", kindName(k), err)
	}
	return "internal_error:" + err.Error()
}

func kindName(kind error) string {
	if kind == nil {
		return "internal_error"
	}
	return kind.Error()
}
