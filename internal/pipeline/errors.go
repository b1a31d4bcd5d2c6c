package pipeline

import "errors"

var (
	ErrEmptyTable       = errors.New("table has no data rows")
	ErrNoHeaders        = errors.New("table has no usable headers")
	ErrMappingEmpty     = errors.New("header mapping has no entries")
	ErrTooManyRows      = errors.New("table exceeds row limit")
	ErrUnsupportedInput = errors.New("unsupported input type")
	ErrNoTable          = errors.New("no table found in input")
)

var (
	ErrShareNotFound = errors.New("share link not found")
	ErrShareExpired  = errors.New("share link expired")
)
