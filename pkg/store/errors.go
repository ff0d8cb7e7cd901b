package store

import "errors"

var (
	ErrInvalidPath       = errors.New("store: invalid path")
	ErrPathSegmentUnsafe = errors.New("store: unsafe path segment")
	ErrEncodeFailed      = errors.New("store: encode failed")
	ErrDecodeFailed      = errors.New("store: decode failed")
	ErrAtomicWriteFailed = errors.New("store: atomic write failed")
)
