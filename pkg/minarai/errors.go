package minarai

import "errors"

var (
	ErrMissingArgument    = errors.New("missing required argument")
	ErrAlreadyInitialized = errors.New("already initialized")
	ErrNotInitialized     = errors.New("not initialized yet")
	ErrNotJoined          = errors.New("not joined yet")
	ErrClosed             = errors.New("already closed")
	ErrEncode             = errors.New("failed to encode payload")
	ErrMalformedPayload   = errors.New("malformed payload")
)
