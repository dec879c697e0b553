package transform

import (
	"errors"

	"benchml/internal/store"
)

var (
	ErrMissingInput   = errors.New("missing input")
	ErrUndeclaredPort = store.ErrUndeclaredPort
	ErrNotFitted      = errors.New("not fitted")
	ErrUnavailable    = errors.New("unavailable")
	ErrUnknownKind    = errors.New("unknown transform kind")
	ErrUnknownArg     = errors.New("unknown argument")
	ErrInputType      = errors.New("unexpected input type")
)
