package schema

import "errors"

var (
	// ErrUnknownCommand indicates an outbound command name outside the catalog.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrInvalidArgs indicates command arguments of the wrong shape.
	ErrInvalidArgs = errors.New("invalid command arguments")
	// ErrPageClosed indicates the page transport has shut down.
	ErrPageClosed = errors.New("page closed")
	// ErrInvalidNamespace indicates a script namespace that is not a plain identifier.
	ErrInvalidNamespace = errors.New("invalid script namespace")
)
