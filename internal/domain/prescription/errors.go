package prescription

import "errors"

var (
	// ErrNotFound signals a missing request, product or pharmacy.
	ErrNotFound = errors.New("not found")
	// ErrNotAuthorized signals an actor without rights over the target.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrInvalidState signals an operation against a request in the wrong
	// lifecycle state, including a lost conditional update.
	ErrInvalidState = errors.New("invalid request state")
	// ErrValidation signals malformed input: bad file type, oversized file,
	// non-positive quantity, missing rejection reason.
	ErrValidation = errors.New("validation failed")
)
