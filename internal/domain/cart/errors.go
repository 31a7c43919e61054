package cart

import "errors"

var (
	// ErrEmptyCart signals a delivery validation or order creation against
	// an empty cart.
	ErrEmptyCart = errors.New("cart is empty")
	// ErrNotFound signals a missing cart item, product or pharmacy.
	ErrNotFound = errors.New("not found")
	// ErrValidation signals malformed input such as an unknown delivery type
	// or a missing home delivery address.
	ErrValidation = errors.New("validation failed")
)
