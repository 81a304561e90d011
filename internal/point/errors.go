package point

import "errors"

// Domain errors for the point package.
//
// The wire-format errors are returned verbatim (unwrapped) from UnmarshalJSON
// so their messages can be passed straight through to API clients.
var (
	// ErrIncompatibleValueType is returned when a value does not conform to
	// the declared type of the point it is assigned to, or when a string
	// cannot be parsed as the declared type.
	ErrIncompatibleValueType = errors.New("point: incompatible value type")

	// ErrInvalidID is returned when a wire payload carries an empty, malformed
	// or all-zero point id.
	ErrInvalidID = errors.New("point: id must be a non-empty, non-zero identifier")

	// ErrInvalidPointType is returned when a wire payload carries a point type
	// that is not one of the recognised enum names.
	ErrInvalidPointType = errors.New("point: pointType must be a recognised point type")

	// ErrEmptyKey is returned when a point key is empty after trimming.
	ErrEmptyKey = errors.New("point: key must not be empty")
)
