package queryast

import "errors"

var (
	// ErrUnknownField is returned when a SearchQueryInput or Qual node
	// references a column with no matching schema field.
	ErrUnknownField = errors.New("queryast: unknown field")

	// ErrUnsupportedPredicate is returned when a predicate is type-
	// incompatible with the field it targets (e.g. a range comparison on
	// a tokenized text field).
	ErrUnsupportedPredicate = errors.New("queryast: unsupported predicate for field type")

	// ErrMalformedInput is returned for structurally invalid
	// SearchQueryInput values (nil inner query, unknown kind tag).
	ErrMalformedInput = errors.New("queryast: malformed query input")
)
