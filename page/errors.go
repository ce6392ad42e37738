package page

import "errors"

var (
	// ErrNoSuchItem is returned by OverwriteItem when offsetNo does not
	// name an occupied slot.
	ErrNoSuchItem = errors.New("page: no such item")

	// ErrSizeMismatch is returned by OverwriteItem when the replacement
	// payload is not exactly the size of the item it is replacing.
	ErrSizeMismatch = errors.New("page: overwrite size mismatch")

	// ErrItemTooLarge is returned when a caller asks for more space than
	// a single page could ever hold, even empty.
	ErrItemTooLarge = errors.New("page: item exceeds max item size")
)
