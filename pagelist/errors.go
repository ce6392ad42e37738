package pagelist

import "errors"

var (
	// ErrHeaderPageFull means a list's header block could not even hold
	// its own header record, which should never happen on a freshly
	// allocated page.
	ErrHeaderPageFull = errors.New("pagelist: header page full")

	// ErrItemTooLarge is returned by ItemList.Append when payload exceeds
	// what a single page could ever hold, even empty. Such calls are a
	// programming error and are never retried.
	ErrItemTooLarge = errors.New("pagelist: item exceeds max item size")

	// ErrNoSuchItem is returned by ItemList.Overwrite when (blockno,
	// offsetno) does not name a live item.
	ErrNoSuchItem = errors.New("pagelist: no such item")

	// ErrOffsetOutOfRange is returned by ByteStream.ReadAt when the
	// requested range falls outside [0, TotalBytes).
	ErrOffsetOutOfRange = errors.New("pagelist: offset out of range")
)
