package metapages

import "errors"

var (
	// ErrLockPageFull means the merge lock page could not even hold its
	// own fixed-size record, which should never happen on a freshly
	// allocated page.
	ErrLockPageFull = errors.New("metapages: lock page full")

	// ErrNoSuchSegment is returned by StampXmax when ptr does not name a
	// live segment meta entry.
	ErrNoSuchSegment = errors.New("metapages: no such segment")
)
