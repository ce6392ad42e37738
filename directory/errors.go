package directory

import "errors"

// ErrNoMetaWritten is returned by AtomicRead when AtomicWrite has never
// been called for that meta block.
var ErrNoMetaWritten = errors.New("directory: no meta written")

// ErrAdapterClosed is returned by ChannelAdapter operations issued
// after Close.
var ErrAdapterClosed = errors.New("directory: adapter closed")
