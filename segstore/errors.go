package segstore

import "errors"

var (
	// ErrNoSuchFile is returned by OpenRead when path is not registered
	// (or was registered and later superseded).
	ErrNoSuchFile = errors.New("segstore: no such file")

	// ErrPathExists is returned by OpenWrite when overwrite=false and
	// path is already registered.
	ErrPathExists = errors.New("segstore: path already exists")

	// ErrWriterClosed is returned by Write after Close has already run.
	ErrWriterClosed = errors.New("segstore: writer closed")
)
