package host

import "errors"

// ErrBufferBusy is returned by GetBufferConditional-style callers when a
// conditional acquisition could not be satisfied without blocking.
var ErrBufferBusy = errors.New("host: buffer busy")

// ErrInterrupted wraps a context cancellation observed at one of the
// well-defined checkpoints a caller is expected to observe.
var ErrInterrupted = errors.New("host: interrupted")
