package directory

import (
	"context"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/segstore"
)

// request is one unit of work for the owning goroutine: run fn and
// deliver its result on resp.
type request struct {
	fn   func() (interface{}, error)
	resp chan result
}

type result struct {
	val interface{}
	err error
}

// ChannelAdapter serializes every directory operation through a single
// owning goroutine, for engines that run multithreaded but whose
// buffer access must stay single-threaded per backend. Callers on any
// goroutine send a request and block on its private response channel;
// the owning goroutine runs requests strictly in arrival order.
type ChannelAdapter struct {
	inner    *BlockingAdapter
	requests chan request
	done     chan struct{}
}

// NewChannelAdapter starts the owning goroutine and returns an adapter
// that proxies every call to it. queueDepth sizes the request channel
// (config.ChannelAdapterQueueDepth); a depth of 0 makes every send
// rendezvous directly with the owning goroutine.
func NewChannelAdapter(inner *BlockingAdapter, queueDepth int) *ChannelAdapter {
	a := &ChannelAdapter{
		inner:    inner,
		requests: make(chan request, queueDepth),
		done:     make(chan struct{}),
	}
	go a.run()
	return a
}

func (a *ChannelAdapter) run() {
	for {
		select {
		case req := <-a.requests:
			val, err := req.fn()
			req.resp <- result{val: val, err: err}
		case <-a.done:
			return
		}
	}
}

// Close stops the owning goroutine. Any requests already in flight are
// allowed to complete; no new requests are accepted afterward.
func (a *ChannelAdapter) Close() {
	close(a.done)
}

func (a *ChannelAdapter) call(ctx context.Context, fn func() (interface{}, error)) (interface{}, error) {
	select {
	case <-a.done:
		return nil, ErrAdapterClosed
	default:
	}
	req := request{fn: fn, resp: make(chan result, 1)}
	select {
	case a.requests <- req:
	case <-a.done:
		return nil, ErrAdapterClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	select {
	case r := <-req.resp:
		return r.val, r.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (a *ChannelAdapter) GetFileHandle(ctx context.Context, path string) (*segstore.FileHandle, error) {
	v, err := a.call(ctx, func() (interface{}, error) { return a.inner.GetFileHandle(ctx, path) })
	if err != nil {
		return nil, err
	}
	return v.(*segstore.FileHandle), nil
}

func (a *ChannelAdapter) OpenWrite(ctx context.Context, path string, overwrite bool) (*segstore.Writer, error) {
	v, err := a.call(ctx, func() (interface{}, error) { return a.inner.OpenWrite(ctx, path, overwrite) })
	if err != nil {
		return nil, err
	}
	return v.(*segstore.Writer), nil
}

func (a *ChannelAdapter) AtomicWrite(ctx context.Context, metaBlock host.BlockNumber, payload []byte) error {
	_, err := a.call(ctx, func() (interface{}, error) { return nil, a.inner.AtomicWrite(ctx, metaBlock, payload) })
	return err
}

func (a *ChannelAdapter) AtomicRead(ctx context.Context, metaBlock host.BlockNumber) ([]byte, error) {
	v, err := a.call(ctx, func() (interface{}, error) { return a.inner.AtomicRead(ctx, metaBlock) })
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]byte), nil
}

func (a *ChannelAdapter) AcquireLock(ctx context.Context, lock Lock) (func(), error) {
	v, err := a.call(ctx, func() (interface{}, error) { return a.inner.AcquireLock(ctx, lock) })
	if err != nil {
		return nil, err
	}
	return v.(func()), nil
}

func (a *ChannelAdapter) ListManagedFiles(ctx context.Context) ([]string, error) {
	v, err := a.call(ctx, func() (interface{}, error) { return a.inner.ListManagedFiles(ctx) })
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, nil
	}
	return v.([]string), nil
}

func (a *ChannelAdapter) Delete(ctx context.Context, path string) error {
	_, err := a.call(ctx, func() (interface{}, error) { return nil, a.inner.Delete(ctx, path) })
	return err
}
