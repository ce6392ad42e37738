package engine

import (
	"context"

	"github.com/segmentix/pgsearchidx/directory"
)

// AdaptDirectory wraps a directory.Adapter as an engine.Directory. The
// two interfaces describe the same operations but directory.Adapter's
// methods return concrete *segstore types where engine.Directory wants
// interfaces, so Go's structural typing doesn't connect them directly.
func AdaptDirectory(a directory.Adapter) Directory {
	return directoryAdapter{a}
}

type directoryAdapter struct {
	inner directory.Adapter
}

func (d directoryAdapter) OpenWrite(ctx context.Context, path string, overwrite bool) (Writer1, error) {
	return d.inner.OpenWrite(ctx, path, overwrite)
}

func (d directoryAdapter) GetFileHandle(ctx context.Context, path string) (FileHandle1, error) {
	return d.inner.GetFileHandle(ctx, path)
}

func (d directoryAdapter) ListManagedFiles(ctx context.Context) ([]string, error) {
	return d.inner.ListManagedFiles(ctx)
}

func (d directoryAdapter) Delete(ctx context.Context, path string) error {
	return d.inner.Delete(ctx, path)
}
