package metapages

import (
	"context"

	"github.com/google/uuid"

	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/pagelist"
)

// ActiveVacuumList is an auxiliary list of segment ids currently being
// vacuumed. Writers consult it to exclude those segments from merge
// candidates; it is refreshed by vacuum while holding a pin on the
// ambulkdelete sentinel block, which other backends use to detect a
// running vacuum by contention.
type ActiveVacuumList struct {
	list *pagelist.ItemList
}

// OpenActiveVacuumList opens the list rooted at block.
func OpenActiveVacuumList(ctx context.Context, mgr host.BufferManager, wal host.WALSink, block host.BlockNumber) (*ActiveVacuumList, error) {
	list, err := pagelist.OpenItemList(ctx, mgr, wal, block)
	if err != nil {
		return nil, err
	}
	return &ActiveVacuumList{list: list}, nil
}

// Add registers id as currently being vacuumed.
func (v *ActiveVacuumList) Add(ctx context.Context, id uuid.UUID) error {
	_, err := v.list.Append(ctx, id[:])
	return err
}

// Contains reports whether id is in the list.
func (v *ActiveVacuumList) Contains(ctx context.Context, id uuid.UUID) (bool, error) {
	_, _, found, err := v.list.Lookup(ctx, func(b []byte) bool { return uuid.UUID(b) == id })
	return found, err
}

// Snapshot returns every segment id currently listed.
func (v *ActiveVacuumList) Snapshot(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := v.list.Scan(ctx, func(_ pagelist.ItemPointer, payload []byte) bool {
		ids = append(ids, uuid.UUID(payload))
		return true
	})
	return ids, err
}
