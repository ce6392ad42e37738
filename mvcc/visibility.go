// Package mvcc implements per-segment MVCC visibility: the predicate a
// segment-meta entry must satisfy to be visible to a given snapshot,
// the recyclability test vacuum uses to reclaim tombstoned segments,
// freeze rules, and the two reader visibility modes (snapshot-based and
// parallel-worker-restricted).
package mvcc

import (
	"github.com/segmentix/pgsearchidx/host"
	"github.com/segmentix/pgsearchidx/metapages"
)

// Visible reports whether meta is visible to a reader evaluating
// currentXid against snap:
//
//	xmin is current-txn OR not in snapshot-in-progress set
//	AND
//	xmax is invalid OR (not current-txn AND xmax is in snapshot-in-progress set)
func Visible(meta metapages.SegmentMeta, currentXid host.Xid, snap host.Snapshot) bool {
	xminOK := meta.Xmin == currentXid || !snap.InProgressAt(meta.Xmin)
	if !xminOK {
		return false
	}
	if meta.Xmax == host.InvalidXid {
		return true
	}
	return meta.Xmax != currentXid && snap.InProgressAt(meta.Xmax)
}

// Recyclable reports whether meta's pages are safe to free: it must be
// tombstoned, its xmax must not be visible to any active snapshot, and
// xmax must precede the oldest xid any snapshot could still consider
// in-progress.
func Recyclable(meta metapages.SegmentMeta, snap host.Snapshot) bool {
	if meta.Xmax == host.InvalidXid {
		return false
	}
	if snap.InProgressAt(meta.Xmax) {
		return false
	}
	return meta.Xmax < snap.RecentGlobalXmin
}

// Freeze rewrites xmin/xmax that precede the freeze horizon to the
// frozen sentinel, so the entry never again depends on xid wraparound
// reasoning. It returns the rewritten meta and whether anything
// changed.
func Freeze(meta metapages.SegmentMeta, freezeHorizon host.Xid) (metapages.SegmentMeta, bool) {
	changed := false
	if meta.Xmin != host.InvalidXid && meta.Xmin != host.FrozenXid && meta.Xmin < freezeHorizon {
		meta.Xmin = host.FrozenXid
		changed = true
	}
	if meta.Xmax != host.InvalidXid && meta.Xmax != host.FrozenXid && meta.Xmax < freezeHorizon {
		meta.Xmax = host.FrozenXid
		changed = true
	}
	return meta, changed
}
