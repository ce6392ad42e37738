// Package mergepolicy selects which live segments a commit's merge
// trigger should combine. It has no I/O of its own: it operates purely
// over already-decoded metapages.SegmentMeta values and an estimated
// byte size per segment, supplied by the caller.
package mergepolicy

import (
	"sort"

	"github.com/segmentix/pgsearchidx/metapages"
)

// SizeEstimator returns the estimated on-disk byte size of a segment,
// summed across its components. searchio.Writer supplies this from the
// meta's FileRef.TotalBytes fields.
type SizeEstimator func(metapages.SegmentMeta) int64

// Strategy picks the subset of live segments a merge should combine,
// given the maximum byte size a single input is allowed to contribute
// (config.MaxMergeableSegmentSize).
type Strategy interface {
	Pick(live []metapages.SegmentMeta, size SizeEstimator, maxBytes int64) []metapages.SegmentMeta
}

// SmallestFirst keeps segments no larger than maxBytes, sorts them by
// estimated size ascending, and takes them in that order until the next
// one would push the running total past maxBytes; the two smallest are
// always taken, even when together they exceed maxBytes. This minimizes
// merge I/O — the common case.
type SmallestFirst struct{}

func (SmallestFirst) Pick(live []metapages.SegmentMeta, size SizeEstimator, maxBytes int64) []metapages.SegmentMeta {
	candidates := make([]metapages.SegmentMeta, 0, len(live))
	for _, m := range live {
		if size(m) <= maxBytes {
			candidates = append(candidates, m)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		return size(candidates[i]) < size(candidates[j])
	})
	var total int64
	picked := make([]metapages.SegmentMeta, 0, len(candidates))
	for _, m := range candidates {
		if total+size(m) > maxBytes && len(picked) >= 2 {
			break
		}
		picked = append(picked, m)
		total += size(m)
	}
	if len(picked) < 2 {
		return nil
	}
	return picked
}

// Append never picks anything: segment pages are never reclaimed by a
// merge until an explicit vacuum runs, used when a merge would race a
// long-lived reader that still needs the old segments' pages intact.
type Append struct{}

func (Append) Pick([]metapages.SegmentMeta, SizeEstimator, int64) []metapages.SegmentMeta {
	return nil
}

// Hybrid switches between SmallestFirst and Append based on live
// segment count: below the fragmentation threshold it merges
// aggressively; above it, it defers to vacuum rather than compounding
// merge I/O on an already-fragmented index.
type Hybrid struct {
	// FragmentationThreshold is the live segment count above which
	// Hybrid defers to Append.
	FragmentationThreshold int
}

func (h Hybrid) Pick(live []metapages.SegmentMeta, size SizeEstimator, maxBytes int64) []metapages.SegmentMeta {
	threshold := h.FragmentationThreshold
	if threshold <= 0 {
		threshold = 32
	}
	if len(live) > threshold {
		return Append{}.Pick(live, size, maxBytes)
	}
	return SmallestFirst{}.Pick(live, size, maxBytes)
}
