package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/segmentix/pgsearchidx/segstore"
)

const tombstonePath = "tombstones.json"

func segPath(id uuid.UUID) string {
	return fmt.Sprintf("segments/%s.seg", id)
}

// storedDoc is the on-disk representation of one document within a
// reference segment file.
type storedDoc struct {
	Key    string             `json:"key"`
	Stored map[string]string  `json:"stored"` // base64 not needed: reference engine only stores text
	Fast   map[string]float64 `json:"fast"`
}

type refSegmentData struct {
	ID   uuid.UUID   `json:"id"`
	Docs []storedDoc `json:"docs"`
}

// RefIndex is the in-memory reference engine.Index implementation:
// segments are JSON blobs written through a Directory, postings are
// computed by a full scan rather than a real inverted index. It is
// sufficient to exercise searchio, customscan, topn, aggscan and
// joinscan in tests without a real Tantivy binding.
type RefIndex struct {
	schema Schema
	dir    Directory
}

// NewRefIndex opens the reference engine against schema and dir.
func NewRefIndex(schema Schema, dir Directory) *RefIndex {
	return &RefIndex{schema: schema, dir: dir}
}

func (idx *RefIndex) Schema() Schema { return idx.schema }

func (idx *RefIndex) Writer(_ context.Context) (Writer, error) {
	return &refWriter{idx: idx, newTombstones: map[string]struct{}{}}, nil
}

func (idx *RefIndex) Reader(ctx context.Context, opts ReaderOptions) (Reader, error) {
	r := &refReader{idx: idx, opts: opts, loaded: map[uuid.UUID]*refSegmentData{}}
	if err := r.load(ctx); err != nil {
		return nil, err
	}
	return r, nil
}

func (idx *RefIndex) Aggregator(_ context.Context) (Aggregator, error) {
	return &refAggregator{idx: idx}, nil
}

func (idx *RefIndex) readTombstones(ctx context.Context) (map[string]struct{}, error) {
	fh, err := idx.dir.GetFileHandle(ctx, tombstonePath)
	if err != nil {
		if errors.Is(err, segstore.ErrNoSuchFile) {
			return map[string]struct{}{}, nil
		}
		return nil, err
	}
	b, err := fh.ReadAt(ctx, 0, int(fh.Size()))
	if err != nil {
		return nil, err
	}
	var keys []string
	if len(b) > 0 {
		if err := json.Unmarshal(b, &keys); err != nil {
			return nil, err
		}
	}
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		set[k] = struct{}{}
	}
	return set, nil
}

func (idx *RefIndex) writeTombstones(ctx context.Context, set map[string]struct{}) error {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	b, err := json.Marshal(keys)
	if err != nil {
		return err
	}
	w, err := idx.dir.OpenWrite(ctx, tombstonePath, true)
	if err != nil {
		return err
	}
	if _, err := w.Write(ctx, b); err != nil {
		return err
	}
	return w.Close(ctx)
}

func (idx *RefIndex) allSegmentIDs(ctx context.Context) ([]uuid.UUID, error) {
	paths, err := idx.dir.ListManagedFiles(ctx)
	if err != nil {
		return nil, err
	}
	var ids []uuid.UUID
	for _, p := range paths {
		if !strings.HasPrefix(p, "segments/") || !strings.HasSuffix(p, ".seg") {
			continue
		}
		raw := strings.TrimSuffix(strings.TrimPrefix(p, "segments/"), ".seg")
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func (idx *RefIndex) loadSegment(ctx context.Context, id uuid.UUID) (*refSegmentData, error) {
	fh, err := idx.dir.GetFileHandle(ctx, segPath(id))
	if err != nil {
		return nil, err
	}
	b, err := fh.ReadAt(ctx, 0, int(fh.Size()))
	if err != nil {
		return nil, err
	}
	var data refSegmentData
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, err
	}
	return &data, nil
}

func docToDocument(d storedDoc) Document {
	stored := make(map[string][]byte, len(d.Stored))
	for k, v := range d.Stored {
		stored[k] = []byte(v)
	}
	return Document{Stored: stored, Fast: d.Fast, Key: d.Key}
}

func documentToDoc(d Document) storedDoc {
	stored := make(map[string]string, len(d.Stored))
	for k, v := range d.Stored {
		stored[k] = string(v)
	}
	return storedDoc{Key: d.Key, Stored: stored, Fast: d.Fast}
}

// --- Writer ---

type refWriter struct {
	idx           *RefIndex
	pending       []Document
	newTombstones map[string]struct{}
}

func (w *refWriter) AddDocument(_ context.Context, doc Document) error {
	if doc.Key != "" {
		w.newTombstones[doc.Key] = struct{}{}
	}
	w.pending = append(w.pending, doc)
	return nil
}

func (w *refWriter) DeleteTerm(_ context.Context, _ string, keys []string) error {
	for _, k := range keys {
		w.newTombstones[k] = struct{}{}
	}
	return nil
}

func (w *refWriter) Commit(ctx context.Context) (CommittedSegment, error) {
	id := uuid.New()
	data := refSegmentData{ID: id, Docs: make([]storedDoc, len(w.pending))}
	for i, d := range w.pending {
		data.Docs[i] = documentToDoc(d)
	}
	b, err := json.Marshal(data)
	if err != nil {
		return CommittedSegment{}, err
	}
	fw, err := w.idx.dir.OpenWrite(ctx, segPath(id), false)
	if err != nil {
		return CommittedSegment{}, err
	}
	n, err := fw.Write(ctx, b)
	if err != nil {
		return CommittedSegment{}, err
	}
	if err := fw.Close(ctx); err != nil {
		return CommittedSegment{}, err
	}

	if len(w.newTombstones) > 0 {
		existing, err := w.idx.readTombstones(ctx)
		if err != nil {
			return CommittedSegment{}, err
		}
		for k := range w.newTombstones {
			existing[k] = struct{}{}
		}
		if err := w.idx.writeTombstones(ctx, existing); err != nil {
			return CommittedSegment{}, err
		}
	}

	committed := CommittedSegment{
		SegmentRef: SegmentRef{ID: id, MaxDoc: uint32(len(data.Docs)), Path: segPath(id), NumDocs: len(data.Docs)},
		ByteSize:   n,
	}
	w.pending = nil
	w.newTombstones = map[string]struct{}{}
	return committed, nil
}

func (w *refWriter) Merge(ctx context.Context, inputs []SegmentRef) (CommittedSegment, error) {
	id := uuid.New()
	var docs []storedDoc
	for _, in := range inputs {
		data, err := w.idx.loadSegment(ctx, in.ID)
		if err != nil {
			return CommittedSegment{}, err
		}
		docs = append(docs, data.Docs...)
	}
	merged := refSegmentData{ID: id, Docs: docs}
	b, err := json.Marshal(merged)
	if err != nil {
		return CommittedSegment{}, err
	}
	fw, err := w.idx.dir.OpenWrite(ctx, segPath(id), false)
	if err != nil {
		return CommittedSegment{}, err
	}
	n, err := fw.Write(ctx, b)
	if err != nil {
		return CommittedSegment{}, err
	}
	if err := fw.Close(ctx); err != nil {
		return CommittedSegment{}, err
	}
	return CommittedSegment{
		SegmentRef: SegmentRef{ID: id, MaxDoc: uint32(len(docs)), Path: segPath(id), NumDocs: len(docs)},
		ByteSize:   n,
	}, nil
}

func (w *refWriter) GarbageCollectFiles(ctx context.Context, live []SegmentRef) error {
	keep := make(map[string]struct{}, len(live))
	for _, s := range live {
		keep[segPath(s.ID)] = struct{}{}
	}
	paths, err := w.idx.dir.ListManagedFiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if p == tombstonePath {
			continue
		}
		if _, ok := keep[p]; ok {
			continue
		}
		// Delete is a no-op by directory design: page reclaim happens
		// through vacuum and segstore tombstoning, not file deletion.
		if err := w.idx.dir.Delete(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (w *refWriter) DropIndex(ctx context.Context) error {
	paths, err := w.idx.dir.ListManagedFiles(ctx)
	if err != nil {
		return err
	}
	for _, p := range paths {
		if err := w.idx.dir.Delete(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// --- Reader ---

type refReader struct {
	idx        *RefIndex
	opts       ReaderOptions
	loaded     map[uuid.UUID]*refSegmentData
	order      []uuid.UUID
	tombstones map[string]struct{}
}

func (r *refReader) load(ctx context.Context) error {
	ids := r.opts.SegmentIDs
	if ids == nil {
		all, err := r.idx.allSegmentIDs(ctx)
		if err != nil {
			return err
		}
		ids = all
	}
	ts, err := r.idx.readTombstones(ctx)
	if err != nil {
		return err
	}
	r.tombstones = ts
	for _, id := range ids {
		data, err := r.idx.loadSegment(ctx, id)
		if err != nil {
			return err
		}
		r.loaded[id] = data
		r.order = append(r.order, id)
	}
	return nil
}

func (r *refReader) Search(_ context.Context) (ResultIterator, error) {
	var results []ScoredDoc
	for _, segID := range r.order {
		data := r.loaded[segID]
		for docID, sd := range data.Docs {
			if _, dead := r.tombstones[sd.Key]; dead {
				continue
			}
			doc := docToDocument(sd)
			if r.opts.Query != nil && !r.opts.Query.Matches(doc) {
				continue
			}
			addr := DocAddress{SegmentID: segID, DocID: uint32(docID)}
			sdoc := ScoredDoc{Addr: addr}
			if r.opts.NeedScores && r.opts.Query != nil {
				if score, ok := r.opts.Query.Score(doc); ok {
					s := score
					sdoc.Score = &s
				}
			}
			results = append(results, sdoc)
		}
	}

	sort.SliceStable(results, func(i, j int) bool {
		if r.opts.OrderByFastField != "" {
			vi, _ := r.FastFieldSync(results[i].Addr, r.opts.OrderByFastField)
			vj, _ := r.FastFieldSync(results[j].Addr, r.opts.OrderByFastField)
			if vi != vj {
				if r.opts.OrderDescending {
					return vi > vj
				}
				return vi < vj
			}
			return results[i].Addr.Less(results[j].Addr)
		}
		si, sj := scoreOf(results[i]), scoreOf(results[j])
		if si != sj {
			return si > sj
		}
		return results[i].Addr.Less(results[j].Addr)
	})

	if r.opts.Offset > 0 && r.opts.Offset < len(results) {
		results = results[r.opts.Offset:]
	} else if r.opts.Offset >= len(results) {
		results = nil
	}
	if r.opts.Limit > 0 && len(results) > r.opts.Limit {
		results = results[:r.opts.Limit]
	}
	return &sliceIterator{items: results}, nil
}

func scoreOf(s ScoredDoc) float32 {
	if s.Score == nil {
		return 0
	}
	return *s.Score
}

// FastFieldSync is a synchronous helper used internally by Search's
// sort comparator, which cannot thread a context through sort.Slice.
func (r *refReader) FastFieldSync(addr DocAddress, field string) (float64, bool) {
	data, ok := r.loaded[addr.SegmentID]
	if !ok || int(addr.DocID) >= len(data.Docs) {
		return 0, false
	}
	v, ok := data.Docs[addr.DocID].Fast[field]
	return v, ok
}

func (r *refReader) StoredField(_ context.Context, addr DocAddress, field string) ([]byte, bool, error) {
	data, ok := r.loaded[addr.SegmentID]
	if !ok || int(addr.DocID) >= len(data.Docs) {
		return nil, false, nil
	}
	v, ok := data.Docs[addr.DocID].Stored[field]
	if !ok {
		return nil, false, nil
	}
	return []byte(v), true, nil
}

func (r *refReader) FastField(_ context.Context, addr DocAddress, field string) (float64, bool, error) {
	v, ok := r.FastFieldSync(addr, field)
	return v, ok, nil
}

func (r *refReader) Close(_ context.Context) error {
	r.loaded = nil
	return nil
}

type sliceIterator struct {
	items []ScoredDoc
	pos   int
}

func (it *sliceIterator) Next(_ context.Context) (ScoredDoc, bool, error) {
	if it.pos >= len(it.items) {
		return ScoredDoc{}, false, nil
	}
	v := it.items[it.pos]
	it.pos++
	return v, true, nil
}

// --- Aggregator ---

type refAggregator struct {
	idx *RefIndex
}

func (a *refAggregator) Run(ctx context.Context, query Query, req AggRequest) (AggResult, error) {
	reader, err := a.idx.Reader(ctx, ReaderOptions{Query: query})
	if err != nil {
		return AggResult{}, err
	}
	defer reader.Close(ctx)

	rr := reader.(*refReader)
	var docs []Document
	var addrs []DocAddress
	for _, segID := range rr.order {
		data := rr.loaded[segID]
		for docID, sd := range data.Docs {
			if _, dead := rr.tombstones[sd.Key]; dead {
				continue
			}
			doc := docToDocument(sd)
			if query != nil && !query.Matches(doc) {
				continue
			}
			docs = append(docs, doc)
			addrs = append(addrs, DocAddress{SegmentID: segID, DocID: uint32(docID)})
		}
	}

	if len(req.Groups) == 0 {
		metrics, err := computeMetrics(docs, req.Metrics)
		if err != nil {
			return AggResult{}, err
		}
		return AggResult{
			ValueCount: len(docs),
			Buckets:    []AggBucket{{Key: "", DocCount: len(docs), Metrics: metrics}},
		}, nil
	}

	result, truncated := bucketize(docs, req.Groups, req.Metrics, req.MaxBucketsPerLevel)
	return AggResult{Buckets: result, SumOtherDocCount: truncated}, nil
}

func bucketize(docs []Document, groups []string, metrics []AggMetric, maxBuckets int) ([]AggBucket, int) {
	field := groups[0]
	byKey := map[string][]Document{}
	var keys []string
	for _, d := range docs {
		k := fastFieldKey(d, field)
		if _, ok := byKey[k]; !ok {
			keys = append(keys, k)
		}
		byKey[k] = append(byKey[k], d)
	}
	sort.Strings(keys)

	truncated := 0
	if maxBuckets > 0 && len(keys) > maxBuckets {
		truncated = len(keys) - maxBuckets
		keys = keys[:maxBuckets]
	}

	buckets := make([]AggBucket, 0, len(keys))
	for _, k := range keys {
		group := byKey[k]
		b := AggBucket{Key: k, DocCount: len(group)}
		if len(groups) > 1 {
			sub, subTrunc := bucketize(group, groups[1:], metrics, maxBuckets)
			b.SubBuckets = sub
			truncated += subTrunc
		} else {
			m, err := computeMetrics(group, metrics)
			if err == nil {
				b.Metrics = m
			}
		}
		buckets = append(buckets, b)
	}
	return buckets, truncated
}

func fastFieldKey(d Document, field string) string {
	if v, ok := d.Fast[field]; ok {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	if v, ok := d.Stored[field]; ok {
		return string(v)
	}
	return ""
}

func computeMetrics(docs []Document, metrics []AggMetric) (map[string]*float64, error) {
	out := make(map[string]*float64, len(metrics))
	for _, m := range metrics {
		filtered := docs
		if m.Filter != nil {
			filtered = nil
			for _, d := range docs {
				if m.Filter.Matches(d) {
					filtered = append(filtered, d)
				}
			}
		}
		v, err := reduceMetric(filtered, m)
		if err != nil {
			return nil, err
		}
		out[m.Name] = v
	}
	return out, nil
}

func reduceMetric(docs []Document, m AggMetric) (*float64, error) {
	if m.Kind == AggCount {
		v := float64(len(docs))
		return &v, nil
	}
	if len(docs) == 0 {
		return nil, nil
	}
	var sum, min, max float64
	first := true
	for _, d := range docs {
		v, ok := d.Fast[m.Field]
		if !ok {
			continue
		}
		sum += v
		if first || v < min {
			min = v
		}
		if first || v > max {
			max = v
		}
		first = false
	}
	if first {
		return nil, nil
	}
	switch m.Kind {
	case AggSum:
		return &sum, nil
	case AggAvg:
		avg := sum / float64(len(docs))
		return &avg, nil
	case AggMin:
		return &min, nil
	case AggMax:
		return &max, nil
	default:
		return nil, fmt.Errorf("engine: unknown metric kind %d", m.Kind)
	}
}
