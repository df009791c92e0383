package teststore

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"

	"github.com/pkg/errors"

	_ "modernc.org/sqlite"

	"github.com/docsync/syncengine/internal/model"
	"github.com/docsync/syncengine/internal/store"
)

// pendingMutation is one queued, not-yet-acknowledged write.
type pendingMutation struct {
	batchId model.BatchId
	user    string
	key     model.DocumentKey
	fields  map[string]any // nil means delete
}

// Store is a reference store.Local implementation backed by a SQLite
// database for document base state and query allocation, giving tests
// and demos a real (if disposable) DB rather than a pure in-memory
// fake.
type Store struct {
	db *sql.DB

	mu sync.Mutex

	nextTargetId model.TargetId // even range; disjoint from internal/targetid's odd range.
	nextBatchId  model.BatchId

	synced map[model.TargetId]map[model.DocumentKey]struct{}

	// batches preserves submission order; mutations within a batch are
	// applied in slice order so last-write-wins within the batch.
	batches      []model.BatchId
	mutationsFor map[model.BatchId][]pendingMutation
	batchUser    map[model.BatchId]string

	currentUser string
}

// Open creates a fresh Store backed by a SQLite database at dsn (use
// ":memory:" for a throwaway instance, as cmd/syncdemo and this
// package's tests both do).
func Open(dsn string, initialUser string) (*Store, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "teststore: opening sqlite")
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "teststore: creating schema")
	}
	return &Store{
		db:           db,
		nextTargetId: 2, // 0 is reserved as the unset TargetId.
		nextBatchId:  1,
		synced:       make(map[model.TargetId]map[model.DocumentKey]struct{}),
		mutationsFor: make(map[model.BatchId][]pendingMutation),
		batchUser:    make(map[model.BatchId]string),
		currentUser:  initialUser,
	}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error { return s.db.Close() }

var _ store.Local = (*Store)(nil)

// AllocateQuery implements store.Local.
func (s *Store) AllocateQuery(ctx context.Context, q model.Query) (model.QueryData, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cacheKey := q.CacheKey()

	var targetId model.TargetId
	var seq model.SequenceNumber
	row := s.db.QueryRowContext(ctx,
		`SELECT target_id, sequence_number FROM query_allocations WHERE cache_key = ?`, cacheKey)
	switch err := row.Scan(&targetId, &seq); {
	case err == nil:
		return model.QueryData{Query: q, TargetId: targetId, SequenceNumber: seq, Purpose: model.PurposeListen}, nil
	case !errors.Is(err, sql.ErrNoRows):
		return model.QueryData{}, errors.Wrap(err, "teststore: allocating query")
	}

	targetId = s.nextTargetId
	s.nextTargetId += 2
	seq = model.SequenceNumber(targetId)

	filtersJSON, err := json.Marshal(q.Filters)
	if err != nil {
		return model.QueryData{}, errors.Wrap(err, "teststore: marshaling filters")
	}
	orderByJSON, err := json.Marshal(q.OrderBy)
	if err != nil {
		return model.QueryData{}, errors.Wrap(err, "teststore: marshaling orderBy")
	}

	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO query_allocations(cache_key, collection_path, filters_json, orderby_json, result_limit, target_id, sequence_number, purpose)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		cacheKey, q.CollectionPath, string(filtersJSON), string(orderByJSON), q.Limit, targetId, int64(seq), int(model.PurposeListen),
	); err != nil {
		return model.QueryData{}, errors.Wrap(err, "teststore: inserting query allocation")
	}

	s.synced[targetId] = make(map[model.DocumentKey]struct{})
	return model.QueryData{Query: q, TargetId: targetId, SequenceNumber: seq, Purpose: model.PurposeListen}, nil
}

// ReleaseQuery implements store.Local.
func (s *Store) ReleaseQuery(ctx context.Context, q model.Query) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var targetId model.TargetId
	row := s.db.QueryRowContext(ctx, `SELECT target_id FROM query_allocations WHERE cache_key = ?`, q.CacheKey())
	if err := row.Scan(&targetId); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		return errors.Wrap(err, "teststore: releasing query")
	}

	if _, err := s.db.ExecContext(ctx, `DELETE FROM query_allocations WHERE cache_key = ?`, q.CacheKey()); err != nil {
		return errors.Wrap(err, "teststore: deleting query allocation")
	}
	delete(s.synced, targetId)
	return nil
}

// ExecuteQuery implements store.Local. Like internal/view, it only
// narrows by collection path; evaluating q.Filters is the query
// execution engine's job.
func (s *Store) ExecuteQuery(ctx context.Context, q model.Query) ([]model.MaybeDocument, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT key, document_exists, version_seconds, version_logical, fields_json, has_committed_mutations FROM documents`)
	if err != nil {
		return nil, errors.Wrap(err, "teststore: executing query")
	}
	defer rows.Close()

	merged := make(map[model.DocumentKey]model.MaybeDocument)
	for rows.Next() {
		var key string
		var exists int
		var seconds int64
		var logical int32
		var fieldsJSON sql.NullString
		var hasCommitted int
		if err := rows.Scan(&key, &exists, &seconds, &logical, &fieldsJSON, &hasCommitted); err != nil {
			return nil, errors.Wrap(err, "teststore: scanning document row")
		}
		k := model.NewDocumentKey(key)
		if k.CollectionPath() != q.CollectionPath {
			continue
		}
		doc, err := decodeDocument(key, exists != 0, seconds, logical, fieldsJSON, hasCommitted != 0)
		if err != nil {
			return nil, err
		}
		merged[k] = doc
	}
	if err := rows.Err(); err != nil {
		return nil, errors.Wrap(err, "teststore: iterating document rows")
	}

	// Overlay the current user's unacknowledged mutations, in batch
	// order so later batches win, including writes to keys that have
	// no base row yet.
	s.mu.Lock()
	for _, batchId := range s.batches {
		if s.batchUser[batchId] != s.currentUser {
			continue
		}
		for _, m := range s.mutationsFor[batchId] {
			if m.key.CollectionPath() != q.CollectionPath {
				continue
			}
			base := merged[m.key]
			if m.fields == nil {
				merged[m.key] = model.NewNoDocument(m.key, base.Version, false)
			} else {
				merged[m.key] = model.NewDocument(m.key, base.Version, m.fields)
			}
		}
	}
	s.mu.Unlock()

	out := make([]model.MaybeDocument, 0, len(merged))
	for _, doc := range merged {
		if doc.Exists() {
			out = append(out, doc)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key.Compare(out[j].Key) < 0 })
	return out, nil
}

func decodeDocument(key string, exists bool, seconds int64, logical int32, fieldsJSON sql.NullString, hasCommitted bool) (model.MaybeDocument, error) {
	k := model.NewDocumentKey(key)
	v := model.NewVersion(seconds, logical)
	if !exists {
		return model.NewNoDocument(k, v, hasCommitted), nil
	}
	var fields map[string]any
	if fieldsJSON.Valid && fieldsJSON.String != "" {
		if err := json.Unmarshal([]byte(fieldsJSON.String), &fields); err != nil {
			return model.MaybeDocument{}, errors.Wrap(err, "teststore: unmarshaling fields")
		}
	}
	return model.NewDocument(k, v, fields), nil
}

// GetRemoteDocumentKeys implements store.Local.
func (s *Store) GetRemoteDocumentKeys(_ context.Context, targetId model.TargetId) (map[model.DocumentKey]struct{}, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[model.DocumentKey]struct{})
	for k := range s.synced[targetId] {
		out[k] = struct{}{}
	}
	return out, nil
}

// WriteLocally implements store.Local.
func (s *Store) WriteLocally(ctx context.Context, mutations []model.Mutation) (model.LocalWriteResult, error) {
	s.mu.Lock()
	batchId := s.nextBatchId
	s.nextBatchId++
	s.batches = append(s.batches, batchId)
	s.batchUser[batchId] = s.currentUser

	deduped := model.UniqueByKey(append([]model.Mutation(nil), mutations...))
	pending := make([]pendingMutation, 0, len(deduped))
	for _, m := range deduped {
		pending = append(pending, pendingMutation{batchId: batchId, user: s.currentUser, key: m.Key, fields: m.Fields})
	}
	s.mutationsFor[batchId] = pending
	s.mu.Unlock()

	changes := make(map[model.DocumentKey]model.MaybeDocument, len(deduped))
	for _, m := range deduped {
		base, err := s.baseDocument(ctx, m.Key)
		if err != nil {
			return model.LocalWriteResult{}, err
		}
		if m.IsDelete() {
			changes[m.Key] = model.NewNoDocument(m.Key, base.Version, false)
		} else {
			changes[m.Key] = model.NewDocument(m.Key, base.Version, m.Fields)
		}
	}
	return model.LocalWriteResult{BatchId: batchId, Changes: changes}, nil
}

func (s *Store) baseDocument(ctx context.Context, key model.DocumentKey) (model.MaybeDocument, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT document_exists, version_seconds, version_logical, fields_json, has_committed_mutations FROM documents WHERE key = ?`,
		key.Path())
	var exists int
	var seconds int64
	var logical int32
	var fieldsJSON sql.NullString
	var hasCommitted int
	switch err := row.Scan(&exists, &seconds, &logical, &fieldsJSON, &hasCommitted); {
	case errors.Is(err, sql.ErrNoRows):
		return model.NewNoDocument(key, model.None, false), nil
	case err != nil:
		return model.MaybeDocument{}, errors.Wrap(err, "teststore: reading base document")
	}
	return decodeDocument(key.Path(), exists != 0, seconds, logical, fieldsJSON, hasCommitted != 0)
}

// ApplyRemoteEvent implements store.Local.
func (s *Store) ApplyRemoteEvent(ctx context.Context, event *model.RemoteEvent) (map[model.DocumentKey]model.MaybeDocument, error) {
	s.mu.Lock()
	for targetId, tc := range event.TargetChanges {
		synced, ok := s.synced[targetId]
		if !ok {
			synced = make(map[model.DocumentKey]struct{})
			s.synced[targetId] = synced
		}
		for _, k := range tc.Added {
			synced[k] = struct{}{}
		}
		for _, k := range tc.Modified {
			synced[k] = struct{}{}
		}
		for _, k := range tc.Removed {
			delete(synced, k)
		}
	}
	s.mu.Unlock()

	changes := make(map[model.DocumentKey]model.MaybeDocument, len(event.DocumentUpdates))
	for key, doc := range event.DocumentUpdates {
		if err := s.putBase(ctx, doc); err != nil {
			return nil, err
		}
		changes[key] = doc
	}
	return changes, nil
}

func (s *Store) putBase(ctx context.Context, doc model.MaybeDocument) error {
	var fieldsJSON []byte
	if doc.Exists() {
		var err error
		fieldsJSON, err = json.Marshal(doc.Fields)
		if err != nil {
			return errors.Wrap(err, "teststore: marshaling fields")
		}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO documents(key, document_exists, version_seconds, version_logical, fields_json, has_committed_mutations)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
			document_exists = excluded.document_exists,
			version_seconds = excluded.version_seconds,
			version_logical = excluded.version_logical,
			fields_json = excluded.fields_json,
			has_committed_mutations = excluded.has_committed_mutations`,
		doc.Key.Path(), boolToInt(doc.Exists()), doc.Version.Seconds(), doc.Version.Logical(), string(fieldsJSON), boolToInt(doc.HasCommittedMutations),
	)
	if err != nil {
		return errors.Wrap(err, "teststore: upserting base document")
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// AcknowledgeBatch implements store.Local.
func (s *Store) AcknowledgeBatch(ctx context.Context, batchResult model.BatchResult) (map[model.DocumentKey]model.MaybeDocument, error) {
	s.mu.Lock()
	pending, ok := s.mutationsFor[batchResult.BatchId]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	delete(s.mutationsFor, batchResult.BatchId)
	delete(s.batchUser, batchResult.BatchId)
	s.removeBatchID(batchResult.BatchId)
	s.mu.Unlock()

	changes := make(map[model.DocumentKey]model.MaybeDocument, len(pending))
	for _, m := range pending {
		var doc model.MaybeDocument
		if m.fields == nil {
			doc = model.NewNoDocument(m.key, batchResult.Version, true)
		} else {
			doc = model.NewDocument(m.key, batchResult.Version, m.fields)
		}
		if err := s.putBase(ctx, doc); err != nil {
			return nil, err
		}
		changes[m.key] = doc
	}
	return changes, nil
}

// RejectBatch implements store.Local.
func (s *Store) RejectBatch(ctx context.Context, batchId model.BatchId) (map[model.DocumentKey]model.MaybeDocument, error) {
	s.mu.Lock()
	pending, ok := s.mutationsFor[batchId]
	if !ok {
		s.mu.Unlock()
		return nil, nil
	}
	delete(s.mutationsFor, batchId)
	delete(s.batchUser, batchId)
	s.removeBatchID(batchId)
	s.mu.Unlock()

	changes := make(map[model.DocumentKey]model.MaybeDocument, len(pending))
	for _, m := range pending {
		base, err := s.baseDocument(ctx, m.key)
		if err != nil {
			return nil, err
		}
		changes[m.key] = base
	}
	return changes, nil
}

// removeBatchID removes id from s.batches. Caller holds s.mu.
func (s *Store) removeBatchID(id model.BatchId) {
	for i, b := range s.batches {
		if b == id {
			s.batches = append(s.batches[:i], s.batches[i+1:]...)
			return
		}
	}
}

// NotifyLocalViewChanges implements store.Local. The reference store
// has no cache eviction policy to drive, so pin/unpin bookkeeping is a
// no-op; a real Local Store would use this to decide what stays
// resident.
func (s *Store) NotifyLocalViewChanges(context.Context, []store.LocalViewChanges) error {
	return nil
}

// GetHighestUnacknowledgedBatchId implements store.Local.
func (s *Store) GetHighestUnacknowledgedBatchId(context.Context) (model.BatchId, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.batches) == 0 {
		return model.UnknownBatchId, nil
	}
	ids := append([]model.BatchId(nil), s.batches...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids[len(ids)-1], nil
}

// HandleUserChange implements store.Local. A user
// switch abandons (does not replay) the previous user's unacknowledged
// batches; their optimistic overlay is simply no longer visible once
// currentUser changes, so the affected keys revert to their base
// value.
func (s *Store) HandleUserChange(ctx context.Context, user string) (map[model.DocumentKey]model.MaybeDocument, error) {
	s.mu.Lock()
	affected := make(map[model.DocumentKey]struct{})
	for _, batchId := range s.batches {
		if s.batchUser[batchId] != s.currentUser {
			continue
		}
		for _, m := range s.mutationsFor[batchId] {
			affected[m.key] = struct{}{}
		}
	}
	s.currentUser = user
	s.mu.Unlock()

	changes := make(map[model.DocumentKey]model.MaybeDocument, len(affected))
	for key := range affected {
		doc, err := s.baseDocument(ctx, key)
		if err != nil {
			return nil, err
		}
		changes[key] = doc
	}
	return changes, nil
}
