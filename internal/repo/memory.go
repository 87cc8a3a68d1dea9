package repo

import (
	"context"
	"sort"
	"sync"
	"time"
)

type deviceKey struct {
	merchant string
	device   string
}

type itemKey struct {
	batchID int64
	itemNo  string
}

type memoryState struct {
	seq            int64
	authorizations map[int64]Authorization
	open           map[deviceKey]OpenBatch
	closed         map[int64]ClosedBatch
	records        map[itemKey]BatchRecord
}

func newMemoryState() *memoryState {
	return &memoryState{
		authorizations: make(map[int64]Authorization),
		open:           make(map[deviceKey]OpenBatch),
		closed:         make(map[int64]ClosedBatch),
		records:        make(map[itemKey]BatchRecord),
	}
}

func (s *memoryState) clone() *memoryState {
	c := &memoryState{
		seq:            s.seq,
		authorizations: make(map[int64]Authorization, len(s.authorizations)),
		open:           make(map[deviceKey]OpenBatch, len(s.open)),
		closed:         make(map[int64]ClosedBatch, len(s.closed)),
		records:        make(map[itemKey]BatchRecord, len(s.records)),
	}
	for k, v := range s.authorizations {
		c.authorizations[k] = v
	}
	for k, v := range s.open {
		c.open[k] = v
	}
	for k, v := range s.closed {
		c.closed[k] = v
	}
	for k, v := range s.records {
		c.records[k] = v
	}
	return c
}

func (s *memoryState) nextID() int64 {
	s.seq++
	return s.seq
}

// MemoryStorage keeps everything in process. Units of work are serialized:
// Begin blocks until the previous unit is saved or discarded.
type MemoryStorage struct {
	mu    sync.Mutex
	state *memoryState
	now   func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{state: newMemoryState(), now: time.Now}
}

func (s *MemoryStorage) Begin(ctx context.Context) (UnitOfWork, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	return &memoryUnit{storage: s, work: s.state.clone()}, nil
}

func (s *MemoryStorage) PurgeAuthorizations(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for id, auth := range s.state.authorizations {
		if !auth.IsCaptured && auth.Date.Before(before) {
			delete(s.state.authorizations, id)
			purged++
		}
	}
	return purged, nil
}

type memoryUnit struct {
	storage *MemoryStorage
	work    *memoryState
	done    bool
}

func (u *memoryUnit) LastClosedBatch(_ context.Context, merchant, device string) (*ClosedBatch, error) {
	var last *ClosedBatch
	for _, batch := range u.work.closed {
		if batch.MerchantNumber != merchant || batch.DeviceID != device {
			continue
		}
		if last == nil || batch.ID > last.ID {
			b := batch
			last = &b
		}
	}
	return last, nil
}

func (u *memoryUnit) GetOpenBatch(_ context.Context, merchant, device string) (*OpenBatch, error) {
	batch, ok := u.work.open[deviceKey{merchant, device}]
	if !ok {
		return nil, nil
	}
	return &batch, nil
}

func (u *memoryUnit) CreateBatch(_ context.Context, merchant, device, batchNo string) (*OpenBatch, error) {
	key := deviceKey{merchant, device}
	if _, ok := u.work.open[key]; ok {
		return nil, ErrConflict
	}
	batch := OpenBatch{
		ID:             u.work.nextID(),
		MerchantNumber: merchant,
		DeviceID:       device,
		BatchNo:        batchNo,
		DateOpen:       u.storage.now(),
	}
	u.work.open[key] = batch
	return &batch, nil
}

func (u *memoryUnit) GetBatchRecord(_ context.Context, batchID int64, itemNo string) (*BatchRecord, error) {
	rec, ok := u.work.records[itemKey{batchID, itemNo}]
	if !ok {
		return nil, nil
	}
	return &rec, nil
}

func (u *memoryUnit) PutBatchRecord(_ context.Context, rec *BatchRecord, expectedRevision string) error {
	key := itemKey{rec.BatchID, rec.ItemNo}
	stored, ok := u.work.records[key]
	switch {
	case expectedRevision == "" && ok:
		return ErrConflict
	case expectedRevision != "" && (!ok || stored.RevisionNo != expectedRevision):
		return ErrConflict
	}
	if rec.ID == 0 {
		rec.ID = u.work.nextID()
	}
	u.work.records[key] = *rec
	return nil
}

func (u *memoryUnit) QueryBatchItems(_ context.Context, batchID int64) ([]BatchRecord, error) {
	var records []BatchRecord
	for key, rec := range u.work.records {
		if key.batchID == batchID {
			records = append(records, rec)
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].ItemNo < records[j].ItemNo })
	return records, nil
}

func (u *memoryUnit) GetAuthorization(_ context.Context, id int64) (*Authorization, error) {
	auth, ok := u.work.authorizations[id]
	if !ok {
		return nil, nil
	}
	return &auth, nil
}

func (u *memoryUnit) PutAuthorization(_ context.Context, auth *Authorization) error {
	if auth.ID == 0 {
		auth.ID = u.work.nextID()
	}
	u.work.authorizations[auth.ID] = *auth
	return nil
}

func (u *memoryUnit) QueryAuthorization(_ context.Context, merchant, authCode string) ([]Authorization, error) {
	var auths []Authorization
	for _, auth := range u.work.authorizations {
		if auth.MerchantNumber == merchant && auth.AuthorizationCode == authCode {
			auths = append(auths, auth)
		}
	}
	sort.Slice(auths, func(i, j int) bool { return auths[i].ID < auths[j].ID })
	return auths, nil
}

func (u *memoryUnit) CloseBatch(_ context.Context, batch *OpenBatch, credit, debit Totals) (*ClosedBatch, error) {
	key := deviceKey{batch.MerchantNumber, batch.DeviceID}
	stored, ok := u.work.open[key]
	if !ok || stored.ID != batch.ID {
		return nil, ErrConflict
	}
	closed := newClosedBatch(&stored, credit, debit, u.storage.now())
	delete(u.work.open, key)
	u.work.closed[closed.ID] = *closed
	return closed, nil
}

func (u *memoryUnit) Save(_ context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	u.storage.state = u.work
	u.storage.mu.Unlock()
	return nil
}

func (u *memoryUnit) Discard() {
	if u.done {
		return
	}
	u.done = true
	u.storage.mu.Unlock()
}
