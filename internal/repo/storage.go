package repo

import (
	"context"
	"errors"
	"time"
)

// ErrConflict is returned when a write loses against a concurrent change:
// an open batch already exists, or a batch record's stored revision moved on.
var ErrConflict = errors.New("repo: conflicting update")

// Store is the set of operations available inside one unit of work.
// Lookups return nil without error when nothing matches.
type Store interface {
	LastClosedBatch(ctx context.Context, merchant, device string) (*ClosedBatch, error)
	GetOpenBatch(ctx context.Context, merchant, device string) (*OpenBatch, error)
	// CreateBatch fails with ErrConflict, here or at Save, when an open batch already exists
	// for (merchant, device). Callers re-run the unit to pick up the committed batch.
	CreateBatch(ctx context.Context, merchant, device, batchNo string) (*OpenBatch, error)
	GetBatchRecord(ctx context.Context, batchID int64, itemNo string) (*BatchRecord, error)
	// PutBatchRecord stores rec if the stored revision still equals expectedRevision.
	// An empty expectedRevision means the record must not exist yet.
	PutBatchRecord(ctx context.Context, rec *BatchRecord, expectedRevision string) error
	QueryBatchItems(ctx context.Context, batchID int64) ([]BatchRecord, error)
	GetAuthorization(ctx context.Context, id int64) (*Authorization, error)
	// PutAuthorization inserts auth when its ID is zero and assigns the new ID, otherwise updates it.
	PutAuthorization(ctx context.Context, auth *Authorization) error
	QueryAuthorization(ctx context.Context, merchant, authCode string) ([]Authorization, error)
	// CloseBatch replaces the open batch with a closed one carrying the same ID.
	CloseBatch(ctx context.Context, batch *OpenBatch, credit, debit Totals) (*ClosedBatch, error)
}

// UnitOfWork applies all mutations made through it on Save, or none of them.
// Discard after a successful Save is a no-op.
type UnitOfWork interface {
	Store
	Save(ctx context.Context) error
	Discard()
}

type Storage interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// Sweeper is implemented by storages that can drop stale pre-authorizations.
type Sweeper interface {
	PurgeAuthorizations(ctx context.Context, before time.Time) (int64, error)
}
