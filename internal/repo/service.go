package repo

import (
	"context"
	"errors"
	"time"

	"github.com/go-sql-driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func LastClosedBatchGet(ctx context.Context, db *gorm.DB, merchant, device string) (*ClosedBatch, error) {
	var batch ClosedBatch
	result := db.WithContext(ctx).
		Where("merchant_number = ? AND device_id = ?", merchant, device).
		Order("id DESC").
		First(&batch)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &batch, nil
}

// OpenBatchGet memakai locking read supaya baris yang baru di-commit sesi lain tetap terlihat
func OpenBatchGet(ctx context.Context, db *gorm.DB, merchant, device string) (*OpenBatch, error) {
	var batch OpenBatch
	result := db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("merchant_number = ? AND device_id = ?", merchant, device).
		First(&batch)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &batch, nil
}

// ER_LOCK_DEADLOCK, raised when two locking reads of a missing open batch both insert it
const mysqlDeadlock = 1213

func OpenBatchCreate(ctx context.Context, db *gorm.DB, data *OpenBatch) error {
	result := db.WithContext(ctx).Create(data)
	return batchConflict(result.Error)
}

// batchConflict maps the ways MySQL reports a lost race on the open batch to ErrConflict.
func batchConflict(err error) error {
	var myErr *mysql.MySQLError
	switch {
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return ErrConflict
	case errors.As(err, &myErr) && myErr.Number == mysqlDeadlock:
		return ErrConflict
	}
	return err
}

func BatchRecordGet(ctx context.Context, db *gorm.DB, batchID int64, itemNo string) (*BatchRecord, error) {
	var rec BatchRecord
	result := db.WithContext(ctx).Where("batch_id = ? AND item_no = ?", batchID, itemNo).First(&rec)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &rec, nil
}

func BatchRecordSave(ctx context.Context, db *gorm.DB, data *BatchRecord, expectedRevision string) error {
	if expectedRevision == "" {
		result := db.WithContext(ctx).Create(data)
		if errors.Is(result.Error, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return result.Error
	}

	result := db.WithContext(ctx).Model(&BatchRecord{}).
		Where("id = ? AND revision_no = ?", data.ID, expectedRevision).
		Updates(map[string]interface{}{
			"auth_id":     data.AuthID,
			"revision_no": data.RevisionNo,
			"txn_code":    data.TxnCode,
			"is_credit":   data.IsCredit,
			"amount":      data.Amount,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

func BatchRecordList(ctx context.Context, db *gorm.DB, batchID int64) ([]BatchRecord, error) {
	var records []BatchRecord
	result := db.WithContext(ctx).Where("batch_id = ?", batchID).Order("item_no").Find(&records)

	return records, result.Error
}

func AuthorizationGet(ctx context.Context, db *gorm.DB, id int64) (*Authorization, error) {
	var auth Authorization
	result := db.WithContext(ctx).Where("id = ?", id).First(&auth)

	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &auth, nil
}

func AuthorizationSave(ctx context.Context, db *gorm.DB, data *Authorization) error {
	if data.ID == 0 {
		return db.WithContext(ctx).Create(data).Error
	}
	return db.WithContext(ctx).Save(data).Error
}

func AuthorizationList(ctx context.Context, db *gorm.DB, merchant, authCode string) ([]Authorization, error) {
	var auths []Authorization
	result := db.WithContext(ctx).
		Where("merchant_number = ? AND authorization_code = ?", merchant, authCode).
		Order("id").
		Find(&auths)

	return auths, result.Error
}

func AuthorizationPurge(ctx context.Context, db *gorm.DB, before time.Time) (int64, error) {
	result := db.WithContext(ctx).
		Where("is_captured = ? AND date < ?", false, before).
		Delete(&Authorization{})

	return result.RowsAffected, result.Error
}

func BatchClose(ctx context.Context, db *gorm.DB, batch *OpenBatch, closed *ClosedBatch) error {
	if err := db.WithContext(ctx).Create(closed).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return err
	}

	result := db.WithContext(ctx).Delete(&OpenBatch{}, batch.ID)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// GormStorage is the relational Storage backed by MySQL.
type GormStorage struct {
	db  *gorm.DB
	now func() time.Time
}

func NewGormStorage(db *gorm.DB) *GormStorage {
	return &GormStorage{db: db, now: time.Now}
}

func (s *GormStorage) Begin(ctx context.Context) (UnitOfWork, error) {
	tx := s.db.WithContext(ctx).Begin()
	if tx.Error != nil {
		return nil, tx.Error
	}
	return &gormUnit{tx: tx, now: s.now}, nil
}

func (s *GormStorage) PurgeAuthorizations(ctx context.Context, before time.Time) (int64, error) {
	return AuthorizationPurge(ctx, s.db, before)
}

type gormUnit struct {
	tx   *gorm.DB
	now  func() time.Time
	done bool
}

func (u *gormUnit) LastClosedBatch(ctx context.Context, merchant, device string) (*ClosedBatch, error) {
	return LastClosedBatchGet(ctx, u.tx, merchant, device)
}

func (u *gormUnit) GetOpenBatch(ctx context.Context, merchant, device string) (*OpenBatch, error) {
	return OpenBatchGet(ctx, u.tx, merchant, device)
}

func (u *gormUnit) CreateBatch(ctx context.Context, merchant, device, batchNo string) (*OpenBatch, error) {
	batch := &OpenBatch{
		MerchantNumber: merchant,
		DeviceID:       device,
		BatchNo:        batchNo,
		DateOpen:       u.now(),
	}
	if err := OpenBatchCreate(ctx, u.tx, batch); err != nil {
		return nil, err
	}
	return batch, nil
}

func (u *gormUnit) GetBatchRecord(ctx context.Context, batchID int64, itemNo string) (*BatchRecord, error) {
	return BatchRecordGet(ctx, u.tx, batchID, itemNo)
}

func (u *gormUnit) PutBatchRecord(ctx context.Context, rec *BatchRecord, expectedRevision string) error {
	return BatchRecordSave(ctx, u.tx, rec, expectedRevision)
}

func (u *gormUnit) QueryBatchItems(ctx context.Context, batchID int64) ([]BatchRecord, error) {
	return BatchRecordList(ctx, u.tx, batchID)
}

func (u *gormUnit) GetAuthorization(ctx context.Context, id int64) (*Authorization, error) {
	return AuthorizationGet(ctx, u.tx, id)
}

func (u *gormUnit) PutAuthorization(ctx context.Context, auth *Authorization) error {
	return AuthorizationSave(ctx, u.tx, auth)
}

func (u *gormUnit) QueryAuthorization(ctx context.Context, merchant, authCode string) ([]Authorization, error) {
	return AuthorizationList(ctx, u.tx, merchant, authCode)
}

func (u *gormUnit) CloseBatch(ctx context.Context, batch *OpenBatch, credit, debit Totals) (*ClosedBatch, error) {
	closed := newClosedBatch(batch, credit, debit, u.now())
	if err := BatchClose(ctx, u.tx, batch, closed); err != nil {
		return nil, err
	}
	return closed, nil
}

func (u *gormUnit) Save(ctx context.Context) error {
	if u.done {
		return nil
	}
	u.done = true
	return u.tx.Commit().Error
}

func (u *gormUnit) Discard() {
	if u.done {
		return
	}
	u.done = true
	u.tx.Rollback()
}

func newClosedBatch(batch *OpenBatch, credit, debit Totals, closedAt time.Time) *ClosedBatch {
	return &ClosedBatch{
		ID:             batch.ID,
		MerchantNumber: batch.MerchantNumber,
		DeviceID:       batch.DeviceID,
		BatchNo:        batch.BatchNo,
		DateOpen:       batch.DateOpen,
		DateClosed:     closedAt,
		CreditCount:    credit.Count,
		DebitCount:     debit.Count,
		CreditAmount:   credit.Amount,
		DebitAmount:    debit.Amount,
	}
}
