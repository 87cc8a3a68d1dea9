package repo

import (
	"time"

	"github.com/shopspring/decimal"
)

type Authorization struct {
	ID                int64           `gorm:"primaryKey" json:"id"`
	MerchantNumber    string          `gorm:"size:20;index:idx_authorization_merchant_code" json:"merchant_number"`
	AuthorizationCode string          `gorm:"size:6;index:idx_authorization_merchant_code" json:"authorization_code"`
	IsCredit          bool            `json:"is_credit"`
	IsCaptured        bool            `gorm:"index:idx_authorization_sweep" json:"is_captured"`
	CardHash          string          `gorm:"size:32" json:"card_hash"`
	Date              time.Time       `gorm:"autoCreateTime:false;index:idx_authorization_sweep" json:"date"`
	Amount            decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
}

func (Authorization) TableName() string {
	return "authorization"
}

type OpenBatch struct {
	ID             int64     `gorm:"primaryKey" json:"id"`
	MerchantNumber string    `gorm:"size:20;uniqueIndex:uq_open_batch_device" json:"merchant_number"`
	DeviceID       string    `gorm:"size:8;uniqueIndex:uq_open_batch_device" json:"device_id"`
	BatchNo        string    `gorm:"size:1" json:"batch_no"`
	DateOpen       time.Time `gorm:"autoCreateTime:false" json:"date_open"`
}

func (OpenBatch) TableName() string {
	return "open_batch"
}

type ClosedBatch struct {
	ID             int64           `gorm:"primaryKey;autoIncrement:false" json:"id"`
	MerchantNumber string          `gorm:"size:20;index:idx_closed_batch_device" json:"merchant_number"`
	DeviceID       string          `gorm:"size:8;index:idx_closed_batch_device" json:"device_id"`
	BatchNo        string          `gorm:"size:1" json:"batch_no"`
	DateOpen       time.Time       `gorm:"autoCreateTime:false" json:"date_open"`
	DateClosed     time.Time       `gorm:"autoCreateTime:false" json:"date_closed"`
	CreditCount    int             `json:"credit_count"`
	DebitCount     int             `json:"debit_count"`
	CreditAmount   decimal.Decimal `gorm:"type:decimal(12,2)" json:"credit_amount"`
	DebitAmount    decimal.Decimal `gorm:"type:decimal(12,2)" json:"debit_amount"`
}

func (ClosedBatch) TableName() string {
	return "closed_batch"
}

type BatchRecord struct {
	ID         int64           `gorm:"primaryKey" json:"id"`
	BatchID    int64           `gorm:"uniqueIndex:uq_batch_record_item" json:"batch_id"`
	AuthID     int64           `json:"auth_id"`
	ItemNo     string          `gorm:"size:3;uniqueIndex:uq_batch_record_item" json:"item_no"`
	RevisionNo string          `gorm:"size:1" json:"revision_no"`
	TxnCode    string          `gorm:"size:1" json:"txn_code"`
	IsCredit   bool            `json:"is_credit"`
	Amount     decimal.Decimal `gorm:"type:decimal(12,2)" json:"amount"`
}

func (BatchRecord) TableName() string {
	return "batch_record"
}

// Totals is one side (credit or debit) of a batch settlement.
type Totals struct {
	Count  int
	Amount decimal.Decimal
}
