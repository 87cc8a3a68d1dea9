package processor

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/alfianX/fdms-gateway/internal/repo"
	"github.com/alfianX/fdms-gateway/pkg/fdms"
	f "github.com/alfianX/fdms-gateway/pkg/function"
	"github.com/sirupsen/logrus"
)

// Notifier is told about every batch that reached the closed state and was committed.
type Notifier interface {
	BatchClosed(ctx context.Context, batch *repo.ClosedBatch) error
}

type Processor struct {
	storage  repo.Storage
	log      *logrus.Logger
	notifier Notifier
	now      func() time.Time
}

type Option func(*Processor)

func WithNotifier(n Notifier) Option {
	return func(p *Processor) {
		p.notifier = n
	}
}

func WithClock(now func() time.Time) Option {
	return func(p *Processor) {
		p.now = now
	}
}

func New(storage repo.Storage, log *logrus.Logger, opts ...Option) *Processor {
	p := &Processor{
		storage: storage,
		log:     log,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Process validates and executes one transaction inside its own unit of work.
// It never fails: every error is turned into a negative response.
func (p *Processor) Process(ctx context.Context, hdr fdms.Header, txn fdms.Transaction) (resp fdms.Response) {
	defer func() {
		if r := recover(); r != nil {
			p.log.Errorf("processor -> panic on %s from %s/%s: %v", hdr.TxnCode, hdr.MerchantNumber, hdr.DeviceID, r)
			resp = negative(txn, CodeError)
		}
	}()

	resp, retry := p.process(ctx, hdr, txn, true)
	if retry {
		// batch dibuka sesi lain setelah kita membaca; ulangi dengan batch yang sudah di-commit
		p.log.Infof("processor -> %s from %s/%s retried after a concurrent batch open", hdr.TxnCode, hdr.MerchantNumber, hdr.DeviceID)
		resp, _ = p.process(ctx, hdr, txn, false)
	}
	return resp
}

// openingUnit remembers whether the unit tried to open a batch.
type openingUnit struct {
	repo.UnitOfWork
	opened bool
}

func (u *openingUnit) CreateBatch(ctx context.Context, merchant, device, batchNo string) (*repo.OpenBatch, error) {
	u.opened = true
	return u.UnitOfWork.CreateBatch(ctx, merchant, device, batchNo)
}

// process runs txn in one unit of work. When retryable, retry reports that the
// unit opened a batch and lost against a concurrent open of the same device.
func (p *Processor) process(ctx context.Context, hdr fdms.Header, txn fdms.Transaction, retryable bool) (resp fdms.Response, retry bool) {
	begun, err := p.storage.Begin(ctx)
	if err != nil {
		return p.failure(hdr, txn, fmt.Errorf("begin: %w", err)), false
	}
	uow := &openingUnit{UnitOfWork: begun}
	defer uow.Discard()
	lost := func(err error) bool {
		return retryable && uow.opened && errors.Is(err, repo.ErrConflict)
	}

	resp, closed, err := p.dispatch(ctx, uow, hdr, txn)
	if err != nil {
		if lost(err) {
			return resp, true
		}
		return p.failure(hdr, txn, err), false
	}

	if err := uow.Save(ctx); err != nil {
		if lost(err) {
			return resp, true
		}
		if closed != nil {
			err = &BusinessError{Code: CodeCloseUnavailable, Err: err}
		}
		return p.failure(hdr, txn, fmt.Errorf("save: %w", err)), false
	}

	if closed != nil && p.notifier != nil {
		if err := p.notifier.BatchClosed(ctx, closed); err != nil {
			p.log.Errorf("processor -> notify batch %d closed: %v", closed.ID, err)
		}
	}
	return resp, false
}

func (p *Processor) dispatch(ctx context.Context, uow repo.UnitOfWork, hdr fdms.Header, txn fdms.Transaction) (fdms.Response, *repo.ClosedBatch, error) {
	switch t := txn.(type) {
	case *fdms.DepositInquiry:
		resp, err := p.depositInquiry(ctx, uow, hdr)
		return resp, nil, err
	case fdms.MonetaryTransaction:
		resp, err := p.monetary(ctx, uow, hdr, t)
		return resp, nil, err
	case *fdms.BatchClose:
		return p.reconcile(ctx, uow, hdr, t)
	case *fdms.RevisionInquiry:
		return fdms.Response{}, nil, fail(CodeInvalidTranCode, "revision inquiry outside of a batch close")
	case *fdms.NegativeResponse:
		return fdms.Response{ActionCode: fdms.ActionApproved, ResponseCode: fdms.ResponsePositive, Kind: fdms.KindText}, nil, nil
	}
	return fdms.Response{}, nil, fail(CodeInvalidTranCode, "unexpected transaction %T", txn)
}

func (p *Processor) failure(hdr fdms.Header, txn fdms.Transaction, err error) fdms.Response {
	code := CodeError
	var be *BusinessError
	switch {
	case errors.As(err, &be):
		code = be.Code
		p.log.Warnf("processor -> %s from %s/%s rejected: %v", hdr.TxnCode, hdr.MerchantNumber, hdr.DeviceID, err)
	case errors.Is(err, repo.ErrConflict):
		code = CodeInvalidBatchSeq
		p.log.Warnf("processor -> %s from %s/%s lost a concurrent update: %v", hdr.TxnCode, hdr.MerchantNumber, hdr.DeviceID, err)
	default:
		p.log.Errorf("processor -> %s from %s/%s: %v", hdr.TxnCode, hdr.MerchantNumber, hdr.DeviceID, err)
	}
	return negative(txn, code)
}

func negative(txn fdms.Transaction, code string) fdms.Response {
	resp := fdms.Response{
		ActionCode:   fdms.ActionNegative,
		ResponseCode: fdms.ResponseNegative,
		BatchNo:      "0",
		ItemNo:       "000",
		Kind:         fdms.KindText,
		Text:         code,
	}
	switch t := txn.(type) {
	case fdms.MonetaryTransaction:
		resp.BatchNo = t.Base().BatchNo
		resp.ItemNo = t.Base().ItemNo
	case *fdms.BatchClose:
		resp.BatchNo = t.BatchNo
		resp.ItemNo = t.ItemNo
	}
	return resp
}

func approved(m *fdms.Monetary, text string) fdms.Response {
	return fdms.Response{
		ActionCode:    fdms.ActionApproved,
		ResponseCode:  fdms.ResponsePositive,
		BatchNo:       m.BatchNo,
		ItemNo:        m.ItemNo,
		Kind:          fdms.KindCredit,
		Text:          text,
		TransactionID: m.TransactionID,
	}
}

func (p *Processor) depositInquiry(ctx context.Context, uow repo.UnitOfWork, hdr fdms.Header) (fdms.Response, error) {
	last, err := uow.LastClosedBatch(ctx, hdr.MerchantNumber, hdr.DeviceID)
	if err != nil {
		return fdms.Response{}, fmt.Errorf("deposit inquiry -> last closed batch: %w", err)
	}
	if last == nil {
		last = &repo.ClosedBatch{BatchNo: "0"}
	}

	return fdms.Response{
		ActionCode:    fdms.ActionApproved,
		ResponseCode:  fdms.ResponsePositive,
		BatchNo:       last.BatchNo,
		ItemNo:        fmt.Sprintf("%03d", last.CreditCount+last.DebitCount),
		Kind:          fdms.KindBatch,
		Text:          fmt.Sprintf("CR %03d %s", last.CreditCount, last.CreditAmount.StringFixed(2)),
		Text2:         fmt.Sprintf("DB %03d %s", last.DebitCount, last.DebitAmount.StringFixed(2)),
		BatchIDNumber: strconv.FormatInt(last.ID, 10),
	}, nil
}

func (p *Processor) monetary(ctx context.Context, uow repo.UnitOfWork, hdr fdms.Header, t fdms.MonetaryTransaction) (fdms.Response, error) {
	m := t.Base()
	code := hdr.TxnCode
	debit := m.CardType == "D"

	if err := checkSequence(code, m); err != nil {
		return fdms.Response{}, err
	}
	if debit {
		if err := checkDebit(code, t); err != nil {
			return fdms.Response{}, err
		}
	}

	if code == fdms.TxnAuthOnly {
		card, err := t.Card()
		if err != nil {
			return fdms.Response{}, fmt.Errorf("auth only -> %w", err)
		}
		auth, err := p.authorize(ctx, uow, hdr, m, card, debit, debit)
		if err != nil {
			return fdms.Response{}, err
		}
		p.log.Infof("processor -> auth only %s approved for %s card %s", auth.AuthorizationCode, hdr.MerchantNumber, f.MaskPan(card.PAN))
		return approved(m, "APPROVED "+auth.AuthorizationCode), nil
	}

	batch, err := p.resolveBatch(ctx, uow, hdr, code, m)
	if err != nil {
		return fdms.Response{}, err
	}

	rec, err := uow.GetBatchRecord(ctx, batch.ID, m.ItemNo)
	if err != nil {
		return fdms.Response{}, fmt.Errorf("get batch record: %w", err)
	}
	expected := ""
	if rec == nil {
		if m.RevisionNo != "0" {
			return fdms.Response{}, fail(CodeInvalidBatchSeq, "item %s not in batch, revision %s", m.ItemNo, m.RevisionNo)
		}
	} else {
		prev, _ := strconv.Atoi(rec.RevisionNo)
		next, err := strconv.Atoi(m.RevisionNo)
		if err != nil || next != prev+1 {
			return fdms.Response{}, fail(CodeInvalidBatchSeq, "item %s revision %s after stored %s", m.ItemNo, m.RevisionNo, rec.RevisionNo)
		}
		expected = rec.RevisionNo
	}

	switch {
	case code.Void():
		return p.void(ctx, uow, code, m, rec, expected)
	case code == fdms.TxnSale || code == fdms.TxnReturn:
		return p.saleOrReturn(ctx, uow, hdr, t, batch, rec, expected, debit)
	case code == fdms.TxnTicketOnly:
		return p.ticketOnly(ctx, uow, hdr, m, batch, rec)
	}
	return fdms.Response{}, fail(CodeInvalidTranCode, "transaction code %s", code)
}

func checkSequence(code fdms.TxnCode, m *fdms.Monetary) error {
	if code == fdms.TxnAuthOnly {
		if m.ItemNo != "000" || m.BatchNo != "0" {
			return fail(CodeInvalidBatchSeq, "auth only must carry batch 0 item 000, got %s/%s", m.BatchNo, m.ItemNo)
		}
	} else {
		item, err := itemNumber(m.ItemNo)
		if err != nil || item < 1 || item > 999 {
			return fail(CodeInvalidBatchSeq, "item number %q out of range", m.ItemNo)
		}
	}

	switch {
	case code.Void() && m.RevisionNo == "0":
		return fail(CodeInvalidBatchSeq, "%s with revision 0", code)
	case (code == fdms.TxnTicketOnly || code == fdms.TxnAuthOnly) && m.RevisionNo != "0":
		return fail(CodeInvalidBatchSeq, "%s with revision %s", code, m.RevisionNo)
	}
	return nil
}

func checkDebit(code fdms.TxnCode, t fdms.MonetaryTransaction) error {
	m := t.Base()
	if code != fdms.TxnSale {
		return fail(CodeInvalidTranCode, "debit card not allowed for %s", code)
	}
	if _, swiped := t.(*fdms.SwipedMonetary); !swiped {
		return fail(CodeInvalidTranCode, "debit card must be swiped")
	}
	if m.RevisionNo != "0" {
		return fail(CodeInvalidTranCode, "debit sale cannot be revised")
	}
	if m.PinBlock == "" || m.SmidBlock == "" {
		return fail(CodeInvalidPin, "debit sale without pin or smid block")
	}
	return nil
}

// resolveBatch returns the open batch of the device, opening one when allowed.
func (p *Processor) resolveBatch(ctx context.Context, uow repo.UnitOfWork, hdr fdms.Header, code fdms.TxnCode, m *fdms.Monetary) (*repo.OpenBatch, error) {
	batch, err := uow.GetOpenBatch(ctx, hdr.MerchantNumber, hdr.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("get open batch: %w", err)
	}
	if batch != nil {
		if batch.BatchNo != m.BatchNo {
			return nil, fail(CodeInvalidBatchSeq, "batch %s is open, got %s", batch.BatchNo, m.BatchNo)
		}
		return batch, nil
	}

	if code.Void() {
		return nil, fail(CodeInvalidBatchSeq, "%s without an open batch", code)
	}
	last, err := uow.LastClosedBatch(ctx, hdr.MerchantNumber, hdr.DeviceID)
	if err != nil {
		return nil, fmt.Errorf("last closed batch: %w", err)
	}
	if last != nil && last.BatchNo == m.BatchNo {
		return nil, fail(CodeInvalidBatchSeq, "batch %s was just closed", m.BatchNo)
	}

	batch, err = uow.CreateBatch(ctx, hdr.MerchantNumber, hdr.DeviceID, m.BatchNo)
	if err != nil {
		return nil, fmt.Errorf("create batch: %w", err)
	}
	p.log.Infof("processor -> batch %s opened for %s/%s", batch.BatchNo, hdr.MerchantNumber, hdr.DeviceID)
	return batch, nil
}

// authorize stores a new authorization; its code is the zero padded id.
func (p *Processor) authorize(ctx context.Context, uow repo.UnitOfWork, hdr fdms.Header, m *fdms.Monetary, card fdms.CardInfo, debit, captured bool) (*repo.Authorization, error) {
	auth := &repo.Authorization{
		MerchantNumber: hdr.MerchantNumber,
		IsCredit:       !debit,
		IsCaptured:     captured,
		CardHash:       card.Hash(),
		Date:           p.now(),
		Amount:         m.TotalAmount,
	}
	if err := uow.PutAuthorization(ctx, auth); err != nil {
		return nil, fmt.Errorf("put authorization: %w", err)
	}
	auth.AuthorizationCode = fmt.Sprintf("%06d", auth.ID)
	if err := uow.PutAuthorization(ctx, auth); err != nil {
		return nil, fmt.Errorf("put authorization code: %w", err)
	}
	return auth, nil
}

func (p *Processor) void(ctx context.Context, uow repo.UnitOfWork, code fdms.TxnCode, m *fdms.Monetary, rec *repo.BatchRecord, expected string) (fdms.Response, error) {
	if rec == nil || rec.TxnCode != codeString(code.Voided()) {
		return fdms.Response{}, fail(CodeUnmatchedVoid, "%s on item %s", code, m.ItemNo)
	}
	rec.TxnCode = codeString(code)
	rec.RevisionNo = m.RevisionNo
	if err := uow.PutBatchRecord(ctx, rec, expected); err != nil {
		return fdms.Response{}, fmt.Errorf("put batch record: %w", err)
	}
	return approved(m, "VOIDED"), nil
}

func (p *Processor) saleOrReturn(ctx context.Context, uow repo.UnitOfWork, hdr fdms.Header, t fdms.MonetaryTransaction, batch *repo.OpenBatch, rec *repo.BatchRecord, expected string, debit bool) (fdms.Response, error) {
	m := t.Base()
	code := hdr.TxnCode
	prefix := "AUTH/TKT "
	if code == fdms.TxnReturn {
		prefix = "RETURN "
	}

	card, err := t.Card()
	if err != nil {
		return fdms.Response{}, fmt.Errorf("%s -> %w", code, err)
	}

	if rec == nil {
		auth, err := p.authorize(ctx, uow, hdr, m, card, debit, true)
		if err != nil {
			return fdms.Response{}, err
		}
		rec = &repo.BatchRecord{
			BatchID:    batch.ID,
			AuthID:     auth.ID,
			ItemNo:     m.ItemNo,
			RevisionNo: m.RevisionNo,
			TxnCode:    codeString(code),
			IsCredit:   auth.IsCredit,
			Amount:     m.TotalAmount,
		}
		if err := uow.PutBatchRecord(ctx, rec, ""); err != nil {
			return fdms.Response{}, fmt.Errorf("put batch record: %w", err)
		}
		return approved(m, prefix+auth.AuthorizationCode), nil
	}

	// resubmission dari item yang sudah ada
	if rec.TxnCode != codeString(code) {
		return fdms.Response{}, fail(CodeInvalidTranCode, "item %s stored as %s, got %s", m.ItemNo, rec.TxnCode, code)
	}
	if m.AuthorizationCode == "" {
		return fdms.Response{}, fail(CodeInvalidAuthCode, "resubmitted item %s without authorization code", m.ItemNo)
	}
	auth, err := uow.GetAuthorization(ctx, rec.AuthID)
	if err != nil {
		return fdms.Response{}, fmt.Errorf("get authorization: %w", err)
	}
	if auth == nil || auth.AuthorizationCode != m.AuthorizationCode || auth.CardHash != card.Hash() {
		return fdms.Response{}, fail(CodeInvalidAuthCode, "authorization %s does not match item %s", m.AuthorizationCode, m.ItemNo)
	}

	auth.Amount = m.TotalAmount
	if err := uow.PutAuthorization(ctx, auth); err != nil {
		return fdms.Response{}, fmt.Errorf("put authorization: %w", err)
	}
	rec.RevisionNo = m.RevisionNo
	rec.Amount = m.TotalAmount
	if err := uow.PutBatchRecord(ctx, rec, expected); err != nil {
		return fdms.Response{}, fmt.Errorf("put batch record: %w", err)
	}
	return approved(m, prefix+auth.AuthorizationCode), nil
}

func (p *Processor) ticketOnly(ctx context.Context, uow repo.UnitOfWork, hdr fdms.Header, m *fdms.Monetary, batch *repo.OpenBatch, rec *repo.BatchRecord) (fdms.Response, error) {
	if m.AuthorizationCode == "" {
		return fdms.Response{}, fail(CodeInvalidAuthCode, "ticket only without authorization code")
	}
	if rec != nil {
		return fdms.Response{}, fail(CodeInvalidTranCode, "item %s already in batch", m.ItemNo)
	}

	auths, err := uow.QueryAuthorization(ctx, hdr.MerchantNumber, m.AuthorizationCode)
	if err != nil {
		return fdms.Response{}, fmt.Errorf("query authorization: %w", err)
	}
	var auth *repo.Authorization
	for i := range auths {
		if !auths[i].IsCaptured {
			auth = &auths[i]
			break
		}
	}
	if auth == nil {
		return fdms.Response{}, fail(CodeInvalidAuthCode, "no open authorization %s for %s", m.AuthorizationCode, hdr.MerchantNumber)
	}

	auth.IsCaptured = true
	if err := uow.PutAuthorization(ctx, auth); err != nil {
		return fdms.Response{}, fmt.Errorf("put authorization: %w", err)
	}
	rec = &repo.BatchRecord{
		BatchID:    batch.ID,
		AuthID:     auth.ID,
		ItemNo:     m.ItemNo,
		RevisionNo: m.RevisionNo,
		TxnCode:    codeString(fdms.TxnTicketOnly),
		IsCredit:   auth.IsCredit,
		Amount:     m.TotalAmount,
	}
	if err := uow.PutBatchRecord(ctx, rec, ""); err != nil {
		return fdms.Response{}, fmt.Errorf("put batch record: %w", err)
	}
	return approved(m, "TKT CODE "+auth.AuthorizationCode), nil
}

func codeString(c fdms.TxnCode) string {
	return string(rune(c))
}
