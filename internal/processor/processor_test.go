package processor

import (
	"context"
	"strings"
	"testing"

	"github.com/alfianX/fdms-gateway/internal/repo"
	"github.com/alfianX/fdms-gateway/pkg/fdms"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	track2 = ";4393410316009875=170612110000762?"
	track1 = "%B4393410316009875^KOLUPAEV/ SERGEY^17061211000000762000000?"
)

func newProcessor(t *testing.T, opts ...Option) (*Processor, *repo.MemoryStorage) {
	t.Helper()
	log, _ := test.NewNullLogger()
	storage := repo.NewMemoryStorage()
	return New(storage, log, opts...), storage
}

func header(code fdms.TxnCode) fdms.Header {
	return fdms.Header{
		ProtocolType:   '1',
		TerminalID:     "POSHOM",
		MerchantNumber: "1234567890",
		DeviceID:       "0239",
		WCC:            '@',
		TxnType:        fdms.LegOnline,
		TxnCode:        code,
	}
}

func monetary(amount, batch, item, revision string) fdms.Monetary {
	return fdms.Monetary{
		TotalAmount: decimal.RequireFromString(amount),
		InvoiceNo:   "Invoice",
		BatchNo:     batch,
		ItemNo:      item,
		RevisionNo:  revision,
	}
}

func keyed(m fdms.Monetary) *fdms.KeyedMonetary {
	return &fdms.KeyedMonetary{Monetary: m, AccountNo: "377481701087006", ExpDate: "0314"}
}

func swiped(m fdms.Monetary, track string) *fdms.SwipedMonetary {
	return &fdms.SwipedMonetary{Monetary: m, TrackData: track}
}

func authCode(t *testing.T, resp fdms.Response, prefix string) string {
	t.Helper()
	require.True(t, strings.HasPrefix(resp.Text, prefix), "response text %q", resp.Text)
	return strings.TrimSpace(strings.TrimPrefix(resp.Text, prefix))
}

func assertRejected(t *testing.T, resp fdms.Response, code string) {
	t.Helper()
	assert.False(t, resp.Positive())
	assert.Equal(t, fdms.ActionNegative, resp.ActionCode)
	assert.Equal(t, code, resp.Text)
}

func TestAuthCaptureVoid(t *testing.T) {
	ctx := context.Background()
	p, storage := newProcessor(t)

	resp := p.Process(ctx, header(fdms.TxnAuthOnly), keyed(monetary("10.00", "0", "000", "0")))
	require.True(t, resp.Positive(), resp.Text)
	assert.Equal(t, fdms.KindCredit, resp.Kind)
	code := authCode(t, resp, "APPROVED ")
	assert.Len(t, code, 6)

	ticket := keyed(monetary("10.00", "1", "001", "0"))
	ticket.AuthorizationCode = code
	resp = p.Process(ctx, header(fdms.TxnTicketOnly), ticket)
	require.True(t, resp.Positive(), resp.Text)
	assert.Equal(t, "TKT CODE "+code, resp.Text)

	uow, err := storage.Begin(ctx)
	require.NoError(t, err)
	auths, err := uow.QueryAuthorization(ctx, "1234567890", code)
	require.NoError(t, err)
	uow.Discard()
	require.Len(t, auths, 1)
	assert.True(t, auths[0].IsCaptured)

	void := keyed(monetary("10.00", "1", "001", "1"))
	void.AuthorizationCode = code
	resp = p.Process(ctx, header(fdms.TxnVoidTicketOnly), void)
	require.True(t, resp.Positive(), resp.Text)

	// Skenario: kode otorisasi yang sudah di-capture tidak bisa dipakai lagi
	again := keyed(monetary("10.00", "1", "002", "0"))
	again.AuthorizationCode = code
	resp = p.Process(ctx, header(fdms.TxnTicketOnly), again)
	assertRejected(t, resp, CodeInvalidAuthCode)

	missing := keyed(monetary("10.00", "1", "003", "0"))
	resp = p.Process(ctx, header(fdms.TxnTicketOnly), missing)
	assertRejected(t, resp, CodeInvalidAuthCode)
}

func TestSwipedSaleAndReturn(t *testing.T) {
	tests := []struct {
		name   string
		code   fdms.TxnCode
		track  string
		prefix string
	}{
		{name: "SaleTrack1", code: fdms.TxnSale, track: track1, prefix: "AUTH/TKT "},
		{name: "SaleTrack2", code: fdms.TxnSale, track: track2, prefix: "AUTH/TKT "},
		{name: "Return", code: fdms.TxnReturn, track: track2, prefix: "RETURN "},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newProcessor(t)
			m := monetary("10.00", "0", "003", "0")
			m.TransactionID = "TID123"
			resp := p.Process(context.Background(), header(tt.code), swiped(m, tt.track))

			require.True(t, resp.Positive(), resp.Text)
			authCode(t, resp, tt.prefix)
			assert.Equal(t, "0", resp.BatchNo)
			assert.Equal(t, "003", resp.ItemNo)
			assert.Equal(t, "TID123", resp.TransactionID)
		})
	}
}

func TestRevisionSequence(t *testing.T) {
	ctx := context.Background()
	p, _ := newProcessor(t)

	resp := p.Process(ctx, header(fdms.TxnSale), swiped(monetary("10.00", "1", "001", "0"), track2))
	require.True(t, resp.Positive(), resp.Text)
	code := authCode(t, resp, "AUTH/TKT ")

	skip := swiped(monetary("12.00", "1", "001", "2"), track2)
	skip.AuthorizationCode = code
	assertRejected(t, p.Process(ctx, header(fdms.TxnSale), skip), CodeInvalidBatchSeq)

	noAuth := swiped(monetary("12.00", "1", "001", "1"), track2)
	assertRejected(t, p.Process(ctx, header(fdms.TxnSale), noAuth), CodeInvalidAuthCode)

	otherCard := swiped(monetary("12.00", "1", "001", "1"), ";5500000000000004=250612110000762?")
	otherCard.AuthorizationCode = code
	assertRejected(t, p.Process(ctx, header(fdms.TxnSale), otherCard), CodeInvalidAuthCode)

	asReturn := swiped(monetary("12.00", "1", "001", "1"), track2)
	asReturn.AuthorizationCode = code
	assertRejected(t, p.Process(ctx, header(fdms.TxnReturn), asReturn), CodeInvalidTranCode)

	next := swiped(monetary("12.00", "1", "001", "1"), track2)
	next.AuthorizationCode = code
	resp = p.Process(ctx, header(fdms.TxnSale), next)
	require.True(t, resp.Positive(), resp.Text)
	assert.Equal(t, "AUTH/TKT "+code, resp.Text)

	// revisi yang sama dikirim ulang harus ditolak
	assertRejected(t, p.Process(ctx, header(fdms.TxnSale), next), CodeInvalidBatchSeq)
}

func TestVoidMatching(t *testing.T) {
	ctx := context.Background()
	p, _ := newProcessor(t)

	require.True(t, p.Process(ctx, header(fdms.TxnReturn), swiped(monetary("5.00", "1", "001", "0"), track2)).Positive())

	resp := p.Process(ctx, header(fdms.TxnVoidSale), swiped(monetary("5.00", "1", "001", "1"), track2))
	assertRejected(t, resp, CodeUnmatchedVoid)
	assert.Equal(t, "001", resp.ItemNo)

	resp = p.Process(ctx, header(fdms.TxnVoidReturn), swiped(monetary("5.00", "1", "001", "1"), track2))
	require.True(t, resp.Positive(), resp.Text)
	assert.Equal(t, "VOIDED", resp.Text)

	require.True(t, p.Process(ctx, header(fdms.TxnSale), swiped(monetary("7.00", "1", "002", "0"), track2)).Positive())
	require.True(t, p.Process(ctx, header(fdms.TxnVoidSale), swiped(monetary("7.00", "1", "002", "1"), track2)).Positive())

	assertRejected(t, p.Process(ctx, header(fdms.TxnVoidSale), swiped(monetary("7.00", "1", "009", "1"), track2)), CodeInvalidBatchSeq)
}

func TestVoidWithoutOpenBatch(t *testing.T) {
	p, _ := newProcessor(t)
	resp := p.Process(context.Background(), header(fdms.TxnVoidSale), swiped(monetary("7.00", "1", "001", "1"), track2))
	assertRejected(t, resp, CodeInvalidBatchSeq)
}

func TestDebitSale(t *testing.T) {
	ctx := context.Background()

	debit := func(m fdms.Monetary, pin, smid string) fdms.Monetary {
		m.CardType = "D"
		m.PinBlock = pin
		m.SmidBlock = smid
		return m
	}

	t.Run("WithoutPin", func(t *testing.T) {
		p, _ := newProcessor(t)
		resp := p.Process(ctx, header(fdms.TxnSale), swiped(debit(monetary("10.00", "0", "999", "0"), "", "<SMID BLOCK>"), track2))
		assertRejected(t, resp, CodeInvalidPin)
	})

	t.Run("WithoutSmid", func(t *testing.T) {
		p, _ := newProcessor(t)
		resp := p.Process(ctx, header(fdms.TxnSale), swiped(debit(monetary("10.00", "0", "999", "0"), "<PIN BLOCK>", ""), track2))
		assertRejected(t, resp, CodeInvalidPin)
	})

	t.Run("Keyed", func(t *testing.T) {
		p, _ := newProcessor(t)
		resp := p.Process(ctx, header(fdms.TxnSale), keyed(debit(monetary("10.00", "0", "999", "0"), "<PIN BLOCK>", "<SMID BLOCK>")))
		assertRejected(t, resp, CodeInvalidTranCode)
	})

	t.Run("Return", func(t *testing.T) {
		p, _ := newProcessor(t)
		resp := p.Process(ctx, header(fdms.TxnReturn), swiped(debit(monetary("10.00", "0", "999", "0"), "<PIN BLOCK>", "<SMID BLOCK>"), track2))
		assertRejected(t, resp, CodeInvalidTranCode)
	})

	t.Run("Approved", func(t *testing.T) {
		p, storage := newProcessor(t)
		resp := p.Process(ctx, header(fdms.TxnSale), swiped(debit(monetary("10.00", "0", "999", "0"), "<PIN BLOCK>", "<SMID BLOCK>"), track2))
		require.True(t, resp.Positive(), resp.Text)
		code := authCode(t, resp, "AUTH/TKT ")
		assert.Equal(t, "0", resp.BatchNo)
		assert.Equal(t, "999", resp.ItemNo)

		uow, err := storage.Begin(ctx)
		require.NoError(t, err)
		defer uow.Discard()
		auths, err := uow.QueryAuthorization(ctx, "1234567890", code)
		require.NoError(t, err)
		require.Len(t, auths, 1)
		assert.True(t, auths[0].IsCaptured)
		assert.False(t, auths[0].IsCredit)
	})
}

func TestSequenceChecks(t *testing.T) {
	tests := []struct {
		name string
		code fdms.TxnCode
		m    fdms.Monetary
	}{
		{name: "AuthOnlyWithItem", code: fdms.TxnAuthOnly, m: monetary("1.00", "0", "001", "0")},
		{name: "AuthOnlyWithBatch", code: fdms.TxnAuthOnly, m: monetary("1.00", "1", "000", "0")},
		{name: "AuthOnlyRevised", code: fdms.TxnAuthOnly, m: monetary("1.00", "0", "000", "1")},
		{name: "SaleItemZero", code: fdms.TxnSale, m: monetary("1.00", "1", "000", "0")},
		{name: "SaleItemNotNumeric", code: fdms.TxnSale, m: monetary("1.00", "1", "0A1", "0")},
		{name: "SaleItemSigned", code: fdms.TxnSale, m: monetary("1.00", "1", "+01", "0")},
		{name: "SaleItemSpaced", code: fdms.TxnSale, m: monetary("1.00", "1", " 01", "0")},
		{name: "VoidRevisionZero", code: fdms.TxnVoidSale, m: monetary("1.00", "1", "001", "0")},
		{name: "TicketOnlyRevised", code: fdms.TxnTicketOnly, m: monetary("1.00", "1", "001", "1")},
		{name: "NewItemRevised", code: fdms.TxnSale, m: monetary("1.00", "1", "001", "1")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newProcessor(t)
			resp := p.Process(context.Background(), header(tt.code), keyed(tt.m))
			assertRejected(t, resp, CodeInvalidBatchSeq)
		})
	}
}

func TestBatchNumbering(t *testing.T) {
	ctx := context.Background()
	p, _ := newProcessor(t)

	require.True(t, p.Process(ctx, header(fdms.TxnSale), keyed(monetary("1.00", "1", "001", "0"))).Positive())
	assertRejected(t, p.Process(ctx, header(fdms.TxnSale), keyed(monetary("1.00", "2", "002", "0"))), CodeInvalidBatchSeq)

	// device lain punya batch sendiri
	other := header(fdms.TxnSale)
	other.DeviceID = "0240"
	require.True(t, p.Process(ctx, other, keyed(monetary("1.00", "2", "001", "0"))).Positive())
}

func TestDepositInquiryWithoutClosedBatch(t *testing.T) {
	p, _ := newProcessor(t)
	resp := p.Process(context.Background(), header(fdms.TxnDepositInquiry), &fdms.DepositInquiry{})

	require.True(t, resp.Positive())
	assert.Equal(t, fdms.KindBatch, resp.Kind)
	assert.Equal(t, "0", resp.BatchNo)
	assert.Equal(t, "000", resp.ItemNo)
	assert.Equal(t, "0", resp.BatchIDNumber)
	assert.Equal(t, "CR 000 0.00", resp.Text)
	assert.Equal(t, "DB 000 0.00", resp.Text2)
	assert.Contains(t, string(resp.Encode()), "\x1c000000\x1c")
}

func TestStandaloneRevisionInquiry(t *testing.T) {
	p, _ := newProcessor(t)
	resp := p.Process(context.Background(), header(fdms.TxnRevisionInquiry), &fdms.RevisionInquiry{ItemNo: "001"})
	assertRejected(t, resp, CodeInvalidTranCode)
}
