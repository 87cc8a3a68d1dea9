package fdms

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"

	"github.com/shopspring/decimal"
)

var (
	ErrPayload                = errors.New("fdms: payload error")
	ErrUnsupportedTransaction = errors.New("fdms: transaction is not supported")
)

// Transaction is one decoded request payload. The set of variants is closed.
type Transaction interface {
	isTransaction()
}

type DepositInquiry struct{}

type NegativeResponse struct{}

type Monetary struct {
	TotalAmount       decimal.Decimal
	InvoiceNo         string
	BatchNo           string
	ItemNo            string
	RevisionNo        string
	FormatCode        string
	TransactionID     string
	CardType          string
	PinBlock          string
	SmidBlock         string
	AuthorizationCode string
	PartialIndicator  string
}

// MonetaryTransaction is implemented by SwipedMonetary and KeyedMonetary.
type MonetaryTransaction interface {
	Transaction
	Base() *Monetary
	Card() (CardInfo, error)
}

func (m *Monetary) Base() *Monetary { return m }

type SwipedMonetary struct {
	Monetary
	TrackData string
}

func (t *SwipedMonetary) Card() (CardInfo, error) {
	return ParseTrack(t.TrackData)
}

type KeyedMonetary struct {
	Monetary
	AccountNo  string
	CVPresence string
	CVV        string
	ExpDate    string
}

func (t *KeyedMonetary) Card() (CardInfo, error) {
	return KeyedCard(t.AccountNo, t.ExpDate)
}

type CloseState int

const (
	CloseReady CloseState = iota
	ClosePollTransaction
	CloseRevisionInquiry
	ClosePollRevision
	CloseClosed
)

func (s CloseState) String() string {
	switch s {
	case CloseReady:
		return "ReadyToClose"
	case ClosePollTransaction:
		return "HostSpecificPollTransaction"
	case CloseRevisionInquiry:
		return "RevisionInquiry"
	case ClosePollRevision:
		return "HostSpecificPollRevision"
	case CloseClosed:
		return "Closed"
	}
	return "CloseState(" + strconv.Itoa(int(s)) + ")"
}

// Reconciliation is the settlement dialog state carried across close rounds of one session.
type Reconciliation struct {
	State CloseState
	// PollItems maps an item number to the minimum revision the host still waits for.
	// An empty revision means the item is missing altogether.
	PollItems  map[int]string
	LastItemNo string
	// BatchItems mirrors item_no -> revision_no of the stored batch records.
	BatchItems map[string]string
}

type BatchClose struct {
	BatchNo           string
	ItemNo            string
	CreditBatchAmount decimal.Decimal
	DebitBatchCount   int
	DebitBatchAmount  decimal.Decimal
	OfflineItems      int

	Reconciliation Reconciliation
	// AddOns are the revision inquiry legs that arrived with this close, in order.
	AddOns []*RevisionInquiry
}

type RevisionInquiry struct {
	ItemNo    string
	Revisions [10]string
}

func (*DepositInquiry) isTransaction()   {}
func (*NegativeResponse) isTransaction() {}
func (*SwipedMonetary) isTransaction()   {}
func (*KeyedMonetary) isTransaction()    {}
func (*BatchClose) isTransaction()       {}
func (*RevisionInquiry) isTransaction()  {}

type decodeFunc func(h Header, payload []byte) (Transaction, error)

var decoders map[TxnCode]decodeFunc

func init() {
	decoders = map[TxnCode]decodeFunc{
		TxnClose:            decodeBatchClose,
		TxnDepositInquiry:   decodeDepositInquiry,
		TxnRevisionInquiry:  decodeRevisionInquiry,
		TxnNegativeResponse: decodeNegativeResponse,
	}
	for code := range txnNames {
		if code.Monetary() {
			decoders[code] = decodeMonetaryByWCC
		}
	}
}

// DecodeTransaction selects the payload variant from the header and decodes payload into it.
// payload is everything after the header FS, without ETX and LRS.
func DecodeTransaction(h Header, payload []byte) (Transaction, error) {
	decode, ok := decoders[h.TxnCode]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransaction, h.TxnCode)
	}
	return decode(h, payload)
}

// DecodeRequest verifies and decodes one STX..ETX+LRS request frame.
func DecodeRequest(frame []byte) (Header, Transaction, error) {
	if !VerifyFrame(frame) {
		return Header{}, nil, fmt.Errorf("%w: lrs mismatch", ErrFrame)
	}
	h, pos, err := DecodeHeader(frame)
	if err != nil {
		return h, nil, err
	}
	end := len(frame) - 2
	if pos > end {
		pos = end
	}
	txn, err := DecodeTransaction(h, frame[pos:end])
	if err != nil {
		return h, nil, err
	}
	return h, txn, nil
}

func decodeDepositInquiry(Header, []byte) (Transaction, error) {
	return &DepositInquiry{}, nil
}

func decodeNegativeResponse(Header, []byte) (Transaction, error) {
	return &NegativeResponse{}, nil
}

func decodeMonetaryByWCC(h Header, payload []byte) (Transaction, error) {
	if h.Keyed() {
		return decodeKeyed(payload)
	}
	return decodeSwiped(payload)
}

const trackWindow = 77

func decodeSwiped(payload []byte) (Transaction, error) {
	sep := indexWithin(payload, 0, FS, trackWindow)
	if sep < 0 {
		return nil, fmt.Errorf("%w: swiped: track data separator not found", ErrPayload)
	}
	txn := &SwipedMonetary{TrackData: string(payload[:sep])}
	if err := decodeMonetary(&txn.Monetary, payload[sep+1:]); err != nil {
		return nil, fmt.Errorf("swiped: %w", err)
	}
	return txn, nil
}

func decodeKeyed(payload []byte) (Transaction, error) {
	first := bytes.IndexByte(payload, FS)
	if first < 0 {
		return nil, fmt.Errorf("%w: keyed: account section not terminated", ErrPayload)
	}
	second := bytes.IndexByte(payload[first+1:], FS)
	if second < 0 {
		return nil, fmt.Errorf("%w: keyed: expiry section not terminated", ErrPayload)
	}
	second += first + 1

	txn := &KeyedMonetary{}
	account := bytes.Split(payload[:first], []byte{US})
	if len(account) > 0 {
		txn.AccountNo = string(account[0])
	}
	if len(account) > 1 {
		txn.CVPresence = string(account[1])
	}
	if len(account) > 2 {
		txn.CVV = string(account[2])
	}
	txn.ExpDate = string(payload[first+1 : second])

	if err := decodeMonetary(&txn.Monetary, payload[second+1:]); err != nil {
		return nil, fmt.Errorf("keyed: %w", err)
	}
	return txn, nil
}

// formatLayout gives 0-based field positions after the format code.
type formatLayout struct {
	transactionID int
	aux           int
}

var formatLayouts = map[string]formatLayout{
	"6": {transactionID: 11, aux: 14}, // retail
	"2": {transactionID: 4, aux: 6},   // restaurant
	"4": {transactionID: 7, aux: 12},  // hotel
}

const minAuxFields = 7

func decodeMonetary(m *Monetary, data []byte) error {
	fields := bytes.Split(data, []byte{FS})
	if len(fields) < 3 {
		return fmt.Errorf("%w: monetary: expected amount, invoice and sequence fields", ErrPayload)
	}
	if len(fields[2]) != 5 {
		return fmt.Errorf("%w: monetary: sequence field must be 5 bytes, got %d", ErrPayload, len(fields[2]))
	}

	amount, err := decimal.NewFromString(string(fields[0]))
	if err != nil {
		return fmt.Errorf("%w: monetary: amount %q: %v", ErrPayload, fields[0], err)
	}
	m.TotalAmount = amount
	m.InvoiceNo = string(fields[1])
	m.BatchNo = string(fields[2][0:1])
	m.ItemNo = string(fields[2][1:4])
	m.RevisionNo = string(fields[2][4:5])

	if len(fields) < 4 {
		return nil
	}
	m.FormatCode = string(fields[3])
	rest := fields[4:]

	layout, ok := formatLayouts[m.FormatCode]
	if !ok {
		return nil
	}
	if layout.transactionID < len(rest) {
		m.TransactionID = string(rest[layout.transactionID])
	}
	if layout.aux >= len(rest) || len(rest[layout.aux]) == 0 {
		return nil
	}

	aux := bytes.Split(rest[layout.aux], []byte{US})
	if len(aux) < minAuxFields {
		return fmt.Errorf("%w: monetary: auxiliary block has %d fields, want at least %d", ErrPayload, len(aux), minAuxFields)
	}
	m.PinBlock = string(aux[0])
	m.CardType = string(aux[1])
	// aux[2..4]: cashback, surcharge, voucher
	m.AuthorizationCode = string(aux[5])
	m.SmidBlock = string(aux[6])
	if len(aux) > 7 {
		m.PartialIndicator = string(aux[7])
	}
	return nil
}

func decodeBatchClose(_ Header, payload []byte) (Transaction, error) {
	fields := bytes.Split(payload, []byte{FS})
	for len(fields) > 0 && len(fields[len(fields)-1]) == 0 {
		fields = fields[:len(fields)-1]
	}
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: close: expected amount and sequence fields", ErrPayload)
	}

	txn := &BatchClose{}
	var err error
	if txn.CreditBatchAmount, err = optionalAmount(fields[0]); err != nil {
		return nil, fmt.Errorf("%w: close: credit amount: %v", ErrPayload, err)
	}

	last := fields[len(fields)-1]
	if len(last) != 4 {
		return nil, fmt.Errorf("%w: close: sequence field must be 4 bytes, got %d", ErrPayload, len(last))
	}
	txn.BatchNo = string(last[0:1])
	txn.ItemNo = string(last[1:4])

	middle := fields[1 : len(fields)-1]
	i := 0
	if i < len(middle) && len(middle[i]) == 3 {
		if txn.OfflineItems, err = strconv.Atoi(string(middle[i])); err != nil {
			return nil, fmt.Errorf("%w: close: offline items: %v", ErrPayload, err)
		}
		i++
	}
	if i < len(middle) && len(middle[i]) == 3 {
		if txn.DebitBatchCount, err = strconv.Atoi(string(middle[i])); err != nil {
			return nil, fmt.Errorf("%w: close: debit count: %v", ErrPayload, err)
		}
		i++
	}
	if i < len(middle) {
		if txn.DebitBatchAmount, err = optionalAmount(middle[i]); err != nil {
			return nil, fmt.Errorf("%w: close: debit amount: %v", ErrPayload, err)
		}
	}
	return txn, nil
}

func decodeRevisionInquiry(_ Header, payload []byte) (Transaction, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("%w: revision inquiry: item number truncated", ErrPayload)
	}
	txn := &RevisionInquiry{ItemNo: string(payload[:3])}

	rest := bytes.TrimPrefix(payload[3:], []byte{FS})
	if len(rest) == 0 {
		return txn, nil
	}
	for i, code := range bytes.Split(rest, []byte{FS}) {
		if i >= len(txn.Revisions) {
			break
		}
		txn.Revisions[i] = string(code)
	}
	return txn, nil
}

func optionalAmount(b []byte) (decimal.Decimal, error) {
	if len(b) == 0 {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(string(b))
}
