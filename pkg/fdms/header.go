package fdms

import (
	"bytes"
	"errors"
	"fmt"
)

type TxnCode byte

const (
	TxnClose            TxnCode = '0'
	TxnSale             TxnCode = '1'
	TxnReturn           TxnCode = '2'
	TxnTicketOnly       TxnCode = '3'
	TxnAuthOnly         TxnCode = '4'
	TxnVoidSale         TxnCode = '5'
	TxnVoidReturn       TxnCode = '6'
	TxnVoidTicketOnly   TxnCode = '7'
	TxnDepositInquiry   TxnCode = '9'
	TxnRevisionInquiry  TxnCode = 'I'
	TxnNegativeResponse TxnCode = 'N'
)

var txnNames = map[TxnCode]string{
	TxnClose:            "Close",
	TxnSale:             "Sale",
	TxnReturn:           "Return",
	TxnTicketOnly:       "TicketOnly",
	TxnAuthOnly:         "AuthOnly",
	TxnVoidSale:         "VoidSale",
	TxnVoidReturn:       "VoidReturn",
	TxnVoidTicketOnly:   "VoidTicketOnly",
	TxnDepositInquiry:   "DepositInquiry",
	TxnRevisionInquiry:  "RevisionInquiry",
	TxnNegativeResponse: "NegativeResponse",
}

func (c TxnCode) String() string {
	if name, ok := txnNames[c]; ok {
		return name
	}
	return fmt.Sprintf("TxnCode(%q)", byte(c))
}

func (c TxnCode) Monetary() bool {
	switch c {
	case TxnSale, TxnReturn, TxnTicketOnly, TxnAuthOnly, TxnVoidSale, TxnVoidReturn, TxnVoidTicketOnly:
		return true
	}
	return false
}

func (c TxnCode) Void() bool {
	return c == TxnVoidSale || c == TxnVoidReturn || c == TxnVoidTicketOnly
}

// Voided returns the code a void cancels, or 0 when c is not a void.
func (c TxnCode) Voided() TxnCode {
	switch c {
	case TxnVoidSale:
		return TxnSale
	case TxnVoidReturn:
		return TxnReturn
	case TxnVoidTicketOnly:
		return TxnTicketOnly
	}
	return 0
}

// LegType tells how a transaction rides in a session round.
type LegType byte

const (
	LegOnline  LegType = '0'
	LegOffline LegType = '1'
	LegAddOn   LegType = '2'
)

var ErrHeader = errors.New("fdms: header error")

const (
	terminalIDLength = 6
	reservedLength   = 5
	merchantWindow   = 20
	deviceWindow     = 5
)

type Header struct {
	ProtocolType   byte
	TerminalID     string
	Reserved       string
	MerchantNumber string
	DeviceID       string
	WCC            byte
	TxnType        LegType
	TxnCode        TxnCode
}

// Keyed reports whether monetary payloads carry a manually keyed card.
func (h Header) Keyed() bool {
	return h.WCC == '@' || h.WCC == 'B'
}

// MultiTender reports whether the terminal continues with another round after delivery.
func (h Header) MultiTender() bool {
	return h.WCC == 'B' || h.WCC == 'C'
}

// DecodeHeader parses the request header and returns the offset of the first payload byte.
func DecodeHeader(data []byte) (Header, int, error) {
	var h Header
	pos := 0
	if len(data) > 0 && data[0] == STX {
		pos++
	}

	if pos >= len(data) || data[pos] != '*' {
		return h, 0, fmt.Errorf("%w: protocol flag * expected", ErrHeader)
	}
	pos++

	if pos >= len(data) {
		return h, 0, fmt.Errorf("%w: protocol type missing", ErrHeader)
	}
	switch data[pos] {
	case '1', '2', '3':
		h.ProtocolType = data[pos]
	default:
		return h, 0, fmt.Errorf("%w: protocol type %q is invalid", ErrHeader, data[pos])
	}
	pos++

	if pos+terminalIDLength+reservedLength > len(data) {
		return h, 0, fmt.Errorf("%w: terminal id truncated", ErrHeader)
	}
	h.TerminalID = string(data[pos : pos+terminalIDLength])
	pos += terminalIDLength
	h.Reserved = string(data[pos : pos+reservedLength])
	pos += reservedLength

	sep := indexWithin(data, pos, SEP, merchantWindow)
	if sep < 0 {
		return h, 0, fmt.Errorf("%w: merchant separator not found", ErrHeader)
	}
	h.MerchantNumber = string(data[pos:sep])
	pos = sep + 1

	sep = indexWithin(data, pos, FS, deviceWindow)
	if sep < 0 {
		return h, 0, fmt.Errorf("%w: device separator not found", ErrHeader)
	}
	h.DeviceID = string(data[pos:sep])
	pos = sep + 1

	if pos+4 > len(data) {
		return h, 0, fmt.Errorf("%w: transaction header truncated", ErrHeader)
	}
	h.WCC = data[pos]
	h.TxnType = LegType(data[pos+1])
	h.TxnCode = TxnCode(data[pos+2])
	if data[pos+3] != FS {
		return h, 0, fmt.Errorf("%w: invalid transaction header", ErrHeader)
	}

	return h, pos + 4, nil
}

// Encode renders the header as it appears after STX, including the trailing FS.
func (h Header) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte('*')
	buf.WriteByte(h.ProtocolType)
	buf.WriteString(fit(h.TerminalID, terminalIDLength, ' '))
	buf.WriteString(fit(h.Reserved, reservedLength, ' '))
	buf.WriteString(h.MerchantNumber)
	buf.WriteByte(SEP)
	buf.WriteString(h.DeviceID)
	buf.WriteByte(FS)
	buf.WriteByte(h.WCC)
	buf.WriteByte(byte(h.TxnType))
	buf.WriteByte(byte(h.TxnCode))
	buf.WriteByte(FS)
	return buf.Bytes()
}

func indexWithin(data []byte, pos int, sep byte, window int) int {
	end := pos + window
	if end > len(data) {
		end = len(data)
	}
	if pos > end {
		return -1
	}
	i := bytes.IndexByte(data[pos:end], sep)
	if i < 0 {
		return -1
	}
	return pos + i
}
