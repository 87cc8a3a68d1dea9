package fdms

import (
	"bytes"

	f "github.com/alfianX/fdms-gateway/pkg/function"
)

const (
	ActionApproved           byte = '0'
	ActionNegative           byte = '1'
	ActionHostSpecificPoll   byte = 'P'
	ActionRevisionInquiry    byte = 'I'
	ResponsePositive         byte = '0'
	ResponseNegative         byte = '1'
	PollRequestTransaction   byte = '1'
	PollRequestRevision      byte = '2'
	responseTextLength            = 16
	responseItemLength            = 4
	responseBatchIDLength         = 6
	responseTransactionIDMax      = 15
)

type ResponseKind int

const (
	KindText ResponseKind = iota
	KindBatch
	KindCredit
	KindSpecificPoll
)

type Response struct {
	ActionCode   byte
	ResponseCode byte
	BatchNo      string
	ItemNo       string
	Kind         ResponseKind

	Text  string
	Text2 string

	BatchIDNumber string

	AvcCode       string
	CvvCode       string
	TransactionID string

	PollRequest byte
}

func (r Response) Positive() bool {
	return r.ResponseCode == ResponsePositive
}

// NeedsAck is false for responses that solicit another request leg from the terminal.
func (r Response) NeedsAck() bool {
	return r.ActionCode != ActionHostSpecificPoll && r.ActionCode != ActionRevisionInquiry
}

type bodyFunc func(buf *bytes.Buffer, r Response)

var bodies = map[ResponseKind]bodyFunc{
	KindText:         textBody,
	KindBatch:        batchBody,
	KindCredit:       creditBody,
	KindSpecificPoll: pollBody,
}

// Encode renders the full response frame, STX through LRS.
func (r Response) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteByte(orDefault(r.ActionCode, ActionApproved))
	buf.WriteByte(orDefault(r.ResponseCode, ResponsePositive))
	buf.WriteString(fit(r.BatchNo, 1, '0'))
	buf.WriteString(fit(r.ItemNo, responseItemLength, '0'))
	buf.WriteByte('0')

	body, ok := bodies[r.Kind]
	if !ok {
		body = textBody
	}
	body(&buf, r)

	return BuildFrame(buf.Bytes())
}

func textBody(buf *bytes.Buffer, r Response) {
	buf.WriteByte(FS)
	buf.WriteString(fit(r.Text, responseTextLength, ' '))
}

func batchBody(buf *bytes.Buffer, r Response) {
	textBody(buf, r)
	buf.WriteByte(FS)
	buf.WriteString(f.PadLeftZero(f.Truncate(r.BatchIDNumber, responseBatchIDLength), responseBatchIDLength))
	if r.Text2 != "" {
		buf.WriteByte(FS)
		buf.WriteString(fit(r.Text2, responseTextLength, ' '))
	}
}

func creditBody(buf *bytes.Buffer, r Response) {
	textBody(buf, r)
	if r.AvcCode != "" {
		buf.WriteByte(r.AvcCode[0])
	} else {
		buf.WriteByte('0')
	}
	if r.CvvCode != "" {
		buf.WriteByte(r.CvvCode[0])
	}
	buf.WriteByte(FS)
	buf.WriteByte(FS)
	buf.WriteString(f.Truncate(r.TransactionID, responseTransactionIDMax))
	buf.WriteByte(FS)
}

func pollBody(buf *bytes.Buffer, r Response) {
	buf.WriteByte(orDefault(r.PollRequest, PollRequestTransaction))
}

// fit truncates s to n bytes and right-pads it with pad.
func fit(s string, n int, pad byte) string {
	s = f.Truncate(s, n)
	if pad == '0' {
		return f.PadRightZero(s, n)
	}
	return f.PadRightSpace(s, n)
}

func orDefault(b, def byte) byte {
	if b == 0 {
		return def
	}
	return b
}
