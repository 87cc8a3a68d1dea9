package processor

import (
	"context"
	"fmt"
	"sort"
	"strconv"

	"github.com/alfianX/fdms-gateway/internal/repo"
	"github.com/alfianX/fdms-gateway/pkg/fdms"
	"github.com/shopspring/decimal"
)

// moneyTolerance is the largest difference at which two amounts still count as equal.
var moneyTolerance = decimal.New(1, -2)

// revisionWindow is how many items one revision inquiry covers.
const revisionWindow = 10

func amountsMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(moneyTolerance)
}

func itemKey(n int) string {
	return fmt.Sprintf("%03d", n)
}

// itemNumber parses a three digit item number. strconv alone would let a sign through.
func itemNumber(s string) (int, error) {
	if len(s) != 3 {
		return 0, fmt.Errorf("item number %q is not three digits", s)
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, fmt.Errorf("item number %q is not three digits", s)
		}
	}
	return strconv.Atoi(s)
}

// reconcile runs one round of the settlement dialog. t.Reconciliation carries
// the state between rounds and is updated in place.
func (p *Processor) reconcile(ctx context.Context, uow repo.UnitOfWork, hdr fdms.Header, t *fdms.BatchClose) (fdms.Response, *repo.ClosedBatch, error) {
	rc := &t.Reconciliation
	if rc.State == fdms.CloseClosed {
		return fdms.Response{}, nil, fail(CodeInvalidBatchSequence, "batch %s already closed in this session", t.BatchNo)
	}

	batch, err := uow.GetOpenBatch(ctx, hdr.MerchantNumber, hdr.DeviceID)
	if err != nil {
		return fdms.Response{}, nil, fmt.Errorf("batch close -> get open batch: %w", err)
	}
	if batch == nil || batch.BatchNo != t.BatchNo {
		return fdms.Response{}, nil, fail(CodeInvalidBatchSequence, "no open batch %s for %s/%s", t.BatchNo, hdr.MerchantNumber, hdr.DeviceID)
	}
	reported, err := itemNumber(t.ItemNo)
	if err != nil {
		return fdms.Response{}, nil, fail(CodeInvalidBatchSequence, "item count %q", t.ItemNo)
	}

	records, err := uow.QueryBatchItems(ctx, batch.ID)
	if err != nil {
		return fdms.Response{}, nil, fmt.Errorf("batch close -> query batch items: %w", err)
	}
	rc.BatchItems = make(map[string]string, len(records))
	for _, rec := range records {
		rc.BatchItems[rec.ItemNo] = rec.RevisionNo
	}
	if rc.PollItems == nil {
		rc.PollItems = make(map[int]string)
	}

	// add-on baru digabung setelah record batch dimuat ulang
	for _, ri := range t.AddOns {
		if err := mergeRevisions(rc, ri); err != nil {
			return fdms.Response{}, nil, err
		}
	}
	t.AddOns = nil
	for item, want := range rc.PollItems {
		if satisfied(rc.BatchItems, item, want) {
			delete(rc.PollItems, item)
		}
	}

	credit, debit := batchTotals(records)

	if rc.State == fdms.CloseReady {
		for i := 1; i < reported; i++ {
			if _, ok := rc.BatchItems[itemKey(i)]; !ok {
				rc.PollItems[i] = ""
			}
		}
		if len(rc.PollItems) > 0 {
			p.transition(hdr, rc, fdms.ClosePollTransaction)
		}
	}
	if rc.State == fdms.ClosePollTransaction && len(rc.PollItems) > 0 {
		return poll(t, rc, fdms.PollRequestTransaction), nil, nil
	}

	if !amountsMatch(credit.Amount, t.CreditBatchAmount) && (rc.State == fdms.CloseReady || rc.State == fdms.ClosePollTransaction) {
		p.transition(hdr, rc, fdms.CloseRevisionInquiry)
		rc.LastItemNo = itemKey(1)
	}
	if rc.State == fdms.CloseRevisionInquiry {
		last, _ := strconv.Atoi(rc.LastItemNo)
		if last < reported {
			resp := fdms.Response{
				ActionCode:   fdms.ActionRevisionInquiry,
				ResponseCode: fdms.ResponsePositive,
				BatchNo:      t.BatchNo,
				ItemNo:       rc.LastItemNo,
				Kind:         fdms.KindText,
			}
			rc.LastItemNo = itemKey(last + revisionWindow)
			return resp, nil, nil
		}
		p.transition(hdr, rc, fdms.ClosePollRevision)
	}
	if rc.State == fdms.ClosePollRevision && len(rc.PollItems) > 0 {
		return poll(t, rc, fdms.PollRequestRevision), nil, nil
	}

	closed, err := uow.CloseBatch(ctx, batch, credit, debit)
	if err != nil {
		return fdms.Response{}, nil, &BusinessError{Code: CodeCloseUnavailable, Err: err}
	}
	p.transition(hdr, rc, fdms.CloseClosed)

	resp := fdms.Response{
		ActionCode:    fdms.ActionApproved,
		ResponseCode:  fdms.ResponsePositive,
		BatchNo:       t.BatchNo,
		ItemNo:        t.ItemNo,
		Kind:          fdms.KindBatch,
		Text:          settlementText(credit.Amount, t.CreditBatchAmount),
		BatchIDNumber: strconv.FormatInt(closed.ID, 10),
	}
	if debit.Count > 0 {
		resp.Text2 = settlementText(debit.Amount, t.DebitBatchAmount)
	}
	p.log.Infof("processor -> batch %s of %s/%s closed: %s / %s", batch.BatchNo, hdr.MerchantNumber, hdr.DeviceID, resp.Text, resp.Text2)
	return resp, closed, nil
}

func (p *Processor) transition(hdr fdms.Header, rc *fdms.Reconciliation, next fdms.CloseState) {
	p.log.Debugf("processor -> batch close %s/%s: %s -> %s", hdr.MerchantNumber, hdr.DeviceID, rc.State, next)
	rc.State = next
}

// poll asks the terminal for the lowest pending item and drops it from the pending set.
func poll(t *fdms.BatchClose, rc *fdms.Reconciliation, request byte) fdms.Response {
	items := make([]int, 0, len(rc.PollItems))
	for item := range rc.PollItems {
		items = append(items, item)
	}
	sort.Ints(items)
	delete(rc.PollItems, items[0])

	return fdms.Response{
		ActionCode:   fdms.ActionHostSpecificPoll,
		ResponseCode: fdms.ResponsePositive,
		BatchNo:      t.BatchNo,
		ItemNo:       itemKey(items[0]),
		Kind:         fdms.KindSpecificPoll,
		PollRequest:  request,
	}
}

// mergeRevisions marks every item whose stored revision is behind the terminal's for another poll.
func mergeRevisions(rc *fdms.Reconciliation, ri *fdms.RevisionInquiry) error {
	start, err := itemNumber(ri.ItemNo)
	if err != nil {
		return fail(CodeInvalidBatchSequence, "revision inquiry item %q", ri.ItemNo)
	}
	for i, want := range ri.Revisions {
		if want == "" {
			continue
		}
		item := start + i
		if !satisfied(rc.BatchItems, item, want) {
			rc.PollItems[item] = want
		}
	}
	return nil
}

func satisfied(items map[string]string, item int, want string) bool {
	have, ok := items[itemKey(item)]
	if !ok {
		return false
	}
	return want == "" || have >= want
}

// batchTotals sums the batch per card side. Voided items are left out, returns count negative.
func batchTotals(records []repo.BatchRecord) (credit, debit repo.Totals) {
	credit.Amount = decimal.Zero
	debit.Amount = decimal.Zero
	for _, rec := range records {
		if rec.TxnCode == "" {
			continue
		}
		var amount decimal.Decimal
		switch fdms.TxnCode(rec.TxnCode[0]) {
		case fdms.TxnSale, fdms.TxnTicketOnly:
			amount = rec.Amount
		case fdms.TxnReturn:
			amount = rec.Amount.Neg()
		default:
			continue
		}
		side := &credit
		if !rec.IsCredit {
			side = &debit
		}
		side.Count++
		side.Amount = side.Amount.Add(amount)
	}
	return credit, debit
}

func settlementText(computed, reported decimal.Decimal) string {
	if amountsMatch(computed, reported) {
		return "CLOSE " + computed.StringFixed(2)
	}
	return "FORCE " + computed.StringFixed(2)
}
