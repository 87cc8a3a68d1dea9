package handler

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"net"
	"strings"
	"testing"
	"time"

	"github.com/alfianX/fdms-gateway/config"
	"github.com/alfianX/fdms-gateway/internal/processor"
	"github.com/alfianX/fdms-gateway/internal/repo"
	"github.com/alfianX/fdms-gateway/pkg/fdms"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const track2 = ";4393410316009875=170612110000762?"

func testConfig() config.Config {
	return config.Config{
		TimeoutRequest:  2,
		TimeoutAck:      2,
		RequestAttempts: 5,
		AckAttempts:     4,
	}
}

func newTestHandler(t *testing.T, cnf config.Config) (*Handler, *processor.Processor) {
	t.Helper()
	log, _ := test.NewNullLogger()
	storage := repo.NewMemoryStorage()
	p := processor.New(storage, log)
	return New(cnf, log, p, storage), p
}

func request(wcc byte, legType fdms.LegType, code fdms.TxnCode, payload ...string) []byte {
	hdr := fdms.Header{
		ProtocolType:   '1',
		TerminalID:     "POSHOM",
		Reserved:       "E1.  ",
		MerchantNumber: "1234567890",
		DeviceID:       "0239",
		WCC:            wcc,
		TxnType:        legType,
		TxnCode:        code,
	}
	body := append(hdr.Encode(), strings.Join(payload, string(fdms.FS))...)
	return fdms.BuildFrame(body)
}

func sale(wcc byte, legType fdms.LegType, amount, seq string) []byte {
	return request(wcc, legType, fdms.TxnSale, track2, amount, "Invoice", seq)
}

type terminal struct {
	t    *testing.T
	conn net.Conn
	r    *bufio.Reader
}

// startSession runs Serve on one end of a pipe and returns the terminal end.
func startSession(t *testing.T, h *Handler) *terminal {
	t.Helper()
	server, client := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Serve(context.Background(), server)
	}()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	return &terminal{t: t, conn: client, r: bufio.NewReader(client)}
}

func (tm *terminal) read() []byte {
	tm.t.Helper()
	require.NoError(tm.t, tm.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	frame, err := fdms.ReadFrame(tm.r)
	require.NoError(tm.t, err)
	return frame
}

func (tm *terminal) expect(b byte) {
	tm.t.Helper()
	assert.Equal(tm.t, []byte{b}, tm.read())
}

func (tm *terminal) send(b []byte) {
	tm.t.Helper()
	require.NoError(tm.t, tm.conn.SetWriteDeadline(time.Now().Add(5*time.Second)))
	_, err := tm.conn.Write(b)
	require.NoError(tm.t, err)
}

func (tm *terminal) control(b byte) {
	tm.t.Helper()
	tm.send([]byte{b})
}

// round sends the given legs after ENQ, each acknowledged, and closes the round with EOT.
func (tm *terminal) round(frames ...[]byte) {
	tm.t.Helper()
	tm.expect(fdms.ENQ)
	for _, frame := range frames {
		tm.send(frame)
		tm.expect(fdms.ACK)
	}
	tm.control(fdms.EOT)
}

func (tm *terminal) expectClosed() {
	tm.t.Helper()
	require.NoError(tm.t, tm.conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, err := fdms.ReadFrame(tm.r)
	assert.ErrorIs(tm.t, err, io.EOF)
}

func TestSessionDepositInquiry(t *testing.T) {
	h, _ := newTestHandler(t, testConfig())
	tm := startSession(t, h)

	tm.round(request('@', fdms.LegOnline, fdms.TxnDepositInquiry))
	resp := tm.read()
	assert.True(t, fdms.VerifyFrame(resp))
	assert.Equal(t, []byte("00"), resp[1:3])
	assert.True(t, bytes.Contains(resp, []byte("CR 000 0.00")), "%q", resp)

	tm.control(fdms.ACK)
	tm.expect(fdms.EOT)
	tm.expectClosed()
}

func TestSessionEmptyRound(t *testing.T) {
	h, _ := newTestHandler(t, testConfig())
	tm := startSession(t, h)

	tm.round()
	tm.expect(fdms.EOT)
	tm.expectClosed()
}

func TestSessionBadFrame(t *testing.T) {
	// Skenario 1: frame rusak dibalas NAK lalu terminal mengirim ulang
	t.Run("Retransmit", func(t *testing.T) {
		h, _ := newTestHandler(t, testConfig())
		tm := startSession(t, h)

		good := request('@', fdms.LegOnline, fdms.TxnDepositInquiry)
		bad := append([]byte(nil), good...)
		bad[len(bad)-1] ^= 0x01

		tm.expect(fdms.ENQ)
		tm.send([]byte("noise"))
		tm.send(bad)
		tm.expect(fdms.NAK)
		tm.send(good)
		tm.expect(fdms.ACK)
		tm.control(fdms.EOT)

		resp := tm.read()
		assert.Equal(t, fdms.STX, resp[0])
		tm.control(fdms.ACK)
		tm.expect(fdms.EOT)
	})

	// Skenario 2: batas percobaan habis, sesi ditutup tanpa EOT
	t.Run("AttemptsExhausted", func(t *testing.T) {
		cnf := testConfig()
		cnf.RequestAttempts = 2
		h, _ := newTestHandler(t, cnf)
		tm := startSession(t, h)

		bad := request('@', fdms.LegOnline, fdms.TxnDepositInquiry)
		bad[len(bad)-1] ^= 0x01

		tm.expect(fdms.ENQ)
		tm.send(bad)
		tm.expect(fdms.NAK)
		tm.send(bad)
		tm.expect(fdms.NAK)
		tm.expectClosed()
	})
}

func TestSessionAckRetry(t *testing.T) {
	// Skenario 1: NAK membuat respons dikirim ulang
	t.Run("ResendOnNAK", func(t *testing.T) {
		h, _ := newTestHandler(t, testConfig())
		tm := startSession(t, h)

		tm.round(request('@', fdms.LegOnline, fdms.TxnDepositInquiry))
		first := tm.read()
		tm.control(fdms.NAK)
		assert.Equal(t, first, tm.read())
		tm.control(fdms.ACK)
		tm.expect(fdms.EOT)
	})

	// Skenario 2: terminal tidak pernah ACK
	t.Run("AttemptsExhausted", func(t *testing.T) {
		cnf := testConfig()
		cnf.AckAttempts = 2
		h, _ := newTestHandler(t, cnf)
		tm := startSession(t, h)

		tm.round(request('@', fdms.LegOnline, fdms.TxnDepositInquiry))
		tm.read()
		tm.control(fdms.NAK)
		tm.read()
		tm.control(fdms.NAK)
		tm.expectClosed()
	})
}

func TestSessionMultiTender(t *testing.T) {
	h, _ := newTestHandler(t, testConfig())
	tm := startSession(t, h)

	tm.round(sale('C', fdms.LegOnline, "10.00", "10010"))
	resp := tm.read()
	assert.Equal(t, []byte("00"), resp[1:3], "%q", resp)
	assert.True(t, bytes.Contains(resp, []byte("AUTH/TKT")), "%q", resp)
	tm.control(fdms.ACK)

	// terminal multi-tender mendapat ronde baru
	tm.round(request('C', fdms.LegOnline, fdms.TxnDepositInquiry))
	resp = tm.read()
	assert.True(t, bytes.Contains(resp, []byte("CR 000 0.00")), "%q", resp)
	tm.control(fdms.ACK)

	tm.round()
	tm.expect(fdms.EOT)
	tm.expectClosed()
}

func TestSessionNegativeResponseEnds(t *testing.T) {
	h, _ := newTestHandler(t, testConfig())
	tm := startSession(t, h)

	tm.round(request('@', fdms.LegOnline, fdms.TxnNegativeResponse))
	tm.expect(fdms.EOT)
	tm.expectClosed()
}

func TestSessionOfflineLegs(t *testing.T) {
	h, p := newTestHandler(t, testConfig())
	tm := startSession(t, h)

	tm.round(
		sale('@', fdms.LegOffline, "4.00", "10010"),
		sale('@', fdms.LegOffline, "6.00", "10020"),
		request('@', fdms.LegOnline, fdms.TxnClose, "10.00", "1003"),
	)
	resp := tm.read()
	assert.True(t, bytes.Contains(resp, []byte("CLOSE 10.00")), "%q", resp)
	tm.control(fdms.ACK)
	tm.expect(fdms.EOT)
	tm.expectClosed()

	inquiry := p.Process(context.Background(), fdms.Header{MerchantNumber: "1234567890", DeviceID: "0239"}, &fdms.DepositInquiry{})
	assert.Equal(t, "CR 002 10.00", inquiry.Text)
}

func TestSessionPollRound(t *testing.T) {
	h, p := newTestHandler(t, testConfig())
	hdr := fdms.Header{MerchantNumber: "1234567890", DeviceID: "0239", WCC: '@', TxnType: fdms.LegOnline, TxnCode: fdms.TxnSale}
	for _, item := range []struct{ seq, amount string }{{"001", "10.00"}, {"003", "2.00"}} {
		resp := p.Process(context.Background(), hdr, &fdms.SwipedMonetary{
			Monetary: fdms.Monetary{
				TotalAmount: decimal.RequireFromString(item.amount),
				InvoiceNo:   "Invoice",
				BatchNo:     "1",
				ItemNo:      item.seq,
				RevisionNo:  "0",
			},
			TrackData: track2,
		})
		require.True(t, resp.Positive(), resp.Text)
	}

	tm := startSession(t, h)
	tm.round(request('@', fdms.LegOnline, fdms.TxnClose, "17.00", "1004"))
	// poll tidak menunggu ACK, langsung ronde berikutnya
	assert.Equal(t, fdms.BuildFrame([]byte("P01002001")), tm.read())

	tm.round(
		sale('@', fdms.LegOffline, "5.00", "10020"),
		request('@', fdms.LegOnline, fdms.TxnClose, "17.00", "1004"),
	)
	resp := tm.read()
	assert.True(t, bytes.Contains(resp, []byte("CLOSE 17.00")), "%q", resp)
	tm.control(fdms.ACK)
	tm.expect(fdms.EOT)
}

func TestSplitLegs(t *testing.T) {
	h, _ := newTestHandler(t, testConfig())
	s := &session{h: h, log: h.Log.WithField("session", "test")}

	mk := func(legType fdms.LegType, txn fdms.Transaction) leg {
		return leg{hdr: fdms.Header{TxnType: legType}, txn: txn}
	}

	// Skenario 1: semua add-on revision inquiry menempel ke close
	t.Run("AddOnJoinsClose", func(t *testing.T) {
		first := &fdms.RevisionInquiry{ItemNo: "001"}
		second := &fdms.RevisionInquiry{ItemNo: "011"}
		bc := &fdms.BatchClose{BatchNo: "1"}
		s.pending = &fdms.Reconciliation{State: fdms.CloseRevisionInquiry, LastItemNo: "011"}

		offline, online, ok := s.split([]leg{
			mk(fdms.LegAddOn, first),
			mk(fdms.LegAddOn, second),
			mk(fdms.LegOnline, bc),
		})
		require.True(t, ok)
		assert.Empty(t, offline)
		assert.Same(t, bc, online.txn)
		require.Len(t, bc.AddOns, 2)
		assert.Same(t, first, bc.AddOns[0])
		assert.Same(t, second, bc.AddOns[1])
		assert.Equal(t, fdms.CloseRevisionInquiry, bc.Reconciliation.State)
		assert.Equal(t, "011", bc.Reconciliation.LastItemNo)
		s.pending = nil
	})

	// Skenario 2: tanpa leg online, leg pertama dijawab
	t.Run("FirstLegWithoutOnline", func(t *testing.T) {
		first := &fdms.DepositInquiry{}
		second := &fdms.DepositInquiry{}
		offline, online, ok := s.split([]leg{
			mk(fdms.LegAddOn, &fdms.RevisionInquiry{}),
			mk(fdms.LegOffline, first),
			mk(fdms.LegOffline, second),
		})
		require.True(t, ok)
		assert.Same(t, first, online.txn)
		require.Len(t, offline, 1)
		assert.Same(t, second, offline[0].txn)
	})

	// Skenario 3: hanya add-on, tidak ada yang dijawab
	t.Run("OnlyAddOn", func(t *testing.T) {
		_, _, ok := s.split([]leg{mk(fdms.LegAddOn, &fdms.RevisionInquiry{})})
		assert.False(t, ok)
	})

	// Skenario 4: add-on tanpa close dicatat satu per satu
	t.Run("AddOnsWithoutCloseLogged", func(t *testing.T) {
		log, hook := test.NewNullLogger()
		quiet := &session{h: h, log: log.WithField("session", "test")}
		_, online, ok := quiet.split([]leg{
			mk(fdms.LegAddOn, &fdms.RevisionInquiry{ItemNo: "001"}),
			mk(fdms.LegAddOn, &fdms.RevisionInquiry{ItemNo: "011"}),
			mk(fdms.LegOnline, &fdms.DepositInquiry{}),
		})
		require.True(t, ok)
		assert.IsType(t, &fdms.DepositInquiry{}, online.txn)
		require.Len(t, hook.AllEntries(), 2)
		assert.Contains(t, hook.AllEntries()[0].Message, "item 001")
		assert.Contains(t, hook.AllEntries()[1].Message, "item 011")
	})
}
