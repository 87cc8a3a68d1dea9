package handler

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/alfianX/fdms-gateway/pkg/fdms"
	f "github.com/alfianX/fdms-gateway/pkg/function"
	"github.com/alfianX/fdms-gateway/pkg/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	errRequestAttempts = errors.New("no valid request frame within the attempt limit")
	errAckAttempts     = errors.New("response not acknowledged within the attempt limit")
)

// leg is one decoded request frame of a round.
type leg struct {
	hdr fdms.Header
	txn fdms.Transaction
}

// session drives the ENQ/ACK dialog with one terminal connection.
type session struct {
	h      *Handler
	conn   net.Conn
	reader *bufio.Reader
	log    *logrus.Entry
	addr   string
	// pending is the settlement state handed from one close round to the next.
	pending *fdms.Reconciliation
}

// Serve runs the session dialog until the terminal is done or the connection breaks.
// The connection is always closed on return.
func (h *Handler) Serve(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer func() {
		stop()
		conn.Close()
	}()

	s := &session{
		h:      h,
		conn:   conn,
		reader: bufio.NewReader(conn),
		addr:   conn.RemoteAddr().String(),
	}
	s.log = h.Log.WithFields(logrus.Fields{
		"session": uuid.NewString(),
		"remote":  s.addr,
	})
	s.log.Debug("session -> started")

	err := s.run(ctx)
	switch {
	case err == nil:
		s.log.Debug("session -> finished")
	case ctx.Err() != nil:
		s.log.Infof("session -> stopped on shutdown: %v", err)
	case disconnected(err):
		s.log.Debugf("session -> terminal went away: %v", err)
	default:
		s.log.Warnf("session -> %v", err)
	}
}

func (s *session) run(ctx context.Context) error {
	for {
		legs, err := s.collect()
		if err != nil {
			return err
		}
		if len(legs) == 0 {
			return s.write([]byte{fdms.EOT})
		}

		offline, online, ok := s.split(legs)
		for _, l := range offline {
			resp := s.h.processor.Process(ctx, l.hdr, l.txn)
			s.log.Infof("session -> offline %s: %c%c %s", describe(l), resp.ActionCode, resp.ResponseCode, resp.Text)
		}
		if !ok {
			return s.write([]byte{fdms.EOT})
		}
		if _, neg := online.txn.(*fdms.NegativeResponse); neg {
			s.log.Info("session -> terminal sent a negative response, ending")
			return s.write([]byte{fdms.EOT})
		}

		resp := s.h.processor.Process(ctx, online.hdr, online.txn)
		s.log.Infof("session -> %s: %c%c %s", describe(online), resp.ActionCode, resp.ResponseCode, resp.Text)
		if bc, isClose := online.txn.(*fdms.BatchClose); isClose && bc.Reconciliation.State != fdms.CloseClosed {
			rc := bc.Reconciliation
			s.pending = &rc
		} else {
			s.pending = nil
		}

		frame := resp.Encode()
		if !resp.NeedsAck() {
			// poll dan revision inquiry dijawab terminal dengan ronde berikutnya
			if err := s.write(frame); err != nil {
				return err
			}
			continue
		}

		if err := s.deliver(frame); err != nil {
			return err
		}
		if !online.hdr.MultiTender() {
			return s.write([]byte{fdms.EOT})
		}
	}
}

// collect sends ENQ and gathers request legs until the terminal sends EOT.
func (s *session) collect() ([]leg, error) {
	if err := s.write([]byte{fdms.ENQ}); err != nil {
		return nil, err
	}

	var legs []leg
	attempts := 0
	for {
		if attempts >= s.h.Config.RequestAttempts {
			return nil, errRequestAttempts
		}

		frame, err := s.readFrame(s.h.Config.RequestTimeout())
		if err != nil {
			if disconnected(err) {
				return nil, err
			}
			if !timedOut(err) && !errors.Is(err, fdms.ErrFrame) {
				return nil, err
			}
			attempts++
			s.log.Warnf("session -> request attempt %d/%d: %v", attempts, s.h.Config.RequestAttempts, err)
			if err := s.write([]byte{fdms.NAK}); err != nil {
				return nil, err
			}
			continue
		}

		switch frame[0] {
		case fdms.EOT:
			return legs, nil
		case fdms.STX:
			hdr, txn, err := fdms.DecodeRequest(frame)
			if err != nil {
				attempts++
				s.log.Warnf("session -> request attempt %d/%d: %v", attempts, s.h.Config.RequestAttempts, err)
				if err := s.write([]byte{fdms.NAK}); err != nil {
					return nil, err
				}
				continue
			}
			attempts = 0
			legs = append(legs, leg{hdr: hdr, txn: txn})
			if err := s.write([]byte{fdms.ACK}); err != nil {
				return nil, err
			}
		default:
			s.log.Debugf("session -> ignoring stray byte %02X", frame[0])
		}
	}
}

// split separates the online leg from the offline ones and folds the add-on
// revision inquiries into the batch close they ride with.
func (s *session) split(legs []leg) (offline []leg, online leg, ok bool) {
	var addOns []*fdms.RevisionInquiry
	for _, l := range legs {
		switch {
		case l.hdr.TxnType == fdms.LegAddOn:
			if ri, isRI := l.txn.(*fdms.RevisionInquiry); isRI {
				addOns = append(addOns, ri)
				continue
			}
			offline = append(offline, l)
		case l.hdr.TxnType == fdms.LegOnline && !ok:
			online, ok = l, true
		default:
			offline = append(offline, l)
		}
	}

	if !ok {
		// tanpa leg online, leg pertama yang bukan add-on dijawab langsung
		for i, l := range offline {
			if l.hdr.TxnType == fdms.LegAddOn {
				continue
			}
			online, ok = l, true
			offline = append(offline[:i:i], offline[i+1:]...)
			break
		}
	}

	bc, isClose := online.txn.(*fdms.BatchClose)
	if ok && isClose {
		if s.pending != nil {
			bc.Reconciliation = *s.pending
		}
		bc.AddOns = addOns
	} else {
		for _, ri := range addOns {
			s.log.Warnf("session -> dropping revision inquiry for item %s without a batch close", ri.ItemNo)
		}
	}
	return offline, online, ok
}

// deliver writes the response and waits for ACK, resending on NAK or timeout.
func (s *session) deliver(frame []byte) error {
	for attempt := 1; attempt <= s.h.Config.AckAttempts; attempt++ {
		if err := s.write(frame); err != nil {
			return err
		}

		reply, err := s.readFrame(s.h.Config.AckTimeout())
		if err != nil {
			if !timedOut(err) || disconnected(err) {
				return err
			}
			s.log.Warnf("session -> ack attempt %d/%d: %v", attempt, s.h.Config.AckAttempts, err)
			continue
		}

		switch reply[0] {
		case fdms.ACK:
			return nil
		case fdms.NAK:
			s.log.Warnf("session -> ack attempt %d/%d: terminal sent NAK", attempt, s.h.Config.AckAttempts)
		default:
			return fmt.Errorf("unexpected %02X while waiting for ACK", reply[0])
		}
	}
	return errAckAttempts
}

func (s *session) readFrame(timeout time.Duration) ([]byte, error) {
	if err := s.conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}
	frame, err := fdms.ReadFrame(s.reader)
	if err != nil {
		return nil, err
	}
	s.log.WithField("debug_tag", logger.TagTerminalIn).Debugf("message request [%s]: %s", s.addr, strings.ToUpper(hex.EncodeToString(frame)))
	return frame, nil
}

func (s *session) write(b []byte) error {
	if err := s.conn.SetWriteDeadline(time.Now().Add(s.h.Config.AckTimeout())); err != nil {
		return err
	}
	if _, err := s.conn.Write(b); err != nil {
		return fmt.Errorf("write to terminal: %w", err)
	}
	s.log.WithField("debug_tag", logger.TagTerminalOut).Debugf("message response [%s]: %s", s.addr, strings.ToUpper(hex.EncodeToString(b)))
	return nil
}

func timedOut(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func disconnected(err error) bool {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, net.ErrClosed) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Err != nil {
		msg := opErr.Err.Error()
		return strings.Contains(msg, "connection reset by peer") ||
			strings.Contains(msg, "forcibly closed by the remote host") ||
			strings.Contains(msg, "broken pipe")
	}
	return false
}

// describe renders a leg for the session log with the card number masked.
func describe(l leg) string {
	code := l.hdr.TxnCode.String()
	switch t := l.txn.(type) {
	case *fdms.SwipedMonetary:
		return fmt.Sprintf("%s %s batch %s item %s card %s", code, t.TotalAmount.StringFixed(2), t.BatchNo, t.ItemNo, f.MaskTrack(t.TrackData))
	case *fdms.KeyedMonetary:
		return fmt.Sprintf("%s %s batch %s item %s card %s", code, t.TotalAmount.StringFixed(2), t.BatchNo, t.ItemNo, f.MaskPan(t.AccountNo))
	case *fdms.BatchClose:
		return fmt.Sprintf("%s batch %s items %s amount %s", code, t.BatchNo, t.ItemNo, t.CreditBatchAmount.StringFixed(2))
	case *fdms.RevisionInquiry:
		return fmt.Sprintf("%s from item %s", code, t.ItemNo)
	}
	return code
}
