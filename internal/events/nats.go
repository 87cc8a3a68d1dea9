package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alfianX/fdms-gateway/internal/repo"
	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

const SubjectBatchClosed = "fdms.batch.closed"

// Publisher is the part of *nats.Conn the notifier needs.
type Publisher interface {
	Publish(subj string, data []byte) error
}

type BatchClosedEvent struct {
	BatchID        int64     `json:"batch_id"`
	MerchantNumber string    `json:"merchant_number"`
	DeviceID       string    `json:"device_id"`
	BatchNo        string    `json:"batch_no"`
	DateOpen       time.Time `json:"date_open"`
	DateClosed     time.Time `json:"date_closed"`
	CreditCount    int       `json:"credit_count"`
	CreditAmount   string    `json:"credit_amount"`
	DebitCount     int       `json:"debit_count"`
	DebitAmount    string    `json:"debit_amount"`
}

// BatchNotifier publishes every closed batch on SubjectBatchClosed.
type BatchNotifier struct {
	conn Publisher
	log  *logrus.Logger
}

func NewBatchNotifier(conn Publisher, log *logrus.Logger) *BatchNotifier {
	return &BatchNotifier{conn: conn, log: log}
}

// Connect dials NATS and keeps reconnecting for the lifetime of the process.
func Connect(url string, log *logrus.Logger) (*nats.Conn, error) {
	nc, err := nats.Connect(url,
		nats.Name("fdms-gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warnf("nats -> disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Infof("nats -> reconnected to %s", c.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("nats -> connect %s: %w", url, err)
	}
	return nc, nil
}

func (n *BatchNotifier) BatchClosed(_ context.Context, batch *repo.ClosedBatch) error {
	event := BatchClosedEvent{
		BatchID:        batch.ID,
		MerchantNumber: batch.MerchantNumber,
		DeviceID:       batch.DeviceID,
		BatchNo:        batch.BatchNo,
		DateOpen:       batch.DateOpen,
		DateClosed:     batch.DateClosed,
		CreditCount:    batch.CreditCount,
		CreditAmount:   batch.CreditAmount.StringFixed(2),
		DebitCount:     batch.DebitCount,
		DebitAmount:    batch.DebitAmount.StringFixed(2),
	}
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("batch notifier -> marshal: %w", err)
	}
	if err := n.conn.Publish(SubjectBatchClosed, data); err != nil {
		return fmt.Errorf("batch notifier -> publish: %w", err)
	}
	n.log.Infof("batch notifier -> published batch %d of %s/%s", batch.ID, batch.MerchantNumber, batch.DeviceID)
	return nil
}
