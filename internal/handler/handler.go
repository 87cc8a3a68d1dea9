package handler

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/alfianX/fdms-gateway/config"
	"github.com/alfianX/fdms-gateway/internal/events"
	"github.com/alfianX/fdms-gateway/internal/processor"
	"github.com/alfianX/fdms-gateway/internal/repo"
	"github.com/alfianX/fdms-gateway/pkg/fdms"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	_ "github.com/joho/godotenv/autoload"
)

// Processor executes one decoded transaction and always answers with a response.
type Processor interface {
	Process(ctx context.Context, hdr fdms.Header, txn fdms.Transaction) fdms.Response
}

type Handler struct {
	Config    config.Config
	Log       *logrus.Logger
	processor Processor
	sweeper   repo.Sweeper
	closers   []func() error
}

func New(cnf config.Config, log *logrus.Logger, p Processor, sweeper repo.Sweeper) *Handler {
	return &Handler{
		Config:    cnf,
		Log:       log,
		processor: p,
		sweeper:   sweeper,
	}
}

// NewHandler wires the configured storage backend and the optional NATS notifier.
func NewHandler(cnf config.Config, log *logrus.Logger) (*Handler, error) {
	h := &Handler{Config: cnf, Log: log}

	var storage repo.Storage
	switch cnf.Storage {
	case config.StorageMySQL:
		db, err := repo.InitDSN(cnf.Database)
		if err != nil {
			return nil, fmt.Errorf("new handler -> mysql: %w", err)
		}
		if err := repo.Migrate(db); err != nil {
			return nil, fmt.Errorf("new handler -> migrate: %w", err)
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("new handler -> mysql: %w", err)
		}
		h.closers = append(h.closers, sqlDB.Close)
		gs := repo.NewGormStorage(db)
		storage, h.sweeper = gs, gs
	case config.StorageRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     cnf.RedisAddress,
			Password: cnf.RedisPassword,
			DB:       cnf.RedisDB,
		})
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("new handler -> redis %s: %w", cnf.RedisAddress, err)
		}
		h.closers = append(h.closers, client.Close)
		rs := repo.NewRedisStorage(client)
		storage, h.sweeper = rs, rs
	default:
		log.Warn("Using in-memory storage, batches are lost on restart.")
		ms := repo.NewMemoryStorage()
		storage, h.sweeper = ms, ms
	}

	var opts []processor.Option
	if cnf.NatsURL != "" {
		nc, err := events.Connect(cnf.NatsURL, log)
		if err != nil {
			h.Close()
			return nil, fmt.Errorf("new handler -> %w", err)
		}
		h.closers = append(h.closers, func() error {
			return nc.Drain()
		})
		opts = append(opts, processor.WithNotifier(events.NewBatchNotifier(nc, log)))
	}

	h.processor = processor.New(storage, log, opts...)
	log.Infof("Handler ready with %s storage", cnf.Storage)
	return h, nil
}

// Sweeper returns the storage that can purge stale authorizations, or nil.
func (h *Handler) Sweeper() repo.Sweeper {
	return h.sweeper
}

// Close releases connections opened by NewHandler, newest first.
func (h *Handler) Close() {
	for i := len(h.closers) - 1; i >= 0; i-- {
		if err := h.closers[i](); err != nil {
			h.Log.Errorf("handler close -> %v", err)
		}
	}
	h.closers = nil
}

// ClientHandler serves one accepted terminal connection and releases its semaphore slot.
func (h *Handler) ClientHandler(ctx context.Context, conn net.Conn, sem chan struct{}, wg *sync.WaitGroup) {
	defer func() {
		wg.Done() // Memberi tahu WaitGroup bahwa goroutine selesai
		<-sem     // Melepaskan semaphore
	}()
	h.Serve(ctx, conn)
}

// BridgeHandler is ClientHandler for SiteNET bridge connections.
func (h *Handler) BridgeHandler(ctx context.Context, conn net.Conn, sem chan struct{}, wg *sync.WaitGroup) {
	defer func() {
		wg.Done()
		<-sem
	}()
	h.ServeBridge(ctx, conn)
}
