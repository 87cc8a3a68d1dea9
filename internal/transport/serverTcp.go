package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/alfianX/fdms-gateway/config"
	"github.com/alfianX/fdms-gateway/internal/handler"
	"github.com/alfianX/fdms-gateway/internal/maintenance"
	"github.com/sirupsen/logrus"
)

type connHandler func(ctx context.Context, conn net.Conn, sem chan struct{}, wg *sync.WaitGroup)

type TCP struct {
	config    config.Config
	maxClient int
	handler   *handler.Handler
	log       *logrus.Logger
}

func NewTCP(appLogger *logrus.Logger, cnf config.Config, newHandlerFunc func(config.Config, *logrus.Logger) (*handler.Handler, error)) (*TCP, error) {
	h, err := newHandlerFunc(cnf, appLogger)
	if err != nil {
		appLogger.Errorf("Failed to create handler: %v", err)
		return nil, err
	}

	maxClient := cnf.MaxClient
	if maxClient <= 0 {
		maxClient = 1000
	}

	s := TCP{
		config:    cnf,
		maxClient: maxClient,
		handler:   h,
		log:       appLogger,
	}

	return &s, nil
}

// Run serves terminals, and SiteNET clients when a bridge port is set, until ctx is cancelled.
func (s *TCP) Run(ctx context.Context) error {
	defer s.handler.Close()

	if store := s.handler.Sweeper(); store != nil && s.config.AuthSweepSchedule != "" {
		sweeper, err := maintenance.NewAuthSweeper(store, s.config.AuthSweepSchedule, s.config.AuthRetentionDays, s.log)
		if err != nil {
			s.log.Errorf("Failed to schedule authorization sweep: %v", err)
			return err
		}
		sweeper.Start()
		defer sweeper.Stop()
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 2)
	listeners := 1
	go func() {
		errc <- s.serve(ctx, "terminal", s.config.ListenPort, s.handler.ClientHandler)
	}()
	if s.config.BridgePort > 0 {
		listeners++
		go func() {
			errc <- s.serve(ctx, "bridge", s.config.BridgePort, s.handler.BridgeHandler)
		}()
	}

	// listener pertama yang berhenti menghentikan yang lain
	err := <-errc
	cancel()
	for i := 1; i < listeners; i++ {
		<-errc
	}
	return err
}

func (s *TCP) serve(ctx context.Context, name string, port int, handle connHandler) error {
	s.log.Infof("Server %s listen on port: %d", name, port)
	serverAddress := fmt.Sprintf("0.0.0.0:%d", port)
	listener, err := net.Listen("tcp", serverAddress)
	if err != nil {
		s.log.Errorf("Failed to listen on %s: %v", serverAddress, err)
		return err
	}
	defer listener.Close()

	ctx, cancel := context.WithCancel(ctx)
	sem := make(chan struct{}, s.maxClient)
	waitingQueue := make(chan net.Conn, s.maxClient)
	var wg sync.WaitGroup
	dispatched := make(chan struct{})

	go func() {
		defer close(dispatched)
		for conn := range waitingQueue {
			select {
			case sem <- struct{}{}:
				wg.Add(1)
				go handle(ctx, conn, sem, &wg)
			case <-ctx.Done():
				s.log.Warnf("Server %s shutting down, dropping queued client: %v", name, conn.RemoteAddr())
				conn.Close()
			}
		}
	}()

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	defer func() {
		cancel()
		close(waitingQueue)
		<-dispatched
		wg.Wait()
		s.log.Infof("All %s handlers finished. Server stopped.", name)
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.log.Infof("Server %s shutting down due to context cancellation.", name)
				return ctx.Err()
			}
			if opErr, ok := err.(*net.OpError); ok && opErr.Op == "accept" && opErr.Err.Error() == "use of closed network connection" {
				s.log.Infof("Listener %s closed, stopping accept loop for graceful shutdown.", name)
				return nil
			}

			if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
				s.log.Warnf("Temporary error accepting connection: %v. Retrying...", err)
				time.Sleep(100 * time.Millisecond)
				continue
			}

			s.log.Errorf("Fatal error accepting connection: %v, stopping server!", err)
			return err
		}

		select {
		case waitingQueue <- conn:
		case <-ctx.Done():
			s.log.Warnf("Server %s shutting down, dropping new connection: %v", name, conn.RemoteAddr())
			conn.Close()
			return ctx.Err()
		}
	}
}
