package transport

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/alfianX/fdms-gateway/config"
	"github.com/alfianX/fdms-gateway/internal/handler"
	"github.com/alfianX/fdms-gateway/internal/processor"
	"github.com/alfianX/fdms-gateway/internal/repo"
	"github.com/alfianX/fdms-gateway/pkg/fdms"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTCP(t *testing.T) {
	// Skenario 1: Test jika handler berhasil dibuat
	t.Run("Success", func(t *testing.T) {
		mockNewHandlerFunc := func(cnf config.Config, appLogger *logrus.Logger) (*handler.Handler, error) {
			return &handler.Handler{}, nil
		}

		cnf := config.Config{ListenPort: 8080}
		appLogger := logrus.New()

		tcp, err := NewTCP(appLogger, cnf, mockNewHandlerFunc)

		assert.NoError(t, err)
		assert.NotNil(t, tcp)
		assert.Equal(t, cnf, tcp.config)
		assert.Equal(t, 1000, tcp.maxClient)
		assert.NotNil(t, tcp.handler)
		assert.Equal(t, appLogger, tcp.log)
	})

	// Skenario 2: MAX_CLIENT dari konfigurasi dipakai
	t.Run("MaxClientFromConfig", func(t *testing.T) {
		mockNewHandlerFunc := func(cnf config.Config, appLogger *logrus.Logger) (*handler.Handler, error) {
			return &handler.Handler{}, nil
		}

		tcp, err := NewTCP(logrus.New(), config.Config{MaxClient: 16}, mockNewHandlerFunc)
		require.NoError(t, err)
		assert.Equal(t, 16, tcp.maxClient)
	})

	// Skenario 3: Test jika handler gagal dibuat
	t.Run("HandlerCreationFails", func(t *testing.T) {
		expectedErr := errors.New("failed to create handler")

		mockNewHandlerFunc := func(cnf config.Config, appLogger *logrus.Logger) (*handler.Handler, error) {
			return nil, expectedErr
		}

		cnf := config.Config{ListenPort: 8080}
		appLogger := logrus.New()

		tcp, err := NewTCP(appLogger, cnf, mockNewHandlerFunc)

		assert.Error(t, err)
		assert.Equal(t, expectedErr, err)
		assert.Nil(t, tcp)
	})
}

// MockNewHandler membuat handler sungguhan di atas storage memori.
func MockNewHandler(cnf config.Config, appLogger *logrus.Logger) (*handler.Handler, error) {
	storage := repo.NewMemoryStorage()
	return handler.New(cnf, appLogger, processor.New(storage, appLogger), storage), nil
}

func depositInquiryFrame() []byte {
	hdr := fdms.Header{
		ProtocolType:   '1',
		TerminalID:     "POSHOM",
		MerchantNumber: "1234567890",
		DeviceID:       "0239",
		WCC:            '@',
		TxnType:        fdms.LegOnline,
		TxnCode:        fdms.TxnDepositInquiry,
	}
	return fdms.BuildFrame(hdr.Encode())
}

func dial(t *testing.T, port int) net.Conn {
	t.Helper()
	var conn net.Conn
	var err error
	// beri server waktu untuk mulai listen
	for i := 0; i < 20; i++ {
		conn, err = net.Dial("tcp", fmt.Sprintf("localhost:%d", port))
		if err == nil {
			return conn
		}
		time.Sleep(50 * time.Millisecond)
	}
	require.NoError(t, err, "failed to connect to server")
	return nil
}

func readFrame(t *testing.T, conn net.Conn, r *bufio.Reader) []byte {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	frame, err := fdms.ReadFrame(r)
	require.NoError(t, err)
	return frame
}

// TestServerClientE2E menguji alur lengkap dari koneksi terminal hingga server merespons.
func TestServerClientE2E(t *testing.T) {
	clientPort := 18787
	bridgePort := 18788

	cnf := config.Config{
		ListenPort:      clientPort,
		BridgePort:      bridgePort,
		MaxClient:       4,
		TimeoutRequest:  2,
		TimeoutAck:      2,
		RequestAttempts: 5,
		AckAttempts:     4,
	}
	appLogger := logrus.New()

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tcpServer, err := NewTCP(appLogger, cnf, MockNewHandler)
		assert.NoError(t, err)
		assert.ErrorIs(t, tcpServer.Run(ctx), context.Canceled)
	}()

	clientConn := dial(t, clientPort)
	defer clientConn.Close()
	r := bufio.NewReader(clientConn)

	assert.Equal(t, []byte{fdms.ENQ}, readFrame(t, clientConn, r))
	_, err := clientConn.Write(depositInquiryFrame())
	require.NoError(t, err)
	assert.Equal(t, []byte{fdms.ACK}, readFrame(t, clientConn, r))
	_, err = clientConn.Write([]byte{fdms.EOT})
	require.NoError(t, err)

	response := readFrame(t, clientConn, r)
	assert.True(t, fdms.VerifyFrame(response))
	assert.True(t, bytes.Contains(response, []byte("CR 000 0.00")), "%q", response)

	_, err = clientConn.Write([]byte{fdms.ACK})
	require.NoError(t, err)
	assert.Equal(t, []byte{fdms.EOT}, readFrame(t, clientConn, r))

	// bridge listener ikut berjalan
	bridgeConn := dial(t, bridgePort)
	defer bridgeConn.Close()
	require.NoError(t, handler.WriteBridgePacket(bridgeConn, handler.BridgeInfoRecord, []byte("CUST01,1234567890,FDMS,CREDIT")))
	require.NoError(t, bridgeConn.SetReadDeadline(time.Now().Add(5*time.Second)))
	typ, payload, err := handler.ReadBridgePacket(bridgeConn)
	require.NoError(t, err)
	assert.Equal(t, handler.BridgeData, typ)
	assert.Equal(t, []byte{fdms.ENQ}, payload)

	// graceful shutdown menutup sesi yang masih terbuka
	cancel()
	wg.Wait()
}
