package handler

import (
	"bufio"
	"context"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/alfianX/fdms-gateway/pkg/fdms"
	"github.com/alfianX/fdms-gateway/pkg/logger"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SiteNET packet types.
const (
	BridgeInfoRecord = "01"
	BridgeError      = "02"
	BridgeData       = "22"

	bridgeHeaderLen = 4
	bridgeMaxLen    = 0xFFFF
)

const bridgeProtocolError = "201 SERVER PROTOCOL ERROR"

var ErrBridgePacket = errors.New("bridge: packet error")

// BridgeInfo is the identification record a SiteNET client opens with.
type BridgeInfo struct {
	CustomerID      string
	MerchantNo      string
	MessageFormat   string
	TransactionType string
	DriverVersion   string
}

func parseBridgeInfo(data []byte) (BridgeInfo, error) {
	fields := strings.Split(string(data), ",")
	if len(fields) < 4 {
		return BridgeInfo{}, fmt.Errorf("%w: info record has %d fields", ErrBridgePacket, len(fields))
	}
	info := BridgeInfo{
		CustomerID:      strings.TrimSpace(fields[0]),
		MerchantNo:      strings.TrimSpace(fields[1]),
		MessageFormat:   strings.TrimSpace(fields[2]),
		TransactionType: strings.TrimSpace(fields[3]),
	}
	if len(fields) > 4 {
		info.DriverVersion = strings.TrimSpace(fields[4])
	}
	return info, nil
}

// ReadBridgePacket reads one packet: 2-byte big-endian payload length, 2-char type, payload.
func ReadBridgePacket(r io.Reader) (string, []byte, error) {
	header := make([]byte, bridgeHeaderLen)
	if _, err := io.ReadFull(r, header); err != nil {
		return "", nil, err
	}
	length := binary.BigEndian.Uint16(header[:2])
	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return "", nil, fmt.Errorf("%w: read payload: %w", ErrBridgePacket, err)
	}
	return string(header[2:]), payload, nil
}

func WriteBridgePacket(w io.Writer, typ string, payload []byte) error {
	if len(typ) != 2 || len(payload) > bridgeMaxLen {
		return fmt.Errorf("%w: type %q with %d bytes", ErrBridgePacket, typ, len(payload))
	}
	packet := make([]byte, bridgeHeaderLen, bridgeHeaderLen+len(payload))
	binary.BigEndian.PutUint16(packet, uint16(len(payload)))
	copy(packet[2:], typ)
	packet = append(packet, payload...)
	_, err := w.Write(packet)
	return err
}

// ServeBridge accepts a SiteNET client and relays its FDMS frames into a
// regular terminal session running over an in-memory pipe.
func (h *Handler) ServeBridge(ctx context.Context, conn net.Conn) {
	stop := context.AfterFunc(ctx, func() {
		conn.Close()
	})
	defer func() {
		stop()
		conn.Close()
	}()

	log := h.Log.WithFields(logrus.Fields{
		"bridge": uuid.NewString(),
		"remote": conn.RemoteAddr().String(),
	})

	conn.SetReadDeadline(time.Now().Add(h.Config.RequestTimeout()))
	typ, data, err := ReadBridgePacket(conn)
	if err != nil {
		if !disconnected(err) {
			log.Warnf("bridge -> read info record: %v", err)
		}
		return
	}
	log.WithField("debug_tag", logger.TagBridgeIn).Debugf("bridge request [%s]: %s %s", conn.RemoteAddr(), typ, strings.ToUpper(hex.EncodeToString(data)))

	info, err := parseBridgeInfo(data)
	if typ != BridgeInfoRecord || err != nil {
		log.Warnf("bridge -> expected info record, got type %s", typ)
		if err := WriteBridgePacket(conn, BridgeError, []byte(bridgeProtocolError)); err != nil {
			log.Warnf("bridge -> write error packet: %v", err)
		}
		return
	}
	log.Infof("bridge -> customer %s merchant %s format %s type %s driver %s",
		info.CustomerID, info.MerchantNo, info.MessageFormat, info.TransactionType, info.DriverVersion)
	conn.SetReadDeadline(time.Time{})

	inner, outer := net.Pipe()
	var wg sync.WaitGroup
	wg.Add(3)

	go func() {
		defer wg.Done()
		h.Serve(ctx, inner)
	}()

	done := make(chan struct{}, 2)

	// session -> SiteNET
	go func() {
		defer wg.Done()
		defer func() { done <- struct{}{} }()
		r := bufio.NewReader(outer)
		for {
			frame, err := fdms.ReadFrame(r)
			if err != nil {
				if !disconnected(err) {
					log.Warnf("bridge -> read from session: %v", err)
				}
				return
			}
			log.WithField("debug_tag", logger.TagBridgeOut).Debugf("bridge response [%s]: %s", conn.RemoteAddr(), strings.ToUpper(hex.EncodeToString(frame)))
			if err := WriteBridgePacket(conn, BridgeData, frame); err != nil {
				log.Warnf("bridge -> write to client: %v", err)
				return
			}
		}
	}()

	// SiteNET -> session
	go func() {
		defer wg.Done()
		defer func() { done <- struct{}{} }()
		for {
			typ, data, err := ReadBridgePacket(conn)
			if err != nil {
				if !disconnected(err) {
					log.Warnf("bridge -> read from client: %v", err)
				}
				return
			}
			log.WithField("debug_tag", logger.TagBridgeIn).Debugf("bridge request [%s]: %s %s", conn.RemoteAddr(), typ, strings.ToUpper(hex.EncodeToString(data)))
			if typ != BridgeData {
				log.Debugf("bridge -> ignoring packet type %s", typ)
				continue
			}
			if _, err := outer.Write(data); err != nil {
				return
			}
		}
	}()

	<-done
	outer.Close()
	conn.Close()
	wg.Wait()
	log.Debug("bridge -> finished")
}
