package fdms

import (
	"errors"
	"fmt"
	"io"
)

const (
	STX byte = 0x02
	ETX byte = 0x03
	EOT byte = 0x04
	ENQ byte = 0x05
	ACK byte = 0x06
	NAK byte = 0x15
	FS  byte = 0x1C
	US  byte = 0x1F
	SEP byte = 0x23

	// MaxFrameLength membatasi panjang satu frame STX..ETX+LRS
	MaxFrameLength = 4096
)

var ErrFrame = errors.New("fdms: frame error")

// ReadFrame reads one control byte or one STX..ETX+LRS frame from r.
// Bit 7 of every byte is parity and is dropped.
func ReadFrame(r io.ByteReader) ([]byte, error) {
	b, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	b &= 0x7F
	if b != STX {
		return []byte{b}, nil
	}

	buf := make([]byte, 1, 128)
	buf[0] = b
	for {
		b, err = r.ReadByte()
		if err != nil {
			return nil, fmt.Errorf("%w: read frame: %w", ErrFrame, err)
		}
		b &= 0x7F
		buf = append(buf, b)

		if b == ETX {
			lrs, err := r.ReadByte()
			if err != nil {
				return nil, fmt.Errorf("%w: read lrs: %w", ErrFrame, err)
			}
			return append(buf, lrs&0x7F), nil
		}

		if len(buf) >= MaxFrameLength {
			return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrFrame, MaxFrameLength)
		}
	}
}

// Checksum is the XOR of frame[1 .. len-2], i.e. everything after STX up to and including ETX.
func Checksum(frame []byte) byte {
	var lrs byte
	for _, b := range frame[1 : len(frame)-1] {
		lrs ^= b
	}
	return lrs
}

func VerifyFrame(frame []byte) bool {
	if len(frame) < 3 || frame[0] != STX || frame[len(frame)-2] != ETX {
		return false
	}
	return Checksum(frame) == frame[len(frame)-1]
}

// BuildFrame wraps payload as STX payload ETX LRS.
func BuildFrame(payload []byte) []byte {
	frame := make([]byte, 0, len(payload)+3)
	frame = append(frame, STX)
	frame = append(frame, payload...)
	frame = append(frame, ETX, 0)
	frame[len(frame)-1] = Checksum(frame)
	return frame
}
