package boat

import (
	"errors"
	"fmt"
)

// Frame layout: start delimiter, 16-bit big-endian payload length, payload,
// checksum. The checksum is 0xFF minus the low byte of the payload sum.
//
// Payload layout: API id, 16-bit source address, data.
const (
	frameStart = 0x7E

	apiPairRequest = 0x01
	apiCommand     = 0x02
	apiAck         = 0x03
	apiNack        = 0x04

	minPayload = 3
	maxPayload = 64
)

var (
	ErrBadFrame    = errors.New("bad frame")
	ErrBadChecksum = errors.New("bad checksum")
)

// Packet is a decoded radio payload
type Packet struct {
	API    byte
	Source uint16
	Data   []byte
}

func checksum(payload []byte) byte {
	var sum byte
	for _, b := range payload {
		sum += b
	}
	return 0xFF - sum
}

// EncodeFrame wraps a packet for the radio
func EncodeFrame(p Packet) []byte {
	payload := make([]byte, 0, minPayload+len(p.Data))
	payload = append(payload, p.API, byte(p.Source>>8), byte(p.Source))
	payload = append(payload, p.Data...)

	frame := make([]byte, 0, len(payload)+4)
	frame = append(frame, frameStart, byte(len(payload)>>8), byte(len(payload)))
	frame = append(frame, payload...)
	return append(frame, checksum(payload))
}

// DecodeFrame validates and unpacks a frame
func DecodeFrame(frame []byte) (Packet, error) {
	if len(frame) < 4+minPayload || frame[0] != frameStart {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrBadFrame, len(frame))
	}
	n := int(frame[1])<<8 | int(frame[2])
	if n < minPayload || n > maxPayload || len(frame) != n+4 {
		return Packet{}, fmt.Errorf("%w: length %d in %d byte frame", ErrBadFrame, n, len(frame))
	}
	payload := frame[3 : 3+n]
	if got, want := frame[3+n], checksum(payload); got != want {
		return Packet{}, fmt.Errorf("%w: got %#02x want %#02x", ErrBadChecksum, got, want)
	}
	return Packet{
		API:    payload[0],
		Source: uint16(payload[1])<<8 | uint16(payload[2]),
		Data:   append([]byte(nil), payload[3:]...),
	}, nil
}

// packCommand folds thrust and rudder into an event parameter
func packCommand(thrust, rudder int8) uint16 {
	return uint16(uint8(thrust))<<8 | uint16(uint8(rudder))
}

func unpackCommand(param uint16) (thrust, rudder int8) {
	return int8(param >> 8), int8(param)
}
