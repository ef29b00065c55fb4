// Package advert builds the BLE advertisement that carries meter readings.
//
// Manufacturer data layout (9 bytes, multi-byte fields big-endian):
//
//	[0]   battery level, unsigned percent
//	[1:5] cumulative flash count, uint32
//	[5:9] flashes per hour, uint32
package advert

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
)

// PayloadLen is the size of the manufacturer data payload.
const PayloadLen = 9

// Payload is the packed manufacturer data.
type Payload [PayloadLen]byte

// Reading is a decoded payload.
type Reading struct {
	Battery uint8
	Count   uint32
	Rate    uint32
}

// EncodePayload packs battery, count and rate into the wire layout.
func EncodePayload(battery uint8, count, rate uint32) Payload {
	var p Payload
	p[0] = battery
	binary.BigEndian.PutUint32(p[1:5], count)
	binary.BigEndian.PutUint32(p[5:9], rate)
	return p
}

// DecodePayload parses manufacturer data produced by EncodePayload.
// Trailing bytes beyond PayloadLen are ignored.
func DecodePayload(data []byte) (Reading, error) {
	if len(data) < PayloadLen {
		return Reading{}, fmt.Errorf("invalid payload length: expected at least %d bytes, got %d", PayloadLen, len(data))
	}
	return Reading{
		Battery: data[0],
		Count:   binary.BigEndian.Uint32(data[1:5]),
		Rate:    binary.BigEndian.Uint32(data[5:9]),
	}, nil
}

// Bytes returns the payload as a slice.
func (p Payload) Bytes() []byte {
	return p[:]
}

// String returns space-separated upper-case hex, e.g. "57 00 00 00 2A 00 00 00 64".
func (p Payload) String() string {
	return fmt.Sprintf("% X", p[:])
}

// ParseHex decodes a hex string (spaces and colons allowed) into a Reading.
// A leading little-endian ManufacturerID, as printed by scanners that show the
// raw AD structure value, is stripped.
func ParseHex(s string) (Reading, error) {
	clean := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ', ':', '-':
			continue
		}
		clean = append(clean, s[i])
	}
	data, err := hex.DecodeString(string(clean))
	if err != nil {
		return Reading{}, fmt.Errorf("decode hex: %w", err)
	}
	if len(data) == PayloadLen+2 && binary.LittleEndian.Uint16(data) == ManufacturerID {
		data = data[2:]
	}
	return DecodePayload(data)
}
