package sma_multicast

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

const (
	// SMA Energy Meter sends 600 bytes, Sunny Home Manager 2.0 sends 608
	MIN_TELEGRAM_LENGTH = 600
	SERIAL_OFFSET       = 20
	SERIAL_LENGTH       = 4
	// raw power values are in 0.1W
	POWER_EXPONENT = -1
)

var (
	ErrTooShort       = errors.New("telegram too short")
	ErrTruncatedField = errors.New("telegram field truncated")
)

type DecodeError struct {
	Kind   error
	Field  string
	Offset int
	Length int
}

func (e *DecodeError) Error() string {
	if e.Kind == ErrTooShort {
		return fmt.Sprintf("%s: %d bytes, need at least %d", e.Kind, e.Length, MIN_TELEGRAM_LENGTH)
	}
	return fmt.Sprintf("%s: %s at offset %d exceeds %d bytes", e.Kind, e.Field, e.Offset, e.Length)
}

func (e *DecodeError) Unwrap() error {
	return e.Kind
}

type Reading struct {
	Serial uint32
	// Power in watts. Positive = import (consumption from grid). Negative = export
	Power3f decimal.Decimal
	PowerL1 decimal.Decimal
	PowerL2 decimal.Decimal
	PowerL3 decimal.Decimal
}

func (r Reading) Power(c Channel) decimal.Decimal {
	switch c {
	case CHANNEL_L1:
		return r.PowerL1
	case CHANNEL_L2:
		return r.PowerL2
	case CHANNEL_L3:
		return r.PowerL3
	default:
		return r.Power3f
	}
}

func (r Reading) String() string {
	return fmt.Sprintf("P = %s W (%s,%s,%s)", r.Power3f.StringFixed(1),
		r.PowerL1.StringFixed(1), r.PowerL2.StringFixed(1), r.PowerL3.StringFixed(1))
}

// DecodeTelegram extracts the serial number and the total and per phase
// power from a received telegram. Fields are located by marker, so the
// telegram length and field order may vary between firmware versions.
func DecodeTelegram(data []byte) (*Reading, error) {
	if len(data) < MIN_TELEGRAM_LENGTH {
		return nil, &DecodeError{Kind: ErrTooShort, Length: len(data)}
	}

	serial, err := readUint32(data, SERIAL_OFFSET, "serial")
	if err != nil {
		return nil, err
	}

	var powers [len(Channels)]decimal.Decimal
	for _, c := range Channels {
		power, err := decodeChannel(data, channelMarkers[c])
		if err != nil {
			return nil, err
		}
		powers[c] = power
	}

	return &Reading{
		Serial:  serial,
		Power3f: powers[CHANNEL_3PHASE],
		PowerL1: powers[CHANNEL_L1],
		PowerL2: powers[CHANNEL_L2],
		PowerL3: powers[CHANNEL_L3],
	}, nil
}

// at least one value of a pair is always zero
func decodeChannel(data []byte, pair MarkerPair) (decimal.Decimal, error) {
	pos, err := readMarkerValue(data, pair.Positive)
	if err != nil {
		return decimal.Decimal{}, err
	}
	neg, err := readMarkerValue(data, pair.Negative)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if pos != 0 {
		return decimal.New(int64(pos), POWER_EXPONENT), nil
	}
	return decimal.New(-int64(neg), POWER_EXPONENT), nil
}

// an absent marker reads as zero
func readMarkerValue(data []byte, spec MarkerSpec) (int32, error) {
	location, found := FindMarker(data, spec.Pattern)
	if !found {
		return 0, nil
	}
	value, err := readUint32(data, location+spec.Offset, spec.Name)
	if err != nil {
		return 0, err
	}
	return int32(value), nil
}

func readUint32(data []byte, offset int, field string) (uint32, error) {
	if offset < 0 || offset+4 > len(data) {
		return 0, &DecodeError{Kind: ErrTruncatedField, Field: field, Offset: offset, Length: len(data)}
	}
	return binary.BigEndian.Uint32(data[offset : offset+4]), nil
}
