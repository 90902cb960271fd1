package sma_multicast

import "encoding/binary"

const (
	ENERGY_METER_TELEGRAM_LENGTH = 600
	HOME_MANAGER_TELEGRAM_LENGTH = 608
	MEASUREMENTS_OFFSET          = 28
)

var telegramHeader = []byte{
	0x53, 0x4d, 0x41, 0x00, // "SMA\0"
	0x00, 0x04, 0x02, 0xa0, 0x00, 0x00, 0x00, 0x01,
	0x02, 0x44, 0x00, 0x10, 0x60, 0x69,
}

// TelegramBuilder writes synthetic telegrams laid out like the ones sent by
// the meters: header, serial, then marker/value records.
type TelegramBuilder struct {
	data []byte
	next int
}

func NewTelegramBuilder(length int) *TelegramBuilder {
	data := make([]byte, length)
	copy(data, telegramHeader)
	return &TelegramBuilder{
		data: data,
		next: MEASUREMENTS_OFFSET,
	}
}

func (b *TelegramBuilder) Serial(serial uint32) *TelegramBuilder {
	if len(b.data) >= SERIAL_OFFSET+SERIAL_LENGTH {
		binary.BigEndian.PutUint32(b.data[SERIAL_OFFSET:], serial)
	}
	return b
}

// MarkerAt writes pattern at offset followed by value at the marker value
// offset. Writes that do not fit are cut at the end of the telegram.
func (b *TelegramBuilder) MarkerAt(offset int, pattern [MARKER_SIZE]byte, value int32) *TelegramBuilder {
	var record [MARKER_VALUE_OFFSET + MARKER_VALUE_LENGTH]byte
	copy(record[:], pattern[:])
	binary.BigEndian.PutUint32(record[MARKER_VALUE_OFFSET:], uint32(value))
	if offset >= 0 && offset < len(b.data) {
		copy(b.data[offset:], record[:])
	}
	if end := offset + len(record); end > b.next {
		b.next = end
	}
	return b
}

// Channel appends both markers of a channel. tenths is the power in 0.1W,
// negative values go to the negative marker.
func (b *TelegramBuilder) Channel(c Channel, tenths int32) *TelegramBuilder {
	pair, ok := ChannelMarkers(c)
	if !ok {
		return b
	}
	var pos, neg int32
	if tenths >= 0 {
		pos = tenths
	} else {
		neg = -tenths
	}
	b.MarkerAt(b.next, pair.Positive.Pattern, pos)
	b.MarkerAt(b.next, pair.Negative.Pattern, neg)
	return b
}

func (b *TelegramBuilder) Bytes() []byte {
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}

// BuildTelegram returns a home manager sized telegram with all four channels.
func BuildTelegram(serial uint32, power3f, powerL1, powerL2, powerL3 int32) []byte {
	return NewTelegramBuilder(HOME_MANAGER_TELEGRAM_LENGTH).
		Serial(serial).
		Channel(CHANNEL_3PHASE, power3f).
		Channel(CHANNEL_L1, powerL1).
		Channel(CHANNEL_L2, powerL2).
		Channel(CHANNEL_L3, powerL3).
		Bytes()
}
