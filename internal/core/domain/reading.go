package domain

import (
	"time"
)

// MeterReadingJSON is the external representation of a reading. Power values
// are decimal strings in watts with one decimal.
type MeterReadingJSON struct {
	Serial     uint32    `json:"serial"`
	Model      string    `json:"model"`
	Source     string    `json:"source,omitempty"`
	ReceivedAt time.Time `json:"received_at"`
	Power      string    `json:"power"`
	PowerL1    string    `json:"power_l1"`
	PowerL2    string    `json:"power_l2"`
	PowerL3    string    `json:"power_l3"`
}

func NewMeterReadingJSON(reading MeterReading) MeterReadingJSON {
	return MeterReadingJSON{
		Serial:     reading.Serial,
		Model:      MeterModel(reading.TelegramLength),
		Source:     reading.Source,
		ReceivedAt: reading.ReceivedAt,
		Power:      reading.Power3f.StringFixed(POWER_DECIMALS),
		PowerL1:    reading.PowerL1.StringFixed(POWER_DECIMALS),
		PowerL2:    reading.PowerL2.StringFixed(POWER_DECIMALS),
		PowerL3:    reading.PowerL3.StringFixed(POWER_DECIMALS),
	}
}

func NewHistoryRecord(reading MeterReading) HistoryRecord {
	return HistoryRecord{
		Serial:     reading.Serial,
		RecordedAt: reading.ReceivedAt,
		Power3f:    reading.Power3f.StringFixed(POWER_DECIMALS),
		PowerL1:    reading.PowerL1.StringFixed(POWER_DECIMALS),
		PowerL2:    reading.PowerL2.StringFixed(POWER_DECIMALS),
		PowerL3:    reading.PowerL3.StringFixed(POWER_DECIMALS),
	}
}
