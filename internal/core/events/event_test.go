package events

import (
	"testing"

	"github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeReading(t *testing.T, telegram []byte) domain.MeterReading {
	reading, err := sma_multicast.DecodeTelegram(telegram)
	require.NoError(t, err)
	return domain.MeterReading{
		Reading:        *reading,
		Source:         "192.168.1.50",
		TelegramLength: len(telegram),
	}
}

func decimalEvents(evs []any) map[string]domain.DecimalSensorUpdateEvent {
	result := make(map[string]domain.DecimalSensorUpdateEvent)
	for _, ev := range evs {
		if dev, ok := ev.(domain.DecimalSensorUpdateEvent); ok {
			result[dev.Id] = dev
		}
	}
	return result
}

func TestMeterReadingToUpdateEventsImport(t *testing.T) {

	assert := assert.New(t)

	evs := MeterReadingToUpdateEvents(decodeReading(t, sma_multicast.BuildTelegram(1234, 12345, 4100, 4200, 4045)))
	assert.Len(evs, 7)

	byId := decimalEvents(evs)
	assert.Equal("1234.5", byId["1234_power"].Value.StringFixed(byId["1234_power"].Decimals))
	assert.Equal("410.0", byId["1234_power_l1"].Value.StringFixed(1))
	assert.Equal("420.0", byId["1234_power_l2"].Value.StringFixed(1))
	assert.Equal("404.5", byId["1234_power_l3"].Value.StringFixed(1))
	assert.True(byId["1234_import_power"].Value.Equal(decimal.RequireFromString("1234.5")))
	assert.True(byId["1234_export_power"].Value.IsZero())

	text, ok := evs[len(evs)-1].(domain.TextSensorUpdateEvent)
	if assert.True(ok) {
		assert.Equal("1234_source_address", text.Id)
		assert.Equal("192.168.1.50", text.Value)
	}
}

func TestMeterReadingToUpdateEventsExport(t *testing.T) {

	assert := assert.New(t)

	reading := decodeReading(t, sma_multicast.BuildTelegram(77, -8000, -2500, -2700, -2800))
	reading.Source = ""
	evs := MeterReadingToUpdateEvents(reading)
	assert.Len(evs, 6)

	byId := decimalEvents(evs)
	assert.Equal("-800.0", byId["77_power"].Value.StringFixed(1))
	assert.True(byId["77_import_power"].Value.IsZero())
	assert.Equal("800.0", byId["77_export_power"].Value.StringFixed(1))
}

func TestBridgeOnlineEvent(t *testing.T) {

	ev, ok := BridgeOnlineEvent(true).(domain.BridgeStateUpdateEvent)
	assert.True(t, ok)
	assert.Equal(t, domain.SENSOR_ID_BRIDGE_STATE, ev.Id)
	assert.True(t, ev.Value)
}
