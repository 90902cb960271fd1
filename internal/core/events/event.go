package events

import (
	. "github.com/Johanpmeert/SMA-multicast-decode/internal/core/domain"
	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

	"github.com/shopspring/decimal"
)

func MeterReadingToUpdateEvents(reading MeterReading) []any {
	var events []any

	// Total and per phase power
	for _, c := range sma_multicast.Channels {
		events = append(events, powerEvent(reading.Serial, ChannelSensorId(c), reading.Power(c)))
	}

	// Import / Export split of the total power
	importPower := decimal.Zero
	exportPower := decimal.Zero
	if reading.Power3f.IsPositive() {
		importPower = reading.Power3f
	} else if reading.Power3f.IsNegative() {
		exportPower = reading.Power3f.Neg()
	}
	events = append(events, powerEvent(reading.Serial, SENSOR_ID_IMPORT_POWER, importPower))
	events = append(events, powerEvent(reading.Serial, SENSOR_ID_EXPORT_POWER, exportPower))

	// Source address
	if reading.Source != "" {
		events = append(events, TextSensorUpdateEvent{
			SensorUpdateEventMixIn: SensorUpdateEventMixIn{
				Id: MeterSensorId(reading.Serial, SENSOR_ID_SOURCE_ADDRESS),
			},
			Value: reading.Source,
		})
	}

	return events
}

func BridgeOnlineEvent(online bool) any {
	return BridgeStateUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: SENSOR_ID_BRIDGE_STATE,
		},
		Value: online,
	}
}

func powerEvent(serial uint32, sensorId string, value decimal.Decimal) DecimalSensorUpdateEvent {
	return DecimalSensorUpdateEvent{
		SensorUpdateEventMixIn: SensorUpdateEventMixIn{
			Id: MeterSensorId(serial, sensorId),
		},
		Value:    value,
		Decimals: POWER_DECIMALS,
	}
}
