package domain

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"

	"github.com/Johanpmeert/SMA-multicast-decode/pkg/sma_multicast"

	"github.com/carlmjohnson/versioninfo"
)

const (
	SENSOR_ID_BRIDGE_STATE    = "bridge"
	SENSOR_ID_POWER           = "power"
	SENSOR_ID_POWER_L1        = "power_l1"
	SENSOR_ID_POWER_L2        = "power_l2"
	SENSOR_ID_POWER_L3        = "power_l3"
	SENSOR_ID_IMPORT_POWER    = "import_power"
	SENSOR_ID_EXPORT_POWER    = "export_power"
	SENSOR_ID_SOURCE_ADDRESS  = "source_address"
	STATE_CLASS_MEASUREMENT   = "measurement"
	DEVICE_CLASS_POWER        = "power"
	DEVICE_CLASS_CONNECTIVITY = "connectivity"
	ENTITY_CLASS_DIAGNOSTIC   = "diagnostic"
	SENSOR_TYPE_SENSOR        = "sensor"
	SENSOR_TYPE_BINARY        = "binary_sensor"
	UNIT_WATT                 = "W"
	POWER_DECIMALS            = 1
)

var channelSensorIds = map[sma_multicast.Channel]string{
	sma_multicast.CHANNEL_3PHASE: SENSOR_ID_POWER,
	sma_multicast.CHANNEL_L1:     SENSOR_ID_POWER_L1,
	sma_multicast.CHANNEL_L2:     SENSOR_ID_POWER_L2,
	sma_multicast.CHANNEL_L3:     SENSOR_ID_POWER_L3,
}

func BridgeDevice(baseTopic string) Device {
	return Device{
		Id:           fmt.Sprintf("smameter_bridge_%s", md5HashShort(baseTopic)),
		Manufacturer: "Johanpmeert",
		Model:        "SMA multicast bridge",
		Version:      versioninfo.Short(),
		Name:         fmt.Sprintf("SMA meter bridge %s", md5HashShort(baseTopic)),
	}
}

func MeterDevice(reading MeterReading) Device {
	model := MeterModel(reading.TelegramLength)
	return Device{
		Id:           MeterDeviceId(reading.Serial),
		Manufacturer: "SMA",
		Model:        model,
		SerialNumber: fmt.Sprintf("%d", reading.Serial),
		Name:         fmt.Sprintf("SMA %s %d", model, reading.Serial),
	}
}

func MeterDeviceId(serial uint32) string {
	return fmt.Sprintf("sma_meter_%d", serial)
}

// MeterModel guesses the device type from its telegram length.
func MeterModel(telegramLength int) string {
	switch telegramLength {
	case sma_multicast.ENERGY_METER_TELEGRAM_LENGTH:
		return "Energy Meter"
	case sma_multicast.HOME_MANAGER_TELEGRAM_LENGTH:
		return "Sunny Home Manager 2.0"
	default:
		return "Energy Meter"
	}
}

func IdDevice(device Device) Device {
	return Device{
		Id:   device.Id,
		Name: device.Name,
	}
}

// MeterSensorId is the per meter id of a sensor, used in state topics.
func MeterSensorId(serial uint32, sensorId string) string {
	return fmt.Sprintf("%d_%s", serial, sensorId)
}

func ChannelSensorId(c sma_multicast.Channel) string {
	return channelSensorIds[c]
}

func MeterSensors(meterDevice Device, serial uint32) []GenericSensor {

	var sensors []GenericSensor

	powerSensor := func(id, name, icon string) GenericSensor {
		return GenericSensor{
			Device:            meterDevice,
			Id:                MeterSensorId(serial, id),
			SensorType:        SENSOR_TYPE_SENSOR,
			Name:              name,
			UniqueId:          uniqueId(meterDevice.Id, id),
			UnitOfMeasurement: UNIT_WATT,
			StateClass:        STATE_CLASS_MEASUREMENT,
			DeviceClass:       DEVICE_CLASS_POWER,
			Icon:              icon,
		}
	}

	// Total power flow. Positive = import. Negative = export
	sensors = append(sensors, powerSensor(SENSOR_ID_POWER, "Power", "mdi:transmission-tower"))
	sensors = append(sensors, powerSensor(SENSOR_ID_POWER_L1, "Power L1", "mdi:flash"))
	sensors = append(sensors, powerSensor(SENSOR_ID_POWER_L2, "Power L2", "mdi:flash"))
	sensors = append(sensors, powerSensor(SENSOR_ID_POWER_L3, "Power L3", "mdi:flash"))
	sensors = append(sensors, powerSensor(SENSOR_ID_IMPORT_POWER, "Import power", "mdi:transmission-tower-import"))
	sensors = append(sensors, powerSensor(SENSOR_ID_EXPORT_POWER, "Export power", "mdi:transmission-tower-export"))
	// Source address
	sensors = append(sensors, GenericSensor{
		Device:           meterDevice,
		Id:               MeterSensorId(serial, SENSOR_ID_SOURCE_ADDRESS),
		SensorType:       SENSOR_TYPE_SENSOR,
		Name:             "Source address",
		UniqueId:         uniqueId(meterDevice.Id, SENSOR_ID_SOURCE_ADDRESS),
		EntityCategory:   ENTITY_CLASS_DIAGNOSTIC,
		EnabledByDefault: optionalBool(false),
		Icon:             "mdi:ip-network",
	})

	return sensors
}

func BridgeSensors(bridgeDevice Device) []GenericSensor {

	var sensors []GenericSensor

	// Bridge state
	sensors = append(sensors, GenericSensor{
		Device:         bridgeDevice,
		Id:             SENSOR_ID_BRIDGE_STATE,
		SensorType:     SENSOR_TYPE_BINARY,
		Name:           "Bridge state",
		DeviceClass:    DEVICE_CLASS_CONNECTIVITY,
		EntityCategory: ENTITY_CLASS_DIAGNOSTIC,
		UniqueId:       uniqueId(bridgeDevice.Id, SENSOR_ID_BRIDGE_STATE),
	})

	return sensors
}

func uniqueId(baseId, id string) string {
	return fmt.Sprintf("uid_%s_%s", baseId, id)
}

func md5Hash(text string) string {
	hash := md5.Sum([]byte(text))
	return hex.EncodeToString(hash[:])
}

func md5HashShort(text string) string {
	hash := md5Hash(text)
	return hash[0:8]
}

func optionalBool(value bool) *bool {
	return &value
}
