package util

import (
	"github.com/Johanpmeert/SMA-multicast-decode/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Multicast: config.MulticastConfig{
			Group:          "239.12.255.254",
			Port:           9522,
			SendDiscovery:  true,
			ReadBufferSize: 1024,
		},
		MQTT: config.MQTTConfig{
			Enable:            true,
			Host:              "localhost",
			Port:              1883,
			BaseTopic:         "smameter",
			HADiscoveryEnable: true,
			HADiscoveryTopic:  "homeassistant",
		},
		MonitorConfig: config.MonitorConfig{
			PublishIntervalMillis: 0,
			LogReadings:           true,
		},
		HistoryConfig: config.HistoryConfig{
			Enable:               false,
			DBPath:               ":memory:",
			RetentionHours:       24,
			RecordIntervalMillis: 0,
		},
		Port: 8080,
	}
}
