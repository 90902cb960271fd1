package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel      zapcore.Level
	Multicast     MulticastConfig `mapstructure:"multicast"`
	MQTT          MQTTConfig      `mapstructure:"mqtt"`
	MonitorConfig MonitorConfig   `mapstructure:"monitor"`
	HistoryConfig HistoryConfig   `mapstructure:"history"`
	Port          uint            `mapstructure:"port"`
	HttpLog       bool            `mapstructure:"http_log"`
}

type MulticastConfig struct {
	Group                   string
	Port                    uint
	Interface               string
	LocalAddress            string `mapstructure:"local_address"`
	SendDiscovery           bool   `mapstructure:"send_discovery"`
	DiscoveryIntervalMillis uint32 `mapstructure:"discovery_interval_millis"`
	ReadBufferSize          int    `mapstructure:"read_buffer_size"`
}

type MonitorConfig struct {
	PublishIntervalMillis uint32   `mapstructure:"publish_interval_millis"`
	SerialFilter          []uint32 `mapstructure:"serial_filter"`
	LogReadings           bool     `mapstructure:"log_readings"`
	MaxMeters             int      `mapstructure:"max_meters"`
	StaleAfterMillis      uint32   `mapstructure:"stale_after_millis"`
}

type HistoryConfig struct {
	Enable               bool
	DBPath               string `mapstructure:"db_path"`
	RetentionHours       uint32 `mapstructure:"retention_hours"`
	RecordIntervalMillis uint32 `mapstructure:"record_interval_millis"`
}

type MQTTConfig struct {
	Enable            bool
	Host              string
	Port              int
	Username          string
	Password          string
	BaseTopic         string `mapstructure:"base_topic"`
	HADiscoveryEnable bool   `mapstructure:"ha_discovery_enable"`
	HADiscoveryTopic  string `mapstructure:"ha_discovery_topic"`
}

// AcceptsSerial reports whether readings of a meter should be processed.
// An empty filter accepts every meter.
func (c MonitorConfig) AcceptsSerial(serial uint32) bool {
	if len(c.SerialFilter) == 0 {
		return true
	}
	for _, s := range c.SerialFilter {
		if s == serial {
			return true
		}
	}
	return false
}

func CheckMQTTTopic(baseTopic string) (string, error) {
	// check and fix base topic
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
