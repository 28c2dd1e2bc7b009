package config

import (
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap/zapcore"
)

type Config struct {
	LogLevel zapcore.Level
	Wallbox  WallboxConfig    `mapstructure:"wallbox"`
	E3dc     E3dcModbusConfig `mapstructure:"e3dc_modbus_tcp"`
	MQTT     MQTTConfig       `mapstructure:"mqtt"`

	GridFrequency GridFrequencyConfig `mapstructure:"grid_frequency"`
	Prowl         ProwlConfig         `mapstructure:"prowl"`
	StorageDir    string              `mapstructure:"storage_dir"`
	Port          uint                `mapstructure:"port"`
	HttpLog       bool                `mapstructure:"http_log"`
}

type WallboxConfig struct {
	Host                  string
	Port                  int
	ResponseTimeoutMillis uint32  `mapstructure:"response_timeout_millis"`
	MaxSendAttempts       int     `mapstructure:"max_send_attempts"`
	RetryBaseDelayMillis  uint32  `mapstructure:"retry_base_delay_millis"`
	RetryBackoffFactor    float64 `mapstructure:"retry_backoff_factor"`
}

type E3dcModbusConfig struct {
	Host          string
	Port          uint
	UnitId        uint8  `mapstructure:"unit_id"`
	TimeoutMillis uint32 `mapstructure:"timeout_millis"`
}

type GridFrequencyConfig struct {
	Tier2ThresholdHz      float64 `mapstructure:"tier2_threshold_hz"`
	Tier3ThresholdHz      float64 `mapstructure:"tier3_threshold_hz"`
	EmergencyChargeEnable bool    `mapstructure:"emergency_charge_enable"`
	EmergencyTargetSoC    uint8   `mapstructure:"emergency_target_soc"`
}

type ProwlConfig struct {
	Enable bool
	ApiKey string `mapstructure:"api_key"`
}

type MQTTConfig struct {
	Enable    bool
	Host      string
	Port      int
	Username  string
	Password  string
	BaseTopic string `mapstructure:"base_topic"`
}

// CheckMQTTTopic validates and normalizes a base topic segment.
func CheckMQTTTopic(baseTopic string) (string, error) {
	lowerBaseTopic := strings.ToLower(baseTopic)
	baseTopicRegexp := regexp.MustCompile("^[a-z0-9_]+$")
	matches := baseTopicRegexp.FindAllStringSubmatch(lowerBaseTopic, 1)
	if len(matches) <= 0 {
		return "", errors.New("invalid topic. can only contain letters, numbers and underscores")
	}
	return lowerBaseTopic, nil
}
