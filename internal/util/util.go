package util

import (
	"chargepilot/internal/config"

	"go.uber.org/zap"
)

func LoadTestConfig() config.Config {
	return config.Config{
		LogLevel: zap.DebugLevel,
		Wallbox: config.WallboxConfig{
			Host:                  "-.-.-.-",
			Port:                  7090,
			ResponseTimeoutMillis: 3000,
			MaxSendAttempts:       3,
			RetryBaseDelayMillis:  500,
			RetryBackoffFactor:    2.0,
		},
		E3dc: config.E3dcModbusConfig{
			Host:          "-.-.-.-",
			Port:          502,
			UnitId:        1,
			TimeoutMillis: 1500,
		},
		MQTT: config.MQTTConfig{
			Host:      "localhost",
			Port:      1883,
			BaseTopic: "chargepilot",
		},
		GridFrequency: config.GridFrequencyConfig{
			Tier2ThresholdHz:   0.1,
			Tier3ThresholdHz:   0.2,
			EmergencyTargetSoC: 80,
		},
		Port: 8080,
	}
}
