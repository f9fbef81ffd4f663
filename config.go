package main

import (
	"servolock/analog"
	"servolock/button"
	"servolock/indicator"
	"servolock/lock"
	"servolock/mqtt"
	"servolock/servo"
)

// Config is the main configuration structure for servolock.
type Config struct {
	// HTTP listener settings
	HTTP HTTPConfig `yaml:"http"`

	// MQTT connection settings (optional transport)
	MQTT mqtt.Config `yaml:"mqtt"`

	// Analog feedback source (serial ADC bridge)
	Analog analog.Config `yaml:"analog"`

	// Servo hardware configuration
	Servo servo.Config `yaml:"servo"`

	// Lock controller angles and thresholds
	Lock lock.Config `yaml:"lock"`

	// Indicator configuration
	Indicator indicator.Config `yaml:"indicator"`

	// Recalibrate button configuration
	Button button.Config `yaml:"button"`

	// General settings
	ClientID string `yaml:"client_id"`
	Secret   string `yaml:"secret"` // base64-encoded shared auth secret
	LogLevel string `yaml:"log_level"`
}

// HTTPConfig holds HTTP listener settings.
type HTTPConfig struct {
	Listen string `yaml:"listen"` // e.g. ":8484"
}
