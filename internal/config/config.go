// Package config loads the toolkit configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// DefaultBlockSize is how many registers one Modbus read covers. The
// inverter protocol pages registers in blocks of 40.
const DefaultBlockSize = 40

// Config is the top level configuration, usually read from config.yaml.
type Config struct {
	Loglevel  string     `mapstructure:"loglevel"`
	Registers string     `mapstructure:"registers"`
	Inverters []Inverter `mapstructure:"inverters"`
	MQTT      MQTT       `mapstructure:"mqtt"`
}

// Inverter identifies one reachable inverter. ReadOnly blocks hold register
// writes for installations that must never be reconfigured remotely.
type Inverter struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      uint16 `mapstructure:"port"`
	Datalog   string `mapstructure:"datalog"`
	Serial    string `mapstructure:"serial"`
	UnitID    uint8  `mapstructure:"unit_id"`
	BlockSize uint16 `mapstructure:"block_size"`
	ReadOnly  bool   `mapstructure:"read_only"`
}

// MQTT configures the optional broker connection.
type MQTT struct {
	Enabled   bool   `mapstructure:"enabled"`
	Host      string `mapstructure:"host"`
	Port      uint16 `mapstructure:"port"`
	Username  string `mapstructure:"username"`
	Password  string `mapstructure:"password"`
	Namespace string `mapstructure:"namespace"`
}

// Load reads the YAML config at path. Environment variables prefixed GOEG4_
// override file values (GOEG4_LOGLEVEL, GOEG4_MQTT_PASSWORD, ...).
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("GOEG4")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("loglevel", "info")
	v.SetDefault("mqtt.host", "localhost")
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.namespace", "eg4")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration used when no file is given.
func Default() *Config {
	cfg := &Config{
		Loglevel: "info",
		MQTT:     MQTT{Host: "localhost", Port: 1883, Namespace: "eg4"},
	}
	return cfg
}

func (c *Config) applyDefaults() {
	for i := range c.Inverters {
		if c.Inverters[i].BlockSize == 0 {
			c.Inverters[i].BlockSize = DefaultBlockSize
		}
	}
}

// Validate checks the parts of the config that are enabled.
func (c *Config) Validate() error {
	for i := range c.Inverters {
		inv := &c.Inverters[i]
		if !inv.Enabled {
			continue
		}
		if inv.Host == "" {
			return fmt.Errorf("inverter %d: host is required", i)
		}
		if inv.Port == 0 {
			return fmt.Errorf("inverter %d: port is required", i)
		}
	}
	if c.MQTT.Enabled {
		if c.MQTT.Host == "" {
			return fmt.Errorf("mqtt: host is required")
		}
		if c.MQTT.Port == 0 {
			return fmt.Errorf("mqtt: port is required")
		}
		if c.MQTT.Namespace == "" {
			return fmt.Errorf("mqtt: namespace is required")
		}
	}
	return nil
}

// EnabledInverters returns the enabled inverters in file order.
func (c *Config) EnabledInverters() []Inverter {
	var out []Inverter
	for _, inv := range c.Inverters {
		if inv.Enabled {
			out = append(out, inv)
		}
	}
	return out
}
