package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all application configuration.
type Config struct {
	DeviceName   string         `yaml:"device_name"`
	PollInterval time.Duration  `yaml:"poll_interval"`
	LogLevel     string         `yaml:"log_level"`
	Clock        ClockConfig    `yaml:"clock"`
	Metrics      MetricsConfig  `yaml:"metrics"`
	Sensors      SensorsConfig  `yaml:"sensors"`
	Services     ServicesConfig `yaml:"services"`
}

// ClockConfig holds device timestamp settings.
type ClockConfig struct {
	SyncOnConnect bool `yaml:"sync_on_connect"` // set device time from host clock on connect
}

// MetricsConfig holds the Prometheus endpoint settings.
type MetricsConfig struct {
	Listen string `yaml:"listen"` // empty disables /metrics
}

// SensorsConfig selects and locates the sensor hardware.
type SensorsConfig struct {
	Backend                string `yaml:"backend"` // "sim" or "linux"
	I2CBus                 string `yaml:"i2c_bus"`
	BME280Address          uint16 `yaml:"bme280_address"`
	SoilMoistureADC        string `yaml:"soil_moisture_adc"`
	SoilMoistureInvert     bool   `yaml:"soil_moisture_invert"`
	WaterLevelADC          string `yaml:"water_level_adc"`
	ADCMax                 uint16 `yaml:"adc_max"`
	WaterPresenceGPIO      string `yaml:"water_presence_gpio"`
	WaterPresenceActiveLow bool   `yaml:"water_presence_active_low"`
}

// ServiceConfig holds one alarm service's compiled-in defaults.
type ServiceConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Low          uint16 `yaml:"low"`
	High         uint16 `yaml:"high"`
	AlarmEnabled bool   `yaml:"alarm_enabled"`
}

// ServicesConfig holds every alarm service.
type ServicesConfig struct {
	Humidity      ServiceConfig `yaml:"humidity"`
	SoilMoisture  ServiceConfig `yaml:"soil_moisture"`
	WaterLevel    ServiceConfig `yaml:"water_level"`
	WaterPresence ServiceConfig `yaml:"water_presence"`
}

// ByName returns the service settings keyed by service name.
func (s ServicesConfig) ByName() map[string]ServiceConfig {
	return map[string]ServiceConfig{
		"humidity":       s.Humidity,
		"soil_moisture":  s.SoilMoisture,
		"water_level":    s.WaterLevel,
		"water_presence": s.WaterPresence,
	}
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gatt-sentry")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		DeviceName:   "gatt-sentry",
		PollInterval: time.Second,
		LogLevel:     "info",
		Clock: ClockConfig{
			SyncOnConnect: true,
		},
		Sensors: SensorsConfig{
			Backend:           "sim",
			I2CBus:            "/dev/i2c-1",
			BME280Address:     0x76,
			SoilMoistureADC:   "/sys/bus/iio/devices/iio:device0/in_voltage0_raw",
			WaterLevelADC:     "/sys/bus/iio/devices/iio:device0/in_voltage1_raw",
			ADCMax:            4095,
			WaterPresenceGPIO: "/sys/class/gpio/gpio17/value",
		},
		Services: ServicesConfig{
			Humidity:      ServiceConfig{Enabled: true, Low: 300, High: 700, AlarmEnabled: true},
			SoilMoisture:  ServiceConfig{Enabled: true, Low: 20, High: 80, AlarmEnabled: true},
			WaterLevel:    ServiceConfig{Enabled: true, Low: 10, High: 90, AlarmEnabled: true},
			WaterPresence: ServiceConfig{Enabled: true, Low: 0, High: 0, AlarmEnabled: true},
		},
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in sensor paths is expanded to the user's home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.Sensors.I2CBus = expandTilde(cfg.Sensors.I2CBus)
	cfg.Sensors.SoilMoistureADC = expandTilde(cfg.Sensors.SoilMoistureADC)
	cfg.Sensors.WaterLevelADC = expandTilde(cfg.Sensors.WaterLevelADC)
	cfg.Sensors.WaterPresenceGPIO = expandTilde(cfg.Sensors.WaterPresenceGPIO)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.DeviceName == "" {
		return fmt.Errorf("device_name must not be empty")
	}

	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be > 0")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	switch c.Sensors.Backend {
	case "sim":
	case "linux":
		if c.Sensors.ADCMax == 0 {
			return fmt.Errorf("sensors.adc_max must be > 0")
		}
	default:
		return fmt.Errorf("sensors.backend must be \"sim\" or \"linux\", got %q", c.Sensors.Backend)
	}

	limits := map[string]uint16{
		"soil_moisture":  0xff,
		"water_level":    0xff,
		"water_presence": 1,
	}
	enabled := 0
	for name, svc := range c.Services.ByName() {
		if !svc.Enabled {
			continue
		}
		enabled++
		if max, ok := limits[name]; ok && (svc.Low > max || svc.High > max) {
			return fmt.Errorf("services.%s thresholds must be <= %d", name, max)
		}
	}
	if enabled == 0 {
		return fmt.Errorf("at least one service must be enabled")
	}

	return nil
}

// InvertedThresholds lists enabled services whose low threshold exceeds
// their high threshold. Such configs are allowed; the low comparison wins.
func (c *Config) InvertedThresholds() []string {
	var names []string
	for _, name := range []string{"humidity", "soil_moisture", "water_level", "water_presence"} {
		svc := c.Services.ByName()[name]
		if svc.Enabled && svc.Low > svc.High {
			names = append(names, name)
		}
	}
	return names
}

// WriteDefault writes the default config to DefaultConfigPath if no file
// exists there. It returns the written path, or "" if a config already exists.
func WriteDefault() (string, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); err == nil {
		return "", nil
	}

	data, err := yaml.Marshal(Default())
	if err != nil {
		return "", fmt.Errorf("marshaling default config: %w", err)
	}
	header := "# gatt-sentry configuration\n# Thresholds are in sensor units: humidity in 0.1 %RH, soil moisture and water level in %.\n"

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating config dir: %w", err)
	}
	if err := os.WriteFile(path, append([]byte(header), data...), 0644); err != nil {
		return "", fmt.Errorf("writing config file: %w", err)
	}
	return path, nil
}

// ParseLogLevel maps a log_level value to a slog level, defaulting to info.
func ParseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
