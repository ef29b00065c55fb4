// Package config loads the meter sensor's YAML configuration.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/meter-sensor/internal/advert"
	"github.com/sweeney/meter-sensor/internal/carbon"
	"github.com/sweeney/meter-sensor/internal/gpio"
	"github.com/sweeney/meter-sensor/internal/logging"
)

// Config represents the application configuration.
type Config struct {
	GPIO        GPIOConfig        `yaml:"gpio"`
	Advertising AdvertisingConfig `yaml:"advertising"`
	Battery     BatteryConfig     `yaml:"battery"`
	MQTT        MQTTConfig        `yaml:"mqtt"`
	HTTP        string            `yaml:"http"`      // status page address, empty disables
	Heartbeat   time.Duration     `yaml:"heartbeat"` // 0 disables
	ImpPerKWh   float64           `yaml:"imp_per_kwh"`
	Receiver    ReceiverConfig    `yaml:"receiver"`
	Log         LogConfig         `yaml:"log"`
}

// GPIOConfig contains pin wiring and edge handling.
type GPIOConfig struct {
	Chip      string        `yaml:"chip"`
	Sense     int           `yaml:"sense"`
	Ground    int           `yaml:"ground"`
	Indicator int           `yaml:"indicator"`
	Pulse     time.Duration `yaml:"pulse"`    // indicator on-time per counted flash
	Debounce  time.Duration `yaml:"debounce"` // minimum spacing between counted edges, 0 disables
}

// AdvertisingConfig contains the BLE broadcast settings.
type AdvertisingConfig struct {
	ManufacturerID uint16        `yaml:"manufacturer_id"`
	Interval       time.Duration `yaml:"interval"`
	Connectable    bool          `yaml:"connectable"`
	ShowName       bool          `yaml:"show_name"`
	Name           string        `yaml:"name"`
	HCIDevice      int           `yaml:"hci_device"`
}

// BatteryConfig selects the power supply reported in the advertisement.
type BatteryConfig struct {
	Supply     string `yaml:"supply"` // sysfs supply name, empty auto-detects
	FixedLevel uint8  `yaml:"fixed_level"`
}

// MQTTConfig contains broker settings.
type MQTTConfig struct {
	Broker     string `yaml:"broker"` // empty disables publishing
	ClientID   string `yaml:"client_id"`
	BufferSize int    `yaml:"buffer_size"`
}

// ReceiverConfig contains settings for the advertisement receiver.
type ReceiverConfig struct {
	Devices   []string      `yaml:"devices"` // BLE addresses to accept, empty accepts any
	DedupTTL  time.Duration `yaml:"dedup_ttl"`
	Influx    InfluxConfig  `yaml:"influx"`
	PostURL   string        `yaml:"post_url"`   // form-posts kW per reading, empty disables
	Postcode  string        `yaml:"postcode"`   // UK outward code for carbon intensity, empty disables
	CarbonURL string        `yaml:"carbon_url"` // carbon intensity API base
}

// InfluxConfig contains InfluxDB v2 connection settings. An empty URL disables storage.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		GPIO: GPIOConfig{
			Chip:      gpio.DefaultChip,
			Sense:     gpio.DefaultPinSense,
			Ground:    gpio.DefaultPinGround,
			Indicator: gpio.DefaultPinIndicator,
			Pulse:     time.Millisecond,
			Debounce:  20 * time.Millisecond,
		},
		Advertising: AdvertisingConfig{
			ManufacturerID: advert.ManufacturerID,
			Interval:       advert.DefaultInterval,
			Connectable:    true,
			ShowName:       false,
			Name:           "meter-sensor",
			HCIDevice:      0,
		},
		Battery: BatteryConfig{
			FixedLevel: 100,
		},
		MQTT: MQTTConfig{
			Broker:     "tcp://192.168.1.200:1883",
			ClientID:   "meter-sensor",
			BufferSize: 100,
		},
		HTTP:      ":80",
		Heartbeat: 15 * time.Minute,
		ImpPerKWh: 1000,
		Receiver: ReceiverConfig{
			DedupTTL: time.Minute,
			Influx: InfluxConfig{
				Bucket: "energy",
			},
			CarbonURL: carbon.DefaultBaseURL,
		},
		Log: LogConfig{
			Level:  "info",
			Format: logging.FormatConsole,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist the
// defaults are returned; keys missing from the file keep their defaults.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()
	return cfg, nil
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// ensureDefaults fills fields that were explicitly blanked and have no
// meaningful zero value.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.GPIO.Chip == "" {
		c.GPIO.Chip = def.GPIO.Chip
	}
	if c.GPIO.Pulse == 0 {
		c.GPIO.Pulse = def.GPIO.Pulse
	}
	if c.Advertising.ManufacturerID == 0 {
		c.Advertising.ManufacturerID = def.Advertising.ManufacturerID
	}
	if c.Advertising.Interval == 0 {
		c.Advertising.Interval = def.Advertising.Interval
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = def.MQTT.ClientID
	}
	if c.MQTT.BufferSize == 0 {
		c.MQTT.BufferSize = def.MQTT.BufferSize
	}
	if c.ImpPerKWh == 0 {
		c.ImpPerKWh = def.ImpPerKWh
	}
	if c.Receiver.DedupTTL == 0 {
		c.Receiver.DedupTTL = def.Receiver.DedupTTL
	}
	if c.Receiver.CarbonURL == "" {
		c.Receiver.CarbonURL = def.Receiver.CarbonURL
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Pins().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.GPIO.Pulse <= 0 {
		errs = append(errs, fmt.Errorf("gpio.pulse must be positive, got %v", c.GPIO.Pulse))
	}
	if c.GPIO.Debounce < 0 {
		errs = append(errs, fmt.Errorf("gpio.debounce must not be negative, got %v", c.GPIO.Debounce))
	}
	if err := c.AdvertConfig().Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Battery.FixedLevel > 100 {
		errs = append(errs, fmt.Errorf("battery.fixed_level must be 0..100, got %d", c.Battery.FixedLevel))
	}
	if c.MQTT.BufferSize < 0 {
		errs = append(errs, fmt.Errorf("mqtt.buffer_size must not be negative, got %d", c.MQTT.BufferSize))
	}
	if c.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("heartbeat must not be negative, got %v", c.Heartbeat))
	}
	if c.ImpPerKWh <= 0 {
		errs = append(errs, fmt.Errorf("imp_per_kwh must be positive, got %v", c.ImpPerKWh))
	}
	if c.Receiver.DedupTTL < 0 {
		errs = append(errs, fmt.Errorf("receiver.dedup_ttl must not be negative, got %v", c.Receiver.DedupTTL))
	}
	if c.Receiver.Influx.URL != "" && (c.Receiver.Influx.Org == "" || c.Receiver.Influx.Bucket == "") {
		errs = append(errs, errors.New("receiver.influx requires org and bucket when url is set"))
	}
	if c.Receiver.PostURL != "" {
		if u, err := url.Parse(c.Receiver.PostURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
			errs = append(errs, fmt.Errorf("receiver.post_url must be an http(s) URL, got %q", c.Receiver.PostURL))
		}
	}
	if c.Receiver.Postcode != "" && !carbon.ValidOutwardCode(c.Receiver.Postcode) {
		errs = append(errs, fmt.Errorf("receiver.postcode must be the outward part of a UK postcode, got %q", c.Receiver.Postcode))
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Pins returns the GPIO wiring.
func (c *Config) Pins() gpio.Pins {
	return gpio.Pins{
		Sense:     c.GPIO.Sense,
		Ground:    c.GPIO.Ground,
		Indicator: c.GPIO.Indicator,
	}
}

// AdvertConfig returns the static advertisement settings.
func (c *Config) AdvertConfig() advert.Config {
	return advert.Config{
		ShowName:       c.Advertising.ShowName,
		Connectable:    c.Advertising.Connectable,
		ManufacturerID: c.Advertising.ManufacturerID,
		Interval:       c.Advertising.Interval,
	}
}
