// Package config loads the daemon configuration from a YAML file.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sweeney/intercom-listener/internal/gpio"
	"github.com/sweeney/intercom-listener/internal/logic"
	"github.com/sweeney/intercom-listener/internal/mqtt"
	"github.com/sweeney/intercom-listener/internal/notify"
	"github.com/sweeney/intercom-listener/internal/power"
)

// DefaultPath is used when no --config flag is given.
const DefaultPath = "/etc/intercom-listener.yaml"

// ErrInvalid is wrapped by every validation error.
var ErrInvalid = errors.New("invalid config")

// Transports.
const (
	TransportTelegram = "telegram"
	TransportMQTT     = "mqtt"
)

// Config is the structure of the configuration file.
type Config struct {
	CooldownDetectionMs     int  `yaml:"cooldown_detection_ms"`     // Minimum spacing of accepted edges per channel
	CooldownNotificationMs  int  `yaml:"cooldown_notification_ms"`  // Minimum spacing of sends per channel
	FullIntervalS           int  `yaml:"full_interval_s"`           // Inactivity wait after activity
	ShortIntervalS          int  `yaml:"short_interval_s"`          // Inactivity wait after an idle timer wake
	BootNotificationEnabled bool `yaml:"boot_notification_enabled"` // Send a message on power-on
	MonitoredChannels       int  `yaml:"monitored_channels"`        // 1 = ring, 2 = ring + door
	HeartbeatS              int  `yaml:"heartbeat_s"`               // Bound of the signal wait

	GPIO struct {
		Chip      string `yaml:"chip"`
		RingPin   int    `yaml:"ring_pin"`
		DoorPin   int    `yaml:"door_pin"`
		ActiveLow bool   `yaml:"active_low"`
		Pull      string `yaml:"pull"` // none, down or up
	} `yaml:"gpio"`

	LED struct {
		GreenPin int `yaml:"green_pin"` // -1 disables
		RedPin   int `yaml:"red_pin"`   // -1 disables
	} `yaml:"led"`

	Sleep struct {
		Enabled    bool   `yaml:"enabled"`      // Suspend the board; false emulates sleep
		TimerWakeS int    `yaml:"timer_wake_s"` // RTC wake after this many seconds, 0 disables
		StateDir   string `yaml:"state_dir"`
		RTC        string `yaml:"rtc"`
		PowerState string `yaml:"power_state"`
	} `yaml:"sleep"`

	Transport string `yaml:"transport"` // telegram or mqtt

	Telegram struct {
		APIBase string `yaml:"api_base"`
		Token   string `yaml:"token"`
		ChatID  string `yaml:"chat_id"`
	} `yaml:"telegram"`

	MQTT struct {
		Broker   string `yaml:"broker"`
		ClientID string `yaml:"client_id"`
		Username string `yaml:"username"`
		Password string `yaml:"password"`
		Topic    string `yaml:"topic"`
	} `yaml:"mqtt"`

	Connect struct {
		MaxRetries int `yaml:"max_retries"` // Attempts after the first before giving up
		TimeoutMs  int `yaml:"timeout_ms"`  // Per-attempt timeout
	} `yaml:"connect"`

	HTTPAddr string `yaml:"http_addr"` // Empty disables the status server

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // console or json
	} `yaml:"log"`
}

// Defaults returns the configuration used for keys absent from the file.
func Defaults() Config {
	var c Config
	c.CooldownDetectionMs = 2000
	c.CooldownNotificationMs = 5000
	c.FullIntervalS = 60
	c.ShortIntervalS = 5
	c.MonitoredChannels = 1
	c.HeartbeatS = 10

	c.GPIO.Chip = gpio.DefaultChip
	c.GPIO.RingPin = gpio.DefaultPinRing
	c.GPIO.DoorPin = gpio.DefaultPinDoor
	c.GPIO.Pull = string(gpio.PullDown)

	c.LED.GreenPin = -1
	c.LED.RedPin = -1

	c.Sleep.Enabled = true
	c.Sleep.StateDir = power.DefaultStateDir
	c.Sleep.RTC = power.DefaultRTC
	c.Sleep.PowerState = power.DefaultPowerState

	c.Transport = TransportTelegram
	c.Telegram.APIBase = notify.DefaultAPIBase
	c.MQTT.Broker = "tcp://192.168.1.200:1883"
	c.MQTT.ClientID = "intercom-listener"
	c.MQTT.Topic = mqtt.DefaultTopic

	c.Connect.MaxRetries = 5
	c.Connect.TimeoutMs = 5000

	c.Log.Level = "info"
	c.Log.Format = "console"
	return c
}

// Load reads path over the defaults. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	c := Defaults()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return &c, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := Parse(data, &c); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return &c, nil
}

// Parse decodes YAML data into c. Unknown keys are rejected.
func Parse(data []byte, c *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// Validate checks the configuration for values the daemon cannot run with.
func (c *Config) Validate() error {
	var problems []string
	add := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c.MonitoredChannels != 1 && c.MonitoredChannels != 2 {
		add("monitored_channels must be 1 or 2, got %d", c.MonitoredChannels)
	}
	for _, f := range []struct {
		name string
		v    int
	}{
		{"cooldown_detection_ms", c.CooldownDetectionMs},
		{"cooldown_notification_ms", c.CooldownNotificationMs},
		{"full_interval_s", c.FullIntervalS},
		{"short_interval_s", c.ShortIntervalS},
		{"heartbeat_s", c.HeartbeatS},
		{"connect.timeout_ms", c.Connect.TimeoutMs},
	} {
		if f.v <= 0 {
			add("%s must be positive, got %d", f.name, f.v)
		}
	}
	if c.ShortIntervalS > c.FullIntervalS {
		add("short_interval_s (%d) must not exceed full_interval_s (%d)", c.ShortIntervalS, c.FullIntervalS)
	}
	if c.FullIntervalS > 0 && int64(c.CooldownNotificationMs) >= int64(c.FullIntervalS)*1000 {
		add("cooldown_notification_ms (%d) must be shorter than full_interval_s (%d)", c.CooldownNotificationMs, c.FullIntervalS)
	}
	if c.Connect.MaxRetries < 0 {
		add("connect.max_retries must not be negative, got %d", c.Connect.MaxRetries)
	}
	if c.Sleep.TimerWakeS < 0 {
		add("sleep.timer_wake_s must not be negative, got %d", c.Sleep.TimerWakeS)
	}

	switch gpio.Pull(c.GPIO.Pull) {
	case gpio.PullNone, gpio.PullDown, gpio.PullUp:
	default:
		add("gpio.pull must be none, down or up, got %q", c.GPIO.Pull)
	}
	if c.GPIO.RingPin < 0 {
		add("gpio.ring_pin must not be negative")
	}
	if c.MonitoredChannels == 2 {
		if c.GPIO.DoorPin < 0 {
			add("gpio.door_pin must not be negative")
		} else if c.GPIO.DoorPin == c.GPIO.RingPin {
			add("gpio.door_pin and gpio.ring_pin must differ")
		}
	}

	switch c.Transport {
	case TransportTelegram:
		if c.Telegram.Token == "" {
			add("telegram.token is required")
		}
		if c.Telegram.ChatID == "" {
			add("telegram.chat_id is required")
		}
		if _, err := notify.ProbeAddr(c.Telegram.APIBase); err != nil {
			add("telegram.api_base: %v", err)
		}
	case TransportMQTT:
		if c.MQTT.Broker == "" {
			add("mqtt.broker is required")
		}
	default:
		add("transport must be %q or %q, got %q", TransportTelegram, TransportMQTT, c.Transport)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(problems, "; "))
	}
	return nil
}

// Channels returns the monitored sensor channels.
func (c *Config) Channels() []logic.Channel {
	return logic.SensorChannels(c.MonitoredChannels)
}

// Intervals returns the inactivity timer durations.
func (c *Config) Intervals() logic.Intervals {
	return logic.Intervals{
		Full:  time.Duration(c.FullIntervalS) * time.Second,
		Short: time.Duration(c.ShortIntervalS) * time.Second,
	}
}

// CooldownDetection returns the debounce window.
func (c *Config) CooldownDetection() time.Duration {
	return time.Duration(c.CooldownDetectionMs) * time.Millisecond
}

// CooldownNotification returns the minimum spacing of sends per channel.
func (c *Config) CooldownNotification() time.Duration {
	return time.Duration(c.CooldownNotificationMs) * time.Millisecond
}

// Heartbeat returns the bound of the signal wait.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatS) * time.Second
}

// ConnectTimeout returns the per-attempt connection timeout.
func (c *Config) ConnectTimeout() time.Duration {
	return time.Duration(c.Connect.TimeoutMs) * time.Millisecond
}

// TimerWake returns the RTC wake duration, or nil when disabled.
func (c *Config) TimerWake() *time.Duration {
	if c.Sleep.TimerWakeS <= 0 {
		return nil
	}
	d := time.Duration(c.Sleep.TimerWakeS) * time.Second
	return &d
}

// GPIOConfig returns the sensor line configuration.
func (c *Config) GPIOConfig() gpio.Config {
	pins := map[logic.Channel]int{logic.ChannelRing: c.GPIO.RingPin}
	if c.MonitoredChannels == 2 {
		pins[logic.ChannelDoor] = c.GPIO.DoorPin
	}
	return gpio.Config{
		Chip:      c.GPIO.Chip,
		Pins:      pins,
		ActiveLow: c.GPIO.ActiveLow,
		Pull:      gpio.Pull(c.GPIO.Pull),
	}
}
