// Command intercom-listener watches the doorbell and door lines of a battery
// powered intercom and sends a notification for each accepted event, sleeping
// between activity.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/config"
	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/gpio"
	"github.com/sweeney/intercom-listener/internal/indicator"
	"github.com/sweeney/intercom-listener/internal/logic"
	"github.com/sweeney/intercom-listener/internal/monitor"
	"github.com/sweeney/intercom-listener/internal/mqtt"
	"github.com/sweeney/intercom-listener/internal/notify"
	"github.com/sweeney/intercom-listener/internal/power"
	"github.com/sweeney/intercom-listener/internal/status"
	"github.com/sweeney/intercom-listener/internal/web"
)

func main() {
	configPath := flag.String("config", config.DefaultPath, "Path to the YAML config file")
	logLevel := flag.String("log-level", "", "Override log level (debug, info, warn, error)")
	logFormat := flag.String("log-format", "", "Override log format (console, json)")
	printState := flag.Bool("print-state", false, "Print sensor line levels and exit")

	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Log.Format = *logFormat
	}

	logger, err := newLogger(cfg.Log.Level, cfg.Log.Format, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Str("path", *configPath).Msg("config rejected")
	}

	if err := run(cfg, *printState, logger); err != nil {
		logger.Fatal().Err(err).Msg("fatal")
	}
}

func run(cfg *config.Config, printState bool, logger zerolog.Logger) error {
	word := events.NewWord()

	// Edge delivery starts here; bits raised before Boot wait in the word.
	watcher, err := gpio.NewRealWatcher(cfg.GPIOConfig(), word, logger.With().Str("component", "gpio").Logger())
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	defer watcher.Close()

	ctrl := power.NewController(power.Config{
		Suspend:    cfg.Sleep.Enabled,
		StateDir:   cfg.Sleep.StateDir,
		RTC:        cfg.Sleep.RTC,
		PowerState: cfg.Sleep.PowerState,
	}, word, logger.With().Str("component", "power").Logger())
	// Sleep ends in os.Exit, which skips the defers below.
	ctrl.AtExit(exitHook("gpio", watcher.Close, logger))

	if printState {
		return printLineState(os.Stdout, cfg, watcher, ctrl)
	}

	rec, err := power.TakeRecord(ctrl.StateDir())
	if err != nil {
		logger.Warn().Err(err).Msg("sleep record unreadable, treating as power-on")
		rec = nil
	}
	wake := power.Classify(rec, ctrl.BootID(), watcher.Level, time.Now())

	conn, sender, endpoint, err := newTransport(cfg, word, logger)
	if err != nil {
		return err
	}

	tracker := status.NewTracker(time.Now(), status.Config{
		CooldownDetectionMs:    int64(cfg.CooldownDetectionMs),
		CooldownNotificationMs: int64(cfg.CooldownNotificationMs),
		FullIntervalS:          int64(cfg.FullIntervalS),
		ShortIntervalS:         int64(cfg.ShortIntervalS),
		HeartbeatS:             int64(cfg.HeartbeatS),
		MonitoredChannels:      cfg.MonitoredChannels,
		Transport:              cfg.Transport,
		Endpoint:               endpoint,
		HTTPAddr:               cfg.HTTPAddr,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	setters := logic.StatusSetters{tracker}
	if ind := newIndicator(cfg, logger); ind != nil {
		go ind.Run(ctx)
		setters = append(setters, ind)
	}

	// Start HTTP status server
	if cfg.HTTPAddr != "" {
		srv := web.New(cfg.HTTPAddr, tracker)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error().Err(err).Msg("http server error")
			}
		}()
		defer srv.Shutdown(context.Background())
		ctrl.AtExit(exitHook("http", func() error {
			sctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		}, logger))
		logger.Info().Str("addr", cfg.HTTPAddr).Msg("http status server listening")
	}

	loop := monitor.New(monitor.Config{
		Channels:             cfg.Channels(),
		Intervals:            cfg.Intervals(),
		CooldownDetection:    cfg.CooldownDetection(),
		CooldownNotification: cfg.CooldownNotification(),
		BootNotification:     cfg.BootNotificationEnabled,
		Heartbeat:            cfg.Heartbeat(),
		TimerWake:            cfg.TimerWake(),
	}, monitor.Deps{
		Word:    word,
		Levels:  watcher,
		Conn:    conn,
		Sender:  sender,
		Power:   ctrl,
		Status:  setters,
		Tracker: tracker,
		Logger:  logger.With().Str("component", "monitor").Logger(),
	})

	logger.Info().
		Str("transport", cfg.Transport).
		Str("endpoint", endpoint).
		Int("channels", cfg.MonitoredChannels).
		Dur("cooldown_detection", cfg.CooldownDetection()).
		Dur("cooldown_notification", cfg.CooldownNotification()).
		Bool("suspend", cfg.Sleep.Enabled).
		Msg("started")

	loop.Boot(wake)
	return loop.Run(ctx)
}

// exitHook adapts a close function for power.Controller.AtExit.
func exitHook(name string, release func() error, logger zerolog.Logger) func() {
	return func() {
		if err := release(); err != nil {
			logger.Warn().Err(err).Str("resource", name).Msg("release before exit failed")
		}
	}
}

// newTransport wires the connectivity collaborator and the notification
// sender for the configured transport. The returned endpoint is for display.
func newTransport(cfg *config.Config, sig events.Setter, logger zerolog.Logger) (monitor.Connectivity, logic.Sender, string, error) {
	switch cfg.Transport {
	case config.TransportMQTT:
		link := mqtt.NewLink(mqtt.Options{
			Broker:         cfg.MQTT.Broker,
			ClientID:       clientID(cfg.MQTT.ClientID),
			Username:       cfg.MQTT.Username,
			Password:       cfg.MQTT.Password,
			Topic:          cfg.MQTT.Topic,
			MaxRetries:     cfg.Connect.MaxRetries,
			ConnectTimeout: cfg.ConnectTimeout(),
		}, sig, logger.With().Str("component", "mqtt").Logger())
		return link, link, cfg.MQTT.Broker, nil

	case config.TransportTelegram:
		addr, err := notify.ProbeAddr(cfg.Telegram.APIBase)
		if err != nil {
			return nil, nil, "", fmt.Errorf("telegram: %w", err)
		}
		nl := logger.With().Str("component", "notify").Logger()
		probe := notify.NewProbe(notify.ProbeConfig{
			Addr:       addr,
			MaxRetries: cfg.Connect.MaxRetries,
			Timeout:    cfg.ConnectTimeout(),
		}, nil, sig, nl)
		tg := notify.NewTelegram(notify.TelegramConfig{
			APIBase: cfg.Telegram.APIBase,
			Token:   cfg.Telegram.Token,
			ChatID:  cfg.Telegram.ChatID,
		}, nl)
		return probe, tg, addr, nil
	}
	return nil, nil, "", fmt.Errorf("unknown transport %q", cfg.Transport)
}

// newIndicator opens the LED lines. It returns nil when no LED is configured
// or none could be opened.
func newIndicator(cfg *config.Config, logger zerolog.Logger) *indicator.Indicator {
	il := logger.With().Str("component", "indicator").Logger()
	open := func(pin int) gpio.Output {
		if pin < 0 {
			return nil
		}
		out, err := gpio.NewRealOutput(cfg.GPIO.Chip, pin)
		if err != nil {
			il.Warn().Err(err).Int("pin", pin).Msg("led unavailable")
			return nil
		}
		return out
	}

	green, red := open(cfg.LED.GreenPin), open(cfg.LED.RedPin)
	if green == nil && red == nil {
		return nil
	}
	return indicator.New(green, red, nil, il)
}

// clientID appends a random suffix so two devices never share a session.
func clientID(base string) string {
	if base == "" {
		base = "intercom-listener"
	}
	return base + "-" + uuid.New().String()
}

// newLogger builds the process logger. format is console or json.
func newLogger(level, format string, w io.Writer) (zerolog.Logger, error) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.Nop(), fmt.Errorf("log level %q: %w", level, err)
	}
	if lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}

	switch format {
	case "", "console":
		w = zerolog.ConsoleWriter{Out: w, TimeFormat: time.RFC3339}
	case "json":
	default:
		return zerolog.Nop(), fmt.Errorf("unknown log format %q", format)
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger(), nil
}

func printLineState(w io.Writer, cfg *config.Config, levels monitor.LevelReader, ctrl *power.Controller) error {
	for _, ch := range cfg.Channels() {
		active, err := levels.Level(ch)
		if err != nil {
			return fmt.Errorf("read %s: %w", ch, err)
		}
		fmt.Fprintf(w, "%s: %s\n", ch, stateString(active))
	}
	fmt.Fprintf(w, "boot id: %s\n", ctrl.BootID())
	return nil
}

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}

func stateString(active bool) string {
	if active {
		return "ACTIVE"
	}
	return "IDLE"
}
