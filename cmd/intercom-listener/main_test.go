package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/config"
	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/gpio"
	"github.com/sweeney/intercom-listener/internal/logic"
	"github.com/sweeney/intercom-listener/internal/mqtt"
	"github.com/sweeney/intercom-listener/internal/notify"
	"github.com/sweeney/intercom-listener/internal/power"
)

func nopLogger() zerolog.Logger { return zerolog.Nop() }

// TestEnvVarNames verifies the env var constants match what pi-helper writes
// to /run/pi-helper.env. If pi-helper changes its var names, this test fails
// and we update the constants, not the other way around.
func TestEnvVarNames(t *testing.T) {
	want := map[string]string{
		"NETWORK_TYPE":        envNetworkType,
		"NETWORK_IP":          envNetworkIP,
		"NETWORK_STATUS":      envNetworkStatus,
		"NETWORK_GATEWAY":     envNetworkGateway,
		"NETWORK_WIFI_STATUS": envNetworkWifiStatus,
		"NETWORK_WIFI_SSID":   envNetworkWifiSSID,
	}
	for canonical, got := range want {
		if got != canonical {
			t.Errorf("env var constant: got %q, want %q", got, canonical)
		}
	}
}

func TestReadNetworkInfoAllSet(t *testing.T) {
	t.Setenv(envNetworkType, "wifi")
	t.Setenv(envNetworkIP, "192.168.1.100")
	t.Setenv(envNetworkStatus, "connected")
	t.Setenv(envNetworkGateway, "192.168.1.1")
	t.Setenv(envNetworkWifiStatus, "connected")
	t.Setenv(envNetworkWifiSSID, "MyNetwork")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo")
	}
	if info.Type != "wifi" || info.IP != "192.168.1.100" || info.Gateway != "192.168.1.1" {
		t.Errorf("got %+v", info)
	}
	if info.WifiStatus != "connected" || info.SSID != "MyNetwork" {
		t.Errorf("wifi fields: got %+v", info)
	}
}

func TestReadNetworkInfoNoneSet(t *testing.T) {
	t.Setenv(envNetworkStatus, "")
	if info := readNetworkInfo(); info != nil {
		t.Errorf("expected nil when NETWORK_STATUS is unset, got %+v", info)
	}
}

func TestReadNetworkInfoPartial(t *testing.T) {
	t.Setenv(envNetworkStatus, "connected")

	info := readNetworkInfo()
	if info == nil {
		t.Fatal("expected non-nil NetworkInfo when NETWORK_STATUS is set")
	}
	if info.Status != "connected" {
		t.Errorf("Status: got %q, want %q", info.Status, "connected")
	}
	if info.IP != "" {
		t.Errorf("IP: got %q, want empty", info.IP)
	}
}

func TestNewLoggerJSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("warn", "json", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Info().Msg("hidden")
	logger.Warn().Str("channel", "ring").Msg("shown")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["message"] != "shown" || entry["channel"] != "ring" || entry["level"] != "warn" {
		t.Errorf("entry: got %v", entry)
	}
	if _, ok := entry["time"]; !ok {
		t.Error("entry has no timestamp")
	}
}

func TestNewLoggerConsole(t *testing.T) {
	var buf bytes.Buffer
	logger, err := newLogger("", "console", &buf)
	if err != nil {
		t.Fatalf("newLogger: %v", err)
	}

	logger.Debug().Msg("hidden")
	logger.Info().Msg("started")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Error("empty level should default to info")
	}
	if !strings.Contains(out, "started") {
		t.Errorf("missing message: %q", out)
	}
}

func TestNewLoggerRejectsBadInput(t *testing.T) {
	if _, err := newLogger("loud", "json", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := newLogger("info", "xml", &bytes.Buffer{}); err == nil {
		t.Error("expected error for unknown format")
	}
}

func TestClientIDUnique(t *testing.T) {
	a, b := clientID("door"), clientID("door")
	if !strings.HasPrefix(a, "door-") {
		t.Errorf("prefix: got %q", a)
	}
	if a == b {
		t.Error("client IDs should differ between runs")
	}
	if !strings.HasPrefix(clientID(""), "intercom-listener-") {
		t.Error("empty base should fall back to the default name")
	}
}

func TestNewTransportMQTT(t *testing.T) {
	cfg := config.Defaults()
	cfg.Transport = config.TransportMQTT
	cfg.MQTT.Broker = "tcp://10.0.0.5:1883"

	conn, sender, endpoint, err := newTransport(&cfg, events.NewWord(), nopLogger())
	if err != nil {
		t.Fatalf("newTransport: %v", err)
	}
	link, ok := conn.(*mqtt.Link)
	if !ok {
		t.Fatalf("conn: got %T, want *mqtt.Link", conn)
	}
	if sender != link {
		t.Error("link should be both connectivity and sender")
	}
	if endpoint != "tcp://10.0.0.5:1883" {
		t.Errorf("endpoint: got %q", endpoint)
	}
	if link.IsConnected() {
		t.Error("link must not connect before a request")
	}
}

func TestNewTransportTelegram(t *testing.T) {
	cfg := config.Defaults()
	cfg.Telegram.Token = "123:abc"
	cfg.Telegram.ChatID = "42"

	conn, sender, endpoint, err := newTransport(&cfg, events.NewWord(), nopLogger())
	if err != nil {
		t.Fatalf("newTransport: %v", err)
	}
	if _, ok := conn.(*notify.Probe); !ok {
		t.Errorf("conn: got %T, want *notify.Probe", conn)
	}
	if _, ok := sender.(*notify.Telegram); !ok {
		t.Errorf("sender: got %T, want *notify.Telegram", sender)
	}
	if endpoint != "api.telegram.org:443" {
		t.Errorf("endpoint: got %q", endpoint)
	}
}

func TestNewTransportBadAPIBase(t *testing.T) {
	cfg := config.Defaults()
	cfg.Telegram.APIBase = "not a url"

	if _, _, _, err := newTransport(&cfg, events.NewWord(), nopLogger()); err == nil {
		t.Error("expected error for an API base without host")
	}
}

func TestNewTransportUnknown(t *testing.T) {
	cfg := config.Defaults()
	cfg.Transport = "pigeon"

	if _, _, _, err := newTransport(&cfg, events.NewWord(), nopLogger()); err == nil {
		t.Error("expected error for unknown transport")
	}
}

func TestNewIndicatorDisabled(t *testing.T) {
	cfg := config.Defaults()
	if ind := newIndicator(&cfg, nopLogger()); ind != nil {
		t.Error("no LED pins configured, expected nil indicator")
	}
}

func TestPrintLineState(t *testing.T) {
	cfg := config.Defaults()
	cfg.MonitoredChannels = 2

	lines := gpio.NewFakeWatcher(nil)
	lines.SetLevel(logic.ChannelDoor, true)
	ctrl := power.NewController(power.Config{StateDir: t.TempDir(), BootID: t.TempDir() + "/missing"}, nil, nopLogger())

	var buf bytes.Buffer
	if err := printLineState(&buf, &cfg, lines, ctrl); err != nil {
		t.Fatalf("printLineState: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"ring: IDLE", "door: ACTIVE", "boot id: "} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q: %q", want, out)
		}
	}
}

func TestExitHook(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)

	calls := 0
	exitHook("gpio", func() error { calls++; return nil }, logger)()
	if calls != 1 || buf.Len() != 0 {
		t.Errorf("clean release: calls=%d log=%q", calls, buf.String())
	}

	exitHook("http", func() error { return errors.New("busy") }, logger)()
	if !strings.Contains(buf.String(), `"resource":"http"`) || !strings.Contains(buf.String(), "busy") {
		t.Errorf("failed release not logged: %q", buf.String())
	}
}

func TestStateString(t *testing.T) {
	if stateString(true) != "ACTIVE" || stateString(false) != "IDLE" {
		t.Error("unexpected state strings")
	}
}
