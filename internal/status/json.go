package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Connectivity  string        `json:"connectivity"`
	Power         string        `json:"power"`
	Wake          WakeJSON      `json:"wake"`
	Indicator     string        `json:"indicator"`
	Timer         string        `json:"timer"`
	UptimeSeconds int64         `json:"uptime_seconds"`
	StartTime     string        `json:"start_time"`
	Timestamp     string        `json:"timestamp"`
	Channels      []ChannelJSON `json:"channels"`
	Counts        CountsJSON    `json:"event_counts"`
	Network       *NetworkJSON  `json:"network,omitempty"`
	Config        ConfigJSON    `json:"config"`
}

// WakeJSON is the JSON representation of the wake cause.
type WakeJSON struct {
	Cause   string `json:"cause"`
	Channel string `json:"channel,omitempty"`
}

// ChannelJSON is the JSON representation of one channel.
type ChannelJSON struct {
	Channel      string `json:"channel"`
	Pending      bool   `json:"pending"`
	LastAccepted string `json:"last_accepted,omitempty"`
	LastSent     string `json:"last_sent,omitempty"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Accepted map[string]int `json:"accepted"`
	Sent     int            `json:"sent"`
	Failed   int            `json:"failed"`
	Skipped  int            `json:"skipped"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	CooldownDetectionMs    int64  `json:"cooldown_detection_ms"`
	CooldownNotificationMs int64  `json:"cooldown_notification_ms"`
	FullIntervalS          int64  `json:"full_interval_s"`
	ShortIntervalS         int64  `json:"short_interval_s"`
	HeartbeatS             int64  `json:"heartbeat_s"`
	MonitoredChannels      int    `json:"monitored_channels"`
	Transport              string `json:"transport"`
	Endpoint               string `json:"endpoint"`
	HTTPAddr               string `json:"http_addr"`
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func orUnknown(s string) string {
	if s == "" {
		return "UNKNOWN"
	}
	return s
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		Connectivity:  orUnknown(string(snap.Connectivity)),
		Power:         orUnknown(string(snap.Power)),
		Wake:          WakeJSON{Cause: orUnknown(string(snap.Wake.Cause)), Channel: string(snap.Wake.Channel)},
		Indicator:     snap.Code.String(),
		Timer:         orUnknown(snap.Timer),
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		Channels:      make([]ChannelJSON, 0, len(snap.Channels)),
		Counts: CountsJSON{
			Accepted: make(map[string]int, len(snap.Counts.Accepted)),
			Sent:     snap.Counts.Sent,
			Failed:   snap.Counts.Failed,
			Skipped:  snap.Counts.Skipped,
		},
		Config: ConfigJSON{
			CooldownDetectionMs:    snap.Config.CooldownDetectionMs,
			CooldownNotificationMs: snap.Config.CooldownNotificationMs,
			FullIntervalS:          snap.Config.FullIntervalS,
			ShortIntervalS:         snap.Config.ShortIntervalS,
			HeartbeatS:             snap.Config.HeartbeatS,
			MonitoredChannels:      snap.Config.MonitoredChannels,
			Transport:              snap.Config.Transport,
			Endpoint:               snap.Config.Endpoint,
			HTTPAddr:               snap.Config.HTTPAddr,
		},
	}
	for _, ch := range snap.Channels {
		inner.Channels = append(inner.Channels, ChannelJSON{
			Channel:      string(ch.Channel),
			Pending:      ch.Pending,
			LastAccepted: formatTime(ch.LastAccepted),
			LastSent:     formatTime(ch.LastSent),
		})
	}
	for ch, n := range snap.Counts.Accepted {
		inner.Counts.Accepted[string(ch)] = n
	}
	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the indented JSON status for the web endpoint.
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}
