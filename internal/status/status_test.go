package status

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/sweeney/intercom-listener/internal/logic"
)

var testStart = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

func newTestTracker(cfg Config) *Tracker {
	tr := NewTracker(testStart, cfg)
	tr.now = func() time.Time { return testStart.Add(90 * time.Second) }
	return tr
}

func sampleCounts() logic.Counts {
	return logic.Counts{
		Accepted: map[logic.Channel]int{logic.ChannelRing: 3, logic.ChannelDoor: 1},
		Sent:     2,
		Failed:   1,
		Skipped:  4,
	}
}

func TestNewTracker(t *testing.T) {
	cfg := Config{CooldownDetectionMs: 2000, Transport: "mqtt", Endpoint: "tcp://localhost:1883", HTTPAddr: ":80"}
	tr := NewTracker(testStart, cfg)

	snap := tr.Snapshot()
	if !snap.StartTime.Equal(testStart) {
		t.Errorf("StartTime: got %v, want %v", snap.StartTime, testStart)
	}
	if snap.Config.CooldownDetectionMs != 2000 {
		t.Errorf("Config.CooldownDetectionMs: got %d, want 2000", snap.Config.CooldownDetectionMs)
	}
	if snap.Connectivity != logic.Disconnected {
		t.Errorf("Connectivity: got %q, want DISCONNECTED", snap.Connectivity)
	}
	if snap.Power != logic.Active {
		t.Errorf("Power: got %q, want ACTIVE", snap.Power)
	}
}

func TestUpdateAndSnapshot(t *testing.T) {
	tr := newTestTracker(Config{})
	last := testStart.Add(time.Minute)

	tr.Update(logic.Connected, logic.ExtendWait, "ARMED", []ChannelStatus{
		{Channel: logic.ChannelRing, Pending: true, LastAccepted: last},
	}, sampleCounts())

	snap := tr.Snapshot()
	if snap.Connectivity != logic.Connected {
		t.Errorf("Connectivity: got %q, want CONNECTED", snap.Connectivity)
	}
	if snap.Power != logic.ExtendWait {
		t.Errorf("Power: got %q, want EXTEND_WAIT", snap.Power)
	}
	if snap.Timer != "ARMED" {
		t.Errorf("Timer: got %q, want ARMED", snap.Timer)
	}
	if len(snap.Channels) != 1 || !snap.Channels[0].Pending || !snap.Channels[0].LastAccepted.Equal(last) {
		t.Errorf("Channels: got %+v", snap.Channels)
	}
	if snap.Counts.Accepted[logic.ChannelRing] != 3 {
		t.Errorf("Counts.Accepted[ring]: got %d, want 3", snap.Counts.Accepted[logic.ChannelRing])
	}
}

func TestSetWakeAndCode(t *testing.T) {
	tr := newTestTracker(Config{})

	tr.SetWake(logic.Wake{Cause: logic.ExternalEdgeWake, Channel: logic.ChannelRing})
	tr.SetCode(logic.StatusTransportError)

	snap := tr.Snapshot()
	if snap.Wake.Cause != logic.ExternalEdgeWake || snap.Wake.Channel != logic.ChannelRing {
		t.Errorf("Wake: got %+v", snap.Wake)
	}
	if snap.Code != logic.StatusTransportError {
		t.Errorf("Code: got %s, want TRANSPORT_ERROR", snap.Code)
	}
}

func TestSetNetwork(t *testing.T) {
	tr := newTestTracker(Config{})

	if tr.Snapshot().Network != nil {
		t.Error("expected nil Network initially")
	}

	tr.SetNetwork(&NetworkInfo{Type: "wifi", IP: "192.168.1.42", Status: "connected"})

	snap := tr.Snapshot()
	if snap.Network == nil {
		t.Fatal("expected non-nil Network")
	}
	if snap.Network.IP != "192.168.1.42" {
		t.Errorf("Network.IP: got %q, want %q", snap.Network.IP, "192.168.1.42")
	}
}

func TestSnapshotUptime(t *testing.T) {
	snap := newTestTracker(Config{}).Snapshot()
	if snap.Uptime() != 90*time.Second {
		t.Errorf("Uptime: got %v, want 1m30s", snap.Uptime())
	}
}

func TestSnapshotIsCopy(t *testing.T) {
	tr := newTestTracker(Config{})
	channels := []ChannelStatus{{Channel: logic.ChannelRing}}
	counts := sampleCounts()
	tr.Update(logic.Connected, logic.Active, "ARMED", channels, counts)

	// Mutating the caller's values must not leak into the tracker.
	channels[0].Pending = true
	counts.Accepted[logic.ChannelRing] = 99

	snap1 := tr.Snapshot()
	snap1.Channels[0].Pending = true
	snap1.Counts.Accepted[logic.ChannelRing] = 42

	snap2 := tr.Snapshot()
	if snap2.Channels[0].Pending {
		t.Error("channel slice shared between tracker and snapshot")
	}
	if snap2.Counts.Accepted[logic.ChannelRing] != 3 {
		t.Errorf("counts shared: got %d, want 3", snap2.Counts.Accepted[logic.ChannelRing])
	}
}

func TestConcurrentAccess(t *testing.T) {
	tr := NewTracker(time.Now(), Config{})
	var wg sync.WaitGroup

	for i := 0; i < 10; i++ {
		wg.Add(3)
		go func() {
			defer wg.Done()
			tr.Update(logic.Connected, logic.Active, "ARMED", []ChannelStatus{{Channel: logic.ChannelRing}}, sampleCounts())
		}()
		go func() {
			defer wg.Done()
			tr.SetCode(logic.StatusIdle)
		}()
		go func() {
			defer wg.Done()
			_ = FormatJSON(tr.Snapshot())
		}()
	}
	wg.Wait()
}

func TestFormatJSON(t *testing.T) {
	tr := newTestTracker(Config{
		CooldownDetectionMs:    2000,
		CooldownNotificationMs: 5000,
		FullIntervalS:          60,
		ShortIntervalS:         5,
		MonitoredChannels:      2,
		Transport:              "telegram",
		Endpoint:               "api.telegram.org:443",
		HTTPAddr:               ":8080",
	})
	tr.SetWake(logic.Wake{Cause: logic.TimerWake})
	tr.Update(logic.Connected, logic.Active, "ARMED", []ChannelStatus{
		{Channel: logic.ChannelRing, Pending: true, LastAccepted: testStart.Add(10 * time.Second)},
		{Channel: logic.ChannelDoor},
	}, sampleCounts())

	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(tr.Snapshot()), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	s := sj.Status

	if s.Connectivity != "CONNECTED" {
		t.Errorf("connectivity: got %q", s.Connectivity)
	}
	if s.Wake.Cause != "TIMER" || s.Wake.Channel != "" {
		t.Errorf("wake: got %+v", s.Wake)
	}
	if s.Indicator != "IDLE" {
		t.Errorf("indicator: got %q, want IDLE", s.Indicator)
	}
	if s.UptimeSeconds != 90 {
		t.Errorf("uptime_seconds: got %d, want 90", s.UptimeSeconds)
	}
	if s.StartTime != "2026-01-01T00:00:00Z" {
		t.Errorf("start_time: got %q", s.StartTime)
	}
	if len(s.Channels) != 2 {
		t.Fatalf("channels: got %d, want 2", len(s.Channels))
	}
	if s.Channels[0].LastAccepted != "2026-01-01T00:00:10Z" || !s.Channels[0].Pending {
		t.Errorf("ring channel: got %+v", s.Channels[0])
	}
	if s.Channels[1].LastAccepted != "" {
		t.Errorf("door last_accepted should be omitted, got %q", s.Channels[1].LastAccepted)
	}
	if s.Counts.Accepted["ring"] != 3 || s.Counts.Sent != 2 || s.Counts.Skipped != 4 {
		t.Errorf("counts: got %+v", s.Counts)
	}
	if s.Config.Transport != "telegram" || s.Config.MonitoredChannels != 2 {
		t.Errorf("config: got %+v", s.Config)
	}
	if s.Network != nil {
		t.Error("network should be omitted when unknown")
	}
}

func TestFormatJSONUnknownFields(t *testing.T) {
	var sj StatusJSON
	if err := json.Unmarshal(FormatJSON(Snapshot{}), &sj); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if sj.Status.Connectivity != "UNKNOWN" || sj.Status.Wake.Cause != "UNKNOWN" || sj.Status.Timer != "UNKNOWN" {
		t.Errorf("expected UNKNOWN placeholders, got %+v", sj.Status)
	}
	if sj.Status.Channels == nil {
		t.Error("channels should encode as an empty list")
	}
}

func gather(t *testing.T, tr *Tracker) map[string][]*dto.Metric {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(NewCollector(tr)); err != nil {
		t.Fatalf("register: %v", err)
	}
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string][]*dto.Metric)
	for _, f := range families {
		out[f.GetName()] = f.GetMetric()
	}
	return out
}

func labelValue(m *dto.Metric, name string) string {
	for _, l := range m.GetLabel() {
		if l.GetName() == name {
			return l.GetValue()
		}
	}
	return ""
}

func TestCollector(t *testing.T) {
	tr := newTestTracker(Config{})
	tr.SetWake(logic.Wake{Cause: logic.ExternalEdgeWake, Channel: logic.ChannelRing})
	tr.Update(logic.Connected, logic.Active, "ARMED", []ChannelStatus{
		{Channel: logic.ChannelRing, Pending: true},
	}, sampleCounts())

	m := gather(t, tr)

	accepted := m["intercom_accepted_edges_total"]
	if len(accepted) != 1 || labelValue(accepted[0], "channel") != "ring" || accepted[0].GetCounter().GetValue() != 3 {
		t.Errorf("accepted_edges_total: got %v", accepted)
	}

	results := make(map[string]float64)
	for _, n := range m["intercom_notifications_total"] {
		results[labelValue(n, "result")] = n.GetCounter().GetValue()
	}
	if results["SENT"] != 2 || results["FAILED"] != 1 || results["SKIPPED"] != 4 {
		t.Errorf("notifications_total: got %v", results)
	}

	if v := m["intercom_notification_pending"][0].GetGauge().GetValue(); v != 1 {
		t.Errorf("notification_pending: got %v, want 1", v)
	}
	if v := m["intercom_connected"][0].GetGauge().GetValue(); v != 1 {
		t.Errorf("connected: got %v, want 1", v)
	}
	wake := m["intercom_wake_cause"]
	if len(wake) != 1 || labelValue(wake[0], "cause") != "EXTERNAL_EDGE" {
		t.Errorf("wake_cause: got %v", wake)
	}
	if v := m["intercom_uptime_seconds"][0].GetGauge().GetValue(); v != 90 {
		t.Errorf("uptime_seconds: got %v, want 90", v)
	}
}

func TestCollectorBeforeWake(t *testing.T) {
	m := gather(t, newTestTracker(Config{}))
	if _, ok := m["intercom_wake_cause"]; ok {
		t.Error("wake_cause should be absent before the wake is classified")
	}
	if v := m["intercom_connected"][0].GetGauge().GetValue(); v != 0 {
		t.Errorf("connected: got %v, want 0", v)
	}
}
