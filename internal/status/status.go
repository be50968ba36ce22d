// Package status provides a thread-safe status tracker for the intercom listener.
// The control loop writes it; HTTP handlers and the metrics collector read it.
package status

import (
	"sync"
	"time"

	"github.com/sweeney/intercom-listener/internal/logic"
)

// NetworkInfo contains network state as reported by the host.
type NetworkInfo struct {
	Type       string
	IP         string
	Status     string
	Gateway    string
	WifiStatus string
	SSID       string
}

// Config contains daemon configuration for display. Secrets are never stored.
type Config struct {
	CooldownDetectionMs    int64
	CooldownNotificationMs int64
	FullIntervalS          int64
	ShortIntervalS         int64
	HeartbeatS             int64
	MonitoredChannels      int
	Transport              string
	Endpoint               string // broker URL or API host
	HTTPAddr               string
}

// ChannelStatus is the per-channel part of a snapshot.
type ChannelStatus struct {
	Channel      logic.Channel
	Pending      bool
	LastAccepted time.Time // zero if never
	LastSent     time.Time // zero if never
}

// Snapshot is a point-in-time view of daemon state.
// It is a value type, safe to use after the lock is released.
type Snapshot struct {
	Connectivity logic.ConnectivityState
	Power        logic.PowerState
	Wake         logic.Wake
	Code         logic.StatusCode
	Timer        string
	Channels     []ChannelStatus
	Counts       logic.Counts
	StartTime    time.Time
	Now          time.Time
	Network      *NetworkInfo
	Config       Config
}

// Uptime returns the duration since the daemon started.
func (s Snapshot) Uptime() time.Duration {
	return s.Now.Sub(s.StartTime)
}

// Tracker holds mutable daemon state behind an RWMutex.
type Tracker struct {
	mu   sync.RWMutex
	snap Snapshot
	now  func() time.Time
}

// NewTracker creates a Tracker with the given start time and config.
func NewTracker(startTime time.Time, cfg Config) *Tracker {
	return &Tracker{
		snap: Snapshot{
			Connectivity: logic.Disconnected,
			Power:        logic.Active,
			StartTime:    startTime,
			Config:       cfg,
		},
		now: time.Now,
	}
}

// Update replaces the control-loop owned state. The channel slice and counts
// are copied.
func (t *Tracker) Update(conn logic.ConnectivityState, power logic.PowerState, timer string, channels []ChannelStatus, counts logic.Counts) {
	chs := append([]ChannelStatus(nil), channels...)
	c := counts.Clone()

	t.mu.Lock()
	t.snap.Connectivity = conn
	t.snap.Power = power
	t.snap.Timer = timer
	t.snap.Channels = chs
	t.snap.Counts = c
	t.mu.Unlock()
}

// SetWake records the classified wake cause.
func (t *Tracker) SetWake(w logic.Wake) {
	t.mu.Lock()
	t.snap.Wake = w
	t.mu.Unlock()
}

// SetCode records the last indicator code. It satisfies logic.StatusSetter.
func (t *Tracker) SetCode(code logic.StatusCode) {
	t.mu.Lock()
	t.snap.Code = code
	t.mu.Unlock()
}

// SetNetwork sets the network info.
func (t *Tracker) SetNetwork(info *NetworkInfo) {
	t.mu.Lock()
	t.snap.Network = info
	t.mu.Unlock()
}

// Snapshot returns a point-in-time copy of the daemon state.
// The Now field is set to the current time at the moment of the call.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.RLock()
	s := t.snap
	s.Channels = append([]ChannelStatus(nil), t.snap.Channels...)
	s.Counts = t.snap.Counts.Clone()
	t.mu.RUnlock()
	s.Now = t.now()
	return s
}
