// Package power puts the board into low-power sleep and classifies why the
// process is running when it starts again.
//
// Sleep is terminal for the process: after resume the controller exits so the
// service manager restarts the daemon from the top, the same way a
// microcontroller reboots out of deep sleep. A sleep record left in the state
// directory carries the wake sources across that restart.
package power

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
)

// Default sysfs locations.
const (
	DefaultStateDir   = "/var/lib/intercom-listener"
	DefaultRTC        = "/sys/class/rtc/rtc0"
	DefaultPowerState = "/sys/power/state"
	DefaultBootID     = "/proc/sys/kernel/random/boot_id"

	recordFile = "sleep.json"
	wokeTimer  = "timer"
)

// LowPower is the power-down collaborator used by the control loop.
// EnterLowPower does not return on real hardware.
type LowPower interface {
	EnterLowPower(wakeSources []logic.Channel, timer *time.Duration)
}

// Record is persisted just before sleeping.
type Record struct {
	SleptAt       time.Time       `json:"slept_at"`
	BootID        string          `json:"boot_id,omitempty"`
	WakeSources   []logic.Channel `json:"wake_sources"`
	TimerDeadline *time.Time      `json:"timer_deadline,omitempty"`
	// WokeBy is filled in when the wake source is known, either a channel
	// name or "timer".
	WokeBy string `json:"woke_by,omitempty"`
}

// Config locates the state directory and the kernel interfaces.
type Config struct {
	// Suspend enables writing to PowerState. When false, sleep is emulated
	// by waiting for a wake source on the signal word.
	Suspend    bool
	StateDir   string
	RTC        string
	PowerState string
	BootID     string
}

func (c *Config) applyDefaults() {
	if c.StateDir == "" {
		c.StateDir = DefaultStateDir
	}
	if c.RTC == "" {
		c.RTC = DefaultRTC
	}
	if c.PowerState == "" {
		c.PowerState = DefaultPowerState
	}
	if c.BootID == "" {
		c.BootID = DefaultBootID
	}
}

// Waiter is the consumer side of the signal word.
type Waiter interface {
	Wait(ctx context.Context, mask events.Bits, timeout time.Duration) (events.Bits, error)
}

// Controller implements LowPower on Linux.
type Controller struct {
	cfg    Config
	waiter Waiter
	logger zerolog.Logger

	mu     sync.Mutex
	atExit []func()

	// Replaced in tests.
	now  func() time.Time
	exit func(code int)
}

// NewController creates a Controller. waiter may be nil, in which case
// emulated sleep returns immediately.
func NewController(cfg Config, waiter Waiter, logger zerolog.Logger) *Controller {
	cfg.applyDefaults()
	return &Controller{
		cfg:    cfg,
		waiter: waiter,
		logger: logger,
		now:    time.Now,
		exit:   os.Exit,
	}
}

// AtExit registers f to run just before the process exits after resume.
// Deferred calls in main never run on that path, so resources that must be
// released are registered here. Hooks run once, last registered first.
func (c *Controller) AtExit(f func()) {
	c.mu.Lock()
	c.atExit = append(c.atExit, f)
	c.mu.Unlock()
}

func (c *Controller) runAtExit() {
	c.mu.Lock()
	hooks := c.atExit
	c.atExit = nil
	c.mu.Unlock()

	for i := len(hooks) - 1; i >= 0; i-- {
		hooks[i]()
	}
}

// EnterLowPower records the wake sources, programs the RTC alarm when timer is
// set, suspends and exits the process once the board resumes.
func (c *Controller) EnterLowPower(wakeSources []logic.Channel, timer *time.Duration) {
	now := c.now()
	rec := Record{
		SleptAt:     now,
		BootID:      readBootID(c.cfg.BootID),
		WakeSources: append([]logic.Channel(nil), wakeSources...),
	}
	if timer != nil && *timer > 0 {
		deadline := now.Add(*timer)
		rec.TimerDeadline = &deadline
	}

	if err := SaveRecord(c.cfg.StateDir, rec); err != nil {
		c.logger.Error().Err(err).Msg("cannot save sleep record")
	}

	suspended := false
	if c.cfg.Suspend {
		if rec.TimerDeadline != nil {
			if err := c.programAlarm(*timer); err != nil {
				c.logger.Error().Err(err).Msg("cannot program rtc wake alarm")
			}
		}
		c.logger.Info().Strs("wake_sources", channelNames(wakeSources)).Msg("entering suspend")
		if err := os.WriteFile(c.cfg.PowerState, []byte("mem"), 0o644); err != nil {
			c.logger.Error().Err(err).Msg("suspend failed, emulating sleep")
		} else {
			suspended = true
		}
	}

	if !suspended {
		if woke := c.emulate(wakeSources, timer); woke != "" {
			rec.WokeBy = woke
			if err := SaveRecord(c.cfg.StateDir, rec); err != nil {
				c.logger.Error().Err(err).Msg("cannot update sleep record")
			}
		}
	}

	c.logger.Info().Msg("resumed, restarting")
	c.runAtExit()
	c.exit(0)
}

// emulate blocks until a wake source edge or the timer, and returns what woke
// it. An empty string means unknown.
func (c *Controller) emulate(wakeSources []logic.Channel, timer *time.Duration) string {
	if c.waiter == nil {
		return ""
	}
	var mask events.Bits
	for _, ch := range wakeSources {
		mask |= events.StartBit(ch)
	}

	c.logger.Info().Strs("wake_sources", channelNames(wakeSources)).Msg("sleeping (emulated)")
	for {
		timeout := 24 * time.Hour
		if timer != nil && *timer > 0 {
			timeout = *timer
		}
		got, err := c.waiter.Wait(context.Background(), mask, timeout)
		if err != nil {
			return ""
		}
		for _, ch := range wakeSources {
			if got.Has(events.StartBit(ch)) {
				return string(ch)
			}
		}
		if timer != nil && *timer > 0 {
			return wokeTimer
		}
	}
}

func (c *Controller) programAlarm(d time.Duration) error {
	path := filepath.Join(c.cfg.RTC, "wakealarm")
	// The kernel refuses a new alarm while one is set.
	if err := os.WriteFile(path, []byte("0"), 0o644); err != nil {
		return fmt.Errorf("clear %s: %w", path, err)
	}
	secs := int64(d.Round(time.Second) / time.Second)
	if secs < 1 {
		secs = 1
	}
	if err := os.WriteFile(path, []byte("+"+strconv.FormatInt(secs, 10)), 0o644); err != nil {
		return fmt.Errorf("set %s: %w", path, err)
	}
	return nil
}

// SaveRecord writes rec atomically to dir.
func SaveRecord(dir string, rec Record) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal sleep record: %w", err)
	}
	tmp, err := os.CreateTemp(dir, recordFile+".*")
	if err != nil {
		return fmt.Errorf("create sleep record: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("write sleep record: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("close sleep record: %w", err)
	}
	if err := os.Rename(tmp.Name(), filepath.Join(dir, recordFile)); err != nil {
		return fmt.Errorf("rename sleep record: %w", err)
	}
	return nil
}

// TakeRecord reads and removes the sleep record in dir. A missing record
// returns nil and no error.
func TakeRecord(dir string) (*Record, error) {
	path := filepath.Join(dir, recordFile)
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read sleep record: %w", err)
	}
	if err := os.Remove(path); err != nil {
		return nil, fmt.Errorf("remove sleep record: %w", err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("parse sleep record: %w", err)
	}
	return &rec, nil
}

// LevelFunc samples a sensor line.
type LevelFunc func(ch logic.Channel) (bool, error)

// Classify derives the wake cause from the sleep record of the previous run.
//
// No record, or a record from another kernel boot, is a power-on. A recorded
// wake source wins. Otherwise an active wake-source line means an edge wake,
// a passed timer deadline means a timer wake, and anything else is attributed
// to the first wake source since a short pulse may be over before sampling.
func Classify(rec *Record, bootID string, level LevelFunc, now time.Time) logic.Wake {
	if rec == nil || (rec.BootID != "" && bootID != "" && rec.BootID != bootID) {
		return logic.Wake{Cause: logic.PowerOnWake}
	}

	switch rec.WokeBy {
	case "":
	case wokeTimer:
		return logic.Wake{Cause: logic.TimerWake}
	default:
		return logic.Wake{Cause: logic.ExternalEdgeWake, Channel: logic.Channel(rec.WokeBy)}
	}

	for _, ch := range rec.WakeSources {
		if active, err := level(ch); err == nil && active {
			return logic.Wake{Cause: logic.ExternalEdgeWake, Channel: ch}
		}
	}
	if rec.TimerDeadline != nil && !now.Before(*rec.TimerDeadline) {
		return logic.Wake{Cause: logic.TimerWake}
	}
	if len(rec.WakeSources) > 0 {
		return logic.Wake{Cause: logic.ExternalEdgeWake, Channel: rec.WakeSources[0]}
	}
	return logic.Wake{Cause: logic.PowerOnWake}
}

// BootID returns the current kernel boot ID, or "" if unavailable.
func (c *Controller) BootID() string {
	return readBootID(c.cfg.BootID)
}

// StateDir returns the directory holding the sleep record.
func (c *Controller) StateDir() string {
	return c.cfg.StateDir
}

func readBootID(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	id, err := uuid.ParseBytes(bytes.TrimSpace(data))
	if err != nil {
		return ""
	}
	return id.String()
}

func channelNames(chs []logic.Channel) []string {
	out := make([]string, len(chs))
	for i, ch := range chs {
		out[i] = string(ch)
	}
	return out
}
