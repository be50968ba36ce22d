// Package monitor is the control loop of the intercom listener. A single
// goroutine waits on the signal word, decodes which sources fired and drives
// the debouncer, the dispatcher, the inactivity timer and the power decision.
//
// All loop state is owned by that goroutine. Other goroutines only set bits in
// the word or read the status tracker.
package monitor

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
	"github.com/sweeney/intercom-listener/internal/power"
	"github.com/sweeney/intercom-listener/internal/status"
	"github.com/sweeney/intercom-listener/internal/timer"
)

// Connectivity is the external network collaborator. It reports transitions
// asynchronously by setting Connected, Disconnected or ConnectFailed bits.
type Connectivity interface {
	RequestConnect() bool
	Disconnect()
}

// LevelReader samples a sensor line directly.
type LevelReader interface {
	Level(ch logic.Channel) (bool, error)
}

// Config holds the loop parameters.
type Config struct {
	Channels             []logic.Channel
	Intervals            logic.Intervals
	CooldownDetection    time.Duration
	CooldownNotification time.Duration
	BootNotification     bool
	Heartbeat            time.Duration
	// TimerWake is passed to the power controller; nil wakes on lines only.
	TimerWake *time.Duration
}

// Deps are the collaborators of the loop. Status, Tracker and After may be nil.
type Deps struct {
	Word    *events.Word
	Levels  LevelReader
	Conn    Connectivity
	Sender  logic.Sender
	Power   power.LowPower
	Status  logic.StatusSetter
	Tracker *status.Tracker
	After   timer.AfterFunc
	Now     func() time.Time
	Logger  zerolog.Logger
}

// State is the control loop state.
type State struct {
	Channels         []*logic.SensorChannel
	Boot             logic.SensorChannel
	Connectivity     logic.ConnectivityState
	Power            logic.PowerState
	ConnectRequested bool
	Counts           logic.Counts
}

// Loop is the event multiplexer.
type Loop struct {
	cfg    Config
	word   *events.Word
	levels LevelReader
	conn   Connectivity
	power  power.LowPower
	status logic.StatusSetter
	track  *status.Tracker
	now    func() time.Time
	logger zerolog.Logger

	debounce *logic.Debouncer
	dispatch *logic.Dispatcher
	timer    *timer.Inactivity

	state State
}

// New creates a Loop. Call Boot once before Run.
func New(cfg Config, d Deps) *Loop {
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 10 * time.Second
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	st := d.Status
	if st == nil {
		st = logic.StatusSetters(nil)
	}

	l := &Loop{
		cfg:      cfg,
		word:     d.Word,
		levels:   d.Levels,
		conn:     d.Conn,
		power:    d.Power,
		status:   st,
		track:    d.Tracker,
		now:      d.Now,
		logger:   d.Logger,
		debounce: logic.NewDebouncer(cfg.CooldownDetection),
		dispatch: logic.NewDispatcher(cfg.CooldownNotification, d.Sender, st),
		timer:    timer.New(d.Word, d.After),
	}
	l.state = State{
		Boot:         logic.SensorChannel{Channel: logic.ChannelBoot},
		Connectivity: logic.Disconnected,
		Power:        logic.Active,
		Counts:       logic.Counts{Accepted: make(map[logic.Channel]int)},
	}
	for _, ch := range cfg.Channels {
		l.state.Channels = append(l.state.Channels, &logic.SensorChannel{Channel: ch})
	}
	return l
}

// Boot applies the wake-cause plan: seeds pending flags, optionally requests
// connectivity and arms the inactivity timer.
func (l *Loop) Boot(wake logic.Wake) {
	now := l.now()
	l.status.SetCode(logic.StatusWakeup)
	if l.track != nil {
		l.track.SetWake(wake)
	}

	var active map[logic.Channel]bool
	if wake.Cause == logic.TimerWake {
		active = make(map[logic.Channel]bool, len(l.cfg.Channels))
		for _, ch := range l.cfg.Channels {
			active[ch] = l.sample(ch)
		}
	}

	plan := logic.PlanBoot(wake, l.cfg.Channels, active, l.cfg.Intervals, l.cfg.BootNotification)
	l.logger.Info().
		Str("cause", string(wake.Cause)).
		Str("channel", string(wake.Channel)).
		Dur("interval", plan.Interval).
		Bool("connect", plan.Connect).
		Msg("wake")

	for _, ch := range plan.Seed {
		if l.channel(ch) != nil {
			l.accept(ch, now)
		}
	}
	if plan.BootNotification {
		l.state.Boot.Pending = true
	}
	if plan.Connect {
		l.requestConnect()
	}

	l.timer.Arm(plan.Interval)
	l.publish()
}

// Step processes the bits from one wake of the signal wait. The order is
// fixed: connectivity, sensor starts, sensor ends, pending dispatch and the
// timer expiry last, so a ring in the same wake is never pre-empted by sleep.
func (l *Loop) Step(ctx context.Context, bits events.Bits, now time.Time) logic.PowerState {
	l.handleConnectivity(bits)

	for _, sc := range l.state.Channels {
		if bits.Has(events.StartBit(sc.Channel)) {
			l.handleStart(sc.Channel, now)
		}
	}
	for _, sc := range l.state.Channels {
		if bits.Has(events.EndBit(sc.Channel)) {
			l.logger.Debug().Str("channel", string(sc.Channel)).Msg("sensor end")
		}
	}

	l.dispatchPending(ctx, now)

	// An edge accepted above re-arms the timer, which makes the alarm stale.
	if bits.Has(events.TimerAlarm) && l.timer.State() == timer.Expired {
		l.handleExpiry()
	}

	l.publish()
	return l.state.Power
}

// Run waits on the signal word until the device goes to sleep or ctx is
// cancelled. Cancellation is only observed between iterations.
func (l *Loop) Run(ctx context.Context) error {
	for {
		bits, err := l.word.Wait(ctx, events.All, l.waitBound(l.now()))
		if err != nil {
			l.logger.Info().Msg("shutting down")
			l.timer.Stop()
			return nil
		}
		if bits == 0 {
			l.logger.Debug().Str("timer", string(l.timer.State())).Msg("heartbeat")
		} else {
			l.logger.Debug().Str("bits", bits.String()).Msg("wake")
		}

		if l.Step(context.WithoutCancel(ctx), bits, l.now()) == logic.Sleep {
			return nil
		}
	}
}

// State returns a copy of the loop state.
func (l *Loop) State() State {
	s := l.state
	s.Channels = make([]*logic.SensorChannel, len(l.state.Channels))
	for i, sc := range l.state.Channels {
		c := *sc
		s.Channels[i] = &c
	}
	s.Counts = l.state.Counts.Clone()
	return s
}

// Timer exposes the inactivity timer.
func (l *Loop) Timer() *timer.Inactivity {
	return l.timer
}

// Connectivity bits are handled in bit order, so a later transition in the
// same wake wins.
func (l *Loop) handleConnectivity(bits events.Bits) {
	if bits.Has(events.Connected) {
		l.state.Connectivity = logic.Connected
		l.logger.Info().Msg("connected")
	}
	if bits.Has(events.Disconnected) {
		l.state.Connectivity = logic.Disconnected
		l.logger.Info().Msg("disconnected")
	}
	if bits.Has(events.ConnectFailed) {
		l.state.Connectivity = logic.Failed
		l.status.SetCode(logic.StatusConnectivityError)
		l.logger.Error().Msg("connection failed")
	}
}

func (l *Loop) handleStart(ch logic.Channel, now time.Time) {
	l.logger.Debug().Str("channel", string(ch)).Msg("sensor start")
	if l.needsConnect() {
		l.requestConnect()
	}
	if !l.accept(ch, now) {
		l.logger.Debug().Str("channel", string(ch)).Msg("edge suppressed")
		return
	}
	l.timer.Reset(l.cfg.Intervals.Full)
	l.state.Power = logic.Active
}

// accept records an edge and marks the channel pending when it passes the
// debouncer.
func (l *Loop) accept(ch logic.Channel, now time.Time) bool {
	if !l.debounce.RecordEdge(ch, now) {
		return false
	}
	if sc := l.channel(ch); sc != nil {
		sc.Pending = true
	}
	l.state.Counts.Accepted[ch]++
	l.logger.Info().Str("channel", string(ch)).Msg("event accepted")
	return true
}

// needsConnect reports whether a sensor start should ask for connectivity:
// nothing was requested yet, or the last request ended in a loss or failure.
// Requests are idempotent.
func (l *Loop) needsConnect() bool {
	if !l.state.ConnectRequested {
		return true
	}
	switch l.state.Connectivity {
	case logic.Disconnected, logic.Failed:
		return true
	}
	return false
}

func (l *Loop) requestConnect() {
	l.state.ConnectRequested = true
	l.state.Connectivity = logic.Connecting
	if l.conn.RequestConnect() {
		return
	}
	// A rejected request is retried on the next accepted sensor start.
	l.state.ConnectRequested = false
	l.state.Connectivity = logic.Failed
	l.status.SetCode(logic.StatusConnectivityError)
	l.logger.Error().Msg("connect request rejected")
}

func (l *Loop) dispatchPending(ctx context.Context, now time.Time) {
	connected := l.state.Connectivity == logic.Connected
	for _, sc := range l.pending() {
		l.record(sc.Channel, l.dispatch.TryDispatch(ctx, sc, now, connected))
	}
}

func (l *Loop) record(ch logic.Channel, r logic.DispatchResult) {
	switch r {
	case logic.DispatchSent:
		l.state.Counts.Sent++
		l.logger.Info().Str("channel", string(ch)).Msg("notification sent")
	case logic.DispatchFailed:
		l.state.Counts.Failed++
		l.logger.Error().Str("channel", string(ch)).Msg("notification failed")
	case logic.DispatchSkipped:
		l.state.Counts.Skipped++
	}
}

func (l *Loop) handleExpiry() {
	stillActive := false
	for _, sc := range l.state.Channels {
		if l.sample(sc.Channel) {
			stillActive = true
		}
	}

	switch logic.DecideExpiry(stillActive) {
	case logic.ExtendWait:
		l.state.Power = logic.ExtendWait
		l.timer.Reset(l.cfg.Intervals.Full)
		l.logger.Warn().Dur("interval", l.cfg.Intervals.Full).Msg("line still active, extending wait")
	case logic.Sleep:
		l.sleep()
	}
}

// sleep drops whatever is still pending, disconnects and powers down. The
// dispatch pass earlier in the same Step was the last attempt.
func (l *Loop) sleep() {
	for _, sc := range l.pending() {
		sc.Pending = false
		l.logger.Warn().Str("channel", string(sc.Channel)).Msg("dropping notification before sleep")
	}

	l.timer.Stop()
	if l.state.ConnectRequested {
		l.conn.Disconnect()
		l.state.ConnectRequested = false
	}
	l.state.Connectivity = logic.Disconnected
	l.state.Power = logic.Sleep
	l.publish()

	l.logger.Info().Msg("going to sleep")
	l.power.EnterLowPower(l.cfg.Channels, l.cfg.TimerWake)
}

// sample reads a line level for the expiry check. Read errors count as inactive.
func (l *Loop) sample(ch logic.Channel) bool {
	active, err := l.levels.Level(ch)
	if err != nil {
		l.logger.Warn().Err(err).Str("channel", string(ch)).Msg("level read failed")
		return false
	}
	return active
}

func (l *Loop) channel(ch logic.Channel) *logic.SensorChannel {
	for _, sc := range l.state.Channels {
		if sc.Channel == ch {
			return sc
		}
	}
	return nil
}

// pending lists channels awaiting dispatch, boot notification last.
func (l *Loop) pending() []*logic.SensorChannel {
	var out []*logic.SensorChannel
	for _, sc := range l.state.Channels {
		if sc.Pending {
			out = append(out, sc)
		}
	}
	if l.state.Boot.Pending {
		out = append(out, &l.state.Boot)
	}
	return out
}

// waitBound shortens the heartbeat so a cooldown-skipped notification is
// retried as soon as its cooldown ends.
func (l *Loop) waitBound(now time.Time) time.Duration {
	bound := l.cfg.Heartbeat
	if l.state.Connectivity != logic.Connected {
		return bound
	}
	for _, sc := range l.pending() {
		last, ok := l.dispatch.LastSent(sc.Channel)
		if !ok {
			continue
		}
		wait := last.Add(l.cfg.CooldownNotification).Sub(now) + time.Millisecond
		if wait < time.Millisecond {
			wait = time.Millisecond
		}
		if wait < bound {
			bound = wait
		}
	}
	return bound
}

func (l *Loop) publish() {
	if l.track == nil {
		return
	}
	chs := make([]status.ChannelStatus, 0, len(l.state.Channels))
	for _, sc := range l.state.Channels {
		cs := status.ChannelStatus{Channel: sc.Channel, Pending: sc.Pending}
		if t, ok := l.debounce.LastAccepted(sc.Channel); ok {
			cs.LastAccepted = t
		}
		if t, ok := l.dispatch.LastSent(sc.Channel); ok {
			cs.LastSent = t
		}
		chs = append(chs, cs)
	}
	l.track.Update(l.state.Connectivity, l.state.Power, string(l.timer.State()), chs, l.state.Counts)
}
