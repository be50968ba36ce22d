// Package logic contains the pure decision logic of the intercom listener:
// debouncing, notification rate limiting, boot planning and the sleep decision.
// This package has NO external dependencies (no GPIO, MQTT, HTTP, OS, or time.Sleep).
// Time is always injectable via time.Time parameters.
package logic

import (
	"fmt"
	"time"
)

// Channel identifies a monitored sensor line.
type Channel string

const (
	ChannelRing Channel = "ring"
	ChannelDoor Channel = "door"

	// ChannelBoot is a notification-only pseudo channel used for the
	// optional power-on message. It has no sensor line.
	ChannelBoot Channel = "boot"
)

// SensorChannels returns the sensor lines monitored for the given count.
// Only 1 (ring) and 2 (ring + door) are meaningful; anything else yields nil.
func SensorChannels(monitored int) []Channel {
	switch monitored {
	case 1:
		return []Channel{ChannelRing}
	case 2:
		return []Channel{ChannelRing, ChannelDoor}
	}
	return nil
}

// Message returns the notification text sent for an accepted event on ch.
func (c Channel) Message() string {
	switch c {
	case ChannelRing:
		return "Door ring!"
	case ChannelDoor:
		return "Door opened!"
	case ChannelBoot:
		return "Intercom listener powered on"
	}
	return fmt.Sprintf("Event on %s", string(c))
}

// SensorChannel is the per-line state owned by the control loop.
type SensorChannel struct {
	Channel Channel
	// Pending is set when an accepted edge still awaits a dispatch attempt.
	Pending bool
}

// ConnectivityState mirrors the external connectivity collaborator.
type ConnectivityState string

const (
	Disconnected ConnectivityState = "DISCONNECTED"
	Connecting   ConnectivityState = "CONNECTING"
	Connected    ConnectivityState = "CONNECTED"
	Failed       ConnectivityState = "FAILED"
)

// PowerState is the device power decision. Sleep is terminal for the process.
type PowerState string

const (
	Active     PowerState = "ACTIVE"
	ExtendWait PowerState = "EXTEND_WAIT"
	Sleep      PowerState = "SLEEP"
)

// WakeCause classifies why the process is running.
type WakeCause string

const (
	ExternalEdgeWake WakeCause = "EXTERNAL_EDGE"
	TimerWake        WakeCause = "TIMER"
	PowerOnWake      WakeCause = "POWER_ON"
)

// Wake is a classified wake reason. Channel is set for ExternalEdgeWake.
type Wake struct {
	Cause   WakeCause
	Channel Channel
}

// StatusCode is an abstract status shown by the indicator.
type StatusCode int

const (
	StatusIdle StatusCode = iota
	StatusWakeup
	StatusConnectivityError
	StatusTransportError
	StatusUnknownError
)

func (s StatusCode) String() string {
	switch s {
	case StatusIdle:
		return "IDLE"
	case StatusWakeup:
		return "WAKEUP"
	case StatusConnectivityError:
		return "CONNECTIVITY_ERROR"
	case StatusTransportError:
		return "TRANSPORT_ERROR"
	case StatusUnknownError:
		return "UNKNOWN_ERROR"
	}
	return fmt.Sprintf("StatusCode(%d)", int(s))
}

// DispatchResult is the outcome of a dispatch attempt.
type DispatchResult string

const (
	DispatchSent    DispatchResult = "SENT"
	DispatchSkipped DispatchResult = "SKIPPED"
	DispatchFailed  DispatchResult = "FAILED"
)

// Notification is handed to the transport.
type Notification struct {
	Timestamp time.Time
	Channel   Channel
	Text      string
}

// Counts tracks activity since the process started.
type Counts struct {
	Accepted map[Channel]int
	Sent     int
	Failed   int
	Skipped  int
}

// Clone returns a deep copy safe to hand to other goroutines.
func (c Counts) Clone() Counts {
	out := c
	out.Accepted = make(map[Channel]int, len(c.Accepted))
	for k, v := range c.Accepted {
		out.Accepted[k] = v
	}
	return out
}
