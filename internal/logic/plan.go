package logic

import "time"

// Intervals holds the inactivity timer durations.
type Intervals struct {
	Full  time.Duration
	Short time.Duration
}

// BootPlan is what the control loop does before entering its wait loop.
type BootPlan struct {
	// Interval is the first inactivity timer duration.
	Interval time.Duration
	// Connect requests connectivity immediately instead of on the first edge.
	Connect bool
	// Seed lists channels whose pending flag is set at boot.
	Seed []Channel
	// BootNotification queues the one-time power-on message.
	BootNotification bool
}

// PlanBoot decides the boot behaviour from the wake reason.
//
// active reports the current raw level of each monitored channel; it is only
// consulted for TimerWake. A TimerWake with every line inactive takes the short
// interval and defers connectivity so the device can go straight back to sleep.
func PlanBoot(wake Wake, monitored []Channel, active map[Channel]bool, iv Intervals, bootNotification bool) BootPlan {
	plan := BootPlan{Interval: iv.Full, Connect: true}

	switch wake.Cause {
	case ExternalEdgeWake:
		ch := wake.Channel
		if ch == "" && len(monitored) > 0 {
			ch = monitored[0]
		}
		if ch != "" {
			plan.Seed = []Channel{ch}
		}

	case TimerWake:
		for _, ch := range monitored {
			if active[ch] {
				plan.Seed = append(plan.Seed, ch)
			}
		}
		if len(plan.Seed) == 0 {
			plan.Interval = iv.Short
			plan.Connect = false
		}

	default:
		plan.BootNotification = bootNotification
	}

	return plan
}

// DecideExpiry is the inactivity timer expiry rule: a line that is still
// electrically active extends the wait, otherwise the device sleeps.
func DecideExpiry(stillActive bool) PowerState {
	if stillActive {
		return ExtendWait
	}
	return Sleep
}
