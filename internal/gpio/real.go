//go:build linux

package gpio

import (
	"fmt"
	"sort"

	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
)

// RealWatcher reads sensor lines from actual hardware using the Linux GPIO
// character device and turns edges into signal bits.
type RealWatcher struct {
	chip  *gpiocdev.Chip
	lines map[logic.Channel]*gpiocdev.Line
	pull  gpiocdev.LineBias
}

// NewRealWatcher requests every configured line as an input with both-edge
// detection. Edges are delivered on the gpiocdev event goroutine, which only
// sets bits in sig. Any error here is a hardware configuration failure.
func NewRealWatcher(cfg Config, sig events.Setter, logger zerolog.Logger) (*RealWatcher, error) {
	chip, err := gpiocdev.NewChip(cfg.Chip)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip %s: %w", cfg.Chip, err)
	}

	w := &RealWatcher{
		chip:  chip,
		lines: make(map[logic.Channel]*gpiocdev.Line),
		pull:  pullOption(cfg.Pull),
	}

	for _, ch := range sortedChannels(cfg.Pins) {
		pin := cfg.Pins[ch]
		ch := ch
		opts := []gpiocdev.LineReqOption{
			gpiocdev.AsInput,
			w.pull,
			gpiocdev.WithBothEdges,
			gpiocdev.WithEventHandler(func(evt gpiocdev.LineEvent) {
				// Edge types are reported in logical terms, after active-low inversion.
				active := evt.Type == gpiocdev.LineEventRisingEdge
				if b := edgeBits(ch, active); b != 0 {
					sig.Set(b)
				}
			}),
		}
		if cfg.ActiveLow {
			opts = append(opts, gpiocdev.AsActiveLow)
		}

		line, err := chip.RequestLine(pin, opts...)
		if err != nil {
			w.Close()
			return nil, fmt.Errorf("request %s pin %d: %w", ch, pin, err)
		}
		w.lines[ch] = line

		v, _ := line.Value()
		logger.Info().Str("channel", string(ch)).Int("pin", pin).Int("level", v).Msg("sensor line configured")
	}

	return w, nil
}

// Level returns the logical level of ch.
func (w *RealWatcher) Level(ch logic.Channel) (bool, error) {
	line, ok := w.lines[ch]
	if !ok {
		return false, fmt.Errorf("read %s: channel not configured", ch)
	}
	v, err := line.Value()
	if err != nil {
		return false, fmt.Errorf("read %s pin: %w", ch, err)
	}
	return v == 1, nil
}

// Close releases GPIO resources.
// Lines are reconfigured to plain inputs with the configured bias before
// closing so the pins are left in a known state for the next boot.
func (w *RealWatcher) Close() error {
	var errs []error

	for _, ch := range sortedChannels(w.lines) {
		line := w.lines[ch]
		if err := line.Reconfigure(gpiocdev.AsInput, w.pull); err != nil {
			errs = append(errs, fmt.Errorf("reconfigure %s pin: %w", ch, err))
		}
		if err := line.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %s pin: %w", ch, err))
		}
	}
	if w.chip != nil {
		if err := w.chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// RealOutput drives one output line.
type RealOutput struct {
	line *gpiocdev.Line
}

// NewRealOutput requests pin on chip as an output, initially low.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	line, err := gpiocdev.RequestLine(chip, pin, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request output pin %d: %w", pin, err)
	}
	return &RealOutput{line: line}, nil
}

// SetValue sets the output level.
func (o *RealOutput) SetValue(v int) error {
	return o.line.SetValue(v)
}

// Close drives the line low and releases it.
func (o *RealOutput) Close() error {
	_ = o.line.SetValue(0)
	return o.line.Close()
}

func pullOption(p Pull) gpiocdev.LineBias {
	switch p {
	case PullUp:
		return gpiocdev.WithPullUp
	case PullNone:
		return gpiocdev.WithBiasDisabled
	}
	return gpiocdev.WithPullDown
}

func sortedChannels[V any](m map[logic.Channel]V) []logic.Channel {
	out := make([]logic.Channel, 0, len(m))
	for ch := range m {
		out = append(out, ch)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
