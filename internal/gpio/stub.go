//go:build !linux

package gpio

import (
	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
)

// RealWatcher is not available on non-Linux platforms.
type RealWatcher struct{}

// NewRealWatcher returns ErrUnsupported on non-Linux platforms.
func NewRealWatcher(cfg Config, sig events.Setter, logger zerolog.Logger) (*RealWatcher, error) {
	return nil, ErrUnsupported
}

// Level is not implemented on non-Linux platforms.
func (w *RealWatcher) Level(ch logic.Channel) (bool, error) {
	return false, ErrUnsupported
}

// Close is not implemented on non-Linux platforms.
func (w *RealWatcher) Close() error {
	return nil
}

// RealOutput is not available on non-Linux platforms.
type RealOutput struct{}

// NewRealOutput returns ErrUnsupported on non-Linux platforms.
func NewRealOutput(chip string, pin int) (*RealOutput, error) {
	return nil, ErrUnsupported
}

// SetValue is not implemented on non-Linux platforms.
func (o *RealOutput) SetValue(v int) error {
	return ErrUnsupported
}

// Close is not implemented on non-Linux platforms.
func (o *RealOutput) Close() error {
	return nil
}
