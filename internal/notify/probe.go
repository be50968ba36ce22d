package notify

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/events"
)

// DialFunc opens a connection; net.Dialer.DialContext satisfies it.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// ProbeConfig configures a reachability probe.
type ProbeConfig struct {
	// Addr is host:port to dial.
	Addr       string
	MaxRetries int
	Timeout    time.Duration
}

// Probe is the connectivity collaborator used with the HTTP transport: the
// network counts as connected once the API host accepts a TCP connection.
// Attempts are retried with exponential backoff up to MaxRetries; exhaustion
// raises events.ConnectFailed.
type Probe struct {
	cfg    ProbeConfig
	dial   DialFunc
	sig    events.Setter
	logger zerolog.Logger

	newBackoff func() backoff.BackOff

	mu        sync.Mutex
	requested bool
	connected bool
	cancel    context.CancelFunc
}

// NewProbe creates a Probe. A nil dial uses net.Dialer.
func NewProbe(cfg ProbeConfig, dial DialFunc, sig events.Setter, logger zerolog.Logger) *Probe {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if dial == nil {
		d := &net.Dialer{Timeout: cfg.Timeout}
		dial = d.DialContext
	}
	return &Probe{
		cfg:    cfg,
		dial:   dial,
		sig:    sig,
		logger: logger,
		newBackoff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.InitialInterval = 500 * time.Millisecond
			bo.MaxElapsedTime = 0
			return bo
		},
	}
}

// ProbeAddr derives host:port from an API base URL.
func ProbeAddr(apiBase string) (string, error) {
	u, err := url.Parse(apiBase)
	if err != nil {
		return "", fmt.Errorf("parse api base %q: %w", apiBase, err)
	}
	if u.Hostname() == "" {
		return "", fmt.Errorf("api base %q has no host", apiBase)
	}
	port := u.Port()
	if port == "" {
		port = "443"
		if u.Scheme == "http" {
			port = "80"
		}
	}
	return net.JoinHostPort(u.Hostname(), port), nil
}

// RequestConnect starts probing in the background. Repeated requests are
// accepted and ignored until a round of attempts has failed.
func (p *Probe) RequestConnect() bool {
	if p.cfg.Addr == "" {
		p.logger.Error().Msg("no probe address configured")
		return false
	}

	p.mu.Lock()
	if p.requested {
		p.mu.Unlock()
		return true
	}
	p.requested = true
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.mu.Unlock()

	go p.run(ctx)
	return true
}

func (p *Probe) run(ctx context.Context) {
	attempt := 0
	op := func() error {
		attempt++
		dctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
		defer cancel()
		conn, err := p.dial(dctx, "tcp", p.cfg.Addr)
		if err != nil {
			return err
		}
		return conn.Close()
	}
	notify := func(err error, next time.Duration) {
		p.logger.Info().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("retry to reach the API host")
	}

	retries := p.cfg.MaxRetries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(p.newBackoff(), uint64(retries)), ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		if ctx.Err() != nil {
			return
		}
		p.logger.Error().Err(err).Int("attempts", attempt).Msg("max number of retries reached")
		p.mu.Lock()
		p.requested = false
		p.mu.Unlock()
		p.sig.Set(events.ConnectFailed)
		return
	}

	p.mu.Lock()
	p.connected = true
	p.mu.Unlock()
	p.logger.Info().Str("addr", p.cfg.Addr).Msg("API host reachable")
	p.sig.Set(events.Connected)
}

// Disconnect stops probing. If the probe had succeeded it raises
// events.Disconnected.
func (p *Probe) Disconnect() {
	p.mu.Lock()
	cancel := p.cancel
	was := p.connected
	p.connected = false
	p.cancel = nil
	p.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if was {
		p.sig.Set(events.Disconnected)
	}
}
