package mqtt

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
)

// Client is the subset of paho.Client used by Link.
type Client interface {
	Connect() paho.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Disconnect(quiesce uint)
	IsConnected() bool
}

// Options configures a Link.
type Options struct {
	Broker         string
	ClientID       string
	Username       string
	Password       string
	Topic          string
	MaxRetries     int
	ConnectTimeout time.Duration
	PublishTimeout time.Duration
}

// Link connects to the broker on request and reports connection transitions
// as signal bits. Connection attempts are retried with exponential backoff up
// to MaxRetries; exhaustion raises events.ConnectFailed.
type Link struct {
	opts   Options
	client Client
	sig    events.Setter
	logger zerolog.Logger

	// newBackoff is replaced in tests to avoid real sleeps.
	newBackoff func() backoff.BackOff

	mu        sync.Mutex
	requested bool
	enabled   bool
	done      chan struct{}
}

// NewLink creates a Link backed by a paho client. Nothing is dialled until
// RequestConnect.
func NewLink(opts Options, sig events.Setter, logger zerolog.Logger) *Link {
	l := newLink(opts, nil, sig, logger)

	po := paho.NewClientOptions().
		AddBroker(opts.Broker).
		SetClientID(opts.ClientID).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		SetConnectTimeout(opts.ConnectTimeout).
		SetOnConnectHandler(func(paho.Client) { l.onConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) { l.onConnectionLost(err) })
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}
	l.client = paho.NewClient(po)
	return l
}

func newLink(opts Options, client Client, sig events.Setter, logger zerolog.Logger) *Link {
	if opts.Topic == "" {
		opts.Topic = DefaultTopic
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 5 * time.Second
	}
	if opts.PublishTimeout <= 0 {
		opts.PublishTimeout = 5 * time.Second
	}
	l := &Link{
		opts:   opts,
		client: client,
		sig:    sig,
		logger: logger,
		done:   make(chan struct{}),
	}
	l.newBackoff = func() backoff.BackOff {
		bo := backoff.NewExponentialBackOff()
		bo.InitialInterval = 500 * time.Millisecond
		bo.MaxElapsedTime = 0
		return bo
	}
	return l
}

// RequestConnect starts connecting in the background. It returns false if the
// link cannot be used at all. Repeated requests are accepted and ignored.
func (l *Link) RequestConnect() bool {
	if l.opts.Broker == "" {
		l.logger.Error().Msg("no broker configured")
		return false
	}

	l.mu.Lock()
	if l.requested {
		l.mu.Unlock()
		return true
	}
	l.requested = true
	l.enabled = true
	l.mu.Unlock()

	go l.connect()
	return true
}

func (l *Link) connect() {
	attempt := 0
	op := func() error {
		if !l.isEnabled() {
			return backoff.Permanent(errors.New("link disabled"))
		}
		attempt++
		token := l.client.Connect()
		if !token.WaitTimeout(l.opts.ConnectTimeout) {
			return fmt.Errorf("connect timeout after %v", l.opts.ConnectTimeout)
		}
		return token.Error()
	}
	notify := func(err error, next time.Duration) {
		l.logger.Info().Err(err).Int("attempt", attempt).Dur("retry_in", next).Msg("retry to connect to the broker")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-l.done:
			cancel()
		case <-ctx.Done():
		}
	}()

	retries := l.opts.MaxRetries
	if retries < 0 {
		retries = 0
	}
	bo := backoff.WithContext(backoff.WithMaxRetries(l.newBackoff(), uint64(retries)), ctx)
	if err := backoff.RetryNotify(op, bo, notify); err != nil {
		if !l.isEnabled() {
			return
		}
		l.logger.Error().Err(err).Int("attempts", attempt).Msg("max number of retries reached")
		// Let the next request start a fresh round.
		l.mu.Lock()
		l.requested = false
		l.mu.Unlock()
		l.sig.Set(events.ConnectFailed)
	}
}

func (l *Link) onConnect() {
	l.logger.Info().Str("broker", l.opts.Broker).Msg("connected")
	l.sig.Set(events.Connected)
}

// onConnectionLost reconnects with the same retry budget while the link is
// wanted. Exhaustion ends in events.ConnectFailed.
func (l *Link) onConnectionLost(err error) {
	l.logger.Warn().Err(err).Msg("connection lost")
	l.sig.Set(events.Disconnected)
	if l.isEnabled() {
		go l.connect()
	}
}

func (l *Link) isEnabled() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.enabled
}

// Disconnect stops connection attempts and disconnects from the broker.
func (l *Link) Disconnect() {
	l.mu.Lock()
	wasEnabled := l.enabled
	l.enabled = false
	l.mu.Unlock()

	if !wasEnabled {
		return
	}
	close(l.done)
	if l.client.IsConnected() {
		l.client.Disconnect(250)
	}
	l.sig.Set(events.Disconnected)
}

// IsConnected reports whether the broker connection is up.
func (l *Link) IsConnected() bool {
	return l.client != nil && l.client.IsConnected()
}

// Send publishes n once with QoS 0 (at-most-once), not retained.
// It returns CodeOK on success and CodeFailed otherwise.
func (l *Link) Send(ctx context.Context, n logic.Notification) (int, error) {
	payload, err := FormatPayload(n)
	if err != nil {
		return CodeFailed, fmt.Errorf("format payload: %w", err)
	}

	token := l.client.Publish(l.opts.Topic, 0, false, payload)

	timer := time.NewTimer(l.opts.PublishTimeout)
	defer timer.Stop()

	select {
	case <-token.Done():
	case <-timer.C:
		return CodeFailed, errors.New("publish timeout")
	case <-ctx.Done():
		return CodeFailed, ctx.Err()
	}
	if err := token.Error(); err != nil {
		return CodeFailed, fmt.Errorf("publish: %w", err)
	}
	return CodeOK, nil
}
