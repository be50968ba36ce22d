package mqtt

import (
	"context"
	"sync"

	"github.com/sweeney/intercom-listener/internal/events"
	"github.com/sweeney/intercom-listener/internal/logic"
)

// FakeLink records connect requests and sent notifications for test assertions.
type FakeLink struct {
	mu sync.Mutex

	// Sent contains all notifications passed to Send.
	Sent []logic.Notification

	// Payloads contains the JSON payloads that were "published".
	Payloads [][]byte

	// ConnectRequests counts RequestConnect calls.
	ConnectRequests int

	// Disconnects counts Disconnect calls.
	Disconnects int

	// RejectConnect makes RequestConnect return false.
	RejectConnect bool

	// AutoConnect, if set, raises events.Connected on the first accepted request.
	AutoConnect events.Setter

	// SendCode is returned by Send; zero means CodeOK.
	SendCode int

	// SendError, if set, is returned by Send.
	SendError error
}

// NewFakeLink creates a FakeLink for testing.
func NewFakeLink() *FakeLink {
	return &FakeLink{}
}

// RequestConnect records the request.
func (f *FakeLink) RequestConnect() bool {
	f.mu.Lock()
	f.ConnectRequests++
	reject := f.RejectConnect
	first := f.ConnectRequests == 1
	sig := f.AutoConnect
	f.mu.Unlock()

	if reject {
		return false
	}
	if first && sig != nil {
		sig.Set(events.Connected)
	}
	return true
}

// Disconnect records the call.
func (f *FakeLink) Disconnect() {
	f.mu.Lock()
	f.Disconnects++
	f.mu.Unlock()
}

// Send records the notification.
func (f *FakeLink) Send(_ context.Context, n logic.Notification) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.Sent = append(f.Sent, n)
	if f.SendError != nil {
		return CodeFailed, f.SendError
	}

	payload, err := FormatPayload(n)
	if err != nil {
		return CodeFailed, err
	}
	f.Payloads = append(f.Payloads, payload)

	if f.SendCode != 0 {
		return f.SendCode, nil
	}
	return CodeOK, nil
}

// SentCount returns the number of Send calls.
func (f *FakeLink) SentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Sent)
}

// Requests returns the number of RequestConnect calls.
func (f *FakeLink) Requests() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ConnectRequests
}
