// Package mqtt provides the MQTT broker link: it is both the connectivity
// collaborator (connect requests, connection callbacks as signal bits) and a
// notification transport.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/intercom-listener/internal/logic"
)

// DefaultTopic is the MQTT topic for intercom events.
const DefaultTopic = "home/intercom/events"

// Publish outcome codes, aligned with the HTTP transport.
const (
	CodeOK     = logic.StatusOK
	CodeFailed = -1
)

// Payload represents the MQTT message payload structure.
type Payload struct {
	Intercom IntercomPayload `json:"intercom"`
}

// IntercomPayload contains the event details.
type IntercomPayload struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Channel   string `json:"channel"`
	Text      string `json:"text"`
}

// EventName returns the event name published for a channel.
func EventName(ch logic.Channel) string {
	switch ch {
	case logic.ChannelRing:
		return "RING"
	case logic.ChannelDoor:
		return "DOOR"
	case logic.ChannelBoot:
		return "STARTUP"
	}
	return "EVENT"
}

// FormatPayload creates the JSON payload for a notification.
func FormatPayload(n logic.Notification) ([]byte, error) {
	payload := Payload{
		Intercom: IntercomPayload{
			Timestamp: n.Timestamp.UTC().Format(time.RFC3339),
			Event:     EventName(n.Channel),
			Channel:   string(n.Channel),
			Text:      n.Text,
		},
	}
	return json.Marshal(payload)
}
