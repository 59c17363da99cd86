package line

import (
	"encoding/json"
	"fmt"
)

// Event and message types the relay cares about.
const (
	EventTypeMessage = "message"
	MessageTypeText  = "text"
)

// Event is one entry of a webhook delivery.
type Event struct {
	Type       string  `json:"type"`
	ReplyToken string  `json:"replyToken"`
	Source     Source  `json:"source"`
	Message    Message `json:"message"`
	Timestamp  int64   `json:"timestamp"`
}

// Source identifies where the event originated.
type Source struct {
	Type    string `json:"type"`
	UserID  string `json:"userId"`
	GroupID string `json:"groupId,omitempty"`
}

// Message carries the inbound message payload.
type Message struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Text string `json:"text"`
}

type webhookBody struct {
	Destination string  `json:"destination"`
	Events      []Event `json:"events"`
}

// ParseWebhook decodes a signature-verified webhook body into its events.
func ParseWebhook(body []byte) ([]Event, error) {
	var payload webhookBody
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode webhook body: %w", err)
	}
	return payload.Events, nil
}

// IsTextMessage reports whether the event carries a user text message.
func (e Event) IsTextMessage() bool {
	return e.Type == EventTypeMessage && e.Message.Type == MessageTypeText
}
