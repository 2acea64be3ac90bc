package amqp

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"agencyledger/internal/core"
)

const messageVersion = 1

// ErrMalformedMessage marks a body that can never be processed; such
// deliveries are dropped rather than requeued.
var ErrMalformedMessage = errors.New("malformed ledger event message")

// LedgerEventMessage is the wire envelope of a committed ledger event.
type LedgerEventMessage struct {
	Version     int              `json:"version"`
	Event       core.LedgerEvent `json:"event"`
	PublishedAt time.Time        `json:"publishedAt"`
}

func NewLedgerEventMessage(e core.LedgerEvent) *LedgerEventMessage {
	return &LedgerEventMessage{
		Version:     messageVersion,
		Event:       e,
		PublishedAt: time.Now().UTC(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *LedgerEventMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// LedgerEventMessageFromJSON decodes and checks a message body.
func LedgerEventMessageFromJSON(data []byte) (*LedgerEventMessage, error) {
	var msg LedgerEventMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedMessage, err)
	}
	if msg.Version != messageVersion {
		return nil, fmt.Errorf("%w: unsupported version %d", ErrMalformedMessage, msg.Version)
	}
	e := msg.Event
	if e.ID == uuid.Nil || e.Owner == uuid.Nil || e.Type == "" {
		return nil, fmt.Errorf("%w: incomplete event", ErrMalformedMessage)
	}
	return &msg, nil
}
