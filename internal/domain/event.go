package domain

import (
	"fmt"
	"strings"
	"time"
)

type EventType string

const (
	EventFailedPassword   EventType = "failed_password"
	EventInvalidUser      EventType = "invalid_user"
	EventAcceptedPassword EventType = "accepted_password"
	EventDisconnect       EventType = "disconnect"
	EventOther            EventType = "other"
)

const (
	CountryUnknown  = "Unknown"
	UsernameUnknown = "unknown"
)

func ParseEventType(s string) EventType {
	switch EventType(strings.ToLower(strings.TrimSpace(s))) {
	case EventFailedPassword:
		return EventFailedPassword
	case EventInvalidUser:
		return EventInvalidUser
	case EventAcceptedPassword:
		return EventAcceptedPassword
	case EventDisconnect:
		return EventDisconnect
	default:
		return EventOther
	}
}

func (t EventType) IsFailed() bool {
	return strings.Contains(string(t), "failed")
}

func (t EventType) IsSuccess() bool {
	return strings.Contains(string(t), "accepted")
}

// IsFailedLogin covers both wrong-password and unknown-account attempts.
func (t EventType) IsFailedLogin() bool {
	return t.IsFailed() || t == EventInvalidUser
}

type Event struct {
	Timestamp time.Time `json:"timestamp"`
	SourceIP  string    `json:"source_ip"`
	Username  string    `json:"username"`
	EventType EventType `json:"event_type"`
	Country   string    `json:"country,omitempty"`
	RawLine   string    `json:"raw_line,omitempty"`
}

// Normalize fills the optional fields the way the scoring core expects
// them: empty country becomes "Unknown", empty username becomes "unknown"
// (disconnects often carry none) and unrecognized event types collapse
// to EventOther.
func (e *Event) Normalize() {
	e.EventType = ParseEventType(string(e.EventType))
	if e.Country == "" {
		e.Country = CountryUnknown
	}
	if e.Username == "" {
		e.Username = UsernameUnknown
	}
}

// Validate reports the first InputError that makes the event unscorable.
// Events failing validation must be rejected before they reach the core.
func (e *Event) Validate() error {
	if e.Timestamp.IsZero() {
		return &InputError{Field: "timestamp", Reason: "missing or unparseable"}
	}
	if e.SourceIP == "" {
		return &InputError{Field: "source_ip", Reason: "missing"}
	}
	return nil
}

type InputError struct {
	Field  string
	Reason string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("invalid event: %s: %s", e.Field, e.Reason)
}

type HistoryEntry struct {
	Timestamp   time.Time `json:"timestamp"`
	EventType   EventType `json:"event_type"`
	Counterpart string    `json:"counterpart"`
}
