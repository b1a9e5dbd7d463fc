package domain

import (
	"fmt"
	"strings"
)

// ReminderKind tags the scenario a reminder message was rendered for.
type ReminderKind string

const (
	ReminderRenewal     ReminderKind = "RENEWAL"
	ReminderDelivery    ReminderKind = "DELIVERY"
	ReminderAppointment ReminderKind = "APPOINTMENT"
)

func (k ReminderKind) String() string { return string(k) }

func (k ReminderKind) IsValid() bool {
	switch k {
	case ReminderRenewal, ReminderDelivery, ReminderAppointment:
		return true
	}
	return false
}

// ReminderMessage is a rendered notification payload. It is immutable once
// constructed; rendering happens once, before dispatch, never per attempt.
type ReminderMessage struct {
	kind     ReminderKind
	subject  string
	body     string
	metadata map[string]string
}

// NewReminderMessage builds an immutable message. The metadata map is copied
// so later mutation by the caller cannot leak into in-flight deliveries.
func NewReminderMessage(kind ReminderKind, subject, body string, metadata map[string]string) (ReminderMessage, error) {
	if !kind.IsValid() {
		return ReminderMessage{}, fmt.Errorf("%w: invalid reminder kind %q", ErrValidation, kind)
	}
	if strings.TrimSpace(body) == "" {
		return ReminderMessage{}, fmt.Errorf("%w: message body is required", ErrValidation)
	}

	var copied map[string]string
	if len(metadata) > 0 {
		copied = make(map[string]string, len(metadata))
		for k, v := range metadata {
			copied[k] = v
		}
	}

	return ReminderMessage{
		kind:     kind,
		subject:  strings.TrimSpace(subject),
		body:     body,
		metadata: copied,
	}, nil
}

func (m ReminderMessage) Kind() ReminderKind { return m.kind }

// Subject returns the explicit subject override, or a generic subject
// derived from the reminder kind when none was set.
func (m ReminderMessage) Subject() string {
	if m.subject != "" {
		return m.subject
	}

	switch m.kind {
	case ReminderRenewal:
		return "Your subscription renewal"
	case ReminderDelivery:
		return "Your delivery update"
	case ReminderAppointment:
		return "Your upcoming appointment"
	}
	return "Notification"
}

func (m ReminderMessage) Body() string { return m.body }

// Metadata returns a copy of the free-form metadata attached at render time.
func (m ReminderMessage) Metadata() map[string]string {
	if len(m.metadata) == 0 {
		return nil
	}
	out := make(map[string]string, len(m.metadata))
	for k, v := range m.metadata {
		out[k] = v
	}
	return out
}
