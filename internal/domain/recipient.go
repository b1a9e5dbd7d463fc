package domain

import (
	"fmt"
	"strings"
)

// Channel represents one notification transport.
type Channel string

const (
	ChannelEmail    Channel = "EMAIL"
	ChannelWhatsApp Channel = "WHATSAPP"
)

func (c Channel) String() string { return string(c) }

func (c Channel) IsValid() bool {
	switch c {
	case ChannelEmail, ChannelWhatsApp:
		return true
	}
	return false
}

func ParseChannelFromString(s string) (Channel, error) {
	ch := Channel(strings.ToUpper(strings.TrimSpace(s)))
	if !ch.IsValid() {
		return "", fmt.Errorf("%w: invalid channel %q", ErrValidation, s)
	}
	return ch, nil
}

// ChannelPreference is a recipient's declared delivery preference.
type ChannelPreference string

const (
	PreferenceEmail    ChannelPreference = "EMAIL"
	PreferenceWhatsApp ChannelPreference = "WHATSAPP"
	PreferenceBoth     ChannelPreference = "BOTH"
)

func (p ChannelPreference) String() string { return string(p) }

func (p ChannelPreference) IsValid() bool {
	switch p {
	case PreferenceEmail, PreferenceWhatsApp, PreferenceBoth:
		return true
	}
	return false
}

func ParsePreferenceFromString(s string) (ChannelPreference, error) {
	p := ChannelPreference(strings.ToUpper(strings.TrimSpace(s)))
	if !p.IsValid() {
		return "", fmt.Errorf("%w: invalid channel preference %q", ErrValidation, s)
	}
	return p, nil
}

// Channels expands the preference into a concrete channel set.
// BOTH always yields EMAIL then WHATSAPP in that order.
func (p ChannelPreference) Channels() []Channel {
	switch p {
	case PreferenceEmail:
		return []Channel{ChannelEmail}
	case PreferenceWhatsApp:
		return []Channel{ChannelWhatsApp}
	case PreferenceBoth:
		return []Channel{ChannelEmail, ChannelWhatsApp}
	}
	return nil
}

// Recipient identifies a subscriber and the contact addresses reminders can reach.
type Recipient struct {
	UserID     string
	Email      string
	Phone      string
	Preference ChannelPreference
}

func (r Recipient) Validate() error {
	if strings.TrimSpace(r.UserID) == "" {
		return fmt.Errorf("%w: userId is required", ErrValidation)
	}
	if !r.Preference.IsValid() {
		return fmt.Errorf("%w: invalid channel preference %q", ErrValidation, r.Preference)
	}
	return nil
}

// Address returns the contact address for a channel, empty when none is on file.
func (r Recipient) Address(ch Channel) string {
	switch ch {
	case ChannelEmail:
		return strings.TrimSpace(r.Email)
	case ChannelWhatsApp:
		return strings.TrimSpace(r.Phone)
	}
	return ""
}
