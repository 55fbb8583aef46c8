package leads

import (
	"strings"

	"leadflow_backend/platform/apperr"
)

// RecipientFor resolves the address to use when contacting the lead on a channel.
func RecipientFor(lead Lead, channel string) (string, error) {
	switch strings.ToLower(trimmed(channel)) {
	case ChannelEmail, ChannelForm, "":
		if !lead.HasEmail() {
			return "", apperr.NotFound("lead has no email address")
		}
		return trimmed(lead.Email), nil
	case ChannelSMS, ChannelWhatsApp:
		if !lead.HasPhone() {
			return "", apperr.NotFound("lead has no phone number")
		}
		return trimmed(lead.Phone), nil
	case ChannelChat:
		if handle := trimmed(lead.ChatHandle); handle != "" {
			return handle, nil
		}
		if lead.HasPhone() {
			return trimmed(lead.Phone), nil
		}
		return "", apperr.NotFound("lead has no chat handle")
	default:
		return "", apperr.Validation("unsupported channel: " + channel)
	}
}

// IsKnownChannel reports whether channel is one of the supported contact channels.
func IsKnownChannel(channel string) bool {
	switch channel {
	case ChannelEmail, ChannelSMS, ChannelWhatsApp, ChannelChat, ChannelForm:
		return true
	}
	return false
}

func containsAt(email string) bool {
	return strings.Contains(trimmed(email), "@")
}

func trimmed(s string) string {
	return strings.TrimSpace(s)
}
