package entity

import "strings"

type Channel int16

const (
	ChannelNone Channel = iota
	ChannelEmail
	ChannelSMS
	ChannelTelegram
	ChannelMessaging
)

func ChannelFromString(raw string) Channel {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "smtp", "email":
		return ChannelEmail
	case "sns", "sms":
		return ChannelSMS
	case "telegram":
		return ChannelTelegram
	case "messaging", "mq":
		return ChannelMessaging
	default:
		return ChannelNone
	}
}

func (c Channel) String() string {
	switch c {
	case ChannelEmail:
		return "email"
	case ChannelSMS:
		return "sms"
	case ChannelTelegram:
		return "telegram"
	case ChannelMessaging:
		return "messaging"
	default:
		return "none"
	}
}
