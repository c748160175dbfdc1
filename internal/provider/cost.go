package provider

import (
	"strings"

	"github.com/axeelhrz/fidelya-notify/internal/domain"
)

// Per-message list prices in USD, keyed by channel then provider name.
var costTable = map[domain.Channel]map[string]float64{
	domain.ChannelEmail: {
		"sendgrid": 0.0006,
		"resend":   0.001,
		"mailgun":  0.0008,
		"ses":      0.0001,
	},
	domain.ChannelSMS: {
		"twilio":  0.0075,
		"vonage":  0.008,
		"aws-sns": 0.0075,
	},
	domain.ChannelWhatsApp: {
		"meta":      0.005,
		"twilio":    0.005,
		"360dialog": 0.004,
	},
}

// SMS pricing varies by destination country; unlisted countries get the
// conservative default.
var smsCountryMultiplier = map[string]float64{
	"US": 1.0,
	"MX": 0.8,
	"BR": 1.2,
	"AR": 1.1,
	"CO": 1.0,
	"PE": 1.0,
	"CL": 1.1,
}

const defaultSMSMultiplier = 1.2

// EstimateCost projects the spend for sending through a provider before any
// message leaves the queue. Unknown providers and the simulated channels
// estimate to zero.
func EstimateCost(channel domain.Channel, providerName string, recipientCount int, countryCode string) float64 {
	if recipientCount <= 0 {
		return 0
	}

	unit, ok := costTable[channel][strings.ToLower(strings.TrimSpace(providerName))]
	if !ok {
		return 0
	}

	if channel == domain.ChannelSMS {
		multiplier, ok := smsCountryMultiplier[strings.ToUpper(strings.TrimSpace(countryCode))]
		if !ok {
			multiplier = defaultSMSMultiplier
		}
		unit *= multiplier
	}

	return unit * float64(recipientCount)
}
