package channel

import (
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"golang.org/x/time/rate"
)

// Config groups the channel settings NewDefaultRouter reads.
type Config interface {
	config.EmailConfig
	config.SMSConfig
	config.WhatsAppConfig
}

// NewDefaultRouter registers every configured channel. Form submissions are
// answered by email and chat handles are reached through the WhatsApp gateway.
func NewDefaultRouter(cfg Config, phones PhoneFormatter, log *logger.Logger) *Router {
	r := NewRouter(log)

	r.Register("email", NewEmailSender(cfg, log), rate.Limit(10), 20)
	r.Alias("form", "email")

	if sms := NewTwilioSender(cfg, phones); sms != nil {
		r.Register("sms", sms, rate.Limit(1), 5)
	}
	if gowa := NewGowaSender(cfg, phones, log); gowa != nil {
		r.Register("whatsapp", gowa, rate.Limit(1), 5)
		r.Alias("chat", "whatsapp")
	}
	return r
}
