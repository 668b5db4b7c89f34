package adapters

import (
	"growth_backend/internal/channels"
	"growth_backend/internal/email"
	"growth_backend/internal/sms"
	"growth_backend/internal/whatsapp"
	"growth_backend/platform/config"
	"growth_backend/platform/logger"
)

// ChannelConfig is every setting the channel transports read.
type ChannelConfig interface {
	email.Config
	config.SMSConfig
	config.WhatsAppConfig
	config.PhoneConfig
}

// NewChannelRouter registers a transport for every configured channel.
// With devNoop set, a disabled email channel logs instead of failing.
func NewChannelRouter(cfg ChannelConfig, devNoop bool, log *logger.Logger) *channels.Router {
	router := channels.NewRouter()

	if t := email.NewSender(cfg); t != nil {
		router.Register(channels.Email, t)
	} else if devNoop {
		router.Register(channels.Email, email.NewNoopSender(log))
	}
	if c := sms.NewClient(cfg, log); c != nil {
		router.Register(channels.SMS, c)
	}
	if c := whatsapp.NewClient(cfg, log); c != nil {
		router.Register(channels.WhatsApp, c)
	}

	for _, ch := range []string{channels.Email, channels.SMS, channels.WhatsApp} {
		log.Info("outreach channel", "channel", ch, "configured", router.Configured(ch))
	}
	return router
}
