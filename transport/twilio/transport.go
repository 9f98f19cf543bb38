// Package twilio delivers verification codes as SMS or WhatsApp messages
// through the Twilio Messaging API.
package twilio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

const whatsAppPrefix = "whatsapp:"

// Config holds Twilio credentials and sender identity. Either From or
// MessagingServiceSID must be set.
type Config struct {
	AccountSID          string `env:"TWILIO_ACCOUNT_SID"`
	AuthToken           string `env:"TWILIO_AUTH_TOKEN"`
	From                string `env:"TWILIO_FROM"`
	MessagingServiceSID string `env:"TWILIO_MESSAGING_SERVICE_SID"`
	// WhatsApp sends through the WhatsApp channel instead of SMS.
	WhatsApp bool `env:"TWILIO_WHATSAPP" env-default:"false"`
}

type messageCreator interface {
	CreateMessage(params *openapi.CreateMessageParams) (*openapi.ApiV2010Message, error)
}

// Transport implements phoneverify.Transport.
type Transport struct {
	api    messageCreator
	config Config
	logger *slog.Logger
}

func New(cfg Config, logger *slog.Logger) (*Transport, error) {
	if cfg.AccountSID == "" || cfg.AuthToken == "" {
		return nil, errors.New("twilio: account sid and auth token are required")
	}
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: cfg.AccountSID,
		Password: cfg.AuthToken,
	})
	return newTransport(client.Api, cfg, logger)
}

func newTransport(api messageCreator, cfg Config, logger *slog.Logger) (*Transport, error) {
	if cfg.From == "" && cfg.MessagingServiceSID == "" {
		return nil, errors.New("twilio: from number or messaging service sid is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Transport{api: api, config: cfg, logger: logger}, nil
}

// Send creates one message. The Twilio client does not accept a context, so
// a cancelled ctx abandons the wait but not the HTTP request itself.
func (t *Transport) Send(ctx context.Context, to, body string) error {
	if to == "" || body == "" {
		return errors.New("twilio: message requires destination and body")
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(t.address(to))
	if t.config.MessagingServiceSID != "" {
		params.SetMessagingServiceSid(t.config.MessagingServiceSID)
	} else {
		params.SetFrom(t.address(t.config.From))
	}
	params.SetBody(body)

	type result struct {
		msg *openapi.ApiV2010Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := t.api.CreateMessage(params)
		done <- result{msg: msg, err: err}
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("twilio: %w", ctx.Err())
	case res := <-done:
		if res.err != nil {
			return fmt.Errorf("twilio: create message: %w", res.err)
		}
		if res.msg != nil && res.msg.Sid != nil {
			t.logger.DebugContext(ctx, "message accepted", "sid", *res.msg.Sid, "whatsapp", t.config.WhatsApp)
		}
		return nil
	}
}

func (t *Transport) address(number string) string {
	if !t.config.WhatsApp || strings.HasPrefix(number, whatsAppPrefix) {
		return number
	}
	return whatsAppPrefix + number
}
