package twilio

import (
	"errors"
	"fmt"

	"github.com/Daskott/tandem/server/logger"
	"github.com/Daskott/tandem/shared"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"
)

var (
	ErrNotConfigured = errors.New("twilio is not configured")

	logg = logger.Named("twilio")
)

// SMSSender sends a text message to an e164 phone number
type SMSSender interface {
	SendMessage(to, msg string) error
}

type ClientWrapper struct {
	client *twilio.RestClient
	config shared.TwilioConfig
}

// NewClient returns a twilio backed sender, or ErrNotConfigured when no
// account credentials are set
func NewClient(config shared.TwilioConfig) (*ClientWrapper, error) {
	if config.AccountSid == "" || config.AuthToken == "" || config.MessagingServiceSid == "" {
		return nil, ErrNotConfigured
	}

	client := twilio.NewRestClientWithParams(twilio.RestClientParams{
		Username: config.AccountSid,
		Password: config.AuthToken,
	})

	return &ClientWrapper{client: client, config: config}, nil
}

func (cw *ClientWrapper) SendMessage(to, msg string) error {
	params := &openapi.CreateMessageParams{}
	params.SetMessagingServiceSid(cw.config.MessagingServiceSid)
	params.SetTo(to)
	params.SetBody(msg)

	resp, err := cw.client.ApiV2010.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("unable to send sms: %w", err)
	}

	if resp.ErrorMessage != nil && *resp.ErrorMessage != "" {
		return fmt.Errorf("sms rejected: %s", *resp.ErrorMessage)
	}

	return nil
}

// LogSender logs messages instead of sending them, for when twilio isn't configured
type LogSender struct{}

func (LogSender) SendMessage(to, msg string) error {
	logg.Infof("sms to %s: %s", to, msg)
	return nil
}
