package telegram

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/guiyumin/mediagrab/internal/core/extractor"
)

// Client is a thin wrapper over the Bot API used for webhook delivery
type Client struct {
	api *tgbotapi.BotAPI
	log *log.Logger
}

// New connects to the Bot API and verifies the token with getMe.
// apiBase overrides https://api.telegram.org, e.g. for a local Bot API server.
func New(token, apiBase string, logger *log.Logger) (*Client, error) {
	if token == "" {
		return nil, extractor.NotConfigured("telegram bot token is not set")
	}

	endpoint := tgbotapi.APIEndpoint
	if apiBase != "" {
		endpoint = strings.TrimRight(apiBase, "/") + "/bot%s/%s"
	}

	api, err := tgbotapi.NewBotAPIWithClient(token, endpoint, &http.Client{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}

	if logger != nil {
		logger.Info("telegram bot ready", "username", api.Self.UserName)
	}
	return &Client{api: api, log: logger}, nil
}

// Username returns the bot's @handle without the @
func (c *Client) Username() string { return c.api.Self.UserName }

// Send delivers a message, photo or any other chattable
func (c *Client) Send(msg tgbotapi.Chattable) (tgbotapi.Message, error) {
	return c.api.Send(msg)
}

// SetWebhook registers url as the destination for updates
func (c *Client) SetWebhook(url string) error {
	wh, err := tgbotapi.NewWebhook(url)
	if err != nil {
		return extractor.InvalidInput(fmt.Sprintf("invalid webhook url: %v", err))
	}
	if _, err := c.api.Request(wh); err != nil {
		return fmt.Errorf("setWebhook: %w", err)
	}
	if c.log != nil {
		c.log.Info("webhook registered", "url", url)
	}
	return nil
}
