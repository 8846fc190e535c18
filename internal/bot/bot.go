package bot

import (
	"context"
	"regexp"

	"github.com/charmbracelet/log"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/guiyumin/mediagrab/internal/core/extractor"
	"github.com/guiyumin/mediagrab/internal/core/mediastore"
)

// Sender is the part of the Bot API the handler needs
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

var urlRe = regexp.MustCompile(`https?://\S+`)

// Handler answers chat messages by resolving the first link they contain
type Handler struct {
	resolver  extractor.Resolver
	sender    Sender
	publicURL string
	log       *log.Logger
}

// New creates a handler. publicURL, when set, enables /file links for
// cacheable results.
func New(resolver extractor.Resolver, sender Sender, publicURL string, logger *log.Logger) *Handler {
	return &Handler{
		resolver:  resolver,
		sender:    sender,
		publicURL: publicURL,
		log:       logger,
	}
}

// HandleUpdate processes one update to completion. Failures are reported
// to the chat; the returned error only covers delivery problems.
func (h *Handler) HandleUpdate(ctx context.Context, update tgbotapi.Update) error {
	msg := update.Message
	if msg == nil || msg.Chat == nil || msg.Text == "" {
		return nil
	}
	chatID := msg.Chat.ID

	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			return h.reply(tgbotapi.NewMessage(chatID, welcomeText))
		}
	}

	link := FirstURL(msg.Text)
	if link == "" {
		return h.reply(tgbotapi.NewMessage(chatID, usageText))
	}

	info, err := h.resolver.Resolve(ctx, link)
	if err != nil {
		if h.log != nil {
			h.log.Warn("resolve failed", "chat", chatID, "url", link, "kind", extractor.KindOf(err), "error", err)
		}
		return h.reply(tgbotapi.NewMessage(chatID, ErrorText(err)))
	}

	caption := Caption(info)
	markup := Buttons(info, mediastore.FileLink(h.publicURL, info))

	if info.Thumbnail != "" {
		photo := tgbotapi.NewPhoto(chatID, tgbotapi.FileURL(info.Thumbnail))
		photo.Caption = caption
		photo.ParseMode = tgbotapi.ModeHTML
		if markup != nil {
			photo.ReplyMarkup = *markup
		}
		if _, err := h.sender.Send(photo); err == nil {
			return nil
		} else if h.log != nil {
			// telegram could not fetch the thumbnail, fall back to text
			h.log.Debug("sendPhoto failed", "chat", chatID, "error", err)
		}
	}

	text := tgbotapi.NewMessage(chatID, caption)
	text.ParseMode = tgbotapi.ModeHTML
	text.DisableWebPagePreview = true
	if markup != nil {
		text.ReplyMarkup = *markup
	}
	return h.reply(text)
}

func (h *Handler) reply(c tgbotapi.Chattable) error {
	_, err := h.sender.Send(c)
	if err != nil && h.log != nil {
		h.log.Error("failed to send reply", "error", err)
	}
	return err
}

// FirstURL returns the first http(s) link in text
func FirstURL(text string) string {
	return urlRe.FindString(text)
}
