package bot

import (
	"fmt"
	"html"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/guiyumin/mediagrab/internal/core/extractor"
)

const (
	welcomeText = "👋 Welcome to mediagrab!\n\n" +
		"Send me a link to a YouTube, TikTok, Instagram reel or most other video pages " +
		"and I will reply with a download link.\n\n" +
		"Commands:\n" +
		" • /help - show this message"
	usageText = "Send me a link (starting with http:// or https://) and I will look it up."

	// telegram rejects captions over 1024 characters
	maxTitle = 700
	maxError = 300
)

// Caption renders the HTML caption for a resolved item
func Caption(info *extractor.MediaInfo) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s %s</b>\n", icon(info.MediaKind), html.EscapeString(info.Platform))
	if info.Title != "" {
		b.WriteString(html.EscapeString(clip(info.Title, maxTitle)))
		b.WriteString("\n")
	}
	if info.Owner != "" {
		fmt.Fprintf(&b, "👤 %s\n", html.EscapeString(info.Owner))
	}
	if info.Duration > 0 {
		fmt.Fprintf(&b, "⏱ %s\n", Duration(info.Duration))
	}
	return strings.TrimRight(b.String(), "\n")
}

// Buttons builds the inline keyboard. It returns nil when there is
// nothing to link to.
func Buttons(info *extractor.MediaInfo, fileLink string) *tgbotapi.InlineKeyboardMarkup {
	var row []tgbotapi.InlineKeyboardButton
	if info.DownloadLink != "" {
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL("⬇️ Download", info.DownloadLink))
	}
	if fileLink != "" {
		label := "⬇️ Download"
		if len(row) > 0 {
			label = "💾 MP4"
		}
		row = append(row, tgbotapi.NewInlineKeyboardButtonURL(label, fileLink))
	}
	if len(row) == 0 {
		return nil
	}
	markup := tgbotapi.NewInlineKeyboardMarkup(row)
	return &markup
}

// ErrorText renders a failure for the chat
func ErrorText(err error) string {
	return "⚠️ " + clip(extractor.Message(err), maxError)
}

// Duration formats seconds as m:ss or h:mm:ss
func Duration(seconds int) string {
	h, m, s := seconds/3600, seconds%3600/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}

func icon(kind extractor.MediaKind) string {
	if kind == extractor.MediaKindImage {
		return "🖼"
	}
	return "🎬"
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "…"
}
