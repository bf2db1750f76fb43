package telegram

import (
	"context"
	"net/url"
	"slices"
	"strings"

	"anypush/internal/content"
	"anypush/internal/transport"
	logx "anypush/pkg/logx"
)

const helpText = "Send me any text to push it, or a single link to push the URL.\n" +
	"/test <service> sends a test message (e.g. /test bark)."

// Handler turns owner messages into pushes and returns the reply texts.
type Handler struct {
	actions transport.Actions
	owners  []int64
	log     logx.Logger
}

func NewHandler(actions transport.Actions, owners []int64, log logx.Logger) *Handler {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Handler{actions: actions, owners: owners, log: log}
}

func (h *Handler) isOwner(id int64) bool {
	return slices.Contains(h.owners, id)
}

// Handle processes one message. Messages from non-owners are ignored.
func (h *Handler) Handle(ctx context.Context, m transport.Message) []string {
	if !h.isOwner(m.FromID) {
		h.log.Debug("ignoring message from non-owner", logx.Int64("from", m.FromID))
		return nil
	}
	text := strings.TrimSpace(m.Text)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "/") {
		cmd, arg, _ := strings.Cut(text, " ")
		// Strip a "@botname" suffix from group commands.
		cmd, _, _ = strings.Cut(cmd, "@")
		switch cmd {
		case "/start", "/help":
			return []string{helpText}
		case "/test":
			svc := strings.TrimSpace(arg)
			if svc == "" {
				return []string{"usage: /test <service>"}
			}
			return h.actions.Test(ctx, svc).Texts()
		}
	}

	return h.actions.Push(ctx, ItemFromText(m.Text, m.FromUsername)).Texts()
}

// ItemFromText builds the content item for a chat message: a message that is
// exactly one http(s) link is a URL item, anything else is text. Text items
// keep the message as sent, surrounding whitespace included.
func ItemFromText(text, from string) content.Item {
	title := "Telegram"
	if from != "" {
		title += " @" + from
	}
	if link := strings.TrimSpace(text); isLink(link) {
		return content.Item{Kind: content.KindURL, Content: link, Source: content.Source{URL: link, Title: title}}
	}
	return content.Item{Kind: content.KindText, Content: text, Source: content.Source{Title: title}}
}

func isLink(s string) bool {
	if s == "" || strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}
