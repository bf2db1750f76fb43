// Package telegram is the chat trigger: the bot owner sends text or a link
// and gets the push notices back as replies. The same bot can mirror log
// lines into a log chat.
package telegram

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"anypush/internal/transport"
	logx "anypush/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
	LogChatID   int64
}

type Adapter struct {
	cfg     Config
	log     logx.Logger
	bot     *tele.Bot
	handler *Handler

	running atomic.Bool
}

func New(cfg Config, handler *Handler, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = 10 * time.Second
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: cfg.PollTimeout},
	})
	if err != nil {
		return nil, err
	}
	a := &Adapter{cfg: cfg, log: log.With(logx.String("comp", "telegram")), bot: b, handler: handler}
	a.bot.Handle(tele.OnText, a.onText)
	return a, nil
}

func (a *Adapter) onText(c tele.Context) error {
	m := c.Message()
	if m == nil || m.Sender == nil || a.handler == nil {
		return nil
	}
	msg := transport.Message{
		ID:           m.ID,
		ChatID:       m.Chat.ID,
		ThreadID:     m.ThreadID,
		FromID:       m.Sender.ID,
		FromUsername: m.Sender.Username,
		Text:         m.Text,
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	for _, reply := range a.handler.Handle(ctx, msg) {
		for _, chunk := range splitText(reply, textLimit) {
			if _, err := a.bot.Reply(m, chunk, &tele.SendOptions{DisableWebPagePreview: true}); err != nil {
				a.log.Warn("reply failed", logx.Int64("chat_id", msg.ChatID), logx.Err(err))
				return nil
			}
		}
	}
	return nil
}

// Run polls for updates until ctx is done.
func (a *Adapter) Run(ctx context.Context) error {
	if !a.running.CompareAndSwap(false, true) {
		return errors.New("telegram adapter already running")
	}
	defer a.running.Store(false)

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		a.log.Info("polling started")
		a.bot.Start()
		a.log.Info("polling stopped")
	}()

	select {
	case <-ctx.Done():
		a.bot.Stop()
		<-stopped
		return nil
	case <-stopped:
		if ctx.Err() != nil {
			return nil
		}
		return errors.New("telegram poller exited")
	}
}

// SendText sends text to a chat, split into as many messages as needed.
func (a *Adapter) SendText(ctx context.Context, to transport.ChatTarget, text string) error {
	chat := &tele.Chat{ID: to.ChatID}
	for _, chunk := range splitText(text, textLimit) {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := a.bot.Send(chat, chunk, &tele.SendOptions{ThreadID: to.ThreadID, DisableWebPagePreview: true}); err != nil {
			return err
		}
	}
	return nil
}

// SendLog implements logx.Sender for the log chat.
func (a *Adapter) SendLog(ctx context.Context, text string) error {
	if a.cfg.LogChatID == 0 {
		return nil
	}
	return a.SendText(ctx, transport.ChatTarget{ChatID: a.cfg.LogChatID}, text)
}
