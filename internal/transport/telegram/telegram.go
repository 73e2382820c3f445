// Package telegram adapts telebot to the dispatcher's Sender interface.
// It is the only place that talks to the Telegram API; command routing and
// content generation live elsewhere.
package telegram

import (
	"context"
	"errors"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"topicbot/internal/dispatch"
	logx "topicbot/pkg/logx"
)

type Config struct {
	Token       string
	PollTimeout time.Duration
}

type Adapter struct {
	log logx.Logger
	bot *tele.Bot
}

func New(cfg Config, log logx.Logger) (*Adapter, error) {
	if strings.TrimSpace(cfg.Token) == "" {
		return nil, errors.New("telegram token is empty")
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	timeout := cfg.PollTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	b, err := tele.NewBot(tele.Settings{
		Token:  cfg.Token,
		Poller: &tele.LongPoller{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	return &Adapter{log: log, bot: b}, nil
}

// Send delivers one payload to one forum thread. A Telegram flood error is
// translated into the dispatcher's retry-after signal so pacing/backoff
// stays transport-agnostic.
func (a *Adapter) Send(ctx context.Context, to dispatch.Target, p dispatch.Payload) error {
	_ = ctx // telebot's HTTP client carries its own timeout

	chat := &tele.Chat{ID: to.ChatID}
	opt := &tele.SendOptions{
		ParseMode:             tele.ModeHTML,
		DisableWebPagePreview: true,
		ThreadID:              to.ThreadID,
	}
	if len(p.Buttons) > 0 {
		opt.ReplyMarkup = buttonRows(p.Buttons)
	}

	_, err := a.bot.Send(chat, p.Text, opt)
	if err != nil {
		var flood tele.FloodError
		if errors.As(err, &flood) && flood.RetryAfter > 0 {
			return dispatch.RetryAfter(err, time.Duration(flood.RetryAfter)*time.Second)
		}
		return err
	}
	return nil
}

// buttonRows lays the actions out one per row; reports carry at most a
// handful of them.
func buttonRows(buttons []dispatch.Button) *tele.ReplyMarkup {
	rm := &tele.ReplyMarkup{}
	rows := make([]tele.Row, 0, len(buttons))
	for _, b := range buttons {
		rows = append(rows, rm.Row(tele.Btn{Text: b.Label, Data: b.Data}))
	}
	rm.Inline(rows...)
	return rm
}
