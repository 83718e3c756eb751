// Package telegram delivers gateway notifications through the Telegram Bot
// API, one recipient at a time or fanned out to a whole topic.
package telegram

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	tele "gopkg.in/telebot.v4"

	"tgnotify/pkg/logx"
	"tgnotify/pkg/mdv2"
)

type Config struct {
	// Secret is the bot token; requests go to <APIURL>/bot<Secret>/<method>.
	Secret string
	// APIURL overrides the Bot API base URL (tests, proxies). Empty means
	// the public endpoint.
	APIURL string
	// Timeout bounds each downstream call. <= 0 means 10s.
	Timeout time.Duration
	// RatePerSec throttles Bot API calls across all requests. 0 disables.
	RatePerSec int
}

// Outcome is the result of one delivery attempt to one recipient.
type Outcome struct {
	Recipient string
	Err       error
	// Timeout marks Err as a downstream timeout rather than a rejection.
	Timeout bool
}

func (o Outcome) OK() bool { return o.Err == nil }

// Client sends messages and documents. It is safe for concurrent use; the
// underlying bot shares one HTTP connection pool across all requests.
type Client struct {
	bot     *tele.Bot
	limiter *rate.Limiter
	log     logx.Logger
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.Secret) == "" {
		return nil, errors.New("telegram secret is empty")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	// Offline: the gateway only sends; skip the getMe probe so startup
	// does not depend on Telegram being reachable.
	bot, err := tele.NewBot(tele.Settings{
		Token:   cfg.Secret,
		URL:     cfg.APIURL,
		Offline: true,
		Client:  &http.Client{Timeout: timeout},
	})
	if err != nil {
		return nil, err
	}
	var lim *rate.Limiter
	if cfg.RatePerSec > 0 {
		lim = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Client{bot: bot, limiter: lim, log: log}, nil
}

// recipient adapts an opaque chat identifier (numeric ID or @channel name)
// to telebot's Recipient interface.
type recipient string

func (r recipient) Recipient() string { return string(r) }

// composeHeader builds the "From: *sender@topic*" line prepended to every
// outgoing message. Only the sender label is escaped; topic names are
// restricted by config validation and the body is operator-accepted content.
func composeHeader(topic, sender, body string) string {
	return "From: *" + string(mdv2.Esc(sender)) + "@" + topic + "*\n\n" + body
}

// SendText delivers one text message. A non-nil Outcome.Err means the
// transport failed or the Bot API rejected the call; nothing is retried.
func (c *Client) SendText(ctx context.Context, to, topic, sender, text string) Outcome {
	return c.attempt(ctx, to, func() error {
		_, err := c.bot.Send(recipient(to), composeHeader(topic, sender, text), &tele.SendOptions{
			ParseMode: tele.ModeMarkdownV2,
		})
		return err
	})
}

// SendDocument delivers one binary attachment with the composed message as
// its caption.
func (c *Client) SendDocument(ctx context.Context, to, topic, sender, message, filename string, content []byte) Outcome {
	return c.attempt(ctx, to, func() error {
		doc := &tele.Document{
			File:     tele.FromReader(bytes.NewReader(content)),
			FileName: filename,
			Caption:  composeHeader(topic, sender, message),
		}
		_, err := c.bot.Send(recipient(to), doc, &tele.SendOptions{
			ParseMode: tele.ModeMarkdownV2,
		})
		return err
	})
}

// FanOutText delivers the same text to every recipient concurrently and
// independently. Outcomes are returned in input order; one recipient's
// failure never blocks or cancels a sibling.
func (c *Client) FanOutText(ctx context.Context, recipients []string, topic, sender, text string) []Outcome {
	return c.fanOut(recipients, func(i int, to string) Outcome {
		return c.SendText(ctx, to, topic, sender, text)
	})
}

// FanOutDocument is FanOutText for a document payload. The content slice is
// shared read-only across all sends.
func (c *Client) FanOutDocument(ctx context.Context, recipients []string, topic, sender, message, filename string, content []byte) []Outcome {
	return c.fanOut(recipients, func(i int, to string) Outcome {
		return c.SendDocument(ctx, to, topic, sender, message, filename, content)
	})
}

func (c *Client) fanOut(recipients []string, send func(i int, to string) Outcome) []Outcome {
	// Pre-sized, index-addressed slots keep the aggregate in input order no
	// matter how completions interleave.
	outs := make([]Outcome, len(recipients))
	var wg sync.WaitGroup
	for i, to := range recipients {
		wg.Add(1)
		go func(i int, to string) {
			defer wg.Done()
			outs[i] = send(i, to)
		}(i, to)
	}
	wg.Wait()
	return outs
}

func (c *Client) attempt(ctx context.Context, to string, do func() error) Outcome {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Outcome{Recipient: to, Err: err, Timeout: isTimeout(err)}
		}
	}
	start := time.Now()
	if err := do(); err != nil {
		out := Outcome{Recipient: to, Err: err, Timeout: isTimeout(err)}
		c.log.Warn("delivery failed",
			logx.String("recipient", to),
			logx.Bool("timeout", out.Timeout),
			logx.Duration("took", time.Since(start)),
			logx.Err(err),
		)
		return out
	}
	c.log.Debug("delivery ok",
		logx.String("recipient", to),
		logx.Duration("took", time.Since(start)),
	)
	return Outcome{Recipient: to}
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// Summarize counts failures and how many of them were timeouts.
func Summarize(outs []Outcome) (failed, timeouts int) {
	for _, o := range outs {
		if o.OK() {
			continue
		}
		failed++
		if o.Timeout {
			timeouts++
		}
	}
	return failed, timeouts
}
