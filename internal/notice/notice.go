// Package notice carries the short status messages shown to the user after a
// push, a test or a settings action.
package notice

import (
	"context"
	"strconv"
	"sync"
	"time"

	logx "anypush/pkg/logx"
)

type Level int

const (
	LevelInfo Level = iota
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelWarn:
		return "warn"
	case LevelError:
		return "error"
	default:
		return "info"
	}
}

func (l Level) MarshalText() ([]byte, error) { return []byte(l.String()), nil }

type Notice struct {
	At      time.Time `json:"at"`
	Level   Level     `json:"level"`
	Title   string    `json:"title"`
	Message string    `json:"message"`
}

// Text renders n as a single chat message.
func (n Notice) Text() string {
	prefix := "ℹ️ "
	switch n.Level {
	case LevelError:
		prefix = "🚨 "
	case LevelWarn:
		prefix = "⚠️ "
	}
	return prefix + n.Title + "\n" + n.Message
}

// Constructors for the notices the push action produces.

func NotConfigured() Notice {
	return Notice{Level: LevelError, Title: "Error", Message: "Please configure push services first"}
}

func NoServicesEnabled() Notice {
	return Notice{Level: LevelWarn, Title: "Reminder", Message: "No push services enabled"}
}

func Succeeded(n int) Notice {
	return Notice{Level: LevelInfo, Title: "Push succeeded", Message: "Pushed to " + strconv.Itoa(n) + " service(s)"}
}

func PartlyFailed(n int) Notice {
	return Notice{Level: LevelError, Title: "Push failed", Message: strconv.Itoa(n) + " service(s) failed"}
}

func Failed(err error) Notice {
	return Notice{Level: LevelError, Title: "Push failed", Message: err.Error()}
}

// Sink displays notices somewhere (a chat, a desktop, ...).
type Sink interface {
	Notify(ctx context.Context, n Notice) error
}

const defaultHistory = 100

// Center logs every notice, keeps a bounded history and forwards to sinks.
// Sink failures are logged and otherwise ignored.
type Center struct {
	log logx.Logger
	max int

	mu      sync.Mutex
	sinks   []Sink
	history []Notice
}

func NewCenter(log logx.Logger, maxHistory int) *Center {
	if log.IsZero() {
		log = logx.Nop()
	}
	if maxHistory <= 0 {
		maxHistory = defaultHistory
	}
	return &Center{log: log.With(logx.String("comp", "notice")), max: maxHistory}
}

func (c *Center) AddSink(s Sink) {
	c.mu.Lock()
	c.sinks = append(c.sinks, s)
	c.mu.Unlock()
}

// Show records and forwards n.
func (c *Center) Show(ctx context.Context, n Notice) {
	if n.At.IsZero() {
		n.At = time.Now()
	}

	switch n.Level {
	case LevelError:
		c.log.Warn("notice", logx.String("title", n.Title), logx.String("message", n.Message))
	default:
		c.log.Info("notice", logx.String("title", n.Title), logx.String("message", n.Message))
	}

	c.mu.Lock()
	c.history = append(c.history, n)
	if len(c.history) > c.max {
		c.history = c.history[len(c.history)-c.max:]
	}
	sinks := append([]Sink(nil), c.sinks...)
	c.mu.Unlock()

	for _, s := range sinks {
		if err := s.Notify(ctx, n); err != nil {
			c.log.Warn("notice sink failed", logx.Err(err))
		}
	}
}

// History returns the retained notices, oldest first.
func (c *Center) History() []Notice {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Notice(nil), c.history...)
}
