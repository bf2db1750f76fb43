// Package transport holds the pieces shared by the chat and HTTP triggers.
package transport

import (
	"context"

	"anypush/internal/content"
	"anypush/internal/notice"
)

// Message is an inbound chat message, independent of the bot library.
type Message struct {
	ID           int
	ChatID       int64
	ThreadID     int // forum topic thread id (0 if none)
	FromID       int64
	FromUsername string
	Text         string
}

type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// Actions is the push surface a trigger drives.
type Actions interface {
	Push(ctx context.Context, item content.Item) notice.Report
	Test(ctx context.Context, service string) notice.Report
}
