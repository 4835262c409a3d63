// Package notify delivers operator alerts asynchronously. Delivery is at most once: a failed
// send is logged and never retried, and nothing here can roll back the caller's work.
package notify

import (
	"context"
	"errors"
	"strings"
)

// Kind classifies a notification.
type Kind string

// Notification kinds.
const (
	KindHighValueAward Kind = "high_value_award"
	KindSystemError    Kind = "system_error"
	KindReport         Kind = "report"
)

// ErrNoRecipients is returned by senders that need an address and have none.
var ErrNoRecipients = errors.New("no recipients configured")

// Notification is a message for operators. Bypass skips the cooldown and is reserved for
// explicitly requested sends such as reports.
type Notification struct {
	Kind       Kind     `json:"kind"`
	Subject    string   `json:"subject"`
	Body       string   `json:"body"`
	Recipients []string `json:"recipients,omitempty"`
	Bypass     bool     `json:"bypass,omitempty"`
}

// Sender delivers a single notification.
type Sender interface {
	Name() string
	Send(ctx context.Context, n Notification) error
}

// Notifier is the fire-and-forget entry point used by services.
type Notifier interface {
	Notify(ctx context.Context, n Notification)
}

// Nop discards notifications.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, Notification) {}

// ParseRecipients splits a comma separated address list, falling back when it is empty.
func ParseRecipients(raw string, fallback ...string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) > 0 {
		return out
	}
	for _, f := range fallback {
		if trimmed := strings.TrimSpace(f); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
