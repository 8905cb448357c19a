package notification

import (
    "context"
    "log/slog"
    "time"
)

const (
    // KindLoginCode carries a one-time login code to its owner.
    KindLoginCode = "login_code"
)

// Message describes a notification payload.
type Message struct {
    Kind        string
    Destination string
    Body        string
    // TTL is how long the content stays valid, when that matters to the recipient.
    TTL time.Duration
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
    Send(ctx context.Context, message Message) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, message Message) error

func (f NotifierFunc) Send(ctx context.Context, message Message) error {
    return f(ctx, message)
}

// LoggerNotifier is the mock delivery channel: it writes messages to the
// structured logger instead of an email or SMS gateway.
type LoggerNotifier struct {
    logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
    return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
    if n == nil || n.logger == nil {
        return nil
    }
    n.logger.InfoContext(ctx, "mock notification delivered",
        slog.String("kind", message.Kind),
        slog.String("destination", message.Destination),
        slog.String("body", message.Body),
        slog.Int("expires_in_minutes", int(message.TTL/time.Minute)),
    )
    return nil
}
