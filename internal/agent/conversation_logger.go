package agent

import (
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"unicode"
)

// ConversationLogEvent is one transcript entry for a chat turn.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	TurnID     string         `json:"turn_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records chat transcripts.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// ConversationLogConfig controls transcript logging.
type ConversationLogConfig struct {
	Enabled   bool
	QueueSize int
}

// NewConversationLogger returns a logger that writes transcript events to
// logger from a background goroutine. Events are dropped, not blocked on,
// when the queue is full. A disabled config yields a no-op logger.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		return nil, errors.New("agent: conversation logger requires a slog logger")
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	l := &slogConversationLogger{
		logger: logger,
		events: make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
	}
	go l.run()
	return l, nil
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

type slogConversationLogger struct {
	logger  *slog.Logger
	events  chan ConversationLogEvent
	done    chan struct{}
	mu      sync.RWMutex
	closed  bool
	dropped atomic.Int64
}

func (l *slogConversationLogger) Log(event ConversationLogEvent) {
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.events <- event:
	default:
		if n := l.dropped.Add(1); n == 1 || n%100 == 0 {
			l.logger.Warn("conversation log queue full, dropping events", "dropped", n)
		}
	}
}

func (l *slogConversationLogger) run() {
	defer close(l.done)
	for event := range l.events {
		attrs := []any{
			"ts", event.Timestamp,
			"turn_id", event.TurnID,
			"channel", event.Channel,
			"direction", event.Direction,
			"content", event.Content,
		}
		for k, v := range event.Meta {
			attrs = append(attrs, k, v)
		}
		l.logger.Info(event.EventType, attrs...)
	}
}

// Close drains queued events and stops the writer.
func (l *slogConversationLogger) Close() error {
	l.mu.Lock()
	if !l.closed {
		l.closed = true
		close(l.events)
	}
	l.mu.Unlock()
	<-l.done
	return nil
}

// cleanForReadability drops control characters and collapses whitespace so
// transcript lines stay on one line.
func cleanForReadability(s string) string {
	s = strings.Map(func(r rune) rune {
		if unicode.IsControl(r) && !unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	return strings.Join(strings.Fields(s), " ")
}
