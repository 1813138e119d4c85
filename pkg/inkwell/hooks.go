package inkwell

import (
	"context"
	"log/slog"
)

// WriteEvent names the mutation that just completed when an after-write hook
// fires.
type WriteEvent string

// Write events.
const (
	EventCreate         WriteEvent = "create"
	EventUpdate         WriteEvent = "update"
	EventPublish        WriteEvent = "publish"
	EventTrash          WriteEvent = "trash"
	EventRestore        WriteEvent = "restore"
	EventHistoryRestore WriteEvent = "history_restore"
	EventDelete         WriteEvent = "delete"
)

// EventSink receives after-write notifications. Sinks are strictly
// best-effort: the service catches and logs every sink error (and panic) and
// never propagates them to the caller. For EventDelete the head is the last
// state the row had before it was removed.
type EventSink interface {
	AfterWrite(ctx context.Context, event WriteEvent, head *ContentHead) error
}

// EventSinkFunc adapts a function to the EventSink interface.
type EventSinkFunc func(ctx context.Context, event WriteEvent, head *ContentHead) error

// AfterWrite implements EventSink.
func (f EventSinkFunc) AfterWrite(ctx context.Context, event WriteEvent, head *ContentHead) error {
	return f(ctx, event, head)
}

// NoopSink discards all events.
func NoopSink() EventSink {
	return EventSinkFunc(func(context.Context, WriteEvent, *ContentHead) error {
		return nil
	})
}

// SlogSink logs every write event through the given logger.
func SlogSink(logger *slog.Logger) EventSink {
	return EventSinkFunc(func(_ context.Context, event WriteEvent, head *ContentHead) error {
		logger.Info("content write",
			"event", string(event),
			"uid", head.UID,
			"version", head.VersionNumber,
			"status", string(head.Status))
		return nil
	})
}

// emit fires the after-write hook for a completed mutation. It is the single
// capture-and-log point for sink failures: errors and panics are logged and
// swallowed so side-effect failures can never block a primary write.
func (s *service) emit(ctx context.Context, event WriteEvent, head *ContentHead) {
	if s.sink == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("after-write hook panicked", "event", string(event), "uid", head.UID, "panic", r)
		}
	}()
	if err := s.sink.AfterWrite(ctx, event, head.Clone()); err != nil {
		s.logger.Warn("after-write hook failed", "event", string(event), "uid", head.UID, "error", err)
	}
}
