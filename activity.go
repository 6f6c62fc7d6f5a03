package library

import (
	"context"
	"time"
)

// ActivityEventType enumerates supported activity categories.
type ActivityEventType string

const (
	ActivityEventUserRegistered ActivityEventType = "user.registered"
	ActivityEventLoginSuccess   ActivityEventType = "auth.login.success"
	ActivityEventLoginFailure   ActivityEventType = "auth.login.failure"
	ActivityEventTokenRefreshed ActivityEventType = "auth.token.refreshed"
	ActivityEventBookCreated    ActivityEventType = "catalog.book.created"
	ActivityEventBookUpdated    ActivityEventType = "catalog.book.updated"
	ActivityEventBookDeleted    ActivityEventType = "catalog.book.deleted"
	ActivityEventBookBorrowed   ActivityEventType = "ledger.book.borrowed"
	ActivityEventBookReturned   ActivityEventType = "ledger.book.returned"

	ActivityEventBookStateChanged ActivityEventType = "catalog.book.state_changed"
)

// ActorRef identifies who/what triggered an action.
type ActorRef struct {
	ID   string
	Type string
}

// ActivityEvent captures audit-friendly information about an action.
type ActivityEvent struct {
	EventType  ActivityEventType
	Actor      ActorRef
	UserID     string
	BookID     int64
	Metadata   map[string]any
	OccurredAt time.Time
}

// ActivitySink consumes activity events for auditing/telemetry purposes.
type ActivitySink interface {
	Record(ctx context.Context, event ActivityEvent) error
}

// ActivitySinkFunc adapts a function to the ActivitySink interface.
type ActivitySinkFunc func(ctx context.Context, event ActivityEvent) error

// Record implements ActivitySink.
func (f ActivitySinkFunc) Record(ctx context.Context, event ActivityEvent) error {
	if f == nil {
		return nil
	}
	return f(ctx, event)
}

// LoggerActivitySink writes every event to a Logger at info level
func LoggerActivitySink(logger Logger) ActivitySink {
	logger = normalizeLogger(logger)
	return ActivitySinkFunc(func(_ context.Context, event ActivityEvent) error {
		args := []any{
			"event", event.EventType,
			"actor", event.Actor.ID,
			"actor_type", event.Actor.Type,
		}
		if event.UserID != "" {
			args = append(args, "user_id", event.UserID)
		}
		if event.BookID != 0 {
			args = append(args, "book_id", event.BookID)
		}
		for k, v := range event.Metadata {
			args = append(args, k, v)
		}
		logger.Info("activity", args...)
		return nil
	})
}

type noopActivitySink struct{}

func (noopActivitySink) Record(context.Context, ActivityEvent) error {
	return nil
}

func normalizeActivitySink(s ActivitySink) ActivitySink {
	if s == nil {
		return noopActivitySink{}
	}
	return s
}

// activityRecorder is shared by the services that emit events
type activityRecorder struct {
	sink   ActivitySink
	logger Logger
	now    func() time.Time
}

func (r activityRecorder) emit(ctx context.Context, event ActivityEvent) {
	sink := normalizeActivitySink(r.sink)

	if event.Actor == (ActorRef{}) {
		event.Actor = actorFromContext(ctx)
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		now := r.now
		if now == nil {
			now = time.Now
		}
		event.OccurredAt = now()
	}

	if err := sink.Record(ctx, event); err != nil {
		normalizeLogger(r.logger).Warn("activity sink record error", "event", event.EventType, "error", err)
	}
}

func actorFromUser(user *User) ActorRef {
	if user == nil {
		return ActorRef{Type: "unknown"}
	}
	return ActorRef{
		ID:   formatID(user.ID),
		Type: string(user.Role),
	}
}

func actorFromContext(ctx context.Context) ActorRef {
	if user, ok := FromContext(ctx); ok {
		return actorFromUser(user)
	}
	return ActorRef{Type: "system"}
}
