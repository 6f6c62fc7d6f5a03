package activitymap

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-library"
	jsoniter "github.com/json-iterator/go"
)

const (
	// MetadataKeyActorType stores the actor type derived from library.ActorRef.Type.
	MetadataKeyActorType = "actor_type"
	// MetadataKeyUserID stores the acting user when the object is a book.
	MetadataKeyUserID = "user_id"
)

const (
	ObjectTypeBook = "book"
	ObjectTypeUser = "user"

	defaultActorID = "system"
)

// Normalized is a transport-agnostic activity shape for downstream systems.
type Normalized struct {
	ActorID    string         `json:"actor_id"`
	Verb       string         `json:"verb"`
	ObjectType string         `json:"object_type,omitempty"`
	ObjectID   string         `json:"object_id,omitempty"`
	Channel    string         `json:"channel,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt time.Time      `json:"occurred_at"`
}

// Option customizes normalization behavior.
type Option func(*normalizeOptions)

type normalizeOptions struct {
	channel       string
	actorFallback string
	now           func() time.Time
}

// Normalize converts a library.ActivityEvent into a generic normalized shape.
// Events that reference a book are reported against the book, everything
// else against the user.
func Normalize(event library.ActivityEvent, opts ...Option) Normalized {
	options := normalizeOptions{
		actorFallback: defaultActorID,
		now:           time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}

	actorID := firstNonEmpty(
		strings.TrimSpace(event.Actor.ID),
		strings.TrimSpace(event.UserID),
		options.actorFallback,
	)

	objectType, objectID := ObjectTypeUser, strings.TrimSpace(event.UserID)
	if event.BookID != 0 {
		objectType, objectID = ObjectTypeBook, strconv.FormatInt(event.BookID, 10)
	}

	channel := options.channel
	if channel == "" {
		channel = ChannelFor(event.EventType)
	}

	occurredAt := event.OccurredAt
	if occurredAt.IsZero() {
		occurredAt = options.now().UTC()
	}

	return Normalized{
		ActorID:    actorID,
		Verb:       string(event.EventType),
		ObjectType: objectType,
		ObjectID:   objectID,
		Channel:    channel,
		Metadata:   normalizeMetadata(event, objectType),
		OccurredAt: occurredAt,
	}
}

// ChannelFor returns the first segment of the event type. Registration is
// reported on the auth channel.
func ChannelFor(eventType library.ActivityEventType) string {
	if eventType == library.ActivityEventUserRegistered {
		return "auth"
	}
	head, _, _ := strings.Cut(string(eventType), ".")
	return head
}

// WithChannel forces the channel for every normalized record.
func WithChannel(channel string) Option {
	return func(opts *normalizeOptions) {
		opts.channel = strings.TrimSpace(channel)
	}
}

// WithActorFallback sets the final actor-id fallback when actor/user ids are empty.
func WithActorFallback(actorID string) Option {
	return func(opts *normalizeOptions) {
		opts.actorFallback = strings.TrimSpace(actorID)
	}
}

// WithClock sets the clock used when an event has no timestamp.
func WithClock(now func() time.Time) Option {
	return func(opts *normalizeOptions) {
		if now != nil {
			opts.now = now
		}
	}
}

// Sink adapts a writer of normalized records to library.ActivitySink.
func Sink(write func(context.Context, Normalized) error, opts ...Option) library.ActivitySink {
	return library.ActivitySinkFunc(func(ctx context.Context, event library.ActivityEvent) error {
		return write(ctx, Normalize(event, opts...))
	})
}

// LoggerSink logs each normalized record as a single JSON document.
func LoggerSink(logger library.Logger, opts ...Option) library.ActivitySink {
	return Sink(func(_ context.Context, record Normalized) error {
		raw, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalToString(record)
		if err != nil {
			return err
		}
		logger.Info("activity", "channel", record.Channel, "verb", record.Verb, "record", raw)
		return nil
	}, opts...)
}

func normalizeMetadata(event library.ActivityEvent, objectType string) map[string]any {
	metadata := cloneMap(event.Metadata)

	set := func(key string, value any) {
		if metadata == nil {
			metadata = map[string]any{}
		}
		if _, exists := metadata[key]; !exists {
			metadata[key] = value
		}
	}

	if actorType := strings.TrimSpace(event.Actor.Type); actorType != "" {
		set(MetadataKeyActorType, actorType)
	}

	if objectType == ObjectTypeBook && event.UserID != "" {
		set(MetadataKeyUserID, event.UserID)
	}

	return metadata
}

func cloneMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
