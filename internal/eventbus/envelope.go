package eventbus

import (
	"context"
	"reflect"
	"time"

	"github.com/google/uuid"
)

// Envelope carries event metadata.
type Envelope struct {
	EventID    uuid.UUID
	EventType  string
	AccountID  string
	OccurredAt time.Time
}

type contextKey struct{}

// NewEnvelope builds metadata for event. AccountID and OccurredAt are taken
// from fields of the same name when the event has them.
func NewEnvelope(event any) Envelope {
	occurredAt := extractTimeField(event, "OccurredAt")
	if occurredAt.IsZero() {
		occurredAt = time.Now()
	}
	return Envelope{
		EventID:    uuid.New(),
		EventType:  Topic(event),
		AccountID:  extractStringField(event, "AccountID"),
		OccurredAt: occurredAt.UTC(),
	}
}

// WithEnvelope attaches envelope metadata to ctx.
func WithEnvelope(ctx context.Context, env Envelope) context.Context {
	return context.WithValue(ctx, contextKey{}, env)
}

// EnvelopeFromContext returns envelope metadata if available.
func EnvelopeFromContext(ctx context.Context) (Envelope, bool) {
	env, ok := ctx.Value(contextKey{}).(Envelope)
	return env, ok
}

func structValue(event any) (reflect.Value, bool) {
	value := reflect.ValueOf(event)
	for value.Kind() == reflect.Ptr {
		if value.IsNil() {
			return reflect.Value{}, false
		}
		value = value.Elem()
	}
	return value, value.Kind() == reflect.Struct
}

func extractStringField(event any, name string) string {
	value, ok := structValue(event)
	if !ok {
		return ""
	}
	field := value.FieldByName(name)
	if field.IsValid() && field.Kind() == reflect.String {
		return field.String()
	}
	return ""
}

func extractTimeField(event any, name string) time.Time {
	value, ok := structValue(event)
	if !ok {
		return time.Time{}
	}
	field := value.FieldByName(name)
	if !field.IsValid() || !field.CanInterface() {
		return time.Time{}
	}
	if t, ok := field.Interface().(time.Time); ok {
		return t
	}
	return time.Time{}
}
