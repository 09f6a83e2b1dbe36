package utils

import (
	"context"

	"github.com/mmdatafocus/shipment_finance/appctx"
	"github.com/sirupsen/logrus"
)

var (
	ContextKeyActorId       = appctx.ContextKeyActorId
	ContextKeyCorrelationId = appctx.ContextKeyCorrelationId
	ContextKeyEventId       = appctx.ContextKeyEventId
)

// SystemActor is recorded on changes made by jobs and event handlers.
const SystemActor = "system"

func GetActorIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyActorId)
}

// ActorOrSystem returns the actor in ctx, or SystemActor when none is set.
func ActorOrSystem(ctx context.Context) string {
	if v, ok := GetActorIdFromContext(ctx); ok {
		return v
	}
	return SystemActor
}

func SetActorIdInContext(ctx context.Context, actorId string) context.Context {
	return appctx.Set(ctx, ContextKeyActorId, actorId)
}

func GetCorrelationIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyCorrelationId)
}

func SetCorrelationIdInContext(ctx context.Context, correlationId string) context.Context {
	return appctx.Set(ctx, ContextKeyCorrelationId, correlationId)
}

func GetEventIdFromContext(ctx context.Context) (string, bool) {
	return appctx.GetString(ctx, ContextKeyEventId)
}

func SetEventIdInContext(ctx context.Context, eventId string) context.Context {
	return appctx.Set(ctx, ContextKeyEventId, eventId)
}

// ContextFields returns the context values worth attaching to a log line.
func ContextFields(ctx context.Context) logrus.Fields {
	f := logrus.Fields{}
	if v, ok := GetActorIdFromContext(ctx); ok {
		f["actor_id"] = v
	}
	if v, ok := GetCorrelationIdFromContext(ctx); ok {
		f["correlation_id"] = v
	}
	if v, ok := GetEventIdFromContext(ctx); ok {
		f["event_id"] = v
	}
	return f
}
