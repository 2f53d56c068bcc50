package binding

import (
	"context"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"

	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metadatapkg "github.com/drblury/trust/internal/runtime/metadata"
)

// RequestContext describes one request handled by a binding.
type RequestContext struct {
	// Binding is the router handler name, which defaults to the service id.
	Binding string
	// Topic is the topic the request was consumed from.
	Topic         string
	MessageUUID   string
	CorrelationID string
	Metadata      message.Metadata
	Context       context.Context
	StartedAt     time.Time
	// Duration is only set for OnRequestDone and OnRequestError.
	Duration time.Duration
}

// RequestHooks are callbacks around every bound request. Nil hooks are
// skipped.
type RequestHooks struct {
	OnRequestStart func(rc RequestContext)
	OnRequestDone  func(rc RequestContext)
	OnRequestError func(rc RequestContext, err error)
}

// Merge returns hooks calling h and then other.
func (h RequestHooks) Merge(other RequestHooks) RequestHooks {
	return RequestHooks{
		OnRequestStart: chainHooks(h.OnRequestStart, other.OnRequestStart),
		OnRequestDone:  chainHooks(h.OnRequestDone, other.OnRequestDone),
		OnRequestError: chainErrorHooks(h.OnRequestError, other.OnRequestError),
	}
}

func chainHooks(a, b func(RequestContext)) func(RequestContext) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(rc RequestContext) {
		a(rc)
		b(rc)
	}
}

func chainErrorHooks(a, b func(RequestContext, error)) func(RequestContext, error) {
	if a == nil {
		return b
	}
	if b == nil {
		return a
	}
	return func(rc RequestContext, err error) {
		a(rc, err)
		b(rc, err)
	}
}

// RequestHooksMiddleware invokes hooks around each handled request. Added
// after the default chain it observes every retry attempt separately.
func RequestHooksMiddleware(hooks RequestHooks) MiddlewareRegistration {
	return MiddlewareRegistration{
		Name:       "request_hooks",
		Middleware: requestHooksMiddleware(hooks),
	}
}

func requestHooksMiddleware(hooks RequestHooks) message.HandlerMiddleware {
	return func(h message.HandlerFunc) message.HandlerFunc {
		return func(msg *message.Message) ([]*message.Message, error) {
			ctx := msg.Context()
			rc := RequestContext{
				Binding:       message.HandlerNameFromCtx(ctx),
				Topic:         message.SubscribeTopicFromCtx(ctx),
				MessageUUID:   msg.UUID,
				CorrelationID: msg.Metadata.Get(metadatapkg.KeyCorrelationID),
				Metadata:      msg.Metadata,
				Context:       ctx,
				StartedAt:     time.Now(),
			}

			if hooks.OnRequestStart != nil {
				hooks.OnRequestStart(rc)
			}

			msgs, err := h(msg)
			rc.Duration = time.Since(rc.StartedAt)

			if err != nil {
				if hooks.OnRequestError != nil {
					hooks.OnRequestError(rc, err)
				}
			} else if hooks.OnRequestDone != nil {
				hooks.OnRequestDone(rc)
			}

			return msgs, err
		}
	}
}

// LoggingHooks logs request completion at debug level and failures at error
// level.
func LoggingHooks(logger loggingpkg.ServiceLogger) RequestHooks {
	logger = loggingpkg.OrDefault(logger)
	fields := func(rc RequestContext) loggingpkg.LogFields {
		return loggingpkg.LogFields{
			"binding":        rc.Binding,
			"topic":          rc.Topic,
			"message_uuid":   rc.MessageUUID,
			"correlation_id": rc.CorrelationID,
			"duration_ms":    rc.Duration.Milliseconds(),
		}
	}
	return RequestHooks{
		OnRequestDone: func(rc RequestContext) {
			logger.Debug("Request completed", fields(rc))
		},
		OnRequestError: func(rc RequestContext, err error) {
			logger.Error("Request failed", err, fields(rc))
		},
	}
}

// AlertingHooks calls alert for every failed request.
func AlertingHooks(alert func(rc RequestContext, err error)) RequestHooks {
	return RequestHooks{OnRequestError: alert}
}
