package binding

import (
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	errspkg "github.com/drblury/trust/internal/runtime/errors"
	idspkg "github.com/drblury/trust/internal/runtime/ids"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metadatapkg "github.com/drblury/trust/internal/runtime/metadata"
	"github.com/drblury/trust/internal/runtime/reqrep"
)

const tracerName = "github.com/drblury/trust/binding"

// Config describes one bound service.
type Config struct {
	// Name identifies the router handler. Defaults to the service id.
	Name string
	// ConsumeTopic is the topic requests are read from.
	ConsumeTopic string
	// PublishTopic receives the replies. Leave empty to process requests
	// without publishing replies.
	PublishTopic string

	// Subscriber and Publisher override the gateway defaults.
	Subscriber message.Subscriber
	Publisher  message.Publisher
}

// Validate reports missing settings.
func (c Config) Validate() error {
	if c.ConsumeTopic == "" {
		return fmt.Errorf("consume topic: %w", errspkg.ErrTopicRequired)
	}
	return nil
}

// Info describes a bound service.
type Info struct {
	Name         string    `json:"name"`
	ConsumeTopic string    `json:"consume_topic"`
	PublishTopic string    `json:"publish_topic,omitempty"`
	ReqRepID     reqrep.ID `json:"reqrep_id"`
}

// UnprocessableError marks a request that can never succeed, such as one
// whose payload cannot be decoded. It is not retried.
type UnprocessableError struct {
	Payload string
	Err     error
}

func (e *UnprocessableError) Error() string {
	return fmt.Sprintf("unprocessable request: %v", e.Err)
}

func (e *UnprocessableError) Unwrap() error { return e.Err }

// IsUnprocessable reports whether err carries an *UnprocessableError.
func IsUnprocessable(err error) bool {
	var target *UnprocessableError
	return errors.As(err, &target)
}

// Bind registers a router handler forwarding requests from cfg.ConsumeTopic
// to client and publishing replies to cfg.PublishTopic. The caller keeps
// ownership of client and closes it after the gateway has stopped.
func Bind[Req, Rep any](g *Gateway, cfg Config, client *reqrep.Client[Req, Rep], codecs Codecs[Req, Rep]) error {
	if g == nil {
		return errspkg.ErrGatewayRequired
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	handler, err := newHandler(client, codecs, g.Logger, g.stats)
	if err != nil {
		return err
	}
	if cfg.Name == "" {
		cfg.Name = client.ID().String()
	}
	if cfg.Subscriber == nil {
		cfg.Subscriber = g.subscriber
	}
	if cfg.Publisher == nil {
		cfg.Publisher = g.publisher
	}

	if cfg.PublishTopic == "" {
		g.router.AddNoPublisherHandler(cfg.Name, cfg.ConsumeTopic, cfg.Subscriber, func(msg *message.Message) error {
			_, err := handler(msg)
			return err
		})
	} else {
		g.router.AddHandler(cfg.Name, cfg.ConsumeTopic, cfg.Subscriber, cfg.PublishTopic, cfg.Publisher, handler)
	}

	g.bindingsMu.Lock()
	g.bindings = append(g.bindings, Info{
		Name:         cfg.Name,
		ConsumeTopic: cfg.ConsumeTopic,
		PublishTopic: cfg.PublishTopic,
		ReqRepID:     client.ID(),
	})
	g.bindingsMu.Unlock()

	g.Logger.Info("Service bound", loggingpkg.LogFields{
		"handler":       cfg.Name,
		"consume_topic": cfg.ConsumeTopic,
		"publish_topic": cfg.PublishTopic,
		"reqrep_id":     client.ID().String(),
	})
	return nil
}

// NewHandler converts a service client into a Watermill handler. The reply
// message gets a fresh UUID and echoes the request's correlation id.
func NewHandler[Req, Rep any](client *reqrep.Client[Req, Rep], codecs Codecs[Req, Rep], logger loggingpkg.ServiceLogger) (message.HandlerFunc, error) {
	return newHandler(client, codecs, logger, nil)
}

func newHandler[Req, Rep any](client *reqrep.Client[Req, Rep], codecs Codecs[Req, Rep], logger loggingpkg.ServiceLogger, stats *bindingMetrics) (message.HandlerFunc, error) {
	if client == nil {
		return nil, errspkg.ErrClientRequired
	}
	if err := codecs.validate(); err != nil {
		return nil, err
	}
	logger = loggingpkg.OrDefault(logger)
	id := client.ID().String()

	return func(msg *message.Message) ([]*message.Message, error) {
		ctx, span := otel.Tracer(tracerName).Start(msg.Context(), "reqrep.SendRecv",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("message.uuid", msg.UUID),
				attribute.String("reqrep.id", id),
			))
		defer span.End()

		out, err := func() ([]*message.Message, error) {
			req, err := codecs.Request.Decode(msg.Payload)
			if err != nil {
				return nil, &UnprocessableError{Payload: string(msg.Payload), Err: err}
			}

			rep, err := client.SendRecv(ctx, req)
			if err != nil {
				return nil, fmt.Errorf("reqrep %s: %w", id, err)
			}

			payload, err := codecs.Reply.Encode(rep)
			if err != nil {
				return nil, fmt.Errorf("encoding reply: %w", err)
			}
			reply := message.NewMessage(idspkg.CreateULID(), payload)
			reply.Metadata = metadatapkg.FromWatermill(msg.Metadata).
				Reply(id, msg.UUID, codecs.Reply.ContentType()).
				ToWatermill()
			return []*message.Message{reply}, nil
		}()

		stats.observe(id, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			logger.Error("Request failed", err, loggingpkg.LogFields{
				"message_uuid": msg.UUID,
				"reqrep_id":    id,
			})
			return nil, err
		}
		return out, nil
	}, nil
}
