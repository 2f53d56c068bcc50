package trust

import (
	"context"

	bindingpkg "github.com/drblury/trust/internal/runtime/binding"
	configpkg "github.com/drblury/trust/internal/runtime/config"
	errspkg "github.com/drblury/trust/internal/runtime/errors"
	"github.com/drblury/trust/internal/runtime/execution"
	idspkg "github.com/drblury/trust/internal/runtime/ids"
	jsoncodec "github.com/drblury/trust/internal/runtime/jsoncodec"
	loggingpkg "github.com/drblury/trust/internal/runtime/logging"
	metadatapkg "github.com/drblury/trust/internal/runtime/metadata"
	metricspkg "github.com/drblury/trust/internal/runtime/metrics"
	"github.com/drblury/trust/internal/runtime/reqrep"
	"google.golang.org/protobuf/proto"
)

type (
	Config = configpkg.Config

	Task                           = execution.Task
	Executor                       = execution.Executor
	ExecutorID                     = execution.ExecutorID
	ExecutorBuilder                = execution.ExecutorBuilder
	ExecutorOption                 = execution.Option
	ExecutorRegistry               = execution.Registry
	Handle[T any]                  = execution.Handle[T]
	PanicError                     = execution.PanicError
	SpawnError                     = execution.SpawnError
	ExecutorAlreadyRegisteredError = execution.ExecutorAlreadyRegisteredError

	ReqRepID                    = reqrep.ID
	MessageID                   = reqrep.MessageID
	ReqRepConfig                = reqrep.Config
	ReqRep[Req, Rep any]        = reqrep.Client[Req, Rep]
	ReqRepBackend[Req, Rep any] = reqrep.Backend[Req, Rep]
	ReqRepMessage[Req, Rep any] = reqrep.Message[Req, Rep]
	ReplyReceiver[Rep any]      = reqrep.ReplyReceiver[Rep]
	Processor[Req, Rep any]     = reqrep.Processor[Req, Rep]
	ProcessorFunc[Req, Rep any] = reqrep.ProcessorFunc[Req, Rep]
	PanicHandler                = reqrep.PanicHandler
	Cloner[Req, Rep any]        = reqrep.Cloner[Req, Rep]
	Initializer                 = reqrep.Initializer
	Destroyer                   = reqrep.Destroyer
	ReqRepMetrics               = reqrep.Metrics
	Gateway                     = bindingpkg.Gateway
	GatewayDependencies         = bindingpkg.Dependencies
	BindingConfig               = bindingpkg.Config
	BindingInfo                 = bindingpkg.Info
	Codec[T any]                = bindingpkg.Codec[T]
	Codecs[Req, Rep any]        = bindingpkg.Codecs[Req, Rep]
	ProtoCodec[T proto.Message] = bindingpkg.ProtoCodec[T]
	JSONCodec[T any]            = jsoncodec.Codec[T]
	UnprocessableError          = bindingpkg.UnprocessableError
	MiddlewareBuilder           = bindingpkg.MiddlewareBuilder
	MiddlewareRegistration      = bindingpkg.MiddlewareRegistration
	RetryMiddlewareConfig       = bindingpkg.RetryMiddlewareConfig
	MetricsRegistry             = metricspkg.Registry
	DurationBuckets             = metricspkg.DurationBuckets
	Metadata                    = metadatapkg.Metadata
	LogFields                   = loggingpkg.LogFields
	ServiceLogger               = loggingpkg.ServiceLogger
)

var (
	ValidateConfig = configpkg.ValidateConfig

	NewExecutor         = execution.NewExecutor
	NewExecutorBuilder  = execution.NewExecutorBuilder
	NewExecutorID       = execution.NewExecutorID
	ParseExecutorID     = execution.ParseExecutorID
	WithLogger          = execution.WithLogger
	WithMetrics         = execution.WithMetrics
	NewExecutorRegistry = execution.NewRegistry
	RegisterExecutor    = execution.Register
	LookupExecutor      = execution.LookupExecutor
	GlobalExecutor      = execution.GlobalExecutor
	ExecutorIDs         = execution.ExecutorIDs
	SpawnedTaskCount    = execution.SpawnedTaskCount
	ThreadPoolSizes     = execution.ThreadPoolSizes
	Suspend             = execution.Suspend
	ExecutorFromContext = execution.FromContext
	CatchPanic          = execution.Catch

	NewReqRepID             = reqrep.NewID
	ParseReqRepID           = reqrep.ParseID
	NewReqRepMetrics        = reqrep.NewMetrics
	RequestSendCount        = reqrep.RequestSendCount
	ServiceInstanceCount    = reqrep.ServiceInstanceCount
	ProcessorPanicCount     = reqrep.ProcessorPanicCount
	ProcessTimerSampleCount = reqrep.ProcessTimerSampleCount
	GatherMetrics           = reqrep.GatherMetrics

	NewGateway              = bindingpkg.NewGateway
	IsUnprocessable         = bindingpkg.IsUnprocessable
	DefaultMiddlewares      = bindingpkg.DefaultMiddlewares
	CorrelationIDMiddleware = bindingpkg.CorrelationIDMiddleware
	LogMessagesMiddleware   = bindingpkg.LogMessagesMiddleware
	MetricsMiddleware       = bindingpkg.MetricsMiddleware
	RetryMiddleware         = bindingpkg.RetryMiddleware
	PoisonQueueMiddleware   = bindingpkg.PoisonQueueMiddleware
	RecovererMiddleware     = bindingpkg.RecovererMiddleware
	RequestHooksMiddleware  = bindingpkg.RequestHooksMiddleware
	LoggingHooks            = bindingpkg.LoggingHooks
	AlertingHooks           = bindingpkg.AlertingHooks

	DefaultMetricsRegistry = metricspkg.Default
	NewMetricsRegistry     = metricspkg.NewPrometheusRegistry
	DefaultTimerBuckets    = metricspkg.DefaultTimerBuckets

	Marshal   = jsoncodec.Marshal
	Unmarshal = jsoncodec.Unmarshal

	ErrExecutorShutdown      = errspkg.ErrExecutorShutdown
	ErrSpawnedTaskPanicked   = errspkg.ErrSpawnedTaskPanicked
	ErrTaskRequired          = errspkg.ErrTaskRequired
	ErrExecutorRequired      = errspkg.ErrExecutorRequired
	ErrProcessorRequired     = errspkg.ErrProcessorRequired
	ErrProcessorNotCloneable = errspkg.ErrProcessorNotCloneable
	ErrChannelSend           = errspkg.ErrChannelSend
	ErrChannelFull           = errspkg.ErrChannelFull
	ErrChannelDisconnected   = errspkg.ErrChannelDisconnected
	ErrDisconnected          = errspkg.ErrDisconnected
	ErrReceiverClosed        = errspkg.ErrReceiverClosed
	ErrReplyAlreadySent      = errspkg.ErrReplyAlreadySent
	ErrReplyAlreadyReceived  = errspkg.ErrReplyAlreadyReceived
	ErrClientRequired        = errspkg.ErrClientRequired
	ErrCodecRequired         = errspkg.ErrCodecRequired
	ErrTopicRequired         = errspkg.ErrTopicRequired
	ErrGatewayRequired       = errspkg.ErrGatewayRequired

	NewSlogServiceLogger      = loggingpkg.NewSlogServiceLogger
	NewWatermillServiceLogger = loggingpkg.NewWatermillServiceLogger
	NopLogger                 = loggingpkg.Nop

	MetadataFromWatermill = metadatapkg.FromWatermill

	CreateULID = idspkg.CreateULID
)

// GlobalExecutorID is the reserved id of the process-wide global executor.
var GlobalExecutorID = execution.GlobalExecutorID

// Metadata keys written on every reply published by a Gateway binding.
const (
	MetadataKeyCorrelationID = metadatapkg.KeyCorrelationID
	MetadataKeyReqRepID      = metadatapkg.KeyReqRepID
	MetadataKeyRequestUUID   = metadatapkg.KeyRequestUUID
	MetadataKeyContentType   = metadatapkg.KeyContentType
)

// Gateway binding outcomes recorded on the requests counter.
const (
	OutcomeOK            = bindingpkg.OutcomeOK
	OutcomeFailed        = bindingpkg.OutcomeFailed
	OutcomeUnprocessable = bindingpkg.OutcomeUnprocessable
)

func SpawnWithHandle[T any](e *Executor, fn func(ctx context.Context) T) (*Handle[T], error) {
	return execution.SpawnWithHandle(e, fn)
}

func SpawnAwait[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) T) (T, error) {
	return execution.SpawnAwait(ctx, e, fn)
}

func Run[T any](ctx context.Context, e *Executor, fn func(ctx context.Context) T) T {
	return execution.Run(ctx, e, fn)
}

func StartService[Req, Rep any](cfg ReqRepConfig, processor Processor[Req, Rep], executor *Executor) (*ReqRep[Req, Rep], error) {
	return reqrep.StartService(cfg, processor, executor)
}

func NewChannel[Req, Rep any](id ReqRepID, bufSize int) (*ReqRep[Req, Rep], *ReqRepBackend[Req, Rep]) {
	return reqrep.NewChannel[Req, Rep](id, bufSize)
}

func Bind[Req, Rep any](g *Gateway, cfg BindingConfig, client *ReqRep[Req, Rep], codecs Codecs[Req, Rep]) error {
	return bindingpkg.Bind(g, cfg, client, codecs)
}

func JSON[Req, Rep any]() Codecs[Req, Rep] {
	return bindingpkg.JSON[Req, Rep]()
}

func Proto[Req, Rep proto.Message](binary bool) Codecs[Req, Rep] {
	return bindingpkg.Proto[Req, Rep](binary)
}
