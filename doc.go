// Package trust provides an executor worker pool and a typed request/reply
// messaging core built on top of it.
//
// An Executor runs tasks on goroutines gated by a fixed number of worker
// slots. Panics are recovered per task and counted, so one failing task never
// takes its siblings down. Executors are registered by ExecutorID in a
// process-wide registry, and a lazily created GlobalExecutor is always
// available.
//
// A ReqRep client submits requests to one or more backend service loops that
// wrap a user Processor. Each request carries a one-shot reply slot; the caller
// awaits it through a ReplyReceiver. When every client handle is closed the
// backends drain their buffer and stop. When the last backend exits, every
// pending request is disconnected.
//
// # Bindings
//
// A Gateway hosts a Watermill router and exposes ReqRep services to any
// Watermill publisher/subscriber pair. Bind decodes incoming payloads with a
// Codec (JSON via sonic or protobuf), calls the service and publishes the
// encoded reply. The default middleware chain adds correlation IDs, structured
// logging, Prometheus metrics, retries with exponential backoff, poison queue
// forwarding and panic recovery.
//
// # Metrics
//
// Executors, services and bindings report through Prometheus collectors under
// the "trust" namespace. GatherMetrics and the *Count helpers read them back
// for tests and diagnostics.
package trust
