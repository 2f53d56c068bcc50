package binding

import (
	"net/http"
	"strings"

	"github.com/drblury/trust/internal/runtime/execution"
	jsoncodec "github.com/drblury/trust/internal/runtime/jsoncodec"
)

const defaultInspectPort = 8081

// ExecutorInfo is a point-in-time view of one executor.
type ExecutorInfo struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Global         bool   `json:"global"`
	ThreadPoolSize int    `json:"thread_pool_size"`
	Spawned        uint64 `json:"spawned"`
	Active         uint64 `json:"active"`
	Completed      uint64 `json:"completed"`
	Panicked       uint64 `json:"panicked"`
}

// Executors returns the global executor followed by every registered
// executor of the gateway's executor registry.
func (g *Gateway) Executors() []ExecutorInfo {
	global := g.executors.GlobalExecutor()
	out := []ExecutorInfo{executorInfo(global, true)}
	for _, id := range g.executors.ExecutorIDs() {
		if e, ok := g.executors.Executor(id); ok {
			out = append(out, executorInfo(e, false))
		}
	}
	return out
}

func executorInfo(e *execution.Executor, global bool) ExecutorInfo {
	return ExecutorInfo{
		ID:             e.ID().String(),
		Name:           e.Name(),
		Global:         global,
		ThreadPoolSize: e.ThreadPoolSize(),
		Spawned:        e.SpawnedTaskCount(),
		Active:         e.ActiveTaskCount(),
		Completed:      e.CompletedTaskCount(),
		Panicked:       e.PanickedTaskCount(),
	}
}

func (g *Gateway) registerInspectHandlers() {
	if !g.Conf.InspectEnabled {
		return
	}

	port := g.Conf.InspectPort
	if port == 0 {
		port = defaultInspectPort
	}

	g.RegisterHTTPHandler(port, "/api/bindings", g.inspectHandler(func() any { return g.Bindings() }))
	g.RegisterHTTPHandler(port, "/api/executors", g.inspectHandler(func() any { return g.Executors() }))
}

func (g *Gateway) inspectHandler(snapshot func() any) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if origin := g.allowedCORSOrigin(r.Header.Get("Origin")); origin != "" {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		body, err := jsoncodec.Marshal(snapshot())
		if err != nil {
			g.Logger.Error("Failed to encode inspect response", err, nil)
			http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", jsoncodec.ContentType)
		_, _ = w.Write(body)
	})
}

func (g *Gateway) allowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range g.Conf.InspectCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
