package trust

import (
	"context"
	"errors"
	"testing"
)

func TestExecutorExports(t *testing.T) {
	exec, err := NewExecutor(NewExecutorBuilder(NewExecutorID()), WithMetrics(NewMetricsRegistry()))
	if err != nil {
		t.Fatalf("unexpected error creating executor: %v", err)
	}

	got := Run(context.Background(), exec, func(ctx context.Context) int {
		if _, ok := ExecutorFromContext(ctx); !ok {
			t.Error("expected executor bound into context")
		}
		return 42
	})
	if got != 42 {
		t.Fatalf("expected 42, got %d", got)
	}

	res, err := SpawnAwait(context.Background(), exec, func(context.Context) string { return "done" })
	if err != nil || res != "done" {
		t.Fatalf("unexpected spawn await result %q, %v", res, err)
	}

	if _, err := SpawnWithHandle[int](nil, func(context.Context) int { return 0 }); !errors.Is(err, ErrExecutorRequired) {
		t.Fatalf("expected executor required error, got %v", err)
	}
}

func TestStartServiceExport(t *testing.T) {
	exec, err := NewExecutor(NewExecutorBuilder(NewExecutorID()), WithMetrics(NewMetricsRegistry()))
	if err != nil {
		t.Fatalf("unexpected error creating executor: %v", err)
	}

	client, err := StartService[string, int](ReqRepConfig{
		ID:      NewReqRepID(),
		Metrics: NewMetricsRegistry(),
		Logger:  NopLogger(),
	}, ProcessorFunc[string, int](func(_ context.Context, req string) int {
		return len(req)
	}), exec)
	if err != nil {
		t.Fatalf("unexpected error starting service: %v", err)
	}
	defer client.Close()

	n, err := client.SendRecv(context.Background(), "hello")
	if err != nil {
		t.Fatalf("unexpected send error: %v", err)
	}
	if n != 5 {
		t.Fatalf("expected 5, got %d", n)
	}
}

func TestChannelErrorExports(t *testing.T) {
	client, backend := NewChannel[int, int](NewReqRepID(), 1)
	backend.Close()

	if _, err := client.Send(context.Background(), 1); !errors.Is(err, ErrChannelSend) {
		t.Fatalf("expected channel send error, got %v", err)
	}
}

func TestBindExportValidates(t *testing.T) {
	if err := Bind[string, string](nil, BindingConfig{}, nil, JSON[string, string]()); !errors.Is(err, ErrGatewayRequired) {
		t.Fatalf("expected gateway required error, got %v", err)
	}
}

func TestEncodingExportAliases(t *testing.T) {
	payload := map[string]string{"hello": "world"}
	data, err := Marshal(payload)
	if err != nil {
		t.Fatalf("marshal alias failed: %v", err)
	}
	var decoded map[string]string
	if err := Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal alias failed: %v", err)
	}
	if decoded["hello"] != "world" {
		t.Fatalf("unexpected round trip %#v", decoded)
	}
}

func TestGlobalExecutorExport(t *testing.T) {
	if GlobalExecutor().ID() != GlobalExecutorID {
		t.Fatal("expected global executor to carry the reserved id")
	}
	for _, id := range ExecutorIDs() {
		if id == GlobalExecutorID {
			t.Fatal("global executor must not be listed")
		}
	}
}
