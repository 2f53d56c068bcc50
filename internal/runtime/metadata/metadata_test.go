package metadata

import (
	"testing"

	"github.com/ThreeDotsLabs/watermill/message"
)

func TestCloneDoesNotAlias(t *testing.T) {
	original := Metadata{"a": "1", "b": "2"}
	clone := original.Clone()
	clone["a"] = "changed"

	if original["a"] != "1" {
		t.Fatalf("expected original map to stay untouched, got %q", original["a"])
	}
	if len(clone) != len(original) {
		t.Fatalf("expected clone to have same size")
	}
}

func TestCloneEmpty(t *testing.T) {
	var m Metadata
	cloned := m.Clone()
	if cloned == nil {
		t.Fatal("expected non-nil map")
	}
	if len(cloned) != 0 {
		t.Fatal("expected empty map")
	}
}

func TestWithAndWithAll(t *testing.T) {
	base := Metadata{"foo": "bar"}
	enriched := base.With("baz", "qux")
	if base["baz"] != "" {
		t.Fatalf("expected base map to remain unchanged")
	}
	if enriched["baz"] != "qux" {
		t.Fatalf("expected enriched map to add entry")
	}

	merged := enriched.WithAll(Metadata{"alpha": "beta"})
	if merged["alpha"] != "beta" {
		t.Fatalf("expected merged metadata to include new value")
	}
	if merged["baz"] != "qux" {
		t.Fatalf("expected existing entries to persist")
	}
}

func TestReplyHeaders(t *testing.T) {
	request := Metadata{KeyCorrelationID: "corr-1", "trace": "abc"}
	reply := request.Reply("svc", "req-uuid", "application/json")

	want := map[string]string{
		KeyCorrelationID: "corr-1",
		KeyReqRepID:      "svc",
		KeyRequestUUID:   "req-uuid",
		KeyContentType:   "application/json",
	}
	if len(reply) != len(want) {
		t.Fatalf("expected %d headers, got %v", len(want), reply)
	}
	for k, v := range want {
		if reply[k] != v {
			t.Errorf("reply[%q] = %q, want %q", k, reply[k], v)
		}
	}

	bare := Metadata{}.Reply("svc", "req-uuid", "")
	if _, ok := bare[KeyCorrelationID]; ok {
		t.Error("expected no correlation id when the request had none")
	}
	if _, ok := bare[KeyContentType]; ok {
		t.Error("expected no content type when none was given")
	}
}

func TestToAndFromWatermill(t *testing.T) {
	md := Metadata{"source": "api"}
	wm := md.ToWatermill()
	if wm["source"] != "api" {
		t.Fatalf("expected watermill metadata to copy entries")
	}
	wm["source"] = "mutation"
	if md["source"] != "api" {
		t.Fatalf("expected original metadata to be immutable to watermill changes")
	}

	if len(Metadata(nil).ToWatermill()) != 0 {
		t.Fatal("expected nil input to return empty metadata")
	}

	roundTrip := FromWatermill(message.Metadata{"event": "order"})
	if roundTrip["event"] != "order" {
		t.Fatalf("expected watermill metadata to convert back")
	}
}

func TestFromWatermillEmpty(t *testing.T) {
	md := FromWatermill(nil)
	if md == nil {
		t.Fatal("expected non-nil map")
	}
	if len(md) != 0 {
		t.Fatal("expected empty map")
	}
}
