package resultlog

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestPublish(t *testing.T) {
	srv := miniredis.RunT(t)

	p := NewRedisPublisher(Config{Address: srv.Addr(), TTL: 60})
	defer p.Close()

	errStr := "table not found"
	result := QueryResult{
		QueryID:    "q-123",
		Status:     "error",
		DurationMs: 42.5,
		Error:      &errStr,
	}
	if err := p.Publish(context.Background(), result); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	raw, err := srv.Get("dbcopilot:query:q-123:state")
	if err != nil {
		t.Fatalf("state key not set: %v", err)
	}

	var stored QueryResult
	if err := json.Unmarshal([]byte(raw), &stored); err != nil {
		t.Fatalf("unmarshal stored state: %v", err)
	}
	if stored.QueryID != "q-123" || stored.Status != "error" {
		t.Errorf("stored = %+v", stored)
	}
	if stored.Error == nil || *stored.Error != errStr {
		t.Errorf("stored error = %v, want %q", stored.Error, errStr)
	}
	if stored.FinishedAt.IsZero() {
		t.Error("FinishedAt not defaulted")
	}

	if ttl := srv.TTL("dbcopilot:query:q-123:state"); ttl != 60*time.Second {
		t.Errorf("ttl = %v, want 60s", ttl)
	}
}

func TestPublishEvent(t *testing.T) {
	srv := miniredis.RunT(t)

	p := NewRedisPublisher(Config{Address: srv.Addr(), TTL: 10})
	defer p.Close()

	sub := p.client.Subscribe(context.Background(), eventChannel)
	defer sub.Close()
	if _, err := sub.Receive(context.Background()); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	result := QueryResult{QueryID: "q-evt", Status: "success", TotalRows: 7}
	if err := p.Publish(context.Background(), result); err != nil {
		t.Fatalf("Publish: %v", err)
	}

	select {
	case msg := <-sub.Channel():
		var got QueryResult
		if err := json.Unmarshal([]byte(msg.Payload), &got); err != nil {
			t.Fatalf("unmarshal event: %v", err)
		}
		if got.QueryID != "q-evt" || got.TotalRows != 7 {
			t.Errorf("event = %+v", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
}

func TestPublishDefaultTTL(t *testing.T) {
	srv := miniredis.RunT(t)

	p := NewRedisPublisher(Config{Address: srv.Addr()})
	defer p.Close()

	if err := p.Publish(context.Background(), QueryResult{QueryID: "q-ttl", Status: "success"}); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if ttl := srv.TTL("dbcopilot:query:q-ttl:state"); ttl != 3600*time.Second {
		t.Errorf("ttl = %v, want 1h default", ttl)
	}
}
