package deadletter

import (
	"context"
	"testing"
)

func TestConfigValidate(t *testing.T) {
	if err := (Config{}).Validate(); err != nil {
		t.Fatalf("disabled config must validate: %v", err)
	}
	if err := (Config{Enabled: true, Exchange: "dlx"}).Validate(); err == nil {
		t.Fatalf("expected error for missing url")
	}
	if err := (Config{Enabled: true, URL: "amqp://localhost"}).Validate(); err == nil {
		t.Fatalf("expected error for missing exchange")
	}
	if err := (Config{Enabled: true, URL: "amqp://localhost", Exchange: "dlx"}).Validate(); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestPublishingCarriesProvenanceHeaders(t *testing.T) {
	pub := publishing(3, 17, "unmarshal line payload: boom", []byte{0x01})
	if pub.Headers["partition_id"] != int64(3) {
		t.Fatalf("partition_id header = %v", pub.Headers["partition_id"])
	}
	if pub.Headers["offset"] != int64(17) {
		t.Fatalf("offset header = %v", pub.Headers["offset"])
	}
	if pub.Headers["reason"] != "unmarshal line payload: boom" {
		t.Fatalf("reason header = %v", pub.Headers["reason"])
	}
	if pub.DeliveryMode != 2 {
		t.Fatalf("dead letters must be persistent")
	}
	if len(pub.Body) != 1 || pub.Body[0] != 0x01 {
		t.Fatalf("body = %v", pub.Body)
	}
}

func TestNopSink(t *testing.T) {
	var s Sink = Nop{}
	if err := s.Publish(context.Background(), 0, 1, "x", nil); err != nil {
		t.Fatalf("nop publish: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("nop close: %v", err)
	}
}
