package queue

import (
	"context"
	"testing"
	"time"
)

func TestInMemoryPublishConsume(t *testing.T) {
	t.Parallel()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	q := NewInMemory(4)
	if err := q.Publish(ctx, Message{Type: "settlement", Body: []byte("sess-1")}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	messages, err := q.Consume(ctx)
	if err != nil {
		t.Fatalf("consume: %v", err)
	}
	msg := <-messages
	if msg.Type != "settlement" || string(msg.Body) != "sess-1" {
		t.Fatalf("unexpected message: %+v", msg)
	}
}

func TestSerializeRoundTrip(t *testing.T) {
	t.Parallel()
	msg, err := deserialize(serialize(Message{Type: "settlement", Body: []byte("id|with|pipes")}))
	if err != nil {
		t.Fatalf("deserialize: %v", err)
	}
	if msg.Type != "settlement" || string(msg.Body) != "id|with|pipes" {
		t.Fatalf("round trip mangled message: %+v", msg)
	}
}
