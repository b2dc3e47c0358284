package bus

import (
	"context"
	"testing"
	"time"
)

func TestMemoryBus_PublishSubscribeRoundTrip(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "pixoo/dev1/scene/set")
	if err != nil {
		t.Fatalf("Subscribe() returned error: %v", err)
	}
	defer sub.Close()

	if err := b.Publish(ctx, "pixoo/dev1/scene/set", []byte(`{"scene":"clock"}`)); err != nil {
		t.Fatalf("Publish() returned error: %v", err)
	}

	select {
	case msg := <-sub.C():
		if msg.Topic != "pixoo/dev1/scene/set" || string(msg.Payload) != `{"scene":"clock"}` {
			t.Errorf("got message %+v", msg)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for published message")
	}
}

func TestMemoryBus_NonMatchingTopicNotDelivered(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "pixoo/dev1/#")
	if err != nil {
		t.Fatalf("Subscribe() returned error: %v", err)
	}
	defer sub.Close()

	if err := b.Publish(ctx, "pixoo/dev2/scene/set", []byte("x")); err != nil {
		t.Fatalf("Publish() returned error: %v", err)
	}

	select {
	case msg := <-sub.C():
		t.Fatalf("unexpected delivery for non-matching topic: %+v", msg)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_CloseStopsDelivery(t *testing.T) {
	b := NewMemoryBus()
	ctx := context.Background()

	sub, err := b.Subscribe(ctx, "pixoo/#")
	if err != nil {
		t.Fatalf("Subscribe() returned error: %v", err)
	}
	if err := sub.Close(); err != nil {
		t.Fatalf("Close() returned error: %v", err)
	}

	if _, ok := <-sub.C(); ok {
		t.Fatal("expected channel to be closed")
	}
}

func TestTopicMatches(t *testing.T) {
	cases := []struct {
		filter, topic string
		want          bool
	}{
		{"pixoo/dev1/scene/set", "pixoo/dev1/scene/set", true},
		{"pixoo/+/scene/set", "pixoo/dev1/scene/set", true},
		{"pixoo/+/scene/set", "pixoo/dev1/driver/set", false},
		{"pixoo/#", "pixoo/dev1/scene/set", true},
		{"pixoo/#", "home/pixoo/dev1/scene/set", false},
		{"/home/pixoo/+/driver/set", "/home/pixoo/dev1/driver/set", true},
		{"pixoo/dev1/scene/set", "pixoo/dev1/scene", false},
	}
	for _, tc := range cases {
		if got := TopicMatches(tc.filter, tc.topic); got != tc.want {
			t.Errorf("TopicMatches(%q, %q) = %v, want %v", tc.filter, tc.topic, got, tc.want)
		}
	}
}
