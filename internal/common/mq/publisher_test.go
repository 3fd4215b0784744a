package mq

import (
	"context"
	"errors"
	"testing"

	"github.com/park285/llm-kakao-bots/channel-registry-go/internal/common/testhelper"
)

func TestStreamPublisher_PublishBatch(t *testing.T) {
	mr, client := testhelper.NewMiniValkey(t)
	pub := NewStreamPublisher(client, testhelper.NewDiscardLogger(), StreamPublisherConfig{MaxLen: 100})
	ctx := context.Background()

	ids, err := pub.PublishBatch(ctx, []Message{
		{Stream: "out:a", Values: map[string]string{"uid": "u1", "route": "chat"}},
		{Stream: "out:a", Values: map[string]string{"uid": "u2", "route": "chat"}},
		{Stream: "out:b", Values: map[string]string{"uid": "u3", "route": "chat"}},
	})
	if err != nil {
		t.Fatalf("publish batch failed: %v", err)
	}
	if len(ids) != 3 || ids[0] == "" || ids[2] == "" {
		t.Fatalf("unexpected ids: %v", ids)
	}

	entries, err := mr.Stream("out:a")
	if err != nil {
		t.Fatalf("read stream failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries in out:a, got %d", len(entries))
	}
	// 필드는 키 순서로 기록된다.
	if got := entries[0].Values; len(got) != 4 || got[0] != "route" || got[2] != "uid" || got[3] != "u1" {
		t.Fatalf("unexpected field layout: %v", got)
	}
}

func TestStreamPublisher_RejectsEmptyMessage(t *testing.T) {
	_, client := testhelper.NewMiniValkey(t)
	pub := NewStreamPublisher(client, testhelper.NewDiscardLogger(), StreamPublisherConfig{})

	_, err := pub.Publish(context.Background(), Message{Stream: "out:a"})
	if !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("expected ErrEmptyMessage, got %v", err)
	}
}
