package settle

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"goalrush/matchcore/internal/result"
)

func testResult(matchID string) result.MatchResult {
	return result.MatchResult{
		MatchID:    matchID,
		Status:     result.StatusCompleted,
		WinnerID:   "home",
		LoserID:    "away",
		FinalScore: [2]int{2, 1},
	}
}

func TestStreamDeliversInOrder(t *testing.T) {
	stream := NewStream(Config{Retain: 8})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := stream.Subscribe(ctx, "settlement", 4)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	for i := 1; i <= 3; i++ {
		if _, err := stream.Publish(testResult(fmt.Sprintf("match-%d", i))); err != nil {
			t.Fatalf("publish %d: %v", i, err)
		}
	}

	for expected := uint64(1); expected <= 3; expected++ {
		select {
		case envelope := <-sub.Results():
			if envelope.Sequence != expected {
				t.Fatalf("expected sequence %d, got %d", expected, envelope.Sequence)
			}
			if err := sub.Ack(envelope.Sequence); err != nil {
				t.Fatalf("ack %d: %v", expected, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for envelope %d", expected)
		}
	}
}

func TestStreamReplaysUnackedOnResubscribe(t *testing.T) {
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := stream.Subscribe(ctx, "settlement", 2)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := stream.Publish(testResult("match-1")); err != nil {
		t.Fatalf("publish first: %v", err)
	}
	if _, err := stream.Publish(testResult("match-2")); err != nil {
		t.Fatalf("publish second: %v", err)
	}

	//1.- Consume and ack only the first result, then drop the connection.
	first := <-sub.Results()
	if err := sub.Ack(first.Sequence); err != nil {
		t.Fatalf("ack: %v", err)
	}
	sub.Close()

	//2.- A result published while disconnected must also be replayed.
	if _, err := stream.Publish(testResult("match-3")); err != nil {
		t.Fatalf("publish third: %v", err)
	}

	resub, err := stream.Subscribe(ctx, "settlement", 4)
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}
	for _, expected := range []uint64{2, 3} {
		select {
		case envelope := <-resub.Results():
			if envelope.Sequence != expected {
				t.Fatalf("expected replayed sequence %d, got %d", expected, envelope.Sequence)
			}
			if err := resub.Ack(envelope.Sequence); err != nil {
				t.Fatalf("ack %d: %v", expected, err)
			}
		case <-time.After(time.Second):
			t.Fatalf("timeout waiting for replayed envelope %d", expected)
		}
	}
}

func TestStreamRejectsOutOfOrderAck(t *testing.T) {
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub, err := stream.Subscribe(ctx, "settlement", 4)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if _, err := stream.Publish(testResult("match-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	if _, err := stream.Publish(testResult("match-2")); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if err := sub.Ack(2); !errors.Is(err, ErrOutOfOrderAck) {
		t.Fatalf("expected ErrOutOfOrderAck, got %v", err)
	}
	if err := sub.Ack(1); err != nil {
		t.Fatalf("in-order ack failed: %v", err)
	}
	if err := sub.Ack(2); err != nil {
		t.Fatalf("second ack failed: %v", err)
	}
	//1.- Acking an already acknowledged sequence is idempotent.
	if err := sub.Ack(1); err != nil {
		t.Fatalf("stale ack must be ignored: %v", err)
	}
}

func TestStreamStaleCloseKeepsReplacementAttached(t *testing.T) {
	stream := NewStream(Config{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	old, err := stream.Subscribe(ctx, "settlement", 2)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	resub, err := stream.Subscribe(ctx, "settlement", 2)
	if err != nil {
		t.Fatalf("resubscribe: %v", err)
	}

	//1.- The stale subscription closes after its replacement already attached.
	old.Close()

	if _, err := stream.Publish(testResult("match-1")); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case envelope := <-resub.Results():
		if envelope.Sequence != 1 {
			t.Fatalf("expected sequence 1, got %d", envelope.Sequence)
		}
	case <-time.After(time.Second):
		t.Fatalf("replacement subscription lost delivery after stale close")
	}
}

func TestStreamRequiresConsumerID(t *testing.T) {
	stream := NewStream(Config{})
	if _, err := stream.Subscribe(context.Background(), "", 4); err == nil {
		t.Fatalf("expected error for empty consumer id")
	}
}
