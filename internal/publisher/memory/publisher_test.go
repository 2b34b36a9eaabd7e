package memory

import (
	"context"
	"testing"

	"github.com/serplens/ranktracker/internal/rank"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "job-completions", rank.CompletionEvent{JobID: "a", Status: rank.JobStatusCompleted})
	if err != nil || id1 != "memory-1" {
		t.Fatalf("unexpected publish result id=%s err=%v", id1, err)
	}
	id2, err := pub.Publish(context.Background(), "job-completions", rank.CompletionEvent{JobID: "b", Status: rank.JobStatusFailed})
	if err != nil || id2 != "memory-2" {
		t.Fatalf("unexpected publish result id=%s err=%v", id2, err)
	}

	msgs := pub.Messages()
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].Event.JobID != "a" || msgs[1].Event.JobID != "b" {
		t.Fatalf("events not recorded correctly: %+v", msgs)
	}

	msgs[0].Topic = "modified"
	if pub.Messages()[0].Topic == "modified" {
		t.Fatal("expected Messages() to return a copy")
	}
}
