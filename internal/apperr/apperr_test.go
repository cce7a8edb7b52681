package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorCodeAndMessage(t *testing.T) {
	cause := errors.New("connection reset")
	err := New(KindNotFound, "social.update_post", "post_missing", "Post not found", cause)

	target, ok := As(fmt.Errorf("wrapped: %w", err))
	if !ok {
		t.Fatalf("expected typed error in chain")
	}
	if target.Code() != "social.update_post.post_missing" {
		t.Fatalf("unexpected code %q", target.Code())
	}
	if target.Message() != "Post not found" {
		t.Fatalf("unexpected message %q", target.Message())
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through Unwrap")
	}
}

func TestKindOfDefaultsToUpstream(t *testing.T) {
	if KindOf(errors.New("boom")) != KindUpstream {
		t.Fatalf("expected untyped errors to map to upstream")
	}
	if !IsKind(New(KindConflict, "op", "dup", "", nil), KindConflict) {
		t.Fatalf("expected conflict kind")
	}
}

func TestMessageFallsBackToKindDefault(t *testing.T) {
	target, _ := As(Upstream("social.feed", "query_failed", errors.New("timeout")))
	if target.Message() != "Internal Server Error" {
		t.Fatalf("expected generic upstream message, got %q", target.Message())
	}
	if target.Error() != "social.feed.query_failed: timeout" {
		t.Fatalf("unexpected error string %q", target.Error())
	}
}
