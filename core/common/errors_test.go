package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindClassification(t *testing.T) {
	err := NewError(KindTimeout, "deadline exceeded")

	if KindOf(err) != KindTimeout {
		t.Errorf("expected KindTimeout, got %s", KindOf(err))
	}
	if !IsKind(err, KindTimeout) {
		t.Error("IsKind must match the error's own kind")
	}
	if IsKind(err, KindConnect) {
		t.Error("IsKind must not match a different kind")
	}
}

func TestErrorWrapping(t *testing.T) {
	cause := errors.New("socket closed")
	err := WrapError(KindConnectionClosed, "connection lost", cause)

	if !errors.Is(err, cause) {
		t.Error("expected the cause to be reachable via errors.Is")
	}
	if KindOf(err) != KindConnectionClosed {
		t.Errorf("expected KindConnectionClosed, got %s", KindOf(err))
	}

	// Wrapping again keeps the outermost kind
	outer := WrapError(KindWrite, "write failed", err)
	if KindOf(outer) != KindWrite {
		t.Errorf("expected the outermost kind, got %s", KindOf(outer))
	}
	if !errors.Is(outer, cause) {
		t.Error("expected the original cause through two layers")
	}
}

func TestErrorfFormatting(t *testing.T) {
	err := Errorf(KindRouting, "no node owns slot %d", 42)
	if KindOf(err) != KindRouting {
		t.Errorf("expected KindRouting, got %s", KindOf(err))
	}
	if want := "no node owns slot 42"; err.Message != want {
		t.Errorf("expected %q, got %q", want, err.Message)
	}
}

func TestKindOfForeignError(t *testing.T) {
	if KindOf(errors.New("plain")) != KindUnspecified {
		t.Error("foreign errors must classify as unspecified")
	}
	if KindOf(nil) != KindUnspecified {
		t.Error("nil must classify as unspecified")
	}

	// An error wrapping one of ours keeps its kind visible
	wrapped := fmt.Errorf("outer: %w", NewError(KindOverloaded, "full"))
	if KindOf(wrapped) != KindOverloaded {
		t.Errorf("expected KindOverloaded through fmt wrapping, got %s", KindOf(wrapped))
	}
}

func TestKindStrings(t *testing.T) {
	kinds := []ErrKind{
		KindUnspecified, KindConnect, KindWrite, KindProtocol, KindRouting,
		KindOverloaded, KindTimeout, KindCancelled, KindConnectionClosed,
	}
	seen := map[string]bool{}
	for _, k := range kinds {
		s := k.String()
		if s == "" {
			t.Errorf("kind %d has an empty string form", k)
		}
		if seen[s] {
			t.Errorf("kind string %q is ambiguous", s)
		}
		seen[s] = true
	}
}
