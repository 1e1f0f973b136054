package domain

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorKinds(t *testing.T) {
	t.Run("validation", func(t *testing.T) {
		err := Validation("bad value %d", 7).WithDetail("field", "bandwidth")
		if !IsValidation(err) {
			t.Error("expected validation kind")
		}
		if IsNotFound(err) || IsUnavailable(err) {
			t.Error("kind predicates overlap")
		}
		var de *Error
		if !errors.As(err, &de) {
			t.Fatal("expected *Error")
		}
		if de.Details["field"] != "bandwidth" {
			t.Errorf("expected detail preserved, got %v", de.Details)
		}
	})

	t.Run("not found survives wrapping", func(t *testing.T) {
		err := fmt.Errorf("loading policy: %w", NotFound("policy %s not found", "p1"))
		if !IsNotFound(err) {
			t.Error("expected not-found kind through wrap")
		}
	})

	t.Run("unavailable carries cause", func(t *testing.T) {
		cause := errors.New("connection refused")
		err := Unavailable(cause, "tc unreachable")
		if !IsUnavailable(err) {
			t.Error("expected unavailable kind")
		}
		if !errors.Is(err, cause) {
			t.Error("expected cause reachable via errors.Is")
		}
	})

	t.Run("non-domain error has no kind", func(t *testing.T) {
		if KindOf(errors.New("plain")) != "" {
			t.Error("expected empty kind for plain error")
		}
	})
}
