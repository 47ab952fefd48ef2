package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindOf(t *testing.T) {
	if got := KindOf(E(KindConflict, "key %s is already taken", "A-101")); got != KindConflict {
		t.Errorf("KindOf = %v, want conflict", got)
	}
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Errorf("KindOf(plain) = %v, want internal", got)
	}
	// wrapped errors still classify
	wrapped := fmt.Errorf("outer: %w", E(KindNotFound, "key not found"))
	if got := KindOf(wrapped); got != KindNotFound {
		t.Errorf("KindOf(wrapped) = %v, want not found", got)
	}
}

func TestMessageMasksInternals(t *testing.T) {
	err := Wrap(KindInternal, "persist notification", errors.New("pq: connection refused"))
	if got := Message(err); got != "internal error" {
		t.Errorf("Message = %q, want the masked form", got)
	}
	if got := Message(E(KindValidation, "QR payload is stale")); got != "QR payload is stale" {
		t.Errorf("Message = %q, want the validation text", got)
	}
	if got := Message(errors.New("raw driver error")); got != "internal error" {
		t.Errorf("Message(plain) = %q, want the masked form", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{E(KindValidation, "bad"), http.StatusBadRequest},
		{E(KindNotFound, "missing"), http.StatusNotFound},
		{E(KindConflict, "taken"), http.StatusConflict},
		{E(KindForbidden, "no"), http.StatusForbidden},
		{E(KindInternal, "boom"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Errorf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("root cause")
	err := Wrap(KindInternal, "context", cause)
	if !errors.Is(err, cause) {
		t.Error("wrapped cause not reachable via errors.Is")
	}
	if err.Error() != "context: root cause" {
		t.Errorf("Error() = %q", err.Error())
	}
}
