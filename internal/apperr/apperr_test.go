package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestKindSurvivesWrapping(t *testing.T) {
	cause := errors.New("connection refused")
	err := fmt.Errorf("append message: %w", Storage("database unavailable", cause))

	if got := KindOf(err); got != KindStorage {
		t.Fatalf("expected storage kind, got %s", got)
	}
	if !errors.Is(err, cause) {
		t.Fatalf("expected cause to be reachable through the chain")
	}
	if got := PublicMessage(err); got != "database unavailable" {
		t.Fatalf("unexpected public message %q", got)
	}
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{Validation("message is required"), http.StatusBadRequest},
		{Upstream("provider failed", errors.New("boom")), http.StatusInternalServerError},
		{Storage("db down", nil), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := HTTPStatus(tc.err); got != tc.want {
			t.Fatalf("HTTPStatus(%v) = %d, want %d", tc.err, got, tc.want)
		}
	}
}

func TestIs(t *testing.T) {
	if Is(nil, KindValidation) {
		t.Fatalf("nil error must not match any kind")
	}
	if !Is(Validation("too long: %d", 1001), KindValidation) {
		t.Fatalf("expected validation kind")
	}
	if Is(errors.New("x"), KindUnknown) != true {
		t.Fatalf("plain errors are unknown kind")
	}
}
