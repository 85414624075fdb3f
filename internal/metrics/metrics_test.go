package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestCountersAndExposition(t *testing.T) {
	m := New()
	m.Turn(OutcomeOK)
	m.Turn(OutcomeOK)
	m.Turn(OutcomeUpstream)
	m.VoiceQuery(OutcomeValidation)
	m.ProviderCall("chat", time.Now(), nil)
	m.StoreOp("append", errors.New("down"))

	if got := testutil.ToFloat64(m.turns.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("expected 2 ok turns, got %v", got)
	}
	if got := testutil.ToFloat64(m.storeOps.WithLabelValues("append", "error")); got != 1 {
		t.Fatalf("expected 1 failed append, got %v", got)
	}

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "chatbot_chat_turns_total") {
		t.Fatalf("exposition missing turn counter:\n%s", body)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.Turn(OutcomeOK)
	m.VoiceQuery(OutcomeOK)
	m.ProviderCall("chat", time.Now(), nil)
	m.StoreOp("list", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 from nil metrics handler, got %d", rec.Code)
	}
}
