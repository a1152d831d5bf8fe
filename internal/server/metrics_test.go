package server

import (
	"net/http"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/54b3r/ragchat-go/internal/config"
)

func Test_Metrics_EndpointServesRegistry(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Deps{})

	// Populate at least one series so the exposition is non-empty.
	do(s, http.MethodGet, "/api/health", "")
	w := do(s, http.MethodGet, "/metrics", "")

	if w.Code != http.StatusOK {
		t.Fatalf("want 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/plain") {
		t.Errorf("want text/plain content-type, got %q", ct)
	}
	if !strings.Contains(w.Body.String(), "ragchat_http_requests_total") {
		t.Errorf("expected ragchat_http_requests_total in exposition:\n%s", w.Body.String())
	}
}

func Test_Metrics_HTTPRequestsLabelledByPattern(t *testing.T) {
	t.Parallel()
	s, _ := newTestServer(t, Deps{})

	do(s, http.MethodGet, "/api/health", "")
	do(s, http.MethodGet, "/api/health", "")
	do(s, http.MethodGet, "/nope", "")

	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("GET", "GET /api/health", "200")); got != 2 {
		t.Errorf("health requests: want 2, got %v", got)
	}
	if got := testutil.ToFloat64(s.metrics.httpRequestsTotal.WithLabelValues("GET", "unmatched", "404")); got != 1 {
		t.Errorf("unmatched requests: want 1, got %v", got)
	}
}

func Test_Metrics_ChatCounterByMode(t *testing.T) {
	t.Parallel()
	s, reg := newTestServer(t, Deps{Chat: &fakeChat{mode: config.ModeSingle, text: "ok"}})

	do(s, http.MethodPost, "/api/chat", `{"message":"hi"}`)

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	found := false
	for _, mf := range mfs {
		if mf.GetName() != "ragchat_chat_requests_total" {
			continue
		}
		for _, m := range mf.GetMetric() {
			labels := map[string]string{}
			for _, lp := range m.GetLabel() {
				labels[lp.GetName()] = lp.GetValue()
			}
			if labels["outcome"] == "ok" && labels["mode"] == config.ModeSingle {
				if m.GetCounter().GetValue() != 1 {
					t.Errorf("want counter=1, got %v", m.GetCounter().GetValue())
				}
				found = true
			}
		}
	}
	if !found {
		t.Error(`ragchat_chat_requests_total{outcome="ok",mode="single"} not found in gathered metrics`)
	}
}
