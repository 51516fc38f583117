package proxy

import (
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"reflect"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/modelfoxdotdev/sunfish/internal/metrics"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func childAddr(s *httptest.Server) string {
	return strings.TrimPrefix(s.URL, "http://")
}

func TestProxyForwardsRequest(t *testing.T) {
	child := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		w.Header().Set("X-Child", "yes")
		w.WriteHeader(http.StatusCreated)
		io.WriteString(w, strings.Join([]string{r.Method, r.URL.Path, r.URL.RawQuery, r.Host, r.Header.Get("X-Custom"), string(body)}, "|"))
	}))
	defer child.Close()

	m := metrics.New()
	p := New(childAddr(child), m, testLogger())

	req := httptest.NewRequest("POST", "http://app.localhost:8080/a/b?x=1&y=2", strings.NewReader("payload"))
	req.Header.Set("X-Custom", "v")
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, req)

	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	if got := rec.Header().Get("X-Child"); got != "yes" {
		t.Errorf("expected child response header, got %q", got)
	}
	if got, want := rec.Body.String(), "POST|/a/b|x=1&y=2|app.localhost:8080|v|payload"; got != want {
		t.Errorf("child saw %q, want %q", got, want)
	}
	if got := testutil.ToFloat64(m.ProxyRequests.WithLabelValues(metrics.OutcomeOK)); got != 1 {
		t.Errorf("expected 1 ok request counted, got %v", got)
	}
}

func TestProxyLeavesForwardingHeadersAlone(t *testing.T) {
	seen := make(chan http.Header, 2)
	child := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen <- r.Header.Clone()
	}))
	defer child.Close()

	p := New(childAddr(child), nil, testLogger())

	// A client that sent X-Forwarded-For keeps exactly that value.
	req := httptest.NewRequest("GET", "http://app.localhost:8080/", nil)
	req.Header.Set("X-Forwarded-For", "10.9.9.9")
	p.ServeHTTP(httptest.NewRecorder(), req)

	h := <-seen
	if got := h.Values("X-Forwarded-For"); !reflect.DeepEqual(got, []string{"10.9.9.9"}) {
		t.Errorf("X-Forwarded-For = %q, want the client's value", got)
	}
	for _, name := range []string{"X-Forwarded-Host", "X-Forwarded-Proto", "Forwarded"} {
		if v, ok := h[name]; ok {
			t.Errorf("proxy added %s: %q", name, v)
		}
	}

	// A client that sent none gets none added.
	p.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", "http://app.localhost:8080/", nil))
	h = <-seen
	for _, name := range forwardingHeaders {
		if v, ok := h[name]; ok {
			t.Errorf("proxy added %s: %q", name, v)
		}
	}
}

func TestProxyRelaysChildErrors(t *testing.T) {
	child := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer child.Close()

	p := New(childAddr(child), nil, testLogger())
	rec := httptest.NewRecorder()
	p.ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Errorf("expected 500 relayed, got %d", rec.Code)
	}
	if got := rec.Body.String(); got != "boom\n" {
		t.Errorf("expected child body relayed, got %q", got)
	}
}

func TestProxyUnavailable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	ln.Close()

	m := metrics.New()
	p := New(addr, m, testLogger())

	for range 3 {
		rec := httptest.NewRecorder()
		p.ServeHTTP(rec, httptest.NewRequest("GET", "/anything", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("expected 503, got %d", rec.Code)
		}
		if got := rec.Body.String(); got != UnavailableBody {
			t.Errorf("expected body %q, got %q", UnavailableBody, got)
		}
	}
	if got := testutil.ToFloat64(m.ProxyRequests.WithLabelValues(metrics.OutcomeUnavailable)); got != 3 {
		t.Errorf("expected 3 unavailable requests counted, got %v", got)
	}
}
