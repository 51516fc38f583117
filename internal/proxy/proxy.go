// Package proxy forwards requests to the child server.
package proxy

import (
	"log/slog"
	"net/http"
	"net/http/httputil"
	"time"

	"golang.org/x/time/rate"

	"github.com/modelfoxdotdev/sunfish/internal/metrics"
)

// UnavailableBody is written with a 503 when the child cannot be reached.
const UnavailableBody = "service unavailable"

var forwardingHeaders = []string{"Forwarded", "X-Forwarded-For", "X-Forwarded-Host", "X-Forwarded-Proto"}

// New returns a reverse proxy to http://childAddr. Method, path, query,
// headers (including Host) and body are forwarded unchanged, and the child's
// response is relayed as is. Transport failures become a 503 with
// UnavailableBody. m may be nil.
func New(childAddr string, m *metrics.Metrics, logger *slog.Logger) *httputil.ReverseProxy {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "proxy")
	// A dead child fails every request; one line per second is plenty.
	sometimes := &rate.Sometimes{Interval: time.Second}

	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.Out.URL.Scheme = "http"
			pr.Out.URL.Host = childAddr
			pr.Out.Host = pr.In.Host
			// ReverseProxy strips these before Rewrite runs; the child sees
			// exactly what the client sent and nothing the proxy added.
			for _, h := range forwardingHeaders {
				if v, ok := pr.In.Header[h]; ok {
					pr.Out.Header[h] = append([]string(nil), v...)
				}
			}
		},
		ModifyResponse: func(*http.Response) error {
			if m != nil {
				m.ProxyRequests.WithLabelValues(metrics.OutcomeOK).Inc()
			}
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			if m != nil {
				m.ProxyRequests.WithLabelValues(metrics.OutcomeUnavailable).Inc()
			}
			sometimes.Do(func() {
				logger.Warn("child unreachable", "addr", childAddr, "method", r.Method, "path", r.URL.Path, "error", err)
			})
			w.Header().Set("Content-Type", "text/plain; charset=utf-8")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(UnavailableBody))
		},
		// Stream responses (server-sent events, long polls) without buffering.
		FlushInterval: -1,
	}
}
